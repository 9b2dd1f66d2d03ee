package auth

// ProviderRegistry dispatches a provider type to the first LoginProvider
// that claims it. Registration order decides ties.
type ProviderRegistry struct {
	providers []LoginProvider
}

// NewProviderRegistry returns a registry over providers; nil entries are skipped.
func NewProviderRegistry(providers ...LoginProvider) *ProviderRegistry {
	r := &ProviderRegistry{}
	r.Register(providers...)
	return r
}

// Register appends providers to the registry.
func (r *ProviderRegistry) Register(providers ...LoginProvider) {
	for _, p := range providers {
		if p != nil {
			r.providers = append(r.providers, p)
		}
	}
}

// Find returns the provider that supports providerType.
func (r *ProviderRegistry) Find(providerType ProviderType) (LoginProvider, error) {
	if r != nil {
		for _, p := range r.providers {
			if p.Supports(providerType) {
				return p, nil
			}
		}
	}
	return nil, withSource(ErrUnsupportedProvider, nil, map[string]any{
		"provider": providerType,
	})
}

// Len returns the number of registered providers.
func (r *ProviderRegistry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.providers)
}
