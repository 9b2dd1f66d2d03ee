package social

import (
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// ProviderError is a failed round trip to a provider, normalized across the
// different error payloads providers send.
type ProviderError struct {
	Provider    string
	Operation   string
	Status      int
	Code        string
	Description string
	Err         error
	Raw         map[string]any
}

func (e *ProviderError) Error() string {
	if e == nil {
		return "provider error"
	}

	var b strings.Builder
	b.WriteString(strings.TrimSpace(e.Provider + " " + e.Operation))
	if b.Len() == 0 {
		b.WriteString("provider")
	}
	b.WriteString(" failed")

	if detail := e.detail(); detail != "" {
		b.WriteString(": ")
		b.WriteString(detail)
	}
	return b.String()
}

func (e *ProviderError) detail() string {
	if e.Description != "" {
		return e.Description
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return ""
}

func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Upstream reports a failure on the provider side: a 5xx answer or a
// transport error before any answer.
func (e *ProviderError) Upstream() bool {
	if e == nil {
		return false
	}
	if e.Status == 0 {
		return e.Err != nil
	}
	return e.Status >= http.StatusInternalServerError
}

// Metadata flattens the error for go-errors metadata. Empty fields are left out.
func (e *ProviderError) Metadata() map[string]any {
	if e == nil {
		return nil
	}

	meta := map[string]any{"upstream": e.Upstream()}
	for key, value := range map[string]string{
		"provider":    e.Provider,
		"operation":   e.Operation,
		"code":        e.Code,
		"description": e.Description,
	} {
		if value != "" {
			meta[key] = value
		}
	}
	if e.Status != 0 {
		meta["status"] = e.Status
	}
	if len(e.Raw) > 0 {
		meta["raw"] = e.Raw
	}
	return meta
}

// wrapProviderError clones base with err as its source and the provider
// details as metadata.
func wrapProviderError(base *goerrors.Error, provider, operation string, err error) error {
	if base == nil {
		return err
	}

	meta := map[string]any{
		"provider":  provider,
		"operation": operation,
	}

	var perr *ProviderError
	switch {
	case errors.As(err, &perr) && perr != nil:
		for k, v := range perr.Metadata() {
			meta[k] = v
		}
	case err != nil:
		meta["error"] = err.Error()
	}

	clone := base.Clone()
	if err != nil {
		clone.Source = err
	}
	return clone.WithMetadata(meta)
}
