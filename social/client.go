package social

import (
	"context"
	"net/http"
	"net/url"
	"time"
)

// Endpoint is a provider's OAuth2 endpoint set.
type Endpoint struct {
	AuthURL     string
	TokenURL    string
	UserInfoURL string
}

// orDefault fills blank URLs from def.
func (e Endpoint) orDefault(def Endpoint) Endpoint {
	if e.AuthURL == "" {
		e.AuthURL = def.AuthURL
	}
	if e.TokenURL == "" {
		e.TokenURL = def.TokenURL
	}
	if e.UserInfoURL == "" {
		e.UserInfoURL = def.UserInfoURL
	}
	return e
}

// Client is one provider registration plus the round trips every adapter
// shares. Adapters add their provider specific parameters.
type Client struct {
	Provider     string
	ClientID     string
	ClientSecret string
	CallbackURL  string
	Endpoint     Endpoint
	HTTP         *http.Client
	Now          func() time.Time
}

// NewClient fills endpoint defaults and a default HTTP client.
func NewClient(provider string, endpoint, defaults Endpoint, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = DefaultHTTPClient()
	}
	return &Client{
		Provider: provider,
		Endpoint: endpoint.orDefault(defaults),
		HTTP:     httpClient,
		Now:      time.Now,
	}
}

// ConsentURL builds the authorization code URL. extra is merged over the
// standard parameters.
func (c *Client) ConsentURL(state string, extra url.Values) string {
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", c.ClientID)
	if c.CallbackURL != "" {
		q.Set("redirect_uri", c.CallbackURL)
	}
	q.Set("state", state)
	for k, vs := range extra {
		q[k] = vs
	}
	return c.Endpoint.AuthURL + "?" + q.Encode()
}

// ExchangeCode performs the authorization_code grant. form carries the
// parameters the provider needs beyond grant_type, client_id and code.
func (c *Client) ExchangeCode(ctx context.Context, code string, form url.Values) (*Token, error) {
	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("client_id", c.ClientID)
	data.Set("code", code)
	for k, vs := range form {
		data[k] = vs
	}

	status, body, err := PostForm(ctx, c.HTTP, c.Provider, opExchange, c.Endpoint.TokenURL, data)
	if err != nil {
		return nil, err
	}

	var resp TokenResponse
	if err := DecodeJSON(c.Provider, opExchange, status, body, &resp); err != nil {
		return nil, err
	}
	if resp.Failed(status) {
		return nil, resp.ProviderError(c.Provider, opExchange, status)
	}

	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	return resp.Token(now()), nil
}

// FetchUserInfo calls the user info endpoint with the access token and
// returns the raw answer for the adapter to interpret.
func (c *Client) FetchUserInfo(ctx context.Context, token *Token) (int, []byte, error) {
	if token == nil || token.AccessToken == "" {
		return 0, nil, &ProviderError{
			Provider:  c.Provider,
			Operation: opUserInfo,
			Code:      "missing_access_token",
		}
	}
	return GetWithBearer(ctx, c.HTTP, c.Provider, opUserInfo, c.Endpoint.UserInfoURL, token.AccessToken)
}

// PKCEParams returns the challenge parameters for cfg, nil without one.
func PKCEParams(cfg AuthCodeConfig) url.Values {
	if cfg.CodeChallenge == "" {
		return nil
	}
	return url.Values{
		"code_challenge":        {cfg.CodeChallenge},
		"code_challenge_method": {cfg.ChallengeMethod()},
	}
}

// UserInfoError builds the error for a rejected user info call.
func (c *Client) UserInfoError(status int, code, description string, raw map[string]any) *ProviderError {
	return &ProviderError{
		Provider:    c.Provider,
		Operation:   opUserInfo,
		Status:      status,
		Code:        code,
		Description: description,
		Raw:         raw,
	}
}
