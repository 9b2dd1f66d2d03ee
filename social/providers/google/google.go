package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/goliatone/go-authd/social"
)

const providerName = "google"

var endpoints = social.Endpoint{
	AuthURL:     "https://accounts.google.com/o/oauth2/v2/auth",
	TokenURL:    "https://oauth2.googleapis.com/token",
	UserInfoURL: "https://www.googleapis.com/oauth2/v3/userinfo",
}

// Config holds Google OAuth configuration. Blank URLs use Google's
// production endpoints.
type Config struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
	Scopes       []string

	AuthURL     string
	TokenURL    string
	UserInfoURL string

	HTTPClient *http.Client
}

func DefaultScopes() []string {
	return []string{"openid", "email", "profile"}
}

// Provider implements social.SocialProvider for Google.
type Provider struct {
	client *social.Client
	scopes []string
}

var _ social.SocialProvider = (*Provider)(nil)

func New(cfg Config) *Provider {
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes()
	}

	client := social.NewClient(providerName, social.Endpoint{
		AuthURL:     cfg.AuthURL,
		TokenURL:    cfg.TokenURL,
		UserInfoURL: cfg.UserInfoURL,
	}, endpoints, cfg.HTTPClient)
	client.ClientID = cfg.ClientID
	client.ClientSecret = cfg.ClientSecret
	client.CallbackURL = cfg.CallbackURL

	return &Provider{client: client, scopes: scopes}
}

func (p *Provider) Name() string {
	return providerName
}

// AuthCodeURL requests offline access so Google issues a refresh token.
func (p *Provider) AuthCodeURL(state string, opts ...social.AuthCodeOption) string {
	cfg := social.ApplyAuthCodeOptions(p.scopes, opts...)

	extra := social.PKCEParams(cfg)
	if extra == nil {
		extra = url.Values{}
	}
	extra.Set("scope", strings.Join(cfg.Scopes, " "))
	extra.Set("access_type", "offline")
	if cfg.Prompt != "" {
		extra.Set("prompt", cfg.Prompt)
	}

	return p.client.ConsentURL(state, extra)
}

func (p *Provider) Exchange(ctx context.Context, code string, opts ...social.ExchangeOption) (*social.Token, error) {
	cfg := social.ApplyExchangeOptions(opts...)

	form := url.Values{
		"client_secret": {p.client.ClientSecret},
		"redirect_uri":  {p.client.CallbackURL},
	}
	if cfg.CodeVerifier != "" {
		form.Set("code_verifier", cfg.CodeVerifier)
	}

	return p.client.ExchangeCode(ctx, code, form)
}

func (p *Provider) UserInfo(ctx context.Context, token *social.Token) (*social.SocialProfile, error) {
	status, body, err := p.client.FetchUserInfo(ctx, token)
	if err != nil {
		return nil, err
	}

	if status != http.StatusOK {
		code, description, raw := parseError(body)
		return nil, p.client.UserInfoError(status, code, description, raw)
	}

	var claims idClaims
	if err := social.DecodeJSON(providerName, "user_info", status, body, &claims); err != nil {
		return nil, err
	}
	return claims.profile(), nil
}

// idClaims is the OpenID Connect userinfo payload.
type idClaims struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
	Picture       string `json:"picture"`
	Locale        string `json:"locale"`
}

func (c idClaims) profile() *social.SocialProfile {
	raw := map[string]any{"sub": c.Sub}
	if c.FamilyName != "" {
		raw["family_name"] = c.FamilyName
	}
	if c.Locale != "" {
		raw["locale"] = c.Locale
	}

	return &social.SocialProfile{
		ProviderUserID: c.Sub,
		Provider:       providerName,
		Email:          c.Email,
		EmailVerified:  c.EmailVerified,
		Name:           c.Name,
		FirstName:      c.GivenName,
		AvatarURL:      c.Picture,
		Raw:            raw,
	}
}

// errorBody covers both shapes Google answers with: the OAuth
// {"error", "error_description"} pair and the API envelope
// {"error": {"code", "message", "status"}}.
type errorBody struct {
	OAuthError  string
	Description string
	API         struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	}
}

func (e *errorBody) UnmarshalJSON(data []byte) error {
	var envelope struct {
		Error       json.RawMessage `json:"error"`
		Description string          `json:"error_description"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return err
	}
	e.Description = envelope.Description
	if len(envelope.Error) == 0 {
		return nil
	}
	if envelope.Error[0] == '"' {
		return json.Unmarshal(envelope.Error, &e.OAuthError)
	}
	return json.Unmarshal(envelope.Error, &e.API)
}

func parseError(body []byte) (string, string, map[string]any) {
	var e errorBody
	if err := json.Unmarshal(body, &e); err == nil {
		switch {
		case e.OAuthError != "" || e.Description != "":
			return e.OAuthError, e.Description, map[string]any{
				"error":             e.OAuthError,
				"error_description": e.Description,
			}
		case e.API.Message != "" || e.API.Status != "":
			code := e.API.Status
			if code == "" && e.API.Code != 0 {
				code = strconv.Itoa(e.API.Code)
			}
			return code, e.API.Message, map[string]any{
				"status":  e.API.Status,
				"message": e.API.Message,
				"code":    e.API.Code,
			}
		}
	}

	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = "google request failed"
	}
	return "", msg, nil
}
