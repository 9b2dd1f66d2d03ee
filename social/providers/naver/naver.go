package naver

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/goliatone/go-authd/social"
)

const (
	providerName = "naver"
	resultCodeOK = "00"
)

var endpoints = social.Endpoint{
	AuthURL:     "https://nid.naver.com/oauth2.0/authorize",
	TokenURL:    "https://nid.naver.com/oauth2.0/token",
	UserInfoURL: "https://openapi.naver.com/v1/nid/me",
}

// Config holds Naver OAuth configuration. Naver has no scope parameter;
// consent items are configured in the developer console.
type Config struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string

	AuthURL     string
	TokenURL    string
	UserInfoURL string

	HTTPClient *http.Client
}

// Provider implements social.SocialProvider for Naver.
type Provider struct {
	client *social.Client
}

var _ social.SocialProvider = (*Provider)(nil)

func New(cfg Config) *Provider {
	client := social.NewClient(providerName, social.Endpoint{
		AuthURL:     cfg.AuthURL,
		TokenURL:    cfg.TokenURL,
		UserInfoURL: cfg.UserInfoURL,
	}, endpoints, cfg.HTTPClient)
	client.ClientID = cfg.ClientID
	client.ClientSecret = cfg.ClientSecret
	client.CallbackURL = cfg.CallbackURL

	return &Provider{client: client}
}

func (p *Provider) Name() string {
	return providerName
}

// AuthCodeURL ignores scope and PKCE options; "consent" maps to
// auth_type=reprompt.
func (p *Provider) AuthCodeURL(state string, opts ...social.AuthCodeOption) string {
	cfg := social.ApplyAuthCodeOptions(nil, opts...)

	extra := url.Values{}
	if cfg.Prompt == "consent" {
		extra.Set("auth_type", "reprompt")
	}
	return p.client.ConsentURL(state, extra)
}

// Exchange sends the state back as Naver requires. Naver answers 200 even
// when the grant is rejected, so the payload decides.
func (p *Provider) Exchange(ctx context.Context, code string, opts ...social.ExchangeOption) (*social.Token, error) {
	cfg := social.ApplyExchangeOptions(opts...)

	return p.client.ExchangeCode(ctx, code, url.Values{
		"client_secret": {p.client.ClientSecret},
		"state":         {cfg.State},
	})
}

// UserInfo requires resultcode "00" regardless of the HTTP status.
func (p *Provider) UserInfo(ctx context.Context, token *social.Token) (*social.SocialProfile, error) {
	status, body, err := p.client.FetchUserInfo(ctx, token)
	if err != nil {
		return nil, err
	}

	var info userInfo
	if err := social.DecodeJSON(providerName, "user_info", status, body, &info); err != nil {
		return nil, err
	}

	if status != http.StatusOK || info.ResultCode != resultCodeOK {
		return nil, p.client.UserInfoError(status, info.ResultCode, info.Message, map[string]any{
			"resultcode": info.ResultCode,
			"message":    info.Message,
		})
	}

	return info.profile(), nil
}

type userInfo struct {
	ResultCode string `json:"resultcode"`
	Message    string `json:"message"`
	Response   struct {
		ID           string `json:"id"`
		Email        string `json:"email"`
		Name         string `json:"name"`
		Nickname     string `json:"nickname"`
		ProfileImage string `json:"profile_image"`
	} `json:"response"`
}

// Naver only releases addresses the member confirmed, so a present email
// counts as verified.
func (u userInfo) profile() *social.SocialProfile {
	r := u.Response
	email := strings.TrimSpace(r.Email)
	return &social.SocialProfile{
		ProviderUserID: r.ID,
		Provider:       providerName,
		Email:          email,
		EmailVerified:  email != "",
		Name:           r.Name,
		Nickname:       r.Nickname,
		AvatarURL:      r.ProfileImage,
	}
}
