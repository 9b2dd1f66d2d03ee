package kakao

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/goliatone/go-authd/social"
)

const providerName = "kakao"

var endpoints = social.Endpoint{
	AuthURL:     "https://kauth.kakao.com/oauth/authorize",
	TokenURL:    "https://kauth.kakao.com/oauth/token",
	UserInfoURL: "https://kapi.kakao.com/v2/user/me",
}

// Config holds Kakao OAuth configuration. ClientID is the REST API key;
// ClientSecret is optional and only sent when the app enables it.
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

// DefaultScopes returns the default Kakao consent items.
func DefaultScopes() []string {
	return []string{"profile_nickname", "account_email"}
}

// Provider implements social.SocialProvider for Kakao.
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

// AuthCodeURL joins consent items with commas as Kakao expects.
func (p *Provider) AuthCodeURL(state string, opts ...social.AuthCodeOption) string {
	cfg := social.ApplyAuthCodeOptions(p.scopes, opts...)

	extra := social.PKCEParams(cfg)
	if extra == nil {
		extra = url.Values{}
	}
	if len(cfg.Scopes) > 0 {
		extra.Set("scope", strings.Join(cfg.Scopes, ","))
	}
	if cfg.Prompt != "" {
		extra.Set("prompt", cfg.Prompt)
	}

	return p.client.ConsentURL(state, extra)
}

func (p *Provider) Exchange(ctx context.Context, code string, opts ...social.ExchangeOption) (*social.Token, error) {
	cfg := social.ApplyExchangeOptions(opts...)

	form := url.Values{"redirect_uri": {p.client.CallbackURL}}
	if p.client.ClientSecret != "" {
		form.Set("client_secret", p.client.ClientSecret)
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
		return nil, p.apiFailure(status, body)
	}

	var info userInfo
	if err := social.DecodeJSON(providerName, "user_info", status, body, &info); err != nil {
		return nil, err
	}

	return info.profile(), nil
}

type userInfo struct {
	ID           int64 `json:"id"`
	KakaoAccount struct {
		Email           string `json:"email"`
		IsEmailValid    bool   `json:"is_email_valid"`
		IsEmailVerified bool   `json:"is_email_verified"`
		Name            string `json:"name"`
		Profile         struct {
			Nickname        string `json:"nickname"`
			ProfileImageURL string `json:"profile_image_url"`
		} `json:"profile"`
	} `json:"kakao_account"`
	Properties struct {
		Nickname string `json:"nickname"`
	} `json:"properties"`
}

func (u userInfo) profile() *social.SocialProfile {
	account := u.KakaoAccount

	nickname := account.Profile.Nickname
	if nickname == "" {
		nickname = u.Properties.Nickname
	}

	id := ""
	if u.ID != 0 {
		id = strconv.FormatInt(u.ID, 10)
	}

	return &social.SocialProfile{
		ProviderUserID: id,
		Provider:       providerName,
		Email:          account.Email,
		EmailVerified:  account.IsEmailValid && account.IsEmailVerified,
		Name:           account.Name,
		Nickname:       nickname,
		AvatarURL:      account.Profile.ProfileImageURL,
	}
}

// apiFailure reads the kapi error envelope: {"msg": "...", "code": -401}.
func (p *Provider) apiFailure(status int, body []byte) *social.ProviderError {
	var envelope struct {
		Msg  string `json:"msg"`
		Code int    `json:"code"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && (envelope.Msg != "" || envelope.Code != 0) {
		return p.client.UserInfoError(status, strconv.Itoa(envelope.Code), envelope.Msg, map[string]any{
			"msg":  envelope.Msg,
			"code": envelope.Code,
		})
	}
	return p.client.UserInfoError(status, "", strings.TrimSpace(string(body)), nil)
}
