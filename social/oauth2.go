package social

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultHTTPTimeout = 10 * time.Second

const (
	opExchange = "exchange"
	opUserInfo = "user_info"
)

// DefaultHTTPClient is used by providers configured without a client.
func DefaultHTTPClient() *http.Client {
	return &http.Client{Timeout: defaultHTTPTimeout}
}

// Seconds decodes expires_in values sent either as a number or a string.
type Seconds int64

func (s *Seconds) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(data), `"`)
	if raw == "" || raw == "null" {
		*s = 0
		return nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return err
	}
	*s = Seconds(n)
	return nil
}

// TokenResponse is the RFC 6749 token response plus the error fields the
// supported providers add to it.
type TokenResponse struct {
	AccessToken  string  `json:"access_token"`
	TokenType    string  `json:"token_type"`
	ExpiresIn    Seconds `json:"expires_in"`
	RefreshToken string  `json:"refresh_token"`
	Scope        string  `json:"scope"`
	IDToken      string  `json:"id_token,omitempty"`
	Error        string  `json:"error"`
	ErrorDesc    string  `json:"error_description"`
	ErrorCode    string  `json:"error_code,omitempty"`
}

// Failed reports an error payload or a non 200 status.
func (r TokenResponse) Failed(status int) bool {
	return status != http.StatusOK || r.Error != "" || r.AccessToken == ""
}

// ProviderError builds the error for a failed exchange.
func (r TokenResponse) ProviderError(provider, operation string, status int) *ProviderError {
	code := r.Error
	if code == "" && r.AccessToken == "" {
		code = "missing_access_token"
	}
	raw := map[string]any{}
	if r.Error != "" {
		raw["error"] = r.Error
	}
	if r.ErrorDesc != "" {
		raw["error_description"] = r.ErrorDesc
	}
	if r.ErrorCode != "" {
		raw["error_code"] = r.ErrorCode
	}
	return &ProviderError{
		Provider:    provider,
		Operation:   operation,
		Status:      status,
		Code:        code,
		Description: r.ErrorDesc,
		Raw:         raw,
	}
}

// Token converts the response into a Token relative to now.
func (r TokenResponse) Token(now time.Time) *Token {
	expiresAt := time.Time{}
	if r.ExpiresIn > 0 {
		expiresAt = now.Add(time.Duration(r.ExpiresIn) * time.Second)
	}
	return &Token{
		AccessToken:  r.AccessToken,
		TokenType:    r.TokenType,
		RefreshToken: r.RefreshToken,
		ExpiresAt:    expiresAt,
		Scopes:       strings.Fields(r.Scope),
	}
}

// PostForm sends an application/x-www-form-urlencoded request and returns
// the status and raw body.
func PostForm(ctx context.Context, client *http.Client, provider, operation, endpoint string, values url.Values) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(values.Encode()))
	if err != nil {
		return 0, nil, &ProviderError{Provider: provider, Operation: operation, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded;charset=utf-8")
	req.Header.Set("Accept", "application/json")
	return do(client, req, provider, operation)
}

// GetWithBearer sends an authorized GET request and returns the status and
// raw body.
func GetWithBearer(ctx context.Context, client *http.Client, provider, operation, endpoint, accessToken string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, nil, &ProviderError{Provider: provider, Operation: operation, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	return do(client, req, provider, operation)
}

// DecodeJSON unmarshals body into out, reporting failures as a ProviderError.
func DecodeJSON(provider, operation string, status int, body []byte, out any) error {
	if err := json.Unmarshal(body, out); err != nil {
		return &ProviderError{
			Provider:    provider,
			Operation:   operation,
			Status:      status,
			Code:        "invalid_response",
			Description: "failed to decode " + operation + " response",
			Err:         err,
		}
	}
	return nil
}

func do(client *http.Client, req *http.Request, provider, operation string) (int, []byte, error) {
	if client == nil {
		client = DefaultHTTPClient()
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, &ProviderError{Provider: provider, Operation: operation, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, &ProviderError{
			Provider:  provider,
			Operation: operation,
			Status:    resp.StatusCode,
			Err:       err,
		}
	}
	return resp.StatusCode, body, nil
}
