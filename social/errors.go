package social

import "github.com/goliatone/go-errors"

const (
	TextCodeMissingAuthCode   = "social_missing_auth_code"
	TextCodeTokenExchangeFail = "social_token_exchange_failed"
	TextCodeUserInfoFail      = "social_user_info_failed"
	TextCodeInvalidProfile    = "social_invalid_profile"
	TextCodeEmailNotVerified  = "social_email_not_verified"
	TextCodeInvalidState      = "social_invalid_state"
	TextCodeStateExpired      = "social_state_expired"
	TextCodeProviderMismatch  = "social_provider_mismatch"
)

// ErrMissingAuthCode is returned when a login request carries no code.
var ErrMissingAuthCode = errors.New("authorization code is required", errors.CategoryBadInput).
	WithTextCode(TextCodeMissingAuthCode).
	WithCode(errors.CodeBadRequest)

// ErrTokenExchangeFailed is returned when a provider token exchange fails.
var ErrTokenExchangeFailed = errors.New("token exchange failed", errors.CategoryExternal).
	WithTextCode(TextCodeTokenExchangeFail).
	WithCode(errors.CodeUnauthorized)

// ErrUserInfoFailed is returned when fetching user info fails.
var ErrUserInfoFailed = errors.New("failed to fetch user info", errors.CategoryExternal).
	WithTextCode(TextCodeUserInfoFail).
	WithCode(errors.CodeUnauthorized)

// ErrInvalidProfile is returned when a provider profile has no subject id.
var ErrInvalidProfile = errors.New("provider profile is missing a user id", errors.CategoryExternal).
	WithTextCode(TextCodeInvalidProfile).
	WithCode(errors.CodeUnauthorized)

// ErrEmailNotVerified is returned when a verified email is required but absent.
var ErrEmailNotVerified = errors.New("email not verified", errors.CategoryAuth).
	WithTextCode(TextCodeEmailNotVerified).
	WithCode(errors.CodeForbidden)

// ErrInvalidState is returned when the OAuth state fails verification.
var ErrInvalidState = errors.New("invalid oauth state", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidState).
	WithCode(errors.CodeBadRequest)

// ErrStateExpired is returned when the OAuth state is past its lifetime.
var ErrStateExpired = errors.New("oauth state expired", errors.CategoryAuth).
	WithTextCode(TextCodeStateExpired).
	WithCode(errors.CodeBadRequest)

// ErrProviderMismatch is returned when a callback arrives for another provider.
var ErrProviderMismatch = errors.New("oauth state was issued for another provider", errors.CategoryAuth).
	WithTextCode(TextCodeProviderMismatch).
	WithCode(errors.CodeBadRequest)
