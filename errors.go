package auth

import (
	"strings"

	"github.com/goliatone/go-errors"
)

const (
	TextCodeTokenMissing          = "TOKEN_MISSING"
	TextCodeTokenMalformed        = "TOKEN_MALFORMED"
	TextCodeTokenInvalidSignature = "TOKEN_INVALID_SIGNATURE"
	TextCodeTokenExpired          = "TOKEN_EXPIRED"
	TextCodeTokenUnsupported      = "TOKEN_UNSUPPORTED"
	TextCodeSessionNotFound       = "SESSION_NOT_FOUND"
	TextCodeSessionRevoked        = "SESSION_REVOKED"
	TextCodeDatabaseSaveFailed    = "DATABASE_SAVE_FAILED"
	TextCodeLogoutFailed          = "LOGOUT_FAILED"
	TextCodeNoLinksToMerge        = "NO_LINKS_TO_MERGE"
	TextCodeUnsupportedProvider   = "UNSUPPORTED_PROVIDER"
	TextCodeIdentityNotFound      = "IDENTITY_NOT_FOUND"
	TextCodeInvalidEmailFormat    = "INVALID_EMAIL_FORMAT"
	TextCodeCodeMismatch          = "CODE_MISMATCH"
	TextCodeNicknameExhausted     = "NICKNAME_EXHAUSTED"
)

// ErrTokenMissing is returned when no token was presented.
var ErrTokenMissing = errors.New("token missing", errors.CategoryAuth).
	WithTextCode(TextCodeTokenMissing).
	WithCode(errors.CodeUnauthorized)

// ErrTokenMalformed is returned for structurally invalid tokens.
var ErrTokenMalformed = errors.New("token is malformed", errors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(errors.CodeUnauthorized)

// ErrTokenInvalidSignature is returned when the signature does not match the signing key.
var ErrTokenInvalidSignature = errors.New("token signature is invalid", errors.CategoryAuth).
	WithTextCode(TextCodeTokenInvalidSignature).
	WithCode(errors.CodeUnauthorized)

// ErrTokenExpired is returned for tokens or sessions past their expiry.
var ErrTokenExpired = errors.New("token is expired", errors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(errors.CodeUnauthorized)

// ErrTokenUnsupported is returned when a token uses a signing algorithm we do not issue.
var ErrTokenUnsupported = errors.New("token signing method is not supported", errors.CategoryAuth).
	WithTextCode(TextCodeTokenUnsupported).
	WithCode(errors.CodeUnauthorized)

// ErrSessionNotFound is returned when no session exists for a refresh token.
var ErrSessionNotFound = errors.New("refresh session not found", errors.CategoryAuth).
	WithTextCode(TextCodeSessionNotFound).
	WithCode(errors.CodeUnauthorized)

// ErrSessionRevoked is returned when a refresh token's session was already rotated or logged out.
var ErrSessionRevoked = errors.New("refresh session revoked", errors.CategoryAuth).
	WithTextCode(TextCodeSessionRevoked).
	WithCode(errors.CodeUnauthorized)

// ErrDatabaseSaveFailed wraps storage failures on writes.
var ErrDatabaseSaveFailed = errors.New("failed to save record", errors.CategoryInternal).
	WithTextCode(TextCodeDatabaseSaveFailed).
	WithCode(errors.CodeInternal)

// ErrLogoutFailed is returned when logout could not revoke the session.
var ErrLogoutFailed = errors.New("logout failed", errors.CategoryAuth).
	WithTextCode(TextCodeLogoutFailed).
	WithCode(errors.CodeUnauthorized)

// ErrNoLinksToMerge signals a merge source account without provider links.
var ErrNoLinksToMerge = errors.New("account has no provider links to merge", errors.CategoryConflict).
	WithTextCode(TextCodeNoLinksToMerge).
	WithCode(errors.CodeConflict)

// ErrUnsupportedProvider is returned when no login provider claims a provider type.
var ErrUnsupportedProvider = errors.New("unsupported login provider", errors.CategoryBadInput).
	WithTextCode(TextCodeUnsupportedProvider).
	WithCode(errors.CodeBadRequest)

// ErrIdentityNotFound is the error we return for non found accounts
var ErrIdentityNotFound = errors.New("identity not found", errors.CategoryNotFound).
	WithTextCode(TextCodeIdentityNotFound).
	WithCode(errors.CodeNotFound)

// ErrInvalidEmailFormat is returned by the email gate for malformed addresses.
var ErrInvalidEmailFormat = errors.New("invalid email format", errors.CategoryValidation).
	WithTextCode(TextCodeInvalidEmailFormat).
	WithCode(errors.CodeBadRequest)

// ErrCodeMismatch is returned by the email gate when the verification code is wrong.
var ErrCodeMismatch = errors.New("verification code mismatch", errors.CategoryAuth).
	WithTextCode(TextCodeCodeMismatch).
	WithCode(errors.CodeUnauthorized)

// ErrNicknameExhausted is returned when no unique nickname was found within the attempt bound.
var ErrNicknameExhausted = errors.New("unable to generate a unique nickname", errors.CategoryConflict).
	WithTextCode(TextCodeNicknameExhausted).
	WithCode(errors.CodeConflict)

// IsErrorKind reports whether err carries the given text code.
func IsErrorKind(err error, textCode string) bool {
	if err == nil {
		return false
	}
	var richErr *errors.Error
	if errors.As(err, &richErr) {
		return richErr.TextCode == textCode
	}
	return false
}

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	if IsErrorKind(err, TextCodeTokenExpired) {
		return true
	}
	return strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError will check for error message
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	if IsErrorKind(err, TextCodeTokenMalformed) {
		return true
	}
	return strings.Contains(err.Error(), "token is malformed")
}

func withSource(base *errors.Error, err error, meta map[string]any) *errors.Error {
	clone := base.Clone()
	if clone == nil {
		clone = base
	}
	if err != nil {
		clone.Source = err
	}
	if len(meta) > 0 {
		clone.WithMetadata(meta)
	}
	return clone
}

func saveFailed(err error, entity string) error {
	return withSource(ErrDatabaseSaveFailed, err, map[string]any{
		"entity": entity,
		"cause":  err.Error(),
	})
}
