package auth

import (
	"context"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// CodeChecker reports whether code is the one time code issued for email.
// Delivery and storage of codes live outside the core.
type CodeChecker interface {
	CheckCode(ctx context.Context, email, code string) (bool, error)
}

// CodeCheckerFunc adapts a function into a CodeChecker.
type CodeCheckerFunc func(ctx context.Context, email, code string) (bool, error)

// CheckCode implements CodeChecker.
func (f CodeCheckerFunc) CheckCode(ctx context.Context, email, code string) (bool, error) {
	return f(ctx, email, code)
}

// EmailGate is the default EmailVerifier.
type EmailGate struct {
	checker CodeChecker
}

var _ EmailVerifier = (*EmailGate)(nil)

// NewEmailGate builds a gate around checker. Without a checker every code
// is rejected.
func NewEmailGate(checker CodeChecker) *EmailGate {
	return &EmailGate{checker: checker}
}

// ValidateEmailFormat implements EmailVerifier.
func (g *EmailGate) ValidateEmailFormat(email string) error {
	err := validation.Validate(strings.TrimSpace(email),
		validation.Required,
		validation.Length(3, 254),
		is.EmailFormat,
	)
	if err != nil {
		return withSource(ErrInvalidEmailFormat, err, map[string]any{
			"email":  email,
			"reason": err.Error(),
		})
	}
	return nil
}

// VerifyCode implements EmailVerifier.
func (g *EmailGate) VerifyCode(ctx context.Context, email, code string) error {
	code = strings.TrimSpace(code)
	if g.checker == nil || code == "" {
		return withSource(ErrCodeMismatch, nil, nil)
	}

	ok, err := g.checker.CheckCode(ctx, NormalizeEmail(email), code)
	if err != nil {
		return withSource(ErrCodeMismatch, err, map[string]any{
			"cause": err.Error(),
		})
	}
	if !ok {
		return withSource(ErrCodeMismatch, nil, nil)
	}
	return nil
}
