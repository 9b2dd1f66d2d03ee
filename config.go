package auth

import (
	"time"

	"github.com/caarlos0/env/v11"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/goliatone/go-errors"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	DefaultNicknameMaxAttempts = 10
	envPrefix                  = "AUTH_"
)

// Options is the process wide configuration. It implements Config and is
// usually loaded once at startup with LoadOptions.
type Options struct {
	SigningKey          string        `env:"SIGNING_KEY" json:"-"`
	AccessTokenTTL      time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"15m" json:"access_token_ttl"`
	RefreshTokenTTL     time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"336h" json:"refresh_token_ttl"`
	Issuer              string        `env:"ISSUER" envDefault:"go-authd" json:"issuer"`
	Audience            []string      `env:"AUDIENCE" envSeparator:"," json:"audience"`
	DatabaseDriver      string        `env:"DATABASE_DRIVER" envDefault:"sqlite" json:"database_driver"`
	DatabaseDSN         string        `env:"DATABASE_DSN" envDefault:"file::memory:?cache=shared" json:"database_dsn"`
	DatabaseDebug       bool          `env:"DATABASE_DEBUG" json:"database_debug"`
	NicknameMaxAttempts int           `env:"NICKNAME_MAX_ATTEMPTS" envDefault:"10" json:"nickname_max_attempts"`
}

var _ Config = Options{}

// LoadOptions reads AUTH_ prefixed environment variables and validates them.
func LoadOptions() (Options, error) {
	var opts Options
	if err := env.ParseWithOptions(&opts, env.Options{Prefix: envPrefix}); err != nil {
		return opts, errors.Wrap(err, errors.CategoryBadInput, "failed to parse auth environment")
	}
	if err := opts.Validate(); err != nil {
		return opts, err
	}
	return opts, nil
}

// Validate checks the options are usable.
func (o Options) Validate() error {
	if err := errors.ValidateWithOzzo(func() error {
		return validation.ValidateStruct(&o,
			validation.Field(&o.SigningKey, validation.Required, validation.Length(32, 0)),
			validation.Field(&o.AccessTokenTTL, validation.Required, validation.Min(time.Second)),
			validation.Field(&o.RefreshTokenTTL, validation.Required, validation.Min(time.Minute)),
			validation.Field(&o.DatabaseDriver, validation.Required, validation.In(DriverSQLite, DriverPostgres)),
			validation.Field(&o.DatabaseDSN, validation.Required),
			validation.Field(&o.NicknameMaxAttempts, validation.Min(0)),
		)
	}, "invalid auth options"); err != nil {
		return err
	}

	if o.RefreshTokenTTL <= o.AccessTokenTTL {
		return errors.New("refresh token ttl must exceed access token ttl", errors.CategoryValidation).
			WithMetadata(map[string]any{
				"access_token_ttl":  o.AccessTokenTTL.String(),
				"refresh_token_ttl": o.RefreshTokenTTL.String(),
			})
	}

	return nil
}

func (o Options) GetSigningKey() string {
	return o.SigningKey
}

func (o Options) GetAccessTokenTTL() time.Duration {
	return o.AccessTokenTTL
}

func (o Options) GetRefreshTokenTTL() time.Duration {
	return o.RefreshTokenTTL
}

func (o Options) GetIssuer() string {
	return o.Issuer
}

func (o Options) GetAudience() []string {
	return o.Audience
}

func (o Options) GetDatabaseDriver() string {
	return o.DatabaseDriver
}

func (o Options) GetDatabaseDSN() string {
	return o.DatabaseDSN
}

func (o Options) GetDatabaseDebug() bool {
	return o.DatabaseDebug
}

func (o Options) GetNicknameMaxAttempts() int {
	if o.NicknameMaxAttempts <= 0 {
		return DefaultNicknameMaxAttempts
	}
	return o.NicknameMaxAttempts
}
