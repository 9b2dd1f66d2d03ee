package auth_test

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	auth "github.com/goliatone/go-authd"
	"github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCodec(opts ...auth.TokenCodecOption) *auth.TokenCodec {
	return auth.NewTokenCodec(auth.TokenCodecConfig{
		SigningKey: []byte(testSigningKey),
		AccessTTL:  15 * time.Minute,
		RefreshTTL: time.Hour,
		Issuer:     "go-authd-test",
		Audience:   []string{"app"},
	}, opts...)
}

func TestTokenCodecRoundTrip(t *testing.T) {
	codec := newCodec()

	cases := []struct {
		opaqueID string
		role     auth.UserRole
	}{
		{"0b8f3c4e-1111-4a8e-9a7a-3f4f5e6d7c8b", auth.RoleMember},
		{"acc-2", auth.RoleAdmin},
	}

	for _, tc := range cases {
		access, err := codec.IssueAccess(tc.opaqueID, tc.role, &auth.ExtraClaims{
			DeviceID: "ios-1",
			Metadata: map[string]any{"plan": "pro"},
		})
		require.NoError(t, err)

		claims, err := codec.VerifyAccess(access.Token)
		require.NoError(t, err)
		assert.Equal(t, tc.opaqueID, claims.Subject())
		assert.Equal(t, tc.role, claims.Role())
		assert.Equal(t, "ios-1", claims.DeviceID)
		assert.Equal(t, "pro", claims.Metadata["plan"])
		assert.False(t, claims.IsRefresh())

		assert.Equal(t, tc.opaqueID, codec.Subject(access.Token))
		assert.Equal(t, string(tc.role), codec.Role(access.Token))
		assert.WithinDuration(t, access.ExpiresAt, codec.Expiry(access.Token), time.Second)
	}
}

func TestTokenCodecIssueRefresh(t *testing.T) {
	codec := newCodec()

	random, err := codec.IssueRefresh("acc-1", "", "")
	require.NoError(t, err)
	assert.NotEmpty(t, strings.TrimSpace(random.JTI))
	assert.Equal(t, random.JTI, codec.JTI(random.Token))

	fixed, err := codec.IssueRefresh("acc-1", "jti-1", "ios-7")
	require.NoError(t, err)

	claims, err := codec.VerifyRefresh(fixed.Token)
	require.NoError(t, err)
	assert.Equal(t, "jti-1", claims.JTI())
	assert.Equal(t, "ios-7", claims.DeviceID)
	assert.True(t, claims.IsRefresh())
}

func TestTokenCodecMultipleAudiences(t *testing.T) {
	codec := auth.NewTokenCodec(auth.TokenCodecConfig{
		SigningKey: []byte(testSigningKey),
		Issuer:     "go-authd-test",
		Audience:   []string{"app", "admin"},
	})

	access, err := codec.IssueAccess("acc-1", auth.RoleMember, nil)
	require.NoError(t, err)

	claims, err := codec.VerifyAccess(access.Token)
	require.NoError(t, err)
	assert.Equal(t, jwt.ClaimStrings{"app", "admin"}, claims.Audience)

	other := auth.NewTokenCodec(auth.TokenCodecConfig{
		SigningKey: []byte(testSigningKey),
		Issuer:     "go-authd-test",
		Audience:   []string{"billing"},
	})
	_, err = other.VerifyAccess(access.Token)
	assert.True(t, auth.IsErrorKind(err, auth.TextCodeTokenMalformed))
}

func TestTokenCodecMissingTokenIsolatesSentinel(t *testing.T) {
	codec := newCodec()

	_, err := codec.Verify("  ")
	require.Error(t, err)

	var rich *errors.Error
	require.True(t, errors.As(err, &rich))
	assert.NotSame(t, auth.ErrTokenMissing, rich)

	rich.WithMetadata(map[string]any{"request_id": "r-1"})
	assert.NotContains(t, auth.ErrTokenMissing.Metadata, "request_id")
}

func TestTokenCodecRejectsWrongTokenUse(t *testing.T) {
	codec := newCodec()

	access, err := codec.IssueAccess("acc-1", auth.RoleMember, nil)
	require.NoError(t, err)
	_, err = codec.VerifyRefresh(access.Token)
	assert.True(t, auth.IsErrorKind(err, auth.TextCodeTokenMalformed))

	refresh, err := codec.IssueRefresh("acc-1", "", "")
	require.NoError(t, err)
	_, err = codec.VerifyAccess(refresh.Token)
	assert.True(t, auth.IsErrorKind(err, auth.TextCodeTokenMalformed))
}

func TestTokenCodecTamperedSignature(t *testing.T) {
	codec := newCodec()
	forger := auth.NewTokenCodec(auth.TokenCodecConfig{
		SigningKey: []byte("another-signing-key-0123456789abcd"),
		Issuer:     "go-authd-test",
		Audience:   []string{"app"},
	})

	for _, role := range []auth.UserRole{auth.RoleMember, auth.RoleAdmin} {
		forged, err := forger.IssueAccess("acc-1", role, nil)
		require.NoError(t, err)

		_, err = codec.Verify(forged.Token)
		require.Error(t, err)
		assert.True(t, auth.IsErrorKind(err, auth.TextCodeTokenInvalidSignature), "got %v", err)
	}

	issued, err := codec.IssueAccess("acc-1", auth.RoleMember, nil)
	require.NoError(t, err)
	parts := strings.Split(issued.Token, ".")
	forgedPayload := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))
	_, err = codec.Verify(forgedPayload)
	assert.True(t, auth.IsErrorKind(err, auth.TextCodeTokenInvalidSignature), "got %v", err)
}

func TestTokenCodecExpiry(t *testing.T) {
	codec := auth.NewTokenCodec(auth.TokenCodecConfig{
		SigningKey: []byte(testSigningKey),
		AccessTTL:  100 * time.Millisecond,
		RefreshTTL: time.Hour,
	})

	issued, err := codec.IssueAccess("acc-1", auth.RoleMember, nil)
	require.NoError(t, err)

	time.Sleep(200 * time.Millisecond)

	_, err = codec.Verify(issued.Token)
	require.Error(t, err)
	assert.True(t, auth.IsErrorKind(err, auth.TextCodeTokenExpired))
	assert.True(t, auth.IsTokenExpiredError(err))
}

func TestTokenCodecExpiryWithClock(t *testing.T) {
	clock := newTestClock()
	codec := newCodec(auth.WithCodecClock(clock.Now))

	issued, err := codec.IssueRefresh("acc-1", "", "")
	require.NoError(t, err)

	clock.Advance(59 * time.Minute)
	_, err = codec.VerifyRefresh(issued.Token)
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	_, err = codec.VerifyRefresh(issued.Token)
	assert.True(t, auth.IsErrorKind(err, auth.TextCodeTokenExpired))
}

func TestTokenCodecUnsupportedAlgorithm(t *testing.T) {
	codec := newCodec()

	claims := &auth.JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "acc-1",
			Issuer:    "go-authd-test",
			Audience:  jwt.ClaimStrings{"app"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		TokenUse: auth.TokenUseAccess,
	}

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = codec.Verify(none)
	assert.True(t, auth.IsErrorKind(err, auth.TextCodeTokenUnsupported), "got %v", err)

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(testSigningKey))
	require.NoError(t, err)

	_, err = codec.Verify(hs512)
	assert.True(t, auth.IsErrorKind(err, auth.TextCodeTokenUnsupported), "got %v", err)
}

func TestTokenCodecMissingAndMalformed(t *testing.T) {
	codec := newCodec()

	_, err := codec.Verify("   ")
	assert.True(t, auth.IsErrorKind(err, auth.TextCodeTokenMissing))

	for _, token := range []string{"abc", "abc.def", "a.b.c.d", "not.a.jwt"} {
		_, err := codec.Verify(token)
		assert.True(t, auth.IsErrorKind(err, auth.TextCodeTokenMalformed), "token %q got %v", token, err)
		assert.True(t, auth.IsMalformedError(err))
	}
}

func TestTokenCodecIssuerAndAudience(t *testing.T) {
	codec := newCodec()
	other := auth.NewTokenCodec(auth.TokenCodecConfig{
		SigningKey: []byte(testSigningKey),
		Issuer:     "someone-else",
		Audience:   []string{"app"},
	})

	issued, err := other.IssueAccess("acc-1", auth.RoleMember, nil)
	require.NoError(t, err)

	_, err = codec.Verify(issued.Token)
	assert.True(t, auth.IsErrorKind(err, auth.TextCodeTokenMalformed))
}

func TestTokenCodecFromOptions(t *testing.T) {
	opts := testOptions()
	codec := auth.NewTokenCodecFromConfig(opts)

	assert.Equal(t, opts.AccessTokenTTL, codec.AccessTTL())
	assert.Equal(t, opts.RefreshTokenTTL, codec.RefreshTTL())
}
