package auth_test

import (
	"testing"

	auth "github.com/goliatone/go-authd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProviderRegistryFind(t *testing.T) {
	google := &stubLoginProvider{providerType: auth.ProviderGoogle}
	kakao := &stubLoginProvider{providerType: auth.ProviderKakao}

	registry := auth.NewProviderRegistry(google, nil, kakao)
	assert.Equal(t, 2, registry.Len())

	found, err := registry.Find(auth.ProviderKakao)
	require.NoError(t, err)
	assert.Same(t, kakao, found)

	_, err = registry.Find(auth.ProviderNaver)
	assert.True(t, auth.IsErrorKind(err, auth.TextCodeUnsupportedProvider))

	var empty *auth.ProviderRegistry
	_, err = empty.Find(auth.ProviderGoogle)
	assert.True(t, auth.IsErrorKind(err, auth.TextCodeUnsupportedProvider))
}
