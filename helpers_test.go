package auth_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	auth "github.com/goliatone/go-authd"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

const testSigningKey = "test-signing-key-0123456789abcdef"

func testOptions() auth.Options {
	return auth.Options{
		SigningKey:          testSigningKey,
		AccessTokenTTL:      15 * time.Minute,
		RefreshTokenTTL:     14 * 24 * time.Hour,
		Issuer:              "go-authd-test",
		DatabaseDriver:      auth.DriverSQLite,
		DatabaseDSN:         fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
		NicknameMaxAttempts: auth.DefaultNicknameMaxAttempts,
	}
}

func newTestDB(t *testing.T, opts auth.Options) *bun.DB {
	t.Helper()

	db, err := auth.OpenDB(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, auth.Migrate(context.Background(), db))
	return db
}

func newTestRepos(t *testing.T) (auth.RepositoryManager, auth.Options) {
	t.Helper()
	opts := testOptions()
	repos := auth.NewRepositoryManager(newTestDB(t, opts))
	require.NoError(t, repos.Validate())
	return repos, opts
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type capturingSink struct {
	mu     sync.Mutex
	events []auth.ActivityEvent
}

func (c *capturingSink) Record(ctx context.Context, evt auth.ActivityEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
	return nil
}

func (c *capturingSink) types() []auth.ActivityEventType {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]auth.ActivityEventType, 0, len(c.events))
	for _, evt := range c.events {
		out = append(out, evt.EventType)
	}
	return out
}

func (c *capturingSink) last(eventType auth.ActivityEventType) (auth.ActivityEvent, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.events) - 1; i >= 0; i-- {
		if c.events[i].EventType == eventType {
			return c.events[i], true
		}
	}
	return auth.ActivityEvent{}, false
}

// stubLoginProvider answers ProcessLogin from a code -> user table.
type stubLoginProvider struct {
	providerType auth.ProviderType
	users        map[string]*auth.OAuthUser
}

func (s *stubLoginProvider) Supports(pt auth.ProviderType) bool {
	return pt == s.providerType
}

func (s *stubLoginProvider) ProcessLogin(ctx context.Context, req auth.LoginRequest) (*auth.OAuthUser, error) {
	user, ok := s.users[req.AuthCode]
	if !ok {
		return nil, fmt.Errorf("unknown code %q", req.AuthCode)
	}
	return user, nil
}

func sequenceGenerator(names ...string) auth.NicknameGenerator {
	var mu sync.Mutex
	i := 0
	return auth.NicknameGeneratorFunc(func() string {
		mu.Lock()
		defer mu.Unlock()
		name := names[i%len(names)]
		i++
		return name
	})
}

func strPtr(s string) *string {
	return &s
}

func linkTypes(t *testing.T, repos auth.RepositoryManager, accountID uuid.UUID) []auth.ProviderType {
	t.Helper()
	links, err := repos.ProviderLinks().FindAllForAccount(context.Background(), accountID)
	require.NoError(t, err)
	out := make([]auth.ProviderType, 0, len(links))
	for _, link := range links {
		out = append(out, link.ProviderType)
	}
	return out
}
