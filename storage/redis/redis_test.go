package redis

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/crm-oauth/providers"
	"github.com/giantswarm/crm-oauth/storage"
	"github.com/giantswarm/crm-oauth/storage/storagetest"
)

// testAddr returns the server used by the tests (REDIS_TEST_ADDR, default localhost:6379)
func testAddr() string {
	if addr := os.Getenv("REDIS_TEST_ADDR"); addr != "" {
		return addr
	}
	return "localhost:6379"
}

// newTestStore connects with a per-test prefix and skips when Redis is unavailable
func newTestStore(t *testing.T, opts ...storage.Option) *Store {
	t.Helper()

	prefix := fmt.Sprintf("crm-oauth-test:%s:", strings.ReplaceAll(t.Name(), "/", ":"))
	s, err := New(Config{Address: testAddr(), KeyPrefix: prefix}, opts...)
	if err != nil {
		t.Skipf("Redis not available, skipping test: %v", err)
	}

	cleanupKeys(t, s)
	t.Cleanup(func() { cleanupKeys(t, s) })
	return s
}

func cleanupKeys(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()

	var cursor uint64
	for {
		entry, err := s.client.Do(ctx, s.client.B().Scan().Cursor(cursor).Match(s.prefix+"*").Count(100).Build()).AsScanEntry()
		if err != nil {
			t.Logf("failed to scan for cleanup: %v", err)
			return
		}
		for _, key := range entry.Elements {
			_ = s.client.Do(ctx, s.client.B().Del().Key(key).Build()).Error()
		}
		if cursor = entry.Cursor; cursor == 0 {
			return
		}
	}
}

func TestStore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T, opts ...storage.Option) storage.Store {
		return newTestStore(t, opts...)
	})
}

func TestNew_MissingAddress(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestStore_Keys(t *testing.T) {
	s := &Store{prefix: DefaultKeyPrefix}
	assert.Equal(t, "crm-oauth:token:zoho", s.tokenKey("zoho"))
	assert.Equal(t, "crm-oauth:state:capsule", s.stateKey("capsule"))
}

func TestStore_StateKeyHasExpiry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveState(ctx, "zoho", "value"))

	ttl, err := s.client.Do(ctx, s.client.B().Ttl().Key(s.stateKey("zoho")).Build()).AsInt64()
	require.NoError(t, err)
	assert.Greater(t, ttl, int64(0))
	assert.LessOrEqual(t, ttl, int64(storage.DefaultStateTTL.Seconds()))
}

func TestStore_TokenKeyHasNoExpiry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.SaveTokens(ctx, "zoho", &providers.Token{AccessToken: "a", ExpiresIn: 60})
	require.NoError(t, err)

	ttl, err := s.client.Do(ctx, s.client.B().Ttl().Key(s.tokenKey("zoho")).Build()).AsInt64()
	require.NoError(t, err)
	assert.Equal(t, int64(-1), ttl)
}

func TestStore_LatestLookupSkipsCorruptValues(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.SaveTokens(ctx, "capsule", &providers.Token{AccessToken: "ok"})
	require.NoError(t, err)
	require.NoError(t, s.client.Do(ctx, s.client.B().Set().Key(s.tokenKey("broken")).Value("{").Build()).Error())

	got, err := s.GetTokens(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "capsule", got.Provider)
}
