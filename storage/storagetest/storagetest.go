// Package storagetest provides the behaviour tests every storage backend must pass.
package storagetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/crm-oauth/internal/testutil"
	"github.com/giantswarm/crm-oauth/providers"
	"github.com/giantswarm/crm-oauth/security"
	"github.com/giantswarm/crm-oauth/storage"
)

// Factory creates an empty store configured with opts. The store is closed by the caller.
type Factory func(t *testing.T, opts ...storage.Option) storage.Store

// Epoch is the mock clock start used by the suite
var Epoch = time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)

// Run executes the suite against stores built by newStore
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, s storage.Store, clock *testutil.MockTime)
	}{
		{"StateRoundTrip", testStateRoundTrip},
		{"StateOverwrite", testStateOverwrite},
		{"StateMissing", testStateMissing},
		{"StateExpiry", testStateExpiry},
		{"TokensDeriveExpiry", testTokensDeriveExpiry},
		{"TokensKeepExplicitExpiry", testTokensKeepExplicitExpiry},
		{"TokensOverwrite", testTokensOverwrite},
		{"TokensMissing", testTokensMissing},
		{"LatestRecord", testLatestRecord},
		{"ClearSelective", testClearSelective},
		{"ClearAll", testClearAll},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := testutil.NewMockTime(Epoch)
			s := newStore(t, storage.WithClock(clock.Now))
			t.Cleanup(func() { _ = s.Close() })
			tt.fn(t, s, clock)
		})
	}

	t.Run("EncryptedRoundTrip", func(t *testing.T) {
		key, err := security.GenerateKey()
		require.NoError(t, err)
		enc, err := security.NewEncryptor(key)
		require.NoError(t, err)

		s := newStore(t, storage.WithEncryptor(enc))
		t.Cleanup(func() { _ = s.Close() })

		_, err = s.SaveTokens(context.Background(), "zoho", sampleToken("secret-access", "secret-refresh"))
		require.NoError(t, err)

		got, err := s.GetTokens(context.Background(), "zoho")
		require.NoError(t, err)
		assert.Equal(t, "secret-access", got.AccessToken)
		assert.Equal(t, "secret-refresh", got.RefreshToken)
		assert.False(t, got.Encrypted)
	})
}

func sampleToken(access, refresh string) *providers.Token {
	return &providers.Token{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    3600,
	}
}

func testStateRoundTrip(t *testing.T, s storage.Store, _ *testutil.MockTime) {
	ctx := context.Background()
	require.NoError(t, s.SaveState(ctx, "zoho", "state-zoho"))
	require.NoError(t, s.SaveState(ctx, "capsule", "state-capsule"))

	got, err := s.GetState(ctx, "zoho")
	require.NoError(t, err)
	assert.Equal(t, "state-zoho", got)

	got, err = s.GetState(ctx, "capsule")
	require.NoError(t, err)
	assert.Equal(t, "state-capsule", got)
}

func testStateOverwrite(t *testing.T, s storage.Store, _ *testutil.MockTime) {
	ctx := context.Background()
	require.NoError(t, s.SaveState(ctx, "zoho", "first"))
	require.NoError(t, s.SaveState(ctx, "zoho", "second"))

	got, err := s.GetState(ctx, "zoho")
	require.NoError(t, err)
	assert.Equal(t, "second", got)
}

func testStateMissing(t *testing.T, s storage.Store, _ *testutil.MockTime) {
	_, err := s.GetState(context.Background(), "zoho")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testStateExpiry(t *testing.T, s storage.Store, clock *testutil.MockTime) {
	ctx := context.Background()
	require.NoError(t, s.SaveState(ctx, "zoho", "short-lived"))

	clock.Advance(storage.DefaultStateTTL - time.Second)
	got, err := s.GetState(ctx, "zoho")
	require.NoError(t, err, "state must be valid just before the TTL")
	assert.Equal(t, "short-lived", got)

	clock.Advance(time.Second)
	got, err = s.GetState(ctx, "zoho")
	require.NoError(t, err, "state must be valid at exactly the TTL")
	assert.Equal(t, "short-lived", got)

	clock.Advance(time.Second)
	_, err = s.GetState(ctx, "zoho")
	assert.ErrorIs(t, err, storage.ErrNotFound, "state must expire after the TTL")
}

func testTokensDeriveExpiry(t *testing.T, s storage.Store, _ *testutil.MockTime) {
	ctx := context.Background()
	rec, err := s.SaveTokens(ctx, "zoho", sampleToken("a1", "r1"))
	require.NoError(t, err)

	assert.Equal(t, "zoho", rec.Provider)
	assert.Equal(t, storage.StatusSuccess, rec.Status)
	assert.True(t, rec.LastAuthenticated.Equal(Epoch))
	assert.True(t, rec.ExpiresAt.Equal(rec.LastAuthenticated.Add(3600*time.Second)),
		"expires_at = %v, last_authenticated = %v", rec.ExpiresAt, rec.LastAuthenticated)

	got, err := s.GetTokens(ctx, "zoho")
	require.NoError(t, err)
	assert.Equal(t, "zoho", got.Provider)
	assert.Equal(t, "a1", got.AccessToken)
	assert.Equal(t, "r1", got.RefreshToken)
	assert.Equal(t, int64(3600), got.ExpiresIn)
	assert.True(t, got.ExpiresAt.Equal(Epoch.Add(time.Hour)))
	assert.True(t, got.LastAuthenticated.Equal(Epoch))
}

func testTokensKeepExplicitExpiry(t *testing.T, s storage.Store, _ *testutil.MockTime) {
	ctx := context.Background()
	explicit := Epoch.Add(15 * time.Minute)
	token := sampleToken("a1", "r1")
	token.ExpiresAt = explicit

	_, err := s.SaveTokens(ctx, "capsule", token)
	require.NoError(t, err)

	got, err := s.GetTokens(ctx, "capsule")
	require.NoError(t, err)
	assert.True(t, got.ExpiresAt.Equal(explicit))
}

func testTokensOverwrite(t *testing.T, s storage.Store, clock *testutil.MockTime) {
	ctx := context.Background()
	_, err := s.SaveTokens(ctx, "zoho", sampleToken("old", "r1"))
	require.NoError(t, err)

	clock.Advance(time.Minute)
	_, err = s.SaveTokens(ctx, "zoho", sampleToken("new", "r2"))
	require.NoError(t, err)

	got, err := s.GetTokens(ctx, "zoho")
	require.NoError(t, err)
	assert.Equal(t, "new", got.AccessToken)
	assert.Equal(t, "r2", got.RefreshToken)
	assert.True(t, got.LastAuthenticated.Equal(Epoch.Add(time.Minute)))
}

func testTokensMissing(t *testing.T, s storage.Store, _ *testutil.MockTime) {
	_, err := s.GetTokens(context.Background(), "zoho")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = s.GetTokens(context.Background(), "")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testLatestRecord(t *testing.T, s storage.Store, clock *testutil.MockTime) {
	ctx := context.Background()
	_, err := s.SaveTokens(ctx, "zoho", sampleToken("zoho-1", ""))
	require.NoError(t, err)

	clock.Advance(time.Minute)
	_, err = s.SaveTokens(ctx, "capsule", sampleToken("capsule-1", ""))
	require.NoError(t, err)

	got, err := s.GetTokens(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "capsule", got.Provider)
	assert.Equal(t, "capsule-1", got.AccessToken)

	clock.Advance(time.Minute)
	_, err = s.SaveTokens(ctx, "zoho", sampleToken("zoho-2", ""))
	require.NoError(t, err)

	got, err = s.GetTokens(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "zoho", got.Provider)
	assert.Equal(t, "zoho-2", got.AccessToken)
}

func testClearSelective(t *testing.T, s storage.Store, _ *testutil.MockTime) {
	ctx := context.Background()
	_, err := s.SaveTokens(ctx, "zoho", sampleToken("z", ""))
	require.NoError(t, err)
	_, err = s.SaveTokens(ctx, "capsule", sampleToken("c", ""))
	require.NoError(t, err)

	removed, err := s.ClearTokens(ctx, "zoho")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = s.ClearTokens(ctx, "zoho")
	require.NoError(t, err)
	assert.False(t, removed, "second clear must report nothing removed")

	_, err = s.GetTokens(ctx, "zoho")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	got, err := s.GetTokens(ctx, "capsule")
	require.NoError(t, err)
	assert.Equal(t, "c", got.AccessToken)
}

func testClearAll(t *testing.T, s storage.Store, _ *testutil.MockTime) {
	ctx := context.Background()

	removed, err := s.ClearTokens(ctx, "")
	require.NoError(t, err)
	assert.False(t, removed, "clearing an empty store removes nothing")

	_, err = s.SaveTokens(ctx, "zoho", sampleToken("z", ""))
	require.NoError(t, err)
	_, err = s.SaveTokens(ctx, "capsule", sampleToken("c", ""))
	require.NoError(t, err)

	removed, err = s.ClearTokens(ctx, "")
	require.NoError(t, err)
	assert.True(t, removed)

	_, err = s.GetTokens(ctx, "")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = s.GetTokens(ctx, "capsule")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
