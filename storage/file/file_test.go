package file

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/crm-oauth/internal/testutil"
	"github.com/giantswarm/crm-oauth/providers"
	"github.com/giantswarm/crm-oauth/security"
	"github.com/giantswarm/crm-oauth/storage"
	"github.com/giantswarm/crm-oauth/storage/storagetest"
)

func TestStore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T, opts ...storage.Option) storage.Store {
		s, err := New(t.TempDir(), opts...)
		require.NoError(t, err)
		return s
	})
}

func TestNew_RequiresDir(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)
}

func TestStore_DocumentLayout(t *testing.T) {
	dir := t.TempDir()
	clock := testutil.NewMockTime(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	s, err := New(dir, storage.WithClock(clock.Now))
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.SaveState(ctx, "zoho", "abc123"))
	_, err = s.SaveTokens(ctx, "zoho", &providers.Token{AccessToken: "at", RefreshToken: "rt", ExpiresIn: 3600})
	require.NoError(t, err)

	var states map[string]map[string]any
	readJSON(t, filepath.Join(dir, StatesFile), &states)
	assert.Equal(t, "abc123", states["zoho"]["state"])
	assert.Equal(t, "2026-03-01T12:00:00Z", states["zoho"]["created_at"])

	var tokens map[string]map[string]any
	readJSON(t, filepath.Join(dir, TokensFile), &tokens)
	zoho := tokens["zoho"]
	assert.Equal(t, "at", zoho["access_token"])
	assert.Equal(t, "rt", zoho["refresh_token"])
	assert.Equal(t, "success", zoho["status"])
	assert.Equal(t, "2026-03-01T12:00:00Z", zoho["last_authenticated"])
	assert.Equal(t, "2026-03-01T13:00:00Z", zoho["expires_at"])

	info, err := os.Stat(filepath.Join(dir, TokensFile))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(filePerm), info.Mode().Perm())
}

func TestStore_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first, err := New(dir)
	require.NoError(t, err)
	_, err = first.SaveTokens(ctx, "capsule", &providers.Token{AccessToken: "persisted"})
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := New(dir)
	require.NoError(t, err)
	got, err := second.GetTokens(ctx, "capsule")
	require.NoError(t, err)
	assert.Equal(t, "persisted", got.AccessToken)
}

func TestStore_EncryptsAtRest(t *testing.T) {
	dir := t.TempDir()
	key, err := security.GenerateKey()
	require.NoError(t, err)
	enc, err := security.NewEncryptor(key)
	require.NoError(t, err)

	s, err := New(dir, storage.WithEncryptor(enc))
	require.NoError(t, err)
	_, err = s.SaveTokens(context.Background(), "zoho", &providers.Token{AccessToken: "plain-access", RefreshToken: "plain-refresh"})
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(dir, TokensFile))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "plain-access")
	assert.NotContains(t, string(raw), "plain-refresh")
	assert.Contains(t, string(raw), `"encrypted": true`)

	// Without the key the record cannot be opened
	plain, err := New(dir)
	require.NoError(t, err)
	_, err = plain.GetTokens(context.Background(), "zoho")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, storage.ErrNotFound)
}

func TestStore_CorruptDocument(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, TokensFile), []byte("{not json"), 0o600))

	s, err := New(dir)
	require.NoError(t, err)
	_, err = s.GetTokens(context.Background(), "zoho")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode tokens.json")
}

func TestStore_EmptyDocument(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, StatesFile), nil, 0o600))

	s, err := New(dir)
	require.NoError(t, err)
	_, err = s.GetState(context.Background(), "zoho")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStore_ClearAllRemovesDocument(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = s.SaveTokens(ctx, "zoho", &providers.Token{AccessToken: "a"})
	require.NoError(t, err)

	removed, err := s.ClearTokens(ctx, "")
	require.NoError(t, err)
	assert.True(t, removed)

	_, err = os.Stat(filepath.Join(dir, TokensFile))
	assert.True(t, os.IsNotExist(err))
}

func TestWriteAtomic_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.json")

	require.NoError(t, writeAtomic(path, []byte(`{"a":1}`)))
	require.NoError(t, writeAtomic(path, []byte(`{"a":2}`)))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "doc.json", entries[0].Name())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"a":2}`, string(data))
}

func TestContactsExporter(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "contact_data")
	e := NewContactsExporter(dir)

	contacts := []providers.Contact{
		{ID: "1", FirstName: "Ada", LastName: "Lovelace", Name: "Ada Lovelace", Email: "ada@example.com"},
	}

	path, err := e.ExportContacts(context.Background(), "zoho", contacts)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "zoho_contacts.json"), path)

	var got []providers.Contact
	readJSON(t, path, &got)
	assert.Equal(t, contacts, got)

	// A later export replaces the previous one
	path, err = e.ExportContacts(context.Background(), "zoho", nil)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[]", strings.TrimSpace(string(data)))
}

func TestContactsExporter_Errors(t *testing.T) {
	e := NewContactsExporter(t.TempDir())

	_, err := e.ExportContacts(context.Background(), "", nil)
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.ExportContacts(ctx, "zoho", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewContactsExporter_DefaultDir(t *testing.T) {
	e := NewContactsExporter("")
	assert.Equal(t, filepath.Join(DefaultExportDir, "capsule_contacts.json"), e.Path("capsule"))
}

func readJSON(t *testing.T, path string, v any) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, v))
}
