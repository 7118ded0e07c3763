package main

import (
	"bytes"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/crm-oauth/security"
	"github.com/giantswarm/crm-oauth/storage/backend"
)

// unsetEnv removes key for the duration of the test
func unsetEnv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	require.NoError(t, os.Unsetenv(key))
}

func TestLoadEnv_Defaults(t *testing.T) {
	for _, key := range []string{"CRM_BASE_URL", "CRM_STORAGE", "CRM_STATE_TTL", "CRM_LISTEN_ADDR", "ZOHO_BURST", "ZOHO_AUTH_PARAMS"} {
		unsetEnv(t, key)
	}

	cfg, err := loadEnv(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8000", cfg.BaseURL)
	assert.Equal(t, "file", cfg.Storage)
	assert.Equal(t, 10*time.Minute, cfg.StateTTL)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, ":8000", cfg.ListenAddr)
	assert.Equal(t, 1, cfg.Providers["zoho"].Burst)
	assert.Nil(t, cfg.Providers["zoho"].AuthParams)
}

func TestLoadEnv_Environment(t *testing.T) {
	t.Setenv("CRM_PROVIDERS", "zoho,capsule")
	t.Setenv("CRM_STATE_TTL", "5m")
	t.Setenv("ZOHO_CLIENT_ID", "zoho-id")
	t.Setenv("ZOHO_SCOPE", "ZohoCRM.modules.ALL")
	t.Setenv("CAPSULE_CLIENT_SECRET", "capsule-secret")
	t.Setenv("CAPSULE_REQUESTS_PER_SECOND", "2.5")
	t.Setenv("ZOHO_AUTH_PARAMS", "access_type=offline,prompt=consent")

	cfg, err := loadEnv("")
	require.NoError(t, err)

	assert.Equal(t, []string{"zoho", "capsule"}, cfg.Enabled)
	assert.Equal(t, 5*time.Minute, cfg.StateTTL)
	assert.Equal(t, "zoho-id", cfg.Providers["zoho"].ClientID)
	assert.Equal(t, "ZohoCRM.modules.ALL", cfg.Providers["zoho"].Scope)
	assert.Equal(t, map[string]string{"access_type": "offline", "prompt": "consent"}, cfg.Providers["zoho"].AuthParams)
	assert.Equal(t, "capsule-secret", cfg.Providers["capsule"].ClientSecret)
	assert.Equal(t, 2.5, cfg.Providers["capsule"].RequestsPerSecond)
}

func TestLoadEnv_File(t *testing.T) {
	unsetEnv(t, "CRM_BASE_URL")
	unsetEnv(t, "ZOHO_CLIENT_ID")
	t.Setenv("ZOHO_CLIENT_SECRET", "from-environment")

	path := filepath.Join(t.TempDir(), ".env")
	content := "CRM_BASE_URL=https://crm.example.com\nZOHO_CLIENT_ID=file-id\nZOHO_CLIENT_SECRET=from-file\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := loadEnv(path)
	require.NoError(t, err)

	assert.Equal(t, "https://crm.example.com", cfg.BaseURL)
	assert.Equal(t, "file-id", cfg.Providers["zoho"].ClientID)
	assert.Equal(t, "from-environment", cfg.Providers["zoho"].ClientSecret, "the environment wins over the file")
}

func TestLoadEnv_InvalidProviderValue(t *testing.T) {
	t.Setenv("CAPSULE_BURST", "many")

	_, err := loadEnv("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "capsule")
}

func TestLoadEnv_InvalidValue(t *testing.T) {
	t.Setenv("CRM_STATE_TTL", "soon")

	_, err := loadEnv("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse environment")
}

func TestEnvConfig_OAuthConfig(t *testing.T) {
	cfg := &envConfig{
		BaseURL:                   "https://crm.example.com",
		RequestTimeout:            15 * time.Second,
		Providers: map[string]providerEnv{
			"zoho": {
				ClientID:     "zoho-id",
				ClientSecret: "zoho-secret",
				Burst:        1,
				AuthParams:   map[string]string{"access_type": "offline", "prompt": "consent", "login_hint": "ops@example.com"},
			},
			"capsule": {Burst: 1},
		},
		AuditLog:                  true,
		AllowCallbackWithoutState: true,
	}

	got := cfg.oauthConfig(nil, nil, nil)

	require.NoError(t, got.Validate())
	assert.Equal(t, "https://crm.example.com", got.BaseURL)
	assert.Equal(t, 15*time.Second, got.RequestTimeout)
	assert.Contains(t, got.Providers, "zoho")
	assert.NotContains(t, got.Providers, "capsule", "unconfigured providers are left out")
	assert.Equal(t, "zoho-secret", got.Providers["zoho"].ClientSecret)
	assert.Equal(t, "ops@example.com", got.Providers["zoho"].AuthParams["login_hint"])
	assert.True(t, got.Security.EnableAuditLogging)
	assert.True(t, got.Security.AllowInsecureCallbackWithoutState)
}

func TestEnvConfig_EncryptionKey(t *testing.T) {
	cfg := &envConfig{EncryptionSalt: "crm-oauth"}

	key, err := cfg.encryptionKey()
	require.NoError(t, err)
	assert.Nil(t, key)

	cfg.EncryptionSecret = "correct horse battery staple"
	key, err = cfg.encryptionKey()
	require.NoError(t, err)
	assert.Len(t, key, 32)

	again, err := cfg.encryptionKey()
	require.NoError(t, err)
	assert.Equal(t, key, again, "derivation is deterministic")

	raw := bytes.Repeat([]byte{7}, security.KeySize)
	cfg.EncryptionKey = base64.StdEncoding.EncodeToString(raw)
	_, err = cfg.encryptionKey()
	assert.Error(t, err, "key and secret are mutually exclusive")

	cfg.EncryptionSecret = ""
	key, err = cfg.encryptionKey()
	require.NoError(t, err)
	assert.Equal(t, raw, key)

	cfg.EncryptionKey = "c2hvcnQ="
	_, err = cfg.encryptionKey()
	assert.Error(t, err)
}

func TestEnvConfig_BackendConfig(t *testing.T) {
	cfg := &envConfig{
		Storage:        "Redis",
		StorageDir:     "/var/lib/crm-oauth",
		RedisAddr:      "localhost:6379",
		RedisDB:        2,
		RedisKeyPrefix: "crm:",
		RedisTLS:       true,
	}

	got, err := cfg.backendConfig()
	require.NoError(t, err)
	assert.Equal(t, backend.TypeRedis, got.Type)
	assert.Equal(t, "/var/lib/crm-oauth", got.Dir)
	assert.Equal(t, "localhost:6379", got.Redis.Address)
	assert.Equal(t, 2, got.Redis.DB)
	assert.Equal(t, "crm:", got.Redis.KeyPrefix)
	require.NotNil(t, got.Redis.TLS)

	cfg.Storage = "floppy"
	_, err = cfg.backendConfig()
	assert.Error(t, err)
}

func TestEnvConfig_StoreOptions(t *testing.T) {
	cfg := &envConfig{StateTTL: time.Minute}

	disabled, err := security.NewEncryptor(nil)
	require.NoError(t, err)
	assert.Len(t, cfg.storeOptions(disabled, nil, nil), 3)

	enabled, err := security.NewEncryptor(bytes.Repeat([]byte{1}, 32))
	require.NoError(t, err)
	assert.Len(t, cfg.storeOptions(enabled, nil, nil), 4)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer

	logger, err := newLogger(&buf, "warn", "json")
	require.NoError(t, err)
	logger.Info("hidden")
	logger.Warn("shown", "crm", "zoho")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)

	buf.Reset()
	logger, err = newLogger(&buf, "debug", "")
	require.NoError(t, err)
	logger.Debug("visible")
	assert.Contains(t, buf.String(), "msg=visible")

	_, err = newLogger(&buf, "loud", "text")
	assert.Error(t, err)

	_, err = newLogger(&buf, "info", "xml")
	assert.Error(t, err)
}
