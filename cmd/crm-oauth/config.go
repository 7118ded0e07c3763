package main

import (
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	oauth "github.com/giantswarm/crm-oauth"
	"github.com/giantswarm/crm-oauth/instrumentation"
	"github.com/giantswarm/crm-oauth/internal/httpapi"
	"github.com/giantswarm/crm-oauth/security"
	"github.com/giantswarm/crm-oauth/storage"
	"github.com/giantswarm/crm-oauth/storage/backend"
	"github.com/giantswarm/crm-oauth/storage/redis"
)

// providerEnv holds the settings of one CRM, read with the upper-cased
// provider name as prefix (ZOHO_CLIENT_ID, CAPSULE_AUTH_PARAMS, ...)
type providerEnv struct {
	ClientID          string  `env:"CLIENT_ID"`
	ClientSecret      string  `env:"CLIENT_SECRET"`
	RedirectPath      string  `env:"REDIRECT_PATH"`
	AuthorizeURL      string  `env:"AUTHORIZE_URL"`
	TokenURL          string  `env:"TOKEN_URL"`
	ContactsURL       string  `env:"CONTACTS_URL"`
	Scope             string  `env:"SCOPE"`
	RequestsPerSecond float64 `env:"REQUESTS_PER_SECOND"`
	Burst             int     `env:"BURST" envDefault:"1"`

	// AuthParams is a comma separated list of key=value pairs added to the
	// authorization URL, e.g. access_type=offline,prompt=consent
	AuthParams map[string]string `env:"AUTH_PARAMS" envKeyValSeparator:"="`
}

func (p providerEnv) configured() bool {
	return p.ClientID != "" || p.ClientSecret != ""
}

func (p providerEnv) providerConfig() oauth.ProviderConfig {
	return oauth.ProviderConfig{
		ClientID:          p.ClientID,
		ClientSecret:      p.ClientSecret,
		RedirectPath:      p.RedirectPath,
		AuthorizeURL:      p.AuthorizeURL,
		TokenURL:          p.TokenURL,
		ContactsURL:       p.ContactsURL,
		Scope:             p.Scope,
		AuthParams:        p.AuthParams,
		RequestsPerSecond: p.RequestsPerSecond,
		Burst:             p.Burst,
	}
}

// envConfig is the raw process configuration
type envConfig struct {
	BaseURL        string        `env:"CRM_BASE_URL"        envDefault:"http://localhost:8000"`
	Enabled        []string      `env:"CRM_PROVIDERS"       envSeparator:","`
	RequestTimeout time.Duration `env:"CRM_REQUEST_TIMEOUT" envDefault:"30s"`
	StateTTL       time.Duration `env:"CRM_STATE_TTL"       envDefault:"10m"`

	// Providers is keyed by registered provider name
	Providers map[string]providerEnv `env:"-"`

	Storage        string `env:"CRM_STORAGE"          envDefault:"file"`
	StorageDir     string `env:"CRM_STORAGE_DIR"      envDefault:"."`
	RedisAddr      string `env:"CRM_REDIS_ADDR"`
	RedisPassword  string `env:"CRM_REDIS_PASSWORD"`
	RedisDB        int    `env:"CRM_REDIS_DB"`
	RedisKeyPrefix string `env:"CRM_REDIS_KEY_PREFIX" envDefault:"crm-oauth:"`
	RedisTLS       bool   `env:"CRM_REDIS_TLS"`

	EncryptionKey             string `env:"CRM_ENCRYPTION_KEY"`
	EncryptionSecret          string `env:"CRM_ENCRYPTION_SECRET"`
	EncryptionSalt            string `env:"CRM_ENCRYPTION_SALT"             envDefault:"crm-oauth"`
	AuditLog                  bool   `env:"CRM_AUDIT_LOG"`
	AllowCallbackWithoutState bool   `env:"CRM_ALLOW_CALLBACK_WITHOUT_STATE"`

	ExportContacts bool   `env:"CRM_EXPORT_CONTACTS"`
	ExportDir      string `env:"CRM_EXPORT_DIR"      envDefault:"contact_data"`

	ListenAddr        string  `env:"CRM_LISTEN_ADDR"         envDefault:":8000"`
	RateLimit         float64 `env:"CRM_RATE_LIMIT"`
	RateLimitBurst    int     `env:"CRM_RATE_LIMIT_BURST"    envDefault:"10"`
	TrustProxy        bool    `env:"CRM_TRUST_PROXY"`
	TrustedProxyCount int     `env:"CRM_TRUSTED_PROXY_COUNT" envDefault:"1"`

	OTelEnabled  bool   `env:"CRM_OTEL_ENABLED"`
	OTLPEndpoint string `env:"CRM_OTLP_ENDPOINT"`
}

// loadEnv reads envFile into the process environment, without overriding
// variables that are already set, and parses the configuration. A missing
// envFile is not an error.
func loadEnv(envFile string) (*envConfig, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	var cfg envConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	cfg.Providers = make(map[string]providerEnv)
	for _, name := range oauth.AvailableProviders() {
		var pe providerEnv
		if err := env.ParseWithOptions(&pe, env.Options{Prefix: envPrefix(name)}); err != nil {
			return nil, fmt.Errorf("failed to parse environment for %s: %w", name, err)
		}
		cfg.Providers[name] = pe
	}
	return &cfg, nil
}

func envPrefix(provider string) string {
	return strings.ToUpper(provider) + "_"
}

// encryptionKey returns the token encryption key: CRM_ENCRYPTION_KEY as is,
// or a key derived from CRM_ENCRYPTION_SECRET. Nil disables encryption.
func (c *envConfig) encryptionKey() ([]byte, error) {
	switch {
	case c.EncryptionKey != "" && c.EncryptionSecret != "":
		return nil, errors.New("set CRM_ENCRYPTION_KEY or CRM_ENCRYPTION_SECRET, not both")
	case c.EncryptionKey != "":
		return security.KeyFromBase64(c.EncryptionKey)
	case c.EncryptionSecret != "":
		return security.DeriveKey(c.EncryptionSecret, c.EncryptionSalt)
	default:
		return nil, nil
	}
}

// oauthConfig builds the service configuration
func (c *envConfig) oauthConfig(key []byte, logger *slog.Logger, inst *instrumentation.Instrumentation) *oauth.Config {
	cfg := &oauth.Config{
		BaseURL:        c.BaseURL,
		Providers:      map[string]oauth.ProviderConfig{},
		Enabled:        c.Enabled,
		RequestTimeout: c.RequestTimeout,
		Security: oauth.SecurityConfig{
			AllowInsecureCallbackWithoutState: c.AllowCallbackWithoutState,
			EncryptionKey:                     key,
			EnableAuditLogging:                c.AuditLog,
		},
		Logger:          logger,
		Instrumentation: inst,
	}

	for name, pe := range c.Providers {
		if pe.configured() {
			cfg.Providers[name] = pe.providerConfig()
		}
	}
	return cfg
}

// backendConfig selects the token and state store
func (c *envConfig) backendConfig() (backend.Config, error) {
	typ, err := backend.ParseType(c.Storage)
	if err != nil {
		return backend.Config{}, err
	}

	cfg := backend.Config{
		Type: typ,
		Dir:  c.StorageDir,
		Redis: redis.Config{
			Address:   c.RedisAddr,
			Password:  c.RedisPassword,
			DB:        c.RedisDB,
			KeyPrefix: c.RedisKeyPrefix,
		},
	}
	if c.RedisTLS {
		cfg.Redis.TLS = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return cfg, nil
}

// storeOptions returns the options shared by every backend
func (c *envConfig) storeOptions(enc *security.Encryptor, logger *slog.Logger, inst *instrumentation.Instrumentation) []storage.Option {
	opts := []storage.Option{
		storage.WithLogger(logger),
		storage.WithStateTTL(c.StateTTL),
		storage.WithInstrumentation(inst),
	}
	if enc.IsEnabled() {
		opts = append(opts, storage.WithEncryptor(enc))
	}
	return opts
}

// httpConfig configures the serve command
func (c *envConfig) httpConfig(logger *slog.Logger) httpapi.Config {
	return httpapi.Config{
		BaseURL:           c.BaseURL,
		RequestsPerSecond: c.RateLimit,
		Burst:             c.RateLimitBurst,
		TrustProxy:        c.TrustProxy,
		TrustedProxyCount: c.TrustedProxyCount,
		Logger:            logger,
	}
}

// newLogger builds the process logger. format is "text" or "json".
func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q (valid: text, json)", format)
	}
}
