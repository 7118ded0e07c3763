package oauth

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/giantswarm/crm-oauth/instrumentation"
	"github.com/giantswarm/crm-oauth/internal/util"
	"github.com/giantswarm/crm-oauth/providers"
	"github.com/giantswarm/crm-oauth/providers/capsule"
	"github.com/giantswarm/crm-oauth/providers/zoho"
	"github.com/giantswarm/crm-oauth/security"
)

// DefaultRedirectPathPrefix is joined with the provider name when
// ProviderConfig.RedirectPath is empty
const DefaultRedirectPathPrefix = "/integrations/callback/"

// Config holds the connector configuration. It is built once at startup and
// not modified afterwards.
type Config struct {
	// BaseURL is the public URL of this service; redirect URIs are built from it
	BaseURL string `validate:"required,url"`

	// Providers holds the credentials of each CRM, keyed by provider name
	Providers map[string]ProviderConfig `validate:"dive"`

	// Enabled lists the providers to register.
	// Default: every provider with an entry in Providers.
	Enabled []string

	// RequestTimeout bounds each outbound provider call.
	// Default: 30 seconds
	RequestTimeout time.Duration `validate:"gte=0"`

	// Security settings (secure by default)
	Security SecurityConfig

	// Logger for structured logging (optional, uses default if not provided)
	Logger *slog.Logger

	// HTTPClient is a custom HTTP client for provider calls
	HTTPClient *http.Client

	// Instrumentation enables tracing and metrics (optional)
	Instrumentation *instrumentation.Instrumentation

	// Now overrides the clock (for tests)
	Now func() time.Time
}

// ProviderConfig holds the OAuth client registration for one CRM
type ProviderConfig struct {
	// ClientID and ClientSecret are issued by the CRM's developer console
	ClientID     string `validate:"required"`
	ClientSecret string `validate:"required"`

	// RedirectPath is appended to Config.BaseURL to form the redirect URI.
	// Default: /integrations/callback/{provider}
	RedirectPath string `validate:"omitempty,startswith=/"`

	// Endpoint overrides; empty values use the provider's defaults
	AuthorizeURL string `validate:"omitempty,url"`
	TokenURL     string `validate:"omitempty,url"`
	ContactsURL  string `validate:"omitempty,url"`

	// Scope overrides the provider's default scope
	Scope string

	// AuthParams are extra authorization URL parameters
	AuthParams map[string]string

	// RequestsPerSecond throttles outbound calls to this CRM. Zero disables.
	RequestsPerSecond float64 `validate:"gte=0"`

	// Burst is the token bucket size used with RequestsPerSecond
	Burst int `validate:"gte=0"`
}

// SecurityConfig holds security settings
type SecurityConfig struct {
	// AllowInsecureCallbackWithoutState accepts callbacks that carry no state.
	// WARNING: Disables CSRF protection of the callback. Only for local testing.
	AllowInsecureCallbackWithoutState bool

	// EncryptionKey is the AES-256 key (32 bytes) for token encryption at rest.
	// Nil disables encryption.
	EncryptionKey []byte

	// EnableAuditLogging logs security events (identifiers hashed)
	EnableAuditLogging bool
}

var validate = validator.New()

// Validate checks the configuration and returns a configuration error
// naming every invalid field
func (c *Config) Validate() error {
	if c == nil {
		return providers.NewConfigurationError("", "config is required", nil)
	}

	if err := validate.Struct(c); err != nil {
		return providers.NewConfigurationError("", formatValidationError(err), err)
	}

	if len(c.Security.EncryptionKey) != 0 && len(c.Security.EncryptionKey) != 32 {
		return providers.NewConfigurationError("", "encryption key must be 32 bytes", nil)
	}

	for _, name := range c.enabledProviders() {
		if _, ok := providerFactories[name]; !ok {
			return providers.NewConfigurationError(name,
				fmt.Sprintf("unknown provider (available: %s)", strings.Join(AvailableProviders(), ", ")), nil)
		}
		if _, ok := c.providerConfig(name); !ok {
			return providers.NewConfigurationError(name, "provider is enabled but not configured", nil)
		}
	}
	return nil
}

// enabledProviders returns the normalized names of the providers to register
func (c *Config) enabledProviders() []string {
	var names []string
	if len(c.Enabled) > 0 {
		for _, name := range c.Enabled {
			names = append(names, strings.ToLower(strings.TrimSpace(name)))
		}
	} else {
		for name := range c.Providers {
			names = append(names, strings.ToLower(strings.TrimSpace(name)))
		}
	}
	sort.Strings(names)
	return names
}

// providerConfig looks up a provider's settings case-insensitively
func (c *Config) providerConfig(name string) (ProviderConfig, bool) {
	if pc, ok := c.Providers[name]; ok {
		return pc, true
	}
	for key, pc := range c.Providers {
		if strings.EqualFold(key, name) {
			return pc, true
		}
	}
	return ProviderConfig{}, false
}

// redirectURL returns the redirect URI registered for provider
func (c *Config) redirectURL(name string, pc ProviderConfig) string {
	path := pc.RedirectPath
	if path == "" {
		path = DefaultRedirectPathPrefix + name
	}
	return util.JoinURL(c.BaseURL, path)
}

func (c *Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func (c *Config) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// formatValidationError renders validator errors as one short sentence per field
func formatValidationError(err error) string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err.Error()
	}

	msgs := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		field := strings.TrimPrefix(e.Namespace(), "Config.")
		switch e.Tag() {
		case "required":
			msgs = append(msgs, field+" is required")
		case "url":
			msgs = append(msgs, field+" must be a valid URL")
		case "startswith":
			msgs = append(msgs, fmt.Sprintf("%s must start with %q", field, e.Param()))
		case "gte":
			msgs = append(msgs, fmt.Sprintf("%s must be at least %s", field, e.Param()))
		default:
			msgs = append(msgs, field+" is invalid")
		}
	}
	return strings.Join(msgs, "; ")
}

// providerFactory builds a provider from its configuration
type providerFactory func(cfg *Config, name string, pc ProviderConfig) (providers.Provider, error)

// providerFactories is the closed set of supported CRMs
var providerFactories = map[string]providerFactory{
	zoho.ProviderName:    newZohoProvider,
	capsule.ProviderName: newCapsuleProvider,
}

// AvailableProviders returns the names of all CRMs this package can connect to
func AvailableProviders() []string {
	names := make([]string, 0, len(providerFactories))
	for name := range providerFactories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func newZohoProvider(cfg *Config, name string, pc ProviderConfig) (providers.Provider, error) {
	return zoho.NewProvider(&zoho.Config{
		ClientID:        pc.ClientID,
		ClientSecret:    pc.ClientSecret,
		RedirectURL:     cfg.redirectURL(name, pc),
		AuthorizeURL:    pc.AuthorizeURL,
		TokenURL:        pc.TokenURL,
		ContactsURL:     pc.ContactsURL,
		Scope:           pc.Scope,
		AuthParams:      pc.AuthParams,
		HTTPClient:      cfg.HTTPClient,
		RequestTimeout:  cfg.RequestTimeout,
		Limiter:         newLimiter(cfg, pc),
		Instrumentation: cfg.Instrumentation,
		Logger:          cfg.logger(),
		Now:             cfg.Now,
	})
}

func newCapsuleProvider(cfg *Config, name string, pc ProviderConfig) (providers.Provider, error) {
	return capsule.NewProvider(&capsule.Config{
		ClientID:        pc.ClientID,
		ClientSecret:    pc.ClientSecret,
		RedirectURL:     cfg.redirectURL(name, pc),
		AuthorizeURL:    pc.AuthorizeURL,
		TokenURL:        pc.TokenURL,
		ContactsURL:     pc.ContactsURL,
		Scope:           pc.Scope,
		AuthParams:      pc.AuthParams,
		HTTPClient:      cfg.HTTPClient,
		RequestTimeout:  cfg.RequestTimeout,
		Limiter:         newLimiter(cfg, pc),
		Instrumentation: cfg.Instrumentation,
		Logger:          cfg.logger(),
		Now:             cfg.Now,
	})
}

// NewRegistry validates cfg and builds a registry holding every enabled provider
func NewRegistry(cfg *Config) (*providers.Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	names := cfg.enabledProviders()
	if len(names) == 0 {
		return nil, providers.NewConfigurationError("", "no providers configured", nil)
	}

	list := make([]providers.Provider, 0, len(names))
	for _, name := range names {
		pc, _ := cfg.providerConfig(name)
		p, err := providerFactories[name](cfg, name, pc)
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return providers.NewRegistry(list...)
}

// newLimiter returns nil (no throttling) unless RequestsPerSecond is set
func newLimiter(cfg *Config, pc ProviderConfig) *security.KeyedLimiter {
	return security.NewKeyedLimiter(pc.RequestsPerSecond, pc.Burst, cfg.logger())
}
