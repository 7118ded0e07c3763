package zoho

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/giantswarm/crm-oauth/instrumentation"
	"github.com/giantswarm/crm-oauth/providers"
	"github.com/giantswarm/crm-oauth/security"
)

// Compile-time check that Provider implements the providers.Provider interface.
var _ providers.Provider = (*Provider)(nil)

// ProviderName is the name returned by Provider.Name().
const ProviderName = "zoho"

// Zoho endpoints (US data center)
const (
	DefaultAuthorizeURL = "https://accounts.zoho.com/oauth/v2/auth"
	DefaultTokenURL     = "https://accounts.zoho.com/oauth/v2/token"
	DefaultContactsURL  = "https://www.zohoapis.com/crm/v2/Contacts"
	DefaultScope        = "ZohoCRM.modules.contacts.READ"

	authScheme = "Zoho-oauthtoken"
	wrapperKey = "data"
)

// DefaultAuthParams returns the parameters needed for Zoho to issue a refresh token
func DefaultAuthParams() map[string]string {
	return map[string]string{
		"access_type": "offline",
		"prompt":      "consent",
	}
}

// Provider implements the providers.Provider interface for Zoho CRM.
type Provider struct {
	*providers.Client
}

// Config holds Zoho OAuth configuration.
type Config struct {
	// ClientID is the Zoho API console client ID.
	ClientID string

	// ClientSecret is the Zoho API console client secret.
	ClientSecret string

	// RedirectURL is the OAuth callback URL registered with Zoho.
	RedirectURL string

	// AuthorizeURL, TokenURL and ContactsURL override the US data center endpoints.
	AuthorizeURL string
	TokenURL     string
	ContactsURL  string

	// Scope defaults to ZohoCRM.modules.contacts.READ.
	Scope string

	// AuthParams are extra authorization URL parameters (default: DefaultAuthParams).
	AuthParams map[string]string

	// HTTPClient is an optional custom HTTP client.
	HTTPClient *http.Client

	// RequestTimeout is the timeout for Zoho calls (default: 30s).
	RequestTimeout time.Duration

	// Limiter optionally throttles outbound calls.
	Limiter *security.KeyedLimiter

	Instrumentation *instrumentation.Instrumentation
	Logger          *slog.Logger

	// Now overrides the clock used for token expiry (for tests).
	Now func() time.Time
}

// NewProvider creates a new Zoho CRM provider.
func NewProvider(cfg *Config) (*Provider, error) {
	if cfg == nil {
		return nil, providers.NewConfigurationError(ProviderName, "config is required", nil)
	}

	authParams := cfg.AuthParams
	if authParams == nil {
		authParams = DefaultAuthParams()
	}

	client, err := providers.NewClient(providers.ClientConfig{
		Name:            ProviderName,
		ClientID:        cfg.ClientID,
		ClientSecret:    cfg.ClientSecret,
		AuthorizeURL:    orDefault(cfg.AuthorizeURL, DefaultAuthorizeURL),
		TokenURL:        orDefault(cfg.TokenURL, DefaultTokenURL),
		RedirectURL:     cfg.RedirectURL,
		ContactsURL:     orDefault(cfg.ContactsURL, DefaultContactsURL),
		Scope:           orDefault(cfg.Scope, DefaultScope),
		AuthParams:      authParams,
		AuthScheme:      authScheme,
		HTTPClient:      cfg.HTTPClient,
		Timeout:         cfg.RequestTimeout,
		Limiter:         cfg.Limiter,
		Instrumentation: cfg.Instrumentation,
		Logger:          cfg.Logger,
		Now:             cfg.Now,
	})
	if err != nil {
		return nil, err
	}

	return &Provider{Client: client}, nil
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

// GetContacts fetches one page from the Contacts module
func (p *Provider) GetContacts(ctx context.Context, req providers.ContactsRequest) (*providers.ContactsPage, error) {
	return p.FetchContacts(ctx, req, p.parsePage)
}

// parsePage reads records from "data" only and the total from info.count,
// falling back to the item count
func (p *Provider) parsePage(payload any) ([]providers.Contact, int) {
	contacts := p.NormalizeContacts(providers.Unwrap(payload, wrapperKey))
	if obj, ok := payload.(map[string]any); ok {
		if info := providers.ObjectField(obj, "info"); info != nil {
			if count, ok := providers.IntField(info, "count"); ok {
				return contacts, count
			}
		}
	}
	return contacts, len(contacts)
}

// NormalizeContacts maps Zoho contact records (or the {"data": [...]} envelope)
// into canonical contacts.
func (p *Provider) NormalizeContacts(raw any) []providers.Contact {
	return providers.NormalizeRecords(raw, normalizeContact, wrapperKey)
}

func normalizeContact(r map[string]any) providers.Contact {
	return providers.Contact{
		ID:         providers.StringField(r, "id"),
		FirstName:  providers.StringField(r, "First_Name", "first_name"),
		LastName:   providers.StringField(r, "Last_Name", "last_name"),
		Name:       providers.StringField(r, "Full_Name", "full_name", "name"),
		Email:      providers.StringField(r, "Email", "email"),
		Phone:      providers.StringField(r, "Phone", "phone"),
		Mobile:     providers.StringField(r, "Mobile", "mobile", "Other_Phone", "other_phone"),
		Company:    company(r),
		OwnerEmail: ownerEmail(r),
	}
}

// company reads Account_Name, which is a lookup object in API responses
func company(r map[string]any) string {
	if account := providers.ObjectField(r, "Account_Name"); account != nil {
		return providers.StringField(account, "name")
	}
	return providers.StringField(r, "Account_Name", "company")
}

func ownerEmail(r map[string]any) string {
	if owner := providers.ObjectField(r, "Owner"); owner != nil {
		return providers.StringField(owner, "email")
	}
	return providers.StringField(r, "owner_email")
}
