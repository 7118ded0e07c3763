package capsule

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/giantswarm/crm-oauth/instrumentation"
	"github.com/giantswarm/crm-oauth/providers"
	"github.com/giantswarm/crm-oauth/security"
)

// Compile-time check that Provider implements the providers.Provider interface.
var _ providers.Provider = (*Provider)(nil)

// ProviderName is the name returned by Provider.Name().
const ProviderName = "capsule"

// Capsule endpoints
const (
	DefaultAuthorizeURL = "https://api.capsulecrm.com/oauth/authorise"
	DefaultTokenURL     = "https://api.capsulecrm.com/oauth/token"
	DefaultContactsURL  = "https://api.capsulecrm.com/api/v2/parties"
	DefaultScope        = "read write"
)

// Provider implements the providers.Provider interface for Capsule CRM.
type Provider struct {
	*providers.Client
}

// Config holds Capsule OAuth configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// Endpoint overrides, mostly for tests.
	AuthorizeURL string
	TokenURL     string
	ContactsURL  string

	// Scope defaults to "read write".
	Scope string

	// AuthParams are extra authorization URL parameters (none by default).
	AuthParams map[string]string

	HTTPClient      *http.Client
	RequestTimeout  time.Duration
	Limiter         *security.KeyedLimiter
	Instrumentation *instrumentation.Instrumentation
	Logger          *slog.Logger
	Now             func() time.Time
}

// NewProvider creates a new Capsule CRM provider.
func NewProvider(cfg *Config) (*Provider, error) {
	if cfg == nil {
		return nil, providers.NewConfigurationError(ProviderName, "config is required", nil)
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
		AuthParams:      cfg.AuthParams,
		AuthScheme:      "Bearer",
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

// GetContacts fetches one page of parties. Capsule paginates with Link headers
// and reports no total, so Total is the number of items on the page.
func (p *Provider) GetContacts(ctx context.Context, req providers.ContactsRequest) (*providers.ContactsPage, error) {
	return p.FetchContacts(ctx, req, func(payload any) ([]providers.Contact, int) {
		contacts := p.NormalizeContacts(providers.Unwrap(payload, "parties"))
		return contacts, len(contacts)
	})
}

// NormalizeContacts maps Capsule parties ({"parties": [...]}, {"party": {...}},
// a list, or a single party) into canonical contacts.
func (p *Provider) NormalizeContacts(raw any) []providers.Contact {
	return providers.NormalizeRecords(raw, normalizeParty, "parties", "party")
}

func normalizeParty(r map[string]any) providers.Contact {
	c := providers.Contact{
		ID:         providers.StringField(r, "id"),
		FirstName:  providers.StringField(r, "firstName", "first_name"),
		LastName:   providers.StringField(r, "lastName", "last_name"),
		Name:       providers.StringField(r, "name"),
		Email:      firstEmail(r),
		OwnerEmail: providers.StringField(r, "owner_email"),
	}
	c.Phone, c.Mobile = phones(r)

	if org := providers.ObjectField(r, "organisation"); org != nil {
		c.Company = providers.StringField(org, "name")
	} else {
		c.Company = providers.StringField(r, "organisation", "company")
	}
	return c
}

func firstEmail(r map[string]any) string {
	for _, item := range providers.ListField(r, "emailAddresses") {
		if entry, ok := item.(map[string]any); ok {
			if address := providers.StringField(entry, "address"); address != "" {
				return address
			}
		}
	}
	return providers.StringField(r, "email")
}

// phones returns the first non-mobile number and the first mobile number
func phones(r map[string]any) (phone, mobile string) {
	for _, item := range providers.ListField(r, "phoneNumbers") {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		number := providers.StringField(entry, "number")
		if number == "" {
			continue
		}
		if strings.EqualFold(providers.StringField(entry, "type"), "mobile") {
			if mobile == "" {
				mobile = number
			}
			continue
		}
		if phone == "" {
			phone = number
		}
	}
	if phone == "" {
		phone = providers.StringField(r, "phone")
	}
	if mobile == "" {
		mobile = providers.StringField(r, "mobile")
	}
	return phone, mobile
}
