package providers

import (
	"context"
	"time"
)

// Provider defines the capability set every CRM integration implements.
// Implementations are stateless with respect to tokens: credentials are passed
// in on every call and nothing is cached between calls.
type Provider interface {
	// Name returns the provider identifier (e.g., "zoho", "capsule")
	Name() string

	// AuthorizationURL builds the URL the user is redirected to for consent.
	// state is the anti-forgery value the caller has already persisted.
	AuthorizationURL(state string) string

	// ExchangeCode exchanges an authorization code for tokens
	ExchangeCode(ctx context.Context, code string) (*Token, error)

	// RefreshToken obtains a new access token using a refresh token
	RefreshToken(ctx context.Context, refreshToken string) (*Token, error)

	// GetContacts fetches and normalizes one page of contacts.
	// On 401 it refreshes once, calls req.OnRefresh and retries exactly once.
	GetContacts(ctx context.Context, req ContactsRequest) (*ContactsPage, error)

	// NormalizeContacts maps a decoded provider payload into canonical contacts.
	// raw may be a single object, a list, or a wrapper object holding the list.
	NormalizeContacts(raw any) []Contact
}

// Token is a provider token response tagged with the provider name
type Token struct {
	// Provider is the name of the provider that issued the token
	Provider string `json:"provider"`

	// AccessToken is the bearer credential for API calls
	AccessToken string `json:"access_token"`

	// RefreshToken obtains new access tokens; not every response carries one
	RefreshToken string `json:"refresh_token,omitempty"`

	// TokenType as reported by the provider (e.g., "Bearer")
	TokenType string `json:"token_type,omitempty"`

	// Scope granted by the provider, if reported
	Scope string `json:"scope,omitempty"`

	// APIDomain is the data-center specific API host reported by Zoho
	APIDomain string `json:"api_domain,omitempty"`

	// ExpiresIn is the token lifetime in seconds as reported by the provider
	ExpiresIn int64 `json:"expires_in,omitempty"`

	// ExpiresAt is the absolute expiry; derived from ExpiresIn when absent
	ExpiresAt time.Time `json:"expires_at,omitzero"`
}

// Contact is the canonical, provider-independent contact shape
type Contact struct {
	ID         string `json:"id"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Mobile     string `json:"mobile,omitempty"`
	Company    string `json:"company,omitempty"`
	OwnerEmail string `json:"owner_email,omitempty"`
}

// ContactsRequest carries the credentials and page for a contacts fetch
type ContactsRequest struct {
	AccessToken  string
	RefreshToken string

	// Page is 1-based; values below 1 are treated as 1
	Page int

	// OnRefresh is invoked with the refreshed token after a transparent refresh
	// and before the retry, so callers can persist it regardless of the retry outcome.
	OnRefresh func(ctx context.Context, token *Token) error
}

// ContactsPage is one normalized page of contacts
type ContactsPage struct {
	Contacts []Contact `json:"data"`
	Page     int       `json:"page"`
	Total    int       `json:"total"`

	// RefreshedToken is set when the page was fetched after a transparent refresh
	RefreshedToken *Token `json:"-"`
}
