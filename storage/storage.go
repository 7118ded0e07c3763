package storage

import (
	"context"
	"errors"
	"time"

	"github.com/giantswarm/crm-oauth/providers"
)

// ErrNotFound is returned when no live entry exists for the requested key.
// Expired states are reported as ErrNotFound as well.
var ErrNotFound = errors.New("storage: not found")

// DefaultStateTTL is how long an issued OAuth state stays valid
const DefaultStateTTL = 10 * time.Minute

// StateStore persists the anti-forgery state issued for each provider.
// All methods accept context.Context for tracing and cancellation.
type StateStore interface {
	// SaveState stores value for provider with the current time, replacing any previous state
	SaveState(ctx context.Context, provider, value string) error

	// GetState returns the state for provider, or ErrNotFound when it is absent or expired
	GetState(ctx context.Context, provider string) (string, error)
}

// TokenStore persists one token record per provider.
// All methods accept context.Context for tracing and cancellation.
type TokenStore interface {
	// SaveTokens derives the expiry, stamps LastAuthenticated and overwrites the provider's record
	SaveTokens(ctx context.Context, provider string, token *providers.Token) (*TokenRecord, error)

	// GetTokens returns the provider's record. An empty provider selects the
	// most recently authenticated record. ErrNotFound when nothing matches.
	GetTokens(ctx context.Context, provider string) (*TokenRecord, error)

	// ClearTokens deletes the provider's record, or every record when provider
	// is empty. It reports whether anything was deleted.
	ClearTokens(ctx context.Context, provider string) (bool, error)
}

// Store is implemented by every backend
type Store interface {
	StateStore
	TokenStore

	// Close releases the backend's resources
	Close() error
}
