// Package security provides security features for the CRM OAuth flows including
// state generation, token encryption at rest, rate limiting, audit logging and
// secure response headers.
package security

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"
)

// Audit event types
const (
	EventAuthorizationStarted = "authorization_started"
	EventTokenIssued          = "token_issued"
	EventTokenRefreshed       = "token_refreshed"
	EventTokensCleared        = "tokens_cleared"
	EventInvalidState         = "invalid_state"
	EventTokenExchangeFailed  = "token_exchange_failed"
)

// Auditor handles security event logging with PII protection.
type Auditor struct {
	logger  *slog.Logger
	enabled bool
	now     func() time.Time
}

// NewAuditor creates a new security auditor
func NewAuditor(logger *slog.Logger, enabled bool) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{
		logger:  logger,
		enabled: enabled,
		now:     time.Now,
	}
}

// Event represents a security audit event
type Event struct {
	Type      string
	Provider  string
	Subject   string // hashed before logging
	Details   map[string]any
	Timestamp time.Time
}

// LogEvent logs a security event with hashed identifiers (nil-safe)
func (a *Auditor) LogEvent(event Event) {
	if a == nil || !a.enabled {
		return
	}

	event.Timestamp = a.now()

	a.logger.Info("security_audit",
		"event_type", event.Type,
		"provider", event.Provider,
		"subject_hash", hashForLogging(event.Subject),
		"details", event.Details,
		"timestamp", event.Timestamp,
	)
}

// LogAuthorizationStarted logs issuance of an authorization URL. The state value is hashed.
func (a *Auditor) LogAuthorizationStarted(provider, state string) {
	a.LogEvent(Event{
		Type:     EventAuthorizationStarted,
		Provider: provider,
		Subject:  state,
	})
}

// LogTokenIssued logs a successful authorization code exchange
func (a *Auditor) LogTokenIssued(provider string, hasRefreshToken bool) {
	a.LogEvent(Event{
		Type:     EventTokenIssued,
		Provider: provider,
		Details: map[string]any{
			"refresh_token_present": hasRefreshToken,
		},
	})
}

// LogTokenRefreshed logs a refresh; transparent is true when it happened inside a contacts fetch
func (a *Auditor) LogTokenRefreshed(provider string, transparent bool) {
	a.LogEvent(Event{
		Type:     EventTokenRefreshed,
		Provider: provider,
		Details: map[string]any{
			"transparent": transparent,
		},
	})
}

// LogTokensCleared logs token revocation; an empty provider means all providers
func (a *Auditor) LogTokensCleared(provider string, removed bool) {
	a.LogEvent(Event{
		Type:     EventTokensCleared,
		Provider: provider,
		Details: map[string]any{
			"removed": removed,
		},
	})
}

// LogInvalidState logs a rejected callback
func (a *Auditor) LogInvalidState(provider, reason string) {
	a.LogEvent(Event{
		Type:     EventInvalidState,
		Provider: provider,
		Details: map[string]any{
			"reason": reason,
		},
	})
}

// LogTokenExchangeFailed logs a failed code exchange with the upstream status
func (a *Auditor) LogTokenExchangeFailed(provider string, status int) {
	a.LogEvent(Event{
		Type:     EventTokenExchangeFailed,
		Provider: provider,
		Details: map[string]any{
			"upstream_status": status,
		},
	})
}

// hashForLogging creates a SHA256 hash of sensitive data for logging
func hashForLogging(sensitive string) string {
	if sensitive == "" {
		return "<empty>"
	}
	hash := sha256.Sum256([]byte(sensitive))
	return hex.EncodeToString(hash[:])[:16]
}
