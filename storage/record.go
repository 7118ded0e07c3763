package storage

import (
	"fmt"
	"sort"
	"time"

	"github.com/giantswarm/crm-oauth/providers"
	"github.com/giantswarm/crm-oauth/security"
)

// StatusSuccess marks a record written after a successful exchange or refresh
const StatusSuccess = "success"

// TokenRecord is the persisted form of a provider token
type TokenRecord struct {
	providers.Token

	// Status is StatusSuccess for every record written by SaveTokens
	Status string `json:"status"`

	// LastAuthenticated is when the record was last written
	LastAuthenticated time.Time `json:"last_authenticated,omitzero"`

	// Encrypted is set when the token values are sealed with an Encryptor
	Encrypted bool `json:"encrypted,omitempty"`
}

// OAuthState is the persisted anti-forgery state for one provider
type OAuthState struct {
	Provider  string    `json:"-"`
	Value     string    `json:"state"`
	CreatedAt time.Time `json:"created_at"`
}

// Expired reports whether the state is older than ttl at now
func (s *OAuthState) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(s.CreatedAt) > ttl
}

// NewTokenRecord builds the record SaveTokens persists. ExpiresAt is derived
// from ExpiresIn when the provider reported a lifetime but no absolute expiry.
func NewTokenRecord(provider string, token *providers.Token, now time.Time) (*TokenRecord, error) {
	if provider == "" {
		return nil, fmt.Errorf("provider is required")
	}
	if token == nil {
		return nil, fmt.Errorf("token is required")
	}

	now = now.UTC()
	record := &TokenRecord{
		Token:             *token,
		Status:            StatusSuccess,
		LastAuthenticated: now,
	}
	record.Provider = provider
	if record.ExpiresIn > 0 && record.ExpiresAt.IsZero() {
		record.ExpiresAt = now.Add(time.Duration(record.ExpiresIn) * time.Second)
	}
	return record, nil
}

// Clone returns a copy of r
func (r *TokenRecord) Clone() *TokenRecord {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// Expired reports whether the access token has expired at now
func (r *TokenRecord) Expired(now time.Time) bool {
	return security.IsTokenExpired(r.ExpiresAt, now)
}

// LatestTokenRecord returns the record with the greatest LastAuthenticated.
// Records without a timestamp are skipped; ties go to the lexically smaller
// provider name so the result does not depend on map iteration order.
func LatestTokenRecord(records map[string]*TokenRecord) *TokenRecord {
	names := make([]string, 0, len(records))
	for name := range records {
		names = append(names, name)
	}
	sort.Strings(names)

	var latest *TokenRecord
	for _, name := range names {
		rec := records[name]
		if rec == nil || rec.LastAuthenticated.IsZero() {
			continue
		}
		if latest == nil || rec.LastAuthenticated.After(latest.LastAuthenticated) {
			latest = rec
			if latest.Provider == "" {
				latest = latest.Clone()
				latest.Provider = name
			}
		}
	}
	return latest
}

// SealRecord returns a copy of r with the access and refresh tokens encrypted.
// With a nil or disabled encryptor the copy is returned unchanged.
func SealRecord(r *TokenRecord, enc *security.Encryptor) (*TokenRecord, error) {
	sealed := r.Clone()
	if !enc.IsEnabled() || sealed.Encrypted {
		return sealed, nil
	}

	var err error
	if sealed.AccessToken, err = enc.Encrypt(sealed.AccessToken); err != nil {
		return nil, fmt.Errorf("failed to encrypt access token: %w", err)
	}
	if sealed.RefreshToken, err = enc.Encrypt(sealed.RefreshToken); err != nil {
		return nil, fmt.Errorf("failed to encrypt refresh token: %w", err)
	}
	sealed.Encrypted = true
	return sealed, nil
}

// OpenRecord returns a copy of r with sealed token values decrypted
func OpenRecord(r *TokenRecord, enc *security.Encryptor) (*TokenRecord, error) {
	opened := r.Clone()
	if !opened.Encrypted {
		return opened, nil
	}
	if !enc.IsEnabled() {
		return nil, fmt.Errorf("record for %s is encrypted but no encryption key is configured", r.Provider)
	}

	var err error
	if opened.AccessToken, err = enc.Decrypt(opened.AccessToken); err != nil {
		return nil, fmt.Errorf("failed to decrypt access token: %w", err)
	}
	if opened.RefreshToken, err = enc.Decrypt(opened.RefreshToken); err != nil {
		return nil, fmt.Errorf("failed to decrypt refresh token: %w", err)
	}
	opened.Encrypted = false
	return opened, nil
}
