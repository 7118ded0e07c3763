package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/giantswarm/crm-oauth/providers"
	"github.com/giantswarm/crm-oauth/storage"
)

// backendName labels spans and metrics
const backendName = "memory"

// Store is an in-memory implementation of storage.Store.
// Token values are sealed with the configured encryptor, as in the persistent backends.
type Store struct {
	mu sync.RWMutex

	tokens map[string]*storage.TokenRecord
	states map[string]*storage.OAuthState

	opts storage.Options
}

// Compile-time interface check
var _ storage.Store = (*Store)(nil)

// New creates an empty in-memory store
func New(opts ...storage.Option) *Store {
	return &Store{
		tokens: make(map[string]*storage.TokenRecord),
		states: make(map[string]*storage.OAuthState),
		opts:   storage.NewOptions(opts...),
	}
}

// SaveState stores value for provider, replacing any previous state
func (s *Store) SaveState(ctx context.Context, provider, value string) (err error) {
	_, done := s.opts.Track(ctx, backendName, storage.OpSaveState)
	defer func() { done(err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.states[provider] = &storage.OAuthState{
		Provider:  provider,
		Value:     value,
		CreatedAt: s.opts.Now().UTC(),
	}
	return nil
}

// GetState returns the live state for provider
func (s *Store) GetState(ctx context.Context, provider string) (value string, err error) {
	_, done := s.opts.Track(ctx, backendName, storage.OpGetState)
	defer func() { done(err) }()

	s.mu.RLock()
	state, ok := s.states[provider]
	s.mu.RUnlock()

	if !ok {
		return "", storage.ErrNotFound
	}
	if state.Expired(s.opts.Now(), s.opts.StateTTL) {
		s.opts.Logger.Debug("OAuth state expired", "provider", provider, "created_at", state.CreatedAt)
		return "", storage.ErrNotFound
	}
	return state.Value, nil
}

// SaveTokens stores the provider's token record
func (s *Store) SaveTokens(ctx context.Context, provider string, token *providers.Token) (rec *storage.TokenRecord, err error) {
	_, done := s.opts.Track(ctx, backendName, storage.OpSaveTokens)
	defer func() { done(err) }()

	record, err := storage.NewTokenRecord(provider, token, s.opts.Now())
	if err != nil {
		return nil, err
	}
	sealed, err := storage.SealRecord(record, s.opts.Encryptor)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.tokens[provider] = sealed
	s.mu.Unlock()

	return record, nil
}

// GetTokens returns the provider's record, or the most recently authenticated one
func (s *Store) GetTokens(ctx context.Context, provider string) (rec *storage.TokenRecord, err error) {
	_, done := s.opts.Track(ctx, backendName, storage.OpGetTokens)
	defer func() { done(err) }()

	s.mu.RLock()
	var found *storage.TokenRecord
	if provider == "" {
		found = storage.LatestTokenRecord(s.tokens)
	} else {
		found = s.tokens[provider]
	}
	s.mu.RUnlock()

	if found == nil {
		return nil, storage.ErrNotFound
	}

	opened, err := storage.OpenRecord(found, s.opts.Encryptor)
	if err != nil {
		return nil, fmt.Errorf("memory: %w", err)
	}
	return opened, nil
}

// ClearTokens deletes one record, or all of them when provider is empty
func (s *Store) ClearTokens(ctx context.Context, provider string) (removed bool, err error) {
	_, done := s.opts.Track(ctx, backendName, storage.OpClearTokens)
	defer func() { done(err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	if provider == "" {
		removed = len(s.tokens) > 0
		s.tokens = make(map[string]*storage.TokenRecord)
		return removed, nil
	}

	if _, ok := s.tokens[provider]; !ok {
		return false, nil
	}
	delete(s.tokens, provider)
	return true, nil
}

// Close is a no-op
func (s *Store) Close() error {
	return nil
}
