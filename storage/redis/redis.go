package redis

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/redis/rueidis"

	"github.com/giantswarm/crm-oauth/providers"
	"github.com/giantswarm/crm-oauth/storage"
)

const (
	// DefaultKeyPrefix is prepended to every key
	DefaultKeyPrefix = "crm-oauth:"

	backendName = "redis"

	tokenKeyPart = "token:"
	stateKeyPart = "state:"

	// scanBatchSize is the COUNT hint for SCAN iterations
	scanBatchSize = 100

	connectionVerifyTimeout = 5 * time.Second
)

// Config holds the Redis connection settings
type Config struct {
	// Address is the server address (required), e.g., "localhost:6379"
	Address string

	// Password for AUTH (optional)
	Password string

	// DB is the database number (default 0)
	DB int

	// KeyPrefix namespaces all keys (default DefaultKeyPrefix)
	KeyPrefix string

	// TLS enables encrypted connections (optional)
	TLS *tls.Config
}

// Store is a Redis-backed implementation of storage.Store.
// Each operation is a single-key command, except latest-record lookup and
// clear-all, which iterate the token keys with SCAN.
type Store struct {
	client rueidis.Client
	prefix string
	opts   storage.Options
}

var _ storage.Store = (*Store)(nil)

// New connects to Redis and verifies the connection with PING
func New(cfg Config, opts ...storage.Option) (*Store, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress: []string{cfg.Address},
		Password:    cfg.Password,
		SelectDB:    cfg.DB,
		TLSConfig:   cfg.TLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create redis client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectionVerifyTimeout)
	defer cancel()
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	s := NewFromClient(client, cfg.KeyPrefix, opts...)
	s.opts.Logger.Info("Connected to Redis storage", "address", cfg.Address, "db", cfg.DB, "prefix", s.prefix)
	return s, nil
}

// NewFromClient wraps an existing client; the store takes ownership of it
func NewFromClient(client rueidis.Client, prefix string, opts ...storage.Option) *Store {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Store{
		client: client,
		prefix: prefix,
		opts:   storage.NewOptions(opts...),
	}
}

// Close closes the client connection
func (s *Store) Close() error {
	s.client.Close()
	return nil
}

func (s *Store) tokenKey(provider string) string {
	return s.prefix + tokenKeyPart + provider
}

func (s *Store) stateKey(provider string) string {
	return s.prefix + stateKeyPart + provider
}

// SaveState stores value for provider with the state TTL as key expiry
func (s *Store) SaveState(ctx context.Context, provider, value string) (err error) {
	ctx, done := s.opts.Track(ctx, backendName, storage.OpSaveState)
	defer func() { done(err) }()

	data, err := json.Marshal(&storage.OAuthState{
		Value:     value,
		CreatedAt: s.opts.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	ttl := int64(math.Ceil(s.opts.StateTTL.Seconds()))
	cmd := s.client.B().Set().Key(s.stateKey(provider)).Value(string(data)).ExSeconds(ttl).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	return nil
}

// GetState returns the live state for provider. Key expiry removes stale
// states; created_at is checked as well so the store's clock stays authoritative.
func (s *Store) GetState(ctx context.Context, provider string) (value string, err error) {
	ctx, done := s.opts.Track(ctx, backendName, storage.OpGetState)
	defer func() { done(err) }()

	data, err := s.client.Do(ctx, s.client.B().Get().Key(s.stateKey(provider)).Build()).ToString()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return "", storage.ErrNotFound
		}
		return "", fmt.Errorf("failed to get state: %w", err)
	}

	var state storage.OAuthState
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return "", fmt.Errorf("failed to unmarshal state: %w", err)
	}
	if state.Expired(s.opts.Now(), s.opts.StateTTL) {
		s.opts.Logger.Debug("OAuth state expired", "provider", provider, "created_at", state.CreatedAt)
		return "", storage.ErrNotFound
	}
	return state.Value, nil
}

// SaveTokens stores the provider's token record without key expiry; the
// refresh token outlives the access token.
func (s *Store) SaveTokens(ctx context.Context, provider string, token *providers.Token) (rec *storage.TokenRecord, err error) {
	ctx, done := s.opts.Track(ctx, backendName, storage.OpSaveTokens)
	defer func() { done(err) }()

	record, err := storage.NewTokenRecord(provider, token, s.opts.Now())
	if err != nil {
		return nil, err
	}
	sealed, err := storage.SealRecord(record, s.opts.Encryptor)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(sealed)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal token record: %w", err)
	}

	cmd := s.client.B().Set().Key(s.tokenKey(provider)).Value(string(data)).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return nil, fmt.Errorf("failed to save tokens: %w", err)
	}
	return record, nil
}

// GetTokens returns the provider's record, or the most recently authenticated one
func (s *Store) GetTokens(ctx context.Context, provider string) (rec *storage.TokenRecord, err error) {
	ctx, done := s.opts.Track(ctx, backendName, storage.OpGetTokens)
	defer func() { done(err) }()

	var found *storage.TokenRecord
	if provider != "" {
		found, err = s.getRecord(ctx, s.tokenKey(provider))
		if err != nil {
			return nil, err
		}
		found.Provider = provider
	} else {
		records := make(map[string]*storage.TokenRecord)
		err = s.scanTokenKeys(ctx, func(key string) error {
			r, err := s.getRecord(ctx, key)
			if errors.Is(err, storage.ErrNotFound) {
				// deleted between SCAN and GET
				return nil
			}
			if err != nil {
				s.opts.Logger.Warn("Skipping unreadable token record", "key", key, "error", err)
				return nil
			}
			records[strings.TrimPrefix(key, s.tokenKey(""))] = r
			return nil
		})
		if err != nil {
			return nil, err
		}
		if found = storage.LatestTokenRecord(records); found == nil {
			return nil, storage.ErrNotFound
		}
	}

	return storage.OpenRecord(found, s.opts.Encryptor)
}

// ClearTokens deletes one record, or every token key when provider is empty
func (s *Store) ClearTokens(ctx context.Context, provider string) (removed bool, err error) {
	ctx, done := s.opts.Track(ctx, backendName, storage.OpClearTokens)
	defer func() { done(err) }()

	if provider != "" {
		n, err := s.client.Do(ctx, s.client.B().Del().Key(s.tokenKey(provider)).Build()).AsInt64()
		if err != nil {
			return false, fmt.Errorf("failed to clear tokens: %w", err)
		}
		return n > 0, nil
	}

	var keys []string
	if err := s.scanTokenKeys(ctx, func(key string) error {
		keys = append(keys, key)
		return nil
	}); err != nil {
		return false, err
	}
	if len(keys) == 0 {
		return false, nil
	}

	n, err := s.client.Do(ctx, s.client.B().Del().Key(keys...).Build()).AsInt64()
	if err != nil {
		return false, fmt.Errorf("failed to clear tokens: %w", err)
	}
	return n > 0, nil
}

func (s *Store) getRecord(ctx context.Context, key string) (*storage.TokenRecord, error) {
	data, err := s.client.Do(ctx, s.client.B().Get().Key(key).Build()).ToString()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get tokens: %w", err)
	}

	var record storage.TokenRecord
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token record: %w", err)
	}
	return &record, nil
}

// scanTokenKeys calls fn once per token key. SCAN may return a key more than once.
func (s *Store) scanTokenKeys(ctx context.Context, fn func(key string) error) error {
	seen := make(map[string]struct{})
	pattern := s.tokenKey("*")

	var cursor uint64
	for {
		entry, err := s.client.Do(ctx,
			s.client.B().Scan().Cursor(cursor).Match(pattern).Count(scanBatchSize).Build(),
		).AsScanEntry()
		if err != nil {
			return fmt.Errorf("failed to scan tokens: %w", err)
		}

		for _, key := range entry.Elements {
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			if err := fn(key); err != nil {
				return err
			}
		}

		cursor = entry.Cursor
		if cursor == 0 {
			return nil
		}
	}
}
