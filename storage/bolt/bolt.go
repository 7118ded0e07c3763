package bolt

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"github.com/giantswarm/crm-oauth/providers"
	"github.com/giantswarm/crm-oauth/storage"
)

const (
	// DefaultFileName is the database file created inside the data directory
	DefaultFileName = "crm-oauth.db"

	// TokensBucket holds one JSON TokenRecord per provider
	TokensBucket = "tokens"

	// StatesBucket holds one JSON OAuthState per provider
	StatesBucket = "states"

	backendName = "bolt"

	openTimeout = 5 * time.Second
)

// Store is a bbolt-backed implementation of storage.Store.
// Each operation runs in a single bbolt transaction.
type Store struct {
	db   *bbolt.DB
	opts storage.Options
}

var _ storage.Store = (*Store)(nil)

// Open opens (or creates) the database at path and ensures the buckets exist
func Open(path string, opts ...storage.Option) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("bolt database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{TokensBucket, StatesBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, opts: storage.NewOptions(opts...)}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path
func (s *Store) Path() string {
	return s.db.Path()
}

// SaveState stores value for provider, replacing any previous state
func (s *Store) SaveState(ctx context.Context, provider, value string) (err error) {
	_, done := s.opts.Track(ctx, backendName, storage.OpSaveState)
	defer func() { done(err) }()

	data, err := json.Marshal(&storage.OAuthState{
		Value:     value,
		CreatedAt: s.opts.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(StatesBucket)).Put([]byte(provider), data)
	})
}

// GetState returns the live state for provider
func (s *Store) GetState(ctx context.Context, provider string) (value string, err error) {
	_, done := s.opts.Track(ctx, backendName, storage.OpGetState)
	defer func() { done(err) }()

	var state storage.OAuthState
	err = s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(StatesBucket)).Get([]byte(provider))
		if data == nil {
			return storage.ErrNotFound
		}
		return json.Unmarshal(data, &state)
	})
	if err != nil {
		return "", err
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
	data, err := json.Marshal(sealed)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal token record: %w", err)
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(TokensBucket)).Put([]byte(provider), data)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save tokens: %w", err)
	}
	return record, nil
}

// GetTokens returns the provider's record, or the most recently authenticated one
func (s *Store) GetTokens(ctx context.Context, provider string) (rec *storage.TokenRecord, err error) {
	_, done := s.opts.Track(ctx, backendName, storage.OpGetTokens)
	defer func() { done(err) }()

	var found *storage.TokenRecord
	err = s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(TokensBucket))

		if provider != "" {
			data := bucket.Get([]byte(provider))
			if data == nil {
				return nil
			}
			found = &storage.TokenRecord{}
			if err := json.Unmarshal(data, found); err != nil {
				return fmt.Errorf("failed to unmarshal token record: %w", err)
			}
			found.Provider = provider
			return nil
		}

		records := make(map[string]*storage.TokenRecord)
		err := bucket.ForEach(func(k, v []byte) error {
			var r storage.TokenRecord
			if err := json.Unmarshal(v, &r); err != nil {
				s.opts.Logger.Warn("Skipping unreadable token record", "provider", string(k), "error", err)
				return nil
			}
			records[string(k)] = &r
			return nil
		})
		found = storage.LatestTokenRecord(records)
		return err
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, storage.ErrNotFound
	}
	return storage.OpenRecord(found, s.opts.Encryptor)
}

// ClearTokens deletes one record, or all of them when provider is empty
func (s *Store) ClearTokens(ctx context.Context, provider string) (removed bool, err error) {
	_, done := s.opts.Track(ctx, backendName, storage.OpClearTokens)
	defer func() { done(err) }()

	err = s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(TokensBucket))

		if provider != "" {
			if bucket.Get([]byte(provider)) == nil {
				return nil
			}
			removed = true
			return bucket.Delete([]byte(provider))
		}

		k, _ := bucket.Cursor().First()
		removed = k != nil
		if err := tx.DeleteBucket([]byte(TokensBucket)); err != nil {
			return err
		}
		_, err := tx.CreateBucket([]byte(TokensBucket))
		return err
	})
	if err != nil {
		return false, fmt.Errorf("failed to clear tokens: %w", err)
	}
	return removed, nil
}
