package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/giantswarm/crm-oauth/providers"
	"github.com/giantswarm/crm-oauth/storage"
)

const (
	// TokensFile holds one TokenRecord per provider
	TokensFile = "tokens.json"

	// StatesFile holds one OAuthState per provider
	StatesFile = "states.json"

	backendName = "file"

	dirPerm  = 0o700
	filePerm = 0o600
)

// Store persists tokens and states as two JSON documents in a directory.
// Every operation reads the document, modifies it and writes it back under a
// single mutex; writes go through a temporary file and a rename.
type Store struct {
	mu   sync.Mutex
	dir  string
	opts storage.Options
}

var _ storage.Store = (*Store)(nil)

// New creates a store rooted at dir, creating the directory if needed
func New(dir string, opts ...storage.Option) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("file storage directory is required")
	}
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &Store{dir: dir, opts: storage.NewOptions(opts...)}, nil
}

// Dir returns the directory the documents live in
func (s *Store) Dir() string {
	return s.dir
}

// SaveState stores value for provider, replacing any previous state
func (s *Store) SaveState(ctx context.Context, provider, value string) (err error) {
	_, done := s.opts.Track(ctx, backendName, storage.OpSaveState)
	defer func() { done(err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	states := map[string]*storage.OAuthState{}
	if err := s.read(StatesFile, &states); err != nil {
		return err
	}
	states[provider] = &storage.OAuthState{
		Value:     value,
		CreatedAt: s.opts.Now().UTC(),
	}
	return s.write(StatesFile, states)
}

// GetState returns the live state for provider
func (s *Store) GetState(ctx context.Context, provider string) (value string, err error) {
	_, done := s.opts.Track(ctx, backendName, storage.OpGetState)
	defer func() { done(err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	states := map[string]*storage.OAuthState{}
	if err := s.read(StatesFile, &states); err != nil {
		return "", err
	}
	state, ok := states[provider]
	if !ok || state == nil {
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
	defer s.mu.Unlock()

	tokens := map[string]*storage.TokenRecord{}
	if err := s.read(TokensFile, &tokens); err != nil {
		return nil, err
	}
	tokens[provider] = sealed
	if err := s.write(TokensFile, tokens); err != nil {
		return nil, err
	}
	return record, nil
}

// GetTokens returns the provider's record, or the most recently authenticated one
func (s *Store) GetTokens(ctx context.Context, provider string) (rec *storage.TokenRecord, err error) {
	_, done := s.opts.Track(ctx, backendName, storage.OpGetTokens)
	defer func() { done(err) }()

	s.mu.Lock()
	tokens := map[string]*storage.TokenRecord{}
	err = s.read(TokensFile, &tokens)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	var found *storage.TokenRecord
	if provider == "" {
		found = storage.LatestTokenRecord(tokens)
	} else if found = tokens[provider]; found != nil {
		found.Provider = provider
	}
	if found == nil {
		return nil, storage.ErrNotFound
	}
	return storage.OpenRecord(found, s.opts.Encryptor)
}

// ClearTokens deletes one record, or the whole tokens document when provider
// is empty. Clearing everything reports whether the document existed.
func (s *Store) ClearTokens(ctx context.Context, provider string) (removed bool, err error) {
	_, done := s.opts.Track(ctx, backendName, storage.OpClearTokens)
	defer func() { done(err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	if provider == "" {
		err := os.Remove(s.path(TokensFile))
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("failed to remove tokens: %w", err)
		}
		return true, nil
	}

	tokens := map[string]*storage.TokenRecord{}
	if err := s.read(TokensFile, &tokens); err != nil {
		return false, err
	}
	if _, ok := tokens[provider]; !ok {
		return false, nil
	}
	delete(tokens, provider)
	if err := s.write(TokensFile, tokens); err != nil {
		return false, err
	}
	return true, nil
}

// Close is a no-op; every write is flushed before it returns
func (s *Store) Close() error {
	return nil
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name)
}

// read decodes the named document into v. A missing document leaves v untouched.
func (s *Store) read(name string, v any) error {
	data, err := os.ReadFile(s.path(name))
	if errors.Is(err, fs.ErrNotExist) || (err == nil && len(data) == 0) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", name, err)
	}
	return nil
}

func (s *Store) write(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}
	return writeAtomic(s.path(name), data)
}

// writeAtomic replaces path with data so readers never observe a partial document
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		// no-op once the rename succeeded
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", filepath.Base(path), err)
	}
	if err := os.Chmod(tmpName, filePerm); err != nil {
		return fmt.Errorf("failed to set permissions on %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", filepath.Base(path), err)
	}
	return nil
}
