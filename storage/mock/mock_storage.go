// Package mock provides a storage.Store whose behaviour can be overridden per method.
package mock

import (
	"context"
	"sync"

	"github.com/giantswarm/crm-oauth/providers"
	"github.com/giantswarm/crm-oauth/storage"
	"github.com/giantswarm/crm-oauth/storage/memory"
)

// MockStore delegates to an in-memory store unless a Func field is replaced
type MockStore struct {
	mu sync.Mutex

	SaveStateFunc   func(ctx context.Context, provider, value string) error
	GetStateFunc    func(ctx context.Context, provider string) (string, error)
	SaveTokensFunc  func(ctx context.Context, provider string, token *providers.Token) (*storage.TokenRecord, error)
	GetTokensFunc   func(ctx context.Context, provider string) (*storage.TokenRecord, error)
	ClearTokensFunc func(ctx context.Context, provider string) (bool, error)
	CloseFunc       func() error

	CallCounts map[string]int
}

var _ storage.Store = (*MockStore)(nil)

// NewMockStore creates a mock backed by memory.New(opts...)
func NewMockStore(opts ...storage.Option) *MockStore {
	backing := memory.New(opts...)
	return &MockStore{
		SaveStateFunc:   backing.SaveState,
		GetStateFunc:    backing.GetState,
		SaveTokensFunc:  backing.SaveTokens,
		GetTokensFunc:   backing.GetTokens,
		ClearTokensFunc: backing.ClearTokens,
		CloseFunc:       backing.Close,
		CallCounts:      make(map[string]int),
	}
}

func (m *MockStore) count(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCounts[method]++
}

// SaveState records the call and delegates to SaveStateFunc
func (m *MockStore) SaveState(ctx context.Context, provider, value string) error {
	m.count("SaveState")
	return m.SaveStateFunc(ctx, provider, value)
}

// GetState records the call and delegates to GetStateFunc
func (m *MockStore) GetState(ctx context.Context, provider string) (string, error) {
	m.count("GetState")
	return m.GetStateFunc(ctx, provider)
}

// SaveTokens records the call and delegates to SaveTokensFunc
func (m *MockStore) SaveTokens(ctx context.Context, provider string, token *providers.Token) (*storage.TokenRecord, error) {
	m.count("SaveTokens")
	return m.SaveTokensFunc(ctx, provider, token)
}

// GetTokens records the call and delegates to GetTokensFunc
func (m *MockStore) GetTokens(ctx context.Context, provider string) (*storage.TokenRecord, error) {
	m.count("GetTokens")
	return m.GetTokensFunc(ctx, provider)
}

// ClearTokens records the call and delegates to ClearTokensFunc
func (m *MockStore) ClearTokens(ctx context.Context, provider string) (bool, error) {
	m.count("ClearTokens")
	return m.ClearTokensFunc(ctx, provider)
}

// Close records the call and delegates to CloseFunc
func (m *MockStore) Close() error {
	m.count("Close")
	return m.CloseFunc()
}

// GetCallCount returns how many times method was called
func (m *MockStore) GetCallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CallCounts[method]
}

// ResetCallCounts clears all call counters
func (m *MockStore) ResetCallCounts() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCounts = make(map[string]int)
}
