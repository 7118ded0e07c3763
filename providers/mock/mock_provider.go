// Package mock provides a configurable implementation of the Provider interface for testing.
package mock

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/giantswarm/crm-oauth/providers"
)

var _ providers.Provider = (*MockProvider)(nil)

// MockProvider is a mock implementation of the Provider interface for testing.
// Each method delegates to the matching Func field and counts the call.
type MockProvider struct {
	// ProviderName is returned by Name()
	ProviderName string

	// AuthorizationURLFunc is called when AuthorizationURL() is invoked
	AuthorizationURLFunc func(state string) string

	// ExchangeCodeFunc is called when ExchangeCode() is invoked
	ExchangeCodeFunc func(ctx context.Context, code string) (*providers.Token, error)

	// RefreshTokenFunc is called when RefreshToken() is invoked
	RefreshTokenFunc func(ctx context.Context, refreshToken string) (*providers.Token, error)

	// GetContactsFunc is called when GetContacts() is invoked
	GetContactsFunc func(ctx context.Context, req providers.ContactsRequest) (*providers.ContactsPage, error)

	// CallCounts tracks how many times each method was called
	CallCounts map[string]int

	// mu protects CallCounts from concurrent access
	mu sync.RWMutex
}

// NewMockProvider creates a mock provider named name with default implementations
func NewMockProvider(name string) *MockProvider {
	return &MockProvider{
		ProviderName: name,
		CallCounts:   make(map[string]int),
		AuthorizationURLFunc: func(state string) string {
			return fmt.Sprintf("https://%s.example.com/oauth/authorize?state=%s", name, url.QueryEscape(state))
		},
		ExchangeCodeFunc: func(ctx context.Context, code string) (*providers.Token, error) {
			return &providers.Token{
				Provider:     name,
				AccessToken:  "mock-access-token",
				RefreshToken: "mock-refresh-token",
				TokenType:    "Bearer",
				ExpiresIn:    3600,
			}, nil
		},
		RefreshTokenFunc: func(ctx context.Context, refreshToken string) (*providers.Token, error) {
			return &providers.Token{
				Provider:     name,
				AccessToken:  "new-mock-access-token",
				RefreshToken: refreshToken,
				TokenType:    "Bearer",
				ExpiresIn:    3600,
				ExpiresAt:    time.Now().Add(time.Hour),
			}, nil
		},
		GetContactsFunc: func(ctx context.Context, req providers.ContactsRequest) (*providers.ContactsPage, error) {
			return &providers.ContactsPage{
				Contacts: []providers.Contact{{ID: "1", FirstName: "Mock", LastName: "Contact", Name: "Mock Contact"}},
				Page:     max(req.Page, 1),
				Total:    1,
			}, nil
		},
	}
}

func (m *MockProvider) count(method string) {
	m.mu.Lock()
	if m.CallCounts == nil {
		m.CallCounts = make(map[string]int)
	}
	m.CallCounts[method]++
	m.mu.Unlock()
}

// Name returns the provider name
func (m *MockProvider) Name() string {
	if m.ProviderName == "" {
		return "mock"
	}
	return m.ProviderName
}

// AuthorizationURL returns the configured authorization URL
func (m *MockProvider) AuthorizationURL(state string) string {
	m.count("AuthorizationURL")
	if m.AuthorizationURLFunc == nil {
		return "https://mock.example.com/authorize?state=" + state
	}
	return m.AuthorizationURLFunc(state)
}

// ExchangeCode exchanges an authorization code for tokens
func (m *MockProvider) ExchangeCode(ctx context.Context, code string) (*providers.Token, error) {
	m.count("ExchangeCode")
	if m.ExchangeCodeFunc == nil {
		return nil, fmt.Errorf("ExchangeCodeFunc not configured")
	}
	return m.ExchangeCodeFunc(ctx, code)
}

// RefreshToken refreshes an expired token using a refresh token
func (m *MockProvider) RefreshToken(ctx context.Context, refreshToken string) (*providers.Token, error) {
	m.count("RefreshToken")
	if m.RefreshTokenFunc == nil {
		return nil, fmt.Errorf("RefreshTokenFunc not configured")
	}
	return m.RefreshTokenFunc(ctx, refreshToken)
}

// GetContacts returns the configured contacts page
func (m *MockProvider) GetContacts(ctx context.Context, req providers.ContactsRequest) (*providers.ContactsPage, error) {
	m.count("GetContacts")
	if m.GetContactsFunc == nil {
		return nil, fmt.Errorf("GetContactsFunc not configured")
	}
	return m.GetContactsFunc(ctx, req)
}

// NormalizeContacts maps canonical field names only
func (m *MockProvider) NormalizeContacts(raw any) []providers.Contact {
	m.count("NormalizeContacts")
	return providers.NormalizeRecords(raw, func(r map[string]any) providers.Contact {
		return providers.Contact{
			ID:        providers.StringField(r, "id"),
			FirstName: providers.StringField(r, "first_name"),
			LastName:  providers.StringField(r, "last_name"),
			Name:      providers.StringField(r, "name"),
			Email:     providers.StringField(r, "email"),
			Phone:     providers.StringField(r, "phone"),
		}
	}, "data")
}

// ResetCallCounts resets all call counters
func (m *MockProvider) ResetCallCounts() {
	m.mu.Lock()
	m.CallCounts = make(map[string]int)
	m.mu.Unlock()
}

// GetCallCount returns the number of times a method was called
func (m *MockProvider) GetCallCount(method string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.CallCounts[method]
}
