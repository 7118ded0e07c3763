package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	oauth "github.com/giantswarm/crm-oauth"
	"github.com/giantswarm/crm-oauth/internal/testutil"
	"github.com/giantswarm/crm-oauth/providers"
	"github.com/giantswarm/crm-oauth/security"
	"github.com/giantswarm/crm-oauth/storage"
	"github.com/giantswarm/crm-oauth/storage/memory"
)

const testBaseURL = "https://crm.example.com"

type fakeService struct {
	authorizationURL func(ctx context.Context, provider string) (*oauth.AuthURLResponse, error)
	handleCallback   func(ctx context.Context, provider, code, state string) (*storage.TokenRecord, error)
	refresh          func(ctx context.Context, provider, refreshToken string) (*storage.TokenRecord, error)
	fetchContacts    func(ctx context.Context, provider string, page int) (*oauth.ContactsResponse, error)
	clearTokens      func(ctx context.Context, provider string) (bool, error)
	status           func(ctx context.Context) ([]oauth.ProviderStatus, error)
}

func (f *fakeService) AuthorizationURL(ctx context.Context, provider string) (*oauth.AuthURLResponse, error) {
	return f.authorizationURL(ctx, provider)
}

func (f *fakeService) HandleCallback(ctx context.Context, provider, code, state string) (*storage.TokenRecord, error) {
	return f.handleCallback(ctx, provider, code, state)
}

func (f *fakeService) Refresh(ctx context.Context, provider, refreshToken string) (*storage.TokenRecord, error) {
	return f.refresh(ctx, provider, refreshToken)
}

func (f *fakeService) FetchContacts(ctx context.Context, provider string, page int) (*oauth.ContactsResponse, error) {
	return f.fetchContacts(ctx, provider, page)
}

func (f *fakeService) ClearTokens(ctx context.Context, provider string) (bool, error) {
	return f.clearTokens(ctx, provider)
}

func (f *fakeService) Status(ctx context.Context) ([]oauth.ProviderStatus, error) {
	return f.status(ctx)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(svc Service) *Server {
	return NewServer(svc, Config{BaseURL: testBaseURL, Logger: discardLogger()})
}

func do(t *testing.T, h http.Handler, method, target string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var body map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), "body: %s", rec.Body.String())
	}
	return rec, body
}

func TestServer_AuthorizationURL(t *testing.T) {
	var gotProvider string
	srv := newTestServer(&fakeService{
		authorizationURL: func(_ context.Context, provider string) (*oauth.AuthURLResponse, error) {
			gotProvider = provider
			return &oauth.AuthURLResponse{Provider: "zoho", AuthURL: "https://accounts.zoho.com/oauth/v2/auth?state=abc", State: "abc"}, nil
		},
	})

	rec, body := do(t, srv, http.MethodGet, "/integrations/authorization-url/Zoho")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Zoho", gotProvider)
	assert.Equal(t, "https://accounts.zoho.com/oauth/v2/auth?state=abc", body["auth_url"])
	assert.Equal(t, "zoho", body["crm"])
	assert.NotContains(t, body, "state", "state is only carried inside auth_url")

	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Contains(t, rec.Header().Get("Cache-Control"), "no-store")
	assert.NotEmpty(t, rec.Header().Get("Strict-Transport-Security"))
	assert.NotEmpty(t, rec.Header().Get(security.RequestIDHeader))
}

func TestServer_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "unsupported provider",
			err:        &oauth.Error{Code: oauth.ErrorCodeUnsupportedProvider, Description: "unsupported", Status: http.StatusBadRequest, Supported: []string{"capsule", "zoho"}},
			wantStatus: http.StatusBadRequest,
			wantCode:   oauth.ErrorCodeUnsupportedProvider,
		},
		{
			name:       "authorization required",
			err:        oauth.ErrAuthorizationRequired("authorize first"),
			wantStatus: http.StatusUnauthorized,
			wantCode:   oauth.ErrorCodeAuthorizationRequired,
		},
		{
			name:       "upstream failure",
			err:        &oauth.Error{Code: oauth.ErrorCodeContactsFetchFailed, Status: http.StatusBadGateway, UpstreamStatus: 500},
			wantStatus: http.StatusBadGateway,
			wantCode:   oauth.ErrorCodeContactsFetchFailed,
		},
		{
			name:       "unexpected error",
			err:        io.ErrUnexpectedEOF,
			wantStatus: http.StatusInternalServerError,
			wantCode:   oauth.ErrorCodeServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(&fakeService{
				fetchContacts: func(context.Context, string, int) (*oauth.ContactsResponse, error) {
					return nil, tt.err
				},
			})

			rec, body := do(t, srv, http.MethodGet, "/integrations/contacts")
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCode, body["error"])
			if tt.wantStatus == http.StatusUnauthorized {
				assert.Contains(t, rec.Header().Get("WWW-Authenticate"), tt.wantCode)
			}
			if tt.wantCode == oauth.ErrorCodeServerError {
				assert.Equal(t, "internal server error", body["error_description"])
			}
		})
	}
}

func TestServer_ContactsPage(t *testing.T) {
	var gotProvider string
	var gotPage int
	srv := newTestServer(&fakeService{
		fetchContacts: func(_ context.Context, provider string, page int) (*oauth.ContactsResponse, error) {
			gotProvider, gotPage = provider, page
			return &oauth.ContactsResponse{
				Status:     oauth.StatusSuccess,
				CRM:        "capsule",
				Contacts:   []providers.Contact{},
				Pagination: oauth.Pagination{Page: page},
			}, nil
		},
	})

	rec, body := do(t, srv, http.MethodGet, "/integrations/contacts")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "", gotProvider)
	assert.Equal(t, 1, gotPage, "page defaults to 1")
	assert.Equal(t, []any{}, body["contacts"])

	rec, _ = do(t, srv, http.MethodGet, "/integrations/contacts?crm=capsule&page=3")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "capsule", gotProvider)
	assert.Equal(t, 3, gotPage)

	rec, body = do(t, srv, http.MethodGet, "/integrations/contacts?page=two")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, oauth.ErrorCodeInvalidRequest, body["error"])
}

func TestServer_CallbackProviderError(t *testing.T) {
	called := false
	srv := newTestServer(&fakeService{
		handleCallback: func(context.Context, string, string, string) (*storage.TokenRecord, error) {
			called = true
			return nil, nil
		},
	})

	rec, body := do(t, srv, http.MethodGet, "/integrations/callback/zoho?error=access_denied&error_description=User+denied")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "access_denied", body["error"])
	assert.Equal(t, "User denied", body["error_description"])
	assert.False(t, called)
}

func TestServer_RefreshToken(t *testing.T) {
	var gotToken string
	srv := newTestServer(&fakeService{
		refresh: func(_ context.Context, provider, refreshToken string) (*storage.TokenRecord, error) {
			gotToken = refreshToken
			return &storage.TokenRecord{
				Token:  providers.Token{Provider: provider, AccessToken: "new-access"},
				Status: storage.StatusSuccess,
			}, nil
		},
	})

	rec, body := do(t, srv, http.MethodPost, "/integrations/refresh-token/zoho?refresh_token=r-1")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "r-1", gotToken)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, "new-access", body["access_token"])

	rec, _ = do(t, srv, http.MethodGet, "/integrations/refresh-token/zoho")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServer_ClearTokens(t *testing.T) {
	var calls []string
	srv := newTestServer(&fakeService{
		clearTokens: func(_ context.Context, provider string) (bool, error) {
			calls = append(calls, provider)
			return provider != "capsule", nil
		},
	})

	rec, body := do(t, srv, http.MethodDelete, "/integrations/tokens/zoho")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["removed"])
	assert.Equal(t, "zoho", body["crm"])

	rec, body = do(t, srv, http.MethodDelete, "/integrations/tokens/capsule")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["removed"])

	rec, body = do(t, srv, http.MethodDelete, "/integrations/tokens")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, body, "crm")

	assert.Equal(t, []string{"zoho", "capsule", ""}, calls)
}

func TestServer_Status(t *testing.T) {
	srv := newTestServer(&fakeService{
		status: func(context.Context) ([]oauth.ProviderStatus, error) {
			return nil, nil
		},
	})

	rec, body := do(t, srv, http.MethodGet, "/integrations/status")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{}, body["providers"])

	rec, body = do(t, srv, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestServer_RateLimit(t *testing.T) {
	srv := NewServer(&fakeService{
		status: func(context.Context) ([]oauth.ProviderStatus, error) {
			return []oauth.ProviderStatus{}, nil
		},
	}, Config{BaseURL: testBaseURL, RequestsPerSecond: 1, Burst: 2, Logger: discardLogger()})

	for i := 0; i < 2; i++ {
		rec, _ := do(t, srv, http.MethodGet, "/integrations/status")
		require.Equal(t, http.StatusOK, rec.Code, "request %d", i)
	}

	rec, body := do(t, srv, http.MethodGet, "/integrations/status")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, ErrorCodeRateLimitExceeded, body["error"])
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	// Health checks are not limited
	rec, _ = do(t, srv, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_RequestIDPropagation(t *testing.T) {
	srv := newTestServer(&fakeService{
		status: func(ctx context.Context) ([]oauth.ProviderStatus, error) {
			assert.Equal(t, "upstream-id-123", security.GetRequestID(ctx))
			return nil, nil
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/integrations/status", nil)
	req.Header.Set(security.RequestIDHeader, "upstream-id-123")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, "upstream-id-123", rec.Header().Get(security.RequestIDHeader))
}

// TestServer_EndToEnd drives the full flow against a fake CRM
func TestServer_EndToEnd(t *testing.T) {
	crm := testutil.NewFakeCRM(t)
	crm.QueueContacts(testutil.Response{Status: http.StatusOK, Body: testutil.ZohoContactsJSON})
	clock := testutil.NewMockTime(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	svc, err := oauth.New(&oauth.Config{
		BaseURL: testBaseURL,
		Providers: map[string]oauth.ProviderConfig{
			"zoho": {
				ClientID:     "zoho-client",
				ClientSecret: "zoho-secret",
				AuthorizeURL: crm.URL(testutil.AuthorizePath),
				TokenURL:     crm.URL(testutil.TokenPath),
				ContactsURL:  crm.URL(testutil.ContactsPath),
			},
		},
		Logger: discardLogger(),
		Now:    clock.Now,
	}, memory.New(storage.WithClock(clock.Now)))
	require.NoError(t, err)

	srv := newTestServer(svc)

	rec, body := do(t, srv, http.MethodGet, "/integrations/authorization-url/zoho")
	require.Equal(t, http.StatusOK, rec.Code)
	authURL, err := url.Parse(body["auth_url"].(string))
	require.NoError(t, err)
	state := authURL.Query().Get("state")
	require.NotEmpty(t, state)

	rec, body = do(t, srv, http.MethodGet, "/integrations/callback/zoho?code=c-1&state=wrong")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, oauth.ErrorCodeInvalidState, body["error"])
	assert.Equal(t, 0, crm.TokenCalls())

	rec, body = do(t, srv, http.MethodGet, "/integrations/callback/zoho?code=c-1&state="+state)
	require.Equal(t, http.StatusOK, rec.Code, "body: %v", body)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, "1000.access.first", body["access_token"])

	rec, body = do(t, srv, http.MethodGet, "/integrations/contacts")
	require.Equal(t, http.StatusOK, rec.Code, "body: %v", body)
	assert.Equal(t, "zoho", body["crm"])
	assert.Len(t, body["contacts"], 2)

	rec, body = do(t, srv, http.MethodDelete, "/integrations/tokens/zoho")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["removed"])

	rec, body = do(t, srv, http.MethodGet, "/integrations/contacts?crm=zoho")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, oauth.ErrorCodeAuthorizationRequired, body["error"])
}
