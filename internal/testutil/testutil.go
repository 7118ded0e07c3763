package testutil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"
)

// MockTime provides a controllable time source for deterministic testing
type MockTime struct {
	mu  sync.Mutex
	now time.Time
}

// NewMockTime creates a new mock time provider
func NewMockTime(t time.Time) *MockTime {
	return &MockTime{now: t}
}

// Now returns the current mock time
func (m *MockTime) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the mock time forward by the given duration
func (m *MockTime) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}

// Set sets the mock time to a specific value
func (m *MockTime) Set(t time.Time) {
	m.mu.Lock()
	m.now = t
	m.mu.Unlock()
}

// NewMockHTTPServer creates a test HTTP server with the given handler
func NewMockHTTPServer(handler http.HandlerFunc) *httptest.Server {
	return httptest.NewServer(handler)
}

// Response is a canned HTTP response
type Response struct {
	Status int
	Body   string
}

// Paths served by FakeCRM
const (
	AuthorizePath = "/oauth/authorize"
	TokenPath     = "/oauth/token"
	ContactsPath  = "/contacts"
)

// FakeCRM is an in-process CRM with a token endpoint and a contacts endpoint.
// Responses are queued per endpoint and consumed in order; the last one repeats.
// Every call is counted so tests can assert how many requests were made.
type FakeCRM struct {
	Server *httptest.Server

	mu             sync.Mutex
	tokenQueue     []Response
	contactsQueue  []Response
	tokenForms     []url.Values
	contactsAuth   []string
	contactsPages  []string
	tokenCalls     int
	contactsCalls  int
	authorizeCalls int
}

// NewFakeCRM starts a FakeCRM that is closed when the test ends
func NewFakeCRM(t testing.TB) *FakeCRM {
	t.Helper()

	f := &FakeCRM{
		tokenQueue:    []Response{{Status: http.StatusOK, Body: TokenJSON}},
		contactsQueue: []Response{{Status: http.StatusOK, Body: `[]`}},
	}

	mux := http.NewServeMux()
	mux.HandleFunc(AuthorizePath, func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.authorizeCalls++
		f.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc(TokenPath, f.handleToken)
	mux.HandleFunc(ContactsPath, f.handleContacts)

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Server.Close)
	return f
}

// URL returns the absolute URL of path on the fake server
func (f *FakeCRM) URL(path string) string {
	return f.Server.URL + path
}

// QueueToken replaces the token endpoint responses
func (f *FakeCRM) QueueToken(responses ...Response) {
	f.mu.Lock()
	f.tokenQueue = responses
	f.mu.Unlock()
}

// QueueContacts replaces the contacts endpoint responses
func (f *FakeCRM) QueueContacts(responses ...Response) {
	f.mu.Lock()
	f.contactsQueue = responses
	f.mu.Unlock()
}

// TokenCalls returns the number of token endpoint requests
func (f *FakeCRM) TokenCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tokenCalls
}

// ContactsCalls returns the number of contacts endpoint requests
func (f *FakeCRM) ContactsCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.contactsCalls
}

// TokenForms returns the form bodies posted to the token endpoint
func (f *FakeCRM) TokenForms() []url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]url.Values(nil), f.tokenForms...)
}

// ContactsAuthHeaders returns the Authorization header of every contacts request
func (f *FakeCRM) ContactsAuthHeaders() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.contactsAuth...)
}

// ContactsPages returns the page query parameter of every contacts request
func (f *FakeCRM) ContactsPages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.contactsPages...)
}

func next(queue []Response, call int) Response {
	if len(queue) == 0 {
		return Response{Status: http.StatusInternalServerError}
	}
	if call >= len(queue) {
		return queue[len(queue)-1]
	}
	return queue[call]
}

func (f *FakeCRM) handleToken(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()

	f.mu.Lock()
	resp := next(f.tokenQueue, f.tokenCalls)
	f.tokenCalls++
	f.tokenForms = append(f.tokenForms, r.PostForm)
	f.mu.Unlock()

	writeJSON(w, resp)
}

func (f *FakeCRM) handleContacts(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	resp := next(f.contactsQueue, f.contactsCalls)
	f.contactsCalls++
	f.contactsAuth = append(f.contactsAuth, r.Header.Get("Authorization"))
	f.contactsPages = append(f.contactsPages, r.URL.Query().Get("page"))
	f.mu.Unlock()

	writeJSON(w, resp)
}

func writeJSON(w http.ResponseWriter, resp Response) {
	if resp.Body != "" {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(resp.Status)
	if resp.Body != "" {
		_, _ = io.WriteString(w, resp.Body)
	}
}
