// Package httpapi exposes the CRM OAuth service over HTTP.
//
// Routes live under /integrations:
//
//	GET    /integrations/authorization-url/{crm}
//	GET    /integrations/callback/{crm}?code=..&state=..
//	POST   /integrations/refresh-token/{crm}[?refresh_token=..]
//	GET    /integrations/contacts[?crm=..][&page=N]
//	DELETE /integrations/tokens[/{crm}]
//	GET    /integrations/status
//
// Errors are rendered as oauth.ErrorResponse with the status suggested by
// oauth.Error.HTTPStatus.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	oauth "github.com/giantswarm/crm-oauth"
	"github.com/giantswarm/crm-oauth/security"
	"github.com/giantswarm/crm-oauth/storage"
)

const (
	// DefaultRequestTimeout bounds each API request
	DefaultRequestTimeout = 60 * time.Second

	// ErrorCodeRateLimitExceeded is returned with 429 responses
	ErrorCodeRateLimitExceeded = "rate_limit_exceeded"
)

// Service is the subset of oauth.Service served over HTTP
type Service interface {
	AuthorizationURL(ctx context.Context, provider string) (*oauth.AuthURLResponse, error)
	HandleCallback(ctx context.Context, provider, code, state string) (*storage.TokenRecord, error)
	Refresh(ctx context.Context, provider, refreshToken string) (*storage.TokenRecord, error)
	FetchContacts(ctx context.Context, provider string, page int) (*oauth.ContactsResponse, error)
	ClearTokens(ctx context.Context, provider string) (bool, error)
	Status(ctx context.Context) ([]oauth.ProviderStatus, error)
}

// Config configures the HTTP server
type Config struct {
	// BaseURL is the public URL of the service; HSTS is sent when it is https
	BaseURL string

	// RequestTimeout bounds each request (default: 60 seconds)
	RequestTimeout time.Duration

	// RequestsPerSecond limits requests per client IP. Zero disables.
	RequestsPerSecond float64
	Burst             int

	// TrustProxy reads the client IP from X-Forwarded-For / X-Real-IP
	TrustProxy        bool
	TrustedProxyCount int

	Logger *slog.Logger
}

// Server routes HTTP requests to a Service
type Server struct {
	service Service
	config  Config
	limiter *security.KeyedLimiter
	logger  *slog.Logger
	router  chi.Router
}

// NewServer creates the HTTP API for service
func NewServer(service Service, cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}

	s := &Server{
		service: service,
		config:  cfg,
		limiter: security.NewKeyedLimiter(cfg.RequestsPerSecond, cfg.Burst, logger),
		logger:  logger,
		router:  chi.NewRouter(),
	}
	s.setupRoutes()
	return s
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	s.router.Use(security.RequestIDMiddleware)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Recoverer)
	s.router.Use(security.HeadersMiddleware(s.config.BaseURL))

	s.router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	s.router.Route("/integrations", func(r chi.Router) {
		r.Use(middleware.Timeout(s.config.RequestTimeout))
		r.Use(s.rateLimitMiddleware)

		r.Get("/authorization-url/{crm}", s.handleAuthorizationURL)
		r.Get("/callback/{crm}", s.handleCallback)
		r.Post("/refresh-token/{crm}", s.handleRefresh)
		r.Get("/contacts", s.handleContacts)
		r.Delete("/tokens", s.handleClearTokens)
		r.Delete("/tokens/{crm}", s.handleClearTokens)
		r.Get("/status", s.handleStatus)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		// Query strings carry authorization codes and refresh tokens; only the path is logged
		s.logger.Info("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", security.GetRequestID(r.Context()))
	})
}

func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil {
			ip := security.GetClientIP(r, s.config.TrustProxy, s.config.TrustedProxyCount)
			if !s.limiter.Allow(ip) {
				s.logger.Warn("Rate limit exceeded", "client_ip", ip, "path", r.URL.Path)
				w.Header().Set("Retry-After", "1")
				s.writeJSON(w, http.StatusTooManyRequests, oauth.ErrorResponse{
					Error:            ErrorCodeRateLimitExceeded,
					ErrorDescription: "Rate limit exceeded. Please try again later.",
				})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleAuthorizationURL(w http.ResponseWriter, r *http.Request) {
	resp, err := s.service.AuthorizationURL(r.Context(), chi.URLParam(r, "crm"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	// The user denied consent or the provider failed before issuing a code
	if errParam := q.Get("error"); errParam != "" {
		s.logger.Warn("Provider returned error", "provider", chi.URLParam(r, "crm"), "error", errParam)
		s.writeJSON(w, http.StatusBadRequest, oauth.ErrorResponse{
			Error:            errParam,
			ErrorDescription: q.Get("error_description"),
		})
		return
	}

	rec, err := s.service.HandleCallback(r.Context(), chi.URLParam(r, "crm"), q.Get("code"), q.Get("state"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.writeError(w, r, oauth.ErrInvalidRequest("failed to parse request"))
		return
	}

	rec, err := s.service.Refresh(r.Context(), chi.URLParam(r, "crm"), r.Form.Get("refresh_token"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleContacts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	page := 1
	if raw := q.Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			s.writeError(w, r, oauth.ErrInvalidRequest("invalid page number"))
			return
		}
		page = n
	}

	resp, err := s.service.FetchContacts(r.Context(), q.Get("crm"), page)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type clearTokensResponse struct {
	Status  string `json:"status"`
	CRM     string `json:"crm,omitempty"`
	Removed bool   `json:"removed"`
}

func (s *Server) handleClearTokens(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "crm")

	removed, err := s.service.ClearTokens(r.Context(), provider)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, clearTokensResponse{
		Status:  oauth.StatusSuccess,
		CRM:     provider,
		Removed: removed,
	})
}

type statusResponse struct {
	Providers []oauth.ProviderStatus `json:"providers"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	statuses, err := s.service.Status(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if statuses == nil {
		statuses = []oauth.ProviderStatus{}
	}
	s.writeJSON(w, http.StatusOK, statusResponse{Providers: statuses})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("Failed to encode JSON response", "error", err)
	}
}

// writeError renders err. Anything that is not an *oauth.Error is reported
// as a server error without exposing its message.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var e *oauth.Error
	if !errors.As(err, &e) {
		s.logger.Error("Unexpected error", "path", r.URL.Path, "error", err)
		e = oauth.NewError(oauth.ErrorCodeServerError, "internal server error", http.StatusInternalServerError)
	}

	status := e.HTTPStatus()
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", "path", r.URL.Path, "code", e.Code, "provider", e.Provider, "error", err)
	} else {
		s.logger.Debug("Request rejected", "path", r.URL.Path, "code", e.Code, "provider", e.Provider)
	}

	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer error="`+e.Code+`"`)
	}
	s.writeJSON(w, status, oauth.NewErrorResponse(e))
}
