package oauth

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/giantswarm/crm-oauth/instrumentation"
	"github.com/giantswarm/crm-oauth/providers"
	"github.com/giantswarm/crm-oauth/security"
	"github.com/giantswarm/crm-oauth/storage"
)

// ContactsExporter receives every successfully fetched page of contacts
type ContactsExporter interface {
	ExportContacts(ctx context.Context, provider string, contacts []providers.Contact) (string, error)
}

// Service implements the CRM OAuth operations. It coordinates the provider
// registry with the state and token stores and owns no state of its own.
type Service struct {
	config   *Config
	registry *providers.Registry
	store    storage.Store
	exporter ContactsExporter
	auditor  *security.Auditor
	metrics  *instrumentation.Metrics
	tracer   trace.Tracer
	logger   *slog.Logger
}

// Option configures a Service
type Option func(*Service)

// WithRegistry uses registry instead of building one from Config.Providers
func WithRegistry(registry *providers.Registry) Option {
	return func(s *Service) {
		s.registry = registry
	}
}

// WithExporter exports every fetched page of contacts
func WithExporter(exporter ContactsExporter) Option {
	return func(s *Service) {
		s.exporter = exporter
	}
}

// New creates a Service. The configuration is validated and, unless
// WithRegistry is given, every enabled provider is constructed up front.
func New(cfg *Config, store storage.Store, opts ...Option) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, providers.NewConfigurationError("", "store is required", nil)
	}

	s := &Service{
		config:  cfg,
		store:   store,
		auditor: security.NewAuditor(cfg.logger(), cfg.Security.EnableAuditLogging),
		metrics: cfg.Instrumentation.Metrics(),
		tracer:  cfg.Instrumentation.Tracer("service"),
		logger:  cfg.logger(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.registry == nil {
		registry, err := NewRegistry(cfg)
		if err != nil {
			return nil, err
		}
		s.registry = registry
	}

	s.logger.Info("CRM OAuth service initialized", "providers", s.registry.Names())
	return s, nil
}

// Providers returns the names of the registered CRMs
func (s *Service) Providers() []string {
	return s.registry.Names()
}

// startSpan starts a service span tagged with the provider name
func (s *Service) startSpan(ctx context.Context, operation, provider string) (context.Context, trace.Span) {
	ctx, span := s.tracer.Start(ctx, "service."+operation)
	if provider != "" {
		span.SetAttributes(attribute.String(instrumentation.AttrProviderName, provider))
	}
	return ctx, span
}

// endSpan records err on span and ends it
func endSpan(span trace.Span, err error) {
	if err != nil {
		var e *Error
		if errors.As(err, &e) {
			span.SetAttributes(attribute.String(instrumentation.AttrErrorKind, e.Code))
		}
		instrumentation.RecordError(span, err)
	} else {
		instrumentation.SetSpanSuccess(span)
	}
	span.End()
}

// provider resolves name through the registry
func (s *Service) provider(ctx context.Context, name string) (providers.Provider, error) {
	p, err := s.registry.Get(name)
	if err != nil {
		return nil, translateError(ctx, name, err)
	}
	return p, nil
}

// AuthorizationURL generates and persists a fresh state for provider and
// returns the consent URL carrying it. Each call replaces the previous state.
func (s *Service) AuthorizationURL(ctx context.Context, provider string) (resp *AuthURLResponse, err error) {
	ctx, span := s.startSpan(ctx, "authorization_url", provider)
	defer func() { endSpan(span, err) }()

	p, err := s.provider(ctx, provider)
	if err != nil {
		return nil, err
	}
	name := p.Name()

	state, err := security.GenerateState()
	if err != nil {
		return nil, translateError(ctx, name, err)
	}
	if err := s.store.SaveState(ctx, name, state); err != nil {
		return nil, storageError(name, "save state", err)
	}

	s.auditor.LogAuthorizationStarted(name, state)
	s.metrics.RecordAuthorizationStarted(ctx, name)

	return &AuthURLResponse{
		Provider: name,
		AuthURL:  p.AuthorizationURL(state),
		State:    state,
	}, nil
}

// HandleCallback completes the authorization code flow: the state is checked
// against the stored one before the code is exchanged, and the resulting
// tokens are persisted.
func (s *Service) HandleCallback(ctx context.Context, provider, code, state string) (rec *storage.TokenRecord, err error) {
	ctx, span := s.startSpan(ctx, "callback", provider)
	defer func() { endSpan(span, err) }()

	p, err := s.provider(ctx, provider)
	if err != nil {
		return nil, err
	}
	name := p.Name()

	if strings.TrimSpace(code) == "" {
		e := ErrInvalidRequest("authorization code is required")
		e.Provider = name
		return nil, e
	}

	if err := s.verifyState(ctx, name, state); err != nil {
		s.metrics.RecordCallbackProcessed(ctx, name, err)
		return nil, err
	}

	span.SetAttributes(attribute.String(instrumentation.AttrGrantType, "authorization_code"))
	token, err := p.ExchangeCode(ctx, code)
	if err != nil {
		var pe *providers.Error
		if errors.As(err, &pe) {
			s.auditor.LogTokenExchangeFailed(name, pe.StatusCode)
		}
		s.metrics.RecordCallbackProcessed(ctx, name, err)
		return nil, translateError(ctx, name, err)
	}

	rec, err = s.store.SaveTokens(ctx, name, token)
	if err != nil {
		s.metrics.RecordCallbackProcessed(ctx, name, err)
		return nil, storageError(name, "save tokens", err)
	}

	s.auditor.LogTokenIssued(name, rec.RefreshToken != "")
	s.metrics.RecordCallbackProcessed(ctx, name, nil)
	s.logger.Info("Authorization completed", "provider", name, "expires_at", rec.ExpiresAt)
	return rec, nil
}

// verifyState checks state against the stored value for provider. A missing
// state is rejected unless AllowInsecureCallbackWithoutState is set.
func (s *Service) verifyState(ctx context.Context, provider, state string) error {
	if state == "" {
		if s.config.Security.AllowInsecureCallbackWithoutState {
			s.logger.Warn("Accepting callback without state", "provider", provider)
			return nil
		}
		return s.invalidState(ctx, provider, "state parameter is missing")
	}

	stored, err := s.store.GetState(ctx, provider)
	if errors.Is(err, storage.ErrNotFound) {
		return s.invalidState(ctx, provider, "no pending authorization or state expired")
	}
	if err != nil {
		return storageError(provider, "load state", err)
	}

	if subtle.ConstantTimeCompare([]byte(stored), []byte(state)) != 1 {
		return s.invalidState(ctx, provider, "state parameter mismatch")
	}
	return nil
}

func (s *Service) invalidState(ctx context.Context, provider, reason string) *Error {
	s.auditor.LogInvalidState(provider, reason)
	s.metrics.RecordInvalidState(ctx, provider)
	return translateError(ctx, provider, providers.NewInvalidStateError(provider, reason))
}

// Refresh exchanges a refresh token for a new access token and persists the
// result. An empty refreshToken uses the stored one.
func (s *Service) Refresh(ctx context.Context, provider, refreshToken string) (rec *storage.TokenRecord, err error) {
	ctx, span := s.startSpan(ctx, "refresh", provider)
	defer func() { endSpan(span, err) }()

	p, err := s.provider(ctx, provider)
	if err != nil {
		return nil, err
	}
	name := p.Name()

	if refreshToken == "" {
		stored, err := s.store.GetTokens(ctx, name)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, translateError(ctx, name, err)
		}
		if err != nil {
			return nil, storageError(name, "load tokens", err)
		}
		if stored.RefreshToken == "" {
			e := ErrAuthorizationRequired("no refresh token stored; authorize again")
			e.Provider = name
			return nil, e
		}
		refreshToken = stored.RefreshToken
	}

	span.SetAttributes(attribute.String(instrumentation.AttrGrantType, "refresh_token"))
	token, err := p.RefreshToken(ctx, refreshToken)
	s.metrics.RecordTokenRefreshed(ctx, name, err)
	if err != nil {
		return nil, translateError(ctx, name, err)
	}

	rec, err = s.store.SaveTokens(ctx, name, token)
	if err != nil {
		return nil, storageError(name, "save tokens", err)
	}

	s.auditor.LogTokenRefreshed(name, false)
	return rec, nil
}

// FetchContacts returns one normalized page of contacts. An empty provider
// selects the most recently authenticated one. A rejected access token is
// refreshed once; the refreshed token is persisted before the retry.
func (s *Service) FetchContacts(ctx context.Context, provider string, page int) (resp *ContactsResponse, err error) {
	ctx, span := s.startSpan(ctx, "fetch_contacts", provider)
	span.SetAttributes(attribute.Int(instrumentation.AttrPage, page))
	defer func() { endSpan(span, err) }()

	if page < 1 {
		return nil, ErrInvalidRequest("page must be a positive integer")
	}

	var p providers.Provider
	if provider != "" {
		if p, err = s.provider(ctx, provider); err != nil {
			return nil, err
		}
		provider = p.Name()
	}

	stored, err := s.store.GetTokens(ctx, provider)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, translateError(ctx, provider, err)
	}
	if err != nil {
		return nil, storageError(provider, "load tokens", err)
	}

	if p == nil {
		if p, err = s.provider(ctx, stored.Provider); err != nil {
			return nil, err
		}
		provider = p.Name()
		span.SetAttributes(attribute.String(instrumentation.AttrProviderName, provider))
	}

	result, err := p.GetContacts(ctx, providers.ContactsRequest{
		AccessToken:  stored.AccessToken,
		RefreshToken: stored.RefreshToken,
		Page:         page,
		OnRefresh: func(ctx context.Context, token *providers.Token) error {
			s.metrics.RecordTokenRefreshed(ctx, provider, nil)
			if _, err := s.store.SaveTokens(ctx, provider, token); err != nil {
				return storageError(provider, "save refreshed tokens", err)
			}
			s.auditor.LogTokenRefreshed(provider, true)
			return nil
		},
	})
	if err != nil {
		if providers.IsKind(err, providers.KindTokenRefreshFailed) {
			s.metrics.RecordTokenRefreshed(ctx, provider, err)
		}
		return nil, translateError(ctx, provider, err)
	}

	contacts := result.Contacts
	if contacts == nil {
		contacts = []providers.Contact{}
	}
	s.metrics.RecordContactsFetched(ctx, provider, len(contacts))
	span.SetAttributes(
		attribute.Int(instrumentation.AttrCount, len(contacts)),
		attribute.Bool(instrumentation.AttrRetried, result.RefreshedToken != nil),
	)

	resp = &ContactsResponse{
		Status:         StatusSuccess,
		CRM:            provider,
		Contacts:       contacts,
		Pagination:     Pagination{Page: result.Page, Total: result.Total},
		TokenRefreshed: result.RefreshedToken != nil,
	}

	if s.exporter != nil {
		path, err := s.exporter.ExportContacts(ctx, provider, contacts)
		if err != nil {
			s.logger.Warn("Failed to export contacts", "provider", provider, "error", err)
		} else {
			resp.ExportPath = path
		}
	}
	return resp, nil
}

// ClearTokens deletes the stored tokens of provider, or of every provider
// when provider is empty. It reports whether anything was removed.
func (s *Service) ClearTokens(ctx context.Context, provider string) (removed bool, err error) {
	ctx, span := s.startSpan(ctx, "clear_tokens", provider)
	defer func() { endSpan(span, err) }()

	if provider != "" {
		p, err := s.provider(ctx, provider)
		if err != nil {
			return false, err
		}
		provider = p.Name()
	}

	removed, err = s.store.ClearTokens(ctx, provider)
	if err != nil {
		return false, storageError(provider, "clear tokens", err)
	}

	s.auditor.LogTokensCleared(provider, removed)
	if removed {
		s.metrics.RecordTokensCleared(ctx, provider)
	}
	return removed, nil
}

// Status reports the stored credentials of every registered provider
func (s *Service) Status(ctx context.Context) (statuses []ProviderStatus, err error) {
	ctx, span := s.startSpan(ctx, "status", "")
	defer func() { endSpan(span, err) }()

	now := s.config.now()
	for _, name := range s.registry.Names() {
		st := ProviderStatus{Provider: name}

		rec, err := s.store.GetTokens(ctx, name)
		switch {
		case errors.Is(err, storage.ErrNotFound):
		case err != nil:
			return nil, storageError(name, "load tokens", err)
		default:
			st.Authorized = true
			st.Expired = rec.Expired(now)
			st.HasRefreshToken = rec.RefreshToken != ""
			st.ExpiresAt = rec.ExpiresAt
			st.LastAuthenticated = rec.LastAuthenticated
		}
		statuses = append(statuses, st)
	}
	return statuses, nil
}
