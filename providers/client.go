package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/oauth2"

	"github.com/giantswarm/crm-oauth/instrumentation"
	"github.com/giantswarm/crm-oauth/internal/util"
	"github.com/giantswarm/crm-oauth/security"
)

const (
	// DefaultTimeout bounds every outbound provider call
	DefaultTimeout = 30 * time.Second

	// DefaultExpiresIn is assumed when a token response omits expires_in
	DefaultExpiresIn = 3600

	// maxResponseBodySize caps how much of a contacts response is read
	maxResponseBodySize = 10 << 20
)

// Provider call operations, used for spans and metrics
const (
	OperationExchange = "exchange_code"
	OperationRefresh  = "refresh_token"
	OperationContacts = "get_contacts"
)

// PageParser turns a decoded contacts payload into normalized contacts and the
// total reported by the provider (or the item count when it reports none).
type PageParser func(payload any) (contacts []Contact, total int)

// ClientConfig configures the shared OAuth client used by provider implementations
type ClientConfig struct {
	// Name is the provider identifier used for tagging tokens and errors
	Name string

	ClientID     string
	ClientSecret string
	AuthorizeURL string
	TokenURL     string
	RedirectURL  string

	// ContactsURL is the contacts endpoint; the page is added as ?page=N
	ContactsURL string

	// Scope is sent verbatim in the authorization URL
	Scope string

	// AuthParams are extra query parameters added to the authorization URL
	AuthParams map[string]string

	// AuthScheme prefixes the access token in the Authorization header
	// (e.g., "Bearer", "Zoho-oauthtoken")
	AuthScheme string

	// HTTPClient is used for all outbound calls (default: 30s timeout client)
	HTTPClient *http.Client

	// Timeout is applied when the caller's context has no deadline (default: 30s)
	Timeout time.Duration

	// Limiter throttles outbound calls per provider; nil disables throttling
	Limiter *security.KeyedLimiter

	Instrumentation *instrumentation.Instrumentation
	Logger          *slog.Logger

	// Now is the clock used to derive expiry timestamps (default: time.Now)
	Now func() time.Time
}

// Client implements the OAuth and contacts plumbing shared by all providers.
// Provider implementations embed it and supply a PageParser.
type Client struct {
	name        string
	oauth       *oauth2.Config
	contactsURL string
	authParams  map[string]string
	authScheme  string
	httpClient  *http.Client
	timeout     time.Duration
	limiter     *security.KeyedLimiter
	inst        *instrumentation.Instrumentation
	logger      *slog.Logger
	now         func() time.Time
}

// NewClient validates cfg and creates a Client
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Name == "" {
		return nil, NewConfigurationError("", "provider name is required", nil)
	}
	if cfg.ClientID == "" {
		return nil, NewConfigurationError(cfg.Name, "client ID is required", nil)
	}
	if cfg.ClientSecret == "" {
		return nil, NewConfigurationError(cfg.Name, "client secret is required", nil)
	}
	for field, value := range map[string]string{
		"authorize URL": cfg.AuthorizeURL,
		"token URL":     cfg.TokenURL,
		"redirect URL":  cfg.RedirectURL,
		"contacts URL":  cfg.ContactsURL,
	} {
		if err := validateAbsoluteURL(value); err != nil {
			return nil, NewConfigurationError(cfg.Name, "invalid "+field, err)
		}
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: DefaultTimeout,
		}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	scheme := cfg.AuthScheme
	if scheme == "" {
		scheme = "Bearer"
	}

	var scopes []string
	if cfg.Scope != "" {
		// A single element keeps provider-specific separators intact
		scopes = []string{cfg.Scope}
	}

	return &Client{
		name: cfg.Name,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthorizeURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		contactsURL: cfg.ContactsURL,
		authParams:  cfg.AuthParams,
		authScheme:  scheme,
		httpClient:  httpClient,
		timeout:     timeout,
		limiter:     cfg.Limiter,
		inst:        cfg.Instrumentation,
		logger:      logger.With("provider", cfg.Name),
		now:         now,
	}, nil
}

func validateAbsoluteURL(raw string) error {
	if raw == "" {
		return errors.New("must not be empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}

// Name returns the provider identifier
func (c *Client) Name() string {
	return c.name
}

// AuthorizationURL builds the consent URL for the given state
func (c *Client) AuthorizationURL(state string) string {
	opts := make([]oauth2.AuthCodeOption, 0, len(c.authParams))
	for key, value := range c.authParams {
		opts = append(opts, oauth2.SetAuthURLParam(key, value))
	}
	return c.oauth.AuthCodeURL(state, opts...)
}

// ensureContextTimeout applies the client timeout when ctx has no deadline
func (c *Client) ensureContextTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Client) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

// ExchangeCode exchanges an authorization code for tokens
func (c *Client) ExchangeCode(ctx context.Context, code string) (*Token, error) {
	ctx, cancel := c.ensureContextTimeout(ctx)
	defer cancel()

	if err := c.limiter.Wait(ctx, c.name); err != nil {
		return nil, c.tokenError(KindTokenExchangeFailed, "rate limit wait aborted", err)
	}

	ctx, done := c.inst.StartProviderCall(ctx, c.name, OperationExchange)
	tok, err := c.oauth.Exchange(c.oauthContext(ctx), code)
	if err != nil {
		perr := c.tokenError(KindTokenExchangeFailed, "failed to exchange code", err)
		done(perr.StatusCode, perr)
		return nil, perr
	}
	done(http.StatusOK, nil)

	token := c.convertToken(tok)
	c.logger.Debug("Exchanged authorization code",
		"access_token_prefix", util.SafeTruncate(token.AccessToken, 8),
		"has_refresh_token", token.RefreshToken != "")
	return token, nil
}

// RefreshToken obtains a new access token. The previous refresh token is kept
// when the provider does not rotate it.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*Token, error) {
	if refreshToken == "" {
		return nil, &Error{Kind: KindTokenRefreshFailed, Provider: c.name, Message: "no refresh token available"}
	}

	ctx, cancel := c.ensureContextTimeout(ctx)
	defer cancel()

	if err := c.limiter.Wait(ctx, c.name); err != nil {
		return nil, c.tokenError(KindTokenRefreshFailed, "rate limit wait aborted", err)
	}

	ctx, done := c.inst.StartProviderCall(ctx, c.name, OperationRefresh)
	src := c.oauth.TokenSource(c.oauthContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		perr := c.tokenError(KindTokenRefreshFailed, "failed to refresh token", err)
		done(perr.StatusCode, perr)
		return nil, perr
	}
	done(http.StatusOK, nil)

	token := c.convertToken(tok)
	if token.RefreshToken == "" {
		token.RefreshToken = refreshToken
	}
	if token.ExpiresIn == 0 {
		c.setExpiry(token, DefaultExpiresIn)
	}
	c.logger.Debug("Refreshed access token",
		"access_token_prefix", util.SafeTruncate(token.AccessToken, 8))
	return token, nil
}

// tokenError converts a token endpoint failure into a typed Error
func (c *Client) tokenError(kind Kind, message string, err error) *Error {
	perr := &Error{Kind: kind, Provider: c.name, Message: message, Err: err}
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		if re.Response != nil {
			perr.StatusCode = re.Response.StatusCode
		}
		perr.Body = truncateBody(re.Body)
	}
	return perr
}

// convertToken maps an oauth2 token to a provider Token. ExpiresAt is derived
// from the raw expires_in using the client clock and left zero without one.
func (c *Client) convertToken(tok *oauth2.Token) *Token {
	token := &Token{
		Provider:     c.name,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Scope:        extraString(tok, "scope"),
		APIDomain:    extraString(tok, "api_domain"),
	}

	if expiresIn, ok := extraInt(tok, "expires_in"); ok && expiresIn > 0 {
		c.setExpiry(token, expiresIn)
	}
	return token
}

func (c *Client) setExpiry(token *Token, expiresIn int64) {
	token.ExpiresIn = expiresIn
	token.ExpiresAt = c.now().UTC().Add(time.Duration(expiresIn) * time.Second)
}

func extraString(tok *oauth2.Token, key string) string {
	switch v := tok.Extra(key).(type) {
	case string:
		return v
	}
	return ""
}

func extraInt(tok *oauth2.Token, key string) (int64, bool) {
	switch v := tok.Extra(key).(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil
	}
	return 0, false
}

// FetchContacts fetches one page of contacts, refreshing and retrying exactly
// once when the access token is rejected with 401.
func (c *Client) FetchContacts(ctx context.Context, req ContactsRequest, parse PageParser) (*ContactsPage, error) {
	page := req.Page
	if page < 1 {
		page = 1
	}

	status, body, err := c.getContactsPage(ctx, req.AccessToken, page)
	if err != nil {
		return nil, err
	}

	var refreshed *Token
	if status == http.StatusUnauthorized {
		if req.RefreshToken == "" {
			return nil, c.contactsError(status, body, "access token rejected and no refresh token available")
		}

		c.logger.Info("Access token rejected, refreshing", "page", page)
		refreshed, err = c.RefreshToken(ctx, req.RefreshToken)
		if err != nil {
			return nil, err
		}
		if req.OnRefresh != nil {
			if err := req.OnRefresh(ctx, refreshed); err != nil {
				return nil, fmt.Errorf("failed to persist refreshed token: %w", err)
			}
		}

		status, body, err = c.getContactsPage(ctx, refreshed.AccessToken, page)
		if err != nil {
			return nil, err
		}
		if status == http.StatusUnauthorized {
			return nil, c.contactsError(status, body, "access token rejected after refresh")
		}
	}

	result := &ContactsPage{
		Contacts:       []Contact{},
		Page:           page,
		RefreshedToken: refreshed,
	}

	if status == http.StatusNoContent {
		return result, nil
	}
	if status < 200 || status > 299 {
		return nil, c.contactsError(status, body, "unexpected status from contacts endpoint")
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return result, nil
	}

	payload, err := decodeJSON(body)
	if err != nil {
		return nil, &Error{
			Kind:       KindContactsFetchFailed,
			Provider:   c.name,
			Message:    "malformed contacts response",
			StatusCode: status,
			Body:       truncateBody(body),
			Err:        err,
		}
	}

	contacts, total := parse(payload)
	if contacts != nil {
		result.Contacts = contacts
	}
	result.Total = total
	return result, nil
}

func (c *Client) contactsError(status int, body []byte, message string) *Error {
	return &Error{
		Kind:       KindContactsFetchFailed,
		Provider:   c.name,
		Message:    message,
		StatusCode: status,
		Body:       truncateBody(body),
	}
}

// getContactsPage performs a single GET against the contacts endpoint.
// Only transport failures are returned as errors; any HTTP status is returned to the caller.
func (c *Client) getContactsPage(ctx context.Context, accessToken string, page int) (int, []byte, error) {
	ctx, cancel := c.ensureContextTimeout(ctx)
	defer cancel()

	if err := c.limiter.Wait(ctx, c.name); err != nil {
		return 0, nil, &Error{Kind: KindContactsFetchFailed, Provider: c.name, Message: "rate limit wait aborted", Err: err}
	}

	ctx, done := c.inst.StartProviderCall(ctx, c.name, OperationContacts)

	endpoint, err := c.pageURL(page)
	if err != nil {
		done(0, err)
		return 0, nil, &Error{Kind: KindContactsFetchFailed, Provider: c.name, Message: "invalid contacts URL", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		done(0, err)
		return 0, nil, &Error{Kind: KindContactsFetchFailed, Provider: c.name, Message: "failed to build request", Err: err}
	}
	httpReq.Header.Set("Authorization", c.authScheme+" "+accessToken)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		done(0, err)
		return 0, nil, &Error{Kind: KindContactsFetchFailed, Provider: c.name, Message: "contacts request failed", Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		done(resp.StatusCode, err)
		return 0, nil, &Error{
			Kind:       KindContactsFetchFailed,
			Provider:   c.name,
			Message:    "failed to read contacts response",
			StatusCode: resp.StatusCode,
			Err:        err,
		}
	}

	var callErr error
	if resp.StatusCode >= 400 {
		callErr = fmt.Errorf("contacts endpoint returned status %d", resp.StatusCode)
	}
	done(resp.StatusCode, callErr)

	c.logger.Debug("Fetched contacts page", "page", page, "status", resp.StatusCode, "bytes", len(body))
	return resp.StatusCode, body, nil
}

func (c *Client) pageURL(page int) (string, error) {
	u, err := url.Parse(c.contactsURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// decodeJSON decodes into generic values, keeping numbers as json.Number
func decodeJSON(body []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var payload any
	if err := dec.Decode(&payload); err != nil {
		return nil, err
	}
	return payload, nil
}

