package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/giantswarm/crm-oauth/providers"
	"github.com/giantswarm/crm-oauth/storage"
)

// Error codes returned to callers
const (
	ErrorCodeUnsupportedProvider   = string(providers.KindUnsupportedProvider)
	ErrorCodeInvalidState          = string(providers.KindInvalidState)
	ErrorCodeTokenExchangeFailed   = string(providers.KindTokenExchangeFailed)
	ErrorCodeTokenRefreshFailed    = string(providers.KindTokenRefreshFailed)
	ErrorCodeContactsFetchFailed   = string(providers.KindContactsFetchFailed)
	ErrorCodeConfiguration         = string(providers.KindConfiguration)
	ErrorCodeAuthorizationRequired = "authorization_required"
	ErrorCodeInvalidRequest        = "invalid_request"
	ErrorCodeRequestCanceled       = "request_canceled"
	ErrorCodeStorage               = "storage_error"
	ErrorCodeServerError           = "server_error"
)

// Error is the caller-facing failure of a Service operation.
// It does not depend on any HTTP framework; Status is only a suggestion for
// boundary layers that speak HTTP.
type Error struct {
	Code        string // error code (e.g., "invalid_state", "contacts_fetch_failed")
	Description string // human-readable description
	Status      int    // suggested HTTP status

	// Provider is the CRM involved, when known
	Provider string

	// UpstreamStatus and UpstreamBody describe the provider's response, if any
	UpstreamStatus int
	UpstreamBody   string

	// Supported lists valid provider names for ErrorCodeUnsupportedProvider
	Supported []string

	Err error
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the suggested HTTP status, defaulting to 500
func (e *Error) HTTPStatus() int {
	if e.Status == 0 {
		return http.StatusInternalServerError
	}
	return e.Status
}

// NewError creates a new caller-facing error
func NewError(code, description string, status int) *Error {
	return &Error{
		Code:        code,
		Description: description,
		Status:      status,
	}
}

// Common errors as constructors
var (
	// ErrInvalidRequest indicates a malformed argument (e.g., a page below 1)
	ErrInvalidRequest = func(desc string) *Error {
		return NewError(ErrorCodeInvalidRequest, desc, http.StatusBadRequest)
	}

	// ErrAuthorizationRequired indicates no tokens are stored for the provider
	ErrAuthorizationRequired = func(desc string) *Error {
		return NewError(ErrorCodeAuthorizationRequired, desc, http.StatusUnauthorized)
	}

	// ErrStorage indicates the token or state store failed
	ErrStorage = func(desc string) *Error {
		return NewError(ErrorCodeStorage, desc, http.StatusInternalServerError)
	}
)

// IsCode reports whether err is an *Error with the given code
func IsCode(err error, code string) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

// translateError converts an internal failure into an *Error. Cancellation of
// ctx takes precedence over whatever the cancelled call reported.
func translateError(ctx context.Context, provider string, err error) *Error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		return e
	}

	if ctxErr := ctx.Err(); ctxErr != nil || errors.Is(err, context.Canceled) {
		if ctxErr == nil {
			ctxErr = context.Canceled
		}
		return &Error{
			Code:        ErrorCodeRequestCanceled,
			Description: "request canceled: " + ctxErr.Error(),
			Status:      http.StatusRequestTimeout,
			Provider:    provider,
			Err:         err,
		}
	}

	var pe *providers.Error
	if errors.As(err, &pe) {
		if pe.Provider != "" {
			provider = pe.Provider
		}
		return &Error{
			Code:           string(pe.Kind),
			Description:    providerErrorDescription(pe),
			Status:         statusForKind(pe.Kind, pe.StatusCode),
			Provider:       provider,
			UpstreamStatus: pe.StatusCode,
			UpstreamBody:   pe.Body,
			Supported:      pe.Supported,
			Err:            err,
		}
	}

	if errors.Is(err, storage.ErrNotFound) {
		e := ErrAuthorizationRequired("no stored tokens; complete the authorization flow first")
		e.Provider = provider
		e.Err = err
		return e
	}

	return &Error{
		Code:        ErrorCodeServerError,
		Description: err.Error(),
		Status:      http.StatusInternalServerError,
		Provider:    provider,
		Err:         err,
	}
}

// storageError wraps a store failure
func storageError(provider, action string, err error) *Error {
	e := ErrStorage(fmt.Sprintf("failed to %s: %v", action, err))
	e.Provider = provider
	e.Err = err
	return e
}

func providerErrorDescription(pe *providers.Error) string {
	msg := pe.Message
	if msg == "" {
		msg = string(pe.Kind)
	}
	if pe.Err != nil {
		msg += ": " + pe.Err.Error()
	}
	return msg
}

// statusForKind maps a failure kind and upstream status to an HTTP status.
// Upstream 4xx map to client errors, any other provider failure to 502.
func statusForKind(kind providers.Kind, upstream int) int {
	switch kind {
	case providers.KindUnsupportedProvider, providers.KindInvalidState:
		return http.StatusBadRequest
	case providers.KindConfiguration:
		return http.StatusInternalServerError
	case providers.KindContactsFetchFailed:
		if upstream == http.StatusUnauthorized || upstream == http.StatusForbidden {
			return http.StatusUnauthorized
		}
	case providers.KindTokenRefreshFailed:
		if upstream >= 400 && upstream < 500 {
			return http.StatusUnauthorized
		}
	}

	if upstream >= 400 && upstream < 500 {
		return http.StatusBadRequest
	}
	return http.StatusBadGateway
}
