package providers

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies provider-layer failures
type Kind string

// Failure kinds
const (
	KindUnsupportedProvider Kind = "unsupported_provider"
	KindInvalidState        Kind = "invalid_state"
	KindTokenExchangeFailed Kind = "token_exchange_failed"
	KindTokenRefreshFailed  Kind = "token_refresh_failed"
	KindContactsFetchFailed Kind = "contacts_fetch_failed"
	KindConfiguration       Kind = "configuration_error"
)

// maxErrorBodyLength caps the upstream body kept on an Error
const maxErrorBodyLength = 2048

// Error is a typed provider failure. StatusCode and Body carry the upstream
// HTTP response when there was one; Err preserves the underlying cause.
type Error struct {
	Kind       Kind
	Provider   string
	Message    string
	StatusCode int
	Body       string
	Supported  []string
	Err        error
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Provider != "" {
		fmt.Fprintf(&b, " (%s)", e.Provider)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " [status %d]", e.StatusCode)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is, or wraps, an *Error of the given kind
func IsKind(err error, kind Kind) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Kind == kind
}

// NewUnsupportedProviderError reports an unknown provider name
func NewUnsupportedProviderError(name string, supported []string) *Error {
	return &Error{
		Kind:      KindUnsupportedProvider,
		Provider:  name,
		Message:   fmt.Sprintf("unsupported provider %q, valid providers: %s", name, strings.Join(supported, ", ")),
		Supported: supported,
	}
}

// NewInvalidStateError reports a missing, expired or mismatched OAuth state
func NewInvalidStateError(provider, reason string) *Error {
	return &Error{
		Kind:     KindInvalidState,
		Provider: provider,
		Message:  reason,
	}
}

// NewConfigurationError reports a provider that cannot be set up
func NewConfigurationError(provider, message string, err error) *Error {
	return &Error{
		Kind:     KindConfiguration,
		Provider: provider,
		Message:  message,
		Err:      err,
	}
}

// truncateBody limits upstream bodies kept on errors
func truncateBody(body []byte) string {
	if len(body) > maxErrorBodyLength {
		return string(body[:maxErrorBodyLength])
	}
	return string(body)
}
