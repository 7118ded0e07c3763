package oauth

import (
	"time"

	"github.com/giantswarm/crm-oauth/providers"
)

// StatusSuccess is the status reported by successful responses
const StatusSuccess = "success"

// AuthURLResponse is returned by Service.AuthorizationURL
type AuthURLResponse struct {
	// Provider is the CRM the URL belongs to
	Provider string `json:"crm"`

	// AuthURL is where the user grants consent
	AuthURL string `json:"auth_url"`

	// State is the anti-forgery value embedded in AuthURL
	State string `json:"-"`
}

// Pagination describes the page returned by Service.FetchContacts
type Pagination struct {
	Page  int `json:"page"`
	Total int `json:"total"`
}

// ContactsResponse is returned by Service.FetchContacts
type ContactsResponse struct {
	Status     string              `json:"status"`
	CRM        string              `json:"crm"`
	Contacts   []providers.Contact `json:"contacts"`
	Pagination Pagination          `json:"pagination"`

	// TokenRefreshed is set when the access token was refreshed during the fetch
	TokenRefreshed bool `json:"token_refreshed,omitempty"`

	// ExportPath is the file the contacts were exported to, if exporting is enabled
	ExportPath string `json:"export_path,omitempty"`
}

// ProviderStatus summarizes the stored credentials of one CRM
type ProviderStatus struct {
	Provider          string    `json:"crm"`
	Authorized        bool      `json:"authorized"`
	Expired           bool      `json:"expired"`
	HasRefreshToken   bool      `json:"has_refresh_token"`
	ExpiresAt         time.Time `json:"expires_at,omitzero"`
	LastAuthenticated time.Time `json:"last_authenticated,omitzero"`
}

// ErrorResponse is the JSON form of an *Error
type ErrorResponse struct {
	// Error is the error code
	Error string `json:"error"`

	// ErrorDescription provides additional information
	ErrorDescription string `json:"error_description,omitempty"`

	// UpstreamStatus is the provider's HTTP status, when there was one
	UpstreamStatus int `json:"upstream_status,omitempty"`

	// Supported lists valid provider names for unsupported_provider errors
	Supported []string `json:"supported,omitempty"`
}

// NewErrorResponse converts err into its JSON form
func NewErrorResponse(err *Error) ErrorResponse {
	return ErrorResponse{
		Error:            err.Code,
		ErrorDescription: err.Description,
		UpstreamStatus:   err.UpstreamStatus,
		Supported:        err.Supported,
	}
}
