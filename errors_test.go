package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/giantswarm/crm-oauth/providers"
	"github.com/giantswarm/crm-oauth/storage"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name        string
		code        string
		description string
		want        string
	}{
		{
			name:        "simple error",
			code:        "invalid_request",
			description: "page must be a positive integer",
			want:        "invalid_request: page must be a positive integer",
		},
		{
			name:        "error with empty description",
			code:        "server_error",
			description: "",
			want:        "server_error: ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &Error{
				Code:        tt.code,
				Description: tt.description,
			}
			if got := e.Error(); got != tt.want {
				t.Errorf("Error.Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestError_HTTPStatus(t *testing.T) {
	if got := (&Error{Code: "x"}).HTTPStatus(); got != http.StatusInternalServerError {
		t.Errorf("HTTPStatus() default = %d, want 500", got)
	}
	if got := ErrInvalidRequest("bad").HTTPStatus(); got != http.StatusBadRequest {
		t.Errorf("ErrInvalidRequest HTTPStatus() = %d, want 400", got)
	}
	if got := ErrAuthorizationRequired("none").HTTPStatus(); got != http.StatusUnauthorized {
		t.Errorf("ErrAuthorizationRequired HTTPStatus() = %d, want 401", got)
	}
	if got := ErrStorage("disk").HTTPStatus(); got != http.StatusInternalServerError {
		t.Errorf("ErrStorage HTTPStatus() = %d, want 500", got)
	}
}

func TestIsCode(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", ErrInvalidRequest("bad page"))
	if !IsCode(err, ErrorCodeInvalidRequest) {
		t.Error("IsCode should see through wrapping")
	}
	if IsCode(err, ErrorCodeStorage) {
		t.Error("IsCode matched the wrong code")
	}
	if IsCode(errors.New("plain"), ErrorCodeInvalidRequest) {
		t.Error("IsCode matched a plain error")
	}
}

func TestTranslateError(t *testing.T) {
	canceled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name          string
		ctx           context.Context
		err           error
		wantCode      string
		wantStatus    int
		wantUpstream  int
		wantProvider  string
		wantSupported int
	}{
		{
			name:       "service error passes through",
			ctx:        context.Background(),
			err:        ErrInvalidRequest("bad"),
			wantCode:   ErrorCodeInvalidRequest,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:          "unsupported provider",
			ctx:           context.Background(),
			err:           providers.NewUnsupportedProviderError("hubspot", []string{"capsule", "zoho"}),
			wantCode:      ErrorCodeUnsupportedProvider,
			wantStatus:    http.StatusBadRequest,
			wantProvider:  "hubspot",
			wantSupported: 2,
		},
		{
			name:         "invalid state",
			ctx:          context.Background(),
			err:          providers.NewInvalidStateError("zoho", "state parameter mismatch"),
			wantCode:     ErrorCodeInvalidState,
			wantStatus:   http.StatusBadRequest,
			wantProvider: "zoho",
		},
		{
			name:         "exchange rejected",
			ctx:          context.Background(),
			err:          &providers.Error{Kind: providers.KindTokenExchangeFailed, Provider: "zoho", StatusCode: 400},
			wantCode:     ErrorCodeTokenExchangeFailed,
			wantStatus:   http.StatusBadRequest,
			wantUpstream: 400,
			wantProvider: "zoho",
		},
		{
			name:         "exchange transport failure",
			ctx:          context.Background(),
			err:          &providers.Error{Kind: providers.KindTokenExchangeFailed, Provider: "zoho", Err: errors.New("connection refused")},
			wantCode:     ErrorCodeTokenExchangeFailed,
			wantStatus:   http.StatusBadGateway,
			wantProvider: "zoho",
		},
		{
			name:         "refresh rejected",
			ctx:          context.Background(),
			err:          &providers.Error{Kind: providers.KindTokenRefreshFailed, Provider: "capsule", StatusCode: 400},
			wantCode:     ErrorCodeTokenRefreshFailed,
			wantStatus:   http.StatusUnauthorized,
			wantUpstream: 400,
			wantProvider: "capsule",
		},
		{
			name:         "contacts unauthorized",
			ctx:          context.Background(),
			err:          &providers.Error{Kind: providers.KindContactsFetchFailed, Provider: "zoho", StatusCode: 401},
			wantCode:     ErrorCodeContactsFetchFailed,
			wantStatus:   http.StatusUnauthorized,
			wantUpstream: 401,
			wantProvider: "zoho",
		},
		{
			name:         "contacts server error",
			ctx:          context.Background(),
			err:          &providers.Error{Kind: providers.KindContactsFetchFailed, Provider: "zoho", StatusCode: 503},
			wantCode:     ErrorCodeContactsFetchFailed,
			wantStatus:   http.StatusBadGateway,
			wantUpstream: 503,
			wantProvider: "zoho",
		},
		{
			name:       "configuration",
			ctx:        context.Background(),
			err:        providers.NewConfigurationError("", "BaseURL is required", nil),
			wantCode:   ErrorCodeConfiguration,
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:         "nothing stored",
			ctx:          context.Background(),
			err:          fmt.Errorf("get: %w", storage.ErrNotFound),
			wantCode:     ErrorCodeAuthorizationRequired,
			wantStatus:   http.StatusUnauthorized,
			wantProvider: "zoho",
		},
		{
			name:         "canceled context",
			ctx:          canceled,
			err:          &providers.Error{Kind: providers.KindContactsFetchFailed, Provider: "zoho", Err: context.Canceled},
			wantCode:     ErrorCodeRequestCanceled,
			wantStatus:   http.StatusRequestTimeout,
			wantProvider: "zoho",
		},
		{
			name:         "unknown failure",
			ctx:          context.Background(),
			err:          errors.New("boom"),
			wantCode:     ErrorCodeServerError,
			wantStatus:   http.StatusInternalServerError,
			wantProvider: "zoho",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := translateError(tt.ctx, "zoho", tt.err)
			if got == nil {
				t.Fatal("translateError() = nil")
			}
			if got.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", got.Code, tt.wantCode)
			}
			if got.HTTPStatus() != tt.wantStatus {
				t.Errorf("HTTPStatus() = %d, want %d", got.HTTPStatus(), tt.wantStatus)
			}
			if got.UpstreamStatus != tt.wantUpstream {
				t.Errorf("UpstreamStatus = %d, want %d", got.UpstreamStatus, tt.wantUpstream)
			}
			if tt.wantProvider != "" && got.Provider != tt.wantProvider {
				t.Errorf("Provider = %q, want %q", got.Provider, tt.wantProvider)
			}
			if len(got.Supported) != tt.wantSupported {
				t.Errorf("Supported = %v, want %d names", got.Supported, tt.wantSupported)
			}
			if _, ok := tt.err.(*Error); !ok && !errors.Is(got, tt.err) {
				t.Error("translated error should wrap the original")
			}
		})
	}

	if translateError(context.Background(), "zoho", nil) != nil {
		t.Error("translateError(nil) should be nil")
	}
}

func TestNewErrorResponse(t *testing.T) {
	e := &Error{
		Code:           ErrorCodeContactsFetchFailed,
		Description:    "unexpected status from contacts endpoint",
		UpstreamStatus: 500,
		UpstreamBody:   `{"code":"INTERNAL"}`,
	}
	resp := NewErrorResponse(e)
	if resp.Error != ErrorCodeContactsFetchFailed || resp.ErrorDescription != e.Description {
		t.Errorf("unexpected response: %+v", resp)
	}
	if resp.UpstreamStatus != 500 {
		t.Errorf("UpstreamStatus = %d, want 500", resp.UpstreamStatus)
	}
}
