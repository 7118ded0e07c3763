package storage

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/giantswarm/crm-oauth/instrumentation"
	"github.com/giantswarm/crm-oauth/security"
)

// Options holds the settings shared by all backends
type Options struct {
	// Now is the clock used for timestamps and state expiry (default: time.Now)
	Now func() time.Time

	// Logger receives store diagnostics (default: slog.Default())
	Logger *slog.Logger

	// Encryptor seals access and refresh tokens at rest (optional)
	Encryptor *security.Encryptor

	// StateTTL bounds how long an OAuth state is accepted (default: DefaultStateTTL)
	StateTTL time.Duration

	// Instrumentation records spans and metrics for store operations (optional)
	Instrumentation *instrumentation.Instrumentation
}

// Option configures Options
type Option func(*Options)

// WithClock sets the clock
func WithClock(now func() time.Time) Option {
	return func(o *Options) {
		o.Now = now
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithEncryptor enables token encryption at rest
func WithEncryptor(enc *security.Encryptor) Option {
	return func(o *Options) {
		o.Encryptor = enc
	}
}

// WithStateTTL overrides DefaultStateTTL
func WithStateTTL(ttl time.Duration) Option {
	return func(o *Options) {
		o.StateTTL = ttl
	}
}

// WithInstrumentation enables tracing and metrics
func WithInstrumentation(inst *instrumentation.Instrumentation) Option {
	return func(o *Options) {
		o.Instrumentation = inst
	}
}

// NewOptions applies opts over the defaults
func NewOptions(opts ...Option) Options {
	o := Options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.StateTTL <= 0 {
		o.StateTTL = DefaultStateTTL
	}
	return o
}

// Track starts a span for a store operation; the returned function ends it.
// ErrNotFound is an expected outcome and is not recorded as a failure.
func (o Options) Track(ctx context.Context, backend, operation string) (context.Context, func(error)) {
	ctx, done := o.Instrumentation.StartStorageOperation(ctx, backend, operation)
	return ctx, func(err error) {
		if errors.Is(err, ErrNotFound) {
			err = nil
		}
		done(err)
	}
}

// Store operation names used for spans and metrics
const (
	OpSaveState   = "save_state"
	OpGetState    = "get_state"
	OpSaveTokens  = "save_tokens"
	OpGetTokens   = "get_tokens"
	OpClearTokens = "clear_tokens"
)
