package instrumentation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const (
	// DefaultServiceName is used when Config.ServiceName is empty
	DefaultServiceName = "crm-oauth"

	// DefaultServiceVersion is the default service version used when none is provided
	DefaultServiceVersion = "unknown"

	// instrumentationPrefix is prepended to every tracer and meter scope
	instrumentationPrefix = "github.com/giantswarm/crm-oauth/"
)

// Config holds instrumentation configuration
type Config struct {
	// ServiceName is the name of the service (e.g., "crm-oauth", "contacts-sync")
	ServiceName string

	// ServiceVersion is the version of the service
	ServiceVersion string

	// Enabled controls whether instrumentation is active.
	// When false, uses no-op providers (zero overhead).
	Enabled bool

	// TracerProvider overrides the tracer provider used when Enabled is true.
	// Defaults to the global provider from otel.GetTracerProvider().
	TracerProvider trace.TracerProvider

	// MeterProvider overrides the meter provider used when Enabled is true.
	// Defaults to the global provider from otel.GetMeterProvider().
	MeterProvider metric.MeterProvider

	// Resource allows custom resource attributes.
	// If nil, a resource with service name and version is created.
	Resource *resource.Resource

	// OTLPEndpoint exports spans over OTLP/HTTP (e.g., "http://localhost:4318").
	// Ignored when TracerProvider is set.
	OTLPEndpoint string
}

// Instrumentation provides OpenTelemetry instrumentation components.
// A nil *Instrumentation is valid and behaves like a disabled one.
type Instrumentation struct {
	config   Config
	resource *resource.Resource

	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider

	metrics *Metrics

	// Shutdown functions (must be registered during New() only)
	shutdownFuncs []func(context.Context) error
	shutdownOnce  sync.Once
}

// New creates a new instrumentation instance
func New(config Config) (*Instrumentation, error) {
	if config.ServiceName == "" {
		config.ServiceName = DefaultServiceName
	}
	if config.ServiceVersion == "" {
		config.ServiceVersion = DefaultServiceVersion
	}

	res := config.Resource
	if res == nil {
		var err error
		res, err = resource.New(
			context.Background(),
			resource.WithAttributes(
				semconv.ServiceName(config.ServiceName),
				semconv.ServiceVersion(config.ServiceVersion),
			),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create resource: %w", err)
		}
	}

	inst := &Instrumentation{
		config:   config,
		resource: res,
	}

	if config.Enabled {
		inst.tracerProvider = config.TracerProvider
		if inst.tracerProvider == nil && config.OTLPEndpoint != "" {
			tp, err := newOTLPTracerProvider(context.Background(), config.OTLPEndpoint, res)
			if err != nil {
				return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
			}
			inst.tracerProvider = tp
			inst.shutdownFuncs = append(inst.shutdownFuncs, tp.Shutdown)
		}
		if inst.tracerProvider == nil {
			inst.tracerProvider = otel.GetTracerProvider()
		}
		inst.meterProvider = config.MeterProvider
		if inst.meterProvider == nil {
			inst.meterProvider = otel.GetMeterProvider()
		}
	} else {
		inst.meterProvider = noop.NewMeterProvider()
		inst.tracerProvider = tracenoop.NewTracerProvider()
	}

	var err error
	inst.metrics, err = newMetrics(inst)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	return inst, nil
}

// Shutdown gracefully shuts down all instrumentation providers.
// Providers passed in through Config are owned by the caller and are not shut down here.
func (i *Instrumentation) Shutdown(ctx context.Context) error {
	if i == nil {
		return nil
	}

	var shutdownErr error
	i.shutdownOnce.Do(func() {
		for _, fn := range i.shutdownFuncs {
			if err := fn(ctx); err != nil && shutdownErr == nil {
				shutdownErr = err
			}
		}
	})
	return shutdownErr
}

// Meter returns a named meter for the given scope ("service", "provider", "storage").
func (i *Instrumentation) Meter(scope string) metric.Meter {
	if i == nil {
		return noop.NewMeterProvider().Meter(instrumentationPrefix + scope)
	}
	return i.meterProvider.Meter(instrumentationPrefix + scope)
}

// Tracer returns a named tracer for the given scope ("service", "provider", "storage").
func (i *Instrumentation) Tracer(scope string) trace.Tracer {
	if i == nil {
		return tracenoop.NewTracerProvider().Tracer(instrumentationPrefix + scope)
	}
	return i.tracerProvider.Tracer(instrumentationPrefix + scope)
}

// Metrics returns the metrics holder, or nil for a nil receiver.
func (i *Instrumentation) Metrics() *Metrics {
	if i == nil {
		return nil
	}
	return i.metrics
}

// Resource returns the OTEL resource describing this service
func (i *Instrumentation) Resource() *resource.Resource {
	if i == nil {
		return nil
	}
	return i.resource
}

// StartProviderCall starts a span for an outbound provider API call. The returned
// function must be called with the HTTP status (0 when no response was received)
// and the resulting error; it records metrics and ends the span.
func (i *Instrumentation) StartProviderCall(ctx context.Context, provider, operation string) (context.Context, func(status int, err error)) {
	ctx, span := i.Tracer("provider").Start(ctx, "provider."+operation, trace.WithSpanKind(trace.SpanKindClient))
	AddProviderAttributes(span, provider, operation)
	start := time.Now()

	return ctx, func(status int, err error) {
		if status != 0 {
			SetSpanAttributes(span, ProviderStatusAttribute(status))
		}
		if err != nil {
			RecordError(span, err)
		} else {
			SetSpanSuccess(span)
		}
		i.Metrics().RecordProviderCall(ctx, provider, operation, status, time.Since(start), err)
		span.End()
	}
}

// StartStorageOperation starts a span for a storage operation. The returned function
// records metrics and ends the span.
func (i *Instrumentation) StartStorageOperation(ctx context.Context, backend, operation string) (context.Context, func(err error)) {
	ctx, span := i.Tracer("storage").Start(ctx, "storage."+operation)
	AddStorageAttributes(span, operation, backend)
	start := time.Now()

	return ctx, func(err error) {
		if err != nil {
			RecordError(span, err)
		} else {
			SetSpanSuccess(span)
		}
		i.Metrics().RecordStorageOperation(ctx, backend, operation, time.Since(start), err)
		span.End()
	}
}
