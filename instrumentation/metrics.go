package instrumentation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric result labels
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Metrics holds all metric instruments for the library.
// Recording methods are nil-safe so callers never need to check for a disabled setup.
type Metrics struct {
	// OAuth flow metrics
	AuthorizationStarted metric.Int64Counter
	CallbackProcessed    metric.Int64Counter
	TokenRefreshed       metric.Int64Counter
	TokensCleared        metric.Int64Counter
	InvalidState         metric.Int64Counter
	ContactsFetched      metric.Int64Counter

	// Provider metrics
	ProviderAPICallsTotal metric.Int64Counter
	ProviderAPIDuration   metric.Float64Histogram
	ProviderAPIErrors     metric.Int64Counter

	// Storage metrics
	StorageOperationTotal    metric.Int64Counter
	StorageOperationDuration metric.Float64Histogram
}

// newMetrics creates and registers all metric instruments
func newMetrics(inst *Instrumentation) (*Metrics, error) {
	m := &Metrics{}
	serviceMeter := inst.Meter("service")
	providerMeter := inst.Meter("provider")
	storageMeter := inst.Meter("storage")

	counters := []struct {
		target      *metric.Int64Counter
		meter       metric.Meter
		name        string
		description string
		unit        string
	}{
		{&m.AuthorizationStarted, serviceMeter, "crm.authorization.started", "Number of authorization URLs issued", "{flow}"},
		{&m.CallbackProcessed, serviceMeter, "crm.callback.processed", "Number of OAuth callbacks processed", "{callback}"},
		{&m.TokenRefreshed, serviceMeter, "crm.token.refreshed", "Number of access token refreshes", "{refresh}"},
		{&m.TokensCleared, serviceMeter, "crm.tokens.cleared", "Number of token clear operations", "{operation}"},
		{&m.InvalidState, serviceMeter, "crm.state.invalid", "Number of callbacks rejected for an invalid state", "{callback}"},
		{&m.ContactsFetched, serviceMeter, "crm.contacts.fetched", "Number of contacts fetched and normalized", "{contact}"},
		{&m.ProviderAPICallsTotal, providerMeter, "crm.provider.api.calls.total", "Total number of provider API calls", "{call}"},
		{&m.ProviderAPIErrors, providerMeter, "crm.provider.api.errors", "Number of failed provider API calls", "{error}"},
		{&m.StorageOperationTotal, storageMeter, "crm.storage.operation.total", "Total number of storage operations", "{operation}"},
	}
	for _, c := range counters {
		counter, err := c.meter.Int64Counter(c.name, metric.WithDescription(c.description), metric.WithUnit(c.unit))
		if err != nil {
			return nil, fmt.Errorf("failed to create %s counter: %w", c.name, err)
		}
		*c.target = counter
	}

	var err error
	m.ProviderAPIDuration, err = providerMeter.Float64Histogram(
		"crm.provider.api.duration",
		metric.WithDescription("Provider API call duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider.api.duration histogram: %w", err)
	}

	m.StorageOperationDuration, err = storageMeter.Float64Histogram(
		"crm.storage.operation.duration",
		metric.WithDescription("Storage operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.operation.duration histogram: %w", err)
	}

	return m, nil
}

func resultOf(err error) string {
	if err != nil {
		return ResultFailure
	}
	return ResultSuccess
}

// RecordAuthorizationStarted records an issued authorization URL
func (m *Metrics) RecordAuthorizationStarted(ctx context.Context, provider string) {
	if m == nil {
		return
	}
	m.AuthorizationStarted.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrProviderName, provider)))
}

// RecordCallbackProcessed records a processed OAuth callback
func (m *Metrics) RecordCallbackProcessed(ctx context.Context, provider string, err error) {
	if m == nil {
		return
	}
	m.CallbackProcessed.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrProviderName, provider),
		attribute.String(AttrResult, resultOf(err)),
	))
}

// RecordTokenRefreshed records an access token refresh attempt
func (m *Metrics) RecordTokenRefreshed(ctx context.Context, provider string, err error) {
	if m == nil {
		return
	}
	m.TokenRefreshed.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrProviderName, provider),
		attribute.String(AttrResult, resultOf(err)),
	))
}

// RecordTokensCleared records a token clear operation ("" means all providers)
func (m *Metrics) RecordTokensCleared(ctx context.Context, provider string) {
	if m == nil {
		return
	}
	if provider == "" {
		provider = "all"
	}
	m.TokensCleared.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrProviderName, provider)))
}

// RecordInvalidState records a callback rejected because of its state parameter
func (m *Metrics) RecordInvalidState(ctx context.Context, provider string) {
	if m == nil {
		return
	}
	m.InvalidState.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrProviderName, provider)))
}

// RecordContactsFetched records the number of contacts returned for a page
func (m *Metrics) RecordContactsFetched(ctx context.Context, provider string, count int) {
	if m == nil {
		return
	}
	m.ContactsFetched.Add(ctx, int64(count), metric.WithAttributes(attribute.String(AttrProviderName, provider)))
}

// RecordProviderCall records an outbound provider API call
func (m *Metrics) RecordProviderCall(ctx context.Context, provider, operation string, status int, duration time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String(AttrProviderName, provider),
		attribute.String(AttrProviderOperation, operation),
	}
	m.ProviderAPICallsTotal.Add(ctx, 1, metric.WithAttributes(
		append(attrs, attribute.String(AttrProviderStatus, strconv.Itoa(status)))...,
	))
	m.ProviderAPIDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
	if err != nil {
		m.ProviderAPIErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordStorageOperation records a storage operation
func (m *Metrics) RecordStorageOperation(ctx context.Context, backend, operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String(AttrStorageOperation, operation),
		attribute.String(AttrStorageType, backend),
	}
	m.StorageOperationTotal.Add(ctx, 1, metric.WithAttributes(
		append(attrs, attribute.String(AttrStorageResult, resultOf(err)))...,
	))
	m.StorageOperationDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
}
