// Package instrumentation provides OpenTelemetry (OTEL) instrumentation for the crm-oauth library.
//
// The package hands out named tracers and meters for the library layers ("service", "provider",
// "storage") and owns the pre-registered metric instruments those layers record into.
//
// # Quick Start
//
//	inst, err := instrumentation.New(instrumentation.Config{
//		ServiceName:    "crm-oauth",
//		ServiceVersion: "1.0.0",
//		Enabled:        true,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer inst.Shutdown(context.Background())
//
//	cfg := &oauth.Config{Instrumentation: inst}
//
// When Enabled is true and no providers are configured, the globally registered OTEL providers
// (otel.GetTracerProvider / otel.GetMeterProvider) are used, so applications that already set up
// exporters get spans and metrics for free. When Enabled is false, no-op providers are used.
//
// # Available Metrics
//
// OAuth flows:
//   - crm.authorization.started{provider}
//   - crm.callback.processed{provider, result}
//   - crm.token.refreshed{provider, result}
//   - crm.tokens.cleared{provider}
//   - crm.contacts.fetched{provider}
//
// Provider API:
//   - crm.provider.api.calls.total{provider, operation, status}
//   - crm.provider.api.duration{provider, operation}
//   - crm.provider.api.errors{provider, operation}
//
// Storage:
//   - crm.storage.operation.total{operation, backend, result}
//   - crm.storage.operation.duration{operation, backend}
//
// # Security
//
// Never record token values, authorization codes or client secrets as attributes.
// Only metadata (provider name, operation, status code) is recorded.
package instrumentation
