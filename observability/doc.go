// Package observability sets up OpenTelemetry tracing and metrics export
// over OTLP/HTTP.
//
// Export is off unless Config.Enabled is set; instruments then record into
// the no-op global providers.
//
//	shutdown, err := observability.Setup(ctx, cfg, observability.ServiceInfo{Name: "devreload"})
//	defer shutdown(context.Background())
package observability
