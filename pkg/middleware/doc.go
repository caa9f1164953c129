// Package middleware provides page-run middleware for pagewire runtimes.
//
// This package includes:
//   - Prometheus page-run metrics
//   - OpenTelemetry tracing of page runs
//   - Structured run logging
//
// Middleware is registered globally on the runtime or per router group:
//
//	app := pagewire.New(cfg,
//	    pagewire.WithMiddleware(
//	        middleware.Logging(logger),
//	        middleware.OpenTelemetry(),
//	        middleware.Prometheus(m),
//	    ),
//	)
//
// # OpenTelemetry
//
// Every page run gets a span named "pagewire.page_run" carrying the session
// id, page id, route and run kind. The span context is passed to the page
// handler, so calls it makes inherit the trace. Configure the global tracer
// provider in main() or pass one with WithTracerProvider.
//
// # Prometheus
//
// Prometheus records run counts and durations on a *metrics.Metrics:
//   - pagewire_page_runs_total{route,kind,status}
//   - pagewire_page_run_duration_seconds{route,kind}
package middleware
