package middleware

import (
	"context"

	"github.com/vango-dev/pagewire/pkg/router"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultTracerName = "pagewire"

	// SpanName is the name of the span started for each page run.
	SpanName = "pagewire.page_run"
)

// OTelConfig configures the OpenTelemetry middleware.
type OTelConfig struct {
	// TracerName is the name of the tracer (default: "pagewire").
	TracerName string

	// TracerProvider overrides the global provider.
	TracerProvider trace.TracerProvider

	// Filter determines which runs to trace. If nil, all runs are traced.
	Filter func(info router.RunInfo) bool

	// AttributeExtractor adds custom attributes to each span.
	AttributeExtractor func(info router.RunInfo) []attribute.KeyValue
}

// OTelOption configures the OpenTelemetry middleware.
type OTelOption func(*OTelConfig)

// WithTracerName sets the tracer name.
func WithTracerName(name string) OTelOption {
	return func(c *OTelConfig) { c.TracerName = name }
}

// WithTracerProvider sets the tracer provider.
func WithTracerProvider(tp trace.TracerProvider) OTelOption {
	return func(c *OTelConfig) { c.TracerProvider = tp }
}

// WithRunFilter sets a filter for which runs get a span.
func WithRunFilter(filter func(info router.RunInfo) bool) OTelOption {
	return func(c *OTelConfig) { c.Filter = filter }
}

// WithAttributeExtractor sets a custom attribute extractor.
func WithAttributeExtractor(extractor func(info router.RunInfo) []attribute.KeyValue) OTelOption {
	return func(c *OTelConfig) { c.AttributeExtractor = extractor }
}

// OpenTelemetry creates middleware that traces every page run. The span
// context is handed to the rest of the chain and to the page handler.
func OpenTelemetry(opts ...OTelOption) router.Middleware {
	config := OTelConfig{TracerName: defaultTracerName}
	for _, opt := range opts {
		opt(&config)
	}

	var tracer trace.Tracer
	if config.TracerProvider != nil {
		tracer = config.TracerProvider.Tracer(config.TracerName)
	} else {
		tracer = otel.Tracer(config.TracerName)
	}

	return router.MiddlewareFunc(func(ctx context.Context, info router.RunInfo, next func(context.Context) error) error {
		if config.Filter != nil && !config.Filter(info) {
			return next(ctx)
		}

		attrs := []attribute.KeyValue{
			attribute.String("pagewire.session_id", info.SessionID),
			attribute.String("pagewire.run_kind", string(info.Kind)),
		}
		if info.Page != nil {
			attrs = append(attrs,
				attribute.String("pagewire.page_id", info.Page.ID),
				attribute.String("pagewire.route", info.Page.Route),
			)
		}
		if config.AttributeExtractor != nil {
			attrs = append(attrs, config.AttributeExtractor(info)...)
		}

		spanCtx, span := tracer.Start(ctx, SpanName,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attrs...),
		)
		defer span.End()

		err := next(spanCtx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		return err
	})
}
