// Package telemetry owns the process-wide prometheus collectors and the
// OpenTelemetry tracer used by the services.
package telemetry

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	appErr "github.com/outline-studio/engine/pkg/errors"
)

const instrumentation = "github.com/outline-studio/engine"

var (
	Mutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "outline",
		Name:      "mutations_total",
		Help:      "Graph and content mutations by operation and result code",
	}, []string{"op", "result"})

	Conflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "outline",
		Name:      "conflicts_total",
		Help:      "Rejected mutations by conflict reason",
	}, []string{"reason"})

	TxRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "outline",
		Name:      "store_tx_retries_total",
		Help:      "Store transactions retried after a serialization failure",
	}, []string{"driver"})

	OpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "outline",
		Name:      "operation_duration_seconds",
		Help:      "Service operation latency",
		Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"op"})

	ProjectionRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "outline",
		Name:      "projection_rows_total",
		Help:      "Rows emitted by tree projections",
	}, []string{"view"})

	IntegrityFindings = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "outline",
		Name:      "integrity_findings_total",
		Help:      "Integrity problems found by projections and audits",
	}, []string{"kind"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "outline",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route and status",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

// Config selects the trace exporter.
type Config struct {
	ServiceName string
	Environment string
	// Stdout pretty-prints spans to stdout. When false spans are dropped.
	Stdout bool
}

// Init installs the global tracer provider. The returned function flushes
// and stops it.
func Init(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	if ctx == nil {
		return nil, errors.New("telemetry: nil context")
	}
	res := resource.NewWithAttributes(
		"",
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("deployment.environment", cfg.Environment),
	)

	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if cfg.Stdout {
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("create stdout exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exp), sdktrace.WithSampler(sdktrace.AlwaysSample()))
	} else {
		opts = append(opts, sdktrace.WithSampler(sdktrace.NeverSample()))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// Tracer returns the engine tracer from the global provider.
func Tracer() trace.Tracer { return otel.Tracer(instrumentation) }

// StartSpan starts a span on the engine tracer.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, trace.WithAttributes(attrs...))
}

// EndSpan records err on span and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Result returns the metric label for an operation outcome.
func Result(err error) string {
	if err == nil {
		return "ok"
	}
	if ae, ok := appErr.As(err); ok {
		return string(ae.Code)
	}
	return string(appErr.CodeInternal)
}

// Observe records the outcome of one mutation.
func Observe(op string, err error) {
	Mutations.WithLabelValues(op, Result(err)).Inc()
	if ae, ok := appErr.As(err); ok && ae.Code == appErr.CodeConflict {
		Conflicts.WithLabelValues(string(ae.Reason)).Inc()
	}
}
