// Package traces records spans for calls the dashboard makes to the
// reconciliation backend and for investigation actions.
package traces

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"go-recon-dashboard/internal/logging"
)

const (
	instrumentation = "go-recon-dashboard"
	serviceName     = "recon-dashboard"
)

// Options configures the exporter. An empty Endpoint leaves tracing off.
type Options struct {
	Endpoint      string
	Insecure      bool
	SamplePercent int
	Version       string
}

// ShutdownFunc flushes buffered spans and stops the exporter.
type ShutdownFunc func(context.Context) error

func noopShutdown(context.Context) error { return nil }

// Init exports spans to an OTLP/gRPC collector.
func Init(ctx context.Context, opts Options, logger *logging.Logger) (ShutdownFunc, error) {
	if opts.Endpoint == "" {
		logger.Info("tracing off, APP_OTLP_ENDPOINT is empty")
		return noopShutdown, nil
	}

	clientOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(opts.Endpoint)}
	if opts.Insecure {
		clientOpts = append(clientOpts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, clientOpts...)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(opts.Version),
		),
	)
	if err != nil {
		return nil, errors.Join(err, exporter.Shutdown(ctx))
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(Sampler(opts.SamplePercent)),
	)
	install(tp)

	logger.Info("tracing on",
		zap.String("endpoint", opts.Endpoint),
		zap.Int("sample_percent", clampPercent(opts.SamplePercent)),
	)
	return tp.Shutdown, nil
}

func install(tp *sdktrace.TracerProvider) {
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
}

// Sampler keeps percent of root traces and follows the parent otherwise.
func Sampler(percent int) sdktrace.Sampler {
	switch p := clampPercent(percent); p {
	case 100:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	case 0:
		return sdktrace.ParentBased(sdktrace.NeverSample())
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(float64(p) / 100))
	}
}

func clampPercent(p int) int {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}

func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(instrumentation).Start(ctx, name, trace.WithAttributes(attrs...))
}

// Fail marks span as failed with err. A nil err is ignored.
func Fail(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func HTTPMethod(method string) attribute.KeyValue {
	return attribute.String("http.method", method)
}

func HTTPPath(path string) attribute.KeyValue {
	return attribute.String("http.path", path)
}

func HTTPStatus(code int) attribute.KeyValue {
	return attribute.Int("http.status_code", code)
}

func ExecutionID(id string) attribute.KeyValue {
	return attribute.String("recon.execution_id", id)
}
