package traces

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"go-recon-dashboard/internal/logging"
)

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	prevProvider, prevPropagator := otel.GetTracerProvider(), otel.GetTextMapPropagator()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	install(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prevProvider)
		otel.SetTextMapPropagator(prevPropagator)
	})
	return rec
}

func attrMap(kvs []attribute.KeyValue) map[string]string {
	out := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		out[string(kv.Key)] = kv.Value.Emit()
	}
	return out
}

func TestInit_EmptyEndpointIsOff(t *testing.T) {
	shutdown, err := Init(context.Background(), Options{}, logging.NewNop())
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestStartSpan_CarriesAttributes(t *testing.T) {
	rec := recordSpans(t)

	_, span := StartSpan(context.Background(), "reconapi GET /recons", HTTPMethod("GET"), HTTPPath("/recons"))
	span.SetAttributes(HTTPStatus(200))
	span.End()

	ended := rec.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "reconapi GET /recons", ended[0].Name())
	assert.Equal(t, map[string]string{
		"http.method":      "GET",
		"http.path":        "/recons",
		"http.status_code": "200",
	}, attrMap(ended[0].Attributes()))
	assert.Equal(t, codes.Unset, ended[0].Status().Code)
}

func TestFail_MarksSpan(t *testing.T) {
	rec := recordSpans(t)

	_, span := StartSpan(context.Background(), "investigation.save", ExecutionID("ex-1"))
	Fail(span, nil)
	Fail(span, errors.New("upstream 502"))
	span.End()

	ended := rec.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Equal(t, "upstream 502", ended[0].Status().Description)
	require.Len(t, ended[0].Events(), 1)
	assert.Equal(t, "exception", ended[0].Events()[0].Name)
	assert.Equal(t, "ex-1", attrMap(ended[0].Attributes())["recon.execution_id"])
}

func TestSampler(t *testing.T) {
	root := func(s sdktrace.Sampler) sdktrace.SamplingDecision {
		return s.ShouldSample(sdktrace.SamplingParameters{
			ParentContext: context.Background(),
			TraceID:       trace.TraceID{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
			Name:          "x",
		}).Decision
	}

	assert.Equal(t, sdktrace.RecordAndSample, root(Sampler(100)))
	assert.Equal(t, sdktrace.RecordAndSample, root(Sampler(250)))
	assert.Equal(t, sdktrace.Drop, root(Sampler(0)))
	assert.Equal(t, sdktrace.Drop, root(Sampler(-5)))
	assert.Equal(t, sdktrace.Drop, root(Sampler(10)))
}
