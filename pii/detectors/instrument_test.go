package pii

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type stubGuard struct {
	res GuardResult
	err error
}

func (s stubGuard) Detect(context.Context, string) (GuardResult, error) {
	return s.res, s.err
}

func TestInstrumentedGuard_Success(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))

	inner := stubGuard{res: GuardResult{
		Matches: []Match{
			{Type: PIITypeName, Value: "John", Start: 0, End: 4, Resolved: true, Confidence: 0.9},
			{Type: PIITypeName, Value: "Ann", Start: 9, End: 12, Resolved: true, Confidence: 0.9},
		},
		ModelUsed: "stub-model",
	}}
	g := instrument("stub-ok", inner)

	res, err := g.Detect(context.Background(), "John and Ann")
	require.NoError(t, err)
	assert.Len(t, res.Matches, 2)
	assert.Equal(t, inner, Unwrap(g))

	assert.Equal(t, 1.0, testutil.ToFloat64(detectRequests.WithLabelValues("stub-ok", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(matchesTotal.WithLabelValues("stub-ok", "name")))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "Guard.Detect", spans[0].Name())
}

func TestInstrumentedGuard_Error(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))

	g := instrument("stub-err", stubGuard{err: errors.New("connection refused")})

	_, err := g.Detect(context.Background(), "text")
	require.EqualError(t, err, "connection refused")
	assert.Equal(t, 1.0, testutil.ToFloat64(detectRequests.WithLabelValues("stub-err", "error")))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
}

func TestUnwrap_PlainGuard(t *testing.T) {
	r := NewDefaultRegexDetector()
	assert.Same(t, r, Unwrap(r))
}
