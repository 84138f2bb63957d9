package pii

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/hannes/yaak-guard/pii/detectors"

// instrumentedGuard records a span, request metrics and a debug log line around every
// Detect call of the wrapped backend.
type instrumentedGuard struct {
	provider string
	next     Guard
	tracer   trace.Tracer
}

func instrument(provider string, g Guard) Guard {
	return &instrumentedGuard{
		provider: provider,
		next:     g,
		tracer:   otel.Tracer(tracerName),
	}
}

// Unwrap returns the backend behind the instrumentation.
func (g *instrumentedGuard) Unwrap() Guard {
	return g.next
}

func (g *instrumentedGuard) Detect(ctx context.Context, text string) (GuardResult, error) {
	ctx, span := g.tracer.Start(ctx, "Guard.Detect",
		trace.WithAttributes(
			attribute.String("guard.provider", g.provider),
			attribute.Int("guard.input_bytes", len(text)),
		))
	defer span.End()

	slog.Debug("guard: detect started", "provider", g.provider, "input_bytes", len(text))
	start := time.Now()
	res, err := g.next.Detect(ctx, text)
	elapsed := time.Since(start)
	detectDuration.WithLabelValues(g.provider).Observe(elapsed.Seconds())

	if err != nil {
		detectRequests.WithLabelValues(g.provider, "error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Error("guard: detect failed", "provider", g.provider, "error", err, "duration", elapsed)
		return res, err
	}

	detectRequests.WithLabelValues(g.provider, "ok").Inc()
	for _, m := range res.Matches {
		matchesTotal.WithLabelValues(g.provider, string(m.Type)).Inc()
	}
	span.SetAttributes(
		attribute.Int("guard.matches", len(res.Matches)),
		attribute.String("guard.model", res.ModelUsed),
	)
	slog.Debug("guard: detect completed",
		"provider", g.provider, "model", res.ModelUsed, "matches", len(res.Matches), "duration", elapsed)
	return res, nil
}

// Unwrap returns the backend behind any instrumentation added by NewGuard.
func Unwrap(g Guard) Guard {
	if ig, ok := g.(*instrumentedGuard); ok {
		return ig.next
	}
	return g
}

// Instrument wraps g with the tracing and metrics NewGuard applies to registered backends.
func Instrument(provider string, g Guard) Guard {
	return instrument(provider, g)
}
