package tracing

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestSpanHelpers(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	ctx, span := StartSpan(context.Background(), "pricing.simulate")
	AddTag(ctx, "iterations", 50000)
	AddTag(ctx, "seed", uint64(42))
	AddTag(ctx, "price", 10.45)
	SetError(ctx, errors.New("boom"))
	if GetTraceID(ctx) == "" {
		t.Errorf("trace id missing inside span")
	}
	span.End()

	ended := rec.Ended()
	if len(ended) != 1 {
		t.Fatalf("ended spans = %d", len(ended))
	}
	s := ended[0]
	if s.Name() != "pricing.simulate" || s.Status().Code != codes.Error {
		t.Errorf("span = %s status %v", s.Name(), s.Status())
	}
	attrs := map[string]bool{}
	for _, kv := range s.Attributes() {
		attrs[string(kv.Key)] = true
	}
	for _, k := range []string{"iterations", "seed", "price"} {
		if !attrs[k] {
			t.Errorf("attribute %q missing", k)
		}
	}
}

func TestGetTraceIDWithoutSpan(t *testing.T) {
	if id := GetTraceID(context.Background()); id != "" {
		t.Errorf("GetTraceID = %q", id)
	}
}

func TestSamplerBounds(t *testing.T) {
	for _, ratio := range []float64{-1, 0, 0.25, 1, 2} {
		if Sampler(ratio) == nil {
			t.Errorf("Sampler(%v) = nil", ratio)
		}
	}
}
