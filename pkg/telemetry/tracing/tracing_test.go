package tracing

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"mercator-hq/policysync/pkg/config"
)

func newRecordingTracer(t *testing.T) (*Tracer, *tracetest.SpanRecorder) {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tr := newWithProcessor("policysync-test", sdktrace.AlwaysSample(), rec)
	t.Cleanup(func() { _ = tr.Shutdown(context.Background()) })
	return tr, rec
}

func TestCreateSampler(t *testing.T) {
	tests := []struct {
		name     string
		strategy string
		ratio    float64
		wantErr  bool
	}{
		{name: "always", strategy: SamplerAlways},
		{name: "never", strategy: SamplerNever},
		{name: "ratio zero", strategy: SamplerRatio, ratio: 0},
		{name: "ratio half", strategy: SamplerRatio, ratio: 0.5},
		{name: "ratio one", strategy: SamplerRatio, ratio: 1},
		{name: "ratio negative", strategy: SamplerRatio, ratio: -0.1, wantErr: true},
		{name: "ratio above one", strategy: SamplerRatio, ratio: 1.5, wantErr: true},
		{name: "unknown", strategy: "sometimes", ratio: 0.5, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sampler, err := createSampler(tt.strategy, tt.ratio)
			if (err != nil) != tt.wantErr {
				t.Fatalf("createSampler() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && sampler == nil {
				t.Error("createSampler() returned nil sampler")
			}
		})
	}
}

func TestNew(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Error("New(nil) should fail")
	}
	if _, err := New(&config.TracingConfig{Enabled: true, Sampler: "sometimes"}); err == nil {
		t.Error("New() with an unknown sampler should fail")
	}
}

func TestNew_Disabled(t *testing.T) {
	tr, err := New(&config.TracingConfig{Enabled: false})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if tr.Enabled() {
		t.Error("disabled tracer reports enabled")
	}

	_, span := tr.Start(context.Background(), "noop")
	if span.IsRecording() {
		t.Error("disabled tracer returned a recording span")
	}
	span.End()

	if err := tr.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestEnd(t *testing.T) {
	tr, rec := newRecordingTracer(t)

	_, ok := tr.Start(context.Background(), "ok")
	End(ok, nil)
	_, failed := tr.Start(context.Background(), "failed", trace.WithAttributes(AttrURL.String("http://source/data")))
	End(failed, errors.New("fetch failed"))

	spans := rec.Ended()
	if len(spans) != 2 {
		t.Fatalf("ended spans = %d, want 2", len(spans))
	}
	if spans[0].Status().Code != codes.Ok {
		t.Errorf("ok span status = %v", spans[0].Status())
	}
	if got := spans[1].Status(); got.Code != codes.Error || got.Description != "fetch failed" {
		t.Errorf("failed span status = %+v", got)
	}
	if len(spans[1].Events()) != 1 {
		t.Errorf("failed span events = %d, want 1 recorded error", len(spans[1].Events()))
	}
	if v, ok := spans[0].Resource().Set().Value("service.name"); !ok || v.AsString() != "policysync-test" {
		t.Errorf("service.name = %v", v)
	}
}

func TestInjectExtract(t *testing.T) {
	tr, _ := newRecordingTracer(t)

	headers := http.Header{}
	Inject(context.Background(), headers)
	if got := headers.Get("traceparent"); got != "" {
		t.Errorf("traceparent injected without a span: %q", got)
	}

	ctx, span := tr.Start(context.Background(), "fetch")
	defer span.End()
	Inject(ctx, headers)
	if headers.Get("traceparent") == "" {
		t.Fatal("traceparent not injected")
	}

	remote := trace.SpanContextFromContext(Extract(context.Background(), headers))
	if !remote.IsRemote() {
		t.Error("extracted span context is not remote")
	}
	if remote.TraceID() != span.SpanContext().TraceID() {
		t.Errorf("trace id = %s, want %s", remote.TraceID(), span.SpanContext().TraceID())
	}
	if remote.SpanID() != span.SpanContext().SpanID() {
		t.Errorf("span id = %s, want %s", remote.SpanID(), span.SpanContext().SpanID())
	}
}
