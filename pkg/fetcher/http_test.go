package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/go-cmp/cmp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"mercator-hq/policysync/internal/fetchtest"
	"mercator-hq/policysync/pkg/config"
	"mercator-hq/policysync/pkg/security/secrets"
)

func TestHTTPProvider_StatusHandling(t *testing.T) {
	tests := []struct {
		name         string
		response     fetchtest.MockResponse
		wantErr      bool
		wantStatus   int
		wantRequests int
	}{
		{name: "ok", response: fetchtest.MockResponse{Body: map[string]any{"a": 1}}, wantRequests: 1},
		{name: "not found is permanent", response: fetchtest.MockResponse{StatusCode: 404}, wantErr: true, wantStatus: 404, wantRequests: 1},
		{name: "unauthorized is permanent", response: fetchtest.MockResponse{StatusCode: 401}, wantErr: true, wantStatus: 401, wantRequests: 1},
		{name: "server error is retried", response: fetchtest.MockResponse{StatusCode: 503}, wantErr: true, wantStatus: 503, wantRequests: 3},
		{name: "request timeout is retried", response: fetchtest.MockResponse{StatusCode: 408}, wantErr: true, wantStatus: 408, wantRequests: 3},
		{name: "rate limit is retried", response: fetchtest.MockResponse{StatusCode: 429}, wantErr: true, wantStatus: 429, wantRequests: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := fetchtest.NewMockServer()
			t.Cleanup(server.Close)
			server.SetResponse("/r", tt.response)

			cfg := testConfig()
			cfg.Retry.MaxAttempts = 3
			e := newTestEngine(t, cfg)

			_, err := e.HandleURL(context.Background(), server.URL()+"/r", 2*time.Second, nil)
			if (err != nil) != tt.wantErr {
				t.Fatalf("HandleURL() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				var statusErr *HTTPStatusError
				if !errors.As(err, &statusErr) || statusErr.StatusCode != tt.wantStatus {
					t.Errorf("HandleURL() error = %v, want status %d", err, tt.wantStatus)
				}
			}
			if n := len(server.Requests("/r")); n != tt.wantRequests {
				t.Errorf("requests = %d, want %d", n, tt.wantRequests)
			}
		})
	}
}

func TestHTTPProvider_RequestConfig(t *testing.T) {
	server := fetchtest.NewMockServer()
	t.Cleanup(server.Close)
	server.SetResponse("/report", fetchtest.MockResponse{Body: "accepted", Headers: map[string]string{"Content-Type": "text/plain"}})

	e := newTestEngine(t, testConfig())
	cfg := map[string]any{
		"method":  "post",
		"headers": map[string]any{"Authorization": "Bearer s3cret"},
		"data":    map[string]any{"update_id": "u1"},
	}

	got, err := e.HandleURL(context.Background(), server.URL()+"/report", time.Second, cfg)
	if err != nil {
		t.Fatalf("HandleURL() error = %v", err)
	}
	if got != "accepted" {
		t.Errorf("HandleURL() = %#v, want the text body", got)
	}

	reqs := server.Requests("/report")
	if len(reqs) != 1 {
		t.Fatalf("requests = %d, want 1", len(reqs))
	}
	req := reqs[0]
	if req.Method != http.MethodPost {
		t.Errorf("method = %s, want POST", req.Method)
	}
	if h := req.Headers.Get("Authorization"); h != "Bearer s3cret" {
		t.Errorf("Authorization = %q", h)
	}
	if ct := req.Headers.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	var body map[string]any
	if err := json.Unmarshal(req.Body, &body); err != nil {
		t.Fatalf("request body is not JSON: %v", err)
	}
	if diff := cmp.Diff(map[string]any{"update_id": "u1"}, body); diff != "" {
		t.Errorf("request body mismatch (-want +got):\n%s", diff)
	}
}

func TestHTTPProvider_IsJSON(t *testing.T) {
	server := fetchtest.NewMockServer()
	t.Cleanup(server.Close)
	server.SetResponse("/plain", fetchtest.MockResponse{Body: `{"k":"v"}`, Headers: map[string]string{"Content-Type": "text/plain"}})

	e := newTestEngine(t, testConfig())
	got, err := e.HandleURL(context.Background(), server.URL()+"/plain", time.Second, map[string]any{"is_json": true})
	if err != nil {
		t.Fatalf("HandleURL() error = %v", err)
	}
	if diff := cmp.Diff(map[string]any{"k": "v"}, got); diff != "" {
		t.Errorf("HandleURL() mismatch (-want +got):\n%s", diff)
	}
}

func TestHTTPProvider_EmptyBody(t *testing.T) {
	server := fetchtest.NewMockServer()
	t.Cleanup(server.Close)
	server.SetResponse("/no-content", fetchtest.MockResponse{StatusCode: 204})
	server.SetResponse("/blank", fetchtest.MockResponse{Body: " \n", Headers: map[string]string{"Content-Type": "text/plain"}})
	server.SetResponse("/blank-json", fetchtest.MockResponse{Body: "", Headers: map[string]string{"Content-Type": "application/json"}})

	e := newTestEngine(t, testConfig())
	for _, path := range []string{"/no-content", "/blank", "/blank-json"} {
		t.Run(path, func(t *testing.T) {
			got, err := e.HandleURL(context.Background(), server.URL()+path, time.Second, nil)
			if err != nil {
				t.Fatalf("HandleURL() error = %v", err)
			}
			if got != nil {
				t.Errorf("HandleURL() = %#v, want nil", got)
			}
		})
	}
}

func TestNewHTTPProvider_InvalidConfig(t *testing.T) {
	tests := []struct {
		name  string
		event *FetchEvent
	}{
		{name: "empty url", event: &FetchEvent{}},
		{name: "headers not a mapping", event: &FetchEvent{URL: "http://x", Config: map[string]any{"headers": []any{"a"}}}},
		{name: "body not encodable", event: &FetchEvent{URL: "http://x", Config: map[string]any{"data": map[string]any{"c": make(chan int)}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewHTTPProvider(tt.event); err == nil {
				t.Error("NewHTTPProvider() error = nil, want error")
			}
		})
	}
}

func TestClassifyStatus(t *testing.T) {
	err := classifyStatus(&HTTPStatusError{URL: "u", StatusCode: 429}, "7")

	var retryAfter *backoff.RetryAfterError
	if !errors.As(err, &retryAfter) || retryAfter.Duration != 7*time.Second {
		t.Errorf("classifyStatus() = %v, want RetryAfter 7s", err)
	}
	var statusErr *HTTPStatusError
	if !errors.As(err, &statusErr) {
		t.Errorf("classifyStatus() = %v, want the status error kept", err)
	}

	var permanent *backoff.PermanentError
	if !errors.As(classifyStatus(&HTTPStatusError{StatusCode: 422}, ""), &permanent) {
		t.Error("422 should be permanent")
	}
	if errors.As(classifyStatus(&HTTPStatusError{StatusCode: 502}, ""), &permanent) {
		t.Error("502 should be retried")
	}
}

func TestHTTPProvider_PropagatesTraceContext(t *testing.T) {
	server := fetchtest.NewMockServer()
	t.Cleanup(server.Close)
	server.SetResponse("/data", fetchtest.MockResponse{Body: map[string]any{"a": 1}})

	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	e := newTestEngine(t, testConfig(), WithTracer(tp.Tracer("test")))

	ctx, parent := tp.Tracer("test").Start(context.Background(), "update")
	if _, err := e.HandleURL(ctx, server.URL()+"/data", time.Second, nil); err != nil {
		t.Fatalf("HandleURL() error = %v", err)
	}
	parent.End()

	reqs := server.Requests("/data")
	if len(reqs) != 1 {
		t.Fatalf("requests = %d, want 1", len(reqs))
	}
	traceID := parent.SpanContext().TraceID().String()
	if tp := reqs[0].Headers.Get("traceparent"); !strings.Contains(tp, traceID) {
		t.Errorf("traceparent = %q, want trace id %s", tp, traceID)
	}

	// The span ends after the callback that released HandleURL.
	var fetch sdktrace.ReadOnlySpan
	fetchtest.WaitForCondition(t, 2*time.Second, func() bool {
		for _, span := range rec.Ended() {
			if span.Name() == "fetcher.fetch" {
				fetch = span
				return true
			}
		}
		return false
	}, "fetcher.fetch span was not ended")
	if fetch.Parent().SpanID() != parent.SpanContext().SpanID() {
		t.Errorf("fetch span parent = %s, want %s", fetch.Parent().SpanID(), parent.SpanContext().SpanID())
	}
}

func TestHTTPProvider_ResolvesSecretHeaders(t *testing.T) {
	t.Setenv("TEST_FETCH_SECRET_USERS_TOKEN", "s3cret")
	resolver := secrets.NewManager(nil, secrets.NewEnvProvider("TEST_FETCH_SECRET_"))

	server := fetchtest.NewMockServer()
	t.Cleanup(server.Close)
	server.SetResponse("/users", fetchtest.MockResponse{Body: map[string]any{"ok": true}})

	registry := DefaultRegistry()
	registry.Register(HTTPProviderName, HTTPFactory(http.DefaultClient, WithSecretResolver(resolver)))
	e := newTestEngine(t, testConfig(), WithRegistry(registry))

	cfg := map[string]any{"headers": map[string]any{"Authorization": "Bearer ${secret:users-token}"}}
	if _, err := e.HandleURL(context.Background(), server.URL()+"/users", time.Second, cfg); err != nil {
		t.Fatalf("HandleURL() error = %v", err)
	}
	reqs := server.Requests("/users")
	if len(reqs) != 1 {
		t.Fatalf("requests = %d, want 1", len(reqs))
	}
	if h := reqs[0].Headers.Get("Authorization"); h != "Bearer s3cret" {
		t.Errorf("Authorization = %q, want the resolved secret", h)
	}

	cfg = map[string]any{"headers": map[string]any{"Authorization": "Bearer ${secret:missing}"}}
	_, err := e.HandleURL(context.Background(), server.URL()+"/users", time.Second, cfg)
	if err == nil || !strings.Contains(err.Error(), "missing") {
		t.Errorf("HandleURL() error = %v, want unresolved secret", err)
	}
	if n := len(server.Requests("/users")); n != 1 {
		t.Errorf("requests = %d, an unresolved secret must not be sent", n)
	}
}

func TestNewHTTPClient(t *testing.T) {
	client, err := NewHTTPClient(context.Background(), config.HTTPClientConfig{})
	if err != nil {
		t.Fatalf("NewHTTPClient() error = %v", err)
	}
	if client.Timeout != config.DefaultHTTPTimeout {
		t.Errorf("Timeout = %v, want default", client.Timeout)
	}

	_, err = NewHTTPClient(context.Background(), config.HTTPClientConfig{
		TLS: config.ClientTLSConfig{CAFile: t.TempDir() + "/missing.pem"},
	})
	if err == nil {
		t.Error("NewHTTPClient() with a missing CA file should fail")
	}
}
