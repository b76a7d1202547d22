package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mercator-hq/policysync/internal/fetchtest"
	"mercator-hq/policysync/pkg/config"
	"mercator-hq/policysync/pkg/telemetry/health"
)

func metricsConfig(enabled bool) config.MetricsConfig {
	return config.MetricsConfig{Enabled: enabled, ListenAddress: "127.0.0.1:0", Path: "/metrics"}
}

var fakeMetrics = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	_, _ = io.WriteString(w, "policysync_updates_total 1\n")
})

func TestServer_Routes(t *testing.T) {
	tests := []struct {
		name     string
		enabled  bool
		path     string
		wantCode int
	}{
		{name: "liveness", enabled: true, path: health.LivenessPath, wantCode: http.StatusOK},
		{name: "readiness", enabled: true, path: health.ReadinessPath, wantCode: http.StatusOK},
		{name: "metrics enabled", enabled: true, path: "/metrics", wantCode: http.StatusOK},
		{name: "metrics disabled", enabled: false, path: "/metrics", wantCode: http.StatusNotFound},
		{name: "probes without metrics", enabled: false, path: health.LivenessPath, wantCode: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := New(metricsConfig(tt.enabled), health.New(time.Second), fakeMetrics)
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != tt.wantCode {
				t.Errorf("GET %s = %d, want %d", tt.path, rec.Code, tt.wantCode)
			}
		})
	}
}

func TestServer_MetricsToken(t *testing.T) {
	cfg := metricsConfig(true)
	cfg.BearerToken = "scrape-token"
	h := New(cfg, nil, fakeMetrics).Handler()

	tests := []struct {
		name     string
		path     string
		header   string
		wantCode int
	}{
		{name: "metrics without token", path: "/metrics", wantCode: http.StatusUnauthorized},
		{name: "metrics with token", path: "/metrics", header: "Bearer scrape-token", wantCode: http.StatusOK},
		{name: "probe without token", path: health.LivenessPath, wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.wantCode {
				t.Errorf("GET %s = %d, want %d", tt.path, rec.Code, tt.wantCode)
			}
		})
	}
}

func TestServer_RecoversPanics(t *testing.T) {
	panicking := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") })
	srv := New(metricsConfig(true), nil, panicking)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("code = %d, want 500", rec.Code)
	}
}

func TestServer_Lifecycle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := New(metricsConfig(true), health.New(time.Second), fakeMetrics)
	if srv.Addr() != "" {
		t.Errorf("Addr() before Start = %q", srv.Addr())
	}
	if err := srv.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := srv.Start(ctx); err == nil {
		t.Error("second Start() should fail")
	}

	resp, err := http.Get("http://" + srv.Addr() + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics error = %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "policysync_updates_total 1\n" {
		t.Errorf("metrics body = %q", body)
	}

	cancel()
	fetchtest.WaitForCondition(t, 2*time.Second, func() bool { return !srv.IsRunning() }, "server did not stop on context cancellation")
	if err := srv.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() after stop error = %v", err)
	}
	if err := srv.Start(context.Background()); err == nil {
		t.Error("Start() after shutdown should fail")
	}
}

func TestServer_ListenError(t *testing.T) {
	srv := New(config.MetricsConfig{ListenAddress: "127.0.0.1:99999"}, nil, nil)
	if err := srv.Start(context.Background()); err == nil {
		t.Fatal("Start() on an invalid address should fail")
	}
	if srv.IsRunning() {
		t.Error("server running after a failed Start")
	}
}
