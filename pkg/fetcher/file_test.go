package fetcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFileProvider(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
		return p
	}

	tests := []struct {
		name string
		url  string
		want any
	}{
		{
			name: "json",
			url:  write("roles.json", `{"admin": ["alice"]}`),
			want: map[string]any{"admin": []any{"alice"}},
		},
		{
			name: "yaml via file url",
			url:  "file://" + write("sources.yaml", "entries:\n  - url: https://example.com\n"),
			want: map[string]any{"entries": []any{map[string]any{"url": "https://example.com"}}},
		},
		{
			name: "text",
			url:  write("notes.txt", "hello"),
			want: "hello",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewFileProvider(&FetchEvent{URL: tt.url, Provider: FileProviderName})
			if err != nil {
				t.Fatalf("NewFileProvider() error = %v", err)
			}
			got, err := p.Fetch(context.Background())
			if err != nil {
				t.Fatalf("Fetch() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Fetch() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFileProvider_MissingIsNotRetried(t *testing.T) {
	failures := newFailureLog()
	e := newTestEngine(t, testConfig(), WithFailureHandler(failures.handler))

	missing := filepath.Join(t.TempDir(), "missing.json")
	_, err := e.HandleURL(context.Background(), missing, 0, map[string]any{"fetcher": FileProviderName})
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("HandleURL() error = %v, want os.ErrNotExist", err)
	}
}

func TestRegistry(t *testing.T) {
	r := DefaultRegistry()
	if diff := cmp.Diff([]string{"file", "http"}, r.Names()); diff != "" {
		t.Errorf("Names() mismatch (-want +got):\n%s", diff)
	}

	p, err := r.New(&FetchEvent{URL: "http://example.com"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, ok := p.(*HTTPProvider); !ok {
		t.Errorf("New() without provider = %T, want *HTTPProvider", p)
	}

	_, err = r.New(&FetchEvent{URL: "x", Provider: "s3"})
	if !errors.Is(err, ErrNoSuchProvider) {
		t.Errorf("New() unknown provider error = %v, want ErrNoSuchProvider", err)
	}
}
