package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v3"
)

type sample struct {
	Name     string   `json:"name"`
	Manifest []string `json:"manifest"`
	Previous string   `json:"previous,omitempty"`
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{in: "", want: FormatText},
		{in: "text", want: FormatText},
		{in: "json", want: FormatJSON},
		{in: "yaml", want: FormatYAML},
		{in: "csv", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if tt.wantErr {
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Errorf("ParseFormat(%q) error = %T, want *ConfigError", tt.in, err)
			}
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTextFormatter(t *testing.T) {
	buf := &bytes.Buffer{}
	if err := NewFormatter(FormatText).FormatTo(buf, "3 modules"); err != nil {
		t.Fatal(err)
	}
	if got, want := buf.String(), "3 modules\n"; got != want {
		t.Errorf("FormatTo() = %q, want %q", got, want)
	}
}

func TestJSONFormatter(t *testing.T) {
	data := sample{Name: "bundle", Manifest: []string{"lib.rego", "world.rego"}}

	buf := &bytes.Buffer{}
	if err := NewFormatter(FormatJSON).FormatTo(buf, data); err != nil {
		t.Fatal(err)
	}

	var got sample
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, buf.String())
	}
	if diff := cmp.Diff(data, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	compact, err := (&JSONFormatter{}).Format(data)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(compact, []byte("\n")) {
		t.Errorf("compact output contains newlines: %s", compact)
	}
}

func TestYAMLFormatter(t *testing.T) {
	data := sample{Name: "bundle", Manifest: []string{"lib.rego"}}

	out, err := NewFormatter(FormatYAML).Format(data)
	if err != nil {
		t.Fatal(err)
	}

	var got map[string]any
	if err := yaml.Unmarshal(out, &got); err != nil {
		t.Fatalf("output is not valid YAML: %v\n%s", err, out)
	}
	want := map[string]any{"name": "bundle", "manifest": []any{"lib.rego"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("YAML output mismatch (-want +got):\n%s", diff)
	}

	if _, err := (&YAMLFormatter{}).Format(make(chan int)); err == nil {
		t.Error("Format() of an unencodable value succeeded")
	}
}
