package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/cenkalti/backoff/v5"
	"gopkg.in/yaml.v3"
)

// FileProviderName is the registry name of the file provider.
const FileProviderName = "file"

// FileProvider reads a local file. The URL is either a plain path or a
// file:// URL. Files ending in .json are decoded as JSON, .yaml and .yml as
// YAML; anything else is returned as a string.
type FileProvider struct {
	path string
}

// NewFileProvider is the Factory of the file provider.
func NewFileProvider(event *FetchEvent) (Provider, error) {
	p, err := filePath(event.URL)
	if err != nil {
		return nil, err
	}
	return &FileProvider{path: p}, nil
}

func filePath(raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("file provider: url cannot be empty")
	}
	if !strings.HasPrefix(raw, "file://") {
		return raw, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("file provider: invalid url %q: %w", raw, err)
	}
	return u.Path, nil
}

// Fetch reads the file. A missing file is a permanent error.
func (p *FileProvider) Fetch(_ context.Context) (any, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(p.path)) {
	case ".json":
		var decoded any
		if err := json.Unmarshal(data, &decoded); err != nil {
			return nil, backoff.Permanent(fmt.Errorf("invalid JSON in %s: %w", p.path, err))
		}
		return decoded, nil
	case ".yaml", ".yml":
		var decoded any
		if err := yaml.Unmarshal(data, &decoded); err != nil {
			return nil, backoff.Permanent(fmt.Errorf("invalid YAML in %s: %w", p.path, err))
		}
		return decoded, nil
	default:
		return string(data), nil
	}
}

// Process returns the fetched data unchanged.
func (p *FileProvider) Process(_ context.Context, data any) (any, error) {
	return data, nil
}
