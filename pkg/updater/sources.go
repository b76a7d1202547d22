package updater

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// SourcesProvider loads the base data source configuration.
type SourcesProvider interface {
	Load(ctx context.Context) (*DataSourceConfig, error)
}

// Watcher is implemented by providers that can report configuration
// changes. Watch blocks until ctx is done, calling onChange after each
// change.
type Watcher interface {
	Watch(ctx context.Context, onChange func()) error
}

// DataFetcher fetches a URL and returns the processed result.
type DataFetcher interface {
	FetchData(ctx context.Context, url string, cfg map[string]any) (any, error)
}

// URLSources loads the configuration from a URL through the fetcher.
type URLSources struct {
	fetcher DataFetcher
	url     string
	config  map[string]any
}

// NewURLSources creates a provider fetching url.
func NewURLSources(f DataFetcher, url string, cfg map[string]any) *URLSources {
	return &URLSources{fetcher: f, url: url, config: cfg}
}

// Load fetches and decodes the configuration.
func (s *URLSources) Load(ctx context.Context) (*DataSourceConfig, error) {
	data, err := s.fetcher.FetchData(ctx, s.url, s.config)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch data sources from %s: %w", s.url, err)
	}

	var encoded []byte
	switch v := data.(type) {
	case string:
		encoded = []byte(v)
	default:
		encoded, err = json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to re-encode data sources: %w", err)
		}
	}

	var cfg DataSourceConfig
	if err := json.Unmarshal(encoded, &cfg); err != nil {
		return nil, fmt.Errorf("invalid data sources from %s: %w", s.url, err)
	}
	return &cfg, nil
}

// FileSources loads the configuration from a local YAML or JSON file and
// reports changes to it.
type FileSources struct {
	path     string
	debounce time.Duration
	logger   *slog.Logger
}

// NewFileSources creates a provider reading path.
func NewFileSources(path string) *FileSources {
	return &FileSources{
		path:     path,
		debounce: 100 * time.Millisecond,
		logger:   slog.Default().With("component", "updater.sources", "path", path),
	}
}

// Load reads and decodes the file. JSON files parse as YAML.
func (s *FileSources) Load(_ context.Context) (*DataSourceConfig, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read data sources: %w", err)
	}
	var cfg DataSourceConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse data sources %s: %w", s.path, err)
	}
	return &cfg, nil
}

// Watch watches the file's directory, so the file can be replaced
// atomically by editors and config management tools. Bursts of events are
// debounced into one onChange call.
func (s *FileSources) Watch(ctx context.Context, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	target := filepath.Clean(s.path)

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if filepath.Clean(event.Name) != target || event.Op == fsnotify.Chmod {
				continue
			}
			s.logger.Debug("data sources file changed", "op", event.Op.String())
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(s.debounce, func() {
				if ctx.Err() == nil {
					onChange()
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			s.logger.Error("file watcher error", "error", err)
		}
	}
}
