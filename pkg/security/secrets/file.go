package secrets

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// FileProvider reads secrets from files in a directory. Values are trimmed
// of surrounding whitespace and kept until Refresh, or until the file
// changes when watching.
type FileProvider struct {
	dir    string
	logger *slog.Logger

	mu     sync.RWMutex
	values map[string]string

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewFileProvider creates a provider over dir. With watch set, cached
// values are dropped whenever a file in dir is written, created or
// removed; Close stops the watcher.
func NewFileProvider(dir string, watch bool) (*FileProvider, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("secrets directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("secrets directory %s is not a directory", dir)
	}

	p := &FileProvider{
		dir:    dir,
		logger: slog.Default().With("component", "secrets.file"),
		values: make(map[string]string),
		done:   make(chan struct{}),
	}

	if watch {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, fmt.Errorf("failed to create secrets watcher: %w", err)
		}
		if err := w.Add(dir); err != nil {
			_ = w.Close()
			return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
		}
		p.watcher = w
		go p.watchLoop()
	}

	p.logger.Info("file secret provider ready", "path", dir, "watch", watch)
	return p, nil
}

// GetSecret reads dir/name. Names escaping dir and files readable by group
// or others are rejected.
func (p *FileProvider) GetSecret(_ context.Context, name string) (string, error) {
	p.mu.RLock()
	v, ok := p.values[name]
	p.mu.RUnlock()
	if ok {
		return v, nil
	}

	if name == "" || !filepath.IsLocal(name) {
		return "", fmt.Errorf("invalid secret name %q", name)
	}
	path := filepath.Join(p.dir, name)

	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%s: %w in %s", name, ErrSecretNotFound, p.dir)
	}
	if err != nil {
		return "", fmt.Errorf("failed to stat secret %s: %w", name, err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("secret %s is not a regular file", name)
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		return "", fmt.Errorf("insecure permissions %o on secret %s", perm, name)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read secret %s: %w", name, err)
	}
	v = strings.TrimSpace(string(data))

	p.mu.Lock()
	p.values[name] = v
	p.mu.Unlock()
	return v, nil
}

// Name implements Provider.
func (p *FileProvider) Name() string { return "file" }

// Refresh drops every cached value.
func (p *FileProvider) Refresh(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	clear(p.values)
	return nil
}

// Close stops watching the directory.
func (p *FileProvider) Close() error {
	if p.watcher == nil {
		return nil
	}
	select {
	case <-p.done:
		return nil
	default:
	}
	close(p.done)
	return p.watcher.Close()
}

func (p *FileProvider) watchLoop() {
	for {
		select {
		case ev, ok := <-p.watcher.Events:
			if !ok {
				return
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				p.logger.Debug("secret file changed", "file", filepath.Base(ev.Name), "op", ev.Op.String())
				_ = p.Refresh(context.Background())
			}
		case err, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
			p.logger.Error("secrets watcher error", "error", err)
		case <-p.done:
			return
		}
	}
}
