package callbacks

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Entry is a report destination.
type Entry struct {
	Key    string         `json:"key,omitempty" yaml:"key"`
	URL    string         `json:"url" yaml:"url"`
	Config map[string]any `json:"config,omitempty" yaml:"config"`
}

// Key derives the key of a destination from its URL and config. Config
// maps are encoded with sorted keys, so equal configs built in different
// orders or processes produce the same key. A nil config and an empty one
// are the same.
func Key(url string, cfg map[string]any) (string, error) {
	if cfg == nil {
		cfg = map[string]any{}
	}
	encoded, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("failed to encode callback config: %w", err)
	}

	h := sha256.New()
	h.Write([]byte(url))
	h.Write(encoded)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Register holds the destinations that receive every update report.
type Register struct {
	mu      sync.RWMutex
	entries map[string]Entry
	logger  *slog.Logger
}

// NewRegister creates a register holding initial.
func NewRegister(initial ...Entry) (*Register, error) {
	r := &Register{
		entries: make(map[string]Entry),
		logger:  slog.Default().With("component", "callbacks.register"),
	}
	for _, e := range initial {
		if _, err := r.Put(e.Key, e.URL, e.Config); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Put stores a destination and returns its key. With an empty key the key
// is derived from url and cfg. Any entry stored under the derived key is
// replaced, so registering the same destination twice keeps one entry.
func (r *Register) Put(key, url string, cfg map[string]any) (string, error) {
	derived, err := Key(url, cfg)
	if err != nil {
		return "", err
	}
	if key == "" {
		key = derived
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[derived]; ok {
		delete(r.entries, derived)
	}
	r.entries[key] = Entry{Key: key, URL: url, Config: cfg}
	r.logger.Info("registered callback", "key", key, "url", url)
	return key, nil
}

// Get returns the entry stored under key.
func (r *Register) Get(key string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[key]
	return e, ok
}

// Remove deletes the entry stored under key. Missing keys are ignored.
func (r *Register) Remove(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[key]; ok {
		delete(r.entries, key)
		r.logger.Info("removed callback", "key", key)
	}
}

// All returns every entry ordered by key.
func (r *Register) All() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
