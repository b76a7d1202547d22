package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"mercator-hq/policysync/pkg/config"
)

// Store is the policy store the updater writes into. Paths are
// slash-separated; "/" is the whole document.
type Store interface {
	// Get returns the value at path, or ErrNotFound.
	Get(ctx context.Context, path string) (any, error)

	// Set replaces the value at path, creating missing parents.
	Set(ctx context.Context, path string, data any) error

	// Patch applies data to the value at path as a JSON merge patch.
	Patch(ctx context.Context, path string, data any) error

	// Transaction runs fn in a transaction scope named by id. Writes made
	// through tx are applied as they happen; the scope records them and
	// the remote fetch statuses, and its outcome is kept in the store's
	// history.
	Transaction(ctx context.Context, id string, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the write handle of a transaction scope.
type Tx interface {
	Set(ctx context.Context, path string, data any) error
	Patch(ctx context.Context, path string, data any) error

	// UpdateRemoteStatus records whether fetching url succeeded.
	UpdateRemoteStatus(url string, succeeded bool, err error)
}

// RemoteStatus is the recorded outcome of one remote fetch.
type RemoteStatus struct {
	URL       string `json:"url"`
	Succeeded bool   `json:"succeeded"`
	Error     string `json:"error,omitempty"`
}

// TransactionRecord is the history entry of a finished transaction.
type TransactionRecord struct {
	ID      string         `json:"id"`
	Start   time.Time      `json:"start"`
	End     time.Time      `json:"end"`
	Actions []string       `json:"actions"`
	Remotes []RemoteStatus `json:"remotes"`
	Success bool           `json:"success"`
	Error   string         `json:"error,omitempty"`
}

// backend persists the document and the transaction history.
type backend interface {
	load(ctx context.Context) (map[string]any, error)
	save(ctx context.Context, doc map[string]any) error
	record(ctx context.Context, rec TransactionRecord) error
	history(ctx context.Context, limit int) ([]TransactionRecord, error)
	close() error
}

// DocumentStore keeps the policy data as one JSON document. Reads are
// served from memory; every write is persisted by the backend before it
// becomes visible.
type DocumentStore struct {
	mu      sync.RWMutex
	doc     map[string]any
	backend backend
	closed  bool
	logger  *slog.Logger
}

// Open creates the store selected by cfg.Backend.
func Open(ctx context.Context, cfg config.StoreConfig) (*DocumentStore, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemory(), nil
	case "sqlite":
		return OpenSQLite(ctx, cfg.SQLite)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

func newDocumentStore(ctx context.Context, b backend, name string) (*DocumentStore, error) {
	doc, err := b.load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load document: %w", err)
	}
	if doc == nil {
		doc = make(map[string]any)
	}
	return &DocumentStore{
		doc:     doc,
		backend: b,
		logger:  slog.Default().With("component", "store."+name),
	}, nil
}

// Get returns a value at path. The returned value is shared with the store
// and must not be modified.
func (s *DocumentStore) Get(_ context.Context, path string) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, &PathError{Op: "get", Path: path, Err: ErrClosed}
	}
	v, ok := getIn(s.doc, SplitPath(path))
	if !ok {
		return nil, &PathError{Op: "get", Path: path, Err: ErrNotFound}
	}
	return v, nil
}

// Set replaces the value at path. Setting the root requires an object.
func (s *DocumentStore) Set(ctx context.Context, path string, data any) error {
	return s.write(ctx, "set", path, func(any) (any, error) {
		return normalize(data)
	})
}

// Patch merges data into the value at path.
func (s *DocumentStore) Patch(ctx context.Context, path string, data any) error {
	return s.write(ctx, "patch", path, func(current any) (any, error) {
		patch, err := normalize(data)
		if err != nil {
			return nil, err
		}
		return mergePatch(current, patch)
	})
}

func (s *DocumentStore) write(ctx context.Context, op, path string, compute func(current any) (any, error)) error {
	segs := SplitPath(path)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return &PathError{Op: op, Path: path, Err: ErrClosed}
	}

	current, _ := getIn(s.doc, segs)
	value, err := compute(current)
	if err != nil {
		return &PathError{Op: op, Path: path, Err: err}
	}

	next, err := setIn(s.doc, segs, value)
	if err != nil {
		return &PathError{Op: op, Path: path, Err: err}
	}
	root, ok := next.(map[string]any)
	if !ok {
		return &PathError{Op: op, Path: path, Err: fmt.Errorf("root must be an object: %w", ErrNotObject)}
	}

	if err := s.backend.save(ctx, root); err != nil {
		return &PathError{Op: op, Path: path, Err: err}
	}
	s.doc = root
	return nil
}

// Transaction runs fn in a recorded transaction scope.
func (s *DocumentStore) Transaction(ctx context.Context, id string, fn func(ctx context.Context, tx Tx) error) error {
	tx := &transaction{store: s, rec: TransactionRecord{ID: id, Start: time.Now()}}

	err := fn(ctx, tx)

	rec := tx.finish(err)
	if rerr := s.backend.record(ctx, rec); rerr != nil {
		s.logger.Warn("failed to record transaction", "update_id", id, "error", rerr)
	}
	if !rec.Success {
		s.logger.Warn("transaction finished with failures",
			"update_id", id,
			"actions", len(rec.Actions),
			"remotes", len(rec.Remotes),
			"error", rec.Error)
	}
	return err
}

// Transactions returns up to limit finished transactions, newest first.
func (s *DocumentStore) Transactions(ctx context.Context, limit int) ([]TransactionRecord, error) {
	return s.backend.history(ctx, limit)
}

// Close releases the backend. Further calls fail with ErrClosed.
func (s *DocumentStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.backend.close()
}

type transaction struct {
	store *DocumentStore

	mu     sync.Mutex
	rec    TransactionRecord
	failed bool
}

func (t *transaction) Set(ctx context.Context, path string, data any) error {
	err := t.store.Set(ctx, path, data)
	t.action("set", path, err)
	return err
}

func (t *transaction) Patch(ctx context.Context, path string, data any) error {
	err := t.store.Patch(ctx, path, data)
	t.action("patch", path, err)
	return err
}

func (t *transaction) action(op, path string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rec.Actions = append(t.rec.Actions, op+" "+path)
	if err != nil {
		t.failed = true
	}
}

func (t *transaction) UpdateRemoteStatus(url string, succeeded bool, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	status := RemoteStatus{URL: url, Succeeded: succeeded}
	if err != nil {
		status.Error = err.Error()
	}
	t.rec.Remotes = append(t.rec.Remotes, status)
	if !succeeded {
		t.failed = true
	}
}

func (t *transaction) finish(err error) TransactionRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rec.End = time.Now()
	t.rec.Success = err == nil && !t.failed
	if err != nil {
		t.rec.Error = err.Error()
	}
	return t.rec
}
