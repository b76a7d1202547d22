package hlock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
)

var (
	// ErrNotHeld is returned by Release for a path that the releasing
	// context does not hold.
	ErrNotHeld = errors.New("path is not held")

	// ErrReentrant is returned when a context that already holds a path
	// tries to lock the same path, an ancestor or a descendant.
	ErrReentrant = errors.New("path already locked by this context")
)

// Lock is a mutual exclusion lock keyed by hierarchical paths. Two paths
// conflict when they are equal or one is an ancestor of the other; siblings
// never block each other. Path segments are separated by "/" or ".", so
// "a/b" and "a.b" name the same path and "/" is the root.
//
// Requests are served in arrival order among conflicting paths: a request
// is granted only when no held path and no earlier waiter conflicts with
// it. A waiting parent therefore blocks children that arrive after it.
//
// The zero value is ready to use.
type Lock struct {
	mu      sync.Mutex
	held    map[string]*grant
	waiters []*waiter
	logger  *slog.Logger
}

// grant is one successful acquisition. The acquiring context carries it, so
// only that context (or one derived from it) can release the path.
type grant struct {
	key  string
	segs []string
}

type waiter struct {
	g       *grant
	ready   chan struct{}
	granted bool
}

type chainKey struct{}

// New creates a lock.
func New() *Lock {
	return &Lock{
		held:   make(map[string]*grant),
		logger: slog.Default().With("component", "hlock"),
	}
}

// Acquire blocks until path can be locked or ctx is done. The returned
// context records the held path; passing it (or a context derived from it)
// to a later Acquire of a conflicting path fails with ErrReentrant instead
// of deadlocking.
func (l *Lock) Acquire(ctx context.Context, path string) (context.Context, error) {
	segs := split(path)
	g := &grant{key: join(segs), segs: segs}

	for _, h := range chain(ctx) {
		if conflicts(segs, h.segs) {
			return ctx, fmt.Errorf("lock %q while holding %q: %w", g.key, h.key, ErrReentrant)
		}
	}

	l.mu.Lock()
	l.init()
	if l.grantable(segs, len(l.waiters)) {
		l.held[g.key] = g
		l.mu.Unlock()
		return withHeld(ctx, g), nil
	}

	w := &waiter{g: g, ready: make(chan struct{})}
	l.waiters = append(l.waiters, w)
	l.mu.Unlock()

	l.logger.Debug("waiting for lock", "path", g.key)

	select {
	case <-w.ready:
		return withHeld(ctx, g), nil
	case <-ctx.Done():
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if w.granted {
		delete(l.held, g.key)
	} else {
		l.remove(w)
	}
	l.dispatch()
	return ctx, ctx.Err()
}

// Release unlocks path. ctx must be the context returned by the Acquire
// that locked path, or one derived from it; releasing a path that ctx does
// not hold returns ErrNotHeld and leaves the lock untouched.
func (l *Lock) Release(ctx context.Context, path string) error {
	key := join(split(path))

	l.mu.Lock()
	defer l.mu.Unlock()

	g, ok := l.held[key]
	if !ok || !slices.Contains(chain(ctx), g) {
		return fmt.Errorf("release %q: %w", key, ErrNotHeld)
	}
	delete(l.held, key)
	l.dispatch()
	return nil
}

// WithLock runs fn while holding path. The lock is released however fn
// returns.
func (l *Lock) WithLock(ctx context.Context, path string, fn func(ctx context.Context) error) error {
	lockedCtx, err := l.Acquire(ctx, path)
	if err != nil {
		return err
	}
	defer func() {
		if err := l.Release(lockedCtx, path); err != nil {
			l.logger.Error("failed to release lock", "path", path, "error", err)
		}
	}()
	return fn(lockedCtx)
}

// IsLocked reports whether exactly path is currently held.
func (l *Lock) IsLocked(path string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.held[join(split(path))]
	return ok
}

// Waiters returns the number of blocked Acquire calls.
func (l *Lock) Waiters() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.waiters)
}

func (l *Lock) init() {
	if l.held == nil {
		l.held = make(map[string]*grant)
	}
	if l.logger == nil {
		l.logger = slog.Default().With("component", "hlock")
	}
}

// grantable reports whether segs conflicts with no held path and none of
// the first n waiters. Callers hold l.mu.
func (l *Lock) grantable(segs []string, n int) bool {
	for _, h := range l.held {
		if conflicts(segs, h.segs) {
			return false
		}
	}
	for _, w := range l.waiters[:n] {
		if conflicts(segs, w.g.segs) {
			return false
		}
	}
	return true
}

// dispatch grants waiters in arrival order. Callers hold l.mu.
func (l *Lock) dispatch() {
	for i := 0; i < len(l.waiters); {
		w := l.waiters[i]
		if !l.grantable(w.g.segs, i) {
			i++
			continue
		}
		l.held[w.g.key] = w.g
		w.granted = true
		close(w.ready)
		l.waiters = append(l.waiters[:i], l.waiters[i+1:]...)
	}
}

func (l *Lock) remove(w *waiter) {
	for i, other := range l.waiters {
		if other == w {
			l.waiters = append(l.waiters[:i], l.waiters[i+1:]...)
			return
		}
	}
}

func split(path string) []string {
	return strings.FieldsFunc(path, func(r rune) bool { return r == '/' || r == '.' })
}

func join(segs []string) string {
	return "/" + strings.Join(segs, "/")
}

// Conflicts reports whether locking a and b at the same time is impossible:
// the paths are equal or one is an ancestor of the other.
func Conflicts(a, b string) bool {
	return conflicts(split(a), split(b))
}

func conflicts(a, b []string) bool {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func chain(ctx context.Context) []*grant {
	held, _ := ctx.Value(chainKey{}).([]*grant)
	return held
}

func withHeld(ctx context.Context, g *grant) context.Context {
	prev := chain(ctx)
	held := make([]*grant, 0, len(prev)+1)
	held = append(held, prev...)
	held = append(held, g)
	return context.WithValue(ctx, chainKey{}, held)
}
