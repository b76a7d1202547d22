package git

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ChangeCallback is called when the tracked branch moved from oldSHA to
// newSHA. Returning an error keeps oldSHA as the last delivered commit, so
// the next poll reports the whole range again.
type ChangeCallback func(ctx context.Context, oldSHA, newSHA string) error

// DefaultDebounce is how long the watcher waits for further commits before
// delivering a change.
const DefaultDebounce = 100 * time.Millisecond

// Watcher polls a Repository and reports branch movements.
//
// Rapid successive commits are debounced into a single callback spanning
// the whole range. Commits that touch no relevant file (see SetFilter)
// advance the watcher without invoking the callback.
//
//	watcher := git.NewWatcher(repo, 30*time.Second, 10*time.Second, onChange)
//	if err := watcher.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer watcher.Stop()
type Watcher struct {
	repo          *Repository
	pollInterval  time.Duration
	pollTimeout   time.Duration
	debounce      time.Duration
	stopCh        chan struct{}
	onChange      ChangeCallback
	filter        func(path string) bool
	lastCommitSHA string
	mu            sync.RWMutex
	running       bool
	debounceTimer *time.Timer
	debounceMu    sync.Mutex
	notifyMu      sync.Mutex
	logger        *slog.Logger
	metrics       *WatcherMetrics
}

// WatcherMetrics tracks watcher operation metrics.
type WatcherMetrics struct {
	PollCount               int64
	SuccessfulNotifications int64
	FailedNotifications     int64
	LastNotifyTime          time.Time
	LastNotifyDur           time.Duration
	SkippedPolls            int64 // no relevant file changed
}

// NewWatcher creates a watcher that polls repo every interval, bounding
// each pull by timeout.
func NewWatcher(repo *Repository, interval, timeout time.Duration, onChange ChangeCallback) *Watcher {
	return &Watcher{
		repo:         repo,
		pollInterval: interval,
		pollTimeout:  timeout,
		debounce:     DefaultDebounce,
		onChange:     onChange,
		stopCh:       make(chan struct{}),
		logger:       slog.Default().With("component", "git.watcher"),
		metrics:      &WatcherMetrics{},
	}
}

// SetLogger sets a custom logger for the watcher.
func (w *Watcher) SetLogger(logger *slog.Logger) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.logger = logger
}

// SetFilter restricts notifications to changes touching at least one path
// accepted by filter.
func (w *Watcher) SetFilter(filter func(path string) bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.filter = filter
}

// SetDebounce overrides DefaultDebounce.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.debounce = d
}

// Start records the current head and begins polling in the background until
// ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher already running")
	}

	commit, err := w.repo.GetCurrentCommit()
	if err != nil {
		w.mu.Unlock()
		return fmt.Errorf("failed to get initial commit: %w", err)
	}
	w.lastCommitSHA = commit.SHA
	w.running = true
	w.mu.Unlock()

	w.logger.Info("watcher started",
		"poll_interval", w.pollInterval,
		"initial_commit", shortSHA(commit.SHA))

	go w.pollLoop(ctx)

	return nil
}

// Stop signals the polling loop to exit and cancels a pending notification.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return fmt.Errorf("watcher not running")
	}

	w.logger.Info("stopping watcher")
	close(w.stopCh)
	w.running = false

	w.debounceMu.Lock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceMu.Unlock()

	return nil
}

// IsRunning returns true if the watcher is currently running.
func (w *Watcher) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

func (w *Watcher) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watcher stopped by context cancellation")
			return
		case <-w.stopCh:
			w.logger.Info("watcher stopped by Stop()")
			return
		case <-ticker.C:
			if err := w.checkForChanges(ctx); err != nil {
				w.logger.Error("error checking for changes", "error", err)
			}
		}
	}
}

// checkForChanges compares the branch head against the last delivered
// commit rather than against the previous pull, so a failed notification is
// retried on the next poll.
func (w *Watcher) checkForChanges(ctx context.Context) error {
	w.mu.Lock()
	w.metrics.PollCount++
	w.mu.Unlock()

	pullCtx, cancel := context.WithTimeout(ctx, w.pollTimeout)
	defer cancel()

	result, err := w.repo.Pull(pullCtx)
	if err != nil {
		return fmt.Errorf("failed to pull: %w", err)
	}

	last := w.GetLastCommitSHA()
	if result.ToSHA == last {
		return nil
	}

	changed, err := w.repo.GetChangedFiles(ctx, last, result.ToSHA)
	if err != nil {
		return fmt.Errorf("failed to list changed files: %w", err)
	}

	w.logger.Info("detected changes",
		"from_sha", shortSHA(last),
		"to_sha", shortSHA(result.ToSHA),
		"changed_files", len(changed))

	if !w.isRelevant(changed) {
		w.mu.Lock()
		w.metrics.SkippedPolls++
		w.lastCommitSHA = result.ToSHA
		w.mu.Unlock()
		w.logger.Info("no relevant files changed, skipping notification",
			"changed_files", changed)
		return nil
	}

	w.debounceNotify(ctx, result.ToSHA)
	return nil
}

func (w *Watcher) isRelevant(files []string) bool {
	w.mu.RLock()
	filter := w.filter
	w.mu.RUnlock()

	if filter == nil {
		return len(files) > 0
	}
	for _, f := range files {
		if filter(f) {
			return true
		}
	}
	return false
}

// debounceNotify delays delivery so that a burst of commits produces one
// callback for the newest head.
func (w *Watcher) debounceNotify(ctx context.Context, newSHA string) {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}

	w.mu.RLock()
	delay := w.debounce
	w.mu.RUnlock()

	w.debounceTimer = time.AfterFunc(delay, func() {
		if err := w.notify(ctx, newSHA); err != nil {
			w.logger.Error("change notification failed", "error", err)
		}
	})
}

func (w *Watcher) notify(ctx context.Context, newSHA string) error {
	w.notifyMu.Lock()
	defer w.notifyMu.Unlock()

	oldSHA := w.GetLastCommitSHA()
	if oldSHA == newSHA {
		return nil
	}

	start := time.Now()
	err := w.onChange(ctx, oldSHA, newSHA)
	dur := time.Since(start)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.metrics.LastNotifyDur = dur
	w.metrics.LastNotifyTime = time.Now()

	if err != nil {
		w.metrics.FailedNotifications++
		return fmt.Errorf("notify %s..%s: %w", shortSHA(oldSHA), shortSHA(newSHA), err)
	}

	w.lastCommitSHA = newSHA
	w.metrics.SuccessfulNotifications++
	w.logger.Info("delivered change notification",
		"from_sha", shortSHA(oldSHA),
		"to_sha", shortSHA(newSHA),
		"duration", dur)
	return nil
}

// ForceCheck polls immediately and delivers any pending change without
// waiting for the debounce delay.
func (w *Watcher) ForceCheck(ctx context.Context) error {
	if !w.IsRunning() {
		return fmt.Errorf("watcher not running")
	}

	w.logger.Info("force checking for changes")
	if err := w.checkForChanges(ctx); err != nil {
		return err
	}

	w.debounceMu.Lock()
	pending := w.debounceTimer != nil && w.debounceTimer.Stop()
	w.debounceMu.Unlock()
	if !pending {
		return nil
	}

	head, err := w.repo.GetCurrentCommit()
	if err != nil {
		return err
	}
	return w.notify(ctx, head.SHA)
}

// GetLastCommitSHA returns the last commit delivered to the callback, or the
// head recorded at Start.
func (w *Watcher) GetLastCommitSHA() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.lastCommitSHA
}

// GetMetrics returns a copy of the watcher metrics.
func (w *Watcher) GetMetrics() WatcherMetrics {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return *w.metrics
}
