package updater

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/multierr"

	"mercator-hq/policysync/pkg/config"
	"mercator-hq/policysync/pkg/hlock"
	"mercator-hq/policysync/pkg/pubsub"
	"mercator-hq/policysync/pkg/store"
	"mercator-hq/policysync/pkg/telemetry/logging"
	"mercator-hq/policysync/pkg/telemetry/tracing"
	"mercator-hq/policysync/pkg/updater/callbacks"
)

// ErrEmptyResult is reported for entries whose fetch returned no data.
var ErrEmptyResult = errors.New("fetch returned no data")

// Reasons attached to updates the updater creates itself.
const (
	ReasonInitialLoad    = "Initial load"
	ReasonPeriodicUpdate = "Periodic update"
)

// State is the connection state of an Updater.
type State int32

const (
	StateStopped State = iota
	StateSubscribing
	StateSynced
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateSubscribing:
		return "subscribing"
	case StateSynced:
		return "synced"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Fetcher retrieves entry payloads. fetcher.DataFetcher implements it.
type Fetcher interface {
	DataFetcher
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Reporter receives the report of every applied update that should be
// reported. callbacks.Reporter implements it.
type Reporter interface {
	Report(ctx context.Context, report any, extra ...callbacks.Entry)
}

// Recorder records updater metrics. metrics.Collector implements it.
type Recorder interface {
	RecordEntry(outcome string)
	RecordUpdate(duration time.Duration, entries int)
	RecordNotification(topic string)
}

// Entry outcomes passed to Recorder.RecordEntry.
const (
	OutcomeSaved       = "saved"
	OutcomeFetchFailed = "fetch_failed"
	OutcomeSaveFailed  = "save_failed"
)

// Option configures an Updater.
type Option func(*Updater)

// WithReporter sets the destination of update reports.
func WithReporter(r Reporter) Option {
	return func(u *Updater) { u.reporter = r }
}

// WithSources sets the provider of the base data configuration loaded on
// every connect. A provider that also implements Watcher triggers a base
// load whenever its configuration changes.
func WithSources(p SourcesProvider) Option {
	return func(u *Updater) { u.sources = p }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(u *Updater) { u.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(u *Updater) { u.logger = l }
}

// WithTracer sets the tracer that records a span per update and per entry.
func WithTracer(t trace.Tracer) Option {
	return func(u *Updater) { u.tracer = t }
}

// WithLock shares a path lock with other writers of the same store.
func WithLock(l *hlock.Lock) Option {
	return func(u *Updater) { u.lock = l }
}

// Updater keeps a policy store in sync with the data topics it subscribes
// to.
//
// Each notification is applied as an independent task, so a slow update
// never delays the receipt of the next one. Writes are serialized per
// destination path by a hierarchical lock; there is no ordering between
// updates.
type Updater struct {
	cfg        config.ClientConfig
	subscriber pubsub.Subscriber
	fetcher    Fetcher
	store      store.Store
	lock       *hlock.Lock
	scheduler  *Scheduler
	sources    SourcesProvider
	reporter   Reporter
	recorder   Recorder
	tracer     trace.Tracer
	logger     *slog.Logger

	state  atomic.Int32
	loadMu sync.Mutex

	mu          sync.Mutex
	running     bool
	cancel      context.CancelFunc
	subDone     chan struct{}
	taskCtx     context.Context
	cancelTasks context.CancelFunc
	tasks       sync.WaitGroup
}

// New creates a stopped updater.
func New(cfg config.ClientConfig, sub pubsub.Subscriber, f Fetcher, s store.Store, opts ...Option) *Updater {
	if len(cfg.DataTopics) == 0 {
		cfg.DataTopics = []string{config.DefaultClientDataTopic}
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = config.DefaultClientShutdownTimeout
	}

	u := &Updater{
		cfg:        cfg,
		subscriber: sub,
		fetcher:    f,
		store:      s,
		logger:     slog.Default().With("component", "updater"),
	}
	for _, opt := range opts {
		opt(u)
	}
	if u.lock == nil {
		u.lock = hlock.New()
	}
	if u.tracer == nil {
		u.tracer = noop.NewTracerProvider().Tracer(tracing.InstrumentationName)
	}
	u.scheduler = NewScheduler(u.logger.With("subcomponent", "scheduler"))
	return u
}

// State returns the current connection state.
func (u *Updater) State() State {
	return State(u.state.Load())
}

func (u *Updater) setState(s State) {
	old := State(u.state.Swap(int32(s)))
	if old != s {
		u.logger.Info("updater state changed", "from", old.String(), "to", s.String())
	}
}

// Start starts the fetcher and subscribes to the data topics in the
// background. The updater is synced once the transport connects.
func (u *Updater) Start(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.running {
		return fmt.Errorf("updater already running")
	}
	if err := u.fetcher.Start(ctx); err != nil {
		return fmt.Errorf("failed to start fetcher: %w", err)
	}

	base := context.WithoutCancel(ctx)
	subCtx, cancel := context.WithCancel(base)
	u.cancel = cancel
	u.taskCtx, u.cancelTasks = context.WithCancel(base)
	u.subDone = make(chan struct{})
	u.running = true

	u.scheduler.Start()
	u.setState(StateSubscribing)

	go u.subscribe(subCtx, u.subDone)

	if w, ok := u.sources.(Watcher); ok {
		u.tasks.Add(1)
		go func() {
			defer u.tasks.Done()
			err := w.Watch(subCtx, func() {
				if u.State() != StateSynced {
					return
				}
				u.logger.Info("data sources changed, reloading")
				u.spawn(u.runBaseLoad)
			})
			if err != nil {
				u.logger.Error("data sources watch stopped", "error", err)
			}
		}()
	}

	u.logger.Info("updater started", "topics", u.cfg.DataTopics)
	return nil
}

func (u *Updater) subscribe(ctx context.Context, done chan struct{}) {
	defer close(done)

	err := u.subscriber.Subscribe(ctx, pubsub.Subscription{
		Topics:       u.cfg.DataTopics,
		OnMessage:    u.onMessage,
		OnConnect:    u.onConnect,
		OnDisconnect: u.onDisconnect,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		u.logger.Error("subscription ended", "error", err)
	}
}

func (u *Updater) onConnect(context.Context) {
	u.setState(StateSynced)
	u.spawn(u.runBaseLoad)
}

// onDisconnect assumes the local data is stale. The next connect triggers
// a full base load.
func (u *Updater) onDisconnect(context.Context) {
	u.setState(StateSubscribing)
}

func (u *Updater) onMessage(_ context.Context, topic string, data json.RawMessage) {
	if u.recorder != nil {
		u.recorder.RecordNotification(topic)
	}

	var update DataUpdate
	if err := json.Unmarshal(data, &update); err != nil {
		u.logger.Warn("ignoring malformed data update", "topic", topic, "error", err)
		return
	}
	if update.ID == "" {
		update.ID = uuid.NewString()
	}

	u.logger.Info("received data update",
		"topic", topic,
		"update_id", update.ID,
		"entries", len(update.Entries),
		"reason", update.Reason)

	u.spawn(func(ctx context.Context) {
		ctx = logging.WithTopic(ctx, topic)
		if _, err := u.UpdatePolicyData(ctx, &update); err != nil {
			u.logger.ErrorContext(ctx, "failed to apply data update", "update_id", update.ID, "error", err)
		}
	})
}

// spawn runs fn as a tracked task. Tasks started after Stop are dropped.
func (u *Updater) spawn(fn func(ctx context.Context)) {
	u.mu.Lock()
	if !u.running {
		u.mu.Unlock()
		return
	}
	ctx := u.taskCtx
	u.tasks.Add(1)
	u.mu.Unlock()

	go func() {
		defer u.tasks.Done()
		fn(ctx)
	}()
}

func (u *Updater) runBaseLoad(ctx context.Context) {
	if err := u.TriggerBaseLoad(ctx); err != nil {
		u.logger.Error("base data load failed", "error", err)
	}
}

// Stop cancels the subscription and the periodic updates, waits up to the
// configured shutdown timeout for in-flight updates and stops the fetcher.
func (u *Updater) Stop(ctx context.Context) error {
	u.mu.Lock()
	if !u.running {
		u.mu.Unlock()
		return nil
	}
	u.running = false
	cancel, subDone, cancelTasks := u.cancel, u.subDone, u.cancelTasks
	u.mu.Unlock()

	u.logger.Info("stopping updater")
	var errs error

	cancel()
	select {
	case <-subDone:
	case <-ctx.Done():
		errs = multierr.Append(errs, fmt.Errorf("waiting for subscriber: %w", ctx.Err()))
	}

	u.scheduler.RemoveAll()
	schedDone := u.scheduler.Stop()

	tasksDone := make(chan struct{})
	go func() {
		u.tasks.Wait()
		close(tasksDone)
	}()

	timer := time.NewTimer(u.cfg.ShutdownTimeout)
	defer timer.Stop()
	select {
	case <-tasksDone:
	case <-timer.C:
		errs = multierr.Append(errs, fmt.Errorf("in-flight updates still running after %s", u.cfg.ShutdownTimeout))
	case <-ctx.Done():
		errs = multierr.Append(errs, fmt.Errorf("waiting for in-flight updates: %w", ctx.Err()))
	}
	cancelTasks()

	select {
	case <-schedDone.Done():
	case <-ctx.Done():
		errs = multierr.Append(errs, fmt.Errorf("waiting for periodic updates: %w", ctx.Err()))
	}

	if err := u.fetcher.Stop(ctx); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("failed to stop fetcher: %w", err))
	}

	u.setState(StateStopped)
	return errs
}

// TriggerBaseLoad cancels the periodic updates, reloads the base data
// configuration and applies all of its entries as one update. Entries with
// a periodic interval are then rescheduled.
func (u *Updater) TriggerBaseLoad(ctx context.Context) error {
	u.loadMu.Lock()
	defer u.loadMu.Unlock()

	u.scheduler.RemoveAll()
	if u.sources == nil {
		return nil
	}

	sources, err := u.sources.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load data sources: %w", err)
	}
	if len(sources.Entries) == 0 {
		u.logger.Info("no base data sources configured")
		return nil
	}

	update := &DataUpdate{
		ID:      uuid.NewString(),
		Entries: sources.Entries,
		Reason:  ReasonInitialLoad,
	}
	if _, err := u.UpdatePolicyData(ctx, update); err != nil {
		return err
	}

	for _, entry := range sources.Entries {
		interval := entry.Interval()
		if interval <= 0 {
			continue
		}
		u.scheduler.Every(interval, func() { u.runPeriodic(entry) })
		u.logger.Info("scheduled periodic update",
			"url", entry.URL,
			"dst_path", entry.Path(),
			"interval", interval)
	}
	return nil
}

func (u *Updater) runPeriodic(entry DataSourceEntry) {
	u.mu.Lock()
	ctx, running := u.taskCtx, u.running
	u.mu.Unlock()
	if !running {
		return
	}

	update := &DataUpdate{
		ID:      uuid.NewString(),
		Entries: []DataSourceEntry{entry},
		Reason:  ReasonPeriodicUpdate,
	}
	if _, err := u.UpdatePolicyData(ctx, update); err != nil {
		u.logger.Error("periodic update failed", "update_id", update.ID, "error", err)
	}
}

// UpdatePolicyData applies the entries of update whose topics are
// subscribed to and returns one report per applied entry.
//
// Entries whose destination paths conflict are applied in declaration
// order; the others run in parallel. Entry failures are reported, not
// returned; the error is only set when the store transaction fails.
func (u *Updater) UpdatePolicyData(ctx context.Context, update *DataUpdate) (_ *DataUpdateReport, err error) {
	if update.ID == "" {
		update.ID = uuid.NewString()
	}
	ctx, span := u.tracer.Start(ctx, "updater.update", trace.WithAttributes(
		tracing.AttrUpdateID.String(update.ID),
		tracing.AttrReason.String(update.Reason)))
	defer func() { tracing.End(span, err) }()
	ctx = logging.WithUpdateID(ctx, update.ID)
	start := time.Now()

	var entries []DataSourceEntry
	for _, entry := range update.Entries {
		if intersects(entry.EntryTopics(), u.cfg.DataTopics) {
			entries = append(entries, entry)
		}
	}

	span.SetAttributes(tracing.AttrEntries.Int(len(entries)))

	report := &DataUpdateReport{
		UpdateID: update.ID,
		Reason:   update.Reason,
		Reports:  make([]DataEntryReport, len(entries)),
	}

	u.logger.InfoContext(ctx, "applying data update",
		"entries", len(entries),
		"skipped", len(update.Entries)-len(entries),
		"reason", update.Reason)

	err = u.store.Transaction(ctx, update.ID, func(ctx context.Context, tx store.Tx) error {
		done := make([]chan struct{}, len(entries))
		for i := range done {
			done[i] = make(chan struct{})
		}

		var wg sync.WaitGroup
		for i, entry := range entries {
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer close(done[i])
				for j := range i {
					if hlock.Conflicts(entries[j].Path(), entry.Path()) {
						<-done[j]
					}
				}
				report.Reports[i] = u.applyEntry(ctx, tx, entry)
			}()
		}
		wg.Wait()
		return nil
	})

	if u.recorder != nil {
		u.recorder.RecordUpdate(time.Since(start), len(entries))
	}
	if failed := report.Failed(); len(failed) > 0 {
		u.logger.WarnContext(ctx, "data update applied with failures",
			"failed", len(failed),
			"entries", len(entries),
			"duration", time.Since(start))
	} else {
		u.logger.InfoContext(ctx, "data update applied",
			"entries", len(entries),
			"duration", time.Since(start))
	}

	if u.reporter != nil && (u.cfg.ReportUpdates || len(update.Callback.Callbacks) > 0) {
		u.reporter.Report(ctx, report, update.Callback.Callbacks...)
	}

	if err != nil {
		return report, fmt.Errorf("transaction %s failed: %w", update.ID, err)
	}
	return report, nil
}

// applyEntry fetches and saves one entry while holding the lock on its
// destination path.
func (u *Updater) applyEntry(ctx context.Context, tx store.Tx, entry DataSourceEntry) DataEntryReport {
	rep := DataEntryReport{Entry: entry}
	path := entry.Path()
	ctx, span := u.tracer.Start(ctx, "updater.entry", trace.WithAttributes(
		tracing.AttrURL.String(entry.URL),
		tracing.AttrPath.String(path)))
	ctx = logging.WithPath(ctx, path)

	outcome := OutcomeFetchFailed
	err := u.lock.WithLock(ctx, path, func(ctx context.Context) error {
		data, err := u.fetchEntry(ctx, tx, entry)
		if err != nil {
			return err
		}
		rep.Fetched = true
		outcome = OutcomeSaveFailed

		if rep.Hash, err = Hash(data); err != nil {
			return err
		}
		if err := u.save(ctx, tx, entry, data); err != nil {
			return err
		}
		rep.Saved = true
		outcome = OutcomeSaved
		return nil
	})
	if err != nil {
		rep.Error = err.Error()
		u.logger.WarnContext(ctx, "data entry failed",
			"url", entry.URL,
			"fetched", rep.Fetched,
			"error", err)
	} else {
		u.logger.DebugContext(ctx, "data entry saved", "url", entry.URL, "hash", rep.Hash)
	}

	if u.recorder != nil {
		u.recorder.RecordEntry(outcome)
	}
	span.SetAttributes(tracing.AttrOutcome.String(outcome))
	tracing.End(span, err)
	return rep
}

func (u *Updater) fetchEntry(ctx context.Context, tx store.Tx, entry DataSourceEntry) (any, error) {
	if entry.Data != nil {
		return entry.Data, nil
	}
	if entry.URL == "" {
		return nil, fmt.Errorf("entry has neither data nor url")
	}

	ctx = logging.WithURL(ctx, entry.URL)
	data, err := u.fetcher.FetchData(ctx, entry.URL, entry.Config)
	if err == nil && data == nil {
		err = ErrEmptyResult
	}
	tx.UpdateRemoteStatus(entry.URL, err == nil, err)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", entry.URL, err)
	}
	return data, nil
}

func (u *Updater) save(ctx context.Context, tx store.Tx, entry DataSourceEntry, data any) error {
	var write func(ctx context.Context, path string, data any) error
	switch entry.Method() {
	case SaveMethodPut:
		write = tx.Set
	case SaveMethodPatch:
		write = tx.Patch
	default:
		return fmt.Errorf("unsupported save method %q", entry.SaveMethod)
	}

	path := entry.Path()
	obj, isObject := data.(map[string]any)
	if !u.cfg.SplitRoot || path != store.Root || !isObject {
		return write(ctx, path, data)
	}

	keys := make([]string, 0, len(obj))
	for key := range obj {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if err := write(ctx, store.JoinPath(key), obj[key]); err != nil {
			return err
		}
	}
	return nil
}

// Topics returns the data topics the updater subscribes to.
func (u *Updater) Topics() []string {
	return slices.Clone(u.cfg.DataTopics)
}
