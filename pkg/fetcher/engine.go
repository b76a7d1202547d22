package fetcher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"mercator-hq/policysync/pkg/config"
	"mercator-hq/policysync/pkg/telemetry/logging"
	"mercator-hq/policysync/pkg/telemetry/tracing"
)

const (
	stageProvider = "provider"
	stageFetch    = "fetch"
	stageProcess  = "process"
	stageCallback = "callback"
)

// Engine runs fetch events on a fixed pool of workers fed by one bounded
// queue. A failing task never stops a worker: its error is handed to the
// failure handlers and the worker moves on.
type Engine struct {
	cfg      config.FetcherConfig
	retry    RetryPolicy
	registry *Registry
	queue    chan *task
	logger   *slog.Logger
	recorder Recorder
	tracer   trace.Tracer
	redactor *logging.Redactor

	mu       sync.Mutex
	handlers []FailureHandler
	started  bool
	stopped  bool
	cancel   context.CancelFunc
	done     chan struct{}
	wg       sync.WaitGroup
}

type task struct {
	event    *FetchEvent
	callback Callback
	onError  []FailureHandler
	// parent is the span active when the task was queued.
	parent trace.SpanContext
}

// Option configures an Engine.
type Option func(*Engine)

// WithRegistry replaces the default provider registry.
func WithRegistry(r *Registry) Option {
	return func(e *Engine) { e.registry = r }
}

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithRecorder reports engine statistics to r.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithTracer records a span per fetch. The default is the global tracer
// provider.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// WithFailureHandler registers a failure handler at construction.
func WithFailureHandler(h FailureHandler) Option {
	return func(e *Engine) { e.handlers = append(e.handlers, h) }
}

// NewEngine creates an engine. Workers are not running until Start.
func NewEngine(cfg config.FetcherConfig, opts ...Option) *Engine {
	if cfg.Workers <= 0 {
		cfg.Workers = config.DefaultFetcherWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = config.DefaultFetcherQueueSize
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = config.DefaultFetcherFetchTimeout
	}

	e := &Engine{
		cfg: cfg,
		retry: RetryPolicyFromConfig(cfg.Retry).merge(RetryPolicy{
			MaxAttempts:         config.DefaultRetryMaxAttempts,
			InitialInterval:     config.DefaultRetryInitialInterval,
			MaxInterval:         config.DefaultRetryMaxInterval,
			Multiplier:          config.DefaultRetryMultiplier,
			RandomizationFactor: config.DefaultRetryRandomizationFactor,
		}),
		queue:    make(chan *task, cfg.QueueSize),
		logger:   slog.Default().With("component", "fetcher.engine"),
		redactor: logging.NewRedactor(),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.registry == nil {
		e.registry = DefaultRegistry()
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer(tracing.InstrumentationName)
	}
	return e
}

// Registry returns the provider registry used by the engine.
func (e *Engine) Registry() *Registry { return e.registry }

// RegisterFailureHandler adds a handler called for every failed task.
func (e *Engine) RegisterFailureHandler(h FailureHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers = append(e.handlers, h)
}

// Start launches the workers. Calling Start on a running engine does
// nothing; a stopped engine cannot be restarted.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped {
		return ErrEngineStopped
	}
	if e.started {
		return nil
	}

	workerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	e.cancel = cancel
	e.started = true

	for i := 0; i < e.cfg.Workers; i++ {
		e.wg.Add(1)
		go e.worker(workerCtx, i)
	}

	e.logger.Info("fetching engine started", "workers", e.cfg.Workers, "queue_size", e.cfg.QueueSize)
	return nil
}

// Stop cancels the workers and waits for them until ctx is done. Tasks
// still queued are dropped.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return nil
	}
	e.stopped = true
	close(e.done)
	cancel := e.cancel
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	finished := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		e.logger.Info("fetching engine stopped", "dropped", len(e.queue))
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for fetch workers: %w", ctx.Err())
	}
}

// QueueOption configures a single enqueue.
type QueueOption func(*queueOptions)

type queueOptions struct {
	enqueueTimeout time.Duration
	onError        []FailureHandler
}

// WithEnqueueTimeout waits up to d for room in a full queue.
func WithEnqueueTimeout(d time.Duration) QueueOption {
	return func(o *queueOptions) { o.enqueueTimeout = d }
}

// WithErrorCallback calls h if this task fails, in addition to the engine's
// failure handlers.
func WithErrorCallback(h FailureHandler) QueueOption {
	return func(o *queueOptions) { o.onError = append(o.onError, h) }
}

// QueueFetchEvent stamps event with a new id and queues it. Without an
// enqueue timeout a full queue fails immediately with ErrQueueFull.
func (e *Engine) QueueFetchEvent(ctx context.Context, event *FetchEvent, cb Callback, opts ...QueueOption) (string, error) {
	o := queueOptions{enqueueTimeout: e.cfg.EnqueueTimeout}
	for _, opt := range opts {
		opt(&o)
	}

	ev := *event
	ev.ID = uuid.NewString()
	t := &task{event: &ev, callback: cb, onError: o.onError, parent: trace.SpanContextFromContext(ctx)}

	select {
	case <-e.done:
		return "", ErrEngineStopped
	default:
	}

	select {
	case e.queue <- t:
		e.queueDepthChanged()
		return ev.ID, nil
	default:
	}

	if o.enqueueTimeout <= 0 {
		return "", ErrQueueFull
	}

	timer := time.NewTimer(o.enqueueTimeout)
	defer timer.Stop()

	select {
	case e.queue <- t:
		e.queueDepthChanged()
		return ev.ID, nil
	case <-timer.C:
		return "", fmt.Errorf("%w after %s", ErrEnqueueTimeout, o.enqueueTimeout)
	case <-e.done:
		return "", ErrEngineStopped
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// QueueURL queues a fetch of url. The provider defaults to http and can be
// overridden with the "fetcher" key of cfg.
func (e *Engine) QueueURL(ctx context.Context, url string, cb Callback, cfg map[string]any, opts ...QueueOption) (string, error) {
	provider := DefaultProvider
	if name, ok := cfg[ProviderConfigKey].(string); ok && name != "" {
		provider = name
	}
	return e.QueueFetchEvent(ctx, &FetchEvent{URL: url, Provider: provider, Config: cfg}, cb, opts...)
}

// HandleURL fetches url and waits for the result. A zero timeout uses the
// configured fetch timeout. When the result does not arrive in time the
// error wraps ErrFetchTimeout; a failed fetch returns its *FetchError.
func (e *Engine) HandleURL(ctx context.Context, url string, timeout time.Duration, cfg map[string]any) (any, error) {
	if timeout <= 0 {
		timeout = e.cfg.FetchTimeout
	}

	type outcome struct {
		result any
		err    error
	}
	ch := make(chan outcome, 1)
	deliver := func(o outcome) {
		select {
		case ch <- o:
		default:
		}
	}

	cb := func(_ context.Context, result any) error {
		deliver(outcome{result: result})
		return nil
	}
	onError := func(_ context.Context, err error, _ *FetchEvent) {
		deliver(outcome{err: err})
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	if _, err := e.QueueURL(ctx, url, cb, cfg, WithErrorCallback(onError)); err != nil {
		return nil, err
	}

	select {
	case o := <-ch:
		return o.result, o.err
	case <-timer.C:
		return nil, fmt.Errorf("%w: %s after %s", ErrFetchTimeout, url, timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (e *Engine) worker(ctx context.Context, id int) {
	defer e.wg.Done()
	logger := e.logger.With("worker", id)
	logger.Debug("fetch worker started")

	for {
		select {
		case <-ctx.Done():
			logger.Debug("fetch worker stopped")
			return
		case t := <-e.queue:
			e.queueDepthChanged()
			e.run(ctx, t)
		}
	}
}

func (e *Engine) run(ctx context.Context, t *task) {
	ev := t.event
	provider := ev.Provider
	if provider == "" {
		provider = DefaultProvider
	}

	if t.parent.IsValid() {
		ctx = trace.ContextWithSpanContext(ctx, t.parent)
	}
	ctx, span := e.tracer.Start(ctx, "fetcher.fetch", trace.WithAttributes(
		tracing.AttrURL.String(ev.URL),
		attribute.String("policysync.provider", provider)))
	ctx = logging.WithURL(ctx, ev.URL)
	logger := logging.FromContext(ctx, e.logger)

	start := time.Now()
	stage, err := e.execute(ctx, t)
	duration := time.Since(start)
	tracing.End(span, err)

	if err == nil {
		e.recordFetch(provider, "success", duration)
		logger.Debug("fetch completed", "event_id", ev.ID, "provider", provider, "duration", duration)
		return
	}

	e.recordFetch(provider, "failure", duration)
	fetchErr := &FetchError{EventID: ev.ID, URL: ev.URL, Provider: provider, Stage: stage, Cause: err}
	logger.Error("fetch failed",
		"event_id", ev.ID,
		"provider", provider,
		"stage", stage,
		"config", e.redactor.RedactConfig(ev.Config),
		"error", err)
	e.fail(ctx, fetchErr, t)
}

// execute runs one task. stage names the step that failed; a panic is
// reported as an error of the step that raised it.
func (e *Engine) execute(ctx context.Context, t *task) (stage string, err error) {
	stage = stageProvider
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	provider, err := e.registry.New(t.event)
	if err != nil {
		return stage, err
	}
	if opener, ok := provider.(Opener); ok {
		if err := opener.Open(ctx); err != nil {
			return stage, fmt.Errorf("failed to open provider: %w", err)
		}
	}
	if closer, ok := provider.(io.Closer); ok {
		defer func() {
			if cerr := closer.Close(); cerr != nil {
				e.logger.Warn("failed to close provider", "event_id", t.event.ID, "error", cerr)
			}
		}()
	}

	stage = stageFetch
	data, err := backoff.Retry(ctx, func() (any, error) {
		return provider.Fetch(ctx)
	}, e.retryOptions(t.event)...)
	if err != nil {
		return stage, err
	}

	stage = stageProcess
	result, err := provider.Process(ctx, data)
	if err != nil {
		return stage, err
	}

	stage = stageCallback
	if t.callback != nil {
		if err := t.callback(ctx, result); err != nil {
			return stage, err
		}
	}
	return stage, nil
}

func (e *Engine) retryOptions(ev *FetchEvent) []backoff.RetryOption {
	policy := e.retry
	if ev.Retry != nil {
		policy = ev.Retry.merge(e.retry)
	}

	b := &backoff.ExponentialBackOff{
		InitialInterval:     policy.InitialInterval,
		RandomizationFactor: policy.RandomizationFactor,
		Multiplier:          policy.Multiplier,
		MaxInterval:         policy.MaxInterval,
	}

	return []backoff.RetryOption{
		backoff.WithBackOff(b),
		backoff.WithMaxTries(policy.MaxAttempts),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			e.logger.Debug("fetch attempt failed, retrying",
				"event_id", ev.ID,
				"url", ev.URL,
				"next_attempt_in", next,
				"error", err)
		}),
	}
}

// fail calls every failure handler exactly once. A panicking handler does
// not prevent the others from running.
func (e *Engine) fail(ctx context.Context, err *FetchError, t *task) {
	e.mu.Lock()
	handlers := make([]FailureHandler, 0, len(e.handlers)+len(t.onError))
	handlers = append(handlers, e.handlers...)
	e.mu.Unlock()
	handlers = append(handlers, t.onError...)

	if e.recorder != nil {
		e.recorder.RecordFetchFailure(err.Provider)
	}

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					e.logger.Error("failure handler panicked", "event_id", err.EventID, "panic", r)
				}
			}()
			h(ctx, err, t.event)
		}()
	}
}

func (e *Engine) recordFetch(provider, outcome string, d time.Duration) {
	if e.recorder != nil {
		e.recorder.RecordFetch(provider, outcome, d)
	}
}

func (e *Engine) queueDepthChanged() {
	if e.recorder != nil {
		e.recorder.SetQueueDepth(len(e.queue))
	}
}
