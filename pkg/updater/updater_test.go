package updater

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"mercator-hq/policysync/internal/fetchtest"
	"mercator-hq/policysync/pkg/config"
	"mercator-hq/policysync/pkg/fetcher"
	"mercator-hq/policysync/pkg/pubsub"
	"mercator-hq/policysync/pkg/store"
	"mercator-hq/policysync/pkg/telemetry/tracing"
	"mercator-hq/policysync/pkg/updater/callbacks"
)

type fakeResponse struct {
	data any
	err  error
	// wait, when set, runs before the response is returned.
	wait func(ctx context.Context) error
}

type fakeFetcher struct {
	mu        sync.Mutex
	responses map[string]fakeResponse
	calls     []string
	started   atomic.Bool
	stopped   atomic.Bool
}

func newFakeFetcher(responses map[string]fakeResponse) *fakeFetcher {
	return &fakeFetcher{responses: responses}
}

func (f *fakeFetcher) FetchData(ctx context.Context, url string, _ map[string]any) (any, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	resp, ok := f.responses[url]
	f.mu.Unlock()

	if !ok {
		return nil, errors.New("not found")
	}
	if resp.wait != nil {
		if err := resp.wait(ctx); err != nil {
			return nil, err
		}
	}
	return resp.data, resp.err
}

func (f *fakeFetcher) Calls(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == url {
			n++
		}
	}
	return n
}

func (f *fakeFetcher) Start(context.Context) error { f.started.Store(true); return nil }
func (f *fakeFetcher) Stop(context.Context) error  { f.stopped.Store(true); return nil }

type reportCall struct {
	report *DataUpdateReport
	extra  []callbacks.Entry
}

type fakeReporter struct {
	mu    sync.Mutex
	calls []reportCall
}

func (r *fakeReporter) Report(_ context.Context, report any, extra ...callbacks.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, reportCall{report: report.(*DataUpdateReport), extra: extra})
}

func (r *fakeReporter) Calls() []reportCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]reportCall(nil), r.calls...)
}

type fakeRecorder struct {
	mu            sync.Mutex
	entries       map[string]int
	updates       int
	notifications map[string]int
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{entries: map[string]int{}, notifications: map[string]int{}}
}

func (r *fakeRecorder) RecordEntry(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[outcome]++
}

func (r *fakeRecorder) RecordUpdate(time.Duration, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates++
}

func (r *fakeRecorder) RecordNotification(topic string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications[topic]++
}

type staticSources struct {
	cfg   *DataSourceConfig
	loads atomic.Int32
}

func (s *staticSources) Load(context.Context) (*DataSourceConfig, error) {
	s.loads.Add(1)
	return s.cfg, nil
}

func clientConfig() config.ClientConfig {
	return config.ClientConfig{
		DataTopics:      []string{"policy_data", "tenants"},
		ShutdownTimeout: 2 * time.Second,
	}
}

func mustGet(t *testing.T, s store.Store, path string) any {
	t.Helper()
	v, err := s.Get(context.Background(), path)
	if err != nil {
		t.Fatalf("Get(%s) error = %v", path, err)
	}
	return v
}

func TestUpdatePolicyData_FiltersByTopic(t *testing.T) {
	s := store.NewMemory()
	u := New(clientConfig(), pubsub.NewBroker(), newFakeFetcher(nil), s)

	report, err := u.UpdatePolicyData(context.Background(), &DataUpdate{
		ID: "u1",
		Entries: []DataSourceEntry{
			{Data: map[string]any{"a": 1}, DstPath: "/default"},
			{Data: "x", Topics: []string{"tenants", "other"}, DstPath: "/tenants"},
			{Data: "y", Topics: []string{"other"}, DstPath: "/other"},
		},
	})
	if err != nil {
		t.Fatalf("UpdatePolicyData() error = %v", err)
	}

	if len(report.Reports) != 2 {
		t.Fatalf("got %d reports, want 2", len(report.Reports))
	}
	for _, rep := range report.Reports {
		if !rep.Fetched || !rep.Saved || rep.Error != "" {
			t.Errorf("report for %s = %+v, want fetched and saved", rep.Entry.DstPath, rep)
		}
	}
	if _, err := s.Get(context.Background(), "/other"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("entry on an unsubscribed topic was applied: %v", err)
	}
	if diff := cmp.Diff(map[string]any{"a": float64(1)}, mustGet(t, s, "/default")); diff != "" {
		t.Errorf("/default mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdatePolicyData_SaveMethods(t *testing.T) {
	s := store.NewMemory()
	ctx := context.Background()
	if err := s.Set(ctx, "/users", map[string]any{"alice": "admin", "bob": "viewer"}); err != nil {
		t.Fatal(err)
	}
	u := New(clientConfig(), pubsub.NewBroker(), newFakeFetcher(nil), s)

	_, err := u.UpdatePolicyData(ctx, &DataUpdate{Entries: []DataSourceEntry{
		{Data: map[string]any{"bob": nil, "carol": "editor"}, DstPath: "/users", SaveMethod: "patch"},
		{Data: []any{"read", "write"}, DstPath: "/roles", SaveMethod: SaveMethodPut},
	}})
	if err != nil {
		t.Fatal(err)
	}

	want := map[string]any{
		"users": map[string]any{"alice": "admin", "carol": "editor"},
		"roles": []any{"read", "write"},
	}
	if diff := cmp.Diff(want, mustGet(t, s, "/")); diff != "" {
		t.Errorf("document mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdatePolicyData_SplitRoot(t *testing.T) {
	tests := []struct {
		name      string
		splitRoot bool
		want      map[string]any
	}{
		{
			name:      "replace root",
			splitRoot: false,
			want:      map[string]any{"a": float64(1), "b": float64(2)},
		},
		{
			name:      "split root keeps other keys",
			splitRoot: true,
			want:      map[string]any{"a": float64(1), "b": float64(2), "existing": true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := store.NewMemory()
			ctx := context.Background()
			if err := s.Set(ctx, "/existing", true); err != nil {
				t.Fatal(err)
			}
			cfg := clientConfig()
			cfg.SplitRoot = tt.splitRoot
			u := New(cfg, pubsub.NewBroker(), newFakeFetcher(nil), s)

			if _, err := u.UpdatePolicyData(ctx, &DataUpdate{Entries: []DataSourceEntry{
				{Data: map[string]any{"a": 1, "b": 2}},
			}}); err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.want, mustGet(t, s, "/")); diff != "" {
				t.Errorf("document mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestUpdatePolicyData_EntryFailures(t *testing.T) {
	s := store.NewMemory()
	ff := newFakeFetcher(map[string]fakeResponse{
		"http://data/ok":    {data: map[string]any{"ok": true}},
		"http://data/empty": {data: nil},
		"http://data/error": {err: errors.New("connection refused")},
	})
	rec := newFakeRecorder()
	u := New(clientConfig(), pubsub.NewBroker(), ff, s, WithRecorder(rec))

	report, err := u.UpdatePolicyData(context.Background(), &DataUpdate{ID: "u-fail", Entries: []DataSourceEntry{
		{URL: "http://data/ok", DstPath: "/ok"},
		{URL: "http://data/empty", DstPath: "/empty"},
		{URL: "http://data/error", DstPath: "/error"},
		{Data: []any{1}, DstPath: "/"},
		{Data: "x", DstPath: "/bad", SaveMethod: "POST"},
		{DstPath: "/nothing"},
	}})
	if err != nil {
		t.Fatalf("UpdatePolicyData() error = %v", err)
	}

	type outcome struct {
		Fetched, Saved, HasError bool
	}
	var got []outcome
	for _, rep := range report.Reports {
		got = append(got, outcome{rep.Fetched, rep.Saved, rep.Error != ""})
	}
	want := []outcome{
		{true, true, false},
		{false, false, true},
		{false, false, true},
		{true, false, true},
		{true, false, true},
		{false, false, true},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("entry outcomes mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(report.Reports[1].Error, ErrEmptyResult.Error()) {
		t.Errorf("empty result error = %q", report.Reports[1].Error)
	}
	if len(report.Failed()) != 5 {
		t.Errorf("Failed() = %d entries, want 5", len(report.Failed()))
	}

	wantHash, _ := Hash(map[string]any{"ok": true})
	if report.Reports[0].Hash != wantHash {
		t.Errorf("hash = %s, want %s", report.Reports[0].Hash, wantHash)
	}

	wantEntries := map[string]int{OutcomeSaved: 1, OutcomeFetchFailed: 3, OutcomeSaveFailed: 2}
	if diff := cmp.Diff(wantEntries, rec.entries); diff != "" {
		t.Errorf("recorded outcomes mismatch (-want +got):\n%s", diff)
	}
	if rec.updates != 1 {
		t.Errorf("recorded updates = %d, want 1", rec.updates)
	}

	history, err := s.Transactions(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	wantRemotes := []store.RemoteStatus{
		{URL: "http://data/ok", Succeeded: true},
		{URL: "http://data/empty", Succeeded: false, Error: ErrEmptyResult.Error()},
		{URL: "http://data/error", Succeeded: false, Error: "connection refused"},
	}
	sortRemotes := cmpopts.SortSlices(func(a, b store.RemoteStatus) bool { return a.URL < b.URL })
	if diff := cmp.Diff(wantRemotes, history[0].Remotes, sortRemotes); diff != "" {
		t.Errorf("remote statuses mismatch (-want +got):\n%s", diff)
	}
	if history[0].ID != "u-fail" || history[0].Success {
		t.Errorf("transaction record = %+v, want failed u-fail", history[0])
	}
}

func TestUpdatePolicyData_Spans(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ff := newFakeFetcher(map[string]fakeResponse{
		"http://data/ok":    {data: "ok"},
		"http://data/error": {err: errors.New("connection refused")},
	})
	u := New(clientConfig(), pubsub.NewBroker(), ff, store.NewMemory(), WithTracer(tp.Tracer("test")))

	if _, err := u.UpdatePolicyData(context.Background(), &DataUpdate{ID: "u-span", Reason: "test", Entries: []DataSourceEntry{
		{URL: "http://data/ok", DstPath: "/ok"},
		{URL: "http://data/error", DstPath: "/error"},
	}}); err != nil {
		t.Fatalf("UpdatePolicyData() error = %v", err)
	}

	byName := map[string][]sdktrace.ReadOnlySpan{}
	for _, span := range rec.Ended() {
		byName[span.Name()] = append(byName[span.Name()], span)
	}
	if len(byName["updater.update"]) != 1 || len(byName["updater.entry"]) != 2 {
		t.Fatalf("ended spans = %v, want one update and two entries", byName)
	}

	update := byName["updater.update"][0]
	if update.Status().Code != codes.Ok {
		t.Errorf("update span status = %+v, want ok", update.Status())
	}
	outcomes := map[string]string{}
	for _, entry := range byName["updater.entry"] {
		if entry.Parent().SpanID() != update.SpanContext().SpanID() {
			t.Errorf("entry span %v is not a child of the update span", entry.SpanContext().SpanID())
		}
		var path, outcome string
		for _, kv := range entry.Attributes() {
			switch kv.Key {
			case tracing.AttrPath:
				path = kv.Value.AsString()
			case tracing.AttrOutcome:
				outcome = kv.Value.AsString()
			}
		}
		outcomes[path] = outcome
	}
	want := map[string]string{"/ok": OutcomeSaved, "/error": OutcomeFetchFailed}
	if diff := cmp.Diff(want, outcomes); diff != "" {
		t.Errorf("entry outcomes mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdatePolicyData_SamePathInDeclarationOrder(t *testing.T) {
	s := store.NewMemory()
	ff := newFakeFetcher(map[string]fakeResponse{
		"http://data/slow": {
			data: "first",
			wait: func(ctx context.Context) error {
				select {
				case <-time.After(50 * time.Millisecond):
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			},
		},
	})
	u := New(clientConfig(), pubsub.NewBroker(), ff, s)

	report, err := u.UpdatePolicyData(context.Background(), &DataUpdate{Entries: []DataSourceEntry{
		{URL: "http://data/slow", DstPath: "/x"},
		{Data: map[string]any{"y": "second"}, DstPath: "/x", SaveMethod: SaveMethodPut},
		{Data: "third", DstPath: "/x/y"},
	}})
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Failed()) != 0 {
		t.Fatalf("failed entries: %+v", report.Failed())
	}
	if diff := cmp.Diff(map[string]any{"y": "third"}, mustGet(t, s, "/x")); diff != "" {
		t.Errorf("/x mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdatePolicyData_DisjointPathsRunInParallel(t *testing.T) {
	s := store.NewMemory()
	ff := newFakeFetcher(map[string]fakeResponse{
		// The slow entry only completes once the fast one, declared after
		// it, has been saved.
		"http://data/slow": {
			data: "slow",
			wait: func(ctx context.Context) error {
				ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
				defer cancel()
				for {
					if _, err := s.Get(ctx, "/fast"); err == nil {
						return nil
					}
					select {
					case <-ctx.Done():
						return ctx.Err()
					case <-time.After(5 * time.Millisecond):
					}
				}
			},
		},
		"http://data/fast": {data: "fast"},
	})
	u := New(clientConfig(), pubsub.NewBroker(), ff, s)

	report, err := u.UpdatePolicyData(context.Background(), &DataUpdate{Entries: []DataSourceEntry{
		{URL: "http://data/slow", DstPath: "/slow"},
		{URL: "http://data/fast", DstPath: "/fast"},
	}})
	if err != nil {
		t.Fatal(err)
	}
	if failed := report.Failed(); len(failed) != 0 {
		t.Fatalf("failed entries: %+v", failed)
	}
	want := map[string]any{"slow": "slow", "fast": "fast"}
	if diff := cmp.Diff(want, mustGet(t, s, "/")); diff != "" {
		t.Errorf("document mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdatePolicyData_Reporting(t *testing.T) {
	extra := callbacks.Entry{URL: "http://third-party/report"}

	tests := []struct {
		name      string
		report    bool
		callbacks []callbacks.Entry
		wantCalls int
	}{
		{name: "disabled", wantCalls: 0},
		{name: "enabled", report: true, wantCalls: 1},
		{name: "one-off callbacks", callbacks: []callbacks.Entry{extra}, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := clientConfig()
			cfg.ReportUpdates = tt.report
			reporter := &fakeReporter{}
			u := New(cfg, pubsub.NewBroker(), newFakeFetcher(nil), store.NewMemory(), WithReporter(reporter))

			_, err := u.UpdatePolicyData(context.Background(), &DataUpdate{
				ID:       "u-report",
				Reason:   "test",
				Entries:  []DataSourceEntry{{Data: 1, DstPath: "/n"}},
				Callback: UpdateCallback{Callbacks: tt.callbacks},
			})
			if err != nil {
				t.Fatal(err)
			}

			calls := reporter.Calls()
			if len(calls) != tt.wantCalls {
				t.Fatalf("Report() called %d times, want %d", len(calls), tt.wantCalls)
			}
			if tt.wantCalls == 0 {
				return
			}
			if calls[0].report.UpdateID != "u-report" || calls[0].report.Reason != "test" {
				t.Errorf("report = %+v", calls[0].report)
			}
			if diff := cmp.Diff(tt.callbacks, calls[0].extra, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("extra callbacks mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestUpdatePolicyData_WithFetchEngine(t *testing.T) {
	server := fetchtest.NewMockServer()
	server.SetResponse("/users", fetchtest.MockResponse{Body: map[string]any{"alice": "admin"}})
	server.SetResponse("/missing", fetchtest.MockResponse{StatusCode: 404})

	engine := fetcher.NewEngine(config.FetcherConfig{
		Workers:      2,
		QueueSize:    10,
		FetchTimeout: 2 * time.Second,
		Retry: config.RetryConfig{
			MaxAttempts:     2,
			InitialInterval: time.Millisecond,
			MaxInterval:     time.Millisecond,
			Multiplier:      1,
		},
	})
	df := fetcher.NewDataFetcher(engine, 0)
	if err := df.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(server.Close)
	t.Cleanup(func() { _ = df.Stop(context.Background()) })

	s := store.NewMemory()
	u := New(clientConfig(), pubsub.NewBroker(), df, s)

	report, err := u.UpdatePolicyData(context.Background(), &DataUpdate{Entries: []DataSourceEntry{
		{URL: server.URL() + "/users", DstPath: "/users"},
		{URL: server.URL() + "/missing", DstPath: "/missing"},
	}})
	if err != nil {
		t.Fatal(err)
	}

	if !report.Reports[0].Saved {
		t.Errorf("users entry not saved: %+v", report.Reports[0])
	}
	if report.Reports[1].Fetched || report.Reports[1].Error == "" {
		t.Errorf("missing entry = %+v, want fetch failure", report.Reports[1])
	}
	if n := len(server.Requests("/missing")); n != 1 {
		t.Errorf("404 requested %d times, want 1", n)
	}
	if diff := cmp.Diff(map[string]any{"alice": "admin"}, mustGet(t, s, "/users")); diff != "" {
		t.Errorf("/users mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdatePolicyData_EmptyResponseLeavesStore(t *testing.T) {
	server := fetchtest.NewMockServer()
	t.Cleanup(server.Close)
	server.SetResponse("/empty", fetchtest.MockResponse{StatusCode: 204})

	engine := fetcher.NewEngine(config.FetcherConfig{
		Workers:      1,
		QueueSize:    10,
		FetchTimeout: 2 * time.Second,
	})
	df := fetcher.NewDataFetcher(engine, 0)
	if err := df.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = df.Stop(context.Background()) })

	s := store.NewMemory()
	if err := s.Set(context.Background(), "/x", "previous"); err != nil {
		t.Fatal(err)
	}
	u := New(clientConfig(), pubsub.NewBroker(), df, s)

	report, err := u.UpdatePolicyData(context.Background(), &DataUpdate{Entries: []DataSourceEntry{
		{URL: server.URL() + "/empty", DstPath: "/x"},
	}})
	if err != nil {
		t.Fatal(err)
	}

	rep := report.Reports[0]
	if rep.Fetched || rep.Saved {
		t.Errorf("report = %+v, want neither fetched nor saved", rep)
	}
	if !strings.Contains(rep.Error, ErrEmptyResult.Error()) {
		t.Errorf("report error = %q, want %q", rep.Error, ErrEmptyResult)
	}
	if got := mustGet(t, s, "/x"); got != "previous" {
		t.Errorf("/x = %#v, want unchanged", got)
	}
}

func TestUpdater_Lifecycle(t *testing.T) {
	broker := pubsub.NewBroker()
	t.Cleanup(func() { broker.Close() })

	s := store.NewMemory()
	ff := newFakeFetcher(map[string]fakeResponse{
		"http://data/base": {data: map[string]any{"version": 1}},
	})
	sources := &staticSources{cfg: &DataSourceConfig{Entries: []DataSourceEntry{
		{URL: "http://data/base", DstPath: "/base"},
	}}}
	rec := newFakeRecorder()
	u := New(clientConfig(), broker, ff, s, WithSources(sources), WithRecorder(rec))

	if got := u.State(); got != StateStopped {
		t.Fatalf("initial state = %s, want stopped", got)
	}

	ctx := context.Background()
	if err := u.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := u.Start(ctx); err == nil {
		t.Error("second Start() succeeded")
	}
	if !ff.started.Load() {
		t.Error("fetcher not started")
	}

	fetchtest.WaitForCondition(t, 2*time.Second, func() bool { return u.State() == StateSynced }, "synced after connect")
	fetchtest.WaitForCondition(t, 2*time.Second, func() bool {
		_, err := s.Get(ctx, "/base")
		return err == nil
	}, "base data loaded")

	broker.SetConnected(false)
	if got := u.State(); got != StateSubscribing {
		t.Errorf("state after disconnect = %s, want subscribing", got)
	}
	broker.SetConnected(true)
	if got := u.State(); got != StateSynced {
		t.Errorf("state after reconnect = %s, want synced", got)
	}
	fetchtest.WaitForCondition(t, 2*time.Second, func() bool { return sources.loads.Load() == 2 }, "base load on reconnect")

	err := broker.Publish(ctx, []string{"tenants"}, DataUpdate{
		Entries: []DataSourceEntry{{Data: "acme", Topics: []string{"tenants"}, DstPath: "/tenant"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	fetchtest.WaitForCondition(t, 2*time.Second, func() bool {
		v, err := s.Get(ctx, "/tenant")
		return err == nil && v == "acme"
	}, "published update applied")

	rec.mu.Lock()
	notified := rec.notifications["tenants"]
	rec.mu.Unlock()
	if notified != 1 {
		t.Errorf("recorded notifications = %d, want 1", notified)
	}

	if err := u.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if got := u.State(); got != StateStopped {
		t.Errorf("state after Stop = %s, want stopped", got)
	}
	if !ff.stopped.Load() {
		t.Error("fetcher not stopped")
	}
	if n := broker.Subscribers(); n != 0 {
		t.Errorf("subscribers after Stop = %d, want 0", n)
	}
	if err := u.Stop(ctx); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
}

func TestUpdater_PeriodicEntries(t *testing.T) {
	broker := pubsub.NewBroker()
	t.Cleanup(func() { broker.Close() })

	ff := newFakeFetcher(map[string]fakeResponse{
		"http://data/once":     {data: "once"},
		"http://data/periodic": {data: "tick"},
	})
	sources := &staticSources{cfg: &DataSourceConfig{Entries: []DataSourceEntry{
		{URL: "http://data/once", DstPath: "/once"},
		{URL: "http://data/periodic", DstPath: "/periodic", PeriodicUpdateInterval: 1},
	}}}
	u := New(clientConfig(), broker, ff, store.NewMemory(), WithSources(sources))

	ctx := context.Background()
	if err := u.Start(ctx); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = u.Stop(ctx) })

	fetchtest.WaitForCondition(t, 2*time.Second, func() bool { return u.scheduler.Len() == 1 }, "periodic entry scheduled")

	if err := u.TriggerBaseLoad(ctx); err != nil {
		t.Fatal(err)
	}
	if n := u.scheduler.Len(); n != 1 {
		t.Errorf("scheduled entries after reload = %d, want 1", n)
	}

	fetchtest.WaitForCondition(t, 5*time.Second, func() bool { return ff.Calls("http://data/periodic") >= 3 }, "periodic refetch")
	if n := ff.Calls("http://data/once"); n != 2 {
		t.Errorf("one-shot entry fetched %d times, want 2", n)
	}

	if err := u.Stop(ctx); err != nil {
		t.Fatal(err)
	}
	if n := u.scheduler.Len(); n != 0 {
		t.Errorf("scheduled entries after Stop = %d, want 0", n)
	}
}

func TestState_String(t *testing.T) {
	tests := map[State]string{
		StateStopped:     "stopped",
		StateSubscribing: "subscribing",
		StateSynced:      "synced",
		State(7):         "State(7)",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int32(s), got, want)
		}
	}
}
