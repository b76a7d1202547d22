package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/google/go-cmp/cmp"

	"mercator-hq/policysync/internal/gittest"
	"mercator-hq/policysync/pkg/config"
	"mercator-hq/policysync/pkg/policy/bundle"
)

type published struct {
	topics  []string
	payload any
}

type fakePubSub struct {
	mu    sync.Mutex
	calls []published
	err   error
}

func (f *fakePubSub) Publish(_ context.Context, topics []string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, published{topics: topics, payload: payload})
	return nil
}

type resolver struct {
	repo *gittest.Repo
}

func (r resolver) ResolveCommit(rev string) (*object.Commit, error) {
	return r.repo.Git.CommitObject(plumbing.NewHash(rev))
}

type countingRecorder struct {
	topics []int
}

func (c *countingRecorder) RecordPublish(topics int) {
	c.topics = append(c.topics, topics)
}

func setup(t *testing.T) (*gittest.Repo, *object.Commit, *object.Commit) {
	t.Helper()
	repo := gittest.New(t)
	first := repo.WriteFiles(map[string]string{
		"apps/a/policy.rego":   "package apps.a",
		"apps/a/sub/deep.rego": "package apps.a.sub",
		"apps/b/data.json":     `{"x": 1}`,
		"docs/readme.md":       "docs",
		"shared/lib/util.rego": "package shared.lib",
	}).Commit("initial commit")
	second := repo.
		Write("apps/a/policy.rego", "package apps.a\n\nallow { true }").
		Write("apps/a/sub/deep.rego", "package apps.a.sub\n\ndeny { false }").
		Write("apps/b/data.json", `{"x": 2}`).
		Write("docs/readme.md", "more docs").
		Commit("update apps")
	return repo, first, second
}

func TestPublishChanges(t *testing.T) {
	_, first, second := setup(t)

	ps := &fakePubSub{}
	rec := &countingRecorder{}
	p := New(bundle.NewMaker(config.BundleConfig{}), ps, WithRecorder(rec))

	n, err := p.PublishChanges(context.Background(), first, second)
	if err != nil {
		t.Fatalf("PublishChanges() error = %v", err)
	}

	want := &PolicyUpdateNotification{
		OldPolicyHash:      first.Hash.String(),
		NewPolicyHash:      second.Hash.String(),
		ChangedDirectories: []string{"apps/a", "apps/b"},
	}
	if diff := cmp.Diff(want, n); diff != "" {
		t.Errorf("notification mismatch (-want +got):\n%s", diff)
	}

	if len(ps.calls) != 1 {
		t.Fatalf("published %d times, want 1", len(ps.calls))
	}
	if diff := cmp.Diff([]string{"policy:apps/a", "policy:apps/b"}, ps.calls[0].topics); diff != "" {
		t.Errorf("topics mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{2}, rec.topics); diff != "" {
		t.Errorf("recorded topics mismatch (-want +got):\n%s", diff)
	}

	data, err := json.Marshal(ps.calls[0].payload)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if _, ok := decoded["changed_directories"]; !ok {
		t.Errorf("payload missing changed_directories: %s", data)
	}
}

func TestPublishChanges_SameCommitPublishesEverything(t *testing.T) {
	_, _, second := setup(t)

	ps := &fakePubSub{}
	p := New(bundle.NewMaker(config.BundleConfig{}), ps, WithTopicPrefix("p/"))

	n, err := p.PublishChanges(context.Background(), second, second)
	if err != nil {
		t.Fatalf("PublishChanges() error = %v", err)
	}
	if diff := cmp.Diff([]string{"apps/a", "apps/b", "shared/lib"}, n.ChangedDirectories); diff != "" {
		t.Errorf("directories mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"p/apps/a", "p/apps/b", "p/shared/lib"}, ps.calls[0].topics); diff != "" {
		t.Errorf("topics mismatch (-want +got):\n%s", diff)
	}
}

func TestPublishChanges_NothingRelevant(t *testing.T) {
	repo, _, second := setup(t)
	third := repo.Write("docs/readme.md", "even more docs").Commit("docs only")

	ps := &fakePubSub{}
	p := New(bundle.NewMaker(config.BundleConfig{}), ps)

	n, err := p.PublishChanges(context.Background(), second, third)
	if err != nil {
		t.Fatalf("PublishChanges() error = %v", err)
	}
	if n != nil {
		t.Errorf("notification = %+v, want nil", n)
	}
	if len(ps.calls) != 0 {
		t.Errorf("published %d times, want 0", len(ps.calls))
	}
}

func TestPublishChanges_PublishError(t *testing.T) {
	_, first, second := setup(t)

	ps := &fakePubSub{err: errors.New("connection refused")}
	p := New(bundle.NewMaker(config.BundleConfig{}), ps)

	if _, err := p.PublishChanges(context.Background(), first, second); err == nil {
		t.Fatal("PublishChanges() error = nil, want error")
	}
}

func TestOnChange(t *testing.T) {
	repo, first, second := setup(t)

	ps := &fakePubSub{}
	p := New(bundle.NewMaker(config.BundleConfig{}), ps)
	cb := p.OnChange(resolver{repo: repo})

	if err := cb(context.Background(), first.Hash.String(), second.Hash.String()); err != nil {
		t.Fatalf("callback error = %v", err)
	}
	if len(ps.calls) != 1 {
		t.Fatalf("published %d times, want 1", len(ps.calls))
	}

	if err := cb(context.Background(), "0000000000000000000000000000000000000001", second.Hash.String()); err == nil {
		t.Error("callback with unknown commit should fail")
	}
}

func TestTopicsRoundTrip(t *testing.T) {
	topics := Topics("policy:", []string{"a/b", "/c/", ""})
	if diff := cmp.Diff([]string{"policy:a/b", "policy:c", "policy:."}, topics); diff != "" {
		t.Errorf("Topics() mismatch (-want +got):\n%s", diff)
	}

	dir, ok := DirectoryOf("policy:", "policy:a/b")
	if !ok || dir != "a/b" {
		t.Errorf("DirectoryOf() = %q, %v", dir, ok)
	}
	if _, ok := DirectoryOf("policy:", "policy_data"); ok {
		t.Error("DirectoryOf() accepted a topic without prefix")
	}
}
