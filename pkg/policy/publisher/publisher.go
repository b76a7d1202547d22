package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/object"
	"go.opentelemetry.io/otel"

	"mercator-hq/policysync/pkg/config"
	"mercator-hq/policysync/pkg/pathutil"
	"mercator-hq/policysync/pkg/policy/bundle"
	"mercator-hq/policysync/pkg/policy/git"
	"mercator-hq/policysync/pkg/pubsub"
	"mercator-hq/policysync/pkg/telemetry/tracing"
)

// PolicyUpdateNotification tells agents which directories of the policy
// repository changed between two commits.
type PolicyUpdateNotification struct {
	OldPolicyHash      string   `json:"old_policy_hash"`
	NewPolicyHash      string   `json:"new_policy_hash"`
	ChangedDirectories []string `json:"changed_directories"`
}

// CommitResolver resolves revisions to commits.
type CommitResolver interface {
	ResolveCommit(rev string) (*object.Commit, error)
}

// Recorder receives publish statistics.
type Recorder interface {
	RecordPublish(topics int)
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithTopicPrefix overrides the prefix prepended to directories.
func WithTopicPrefix(prefix string) Option {
	return func(p *Publisher) {
		p.prefix = prefix
	}
}

// WithRecorder reports every publish to r.
func WithRecorder(r Recorder) Option {
	return func(p *Publisher) {
		p.recorder = r
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// Publisher announces policy changes on one topic per changed directory.
type Publisher struct {
	maker    *bundle.Maker
	client   pubsub.Publisher
	prefix   string
	recorder Recorder
	logger   *slog.Logger
}

// New creates a Publisher using maker's filters to decide which changes
// matter.
func New(maker *bundle.Maker, client pubsub.Publisher, opts ...Option) *Publisher {
	p := &Publisher{
		maker:  maker,
		client: client,
		prefix: config.DefaultBundleTopicPrefix,
		logger: slog.Default().With("component", "policy.publisher"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Topics converts directories into topics.
func Topics(prefix string, dirs []string) []string {
	topics := make([]string, len(dirs))
	for i, d := range dirs {
		topics[i] = prefix + pathutil.Clean(d)
	}
	return topics
}

// DirectoryOf returns the directory named by a topic, or false when the
// topic does not carry prefix.
func DirectoryOf(prefix, topic string) (string, bool) {
	dir, ok := strings.CutPrefix(topic, prefix)
	if !ok {
		return "", false
	}
	return pathutil.Clean(dir), true
}

// PublishChanges publishes the directories changed between oldCommit and
// newCommit. Nested directories are folded into their outermost changed
// ancestor. Identical commits publish every directory holding bundled
// files, forcing agents to resync. Nothing is published when no bundled
// file changed; the returned notification is nil in that case.
func (p *Publisher) PublishChanges(ctx context.Context, oldCommit, newCommit *object.Commit) (_ *PolicyUpdateNotification, err error) {
	ctx, span := otel.Tracer(tracing.InstrumentationName).Start(ctx, "publisher.publish")
	defer func() { tracing.End(span, err) }()

	changed, err := p.maker.ChangedDirectories(ctx, oldCommit, newCommit)
	if err != nil {
		return nil, fmt.Errorf("failed to compute changed directories: %w", err)
	}

	dirs := pathutil.NonIntersecting(changed)
	if len(dirs) == 0 {
		p.logger.Info("no bundled files changed",
			"old_commit", oldCommit.Hash.String(),
			"new_commit", newCommit.Hash.String())
		return nil, nil
	}

	n := &PolicyUpdateNotification{
		OldPolicyHash:      oldCommit.Hash.String(),
		NewPolicyHash:      newCommit.Hash.String(),
		ChangedDirectories: dirs,
	}
	topics := Topics(p.prefix, dirs)
	span.SetAttributes(tracing.AttrTopic.StringSlice(topics))
	if err := p.client.Publish(ctx, topics, n); err != nil {
		return nil, fmt.Errorf("failed to publish policy update: %w", err)
	}

	if p.recorder != nil {
		p.recorder.RecordPublish(len(topics))
	}
	p.logger.Info("published policy update",
		"old_commit", n.OldPolicyHash,
		"new_commit", n.NewPolicyHash,
		"topics", topics)
	return n, nil
}

// OnChange adapts the publisher to a git Watcher: the watcher's commit
// range is resolved through resolver and published.
func (p *Publisher) OnChange(resolver CommitResolver) git.ChangeCallback {
	return func(ctx context.Context, oldSHA, newSHA string) error {
		oldCommit, err := resolver.ResolveCommit(oldSHA)
		if err != nil {
			return err
		}
		newCommit, err := resolver.ResolveCommit(newSHA)
		if err != nil {
			return err
		}
		_, err = p.PublishChanges(ctx, oldCommit, newCommit)
		return err
	}
}
