package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/policysync/pkg/cli"
	"mercator-hq/policysync/pkg/config"
	"mercator-hq/policysync/pkg/policy/bundle"
	"mercator-hq/policysync/pkg/policy/git"
	"mercator-hq/policysync/pkg/policy/publisher"
	"mercator-hq/policysync/pkg/telemetry/health"
	"mercator-hq/policysync/pkg/telemetry/metrics"
	"mercator-hq/policysync/pkg/telemetry/tracing"
)

var watchFlags struct {
	resync bool
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Publish policy changes as commits land",
	Long: `Poll the policy repository and publish the directories changed by every
new commit on the pub/sub transport, one topic per directory.

Examples:
  # Watch the configured repository
  policysync watch

  # Force every agent to resync on startup
  policysync watch --resync`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringVarP(&bundleFlags.repository, "repository", "r", "", "override repository URL or local path")
	watchCmd.Flags().BoolVar(&watchFlags.resync, "resync", false, "publish every policy directory on startup")
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg := config.GetConfig()
	if !cfg.Repository.Poll.Enabled {
		return cli.NewConfigError("repository.poll.enabled", "polling is disabled")
	}

	ctx, stop := cli.SignalContext(cmd.Context())
	defer stop()

	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
	checker := health.New(0)
	if err := serveTelemetry(ctx, cfg.Telemetry.Metrics, collector, checker); err != nil {
		return err
	}

	tracer, err := tracing.New(&cfg.Telemetry.Tracing)
	if err != nil {
		return cli.NewConfigError("telemetry.tracing", err.Error())
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tracer.Shutdown(shutdownCtx)
	}()

	repo, maker, err := openPolicyRepository(ctx, bundle.WithRecorder(collector))
	if err != nil {
		return err
	}
	checker.Register("repository", func(context.Context) error {
		_, err := repo.HeadCommit()
		return err
	})

	client, err := newPubSubClient(cfg.PubSub)
	if err != nil {
		return err
	}
	defer client.Close()

	pub := publisher.New(maker, client,
		publisher.WithTopicPrefix(cfg.Bundle.TopicPrefix),
		publisher.WithRecorder(collector))

	if watchFlags.resync {
		head, err := repo.HeadCommit()
		if err != nil {
			return cli.NewCommandError("watch", err)
		}
		if _, err := pub.PublishChanges(ctx, head, head); err != nil {
			return cli.NewCommandError("watch", err)
		}
	}

	watcher := git.NewWatcher(repo, cfg.Repository.Poll.Interval, cfg.Repository.Poll.Timeout, pub.OnChange(repo))
	watcher.SetFilter(maker.MatchPath)
	if err := watcher.Start(ctx); err != nil {
		return cli.NewCommandError("watch", err)
	}

	<-ctx.Done()
	return watcher.Stop()
}
