package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/policysync/pkg/cli"
	"mercator-hq/policysync/pkg/config"
	"mercator-hq/policysync/pkg/fetcher"
	"mercator-hq/policysync/pkg/pubsub"
	"mercator-hq/policysync/pkg/security/secrets"
	"mercator-hq/policysync/pkg/server"
	"mercator-hq/policysync/pkg/store"
	"mercator-hq/policysync/pkg/telemetry/health"
	"mercator-hq/policysync/pkg/telemetry/metrics"
	"mercator-hq/policysync/pkg/telemetry/tracing"
	"mercator-hq/policysync/pkg/updater"
	"mercator-hq/policysync/pkg/updater/callbacks"
)

var clientFlags struct {
	metricsAddress string
	dataSources    string
}

var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Keep a local policy store in sync with data topics",
	Long: `Subscribe to the configured data topics, fetch every announced data source
and write it into the local policy store.

On every (re)connection the base data sources are reloaded from
client.data_sources_file or client.data_sources_url.

Examples:
  # Run with the configured data sources
  policysync client

  # Load base data sources from a local file and expose metrics
  policysync client --data-sources sources.yaml --metrics-address 127.0.0.1:9090`,
	RunE: runClient,
}

func init() {
	rootCmd.AddCommand(clientCmd)

	clientCmd.Flags().StringVar(&clientFlags.metricsAddress, "metrics-address", "", "serve Prometheus metrics on this address")
	clientCmd.Flags().StringVar(&clientFlags.dataSources, "data-sources", "", "override the base data sources file")
}

func runClient(cmd *cobra.Command, args []string) error {
	cfg := config.GetConfig()
	if clientFlags.metricsAddress != "" {
		cfg.Telemetry.Metrics.ListenAddress = clientFlags.metricsAddress
	}
	if clientFlags.dataSources != "" {
		cfg.Client.DataSourcesFile = clientFlags.dataSources
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
		if err := tracer.Shutdown(shutdownCtx); err != nil {
			slog.Warn("failed to flush spans", "error", err)
		}
	}()

	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return cli.NewCommandError("client", err)
	}
	defer st.Close()

	client, err := newPubSubClient(cfg.PubSub)
	if err != nil {
		return err
	}
	defer client.Close()

	registry, closeSecrets, err := newFetchRegistry(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSecrets()

	engine := fetcher.NewEngine(cfg.Fetcher,
		fetcher.WithRegistry(registry),
		fetcher.WithRecorder(collector),
		fetcher.WithTracer(tracer.Tracer()))
	dataFetcher := fetcher.NewDataFetcher(engine, cfg.Fetcher.FetchTimeout)

	entries := make([]callbacks.Entry, len(cfg.Client.Callbacks))
	for i, cb := range cfg.Client.Callbacks {
		entries[i] = callbacks.Entry{Key: cb.Key, URL: cb.URL, Config: cb.Config}
	}
	register, err := callbacks.NewRegister(entries...)
	if err != nil {
		return cli.NewConfigError("client.callbacks", err.Error())
	}

	opts := []updater.Option{
		updater.WithReporter(callbacks.NewReporter(register, engine)),
		updater.WithRecorder(collector),
		updater.WithTracer(tracer.Tracer()),
	}
	switch {
	case cfg.Client.DataSourcesFile != "":
		opts = append(opts, updater.WithSources(updater.NewFileSources(cfg.Client.DataSourcesFile)))
	case cfg.Client.DataSourcesURL != "":
		opts = append(opts, updater.WithSources(updater.NewURLSources(dataFetcher, cfg.Client.DataSourcesURL, nil)))
	}

	u := updater.New(cfg.Client, client, dataFetcher, st, opts...)
	checker.Register("updater", func(context.Context) error {
		if state := u.State(); state != updater.StateSynced {
			return fmt.Errorf("updater is %s", state)
		}
		return nil
	})
	checker.Register("store", func(ctx context.Context) error {
		if _, err := st.Get(ctx, store.Root); err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		return nil
	})
	if err := u.Start(ctx); err != nil {
		return cli.NewCommandError("client", err)
	}

	<-ctx.Done()
	slog.Info("shutting down client")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Client.ShutdownTimeout+5*time.Second)
	defer cancel()
	if err := u.Stop(shutdownCtx); err != nil {
		return cli.NewCommandError("client", err)
	}
	return nil
}

func newPubSubClient(cfg config.PubSubConfig) (pubsub.Client, error) {
	switch cfg.Backend {
	case "memory":
		return pubsub.NewBroker(), nil
	case "socketio":
		client, err := pubsub.NewSocketIOClient(cfg)
		if err != nil {
			return nil, cli.NewConfigError("pubsub", err.Error())
		}
		return client, nil
	default:
		return nil, cli.NewConfigError("pubsub.backend", "unknown backend "+cfg.Backend)
	}
}

// newFetchRegistry registers the http provider with the configured client
// TLS and secret resolution. The returned func releases the secret
// providers.
func newFetchRegistry(ctx context.Context, cfg *config.Config) (*fetcher.Registry, func(), error) {
	httpClient, err := fetcher.NewHTTPClient(ctx, cfg.Fetcher.HTTP)
	if err != nil {
		return nil, nil, cli.NewConfigError("fetcher.http.tls", err.Error())
	}
	resolver, err := secrets.New(cfg.Secrets)
	if err != nil {
		return nil, nil, cli.NewConfigError("secrets", err.Error())
	}

	registry := fetcher.DefaultRegistry()
	registry.Register(fetcher.HTTPProviderName,
		fetcher.HTTPFactory(httpClient, fetcher.WithSecretResolver(resolver)))
	return registry, func() { _ = resolver.Close() }, nil
}

// serveTelemetry serves the probes of checker, and the collector when
// metrics are enabled, until ctx is done. Nothing is served when no address
// is configured.
func serveTelemetry(ctx context.Context, cfg config.MetricsConfig, collector *metrics.Collector, checker *health.Checker) error {
	if cfg.ListenAddress == "" {
		return nil
	}
	if err := server.New(cfg, checker, collector.Handler()).Start(ctx); err != nil {
		return cli.NewConfigError("telemetry.metrics.listen_address", err.Error())
	}
	return nil
}
