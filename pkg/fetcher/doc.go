// Package fetcher runs fetches of remote resources on a bounded pool of
// workers.
//
// An Engine owns one bounded queue and a fixed number of workers. Each
// queued FetchEvent names a provider, resolved through a Registry, which
// performs a single fetch attempt; the engine retries failed attempts with
// randomized exponential backoff and then hands the processed result to the
// event's callback. Failures at any step are reported to the registered
// failure handlers and never stop a worker.
//
// Basic usage:
//
//	engine := fetcher.NewEngine(cfg.Fetcher)
//	engine.RegisterFailureHandler(func(ctx context.Context, err error, ev *fetcher.FetchEvent) {
//	    slog.Error("fetch failed", "url", ev.URL, "error", err)
//	})
//	if err := engine.Start(ctx); err != nil {
//	    return err
//	}
//	defer engine.Stop(context.Background())
//
//	data, err := engine.HandleURL(ctx, "https://example.com/data.json", 10*time.Second, nil)
//
// The built-in providers are "http" and "file". Custom providers are added
// with Registry.Register.
package fetcher
