package fetcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Source is a named resource fetched by FetchMany.
type Source struct {
	Name   string
	URL    string
	Config map[string]any
}

// DataFetcher fetches data for the updater through an Engine.
type DataFetcher struct {
	engine  *Engine
	timeout time.Duration
}

// NewDataFetcher wraps engine. Each fetch waits at most timeout; zero uses
// the engine's fetch timeout.
func NewDataFetcher(engine *Engine, timeout time.Duration) *DataFetcher {
	return &DataFetcher{engine: engine, timeout: timeout}
}

// Engine returns the underlying engine.
func (f *DataFetcher) Engine() *Engine { return f.engine }

// Start starts the engine workers.
func (f *DataFetcher) Start(ctx context.Context) error {
	return f.engine.Start(ctx)
}

// Stop stops the engine.
func (f *DataFetcher) Stop(ctx context.Context) error {
	return f.engine.Stop(ctx)
}

// FetchData fetches url and returns the processed result.
func (f *DataFetcher) FetchData(ctx context.Context, url string, cfg map[string]any) (any, error) {
	return f.engine.HandleURL(ctx, url, f.timeout, cfg)
}

// FetchMany fetches every source concurrently and returns the results keyed
// by source name. The first failure cancels the remaining waits and is
// returned.
func (f *DataFetcher) FetchMany(ctx context.Context, sources []Source) (map[string]any, error) {
	var mu sync.Mutex
	results := make(map[string]any, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	for _, src := range sources {
		g.Go(func() error {
			data, err := f.FetchData(gctx, src.URL, src.Config)
			if err != nil {
				return fmt.Errorf("source %q: %w", src.Name, err)
			}
			mu.Lock()
			results[src.Name] = data
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
