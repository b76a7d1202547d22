// Package updater keeps a local policy store in sync with data published on
// pub/sub topics.
//
// An Updater subscribes to its data topics. Every notification carries a
// DataUpdate: a batch of entries, each naming a URL or inline data and the
// store path it belongs at. Entries are fetched through the fetch engine
// and written under a hierarchical path lock, so entries for overlapping
// paths apply in order while disjoint paths proceed in parallel. Each
// applied update produces a DataUpdateReport that can be delivered to
// registered callbacks.
//
// On every (re)connect the updater reloads its base data sources, from a
// URL or a watched local file, and reschedules entries with a periodic
// interval.
//
//	u := updater.New(cfg.Client, client, dataFetcher, st,
//	    updater.WithSources(updater.NewFileSources("sources.yaml")),
//	    updater.WithReporter(reporter))
//	if err := u.Start(ctx); err != nil {
//	    return err
//	}
//	defer u.Stop(context.Background())
package updater
