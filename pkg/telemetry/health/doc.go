// Package health serves liveness and readiness probes.
//
// Liveness only reports that the process is up. Readiness runs every
// registered check concurrently, each bounded by the checker timeout, and
// reports "ready" only when all of them pass:
//
//	checker := health.New(2 * time.Second)
//	checker.Register("updater", func(ctx context.Context) error {
//	    if u.State() != updater.StateSynced {
//	        return fmt.Errorf("updater is %s", u.State())
//	    }
//	    return nil
//	})
//	checker.Mount(mux)
package health
