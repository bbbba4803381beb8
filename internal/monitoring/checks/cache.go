package checks

import (
	"context"
	"time"

	"github.com/charlesng35/linkcard/internal/cache"
	"github.com/charlesng35/linkcard/internal/monitoring"
)

const defaultCacheTimeout = 2 * time.Second

// Cache returns a readiness probe for the card cache backend. Backends that
// cannot be pinged, such as the in-process store, always report up.
func Cache(store cache.Store, backend string, timeout time.Duration) monitoring.Check {
	return monitoring.NewCheck("cache", func(ctx context.Context) monitoring.ProbeResult {
		start := time.Now()
		if store == nil {
			return monitoring.ProbeResult{
				Status:   monitoring.StatusDegraded,
				Details:  "cache unavailable",
				Duration: time.Since(start),
			}
		}

		pinger, ok := store.(cache.Pinger)
		if !ok {
			return monitoring.ProbeResult{
				Status:   monitoring.StatusUp,
				Details:  backend,
				Duration: time.Since(start),
			}
		}

		probeCtx, cancel := context.WithTimeout(ctx, chooseTimeout(timeout, defaultCacheTimeout))
		defer cancel()

		if err := pinger.Ping(probeCtx); err != nil {
			return monitoring.ResultFromError("cache", err, time.Since(start))
		}
		return monitoring.ProbeResult{
			Status:   monitoring.StatusUp,
			Details:  backend,
			Duration: time.Since(start),
		}
	})
}
