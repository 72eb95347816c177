// Package refresh keeps stored train routes from expiring by refetching them in the background.
package refresh

import (
	"context"
	"log"
	"time"
)

// Lister finds routes fetched before cutoff. *db.RouteStore satisfies it.
type Lister interface {
	ListStale(ctx context.Context, cutoff time.Time) ([]string, error)
}

// Warmer refetches routes. *route.Resolver satisfies it.
type Warmer interface {
	Warm(ctx context.Context, trainNos []string, concurrency int) (int, error)
}

type Config struct {
	// Window is the minimum length of one cycle.
	Window time.Duration
	// MaxAge is how old a stored route may get before it is refetched.
	MaxAge time.Duration
	// Concurrency bounds parallel refetches.
	Concurrency int
	// BatchSize caps the routes refetched per cycle.
	BatchSize int
}

// Start blocks until ctx is cancelled.
// Calls executeCycle repeatedly and ensures each cycle lasts at least cfg.Window
func Start(ctx context.Context, lister Lister, warmer Warmer, logger *log.Logger, cfg Config) {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.Window <= 0 {
		cfg.Window = 24 * time.Hour
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}

	logger.Printf("refresh: started | workers: %d | window: %v | max_age: %v", cfg.Concurrency, cfg.Window, cfg.MaxAge)

	for {
		select {
		case <-ctx.Done():
			logger.Println("refresh: shutting down")
			return
		default:
			start := time.Now()
			stale, refreshed := executeCycle(ctx, lister, warmer, logger, cfg, start)
			elapsed := time.Since(start)

			// ensure each cycle is at least cfg.Window
			sleep := cfg.Window - elapsed
			if sleep < 0 {
				sleep = 0
			}
			logger.Printf("refresh: cycle completed | stale: %d | refreshed: %d | elapsed: %v | sleeping: %v", stale, refreshed, elapsed, sleep)

			select {
			case <-time.After(sleep):
			case <-ctx.Done():
				logger.Println("refresh: shutting down")
				return
			}
		}
	}
}

// executeCycle refetches up to cfg.BatchSize routes older than cfg.MaxAge and
// returns how many were stale and how many were refreshed.
func executeCycle(ctx context.Context, lister Lister, warmer Warmer, logger *log.Logger, cfg Config, now time.Time) (int, int) {
	stale, err := lister.ListStale(ctx, now.Add(-cfg.MaxAge))
	if err != nil {
		logger.Printf("refresh: failed to list stale routes: %v", err)
		return 0, 0
	}
	if len(stale) == 0 {
		return 0, 0
	}

	batch := stale
	if len(batch) > cfg.BatchSize {
		batch = batch[:cfg.BatchSize]
	}

	refreshed, err := warmer.Warm(ctx, batch, cfg.Concurrency)
	if err != nil {
		logger.Printf("refresh: cycle interrupted: %v", err)
	}
	return len(stale), refreshed
}
