package route

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"seatstitch/internal/db"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// maxFailureLen bounds each source failure carried in a FetchError.
const maxFailureLen = 200

// Source yields the raw station codes of a train in travel order.
type Source interface {
	StationCodes(ctx context.Context, trainNo string) ([]string, error)
}

// NamedSource labels a Source for diagnostics and the route store.
type NamedSource struct {
	Name   string
	Source Source
}

// Store persists resolved routes. *db.RouteStore satisfies it.
type Store interface {
	Get(ctx context.Context, trainNo string) (*db.StoredRoute, error)
	Upsert(ctx context.Context, r db.StoredRoute) error
}

// SourceFailure is why one source could not produce a route.
type SourceFailure struct {
	Source string
	Reason string
}

// FetchError is returned when no source could produce a usable route.
type FetchError struct {
	TrainNo  string
	Failures []SourceFailure
}

func (e *FetchError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, f.Source+": "+f.Reason)
	}
	return fmt.Sprintf("could not fetch route for train %s (%s)", e.TrainNo, strings.Join(parts, "; "))
}

type Resolver struct {
	sources []NamedSource
	store   Store
	ttl     time.Duration
	now     func() time.Time
	logger  *log.Logger
	group   singleflight.Group
}

// NewResolver tries sources in order. store may be nil.
func NewResolver(sources []NamedSource, store Store, ttl time.Duration, logger *log.Logger) *Resolver {
	return &Resolver{
		sources: sources,
		store:   store,
		ttl:     ttl,
		now:     time.Now,
		logger:  logger,
	}
}

// Resolve returns the full route of trainNo, from the store when fresh.
func (r *Resolver) Resolve(ctx context.Context, trainNo string) (Route, error) {
	if route, ok := r.fromStore(ctx, trainNo); ok {
		return route, nil
	}
	return r.Refresh(ctx, trainNo)
}

// Refresh fetches trainNo from the sources, bypassing the store, and saves the result.
// Concurrent refreshes of one train share a single fetch.
func (r *Resolver) Refresh(ctx context.Context, trainNo string) (Route, error) {
	ch := r.group.DoChan(trainNo, func() (any, error) {
		return r.fetch(context.WithoutCancel(ctx), trainNo)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		shared := res.Val.(Route)
		out := make(Route, len(shared))
		copy(out, shared)
		return out, nil
	}
}

func (r *Resolver) fromStore(ctx context.Context, trainNo string) (Route, bool) {
	if r.store == nil {
		return nil, false
	}
	stored, err := r.store.Get(ctx, trainNo)
	if err != nil {
		if !errors.Is(err, db.ErrRouteNotFound) {
			r.logger.Printf("route: store lookup failed for %s: %v", trainNo, err)
		}
		return nil, false
	}
	if r.ttl > 0 && r.now().Sub(stored.FetchedAt) > r.ttl {
		return nil, false
	}
	route := normalize(stored.Stations)
	if len(route) < 2 {
		return nil, false
	}
	return route, true
}

func (r *Resolver) fetch(ctx context.Context, trainNo string) (Route, error) {
	fetchErr := &FetchError{TrainNo: trainNo}

	for _, src := range r.sources {
		codes, err := src.Source.StationCodes(ctx, trainNo)
		if err == nil {
			route := normalize(codes)
			if len(route) >= 2 {
				r.logger.Printf("route: resolved %s via %s | stations: %d", trainNo, src.Name, len(route))
				r.save(ctx, trainNo, src.Name, route)
				return route, nil
			}
			err = fmt.Errorf("parsed %d usable station codes", len(route))
		}
		r.logger.Printf("route: %s failed for %s: %v", src.Name, trainNo, err)
		fetchErr.Failures = append(fetchErr.Failures, SourceFailure{Source: src.Name, Reason: truncate(err.Error(), maxFailureLen)})

		if ctx.Err() != nil {
			break
		}
	}

	if len(fetchErr.Failures) == 0 {
		fetchErr.Failures = append(fetchErr.Failures, SourceFailure{Source: "resolver", Reason: "no route sources configured"})
	}
	return nil, fetchErr
}

func (r *Resolver) save(ctx context.Context, trainNo, source string, route Route) {
	if r.store == nil {
		return
	}
	err := r.store.Upsert(ctx, db.StoredRoute{
		TrainNo:   trainNo,
		Stations:  db.StationList(route),
		Source:    source,
		FetchedAt: r.now(),
	})
	if err != nil {
		r.logger.Printf("route: failed to store %s: %v", trainNo, err)
	}
}

// Warm refreshes each train with at most concurrency fetches in flight.
// Individual failures are logged; it returns how many trains resolved.
func (r *Resolver) Warm(ctx context.Context, trainNos []string, concurrency int) (int, error) {
	if concurrency <= 0 {
		concurrency = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	results := make([]bool, len(trainNos))

	for i, trainNo := range trainNos {
		i, trainNo := i, trainNo
		g.Go(func() error {
			if _, err := r.Refresh(gctx, trainNo); err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				r.logger.Printf("route: warm-up failed for %s: %v", trainNo, err)
				return nil
			}
			results[i] = true
			return nil
		})
	}

	err := g.Wait()
	ok := 0
	for _, done := range results {
		if done {
			ok++
		}
	}
	return ok, err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
