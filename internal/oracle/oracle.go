// Package oracle answers "is this segment confirmable?" with caching, span
// policy and a shared call budget. It never returns an error: failures are
// encoded in the result status.
package oracle

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"seatstitch/internal/availability"
	"seatstitch/internal/irctc"
)

const (
	StatusSkipTooClose = "SKIP_TOO_CLOSE"
	StatusRateLimit    = "RATE_LIMIT_ERROR"
	StatusBadSegment   = "INVALID_SEGMENT"
	apiErrorPrefix     = "API_ERROR:"
	apiFalsePrefix     = "API_FALSE:"
	defaultMinHopSpan  = 2
	defaultPoliteness  = time.Second
)

const (
	KindUpstreamError availability.Kind = "UPSTREAM_ERROR"
	KindSkipped       availability.Kind = "SKIPPED"
)

// Query is the part of a probe shared by every segment of one search.
type Query struct {
	TrainNo   string
	Date      string // YYYY-MM-DD
	ClassType string
	Quota     string
}

// Result is the verdict for one segment.
type Result struct {
	Available bool
	Status    string
	Kind      availability.Kind
	Cached    bool
}

// UpstreamError reports a retryable upstream failure rather than a real verdict.
func (r Result) UpstreamError() bool { return IsUpstreamError(r.Status) }

// IsUpstreamError reports whether status is an API_ERROR:* or RATE_LIMIT_ERROR tag.
func IsUpstreamError(status string) bool {
	return status == StatusRateLimit || strings.HasPrefix(status, apiErrorPrefix)
}

// Prober performs one upstream availability lookup. *irctc.Client satisfies it.
type Prober interface {
	CheckAvailability(ctx context.Context, q irctc.AvailabilityRequest) (*irctc.AvailabilityResponse, error)
}

// Budget counts upstream calls made during one search.
type Budget struct {
	calls int
}

func (b *Budget) add() { b.calls++ }

// Calls returns the number of upstream calls spent so far.
func (b *Budget) Calls() int {
	if b == nil {
		return 0
	}
	return b.calls
}

type Options struct {
	// Delay is the politeness pause after every upstream call.
	Delay time.Duration
	// MinHopSpan is the smallest toIdx-fromIdx worth asking upstream about.
	MinHopSpan int
	// Sleep waits for d or until ctx is done. Defaults to a timer.
	Sleep func(ctx context.Context, d time.Duration)
}

func DefaultOptions() Options {
	return Options{Delay: defaultPoliteness, MinHopSpan: defaultMinHopSpan}
}

type Oracle struct {
	prober Prober
	cache  Cache
	opts   Options
	logger *log.Logger
}

// New builds an oracle around a fresh cache. Build one per search.
func New(prober Prober, cache Cache, opts Options, logger *log.Logger) *Oracle {
	if opts.MinHopSpan <= 0 {
		opts.MinHopSpan = 1
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepCtx
	}
	if cache == nil {
		cache = NewLRUCache(256)
	}
	return &Oracle{prober: prober, cache: cache, opts: opts, logger: logger}
}

// Check asks about the segment route[fromIdx] -> route[toIdx]. Segments
// shorter than MinHopSpan are skipped without an upstream call, except the
// full span of route.
func (o *Oracle) Check(ctx context.Context, route []string, fromIdx, toIdx int, q Query, budget *Budget) Result {
	if fromIdx < 0 || toIdx >= len(route) || fromIdx >= toIdx {
		return Result{Status: StatusBadSegment, Kind: KindSkipped}
	}
	fullSpan := fromIdx == 0 && toIdx == len(route)-1
	if !fullSpan && toIdx-fromIdx < o.opts.MinHopSpan {
		return Result{Status: StatusSkipTooClose, Kind: KindSkipped}
	}
	return o.Probe(ctx, route[fromIdx], route[toIdx], q, budget)
}

// Probe asks upstream about from -> to with no span policy.
func (o *Oracle) Probe(ctx context.Context, from, to string, q Query, budget *Budget) Result {
	key := cacheKey(from, to, q)
	if r, ok := o.cache.Get(key); ok {
		r.Cached = true
		return r
	}

	if err := ctx.Err(); err != nil {
		return upstreamError(err.Error())
	}

	if budget != nil {
		budget.add()
	}
	resp, err := o.prober.CheckAvailability(ctx, irctc.AvailabilityRequest{
		TrainNo:   q.TrainNo,
		From:      from,
		To:        to,
		Date:      q.Date,
		ClassType: q.ClassType,
		Quota:     q.Quota,
	})
	if o.opts.Delay > 0 {
		o.opts.Sleep(ctx, o.opts.Delay)
	}

	r := interpret(resp, err, q.Date)
	if o.logger != nil {
		o.logger.Printf("oracle: %s %s->%s | status: %s | available: %t | calls: %d",
			q.TrainNo, from, to, r.Status, r.Available, budget.Calls())
	}

	if !r.UpstreamError() {
		o.cache.Set(key, r)
	}
	return r
}

func interpret(resp *irctc.AvailabilityResponse, err error, date string) Result {
	if err != nil {
		if errors.Is(err, irctc.ErrRateLimited) {
			return Result{Status: StatusRateLimit, Kind: KindUpstreamError}
		}
		return upstreamError(err.Error())
	}
	if resp == nil {
		return Result{Status: availability.NoData, Kind: availability.KindNoData}
	}

	if msg := resp.ErrorText(); msg != "" {
		if irctc.IsRateLimitMessage(msg) {
			return Result{Status: StatusRateLimit, Kind: KindUpstreamError}
		}
		return upstreamError(msg)
	}
	if resp.IsFalse() {
		msg := resp.MessageText()
		if irctc.IsRateLimitMessage(msg) {
			return Result{Status: StatusRateLimit, Kind: KindUpstreamError}
		}
		return Result{Status: apiFalsePrefix + availability.Sanitize(msg), Kind: availability.KindNotAvailable}
	}

	row, ok := pickRow(resp.Data, date)
	if !ok {
		return Result{Status: availability.NoData, Kind: availability.KindNoData}
	}
	v := availability.Classify(row.CurrentStatus)
	return Result{Available: v.Available, Status: v.Status, Kind: v.Kind}
}

func upstreamError(msg string) Result {
	return Result{Status: apiErrorPrefix + availability.Sanitize(msg), Kind: KindUpstreamError}
}

var rowDateLayouts = []string{"2-1-2006", "02-01-2006", "2006-01-02"}

// pickRow returns the row for date, else the first row.
func pickRow(rows []irctc.AvailabilityRow, date string) (irctc.AvailabilityRow, bool) {
	if len(rows) == 0 {
		return irctc.AvailabilityRow{}, false
	}
	want, err := time.Parse("2006-01-02", date)
	if err == nil {
		for _, row := range rows {
			if got, ok := parseRowDate(row.Date); ok && got.Equal(want) {
				return row, true
			}
		}
	}
	return rows[0], true
}

func parseRowDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range rowDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
