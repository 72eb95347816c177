// Package stitch covers a journey with the fewest confirmed segments it can
// find on the same train, working backwards from the destination.
package stitch

import (
	"context"
	"fmt"
	"log"

	"seatstitch/internal/oracle"
)

// Checker answers availability for route[fromIdx] -> route[toIdx].
// *oracle.Oracle satisfies it.
type Checker interface {
	Check(ctx context.Context, route []string, fromIdx, toIdx int, q oracle.Query, budget *oracle.Budget) oracle.Result
}

type Options struct {
	// SoftCap stops the current hop search, keeping its best candidate.
	SoftCap int
	// HardCap fails the stitch when reached with the journey still uncovered.
	HardCap int
	// MaxConsecutiveErrors fails the stitch after that many upstream errors in a row.
	MaxConsecutiveErrors int
}

func DefaultOptions() Options {
	return Options{SoftCap: 18, HardCap: 20, MaxConsecutiveErrors: 3}
}

type Segment struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Status      string `json:"status"`
	IsAvailable bool   `json:"isAvailable"`
}

// Outcome is the result of one stitch. On failure Segments is empty and Err is set.
type Outcome struct {
	Success       bool
	Segments      []Segment
	SeatChanges   int
	APICalls      int
	TotalStations int
	Err           string
	Debug         []string
}

type Engine struct {
	opts   Options
	logger *log.Logger
}

func NewEngine(opts Options, logger *log.Logger) *Engine {
	def := DefaultOptions()
	if opts.SoftCap <= 0 {
		opts.SoftCap = def.SoftCap
	}
	if opts.HardCap <= 0 {
		opts.HardCap = def.HardCap
	}
	if opts.MaxConsecutiveErrors <= 0 {
		opts.MaxConsecutiveErrors = def.MaxConsecutiveErrors
	}
	return &Engine{opts: opts, logger: logger}
}

// run holds the state of one stitch.
type run struct {
	ctx     context.Context
	checker Checker
	route   []string
	query   oracle.Query
	budget  *oracle.Budget
	errors  int
	out     *Outcome
}

func (r *run) debugf(format string, args ...any) {
	r.out.Debug = append(r.out.Debug, fmt.Sprintf(format, args...))
}

func (r *run) check(from, to int) oracle.Result {
	res := r.checker.Check(r.ctx, r.route, from, to, r.query, r.budget)
	cached := ""
	if res.Cached {
		cached = " (cached)"
	}
	r.debugf("%s->%s: %s%s | calls: %d", r.route[from], r.route[to], res.Status, cached, r.budget.Calls())
	return res
}

// Stitch covers route[0] -> route[len-1]. The full span is tried first and
// wins whenever it is available. Otherwise each step binary searches for the
// earliest start whose hop to the current destination is available, keeps
// that hop and moves the destination back to its start. The result is a
// greedy longest-last-hop decomposition, not a guaranteed minimum of seat
// changes.
func (e *Engine) Stitch(ctx context.Context, checker Checker, route []string, q oracle.Query) *Outcome {
	out := e.stitch(ctx, checker, route, q)
	if e.logger != nil {
		if out.Success {
			e.logger.Printf("stitch: train %s | segments: %d | seat changes: %d | calls: %d",
				q.TrainNo, len(out.Segments), out.SeatChanges, out.APICalls)
		} else {
			e.logger.Printf("stitch: train %s failed | calls: %d | error: %s", q.TrainNo, out.APICalls, out.Err)
		}
	}
	return out
}

func (e *Engine) stitch(ctx context.Context, checker Checker, route []string, q oracle.Query) *Outcome {
	r := &run{
		ctx:     ctx,
		checker: checker,
		route:   route,
		query:   q,
		budget:  &oracle.Budget{},
		out:     &Outcome{TotalStations: len(route)},
	}
	if len(route) < 2 {
		return r.fail("route must contain at least two stations")
	}

	src, dst := 0, len(route)-1

	direct := r.check(src, dst)
	if direct.Available {
		r.debugf("direct segment available")
		return r.succeed([]Segment{{From: route[src], To: route[dst], Status: direct.Status, IsAvailable: true}})
	}
	if direct.UpstreamError() {
		r.errors++
	}

	var segments []Segment
	for src < dst {
		if err := ctx.Err(); err != nil {
			return r.fail(fmt.Sprintf("search cancelled: %v", err))
		}

		best, status, failure := e.searchHop(r, src, dst)
		if failure != "" {
			return r.fail(failure)
		}
		if best < 0 {
			if r.budget.Calls() >= e.opts.SoftCap {
				return r.fail(fmt.Sprintf("journey incomplete within budget of %d API calls: nothing found ending at %s", e.opts.SoftCap, route[dst]))
			}
			return r.fail(fmt.Sprintf("no confirmed segment found ending at %s", route[dst]))
		}

		segments = append([]Segment{{From: route[best], To: route[dst], Status: status, IsAvailable: true}}, segments...)
		r.debugf("locked %s->%s", route[best], route[dst])
		dst = best

		if src < dst && r.budget.Calls() >= e.opts.HardCap {
			return r.fail(fmt.Sprintf("journey incomplete within budget of %d API calls: %s->%s still uncovered", e.opts.HardCap, route[src], route[dst]))
		}
	}

	return r.succeed(segments)
}

// searchHop binary searches [src, dst-1] for the earliest start with an
// available hop to dst. It returns -1 when none was found.
func (e *Engine) searchHop(r *run, src, dst int) (best int, status string, failure string) {
	best = -1
	left, right := src, dst-1

	for left <= right {
		if r.budget.Calls() >= e.opts.SoftCap {
			r.debugf("soft cap of %d API calls reached", e.opts.SoftCap)
			return best, status, ""
		}

		mid := (left + right) / 2
		res := r.check(mid, dst)
		if err := r.ctx.Err(); err != nil {
			return -1, "", fmt.Sprintf("search cancelled: %v", err)
		}

		switch {
		case res.Available:
			r.errors = 0
			best, status = mid, res.Status
			right = mid - 1
		case res.UpstreamError():
			r.errors++
			if r.errors >= e.opts.MaxConsecutiveErrors {
				return -1, "", fmt.Sprintf("upstream availability failed %d times in a row (last: %s)", r.errors, res.Status)
			}
			left = mid + 1
		case res.Kind == oracle.KindSkipped:
			left = mid + 1
		default:
			r.errors = 0
			left = mid + 1
		}
	}
	return best, status, ""
}

func (r *run) succeed(segments []Segment) *Outcome {
	r.out.Success = true
	r.out.Segments = segments
	r.out.SeatChanges = len(segments) - 1
	r.out.APICalls = r.budget.Calls()
	return r.out
}

func (r *run) fail(msg string) *Outcome {
	r.out.Success = false
	r.out.Segments = []Segment{}
	r.out.SeatChanges = 0
	r.out.APICalls = r.budget.Calls()
	r.out.Err = msg
	r.debugf("failed: %s", msg)
	return r.out
}
