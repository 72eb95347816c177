// Package journey validates search requests and runs them in normal or urgent mode.
package journey

import (
	"context"
	"fmt"
	"log"

	"seatstitch/internal/oracle"
	"seatstitch/internal/route"
	"seatstitch/internal/stitch"

	"github.com/go-playground/validator/v10"
)

const (
	maxDebugLines = 60
	maxDebugLen   = 200
)

// Result is the response body of a search, successful or not.
type Result struct {
	Success       bool             `json:"success"`
	Segments      []stitch.Segment `json:"segments"`
	SeatChanges   int              `json:"seatChanges"`
	APICalls      int              `json:"apiCalls"`
	TotalStations int              `json:"totalStations"`
	Error         string           `json:"error,omitempty"`
	DebugInfo     []string         `json:"debugInfo"`
}

// Failure builds the result body for a request rejected with msg.
func Failure(msg string) *Result {
	return &Result{Segments: []stitch.Segment{}, Error: msg, DebugInfo: []string{}}
}

// RouteResolver returns the full route of a train. *route.Resolver satisfies it.
type RouteResolver interface {
	Resolve(ctx context.Context, trainNo string) (route.Route, error)
}

type Config struct {
	Oracle    oracle.Options
	Stitch    stitch.Options
	CacheSize int
}

type Service struct {
	resolver   RouteResolver
	prober     oracle.Prober
	newCache   oracle.CacheFactory
	oracleOpts oracle.Options
	engine     *stitch.Engine
	validate   *validator.Validate
	logger     *log.Logger
}

func NewService(resolver RouteResolver, prober oracle.Prober, cfg Config, logger *log.Logger) *Service {
	return &Service{
		resolver:   resolver,
		prober:     prober,
		newCache:   oracle.LRUFactory(cfg.CacheSize),
		oracleOpts: cfg.Oracle,
		engine:     stitch.NewEngine(cfg.Stitch, logger),
		validate:   newValidator(),
		logger:     logger,
	}
}

// Search validates req and runs it. A search that ran but found no path is a
// Result with Success false and a nil error. Errors are *ValidationError,
// *route.FetchError, *route.SliceError or internal.
func (s *Service) Search(ctx context.Context, req Request) (*Result, error) {
	req = req.Normalize()
	if err := validateRequest(s.validate, req); err != nil {
		return nil, err
	}

	q := oracle.Query{TrainNo: req.TrainNo, Date: req.Date, ClassType: req.ClassType, Quota: req.Quota}
	orc := oracle.New(s.prober, s.newCache(), s.oracleOpts, s.logger)

	s.logger.Printf("journey: search %s %s->%s | date: %s | class: %s | quota: %s | mode: %s",
		req.TrainNo, req.Source, req.Destination, req.Date, req.ClassType, req.Quota, req.Mode)

	if req.Mode == ModeNormal {
		return s.searchDirect(ctx, orc, req, q), nil
	}
	return s.searchStitched(ctx, orc, req, q)
}

func (s *Service) searchDirect(ctx context.Context, orc *oracle.Oracle, req Request, q oracle.Query) *Result {
	budget := &oracle.Budget{}
	res := orc.Probe(ctx, req.Source, req.Destination, q, budget)

	debug := []string{fmt.Sprintf("%s->%s: %s | calls: %d", req.Source, req.Destination, res.Status, budget.Calls())}
	if !res.Available {
		out := Failure(fmt.Sprintf("no confirmed seats from %s to %s (%s)", req.Source, req.Destination, res.Status))
		out.APICalls = budget.Calls()
		out.TotalStations = 2
		out.DebugInfo = boundDebug(debug)
		return out
	}
	return &Result{
		Success:       true,
		Segments:      []stitch.Segment{{From: req.Source, To: req.Destination, Status: res.Status, IsAvailable: true}},
		APICalls:      budget.Calls(),
		TotalStations: 2,
		DebugInfo:     boundDebug(debug),
	}
}

func (s *Service) searchStitched(ctx context.Context, orc *oracle.Oracle, req Request, q oracle.Query) (*Result, error) {
	full, err := s.resolver.Resolve(ctx, req.TrainNo)
	if err != nil {
		return nil, err
	}
	sliced, err := route.Slice(full, req.Source, req.Destination)
	if err != nil {
		return nil, err
	}

	outcome := s.engine.Stitch(ctx, orc, sliced, q)

	debug := append([]string{fmt.Sprintf("route: %d stations, journey spans %d", len(full), len(sliced))}, outcome.Debug...)
	out := &Result{
		Success:       outcome.Success,
		Segments:      outcome.Segments,
		SeatChanges:   outcome.SeatChanges,
		APICalls:      outcome.APICalls,
		TotalStations: outcome.TotalStations,
		Error:         outcome.Err,
		DebugInfo:     boundDebug(debug),
	}
	if out.Segments == nil {
		out.Segments = []stitch.Segment{}
	}
	return out, nil
}

// boundDebug caps the number and length of debug lines.
func boundDebug(lines []string) []string {
	out := make([]string, 0, min(len(lines), maxDebugLines))
	for i, line := range lines {
		if i == maxDebugLines-1 && len(lines) > maxDebugLines {
			out = append(out, fmt.Sprintf("... %d more lines omitted", len(lines)-i))
			break
		}
		if len(line) > maxDebugLen {
			line = line[:maxDebugLen-3] + "..."
		}
		out = append(out, line)
	}
	return out
}
