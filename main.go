package main

import (
	"bufio"
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"seatstitch/internal/api"
	"seatstitch/internal/config"
	"seatstitch/internal/db"
	"seatstitch/internal/irctc"
	"seatstitch/internal/iri"
	"seatstitch/internal/journey"
	"seatstitch/internal/oracle"
	"seatstitch/internal/ratelimit"
	"seatstitch/internal/refresh"
	"seatstitch/internal/route"
	"seatstitch/internal/stitch"
	"seatstitch/internal/wimt"

	"golang.org/x/time/rate"
)

const shutdownTimeout = 10 * time.Second

func main() {
	warmFlag := flag.Bool("warm", false, "Prefetch routes listed in the warm list before serving")
	flag.Parse()

	logger := log.New(os.Stdout, "[seatstitch] ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("failed to load configuration: %v", err)
	}
	logger.Printf("configuration loaded | db_path: %s | timezone: %s | addr: %s", cfg.Database.Path, cfg.Timezone, cfg.Server.Addr)

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Fatalf("failed to load timezone: %v", err)
	}

	dbConn, err := db.OpenDatabase(cfg.Database, db.DefaultDatabaseOptions(), logger)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Printf("error closing database: %v", err)
		}
	}()
	store := db.NewRouteStore(dbConn)

	upstream := irctc.NewClient(irctc.Config{
		BaseURL: cfg.Upstream.BaseURL,
		APIKey:  cfg.Upstream.APIKey,
		APIHost: cfg.Upstream.APIHost,
		Timeout: cfg.Upstream.Timeout,
	}, rate.NewLimiter(rate.Limit(cfg.Upstream.RatePerSec), cfg.Upstream.Burst))

	sources := []route.NamedSource{
		{Name: "schedule", Source: upstream},
		{Name: "live_status", Source: wimt.NewAPIClient(cfg.LiveStatus.BaseURL, cfg.LiveStatus.ProxyURL, loc)},
	}
	if cfg.Timetable.BaseURL != "" {
		timetable := iri.NewClient(cfg.Timetable.BaseURL, rate.NewLimiter(rate.Every(10*time.Second), 15))
		sources = append(sources, route.NamedSource{Name: "timetable", Source: timetable})
	}
	resolver := route.NewResolver(sources, store, cfg.Routes.TTL, logger)

	svc := journey.NewService(resolver, upstream, journey.Config{
		Oracle: oracle.Options{
			Delay:      cfg.Search.PolitenessDelay,
			MinHopSpan: cfg.Search.MinHopSpan,
		},
		Stitch: stitch.Options{
			SoftCap:              cfg.Search.SoftCallCap,
			HardCap:              cfg.Search.HardCallCap,
			MaxConsecutiveErrors: cfg.Search.MaxConsecutiveErrors,
		},
		CacheSize: cfg.Search.CacheSize,
	}, logger)

	searchLimiter := ratelimit.New(cfg.RateLimit.SearchCap, cfg.RateLimit.Window)
	routeLimiter := ratelimit.New(cfg.RateLimit.RouteCap, cfg.RateLimit.Window)

	if len(cfg.Auth.Tokens) == 0 {
		logger.Println("auth disabled: callers are rate limited by client IP")
	}

	if *warmFlag {
		trainNos := loadTrainNumbers(cfg.Routes.WarmListPath, logger)
		logger.Printf("warming %d routes", len(trainNos))
		ok, err := resolver.Warm(ctx, trainNos, cfg.Routes.WarmConcurrency)
		if err != nil {
			logger.Printf("warm-up interrupted: %v", err)
		}
		logger.Printf("warm-up completed | resolved: %d/%d", ok, len(trainNos))
	}

	if cfg.Routes.RefreshInterval > 0 {
		go refresh.Start(ctx, store, resolver, logger, refresh.Config{
			Window:      cfg.Routes.RefreshInterval,
			MaxAge:      cfg.Routes.TTL,
			Concurrency: cfg.Routes.WarmConcurrency,
		})
	}

	go runLimiterSweep(ctx, logger, cfg.RateLimit.Window, searchLimiter, routeLimiter)

	server := api.NewServer(cfg.Server, api.Deps{
		Searcher:      svc,
		Routes:        resolver,
		Tokens:        cfg.Auth.Tokens,
		SearchLimiter: searchLimiter,
		RouteLimiter:  routeLimiter,
	}, logger)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			logger.Printf("server failed: %v", err)
		}
	case <-ctx.Done():
		logger.Println("shutdown signal received, cleaning up...")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Printf("graceful shutdown failed: %v", err)
	}
	logger.Println("application stopped")
}

// runLimiterSweep drops expired rate limit windows so idle callers do not accumulate.
func runLimiterSweep(ctx context.Context, logger *log.Logger, interval time.Duration, limiters ...*ratelimit.Limiter) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Println("limiter sweep shutting down")
			return
		case <-ticker.C:
			removed := 0
			for _, l := range limiters {
				removed += l.Sweep()
			}
			if removed > 0 {
				logger.Printf("limiter sweep | expired windows removed: %d", removed)
			}
		}
	}
}

// loadTrainNumbers reads train numbers from a train_no,name CSV with a header row.
func loadTrainNumbers(path string, logger *log.Logger) []string {
	file, err := os.Open(path)
	if err != nil {
		logger.Printf("failed to open %s: %v", path, err)
		return nil
	}
	defer file.Close()

	var trainNos []string

	scanner := bufio.NewScanner(file)
	// Skip header
	scanner.Scan()

	for scanner.Scan() {
		fields := strings.SplitN(scanner.Text(), ",", 2)
		trainNo := strings.TrimSpace(fields[0])
		if trainNo != "" {
			trainNos = append(trainNos, trainNo)
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Printf("error reading %s: %v", path, err)
	}
	return trainNos
}
