package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var ErrRouteNotFound = errors.New("route not found")

// StoredRoute is a previously resolved train route.
type StoredRoute struct {
	TrainNo   string
	Stations  StationList
	Source    string
	FetchedAt time.Time
}

// RouteStore persists resolved routes so restarts do not refetch them.
type RouteStore struct {
	db *sql.DB
}

func NewRouteStore(dbConn *sql.DB) *RouteStore {
	return &RouteStore{db: dbConn}
}

func (s *RouteStore) Get(ctx context.Context, trainNo string) (*StoredRoute, error) {
	var r StoredRoute
	var fetchedAt string
	row := s.db.QueryRowContext(ctx,
		`SELECT train_no, stations, source, fetched_at FROM train_routes WHERE train_no = ?`, trainNo)
	if err := row.Scan(&r.TrainNo, &r.Stations, &r.Source, &fetchedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRouteNotFound
		}
		return nil, fmt.Errorf("failed to load route %s: %w", trainNo, err)
	}

	t, err := time.Parse(time.RFC3339, fetchedAt)
	if err != nil {
		return nil, fmt.Errorf("invalid fetched_at for %s: %w", trainNo, err)
	}
	r.FetchedAt = t
	return &r, nil
}

func (s *RouteStore) Upsert(ctx context.Context, r StoredRoute) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO train_routes (train_no, stations, source, fetched_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(train_no) DO UPDATE SET
			stations = excluded.stations,
			source = excluded.source,
			fetched_at = excluded.fetched_at,
			updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')`,
		r.TrainNo, r.Stations, r.Source, r.FetchedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to upsert route %s: %w", r.TrainNo, err)
	}
	return nil
}

// ListStale returns train numbers fetched before cutoff, oldest first.
func (s *RouteStore) ListStale(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT train_no FROM train_routes WHERE fetched_at < ? ORDER BY fetched_at`,
		cutoff.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("failed to list stale routes: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var trainNo string
		if err := rows.Scan(&trainNo); err != nil {
			return nil, err
		}
		out = append(out, trainNo)
	}
	return out, rows.Err()
}

func (s *RouteStore) Delete(ctx context.Context, trainNo string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM train_routes WHERE train_no = ?`, trainNo); err != nil {
		return fmt.Errorf("failed to delete route %s: %w", trainNo, err)
	}
	return nil
}
