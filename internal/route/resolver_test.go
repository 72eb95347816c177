package route

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"seatstitch/internal/db"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	codes []string
	err   error
	calls atomic.Int32
	gate  chan struct{}
}

func (f *fakeSource) StationCodes(ctx context.Context, trainNo string) ([]string, error) {
	f.calls.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	return f.codes, f.err
}

type memStore struct {
	mu     sync.Mutex
	routes map[string]db.StoredRoute
}

func newMemStore() *memStore {
	return &memStore{routes: make(map[string]db.StoredRoute)}
}

func (m *memStore) Get(ctx context.Context, trainNo string) (*db.StoredRoute, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.routes[trainNo]
	if !ok {
		return nil, db.ErrRouteNotFound
	}
	return &r, nil
}

func (m *memStore) Upsert(ctx context.Context, r db.StoredRoute) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes[r.TrainNo] = r
	return nil
}

func discardLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestResolver_FallsBackInOrder(t *testing.T) {
	primary := &fakeSource{err: errors.New("upstream said no")}
	secondary := &fakeSource{codes: []string{"mmct", "BRC", "", "ndls"}}
	store := newMemStore()

	r := NewResolver([]NamedSource{
		{Name: "schedule", Source: primary},
		{Name: "live_status", Source: secondary},
	}, store, time.Hour, discardLogger())

	got, err := r.Resolve(context.Background(), "12951")
	require.NoError(t, err)
	assert.Equal(t, Route{"MMCT", "BRC", "NDLS"}, got)
	assert.EqualValues(t, 1, primary.calls.Load())

	stored, err := store.Get(context.Background(), "12951")
	require.NoError(t, err)
	assert.Equal(t, "live_status", stored.Source)
	assert.Equal(t, db.StationList{"MMCT", "BRC", "NDLS"}, stored.Stations)
}

func TestResolver_UsesFreshStoredRoute(t *testing.T) {
	src := &fakeSource{codes: []string{"XX", "YY"}}
	store := newMemStore()
	now := time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)
	store.routes["12951"] = db.StoredRoute{
		TrainNo:   "12951",
		Stations:  db.StationList{"MMCT", "NDLS"},
		FetchedAt: now.Add(-time.Hour),
	}

	r := NewResolver([]NamedSource{{Name: "schedule", Source: src}}, store, 24*time.Hour, discardLogger())
	r.now = func() time.Time { return now }

	got, err := r.Resolve(context.Background(), "12951")
	require.NoError(t, err)
	assert.Equal(t, Route{"MMCT", "NDLS"}, got)
	assert.EqualValues(t, 0, src.calls.Load())
}

func TestResolver_RefetchesExpiredRoute(t *testing.T) {
	src := &fakeSource{codes: []string{"XX", "YY"}}
	store := newMemStore()
	now := time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)
	store.routes["12951"] = db.StoredRoute{
		TrainNo:   "12951",
		Stations:  db.StationList{"MMCT", "NDLS"},
		FetchedAt: now.Add(-48 * time.Hour),
	}

	r := NewResolver([]NamedSource{{Name: "schedule", Source: src}}, store, 24*time.Hour, discardLogger())
	r.now = func() time.Time { return now }

	got, err := r.Resolve(context.Background(), "12951")
	require.NoError(t, err)
	assert.Equal(t, Route{"XX", "YY"}, got)
	assert.EqualValues(t, 1, src.calls.Load())
	assert.True(t, now.Equal(store.routes["12951"].FetchedAt))
}

func TestResolver_AllSourcesFail(t *testing.T) {
	r := NewResolver([]NamedSource{
		{Name: "schedule", Source: &fakeSource{err: errors.New("boom")}},
		{Name: "live_status", Source: &fakeSource{codes: []string{"ONLY"}}},
	}, nil, 0, discardLogger())

	_, err := r.Resolve(context.Background(), "12951")
	require.Error(t, err)

	var fetchErr *FetchError
	require.True(t, errors.As(err, &fetchErr))
	require.Len(t, fetchErr.Failures, 2)
	assert.Equal(t, "schedule", fetchErr.Failures[0].Source)
	assert.Equal(t, "boom", fetchErr.Failures[0].Reason)
	assert.Equal(t, "parsed 1 usable station codes", fetchErr.Failures[1].Reason)
	assert.Contains(t, err.Error(), "could not fetch route for train 12951")
}

func TestResolver_NoSources(t *testing.T) {
	r := NewResolver(nil, nil, 0, discardLogger())
	_, err := r.Resolve(context.Background(), "12951")

	var fetchErr *FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, "no route sources configured", fetchErr.Failures[0].Reason)
}

func TestResolver_ConcurrentRefreshSharesFetch(t *testing.T) {
	src := &fakeSource{codes: []string{"AA", "BB", "CC"}, gate: make(chan struct{})}
	r := NewResolver([]NamedSource{{Name: "schedule", Source: src}}, nil, 0, discardLogger())

	const callers = 8
	var wg sync.WaitGroup
	results := make([]Route, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, err := r.Refresh(context.Background(), "12951")
			if err == nil {
				results[i] = got
			}
		}(i)
	}

	// Let every caller join the in-flight fetch before releasing it.
	require.Eventually(t, func() bool { return src.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(src.gate)
	wg.Wait()

	assert.LessOrEqual(t, src.calls.Load(), int32(callers))
	for _, got := range results {
		assert.Equal(t, Route{"AA", "BB", "CC"}, got)
	}

	// Callers get private copies.
	results[0][0] = "ZZ"
	assert.Equal(t, "AA", results[1][0])
}

func TestResolver_RefreshHonorsCancel(t *testing.T) {
	src := &fakeSource{codes: []string{"AA", "BB"}, gate: make(chan struct{})}
	defer close(src.gate)
	r := NewResolver([]NamedSource{{Name: "schedule", Source: src}}, nil, 0, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Refresh(ctx, "12951")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestResolver_Warm(t *testing.T) {
	good := &fakeSource{codes: []string{"AA", "BB"}}
	store := newMemStore()
	r := NewResolver([]NamedSource{{Name: "schedule", Source: good}}, store, time.Hour, discardLogger())

	n, err := r.Warm(context.Background(), []string{"11111", "22222", "33333"}, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Len(t, store.routes, 3)
}

func TestResolver_WarmCountsFailures(t *testing.T) {
	r := NewResolver([]NamedSource{{Name: "schedule", Source: &fakeSource{err: errors.New("down")}}}, nil, 0, discardLogger())

	n, err := r.Warm(context.Background(), []string{"11111", "22222"}, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
