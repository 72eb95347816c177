package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"seatstitch/internal/config"
	"seatstitch/internal/journey"
	"seatstitch/internal/ratelimit"
	"seatstitch/internal/route"
	"seatstitch/internal/stitch"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSearcher struct {
	mu     sync.Mutex
	result *journey.Result
	err    error
	calls  int
}

func (s *stubSearcher) Search(ctx context.Context, req journey.Request) (*journey.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.result, s.err
}

func (s *stubSearcher) set(result *journey.Result, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.result, s.err = result, err
}

func (s *stubSearcher) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type stubRoutes struct {
	mu    sync.Mutex
	route route.Route
	err   error
}

func (s *stubRoutes) Resolve(ctx context.Context, trainNo string) (route.Route, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.route, s.err
}

func (s *stubRoutes) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

type testServer struct {
	*httptest.Server
	searcher *stubSearcher
	routes   *stubRoutes
}

func newTestServer(t *testing.T, tokens map[string]string, searchCap int) *testServer {
	t.Helper()
	searcher := &stubSearcher{result: &journey.Result{
		Success:     true,
		Segments:    []stitch.Segment{{From: "MMCT", To: "NDLS", Status: "CNF", IsAvailable: true}},
		APICalls:    1,
		DebugInfo:   []string{},
		SeatChanges: 0,
	}}
	routes := &stubRoutes{route: route.Route{"MMCT", "BVI", "ST", "BRC", "NDLS"}}

	srv := NewServer(config.ServerConfig{AllowedOrigins: []string{"http://localhost:5173"}}, Deps{
		Searcher:      searcher,
		Routes:        routes,
		Tokens:        tokens,
		SearchLimiter: ratelimit.New(searchCap, time.Minute),
		RouteLimiter:  ratelimit.New(15, time.Minute),
	}, log.New(io.Discard, "", 0))

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testServer{Server: ts, searcher: searcher, routes: routes}
}

const searchBody = `{"trainNo":"12951","source":"MMCT","destination":"NDLS","date":"2025-05-10","classType":"3A","quota":"GN","mode":"urgent"}`

func (ts *testServer) post(t *testing.T, body, token string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/v1/journeys/search", strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return do(t, req)
}

func (ts *testServer) get(t *testing.T, path string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, ts.URL+path, nil)
	require.NoError(t, err)
	return do(t, req)
}

func do(t *testing.T, req *http.Request) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp, body
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, nil, 10)
	resp, body := ts.get(t, "/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
}

func TestSearch_Success(t *testing.T) {
	ts := newTestServer(t, nil, 10)
	resp, body := ts.post(t, searchBody, "")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	segments := body["segments"].([]any)
	require.Len(t, segments, 1)
	seg := segments[0].(map[string]any)
	assert.Equal(t, "MMCT", seg["from"])
	assert.Equal(t, true, seg["isAvailable"])
	assert.EqualValues(t, 0, body["seatChanges"])
}

func TestSearch_NotFoundIsStill200(t *testing.T) {
	ts := newTestServer(t, nil, 10)
	ts.searcher.set(&journey.Result{Segments: []stitch.Segment{}, Error: "no confirmed segment found ending at NDLS", DebugInfo: []string{}}, nil)

	resp, body := ts.post(t, searchBody, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["success"])
	assert.Empty(t, body["segments"])
	assert.Equal(t, "no confirmed segment found ending at NDLS", body["error"])
}

func TestSearch_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		msg    string
	}{
		{"validation", &journey.ValidationError{Fields: []journey.FieldError{{Field: "trainNo", Message: "trainNo is required"}}}, http.StatusBadRequest, "invalid request: trainNo is required"},
		{"route fetch", &route.FetchError{TrainNo: "12951", Failures: []route.SourceFailure{{Source: "schedule", Reason: "down"}}}, http.StatusBadRequest, "could not fetch route for train 12951 (schedule: down)"},
		{"route slice", &route.SliceError{Source: "NDLS", Dest: "MMCT"}, http.StatusBadRequest, "destination MMCT precedes source NDLS on this train's route"},
		{"internal", errors.New("database is locked"), http.StatusInternalServerError, "internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, nil, 10)
			ts.searcher.set(nil, tt.err)

			resp, body := ts.post(t, searchBody, "")
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, []any{}, body["segments"])
			assert.EqualValues(t, 0, body["seatChanges"])
			assert.Equal(t, tt.msg, body["error"])
		})
	}
}

func TestSearch_InvalidJSON(t *testing.T) {
	ts := newTestServer(t, nil, 10)
	resp, body := ts.post(t, `{"trainNo":`, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid JSON body", body["error"])
	assert.Zero(t, ts.searcher.callCount())
}

func TestSearch_Auth(t *testing.T) {
	ts := newTestServer(t, map[string]string{"web": "s3cret"}, 10)

	resp, body := ts.post(t, searchBody, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "missing bearer token", body["error"])

	resp, body = ts.post(t, searchBody, "wrong")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "invalid bearer token", body["error"])
	assert.Zero(t, ts.searcher.callCount())

	resp, _ = ts.post(t, searchBody, "s3cret")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, ts.searcher.callCount())
}

func TestSearch_RateLimited(t *testing.T) {
	ts := newTestServer(t, nil, 2)

	for i := 0; i < 2; i++ {
		resp, _ := ts.post(t, searchBody, "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp, body := ts.post(t, searchBody, "")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
	assert.Contains(t, body["error"], "rate limit exceeded")
	assert.Equal(t, 2, ts.searcher.callCount())

	// route endpoints have their own window
	resp, _ = ts.get(t, "/v1/routes/12951")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGetRoute(t *testing.T) {
	ts := newTestServer(t, nil, 10)

	resp, body := ts.get(t, "/v1/routes/12951")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "12951", body["train_no"])
	assert.EqualValues(t, 5, body["count"])

	resp, body = ts.get(t, "/v1/routes/12a")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["error"], "train_no")

	ts.routes.fail(&route.FetchError{TrainNo: "12951", Failures: []route.SourceFailure{{Source: "schedule", Reason: "down"}}})
	resp, _ = ts.get(t, "/v1/routes/12951")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetSlice(t *testing.T) {
	ts := newTestServer(t, nil, 10)

	resp, body := ts.get(t, "/v1/routes/12951/slice?from=bvi&to=brc")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []any{"BVI", "ST", "BRC"}, body["stations"])
	assert.Equal(t, "BVI", body["from"])
	assert.Equal(t, "BRC", body["to"])

	resp, body = ts.get(t, "/v1/routes/12951/slice?from=BVI")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "to is required", body["error"])

	resp, body = ts.get(t, "/v1/routes/12951/slice?from=BVI&to=XYZ")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["error"], "station XYZ is not on this train's route")
}
