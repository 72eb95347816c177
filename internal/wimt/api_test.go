package wimt

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const liveDoc = `{
  "train_name": "MUMBAI RAJDHANI",
  "running_status": "running",
  "source_station": "MMCT",
  "destination_station": "NDLS",
  "days_schedule": [
    {"sno": 3, "station_code": "KOTA", "stops": true, "distance": 920},
    {"sno": 1, "station_code": "MMCT", "stops": true, "distance": 0},
    {"sno": 2, "station_code": "BRC", "stops": true, "distance": 390},
    {"sno": 4, "station_code": "NDLS", "stops": true, "distance": 1384}
  ]
}`

func TestParseRoute_OrdersBySerial(t *testing.T) {
	codes, err := ParseRoute([]byte(liveDoc))
	require.NoError(t, err)
	assert.Equal(t, []string{"MMCT", "BRC", "KOTA", "NDLS"}, codes)
}

func TestParseRoute_ShortResponses(t *testing.T) {
	_, err := ParseRoute([]byte("Train is not running on this date"))
	assert.ErrorIs(t, err, ErrNotRunning)

	_, err = ParseRoute([]byte("Please update the timetable"))
	assert.ErrorIs(t, err, ErrTimetableUpdate)

	_, err = ParseRoute([]byte("oops"))
	assert.ErrorContains(t, err, "unexpected short response")
}

func TestParseRoute_Failures(t *testing.T) {
	padding := strings.Repeat(" ", minDocumentLen)

	_, err := ParseRoute([]byte(`{"error":"invalid train"}` + padding))
	assert.ErrorContains(t, err, "live status error: invalid train")

	_, err = ParseRoute([]byte(`{"train_name":"X","days_schedule":[]}` + padding))
	assert.ErrorIs(t, err, ErrNoRoute)

	_, err = ParseRoute([]byte(`{not json` + padding))
	assert.ErrorContains(t, err, "unmarshal failed")
}

func TestGenerateWID_Deterministic(t *testing.T) {
	a := generateWID(staticUID, appVersion, "q", "12951", "", "", "10-05-2025", "1")
	b := generateWID(staticUID, appVersion, "q", "12951", "", "", "10-05-2025", "1")
	c := generateWID(staticUID, appVersion, "q", "12952", "", "", "10-05-2025", "1")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestStationCodes_QueriesLiveStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "12951", q.Get("train_no"))
		assert.Equal(t, "10-05-2025", q.Get("date"))
		assert.Len(t, q.Get("qid"), 32)
		assert.NotEmpty(t, q.Get("wid"))
		assert.Equal(t, "com.whereismytrain.android", r.Header.Get("X-Requested-With"))
		assert.True(t, strings.HasPrefix(r.Header.Get("User-Agent"), "Dalvik/"))
		w.Write([]byte(liveDoc))
	}))
	defer srv.Close()

	c := NewAPIClient(srv.URL, "", time.UTC)
	body, err := c.FetchTrainStatus(context.Background(), "12951", "", "", time.Date(2025, 5, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	codes, err := ParseRoute(body)
	require.NoError(t, err)
	assert.Equal(t, "MMCT", codes[0])
}

func TestFetchTrainStatus_Non200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewAPIClient(srv.URL, "", nil)
	_, err := c.StationCodes(context.Background(), "12951")
	assert.ErrorContains(t, err, "unexpected status code: 403")
}
