package wimt

import (
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"hash/adler32"
	"math/rand"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/imroc/req/v3"
)

const (
	DefaultBaseURL = "https://whereismytrain.in/cache/live_status"
	appVersion     = "7.1.5.802422502"
	staticUID      = "caea2ea591b5446f82acbf4db26b7c13"

	// bodies shorter than this are plain-text notices, not documents
	minDocumentLen = 150
)

var (
	ErrNotRunning      = errors.New("train not running on this date")
	ErrTimetableUpdate = errors.New("timetable update needed")
	ErrNoRoute         = errors.New("live status has no route")
)

// returns a hex string of length 2*byteLen
func generateHexID(byteLen int) (string, error) {
	b := make([]byte, byteLen)
	if _, err := crand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// generates the wid parameter for api requests
func generateWID(uid, version, qid, trainNo, from, to, date, fromDay string) string {
	input := uid + version + qid + trainNo + from + to + date + fromDay
	return strconv.FormatUint(uint64(adler32.Checksum([]byte(input))), 10)
}

// android user-agents for popular devices in india
var userAgents = []string{
	"Dalvik/2.1.0 (Linux; U; Android 13; SM-A135F Build/TP1A.220624.014)",
	"Dalvik/2.1.0 (Linux; U; Android 12; SM-M32 Build/SP1A.210812.016)",
	"Dalvik/2.1.0 (Linux; U; Android 13; Redmi Note 12 Build/TKQ1.221114.001)",
	"Dalvik/2.1.0 (Linux; U; Android 11; Redmi 9 Power Build/RP1A.200720.011)",
	"Dalvik/2.1.0 (Linux; U; Android 13; vivo Y22 Build/TP1A.220624.014)",
	"Dalvik/2.1.0 (Linux; U; Android 12; CPH2219 Build/SP1A.210812.016)",
	"Dalvik/2.1.0 (Linux; U; Android 13; RMX3511 Build/TP1A.220624.014)",
	"Dalvik/2.1.0 (Linux; U; Android 14; Pixel 7 Build/UP1A.231005.007)",
}

// handles requests to the live status api
type APIClient struct {
	http    *req.Client
	baseURL string
	loc     *time.Location
}

func NewAPIClient(baseURL, proxyURL string, loc *time.Location) *APIClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if loc == nil {
		loc = time.UTC
	}
	client := req.C().SetTimeout(30 * time.Second)
	if proxyURL != "" {
		client.SetProxyURL(proxyURL)
	}
	return &APIClient{http: client, baseURL: baseURL, loc: loc}
}

// FetchTrainStatus returns the raw live status body for a run starting on startDate.
func (c *APIClient) FetchTrainStatus(ctx context.Context, trainNo, fromStn, toStn string, startDate time.Time) ([]byte, error) {
	qid, err := generateHexID(16)
	if err != nil {
		return nil, fmt.Errorf("failed to generate qid: %w", err)
	}

	dateStr := startDate.Format("02-01-2006")
	wid := generateWID(staticUID, appVersion, qid, trainNo, fromStn, toStn, dateStr, "1")

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("User-Agent", userAgents[rand.Intn(len(userAgents))]).
		SetHeader("X-Requested-With", "com.whereismytrain.android").
		SetQueryParams(map[string]string{
			"train_no":   trainNo,
			"date":       dateStr,
			"appVersion": appVersion,
			"from_day":   "1",
			"wid":        wid,
			"from":       fromStn,
			"to":         toStn,
			"lang":       "en",
			"user":       staticUID,
			"qid":        qid,
			"flow":       "regular",
			"cb":         strconv.FormatInt(time.Now().UnixNano(), 10),
		}).
		Get(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return resp.Bytes(), nil
}

// StationCodes recovers the ordered route of trainNo from today's live status.
func (c *APIClient) StationCodes(ctx context.Context, trainNo string) ([]string, error) {
	body, err := c.FetchTrainStatus(ctx, trainNo, "", "", time.Now().In(c.loc))
	if err != nil {
		return nil, err
	}
	return ParseRoute(body)
}

// ParseRoute extracts station codes from a live status body, ordered by serial number.
func ParseRoute(body []byte) ([]string, error) {
	if len(body) < minDocumentLen {
		text := string(body)
		switch {
		case strings.Contains(text, "not running"):
			return nil, ErrNotRunning
		case strings.Contains(text, "update the timetable"):
			return nil, ErrTimetableUpdate
		default:
			return nil, fmt.Errorf("unexpected short response: %q", text)
		}
	}

	var data APIResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("unmarshal failed: %w", err)
	}
	if data.Error != "" {
		return nil, fmt.Errorf("live status error: %s", data.Error)
	}
	if len(data.DaysSchedule) == 0 {
		return nil, ErrNoRoute
	}

	stops := make([]DaySchedule, len(data.DaysSchedule))
	copy(stops, data.DaysSchedule)
	sort.SliceStable(stops, func(i, j int) bool { return stops[i].Sno < stops[j].Sno })

	codes := make([]string, 0, len(stops))
	for _, s := range stops {
		codes = append(codes, s.StationCode)
	}
	return codes, nil
}
