// Package irctc is the client for the seat availability and train schedule provider.
package irctc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/imroc/req/v3"
	"golang.org/x/time/rate"
)

const (
	availabilityPath = "/api/v1/checkSeatAvailability"
	schedulePath     = "/api/v1/getTrainSchedule"
	maxBodyPreview   = 120
)

// ErrRateLimited is returned when the provider throttles us (HTTP 429).
var ErrRateLimited = errors.New("upstream rate limit")

// StatusError is a non-2xx reply whose body could not be interpreted.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code %d: %s", e.Code, e.Body)
}

type Config struct {
	BaseURL string
	APIKey  string
	APIHost string
	Timeout time.Duration
}

// Client talks to the provider. All calls pass through limiter when set.
type Client struct {
	limiter *rate.Limiter
	http    *req.Client
}

func NewClient(cfg Config, limiter *rate.Limiter) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	c := req.C().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetCommonHeader("Accept", "application/json").
		SetUserAgent("seatstitch/1.0")
	if cfg.APIKey != "" {
		c.SetCommonHeader("X-RapidAPI-Key", cfg.APIKey)
	}
	if cfg.APIHost != "" {
		c.SetCommonHeader("X-RapidAPI-Host", cfg.APIHost)
	}
	return &Client{limiter: limiter, http: c}
}

// CheckAvailability probes one segment. Error payloads (status:false, error
// field) in a 2xx reply are returned as a decoded response, not as an error.
func (c *Client) CheckAvailability(ctx context.Context, q AvailabilityRequest) (*AvailabilityResponse, error) {
	var out AvailabilityResponse
	err := c.get(ctx, availabilityPath, map[string]string{
		"trainNo":         q.TrainNo,
		"fromStationCode": q.From,
		"toStationCode":   q.To,
		"date":            q.Date,
		"classType":       q.ClassType,
		"quota":           q.Quota,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// FetchSchedule returns the raw schedule document for a train.
func (c *Client) FetchSchedule(ctx context.Context, trainNo string) (*ScheduleResponse, error) {
	var out ScheduleResponse
	if err := c.get(ctx, schedulePath, map[string]string{"trainNo": trainNo}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StationCodes fetches the schedule and extracts the ordered station codes.
func (c *Client) StationCodes(ctx context.Context, trainNo string) ([]string, error) {
	doc, err := c.FetchSchedule(ctx, trainNo)
	if err != nil {
		return nil, err
	}
	if msg := doc.ErrorText(); msg != "" {
		return nil, fmt.Errorf("schedule error: %s", msg)
	}
	if doc.Status != nil && !*doc.Status {
		return nil, fmt.Errorf("schedule status false: %s", doc.MessageText())
	}
	if doc.Data == nil || len(doc.Data.Route) == 0 {
		return nil, errors.New("schedule has no route")
	}
	codes := make([]string, 0, len(doc.Data.Route))
	for _, stop := range doc.Data.Route {
		codes = append(codes, stop.StationCode)
	}
	return codes, nil
}

func (c *Client) get(ctx context.Context, path string, params map[string]string, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get(path)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	body := resp.Bytes()
	if resp.StatusCode == http.StatusTooManyRequests ||
		(resp.StatusCode >= http.StatusBadRequest && IsRateLimitMessage(string(body))) {
		return ErrRateLimited
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return &StatusError{Code: resp.StatusCode, Body: preview(body)}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func preview(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxBodyPreview {
		s = s[:maxBodyPreview] + "..."
	}
	return s
}
