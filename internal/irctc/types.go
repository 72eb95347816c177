package irctc

import (
	"encoding/json"
	"strings"
)

// AvailabilityRequest identifies one segment probe.
type AvailabilityRequest struct {
	TrainNo   string
	From      string
	To        string
	Date      string // YYYY-MM-DD
	ClassType string
	Quota     string
}

// AvailabilityResponse is the seat availability payload. Any of the error
// shapes may be present instead of Data.
type AvailabilityResponse struct {
	Status  *bool             `json:"status"`
	Message json.RawMessage   `json:"message"`
	Error   json.RawMessage   `json:"error"`
	Data    []AvailabilityRow `json:"data"`
}

// AvailabilityRow is one date of the availability listing. Fare fields are ignored.
type AvailabilityRow struct {
	Date          string `json:"date"`
	CurrentStatus string `json:"current_status"`
}

// ScheduleResponse is the train schedule payload used for route resolution.
type ScheduleResponse struct {
	Status  *bool           `json:"status"`
	Message json.RawMessage `json:"message"`
	Error   json.RawMessage `json:"error"`
	Data    *ScheduleData   `json:"data"`
}

type ScheduleData struct {
	TrainNumber string      `json:"train_number"`
	TrainName   string      `json:"train_name"`
	Route       []RouteStop `json:"route"`
}

type RouteStop struct {
	StationCode string `json:"station_code"`
	StationName string `json:"station_name"`
}

// ErrorText returns the explicit error field as text, "" when absent.
func (r *AvailabilityResponse) ErrorText() string { return rawText(r.Error) }

// MessageText returns the message field as text.
func (r *AvailabilityResponse) MessageText() string { return rawText(r.Message) }

// IsFalse reports an explicit status:false.
func (r *AvailabilityResponse) IsFalse() bool { return r.Status != nil && !*r.Status }

func (r *ScheduleResponse) ErrorText() string   { return rawText(r.Error) }
func (r *ScheduleResponse) MessageText() string { return rawText(r.Message) }

// rawText flattens a JSON value that may be a string, an object or null.
func rawText(raw json.RawMessage) string {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" || trimmed == `""` || trimmed == "false" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err == nil {
		for _, key := range []string{"message", "msg", "error", "detail"} {
			if v, ok := obj[key].(string); ok && v != "" {
				return v
			}
		}
	}
	return trimmed
}

// IsRateLimitMessage reports whether upstream text describes throttling.
func IsRateLimitMessage(s string) bool {
	lower := strings.ToLower(s)
	return strings.Contains(lower, "rate limit") ||
		strings.Contains(lower, "too many requests") ||
		strings.Contains(lower, "quota exceeded")
}
