package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"regexp"
	"time"

	"seatstitch/internal/route"

	"github.com/go-chi/chi/v5"
)

var trainNoPattern = regexp.MustCompile(`^\d{4,5}$`)

// RouteResolver returns the full route of a train. *route.Resolver satisfies it.
type RouteResolver interface {
	Resolve(ctx context.Context, trainNo string) (route.Route, error)
}

type RouteResponse struct {
	TrainNo   string   `json:"train_no"`
	From      string   `json:"from,omitempty"`
	To        string   `json:"to,omitempty"`
	Stations  []string `json:"stations"`
	Count     int      `json:"count"`
	Timestamp string   `json:"timestamp"`
}

type RouteHandler struct {
	resolver RouteResolver
	logger   *log.Logger
}

func NewRouteHandler(resolver RouteResolver, logger *log.Logger) *RouteHandler {
	return &RouteHandler{resolver: resolver, logger: logger}
}

// returns the full station route of a train.
// URL: GET /v1/routes/{train_no}
// Example: /v1/routes/12951
func (h *RouteHandler) GetRoute(w http.ResponseWriter, r *http.Request) {
	full, trainNo, ok := h.resolve(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, RouteResponse{
		TrainNo:   trainNo,
		Stations:  full,
		Count:     len(full),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// returns the part of a train's route between two stations.
// URL: GET /v1/routes/{train_no}/slice?from={code}&to={code}
func (h *RouteHandler) GetSlice(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	from, err := requiredParam(query.Get("from"), "from")
	if err != nil {
		writeFailure(w, http.StatusBadRequest, err.Error())
		return
	}
	to, err := requiredParam(query.Get("to"), "to")
	if err != nil {
		writeFailure(w, http.StatusBadRequest, err.Error())
		return
	}

	full, trainNo, ok := h.resolve(w, r)
	if !ok {
		return
	}

	sliced, err := route.Slice(full, from, to)
	if err != nil {
		writeFailure(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, RouteResponse{
		TrainNo:   trainNo,
		From:      sliced[0],
		To:        sliced[len(sliced)-1],
		Stations:  sliced,
		Count:     len(sliced),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *RouteHandler) resolve(w http.ResponseWriter, r *http.Request) (route.Route, string, bool) {
	trainNo := chi.URLParam(r, "train_no")
	if !trainNoPattern.MatchString(trainNo) {
		writeFailure(w, http.StatusBadRequest, "invalid 'train_no' parameter; expected 4 or 5 digits")
		return nil, "", false
	}

	full, err := h.resolver.Resolve(r.Context(), trainNo)
	if err != nil {
		var fetchErr *route.FetchError
		if errors.As(err, &fetchErr) {
			writeFailure(w, http.StatusBadRequest, err.Error())
			return nil, "", false
		}
		h.logger.Printf("handler: failed to resolve route %s: %v", trainNo, err)
		writeFailure(w, http.StatusInternalServerError, "internal server error")
		return nil, "", false
	}
	return full, trainNo, true
}

func requiredParam(s, name string) (string, error) {
	code := route.NormalizeCode(s)
	if code == "" {
		return "", errors.New(name + " is required")
	}
	return code, nil
}
