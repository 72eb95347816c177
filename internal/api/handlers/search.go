package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"seatstitch/internal/journey"
	"seatstitch/internal/route"
)

const maxSearchBody = 16 << 10

// Searcher runs a journey search. *journey.Service satisfies it.
type Searcher interface {
	Search(ctx context.Context, req journey.Request) (*journey.Result, error)
}

type SearchHandler struct {
	searcher Searcher
	logger   *log.Logger
}

func NewSearchHandler(searcher Searcher, logger *log.Logger) *SearchHandler {
	return &SearchHandler{searcher: searcher, logger: logger}
}

// POST /v1/journeys/search
// Body: {"trainNo":"12951","source":"MMCT","destination":"NDLS","date":"2025-05-10","classType":"3A","quota":"GN","mode":"urgent"}
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req journey.Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSearchBody))
	if err := dec.Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	res, err := h.searcher.Search(r.Context(), req)
	if err != nil {
		var (
			validationErr *journey.ValidationError
			fetchErr      *route.FetchError
			sliceErr      *route.SliceError
		)
		switch {
		case errors.As(err, &validationErr), errors.As(err, &sliceErr):
			writeFailure(w, http.StatusBadRequest, err.Error())
		case errors.As(err, &fetchErr):
			h.logger.Printf("handler: route fetch failed for %s: %v", req.TrainNo, err)
			writeFailure(w, http.StatusBadRequest, err.Error())
		default:
			h.logger.Printf("handler: search failed for %s: %v", req.TrainNo, err)
			writeFailure(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	writeJSON(w, http.StatusOK, res)
}
