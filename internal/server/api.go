package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/afroash/envdash/internal/ingest"
	"github.com/afroash/envdash/internal/sampling"
)

// maxPayloadBytes bounds an ingest request body
const maxPayloadBytes = 64 << 10

// APIHandler handles HTTP API requests for the dashboard
type APIHandler struct {
	ingester *Ingester
	queries  QueryService
	store    ReadingStore
	version  string
	started  time.Time
	logger   zerolog.Logger
}

// NewAPIHandler creates a new API handler
func NewAPIHandler(ingester *Ingester, queries QueryService, store ReadingStore, version string, logger zerolog.Logger) *APIHandler {
	return &APIHandler{
		ingester: ingester,
		queries:  queries,
		store:    store,
		version:  version,
		started:  time.Now(),
		logger:   logger,
	}
}

// ErrorResponse is the body of every failed API request
type ErrorResponse struct {
	Error   string          `json:"error"`
	Details string          `json:"details,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// HandleIngest stores one reading posted by a sensor
func (api *APIHandler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid data format", Details: err.Error()})
		return
	}

	stored, err := api.ingester.Ingest(r.Context(), TransportHTTP, body)
	if err != nil {
		api.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, stored)
}

// HandleQuery returns the live reading and the sampled series for ?range= (or ?minutes=)
func (api *APIHandler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	token := query.Get("range")
	if token == "" {
		token = query.Get("minutes")
	}

	result, err := api.queries.Query(r.Context(), token)
	if err != nil {
		api.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// HandleLatest returns the most recent reading
func (api *APIHandler) HandleLatest(w http.ResponseWriter, r *http.Request) {
	reading, err := api.queries.Latest(r.Context())
	if err != nil {
		api.writeError(w, err)
		return
	}
	if reading == nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "no readings"})
		return
	}

	writeJSON(w, http.StatusOK, reading)
}

// RangesResponse lists the range tokens the dashboard can offer
type RangesResponse struct {
	Default string               `json:"default"`
	Ranges  []sampling.RangeSpec `json:"ranges"`
}

// HandleRanges returns the configured range table
func (api *APIHandler) HandleRanges(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, RangesResponse{
		Default: api.queries.DefaultRange(),
		Ranges:  api.queries.Table().Specs(),
	})
}

// HandleStats returns store statistics
func (api *APIHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := api.store.Stats(r.Context())
	if err != nil {
		api.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// HandleHealth reports liveness
func (api *APIHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": api.version,
		"uptime":  int64(time.Since(api.started).Seconds()),
	})
}

// writeError maps error kinds onto status codes
func (api *APIHandler) writeError(w http.ResponseWriter, err error) {
	var verr *ingest.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid data format",
			Details: err.Error(),
			Payload: verr.Payload,
		})
	case errors.Is(err, ingest.ErrInvalidPayload):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid data format", Details: err.Error()})
	case errors.Is(err, sampling.ErrInvalidRange):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid range", Details: err.Error()})
	default:
		api.logger.Error().Err(err).Msg("Request failed")
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
