package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nicktill/tinytsdb/pkg/config"
	"github.com/nicktill/tinytsdb/pkg/httpx"
	"github.com/nicktill/tinytsdb/pkg/sample"
	"github.com/nicktill/tinytsdb/pkg/store"
)

// ErrTooManySamples is returned when one insert request exceeds the batch cap.
var ErrTooManySamples = fmt.Errorf("too many samples in one request (max %d)", config.MaxSamplesPerRequest)

// tagParamPrefix marks query parameters that carry tag filters,
// e.g. ?tag.host=s1&tag.region=us-east.
const tagParamPrefix = "tag."

// Handler serves the store over HTTP.
type Handler struct {
	store *store.Store
	hub   *Hub
}

// NewHandler creates an HTTP handler for the given store. The hub is
// optional; when present, accepted samples are broadcast to live clients.
func NewHandler(st *store.Store, hub *Hub) *Handler {
	return &Handler{store: st, hub: hub}
}

// InsertRequest is the payload for POST /v1/insert.
type InsertRequest struct {
	Samples []sample.Sample `json:"samples"`
}

// InsertResponse reports how many samples were accepted.
type InsertResponse struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
}

// HandleInsert handles POST /v1/insert. Samples are inserted one by one in
// request order; the first failure aborts the batch and reports how many
// made it in.
func (h *Handler) HandleInsert(w http.ResponseWriter, r *http.Request) {
	var req InsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.RespondError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
		return
	}

	if len(req.Samples) > config.MaxSamplesPerRequest {
		httpx.RespondError(w, http.StatusBadRequest, ErrTooManySamples)
		return
	}

	now := time.Now().UnixMilli()
	for i := range req.Samples {
		if req.Samples[i].Timestamp == 0 {
			req.Samples[i].Timestamp = now
		}
		if err := sample.Validate(req.Samples[i]); err != nil {
			httpx.RespondError(w, http.StatusBadRequest, fmt.Errorf("invalid sample at index %d: %w", i, err))
			return
		}
	}

	for i, s := range req.Samples {
		if err := h.store.Insert(s); err != nil {
			httpx.RespondError(w, http.StatusInternalServerError,
				fmt.Errorf("insert failed after %d samples: %w", i, err))
			return
		}
	}

	if h.hub != nil && len(req.Samples) > 0 {
		h.hub.BroadcastSamples(req.Samples)
	}

	httpx.RespondJSON(w, http.StatusOK, InsertResponse{
		Status: "success",
		Count:  len(req.Samples),
	})
}

// QueryResponse is the reply for GET /v1/query.
type QueryResponse struct {
	Samples []sample.Sample `json:"samples"`
	Count   int             `json:"count"`
}

// HandleQuery handles GET /v1/query.
//
// Parameters: metric (required), start and end (epoch milliseconds,
// half-open [start, end), defaulting to the last hour), and any number of
// tag.<key>=<value> exact-match filters.
func (h *Handler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()

	metric := params.Get("metric")
	if metric == "" {
		httpx.RespondErrorString(w, http.StatusBadRequest, "metric is required")
		return
	}

	now := time.Now().UnixMilli()
	start, err := parseMillisParam(params.Get("start"), now-config.QueryDefaultWindow.Milliseconds())
	if err != nil {
		httpx.RespondError(w, http.StatusBadRequest, err)
		return
	}
	end, err := parseMillisParam(params.Get("end"), now)
	if err != nil {
		httpx.RespondError(w, http.StatusBadRequest, err)
		return
	}

	filters := make(map[string]string)
	for name, values := range params {
		if key, ok := strings.CutPrefix(name, tagParamPrefix); ok && key != "" && len(values) > 0 {
			filters[key] = values[0]
		}
	}

	results, err := h.store.Query(metric, start, end, filters)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, store.ErrClosed) || errors.Is(err, store.ErrNotOpen) {
			status = http.StatusServiceUnavailable
		}
		httpx.RespondError(w, status, fmt.Errorf("query failed: %w", err))
		return
	}

	httpx.RespondJSON(w, http.StatusOK, QueryResponse{
		Samples: results,
		Count:   len(results),
	})
}

// HandleStats handles GET /v1/stats.
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Stats()
	if err != nil {
		httpx.RespondError(w, http.StatusInternalServerError, fmt.Errorf("failed to get stats: %w", err))
		return
	}
	httpx.RespondJSON(w, http.StatusOK, stats)
}

// HandleHealthz handles GET /healthz.
func (h *Handler) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	httpx.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// parseMillisParam parses an epoch-milliseconds query parameter.
func parseMillisParam(param string, def int64) (int64, error) {
	if param == "" {
		return def, nil
	}
	ms, err := strconv.ParseInt(param, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid timestamp %q: expected epoch milliseconds", param)
	}
	return ms, nil
}
