// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// ReindexDependencies defines the interface for orchestrator triggers.
type ReindexDependencies interface {
	StartBackfill(ctx context.Context) (string, bool)
	StartReindex(ctx context.Context, attester, marketID string) (string, bool)
}

// ReindexHandler handles reindex and backfill triggers.
type ReindexHandler struct {
	deps ReindexDependencies
}

// NewReindexHandler creates a new reindex handler.
func NewReindexHandler(deps ReindexDependencies) *ReindexHandler {
	return &ReindexHandler{deps: deps}
}

// reindexRequest mirrors the wire schema for POST /reindex. Both fields
// are optional; an empty body degenerates to a full backfill.
type reindexRequest struct {
	Address  string `json:"address"`
	MarketID string `json:"market_id"`
}

// HandlePostReindex handles POST /reindex requests. The run happens in
// the background; the response carries the run id for log correlation.
func (h *ReindexHandler) HandlePostReindex(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_reindex"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	var req reindexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	runID, ok := h.deps.StartReindex(r.Context(), req.Address, req.MarketID)
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "unavailable", NewKind(op, ErrUnavailable))
		return
	}
	writeJSON(w, http.StatusAccepted, runResponse{Status: "accepted", RunID: runID})
}

// HandlePostBackfill handles POST /backfill requests.
func (h *ReindexHandler) HandlePostBackfill(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_backfill"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	runID, ok := h.deps.StartBackfill(r.Context())
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "unavailable", NewKind(op, ErrUnavailable))
		return
	}
	writeJSON(w, http.StatusAccepted, runResponse{Status: "accepted", RunID: runID})
}
