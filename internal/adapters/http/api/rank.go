// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/okian/foresight/internal/domain/types"
)

// RankDependencies defines the interface for rank operations.
type RankDependencies interface {
	AccuracyRank(ctx context.Context, attester string) (types.RankResult, error)
}

// RankHandler handles rank requests.
type RankHandler struct {
	deps RankDependencies
}

// NewRankHandler creates a new rank handler.
func NewRankHandler(deps RankDependencies) *RankHandler {
	return &RankHandler{deps: deps}
}

// HandleGetRank handles GET /rank/{attester} requests. An attester with
// no scored markets still gets a 200 with null rank and score, so a
// caller can distinguish "unranked" from "bad address".
func (h *RankHandler) HandleGetRank(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_rank"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	attester := strings.TrimPrefix(r.URL.Path, "/rank/")
	if attester == "" || strings.Contains(attester, "/") {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	result, err := h.deps.AccuracyRank(r.Context(), attester)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, result)
}
