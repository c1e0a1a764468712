// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/okian/foresight/internal/domain/types"
)

// ScoreDependencies defines the interface for single-score reads.
type ScoreDependencies interface {
	ForecasterScore(ctx context.Context, attester string) (*types.Score, error)
}

// ScoreHandler handles per-forecaster score requests.
type ScoreHandler struct {
	deps ScoreDependencies
}

// NewScoreHandler creates a new score handler.
func NewScoreHandler(deps ScoreDependencies) *ScoreHandler {
	return &ScoreHandler{deps: deps}
}

// HandleGetScore handles GET /score/{attester} requests.
func (h *ScoreHandler) HandleGetScore(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_score"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	attester := strings.TrimPrefix(r.URL.Path, "/score/")
	if attester == "" || strings.Contains(attester, "/") {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	score, err := h.deps.ForecasterScore(r.Context(), attester)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	}
	if score == nil {
		writeError(w, http.StatusNotFound, "not_found", NewKind(op, ErrNotFound))
		return
	}
	writeJSON(w, http.StatusOK, score)
}
