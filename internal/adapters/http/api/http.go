// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/okian/foresight/internal/domain/model"
	"github.com/okian/foresight/internal/domain/types"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// Ingestion-side writes.
	PutAttestation(ctx context.Context, a model.Attestation) error
	PutCondition(ctx context.Context, c model.Condition) error

	// Read operations over the derived scoring tables.
	ForecasterScore(ctx context.Context, attester string) (*types.Score, error)
	TopForecasters(ctx context.Context, limit int) ([]Entry, error)
	AccuracyRank(ctx context.Context, attester string) (types.RankResult, error)

	// Orchestrator triggers and state.
	StartBackfill(ctx context.Context) (string, bool)
	StartReindex(ctx context.Context, attester, marketID string) (string, bool)
	State(ctx context.Context) string
}

// Entry mirrors the read shape returned by leaderboard queries.
type Entry = types.Entry

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	ingestHandler      *IngestHandler
	scoreHandler       *ScoreHandler
	leaderboardHandler *LeaderboardHandler
	rankHandler        *RankHandler
	reindexHandler     *ReindexHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, maxLimit int) *Server {
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(statsProvider),
		ingestHandler:      NewIngestHandler(deps),
		scoreHandler:       NewScoreHandler(deps),
		leaderboardHandler: NewLeaderboardHandler(deps, maxLimit),
		rankHandler:        NewRankHandler(deps),
		reindexHandler:     NewReindexHandler(deps),
	}
}

// Register attaches all HTTP routes to mux. The limiter, when non-nil,
// throttles the reindex and backfill triggers.
func (s *Server) Register(_ context.Context, mux *http.ServeMux, limiter *TriggerLimiter) {
	trigger := func(next http.HandlerFunc) http.HandlerFunc {
		if limiter == nil {
			return next
		}
		return RateLimitMiddleware(next, limiter)
	}

	// Specific paths first (most specific to least specific)
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/attestations", MetricsMiddleware(s.ingestHandler.HandlePostAttestation, "attestations"))
	mux.HandleFunc("/conditions", MetricsMiddleware(s.ingestHandler.HandlePostCondition, "conditions"))
	mux.HandleFunc("/score/", MetricsMiddleware(s.scoreHandler.HandleGetScore, "score"))
	mux.HandleFunc("/leaderboard", MetricsMiddleware(s.leaderboardHandler.HandleGetLeaderboard, "leaderboard"))
	mux.HandleFunc("/rank/", MetricsMiddleware(s.rankHandler.HandleGetRank, "rank"))
	mux.HandleFunc("/reindex", MetricsMiddleware(trigger(s.reindexHandler.HandlePostReindex), "reindex"))
	mux.HandleFunc("/backfill", MetricsMiddleware(trigger(s.reindexHandler.HandlePostBackfill), "backfill"))
}

type ackResponse struct {
	Status string `json:"status"`
}

type runResponse struct {
	Status string `json:"status"`
	RunID  string `json:"run_id"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
