// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/okian/foresight/internal/domain/model"
)

// IngestDependencies defines the interface for ingestion-side writes.
type IngestDependencies interface {
	PutAttestation(ctx context.Context, a model.Attestation) error
	PutCondition(ctx context.Context, c model.Condition) error
}

// IngestHandler handles attestation and condition writes.
type IngestHandler struct {
	deps IngestDependencies
}

// NewIngestHandler creates a new ingest handler.
func NewIngestHandler(deps IngestDependencies) *IngestHandler {
	return &IngestHandler{deps: deps}
}

// attestationRequest mirrors the wire schema for POST /attestations.
type attestationRequest struct {
	ID          string `json:"id"`
	Attester    string `json:"attester"`
	ConditionID string `json:"condition_id"`
	Resolver    string `json:"resolver"`
	Prediction  string `json:"prediction"`
	Time        int64  `json:"time"`
}

func (a attestationRequest) validate() error {
	switch {
	case strings.TrimSpace(a.ID) == "":
		return errors.New("missing id")
	case strings.TrimSpace(a.Attester) == "":
		return errors.New("missing attester")
	case strings.TrimSpace(a.ConditionID) == "":
		return errors.New("missing condition_id")
	case a.Time <= 0:
		return errors.New("missing time")
	}
	return nil
}

// conditionRequest mirrors the wire schema for POST /conditions.
type conditionRequest struct {
	ID            string `json:"id"`
	EndTime       *int64 `json:"end_time"`
	Settled       bool   `json:"settled"`
	ResolvedToYes bool   `json:"resolved_to_yes"`
	Resolver      string `json:"resolver"`
}

func (c conditionRequest) validate() error {
	switch {
	case strings.TrimSpace(c.ID) == "":
		return errors.New("missing id")
	case strings.TrimSpace(c.Resolver) == "":
		return errors.New("missing resolver")
	}
	return nil
}

// HandlePostAttestation handles POST /attestations requests.
func (h *IngestHandler) HandlePostAttestation(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_attestation"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req attestationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	att := model.Attestation{
		ID:          req.ID,
		Attester:    req.Attester,
		ConditionID: req.ConditionID,
		Resolver:    req.Resolver,
		Prediction:  req.Prediction,
		Time:        req.Time,
	}
	if err := h.deps.PutAttestation(r.Context(), att); err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted"})
}

// HandlePostCondition handles POST /conditions requests.
func (h *IngestHandler) HandlePostCondition(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_condition"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req conditionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	cond := model.Condition{
		ID:            req.ID,
		EndTime:       req.EndTime,
		Settled:       req.Settled,
		ResolvedToYes: req.ResolvedToYes,
		Resolver:      req.Resolver,
	}
	if err := h.deps.PutCondition(r.Context(), cond); err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted"})
}
