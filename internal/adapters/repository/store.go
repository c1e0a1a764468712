// Package repository defines the keyed store interface backing the
// scoring engine, plus an in-memory implementation.
package repository

import (
	"context"

	"github.com/okian/foresight/internal/domain/model"
)

// AttestationSource is the read-only view over rows owned by the
// ingestion subsystem.
type AttestationSource interface {
	// Attestation returns the attestation with the given id.
	// Returns ErrNotFound if it is unknown.
	Attestation(ctx context.Context, id string) (model.Attestation, error)

	// AttestationsAfter pages attestations in ascending id order,
	// starting strictly after afterID (empty for the first page).
	AttestationsAfter(ctx context.Context, afterID string, limit int) ([]model.Attestation, error)

	// AttestationsByCondition lists every attestation on a condition.
	AttestationsByCondition(ctx context.Context, conditionID string) ([]model.Attestation, error)

	// Condition returns the condition with the given id.
	// Returns ErrNotFound if it is unknown.
	Condition(ctx context.Context, id string) (model.Condition, error)

	// SettledConditions lists all currently settled conditions.
	SettledConditions(ctx context.Context) ([]model.Condition, error)
}

// ScoreStore persists the derived scoring tables.
type ScoreStore interface {
	// Score returns the derived row for an attestation.
	// Returns ErrNotFound if none exists yet.
	Score(ctx context.Context, attestationID string) (model.AttestationScore, error)

	// UpsertScore creates or refreshes the derived row keyed by
	// AttestationID. A create seeds every field from s; an update
	// refreshes only the identity and probability fields and preserves
	// any existing ErrorSquared/Outcome/ScoredAt/Used state.
	UpsertScore(ctx context.Context, s model.AttestationScore) error

	// SetScoreResult writes the scoring fields of one row.
	SetScoreResult(ctx context.Context, attestationID string, errorSquared float64, outcomeBit int, scoredAt int64) error

	// ClearScoreResults nulls ErrorSquared/Outcome/ScoredAt on every row
	// of the given market.
	ClearScoreResults(ctx context.Context, marketAddress, marketID string) error

	// ScoresByMarket lists rows for a market, ascending by MadeAt.
	ScoresByMarket(ctx context.Context, marketAddress, marketID string) ([]model.AttestationScore, error)

	// ScoresByMarketAttester lists one attester's rows for a market,
	// ascending by MadeAt.
	ScoresByMarketAttester(ctx context.Context, marketAddress, marketID, attester string) ([]model.AttestationScore, error)

	// MarketIDsByAttester returns the distinct market ids seen among an
	// attester's derived rows.
	MarketIDsByAttester(ctx context.Context, attester string) ([]string, error)

	// UpsertTwError overwrites the aggregate keyed by
	// (attester, marketAddress, marketID).
	UpsertTwError(ctx context.Context, e model.AttesterMarketTwError) error

	// DeleteTwError removes an aggregate row; missing rows are a no-op.
	DeleteTwError(ctx context.Context, attester, marketAddress, marketID string) error

	// TwErrorsByAttester lists an attester's aggregates across markets.
	TwErrorsByAttester(ctx context.Context, attester string) ([]model.AttesterMarketTwError, error)

	// TwErrorGroups groups all aggregate errors by attester, the
	// group-by feeding leaderboard reads.
	TwErrorGroups(ctx context.Context) (map[string][]float64, error)
}

// Store combines the ingestion view, the derived tables, and the
// ingestion-side writes that let the engine run self-contained.
type Store interface {
	AttestationSource
	ScoreStore

	// PutAttestation stores or replaces a raw attestation row.
	PutAttestation(ctx context.Context, a model.Attestation) error

	// PutCondition stores or replaces a condition row.
	PutCondition(ctx context.Context, c model.Condition) error

	// CountAttestations returns the number of raw attestation rows.
	CountAttestations(ctx context.Context) int

	// CountForecasters returns the number of attesters holding at least
	// one aggregate row.
	CountForecasters(ctx context.Context) int
}
