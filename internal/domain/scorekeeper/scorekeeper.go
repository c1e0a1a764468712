// Package scorekeeper keeps one derived AttestationScore row in sync with
// each raw attestation.
package scorekeeper

import (
	"context"
	"errors"
	"fmt"

	repository "github.com/okian/foresight/internal/adapters/repository"
	"github.com/okian/foresight/internal/domain/model"
	"github.com/okian/foresight/internal/domain/normalize"
	"github.com/okian/foresight/pkg/logger"
	"github.com/okian/foresight/pkg/metrics"
)

// Store is the slice of the repository the keeper needs.
type Store interface {
	Attestation(ctx context.Context, id string) (model.Attestation, error)
	Condition(ctx context.Context, id string) (model.Condition, error)
	UpsertScore(ctx context.Context, s model.AttestationScore) error
}

// Option applies a configuration option to the Keeper.
type Option func(*Keeper)

// WithLogger sets a custom logger for the keeper.
func WithLogger(log logger.Logger) Option {
	return func(k *Keeper) {
		if log != nil {
			k.logger = log
		}
	}
}

// Keeper derives scoring rows from raw attestations.
type Keeper struct {
	store  Store
	logger logger.Logger
}

// New creates a Keeper over the given store.
func New(store Store, opts ...Option) *Keeper {
	k := &Keeper{
		store:  store,
		logger: logger.Get().Named("scorekeeper"),
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// UpsertFromAttestation (re)derives the scoring row for one attestation.
//
// A missing attestation or condition is a benign skip, not an error: the
// row may have been deleted upstream or simply not be visible yet. The
// upsert refreshes identity and probability fields only, so prior scoring
// state survives until an explicit rescore pass. Idempotent for unchanged
// upstream data.
func (k *Keeper) UpsertFromAttestation(ctx context.Context, attestationID string) error {
	att, err := k.store.Attestation(ctx, attestationID)
	if errors.Is(err, repository.ErrNotFound) {
		k.logger.Debug(ctx, "attestation not visible, skipping",
			logger.String("attestationID", attestationID),
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load attestation %s: %w", attestationID, err)
	}

	cond, err := k.store.Condition(ctx, att.ConditionID)
	if errors.Is(err, repository.ErrNotFound) {
		k.logger.Debug(ctx, "condition not visible, skipping",
			logger.String("attestationID", attestationID),
			logger.String("conditionID", att.ConditionID),
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load condition %s: %w", att.ConditionID, err)
	}

	row := model.AttestationScore{
		AttestationID: att.ID,
		Attester:      model.CanonicalAddress(att.Attester),
		MarketAddress: model.CanonicalAddress(cond.Resolver),
		MarketID:      att.ConditionID,
		MadeAt:        att.Time,
	}
	if p, ok := normalize.Prediction(att.Prediction); ok {
		row.ProbabilityFloat = &p.Float
		row.ProbabilityD18 = &p.D18
	} else {
		// Unparseable predictions keep a row with null probabilities so
		// the attestation stays visible, just excluded from scoring.
		metrics.RecordNormalizationFailure()
		k.logger.Debug(ctx, "prediction did not normalize",
			logger.String("attestationID", attestationID),
			logger.String("prediction", att.Prediction),
		)
	}

	if err := k.store.UpsertScore(ctx, row); err != nil {
		return fmt.Errorf("upsert score %s: %w", attestationID, err)
	}
	return nil
}
