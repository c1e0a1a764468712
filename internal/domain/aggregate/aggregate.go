// Package aggregate scores settled markets and maintains the
// per-(attester, market) horizon-weighted error aggregates.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	repository "github.com/okian/foresight/internal/adapters/repository"
	"github.com/okian/foresight/internal/domain/accuracy"
	"github.com/okian/foresight/internal/domain/model"
	"github.com/okian/foresight/internal/domain/outcome"
	"github.com/okian/foresight/pkg/logger"
	"github.com/okian/foresight/pkg/metrics"
)

// Store is the slice of the repository the aggregator needs.
type Store interface {
	Condition(ctx context.Context, id string) (model.Condition, error)
	ScoresByMarket(ctx context.Context, marketAddress, marketID string) ([]model.AttestationScore, error)
	ScoresByMarketAttester(ctx context.Context, marketAddress, marketID, attester string) ([]model.AttestationScore, error)
	SetScoreResult(ctx context.Context, attestationID string, errorSquared float64, outcomeBit int, scoredAt int64) error
	ClearScoreResults(ctx context.Context, marketAddress, marketID string) error
	UpsertTwError(ctx context.Context, e model.AttesterMarketTwError) error
	DeleteTwError(ctx context.Context, attester, marketAddress, marketID string) error
}

// Option applies a configuration option to the Aggregator.
type Option func(*Aggregator)

// WithLogger sets a custom logger for the aggregator.
func WithLogger(log logger.Logger) Option {
	return func(a *Aggregator) {
		if log != nil {
			a.logger = log
		}
	}
}

// WithCalculator sets the horizon-weighted calculator.
func WithCalculator(calc *accuracy.Calculator) Option {
	return func(a *Aggregator) {
		if calc != nil {
			a.calc = calc
		}
	}
}

// WithClock overrides the scoredAt time source for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		if now != nil {
			a.now = now
		}
	}
}

// Aggregator drives market rescoring.
type Aggregator struct {
	store  Store
	calc   *accuracy.Calculator
	now    func() time.Time
	logger logger.Logger
}

// New creates an Aggregator over the given store.
func New(store Store, opts ...Option) *Aggregator {
	a := &Aggregator{
		store:  store,
		calc:   accuracy.New(),
		now:    time.Now,
		logger: logger.Get().Named("aggregate"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// RescoreMarket recomputes every derived row of one market.
//
// An unsettled or unknown condition drives the reset path: scoring fields
// are cleared on every row so a settlement that flipped back (reorg,
// admin fix) leaves no phantom errors behind. Otherwise every qualifying
// pre-end forecast is scored, not just a selected one, and the
// per-attester aggregates are recomputed. Idempotent for unchanged
// upstream data, up to the scoredAt timestamp.
func (a *Aggregator) RescoreMarket(ctx context.Context, marketAddress, marketID string) error {
	cond, err := a.store.Condition(ctx, marketID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("load condition %s: %w", marketID, err)
	}

	out := outcome.Resolve(cond)
	if errors.Is(err, repository.ErrNotFound) || out == nil || cond.EndTime == nil {
		rows, lerr := a.store.ScoresByMarket(ctx, marketAddress, marketID)
		if lerr != nil {
			return fmt.Errorf("list scores for %s: %w", marketID, lerr)
		}
		if err := a.store.ClearScoreResults(ctx, marketAddress, marketID); err != nil {
			return fmt.Errorf("clear scores for %s: %w", marketID, err)
		}
		// A settlement that flipped back must not leave aggregates the
		// rows no longer support.
		seen := make(map[string]struct{})
		for _, row := range rows {
			if _, dup := seen[row.Attester]; dup {
				continue
			}
			seen[row.Attester] = struct{}{}
			if err := a.store.DeleteTwError(ctx, row.Attester, marketAddress, marketID); err != nil {
				return fmt.Errorf("delete tw error for %s: %w", row.Attester, err)
			}
		}
		a.logger.Debug(ctx, "market not scoreable, cleared results",
			logger.String("marketID", marketID),
		)
		return nil
	}

	end := *cond.EndTime
	rows, err := a.store.ScoresByMarket(ctx, marketAddress, marketID)
	if err != nil {
		return fmt.Errorf("list scores for %s: %w", marketID, err)
	}

	scoredAt := a.now().Unix()
	attesters := make(map[string]struct{})
	for _, row := range rows {
		if row.MadeAt > end || row.ProbabilityFloat == nil {
			continue
		}
		errSq := (*row.ProbabilityFloat - float64(*out)) * (*row.ProbabilityFloat - float64(*out))
		if err := a.store.SetScoreResult(ctx, row.AttestationID, errSq, *out, scoredAt); err != nil {
			return fmt.Errorf("score row %s: %w", row.AttestationID, err)
		}
		attesters[row.Attester] = struct{}{}
	}

	// Attesters in deterministic order keeps repeated passes
	// byte-identical.
	ordered := make([]string, 0, len(attesters))
	for attester := range attesters {
		ordered = append(ordered, attester)
	}
	sort.Strings(ordered)

	for _, attester := range ordered {
		twError, ok, err := a.ComputeTwError(ctx, marketID, attester)
		if err != nil {
			return err
		}
		if !ok {
			// Degenerate history: drop any stale aggregate instead of
			// leaving a row the history no longer supports.
			if err := a.store.DeleteTwError(ctx, attester, marketAddress, marketID); err != nil {
				return fmt.Errorf("delete tw error for %s: %w", attester, err)
			}
			continue
		}
		if err := a.store.UpsertTwError(ctx, model.AttesterMarketTwError{
			Attester:      attester,
			MarketAddress: marketAddress,
			MarketID:      marketID,
			TwError:       twError,
		}); err != nil {
			return fmt.Errorf("upsert tw error for %s: %w", attester, err)
		}
	}

	metrics.RecordMarketRescore()
	return nil
}

// ComputeTwError computes the horizon-weighted error for one
// (condition, attester) pair. The second return is false when the market
// is unsettled, has no end time, or the attester has no qualifying
// positive-duration history.
func (a *Aggregator) ComputeTwError(ctx context.Context, conditionID, attester string) (float64, bool, error) {
	cond, err := a.store.Condition(ctx, conditionID)
	if errors.Is(err, repository.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("load condition %s: %w", conditionID, err)
	}

	out := outcome.Resolve(cond)
	if out == nil || cond.EndTime == nil {
		return 0, false, nil
	}
	end := *cond.EndTime

	marketAddress := model.CanonicalAddress(cond.Resolver)
	rows, err := a.store.ScoresByMarketAttester(ctx, marketAddress, conditionID, attester)
	if err != nil {
		return 0, false, fmt.Errorf("list scores for %s/%s: %w", conditionID, attester, err)
	}

	history := make([]accuracy.Forecast, 0, len(rows))
	for _, row := range rows {
		if row.MadeAt > end || row.ProbabilityFloat == nil {
			continue
		}
		history = append(history, accuracy.Forecast{
			MadeAt:      row.MadeAt,
			Probability: *row.ProbabilityFloat,
		})
	}

	twError, ok := a.calc.TwError(end, *out, history)
	return twError, ok, nil
}
