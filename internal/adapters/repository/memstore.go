package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/okian/foresight/internal/domain/model"
	"github.com/okian/foresight/pkg/metrics"
)

// MemStore is an in-memory Store. Every mutation is a per-key upsert under
// one write lock, which gives the same atomicity a relational backend's
// upserts would; reads copy rows out so callers never alias store memory.
type MemStore struct {
	mu sync.RWMutex

	attestations   map[string]model.Attestation
	attestationIDs []string // ascending, mirrors the attestations map
	conditions     map[string]model.Condition
	scores         map[string]model.AttestationScore
	twErrors       map[twKey]model.AttesterMarketTwError
}

type twKey struct {
	attester      string
	marketAddress string
	marketID      string
}

// NewMemStore creates an empty in-memory store.
func NewMemStore(_ context.Context, opts ...Option) *MemStore {
	s := &MemStore{
		attestations: make(map[string]model.Attestation),
		conditions:   make(map[string]model.Condition),
		scores:       make(map[string]model.AttestationScore),
		twErrors:     make(map[twKey]model.AttesterMarketTwError),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PutAttestation stores or replaces a raw attestation row.
func (s *MemStore) PutAttestation(_ context.Context, a model.Attestation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.attestations[a.ID]; !exists {
		i := sort.SearchStrings(s.attestationIDs, a.ID)
		s.attestationIDs = append(s.attestationIDs, "")
		copy(s.attestationIDs[i+1:], s.attestationIDs[i:])
		s.attestationIDs[i] = a.ID
	}
	s.attestations[a.ID] = a
	return nil
}

// PutCondition stores or replaces a condition row.
func (s *MemStore) PutCondition(_ context.Context, c model.Condition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conditions[c.ID] = c
	return nil
}

// Attestation returns the attestation with the given id.
func (s *MemStore) Attestation(_ context.Context, id string) (model.Attestation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.attestations[id]
	if !ok {
		return model.Attestation{}, ErrNotFound
	}
	return a, nil
}

// AttestationsAfter pages attestations by ascending id, strictly after
// afterID.
func (s *MemStore) AttestationsAfter(_ context.Context, afterID string, limit int) ([]model.Attestation, error) {
	if limit < 1 {
		return nil, ErrInvalidLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	start := sort.SearchStrings(s.attestationIDs, afterID)
	if afterID != "" && start < len(s.attestationIDs) && s.attestationIDs[start] == afterID {
		start++
	}

	out := make([]model.Attestation, 0, limit)
	for _, id := range s.attestationIDs[start:] {
		if len(out) == limit {
			break
		}
		out = append(out, s.attestations[id])
	}
	return out, nil
}

// AttestationsByCondition lists attestations on one condition, ascending
// by id.
func (s *MemStore) AttestationsByCondition(_ context.Context, conditionID string) ([]model.Attestation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Attestation
	for _, id := range s.attestationIDs {
		if a := s.attestations[id]; a.ConditionID == conditionID {
			out = append(out, a)
		}
	}
	return out, nil
}

// Condition returns the condition with the given id.
func (s *MemStore) Condition(_ context.Context, id string) (model.Condition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.conditions[id]
	if !ok {
		return model.Condition{}, ErrNotFound
	}
	return c, nil
}

// SettledConditions lists all currently settled conditions, ordered by id
// for deterministic passes.
func (s *MemStore) SettledConditions(_ context.Context) ([]model.Condition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Condition
	for _, c := range s.conditions {
		if c.Settled {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Score returns the derived row for an attestation.
func (s *MemStore) Score(_ context.Context, attestationID string) (model.AttestationScore, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.scores[attestationID]
	if !ok {
		return model.AttestationScore{}, ErrNotFound
	}
	return copyScore(row), nil
}

// UpsertScore creates or refreshes the row keyed by AttestationID. Updates
// never touch the aggregator-owned ErrorSquared/Outcome/ScoredAt fields or
// the Used flag.
func (s *MemStore) UpsertScore(_ context.Context, in model.AttestationScore) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.scores[in.AttestationID]
	if !ok {
		s.scores[in.AttestationID] = copyScore(in)
		metrics.RecordScoreUpsert()
		return nil
	}

	existing.Attester = in.Attester
	existing.MarketAddress = in.MarketAddress
	existing.MarketID = in.MarketID
	existing.MadeAt = in.MadeAt
	existing.ProbabilityFloat = copyFloat(in.ProbabilityFloat)
	existing.ProbabilityD18 = copyString(in.ProbabilityD18)
	s.scores[in.AttestationID] = existing
	metrics.RecordScoreUpsert()
	return nil
}

// SetScoreResult writes the scoring fields of one row.
func (s *MemStore) SetScoreResult(_ context.Context, attestationID string, errorSquared float64, outcomeBit int, scoredAt int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.scores[attestationID]
	if !ok {
		return ErrNotFound
	}
	row.ErrorSquared = &errorSquared
	row.Outcome = &outcomeBit
	row.ScoredAt = &scoredAt
	s.scores[attestationID] = row
	return nil
}

// ClearScoreResults nulls the scoring fields on every row of a market.
func (s *MemStore) ClearScoreResults(_ context.Context, marketAddress, marketID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, row := range s.scores {
		if row.MarketAddress != marketAddress || row.MarketID != marketID {
			continue
		}
		row.ErrorSquared = nil
		row.Outcome = nil
		row.ScoredAt = nil
		s.scores[id] = row
	}
	return nil
}

// ScoresByMarket lists rows for a market, ascending by MadeAt with id as
// a stable tie-break.
func (s *MemStore) ScoresByMarket(_ context.Context, marketAddress, marketID string) ([]model.AttestationScore, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.AttestationScore
	for _, row := range s.scores {
		if row.MarketAddress == marketAddress && row.MarketID == marketID {
			out = append(out, copyScore(row))
		}
	}
	sortScores(out)
	return out, nil
}

// ScoresByMarketAttester lists one attester's rows for a market.
func (s *MemStore) ScoresByMarketAttester(_ context.Context, marketAddress, marketID, attester string) ([]model.AttestationScore, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.AttestationScore
	for _, row := range s.scores {
		if row.MarketAddress == marketAddress && row.MarketID == marketID && row.Attester == attester {
			out = append(out, copyScore(row))
		}
	}
	sortScores(out)
	return out, nil
}

// MarketIDsByAttester returns the distinct market ids among an attester's
// derived rows, sorted ascending.
func (s *MemStore) MarketIDsByAttester(_ context.Context, attester string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, row := range s.scores {
		if row.Attester == attester {
			seen[row.MarketID] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// UpsertTwError overwrites the aggregate for the composite key.
func (s *MemStore) UpsertTwError(_ context.Context, e model.AttesterMarketTwError) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.twErrors[twKey{e.Attester, e.MarketAddress, e.MarketID}] = e
	metrics.RecordTwErrorUpsert()
	return nil
}

// DeleteTwError removes an aggregate row; missing rows are a no-op.
func (s *MemStore) DeleteTwError(_ context.Context, attester, marketAddress, marketID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.twErrors, twKey{attester, marketAddress, marketID})
	return nil
}

// TwErrorsByAttester lists an attester's aggregates, ordered by market id.
func (s *MemStore) TwErrorsByAttester(_ context.Context, attester string) ([]model.AttesterMarketTwError, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.AttesterMarketTwError
	for k, e := range s.twErrors {
		if k.attester == attester {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MarketID < out[j].MarketID })
	return out, nil
}

// TwErrorGroups groups all aggregate errors by attester.
func (s *MemStore) TwErrorGroups(_ context.Context) (map[string][]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string][]float64)
	for k, e := range s.twErrors {
		out[k.attester] = append(out[k.attester], e.TwError)
	}
	return out, nil
}

// CountAttestations returns the number of raw attestation rows.
func (s *MemStore) CountAttestations(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.attestations)
}

// CountForecasters returns the number of attesters holding at least one
// aggregate row.
func (s *MemStore) CountForecasters(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{}, len(s.twErrors))
	for k := range s.twErrors {
		seen[k.attester] = struct{}{}
	}
	return len(seen)
}

func sortScores(rows []model.AttestationScore) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].MadeAt != rows[j].MadeAt {
			return rows[i].MadeAt < rows[j].MadeAt
		}
		return rows[i].AttestationID < rows[j].AttestationID
	})
}

// copyScore deep-copies the pointer fields so rows handed to callers never
// alias store memory.
func copyScore(in model.AttestationScore) model.AttestationScore {
	out := in
	out.ProbabilityFloat = copyFloat(in.ProbabilityFloat)
	out.ProbabilityD18 = copyString(in.ProbabilityD18)
	out.ErrorSquared = copyFloat(in.ErrorSquared)
	out.Outcome = copyInt(in.Outcome)
	out.ScoredAt = copyInt64(in.ScoredAt)
	return out
}

func copyFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func copyString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func copyInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func copyInt64(p *int64) *int64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
