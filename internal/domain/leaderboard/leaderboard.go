// Package leaderboard aggregates per-market errors into cross-market
// accuracy scores and answers rank, top-N, and single-score queries.
package leaderboard

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/okian/foresight/internal/domain/model"
	"github.com/okian/foresight/internal/domain/qcache"
	"github.com/okian/foresight/internal/domain/types"
	"github.com/okian/foresight/pkg/metrics"
)

// Leaderboard configuration constants. Epsilon floors the mean error so a
// perfect forecaster gets a large finite accuracy instead of a division
// blow-up.
const (
	epsilon         = 0.0001
	defaultMaxLimit = 100
	defaultCacheTTL = 60 * time.Second
)

// Reader is the slice of the repository the leaderboard needs.
type Reader interface {
	TwErrorsByAttester(ctx context.Context, attester string) ([]model.AttesterMarketTwError, error)
	TwErrorGroups(ctx context.Context) (map[string][]float64, error)
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithMaxLimit caps top-N queries.
func WithMaxLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxLimit = n
		}
	}
}

// WithCacheTTL sets the query cache lifetime.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

// WithClock overrides the cache clock for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.clock = now
		}
	}
}

// Service serves leaderboard reads with a short-TTL cache in front.
type Service struct {
	reader   Reader
	cache    *qcache.Cache
	cacheTTL time.Duration
	maxLimit int
	clock    func() time.Time
}

// New creates a leaderboard Service over the given reader.
func New(reader Reader, opts ...Option) *Service {
	s := &Service{
		reader:   reader,
		cacheTTL: defaultCacheTTL,
		maxLimit: defaultMaxLimit,
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cache = qcache.New(
		qcache.WithTTL(s.cacheTTL),
		qcache.WithClock(s.clock),
	)
	return s
}

// ForecasterScore averages an attester's per-market errors into one
// accuracy figure. Returns nil for an attester with no scored markets.
func (s *Service) ForecasterScore(ctx context.Context, attester string) (*types.Score, error) {
	attester = model.CanonicalAddress(attester)
	key := "score:" + attester
	if v, ok := s.cache.Get(ctx, key); ok {
		metrics.RecordLeaderboardCacheHit()
		cached := v.(types.Score)
		return &cached, nil
	}
	metrics.RecordLeaderboardCacheMiss()

	rows, err := s.reader.TwErrorsByAttester(ctx, attester)
	if err != nil {
		return nil, fmt.Errorf("list tw errors for %s: %w", attester, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	var sum float64
	for _, row := range rows {
		sum += row.TwError
	}
	mean := sum / float64(len(rows))

	score := types.Score{
		Attester:      attester,
		AccuracyScore: accuracyOf(mean),
		MeanTwError:   mean,
		Markets:       len(rows),
	}
	s.cache.Put(ctx, key, score)
	return &score, nil
}

// TopForecasters returns the best forecasters by accuracy score. The
// limit is clamped to [1, maxLimit].
func (s *Service) TopForecasters(ctx context.Context, limit int) ([]types.Entry, error) {
	if limit < 1 {
		limit = 1
	}
	if limit > s.maxLimit {
		limit = s.maxLimit
	}

	key := "top:" + strconv.Itoa(limit)
	if v, ok := s.cache.Get(ctx, key); ok {
		metrics.RecordLeaderboardCacheHit()
		return v.([]types.Entry), nil
	}
	metrics.RecordLeaderboardCacheMiss()

	ranked, err := s.ranking(ctx)
	if err != nil {
		return nil, err
	}
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	s.cache.Put(ctx, key, ranked)
	return ranked, nil
}

// AccuracyRank locates one attester in the full ranking. Rank and
// AccuracyScore are nil when the attester has no scored markets;
// TotalForecasters always reflects the full list.
func (s *Service) AccuracyRank(ctx context.Context, attester string) (types.RankResult, error) {
	attester = model.CanonicalAddress(attester)
	key := "rank:" + attester
	if v, ok := s.cache.Get(ctx, key); ok {
		metrics.RecordLeaderboardCacheHit()
		return v.(types.RankResult), nil
	}
	metrics.RecordLeaderboardCacheMiss()

	ranked, err := s.ranking(ctx)
	if err != nil {
		return types.RankResult{}, err
	}

	result := types.RankResult{
		Attester:         attester,
		TotalForecasters: len(ranked),
	}
	for _, entry := range ranked {
		if entry.Attester == attester {
			rank := entry.Rank
			score := entry.AccuracyScore
			result.Rank = &rank
			result.AccuracyScore = &score
			break
		}
	}
	s.cache.Put(ctx, key, result)
	return result, nil
}

// ranking builds the full leaderboard: accuracy descending, attester
// ascending on ties so repeated reads agree.
func (s *Service) ranking(ctx context.Context) ([]types.Entry, error) {
	groups, err := s.reader.TwErrorGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("group tw errors: %w", err)
	}

	entries := make([]types.Entry, 0, len(groups))
	for attester, errs := range groups {
		if len(errs) == 0 {
			continue
		}
		var sum float64
		for _, e := range errs {
			sum += e
		}
		entries = append(entries, types.Entry{
			Attester:      attester,
			AccuracyScore: accuracyOf(sum / float64(len(errs))),
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].AccuracyScore != entries[j].AccuracyScore {
			return entries[i].AccuracyScore > entries[j].AccuracyScore
		}
		return entries[i].Attester < entries[j].Attester
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries, nil
}

func accuracyOf(meanError float64) float64 {
	if meanError < epsilon {
		meanError = epsilon
	}
	return 1 / meanError
}
