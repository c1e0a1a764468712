// Package service provides the core business service that implements
// the dependencies required by the HTTP API, including the reindex and
// backfill orchestration.
package service

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	jobqueue "github.com/okian/foresight/internal/adapters/mq/queue"
	workerpool "github.com/okian/foresight/internal/adapters/mq/worker"
	repository "github.com/okian/foresight/internal/adapters/repository"
	"github.com/okian/foresight/internal/domain/accuracy"
	"github.com/okian/foresight/internal/domain/aggregate"
	"github.com/okian/foresight/internal/domain/leaderboard"
	"github.com/okian/foresight/internal/domain/model"
	"github.com/okian/foresight/internal/domain/scorekeeper"
	"github.com/okian/foresight/internal/domain/types"
	"github.com/okian/foresight/pkg/logger"
	"github.com/okian/foresight/pkg/metrics"
)

// Orchestrator states reported by State and GetStats.
const (
	StateIdle       = "idle"
	StateProcessing = "processing"
)

// Service wires the store, the scoring pipeline, and the leaderboard
// behind one facade.
type Service struct {
	mu sync.RWMutex

	// Core components
	store      repository.Store
	keeper     *scorekeeper.Keeper
	aggregator *aggregate.Aggregator
	board      *leaderboard.Service
	jobQueue   jobqueue.Queue
	workerPool *workerpool.Pool

	// Configuration
	workerCount   int
	queueSize     int
	batchSize     int
	decayExponent float64
	cacheTTL      time.Duration
	maxLimit      int
	clock         func() time.Time

	// Number of in-flight backfill/reindex runs.
	inFlight atomic.Int64

	// State
	started bool
	stopCh  chan struct{}

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of upsert workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum size of the job queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithBatchSize bounds one backfill page of attestations.
func WithBatchSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.batchSize = size
		}
	}
}

// WithDecayExponent sets the alpha of the horizon weighting.
func WithDecayExponent(alpha float64) Option {
	return func(s *Service) {
		s.decayExponent = alpha
	}
}

// WithCacheTTL sets the leaderboard query cache lifetime.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

// WithMaxLeaderboardLimit caps top-N queries.
func WithMaxLeaderboardLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxLimit = n
		}
	}
}

// WithStore replaces the default in-memory store.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithClock overrides the scoredAt/cache time source for deterministic
// tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.clock = now
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(log logger.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.logger = log
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:   runtime.NumCPU() * 4,
		queueSize:     10_000,
		batchSize:     1000,
		decayExponent: accuracy.DefaultDecayExponent,
		cacheTTL:      60 * time.Second,
		maxLimit:      100,
		clock:         time.Now,
		stopCh:        make(chan struct{}),
	}

	// Apply all options
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start initializes and starts the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	s.logger.Info(ctx, "starting scoring service...")

	if s.store == nil {
		s.store = repository.NewMemStore(ctx)
	}
	s.keeper = scorekeeper.New(s.store)
	s.aggregator = aggregate.New(
		s.store,
		aggregate.WithCalculator(accuracy.New(accuracy.WithDecayExponent(s.decayExponent))),
		aggregate.WithClock(s.clock),
	)
	s.board = leaderboard.New(
		s.store,
		leaderboard.WithMaxLimit(s.maxLimit),
		leaderboard.WithCacheTTL(s.cacheTTL),
		leaderboard.WithClock(s.clock),
	)
	s.jobQueue = jobqueue.NewInMemoryQueue(
		jobqueue.WithCapacity(s.queueSize),
	)

	s.workerPool = workerpool.NewPool(s.workerCount, s.jobQueue, s.keeper)
	s.workerPool.Start(ctx)

	s.started = true
	s.logger.Info(ctx, "scoring service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("batchSize", s.batchSize),
	)

	return nil
}

// Stop gracefully shuts down the service.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	s.logger.Info(context.Background(), "stopping scoring service...")

	if s.workerPool != nil {
		s.workerPool.Stop()
	}

	if q, ok := s.jobQueue.(*jobqueue.InMemoryQueue); ok {
		_ = q.Close()
	}

	select {
	case <-s.stopCh:
		// Channel already closed
	default:
		close(s.stopCh)
	}

	s.started = false
	s.logger.Info(context.Background(), "scoring service stopped")
}

// PutAttestation stores a raw attestation and derives its scoring row
// inline.
func (s *Service) PutAttestation(ctx context.Context, a model.Attestation) error {
	if err := s.store.PutAttestation(ctx, a); err != nil {
		return fmt.Errorf("put attestation %s: %w", a.ID, err)
	}
	if err := s.keeper.UpsertFromAttestation(ctx, a.ID); err != nil {
		return fmt.Errorf("derive score row %s: %w", a.ID, err)
	}
	return nil
}

// PutCondition stores a condition. A settled condition triggers an
// inline rescore of its market so derived state tracks settlement
// without waiting for the next backfill.
func (s *Service) PutCondition(ctx context.Context, c model.Condition) error {
	if err := s.store.PutCondition(ctx, c); err != nil {
		return fmt.Errorf("put condition %s: %w", c.ID, err)
	}
	addr := model.CanonicalAddress(c.Resolver)
	if err := s.aggregator.RescoreMarket(ctx, addr, c.ID); err != nil {
		s.logger.Error(ctx, "rescore after condition write failed",
			logger.String("conditionID", c.ID),
			logger.Error(err),
		)
	}
	return nil
}

// ForecasterScore returns one attester's cross-market accuracy, or nil
// when they have no scored markets.
func (s *Service) ForecasterScore(ctx context.Context, attester string) (*types.Score, error) {
	return s.board.ForecasterScore(ctx, attester)
}

// TopForecasters returns the best forecasters by accuracy score.
func (s *Service) TopForecasters(ctx context.Context, limit int) ([]types.Entry, error) {
	return s.board.TopForecasters(ctx, limit)
}

// AccuracyRank locates one attester in the full ranking.
func (s *Service) AccuracyRank(ctx context.Context, attester string) (types.RankResult, error) {
	return s.board.AccuracyRank(ctx, attester)
}

// State reports the orchestrator state: processing while any backfill
// or reindex run is in flight, idle otherwise.
func (s *Service) State(_ context.Context) string {
	if s.inFlight.Load() > 0 {
		return StateProcessing
	}
	return StateIdle
}

// StartBackfill launches a full backfill run in the background and
// returns its run id. Returns false if the service is not started.
func (s *Service) StartBackfill(_ context.Context) (string, bool) {
	s.mu.RLock()
	started := s.started
	s.mu.RUnlock()
	if !started {
		return "", false
	}

	runID := uuid.NewString()
	go func() {
		// Detached from the request context; a trigger should not die
		// with its caller.
		if err := s.runBackfill(context.Background(), runID); err != nil {
			s.logger.Error(context.Background(), "backfill run failed",
				logger.String("runID", runID),
				logger.Error(err),
			)
		}
	}()
	return runID, true
}

// StartReindex launches a targeted reindex run in the background and
// returns its run id. Both attester and marketID are optional; with
// neither set the run degenerates to a full backfill.
func (s *Service) StartReindex(_ context.Context, attester, marketID string) (string, bool) {
	s.mu.RLock()
	started := s.started
	s.mu.RUnlock()
	if !started {
		return "", false
	}

	runID := uuid.NewString()
	go func() {
		if err := s.runReindex(context.Background(), runID, attester, marketID); err != nil {
			s.logger.Error(context.Background(), "reindex run failed",
				logger.String("runID", runID),
				logger.Error(err),
			)
		}
	}()
	return runID, true
}

// BackfillAccuracy runs a full backfill synchronously: every raw
// attestation is re-derived in cursor-paged batches, then every settled
// market is rescored. Safe to re-run; a crashed run is repaired by the
// next one.
func (s *Service) BackfillAccuracy(ctx context.Context) (string, error) {
	runID := uuid.NewString()
	return runID, s.runBackfill(ctx, runID)
}

// ReindexAccuracy synchronously re-derives and rescores the markets
// selected by the optional attester/marketID filters.
func (s *Service) ReindexAccuracy(ctx context.Context, attester, marketID string) (string, error) {
	runID := uuid.NewString()
	return runID, s.runReindex(ctx, runID, attester, marketID)
}

func (s *Service) beginRun() {
	if s.inFlight.Add(1) == 1 {
		metrics.UpdateBackfillProcessing(true)
	}
}

func (s *Service) endRun() {
	if s.inFlight.Add(-1) == 0 {
		metrics.UpdateBackfillProcessing(false)
	}
}

func (s *Service) runBackfill(ctx context.Context, runID string) error {
	s.beginRun()
	defer s.endRun()
	metrics.RecordBackfillRun()

	s.logger.Info(ctx, "backfill run started", logger.String("runID", runID))

	// Phase 1: re-derive every scoring row, one cursor page at a time.
	// The cursor only advances once the whole batch has completed, so a
	// crash never skips rows on the next run.
	cursor := ""
	for {
		batch, err := s.store.AttestationsAfter(ctx, cursor, s.batchSize)
		if err != nil {
			return fmt.Errorf("page attestations after %q: %w", cursor, err)
		}
		if len(batch) == 0 {
			break
		}
		s.fanOut(ctx, runID, batch)
		cursor = batch[len(batch)-1].ID
	}

	// Phase 2: rescore every settled market. One bad market is logged
	// and skipped, never aborting the run.
	conds, err := s.store.SettledConditions(ctx)
	if err != nil {
		return fmt.Errorf("list settled conditions: %w", err)
	}
	for _, cond := range conds {
		addr := model.CanonicalAddress(cond.Resolver)
		if err := s.aggregator.RescoreMarket(ctx, addr, cond.ID); err != nil {
			s.logger.Error(ctx, "market rescore failed, skipping",
				logger.String("runID", runID),
				logger.String("conditionID", cond.ID),
				logger.Error(err),
			)
		}
	}

	metrics.UpdateTotalForecasters(s.store.CountForecasters(ctx))
	s.logger.Info(ctx, "backfill run finished",
		logger.String("runID", runID),
		logger.Int("settledMarkets", len(conds)),
	)
	return nil
}

func (s *Service) runReindex(ctx context.Context, runID, attester, marketID string) error {
	attester = model.CanonicalAddress(attester)
	if attester == "" && marketID == "" {
		return s.runBackfill(ctx, runID)
	}

	s.beginRun()
	defer s.endRun()
	metrics.RecordReindexRun()

	s.logger.Info(ctx, "reindex run started",
		logger.String("runID", runID),
		logger.String("attester", attester),
		logger.String("marketID", marketID),
	)

	var marketIDs []string
	if marketID != "" {
		marketIDs = []string{marketID}
	} else {
		ids, err := s.store.MarketIDsByAttester(ctx, attester)
		if err != nil {
			return fmt.Errorf("list markets for %s: %w", attester, err)
		}
		marketIDs = ids
	}

	for _, id := range marketIDs {
		atts, err := s.store.AttestationsByCondition(ctx, id)
		if err != nil {
			return fmt.Errorf("list attestations for %s: %w", id, err)
		}
		s.fanOut(ctx, runID, atts)

		addr, err := s.marketAddressFor(ctx, id, atts)
		if err != nil {
			s.logger.Error(ctx, "market address unresolved, skipping",
				logger.String("runID", runID),
				logger.String("marketID", id),
				logger.Error(err),
			)
			continue
		}
		if err := s.aggregator.RescoreMarket(ctx, addr, id); err != nil {
			s.logger.Error(ctx, "market rescore failed, skipping",
				logger.String("runID", runID),
				logger.String("marketID", id),
				logger.Error(err),
			)
		}
	}

	metrics.UpdateTotalForecasters(s.store.CountForecasters(ctx))
	s.logger.Info(ctx, "reindex run finished",
		logger.String("runID", runID),
		logger.Int("markets", len(marketIDs)),
	)
	return nil
}

// fanOut pushes one batch of upserts through the worker queue and waits
// for all of them. A refused enqueue (full or closed queue) is done
// inline instead of dropped.
func (s *Service) fanOut(ctx context.Context, runID string, batch []model.Attestation) {
	var wg sync.WaitGroup
	for _, att := range batch {
		wg.Add(1)
		job := jobqueue.Job{RunID: runID, AttestationID: att.ID, Done: wg.Done}
		if !s.jobQueue.Enqueue(ctx, job) {
			if err := s.keeper.UpsertFromAttestation(ctx, att.ID); err != nil {
				s.logger.Error(ctx, "inline upsert failed, skipping",
					logger.String("runID", runID),
					logger.String("attestationID", att.ID),
					logger.Error(err),
				)
			}
			wg.Done()
		}
	}
	wg.Wait()
}

// marketAddressFor resolves the market address for a condition, falling
// back to the resolver recorded on its attestations when the condition
// row itself is gone.
func (s *Service) marketAddressFor(ctx context.Context, marketID string, atts []model.Attestation) (string, error) {
	cond, err := s.store.Condition(ctx, marketID)
	if err == nil {
		return model.CanonicalAddress(cond.Resolver), nil
	}
	for _, att := range atts {
		if att.Resolver != "" {
			return model.CanonicalAddress(att.Resolver), nil
		}
	}
	return "", fmt.Errorf("no resolver known for market %s", marketID)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":     s.started,
		"state":       s.State(ctx),
		"workerCount": s.workerCount,
		"batchSize":   s.batchSize,
	}

	if s.started {
		queueLen := s.jobQueue.Len(ctx)
		attestations := s.store.CountAttestations(ctx)
		forecasters := s.store.CountForecasters(ctx)

		stats["queueLength"] = queueLen
		stats["attestations"] = attestations
		stats["forecasters"] = forecasters

		// Update metrics
		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateTotalForecasters(forecasters)
		metrics.UpdateWorkerCount(s.workerCount)
	}

	return stats
}
