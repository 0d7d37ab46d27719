package application

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	account "gasledger/internal/account/domain"
	"gasledger/internal/observability/metrics"
	"gasledger/internal/upstream"
)

// Fetcher fetches the current snapshot for one account.
type Fetcher interface {
	FetchSnapshot(ctx context.Context, acct upstream.Account) (account.AccountSnapshot, error)
}

// Scheduler polls each configured entry on a fixed interval and feeds
// snapshots into the engine. A failed fetch skips reconciliation for that
// entry; the persisted state is never touched on upstream failures.
type Scheduler struct {
	engine   *Engine
	fetcher  Fetcher
	entries  []EntryConfig
	interval time.Duration
	logger   *log.Logger

	mu     sync.RWMutex
	latest map[string]*CycleResult
}

// NewScheduler constructs a Scheduler.
func NewScheduler(engine *Engine, fetcher Fetcher, entries []EntryConfig, interval time.Duration, logger *log.Logger) (*Scheduler, error) {
	if engine == nil {
		return nil, errors.New("scheduler: nil engine")
	}
	if fetcher == nil {
		return nil, errors.New("scheduler: nil fetcher")
	}
	if interval <= 0 {
		return nil, errors.New("scheduler: interval must be positive")
	}
	return &Scheduler{
		engine:   engine,
		fetcher:  fetcher,
		entries:  entries,
		interval: interval,
		logger:   logger,
		latest:   make(map[string]*CycleResult),
	}, nil
}

// Start runs one immediate poll round, then loops on the interval until
// the context is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.RunOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce polls every configured entry once.
func (s *Scheduler) RunOnce(ctx context.Context) {
	for _, entry := range s.entries {
		if entry.EntryID == "" {
			continue
		}
		s.pollEntry(ctx, entry)
	}
}

func (s *Scheduler) pollEntry(ctx context.Context, entry EntryConfig) {
	snap, err := s.fetcher.FetchSnapshot(ctx, upstream.Account{
		EntryID:     entry.EntryID,
		Token:       entry.Token,
		PaymentNo:   entry.PaymentNo,
		CompanyCode: entry.CompanyCode,
	})
	if err != nil {
		metrics.IncUpstreamFetch(fetchOutcome(err))
		s.logf("poll: fetch failed entry=%s err=%v", entry.EntryID, err)
		return
	}
	metrics.IncUpstreamFetch(metrics.FetchOutcomeOK)

	started := time.Now()
	result, err := s.engine.Reconcile(ctx, entry.EntryID, snap)
	if err != nil {
		metrics.ObserveCycle(metrics.ResultError, time.Since(started))
		s.logf("poll: reconcile failed entry=%s err=%v", entry.EntryID, err)
		return
	}
	metrics.ObserveCycle(metrics.ResultSuccess, time.Since(started))

	s.mu.Lock()
	s.latest[entry.EntryID] = result
	s.mu.Unlock()
}

// Latest returns the most recent cycle result for an entry, if any.
func (s *Scheduler) Latest(entryID string) (*CycleResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result, ok := s.latest[entryID]
	return result, ok
}

func (s *Scheduler) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}

func fetchOutcome(err error) string {
	switch {
	case errors.Is(err, upstream.ErrAuthExpired):
		return metrics.FetchOutcomeAuth
	case errors.Is(err, upstream.ErrNoData):
		return metrics.FetchOutcomeNoData
	default:
		return metrics.FetchOutcomeNetwork
	}
}
