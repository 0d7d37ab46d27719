package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	account "gasledger/internal/account/domain"
	history "gasledger/internal/history/domain"
	"gasledger/internal/observability/metrics"
	reconcile "gasledger/internal/reconcile/domain"
)

// CycleMode selects the signal that opens a new billing cycle.
type CycleMode string

const (
	// CycleCalendarMonth rolls the cycle over when the local calendar
	// month changes.
	CycleCalendarMonth CycleMode = "calendar_month"
	// CycleDescriptionChange rolls the cycle over when the upstream
	// ladder cycle description changes. The description is an opaque
	// token; it is compared, never parsed.
	CycleDescriptionChange CycleMode = "description_change"
)

const (
	defaultRetentionDays       = 400
	defaultDivergenceThreshold = 0.2
)

// Clock abstracts wall time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock.
type SystemClock struct{}

// Now returns the current wall time.
func (SystemClock) Now() time.Time { return time.Now() }

// CycleResult is the read-model projection produced by one reconciliation
// cycle. It is what the API and exports serve; the durable truth lives in
// the history store.
type CycleResult struct {
	CycleID   string    `json:"cycle_id"`
	EntryID   string    `json:"entry_id"`
	FetchedAt time.Time `json:"fetched_at"`

	Balance           float64 `json:"balance"`
	Arrears           float64 `json:"arrears"`
	LastMonthBalance  float64 `json:"last_month_balance"`
	MonthEstimateCost float64 `json:"month_estimate_cost"`
	TotalUsage        float64 `json:"total_usage"`
	AvailableDays     int     `json:"available_days"`

	TodayUsage float64 `json:"today_usage"`
	TodayCost  float64 `json:"today_cost"`
	MonthUsage float64 `json:"month_usage"`
	MonthCost  float64 `json:"month_cost"`
	// ReportedMonthCost is the upstream's own month cost figure, served
	// alongside the reconciled one.
	ReportedMonthCost float64 `json:"reported_month_cost,omitempty"`

	TierResolved     bool    `json:"tier_resolved"`
	ActiveTierIndex  int     `json:"active_tier_index,omitempty"`
	ActiveTierPrice  float64 `json:"active_tier_price,omitempty"`
	CycleDescription string  `json:"cycle_description,omitempty"`

	NewRecharges    int `json:"new_recharges"`
	MalformedEvents int `json:"malformed_events"`

	Stats   history.RollingStats       `json:"stats"`
	History []history.DailyUsageRecord `json:"history"`
}

// Engine turns raw account snapshots into reconciled daily ledger lines.
// One engine serves many entries; overlapping cycles for the same entry
// are serialized by a per-entry mutex so slow polls can never interleave
// balance reads and writes.
type Engine struct {
	store      history.Store
	normalizer reconcile.Normalizer
	clock      Clock
	logger     *log.Logger

	cycleMode           CycleMode
	retentionDays       int
	divergenceThreshold float64

	mu         sync.Mutex
	entryLocks map[string]*sync.Mutex
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithClock overrides the engine clock.
func WithClock(clock Clock) EngineOption {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithCycleMode selects the billing-cycle rollover signal.
func WithCycleMode(mode CycleMode) EngineOption {
	return func(e *Engine) {
		if mode == CycleCalendarMonth || mode == CycleDescriptionChange {
			e.cycleMode = mode
		}
	}
}

// WithRetentionDays overrides how long known recharge ids are retained.
func WithRetentionDays(days int) EngineOption {
	return func(e *Engine) {
		if days > 0 {
			e.retentionDays = days
		}
	}
}

// WithDivergenceThreshold overrides the reported-vs-derived usage
// divergence above which a warning is logged.
func WithDivergenceThreshold(threshold float64) EngineOption {
	return func(e *Engine) {
		if threshold > 0 {
			e.divergenceThreshold = threshold
		}
	}
}

// NewEngine constructs a reconciliation engine.
func NewEngine(store history.Store, normalizer reconcile.Normalizer, logger *log.Logger, opts ...EngineOption) (*Engine, error) {
	if store == nil {
		return nil, errors.New("reconcile engine: nil store")
	}
	e := &Engine{
		store:               store,
		normalizer:          normalizer,
		clock:               SystemClock{},
		logger:              logger,
		cycleMode:           CycleCalendarMonth,
		retentionDays:       defaultRetentionDays,
		divergenceThreshold: defaultDivergenceThreshold,
		entryLocks:          make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Reconcile runs one full cycle for an entry: normalize the snapshot's
// recharge timestamps, absorb fresh recharges, reconstruct today's and
// the month's usage from balance deltas, resolve the active ladder tier,
// and persist the updated state. The first snapshot for an entry only
// seeds baselines and yields a zero-usage cycle. Any failure before the
// final save leaves the previously persisted state untouched.
func (e *Engine) Reconcile(ctx context.Context, entryID string, snap account.AccountSnapshot) (*CycleResult, error) {
	if entryID == "" {
		return nil, account.ErrEmptyEntryID
	}
	lock := e.lockFor(entryID)
	lock.Lock()
	defer lock.Unlock()

	state, err := e.store.Load(ctx, entryID)
	if err != nil {
		return nil, fmt.Errorf("reconcile %s: load state: %w", entryID, err)
	}

	loc := e.normalizer.Location()
	now := e.clock.Now().In(loc)
	today := now.Format(history.DateLayout)

	events, malformed := e.normalizeEvents(entryID, snap.RechargeEvents)
	metrics.AddRechargeEvents(metrics.RechargeMalformed, malformed)

	if !state.Initialized {
		return e.seed(ctx, state, snap, events, today, now, malformed)
	}

	e.rollCycleIfNeeded(state, snap, today)

	fresh, known := reconcile.AbsorbRecharges(events, state.KnownRechargeIDs, today)
	metrics.AddRechargeEvents(metrics.RechargeAbsorbed, len(fresh))
	metrics.AddRechargeEvents(metrics.RechargeDuplicate, len(events)-len(fresh))

	monthStart := e.monthStartInstant(state, loc)
	var freshRecharge float64
	for _, event := range fresh {
		if event.CreatedAt.Before(monthStart) {
			// Historical order surfacing for the first time: remember the
			// id but keep it out of the current cycle's arithmetic.
			e.logf("reconcile: stale recharge entry=%s order=%s created=%s", entryID, event.OrderID, event.CreatedAt.Format(time.RFC3339))
			continue
		}
		freshRecharge += event.Amount
	}

	todayRecord, exists := state.Get(today)
	if !exists {
		todayRecord = history.DailyUsageRecord{Date: today, StartBalance: state.LastBalance}
	}
	todayRecord.RechargeTotal += freshRecharge

	monthRecharge := state.MonthRechargeTotal() + freshRecharge
	monthRaw := state.MonthBaselineBalance - snap.Balance + monthRecharge
	monthCost := monthRaw
	if monthCost < 0 {
		e.logf("reconcile: negative month cost entry=%s raw=%.2f; clamped", entryID, monthRaw)
		monthCost = 0
	}

	monthUsage, activeTier, tierResolved := e.resolveTier(entryID, snap, monthCost)

	var unitPrice float64
	if tierResolved {
		unitPrice = activeTier.UnitPrice
	}
	todayFigures := reconcile.ComputeUsage(todayRecord.StartBalance, snap.Balance, todayRecord.RechargeTotal, unitPrice)
	todayUsage := todayFigures.Usage
	if reported, ok := reportedUsageFor(snap.DailyUsage, today); ok && reported > 0 {
		if tierResolved {
			divergence := reconcile.QuantityDivergence(reported, todayFigures.Cost, unitPrice)
			if divergence > e.divergenceThreshold {
				e.logf("reconcile: usage divergence entry=%s date=%s reported=%.3f derived=%.3f", entryID, today, reported, todayFigures.Usage)
			}
		}
		todayUsage = reported
	}

	todayRecord.Usage = todayUsage
	todayRecord.Cost = todayFigures.Cost
	todayRecord.Flagged = todayFigures.Clamped
	state.UpsertDay(todayRecord, today)

	e.backfillReportedDays(state, snap, today)

	state.LastBalance = snap.Balance
	state.LastPollAt = now
	state.KnownRechargeIDs = known
	if snap.CycleDescription != "" {
		state.CycleDescription = snap.CycleDescription
	}
	state.PruneKnownRecharges(e.retentionDays, today)

	if err := e.store.Save(ctx, state); err != nil {
		return nil, fmt.Errorf("reconcile %s: save state: %w", entryID, err)
	}

	result := e.buildResult(entryID, snap, state, now)
	result.TodayUsage = todayUsage
	result.TodayCost = todayFigures.Cost
	result.MonthUsage = monthUsage
	result.MonthCost = monthCost
	result.TierResolved = tierResolved
	if tierResolved {
		result.ActiveTierIndex = activeTier.Index
		result.ActiveTierPrice = activeTier.UnitPrice
	}
	result.NewRecharges = len(fresh)
	result.MalformedEvents = malformed

	metrics.SetEntryBalance(entryID, snap.Balance)
	metrics.SetEntryMonthUsage(entryID, monthUsage)
	return result, nil
}

// seed handles the first snapshot for an entry: baselines are recorded,
// every order id in the snapshot becomes known without being counted, and
// the first cycle reports zero usage.
func (e *Engine) seed(ctx context.Context, state *history.PersistedState, snap account.AccountSnapshot, events []account.RechargeEvent, today string, now time.Time, malformed int) (*CycleResult, error) {
	state.Initialized = true
	state.LastBalance = snap.Balance
	state.LastPollAt = now
	state.MonthBaselineBalance = snap.Balance
	state.MonthStartDate = today
	state.CycleDescription = snap.CycleDescription
	for _, event := range events {
		if event.OrderID == "" {
			continue
		}
		state.KnownRechargeIDs[event.OrderID] = today
	}

	state.UpsertDay(history.DailyUsageRecord{
		Date:         today,
		StartBalance: snap.Balance,
	}, today)
	e.backfillReportedDays(state, snap, today)

	if err := e.store.Save(ctx, state); err != nil {
		return nil, fmt.Errorf("reconcile %s: save seeded state: %w", state.EntryID, err)
	}
	e.logf("reconcile: seeded entry=%s balance=%.2f known_orders=%d", state.EntryID, snap.Balance, len(state.KnownRechargeIDs))

	result := e.buildResult(state.EntryID, snap, state, now)
	result.MalformedEvents = malformed
	if tier, err := reconcile.ResolveTier(0, snap.LadderTiers); err == nil {
		result.TierResolved = true
		result.ActiveTierIndex = tier.Index
		result.ActiveTierPrice = tier.UnitPrice
	}
	metrics.SetEntryBalance(state.EntryID, snap.Balance)
	return result, nil
}

// normalizeEvents converts raw recharge timestamps into local instants.
// A malformed event, missing its order id or carrying an unparseable
// timestamp, drops only itself.
func (e *Engine) normalizeEvents(entryID string, events []account.RechargeEvent) ([]account.RechargeEvent, int) {
	normalized := make([]account.RechargeEvent, 0, len(events))
	malformed := 0
	for _, event := range events {
		if event.OrderID == "" {
			malformed++
			e.logf("reconcile: dropped recharge entry=%s raw=%q err=%v", entryID, event.CreatedAtRaw, account.ErrEmptyOrderID)
			continue
		}
		if !event.CreatedAt.IsZero() {
			normalized = append(normalized, event)
			continue
		}
		instant, err := e.normalizer.NormalizeString(event.CreatedAtRaw)
		if err != nil {
			malformed++
			e.logf("reconcile: dropped recharge entry=%s order=%s raw=%q err=%v", entryID, event.OrderID, event.CreatedAtRaw, err)
			continue
		}
		event.CreatedAt = instant
		normalized = append(normalized, event)
	}
	return normalized, malformed
}

// rollCycleIfNeeded resets the month baseline at a cycle boundary. The new
// baseline is the current snapshot balance, so the fresh cycle starts its
// accumulation at zero. Daily history is never touched by a rollover.
func (e *Engine) rollCycleIfNeeded(state *history.PersistedState, snap account.AccountSnapshot, today string) {
	rolled := false
	switch e.cycleMode {
	case CycleDescriptionChange:
		if snap.CycleDescription != "" && state.CycleDescription != "" && snap.CycleDescription != state.CycleDescription {
			rolled = true
		}
	default:
		if monthKey(today) != monthKey(state.MonthStartDate) {
			rolled = true
		}
	}
	if state.MonthStartDate == "" {
		rolled = true
	}
	if !rolled {
		return
	}
	e.logf("reconcile: cycle rollover entry=%s mode=%s start=%s", state.EntryID, e.cycleMode, today)
	state.MonthBaselineBalance = snap.Balance
	state.MonthStartDate = today
	if snap.CycleDescription != "" {
		state.CycleDescription = snap.CycleDescription
	}
}

// resolveTier determines the cycle's usage quantity and active tier. A
// directly reported month usage stays authoritative; without one the
// quantity is derived by inverting the ladder schedule over the computed
// cost. An unresolvable tier skips tier-dependent fields only.
func (e *Engine) resolveTier(entryID string, snap account.AccountSnapshot, monthCost float64) (float64, account.LadderTier, bool) {
	if snap.ReportedMonthUsage > 0 {
		tier, err := reconcile.ResolveTier(snap.ReportedMonthUsage, snap.LadderTiers)
		if err != nil {
			e.logf("reconcile: tier resolution skipped entry=%s err=%v", entryID, err)
			return snap.ReportedMonthUsage, account.LadderTier{}, false
		}
		divergence := reconcile.QuantityDivergence(snap.ReportedMonthUsage, monthCost, tier.UnitPrice)
		if divergence > e.divergenceThreshold {
			e.logf("reconcile: month usage divergence entry=%s reported=%.3f cost=%.2f price=%.3f", entryID, snap.ReportedMonthUsage, monthCost, tier.UnitPrice)
		}
		return snap.ReportedMonthUsage, tier, true
	}

	usage, tier, err := reconcile.DeriveUsageFromCost(monthCost, snap.LadderTiers)
	if err != nil {
		e.logf("reconcile: tier resolution skipped entry=%s err=%v", entryID, err)
		return 0, account.LadderTier{}, false
	}
	return usage, tier, true
}

// backfillReportedDays copies API-reported usage for past dates the local
// ledger has no record of. Locally reconciled records always win.
func (e *Engine) backfillReportedDays(state *history.PersistedState, snap account.AccountSnapshot, today string) {
	for _, day := range snap.DailyUsage {
		if day.Date == "" || day.Date >= today {
			continue
		}
		if _, exists := state.Get(day.Date); exists {
			continue
		}
		state.UpsertDay(history.DailyUsageRecord{
			Date:  day.Date,
			Usage: day.Usage,
		}, today)
	}
}

func (e *Engine) buildResult(entryID string, snap account.AccountSnapshot, state *history.PersistedState, now time.Time) *CycleResult {
	fetchedAt := snap.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = now
	}
	return &CycleResult{
		CycleID:           uuid.NewString(),
		EntryID:           entryID,
		FetchedAt:         fetchedAt,
		Balance:           snap.Balance,
		Arrears:           snap.Arrears,
		LastMonthBalance:  snap.LastMonthBalance,
		MonthEstimateCost: snap.MonthEstimateCost,
		ReportedMonthCost: snap.ReportedMonthCost,
		TotalUsage:        snap.TotalUsage,
		AvailableDays:     snap.AvailableDays,
		CycleDescription:  state.CycleDescription,
		Stats:             state.RollingStats("", ""),
		History:           state.Days(),
	}
}

// reportedUsageFor returns the API-reported usage quantity for a date,
// when the snapshot's daily list carries one.
func reportedUsageFor(days []account.ReportedDailyUsage, date string) (float64, bool) {
	for _, day := range days {
		if day.Date == date {
			return day.Usage, true
		}
	}
	return 0, false
}

func (e *Engine) monthStartInstant(state *history.PersistedState, loc *time.Location) time.Time {
	start, err := time.ParseInLocation(history.DateLayout, state.MonthStartDate, loc)
	if err != nil {
		return time.Time{}
	}
	return start
}

func (e *Engine) lockFor(entryID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.entryLocks[entryID]
	if !ok {
		lock = &sync.Mutex{}
		e.entryLocks[entryID] = lock
	}
	return lock
}

func (e *Engine) logf(format string, args ...any) {
	if e.logger != nil {
		e.logger.Printf(format, args...)
	}
}

func monthKey(date string) string {
	if len(date) < 7 {
		return date
	}
	return date[:7]
}
