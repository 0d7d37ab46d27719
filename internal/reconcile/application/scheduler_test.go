package application

import (
	"context"
	"fmt"
	"testing"
	"time"

	account "gasledger/internal/account/domain"
	"gasledger/internal/history/infrastructure/memory"
	"gasledger/internal/upstream"
)

type stubFetcher struct {
	snapshots map[string]account.AccountSnapshot
	errs      map[string]error
	calls     int
}

func (f *stubFetcher) FetchSnapshot(ctx context.Context, acct upstream.Account) (account.AccountSnapshot, error) {
	f.calls++
	if err, ok := f.errs[acct.EntryID]; ok {
		return account.AccountSnapshot{}, err
	}
	snap, ok := f.snapshots[acct.EntryID]
	if !ok {
		return account.AccountSnapshot{}, upstream.ErrNoData
	}
	return snap, nil
}

func TestRunOncePollsAllEntries(t *testing.T) {
	store := memory.NewStore()
	engine := testEngine(t, store, fixedClock{t: localTime(2026, 1, 15, 8, 0)})
	fetcher := &stubFetcher{snapshots: map[string]account.AccountSnapshot{
		"entry-1": {Balance: 500, LadderTiers: testTiers()},
		"entry-2": {Balance: 200, LadderTiers: testTiers()},
	}}
	entries := []EntryConfig{
		{EntryID: "entry-1", PaymentNo: "p1"},
		{EntryID: "entry-2", PaymentNo: "p2"},
	}
	scheduler, err := NewScheduler(engine, fetcher, entries, time.Minute, nil)
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	scheduler.RunOnce(context.Background())

	if fetcher.calls != 2 {
		t.Fatalf("expected 2 fetches, got %d", fetcher.calls)
	}
	for _, id := range []string{"entry-1", "entry-2"} {
		result, ok := scheduler.Latest(id)
		if !ok {
			t.Fatalf("no cached result for %s", id)
		}
		if result.EntryID != id {
			t.Fatalf("cached result entry mismatch: %+v", result)
		}
	}
}

func TestFetchFailureSkipsReconciliation(t *testing.T) {
	store := memory.NewStore()
	engine := testEngine(t, store, fixedClock{t: localTime(2026, 1, 15, 8, 0)})
	fetcher := &stubFetcher{errs: map[string]error{
		"entry-1": fmt.Errorf("%w: token expired", upstream.ErrAuthExpired),
	}}
	scheduler, err := NewScheduler(engine, fetcher, []EntryConfig{{EntryID: "entry-1", PaymentNo: "p1"}}, time.Minute, nil)
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	scheduler.RunOnce(context.Background())

	if _, ok := scheduler.Latest("entry-1"); ok {
		t.Fatal("failed fetch must not produce a cycle result")
	}
	state, err := store.Load(context.Background(), "entry-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if state.Initialized {
		t.Fatal("failed fetch must leave persisted state untouched")
	}
}

func TestStartStopsOnContextCancel(t *testing.T) {
	store := memory.NewStore()
	engine := testEngine(t, store, fixedClock{t: localTime(2026, 1, 15, 8, 0)})
	fetcher := &stubFetcher{snapshots: map[string]account.AccountSnapshot{
		"entry-1": {Balance: 500, LadderTiers: testTiers()},
	}}
	scheduler, err := NewScheduler(engine, fetcher, []EntryConfig{{EntryID: "entry-1", PaymentNo: "p1"}}, time.Hour, nil)
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		scheduler.Start(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop on cancel")
	}
	if fetcher.calls == 0 {
		t.Fatal("expected at least the immediate poll round")
	}
}

var _ Fetcher = (*stubFetcher)(nil)
