package campaign

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"relaybot/internal/config"
	"relaybot/internal/failure"
	"relaybot/internal/message"
	"relaybot/internal/transport"
	"relaybot/pkg/logx"
)

type fakeClient struct {
	mu        sync.Mutex
	forwards  []transport.ChatTarget
	sendTexts []transport.ChatTarget
	errFor    map[int64]string // chatID -> error text returned by Forward
	onForward func(total int)  // called after each Forward, before returning
	panicOn   int64            // chatID that panics
}

func (f *fakeClient) Forward(_ context.Context, to transport.ChatTarget, _ transport.MessageRef) error {
	f.mu.Lock()
	if to.ChatID == f.panicOn {
		f.mu.Unlock()
		panic("client blew up")
	}
	f.forwards = append(f.forwards, to)
	n := len(f.forwards)
	hook := f.onForward
	errText := ""
	if f.errFor != nil {
		errText = f.errFor[to.ChatID]
	}
	f.mu.Unlock()

	if hook != nil {
		hook(n)
	}
	if errText != "" {
		return errors.New(errText)
	}
	return nil
}

func (f *fakeClient) SendText(_ context.Context, to transport.ChatTarget, _ string, _ *transport.SendOptions) (transport.MessageRef, error) {
	f.mu.Lock()
	f.sendTexts = append(f.sendTexts, to)
	f.mu.Unlock()
	return transport.MessageRef{}, nil
}

func (f *fakeClient) forwardCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.forwards)
}

func testSettings() config.EngineSettings {
	return config.EngineSettings{
		BatchSize:         20,
		MaxAttempts:       3,
		RetryDelay:        500 * time.Millisecond,
		RateLimitCooldown: 2 * time.Second,
		BatchDelay:        time.Second,
		ProgressEvery:     5,
		MinInterval:       time.Minute,
	}
}

type engineFixture struct {
	reg    *Registry
	ledger *failure.Ledger
	store  message.Store
	client *fakeClient
	eng    *Engine
	sleeps []time.Duration
}

func newEngineFixture(t *testing.T, spec CreateSpec, client *fakeClient) *engineFixture {
	t.Helper()
	f := &engineFixture{
		reg:    NewRegistry(0),
		ledger: failure.NewLedger(),
		store:  seedStore(t, spec.MessageRef),
		client: client,
	}
	snap, err := f.reg.Create(spec)
	if err != nil {
		t.Fatal(err)
	}
	f.eng = NewEngine(EngineParams{
		CampaignID: snap.ID,
		Registry:   f.reg,
		Ledger:     f.ledger,
		Store:      f.store,
		Client:     client,
		Log:        logx.Nop(),
		Settings:   testSettings(),
	})
	f.eng.sleep = func(ctx context.Context, d time.Duration) error {
		f.sleeps = append(f.sleeps, d)
		return ctx.Err()
	}
	return f
}

// seedStore returns a memory store pre-seeded with one ad.
func seedStore(t *testing.T, name string) message.Store {
	t.Helper()
	s := message.NewMemoryStore()
	err := s.SaveAd(context.Background(), message.Ad{
		Name:         name,
		Source:       transport.MessageRef{ChatID: 1, MessageID: 1},
		FallbackText: "fallback",
	})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestEngineOneShotBatches(t *testing.T) {
	t.Parallel()
	client := &fakeClient{}
	f := newEngineFixture(t, CreateSpec{
		ID: "c1", MessageRef: "promo", Targets: targets(45), Kind: KindOneShot,
	}, client)

	if err := f.eng.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	snap, _ := f.reg.Get("c1")
	if snap.State != StateCompleted {
		t.Fatalf("state = %q, want completed", snap.State)
	}
	if snap.TotalSent != 45 || snap.FailedSends != 0 {
		t.Fatalf("sent=%d failed=%d", snap.TotalSent, snap.FailedSends)
	}
	if snap.RoundsCompleted != 1 {
		t.Fatalf("rounds = %d, want 1", snap.RoundsCompleted)
	}
	if client.forwardCount() != 45 {
		t.Fatalf("forwards = %d, want 45", client.forwardCount())
	}

	// 45 targets at batch size 20 means 3 batches and 2 inter-batch sleeps.
	batchSleeps := 0
	for _, d := range f.sleeps {
		if d == testSettings().BatchDelay {
			batchSleeps++
		}
	}
	if batchSleeps != 2 {
		t.Fatalf("batch sleeps = %d (%v), want 2", batchSleeps, f.sleeps)
	}
}

func TestEngineRecordsFailures(t *testing.T) {
	t.Parallel()
	bad := targets(2)[1]
	client := &fakeClient{errFor: map[int64]string{bad.ChatID: "Forbidden: bot was banned from the group chat"}}
	f := newEngineFixture(t, CreateSpec{
		ID: "c1", MessageRef: "promo", Targets: targets(2), Kind: KindOneShot,
	}, client)

	if err := f.eng.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	snap, _ := f.reg.Get("c1")
	if snap.TotalSent != 1 || snap.FailedSends != 1 {
		t.Fatalf("sent=%d failed=%d", snap.TotalSent, snap.FailedSends)
	}
	if snap.CurrentFailures[bad] == "" {
		t.Fatal("current failure for banned target missing")
	}

	rec, ok := f.ledger.Get(bad)
	if !ok {
		t.Fatal("no ledger record")
	}
	if rec.Reason != failure.ReasonBanned {
		t.Fatalf("reason = %q, want banned", rec.Reason)
	}
	if rec.FailedCount != 1 {
		t.Fatalf("failed count = %d, want 1 (one exhausted delivery)", rec.FailedCount)
	}

	// Each failing target is attempted MaxAttempts times, successes once.
	if n := client.forwardCount(); n != 1+3 {
		t.Fatalf("forwards = %d, want 4", n)
	}
}

func TestEngineRateLimitCooldown(t *testing.T) {
	t.Parallel()
	tgt := targets(1)[0]
	client := &fakeClient{errFor: map[int64]string{tgt.ChatID: "Too Many Requests: retry after 3"}}
	f := newEngineFixture(t, CreateSpec{
		ID: "c1", MessageRef: "promo", Targets: []transport.ChatTarget{tgt}, Kind: KindOneShot,
	}, client)

	if err := f.eng.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	cooldowns := 0
	for _, d := range f.sleeps {
		if d == testSettings().RateLimitCooldown {
			cooldowns++
		}
	}
	if cooldowns != 2 {
		t.Fatalf("cooldown sleeps = %d (%v), want 2 between 3 attempts", cooldowns, f.sleeps)
	}
}

func TestEngineFallbackText(t *testing.T) {
	t.Parallel()
	tgt := targets(1)[0]
	client := &fakeClient{errFor: map[int64]string{tgt.ChatID: "Bad Request: message to forward not found"}}
	f := newEngineFixture(t, CreateSpec{
		ID: "c1", MessageRef: "promo", Targets: []transport.ChatTarget{tgt}, Kind: KindOneShot,
	}, client)

	if err := f.eng.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	snap, _ := f.reg.Get("c1")
	if snap.TotalSent != 1 || snap.FailedSends != 0 {
		t.Fatalf("sent=%d failed=%d; fallback text not used", snap.TotalSent, snap.FailedSends)
	}
	if len(client.sendTexts) != 1 {
		t.Fatalf("fallback sends = %d, want 1", len(client.sendTexts))
	}
}

func TestEngineStopsWhenContentRemoved(t *testing.T) {
	t.Parallel()
	client := &fakeClient{}
	f := newEngineFixture(t, CreateSpec{
		ID: "c1", MessageRef: "promo", Targets: targets(3), Kind: KindOneShot,
	}, client)
	if err := f.store.DeleteAd(context.Background(), "promo"); err != nil {
		t.Fatal(err)
	}

	if err := f.eng.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	snap, _ := f.reg.Get("c1")
	if snap.State != StateStopped {
		t.Fatalf("state = %q, want stopped", snap.State)
	}
	if client.forwardCount() != 0 {
		t.Fatalf("forwards = %d, want 0", client.forwardCount())
	}
}

func TestEngineCancelMidBatch(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	client := &fakeClient{}
	client.onForward = func(total int) {
		if total == 10 {
			cancel()
		}
	}
	f := newEngineFixture(t, CreateSpec{
		ID: "c1", MessageRef: "promo", Targets: targets(45), Kind: KindOneShot,
	}, client)

	if err := f.eng.Run(ctx); err != nil {
		t.Fatal(err)
	}

	snap, _ := f.reg.Get("c1")
	if snap.State != StateCancelled {
		t.Fatalf("state = %q, want cancelled", snap.State)
	}
	if n := client.forwardCount(); n != 10 {
		t.Fatalf("forwards after cancel = %d, want 10 (no sends past cancellation)", n)
	}
}

func TestEngineContinuousRounds(t *testing.T) {
	t.Parallel()
	client := &fakeClient{}
	f := newEngineFixture(t, CreateSpec{
		ID: "c1", MessageRef: "promo", Targets: targets(3), Interval: time.Minute, Kind: KindContinuous,
	}, client)

	// All sleeps here are round-boundary sleeps (single batch, no retries);
	// cancel during the second one.
	roundSleeps := 0
	f.eng.sleep = func(ctx context.Context, d time.Duration) error {
		roundSleeps++
		if roundSleeps == 2 {
			return context.Canceled
		}
		return nil
	}

	if err := f.eng.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	snap, _ := f.reg.Get("c1")
	if snap.State != StateCancelled {
		t.Fatalf("state = %q, want cancelled", snap.State)
	}
	if snap.RoundsCompleted != 2 {
		t.Fatalf("rounds = %d, want 2", snap.RoundsCompleted)
	}
	if snap.TotalSent != 6 {
		t.Fatalf("sent = %d, want 6", snap.TotalSent)
	}
	if snap.NextRoundTime.IsZero() {
		t.Fatal("next round time not set")
	}
}

func TestEnginePanicMovesToError(t *testing.T) {
	t.Parallel()
	tgts := targets(1)
	client := &fakeClient{panicOn: tgts[0].ChatID}
	f := newEngineFixture(t, CreateSpec{
		ID: "c1", MessageRef: "promo", Targets: tgts, Kind: KindOneShot,
	}, client)

	if err := f.eng.Run(context.Background()); err == nil {
		t.Fatal("Run returned nil after panic")
	}

	snap, _ := f.reg.Get("c1")
	if snap.State != StateError {
		t.Fatalf("state = %q, want error", snap.State)
	}
	if snap.LastError == "" {
		t.Fatal("last error not recorded")
	}
}
