package campaign

import (
	"errors"
	"testing"
	"time"

	"relaybot/internal/transport"
)

func targets(n int) []transport.ChatTarget {
	out := make([]transport.ChatTarget, n)
	for i := range out {
		out[i] = transport.ChatTarget{ChatID: -int64(1000 + i)}
	}
	return out
}

func TestRegistryCreate(t *testing.T) {
	t.Parallel()
	r := NewRegistry(0)

	snap, err := r.Create(CreateSpec{
		ID:         "c1",
		MessageRef: "promo",
		Targets:    targets(3),
		Interval:   time.Minute,
		Kind:       KindContinuous,
	})
	if err != nil {
		t.Fatal(err)
	}
	if snap.State != StateRunning {
		t.Fatalf("state = %q, want running", snap.State)
	}
	if snap.StartTime.IsZero() {
		t.Fatal("start time not set")
	}

	// Duplicate IDs are rejected.
	if _, err := r.Create(CreateSpec{ID: "c1", MessageRef: "promo", Targets: targets(1), Interval: time.Minute}); !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("duplicate: err = %v", err)
	}

	// Generated IDs are unique and non-empty.
	a, err := r.Create(CreateSpec{MessageRef: "promo", Targets: targets(1), Interval: time.Minute})
	if err != nil {
		t.Fatal(err)
	}
	b, err := r.Create(CreateSpec{MessageRef: "promo", Targets: targets(1), Interval: time.Minute})
	if err != nil {
		t.Fatal(err)
	}
	if a.ID == "" || a.ID == b.ID {
		t.Fatalf("generated ids: %q, %q", a.ID, b.ID)
	}
}

func TestRegistryCreateValidation(t *testing.T) {
	t.Parallel()
	r := NewRegistry(60 * time.Second)

	if _, err := r.Create(CreateSpec{MessageRef: "promo", Interval: time.Minute}); !errors.Is(err, ErrNoTargets) {
		t.Fatalf("no targets: err = %v", err)
	}

	// Interval below the minimum is rejected for recurring campaigns.
	if _, err := r.Create(CreateSpec{MessageRef: "promo", Targets: targets(1), Interval: 59 * time.Second}); !errors.Is(err, ErrIntervalTooShort) {
		t.Fatalf("short interval: err = %v", err)
	}
	if _, err := r.Create(CreateSpec{MessageRef: "promo", Targets: targets(1), Interval: 60 * time.Second}); err != nil {
		t.Fatalf("exact minimum rejected: %v", err)
	}

	// One-shot campaigns don't need an interval.
	if _, err := r.Create(CreateSpec{MessageRef: "promo", Targets: targets(1), Kind: KindOneShot}); err != nil {
		t.Fatalf("one-shot: %v", err)
	}

	// Cron-driven scheduled campaigns carry no interval; cron itself bounds
	// the frequency, so the minimum-interval check does not apply.
	cron, err := ParseSchedule("0 9 * * *")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Create(CreateSpec{MessageRef: "promo", Targets: targets(1), Kind: KindScheduled, Schedule: &cron}); err != nil {
		t.Fatalf("cron schedule: %v", err)
	}

	// Interval-driven schedules still go through the check.
	every, err := ParseSchedule("30s")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Create(CreateSpec{MessageRef: "promo", Targets: targets(1), Kind: KindScheduled, Interval: every.Every, Schedule: &every}); !errors.Is(err, ErrIntervalTooShort) {
		t.Fatalf("short interval schedule: err = %v", err)
	}
}

func TestRegistryTerminalStatesSticky(t *testing.T) {
	t.Parallel()
	r := NewRegistry(0)
	snap, err := r.Create(CreateSpec{ID: "c1", MessageRef: "m", Targets: targets(1), Interval: time.Minute})
	if err != nil {
		t.Fatal(err)
	}

	if _, applied := r.SetState(snap.ID, StateCancelled); !applied {
		t.Fatal("cancel not applied")
	}
	if got, applied := r.SetState(snap.ID, StateSending); applied || got.State != StateCancelled {
		t.Fatalf("terminal state not sticky: applied=%v state=%q", applied, got.State)
	}
	if _, ok := r.BeginRound(snap.ID); ok {
		t.Fatal("BeginRound succeeded on terminal campaign")
	}
	if _, ok := r.FinishRound(snap.ID, time.Now()); ok {
		t.Fatal("FinishRound succeeded on terminal campaign")
	}
}

func TestRegistryRoundBookkeeping(t *testing.T) {
	t.Parallel()
	r := NewRegistry(0)
	tgts := targets(2)
	snap, err := r.Create(CreateSpec{ID: "c1", MessageRef: "m", Targets: tgts, Interval: time.Minute})
	if err != nil {
		t.Fatal(err)
	}

	if _, ok := r.BeginRound(snap.ID); !ok {
		t.Fatal("BeginRound failed")
	}
	r.RecordSent(snap.ID, tgts[0])
	r.RecordFailure(snap.ID, tgts[1], "bot was banned")

	got, _ := r.Get(snap.ID)
	if got.State != StateSending || got.TotalSent != 1 || got.FailedSends != 1 {
		t.Fatalf("mid-round snapshot = %+v", got)
	}
	if got.CurrentFailures[tgts[1]] == "" {
		t.Fatal("current failure missing")
	}

	next := time.Now().Add(time.Minute)
	fin, _ := r.FinishRound(snap.ID, next)
	if fin.State != StateWaiting || fin.RoundsCompleted != 1 || !fin.NextRoundTime.Equal(next) {
		t.Fatalf("after round = %+v", fin)
	}

	// The next round starts with a fresh failure map; counters survive.
	again, _ := r.BeginRound(snap.ID)
	if len(again.CurrentFailures) != 0 {
		t.Fatalf("current failures not cleared: %v", again.CurrentFailures)
	}
	if again.TotalSent != 1 || again.FailedSends != 1 {
		t.Fatalf("counters reset: %+v", again)
	}

	// A success for a previously failed target clears its stale entry.
	r.RecordFailure(snap.ID, tgts[1], "timeout")
	r.RecordSent(snap.ID, tgts[1])
	got, _ = r.Get(snap.ID)
	if _, stale := got.CurrentFailures[tgts[1]]; stale {
		t.Fatal("stale failure entry survived a success")
	}
}

func TestRegistryListAndClear(t *testing.T) {
	t.Parallel()
	r := NewRegistry(0)
	for _, id := range []string{"a", "b", "c"} {
		if _, err := r.Create(CreateSpec{ID: id, MessageRef: "m", Targets: targets(1), Interval: time.Minute}); err != nil {
			t.Fatal(err)
		}
	}
	if got := r.List(); len(got) != 3 {
		t.Fatalf("List = %d entries", len(got))
	}
	if !r.Remove("b") {
		t.Fatal("Remove(b) = false")
	}
	if removed := r.Clear(); len(removed) != 2 {
		t.Fatalf("Clear = %d entries", len(removed))
	}
	if got := r.List(); len(got) != 0 {
		t.Fatalf("registry not empty: %v", got)
	}
}

func TestSnapshotSuccessRate(t *testing.T) {
	t.Parallel()

	if _, ok := (Snapshot{}).SuccessRate(); ok {
		t.Fatal("rate defined with zero denominator")
	}
	rate, ok := Snapshot{TotalSent: 3, FailedSends: 1}.SuccessRate()
	if !ok || rate != 0.75 {
		t.Fatalf("rate = %v, %v", rate, ok)
	}
}
