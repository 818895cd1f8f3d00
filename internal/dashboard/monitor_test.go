package dashboard

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"relaybot/internal/campaign"
	"relaybot/internal/config"
	"relaybot/internal/runtime/supervisor"
	"relaybot/internal/transport"
	"relaybot/pkg/logx"
)

type clock struct{ t time.Time }

type fakeSink struct {
	clock    *clock
	attempts []time.Time
	texts    []string
	respond  func(n int) error // reply for the nth attempt (1-based)
}

func (s *fakeSink) Push(_ context.Context, text string) error {
	s.attempts = append(s.attempts, s.clock.t)
	s.texts = append(s.texts, text)
	if s.respond != nil {
		return s.respond(len(s.attempts))
	}
	return nil
}

func monitorSettings() config.MonitorSettings {
	return config.MonitorSettings{
		MinPushSpacing: 5 * time.Second,
		RefreshActive:  2 * time.Second,
		RefreshIdle:    5 * time.Second,
	}
}

// newTestMonitor wires a monitor to a simulated clock: sleeps advance the
// clock instantly instead of waiting.
func newTestMonitor(t *testing.T, reg *campaign.Registry, sink *fakeSink) (*monitor, *clock, *[]time.Duration) {
	t.Helper()
	c := &clock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	sink.clock = c
	var sleeps []time.Duration
	m := &monitor{
		id:   "c1",
		reg:  reg,
		sink: sink,
		cfg:  monitorSettings(),
		log:  logx.Nop(),
	}
	m.now = func() time.Time { return c.t }
	m.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		c.t = c.t.Add(d)
		return ctx.Err()
	}
	return m, c, &sleeps
}

func sendingCampaign(t *testing.T, n int) *campaign.Registry {
	t.Helper()
	reg := campaign.NewRegistry(0)
	tgts := make([]transport.ChatTarget, n)
	for i := range tgts {
		tgts[i] = transport.ChatTarget{ChatID: -int64(1000 + i)}
	}
	if _, err := reg.Create(campaign.CreateSpec{
		ID: "c1", MessageRef: "promo", Targets: tgts, Interval: time.Minute,
	}); err != nil {
		t.Fatal(err)
	}
	if _, ok := reg.BeginRound("c1"); !ok {
		t.Fatal("BeginRound failed")
	}
	return reg
}

func TestMonitorMinPushSpacing(t *testing.T) {
	t.Parallel()
	reg := sendingCampaign(t, 3)

	ctx, cancel := context.WithCancel(context.Background())
	sink := &fakeSink{}
	sink.respond = func(n int) error {
		if n == 4 {
			cancel()
		}
		return nil
	}
	m, _, _ := newTestMonitor(t, reg, sink)

	if err := m.run(ctx); err != nil {
		t.Fatal(err)
	}

	if len(sink.attempts) < 4 {
		t.Fatalf("attempts = %d, want >= 4", len(sink.attempts))
	}
	// The Sending refresh rate (2s) is faster than the minimum spacing; the
	// gate must still keep pushes at least 5s apart.
	for i := 1; i < len(sink.attempts); i++ {
		if gap := sink.attempts[i].Sub(sink.attempts[i-1]); gap < 5*time.Second {
			t.Fatalf("pushes %d and %d only %v apart", i-1, i, gap)
		}
	}
}

func TestMonitorFloodWait(t *testing.T) {
	t.Parallel()
	reg := sendingCampaign(t, 1)

	ctx, cancel := context.WithCancel(context.Background())
	sink := &fakeSink{}
	sink.respond = func(n int) error {
		switch n {
		case 1:
			return errors.New("Too Many Requests: a wait of 12 seconds is required")
		default:
			cancel()
			return nil
		}
	}
	m, _, _ := newTestMonitor(t, reg, sink)

	if err := m.run(ctx); err != nil {
		t.Fatal(err)
	}
	if len(sink.attempts) < 2 {
		t.Fatalf("attempts = %d, want 2", len(sink.attempts))
	}
	// Suggested wait (12s) plus the 5s safety margin.
	if gap := sink.attempts[1].Sub(sink.attempts[0]); gap < 17*time.Second {
		t.Fatalf("retry after flood only %v, want >= 17s", gap)
	}
}

func TestMonitorTerminalSummary(t *testing.T) {
	t.Parallel()
	reg := sendingCampaign(t, 1)
	reg.SetState("c1", campaign.StateCancelled)

	sink := &fakeSink{}
	m, _, _ := newTestMonitor(t, reg, sink)

	if err := m.run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(sink.attempts) != 1 {
		t.Fatalf("attempts = %d, want exactly one final push", len(sink.attempts))
	}
	if !strings.Contains(sink.texts[0], "finished: cancelled") {
		t.Fatalf("final text = %q", sink.texts[0])
	}
}

func TestMonitorDetachesWhenMessageGone(t *testing.T) {
	t.Parallel()
	reg := sendingCampaign(t, 1)

	sink := &fakeSink{}
	sink.respond = func(int) error {
		return errors.New("Bad Request: message to edit not found")
	}
	m, _, _ := newTestMonitor(t, reg, sink)

	if err := m.run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(sink.attempts) != 1 {
		t.Fatalf("attempts = %d, want 1 (detach on first miss)", len(sink.attempts))
	}
	// The campaign itself is untouched.
	if snap, _ := reg.Get("c1"); snap.State != campaign.StateSending {
		t.Fatalf("campaign state = %q, monitor must not touch it", snap.State)
	}
}

func TestMonitorBackoffAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()
	reg := sendingCampaign(t, 1)

	ctx, cancel := context.WithCancel(context.Background())
	sink := &fakeSink{}
	sink.respond = func(n int) error {
		if n == 6 {
			cancel()
		}
		return errors.New("something novel happened")
	}
	m, _, sleeps := newTestMonitor(t, reg, sink)

	if err := m.run(ctx); err != nil {
		t.Fatal(err)
	}

	// Failures 1-2 wait the idle refresh; from the 3rd consecutive failure
	// the wait grows exponentially: 2s, 4s, 8s.
	var backoffs []time.Duration
	for _, d := range *sleeps {
		if d != monitorSettings().RefreshIdle && d != monitorSettings().MinPushSpacing {
			backoffs = append(backoffs, d)
		}
	}
	want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}
	if len(backoffs) < len(want) {
		t.Fatalf("backoffs = %v, want at least %v", backoffs, want)
	}
	for i, w := range want {
		if backoffs[i] != w {
			t.Fatalf("backoff %d = %v, want %v (all: %v)", i, backoffs[i], w, backoffs)
		}
	}
}

func TestMonitorsAttachConflict(t *testing.T) {
	t.Parallel()
	reg := sendingCampaign(t, 1)
	sup := supervisor.New(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = sup.Stop(ctx)
	})

	mons := NewMonitors(reg, sup, monitorSettings(), logx.Nop())

	if err := mons.Attach("nope", &fakeSink{clock: &clock{}}); !errors.Is(err, campaign.ErrNotFound) {
		t.Fatalf("unknown campaign: err = %v", err)
	}
	if err := mons.Attach("c1", &fakeSink{clock: &clock{}}); err != nil {
		t.Fatal(err)
	}
	if err := mons.Attach("c1", &fakeSink{clock: &clock{}}); !errors.Is(err, ErrMonitorActive) {
		t.Fatalf("second attach: err = %v, want ErrMonitorActive", err)
	}
	if !mons.Detach("c1") {
		t.Fatal("Detach = false")
	}
}
