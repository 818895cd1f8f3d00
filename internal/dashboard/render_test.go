package dashboard

import (
	"strings"
	"testing"
	"time"

	"relaybot/internal/campaign"
	"relaybot/internal/transport"
)

var renderNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func snapshotFor(id string, state campaign.State, sent, failed int) campaign.Snapshot {
	return campaign.Snapshot{
		ID:          id,
		MessageRef:  "promo",
		Kind:        campaign.KindContinuous,
		State:       state,
		TotalSent:   sent,
		FailedSends: failed,
		StartTime:   renderNow.Add(-time.Hour),
	}
}

func TestRenderOverviewGrouping(t *testing.T) {
	t.Parallel()

	snaps := []campaign.Snapshot{
		snapshotFor("a", campaign.StateWaiting, 10, 2),
		snapshotFor("b", campaign.StateSending, 5, 0),
		snapshotFor("c", campaign.StateCancelled, 3, 3),
	}
	out := RenderOverview(snaps, Filter{}, renderNow)

	if !strings.Contains(out, "active: 2 | inactive: 1") {
		t.Fatalf("grouping missing:\n%s", out)
	}
	if !strings.Contains(out, "total sent: 18 | total failed: 5") {
		t.Fatalf("totals missing:\n%s", out)
	}
	if !strings.Contains(out, "78.3%") {
		t.Fatalf("success rate missing:\n%s", out)
	}
	if !strings.Contains(out, "Active:") || !strings.Contains(out, "Inactive:") {
		t.Fatalf("sections missing:\n%s", out)
	}
}

func TestRenderOverviewEmptyRate(t *testing.T) {
	t.Parallel()
	out := RenderOverview(nil, Filter{}, renderNow)
	if !strings.Contains(out, "success rate: N/A") {
		t.Fatalf("zero denominator must render N/A:\n%s", out)
	}
	if !strings.Contains(out, "no campaigns") {
		t.Fatalf("empty marker missing:\n%s", out)
	}
}

func TestRenderOverviewFilter(t *testing.T) {
	t.Parallel()
	snaps := []campaign.Snapshot{
		snapshotFor("a", campaign.StateWaiting, 1, 0),
		snapshotFor("b", campaign.StateCancelled, 1, 0),
	}
	out := RenderOverview(snaps, Filter{State: campaign.StateCancelled}, renderNow)
	if strings.Contains(out, "- a ") || !strings.Contains(out, "- b ") {
		t.Fatalf("filter not applied:\n%s", out)
	}
}

func TestRenderLiveFailureCap(t *testing.T) {
	t.Parallel()
	s := snapshotFor("a", campaign.StateSending, 10, 8)
	s.CurrentFailures = map[transport.ChatTarget]string{}
	for i := 0; i < 8; i++ {
		s.CurrentFailures[transport.ChatTarget{ChatID: int64(100 + i)}] = "bot was banned"
	}

	out := RenderLive(s, renderNow)
	if !strings.Contains(out, "failures this round: 8") {
		t.Fatalf("failure count missing:\n%s", out)
	}
	if !strings.Contains(out, "+3 more") {
		t.Fatalf("overflow suffix missing:\n%s", out)
	}
	if got := strings.Count(out, "bot was banned"); got != maxFailuresShown {
		t.Fatalf("shown failures = %d, want %d:\n%s", got, maxFailuresShown, out)
	}
}

func TestRenderLiveETAClampsAtZero(t *testing.T) {
	t.Parallel()
	s := snapshotFor("a", campaign.StateWaiting, 1, 0)
	s.NextRoundTime = renderNow.Add(-time.Minute) // stale
	out := RenderLive(s, renderNow)
	if !strings.Contains(out, "next round in: 0s") {
		t.Fatalf("stale ETA must clamp to zero:\n%s", out)
	}
}

func TestRenderFinalSummary(t *testing.T) {
	t.Parallel()
	s := snapshotFor("a", campaign.StateCompleted, 90, 10)
	s.RoundsCompleted = 3
	out := RenderFinal(s, renderNow)

	for _, want := range []string{
		"finished: completed",
		"total sent: 90 | total failed: 10",
		"avg sends/round: 30.0",
		"total runtime: 1h0m0s",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q:\n%s", want, out)
		}
	}
}
