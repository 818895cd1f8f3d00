// Package dashboard renders campaign state as text and drives the live
// status monitor that edits a status message in place.
package dashboard

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"relaybot/internal/campaign"
	"relaybot/internal/transport"
)

const maxFailuresShown = 5

// Filter narrows an overview rendering. Zero value shows everything.
type Filter struct {
	State campaign.State
	Kind  campaign.Kind
}

func (f Filter) match(s campaign.Snapshot) bool {
	if f.State != "" && s.State != f.State {
		return false
	}
	if f.Kind != "" && s.Kind != f.Kind {
		return false
	}
	return true
}

// RenderOverview formats the campaign set grouped into active and inactive,
// with aggregate totals. Pure function over the snapshots.
func RenderOverview(snaps []campaign.Snapshot, f Filter, now time.Time) string {
	var active, inactive []campaign.Snapshot
	totalSent, totalFailed := 0, 0
	for _, s := range snaps {
		if !f.match(s) {
			continue
		}
		totalSent += s.TotalSent
		totalFailed += s.FailedSends
		if s.State.Active() {
			active = append(active, s)
		} else {
			inactive = append(inactive, s)
		}
	}

	var b strings.Builder
	b.WriteString("Campaigns\n")
	fmt.Fprintf(&b, "active: %d | inactive: %d\n", len(active), len(inactive))
	fmt.Fprintf(&b, "total sent: %d | total failed: %d | success rate: %s\n",
		totalSent, totalFailed, rateText(totalSent, totalFailed))

	if len(active) > 0 {
		b.WriteString("\nActive:\n")
		for _, s := range active {
			writeLine(&b, s, now)
		}
	}
	if len(inactive) > 0 {
		b.WriteString("\nInactive:\n")
		for _, s := range inactive {
			writeLine(&b, s, now)
		}
	}
	if len(active)+len(inactive) == 0 {
		b.WriteString("\nno campaigns\n")
	}
	return b.String()
}

func writeLine(b *strings.Builder, s campaign.Snapshot, now time.Time) {
	fmt.Fprintf(b, "- %s [%s/%s] ad=%s targets=%d rounds=%d sent=%d failed=%d",
		s.ID, s.Kind, s.State, s.MessageRef, len(s.Targets),
		s.RoundsCompleted, s.TotalSent, s.FailedSends)
	if s.State == campaign.StateWaiting && !s.NextRoundTime.IsZero() {
		fmt.Fprintf(b, " next in %s", fmtDuration(etaTo(s.NextRoundTime, now)))
	}
	if s.State == campaign.StateError && s.LastError != "" {
		fmt.Fprintf(b, " err=%s", s.LastError)
	}
	b.WriteByte('\n')
}

// RenderLive formats one campaign's in-flight view for the live monitor.
func RenderLive(s campaign.Snapshot, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Campaign %s (%s)\n", s.ID, s.Kind)
	fmt.Fprintf(&b, "state: %s | round: %d\n", s.State, s.RoundsCompleted+liveRoundOffset(s))
	fmt.Fprintf(&b, "sent: %d | failed: %d | success rate: %s\n",
		s.TotalSent, s.FailedSends, rateText(s.TotalSent, s.FailedSends))
	fmt.Fprintf(&b, "running: %s", fmtDuration(now.Sub(s.StartTime)))
	if !s.NextRoundTime.IsZero() && s.State == campaign.StateWaiting {
		fmt.Fprintf(&b, " | next round in: %s", fmtDuration(etaTo(s.NextRoundTime, now)))
	}
	b.WriteByte('\n')

	if len(s.CurrentFailures) > 0 {
		fmt.Fprintf(&b, "failures this round: %d\n", len(s.CurrentFailures))
		tgts := make([]transport.ChatTarget, 0, len(s.CurrentFailures))
		for t := range s.CurrentFailures {
			tgts = append(tgts, t)
		}
		sort.Slice(tgts, func(i, j int) bool {
			if tgts[i].ChatID != tgts[j].ChatID {
				return tgts[i].ChatID < tgts[j].ChatID
			}
			return tgts[i].ThreadID < tgts[j].ThreadID
		})
		shown := len(tgts)
		if shown > maxFailuresShown {
			shown = maxFailuresShown
		}
		for _, t := range tgts[:shown] {
			fmt.Fprintf(&b, "- %s: %s\n", targetText(t), s.CurrentFailures[t])
		}
		if rest := len(tgts) - shown; rest > 0 {
			fmt.Fprintf(&b, "+%d more\n", rest)
		}
	}
	return b.String()
}

// RenderFinal formats the one-time summary pushed when a campaign reaches a
// terminal state.
func RenderFinal(s campaign.Snapshot, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Campaign %s finished: %s\n", s.ID, s.State)
	fmt.Fprintf(&b, "total sent: %d | total failed: %d | success rate: %s\n",
		s.TotalSent, s.FailedSends, rateText(s.TotalSent, s.FailedSends))
	avg := 0.0
	if s.RoundsCompleted > 0 {
		avg = float64(s.TotalSent) / float64(s.RoundsCompleted)
	}
	fmt.Fprintf(&b, "rounds: %d | avg sends/round: %.1f\n", s.RoundsCompleted, avg)
	fmt.Fprintf(&b, "total runtime: %s\n", fmtDuration(now.Sub(s.StartTime)))
	if s.State == campaign.StateError && s.LastError != "" {
		fmt.Fprintf(&b, "error: %s\n", s.LastError)
	}
	return b.String()
}

func rateText(sent, failed int) string {
	den := sent + failed
	if den == 0 {
		return "N/A"
	}
	r := float64(sent) / float64(den) * 100
	if r > 100 {
		r = 100
	}
	return fmt.Sprintf("%.1f%%", r)
}

// etaTo clamps at zero so a stale next_round_time never renders negative.
func etaTo(next, now time.Time) time.Duration {
	d := next.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

func fmtDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return d.Round(time.Second).String()
}

func targetText(t transport.ChatTarget) string {
	if t.ThreadID != 0 {
		return fmt.Sprintf("%d/%d", t.ChatID, t.ThreadID)
	}
	return fmt.Sprintf("%d", t.ChatID)
}

// liveRoundOffset makes the round counter show the round in progress while
// sending: rounds_completed only increments at round end.
func liveRoundOffset(s campaign.Snapshot) int {
	if s.State == campaign.StateSending || s.State == campaign.StateRunning {
		return 1
	}
	return 0
}
