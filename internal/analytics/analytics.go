// Package analytics keeps lightweight delivery counters per content, target
// and day, for operator reporting. Counters live in memory; they are an
// operational aid, not an audit trail.
package analytics

import (
	"sort"
	"sync"
	"time"

	"relaybot/internal/transport"
)

type key struct {
	ad     string
	target transport.ChatTarget
	day    string // YYYY-MM-DD in UTC
}

// Tracker accumulates sent/failed counts. Safe for concurrent use.
type Tracker struct {
	mu     sync.Mutex
	sent   map[key]int
	failed map[key]int
	now    func() time.Time
}

func NewTracker() *Tracker {
	return &Tracker{
		sent:   map[key]int{},
		failed: map[key]int{},
		now:    time.Now,
	}
}

func (t *Tracker) day() string {
	return t.now().UTC().Format("2006-01-02")
}

func (t *Tracker) RecordSent(ad string, target transport.ChatTarget) {
	k := key{ad: ad, target: target, day: t.day()}
	t.mu.Lock()
	t.sent[k]++
	t.mu.Unlock()
}

func (t *Tracker) RecordFailed(ad string, target transport.ChatTarget) {
	k := key{ad: ad, target: target, day: t.day()}
	t.mu.Lock()
	t.failed[k]++
	t.mu.Unlock()
}

// DaySummary aggregates one day's traffic per content name.
type DaySummary struct {
	Day     string
	Ad      string
	Sent    int
	Failed  int
	Targets int
}

// Summary returns per-ad totals for the given day (UTC, YYYY-MM-DD), sorted
// by ad name. An empty day means today.
func (t *Tracker) Summary(day string) []DaySummary {
	if day == "" {
		day = t.day()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	type agg struct {
		sent, failed int
		targets      map[transport.ChatTarget]struct{}
	}
	byAd := map[string]*agg{}
	get := func(ad string) *agg {
		a := byAd[ad]
		if a == nil {
			a = &agg{targets: map[transport.ChatTarget]struct{}{}}
			byAd[ad] = a
		}
		return a
	}
	for k, n := range t.sent {
		if k.day != day {
			continue
		}
		a := get(k.ad)
		a.sent += n
		a.targets[k.target] = struct{}{}
	}
	for k, n := range t.failed {
		if k.day != day {
			continue
		}
		a := get(k.ad)
		a.failed += n
		a.targets[k.target] = struct{}{}
	}

	out := make([]DaySummary, 0, len(byAd))
	for ad, a := range byAd {
		out = append(out, DaySummary{
			Day:     day,
			Ad:      ad,
			Sent:    a.sent,
			Failed:  a.failed,
			Targets: len(a.targets),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ad < out[j].Ad })
	return out
}

// TotalSent returns the all-time sent count for one content name.
func (t *Tracker) TotalSent(ad string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	total := 0
	for k, n := range t.sent {
		if k.ad == ad {
			total += n
		}
	}
	return total
}
