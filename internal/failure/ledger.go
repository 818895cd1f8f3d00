package failure

import (
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	"relaybot/internal/transport"
)

const (
	maxDetailLen  = 256
	maxHistoryLen = 50
)

// truncateDetail caps detail text at maxDetailLen bytes without cutting a
// UTF-8 sequence in half.
func truncateDetail(s string) string {
	if len(s) <= maxDetailLen {
		return s
	}
	cut := maxDetailLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// Retryable reports whether a delivery that failed for this reason is worth
// attempting again later. Bans, missing chats and permission problems do not
// fix themselves; rate limits and network trouble do.
func (r Reason) Retryable() bool {
	switch r {
	case ReasonRateLimited, ReasonConnectionError, ReasonOther:
		return true
	}
	return false
}

// Record is the aggregated failure history for one target across all
// campaigns. FailedCount only grows; Reason and Detail reflect the most
// recent failure.
type Record struct {
	Target       transport.ChatTarget
	Reason       Reason
	Detail       string
	FirstFailure time.Time
	LastAttempt  time.Time
	FailedCount  int
	CampaignIDs  []string
	History      []Occurrence
}

// Occurrence is a single recorded failure.
type Occurrence struct {
	At         time.Time
	CampaignID string
	Reason     Reason
	Detail     string
}

type record struct {
	reason       Reason
	detail       string
	firstFailure time.Time
	lastAttempt  time.Time
	failedCount  int
	campaignIDs  map[string]struct{}
	history      []Occurrence
}

// Ledger tracks delivery failures per target, shared by every campaign
// engine. Entries are created on first failure and removed only by operator
// action or after a successful retry, never by the engines themselves.
// All methods are safe for concurrent use.
type Ledger struct {
	mu      sync.Mutex
	entries map[transport.ChatTarget]*record
	now     func() time.Time
}

func NewLedger() *Ledger {
	return &Ledger{
		entries: make(map[transport.ChatTarget]*record),
		now:     time.Now,
	}
}

// Record classifies errText and stores the occurrence. Detail text is
// truncated so a pathological error string cannot bloat the ledger.
func (l *Ledger) Record(target transport.ChatTarget, campaignID, errText string) Reason {
	reason := Classify(errText)
	errText = truncateDetail(errText)
	at := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	r := l.entries[target]
	if r == nil {
		r = &record{
			firstFailure: at,
			campaignIDs:  map[string]struct{}{},
		}
		l.entries[target] = r
	}
	r.reason = reason
	r.detail = errText
	r.failedCount++
	r.lastAttempt = at
	r.campaignIDs[campaignID] = struct{}{}
	r.history = append(r.history, Occurrence{At: at, CampaignID: campaignID, Reason: reason, Detail: errText})
	if len(r.history) > maxHistoryLen {
		r.history = r.history[len(r.history)-maxHistoryLen:]
	}
	return reason
}

// Get returns a copy of the record for one target, if any.
func (l *Ledger) Get(target transport.ChatTarget) (Record, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	r := l.entries[target]
	if r == nil {
		return Record{}, false
	}
	return l.export(target, r), true
}

// ListFilter narrows List results. Zero value means no filtering.
type ListFilter struct {
	Reason Reason // match this reason only, when non-empty
}

// List returns records matching the filter, most recent failure first.
func (l *Ledger) List(f ListFilter) []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Record, 0, len(l.entries))
	for t, r := range l.entries {
		if f.Reason != "" && r.reason != f.Reason {
			continue
		}
		out = append(out, l.export(t, r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastAttempt.After(out[j].LastAttempt) })
	return out
}

// RetryCandidates returns targets whose most recent failure is retryable.
// With a non-empty targets argument only those targets are considered.
// The ledger itself is not mutated; resending is the caller's job.
func (l *Ledger) RetryCandidates(targets []transport.ChatTarget) []transport.ChatTarget {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []transport.ChatTarget
	if targets != nil {
		for _, t := range targets {
			if r := l.entries[t]; r != nil && r.reason.Retryable() {
				out = append(out, t)
			}
		}
		return out
	}
	for t, r := range l.entries {
		if r.reason.Retryable() {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ChatID != out[j].ChatID {
			return out[i].ChatID < out[j].ChatID
		}
		return out[i].ThreadID < out[j].ThreadID
	})
	return out
}

// Remove drops the records for the given targets and returns how many
// existed.
func (l *Ledger) Remove(targets []transport.ChatTarget) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, t := range targets {
		if _, ok := l.entries[t]; ok {
			delete(l.entries, t)
			n++
		}
	}
	return n
}

// RemoveAll clears the ledger and returns how many records were held.
func (l *Ledger) RemoveAll() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := len(l.entries)
	l.entries = make(map[transport.ChatTarget]*record)
	return n
}

func (l *Ledger) export(t transport.ChatTarget, r *record) Record {
	ids := make([]string, 0, len(r.campaignIDs))
	for id := range r.campaignIDs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return Record{
		Target:       t,
		Reason:       r.reason,
		Detail:       r.detail,
		FirstFailure: r.firstFailure,
		LastAttempt:  r.lastAttempt,
		FailedCount:  r.failedCount,
		CampaignIDs:  ids,
		History:      append([]Occurrence(nil), r.history...),
	}
}
