package failure

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"relaybot/internal/transport"
)

func testLedger() (*Ledger, func(d time.Duration)) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l := NewLedger()
	l.now = func() time.Time { return now }
	return l, func(d time.Duration) { now = now.Add(d) }
}

func TestLedgerRecordAndGet(t *testing.T) {
	t.Parallel()
	l, advance := testLedger()
	tgt := transport.ChatTarget{ChatID: -100123}

	if got := l.Record(tgt, "c1", "Too Many Requests: retry after 14"); got != ReasonRateLimited {
		t.Fatalf("Record reason = %q", got)
	}
	advance(time.Minute)
	l.Record(tgt, "c2", "Forbidden: bot was banned from the group chat")

	r, ok := l.Get(tgt)
	if !ok {
		t.Fatal("record not found")
	}
	if r.Reason != ReasonBanned {
		t.Fatalf("reason = %q, want latest %q", r.Reason, ReasonBanned)
	}
	if r.FailedCount != 2 {
		t.Fatalf("failed count = %d, want 2", r.FailedCount)
	}
	if !r.LastAttempt.After(r.FirstFailure) {
		t.Fatalf("LastAttempt %v not after FirstFailure %v", r.LastAttempt, r.FirstFailure)
	}
	if len(r.CampaignIDs) != 2 || r.CampaignIDs[0] != "c1" || r.CampaignIDs[1] != "c2" {
		t.Fatalf("campaign ids = %v", r.CampaignIDs)
	}
	if len(r.History) != 2 || r.History[1].CampaignID != "c2" {
		t.Fatalf("history = %v", r.History)
	}
}

func TestLedgerDetailTruncated(t *testing.T) {
	t.Parallel()
	l, _ := testLedger()
	tgt := transport.ChatTarget{ChatID: 1}

	l.Record(tgt, "c1", strings.Repeat("x", 4096))
	r, _ := l.Get(tgt)
	if len(r.Detail) != maxDetailLen {
		t.Fatalf("detail len = %d, want %d", len(r.Detail), maxDetailLen)
	}

	// The cut must land on a rune boundary even when a multi-byte
	// character straddles the limit.
	tgt2 := transport.ChatTarget{ChatID: 2}
	l.Record(tgt2, "c1", strings.Repeat("x", maxDetailLen-1)+"日本語")
	r2, _ := l.Get(tgt2)
	if !utf8.ValidString(r2.Detail) {
		t.Fatalf("detail is not valid UTF-8: %q", r2.Detail)
	}
	if len(r2.Detail) != maxDetailLen-1 {
		t.Fatalf("detail len = %d, want %d", len(r2.Detail), maxDetailLen-1)
	}
}

func TestLedgerHistoryBounded(t *testing.T) {
	t.Parallel()
	l, advance := testLedger()
	tgt := transport.ChatTarget{ChatID: 1}

	for i := 0; i < maxHistoryLen+5; i++ {
		l.Record(tgt, "c1", "connection timeout")
		advance(time.Second)
	}
	r, _ := l.Get(tgt)
	if len(r.History) != maxHistoryLen {
		t.Fatalf("history len = %d, want %d", len(r.History), maxHistoryLen)
	}
	if r.FailedCount != maxHistoryLen+5 {
		t.Fatalf("failed count = %d, want %d", r.FailedCount, maxHistoryLen+5)
	}
}

func TestLedgerListFilter(t *testing.T) {
	t.Parallel()
	l, advance := testLedger()

	l.Record(transport.ChatTarget{ChatID: 1}, "c1", "bot was banned")
	advance(time.Minute)
	l.Record(transport.ChatTarget{ChatID: 2}, "c1", "chat not found")
	advance(time.Minute)
	l.Record(transport.ChatTarget{ChatID: 3}, "c2", "bot was banned")

	all := l.List(ListFilter{})
	if len(all) != 3 {
		t.Fatalf("len(all) = %d", len(all))
	}
	if all[0].Target.ChatID != 3 {
		t.Fatalf("most recent first: got chat %d", all[0].Target.ChatID)
	}

	banned := l.List(ListFilter{Reason: ReasonBanned})
	if len(banned) != 2 {
		t.Fatalf("banned = %v", banned)
	}
}

func TestLedgerRetryCandidates(t *testing.T) {
	t.Parallel()
	l, _ := testLedger()

	l.Record(transport.ChatTarget{ChatID: 1}, "c1", "bot was banned")
	l.Record(transport.ChatTarget{ChatID: 2}, "c1", "retry after 5")
	l.Record(transport.ChatTarget{ChatID: 3}, "c1", "connection timeout")

	got := l.RetryCandidates(nil)
	if len(got) != 2 || got[0].ChatID != 2 || got[1].ChatID != 3 {
		t.Fatalf("candidates = %v", got)
	}

	// Restricting to explicit targets only considers those.
	got = l.RetryCandidates([]transport.ChatTarget{{ChatID: 1}, {ChatID: 3}, {ChatID: 9}})
	if len(got) != 1 || got[0].ChatID != 3 {
		t.Fatalf("restricted candidates = %v", got)
	}

	// Candidates never mutate the ledger.
	if _, ok := l.Get(transport.ChatTarget{ChatID: 2}); !ok {
		t.Fatal("entry removed by RetryCandidates")
	}
}

func TestLedgerRemove(t *testing.T) {
	t.Parallel()
	l, _ := testLedger()

	l.Record(transport.ChatTarget{ChatID: 1}, "c1", "bot was banned")
	l.Record(transport.ChatTarget{ChatID: 2}, "c1", "chat not found")

	if n := l.Remove([]transport.ChatTarget{{ChatID: 1}, {ChatID: 7}}); n != 1 {
		t.Fatalf("Remove = %d, want 1", n)
	}
	if n := l.RemoveAll(); n != 1 {
		t.Fatalf("RemoveAll = %d, want 1", n)
	}
	if got := l.List(ListFilter{}); len(got) != 0 {
		t.Fatalf("List after RemoveAll = %v", got)
	}
}
