// Package campaign holds the campaign registry, the per-campaign forwarding
// engine and the service that owns their lifecycles.
package campaign

import (
	"time"

	"relaybot/internal/transport"
)

// Kind describes how a campaign recurs. It informs dashboard grouping;
// the engine only cares that one-shot and broadcast campaigns finish after a
// single round.
type Kind string

const (
	KindContinuous Kind = "continuous"
	KindOneShot    Kind = "one-shot"
	KindScheduled  Kind = "scheduled"
	KindBroadcast  Kind = "broadcast"
)

// singleRound reports whether the campaign completes after one round.
func (k Kind) singleRound() bool {
	return k == KindOneShot || k == KindBroadcast
}

// State is the campaign lifecycle state. Terminal states are sticky.
type State string

const (
	StateRunning   State = "running"
	StateSending   State = "sending"
	StateWaiting   State = "waiting"
	StateStopped   State = "stopped"
	StateCancelled State = "cancelled"
	StateCompleted State = "completed"
	StateError     State = "error"
)

// Terminal reports whether no further transitions can occur.
func (s State) Terminal() bool {
	switch s {
	case StateStopped, StateCancelled, StateCompleted, StateError:
		return true
	}
	return false
}

// Active is the dashboard's grouping predicate.
func (s State) Active() bool { return !s.Terminal() }

// campaign is the registry's internal record. All mutation goes through the
// registry so the single registry mutex covers every field.
type campaign struct {
	id         string
	messageRef string
	targets    []transport.ChatTarget
	interval   time.Duration
	kind       Kind

	state           State
	roundsCompleted int
	totalSent       int
	failedSends     int
	currentFailures map[transport.ChatTarget]string
	lastError       string

	startTime     time.Time
	nextRoundTime time.Time
}

// Snapshot is an immutable copy of a campaign's observable state.
type Snapshot struct {
	ID         string
	MessageRef string
	Targets    []transport.ChatTarget
	Interval   time.Duration
	Kind       Kind

	State           State
	RoundsCompleted int
	TotalSent       int
	FailedSends     int
	CurrentFailures map[transport.ChatTarget]string
	LastError       string

	StartTime     time.Time
	NextRoundTime time.Time
}

// SuccessRate is cumulative over the campaign's whole lifetime:
// sent / (sent + failed). The second return is false when nothing has been
// attempted yet.
func (s Snapshot) SuccessRate() (float64, bool) {
	den := s.TotalSent + s.FailedSends
	if den == 0 {
		return 0, false
	}
	r := float64(s.TotalSent) / float64(den)
	if r > 1 {
		r = 1
	}
	return r, true
}

func (c *campaign) snapshot() Snapshot {
	cf := make(map[transport.ChatTarget]string, len(c.currentFailures))
	for k, v := range c.currentFailures {
		cf[k] = v
	}
	return Snapshot{
		ID:              c.id,
		MessageRef:      c.messageRef,
		Targets:         append([]transport.ChatTarget(nil), c.targets...),
		Interval:        c.interval,
		Kind:            c.kind,
		State:           c.state,
		RoundsCompleted: c.roundsCompleted,
		TotalSent:       c.totalSent,
		FailedSends:     c.failedSends,
		CurrentFailures: cf,
		LastError:       c.lastError,
		StartTime:       c.startTime,
		NextRoundTime:   c.nextRoundTime,
	}
}
