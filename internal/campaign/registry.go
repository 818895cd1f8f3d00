package campaign

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"relaybot/internal/transport"
)

// DefaultMinInterval is the smallest round interval accepted for recurring
// campaigns; provider rate limits make anything shorter self-defeating.
const DefaultMinInterval = 60 * time.Second

var (
	ErrNotFound         = errors.New("campaign not found")
	ErrDuplicateID      = errors.New("campaign id already exists")
	ErrNoTargets        = errors.New("campaign needs at least one target")
	ErrIntervalTooShort = errors.New("interval below minimum")
)

// Registry is the single owner of campaign state. Engines and monitors look
// campaigns up by ID and mutate them only through this API; one mutex guards
// everything.
type Registry struct {
	mu          sync.Mutex
	byID        map[string]*campaign
	minInterval time.Duration
	now         func() time.Time
}

func NewRegistry(minInterval time.Duration) *Registry {
	if minInterval <= 0 {
		minInterval = DefaultMinInterval
	}
	return &Registry{
		byID:        make(map[string]*campaign),
		minInterval: minInterval,
		now:         time.Now,
	}
}

// CreateSpec describes a campaign to register.
type CreateSpec struct {
	ID         string // generated when empty
	MessageRef string
	Targets    []transport.ChatTarget
	Interval   time.Duration
	Kind       Kind
	Schedule   *Schedule // round timing for scheduled campaigns
}

// cronDriven reports whether round timing comes from a cron expression
// rather than a fixed interval.
func (s CreateSpec) cronDriven() bool {
	return s.Schedule != nil && s.Schedule.Kind == ScheduleCron
}

// Create registers a new campaign in state Running. Recurring kinds require
// an interval of at least the configured minimum; one-shot and broadcast
// campaigns ignore the interval, and cron-driven campaigns are exempt
// because cron bounds frequency at one minute on its own.
func (r *Registry) Create(spec CreateSpec) (Snapshot, error) {
	if len(spec.Targets) == 0 {
		return Snapshot{}, ErrNoTargets
	}
	if spec.Kind == "" {
		spec.Kind = KindContinuous
	}
	if !spec.Kind.singleRound() && !spec.cronDriven() && spec.Interval < r.minInterval {
		return Snapshot{}, fmt.Errorf("%w: %v < %v", ErrIntervalTooShort, spec.Interval, r.minInterval)
	}
	id := spec.ID
	if id == "" {
		id = uuid.NewString()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; ok {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}
	c := &campaign{
		id:              id,
		messageRef:      spec.MessageRef,
		targets:         append([]transport.ChatTarget(nil), spec.Targets...),
		interval:        spec.Interval,
		kind:            spec.Kind,
		state:           StateRunning,
		currentFailures: map[transport.ChatTarget]string{},
		startTime:       r.now(),
	}
	r.byID[id] = c
	return c.snapshot(), nil
}

func (r *Registry) Get(id string) (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if !ok {
		return Snapshot{}, false
	}
	return c.snapshot(), true
}

// List returns all campaigns sorted by start time, oldest first.
func (r *Registry) List() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Snapshot, 0, len(r.byID))
	for _, c := range r.byID {
		out = append(out, c.snapshot())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Remove drops a campaign from the registry entirely.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return false
	}
	delete(r.byID, id)
	return true
}

// Clear empties the registry and returns the removed snapshots.
func (r *Registry) Clear() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Snapshot, 0, len(r.byID))
	for _, c := range r.byID {
		out = append(out, c.snapshot())
	}
	r.byID = make(map[string]*campaign)
	return out
}

// SetState moves a campaign to the given state. Terminal states are sticky:
// once reached, further transitions are ignored. Returns the resulting
// snapshot and whether the transition was applied.
func (r *Registry) SetState(id string, s State) (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if !ok {
		return Snapshot{}, false
	}
	if c.state.Terminal() {
		return c.snapshot(), false
	}
	c.state = s
	return c.snapshot(), true
}

// Fail moves a campaign to Error and records the fatal error text.
func (r *Registry) Fail(id, errText string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if !ok || c.state.Terminal() {
		return
	}
	c.state = StateError
	c.lastError = errText
}

// BeginRound transitions to Sending and replaces current_failures with an
// empty map; failures repopulate it as the round progresses. Returns false
// when the campaign is missing or already terminal.
func (r *Registry) BeginRound(id string) (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if !ok || c.state.Terminal() {
		return Snapshot{}, false
	}
	c.state = StateSending
	c.currentFailures = map[transport.ChatTarget]string{}
	return c.snapshot(), true
}

// FinishRound transitions to Waiting, bumps rounds_completed and sets the
// next round time.
func (r *Registry) FinishRound(id string, next time.Time) (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if !ok || c.state.Terminal() {
		return Snapshot{}, false
	}
	c.state = StateWaiting
	c.roundsCompleted++
	c.nextRoundTime = next
	return c.snapshot(), true
}

// RecordSent bumps total_sent and clears any stale failure entry for the
// target from the current round.
func (r *Registry) RecordSent(id string, target transport.ChatTarget) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if !ok {
		return
	}
	c.totalSent++
	delete(c.currentFailures, target)
}

// RecordFailure bumps failed_sends and notes the target's last error for the
// current round.
func (r *Registry) RecordFailure(id string, target transport.ChatTarget, errText string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if !ok {
		return
	}
	c.failedSends++
	c.currentFailures[target] = errText
}
