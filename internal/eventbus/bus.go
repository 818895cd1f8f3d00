package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Campaign lifecycle event types published on the bus. Subscribers (the
// dashboard, analytics) react to these; publishers never wait for them.
const (
	TypeCampaignStarted   = "campaign.started"
	TypeCampaignStopped   = "campaign.stopped"
	TypeCampaignCompleted = "campaign.completed"
	TypeCampaignFailed    = "campaign.failed"
	TypeRoundProgress     = "campaign.round_progress"
	TypeRoundFinished     = "campaign.round_finished"
	TypeDeliveryFailed    = "delivery.failed"
	TypeConfigReloaded    = "config.reloaded"
)

// CampaignData is the payload carried by campaign lifecycle events.
type CampaignData struct {
	ID     string `json:"id"`
	State  string `json:"state"`
	Sent   int    `json:"sent"`
	Failed int    `json:"failed"`
	Rounds int    `json:"rounds"`
}

// Event is an in-memory signal used to decouple components.
//
// Contract:
//   - Publish never blocks.
//   - Slow subscribers lose events rather than stalling publishers.
//
// Data should stay small.
type Event struct {
	Type string
	Time time.Time
	Data any
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
	Dropped() uint64
}

// New returns an in-memory fanout bus. It owns no background goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

type memBus struct {
	mu      sync.RWMutex
	subs    map[uint64]chan Event
	seq     atomic.Uint64
	dropped atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	// Snapshot subscribers so Publish doesn't hold the lock while sending.
	b.mu.RLock()
	chs := make([]chan Event, 0, len(b.subs))
	for _, ch := range b.subs {
		chs = append(chs, ch)
	}
	b.mu.RUnlock()

	for _, ch := range chs {
		// A subscriber may unsubscribe concurrently and close its channel;
		// recover covers the send-on-closed race.
		func() {
			defer func() { _ = recover() }()
			select {
			case ch <- e:
			default:
				b.dropped.Add(1)
			}
		}()
	}
}

// Dropped returns the total number of events discarded because a
// subscriber's buffer was full.
func (b *memBus) Dropped() uint64 { return b.dropped.Load() }

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}
