package dashboard

import (
	"context"
	"errors"
	"sync"
	"time"

	"relaybot/internal/campaign"
	"relaybot/internal/config"
	"relaybot/internal/failure"
	"relaybot/internal/runtime/supervisor"
	"relaybot/internal/transport"
	"relaybot/pkg/logx"
)

// ErrMonitorActive is returned by Attach when the campaign already has a
// live monitor.
var ErrMonitorActive = errors.New("monitor already attached to campaign")

// Sink receives rendered status text; in production it edits a previously
// sent status message in place.
type Sink interface {
	Push(ctx context.Context, text string) error
}

// editorSink edits one fixed message through the transport.
type editorSink struct {
	ed  transport.Editor
	ref transport.MessageRef
}

func NewEditorSink(ed transport.Editor, ref transport.MessageRef) Sink {
	return &editorSink{ed: ed, ref: ref}
}

func (s *editorSink) Push(ctx context.Context, text string) error {
	return s.ed.EditText(ctx, s.ref, text, nil)
}

// Monitors manages at most one live monitor per campaign. Monitor loops run
// under the supervisor; detaching cancels the loop without touching the
// campaign itself.
type Monitors struct {
	reg *campaign.Registry
	sup *supervisor.Supervisor
	log logx.Logger
	cfg config.MonitorSettings

	mu     sync.Mutex
	active map[string]context.CancelFunc
}

func NewMonitors(reg *campaign.Registry, sup *supervisor.Supervisor, cfg config.MonitorSettings, log logx.Logger) *Monitors {
	return &Monitors{
		reg:    reg,
		sup:    sup,
		log:    log,
		cfg:    cfg,
		active: map[string]context.CancelFunc{},
	}
}

// Attach starts a monitor loop for the campaign, pushing to sink. Exactly
// one monitor may watch a campaign at a time.
func (m *Monitors) Attach(campaignID string, sink Sink) error {
	if _, ok := m.reg.Get(campaignID); !ok {
		return campaign.ErrNotFound
	}

	m.mu.Lock()
	if _, busy := m.active[campaignID]; busy {
		m.mu.Unlock()
		return ErrMonitorActive
	}
	ctx, cancel := context.WithCancel(m.sup.Context())
	m.active[campaignID] = cancel
	m.mu.Unlock()

	mon := &monitor{
		id:    campaignID,
		reg:   m.reg,
		sink:  sink,
		cfg:   m.cfg,
		log:   m.log.With(logx.String("monitor", campaignID)),
		now:   time.Now,
		sleep: sleepCtx,
	}
	m.sup.Go("monitor."+campaignID, func(context.Context) error {
		defer m.detach(campaignID)
		return mon.run(ctx)
	})
	return nil
}

func (m *Monitors) detach(campaignID string) {
	m.mu.Lock()
	if cancel, ok := m.active[campaignID]; ok {
		cancel()
		delete(m.active, campaignID)
	}
	m.mu.Unlock()
}

// Detach stops the campaign's monitor, if one is attached.
func (m *Monitors) Detach(campaignID string) bool {
	m.mu.Lock()
	cancel, ok := m.active[campaignID]
	if ok {
		cancel()
		delete(m.active, campaignID)
	}
	m.mu.Unlock()
	return ok
}

// DetachAll stops every monitor.
func (m *Monitors) DetachAll() {
	m.mu.Lock()
	for id, cancel := range m.active {
		cancel()
		delete(m.active, id)
	}
	m.mu.Unlock()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

const (
	floodSafetyMargin = 5 * time.Second
	backoffAfter      = 3
	backoffBase       = 2 * time.Second
	backoffMax        = 30 * time.Second
)

// monitor is one live status loop. Push failures are local to the monitor
// and never affect the campaign's send loop.
type monitor struct {
	id   string
	reg  *campaign.Registry
	sink Sink
	cfg  config.MonitorSettings
	log  logx.Logger

	// Injectable for clock-sensitive tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	lastPush    time.Time
	consecFails int
}

func (m *monitor) run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		snap, ok := m.reg.Get(m.id)
		if !ok {
			// Campaign removed (stop-all); nothing left to report on.
			return nil
		}

		terminal := snap.State.Terminal()
		var text string
		if terminal {
			text = RenderFinal(snap, m.now())
		} else {
			text = RenderLive(snap, m.now())
		}

		// Minimum spacing between pushes, regardless of the computed refresh
		// rate. This is the guard against self-inflicted rate limiting.
		if !m.lastPush.IsZero() {
			if wait := m.cfg.MinPushSpacing - m.now().Sub(m.lastPush); wait > 0 {
				if err := m.sleep(ctx, wait); err != nil {
					return nil
				}
			}
		}

		err := m.sink.Push(ctx, text)
		if err == nil {
			m.lastPush = m.now()
			m.consecFails = 0
			if terminal {
				return nil
			}
		} else {
			if ctx.Err() != nil {
				return nil
			}
			if done, herr := m.handlePushError(ctx, err, terminal); done {
				return herr
			}
			continue
		}

		refresh := m.cfg.RefreshIdle
		if snap.State == campaign.StateSending {
			refresh = m.cfg.RefreshActive
		}
		if err := m.sleep(ctx, refresh); err != nil {
			return nil
		}
	}
}

// handlePushError applies the push-failure policy. Returns done=true when
// the monitor should exit.
func (m *monitor) handlePushError(ctx context.Context, err error, terminal bool) (bool, error) {
	switch failure.Classify(err.Error()) {
	case failure.ReasonRateLimited:
		// Honor the provider's suggested wait plus a safety margin; no
		// additional backoff on top.
		wait := failure.ParseFloodWait(err.Error()) + floodSafetyMargin
		m.log.Warn("status push rate limited", logx.Duration("wait", wait), logx.Err(err))
		if serr := m.sleep(ctx, wait); serr != nil {
			return true, nil
		}
		return false, nil
	case failure.ReasonMessageNotFound, failure.ReasonNotFound:
		// The status message is gone; this monitor has nothing to edit.
		m.log.Info("status message gone, detaching", logx.Err(err))
		return true, nil
	default:
		if terminal {
			// The final summary is best-effort; one failed attempt ends it.
			return true, nil
		}
		m.consecFails++
		m.log.Warn("status push failed", logx.Int("consecutive", m.consecFails), logx.Err(err))
		d := m.cfg.RefreshIdle
		if m.consecFails >= backoffAfter {
			d = backoffBase << uint(m.consecFails-backoffAfter)
			if d > backoffMax {
				d = backoffMax
			}
		}
		if serr := m.sleep(ctx, d); serr != nil {
			return true, nil
		}
		return false, nil
	}
}
