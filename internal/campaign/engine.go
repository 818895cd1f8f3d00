package campaign

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"relaybot/internal/config"
	"relaybot/internal/eventbus"
	"relaybot/internal/failure"
	"relaybot/internal/message"
	"relaybot/internal/transport"
	"relaybot/pkg/logx"
)

// Deliverer is the slice of the transport client the engine needs: forward
// the stored source message, or send its fallback text when the source is
// gone.
type Deliverer interface {
	transport.Forwarder
	transport.Sender
}

// Engine drives one campaign's send loop. It is started once per campaign
// and is not reentrant. All campaign state lives in the registry; the engine
// mutates it only through the registry API.
type Engine struct {
	id       string
	reg      *Registry
	ledger   *failure.Ledger
	store    message.Store
	client   Deliverer
	tracker  tracker
	bus      eventbus.Bus
	limiter  *rate.Limiter
	log      logx.Logger
	cfg      config.EngineSettings
	schedule *Schedule // scheduled campaigns only

	// Injectable for clock-sensitive tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// tracker is the analytics surface the engine writes to.
type tracker interface {
	RecordSent(ad string, target transport.ChatTarget)
	RecordFailed(ad string, target transport.ChatTarget)
}

// EngineParams collects the engine's dependencies.
type EngineParams struct {
	CampaignID string
	Registry   *Registry
	Ledger     *failure.Ledger
	Store      message.Store
	Client     Deliverer
	Tracker    tracker
	Bus        eventbus.Bus
	Limiter    *rate.Limiter
	Log        logx.Logger
	Settings   config.EngineSettings
	Schedule   *Schedule
}

type nopTracker struct{}

func (nopTracker) RecordSent(string, transport.ChatTarget)   {}
func (nopTracker) RecordFailed(string, transport.ChatTarget) {}

func NewEngine(p EngineParams) *Engine {
	if p.Tracker == nil {
		p.Tracker = nopTracker{}
	}
	return &Engine{
		id:       p.CampaignID,
		reg:      p.Registry,
		ledger:   p.Ledger,
		store:    p.Store,
		client:   p.Client,
		tracker:  p.Tracker,
		bus:      p.Bus,
		limiter:  p.Limiter,
		log:      p.Log,
		cfg:      p.Settings,
		schedule: p.Schedule,
		now:      time.Now,
		sleep:    sleepCtx,
	}
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

// Run executes rounds until the campaign reaches a terminal state or ctx is
// canceled. Per-target delivery failures never abort a round; only a failure
// of the loop itself moves the campaign to Error. Cancellation moves it to
// Cancelled and returns nil.
func (e *Engine) Run(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			e.reg.Fail(e.id, fmt.Sprint(r))
			e.publish(eventbus.TypeCampaignFailed)
			err = fmt.Errorf("campaign %s: panic: %v", e.id, r)
		}
	}()

	for {
		snap, ok := e.reg.Get(e.id)
		if !ok || snap.State.Terminal() {
			return nil
		}

		ad, gerr := e.store.GetAd(ctx, snap.MessageRef)
		if errors.Is(gerr, message.ErrNotFound) {
			e.reg.SetState(e.id, StateStopped)
			e.publish(eventbus.TypeCampaignStopped)
			e.log.Info("content removed, stopping campaign",
				logx.String("campaign", e.id), logx.String("ad", snap.MessageRef))
			return nil
		}
		if gerr != nil {
			if ctx.Err() != nil {
				return e.cancelled()
			}
			e.reg.Fail(e.id, gerr.Error())
			e.publish(eventbus.TypeCampaignFailed)
			return fmt.Errorf("campaign %s: load content: %w", e.id, gerr)
		}

		snap, ok = e.reg.BeginRound(e.id)
		if !ok {
			return nil
		}
		targets := snap.Targets
		e.log.Debug("round started",
			logx.String("campaign", e.id),
			logx.Int("targets", len(targets)),
			logx.Int("round", snap.RoundsCompleted+1))

		processed := 0
		for start := 0; start < len(targets); start += e.cfg.BatchSize {
			end := min(start+e.cfg.BatchSize, len(targets))
			for _, tgt := range targets[start:end] {
				if ctx.Err() != nil {
					return e.cancelled()
				}
				derr := e.deliver(ctx, tgt, ad)
				if ctx.Err() != nil {
					return e.cancelled()
				}
				if derr != nil {
					e.reg.RecordFailure(e.id, tgt, derr.Error())
					reason := e.ledger.Record(tgt, e.id, derr.Error())
					e.tracker.RecordFailed(snap.MessageRef, tgt)
					e.publish(eventbus.TypeDeliveryFailed)
					e.log.Warn("delivery failed",
						logx.String("campaign", e.id),
						logx.Int64("chat", tgt.ChatID),
						logx.Int("thread", tgt.ThreadID),
						logx.String("reason", string(reason)),
						logx.Err(derr))
				} else {
					e.reg.RecordSent(e.id, tgt)
					e.tracker.RecordSent(snap.MessageRef, tgt)
				}
				processed++
				if processed%e.cfg.ProgressEvery == 0 {
					e.publish(eventbus.TypeRoundProgress)
				}
			}
			e.publish(eventbus.TypeRoundProgress)
			if end < len(targets) {
				if serr := e.sleep(ctx, e.cfg.BatchDelay); serr != nil {
					return e.cancelled()
				}
			}
		}

		next := e.nextRoundTime()
		cur, ok := e.reg.FinishRound(e.id, next)
		if !ok {
			return nil
		}
		e.publish(eventbus.TypeRoundFinished)
		e.log.Info("round finished",
			logx.String("campaign", e.id),
			logx.Int("round", cur.RoundsCompleted),
			logx.Int("sent", cur.TotalSent),
			logx.Int("failed", cur.FailedSends))

		if snap.Kind.singleRound() {
			e.reg.SetState(e.id, StateCompleted)
			e.publish(eventbus.TypeCampaignCompleted)
			return nil
		}

		if serr := e.sleep(ctx, next.Sub(e.now())); serr != nil {
			return e.cancelled()
		}
	}
}

// deliver attempts one target with retries. Rate-limit errors get the longer
// cooldown between attempts; everything else the short retry delay. Returns
// the last error once attempts are exhausted, or the context error on
// cancellation.
func (e *Engine) deliver(ctx context.Context, tgt transport.ChatTarget, ad message.Ad) error {
	var lastErr error
	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		err := e.sendOnce(ctx, tgt, ad)
		if err == nil {
			return nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt == e.cfg.MaxAttempts {
			break
		}
		delay := e.cfg.RetryDelay
		if failure.Classify(err.Error()) == failure.ReasonRateLimited {
			delay = e.cfg.RateLimitCooldown
		}
		if serr := e.sleep(ctx, delay); serr != nil {
			return serr
		}
	}
	return lastErr
}

// sendOnce forwards the stored source message. When the source itself is
// gone and the ad carries fallback text, it re-sends that as plain text
// instead of failing the target.
func (e *Engine) sendOnce(ctx context.Context, tgt transport.ChatTarget, ad message.Ad) error {
	err := e.client.Forward(ctx, tgt, ad.Source)
	if err == nil {
		return nil
	}
	if ad.FallbackText != "" && failure.Classify(err.Error()) == failure.ReasonMessageNotFound {
		_, serr := e.client.SendText(ctx, tgt, ad.FallbackText, nil)
		return serr
	}
	return err
}

func (e *Engine) nextRoundTime() time.Time {
	now := e.now()
	if e.schedule != nil {
		return e.schedule.Next(now)
	}
	snap, _ := e.reg.Get(e.id)
	return now.Add(snap.Interval)
}

func (e *Engine) cancelled() error {
	e.reg.SetState(e.id, StateCancelled)
	e.publish(eventbus.TypeCampaignStopped)
	e.log.Info("campaign cancelled", logx.String("campaign", e.id))
	return nil
}

func (e *Engine) publish(typ string) {
	if e.bus == nil {
		return
	}
	snap, ok := e.reg.Get(e.id)
	if !ok {
		return
	}
	e.bus.Publish(eventbus.Event{Type: typ, Data: eventbus.CampaignData{
		ID:     snap.ID,
		State:  string(snap.State),
		Sent:   snap.TotalSent,
		Failed: snap.FailedSends,
		Rounds: snap.RoundsCompleted,
	}})
}
