package campaign

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"relaybot/internal/config"
	"relaybot/internal/eventbus"
	"relaybot/internal/failure"
	"relaybot/internal/message"
	"relaybot/internal/runtime/supervisor"
	"relaybot/internal/transport"
	"relaybot/pkg/logx"
)

// Service owns engine lifecycles: it registers campaigns, runs one engine
// per campaign under the supervisor, and cancels them on stop. A single
// aggregate rate limiter is shared by every engine so concurrent campaigns
// cannot multiply the provider send rate.
type Service struct {
	reg     *Registry
	ledger  *failure.Ledger
	store   message.Store
	client  Deliverer
	tracker tracker
	bus     eventbus.Bus
	sup     *supervisor.Supervisor
	log     logx.Logger
	limiter *rate.Limiter

	mu      sync.Mutex
	cfg     config.EngineSettings
	cancels map[string]context.CancelFunc
}

// ServiceParams collects the service's dependencies.
type ServiceParams struct {
	Registry   *Registry
	Ledger     *failure.Ledger
	Store      message.Store
	Client     Deliverer
	Tracker    tracker
	Bus        eventbus.Bus
	Supervisor *supervisor.Supervisor
	Log        logx.Logger
	Settings   config.EngineSettings
}

func NewService(p ServiceParams) *Service {
	if p.Tracker == nil {
		p.Tracker = nopTracker{}
	}
	burst := p.Settings.SendsPerSec
	if burst < 1 {
		burst = 1
	}
	return &Service{
		reg:     p.Registry,
		ledger:  p.Ledger,
		store:   p.Store,
		client:  p.Client,
		tracker: p.Tracker,
		bus:     p.Bus,
		sup:     p.Supervisor,
		log:     p.Log,
		limiter: rate.NewLimiter(rate.Limit(burst), burst),
		cfg:     p.Settings,
		cancels: map[string]context.CancelFunc{},
	}
}

// ApplySettings changes the pacing for engines started from now on and
// retunes the shared limiter. Running engines keep the settings they
// started with.
func (s *Service) ApplySettings(cfg config.EngineSettings) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	if cfg.SendsPerSec > 0 {
		s.limiter.SetLimit(rate.Limit(cfg.SendsPerSec))
		s.limiter.SetBurst(cfg.SendsPerSec)
	}
}

// Start registers the campaign and launches its engine. The referenced
// content must exist; sched is only consulted for scheduled campaigns.
func (s *Service) Start(ctx context.Context, spec CreateSpec, sched *Schedule) (Snapshot, error) {
	if _, err := s.store.GetAd(ctx, spec.MessageRef); err != nil {
		if errors.Is(err, message.ErrNotFound) {
			return Snapshot{}, fmt.Errorf("unknown content %q: %w", spec.MessageRef, err)
		}
		return Snapshot{}, fmt.Errorf("load content %q: %w", spec.MessageRef, err)
	}

	if sched != nil {
		spec.Schedule = sched
	}
	snap, err := s.reg.Create(spec)
	if err != nil {
		return Snapshot{}, err
	}

	s.mu.Lock()
	cfg := s.cfg
	engCtx, cancel := context.WithCancel(s.sup.Context())
	s.cancels[snap.ID] = cancel
	s.mu.Unlock()

	eng := NewEngine(EngineParams{
		CampaignID: snap.ID,
		Registry:   s.reg,
		Ledger:     s.ledger,
		Store:      s.store,
		Client:     s.client,
		Tracker:    s.tracker,
		Bus:        s.bus,
		Limiter:    s.limiter,
		Log:        s.log.With(logx.String("campaign", snap.ID)),
		Settings:   cfg,
		Schedule:   sched,
	})

	s.sup.Go("campaign."+snap.ID, func(context.Context) error {
		defer s.forget(snap.ID)
		return eng.Run(engCtx)
	})

	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeCampaignStarted, Data: eventbus.CampaignData{
			ID: snap.ID, State: string(snap.State),
		}})
	}
	s.log.Info("campaign started",
		logx.String("campaign", snap.ID),
		logx.String("kind", string(snap.Kind)),
		logx.Int("targets", len(snap.Targets)),
		logx.Duration("interval", snap.Interval))
	return snap, nil
}

func (s *Service) forget(id string) {
	s.mu.Lock()
	if cancel, ok := s.cancels[id]; ok {
		cancel()
		delete(s.cancels, id)
	}
	s.mu.Unlock()
}

// Stop cancels a campaign's engine. Stopping a campaign that has already
// finished or been cancelled is a no-op; only an unknown ID is an error.
func (s *Service) Stop(id string) error {
	if _, ok := s.reg.Get(id); !ok {
		return ErrNotFound
	}
	s.forget(id)
	return nil
}

// StopAll cancels every engine and clears the registry. Monitors observe
// the disappearance and detach on their own. Returns how many campaigns
// were registered.
func (s *Service) StopAll() int {
	s.mu.Lock()
	for id, cancel := range s.cancels {
		cancel()
		delete(s.cancels, id)
	}
	s.mu.Unlock()
	return len(s.reg.Clear())
}

// RetryFailures re-attempts delivery for ledger entries with retryable
// reasons. With a non-empty targets argument only those targets are
// considered. Entries are removed from the ledger only after a successful
// resend. Returns (succeeded, attempted).
func (s *Service) RetryFailures(ctx context.Context, targets []transport.ChatTarget) (int, int) {
	candidates := s.ledger.RetryCandidates(targets)
	ok := 0
	attempted := 0
	for _, tgt := range candidates {
		rec, found := s.ledger.Get(tgt)
		if !found || len(rec.History) == 0 {
			continue
		}
		// Resend the content of the campaign that failed most recently.
		last := rec.History[len(rec.History)-1]
		snap, found := s.reg.Get(last.CampaignID)
		if !found {
			continue
		}
		ad, err := s.store.GetAd(ctx, snap.MessageRef)
		if err != nil {
			continue
		}
		attempted++
		if err := s.resend(ctx, tgt, ad); err != nil {
			s.ledger.Record(tgt, last.CampaignID, err.Error())
			continue
		}
		s.ledger.Remove([]transport.ChatTarget{tgt})
		s.tracker.RecordSent(snap.MessageRef, tgt)
		ok++
	}
	return ok, attempted
}

func (s *Service) resend(ctx context.Context, tgt transport.ChatTarget, ad message.Ad) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	err := s.client.Forward(ctx, tgt, ad.Source)
	if err == nil {
		return nil
	}
	if ad.FallbackText != "" && failure.Classify(err.Error()) == failure.ReasonMessageNotFound {
		_, serr := s.client.SendText(ctx, tgt, ad.FallbackText, nil)
		return serr
	}
	return err
}
