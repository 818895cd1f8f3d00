package app

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"relaybot/internal/analytics"
	"relaybot/internal/campaign"
	"relaybot/internal/config"
	"relaybot/internal/dashboard"
	"relaybot/internal/eventbus"
	"relaybot/internal/failure"
	"relaybot/internal/message"
	rtsup "relaybot/internal/runtime/supervisor"
	kit "relaybot/internal/transport"
	telegram "relaybot/internal/transport/telegram/adapter"
	"relaybot/internal/transport/telegram/router"
	"relaybot/pkg/logx"
)

type StopReason string

const (
	StopReasonSignal StopReason = "signal"
	StopReasonFatal  StopReason = "fatal"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store message.Store

	adapter kit.Client

	reg     *campaign.Registry
	ledger  *failure.Ledger
	tracker *analytics.Tracker
	camps   *campaign.Service
	mons    *dashboard.Monitors

	cmdm *router.CommandManager

	// admins are owner IDs added at runtime via /admin add, on top of the
	// configured owner list. Not persisted across restarts.
	adminMu sync.Mutex
	admins  map[int64]struct{}

	updates chan kit.Update
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))

	pollTimeout := 10 * time.Second
	if cfg.Telegram.PollTimeout != "" {
		pollTimeout, err = time.ParseDuration(cfg.Telegram.PollTimeout)
		if err != nil {
			return nil, fmt.Errorf("telegram.poll_timeout: %w", err)
		}
	}
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, bootLog)
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	// Storage (in-memory unless configured otherwise)
	var storeCfg message.Config
	if cfg.Storage != nil {
		storeCfg = message.Config{
			Driver: cfg.Storage.Driver,
			Path:   cfg.Storage.Path,
		}
		if raw := cfg.Storage.BusyTimeout; raw != "" {
			d, err := time.ParseDuration(raw)
			if err != nil {
				return nil, fmt.Errorf("storage.busy_timeout: %w", err)
			}
			storeCfg.BusyTimeout = d
		}
	}
	store, err := message.Open(storeCfg, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	if cfg.Storage != nil {
		log.Info("storage enabled", logx.String("driver", cfg.Storage.Driver))
	}

	engSettings, err := cfg.Engine.EngineSettings()
	if err != nil {
		return nil, err
	}

	a := &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		adapter: ad,
		reg:     campaign.NewRegistry(engSettings.MinInterval),
		ledger:  failure.NewLedger(),
		tracker: analytics.NewTracker(),
		admins:  map[int64]struct{}{},
		updates: make(chan kit.Update, 256),
	}

	a.cmdm = router.NewCommandManager(log.With(logx.String("comp", "commands")),
		ad, cfgm, cfg.Telegram.OwnerUserIDs)

	return a, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		if _, err := cfg.Engine.EngineSettings(); err != nil {
			return err
		}
		if _, err := cfg.Monitor.MonitorSettings(); err != nil {
			return err
		}
		return nil
	})

	cfg := a.cfgm.Get()
	engSettings, err := cfg.Engine.EngineSettings()
	if err != nil {
		return err
	}
	monSettings, err := cfg.Monitor.MonitorSettings()
	if err != nil {
		return err
	}

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}

	a.camps = campaign.NewService(campaign.ServiceParams{
		Registry:   a.reg,
		Ledger:     a.ledger,
		Store:      a.store,
		Client:     a.adapter,
		Tracker:    a.tracker,
		Bus:        a.bus,
		Supervisor: a.sup,
		Log:        a.log.With(logx.String("comp", "campaigns")),
		Settings:   engSettings,
	})
	a.mons = dashboard.NewMonitors(a.reg, a.sup, monSettings,
		a.log.With(logx.String("comp", "monitor")))

	a.cmdm.SetRegistry(a.commands(), nil)

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.cmdm.DispatchLoop(c, a.updates)
	})

	// Event log for observability/debug.
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				// Debug-level to avoid noise from per-batch progress events.
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	// hot reload config fan-out
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				a.applyConfig(newCfg)
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started")
	return nil
}

func (a *App) applyConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}

	a.logs.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})

	a.cmdm.SetOwners(a.ownersFor(cfg))

	if eng, err := cfg.Engine.EngineSettings(); err != nil {
		a.log.Warn("invalid engine config; keeping previous", logx.Err(err))
	} else if a.camps != nil {
		a.camps.ApplySettings(eng)
	}

	if cfg.Storage != nil {
		a.log.Warn("storage config changes require a restart")
	}

	a.bus.Publish(eventbus.Event{Type: eventbus.TypeConfigReloaded})
	a.log.Info("config reloaded")
}

// ownersFor merges the configured owner list with runtime-added admins.
func (a *App) ownersFor(cfg *config.Config) []int64 {
	a.adminMu.Lock()
	defer a.adminMu.Unlock()
	out := append([]int64(nil), cfg.Telegram.OwnerUserIDs...)
	for id := range a.admins {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (a *App) addAdmin(id int64) bool {
	a.adminMu.Lock()
	_, exists := a.admins[id]
	a.admins[id] = struct{}{}
	a.adminMu.Unlock()
	a.cmdm.SetOwners(a.ownersFor(a.cfgm.Get()))
	return !exists
}

func (a *App) removeAdmin(id int64) bool {
	a.adminMu.Lock()
	_, exists := a.admins[id]
	delete(a.admins, id)
	a.adminMu.Unlock()
	a.cmdm.SetOwners(a.ownersFor(a.cfgm.Get()))
	return exists
}

func (a *App) adminList() []int64 {
	a.adminMu.Lock()
	defer a.adminMu.Unlock()
	out := make([]int64, 0, len(a.admins))
	for id := range a.admins {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// Cancel the run context first so background loops start unwinding immediately.
	a.sup.Cancel()

	// Helper: run a shutdown step with an upper bound so one component can't
	// stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()

		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			// respect the caller's deadline; never extend it
			if dl, ok := ctx.Deadline(); ok {
				rem := time.Until(dl)
				if rem <= 0 {
					max = 0
				} else if rem < max {
					max = rem
				}
			}
			if max > 0 {
				stepCtx, cancel = context.WithTimeout(ctx, max)
				defer cancel()
			}
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("monitors", 1*time.Second, func(context.Context) error {
		if a.mons != nil {
			a.mons.DetachAll()
		}
		return nil
	})
	step("campaigns", 2*time.Second, func(context.Context) error {
		if a.camps != nil {
			n := a.camps.StopAll()
			if n > 0 {
				a.log.Info("campaigns stopped", logx.Int("count", n))
			}
		}
		return nil
	})
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("storage", 1*time.Second, func(context.Context) error { return a.store.Close() })

	// Finally, wait for supervised goroutines (config watch/reload, dispatcher, engines).
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		a.logs.Close()
	}
	return nil
}
