// Package app wires the draft composer, the broadcast dispatcher and the
// Telegram transport into the admin-facing bot.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"postbot/internal/config"
	"postbot/internal/eventbus"
	"postbot/internal/observability/errtrack"
	rtsup "postbot/internal/runtime/supervisor"
	"postbot/internal/services/broadcast"
	"postbot/internal/services/drafts"
	"postbot/internal/services/scheduler"
	"postbot/internal/storage"
	"postbot/internal/throttle"
	kit "postbot/internal/transport"
	logx "postbot/pkg/logx"
)

const sweepJob = "drafts.expire"

// Deps are the already-constructed collaborators of an App. Config, Store
// and Adapter are required.
type Deps struct {
	Config   *config.Manager
	Logs     *logx.Service
	Log      logx.Logger
	Store    storage.Store
	Adapter  kit.Adapter
	Bus      eventbus.Bus
	NATS     *eventbus.NATSBridge
	Reporter errtrack.Reporter

	// Now and Sleep are overridable in tests.
	Now   func() time.Time
	Sleep broadcast.SleepFunc

	// closers run last on Stop, in order.
	closers []func() error
}

type App struct {
	cfgm     *config.Manager
	log      logx.Logger
	logs     *logx.Service
	bus      eventbus.Bus
	nats     *eventbus.NATSBridge
	store    storage.Store
	adapter  kit.Adapter
	reporter errtrack.Reporter

	gates  throttle.Gates
	drafts *drafts.Service
	bcast  *broadcast.Service
	sched  *scheduler.Service

	sup     *rtsup.Supervisor
	updates chan kit.Update
	closers []func() error
}

func New(d Deps) (*App, error) {
	if d.Config == nil || d.Config.Get() == nil {
		return nil, errors.New("app: config is not loaded")
	}
	if d.Store == nil || d.Adapter == nil {
		return nil, errors.New("app: store and adapter are required")
	}
	cfg := d.Config.Get()
	log := d.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	if d.Bus == nil {
		d.Bus = eventbus.New()
	}
	if d.Reporter == nil {
		d.Reporter = errtrack.Nop{}
	}

	var topts []throttle.Option
	if d.Now != nil {
		topts = append(topts, throttle.WithClock(d.Now))
	}
	albumTTL, docTTL := mapThrottleTTLs(cfg)
	gates := throttle.NewGates(throttle.New(topts...), albumTTL, docTTL)

	dopts := []drafts.Option{drafts.WithBus(d.Bus)}
	bopts := []broadcast.Option{broadcast.WithBus(d.Bus)}
	if d.Now != nil {
		dopts = append(dopts, drafts.WithClock(d.Now))
		bopts = append(bopts, broadcast.WithClock(d.Now))
	}
	if d.Sleep != nil {
		bopts = append(bopts, broadcast.WithSleep(d.Sleep))
	}

	d.Config.SetLogger(log.With(logx.String("comp", "config")))

	return &App{
		cfgm:     d.Config,
		log:      log.With(logx.String("comp", "app")),
		logs:     d.Logs,
		bus:      d.Bus,
		nats:     d.NATS,
		store:    d.Store,
		adapter:  d.Adapter,
		reporter: d.Reporter,
		gates:    gates,
		drafts:   drafts.New(mapDraftsConfig(cfg), d.Store, d.Store, gates, log, dopts...),
		bcast:    broadcast.New(mapBroadcastConfig(cfg), d.Store, d.Adapter, log, bopts...),
		sched:    scheduler.New(scheduler.Config{DefaultTimeout: time.Minute}, log.With(logx.String("comp", "scheduler"))),
		updates:  make(chan kit.Update, 256),
		closers:  d.closers,
	}, nil
}

// Done is closed when the app supervisor stops (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error seen by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx,
		rtsup.WithLogger(a.log),
		rtsup.WithCancelOnError(true),
		rtsup.WithPanicHook(a.reporter.CapturePanic),
	)

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return fmt.Errorf("start transport: %w", err)
	}
	if mc, ok := a.adapter.(menuSetter); ok {
		a.sup.Go0("menu.commands", func(c context.Context) {
			if err := mc.SetCommands(c, menuCommands()); err != nil {
				a.log.Warn("menu commands not updated", logx.Err(err))
			}
		})
	}

	if err := a.registerSweep(a.cfgm.Get()); err != nil {
		return err
	}
	if err := a.sched.Start(a.sup.Context()); err != nil {
		return err
	}

	a.sup.Go("updates.dispatch", func(c context.Context) error {
		return a.dispatchLoop(c)
	})

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
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})
	if a.nats != nil {
		a.sup.GoRestart("eventbus.nats", func(c context.Context) error {
			return a.nats.Run(c, a.bus)
		}, rtsup.WithRestartBackoff(time.Second, 30*time.Second))
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	if a.cfgm.Path() != "" {
		a.sup.Go("config.watch", func(c context.Context) error {
			return a.cfgm.Watch(c)
		})
	}

	a.log.Info("app started", logx.Int("admins", len(a.cfgm.Get().Telegram.AdminIDs)))
	return nil
}

func (a *App) registerSweep(cfg *config.Config) error {
	return a.sched.AddCron(sweepJob, cfg.Drafts.Sweep, time.Minute, func(ctx context.Context) error {
		_, err := a.drafts.ExpireStale(ctx)
		return err
	})
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)), logx.Any("broadcasts_in_flight", a.bcast.InFlight()))
	a.sup.Cancel()

	// step bounds one shutdown phase so a stuck component cannot stall the rest.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		if dl, ok := ctx.Deadline(); ok {
			if rem := time.Until(dl); rem < max {
				max = rem
			}
		}
		if max <= 0 {
			a.log.Warn("stop step skipped (deadline reached)", logx.String("name", name))
			return
		}
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

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
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("adapter", 3*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	// Broadcasts observe the canceled context and abort between recipients.
	step("supervisor", 5*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	if a.nats != nil {
		step("nats", 2*time.Second, func(context.Context) error { return a.nats.Close() })
	}
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })
	for i, fn := range a.closers {
		step(fmt.Sprintf("closer.%d", i), time.Second, func(context.Context) error { return fn() })
	}
	a.reporter.Flush(2 * time.Second)

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
