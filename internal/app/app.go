// Package app wires config, logging, storage, transport, the scheduler and
// the command surface into one process.
package app

import (
	"context"
	"fmt"
	"time"

	"remindbot/internal/bot"
	"remindbot/internal/config"
	"remindbot/internal/eventbus"
	"remindbot/internal/observability/debughttp"
	"remindbot/internal/runtime/supervisor"
	"remindbot/internal/scheduler"
	"remindbot/internal/storage"
	kit "remindbot/internal/transport"
	"remindbot/internal/transport/telegram"
	logx "remindbot/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm    *config.Manager
	sup     *supervisor.Supervisor
	runtime *supervisor.Registry

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store *storage.Defaulted

	adapter *telegram.Adapter
	sched   *scheduler.Service
	bot     *bot.Bot
	debug   *debughttp.Server

	updates chan kit.Update
}

func New(ctx context.Context, cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load(ctx)
	if err != nil {
		return nil, err
	}

	// Chat logging stays off until the adapter exists and the target is set,
	// otherwise Apply warns about a missing sender.
	baseLogCfg := logConfig(cfg)
	finalLogCfg := baseLogCfg
	baseLogCfg.Chat.Enabled = false
	logSvc, log := logx.New(baseLogCfg, nil)
	log = log.With(logx.Component("app"))

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, logSvc.Logger().With(logx.Component("telegram")))
	if err != nil {
		return nil, err
	}
	logSvc.SetSender(ad)
	if chatID, threadID, ok := groupLogTarget(cfg.Telegram.GroupLog); ok {
		logSvc.SetChatTarget(chatID, threadID)
	}
	logSvc.Apply(finalLogCfg)

	sc, err := storageConfig(cfg)
	if err != nil {
		return nil, err
	}
	raw, err := storage.Open(sc, log)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	store := storage.WithDefaults(raw, cfg.Reminders.DefaultTimezone)
	log.Info("storage ready", logx.String("driver", sc.Driver), logx.String("default_tz", store.Timezone()))

	bus := eventbus.New()
	schedCfg, err := schedulerConfig(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	sched := scheduler.New(schedCfg, store, ad, store,
		log.With(logx.Component("scheduler")),
		scheduler.WithBus(bus),
	)

	botCfg, err := botConfig(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	rt := supervisor.NewRegistry()
	b := bot.New(botCfg, bot.Deps{
		Adapter: ad,
		Store:   store,
		Status:  sched,
		Runtime: rt,
		Log:     log,
	})

	dbg := debughttp.New(debugConfig(cfg), debughttp.Sources{
		Store:     store,
		Scheduler: sched,
		Runtime:   rt,
	}, log)

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		runtime: rt,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		adapter: ad,
		sched:   sched,
		bot:     b,
		debug:   dbg,
		updates: make(chan kit.Update, 256),
	}, nil
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

// Armed is closed once the scheduler has registered its poll trigger.
func (a *App) Armed() <-chan struct{} { return a.sched.Armed() }

func (a *App) Logger() logx.Logger { return a.log }

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.runtime.Set("app", a.sup)

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log.With(logx.Component("config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if _, err := schedulerConfig(cfg); err != nil {
			return err
		}
		if _, err := botConfig(cfg); err != nil {
			return err
		}
		_, err := storageConfig(cfg)
		return err
	})

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	if sup := a.adapter.Supervisor(); sup != nil {
		a.runtime.Set("telegram.adapter", sup)
	}

	a.sup.Go("bot", func(c context.Context) error {
		return a.bot.Run(c, a.updates)
	})

	// The scheduler arms once the store answers; a dead store is fatal.
	ready := make(chan struct{})
	a.sup.Go("storage.ping", func(c context.Context) error {
		pctx, cancel := context.WithTimeout(c, 5*time.Second)
		defer cancel()
		if err := a.store.Ping(pctx); err != nil {
			return fmt.Errorf("storage ping: %w", err)
		}
		close(ready)
		return nil
	})
	if err := a.sched.Start(a.sup.Context(), ready); err != nil {
		return err
	}

	if err := a.debug.Start(a.sup.Context()); err != nil {
		a.log.Warn("debug http disabled", logx.Err(err))
	} else if sup := a.debug.Supervisor(); sup != nil {
		a.runtime.Set("debughttp", sup)
	}

	events, unsub := a.bus.Subscribe(128, "reminder.", "scheduler.")
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
				logEvent(a.log, e)
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started", logx.String("config", a.cfgPath))
	return nil
}

func logEvent(log logx.Logger, e eventbus.Event) {
	switch ev := e.Data.(type) {
	case scheduler.ReminderEvent:
		log.Debug("event",
			logx.String("type", e.Type),
			logx.ReminderID(ev.ID),
			logx.Scope(ev.ScopeID),
			logx.String("destination", ev.Destination),
			logx.String("next_id", ev.NextID),
		)
	case string:
		log.Warn("event", logx.String("type", e.Type), logx.String("detail", ev))
	default:
		log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
	}
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// First, cancel the app run context so background loops start unwinding immediately.
	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		a.step(ctx, name, max, fn)
	}

	// Stop the trigger before the transport so an in-flight tick can still deliver.
	step("scheduler", 3*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("debughttp", 1*time.Second, func(c context.Context) error { return a.debug.Stop(c) })
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	// bot.Run exits on cancel and cancels open wizards; wait for it (and the
	// config loops) before closing the store they write to.
	step("supervisor", 4*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("storage", 1*time.Second, func(c context.Context) error { return a.store.Close() })

	if n := a.bus.Dropped(); n > 0 {
		a.log.Debug("eventbus drops", logx.Uint64("count", n))
	}
	if n := a.logs.ChatDropped(); n > 0 {
		a.log.Info("chat log lines dropped", logx.Uint64("count", n))
	}
	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

// step runs one shutdown step with an upper bound so one component can't
// stall the whole stop.
func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	start := time.Now()
	a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

	stepCtx := ctx
	if max > 0 {
		// respect the caller's deadline; never extend it
		if dl, ok := ctx.Deadline(); ok {
			if rem := time.Until(dl); rem <= 0 {
				max = 0
			} else if rem < max {
				max = rem
			}
		}
		if max > 0 {
			var cancel context.CancelFunc
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
		took := time.Since(start)
		if took >= 500*time.Millisecond {
			a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
		} else {
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
		}
	case <-stepCtx.Done():
		// fn must honor stepCtx; if it doesn't, report when it finally returns.
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name),
			logx.Err(stepCtx.Err()),
			logx.Duration("elapsed", time.Since(start)),
		)
		go func() {
			err := <-done
			a.log.Warn("stop step finished after deadline",
				logx.String("name", name), logx.Err(err), logx.Duration("took", time.Since(start)))
		}()
	}
}
