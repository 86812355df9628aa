package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"remindbot/internal/eventbus"
	logx "remindbot/pkg/logx"
)

// Service owns the polling loop.
type Service struct {
	mu sync.Mutex

	log      logx.Logger
	cfg      Config
	bus      eventbus.Bus
	store    Store
	delivery Delivery
	settings SettingsSource
	limiter  *rate.Limiter
	now      func() time.Time

	c       *cron.Cron
	entryID cron.EntryID
	runCtx  context.Context
	armed   chan struct{}
	armOnce sync.Once

	// tickMu is only ever TryLock'ed: a tick that finds it held is skipped.
	tickMu sync.Mutex

	stats struct {
		ticks, dispatched, denied, skipped, aborted, panics, skippedTicks atomic.Uint64
	}
	lastMu sync.Mutex
	last   TickReport
}

// Option customises a Service.
type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithBus publishes lifecycle events on bus.
func WithBus(bus eventbus.Bus) Option { return func(s *Service) { s.bus = bus } }

func New(cfg Config, store Store, delivery Delivery, settings SettingsSource, log logx.Logger, opts ...Option) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg = cfg.withDefaults()
	s := &Service{
		log:      log,
		cfg:      cfg,
		store:    store,
		delivery: delivery,
		settings: settings,
		limiter:  newLimiter(cfg),
		now:      time.Now,
		armed:    make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func newLimiter(cfg Config) *rate.Limiter {
	if cfg.RatePerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, cfg.Burst)
	}
	return rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst)
}

// Apply swaps the config. A changed poll schedule re-registers the cron entry
// once the service is armed; before that, arming picks up the new schedule.
func (s *Service) Apply(cfg Config) error {
	cfg = cfg.withDefaults()
	spec, err := ParseSchedule(cfg.PollSchedule)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.cfg
	s.cfg = cfg
	s.limiter.SetLimit(newLimiter(cfg).Limit())
	s.limiter.SetBurst(cfg.Burst)

	if s.c != nil && s.entryID != 0 && old.PollSchedule != cfg.PollSchedule {
		s.c.Remove(s.entryID)
		if err := s.addEntryLocked(spec); err != nil {
			return err
		}
		s.log.Info("poll schedule changed", logx.String("spec", spec))
	}
	return nil
}

// Start arms the cron trigger once ready is closed (nil means immediately).
// It does not block. Ticks stop when ctx is cancelled or Stop is called.
func (s *Service) Start(ctx context.Context, ready <-chan struct{}) error {
	s.mu.Lock()
	if _, err := ParseSchedule(s.cfg.PollSchedule); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.c != nil {
		s.mu.Unlock()
		return nil
	}
	s.runCtx = ctx
	s.entryID = 0
	s.c = cron.New(
		cron.WithParser(cronParser),
		cron.WithLocation(time.UTC),
		cron.WithLogger(cronLogger{log: s.log}),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{log: s.log})),
	)
	c := s.c
	s.mu.Unlock()

	arm := func() {
		s.mu.Lock()
		if s.c != c {
			s.mu.Unlock()
			return
		}
		// Apply may have changed the schedule while waiting for ready.
		spec, err := ParseSchedule(s.cfg.PollSchedule)
		if err == nil {
			err = s.addEntryLocked(spec)
		}
		if err != nil {
			s.mu.Unlock()
			s.log.Error("poll schedule register failed", logx.String("spec", spec), logx.Err(err))
			return
		}
		c.Start()
		next := c.Entry(s.entryID).Next
		s.mu.Unlock()
		s.armOnce.Do(func() { close(s.armed) })
		s.log.Info("scheduler armed", logx.String("spec", spec), logx.Time("next", next))
	}

	if ready == nil {
		arm()
		return nil
	}
	s.log.Debug("scheduler waiting for ready signal")
	go func() {
		select {
		case <-ready:
			arm()
		case <-ctx.Done():
		}
	}()
	return nil
}

func (s *Service) addEntryLocked(spec string) error {
	id, err := s.c.AddFunc(spec, func() { s.runTick() })
	if err != nil {
		return err
	}
	s.entryID = id
	return nil
}

// Armed is closed once the trigger is registered.
func (s *Service) Armed() <-chan struct{} { return s.armed }

// Stop stops triggering and waits for a running tick (bounded by ctx).
func (s *Service) Stop(ctx context.Context) {
	start := time.Now()
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()

	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
			// best-effort
		}
	}
	s.log.Info("scheduler stopped", logx.Duration("took", time.Since(start)))
}

// runTick is the cron job: one tick with its own timeout and panic recovery.
func (s *Service) runTick() {
	s.mu.Lock()
	parent := s.runCtx
	timeout := s.cfg.TickTimeout
	s.mu.Unlock()
	if parent == nil {
		parent = context.Background()
	}
	if parent.Err() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			s.stats.panics.Add(1)
			s.log.Error("tick panic", logx.String("panic", fmt.Sprint(r)), logx.Stack(string(debug.Stack())))
		}
	}()
	_, _ = s.Tick(ctx)
}

// Snapshot reports counters for /status.
func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{Schedule: s.cfg.PollSchedule}
	if s.c != nil && s.entryID != 0 {
		snap.Next = s.c.Entry(s.entryID).Next
	}
	s.mu.Unlock()

	select {
	case <-s.armed:
		snap.Armed = true
	default:
	}
	s.lastMu.Lock()
	snap.LastTick = s.last
	s.lastMu.Unlock()
	snap.Ticks = s.stats.ticks.Load()
	snap.Dispatched = s.stats.dispatched.Load()
	snap.Denied = s.stats.denied.Load()
	snap.Skipped = s.stats.skipped.Load()
	snap.Aborted = s.stats.aborted.Load()
	snap.Panics = s.stats.panics.Load()
	snap.SkippedTicks = s.stats.skippedTicks.Load()
	return snap
}

func (s *Service) publish(typ string, data any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: s.now(), Data: data})
}
