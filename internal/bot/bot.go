// Package bot is the chat command surface: /set opens a reminder wizard,
// /list and /remove manage a chat's reminders, /settings edits the chat's
// timezone, channel override and manager role.
//
// Updates are routed to a bounded worker pool. Wizards outlive the request
// that opened them and run as supervised goroutines.
package bot

import (
	"context"
	"errors"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"remindbot/internal/prompt"
	"remindbot/internal/runtime/supervisor"
	"remindbot/internal/scheduler"
	"remindbot/internal/storage"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
	"remindbot/pkg/tgui"
)

// callbackNS prefixes every inline button this package creates.
const callbackNS = "remind"

var errNotRunning = errors.New("bot: not running")

type Access int

const (
	AccessEveryone Access = iota
	AccessOwnerOnly
)

type Command struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
	Access      Access
	Timeout     time.Duration // optional per-command override
	Handle      HandlerFunc
}

type CallbackHandlerFunc func(ctx context.Context, req *Request, payload string) error

type CallbackRoute struct {
	Action  string
	Timeout time.Duration
	Handle  CallbackHandlerFunc
}

type Request struct {
	Update   kit.Update
	Chat     kit.ChatTarget
	FromID   int64
	FromName string
	IsGroup  bool
	Command  string
	// Text is everything after the command word, as typed.
	Text     string
	Args     []string
	Callback *kit.Callback
	ReqID    string
	Logger   logx.Logger

	answered bool
}

// Config is the hot-reloadable part of the bot.
type Config struct {
	Owners         []int64
	SessionTimeout time.Duration
	MinRepeat      time.Duration
	PageSize       int
	CommandTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.SessionTimeout <= 0 {
		c.SessionTimeout = prompt.DefaultTimeout
	}
	if c.PageSize <= 0 {
		c.PageSize = 10
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = 30 * time.Second
	}
	return c
}

// StatusSource reports scheduler state for /status.
type StatusSource interface {
	Snapshot() scheduler.Snapshot
}

type Deps struct {
	Adapter kit.Adapter
	Store   storage.Store
	Status  StatusSource
	// Runtime lists the subsystem supervisors shown by /status. Optional.
	Runtime *supervisor.Registry
	Log     logx.Logger
	Now     func() time.Time
}

type Bot struct {
	ad      kit.Adapter
	store   storage.Store
	status  StatusSource
	runtime *supervisor.Registry
	log     logx.Logger
	now     func() time.Time

	mu        sync.RWMutex
	cfg       Config
	commands  []Command
	byName    map[string]*Command
	callbacks map[string]CallbackRoute

	sessions *prompt.Registry
	wmu      sync.Mutex
	wizards  map[*prompt.Session]*promptHost

	runMu   sync.Mutex
	running bool
	sup     *supervisor.Supervisor
	jobs    chan func()
}

func New(cfg Config, d Deps) *Bot {
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	b := &Bot{
		ad:       d.Adapter,
		store:    d.Store,
		status:   d.Status,
		runtime:  d.Runtime,
		log:      d.Log.With(logx.Component("bot")),
		now:      d.Now,
		cfg:      cfg.withDefaults(),
		sessions: prompt.NewRegistry(),
		wizards:  map[*prompt.Session]*promptHost{},
	}
	b.register(b.builtinCommands(), b.builtinCallbacks())
	return b
}

// Apply swaps the hot-reloadable settings. Open wizards keep the timeout they
// started with.
func (b *Bot) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	cfg.Owners = append([]int64(nil), cfg.Owners...)
	b.mu.Lock()
	b.cfg = cfg
	b.mu.Unlock()
}

func (b *Bot) config() Config {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.cfg
}

// Sessions exposes the wizard registry (shutdown, tests).
func (b *Bot) Sessions() *prompt.Registry { return b.sessions }

func (b *Bot) register(cmds []Command, cbs []CallbackRoute) {
	byName := map[string]*Command{}
	for i := range cmds {
		c := &cmds[i]
		if c.Handle == nil || c.Name == "" {
			continue
		}
		byName[c.Name] = c
		for _, a := range c.Aliases {
			a = strings.ToLower(strings.TrimSpace(a))
			if a == "" || strings.Contains(a, " ") {
				continue
			}
			if _, exists := byName[a]; !exists {
				byName[a] = c
			}
		}
	}
	cb := map[string]CallbackRoute{}
	for _, r := range cbs {
		if a := strings.TrimSpace(r.Action); a != "" && r.Handle != nil {
			cb[a] = r
		}
	}
	b.mu.Lock()
	b.commands = cmds
	b.byName = byName
	b.callbacks = cb
	b.mu.Unlock()
}

func (b *Bot) lookup(word string) (Command, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	c, ok := b.byName[word]
	if !ok {
		return Command{}, false
	}
	return *c, true
}

func (b *Bot) isOwner(id int64) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, o := range b.cfg.Owners {
		if o == id {
			return true
		}
	}
	return false
}

// Supervisor returns the running supervisor, or nil.
func (b *Bot) Supervisor() *supervisor.Supervisor {
	b.runMu.Lock()
	defer b.runMu.Unlock()
	if !b.running {
		return nil
	}
	return b.sup
}

func (b *Bot) setRunning(sup *supervisor.Supervisor, jobs chan func(), running bool) {
	b.runMu.Lock()
	b.sup = sup
	b.jobs = jobs
	b.running = running
	b.runMu.Unlock()
}

// tryEnqueue is a panic-safe enqueue (the jobs channel may be closed).
func (b *Bot) tryEnqueue(fn func()) (ok bool) {
	b.runMu.Lock()
	jobs, running := b.jobs, b.running
	b.runMu.Unlock()
	if fn == nil || !running {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	select {
	case jobs <- fn:
		return true
	default:
		return false
	}
}

// Run routes updates until ctx ends or updates is closed. Open wizards are
// cancelled on the way out.
func (b *Bot) Run(ctx context.Context, updates <-chan kit.Update) error {
	workers := max(runtime.NumCPU(), 2)
	sup := supervisor.New(ctx,
		supervisor.WithLogger(b.log),
		supervisor.WithCancelOnError(false),
	)
	jobs := make(chan func(), 256)
	b.setRunning(sup, jobs, true)
	b.runtime.Set("bot", sup)
	b.log.Info("command dispatcher started", logx.Int("workers", workers), logx.Int("job_queue_cap", cap(jobs)))

	if up, ok := b.ad.(kit.CommandMenuUpdater); ok {
		b.mu.RLock()
		menu := menuCommands(b.commands)
		b.mu.RUnlock()
		sup.Go("telegram.menu.update", func(ctx context.Context) error {
			cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			if err := up.UpdateMenuCommands(cctx, menu); err != nil {
				b.log.Warn("menu update failed", logx.Err(err))
			}
			return nil
		})
	}

	for i := 0; i < workers; i++ {
		idx := i
		sup.GoRestart("command.worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job, ok := <-jobs:
					if !ok {
						return nil
					}
					if job != nil {
						b.runJob(idx, job)
					}
				}
			}
		},
			supervisor.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			supervisor.WithPublishFirstError(true),
			supervisor.WithStopOnCleanExit(true),
		)
	}

	defer func() {
		if n := b.sessions.CancelAll(); n > 0 {
			b.log.Info("open wizards cancelled", logx.Int("count", n))
		}
		b.setRunning(sup, nil, false)
		close(jobs)
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := sup.Wait(wctx); err != nil {
			b.log.Debug("dispatcher wait", logx.Err(err))
		}
		cancel()
		sup.Cancel()
		b.runtime.Delete("bot")
		b.setRunning(nil, nil, false)
		b.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			b.routeUpdate(ctx, up)
		}
	}
}

func (b *Bot) runJob(worker int, job func()) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("panic in command job", logx.Int("worker", worker), logx.Any("panic", r), logx.Stack(logx.CallerStack()))
		}
	}()
	job()
}

func (b *Bot) routeUpdate(ctx context.Context, up kit.Update) {
	switch up.Kind {
	case kit.UpdateMessage:
		if up.Message != nil {
			b.routeMessage(ctx, up)
		}
	case kit.UpdateCallback:
		if up.Callback != nil {
			b.routeCallback(ctx, up)
		}
	}
}

func (b *Bot) routeMessage(ctx context.Context, up kit.Update) {
	msg := up.Message
	to := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}
	word, rest, isCmd := splitCommand(msg.Text)
	if !isCmd {
		b.routeReply(ctx, msg)
		return
	}
	cmd, ok := b.lookup(word)
	if !ok {
		// In groups the command may belong to another bot.
		if !msg.IsGroup {
			b.reply(ctx, to, "Unknown command. Try /help")
		}
		return
	}
	if cmd.Access == AccessOwnerOnly && !b.isOwner(msg.FromID) {
		b.reply(ctx, to, "unauthorized")
		return
	}

	rid := newReqID()
	req := &Request{
		Update:   up,
		Chat:     to,
		FromID:   msg.FromID,
		FromName: msg.FromName,
		IsGroup:  msg.IsGroup,
		Command:  cmd.Name,
		Text:     rest,
		Args:     tokenizeCommandLine(rest),
		ReqID:    rid,
		Logger: b.log.With(
			logx.Request(rid),
			logx.Scope(msg.ChatID),
			logx.Int("thread_id", msg.ThreadID),
			logx.Author(msg.FromID),
		),
	}
	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = b.config().CommandTimeout
	}
	final := Chain(cmd.Handle,
		MWPanicRecover(b.log),
		MWRequestLog(b.log),
		MWTimeout(timeout),
	)
	if !b.tryEnqueue(func() { _ = final(ctx, req) }) {
		b.reply(ctx, to, "busy, try again")
	}
}

func (b *Bot) routeCallback(ctx context.Context, up kit.Update) {
	cb := up.Callback
	ns, action, payload, ok := tgui.ParseData(strings.TrimSpace(cb.Data))
	if !ok || ns != callbackNS {
		return
	}
	b.mu.RLock()
	route, ok := b.callbacks[action]
	b.mu.RUnlock()
	if !ok {
		_ = b.ad.AnswerCallback(ctx, cb.ID, "")
		return
	}

	rid := newReqID()
	req := &Request{
		Update:   up,
		Chat:     kit.ChatTarget{ChatID: cb.ChatID, ThreadID: cb.ThreadID},
		FromID:   cb.FromID,
		FromName: cb.FromName,
		IsGroup:  cb.ChatID != cb.FromID,
		Command:  "cb:" + action,
		Callback: cb,
		ReqID:    rid,
		Logger: b.log.With(
			logx.Request(rid),
			logx.Scope(cb.ChatID),
			logx.Author(cb.FromID),
		),
	}
	h := func(ctx context.Context, r *Request) error { return route.Handle(ctx, r, payload) }
	timeout := route.Timeout
	if timeout <= 0 {
		timeout = b.config().CommandTimeout
	}
	final := Chain(h,
		MWPanicRecover(b.log),
		MWRequestLog(b.log),
		MWTimeout(timeout),
	)
	if !b.tryEnqueue(func() {
		_ = final(ctx, req)
		if !req.answered {
			// stops the client's loading spinner
			_ = b.ad.AnswerCallback(ctx, cb.ID, "")
		}
	}) {
		_ = b.ad.AnswerCallback(ctx, cb.ID, "busy")
	}
}

// toast answers the callback of req with a short popup text.
func (b *Bot) toast(ctx context.Context, req *Request, text string) {
	if req.Callback == nil || req.answered {
		return
	}
	req.answered = true
	if err := b.ad.AnswerCallback(ctx, req.Callback.ID, text); err != nil {
		req.Logger.Debug("answer callback failed", logx.Err(err))
	}
}

func (b *Bot) reply(ctx context.Context, to kit.ChatTarget, text string) {
	if _, err := b.ad.SendText(ctx, to, text, &kit.SendOptions{DisablePreview: true}); err != nil {
		b.log.Warn("reply failed", logx.Scope(to.ChatID), logx.Err(err))
	}
}

func (b *Bot) send(ctx context.Context, to kit.ChatTarget, m tgui.Message) error {
	_, err := m.Send(ctx, b.ad, to)
	return err
}
