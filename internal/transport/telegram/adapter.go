// Package telegram implements transport.Adapter and the scheduler's Delivery
// port on top of telebot.
package telegram

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	rtsup "remindbot/internal/runtime/supervisor"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
}

// botAPI is the subset of *tele.Bot the adapter calls. Tests swap it out.
type botAPI interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
	Edit(msg tele.Editable, what interface{}, opts ...interface{}) (*tele.Message, error)
	Respond(c *tele.Callback, resp ...*tele.CallbackResponse) error
	ChatByID(id int64) (*tele.Chat, error)
	ChatMemberOf(chat, user tele.Recipient) (*tele.ChatMember, error)
	SetCommands(opts ...interface{}) error
}

type Adapter struct {
	cfg Config
	log logx.Logger

	bot     *tele.Bot
	api     botAPI
	out     atomic.Value // stores (chan<- kit.Update)
	runMu   sync.Mutex
	running bool

	// sup owns the poll loop and the drop reporter. Created on Start().
	sup *rtsup.Supervisor

	// droppedUpdates counts updates dropped because the consumer was slower
	// than the poll loop. Reported periodically, not per update.
	droppedUpdates atomic.Uint64

	menuMu   sync.Mutex
	menuHash uint64
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	a := newAdapter(cfg, b, log)
	a.bot = b
	a.registerHandlers()
	return a, nil
}

func newAdapter(cfg Config, api botAPI, log logx.Logger) *Adapter {
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Adapter{cfg: cfg, log: log, api: api}
	// Ensure atomic.Value is initialized with a stable dynamic type.
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	return a
}

// Supervisor returns the adapter's supervisor (nil if not started), for /status.
func (a *Adapter) Supervisor() *rtsup.Supervisor {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	return a.sup
}

func (a *Adapter) registerHandlers() {
	// Handlers forward to the CURRENT output channel. Start() may swap it.
	a.bot.Handle(tele.OnText, func(c tele.Context) error {
		if up, ok := messageUpdate(c.Message()); ok {
			a.sendUpdate(up)
		}
		return nil
	})
	a.bot.Handle(tele.OnCallback, func(c tele.Context) error {
		if up, ok := callbackUpdate(c.Callback()); ok {
			a.sendUpdate(up)
		}
		return nil
	})
}

func messageUpdate(m *tele.Message) (kit.Update, bool) {
	if m == nil || m.Sender == nil || m.Chat == nil {
		return kit.Update{}, false
	}
	return kit.Update{
		Kind: kit.UpdateMessage,
		Message: &kit.Message{
			ID:           m.ID,
			ChatID:       m.Chat.ID,
			ThreadID:     m.ThreadID,
			FromID:       m.Sender.ID,
			FromUsername: m.Sender.Username,
			FromName:     displayName(m.Sender),
			Text:         m.Text,
			IsGroup:      m.Chat.Type != tele.ChatPrivate,
		},
	}, true
}

func callbackUpdate(cb *tele.Callback) (kit.Update, bool) {
	if cb == nil || cb.Sender == nil || cb.Message == nil || cb.Message.Chat == nil {
		return kit.Update{}, false
	}
	m := cb.Message
	return kit.Update{
		Kind: kit.UpdateCallback,
		Callback: &kit.Callback{
			ID:        cb.ID,
			ChatID:    m.Chat.ID,
			ThreadID:  m.ThreadID,
			FromID:    cb.Sender.ID,
			FromName:  displayName(cb.Sender),
			MessageID: m.ID,
			Data:      strings.TrimPrefix(cb.Data, "\f"),
		},
	}, true
}

func displayName(u *tele.User) string {
	name := strings.TrimSpace(strings.TrimSpace(u.FirstName + " " + u.LastName))
	if name == "" && u.Username != "" {
		name = "@" + u.Username
	}
	return name
}

func (a *Adapter) sendUpdate(up kit.Update) {
	out, _ := a.out.Load().(chan<- kit.Update)
	if out == nil {
		return
	}
	select {
	case out <- up:
	default:
		a.droppedUpdates.Add(1)
	}
}

func (a *Adapter) Start(ctx context.Context, out chan<- kit.Update) error {
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	if a.bot == nil {
		a.runMu.Unlock()
		return errors.New("telegram adapter has no bot to poll")
	}
	a.running = true
	a.out.Store(out)
	a.sup = rtsup.New(ctx,
		rtsup.WithLogger(a.log.With(logx.Component("telegram.adapter"))),
		// adapter errors should not take down the whole app
		rtsup.WithCancelOnError(false),
	)
	sup := a.sup
	a.runMu.Unlock()

	report := func() {
		if n := a.droppedUpdates.Swap(0); n > 0 {
			a.log.Warn("incoming updates dropped (channel full)", logx.Uint64("count", n), logx.Int("chan_cap", cap(out)))
		}
	}
	sup.Go0("updates.drop_report", func(c context.Context) {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-c.Done():
				report()
				return
			case <-ticker.C:
				report()
			}
		}
	})

	sup.Go0("telebot.stop_on_cancel", func(c context.Context) {
		<-c.Done()
		a.bot.Stop()
	})

	// bot.Start() blocks until Stop(); it can also return unexpectedly, so it
	// runs under a restart loop.
	sup.GoRestart("telebot.poll", func(c context.Context) error {
		a.log.Info("polling started")
		a.bot.Start()
		a.log.Info("polling stopped")
		return nil
	},
		rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
		rtsup.WithPublishFirstError(true),
		rtsup.WithStopOnCleanExit(false),
	)
	return nil
}

// Stop never blocks shutdown for long on a pending getUpdates long-poll.
func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	sup := a.sup
	a.sup = nil
	wasRunning := a.running
	a.running = false
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.runMu.Unlock()

	if !wasRunning || sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.Uint64("dropped_updates_pending", a.droppedUpdates.Load()))
	sup.Cancel()
	go a.bot.Stop()

	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	wctx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()
	if err := sup.Wait(wctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			a.log.Warn("telegram stop timed out", logx.Err(err))
			return nil
		}
		a.log.Debug("telegram stopped with supervisor error", logx.Err(err))
	}
	return nil
}

func sendOptions(opt *kit.SendOptions, threadID int) *tele.SendOptions {
	so := &tele.SendOptions{ThreadID: threadID}
	if opt == nil {
		return so
	}
	so.ParseMode = opt.ParseMode
	so.DisableWebPagePreview = opt.DisablePreview
	if rm, ok := opt.ReplyMarkupAdapter.(*tele.ReplyMarkup); ok {
		so.ReplyMarkup = rm
	}
	return so
}

// SendText sends text, split into chunks Telegram accepts. Markup is attached
// to the first chunk only; the returned ref points at it.
func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	parseMode := ""
	if opt != nil {
		parseMode = opt.ParseMode
	}
	chat := &tele.Chat{ID: to.ChatID}
	var first kit.MessageRef
	for i, chunk := range splitTelegramText(text, telegramTextLimit, parseMode) {
		if err := ctx.Err(); err != nil {
			return first, err
		}
		so := sendOptions(opt, to.ThreadID)
		if i > 0 {
			so.ReplyMarkup = nil
		}
		msg, err := a.api.Send(chat, chunk, so)
		if err != nil {
			return first, err
		}
		if i == 0 {
			first = kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}
		}
	}
	return first, nil
}

// EditText replaces the text and markup of ref. A deleted message is reported
// as kit.ErrAnchorGone; an identical edit is not an error.
func (a *Adapter) EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	parseMode := ""
	if opt != nil {
		parseMode = opt.ParseMode
	}
	chunks := splitTelegramText(text, telegramTextLimit, parseMode)
	m := &tele.Message{ID: ref.MessageID, Chat: &tele.Chat{ID: ref.ChatID}}
	// Omitting the markup drops the old keyboard.
	if _, err := a.api.Edit(m, chunks[0], sendOptions(opt, 0)); err != nil {
		switch {
		case isNotModified(err):
		case isAnchorGone(err):
			return kit.ErrAnchorGone
		default:
			return err
		}
	}
	for _, chunk := range chunks[1:] {
		if _, err := a.api.Send(m.Chat, chunk, sendOptions(&kit.SendOptions{ParseMode: parseMode}, ref.ThreadID)); err != nil {
			return err
		}
	}
	return nil
}

func (a *Adapter) AnswerCallback(ctx context.Context, callbackID string, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return a.api.Respond(&tele.Callback{ID: callbackID}, &tele.CallbackResponse{Text: text})
}

// MemberOf reports the user's status in the chat. Private chats have the user
// as their only member.
func (a *Adapter) MemberOf(ctx context.Context, chatID, userID int64) (kit.Member, error) {
	if err := ctx.Err(); err != nil {
		return kit.Member{}, err
	}
	if chatID == userID {
		return kit.Member{Role: kit.RoleCreator}, nil
	}
	cm, err := a.api.ChatMemberOf(&tele.Chat{ID: chatID}, &tele.User{ID: userID})
	if err != nil {
		return kit.Member{}, err
	}
	return kit.Member{Role: string(cm.Role), Title: cm.Title}, nil
}

// SendLog implements logx.Sender for the chat log sink.
func (a *Adapter) SendLog(ctx context.Context, chatID int64, threadID int, text string) error {
	_, err := a.SendText(ctx, kit.ChatTarget{ChatID: chatID, ThreadID: threadID}, text, &kit.SendOptions{DisablePreview: true})
	return err
}

// UpdateMenuCommands updates Telegram's command list (setMyCommands). It only
// calls the API when the list changed.
func (a *Adapter) UpdateMenuCommands(ctx context.Context, cmds []kit.BotCommand) error {
	a.menuMu.Lock()
	defer a.menuMu.Unlock()

	h := fnv.New64a()
	list := make([]tele.Command, 0, len(cmds))
	for _, c := range cmds {
		if c.Command == "" {
			continue
		}
		d := c.Description
		if d == "" {
			d = c.Command
		}
		if len(d) > 256 {
			d = d[:256]
		}
		h.Write([]byte(c.Command))
		h.Write([]byte{0})
		h.Write([]byte(d))
		h.Write([]byte{0})
		list = append(list, tele.Command{Text: c.Command, Description: d})
		if len(list) >= 100 {
			break
		}
	}
	sum := h.Sum64()
	if sum == a.menuHash {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := a.api.SetCommands(list); err != nil {
		return err
	}
	a.menuHash = sum
	a.log.Info("menu commands updated", logx.Int("count", len(list)))
	return nil
}
