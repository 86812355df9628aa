package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"

	"remindbot/internal/prompt"
	"remindbot/internal/reminder"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
	"remindbot/pkg/tgui"
)

const actList = "list"

// cmdSet opens a wizard for the text after /set. The request returns once the
// anchor message is posted; the wizard itself runs under the supervisor.
func (b *Bot) cmdSet(ctx context.Context, req *Request) error {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		b.reply(ctx, req.Chat, "Usage: /set <reminder text>")
		return nil
	}
	if b.sessions.IsOpen(req.FromID) {
		b.reply(ctx, req.Chat, "You are already setting a reminder, finish that one first!")
		return nil
	}
	sup := b.Supervisor()
	if sup == nil {
		return errNotRunning
	}
	st, err := b.store.Settings(ctx, req.Chat.ChatID)
	if err != nil {
		return fmt.Errorf("settings: %w", err)
	}

	cfg := b.config()
	m := prompt.NewMachine(text, prompt.Options{Location: st.Location(), Now: b.now, MinRepeat: cfg.MinRepeat})
	s := prompt.NewSession(req.FromID, m, cfg.SessionTimeout)
	if err := b.sessions.Open(s); err != nil {
		if errors.Is(err, prompt.ErrSessionConflict) {
			b.reply(ctx, req.Chat, "You are already setting a reminder, finish that one first!")
			return nil
		}
		return err
	}

	first := renderView(m.View(), "")
	ref, err := first.Send(ctx, b.ad, req.Chat)
	if err != nil {
		b.sessions.Release(s)
		return fmt.Errorf("post wizard: %w", err)
	}
	host := &promptHost{ad: b.ad, ref: ref, log: req.Logger, last: first.Text, wantText: m.View().Kind == prompt.KindText}
	host.gone = func() { b.sessions.CancelAnchor(anchorKey(ref)) }
	b.wmu.Lock()
	b.wizards[s] = host
	b.wmu.Unlock()
	s.SetAnchor(anchorKey(ref))

	origin := prompt.Origin{
		AuthorID:      req.FromID,
		AuthorName:    req.FromName,
		ScopeID:       req.Chat.ChatID,
		DestinationID: kit.FormatDestination(req.Chat),
	}
	log := req.Logger
	sup.Go("prompt.session", func(ctx context.Context) error {
		return b.runWizard(ctx, s, host, origin, log)
	})
	return nil
}

func (b *Bot) runWizard(ctx context.Context, s *prompt.Session, host *promptHost, o prompt.Origin, log logx.Logger) error {
	defer func() {
		b.sessions.Release(s)
		b.wmu.Lock()
		delete(b.wizards, s)
		b.wmu.Unlock()
	}()

	out, err := s.Run(ctx, host)
	log.Debug("wizard finished", logx.String("outcome", out.String()), logx.Err(err))
	if out != prompt.Completed {
		return nil
	}
	rec, err := prompt.BuildRecord(s.Machine(), o, b.now())
	if err == nil {
		err = b.store.Insert(ctx, rec)
	}
	rctx := context.WithoutCancel(ctx)
	if err != nil {
		log.Error("save reminder failed", logx.Err(err))
		v := s.Machine().View()
		v.State, v.Title = prompt.Cancelled, "Reminder not saved!"
		if rerr := host.show(rctx, v, "Something went wrong, please try /set again."); rerr != nil {
			b.reply(rctx, host.ref.Target(), "Sorry, the reminder could not be saved. Please try /set again.")
		}
		return fmt.Errorf("save reminder: %w", err)
	}
	if err := host.Render(rctx, s.Machine().View()); err != nil {
		log.Debug("render finished wizard failed", logx.Err(err))
	}
	log.Info("reminder set",
		logx.ReminderID(rec.ID),
		logx.Scope(rec.ScopeID),
		logx.Int64("due_at", rec.DueAt),
		logx.String("interval", rec.Interval),
	)
	return nil
}

// wizardFor finds the wizard the callback's message belongs to.
func (b *Bot) wizardFor(req *Request) (*prompt.Session, bool) {
	if req.Callback == nil {
		return nil, false
	}
	ref := kit.MessageRef{ChatID: req.Callback.ChatID, MessageID: req.Callback.MessageID}
	return b.sessions.ByAnchor(anchorKey(ref))
}

func (b *Bot) cbWizard(kind prompt.InputKind) CallbackHandlerFunc {
	return func(ctx context.Context, req *Request, payload string) error {
		s, ok := b.wizardFor(req)
		if !ok {
			b.toast(ctx, req, "This prompt is no longer active.")
			return nil
		}
		if s.Author != req.FromID {
			b.toast(ctx, req, "This isn't your reminder!")
			return nil
		}
		if kind == prompt.InputCancel {
			// frees the slot before the wizard renders its last view
			b.sessions.Cancel(s.Author)
			return nil
		}
		if !s.Deliver(prompt.Input{Kind: kind, Value: payload}) {
			b.toast(ctx, req, "Slow down a little.")
		}
		return nil
	}
}

// routeReply feeds a plain message to the author's wizard when it waits for
// text in that chat.
func (b *Bot) routeReply(_ context.Context, msg *kit.Message) {
	s, ok := b.sessions.Get(msg.FromID)
	if !ok {
		return
	}
	b.wmu.Lock()
	host := b.wizards[s]
	b.wmu.Unlock()
	if host == nil || host.ref.ChatID != msg.ChatID || !host.expectsText() {
		return
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}
	if !s.Deliver(prompt.Input{Kind: prompt.InputSubmit, Value: text}) {
		b.log.Debug("wizard input dropped", logx.Author(msg.FromID))
	}
}

func (b *Bot) cmdCancel(ctx context.Context, req *Request) error {
	if b.sessions.Cancel(req.FromID) {
		b.reply(ctx, req.Chat, "Reminder setup cancelled.")
		return nil
	}
	b.reply(ctx, req.Chat, "You have no reminder being set up.")
	return nil
}

// listed is a record with its 1-based ordinal in the chat's full list, the
// number /remove takes.
type listed struct {
	ord int
	rec reminder.Record
}

type listView struct {
	owner int64
	mine  bool
	page  int
}

func (v listView) data(page int) string {
	filter := "all"
	if v.mine {
		filter = "mine"
	}
	return tgui.Data(callbackNS, actList, fmt.Sprintf("%d:%s:%d", v.owner, filter, page))
}

func (v listView) toggled() listView { return listView{owner: v.owner, mine: !v.mine} }

func parseListPayload(p string) (listView, error) {
	parts := strings.Split(p, ":")
	if len(parts) != 3 {
		return listView{}, fmt.Errorf("bad list payload %q", p)
	}
	owner, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return listView{}, fmt.Errorf("bad list owner %q", parts[0])
	}
	page, err := strconv.Atoi(parts[2])
	if err != nil {
		return listView{}, fmt.Errorf("bad list page %q", parts[2])
	}
	return listView{owner: owner, mine: parts[1] == "mine", page: page}, nil
}

func (b *Bot) cmdList(ctx context.Context, req *Request) error {
	v := listView{owner: req.FromID}
	for _, a := range req.Args {
		if strings.EqualFold(a, "mine") {
			v.mine = true
			continue
		}
		if n, err := strconv.Atoi(a); err == nil {
			v.page = n - 1
		}
	}
	msg, err := b.renderList(ctx, req.Chat.ChatID, v)
	if err != nil {
		return err
	}
	return b.send(ctx, req.Chat, msg)
}

func (b *Bot) cbList(ctx context.Context, req *Request, payload string) error {
	v, err := parseListPayload(payload)
	if err != nil {
		return err
	}
	if v.owner != req.FromID {
		b.toast(ctx, req, "This isn't your list!")
		return nil
	}
	msg, err := b.renderList(ctx, req.Callback.ChatID, v)
	if err != nil {
		return err
	}
	ref := kit.MessageRef{ChatID: req.Callback.ChatID, ThreadID: req.Callback.ThreadID, MessageID: req.Callback.MessageID}
	if err := msg.Edit(ctx, b.ad, ref); err != nil && !errors.Is(err, kit.ErrAnchorGone) {
		return err
	}
	return nil
}

func (b *Bot) renderList(ctx context.Context, scope int64, v listView) (tgui.Message, error) {
	recs, err := b.store.ByScope(ctx, scope)
	if err != nil {
		return tgui.Message{}, fmt.Errorf("list: %w", err)
	}
	st, err := b.store.Settings(ctx, scope)
	if err != nil {
		return tgui.Message{}, fmt.Errorf("settings: %w", err)
	}
	items := make([]listed, 0, len(recs))
	for i, r := range recs {
		if v.mine && r.AuthorID != v.owner {
			continue
		}
		items = append(items, listed{ord: i + 1, rec: r})
	}
	page := tgui.Paginate(items, v.page, b.config().PageSize)

	title := "Reminders"
	if v.mine {
		title = "My reminders"
	}
	mb := tgui.New().Title("📋", title)
	if page.Total == 0 {
		mb.Line("No reminders yet. Create one with /set <text>.")
	}
	loc := st.Location()
	for _, it := range page.Items {
		mb.RawLine(tgui.B(strconv.Itoa(it.ord)+":").String() + " " + tgui.Esc(it.rec.Summary(loc)).String())
	}
	mb.Blank().RawLine(tgui.I(page.Label() + " • times in " + loc.String()).String())

	kb := tgui.NewInline()
	nav := make([]tele.Btn, 0, 2)
	if page.HasPrev {
		nav = append(nav, tgui.Btn("◀", v.data(page.Index-1)))
	}
	if page.HasNext {
		nav = append(nav, tgui.Btn("▶", v.data(page.Index+1)))
	}
	kb.Row(nav...)
	toggle := "Show my reminders only"
	if v.mine {
		toggle = "Show all reminders"
	}
	kb.Row(tgui.Btn(toggle, v.toggled().data(0)))
	return mb.Inline(kb).Build(), nil
}

func (b *Bot) cmdRemove(ctx context.Context, req *Request) error {
	if len(req.Args) != 1 {
		b.reply(ctx, req.Chat, "Usage: /remove <id> (the number shown by /list)")
		return nil
	}
	n, err := strconv.Atoi(req.Args[0])
	if err != nil || n < 1 {
		b.reply(ctx, req.Chat, "The id must be a positive number from /list.")
		return nil
	}
	recs, err := b.store.ByScope(ctx, req.Chat.ChatID)
	if err != nil {
		return fmt.Errorf("list: %w", err)
	}
	if n > len(recs) {
		b.reply(ctx, req.Chat, "No reminder exists with that id.")
		return nil
	}
	rec := recs[n-1]
	st, err := b.store.Settings(ctx, req.Chat.ChatID)
	if err != nil {
		return fmt.Errorf("settings: %w", err)
	}
	if rec.AuthorID != req.FromID {
		ok, err := b.canManage(ctx, req, st)
		if err != nil {
			return err
		}
		if !ok {
			b.reply(ctx, req.Chat, "You cannot remove a reminder that is not yours.")
			return nil
		}
	}
	if err := b.store.Remove(ctx, rec.ID); err != nil {
		return fmt.Errorf("remove: %w", err)
	}
	req.Logger.Info("reminder removed", logx.ReminderID(rec.ID), logx.Author(rec.AuthorID))
	msg := tgui.New().
		Title("🗑", "Reminder removed!").
		RawLine(tgui.B(strconv.Itoa(n)+":").String() + " " + tgui.Esc(rec.Summary(st.Location())).String()).
		Build()
	return b.send(ctx, req.Chat, msg)
}
