package telegram

import (
	"context"
	"fmt"

	tele "gopkg.in/telebot.v4"

	"remindbot/internal/reminder"
	"remindbot/internal/scheduler"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
	"remindbot/pkg/tgui"
)

var _ scheduler.Delivery = (*Adapter)(nil)

// Probe checks the destination chat and that the author is still a member of
// the chat the reminder was created in.
func (a *Adapter) Probe(ctx context.Context, r reminder.Record, destination string) error {
	if err := ctx.Err(); err != nil {
		return classify(err)
	}
	to, err := kit.ParseDestination(destination)
	if err != nil {
		return fmt.Errorf("%w: %w", scheduler.ErrTargetGone, err)
	}
	if _, err := a.api.ChatByID(to.ChatID); err != nil {
		return classify(err)
	}
	m, err := a.MemberOf(ctx, r.ScopeID, r.AuthorID)
	if err != nil {
		return classify(err)
	}
	if !m.Present() {
		return fmt.Errorf("%w: author %d is %s in %d", scheduler.ErrTargetGone, r.AuthorID, m.Role, r.ScopeID)
	}
	return nil
}

// Dispatch posts the reminder, mentioning its author.
func (a *Adapter) Dispatch(ctx context.Context, r reminder.Record, destination string) error {
	to, err := kit.ParseDestination(destination)
	if err != nil {
		return fmt.Errorf("%w: %w", scheduler.ErrTargetGone, err)
	}
	_, err = a.SendText(ctx, to, reminderText(r), &kit.SendOptions{ParseMode: tele.ModeHTML, DisablePreview: true})
	return classify(err)
}

// NotifyFailure tells the author, in a private chat, that the reminder could
// not be posted. Errors are only logged.
func (a *Adapter) NotifyFailure(ctx context.Context, r reminder.Record, destination string) {
	msg := tgui.New().
		Title("⚠️", "Reminder not delivered").
		Line(fmt.Sprintf("Your reminder %q could not be sent to %s due to missing permissions.", r.Text, destination)).
		Line("Ask a chat admin to let me post there, or change the channel with /settings.").
		Build()
	if _, err := a.SendText(ctx, kit.ChatTarget{ChatID: r.AuthorID}, msg.Text, msg.Opt); err != nil {
		a.log.Warn("notify author failed", logx.ReminderID(r.ID), logx.Author(r.AuthorID), logx.Err(err))
	}
}

func reminderText(r reminder.Record) string {
	name := r.AuthorName
	if name == "" {
		name = "you"
	}
	b := tgui.New().
		RawLine("⏰ " + tgui.Mention(name, r.AuthorID).String() + ", reminder:").
		RawLine(tgui.Quote(r.Text).String())
	if r.Recurring() {
		b.RawLine(tgui.I("Repeats every " + r.Interval).String())
	}
	return b.Build().Text
}
