package bot

import (
	"context"
	"strings"

	"remindbot/pkg/tgui"
)

func (b *Bot) cmdHelp(ctx context.Context, req *Request) error {
	topic := ""
	if len(req.Args) > 0 {
		topic = strings.ToLower(strings.TrimPrefix(req.Args[0], "/"))
	}
	return b.send(ctx, req.Chat, b.helpText(topic, b.isOwner(req.FromID)))
}

// helpText renders the command overview, or the details of one command.
func (b *Bot) helpText(topic string, owner bool) tgui.Message {
	if topic != "" {
		c, ok := b.lookup(topic)
		if !ok {
			return tgui.New().
				Title("❓", "Unknown command").
				RawLine("Type " + tgui.Code("/help").String() + " to see every command.").
				Build()
		}
		return helpCommand(c)
	}

	b.mu.RLock()
	cmds := append([]Command(nil), b.commands...)
	b.mu.RUnlock()

	mb := tgui.New().
		Title("📚", "Reminder bot").
		Line("Set reminders for yourself or your group. Times are read in the chat's timezone.").
		RawLine("Type " + tgui.Code("/help <cmd>").String() + " for details.").
		Blank()
	for _, c := range cmds {
		if c.Access == AccessOwnerOnly && !owner {
			continue
		}
		prefix := "• "
		if c.Access == AccessOwnerOnly {
			prefix = "• 🔒 "
		}
		line := prefix + tgui.Code("/"+c.Name).String()
		if d := strings.TrimSpace(c.Description); d != "" {
			line += " - " + tgui.Esc(d).String()
		}
		mb.RawLine(line)
	}
	return mb.Build()
}

func helpCommand(c Command) tgui.Message {
	mb := tgui.New().RawLine("📚 " + tgui.B("Help").String() + " " + tgui.Code("/"+c.Name).String())
	if d := strings.TrimSpace(c.Description); d != "" {
		mb.Line(d)
	}
	if c.Access == AccessOwnerOnly {
		mb.RawLine("🔒 " + tgui.I("Bot owners only").String())
	}
	if u := strings.TrimSpace(c.Usage); u != "" {
		mb.Blank().RawLine(tgui.B("Usage").String())
		for _, l := range strings.Split(u, "\n") {
			mb.RawLine(tgui.Code(l).String())
		}
	}
	if len(c.Aliases) > 0 {
		mb.Blank().RawLine(tgui.B("Shortcut").String())
		for _, a := range c.Aliases {
			mb.RawLine("• " + tgui.Code("/"+a).String())
		}
	}
	return mb.Build()
}
