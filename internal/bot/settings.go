package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"remindbot/internal/reminder"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
	"remindbot/pkg/tgui"
)

// canManage reports whether the requester may remove other people's
// reminders: holders of the chat's manager role, or chat admins when no role
// is configured.
func (b *Bot) canManage(ctx context.Context, req *Request, st reminder.Settings) (bool, error) {
	if !req.IsGroup {
		return true, nil
	}
	m, err := b.ad.MemberOf(ctx, req.Chat.ChatID, req.FromID)
	if err != nil {
		return false, fmt.Errorf("member lookup: %w", err)
	}
	if role := strings.TrimSpace(st.ManagerRole); role != "" {
		return m.HasRole(role), nil
	}
	return m.Admin(), nil
}

// canConfigure reports whether the requester may change the chat's settings.
func (b *Bot) canConfigure(ctx context.Context, req *Request) (bool, error) {
	if !req.IsGroup {
		return true, nil
	}
	m, err := b.ad.MemberOf(ctx, req.Chat.ChatID, req.FromID)
	if err != nil {
		return false, fmt.Errorf("member lookup: %w", err)
	}
	return m.Admin(), nil
}

func (b *Bot) cmdSettings(ctx context.Context, req *Request) error {
	if len(req.Args) == 0 || strings.EqualFold(req.Args[0], "view") {
		return b.showSettings(ctx, req)
	}
	ok, err := b.canConfigure(ctx, req)
	if err != nil {
		return err
	}
	if !ok {
		b.reply(ctx, req.Chat, "You must be a chat administrator to edit settings!")
		return nil
	}
	st, err := b.store.Settings(ctx, req.Chat.ChatID)
	if err != nil {
		return fmt.Errorf("settings: %w", err)
	}

	sub, args := strings.ToLower(req.Args[0]), req.Args[1:]
	var changed string
	switch sub {
	case "timezone", "tz":
		if len(args) != 1 {
			b.reply(ctx, req.Chat, "Usage: /settings timezone <IANA name, e.g. Europe/London>")
			return nil
		}
		loc, err := time.LoadLocation(args[0])
		if err != nil || args[0] == "" || strings.EqualFold(args[0], "local") {
			b.reply(ctx, req.Chat, fmt.Sprintf("No timezone %q found! Use an IANA name like Asia/Jakarta.", args[0]))
			return nil
		}
		st.Timezone = loc.String()
		changed = "New timezone: " + st.Timezone
	case "channel":
		dest, msg, err := b.parseChannel(ctx, req, args)
		if err != nil {
			return err
		}
		if msg != "" {
			b.reply(ctx, req.Chat, msg)
			return nil
		}
		st.Destination = dest
		if dest == "" {
			changed = "Reminder channel unset."
		} else {
			changed = "New reminder channel: " + dest
		}
	case "role":
		role := strings.TrimSpace(strings.Join(args, " "))
		if strings.EqualFold(role, "none") {
			role = ""
		}
		st.ManagerRole = role
		if role == "" {
			changed = "Manager role unset."
		} else {
			changed = "New manager role: " + role
		}
	default:
		b.reply(ctx, req.Chat, "Usage: /settings [timezone|channel|role] ...")
		return nil
	}

	st.ScopeID = req.Chat.ChatID
	st.UpdatedAt = b.now().UTC()
	if err := b.store.PutSettings(ctx, st); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	req.Logger.Info("settings changed", logx.String("setting", sub), logx.String("value", changed))
	return b.send(ctx, req.Chat, tgui.New().Title("⚙️", "Setting changed!").Line(changed).Build())
}

// parseChannel resolves the /settings channel argument. A non-empty msg is a
// user-facing refusal.
func (b *Bot) parseChannel(ctx context.Context, req *Request, args []string) (dest, msg string, err error) {
	if len(args) == 0 || strings.EqualFold(args[0], "none") {
		return "", "", nil
	}
	if len(args) != 1 {
		return "", "Usage: /settings channel [here|none|<chat_id>[:<thread_id>]]", nil
	}
	if strings.EqualFold(args[0], "here") {
		return kit.FormatDestination(req.Chat), "", nil
	}
	to, perr := kit.ParseDestination(args[0])
	if perr != nil {
		return "", fmt.Sprintf("%q is not a chat id.", args[0]), nil
	}
	if to.ChatID != req.Chat.ChatID {
		m, err := b.ad.MemberOf(ctx, to.ChatID, req.FromID)
		if err != nil || !m.Admin() {
			return "", fmt.Sprintf("No chat %s found that you administer.", args[0]), nil
		}
	}
	return kit.FormatDestination(to), "", nil
}

func (b *Bot) showSettings(ctx context.Context, req *Request) error {
	st, err := b.store.Settings(ctx, req.Chat.ChatID)
	if err != nil {
		return fmt.Errorf("settings: %w", err)
	}
	channel := st.Destination
	if channel == "" {
		channel = "none (reminders go to the chat they were set in)"
	}
	role := st.ManagerRole
	if role == "" {
		role = "none (chat administrators can remove any reminder)"
	}
	msg := tgui.New().
		Title("⚙️", "Reminder settings").
		KV("Timezone 🕒", st.Location().String()).
		KV("Reminder channel 📢", channel).
		KV("Manager role 🛠️", role).
		Blank().
		Line("All times entered in this chat are read in its timezone.").
		RawLine("Change with " + tgui.Code("/settings timezone <name>").String() + ", " +
			tgui.Code("/settings channel [here|none|<chat_id>]").String() + " or " +
			tgui.Code("/settings role [<title>|none]").String() + ".").
		Build()
	return b.send(ctx, req.Chat, msg)
}
