package bot

import (
	"time"

	"remindbot/internal/prompt"
)

func (b *Bot) builtinCommands() []Command {
	return []Command{
		{
			Name:        "set",
			Aliases:     []string{"remind"},
			Description: "set a new reminder",
			Usage:       "/set <reminder text>",
			Handle:      b.cmdSet,
		},
		{
			Name:        "list",
			Aliases:     []string{"ls"},
			Description: "list the reminders of this chat",
			Usage:       "/list [page] [mine]",
			Handle:      b.cmdList,
		},
		{
			Name:        "remove",
			Aliases:     []string{"rm", "delete"},
			Description: "remove a reminder (use /list to get its id)",
			Usage:       "/remove <id>",
			Handle:      b.cmdRemove,
		},
		{
			Name:        "cancel",
			Description: "stop setting up a reminder",
			Usage:       "/cancel",
			Handle:      b.cmdCancel,
		},
		{
			Name:        "settings",
			Description: "view or change this chat's settings",
			Usage: "/settings\n" +
				"/settings timezone <IANA name>\n" +
				"/settings channel [here|none|<chat_id>[:<thread_id>]]\n" +
				"/settings role [<title>|none]",
			Handle: b.cmdSettings,
		},
		{
			Name:        "help",
			Aliases:     []string{"h", "start"},
			Description: "show this help",
			Usage:       "/help [cmd]",
			Handle:      b.cmdHelp,
		},
		{
			Name:        "status",
			Description: "scheduler and runtime status",
			Usage:       "/status",
			Access:      AccessOwnerOnly,
			Timeout:     10 * time.Second,
			Handle:      b.cmdStatus,
		},
	}
}

func (b *Bot) builtinCallbacks() []CallbackRoute {
	return []CallbackRoute{
		{Action: actOption, Handle: b.cbWizard(prompt.InputChoose)},
		{Action: actBack, Handle: b.cbWizard(prompt.InputBack)},
		{Action: actCancel, Handle: b.cbWizard(prompt.InputCancel)},
		{Action: actList, Handle: b.cbList},
	}
}
