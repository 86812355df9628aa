package main

import (
	"github.com/spf13/cobra"
)

// rootOptions holds global flags for all commands.
type rootOptions struct {
	ConfigPath string
	LogLevel   string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "remindbot",
		Short: "Telegram reminder bot",
		Long: `remindbot lets chat members schedule one-off and recurring reminders
through a guided inline-button dialog, and posts them when they fall due.

"serve" runs the bot. The other commands open the configured store directly
and are meant for operators while the bot is stopped.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "./config.yaml", "path to config (json or yaml)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "warn", "log level for the operator commands")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newListCommand(opts))
	cmd.AddCommand(newRemoveCommand(opts))
	cmd.AddCommand(newSettingsCommand(opts))

	return cmd
}
