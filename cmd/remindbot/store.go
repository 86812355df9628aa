package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"remindbot/internal/app"
	"remindbot/internal/reminder"
	"remindbot/internal/storage"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

func withStore(ctx context.Context, opts *rootOptions, fn func(st *storage.Defaulted) error) error {
	st, err := app.OpenStore(ctx, opts.ConfigPath, logx.NewConsole(opts.LogLevel))
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(st)
}

func newListCommand(opts *rootOptions) *cobra.Command {
	var chat, author int64
	cmd := &cobra.Command{
		Use:   "list --chat <id>",
		Short: "List a chat's reminders in /list order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd.Context(), opts, func(st *storage.Defaulted) error {
				return runList(cmd.Context(), cmd.OutOrStdout(), st, chat, author)
			})
		},
	}
	cmd.Flags().Int64Var(&chat, "chat", 0, "chat id")
	cmd.Flags().Int64Var(&author, "author", 0, "only reminders set by this user id")
	_ = cmd.MarkFlagRequired("chat")
	return cmd
}

func runList(ctx context.Context, w io.Writer, st storage.Store, chat, author int64) error {
	recs, err := st.ByScope(ctx, chat)
	if err != nil {
		return err
	}
	settings, err := st.Settings(ctx, chat)
	if err != nil {
		return err
	}
	loc := settings.Location()

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tID\tAUTHOR\tDUE\tREPEAT\tTEXT")
	n := 0
	for i, r := range recs {
		if author != 0 && r.AuthorID != author {
			continue
		}
		n++
		repeat := r.Interval
		if repeat == "" {
			repeat = "-"
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\t%s\n",
			i+1, r.ID, r.AuthorID,
			time.Unix(r.DueAt, 0).In(loc).Format("2006-01-02 15:04 MST"),
			repeat, oneLine(r.Text, 60),
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if n == 0 {
		fmt.Fprintln(w, "no reminders")
	}
	return nil
}

func oneLine(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > max {
		return string(r[:max-1]) + "…"
	}
	return s
}

func newRemoveCommand(opts *rootOptions) *cobra.Command {
	var chat int64
	cmd := &cobra.Command{
		Use:   "remove --chat <id> <ordinal|record-id>",
		Short: "Remove a reminder by its /list number or its record id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), opts, func(st *storage.Defaulted) error {
				rec, err := runRemove(cmd.Context(), st, chat, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %s: %s\n", rec.ID, oneLine(rec.Text, 60))
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&chat, "chat", 0, "chat id (required for ordinals)")
	return cmd
}

func runRemove(ctx context.Context, st storage.Store, chat int64, ref string) (reminder.Record, error) {
	if n, err := strconv.Atoi(ref); err == nil {
		if chat == 0 {
			return reminder.Record{}, errors.New("--chat is required when removing by ordinal")
		}
		recs, err := st.ByScope(ctx, chat)
		if err != nil {
			return reminder.Record{}, err
		}
		if n < 1 || n > len(recs) {
			return reminder.Record{}, fmt.Errorf("no reminder %d in chat %d", n, chat)
		}
		rec := recs[n-1]
		return rec, st.Remove(ctx, rec.ID)
	}
	rec, err := st.Get(ctx, ref)
	if err != nil {
		return reminder.Record{}, fmt.Errorf("reminder %s: %w", ref, err)
	}
	return rec, st.Remove(ctx, rec.ID)
}

type settingsFlags struct {
	timezone, channel, role string
}

func newSettingsCommand(opts *rootOptions) *cobra.Command {
	var chat int64
	var f settingsFlags
	cmd := &cobra.Command{
		Use:   "settings --chat <id>",
		Short: "Show or change a chat's settings",
		Long: `Show a chat's settings, or change them with --timezone, --channel and --role.
Use "none" to clear the channel override or the manager role.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd.Context(), opts, func(st *storage.Defaulted) error {
				changed := cmd.Flags().Changed("timezone") || cmd.Flags().Changed("channel") || cmd.Flags().Changed("role")
				return runSettings(cmd.Context(), cmd.OutOrStdout(), st, chat, f, changed)
			})
		},
	}
	cmd.Flags().Int64Var(&chat, "chat", 0, "chat id")
	cmd.Flags().StringVar(&f.timezone, "timezone", "", "IANA timezone, e.g. Europe/Berlin")
	cmd.Flags().StringVar(&f.channel, "channel", "", "reminder channel <chat_id>[:<thread_id>] or none")
	cmd.Flags().StringVar(&f.role, "role", "", "manager role title or none")
	_ = cmd.MarkFlagRequired("chat")
	return cmd
}

func runSettings(ctx context.Context, w io.Writer, st storage.Store, chat int64, f settingsFlags, update bool) error {
	s, err := st.Settings(ctx, chat)
	if err != nil {
		return err
	}
	if update {
		s, err = applySettingsFlags(s, f)
		if err != nil {
			return err
		}
		s.ScopeID = chat
		s.UpdatedAt = time.Now().UTC()
		if err := st.PutSettings(ctx, s); err != nil {
			return err
		}
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "chat\t%d\n", chat)
	fmt.Fprintf(tw, "timezone\t%s\n", s.Location())
	fmt.Fprintf(tw, "channel\t%s\n", orNone(s.Destination))
	fmt.Fprintf(tw, "role\t%s\n", orNone(s.ManagerRole))
	if !s.UpdatedAt.IsZero() {
		fmt.Fprintf(tw, "updated\t%s\n", s.UpdatedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

func applySettingsFlags(s reminder.Settings, f settingsFlags) (reminder.Settings, error) {
	if tz := strings.TrimSpace(f.timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return s, fmt.Errorf("no timezone %q found", tz)
		}
		s.Timezone = tz
	}
	switch ch := strings.TrimSpace(f.channel); {
	case ch == "":
	case strings.EqualFold(ch, "none"):
		s.Destination = ""
	default:
		to, err := kit.ParseDestination(ch)
		if err != nil {
			return s, err
		}
		s.Destination = kit.FormatDestination(to)
	}
	switch role := strings.TrimSpace(f.role); {
	case role == "":
	case strings.EqualFold(role, "none"):
		s.ManagerRole = ""
	default:
		s.ManagerRole = role
	}
	return s, nil
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "none"
	}
	return s
}
