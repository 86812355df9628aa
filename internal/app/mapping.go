package app

import (
	"fmt"
	"strings"
	"time"

	"remindbot/internal/bot"
	"remindbot/internal/config"
	"remindbot/internal/observability/debughttp"
	"remindbot/internal/scheduler"
	"remindbot/internal/storage"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

func storageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:       strings.ToLower(strings.TrimSpace(sc.Driver)),
		Path:         strings.TrimSpace(sc.Path),
		BusyTimeout:  busy,
		CompactEvery: sc.CompactEvery,
	}, nil
}

func schedulerConfig(cfg *config.Config) (scheduler.Config, error) {
	r := cfg.Reminders
	tick, err := config.ParseDurationField("reminders.tick_timeout", r.TickTimeout)
	if err != nil {
		return scheduler.Config{}, err
	}
	poll := strings.TrimSpace(r.PollSchedule)
	if poll != "" {
		if _, err := scheduler.ParseSchedule(poll); err != nil {
			return scheduler.Config{}, fmt.Errorf("reminders.poll_schedule: %w", err)
		}
	}
	rps := r.RatePerSec
	if rps == 0 {
		rps = 25
	}
	return scheduler.Config{
		PollSchedule:  poll,
		RatePerSecond: rps,
		Burst:         r.Burst,
		TickTimeout:   tick,
		TargetGone:    strings.TrimSpace(r.TargetGone),
	}, nil
}

func botConfig(cfg *config.Config) (bot.Config, error) {
	r := cfg.Reminders
	session, err := config.ParseDurationField("reminders.session_timeout", r.SessionTimeout)
	if err != nil {
		return bot.Config{}, err
	}
	minRepeat, err := config.ParseDurationOrDefault("reminders.min_repeat", r.MinRepeat, time.Minute)
	if err != nil {
		return bot.Config{}, err
	}
	return bot.Config{
		Owners:         append([]int64(nil), cfg.Telegram.OwnerUserIDs...),
		SessionTimeout: session,
		MinRepeat:      minRepeat,
		PageSize:       r.ListPageSize,
	}, nil
}

func logConfig(cfg *config.Config) logx.Config {
	l := cfg.Logging
	_, threadID, _ := groupLogTarget(cfg.Telegram.GroupLog)
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File: logx.FileConfig{
			Enabled: l.File.Enabled,
			Path:    l.File.Path,
		},
		Chat: logx.ChatConfig{
			Enabled:    l.Telegram.Enabled,
			ThreadID:   threadID,
			MinLevel:   l.Telegram.MinLevel,
			RatePerSec: l.Telegram.RatePerSec,
		},
	}
}

func debugConfig(cfg *config.Config) debughttp.Config {
	d := cfg.Debug
	return debughttp.Config{
		Enabled:       d.Enabled,
		Addr:          strings.TrimSpace(d.Addr),
		Token:         strings.TrimSpace(d.Token),
		AllowInsecure: d.AllowInsecure,
	}
}

// groupLogTarget decodes telegram.group_log, which uses the same
// "<chat_id>[:<thread_id>]" form as reminder destinations.
func groupLogTarget(raw string) (int64, int, bool) {
	if strings.TrimSpace(raw) == "" {
		return 0, 0, false
	}
	t, err := kit.ParseDestination(raw)
	if err != nil {
		return 0, 0, false
	}
	return t.ChatID, t.ThreadID, true
}
