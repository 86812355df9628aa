package app

import (
	"context"
	"slices"
	"strings"

	"remindbot/internal/config"
	logx "remindbot/pkg/logx"
)

// reloadLoop applies published configs to the running components. Bursts are
// coalesced so only the newest config is applied.
func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	// Track last applied config to generate a safe diff summary.
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					break drain
				}
			}
			if newCfg == nil {
				continue
			}
			a.applyConfig(lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}

	for _, sec := range []string{"storage", "debug"} {
		if slices.Contains(sections, sec) {
			a.log.Warn(sec + " config changed; restart required for changes to take effect")
		}
	}
	if oldCfg != nil && oldCfg.Telegram.Token != newCfg.Telegram.Token {
		a.log.Warn("telegram token changed; restart required for changes to take effect")
	}

	// update log target first (so Apply() doesn't warn when chat logging is enabled)
	if chatID, threadID, ok := groupLogTarget(newCfg.Telegram.GroupLog); ok {
		a.logs.SetChatTarget(chatID, threadID)
	} else {
		// allow clearing target via config hot-reload
		a.logs.SetChatTarget(0, 0)
	}
	a.logs.Apply(logConfig(newCfg))

	// The validator already ran these mappers; errors here mean a race with a
	// manual Commit and keep the previous values.
	if bc, err := botConfig(newCfg); err != nil {
		a.log.Warn("invalid reminders config; keeping previous", logx.Err(err))
	} else {
		a.bot.Apply(bc)
	}
	if sc, err := schedulerConfig(newCfg); err != nil {
		a.log.Warn("invalid reminders config; keeping previous", logx.Err(err))
	} else if err := a.sched.Apply(sc); err != nil {
		a.log.Warn("scheduler apply failed", logx.Err(err))
	}
	a.store.SetTimezone(newCfg.Reminders.DefaultTimezone)

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}
