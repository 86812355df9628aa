package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// Validate rejects configs that would fail at runtime. It runs before a config
// is committed, on startup and on every hot reload.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		errs = append(errs, errors.New("telegram.token is required"))
	}
	if _, err := ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
		errs = append(errs, err)
	}

	switch d := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)); d {
	case "", "memory", "mem":
	case "file", "sqlite", "sqlite3":
		if strings.TrimSpace(cfg.Storage.Path) == "" {
			errs = append(errs, fmt.Errorf("storage.path is required for driver %q", d))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", d))
	}
	if _, err := ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout); err != nil {
		errs = append(errs, err)
	}

	r := cfg.Reminders
	for path, raw := range map[string]string{
		"reminders.tick_timeout":    r.TickTimeout,
		"reminders.session_timeout": r.SessionTimeout,
		"reminders.min_repeat":      r.MinRepeat,
	} {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}
	if r.RatePerSec < 0 {
		errs = append(errs, errors.New("reminders.rate_per_sec must be >= 0"))
	}
	switch strings.TrimSpace(r.TargetGone) {
	case "", "skip", "purge_settings":
	default:
		errs = append(errs, fmt.Errorf("reminders.target_gone: want skip or purge_settings, got %q", r.TargetGone))
	}
	if tz := strings.TrimSpace(r.DefaultTimezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			errs = append(errs, fmt.Errorf("reminders.default_timezone: %w", err))
		}
	}
	if d := cfg.Debug; d.Enabled && strings.TrimSpace(d.Addr) != "" {
		if _, _, err := net.SplitHostPort(strings.TrimSpace(d.Addr)); err != nil {
			errs = append(errs, fmt.Errorf("debug.addr: %w", err))
		}
	}
	return errors.Join(errs...)
}
