package storage

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"remindbot/internal/reminder"
)

// Defaulted wraps a Store so chats that never saved settings get the
// configured default timezone instead of UTC.
type Defaulted struct {
	Store
	tz atomic.Pointer[string]
}

func WithDefaults(s Store, timezone string) *Defaulted {
	d := &Defaulted{Store: s}
	d.SetTimezone(timezone)
	return d
}

// SetTimezone changes the fallback; safe during hot reload.
func (d *Defaulted) SetTimezone(tz string) {
	tz = strings.TrimSpace(tz)
	d.tz.Store(&tz)
}

func (d *Defaulted) Timezone() string {
	if p := d.tz.Load(); p != nil && *p != "" {
		return *p
	}
	return "UTC"
}

// Settings returns the stored settings, or the defaults when the chat has none.
// Unsaved settings are recognised by their zero UpdatedAt.
func (d *Defaulted) Settings(ctx context.Context, scope int64) (reminder.Settings, error) {
	st, err := d.Store.Settings(ctx, scope)
	if err != nil {
		return st, err
	}
	if st.UpdatedAt.IsZero() {
		st.Timezone = d.Timezone()
	}
	return st, nil
}

// PutSettings stamps UpdatedAt so the settings count as saved.
func (d *Defaulted) PutSettings(ctx context.Context, st reminder.Settings) error {
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = time.Now().UTC()
	}
	return d.Store.PutSettings(ctx, st)
}
