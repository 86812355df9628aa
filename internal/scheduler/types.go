// Package scheduler fires due reminders.
//
// One tick:
//   - loads every record due before the next minute boundary
//   - resolves the chat's destination override, probes the target
//   - dispatches in due order, throttled by a token bucket
//   - replaces recurring records with their next occurrence
//
// Ticks are triggered by cron and never overlap.
package scheduler

import (
	"context"
	"errors"
	"time"

	"remindbot/internal/reminder"
)

var (
	// ErrTargetGone: the destination chat or the author's membership no longer
	// exists. The record is consumed without delivery.
	ErrTargetGone = errors.New("scheduler: target gone")
	// ErrPermissionDenied: the destination refused the message. The author is
	// told directly and the record is consumed as if delivered.
	ErrPermissionDenied = errors.New("scheduler: permission denied")
	// ErrTransport: the delivery system is unavailable. The tick stops and every
	// unprocessed record stays due.
	ErrTransport = errors.New("scheduler: transport error")

	ErrTickInProgress = errors.New("scheduler: tick already running")
)

// Target-gone policies.
const (
	TargetGoneSkip          = "skip"
	TargetGonePurgeSettings = "purge_settings"
)

// Config controls polling and dispatch.
type Config struct {
	// PollSchedule is a cron spec, "@every" descriptor, Go duration or HH:MM.
	PollSchedule string
	// RatePerSecond and Burst throttle dispatches. RatePerSecond <= 0 disables throttling.
	RatePerSecond float64
	Burst         int
	TickTimeout   time.Duration
	TargetGone    string
}

func (c Config) withDefaults() Config {
	if c.PollSchedule == "" {
		c.PollSchedule = "0 * * * * *"
	}
	if c.Burst <= 0 {
		c.Burst = 1
	}
	if c.TickTimeout <= 0 {
		c.TickTimeout = 50 * time.Second
	}
	if c.TargetGone == "" {
		c.TargetGone = TargetGoneSkip
	}
	return c
}

// Delivery is the outbound side of the chat platform.
type Delivery interface {
	// Probe checks that destination exists and the author still belongs to the
	// record's scope. It returns ErrTargetGone when either vanished.
	Probe(ctx context.Context, r reminder.Record, destination string) error
	// Dispatch sends the reminder. Errors wrap ErrPermissionDenied,
	// ErrTargetGone or ErrTransport.
	Dispatch(ctx context.Context, r reminder.Record, destination string) error
	// NotifyFailure tells the author the reminder could not be posted. Best effort.
	NotifyFailure(ctx context.Context, r reminder.Record, destination string)
}

// Store is the part of storage.Store the scheduler writes to.
type Store interface {
	DueBefore(ctx context.Context, bound int64) ([]reminder.Record, error)
	Complete(ctx context.Context, id string, next *reminder.Record) error
}

// SettingsSource provides per-chat timezone and destination override.
type SettingsSource interface {
	Settings(ctx context.Context, scope int64) (reminder.Settings, error)
}

type settingsPurger interface {
	DeleteSettings(ctx context.Context, scope int64) error
}

// Event types published on the bus.
const (
	EventDispatched  = "reminder.dispatched"
	EventDenied      = "reminder.denied"
	EventSkipped     = "reminder.skipped"
	EventTickAborted = "scheduler.tick_aborted"
)

// ReminderEvent is the Data of reminder.* events.
type ReminderEvent struct {
	ID          string
	ScopeID     int64
	AuthorID    int64
	Destination string
	NextID      string
	NextDueAt   int64
}

// TickReport summarises one tick.
type TickReport struct {
	Started    time.Time
	Took       time.Duration
	Bound      int64
	Due        int
	Dispatched int
	Denied     int
	Skipped    int
	Aborted    bool
	Err        error
}

// Snapshot is what /status shows.
type Snapshot struct {
	Armed        bool
	Schedule     string
	Next         time.Time
	Ticks        uint64
	LastTick     TickReport
	Dispatched   uint64
	Denied       uint64
	Skipped      uint64
	Aborted      uint64
	Panics       uint64
	SkippedTicks uint64
}
