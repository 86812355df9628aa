package storage

import (
	"context"
	"errors"
	"strings"

	"remindbot/internal/reminder"
	logx "remindbot/pkg/logx"
)

// Store is the persistence API shared by the wizard, the scheduler and the
// command surface.
type Store interface {
	// Insert stores a validated record. Inserting an existing ID replaces it.
	Insert(ctx context.Context, r reminder.Record) error
	// Remove deletes by ID; removing a missing record is not an error.
	Remove(ctx context.Context, id string) error
	// Complete removes id and, when next is non-nil, inserts it, as one step.
	Complete(ctx context.Context, id string, next *reminder.Record) error
	// DueBefore returns records with DueAt < bound (UNIX seconds), ascending.
	DueBefore(ctx context.Context, bound int64) ([]reminder.Record, error)
	// ByScope returns a chat's records, ascending by DueAt.
	ByScope(ctx context.Context, scope int64) ([]reminder.Record, error)
	Get(ctx context.Context, id string) (reminder.Record, error)

	// Settings returns stored settings or reminder.DefaultSettings.
	Settings(ctx context.Context, scope int64) (reminder.Settings, error)
	PutSettings(ctx context.Context, s reminder.Settings) error
	DeleteSettings(ctx context.Context, scope int64) error

	Ping(ctx context.Context) error
	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.Component("storage"), logx.String("driver", driver))

	switch driver {
	case "", "memory", "mem":
		return NewMemory(), nil
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
