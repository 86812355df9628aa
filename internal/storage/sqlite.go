package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"remindbot/internal/reminder"
	logx "remindbot/pkg/logx"

	_ "modernc.org/sqlite"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection: serialises writers and keeps ":memory:" a single database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

const recordCols = `id, text, author_id, author_name, scope_id, destination_id, due_at, interval, created_at`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertRecord(ctx context.Context, db execer, r reminder.Record) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO reminders(`+recordCols+`) VALUES(?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET text=excluded.text, author_id=excluded.author_id,
		   author_name=excluded.author_name, scope_id=excluded.scope_id,
		   destination_id=excluded.destination_id, due_at=excluded.due_at,
		   interval=excluded.interval, created_at=excluded.created_at`,
		r.ID, r.Text, r.AuthorID, nullStr(r.AuthorName), r.ScopeID, r.DestinationID, r.DueAt,
		nullStr(r.Interval), r.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

func (s *sqliteStore) Insert(ctx context.Context, r reminder.Record) error {
	if err := r.Validate(); err != nil {
		return err
	}
	return insertRecord(ctx, s.db, r)
}

func (s *sqliteStore) Remove(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM reminders WHERE id = ?`, id)
	return err
}

func (s *sqliteStore) Complete(ctx context.Context, id string, next *reminder.Record) error {
	if next != nil {
		if err := next.Validate(); err != nil {
			return err
		}
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `DELETE FROM reminders WHERE id = ?`, id); err != nil {
		return err
	}
	if next != nil {
		if err := insertRecord(ctx, tx, *next); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) DueBefore(ctx context.Context, bound int64) ([]reminder.Record, error) {
	return s.query(ctx, `SELECT `+recordCols+` FROM reminders WHERE due_at < ? ORDER BY due_at, seq`, bound)
}

func (s *sqliteStore) ByScope(ctx context.Context, scope int64) ([]reminder.Record, error) {
	return s.query(ctx, `SELECT `+recordCols+` FROM reminders WHERE scope_id = ? ORDER BY due_at, seq`, scope)
}

func (s *sqliteStore) Get(ctx context.Context, id string) (reminder.Record, error) {
	out, err := s.query(ctx, `SELECT `+recordCols+` FROM reminders WHERE id = ?`, id)
	if err != nil {
		return reminder.Record{}, err
	}
	if len(out) == 0 {
		return reminder.Record{}, fmt.Errorf("reminder %s: %w", id, ErrNotFound)
	}
	return out[0], nil
}

func (s *sqliteStore) query(ctx context.Context, q string, args ...any) ([]reminder.Record, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []reminder.Record
	for rows.Next() {
		var (
			r                    reminder.Record
			authorName, interval sql.NullString
			created              string
		)
		if err := rows.Scan(&r.ID, &r.Text, &r.AuthorID, &authorName, &r.ScopeID, &r.DestinationID,
			&r.DueAt, &interval, &created); err != nil {
			return nil, err
		}
		r.AuthorName = authorName.String
		r.Interval = interval.String
		if t, err := time.Parse(time.RFC3339Nano, created); err == nil {
			r.CreatedAt = t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqliteStore) Settings(ctx context.Context, scope int64) (reminder.Settings, error) {
	var (
		st             reminder.Settings
		tz, dest, role sql.NullString
		updated        string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT scope_id, timezone, destination, manager_role, updated_at FROM settings WHERE scope_id = ?`, scope,
	).Scan(&st.ScopeID, &tz, &dest, &role, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return reminder.DefaultSettings(scope), nil
	}
	if err != nil {
		return reminder.Settings{}, err
	}
	st.Timezone = tz.String
	st.Destination = dest.String
	st.ManagerRole = role.String
	if t, err := time.Parse(time.RFC3339Nano, updated); err == nil {
		st.UpdatedAt = t
	}
	return st, nil
}

func (s *sqliteStore) PutSettings(ctx context.Context, st reminder.Settings) error {
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings(scope_id, timezone, destination, manager_role, updated_at) VALUES(?,?,?,?,?)
		 ON CONFLICT(scope_id) DO UPDATE SET timezone=excluded.timezone, destination=excluded.destination,
		   manager_role=excluded.manager_role, updated_at=excluded.updated_at`,
		st.ScopeID, nullStr(st.Timezone), nullStr(st.Destination), nullStr(st.ManagerRole),
		st.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

func (s *sqliteStore) DeleteSettings(ctx context.Context, scope int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM settings WHERE scope_id = ?`, scope)
	return err
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
