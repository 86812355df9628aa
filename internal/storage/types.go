package storage

import (
	"errors"
	"sort"
	"time"

	"remindbot/internal/reminder"
)

var (
	ErrNotFound = errors.New("storage: not found")
	ErrClosed   = errors.New("storage: closed")
)

// Config configures storage.
//
// Driver values:
//   - "memory" (default when empty)
//   - "file": Path is the prefix for the journal and snapshot files
//   - "sqlite": Path is the database file
type Config struct {
	Driver       string
	Path         string
	BusyTimeout  time.Duration // sqlite only; 0 means default
	CompactEvery int           // file only; journal writes between snapshots, 0 means 500
}

// entry pairs a record with its insertion sequence so equal DueAt values keep
// a stable order across queries.
type entry struct {
	seq uint64
	rec reminder.Record
}

func sortEntries(es []entry) {
	sort.Slice(es, func(i, j int) bool {
		if es[i].rec.DueAt != es[j].rec.DueAt {
			return es[i].rec.DueAt < es[j].rec.DueAt
		}
		return es[i].seq < es[j].seq
	})
}

func records(es []entry) []reminder.Record {
	out := make([]reminder.Record, 0, len(es))
	for _, e := range es {
		out = append(out, e.rec)
	}
	return out
}
