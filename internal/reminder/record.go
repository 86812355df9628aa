// Package reminder holds the persisted reminder record and the per-chat
// settings the scheduler and the command surface read.
package reminder

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"remindbot/internal/timeparse"
)

var ErrInvalidRecord = errors.New("reminder: invalid record")

// Record is one scheduled reminder.
//
// Records are immutable once stored; edits are modelled as Remove + Insert of a
// new record. DueAt is a UNIX timestamp in seconds.
type Record struct {
	ID            string    `json:"id"`
	Text          string    `json:"text"`
	AuthorID      int64     `json:"author_id"`
	AuthorName    string    `json:"author_name,omitempty"`
	ScopeID       int64     `json:"scope_id"`
	DestinationID string    `json:"destination_id"`
	DueAt         int64     `json:"due_at"`
	Interval      string    `json:"interval,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// NewID returns a fresh record key.
func NewID() string { return uuid.NewString() }

// Recurring reports whether the record regenerates after delivery.
func (r Record) Recurring() bool { return strings.TrimSpace(r.Interval) != "" }

// Due returns DueAt as a time.Time in UTC.
func (r Record) Due() time.Time { return time.Unix(r.DueAt, 0).UTC() }

// Regenerate returns the next occurrence of a recurring record. The next due
// time is computed from the record's own DueAt (not the dispatch time) in loc,
// so calendar units follow the chat's wall clock.
func (r Record) Regenerate(loc *time.Location, now time.Time) (Record, error) {
	if !r.Recurring() {
		return Record{}, fmt.Errorf("%w: %s is not recurring", ErrInvalidRecord, r.ID)
	}
	if loc == nil {
		loc = time.UTC
	}
	next, err := timeparse.AddInterval(r.Interval, r.Due().In(loc))
	if err != nil {
		return Record{}, fmt.Errorf("regenerate %s: %w", r.ID, err)
	}
	out := r
	out.ID = NewID()
	out.DueAt = next.Unix()
	out.CreatedAt = now.UTC()
	return out, nil
}

// Validate checks the fields every stored record must carry.
func (r Record) Validate() error {
	switch {
	case strings.TrimSpace(r.ID) == "":
		return fmt.Errorf("%w: missing id", ErrInvalidRecord)
	case strings.TrimSpace(r.Text) == "":
		return fmt.Errorf("%w: empty text", ErrInvalidRecord)
	case r.AuthorID == 0:
		return fmt.Errorf("%w: missing author", ErrInvalidRecord)
	case r.ScopeID == 0:
		return fmt.Errorf("%w: missing scope", ErrInvalidRecord)
	case strings.TrimSpace(r.DestinationID) == "":
		return fmt.Errorf("%w: missing destination", ErrInvalidRecord)
	case r.DueAt <= 0:
		return fmt.Errorf("%w: missing due time", ErrInvalidRecord)
	}
	if r.Recurring() {
		canon, err := timeparse.NormaliseInterval(r.Interval)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidRecord, err)
		}
		if canon != r.Interval {
			return fmt.Errorf("%w: interval %q is not canonical (want %q)", ErrInvalidRecord, r.Interval, canon)
		}
	}
	return nil
}

// Summary renders the one-line form used by listings, in loc.
func (r Record) Summary(loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	s := fmt.Sprintf("%q %s", r.Text, r.Due().In(loc).Format("02/01/2006 15:04"))
	if r.Recurring() {
		s += ", every " + r.Interval
	}
	return s
}
