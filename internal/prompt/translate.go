package prompt

import (
	"fmt"
	"strings"
	"time"

	"remindbot/internal/reminder"
	"remindbot/internal/timeparse"
)

// Origin is who asked for the reminder and where.
type Origin struct {
	AuthorID      int64
	AuthorName    string
	ScopeID       int64
	DestinationID string
}

// BuildRecord turns the tokens of a Finished machine into a record.
//
// "on" paths use the absolute time captured in the token; "in" paths add the
// captured amount to now, so the clock starts when the user confirms. The
// interval is empty when "never" was chosen, otherwise the repeat amount.
func BuildRecord(m *Machine, o Origin, now time.Time) (reminder.Record, error) {
	if m.State() != Finished {
		return reminder.Record{}, fmt.Errorf("%w: build from %s", ErrUnexpectedInput, m.State())
	}
	toks := m.Tokens()
	if len(toks) < 3 {
		return reminder.Record{}, fmt.Errorf("prompt: incomplete schedule %q", m.Schedule())
	}
	loc := m.Location()
	first := strings.TrimSuffix(toks[1], repeatingMarker)

	var due time.Time
	switch toks[0] {
	case ChoiceOn:
		t, err := time.ParseInLocation(timeparse.CanonicalLayout, first, loc)
		if err != nil {
			return reminder.Record{}, fmt.Errorf("prompt: due time %q: %w", first, err)
		}
		due = t
	case ChoiceIn:
		t, err := timeparse.AddInterval(first, now.In(loc))
		if err != nil {
			return reminder.Record{}, fmt.Errorf("prompt: amount %q: %w", first, err)
		}
		due = t
	default:
		return reminder.Record{}, fmt.Errorf("prompt: unknown schedule kind %q", toks[0])
	}

	var interval string
	switch toks[2] {
	case ChoiceOnce:
	case ChoiceRepeat:
		if len(toks) < 4 {
			return reminder.Record{}, fmt.Errorf("prompt: missing repeat amount in %q", m.Schedule())
		}
		interval = toks[3]
	default:
		return reminder.Record{}, fmt.Errorf("prompt: unknown repeat token %q", toks[2])
	}

	r := reminder.Record{
		ID:            reminder.NewID(),
		Text:          m.Text(),
		AuthorID:      o.AuthorID,
		AuthorName:    o.AuthorName,
		ScopeID:       o.ScopeID,
		DestinationID: o.DestinationID,
		DueAt:         due.Unix(),
		Interval:      interval,
		CreatedAt:     now.UTC(),
	}
	return r, r.Validate()
}
