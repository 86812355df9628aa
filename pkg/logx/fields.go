package logx

import (
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Field adds one key to a log event. Fields apply in order; a later field
// with the same key wins in JSON output.
type Field func(e *zerolog.Event)

// Keys shared across packages. The chat sink lists them first.
const (
	KeyComponent = "comp"
	KeyReminder  = "id"
	KeyScope     = "scope"
	KeyAuthor    = "author"
	KeyRequest   = "rid"
)

func String(k, v string) Field { return func(e *zerolog.Event) { e.Str(k, v) } }
func Int(k string, v int) Field { return func(e *zerolog.Event) { e.Int(k, v) } }
func Int64(k string, v int64) Field { return func(e *zerolog.Event) { e.Int64(k, v) } }
func Uint64(k string, v uint64) Field { return func(e *zerolog.Event) { e.Uint64(k, v) } }
func Bool(k string, v bool) Field { return func(e *zerolog.Event) { e.Bool(k, v) } }
func Float64(k string, v float64) Field { return func(e *zerolog.Event) { e.Float64(k, v) } }
func Duration(k string, v time.Duration) Field { return func(e *zerolog.Event) { e.Dur(k, v) } }
func Time(k string, v time.Time) Field { return func(e *zerolog.Event) { e.Time(k, v) } }
func Any(k string, v any) Field { return func(e *zerolog.Event) { e.Interface(k, v) } }

// Err records err under "err"; a nil error adds nothing.
func Err(err error) Field {
	return func(e *zerolog.Event) {
		if err != nil {
			e.Err(err)
		}
	}
}

// Stack attaches a goroutine stack, usually from a recovered panic.
func Stack(stack string) Field {
	return func(e *zerolog.Event) {
		if strings.TrimSpace(stack) != "" {
			e.Str("stack", stack)
		}
	}
}

// Component names the subsystem that logs ("scheduler", "bot", ...).
func Component(name string) Field { return String(KeyComponent, name) }

// ReminderID identifies the reminder record an event is about.
func ReminderID(id string) Field { return String(KeyReminder, id) }

// Scope is the chat a reminder or wizard belongs to.
func Scope(chatID int64) Field { return Int64(KeyScope, chatID) }

// Author is the Telegram user who created a reminder or ran a command.
func Author(userID int64) Field { return Int64(KeyAuthor, userID) }

// Request correlates every line logged while handling one command or button press.
func Request(rid string) Field { return String(KeyRequest, rid) }
