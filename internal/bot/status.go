package bot

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"remindbot/pkg/tgui"
)

func (b *Bot) cmdStatus(ctx context.Context, req *Request) error {
	mb := tgui.New().Title("🩺", "Status")
	if b.status != nil {
		s := b.status.Snapshot()
		mb.KV("scheduler", armedLabel(s.Armed)).
			KV("schedule", s.Schedule).
			KV("next tick", fmtTime(s.Next)).
			KV("ticks", strconv.FormatUint(s.Ticks, 10)).
			KV("dispatched", strconv.FormatUint(s.Dispatched, 10)).
			KV("denied", strconv.FormatUint(s.Denied, 10)).
			KV("skipped", strconv.FormatUint(s.Skipped, 10)).
			KV("aborted ticks", strconv.FormatUint(s.Aborted, 10)).
			KV("overlapping ticks", strconv.FormatUint(s.SkippedTicks, 10)).
			KV("panics", strconv.FormatUint(s.Panics, 10))
		if !s.LastTick.Started.IsZero() {
			last := fmt.Sprintf("%s, %d due, took %s", fmtTime(s.LastTick.Started), s.LastTick.Due, s.LastTick.Took.Round(time.Millisecond))
			if s.LastTick.Err != nil {
				last += ", error: " + s.LastTick.Err.Error()
			}
			mb.KV("last tick", last)
		}
	}
	mb.KV("open wizards", strconv.Itoa(b.sessions.Len()))

	if snaps := b.runtime.Snapshot(); len(snaps) > 0 {
		mb.Blank().RawLine(tgui.B("Supervisors").String())
		for _, name := range b.runtime.Names() {
			s := snaps[name]
			line := fmt.Sprintf("%s: %d active", name, s.Active)
			var restarts, panics uint64
			for _, t := range s.Tasks {
				restarts += t.Restarts
				panics += t.Panics
			}
			if restarts > 0 || panics > 0 {
				line += fmt.Sprintf(", %d restarts, %d panics", restarts, panics)
			}
			if s.FirstError != "" {
				line += ", first error: " + tgui.TruncRunes(s.FirstError, 120)
			}
			mb.Line("• " + line)
		}
	}
	return b.send(ctx, req.Chat, mb.Build())
}

func armedLabel(armed bool) string {
	if armed {
		return "armed"
	}
	return "waiting for transport"
}

func fmtTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04:05 UTC")
}
