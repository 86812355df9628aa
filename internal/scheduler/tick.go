package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"remindbot/internal/reminder"
	logx "remindbot/pkg/logx"
)

// maxCatchUp bounds how many missed occurrences a regeneration skips over.
const maxCatchUp = 10000

// Tick runs one polling cycle. A concurrent call returns ErrTickInProgress
// without touching the store.
//
// A transport failure (or a store failure) aborts the tick: the failing record
// and everything after it stay due for the next tick.
func (s *Service) Tick(ctx context.Context) (TickReport, error) {
	if !s.tickMu.TryLock() {
		s.stats.skippedTicks.Add(1)
		return TickReport{}, ErrTickInProgress
	}
	defer s.tickMu.Unlock()

	s.mu.Lock()
	policy := s.cfg.TargetGone
	s.mu.Unlock()

	now := s.now()
	rep := TickReport{Started: now, Bound: now.Truncate(time.Minute).Add(time.Minute).Unix()}
	defer func() {
		rep.Took = s.now().Sub(rep.Started)
		s.stats.ticks.Add(1)
		s.lastMu.Lock()
		s.last = rep
		s.lastMu.Unlock()
	}()

	due, err := s.store.DueBefore(ctx, rep.Bound)
	if err != nil {
		return s.abort(&rep, nil, fmt.Errorf("load due reminders: %w", err))
	}
	rep.Due = len(due)
	if len(due) == 0 {
		return rep, nil
	}
	s.log.Debug("tick", logx.Int("due", len(due)), logx.Int64("bound", rep.Bound))

	settings := map[int64]reminder.Settings{}
	for i := range due {
		r := due[i]
		if err := ctx.Err(); err != nil {
			return s.abort(&rep, &r, err)
		}
		st, ok := settings[r.ScopeID]
		if !ok {
			st, err = s.settings.Settings(ctx, r.ScopeID)
			if err != nil {
				return s.abort(&rep, &r, fmt.Errorf("load settings: %w", err))
			}
			settings[r.ScopeID] = st
		}

		if err := s.limiter.Wait(ctx); err != nil {
			return s.abort(&rep, &r, err)
		}

		dest, err := s.resolve(ctx, r, st)
		if err == nil {
			err = s.delivery.Dispatch(ctx, r, dest)
		}
		switch {
		case err == nil:
			if err := s.consume(ctx, r, st, true); err != nil {
				return s.abort(&rep, &r, err)
			}
			rep.Dispatched++
			s.stats.dispatched.Add(1)
		case errors.Is(err, ErrPermissionDenied):
			s.log.Warn("reminder denied by destination", logx.ReminderID(r.ID), logx.String("dest", dest), logx.Err(err))
			s.delivery.NotifyFailure(ctx, r, dest)
			if err := s.consume(ctx, r, st, true); err != nil {
				return s.abort(&rep, &r, err)
			}
			rep.Denied++
			s.stats.denied.Add(1)
			s.publish(EventDenied, ReminderEvent{ID: r.ID, ScopeID: r.ScopeID, AuthorID: r.AuthorID, Destination: dest})
		case errors.Is(err, ErrTargetGone):
			s.log.Info("reminder target gone; skipping", logx.ReminderID(r.ID), logx.Scope(r.ScopeID), logx.Err(err))
			if err := s.consume(ctx, r, st, false); err != nil {
				return s.abort(&rep, &r, err)
			}
			if policy == TargetGonePurgeSettings {
				if p, ok := s.settings.(settingsPurger); ok {
					if err := p.DeleteSettings(ctx, r.ScopeID); err != nil {
						s.log.Warn("purge settings failed", logx.Scope(r.ScopeID), logx.Err(err))
					}
				}
			}
			rep.Skipped++
			s.stats.skipped.Add(1)
			s.publish(EventSkipped, ReminderEvent{ID: r.ID, ScopeID: r.ScopeID, AuthorID: r.AuthorID, Destination: dest})
		default:
			if !errors.Is(err, ErrTransport) {
				err = fmt.Errorf("%w: %v", ErrTransport, err)
			}
			return s.abort(&rep, &r, err)
		}
	}
	return rep, nil
}

// resolve picks the chat override when it is reachable, otherwise the record's
// own destination.
func (s *Service) resolve(ctx context.Context, r reminder.Record, st reminder.Settings) (string, error) {
	override := st.EffectiveDestination(r.DestinationID)
	if override != r.DestinationID {
		err := s.delivery.Probe(ctx, r, override)
		if err == nil {
			return override, nil
		}
		if !errors.Is(err, ErrTargetGone) {
			return override, err
		}
		s.log.Debug("destination override unreachable; using original", logx.String("override", override), logx.Err(err))
	}
	return r.DestinationID, s.delivery.Probe(ctx, r, r.DestinationID)
}

// consume removes r and, when regenerate is set and r recurs, inserts the next
// occurrence in the same store call.
func (s *Service) consume(ctx context.Context, r reminder.Record, st reminder.Settings, regenerate bool) error {
	var next *reminder.Record
	if regenerate && r.Recurring() {
		n, err := s.nextOccurrence(r, st.Location())
		if err == nil {
			err = n.Validate()
		}
		if err == nil && n.DueAt <= r.DueAt {
			err = fmt.Errorf("next occurrence %d is not after %d", n.DueAt, r.DueAt)
		}
		if err != nil {
			// A record we cannot advance would fire forever; drop it.
			s.log.Error("regenerate failed; dropping reminder", logx.ReminderID(r.ID), logx.String("interval", r.Interval), logx.Err(err))
		} else {
			next = &n
		}
	}
	if err := s.store.Complete(ctx, r.ID, next); err != nil {
		return fmt.Errorf("complete %s: %w", r.ID, err)
	}
	if regenerate {
		ev := ReminderEvent{ID: r.ID, ScopeID: r.ScopeID, AuthorID: r.AuthorID, Destination: r.DestinationID}
		if next != nil {
			ev.NextID, ev.NextDueAt = next.ID, next.DueAt
		}
		s.publish(EventDispatched, ev)
	}
	return nil
}

// nextOccurrence advances from DueAt and skips occurrences that are already
// in the past (e.g. after downtime), keeping the original phase.
func (s *Service) nextOccurrence(r reminder.Record, loc *time.Location) (reminder.Record, error) {
	now := s.now()
	next, err := r.Regenerate(loc, now)
	if err != nil {
		return reminder.Record{}, err
	}
	for i := 0; i < maxCatchUp && next.DueAt <= now.Unix(); i++ {
		id := next.ID
		next, err = next.Regenerate(loc, now)
		if err != nil {
			return reminder.Record{}, err
		}
		next.ID = id
	}
	return next, nil
}

func (s *Service) abort(rep *TickReport, r *reminder.Record, err error) (TickReport, error) {
	rep.Aborted = true
	rep.Err = err
	s.stats.aborted.Add(1)
	fields := []logx.Field{logx.Int("due", rep.Due), logx.Int("dispatched", rep.Dispatched), logx.Err(err)}
	if r != nil {
		fields = append(fields, logx.ReminderID(r.ID))
	}
	s.log.Warn("tick aborted", fields...)
	s.publish(EventTickAborted, err.Error())
	return *rep, err
}
