package storage

import (
	"context"
	"fmt"
	"sync"

	"remindbot/internal/reminder"
)

// index is the in-memory state shared by the memory and file drivers.
// Callers hold the owning store's mutex.
type index struct {
	seq      uint64
	recs     map[string]entry
	settings map[int64]reminder.Settings
}

func newIndex() *index {
	return &index{recs: map[string]entry{}, settings: map[int64]reminder.Settings{}}
}

func (ix *index) put(r reminder.Record) {
	if old, ok := ix.recs[r.ID]; ok {
		ix.recs[r.ID] = entry{seq: old.seq, rec: r}
		return
	}
	ix.seq++
	ix.recs[r.ID] = entry{seq: ix.seq, rec: r}
}

func (ix *index) del(id string) { delete(ix.recs, id) }

func (ix *index) filter(keep func(reminder.Record) bool) []reminder.Record {
	es := make([]entry, 0, len(ix.recs))
	for _, e := range ix.recs {
		if keep(e.rec) {
			es = append(es, e)
		}
	}
	sortEntries(es)
	return records(es)
}

func (ix *index) getSettings(scope int64) reminder.Settings {
	if s, ok := ix.settings[scope]; ok {
		return s
	}
	return reminder.DefaultSettings(scope)
}

// memStore keeps everything in process memory.
type memStore struct {
	mu     sync.Mutex
	ix     *index
	closed bool
}

// NewMemory returns an empty in-memory store.
func NewMemory() Store {
	return &memStore{ix: newIndex()}
}

func (s *memStore) Insert(ctx context.Context, r reminder.Record) error {
	if err := r.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.ix.put(r)
	return nil
}

func (s *memStore) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.ix.del(id)
	return nil
}

func (s *memStore) Complete(ctx context.Context, id string, next *reminder.Record) error {
	if next != nil {
		if err := next.Validate(); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.ix.del(id)
	if next != nil {
		s.ix.put(*next)
	}
	return nil
}

func (s *memStore) DueBefore(ctx context.Context, bound int64) ([]reminder.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	return s.ix.filter(func(r reminder.Record) bool { return r.DueAt < bound }), nil
}

func (s *memStore) ByScope(ctx context.Context, scope int64) ([]reminder.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	return s.ix.filter(func(r reminder.Record) bool { return r.ScopeID == scope }), nil
}

func (s *memStore) Get(ctx context.Context, id string) (reminder.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.ix.recs[id]
	if !ok {
		return reminder.Record{}, fmt.Errorf("reminder %s: %w", id, ErrNotFound)
	}
	return e.rec, nil
}

func (s *memStore) Settings(ctx context.Context, scope int64) (reminder.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ix.getSettings(scope), nil
}

func (s *memStore) PutSettings(ctx context.Context, st reminder.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.ix.settings[st.ScopeID] = st
	return nil
}

func (s *memStore) DeleteSettings(ctx context.Context, scope int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	delete(s.ix.settings, scope)
	return nil
}

func (s *memStore) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

func (s *memStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
