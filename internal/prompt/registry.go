package prompt

import (
	"errors"
	"sync"
)

// ErrSessionConflict is returned when the author already has an open wizard.
var ErrSessionConflict = errors.New("prompt: a reminder is already being set up")

// Registry tracks open sessions, at most one per author.
type Registry struct {
	mu       sync.Mutex
	byAuthor map[int64]*Session
}

func NewRegistry() *Registry {
	return &Registry{byAuthor: map[int64]*Session{}}
}

// Open claims the author's slot for s.
func (r *Registry) Open(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byAuthor[s.Author]; ok {
		return ErrSessionConflict
	}
	r.byAuthor[s.Author] = s
	return nil
}

func (r *Registry) IsOpen(author int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.byAuthor[author]
	return ok
}

// Get returns the author's open session.
func (r *Registry) Get(author int64) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byAuthor[author]
	return s, ok
}

// ByAnchor finds the session rendered on anchor.
func (r *Registry) ByAnchor(anchor string) (*Session, bool) {
	if anchor == "" {
		return nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.byAuthor {
		if s.Anchor() == anchor {
			return s, true
		}
	}
	return nil, false
}

// Release frees the slot if it still belongs to s.
func (r *Registry) Release(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.byAuthor[s.Author]; ok && cur == s {
		delete(r.byAuthor, s.Author)
	}
}

// Cancel aborts the author's session. The slot is free when Cancel returns.
func (r *Registry) Cancel(author int64) bool {
	r.mu.Lock()
	s, ok := r.byAuthor[author]
	delete(r.byAuthor, author)
	r.mu.Unlock()
	if ok {
		s.Abort()
	}
	return ok
}

// CancelAnchor aborts whichever session lives on anchor, e.g. after its
// message was deleted. The slot is free when CancelAnchor returns.
func (r *Registry) CancelAnchor(anchor string) bool {
	s, ok := r.ByAnchor(anchor)
	if !ok {
		return false
	}
	r.Release(s)
	s.Abort()
	return true
}

// CancelAll aborts every open session (shutdown).
func (r *Registry) CancelAll() int {
	r.mu.Lock()
	all := make([]*Session, 0, len(r.byAuthor))
	for a, s := range r.byAuthor {
		all = append(all, s)
		delete(r.byAuthor, a)
	}
	r.mu.Unlock()
	for _, s := range all {
		s.Abort()
	}
	return len(all)
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byAuthor)
}
