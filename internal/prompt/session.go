package prompt

import (
	"context"
	"errors"
	"sync"
	"time"
)

// DefaultTimeout is the inactivity limit of a wizard.
const DefaultTimeout = 90 * time.Second

// ErrAnchorGone is returned by a Host when the message the wizard lives on no
// longer exists. The session ends as Cancelled.
var ErrAnchorGone = errors.New("prompt: anchor message gone")

// Outcome is how a session ended.
type Outcome int

const (
	Completed Outcome = iota
	OutcomeCancelled
	OutcomeTimedOut
)

func (o Outcome) String() string {
	switch o {
	case Completed:
		return "completed"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// InputKind selects which Machine method an Input drives.
type InputKind int

const (
	InputChoose InputKind = iota
	InputSubmit
	InputBack
	InputCancel
)

// Input is one user action fed to a running session.
type Input struct {
	Kind  InputKind
	Value string
}

// Host renders views and reports rejected input. Render is called after every
// transition except the one into Finished: the caller renders that view once
// it has acted on the result. Either method returns ErrAnchorGone when the
// wizard's message no longer exists, which ends the session as Cancelled.
type Host interface {
	Render(ctx context.Context, v View) error
	Reject(ctx context.Context, v View, err error) error
}

// Session runs one Machine for one author.
type Session struct {
	Author  int64
	timeout time.Duration
	m       *Machine

	inputs chan Input
	abort  chan struct{}
	once   sync.Once

	mu     sync.Mutex
	anchor string
}

// NewSession wraps m. timeout <= 0 means DefaultTimeout.
func NewSession(author int64, m *Machine, timeout time.Duration) *Session {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Session{
		Author:  author,
		timeout: timeout,
		m:       m,
		inputs:  make(chan Input, 8),
		abort:   make(chan struct{}),
	}
}

// Machine exposes the wizard state. Only read it after Run has returned.
func (s *Session) Machine() *Machine { return s.m }

// SetAnchor records the id of the message the wizard is rendered on.
func (s *Session) SetAnchor(anchor string) {
	s.mu.Lock()
	s.anchor = anchor
	s.mu.Unlock()
}

func (s *Session) Anchor() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.anchor
}

// Deliver queues an input. It reports false when the session is over or the
// queue is full.
func (s *Session) Deliver(in Input) bool {
	if in.Kind == InputCancel {
		s.Abort()
		return true
	}
	select {
	case <-s.abort:
		return false
	default:
	}
	select {
	case s.inputs <- in:
		return true
	default:
		return false
	}
}

// Abort cancels the session from outside (explicit /cancel, anchor deletion).
func (s *Session) Abort() { s.once.Do(func() { close(s.abort) }) }

// Run drives the machine until it reaches a terminal state. The inactivity
// timer restarts on every input, accepted or not.
func (s *Session) Run(ctx context.Context, host Host) (Outcome, error) {
	timer := time.NewTimer(s.timeout)
	defer timer.Stop()
	defer s.Abort()

	if err := host.Render(ctx, s.m.View()); err != nil {
		return s.finish(ctx, host, OutcomeCancelled, err)
	}
	for {
		select {
		case <-ctx.Done():
			return s.finish(ctx, host, OutcomeCancelled, ctx.Err())
		case <-s.abort:
			return s.finish(ctx, host, OutcomeCancelled, nil)
		case <-timer.C:
			return s.finish(ctx, host, OutcomeTimedOut, nil)
		case in := <-s.inputs:
			timer.Reset(s.timeout)
			if err := s.apply(in); err != nil {
				if rerr := host.Reject(ctx, s.m.View(), err); errors.Is(rerr, ErrAnchorGone) {
					return s.finish(ctx, host, OutcomeCancelled, rerr)
				}
				continue
			}
			if s.m.State() == Finished {
				return Completed, nil
			}
			if err := host.Render(ctx, s.m.View()); err != nil {
				return s.finish(ctx, host, OutcomeCancelled, err)
			}
		}
	}
}

func (s *Session) apply(in Input) error {
	switch in.Kind {
	case InputChoose:
		return s.m.Choose(in.Value)
	case InputSubmit:
		return s.m.Submit(in.Value)
	case InputBack:
		return s.m.Back()
	default:
		return ErrUnexpectedInput
	}
}

// finish moves the machine to Cancelled or TimedOut and renders it once. A
// gone anchor is not an error for the caller.
func (s *Session) finish(ctx context.Context, host Host, o Outcome, cause error) (Outcome, error) {
	switch o {
	case OutcomeCancelled:
		s.m.Cancel()
	case OutcomeTimedOut:
		s.m.Expire()
	}
	if errors.Is(cause, ErrAnchorGone) {
		return o, nil
	}
	rctx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		rctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
	}
	if err := host.Render(rctx, s.m.View()); err != nil && cause == nil && !errors.Is(err, ErrAnchorGone) {
		cause = err
	}
	if errors.Is(cause, context.Canceled) {
		cause = nil
	}
	return o, cause
}
