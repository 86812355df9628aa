// Package prompt implements the /set wizard: a back-navigable state machine
// that turns step-by-step chat input into schedule tokens, the session loop
// that drives it with an inactivity timeout, and the per-author registry that
// keeps at most one wizard open per user.
package prompt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"remindbot/internal/timeparse"
)

var (
	// ErrInputInvalid marks user text that failed validation. The machine stays
	// on the same step.
	ErrInputInvalid = errors.New("prompt: invalid input")
	// ErrUnexpectedInput is returned for inputs the current state does not take
	// (stale buttons, text while a choice is expected, anything after the end).
	ErrUnexpectedInput = errors.New("prompt: input not accepted in this state")
)

// State identifies a wizard step.
type State int

const (
	Initial State = iota
	DateTimeInput
	InAmount
	RepeatChoice
	RepeatAmount
	Confirm
	Finished
	Cancelled
	TimedOut
)

var stateNames = map[State]string{
	Initial:       "initial",
	DateTimeInput: "datetime_input",
	InAmount:      "in_amount",
	RepeatChoice:  "repeat_choice",
	RepeatAmount:  "repeat_amount",
	Confirm:       "confirm",
	Finished:      "finished",
	Cancelled:     "cancelled",
	TimedOut:      "timed_out",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no further input is accepted.
func (s State) Terminal() bool { return s == Finished || s == Cancelled || s == TimedOut }

// Choice values accepted by Choose.
const (
	ChoiceOn       = "on"
	ChoiceIn       = "in"
	ChoiceToday    = "today"
	ChoiceTomorrow = "tomorrow"
	ChoiceRepeat   = "every"
	ChoiceOnce     = "never"
	ChoiceConfirm  = "confirm"
)

// repeatingMarker ends the first schedule token so the running summary reads
// "on 25/12/2025 at 09:00, repeating never".
const repeatingMarker = ", repeating"

// InputError describes a rejected input.
type InputError struct {
	State  State
	Input  string
	Reason string
	Err    error
}

func (e *InputError) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	return fmt.Sprintf("%q is not valid here", e.Input)
}

func (e *InputError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrInputInvalid, e.Err}
	}
	return []error{ErrInputInvalid}
}

// Options configure a Machine.
type Options struct {
	Location *time.Location
	Now      func() time.Time
	// MinRepeat rejects repeat intervals shorter than this. Zero disables the check.
	MinRepeat time.Duration
}

// handler is one row of the transition table.
type handler struct {
	choose func(m *Machine, value string) error
	submit func(m *Machine, text string) error
	view   func(m *Machine) View
}

var table map[State]handler

func init() {
	table = map[State]handler{
		Initial:       {choose: chooseInitial, view: viewInitial},
		DateTimeInput: {submit: submitDateTime, view: viewDateTime},
		InAmount:      {submit: submitInAmount, view: viewInAmount},
		RepeatChoice:  {choose: chooseRepeat, view: viewRepeatChoice},
		RepeatAmount:  {submit: submitRepeatAmount, view: viewRepeatAmount},
		Confirm:       {choose: chooseConfirm, view: viewConfirm},
		Finished:      {view: viewTerminal},
		Cancelled:     {view: viewTerminal},
		TimedOut:      {view: viewTerminal},
	}
}

// Machine is the wizard state. It is not safe for concurrent use; a Session
// owns it.
type Machine struct {
	text   string
	opt    Options
	state  State
	tokens []string
	// prev is the state Back returns to, recorded when each state is entered.
	prev map[State]State
	// dayHint pre-fills the day for the today/tomorrow shortcuts.
	dayHint string
}

// NewMachine starts a wizard for text.
func NewMachine(text string, opt Options) *Machine {
	if opt.Location == nil {
		opt.Location = time.UTC
	}
	if opt.Now == nil {
		opt.Now = time.Now
	}
	return &Machine{text: text, opt: opt, state: Initial, prev: map[State]State{}}
}

func (m *Machine) State() State { return m.state }

func (m *Machine) Text() string { return m.text }

func (m *Machine) Location() *time.Location { return m.opt.Location }

// Tokens returns a copy of the accumulated schedule tokens.
func (m *Machine) Tokens() []string { return append([]string(nil), m.tokens...) }

// Schedule renders the tokens as one line, e.g. "in 2 hours, repeating every 1 day".
func (m *Machine) Schedule() string { return strings.Join(m.tokens, " ") }

// Choose applies a button choice.
func (m *Machine) Choose(value string) error {
	h := table[m.state]
	if h.choose == nil {
		return fmt.Errorf("%w: choice %q in %s", ErrUnexpectedInput, value, m.state)
	}
	return h.choose(m, strings.ToLower(strings.TrimSpace(value)))
}

// Submit applies free text.
func (m *Machine) Submit(text string) error {
	h := table[m.state]
	if h.submit == nil {
		return fmt.Errorf("%w: text in %s", ErrUnexpectedInput, m.state)
	}
	return h.submit(m, strings.TrimSpace(text))
}

// Back drops the last token and re-enters the predecessor recorded for the
// current state.
func (m *Machine) Back() error {
	if m.state == Initial || m.state.Terminal() {
		return fmt.Errorf("%w: back in %s", ErrUnexpectedInput, m.state)
	}
	if n := len(m.tokens); n > 0 {
		m.tokens = m.tokens[:n-1]
	}
	to, ok := m.prev[m.state]
	if !ok {
		to = Initial
	}
	m.state = to
	if to == Initial {
		m.dayHint = ""
		m.prev = map[State]State{}
	}
	return nil
}

// Cancel ends the wizard without a result.
func (m *Machine) Cancel() {
	if !m.state.Terminal() {
		m.state = Cancelled
	}
}

// Expire ends the wizard after inactivity.
func (m *Machine) Expire() {
	if !m.state.Terminal() {
		m.state = TimedOut
	}
}

// View returns what the host should show for the current state.
func (m *Machine) View() View { return table[m.state].view(m) }

func (m *Machine) push(tok string, next State) {
	m.tokens = append(m.tokens, tok)
	m.enter(next)
}

func (m *Machine) enter(next State) {
	if next == Confirm {
		m.prev[next] = m.confirmBackTarget()
	} else {
		m.prev[next] = m.state
	}
	m.state = next
}

func (m *Machine) invalid(input, reason string, err error) error {
	return &InputError{State: m.state, Input: input, Reason: reason, Err: err}
}

func (m *Machine) hasToken(tok string) bool {
	for _, t := range m.tokens {
		if t == tok {
			return true
		}
	}
	return false
}

func chooseInitial(m *Machine, v string) error {
	switch v {
	case ChoiceOn:
		m.push(ChoiceOn, DateTimeInput)
	case ChoiceIn:
		m.push(ChoiceIn, InAmount)
	case ChoiceToday, ChoiceTomorrow:
		m.dayHint = v
		m.push(ChoiceOn, DateTimeInput)
	default:
		return fmt.Errorf("%w: choice %q in %s", ErrUnexpectedInput, v, m.state)
	}
	return nil
}

func submitDateTime(m *Machine, text string) error {
	if text == "" {
		return m.invalid(text, "Please enter a date and time.", nil)
	}
	now := m.opt.Now()
	var (
		t   time.Time
		err error
	)
	if m.dayHint != "" {
		t, err = timeparse.ParseAbsolute(m.dayHint+" "+text, m.opt.Location, now)
	}
	if m.dayHint == "" || err != nil {
		t, err = timeparse.ParseAbsolute(text, m.opt.Location, now)
	}
	if err != nil {
		return m.invalid(text, fmt.Sprintf("Couldn't understand %q as a date and time.", text), err)
	}
	// Tokens carry minute precision.
	t = t.Truncate(time.Minute)
	if !t.After(now) {
		return m.invalid(text, fmt.Sprintf("%s is in the past.", timeparse.FormatAbsolute(t)), nil)
	}
	m.push(timeparse.FormatAbsolute(t)+repeatingMarker, RepeatChoice)
	return nil
}

func submitInAmount(m *Machine, text string) error {
	canon, err := timeparse.NormaliseInterval(text)
	if err != nil {
		return m.invalid(text, fmt.Sprintf("Couldn't understand %q as an amount of time.", text), err)
	}
	m.push(canon+repeatingMarker, RepeatChoice)
	return nil
}

func chooseRepeat(m *Machine, v string) error {
	switch v {
	case ChoiceRepeat, "yes":
		m.push(ChoiceRepeat, RepeatAmount)
	case ChoiceOnce, "no":
		m.push(ChoiceOnce, Confirm)
	default:
		return fmt.Errorf("%w: choice %q in %s", ErrUnexpectedInput, v, m.state)
	}
	return nil
}

func submitRepeatAmount(m *Machine, text string) error {
	canon, err := timeparse.NormaliseInterval(text)
	if err != nil {
		return m.invalid(text, fmt.Sprintf("Couldn't understand %q as a repeat interval.", text), err)
	}
	if m.opt.MinRepeat > 0 {
		base := m.opt.Now().In(m.opt.Location)
		next, err := timeparse.AddInterval(canon, base)
		if err != nil {
			return m.invalid(text, fmt.Sprintf("Couldn't understand %q as a repeat interval.", text), err)
		}
		if next.Sub(base) < m.opt.MinRepeat {
			return m.invalid(text, fmt.Sprintf("Reminders can repeat at most every %s.", m.opt.MinRepeat), nil)
		}
	}
	m.push(canon, Confirm)
	return nil
}

func chooseConfirm(m *Machine, v string) error {
	if v != ChoiceConfirm && v != "yes" {
		return fmt.Errorf("%w: choice %q in %s", ErrUnexpectedInput, v, m.state)
	}
	m.enter(Finished)
	return nil
}

// confirmBackTarget is where Back from Confirm goes given the tokens so far.
func (m *Machine) confirmBackTarget() State {
	if m.hasToken(ChoiceOnce) {
		return RepeatChoice
	}
	return RepeatAmount
}
