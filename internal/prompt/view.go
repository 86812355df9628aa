package prompt

import "fmt"

// Kind tells the host what input the current step expects.
type Kind int

const (
	KindChoice Kind = iota // inline buttons
	KindText               // a free-text reply
	KindDone               // terminal, no input
)

// Option is one button of a choice step.
type Option struct {
	Value string
	Label string
}

// View is the host-facing rendering of a state. Text fields are plain text;
// escaping is the host's job.
type View struct {
	State       State
	Kind        Kind
	Title       string
	Summary     string // quoted reminder text and the schedule so far
	Prompt      string
	Options     []Option
	BackAllowed bool
}

func (m *Machine) summary(done bool) string {
	tail := "..."
	if done {
		tail = "."
	}
	sched := m.Schedule()
	if sched == "" {
		return fmt.Sprintf("%q\n%s", m.text, tail)
	}
	return fmt.Sprintf("%q\n%s%s", m.text, sched, tail)
}

func (m *Machine) inProgress(kind Kind, prompt string, opts ...Option) View {
	return View{
		State:       m.state,
		Kind:        kind,
		Title:       "Setting reminder...",
		Summary:     m.summary(false),
		Prompt:      prompt,
		Options:     opts,
		BackAllowed: m.state != Initial,
	}
}

func viewInitial(m *Machine) View {
	return m.inProgress(KindChoice, "Choose a reminder type",
		Option{Value: ChoiceOn, Label: "📅 on... a certain date"},
		Option{Value: ChoiceIn, Label: "⏲ in... an amount of time"},
		Option{Value: ChoiceToday, Label: "today at..."},
		Option{Value: ChoiceTomorrow, Label: "tomorrow at..."},
	)
}

func viewDateTime(m *Machine) View {
	if m.dayHint != "" {
		return m.inProgress(KindText, fmt.Sprintf("Reply with the time for %s (e.g. 17:00, 5pm, noon).", m.dayHint))
	}
	return m.inProgress(KindText, "Reply with the date and time (e.g. 25/12/2025 at 09:00, tomorrow 5pm, next friday 8am).")
}

func viewInAmount(m *Machine) View {
	return m.inProgress(KindText, "Reply with how long from now (e.g. 2 hours, 1 day 30 minutes).")
}

func viewRepeatChoice(m *Machine) View {
	return m.inProgress(KindChoice, "Should this reminder repeat?",
		Option{Value: ChoiceOnce, Label: "No"},
		Option{Value: ChoiceRepeat, Label: "🔁 Yes"},
	)
}

func viewRepeatAmount(m *Machine) View {
	return m.inProgress(KindText, "Reply with how often it repeats (e.g. day, 2 weeks, 1 month).")
}

func viewConfirm(m *Machine) View {
	v := m.inProgress(KindChoice, "", Option{Value: ChoiceConfirm, Label: "✅ Confirm"})
	v.Summary = m.summary(true)
	return v
}

func viewTerminal(m *Machine) View {
	v := View{State: m.state, Kind: KindDone}
	switch m.state {
	case Finished:
		v.Title = "Reminder set!"
		v.Summary = m.summary(true)
	case Cancelled:
		v.Title = "Reminder cancelled!"
		v.Summary = m.summary(false)
	case TimedOut:
		v.Title = "Reminder timed out!"
		v.Summary = m.summary(false)
	}
	return v
}
