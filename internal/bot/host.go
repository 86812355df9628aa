package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"

	tele "gopkg.in/telebot.v4"

	"remindbot/internal/prompt"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
	"remindbot/pkg/tgui"
)

// Wizard button actions.
const (
	actOption = "opt"
	actBack   = "back"
	actCancel = "cancel"
)

// promptHost renders a wizard on its anchor message and remembers whether the
// current step waits for a text reply.
type promptHost struct {
	ad  kit.Adapter
	ref kit.MessageRef
	log logx.Logger
	// gone runs once the anchor message is found deleted.
	gone func()

	mu       sync.Mutex
	last     string
	wantText bool
}

var _ prompt.Host = (*promptHost)(nil)

func anchorKey(ref kit.MessageRef) string {
	return fmt.Sprintf("%d/%d", ref.ChatID, ref.MessageID)
}

func (h *promptHost) Render(ctx context.Context, v prompt.View) error {
	return h.show(ctx, v, "")
}

// Reject re-renders the step with the reason the input was refused. Only a
// gone anchor is reported back; other render failures are logged.
func (h *promptHost) Reject(ctx context.Context, v prompt.View, err error) error {
	rerr := h.show(ctx, v, rejectReason(err))
	if errors.Is(rerr, prompt.ErrAnchorGone) {
		return rerr
	}
	if rerr != nil {
		h.log.Debug("render rejection failed", logx.Err(rerr))
	}
	return nil
}

func (h *promptHost) show(ctx context.Context, v prompt.View, note string) error {
	msg := renderView(v, note)
	h.mu.Lock()
	h.wantText = v.Kind == prompt.KindText
	same := msg.Text == h.last && v.Kind != prompt.KindDone
	h.mu.Unlock()
	if same {
		return nil
	}
	err := msg.Edit(ctx, h.ad, h.ref)
	if errors.Is(err, kit.ErrAnchorGone) {
		if h.gone != nil {
			h.gone()
		}
		return fmt.Errorf("%w: %w", prompt.ErrAnchorGone, err)
	}
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.last = msg.Text
	h.mu.Unlock()
	return nil
}

func (h *promptHost) expectsText() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.wantText
}

func rejectReason(err error) string {
	var ie *prompt.InputError
	if errors.As(err, &ie) {
		return ie.Error()
	}
	if errors.Is(err, prompt.ErrUnexpectedInput) {
		return "That button is not available right now."
	}
	return "That did not work, try again."
}

func viewEmoji(v prompt.View) string {
	switch v.State {
	case prompt.Finished:
		return "✅"
	case prompt.Cancelled:
		return "❌"
	case prompt.TimedOut:
		return "⌛"
	default:
		return "⏰"
	}
}

// renderView turns a wizard step into a message with its buttons. Terminal
// views carry no keyboard, which also removes the previous one.
func renderView(v prompt.View, note string) tgui.Message {
	b := tgui.New().Title(viewEmoji(v), v.Title).Line(v.Summary)
	if v.Prompt != "" {
		b.Blank().RawLine(tgui.I(v.Prompt).String())
	}
	if note != "" {
		b.Blank().RawLine("⚠️ " + tgui.Esc(note).String())
	}
	if v.Kind == prompt.KindDone {
		return b.Build()
	}

	kb := tgui.NewInline()
	if len(v.Options) > 0 {
		btns := make([]tele.Btn, 0, len(v.Options))
		for _, o := range v.Options {
			data, err := tgui.CheckedData(callbackNS, actOption, o.Value)
			if err != nil {
				// Telegram rejects the whole keyboard over one oversized button.
				continue
			}
			btns = append(btns, tgui.Btn(o.Label, data))
		}
		kb.Grid(2, btns)
	}
	nav := make([]tele.Btn, 0, 2)
	if v.BackAllowed {
		nav = append(nav, tgui.Btn("◀ Back", tgui.Data(callbackNS, actBack, "")))
	}
	nav = append(nav, tgui.Btn("✖ Cancel", tgui.Data(callbackNS, actCancel, "")))
	kb.Row(nav...)
	return b.Inline(kb).Build()
}
