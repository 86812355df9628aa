package tgui

import (
	"context"
	"strings"

	tele "gopkg.in/telebot.v4"

	kit "remindbot/internal/transport"
)

// Message is a rendered UI payload: text + send options, built once and sent
// or edited without repeating ParseMode/preview/markup boilerplate.
type Message struct {
	Text string
	Opt  *kit.SendOptions
}

// Send sends the Message via the provided adapter.
func (m Message) Send(ctx context.Context, ad kit.Adapter, to kit.ChatTarget) (kit.MessageRef, error) {
	return ad.SendText(ctx, to, m.Text, m.Opt)
}

// Edit replaces the message referred by ref.
func (m Message) Edit(ctx context.Context, ad kit.Adapter, ref kit.MessageRef) error {
	return ad.EditText(ctx, ref, m.Text, m.Opt)
}

// Builder is the main UI builder.
// Default: ParseMode=HTML, DisablePreview=true.
type Builder struct {
	parseMode      string
	disablePreview bool
	rm             *tele.ReplyMarkup
	lines          []string
}

func New() *Builder {
	return &Builder{parseMode: tele.ModeHTML, disablePreview: true}
}

func (b *Builder) html() bool { return strings.EqualFold(b.parseMode, tele.ModeHTML) }

// ParseMode overrides Telegram parse mode ("HTML", "Markdown", or empty).
func (b *Builder) ParseMode(mode string) *Builder {
	b.parseMode = strings.TrimSpace(mode)
	return b
}

// Inline attaches an inline keyboard. nil removes it.
func (b *Builder) Inline(kb *Inline) *Builder {
	if kb == nil || kb.Empty() {
		b.rm = nil
		return b
	}
	b.rm = kb.Markup()
	return b
}

// Title adds a bold title line. Emoji is optional.
func (b *Builder) Title(emoji, title string) *Builder {
	e := strings.TrimSpace(emoji)
	t := strings.TrimSpace(title)
	if t == "" {
		return b
	}
	line := t
	if b.html() {
		line = B(t).String()
	}
	if e != "" {
		line = e + " " + line
	}
	b.lines = append(b.lines, line)
	return b
}

// Line adds a single line, escaping when ParseMode is HTML.
func (b *Builder) Line(s string) *Builder {
	if strings.TrimSpace(s) == "" {
		b.lines = append(b.lines, "")
		return b
	}
	if b.html() {
		s = Esc(s).String()
	}
	b.lines = append(b.lines, s)
	return b
}

// RawLine appends a line without escaping.
func (b *Builder) RawLine(s string) *Builder {
	b.lines = append(b.lines, s)
	return b
}

// Blank inserts an empty line.
func (b *Builder) Blank() *Builder { return b.Line("") }

// KV adds a "• key: value" row.
func (b *Builder) KV(key, value string) *Builder {
	key = strings.TrimSpace(key)
	value = strings.TrimSpace(value)
	if key == "" {
		return b
	}
	if b.html() {
		b.lines = append(b.lines, "• "+B(key).String()+": "+Esc(value).String())
		return b
	}
	b.lines = append(b.lines, "• "+key+": "+value)
	return b
}

// Build produces a ready-to-send Message.
func (b *Builder) Build() Message {
	opt := &kit.SendOptions{ParseMode: b.parseMode, DisablePreview: b.disablePreview}
	if b.rm != nil {
		opt.ReplyMarkupAdapter = b.rm
	}
	return Message{Text: strings.Trim(strings.Join(b.lines, "\n"), "\n"), Opt: opt}
}
