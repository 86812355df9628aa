package tgui

import (
	tele "gopkg.in/telebot.v4"
)

// Inline is a small builder for inline keyboards (ReplyMarkup).
type Inline struct {
	rm   *tele.ReplyMarkup
	rows []tele.Row
}

func NewInline() *Inline {
	return &Inline{rm: &tele.ReplyMarkup{}}
}

// Row appends a row of buttons. Empty rows are ignored.
func (i *Inline) Row(btn ...tele.Btn) *Inline {
	if len(btn) == 0 {
		return i
	}
	i.rows = append(i.rows, i.rm.Row(btn...))
	i.rm.Inline(i.rows...)
	return i
}

// Grid appends buttons split into rows of cols.
func (i *Inline) Grid(cols int, btns []tele.Btn) *Inline {
	if len(btns) == 0 {
		return i
	}
	i.rows = append(i.rows, i.rm.Split(max(cols, 1), btns)...)
	i.rm.Inline(i.rows...)
	return i
}

func (i *Inline) Empty() bool { return len(i.rows) == 0 }

// Markup returns underlying reply markup.
func (i *Inline) Markup() *tele.ReplyMarkup { return i.rm }

// Btn creates a callback button with raw callback_data (not encoded).
// Use Data to build "namespace:action:payload".
func Btn(text, data string) tele.Btn {
	return tele.Btn{Text: text, Data: data}
}
