package tgui

import (
	"fmt"
	"html"
)

// H represents HTML that is safe to pass to Telegram when ParseMode="HTML".
// Values of type H should be treated as already-escaped.
type H string

func (h H) String() string { return string(h) }

// Esc escapes text for Telegram HTML parse mode.
func Esc(s string) H { return H(html.EscapeString(s)) }

func wrap(tag string, inner H) H { return H("<" + tag + ">" + inner.String() + "</" + tag + ">") }

func B(s string) H     { return wrap("b", Esc(s)) }
func I(s string) H     { return wrap("i", Esc(s)) }
func Code(s string) H  { return wrap("code", Esc(s)) }
func Quote(s string) H { return wrap("blockquote", Esc(s)) }

// Mention links to a Telegram user ID.
func Mention(name string, userID int64) H {
	return H(fmt.Sprintf(`<a href="tg://user?id=%d">%s</a>`, userID, html.EscapeString(name)))
}
