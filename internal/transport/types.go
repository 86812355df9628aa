// Package transport holds the chat-platform neutral types the bot and the
// scheduler talk through. The Telegram implementation lives in
// internal/transport/telegram.
package transport

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrAnchorGone is returned by EditText when the message being edited no
// longer exists (deleted by a user or an admin).
var ErrAnchorGone = errors.New("transport: message to edit not found")

type UpdateKind string

const (
	UpdateMessage  UpdateKind = "message"
	UpdateCallback UpdateKind = "callback"
)

type Update struct {
	Kind     UpdateKind
	Message  *Message
	Callback *Callback
}

type Message struct {
	ID           int
	ChatID       int64
	ThreadID     int // telegram forum topic thread id (0 if none)
	FromID       int64
	FromUsername string
	FromName     string
	Text         string
	IsGroup      bool
}

type Callback struct {
	ID        string
	FromID    int64
	FromName  string
	ChatID    int64
	ThreadID  int
	MessageID int
	Data      string
}

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

// Target returns the chat (and thread) the referenced message lives in.
func (r MessageRef) Target() ChatTarget { return ChatTarget{ChatID: r.ChatID, ThreadID: r.ThreadID} }

type SendOptions struct {
	ParseMode          string
	DisablePreview     bool
	ReplyMarkupAdapter any // adapter-specific markup (Telegram: *telebot.ReplyMarkup)
}

// Member statuses as reported by the platform.
const (
	RoleCreator       = "creator"
	RoleAdministrator = "administrator"
	RoleMember        = "member"
	RoleRestricted    = "restricted"
	RoleLeft          = "left"
	RoleKicked        = "kicked"
)

// Member describes a user's standing in a chat. Title is the custom admin
// title, if any.
type Member struct {
	Role  string
	Title string
}

// Admin reports whether the member can manage the chat.
func (m Member) Admin() bool { return m.Role == RoleCreator || m.Role == RoleAdministrator }

// Present reports whether the member is still part of the chat.
func (m Member) Present() bool { return m.Role != RoleLeft && m.Role != RoleKicked && m.Role != "" }

// HasRole reports whether the member matches a configured manager role, either
// by status ("administrator") or by custom admin title.
func (m Member) HasRole(role string) bool {
	role = strings.TrimSpace(role)
	if role == "" {
		return false
	}
	return strings.EqualFold(m.Role, role) || (m.Title != "" && strings.EqualFold(m.Title, role))
}

type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	EditText(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error
	AnswerCallback(ctx context.Context, callbackID string, text string) error
	MemberOf(ctx context.Context, chatID, userID int64) (Member, error)
}

// BotCommand represents a single bot command menu entry.
type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is an optional interface that adapters can implement
// to update platform-specific bot command menus (e.g. Telegram /menu list).
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}

// ParseDestination decodes "<chat_id>" or "<chat_id>:<thread_id>".
func ParseDestination(s string) (ChatTarget, error) {
	s = strings.TrimSpace(s)
	chat, thread, hasThread := strings.Cut(s, ":")
	id, err := strconv.ParseInt(chat, 10, 64)
	if err != nil || id == 0 {
		return ChatTarget{}, fmt.Errorf("invalid destination %q", s)
	}
	t := ChatTarget{ChatID: id}
	if hasThread {
		n, err := strconv.Atoi(thread)
		if err != nil || n < 0 {
			return ChatTarget{}, fmt.Errorf("invalid destination thread %q", s)
		}
		t.ThreadID = n
	}
	return t, nil
}

// FormatDestination is the inverse of ParseDestination.
func FormatDestination(t ChatTarget) string {
	if t.ThreadID == 0 {
		return strconv.FormatInt(t.ChatID, 10)
	}
	return strconv.FormatInt(t.ChatID, 10) + ":" + strconv.Itoa(t.ThreadID)
}
