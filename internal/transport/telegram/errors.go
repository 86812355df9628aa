package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v4"

	"remindbot/internal/scheduler"
)

// Telegram reports most conditions only through the description text.
var (
	goneMarkers = []string{
		"chat not found",
		"bot was kicked",
		"bot is not a member",
		"bot was blocked by the user",
		"user is deactivated",
		"group chat was deleted",
		"group chat was upgraded",
		"message thread not found",
		"user not found",
		"participant_id_invalid",
	}
	deniedMarkers = []string{
		"not enough rights",
		"have no rights",
		"chat_write_forbidden",
		"can't initiate conversation",
		"topic_closed",
	}
)

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

// classify maps a telebot error onto the scheduler's error taxonomy. Anything
// it does not recognise is a transport error, so the tick retries later.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", scheduler.ErrTransport, err)
	}
	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, goneMarkers):
		return fmt.Errorf("%w: %w", scheduler.ErrTargetGone, err)
	case containsAny(msg, deniedMarkers):
		return fmt.Errorf("%w: %w", scheduler.ErrPermissionDenied, err)
	}
	var te *tele.Error
	if errors.As(err, &te) && te.Code == 403 {
		return fmt.Errorf("%w: %w", scheduler.ErrPermissionDenied, err)
	}
	if strings.Contains(msg, "(403)") || strings.Contains(msg, "forbidden") {
		return fmt.Errorf("%w: %w", scheduler.ErrPermissionDenied, err)
	}
	return fmt.Errorf("%w: %w", scheduler.ErrTransport, err)
}

func isAnchorGone(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "message to edit not found") ||
		strings.Contains(msg, "message can't be edited") ||
		strings.Contains(msg, "chat not found")
}

func isNotModified(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "message is not modified")
}
