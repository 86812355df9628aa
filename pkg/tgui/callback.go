package tgui

import (
	"fmt"
	"strings"
)

// Data formats inline callback data as "namespace:action:payload". Payload is
// kept as-is; it may itself contain ':'.
func Data(namespace, action, payload string) string {
	namespace = strings.TrimSpace(namespace)
	action = strings.TrimSpace(action)
	if payload == "" {
		return namespace + ":" + action
	}
	return namespace + ":" + action + ":" + payload
}

// CheckedData is Data with Telegram's callback_data size limit enforced.
func CheckedData(namespace, action, payload string) (string, error) {
	d := Data(namespace, action, payload)
	if len(d) > MaxCallbackDataLen {
		return "", fmt.Errorf("%w: %d bytes", ErrCallbackDataTooLong, len(d))
	}
	return d, nil
}

// ParseData splits data produced by Data. ok is false when data has no
// action part.
func ParseData(data string) (namespace, action, payload string, ok bool) {
	namespace, rest, found := strings.Cut(data, ":")
	if !found || namespace == "" || rest == "" {
		return "", "", "", false
	}
	action, payload, _ = strings.Cut(rest, ":")
	return namespace, action, payload, action != ""
}
