package telegram

import (
	"errors"
	"fmt"
	"strings"
)

// APIError is a non-ok response from the Bot API.
type APIError struct {
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram: api error %d: %s", e.Code, e.Description)
}

// IsNotModified reports whether err is Telegram refusing an edit because the
// message content and markup are already identical. Callers treat this as
// success: the post is in the desired state.
func IsNotModified(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) &&
		strings.Contains(apiErr.Description, "message is not modified")
}

// IsUnreachable reports whether err means the recipient cannot be messaged:
// the user never started the bot, blocked it, or the chat is gone. Private
// notifications degrade gracefully on this.
func IsUnreachable(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.Code == 403 {
		return true
	}
	return strings.Contains(apiErr.Description, "chat not found")
}
