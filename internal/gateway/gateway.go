// Package gateway carries messages between the bot and a chat transport.
package gateway

import (
	"context"
	"strings"
	"unicode/utf8"
)

// Transport limits for interactive messages.
const (
	MaxButtons      = 10
	MaxReplyButtons = 3
	MaxTitle        = 20
	MaxDescription  = 72
	MaxBody         = 1024
)

// Inbound content types.
const (
	TypeText   = "text"
	TypeButton = "button"
)

// Inbound is one message received from a user. For buttons Body holds the
// button id.
type Inbound struct {
	Sender    string `json:"sender"`
	Type      string `json:"type"`
	Body      string `json:"body"`
	MessageID string `json:"message_id,omitempty"`
}

type Button struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// Gateway delivers outbound messages.
type Gateway interface {
	SendText(ctx context.Context, to, body string) error
	SendInteractive(ctx context.Context, to, body string, buttons []Button) error
	MarkRead(ctx context.Context, messageID string) error
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

// Clamp applies the transport caps to a button set.
func Clamp(buttons []Button) []Button {
	if len(buttons) > MaxButtons {
		buttons = buttons[:MaxButtons]
	}
	out := make([]Button, len(buttons))
	for i, b := range buttons {
		out[i] = Button{
			ID:          b.ID,
			Title:       Truncate(strings.TrimSpace(b.Title), MaxTitle),
			Description: Truncate(b.Description, MaxDescription),
		}
	}
	return out
}
