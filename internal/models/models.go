package models

import (
	"encoding/json"
	"time"
)

// UserID is the Telegram user identifier. Used only as a lookup key.
type UserID = int64

// SessionID is the opaque conversation token issued by the assistant service.
type SessionID = string

// Session represents an assistant conversation session bound to a user
type Session struct {
	UserID    UserID    `json:"user_id"`
	SessionID SessionID `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
}

// PartKind is the response_type of a reply part
type PartKind string

const (
	TextPart   PartKind = "text"
	OptionPart PartKind = "option"
)

// Option is one selectable choice of an option part
type Option struct {
	Label string      `json:"label"`
	Value OptionValue `json:"value"`
}

// OptionValue is the input sent back to the assistant when the option is chosen
type OptionValue struct {
	Input struct {
		Text string `json:"text"`
	} `json:"input"`
}

// ResponsePart is one unit of the assistant's structured reply.
// Pointer and nil-slice fields distinguish an absent field from an empty one.
type ResponsePart struct {
	Kind    PartKind `json:"response_type"`
	Text    *string  `json:"text,omitempty"`
	Title   *string  `json:"title,omitempty"`
	Options []Option `json:"options,omitempty"`
}

// AssistantReply is the decoded reply plus the raw payload kept for diagnostics
type AssistantReply struct {
	Parts []ResponsePart  `json:"generic"`
	Raw   json.RawMessage `json:"-"`
}

// OutgoingMessage is the rendered message sent back to the chat
type OutgoingMessage struct {
	Text           string     `json:"text"`
	QuickReplies   [][]string `json:"quick_replies,omitempty"`
	RemoveKeyboard bool       `json:"remove_keyboard"`
}

// HasQuickReplies reports whether a reply keyboard should be attached
func (m OutgoingMessage) HasQuickReplies() bool {
	return len(m.QuickReplies) > 0
}
