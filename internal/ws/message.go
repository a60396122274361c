package ws

import (
	"github.com/campushub/internal/model"
)

type EventType string

// Client -> server events.
const (
	EventJoinChannel    EventType = "join_channel"
	EventLeaveChannel   EventType = "leave_channel"
	EventSendMessage    EventType = "send_message"
	EventTyping         EventType = "typing"
	EventMarkRead       EventType = "mark_read"
	EventAddReaction    EventType = "add_reaction"
	EventRemoveReaction EventType = "remove_reaction"
	EventToggleReaction EventType = "toggle_reaction"
	EventEditMessage    EventType = "edit_message"
	EventDeleteMessage  EventType = "delete_message"
	EventWatchPresence  EventType = "watch_presence"
)

// Server -> client events.
const (
	EventChannelMessages EventType = "channel_messages"
	EventTypingUsers     EventType = "typing_users"
	EventOnlineCount     EventType = "online_count"
	EventUnreadCount     EventType = "unread_count"
	EventError           EventType = "error"
)

// IncomingMessage is what the client sends to the server.
type IncomingMessage struct {
	Type    EventType `json:"type"`
	Channel string    `json:"channel,omitempty"`

	// send_message
	Text      string `json:"text,omitempty"`
	ReplyToID string `json:"reply_to_id,omitempty"`

	// typing
	IsTyping bool `json:"is_typing,omitempty"`

	// mark_read (batch), edit/delete/reactions (single)
	MessageIDs []string `json:"message_ids,omitempty"`
	MessageID  string   `json:"message_id,omitempty"`
	Emoji      string   `json:"emoji,omitempty"`

	// watch_presence
	Role          model.Role `json:"role,omitempty"`
	AcademicLevel string     `json:"academic_level,omitempty"`
}

// OutgoingMessage is what the server sends to the client.
// Payload uses typed structs to avoid heap-heavy map[string]any.
type OutgoingMessage struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

// ChannelMessagesPayload carries the full ordered message list for a channel.
// The client replaces its local list wholesale; there are no incremental
// patches to reconcile.
type ChannelMessagesPayload struct {
	Channel  string          `json:"channel"`
	Messages []model.Message `json:"messages"`
}

// TypingUsersPayload carries the channel's active typers, excluding the
// receiving user.
type TypingUsersPayload struct {
	Channel string                  `json:"channel"`
	Users   []model.TypingIndicator `json:"users"`
}

// OnlineCountPayload carries the online count for the watched filter.
type OnlineCountPayload struct {
	Role          model.Role `json:"role,omitempty"`
	AcademicLevel string     `json:"academic_level,omitempty"`
	Count         int        `json:"count"`
}

// UnreadCountPayload carries one channel's unread count for the receiver.
type UnreadCountPayload struct {
	Channel string `json:"channel"`
	Count   int    `json:"count"`
}

// ErrorPayload names what failed. Reason is a stable token, detail is human
// readable.
type ErrorPayload struct {
	Reason string `json:"reason"`
	Detail string `json:"detail,omitempty"`
}
