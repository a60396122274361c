package model

import "time"

type MessageType string

const (
	MessageTypeText MessageType = "text"
	// Placeholders for future media support; never produced by the server today.
	MessageTypeImage MessageType = "image"
	MessageTypeVoice MessageType = "voice"
)

type MessageStatus string

const (
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusDelivered MessageStatus = "delivered"
)

// ReplyRef is a denormalized snapshot of the message being replied to,
// copied at send time so the preview survives edits of the original.
type ReplyRef struct {
	MessageID  string `json:"message_id"`
	SenderID   string `json:"sender_id"`
	SenderName string `json:"sender_name"`
	Text       string `json:"text"`
}

type Message struct {
	ID           string              `json:"id"`
	Channel      string              `json:"channel"` // course code, or GENERAL/FACULTY
	SenderID     string              `json:"sender_id"`
	SenderName   string              `json:"sender_name"`
	SenderRole   Role                `json:"sender_role"`
	SenderLevel  string              `json:"sender_level,omitempty"`
	SenderAvatar string              `json:"sender_avatar,omitempty"`
	Text         string              `json:"text"`
	Type         MessageType         `json:"type"`
	Status       MessageStatus       `json:"status"`
	ReadBy       []string            `json:"read_by"`
	Reactions    map[string][]string `json:"reactions,omitempty"` // emoji -> reactor ids
	ReplyTo      *ReplyRef           `json:"reply_to,omitempty"`
	Edited       bool                `json:"edited,omitempty"`
	EditedAt     *time.Time          `json:"edited_at,omitempty"`
	CreatedAt    time.Time           `json:"created_at"` // assigned by the store, never mutated
	Seq          int64               `json:"-"`          // store-assigned insertion order, tiebreak for equal timestamps
}

// ReadBySet reports whether userID is already in the readBy set.
func (m *Message) ReadBySet(userID string) bool {
	for _, id := range m.ReadBy {
		if id == userID {
			return true
		}
	}
	return false
}

// ReactedWith reports whether userID has reacted to the message with emoji.
func (m *Message) ReactedWith(userID, emoji string) bool {
	for _, id := range m.Reactions[emoji] {
		if id == userID {
			return true
		}
	}
	return false
}
