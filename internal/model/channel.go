package model

import "time"

// Channel keys that are not course codes.
const (
	ChannelGeneral = "GENERAL"
	ChannelFaculty = "FACULTY"
)

// LastMessage is the denormalized preview of a channel's most recent message.
// It is always a projection of the true newest message in the log, never an
// independent source of truth.
type LastMessage struct {
	Text       string    `json:"text"`
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Timestamp  time.Time `json:"timestamp"`
}

// Channel is a per-course (or role-wide) message stream, keyed by course code.
// Created implicitly on first message, updated on every send, never deleted.
type Channel struct {
	Code         string       `json:"code"`
	LastMessage  *LastMessage `json:"last_message,omitempty"`
	LastActivity time.Time    `json:"last_activity"`
}
