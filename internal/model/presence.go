package model

import "time"

// PresenceRecord is the liveness entity for one user. The stored IsOnline flag
// is advisory: readers must apply the staleness floor to LastSeen, so a record
// abandoned by a crashed client eventually counts as offline on its own.
type PresenceRecord struct {
	UserID        string    `json:"user_id"`
	IsOnline      bool      `json:"is_online"`
	LastSeen      time.Time `json:"last_seen"`
	Name          string    `json:"name"`
	Role          Role      `json:"role"`
	AcademicLevel string    `json:"academic_level,omitempty"`
	AvatarURL     string    `json:"avatar_url,omitempty"`
}

// TypingIndicator is an ephemeral per-(channel, user) signal that a user is
// composing a message. Upserted on keystrokes, deleted on idle or send.
type TypingIndicator struct {
	Channel   string    `json:"channel"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Role      Role      `json:"role"`
	Timestamp time.Time `json:"timestamp"`
}
