// Package storage defines the persistence contracts of the chat core.
// Durable chat history lives behind MessageStore (postgres in production),
// ephemeral liveness state behind PresenceStore and TypingStore (redis in
// production). The memory client implements all three for -dev and tests.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/campushub/internal/model"
)

var ErrNotFound = errors.New("not found")

// MessageStore is the per-channel ordered message log plus the channel's
// denormalized last-message projection.
//
// Ordering contract: ChannelMessages returns messages ascending by CreatedAt,
// ties broken by the store-assigned Seq, which together form a total order per
// channel. AppendMessage assigns CreatedAt and Seq and fills them in on m.
type MessageStore interface {
	AppendMessage(ctx context.Context, m *model.Message) error
	ChannelMessages(ctx context.Context, channel string) ([]model.Message, error)
	GetMessage(ctx context.Context, channel, messageID string) (*model.Message, error)
	UpdateMessageText(ctx context.Context, channel, messageID, text string, editedAt time.Time) error
	DeleteMessage(ctx context.Context, channel, messageID string) error

	// AddReader appends userID to the message's readBy set. Adding an id that
	// is already present is a no-op; ids are never removed.
	AddReader(ctx context.Context, channel, messageID, userID string) error
	AddReaction(ctx context.Context, channel, messageID, userID, emoji string) error
	RemoveReaction(ctx context.Context, channel, messageID, userID, emoji string) error

	// UnreadCount counts messages where SenderID != userID and userID is not
	// in readBy. This scan-based definition is the correctness baseline.
	UnreadCount(ctx context.Context, channel, userID string) (int, error)

	ChannelPreview(ctx context.Context, channel string) (*model.Channel, error)
	SetChannelPreview(ctx context.Context, channel string, last model.LastMessage) error
}

// PresenceStore holds one PresenceRecord per user. Writes are last-write-wins;
// readers apply the freshness policy, the store does not.
type PresenceStore interface {
	UpsertPresence(ctx context.Context, rec model.PresenceRecord) error
	SetOffline(ctx context.Context, userID string, lastSeen time.Time) error
	Heartbeat(ctx context.Context, userID string, at time.Time) error
	ListPresence(ctx context.Context) ([]model.PresenceRecord, error)
}

// TypingStore holds ephemeral typing indicators keyed by (channel, user).
type TypingStore interface {
	SetTyping(ctx context.Context, ind model.TypingIndicator) error
	ClearTyping(ctx context.Context, channel, userID string) error
	ListTyping(ctx context.Context, channel string) ([]model.TypingIndicator, error)
}
