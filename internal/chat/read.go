package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/campushub/internal/logger"
	"github.com/campushub/internal/model"
)

// MarkRead adds readerID to the readBy set of every message in the batch that
// the reader did not send and has not already read. Idempotent: re-marking an
// already-read message is a no-op, and the readBy set only ever grows — no
// removal path exists at this level.
func (s *Service) MarkRead(ctx context.Context, channel string, messages []model.Message, readerID string) error {
	defer logger.DeferLogDuration("chat.MarkRead", time.Now())()
	if readerID == "" {
		return ErrUnauthenticated
	}
	changed := false
	for i := range messages {
		m := &messages[i]
		if m.SenderID == readerID || m.ReadBySet(readerID) {
			continue
		}
		if err := s.store.AddReader(ctx, channel, m.ID, readerID); err != nil {
			return fmt.Errorf("chat.MarkRead message=%s: %w", m.ID, err)
		}
		changed = true
	}
	if changed {
		s.notifyChannel(ctx, channel)
	}
	return nil
}

// AddReaction adds userID to the message's reactor set for emoji. A user may
// hold reactions with several distinct emojis on the same message.
func (s *Service) AddReaction(ctx context.Context, channel, messageID, userID, emoji string) error {
	if userID == "" {
		return ErrUnauthenticated
	}
	if err := s.store.AddReaction(ctx, channel, messageID, userID, emoji); err != nil {
		return fmt.Errorf("chat.AddReaction: %w", err)
	}
	s.notifyChannel(ctx, channel)
	return nil
}

// RemoveReaction removes userID from the message's reactor set for emoji.
func (s *Service) RemoveReaction(ctx context.Context, channel, messageID, userID, emoji string) error {
	if userID == "" {
		return ErrUnauthenticated
	}
	if err := s.store.RemoveReaction(ctx, channel, messageID, userID, emoji); err != nil {
		return fmt.Errorf("chat.RemoveReaction: %w", err)
	}
	s.notifyChannel(ctx, channel)
	return nil
}

// ToggleReaction adds the reaction if the user does not currently hold it,
// and removes it otherwise.
func (s *Service) ToggleReaction(ctx context.Context, channel, messageID, userID, emoji string) error {
	if userID == "" {
		return ErrUnauthenticated
	}
	m, err := s.store.GetMessage(ctx, channel, messageID)
	if err != nil {
		return fmt.Errorf("chat.ToggleReaction: %w", err)
	}
	if m.ReactedWith(userID, emoji) {
		return s.RemoveReaction(ctx, channel, messageID, userID, emoji)
	}
	return s.AddReaction(ctx, channel, messageID, userID, emoji)
}
