// Package chat implements the course chat core: the per-channel message
// stream, read/reaction tracking and unread aggregation, plus the shared
// freshness policy used by the presence and typing trackers.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/campushub/internal/logger"
	"github.com/campushub/internal/model"
	"github.com/campushub/internal/storage"
)

// TypingClearer removes a user's typing indicator for a channel. Satisfied by
// typing.Tracker; kept narrow so the message stream does not depend on the
// whole tracker.
type TypingClearer interface {
	Clear(ctx context.Context, channel, userID string) error
}

const subscriptionBuffer = 4

// Service is the message stream manager for all channels. All channel state
// is multi-writer and multi-reader; the store provides per-document atomicity
// and the service provides in-process fan-out to subscribers.
type Service struct {
	store  storage.MessageStore
	typing TypingClearer // optional; cleared on send

	mu   sync.RWMutex
	subs map[string]map[*Subscription]struct{}

	now func() time.Time
}

func NewService(store storage.MessageStore, typing TypingClearer) *Service {
	return &Service{
		store:  store,
		typing: typing,
		subs:   make(map[string]map[*Subscription]struct{}),
		now:    time.Now,
	}
}

// Send appends a message to the channel's ordered log. The store assigns the
// timestamp; readBy starts as {sender}; the channel preview is updated and
// the sender's typing indicator cleared as side effects. A failed preview
// update is not an error: it self-heals on the next send.
func (s *Service) Send(ctx context.Context, channel string, sender model.UserPublic, text string, replyTo *model.ReplyRef) (*model.Message, error) {
	defer logger.DeferLogDuration("chat.Send", time.Now())()
	if sender.ID == "" {
		return nil, ErrUnauthenticated
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}

	m := &model.Message{
		ID:           uuid.New().String(),
		Channel:      channel,
		SenderID:     sender.ID,
		SenderName:   sender.FullName,
		SenderRole:   sender.Role,
		SenderLevel:  sender.AcademicLevel,
		SenderAvatar: sender.AvatarURL,
		Text:         text,
		Type:         model.MessageTypeText,
		Status:       model.MessageStatusSent,
		ReadBy:       []string{sender.ID},
		ReplyTo:      replyTo,
	}
	if err := s.store.AppendMessage(ctx, m); err != nil {
		return nil, fmt.Errorf("chat.Send: %w", err)
	}

	if err := s.store.SetChannelPreview(ctx, channel, model.LastMessage{
		Text:       m.Text,
		SenderID:   m.SenderID,
		SenderName: m.SenderName,
		Timestamp:  m.CreatedAt,
	}); err != nil {
		logger.Errorf("chat.Send preview channel=%s: %v", channel, err)
	}

	if s.typing != nil {
		if err := s.typing.Clear(ctx, channel, sender.ID); err != nil {
			logger.Errorf("chat.Send clear typing channel=%s user=%s: %v", channel, sender.ID, err)
		}
	}

	s.notifyChannel(ctx, channel)
	return m, nil
}

// Edit overwrites a message's text. Only the original sender may edit; the
// readBy set and reactions are left untouched.
func (s *Service) Edit(ctx context.Context, channel, messageID, editorID, newText string) (*model.Message, error) {
	defer logger.DeferLogDuration("chat.Edit", time.Now())()
	if editorID == "" {
		return nil, ErrUnauthenticated
	}
	if strings.TrimSpace(newText) == "" {
		return nil, ErrEmptyMessage
	}
	m, err := s.store.GetMessage(ctx, channel, messageID)
	if err != nil {
		return nil, fmt.Errorf("chat.Edit: %w", err)
	}
	if m.SenderID != editorID {
		return nil, ErrPermissionDenied
	}
	editedAt := s.now().UTC()
	if err := s.store.UpdateMessageText(ctx, channel, messageID, newText, editedAt); err != nil {
		return nil, fmt.Errorf("chat.Edit: %w", err)
	}
	m.Text = newText
	m.Edited = true
	m.EditedAt = &editedAt

	s.notifyChannel(ctx, channel)
	return m, nil
}

// Delete removes a message from the log outright. Only the sender may delete.
func (s *Service) Delete(ctx context.Context, channel, messageID, actorID string) error {
	defer logger.DeferLogDuration("chat.Delete", time.Now())()
	if actorID == "" {
		return ErrUnauthenticated
	}
	m, err := s.store.GetMessage(ctx, channel, messageID)
	if err != nil {
		return fmt.Errorf("chat.Delete: %w", err)
	}
	if m.SenderID != actorID {
		return ErrPermissionDenied
	}
	if err := s.store.DeleteMessage(ctx, channel, messageID); err != nil {
		return fmt.Errorf("chat.Delete: %w", err)
	}

	s.notifyChannel(ctx, channel)
	return nil
}

// Messages returns the channel's full log in timestamp order.
func (s *Service) Messages(ctx context.Context, channel string) ([]model.Message, error) {
	msgs, err := s.store.ChannelMessages(ctx, channel)
	if err != nil {
		return nil, fmt.Errorf("chat.Messages: %w", err)
	}
	return msgs, nil
}

// Subscribe registers a live feed for the channel. The current snapshot is
// pushed immediately; afterwards the complete ordered list is re-pushed on
// every change until Cancel.
func (s *Service) Subscribe(ctx context.Context, channel string) *Subscription {
	sub := &Subscription{ch: make(chan []model.Message, subscriptionBuffer)}
	sub.cancel = func() {
		s.mu.Lock()
		if set, ok := s.subs[channel]; ok {
			delete(set, sub)
			if len(set) == 0 {
				delete(s.subs, channel)
			}
		}
		s.mu.Unlock()
		close(sub.ch)
	}

	s.mu.Lock()
	set, ok := s.subs[channel]
	if !ok {
		set = make(map[*Subscription]struct{})
		s.subs[channel] = set
	}
	set[sub] = struct{}{}
	s.mu.Unlock()

	msgs, err := s.store.ChannelMessages(ctx, channel)
	if err != nil {
		// Read-path failure: deliver an empty snapshot, log, keep the feed alive.
		logger.Errorf("chat.Subscribe initial snapshot channel=%s: %v", channel, err)
		msgs = nil
	}
	sub.push(msgs)
	return sub
}

// notifyChannel reloads the channel log and fans the snapshot out to every
// subscriber. Store failures here are swallowed with a log line: subscribers
// simply keep their previous snapshot.
func (s *Service) notifyChannel(ctx context.Context, channel string) {
	s.mu.RLock()
	n := len(s.subs[channel])
	s.mu.RUnlock()
	if n == 0 {
		return
	}

	msgs, err := s.store.ChannelMessages(ctx, channel)
	if err != nil {
		logger.Errorf("chat.notify channel=%s: %v", channel, err)
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for sub := range s.subs[channel] {
		sub.push(msgs)
	}
}

// LastMessagePreview returns the channel's denormalized last-message
// projection without scanning the log. Nil when the channel has no messages.
func (s *Service) LastMessagePreview(ctx context.Context, channel string) (*model.Channel, error) {
	ch, err := s.store.ChannelPreview(ctx, channel)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("chat.LastMessagePreview: %w", err)
	}
	return ch, nil
}
