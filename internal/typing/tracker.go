// Package typing tracks ephemeral "is composing" indicators per channel.
// Writes are fire-and-forget at call sites: a dropped update only means a
// typing bubble does not show.
package typing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/campushub/internal/chat"
	"github.com/campushub/internal/logger"
	"github.com/campushub/internal/model"
	"github.com/campushub/internal/storage"
)

// Tracker owns the typing store connection and the in-process fan-out to
// channel subscribers.
type Tracker struct {
	store storage.TypingStore

	mu   sync.RWMutex
	subs map[string]map[*Subscription]struct{}

	now func() time.Time
}

func NewTracker(store storage.TypingStore) *Tracker {
	return &Tracker{
		store: store,
		subs:  make(map[string]map[*Subscription]struct{}),
		now:   time.Now,
	}
}

// SetTyping upserts the user's indicator with the current timestamp when
// isTyping is true, and deletes the record outright when false. Debouncing
// keystrokes into at most one call per 2-3s window is the caller's concern.
func (t *Tracker) SetTyping(ctx context.Context, channel string, user model.UserPublic, isTyping bool) error {
	if user.ID == "" {
		return chat.ErrUnauthenticated
	}
	if !isTyping {
		return t.Clear(ctx, channel, user.ID)
	}
	ind := model.TypingIndicator{
		Channel:   channel,
		UserID:    user.ID,
		Name:      user.FullName,
		Role:      user.Role,
		Timestamp: t.now().UTC(),
	}
	if err := t.store.SetTyping(ctx, ind); err != nil {
		return fmt.Errorf("typing.SetTyping: %w", err)
	}
	t.notify(ctx, channel)
	return nil
}

// Clear deletes the user's indicator for the channel (stop typing, or send).
func (t *Tracker) Clear(ctx context.Context, channel, userID string) error {
	if err := t.store.ClearTyping(ctx, channel, userID); err != nil {
		return fmt.Errorf("typing.Clear: %w", err)
	}
	t.notify(ctx, channel)
	return nil
}

// active returns the channel's indicators filtered to the freshness window,
// excluding the given user. A record past the window is excluded even if its
// delete never arrived.
func (t *Tracker) active(ctx context.Context, channel, excludeUserID string) []model.TypingIndicator {
	inds, err := t.store.ListTyping(ctx, channel)
	if err != nil {
		logger.Errorf("typing.active channel=%s: %v", channel, err)
		return nil
	}
	now := t.now()
	out := make([]model.TypingIndicator, 0, len(inds))
	for _, ind := range inds {
		if ind.UserID == excludeUserID {
			continue
		}
		if !chat.IsFresh(ind.Timestamp, now, chat.TypingFreshFor) {
			continue
		}
		out = append(out, ind)
	}
	return out
}

func (t *Tracker) notify(ctx context.Context, channel string) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for sub := range t.subs[channel] {
		sub.push(t.active(ctx, channel, sub.exclude))
	}
}
