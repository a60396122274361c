// Package memory is an in-process implementation of the storage interfaces,
// used in -dev mode (no external Postgres/Redis required) and in tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/campushub/internal/model"
	"github.com/campushub/internal/storage"
)

type channelState struct {
	messages []*model.Message
	preview  *model.Channel
	seq      int64
}

type Client struct {
	mu       sync.RWMutex
	channels map[string]*channelState
	presence map[string]model.PresenceRecord
	typing   map[string]map[string]model.TypingIndicator // channel -> userID -> indicator

	// Now is the clock used for store-assigned timestamps. Tests override it.
	Now func() time.Time
}

func New() *Client {
	return &Client{
		channels: make(map[string]*channelState),
		presence: make(map[string]model.PresenceRecord),
		typing:   make(map[string]map[string]model.TypingIndicator),
		Now:      time.Now,
	}
}

func (c *Client) Close() error { return nil }

func (c *Client) channel(code string) *channelState {
	st, ok := c.channels[code]
	if !ok {
		st = &channelState{}
		c.channels[code] = st
	}
	return st
}

// --- MessageStore ---

func (c *Client) AppendMessage(ctx context.Context, m *model.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.channel(m.Channel)
	st.seq++
	m.Seq = st.seq
	m.CreatedAt = c.Now().UTC()
	cp := cloneMessage(m)
	st.messages = append(st.messages, &cp)
	return nil
}

func (c *Client) ChannelMessages(ctx context.Context, channel string) ([]model.Message, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st, ok := c.channels[channel]
	if !ok {
		return nil, nil
	}
	out := make([]model.Message, 0, len(st.messages))
	for _, m := range st.messages {
		out = append(out, cloneMessage(m))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Seq < out[j].Seq
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (c *Client) GetMessage(ctx context.Context, channel, messageID string) (*model.Message, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m := c.find(channel, messageID)
	if m == nil {
		return nil, storage.ErrNotFound
	}
	cp := cloneMessage(m)
	return &cp, nil
}

func (c *Client) UpdateMessageText(ctx context.Context, channel, messageID, text string, editedAt time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.find(channel, messageID)
	if m == nil {
		return storage.ErrNotFound
	}
	m.Text = text
	m.Edited = true
	t := editedAt
	m.EditedAt = &t
	return nil
}

func (c *Client) DeleteMessage(ctx context.Context, channel, messageID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.channels[channel]
	if !ok {
		return storage.ErrNotFound
	}
	for i, m := range st.messages {
		if m.ID == messageID {
			st.messages = append(st.messages[:i], st.messages[i+1:]...)
			return nil
		}
	}
	return storage.ErrNotFound
}

func (c *Client) AddReader(ctx context.Context, channel, messageID, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.find(channel, messageID)
	if m == nil {
		return storage.ErrNotFound
	}
	if m.ReadBySet(userID) {
		return nil
	}
	m.ReadBy = append(m.ReadBy, userID)
	m.Status = model.MessageStatusDelivered
	return nil
}

func (c *Client) AddReaction(ctx context.Context, channel, messageID, userID, emoji string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.find(channel, messageID)
	if m == nil {
		return storage.ErrNotFound
	}
	if m.ReactedWith(userID, emoji) {
		return nil
	}
	if m.Reactions == nil {
		m.Reactions = make(map[string][]string)
	}
	m.Reactions[emoji] = append(m.Reactions[emoji], userID)
	return nil
}

func (c *Client) RemoveReaction(ctx context.Context, channel, messageID, userID, emoji string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.find(channel, messageID)
	if m == nil {
		return storage.ErrNotFound
	}
	ids := m.Reactions[emoji]
	for i, id := range ids {
		if id == userID {
			m.Reactions[emoji] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(m.Reactions[emoji]) == 0 {
		delete(m.Reactions, emoji)
	}
	return nil
}

func (c *Client) UnreadCount(ctx context.Context, channel, userID string) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st, ok := c.channels[channel]
	if !ok {
		return 0, nil
	}
	n := 0
	for _, m := range st.messages {
		if m.SenderID != userID && !m.ReadBySet(userID) {
			n++
		}
	}
	return n, nil
}

func (c *Client) ChannelPreview(ctx context.Context, channel string) (*model.Channel, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st, ok := c.channels[channel]
	if !ok || st.preview == nil {
		return nil, storage.ErrNotFound
	}
	cp := *st.preview
	if st.preview.LastMessage != nil {
		lm := *st.preview.LastMessage
		cp.LastMessage = &lm
	}
	return &cp, nil
}

func (c *Client) SetChannelPreview(ctx context.Context, channel string, last model.LastMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.channel(channel)
	st.preview = &model.Channel{
		Code:         channel,
		LastMessage:  &last,
		LastActivity: c.Now().UTC(),
	}
	return nil
}

// find returns the live message pointer; callers hold c.mu.
func (c *Client) find(channel, messageID string) *model.Message {
	st, ok := c.channels[channel]
	if !ok {
		return nil
	}
	for _, m := range st.messages {
		if m.ID == messageID {
			return m
		}
	}
	return nil
}

func cloneMessage(m *model.Message) model.Message {
	cp := *m
	cp.ReadBy = append([]string(nil), m.ReadBy...)
	if m.Reactions != nil {
		cp.Reactions = make(map[string][]string, len(m.Reactions))
		for k, v := range m.Reactions {
			cp.Reactions[k] = append([]string(nil), v...)
		}
	}
	if m.ReplyTo != nil {
		r := *m.ReplyTo
		cp.ReplyTo = &r
	}
	return cp
}

// --- PresenceStore ---

func (c *Client) UpsertPresence(ctx context.Context, rec model.PresenceRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.presence[rec.UserID] = rec
	return nil
}

func (c *Client) SetOffline(ctx context.Context, userID string, lastSeen time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.presence[userID]
	if !ok {
		return nil
	}
	rec.IsOnline = false
	rec.LastSeen = lastSeen
	c.presence[userID] = rec
	return nil
}

func (c *Client) Heartbeat(ctx context.Context, userID string, at time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.presence[userID]
	if !ok {
		return nil
	}
	rec.LastSeen = at
	c.presence[userID] = rec
	return nil
}

func (c *Client) ListPresence(ctx context.Context) ([]model.PresenceRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]model.PresenceRecord, 0, len(c.presence))
	for _, rec := range c.presence {
		out = append(out, rec)
	}
	return out, nil
}

// --- TypingStore ---

func (c *Client) SetTyping(ctx context.Context, ind model.TypingIndicator) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	byUser, ok := c.typing[ind.Channel]
	if !ok {
		byUser = make(map[string]model.TypingIndicator)
		c.typing[ind.Channel] = byUser
	}
	byUser[ind.UserID] = ind
	return nil
}

func (c *Client) ClearTyping(ctx context.Context, channel, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.typing[channel], userID)
	return nil
}

func (c *Client) ListTyping(ctx context.Context, channel string) ([]model.TypingIndicator, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	byUser := c.typing[channel]
	out := make([]model.TypingIndicator, 0, len(byUser))
	for _, ind := range byUser {
		out = append(out, ind)
	}
	return out, nil
}
