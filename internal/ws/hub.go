package ws

import (
	"context"
	"errors"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/campushub/internal/chat"
	"github.com/campushub/internal/logger"
	"github.com/campushub/internal/model"
	"github.com/campushub/internal/presence"
	"github.com/campushub/internal/typing"
)

// PushNotifier sends push notifications. Nil disables push.
type PushNotifier interface {
	Notify(ctx context.Context, userID, title, body string, data map[string]string)
}

// MemberLister resolves the recipients of a channel for push fan-out.
type MemberLister interface {
	EnrolledUserIDs(ctx context.Context, courseCode string) ([]string, error)
}

type Hub struct {
	mu       sync.RWMutex
	clients  map[string]map[*Client]struct{}
	total    int
	maxConns int

	chatSvc    *chat.Service
	typingTr   *typing.Tracker
	presenceTr *presence.Tracker
	members    MemberLister
	pushClient PushNotifier

	register   chan *Client
	unregister chan *Client
	done       chan struct{}
}

func NewHub(
	chatSvc *chat.Service,
	typingTr *typing.Tracker,
	presenceTr *presence.Tracker,
	members MemberLister,
	maxConns int,
	pushClient PushNotifier,
) *Hub {
	if maxConns <= 0 {
		maxConns = 10000
	}
	return &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		maxConns:   maxConns,
		chatSvc:    chatSvc,
		typingTr:   typingTr,
		presenceTr: presenceTr,
		members:    members,
		pushClient: pushClient,
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		done:       make(chan struct{}),
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		}
	}
}

func (h *Hub) shutdown() {
	// Collect all clients under the lock, do NOT perform I/O under mutex.
	h.mu.Lock()
	allClients := make([]*Client, 0, h.total)
	for _, clients := range h.clients {
		for c := range clients {
			allClients = append(allClients, c)
		}
	}
	h.clients = make(map[string]map[*Client]struct{})
	h.total = 0
	h.mu.Unlock()

	for _, c := range allClients {
		c.Close()
	}
	for _, c := range allClients {
		c.Wait()
	}
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	if h.total >= h.maxConns {
		h.mu.Unlock()
		logger.Errorf("ws connection limit reached (%d), rejecting user=%s", h.maxConns, c.userID)
		c.Close()
		return
	}
	if _, ok := h.clients[c.userID]; !ok {
		h.clients[c.userID] = make(map[*Client]struct{})
	}
	h.clients[c.userID][c] = struct{}{}
	h.total++
	h.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.presenceTr.Announce(ctx, c.profile); err != nil {
		logger.Errorf("ws presence announce user=%s: %v", c.userID, err)
	}
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	clients, ok := h.clients[c.userID]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, exists := clients[c]; !exists {
		h.mu.Unlock()
		return
	}
	delete(clients, c)
	h.total--
	lastClient := len(clients) == 0
	if lastClient {
		delete(h.clients, c.userID)
	}
	h.mu.Unlock()

	// Network I/O outside the lock.
	c.Close()

	if lastClient {
		// Best-effort: a failed offline write just leaves a record that goes
		// stale and falls out of the counts on its own.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.presenceTr.Withdraw(ctx, c.userID); err != nil {
			logger.Errorf("ws presence withdraw user=%s: %v", c.userID, err)
		}
	}
}

// HandleMessage dispatches incoming WebSocket messages.
func (h *Hub) HandleMessage(ctx context.Context, c *Client, msg IncomingMessage) {
	switch msg.Type {
	case EventJoinChannel:
		h.handleJoinChannel(ctx, c, msg)
	case EventLeaveChannel:
		h.handleLeaveChannel(c, msg)
	case EventSendMessage:
		h.handleSendMessage(ctx, c, msg)
	case EventTyping:
		h.handleTyping(ctx, c, msg)
	case EventMarkRead:
		h.handleMarkRead(ctx, c, msg)
	case EventAddReaction, EventRemoveReaction, EventToggleReaction:
		h.handleReaction(ctx, c, msg)
	case EventEditMessage:
		h.handleEditMessage(ctx, c, msg)
	case EventDeleteMessage:
		h.handleDeleteMessage(ctx, c, msg)
	case EventWatchPresence:
		h.handleWatchPresence(ctx, c, msg)
	default:
		h.sendError(c, "unknown_event", string(msg.Type))
	}
}

// requireChannel checks that the client may touch the channel and reports the
// denial to the client when not.
func (h *Hub) requireChannel(c *Client, channel string) bool {
	if channel == "" {
		h.sendError(c, "channel_required", "")
		return false
	}
	if !c.membership.CanAccess(channel) {
		h.sendError(c, "not_a_member", channel)
		return false
	}
	return true
}

// handleJoinChannel opens the live feeds for a channel: the full message
// snapshot stream and the typing stream. Joining twice is a no-op.
func (h *Hub) handleJoinChannel(ctx context.Context, c *Client, msg IncomingMessage) {
	defer logger.DeferLogDuration("ws.handleJoinChannel", time.Now())()
	if !h.requireChannel(c, msg.Channel) {
		return
	}

	c.feedMu.Lock()
	_, joined := c.feeds[msg.Channel]
	c.feedMu.Unlock()
	if joined {
		return
	}

	// Subscribing loads the initial snapshot from the store; keep that I/O
	// outside feedMu so a slow store cannot stall the client's other feeds.
	feeds := &channelFeeds{
		messages: h.chatSvc.Subscribe(ctx, msg.Channel),
		typers:   h.typingTr.Subscribe(ctx, msg.Channel, c.userID),
	}

	c.feedMu.Lock()
	if _, raced := c.feeds[msg.Channel]; raced {
		c.feedMu.Unlock()
		feeds.messages.Cancel()
		feeds.typers.Cancel()
		return
	}
	c.feeds[msg.Channel] = feeds
	c.feedMu.Unlock()

	channel := msg.Channel
	go func() {
		for msgs := range feeds.messages.Updates() {
			h.sendToClient(c, OutgoingMessage{Type: EventChannelMessages, Payload: ChannelMessagesPayload{
				Channel:  channel,
				Messages: msgs,
			}})
		}
	}()
	go func() {
		for users := range feeds.typers.Updates() {
			h.sendToClient(c, OutgoingMessage{Type: EventTypingUsers, Payload: TypingUsersPayload{
				Channel: channel,
				Users:   users,
			}})
		}
	}()
}

func (h *Hub) handleLeaveChannel(c *Client, msg IncomingMessage) {
	if msg.Channel == "" {
		return
	}
	c.feedMu.Lock()
	feeds, ok := c.feeds[msg.Channel]
	if ok {
		delete(c.feeds, msg.Channel)
	}
	c.feedMu.Unlock()
	if ok {
		feeds.messages.Cancel()
		feeds.typers.Cancel()
	}
}

func (h *Hub) handleSendMessage(ctx context.Context, c *Client, msg IncomingMessage) {
	defer logger.DeferLogDuration("ws.handleSendMessage", time.Now())()
	if !h.requireChannel(c, msg.Channel) {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var replyTo *model.ReplyRef
	if msg.ReplyToID != "" {
		if orig, err := h.chatSvc.Messages(ctx, msg.Channel); err == nil {
			for i := range orig {
				if orig[i].ID == msg.ReplyToID {
					replyTo = &model.ReplyRef{
						MessageID:  orig[i].ID,
						SenderID:   orig[i].SenderID,
						SenderName: orig[i].SenderName,
						Text:       orig[i].Text,
					}
					break
				}
			}
		}
	}

	m, err := h.chatSvc.Send(ctx, msg.Channel, c.profile, msg.Text, replyTo)
	if err != nil {
		if errors.Is(err, chat.ErrEmptyMessage) {
			h.sendError(c, "empty_message", "")
			return
		}
		logger.Errorf("ws send channel=%s user=%s: %v", msg.Channel, c.userID, err)
		h.sendError(c, "send_failed", "")
		return
	}

	h.notifyRecipients(msg.Channel, m)
}

// notifyRecipients pushes the new message to everyone on the channel except
// the sender. Each push runs on its own goroutine so a slow push service never
// delays delivery.
func (h *Hub) notifyRecipients(channel string, m *model.Message) {
	if h.pushClient == nil || h.members == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ids, err := h.members.EnrolledUserIDs(ctx, channel)
	if err != nil {
		logger.Errorf("ws push recipients channel=%s: %v", channel, err)
		return
	}
	body := truncateBody(m.Text, 120)
	data := map[string]string{"channel": channel, "message_id": m.ID}
	for _, uid := range ids {
		if uid == m.SenderID {
			continue
		}
		uid := uid
		go h.pushClient.Notify(context.Background(), uid, m.SenderName, body, data)
	}
}

// truncateBody shortens a push preview to at most max bytes, backing up to a
// rune boundary so a multi-byte character is never cut in half.
func truncateBody(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func (h *Hub) handleTyping(ctx context.Context, c *Client, msg IncomingMessage) {
	if !h.requireChannel(c, msg.Channel) {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := h.typingTr.SetTyping(ctx, msg.Channel, c.profile, msg.IsTyping); err != nil {
		// Fire-and-forget: a lost indicator only means no bubble shows.
		logger.Errorf("ws typing channel=%s user=%s: %v", msg.Channel, c.userID, err)
	}
}

// handleMarkRead adds the client to the readBy set of the listed messages, or
// of every channel message when the list is empty (opening the channel marks
// everything visible as read). The client's new unread count comes back on the
// same connection.
func (h *Hub) handleMarkRead(ctx context.Context, c *Client, msg IncomingMessage) {
	defer logger.DeferLogDuration("ws.handleMarkRead", time.Now())()
	if !h.requireChannel(c, msg.Channel) {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	msgs, err := h.chatSvc.Messages(ctx, msg.Channel)
	if err != nil {
		logger.Errorf("ws mark read load channel=%s: %v", msg.Channel, err)
		return
	}
	if len(msg.MessageIDs) > 0 {
		wanted := make(map[string]struct{}, len(msg.MessageIDs))
		for _, id := range msg.MessageIDs {
			wanted[id] = struct{}{}
		}
		filtered := msgs[:0]
		for _, m := range msgs {
			if _, ok := wanted[m.ID]; ok {
				filtered = append(filtered, m)
			}
		}
		msgs = filtered
	}

	if err := h.chatSvc.MarkRead(ctx, msg.Channel, msgs, c.userID); err != nil {
		logger.Errorf("ws mark read channel=%s user=%s: %v", msg.Channel, c.userID, err)
		return
	}

	h.sendToClient(c, OutgoingMessage{Type: EventUnreadCount, Payload: UnreadCountPayload{
		Channel: msg.Channel,
		Count:   h.chatSvc.UnreadCount(ctx, msg.Channel, c.userID),
	}})
}

func (h *Hub) handleReaction(ctx context.Context, c *Client, msg IncomingMessage) {
	if !h.requireChannel(c, msg.Channel) {
		return
	}
	if msg.MessageID == "" || msg.Emoji == "" {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var err error
	switch msg.Type {
	case EventAddReaction:
		err = h.chatSvc.AddReaction(ctx, msg.Channel, msg.MessageID, c.userID, msg.Emoji)
	case EventRemoveReaction:
		err = h.chatSvc.RemoveReaction(ctx, msg.Channel, msg.MessageID, c.userID, msg.Emoji)
	default:
		err = h.chatSvc.ToggleReaction(ctx, msg.Channel, msg.MessageID, c.userID, msg.Emoji)
	}
	if err != nil {
		logger.Errorf("ws reaction %s message=%s user=%s: %v", msg.Type, msg.MessageID, c.userID, err)
	}
}

func (h *Hub) handleEditMessage(ctx context.Context, c *Client, msg IncomingMessage) {
	defer logger.DeferLogDuration("ws.handleEditMessage", time.Now())()
	if !h.requireChannel(c, msg.Channel) {
		return
	}
	if msg.MessageID == "" {
		h.sendError(c, "message_id_required", "")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := h.chatSvc.Edit(ctx, msg.Channel, msg.MessageID, c.userID, msg.Text); err != nil {
		switch {
		case errors.Is(err, chat.ErrPermissionDenied):
			h.sendError(c, "not_your_message", "")
		case errors.Is(err, chat.ErrEmptyMessage):
			h.sendError(c, "empty_message", "")
		default:
			logger.Errorf("ws edit message=%s user=%s: %v", msg.MessageID, c.userID, err)
			h.sendError(c, "edit_failed", "")
		}
	}
}

func (h *Hub) handleDeleteMessage(ctx context.Context, c *Client, msg IncomingMessage) {
	defer logger.DeferLogDuration("ws.handleDeleteMessage", time.Now())()
	if !h.requireChannel(c, msg.Channel) {
		return
	}
	if msg.MessageID == "" {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := h.chatSvc.Delete(ctx, msg.Channel, msg.MessageID, c.userID); err != nil {
		if errors.Is(err, chat.ErrPermissionDenied) {
			h.sendError(c, "not_your_message", "")
			return
		}
		logger.Errorf("ws delete message=%s user=%s: %v", msg.MessageID, c.userID, err)
		h.sendError(c, "delete_failed", "")
	}
}

// handleWatchPresence swaps the client's online-count feed to the requested
// filter. Watching again with a different filter replaces the old feed.
func (h *Hub) handleWatchPresence(ctx context.Context, c *Client, msg IncomingMessage) {
	filter := presence.Filter{Role: msg.Role, AcademicLevel: msg.AcademicLevel}

	c.feedMu.Lock()
	if c.online != nil {
		c.online.Cancel()
	}
	sub := h.presenceTr.SubscribeCount(ctx, filter)
	c.online = sub
	c.feedMu.Unlock()

	role, level := msg.Role, msg.AcademicLevel
	go func() {
		for n := range sub.Updates() {
			h.sendToClient(c, OutgoingMessage{Type: EventOnlineCount, Payload: OnlineCountPayload{
				Role:          role,
				AcademicLevel: level,
				Count:         n,
			}})
		}
	}()
}

func (h *Hub) sendError(c *Client, reason, detail string) {
	h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: ErrorPayload{Reason: reason, Detail: detail}})
}

func (h *Hub) sendToClient(c *Client, msg OutgoingMessage) {
	select {
	case c.send <- msg:
	case <-c.done:
	default:
		// Backpressure: send buffer full, close slow client.
		logger.Errorf("ws send buffer full, closing slow client user=%s", c.userID)
		c.Close()
	}
}

func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		c.Close()
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}
