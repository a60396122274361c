package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/campushub/internal/chat"
	"github.com/campushub/internal/directory"
	"github.com/campushub/internal/logger"
	"github.com/campushub/internal/middleware"
	"github.com/campushub/internal/model"
	"github.com/campushub/internal/storage"
)

type ChatHandler struct {
	svc *chat.Service
	dir *directory.Directory
}

func NewChatHandler(svc *chat.Service, dir *directory.Directory) *ChatHandler {
	return &ChatHandler{svc: svc, dir: dir}
}

// channelListItem is one row of the channel list screen: code, last-message
// preview and the caller's unread count.
type channelListItem struct {
	Code        string             `json:"code"`
	LastMessage *model.LastMessage `json:"last_message,omitempty"`
	Unread      int                `json:"unread"`
}

// membership loads the caller's channel set, answering 403 on a channel they
// cannot touch.
func (h *ChatHandler) membership(w http.ResponseWriter, r *http.Request, channel string) *directory.Membership {
	userID := middleware.GetUserID(r.Context())
	m, err := h.dir.Resolve(r.Context(), userID)
	if err != nil {
		logger.Errorf("chat membership user=%s: %v", userID, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return nil
	}
	if channel != "" && !m.CanAccess(channel) {
		writeError(w, http.StatusForbidden, "not a member of this channel")
		return nil
	}
	return m
}

// ListChannels returns the caller's channels with previews and unread counts,
// one store hit per channel.
func (h *ChatHandler) ListChannels(w http.ResponseWriter, r *http.Request) {
	m := h.membership(w, r, "")
	if m == nil {
		return
	}

	items := make([]channelListItem, 0, len(m.Channels))
	for _, code := range m.Channels {
		item := channelListItem{Code: code}
		if preview, err := h.svc.LastMessagePreview(r.Context(), code); err != nil {
			logger.Errorf("chat list preview channel=%s: %v", code, err)
		} else if preview != nil {
			item.LastMessage = preview.LastMessage
		}
		item.Unread = h.svc.UnreadCount(r.Context(), code, m.UserID)
		items = append(items, item)
	}
	writeJSON(w, http.StatusOK, items)
}

// Messages returns the channel's ordered log, optionally trimmed to the most
// recent ?limit= entries.
func (h *ChatHandler) Messages(w http.ResponseWriter, r *http.Request) {
	channel := chi.URLParam(r, "channel")
	if h.membership(w, r, channel) == nil {
		return
	}
	msgs, err := h.svc.Messages(r.Context(), channel)
	if err != nil {
		logger.Errorf("chat messages channel=%s: %v", channel, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if limit := queryInt(r, "limit", 0); limit > 0 && limit < len(msgs) {
		msgs = msgs[len(msgs)-limit:]
	}
	writeJSON(w, http.StatusOK, msgs)
}

type sendRequest struct {
	Text      string `json:"text"`
	ReplyToID string `json:"reply_to_id,omitempty"`
}

func (h *ChatHandler) Send(w http.ResponseWriter, r *http.Request) {
	channel := chi.URLParam(r, "channel")
	m := h.membership(w, r, channel)
	if m == nil {
		return
	}
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	profile, err := h.dir.Profile(r.Context(), m.UserID)
	if err != nil {
		logger.Errorf("chat send profile user=%s: %v", m.UserID, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	var replyTo *model.ReplyRef
	if req.ReplyToID != "" {
		if msgs, err := h.svc.Messages(r.Context(), channel); err == nil {
			for i := range msgs {
				if msgs[i].ID == req.ReplyToID {
					replyTo = &model.ReplyRef{
						MessageID:  msgs[i].ID,
						SenderID:   msgs[i].SenderID,
						SenderName: msgs[i].SenderName,
						Text:       msgs[i].Text,
					}
					break
				}
			}
		}
	}

	sent, err := h.svc.Send(r.Context(), channel, profile, req.Text, replyTo)
	if err != nil {
		if errors.Is(err, chat.ErrEmptyMessage) {
			writeError(w, http.StatusBadRequest, "message text is empty")
			return
		}
		logger.Errorf("chat send channel=%s user=%s: %v", channel, m.UserID, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusCreated, sent)
}

type editRequest struct {
	Text string `json:"text"`
}

func (h *ChatHandler) Edit(w http.ResponseWriter, r *http.Request) {
	channel := chi.URLParam(r, "channel")
	messageID := chi.URLParam(r, "messageID")
	m := h.membership(w, r, channel)
	if m == nil {
		return
	}
	var req editRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	edited, err := h.svc.Edit(r.Context(), channel, messageID, m.UserID, req.Text)
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrPermissionDenied):
			writeError(w, http.StatusForbidden, "only the sender can edit a message")
		case errors.Is(err, chat.ErrEmptyMessage):
			writeError(w, http.StatusBadRequest, "message text is empty")
		case errors.Is(err, storage.ErrNotFound):
			writeError(w, http.StatusNotFound, "message not found")
		default:
			logger.Errorf("chat edit message=%s user=%s: %v", messageID, m.UserID, err)
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	writeJSON(w, http.StatusOK, edited)
}

func (h *ChatHandler) Delete(w http.ResponseWriter, r *http.Request) {
	channel := chi.URLParam(r, "channel")
	messageID := chi.URLParam(r, "messageID")
	m := h.membership(w, r, channel)
	if m == nil {
		return
	}

	if err := h.svc.Delete(r.Context(), channel, messageID, m.UserID); err != nil {
		switch {
		case errors.Is(err, chat.ErrPermissionDenied):
			writeError(w, http.StatusForbidden, "only the sender can delete a message")
		case errors.Is(err, storage.ErrNotFound):
			writeError(w, http.StatusNotFound, "message not found")
		default:
			logger.Errorf("chat delete message=%s user=%s: %v", messageID, m.UserID, err)
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type markReadRequest struct {
	MessageIDs []string `json:"message_ids,omitempty"`
}

// MarkRead adds the caller to the readBy sets of the listed messages, or of
// every channel message when the list is omitted. Returns the new unread
// count, which is 0 after a full mark.
func (h *ChatHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	channel := chi.URLParam(r, "channel")
	m := h.membership(w, r, channel)
	if m == nil {
		return
	}
	var req markReadRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json")
			return
		}
	}

	msgs, err := h.svc.Messages(r.Context(), channel)
	if err != nil {
		logger.Errorf("chat mark read load channel=%s: %v", channel, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if len(req.MessageIDs) > 0 {
		wanted := make(map[string]struct{}, len(req.MessageIDs))
		for _, id := range req.MessageIDs {
			wanted[id] = struct{}{}
		}
		filtered := msgs[:0]
		for _, msg := range msgs {
			if _, ok := wanted[msg.ID]; ok {
				filtered = append(filtered, msg)
			}
		}
		msgs = filtered
	}

	if err := h.svc.MarkRead(r.Context(), channel, msgs, m.UserID); err != nil {
		logger.Errorf("chat mark read channel=%s user=%s: %v", channel, m.UserID, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"unread": h.svc.UnreadCount(r.Context(), channel, m.UserID)})
}

type reactionRequest struct {
	Emoji string `json:"emoji"`
}

func (h *ChatHandler) AddReaction(w http.ResponseWriter, r *http.Request) {
	h.reaction(w, r, h.svc.AddReaction)
}

func (h *ChatHandler) RemoveReaction(w http.ResponseWriter, r *http.Request) {
	h.reaction(w, r, h.svc.RemoveReaction)
}

func (h *ChatHandler) ToggleReaction(w http.ResponseWriter, r *http.Request) {
	h.reaction(w, r, h.svc.ToggleReaction)
}

func (h *ChatHandler) reaction(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, channel, messageID, userID, emoji string) error) {
	channel := chi.URLParam(r, "channel")
	messageID := chi.URLParam(r, "messageID")
	m := h.membership(w, r, channel)
	if m == nil {
		return
	}
	var req reactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Emoji == "" {
		writeError(w, http.StatusBadRequest, "emoji is required")
		return
	}

	if err := op(r.Context(), channel, messageID, m.UserID, req.Emoji); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "message not found")
			return
		}
		logger.Errorf("chat reaction message=%s user=%s: %v", messageID, m.UserID, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
