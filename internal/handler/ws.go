package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/campushub/internal/directory"
	"github.com/campushub/internal/logger"
	"github.com/campushub/internal/middleware"
	"github.com/campushub/internal/ws"
)

type WSHandler struct {
	hub            *ws.Hub
	dir            *directory.Directory
	allowedOrigins string
}

// NewWSHandler creates the WebSocket handler. allowedOrigins matches the CORS
// setting (comma separated or "*").
func NewWSHandler(hub *ws.Hub, dir *directory.Directory, allowedOrigins string) *WSHandler {
	return &WSHandler{hub: hub, dir: dir, allowedOrigins: strings.TrimSpace(allowedOrigins)}
}

func (h *WSHandler) checkOrigin(r *http.Request) bool {
	if h.allowedOrigins == "*" || h.allowedOrigins == "" {
		return true
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	for _, o := range strings.Split(h.allowedOrigins, ",") {
		if strings.TrimSpace(o) == origin {
			return true
		}
	}
	return false
}

func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if !h.checkOrigin(r) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	// Profile and channel membership resolve once per connection; a new
	// enrolment takes effect on reconnect.
	profile, err := h.dir.Profile(r.Context(), userID)
	if err != nil {
		logger.Errorf("ws profile user=%s: %v", userID, err)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	membership, err := h.dir.Resolve(r.Context(), userID)
	if err != nil {
		logger.Errorf("ws membership user=%s: %v", userID, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(r *http.Request) bool { return h.checkOrigin(r) },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Errorf("ws upgrade: %v", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := ws.NewClient(h.hub, conn, profile, membership)
	client.Start(ctx, cancel)
	h.hub.Register(client)
}
