package handler

import (
	"net/http"

	"github.com/campushub/internal/model"
	"github.com/campushub/internal/presence"
)

type PresenceHandler struct {
	tracker *presence.Tracker
}

func NewPresenceHandler(tracker *presence.Tracker) *PresenceHandler {
	return &PresenceHandler{tracker: tracker}
}

// OnlineCount answers the current online count for an optional role and
// academic level filter (query parameters role, level).
func (h *PresenceHandler) OnlineCount(w http.ResponseWriter, r *http.Request) {
	f := presence.Filter{
		Role:          model.Role(r.URL.Query().Get("role")),
		AcademicLevel: r.URL.Query().Get("level"),
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": h.tracker.CountOnline(r.Context(), f)})
}

// OnlineUsers answers the fresh online records for the members sheet.
func (h *PresenceHandler) OnlineUsers(w http.ResponseWriter, r *http.Request) {
	f := presence.Filter{
		Role:          model.Role(r.URL.Query().Get("role")),
		AcademicLevel: r.URL.Query().Get("level"),
	}
	users := h.tracker.OnlineUsers(r.Context(), f)
	if users == nil {
		users = []model.PresenceRecord{}
	}
	writeJSON(w, http.StatusOK, users)
}
