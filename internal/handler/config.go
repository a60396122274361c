package handler

import (
	"net/http"

	"github.com/campushub/internal/config"
)

type ConfigHandler struct {
	cfg *config.Config
}

func NewConfigHandler(cfg *config.Config) *ConfigHandler {
	return &ConfigHandler{cfg: cfg}
}

// Client answers the settings a browser client needs before logging in.
func (h *ConfigHandler) Client(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"push_enabled":     h.cfg.PushServiceURL != "",
		"vapid_public_key": h.cfg.PushVAPIDPublicKey,
	})
}
