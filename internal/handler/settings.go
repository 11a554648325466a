package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/ritual/internal/storage"
	"github.com/dukerupert/ritual/internal/websocket"
)

type SettingsHandler struct {
	engine *storage.Engine
	hub    *websocket.Hub
	logger *slog.Logger
}

func NewSettingsHandler(engine *storage.Engine, hub *websocket.Hub, logger *slog.Logger) *SettingsHandler {
	return &SettingsHandler{engine: engine, hub: hub, logger: logger}
}

func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	settings, err := h.engine.GetSettings(r.Context())
	if err != nil {
		writeError(w, h.logger, err, "failed to get settings")
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// Update accepts a partial settings object and merges it into the current
// settings.
func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	settings, err := h.engine.UpdateSettings(r.Context(), body)
	if err != nil {
		writeError(w, h.logger, err, "failed to save settings")
		return
	}

	h.hub.Notify(websocket.EntitySettings, "updated", "")
	writeJSON(w, http.StatusOK, settings)
}

func (h *SettingsHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.engine.GetUserProfile(r.Context())
	if err != nil {
		writeError(w, h.logger, err, "failed to get profile")
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// CreateProfile initializes the profile. An existing profile is returned
// unchanged.
func (h *SettingsHandler) CreateProfile(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	profile, err := h.engine.InitializeUserProfile(r.Context(), body)
	if err != nil {
		writeError(w, h.logger, err, "failed to create profile")
		return
	}

	h.hub.Notify(websocket.EntityProfile, "created", "")
	writeJSON(w, http.StatusCreated, profile)
}

func (h *SettingsHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	profile, err := h.engine.UpdateUserProfile(r.Context(), body)
	if err != nil {
		writeError(w, h.logger, err, "failed to update profile")
		return
	}

	h.hub.Notify(websocket.EntityProfile, "updated", "")
	writeJSON(w, http.StatusOK, profile)
}
