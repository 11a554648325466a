package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/ritual/internal/model"
	"github.com/dukerupert/ritual/internal/storage"
	"github.com/dukerupert/ritual/internal/validate"
	"github.com/dukerupert/ritual/internal/websocket"
)

type EntryHandler struct {
	engine *storage.Engine
	hub    *websocket.Hub
	logger *slog.Logger
}

func NewEntryHandler(engine *storage.Engine, hub *websocket.Hub, logger *slog.Logger) *EntryHandler {
	return &EntryHandler{engine: engine, hub: hub, logger: logger}
}

func (h *EntryHandler) List(w http.ResponseWriter, r *http.Request) {
	entries, err := h.engine.GetEntries(r.Context())
	if err != nil {
		writeError(w, h.logger, err, "failed to list entries")
		return
	}
	if entries == nil {
		entries = []model.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *EntryHandler) Get(w http.ResponseWriter, r *http.Request) {
	entry, err := h.engine.GetEntry(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, err, "failed to get entry")
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *EntryHandler) Create(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	res := validate.Entry(body)
	if !res.IsValid {
		writeError(w, h.logger, res.Err(), "")
		return
	}

	entry, err := h.engine.SaveEntry(r.Context(), *res.Data)
	if err != nil {
		writeError(w, h.logger, err, "failed to save entry")
		return
	}

	h.hub.Notify(websocket.EntityEntry, "created", entry.ID)
	writeJSON(w, http.StatusCreated, entry)
}

// Update replaces the editable fields of an entry. The id and creation time
// cannot be changed.
func (h *EntryHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	res := validate.Entry(body)
	if !res.IsValid {
		writeError(w, h.logger, res.Err(), "")
		return
	}

	in := *res.Data
	entry, err := h.engine.UpdateEntry(r.Context(), id, func(en *model.Entry) {
		en.Date = in.Date
		en.ActivityType = in.ActivityType
		if at, ok := model.FindActivity(in.ActivityType.ID); ok && in.ActivityType.Icon == "" {
			en.ActivityType = at
		}
		en.Partner = in.Partner
		en.Duration = in.Duration
		en.Satisfaction = in.Satisfaction
		en.Notes = in.Notes
	})
	if err != nil {
		writeError(w, h.logger, err, "failed to update entry")
		return
	}

	h.hub.Notify(websocket.EntityEntry, "updated", id)
	writeJSON(w, http.StatusOK, entry)
}

func (h *EntryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.engine.DeleteEntry(r.Context(), id); err != nil {
		writeError(w, h.logger, err, "failed to delete entry")
		return
	}

	h.hub.Notify(websocket.EntityEntry, "deleted", id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *EntryHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.GetUserStats(r.Context())
	if err != nil {
		writeError(w, h.logger, err, "failed to compute stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *EntryHandler) Activities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.DefaultActivities)
}
