package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/ritual/internal/storage"
	"github.com/dukerupert/ritual/internal/websocket"
)

// DataHandler moves the whole record in and out as an encrypted token.
type DataHandler struct {
	engine *storage.Engine
	hub    *websocket.Hub
	logger *slog.Logger
}

func NewDataHandler(engine *storage.Engine, hub *websocket.Hub, logger *slog.Logger) *DataHandler {
	return &DataHandler{engine: engine, hub: hub, logger: logger}
}

type dataPayload struct {
	Data string `json:"data"`
}

func (h *DataHandler) Export(w http.ResponseWriter, r *http.Request) {
	token, err := h.engine.ExportData(r.Context())
	if err != nil {
		writeError(w, h.logger, err, "failed to export data")
		return
	}
	writeJSON(w, http.StatusOK, dataPayload{Data: token})
}

func (h *DataHandler) Import(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	var req dataPayload
	if err := json.Unmarshal(body, &req); err != nil || strings.TrimSpace(req.Data) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "data is required"})
		return
	}

	rec, err := h.engine.ImportData(r.Context(), strings.TrimSpace(req.Data))
	if err != nil {
		writeError(w, h.logger, err, "failed to import data")
		return
	}

	h.hub.Notify(websocket.EntityData, "imported", "")
	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"entriesCount": len(rec.Entries),
	})
}

func (h *DataHandler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.ClearAllData(r.Context()); err != nil {
		writeError(w, h.logger, err, "failed to clear data")
		return
	}

	h.hub.Notify(websocket.EntityData, "cleared", "")
	w.WriteHeader(http.StatusNoContent)
}
