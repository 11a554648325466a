package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/dukerupert/ritual/internal/backup"
	"github.com/dukerupert/ritual/internal/model"
	"github.com/dukerupert/ritual/internal/websocket"
)

type BackupHandler struct {
	manager *backup.Manager
	hub     *websocket.Hub
	logger  *slog.Logger
}

func NewBackupHandler(m *backup.Manager, hub *websocket.Hub, logger *slog.Logger) *BackupHandler {
	return &BackupHandler{manager: m, hub: hub, logger: logger}
}

func (h *BackupHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.manager.ListBackups(r.Context())
	if err != nil {
		writeError(w, h.logger, err, "failed to list backups")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *BackupHandler) Create(w http.ResponseWriter, r *http.Request) {
	res, err := h.manager.CreateFullBackup(r.Context())
	if err != nil {
		writeError(w, h.logger, err, "backup failed")
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *BackupHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.manager.DeleteBackup(r.Context(), id); err != nil {
		writeError(w, h.logger, err, "failed to delete backup")
		return
	}

	h.hub.Notify(websocket.EntityBackup, "deleted", id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *BackupHandler) Restore(w http.ResponseWriter, r *http.Request) {
	md, err := h.manager.Find(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, err, "failed to find backup")
		return
	}
	res, err := h.manager.RestoreBackup(r.Context(), md.FilePath)
	if err != nil {
		writeError(w, h.logger, err, "restore failed")
		return
	}

	h.hub.Notify(websocket.EntityData, "restored", md.ID)
	writeJSON(w, http.StatusOK, res)
}

func (h *BackupHandler) Download(w http.ResponseWriter, r *http.Request) {
	md, content, err := h.manager.ReadBackup(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, err, "failed to read backup")
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(md.FilePath)))
	w.WriteHeader(http.StatusOK)
	w.Write(content)
}

func (h *BackupHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.manager.Status())
}

func (h *BackupHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.manager.AutoBackupConfig(r.Context())
	if err != nil {
		writeError(w, h.logger, err, "failed to get backup config")
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (h *BackupHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var cfg model.BackupConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if err := h.manager.ConfigureAutoBackup(r.Context(), cfg); err != nil {
		writeError(w, h.logger, err, "failed to save backup config")
		return
	}

	h.hub.Notify(websocket.EntityBackup, "configured", "")
	writeJSON(w, http.StatusOK, cfg)
}
