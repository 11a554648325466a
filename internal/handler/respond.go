package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/dukerupert/ritual/internal/backup"
	"github.com/dukerupert/ritual/internal/model"
)

// maxBodyBytes bounds request bodies; an import carries the whole record.
const maxBodyBytes = 16 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// readBody returns the request body as raw JSON.
func readBody(w http.ResponseWriter, r *http.Request) (json.RawMessage, bool) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "request body too large"})
		return nil, false
	}
	if !json.Valid(data) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return nil, false
	}
	return data, true
}

// writeError maps core errors onto HTTP responses. msg is the client-facing
// text for failures that are not the caller's fault.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error, msg string) {
	var ve *model.ValidationError
	var nf *model.NotFoundError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "validation failed",
			"fields": ve.Fields,
		})
	case errors.Is(err, backup.ErrInvalidBackup), errors.Is(err, model.ErrDecryption):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid backup file"})
	case errors.As(err, &nf):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": nf.Kind + " not found"})
	default:
		logger.Error(msg, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": msg})
	}
}
