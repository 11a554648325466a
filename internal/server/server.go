package server

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/dukerupert/ritual/internal/backup"
	"github.com/dukerupert/ritual/internal/config"
	"github.com/dukerupert/ritual/internal/crypto"
	"github.com/dukerupert/ritual/internal/database"
	"github.com/dukerupert/ritual/internal/handler"
	"github.com/dukerupert/ritual/internal/middleware"
	"github.com/dukerupert/ritual/internal/model"
	"github.com/dukerupert/ritual/internal/storage"
	"github.com/dukerupert/ritual/internal/store"
	ws "github.com/dukerupert/ritual/internal/websocket"
)

type Server struct {
	hub           *ws.Hub
	engine        *storage.Engine
	backupManager *backup.Manager
	entryH        *handler.EntryHandler
	settingsH     *handler.SettingsHandler
	dataH         *handler.DataHandler
	backupH       *handler.BackupHandler
	origins       []string
	logger        *slog.Logger
}

// OpenStore opens the key-value store selected by cfg.Storage. The returned
// closer releases it.
func OpenStore(cfg *config.Config) (store.KV, io.Closer, error) {
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, nil, fmt.Errorf("create data dir: %w", err)
	}
	switch cfg.Storage.Driver {
	case config.DriverBolt:
		kv, err := store.OpenBolt(cfg.Storage.Path)
		if err != nil {
			return nil, nil, err
		}
		return kv, kv, nil
	default:
		db, err := database.Open(cfg.Storage.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open database: %w", err)
		}
		return store.NewSQLiteKV(db), db, nil
	}
}

// New wires the storage engine, backup manager, handlers, and change
// notifications over kv. A nil c uses the application key.
func New(kv store.KV, c *crypto.Engine, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if c == nil {
		var err error
		if c, err = crypto.Default(); err != nil {
			return nil, fmt.Errorf("init crypto: %w", err)
		}
	}

	hub := ws.NewHub(logger.With("component", "websocket"))
	engine := storage.New(kv, c, logger)

	backupMgr := backup.NewManager(backup.Config{
		Dir:           cfg.Backup.Dir,
		Platform:      cfg.Backup.Platform,
		MaxBackups:    cfg.Backup.MaxBackups,
		CheckInterval: cfg.Backup.CheckInterval,
	}, engine, c, store.NewBackupIndex(kv), kv, nil, func(s backup.Status) {
		extra := map[string]any{
			"in_progress": s.InProgress,
			"error":       s.Error,
		}
		if s.LastBackup != nil {
			extra["last_backup"] = s.LastBackup
		}
		hub.Broadcast(ws.NewMessage(ws.EntityBackup, string(s.State), "", extra))
	}, logger)
	engine.SetFallback(backupMgr)

	return &Server{
		hub:           hub,
		engine:        engine,
		backupManager: backupMgr,
		entryH:        handler.NewEntryHandler(engine, hub, logger.With("component", "entry")),
		settingsH:     handler.NewSettingsHandler(engine, hub, logger.With("component", "settings")),
		dataH:         handler.NewDataHandler(engine, hub, logger.With("component", "data")),
		backupH:       handler.NewBackupHandler(backupMgr, hub, logger.With("component", "backup_handler")),
		origins:       cfg.HTTP.AllowedOrigins,
		logger:        logger,
	}, nil
}

// Engine returns the storage engine.
func (s *Server) Engine() *storage.Engine {
	return s.engine
}

// BackupManager returns the backup manager.
func (s *Server) BackupManager() *backup.Manager {
	return s.backupManager
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler)

	mux.HandleFunc("GET /api/entries", s.entryH.List)
	mux.HandleFunc("POST /api/entries", s.entryH.Create)
	mux.HandleFunc("GET /api/entries/{id}", s.entryH.Get)
	mux.HandleFunc("PUT /api/entries/{id}", s.entryH.Update)
	mux.HandleFunc("DELETE /api/entries/{id}", s.entryH.Delete)
	mux.HandleFunc("GET /api/activities", s.entryH.Activities)
	mux.HandleFunc("GET /api/stats", s.entryH.Stats)

	mux.HandleFunc("GET /api/settings", s.settingsH.Get)
	mux.HandleFunc("PUT /api/settings", s.settingsH.Update)
	mux.HandleFunc("GET /api/profile", s.settingsH.GetProfile)
	mux.HandleFunc("POST /api/profile", s.settingsH.CreateProfile)
	mux.HandleFunc("PUT /api/profile", s.settingsH.UpdateProfile)

	mux.HandleFunc("POST /api/data/export", s.dataH.Export)
	mux.HandleFunc("POST /api/data/import", s.dataH.Import)
	mux.HandleFunc("DELETE /api/data", s.dataH.Clear)

	mux.HandleFunc("GET /api/backups", s.backupH.List)
	mux.HandleFunc("POST /api/backups", s.backupH.Create)
	mux.HandleFunc("GET /api/backups/status", s.backupH.Status)
	mux.HandleFunc("GET /api/backups/config", s.backupH.GetConfig)
	mux.HandleFunc("PUT /api/backups/config", s.backupH.UpdateConfig)
	mux.HandleFunc("DELETE /api/backups/{id}", s.backupH.Delete)
	mux.HandleFunc("POST /api/backups/{id}/restore", s.backupH.Restore)
	mux.HandleFunc("GET /api/backups/{id}/download", s.backupH.Download)

	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.origins, s.logger.With("component", "websocket")))

	logged := middleware.RequestLogger(s.logger.With("component", "http"))(mux)
	return middleware.RequestID(logged)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "ok",
		"version": model.CurrentVersion,
	})
}
