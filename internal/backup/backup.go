// Package backup writes, lists, restores, and prunes encrypted backup files
// of the journal record in a local directory.
package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/ritual/internal/crypto"
	"github.com/dukerupert/ritual/internal/model"
	"github.com/dukerupert/ritual/internal/store"
	"github.com/dukerupert/ritual/internal/validate"
)

var (
	// ErrInvalidBackup is returned for files that cannot be decrypted or
	// verified. It carries no detail meant for the user.
	ErrInvalidBackup = errors.New("invalid backup file")
	// ErrNoFileSelected is returned by a Picker when the user cancels.
	ErrNoFileSelected = errors.New("no file selected")
	// ErrInvalidFormat is returned when a picked file lacks the backup
	// extension.
	ErrInvalidFormat = errors.New("invalid backup file format")
)

// Source is the storage engine as seen by the backup manager.
type Source interface {
	Load(ctx context.Context) (*model.StoredRecord, error)
	ReplaceRecord(ctx context.Context, rec *model.StoredRecord) error
	MarkBackup(ctx context.Context, at time.Time) error
}

// Config holds backup manager configuration.
type Config struct {
	Dir        string
	Prefix     string
	Extension  string
	Platform   string
	MaxBackups int
	// CheckInterval is how often the scheduler looks for a due backup.
	CheckInterval time.Duration
	Now           func() time.Time
}

func (c Config) withDefaults() Config {
	if c.Prefix == "" {
		c.Prefix = "ritual_backup"
	}
	if c.Extension == "" {
		c.Extension = ".rbk"
	}
	if c.Platform == "" {
		c.Platform = "server"
	}
	if c.MaxBackups <= 0 {
		c.MaxBackups = model.DefaultBackupConfig().MaxBackups
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = time.Hour
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// State represents the backup manager state.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StateError   State = "error"
)

// Status holds the current backup manager status.
type Status struct {
	State      State      `json:"state"`
	LastBackup *time.Time `json:"last_backup,omitempty"`
	Error      string     `json:"error,omitempty"`
	InProgress bool       `json:"in_progress"`
}

// StatusCallback is called whenever the backup state changes.
type StatusCallback func(Status)

// Manager manages encrypted backup files in a local directory.
type Manager struct {
	mu       sync.RWMutex
	cfg      Config
	status   Status
	callback StatusCallback

	// op serializes create, restore, delete, and cleanup.
	op sync.Mutex

	engine   Source
	crypto   *crypto.Engine
	index    *store.BackupIndex
	kv       store.KV
	fs       FileSystem
	validate *validate.Validator
	logger   *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager creates a new backup manager. A nil fs uses the OS file system.
func NewManager(cfg Config, engine Source, c *crypto.Engine, index *store.BackupIndex, kv store.KV, fsys FileSystem, callback StatusCallback, logger *slog.Logger) *Manager {
	cfg = cfg.withDefaults()
	if fsys == nil {
		fsys = OSFS{}
	}
	return &Manager{
		cfg:      cfg,
		status:   Status{State: StateIdle},
		callback: callback,
		engine:   engine,
		crypto:   c,
		index:    index,
		kv:       kv,
		fs:       fsys,
		validate: validate.New(cfg.Now),
		logger:   logger.With("component", "backup"),
	}
}

// Status returns the current backup status.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

func (m *Manager) setStatus(s Status) {
	m.mu.Lock()
	if s.LastBackup == nil {
		s.LastBackup = m.status.LastBackup
	}
	m.status = s
	m.mu.Unlock()
	if m.callback != nil {
		m.callback(s)
	}
}

func (m *Manager) fail(err error) {
	m.setStatus(Status{State: StateError, Error: err.Error()})
}

// CreateFullBackup writes the current record to a new backup file, records
// it in the index, and prunes old files.
func (m *Manager) CreateFullBackup(ctx context.Context) (*model.BackupResult, error) {
	m.op.Lock()
	defer m.op.Unlock()

	m.setStatus(Status{State: StateRunning, InProgress: true})
	res, err := m.createBackup(ctx, "")
	if err != nil {
		m.fail(err)
		return nil, err
	}
	at := res.Metadata.CreatedAt
	m.setStatus(Status{State: StateIdle, LastBackup: &at})
	return res, nil
}

// createBackup writes a backup and prunes old files. The file at keep, if
// any, survives pruning.
func (m *Manager) createBackup(ctx context.Context, keep string) (*model.BackupResult, error) {
	rec, err := m.engine.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load record: %w", err)
	}
	if res := m.validate.ImportBundle(rec); !res.IsValid {
		return nil, fmt.Errorf("record not fit for backup: %w", res.Err())
	}

	now := m.cfg.Now().UTC()
	md := model.BackupMetadata{
		ID:           newBackupID(now),
		CreatedAt:    now,
		Version:      model.CurrentVersion,
		Platform:     m.cfg.Platform,
		EntriesCount: len(rec.Entries),
		Encrypted:    true,
	}

	out := *rec
	out.BackupMetadata = &md
	token, err := m.crypto.Encrypt(out)
	if err != nil {
		return nil, fmt.Errorf("encrypt backup: %w", err)
	}

	if err := m.fs.MkdirAll(m.cfg.Dir); err != nil {
		return nil, &model.PersistenceError{Op: "create backup dir", Key: m.cfg.Dir, Err: err}
	}
	path := filepath.Join(m.cfg.Dir, fileName(m.cfg.Prefix, m.cfg.Extension, md.ID, now))
	if _, err := m.fs.Stat(path); err == nil {
		path = filepath.Join(m.cfg.Dir, fmt.Sprintf("%s_%s_%s%s", m.cfg.Prefix, now.Format(time.DateOnly), md.ID, m.cfg.Extension))
	}
	if err := m.fs.WriteFile(path, []byte(token)); err != nil {
		return nil, &model.PersistenceError{Op: "write backup", Key: path, Err: err}
	}
	md.FileSize = int64(len(token))
	md.FilePath = path

	if err := m.index.Add(ctx, md); err != nil {
		m.logger.Warn("failed to record backup metadata", "id", md.ID, "error", err)
	}
	if err := m.engine.MarkBackup(ctx, now); err != nil {
		m.logger.Warn("failed to stamp last backup time", "error", err)
	}
	if err := m.cleanup(ctx, keep); err != nil {
		m.logger.Warn("backup cleanup failed", "error", err)
	}

	m.logger.Info("backup created", "id", md.ID, "path", path, "entries", md.EntriesCount, "size", md.FileSize)
	return &model.BackupResult{
		Success:      true,
		FilePath:     path,
		Metadata:     &md,
		EntriesCount: md.EntriesCount,
	}, nil
}

// RestoreBackup replaces the live record with the one in the file at path.
// A safety backup of the current record is written first; if it fails the
// restore does not proceed.
func (m *Manager) RestoreBackup(ctx context.Context, path string) (*model.BackupResult, error) {
	m.op.Lock()
	defer m.op.Unlock()

	m.setStatus(Status{State: StateRunning, InProgress: true})
	res, err := m.restore(ctx, path)
	if err != nil {
		m.fail(err)
		return nil, err
	}
	m.setStatus(Status{State: StateIdle})
	return res, nil
}

func (m *Manager) restore(ctx context.Context, path string) (*model.BackupResult, error) {
	content, err := m.fs.ReadFile(path)
	if err != nil {
		return nil, &model.PersistenceError{Op: "read backup", Key: path, Err: err}
	}
	raw, err := m.decode(content)
	if err != nil {
		m.logger.Warn("backup file unreadable", "path", path, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrInvalidBackup, err)
	}
	res := m.validate.ImportBundle(raw)
	if !res.IsValid {
		return nil, res.Err()
	}

	if _, err := m.createBackup(ctx, path); err != nil {
		return nil, fmt.Errorf("safety backup failed, restore aborted: %w", err)
	}

	rec := res.Data
	if err := m.engine.ReplaceRecord(ctx, rec); err != nil {
		return nil, fmt.Errorf("replace record: %w", err)
	}

	m.logger.Info("backup restored", "path", path, "entries", len(rec.Entries))
	return &model.BackupResult{
		Success:      true,
		FilePath:     path,
		Metadata:     rec.BackupMetadata,
		EntriesCount: len(rec.Entries),
	}, nil
}

// decode returns the plaintext JSON held in a backup file.
func (m *Manager) decode(content []byte) (json.RawMessage, error) {
	var firstErr error
	for _, token := range tokenCandidates(content) {
		plain, err := m.crypto.Open(token)
		if err == nil {
			return json.RawMessage(plain), nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, firstErr
}

// readFile decrypts the backup at path into a record.
func (m *Manager) readFile(path string) (*model.StoredRecord, error) {
	content, err := m.fs.ReadFile(path)
	if err != nil {
		return nil, err
	}
	raw, err := m.decode(content)
	if err != nil {
		return nil, err
	}
	var rec model.StoredRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode backup: %w", err)
	}
	return &rec, nil
}

// ListBackups scans the backup directory and returns the metadata of every
// readable backup, newest first. Unreadable files are skipped.
func (m *Manager) ListBackups(ctx context.Context) ([]model.BackupMetadata, error) {
	entries, err := m.fs.ReadDir(m.cfg.Dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []model.BackupMetadata{}, nil
	}
	if err != nil {
		return nil, &model.PersistenceError{Op: "list backups", Key: m.cfg.Dir, Err: err}
	}

	list := make([]model.BackupMetadata, 0, len(entries))
	for _, de := range entries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), m.cfg.Extension) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path := filepath.Join(m.cfg.Dir, de.Name())
		rec, err := m.readFile(path)
		if err != nil {
			m.logger.Warn("could not read backup metadata", "file", de.Name(), "error", err)
			continue
		}
		if rec.BackupMetadata == nil {
			m.logger.Warn("backup has no metadata", "file", de.Name())
			continue
		}
		md := *rec.BackupMetadata
		md.FilePath = path
		if info, err := m.fs.Stat(path); err == nil {
			md.FileSize = info.Size()
		}
		list = append(list, md)
	}

	sort.SliceStable(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	return list, nil
}

// Find returns the metadata of the backup with the given id.
func (m *Manager) Find(ctx context.Context, id string) (*model.BackupMetadata, error) {
	list, err := m.ListBackups(ctx)
	if err != nil {
		return nil, err
	}
	for i := range list {
		if list[i].ID == id {
			return &list[i], nil
		}
	}
	return nil, &model.NotFoundError{Kind: "backup", ID: id}
}

// ReadBackup returns the metadata and raw file content of the backup with
// the given id.
func (m *Manager) ReadBackup(ctx context.Context, id string) (*model.BackupMetadata, []byte, error) {
	md, err := m.Find(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	content, err := m.fs.ReadFile(md.FilePath)
	if err != nil {
		return nil, nil, &model.PersistenceError{Op: "read backup", Key: md.FilePath, Err: err}
	}
	return md, content, nil
}

// DeleteBackup removes the backup file with the given id and its index
// entry.
func (m *Manager) DeleteBackup(ctx context.Context, id string) error {
	m.op.Lock()
	defer m.op.Unlock()

	md, err := m.Find(ctx, id)
	if err != nil {
		return err
	}
	return m.remove(ctx, *md)
}

func (m *Manager) remove(ctx context.Context, md model.BackupMetadata) error {
	if err := m.fs.Remove(md.FilePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &model.PersistenceError{Op: "delete backup", Key: md.FilePath, Err: err}
	}
	if _, err := m.index.Remove(ctx, md.ID); err != nil {
		m.logger.Warn("failed to remove backup metadata", "id", md.ID, "error", err)
	}
	m.logger.Info("backup deleted", "id", md.ID)
	return nil
}

// Cleanup keeps the newest backups up to the configured maximum and deletes
// the rest.
func (m *Manager) Cleanup(ctx context.Context) error {
	m.op.Lock()
	defer m.op.Unlock()
	return m.cleanup(ctx, "")
}

// cleanup deletes the oldest backups beyond the limit. A listed file at keep
// is never deleted and counts toward the limit.
func (m *Manager) cleanup(ctx context.Context, keep string) error {
	limit := m.cfg.MaxBackups
	if ac, err := m.AutoBackupConfig(ctx); err == nil && ac.MaxBackups > 0 {
		limit = ac.MaxBackups
	}

	list, err := m.ListBackups(ctx)
	if err != nil {
		return err
	}
	if keep != "" {
		others := make([]model.BackupMetadata, 0, len(list))
		for _, md := range list {
			if filepath.Clean(md.FilePath) != filepath.Clean(keep) {
				others = append(others, md)
			}
		}
		if len(others) < len(list) {
			list = others
			limit = max(limit-1, 1)
		}
	}
	if len(list) <= limit {
		return nil
	}
	for _, md := range list[limit:] {
		if err := m.remove(ctx, md); err != nil {
			return err
		}
	}
	return nil
}

// LatestRecord returns the record in the newest readable backup that passes
// validation, or nil if there is none.
func (m *Manager) LatestRecord(ctx context.Context) (*model.StoredRecord, error) {
	list, err := m.ListBackups(ctx)
	if err != nil {
		return nil, err
	}
	for _, md := range list {
		raw, err := m.fs.ReadFile(md.FilePath)
		if err != nil {
			continue
		}
		plain, err := m.decode(raw)
		if err != nil {
			continue
		}
		res := m.validate.ImportBundle(plain)
		if !res.IsValid {
			m.logger.Warn("backup failed validation", "id", md.ID, "error", res.Err())
			continue
		}
		return res.Data, nil
	}
	return nil, nil
}

// newBackupID is a base36 millisecond timestamp followed by random
// characters, so ids sort by creation time.
func newBackupID(now time.Time) string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")
	return strconv.FormatInt(now.UnixMilli(), 36) + "-" + random[:9]
}
