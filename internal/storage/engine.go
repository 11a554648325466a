// Package storage owns the single encrypted journal record.
//
// The whole record (entries, settings, user, metadata) is serialized,
// hashed, encrypted, and written to one key of a store.KV. Reads verify the
// hash and fall back through the previous good copy, the newest backup file,
// and finally a default record, so a damaged blob never prevents startup.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/ritual/internal/crypto"
	"github.com/dukerupert/ritual/internal/model"
	"github.com/dukerupert/ritual/internal/store"
	"github.com/dukerupert/ritual/internal/validate"
)

const (
	// DataKey holds the live encrypted record.
	DataKey = "ritual_data"
	// ShadowKey holds the last verified blob, copied aside before each write.
	ShadowKey = "ritual_data_backup"
)

// FallbackSource supplies a record when neither the live blob nor its shadow
// copy can be read.
type FallbackSource interface {
	LatestRecord(ctx context.Context) (*model.StoredRecord, error)
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithFallback(src FallbackSource) Option {
	return func(e *Engine) { e.fallback = src }
}

// WithVersion overrides the version stamped on saved records.
func WithVersion(v string) Option {
	return func(e *Engine) { e.version = v }
}

type Engine struct {
	kv       store.KV
	crypto   *crypto.Engine
	logger   *slog.Logger
	now      func() time.Time
	fallback FallbackSource
	version  string
	validate *validate.Validator

	mu sync.Mutex
}

func New(kv store.KV, c *crypto.Engine, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		kv:      kv,
		crypto:  c,
		logger:  logger.With("component", "storage"),
		now:     time.Now,
		version: model.CurrentVersion,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.validate = validate.New(e.now)
	return e
}

// SetFallback installs the last-resort record source after construction.
func (e *Engine) SetFallback(src FallbackSource) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fallback = src
}

// Patch is a shallow update of the record. Nil fields are left untouched.
type Patch struct {
	Entries    *[]model.Entry
	Settings   *model.Settings
	User       *model.User
	LastBackup *time.Time
}

// snapshot is a record together with the blob it was decoded from. blob is
// nil unless the record came from the live key and passed verification.
type snapshot struct {
	rec  *model.StoredRecord
	blob []byte
}

// Load returns the current record. It never fails on damaged data; only an
// I/O failure of the underlying store is reported.
func (e *Engine) Load(ctx context.Context) (*model.StoredRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap, err := e.load(ctx)
	if err != nil {
		return nil, err
	}
	return snap.rec, nil
}

// Save merges p into the current record and persists it.
func (e *Engine) Save(ctx context.Context, p Patch) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap, err := e.load(ctx)
	if err != nil {
		return err
	}
	_, err = e.write(ctx, snap, p)
	return err
}

// update runs fn against the current record under the engine lock and saves
// the patch it returns.
func (e *Engine) update(ctx context.Context, fn func(rec *model.StoredRecord) (Patch, error)) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap, err := e.load(ctx)
	if err != nil {
		return err
	}
	p, err := fn(snap.rec)
	if err != nil {
		return err
	}
	_, err = e.write(ctx, snap, p)
	return err
}

func (e *Engine) load(ctx context.Context) (snapshot, error) {
	blob, err := e.kv.Get(ctx, DataKey)
	if err != nil {
		return snapshot{}, persistenceError("load", DataKey, err)
	}
	if blob == nil {
		return snapshot{rec: e.defaultRecord()}, nil
	}

	rec, err := e.open(blob)
	if err == nil {
		return snapshot{rec: rec, blob: blob}, nil
	}
	e.logger.Warn("stored record unreadable, recovering", "error", err)

	shadow, serr := e.kv.Get(ctx, ShadowKey)
	if serr != nil {
		return snapshot{}, persistenceError("load", ShadowKey, serr)
	}
	if shadow != nil {
		rec, err := e.open(shadow)
		if err == nil {
			e.logger.Warn("recovered record from shadow copy", "entries", len(rec.Entries))
			return snapshot{rec: rec}, nil
		}
		e.logger.Warn("shadow copy unreadable", "error", err)
	}

	if e.fallback != nil {
		rec, err := e.fallback.LatestRecord(ctx)
		switch {
		case err != nil:
			e.logger.Warn("backup fallback failed", "error", err)
		case rec != nil:
			rec.BackupMetadata = nil
			e.logger.Warn("recovered record from latest backup", "entries", len(rec.Entries))
			return snapshot{rec: rec}, nil
		}
	}

	e.logger.Warn("no recoverable copy of the record, starting from defaults")
	return snapshot{rec: e.defaultRecord()}, nil
}

// open decrypts a blob and verifies its content hash.
func (e *Engine) open(blob []byte) (*model.StoredRecord, error) {
	var rec model.StoredRecord
	if err := e.crypto.Decrypt(string(blob), &rec); err != nil {
		return nil, err
	}
	if err := verify(&rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// write merges p into the snapshot record, then shadows the previous verified
// blob and stores the new one. It returns the record as persisted.
func (e *Engine) write(ctx context.Context, snap snapshot, p Patch) (*model.StoredRecord, error) {
	rec := *snap.rec
	if p.Entries != nil {
		rec.Entries = *p.Entries
	}
	if p.Settings != nil {
		rec.Settings = *p.Settings
	}
	if p.User != nil {
		rec.User = *p.User
	}
	if p.LastBackup != nil {
		t := p.LastBackup.UTC()
		rec.Metadata.LastBackup = &t
	}
	rec.BackupMetadata = nil
	rec.Entries = append([]model.Entry(nil), rec.Entries...)

	normalizeTimes(&rec)
	rec.Metadata.Version = e.version
	hash, err := crypto.HashJSON(rec.Content())
	if err != nil {
		return nil, fmt.Errorf("hash record: %w", err)
	}
	rec.Metadata.DataHash = hash

	token, err := e.crypto.Encrypt(rec)
	if err != nil {
		return nil, fmt.Errorf("encrypt record: %w", err)
	}

	if snap.blob != nil {
		if err := e.kv.Set(ctx, ShadowKey, snap.blob); err != nil {
			return nil, persistenceError("save", ShadowKey, err)
		}
	}
	if err := e.kv.Set(ctx, DataKey, []byte(token)); err != nil {
		return nil, persistenceError("save", DataKey, err)
	}
	return &rec, nil
}

// Initialize writes the default record on first launch.
func (e *Engine) Initialize(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	blob, err := e.kv.Get(ctx, DataKey)
	if err != nil {
		return persistenceError("initialize", DataKey, err)
	}
	if blob != nil {
		return nil
	}
	e.logger.Info("initializing empty record")
	_, err = e.write(ctx, snapshot{rec: e.defaultRecord()}, Patch{})
	return err
}

// ClearAllData removes the record and its shadow copy, then writes a fresh
// default record.
func (e *Engine) ClearAllData(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, key := range []string{DataKey, ShadowKey} {
		if err := e.kv.Delete(ctx, key); err != nil {
			return persistenceError("clear", key, err)
		}
	}
	e.logger.Info("all data cleared")
	_, err := e.write(ctx, snapshot{rec: e.defaultRecord()}, Patch{})
	return err
}

func (e *Engine) defaultRecord() *model.StoredRecord {
	rec := &model.StoredRecord{
		Entries:  []model.Entry{},
		Settings: model.DefaultSettings(),
		User:     model.User{CreatedAt: e.now().UTC()},
		Metadata: model.RecordMetadata{Version: e.version},
	}
	rec.Metadata.DataHash, _ = crypto.HashJSON(rec.Content())
	return rec
}

// verify recomputes the content hash of rec and compares it with the stored
// one.
func verify(rec *model.StoredRecord) error {
	data, err := json.Marshal(rec.Content())
	if err != nil {
		return fmt.Errorf("hash record: %w", err)
	}
	if !crypto.VerifyIntegrity(string(data), rec.Metadata.DataHash) {
		return &model.IntegrityError{
			Expected: rec.Metadata.DataHash,
			Actual:   crypto.GenerateHash(string(data)),
		}
	}
	return nil
}

func normalizeTimes(rec *model.StoredRecord) {
	if rec.Entries == nil {
		rec.Entries = []model.Entry{}
	}
	for i := range rec.Entries {
		en := &rec.Entries[i]
		en.Date = en.Date.UTC()
		en.CreatedAt = en.CreatedAt.UTC()
		en.UpdatedAt = en.UpdatedAt.UTC()
	}
	rec.User.CreatedAt = rec.User.CreatedAt.UTC()
	if rec.User.UpdatedAt != nil {
		t := rec.User.UpdatedAt.UTC()
		rec.User.UpdatedAt = &t
	}
}

func persistenceError(op, key string, err error) error {
	var pe *model.PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &model.PersistenceError{Op: op, Key: key, Err: err}
}
