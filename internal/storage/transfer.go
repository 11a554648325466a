package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dukerupert/ritual/internal/model"
)

// ExportData stamps the record's last-backup time and returns the whole
// record as an encrypted token.
func (e *Engine) ExportData(ctx context.Context) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap, err := e.load(ctx)
	if err != nil {
		return "", err
	}
	now := e.now()
	rec, err := e.write(ctx, snap, Patch{LastBackup: &now})
	if err != nil {
		return "", err
	}
	token, err := e.crypto.Encrypt(rec)
	if err != nil {
		return "", fmt.Errorf("encrypt export: %w", err)
	}
	e.logger.Info("data exported", "entries", len(rec.Entries))
	return token, nil
}

// ImportData decrypts and validates an exported token, then replaces the
// whole record with it. On any error the live record is left untouched.
func (e *Engine) ImportData(ctx context.Context, token string) (*model.StoredRecord, error) {
	var raw json.RawMessage
	if err := e.crypto.Decrypt(token, &raw); err != nil {
		return nil, err
	}
	res := e.validate.ImportBundle(raw)
	if !res.IsValid {
		return nil, res.Err()
	}
	if err := verify(res.Data); err != nil {
		// A stale hash is reported, not fatal.
		e.logger.Warn("imported data hash does not match", "error", err)
	}
	if err := e.ReplaceRecord(ctx, res.Data); err != nil {
		return nil, err
	}
	e.logger.Info("data imported", "entries", len(res.Data.Entries))
	return res.Data, nil
}

// ReplaceRecord overwrites entries, settings, and user with those of rec,
// which must already be validated. The previous record becomes the shadow
// copy.
func (e *Engine) ReplaceRecord(ctx context.Context, rec *model.StoredRecord) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap, err := e.load(ctx)
	if err != nil {
		return err
	}
	entries := rec.Entries
	if entries == nil {
		entries = []model.Entry{}
	}
	settings := rec.Settings
	user := rec.User
	p := Patch{
		Entries:    &entries,
		Settings:   &settings,
		User:       &user,
		LastBackup: rec.Metadata.LastBackup,
	}
	_, err = e.write(ctx, snap, p)
	return err
}

// MarkBackup records at as the time of the most recent backup.
func (e *Engine) MarkBackup(ctx context.Context, at time.Time) error {
	return e.Save(ctx, Patch{LastBackup: &at})
}
