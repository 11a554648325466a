package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/dukerupert/ritual/internal/model"
)

// BackupIndexKey holds the backup metadata list. It is plain JSON and lives
// beside the encrypted record, never inside it.
const BackupIndexKey = "backup_metadata"

// BackupIndex tracks the metadata of every backup file written locally,
// newest first.
type BackupIndex struct {
	kv KV
	mu sync.Mutex
}

func NewBackupIndex(kv KV) *BackupIndex {
	return &BackupIndex{kv: kv}
}

func (x *BackupIndex) List(ctx context.Context) ([]model.BackupMetadata, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.load(ctx)
}

func (x *BackupIndex) Find(ctx context.Context, id string) (*model.BackupMetadata, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	list, err := x.load(ctx)
	if err != nil {
		return nil, err
	}
	for i := range list {
		if list[i].ID == id {
			return &list[i], nil
		}
	}
	return nil, nil
}

// Add inserts md, replacing any existing entry with the same id.
func (x *BackupIndex) Add(ctx context.Context, md model.BackupMetadata) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	list, err := x.load(ctx)
	if err != nil {
		return err
	}
	out := list[:0]
	for _, b := range list {
		if b.ID != md.ID {
			out = append(out, b)
		}
	}
	out = append(out, md)
	return x.save(ctx, out)
}

// Remove drops the entry with the given id. It reports whether one existed.
func (x *BackupIndex) Remove(ctx context.Context, id string) (bool, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	list, err := x.load(ctx)
	if err != nil {
		return false, err
	}
	out := list[:0]
	for _, b := range list {
		if b.ID != id {
			out = append(out, b)
		}
	}
	if len(out) == len(list) {
		return false, nil
	}
	return true, x.save(ctx, out)
}

func (x *BackupIndex) load(ctx context.Context) ([]model.BackupMetadata, error) {
	raw, err := x.kv.Get(ctx, BackupIndexKey)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return []model.BackupMetadata{}, nil
	}
	var list []model.BackupMetadata
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("decode backup index: %w", err)
	}
	return list, nil
}

func (x *BackupIndex) save(ctx context.Context, list []model.BackupMetadata) error {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	raw, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("encode backup index: %w", err)
	}
	return x.kv.Set(ctx, BackupIndexKey, raw)
}
