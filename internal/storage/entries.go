package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/ritual/internal/model"
)

// GetEntries returns every entry, most recently added first.
func (e *Engine) GetEntries(ctx context.Context) ([]model.Entry, error) {
	rec, err := e.Load(ctx)
	if err != nil {
		return nil, err
	}
	return rec.Entries, nil
}

func (e *Engine) GetEntry(ctx context.Context, id string) (*model.Entry, error) {
	rec, err := e.Load(ctx)
	if err != nil {
		return nil, err
	}
	if i := indexOf(rec.Entries, id); i >= 0 {
		return &rec.Entries[i], nil
	}
	return nil, &model.NotFoundError{Kind: "entry", ID: id}
}

// SaveEntry inserts en, or replaces the entry with the same id in place.
// A missing id is generated and the timestamps are maintained.
func (e *Engine) SaveEntry(ctx context.Context, en model.Entry) (model.Entry, error) {
	res := e.validate.Entry(en)
	if !res.IsValid {
		return model.Entry{}, res.Err()
	}
	saved := *res.Data
	if at, ok := model.FindActivity(saved.ActivityType.ID); ok && saved.ActivityType.Icon == "" {
		saved.ActivityType = at
	}

	err := e.update(ctx, func(rec *model.StoredRecord) (Patch, error) {
		now := e.now().UTC()
		if saved.ID == "" {
			saved.ID = uuid.NewString()
		}
		entries := append([]model.Entry(nil), rec.Entries...)
		i := indexOf(entries, saved.ID)
		if saved.CreatedAt.IsZero() && i >= 0 {
			saved.CreatedAt = entries[i].CreatedAt
		}
		if saved.CreatedAt.IsZero() || saved.CreatedAt.After(now) {
			saved.CreatedAt = now
		}
		touch(&saved, now)
		if i >= 0 {
			entries[i] = saved
		} else {
			entries = append([]model.Entry{saved}, entries...)
		}
		return Patch{Entries: &entries}, nil
	})
	if err != nil {
		return model.Entry{}, err
	}
	e.logger.Debug("entry saved", "id", saved.ID)
	return saved, nil
}

// UpdateEntry applies fn to the entry with the given id. The id and creation
// time are preserved and the update time is bumped.
func (e *Engine) UpdateEntry(ctx context.Context, id string, fn func(*model.Entry)) (model.Entry, error) {
	var updated model.Entry
	err := e.update(ctx, func(rec *model.StoredRecord) (Patch, error) {
		i := indexOf(rec.Entries, id)
		if i < 0 {
			return Patch{}, &model.NotFoundError{Kind: "entry", ID: id}
		}
		en := rec.Entries[i]
		fn(&en)
		en.ID = id
		en.CreatedAt = rec.Entries[i].CreatedAt
		touch(&en, e.now().UTC())

		res := e.validate.Entry(en)
		if !res.IsValid {
			return Patch{}, res.Err()
		}
		updated = *res.Data

		entries := append([]model.Entry(nil), rec.Entries...)
		entries[i] = updated
		return Patch{Entries: &entries}, nil
	})
	if err != nil {
		return model.Entry{}, err
	}
	return updated, nil
}

// DeleteEntry removes the entry with the given id. Deleting an unknown id is
// not an error.
func (e *Engine) DeleteEntry(ctx context.Context, id string) error {
	return e.update(ctx, func(rec *model.StoredRecord) (Patch, error) {
		entries := make([]model.Entry, 0, len(rec.Entries))
		for _, en := range rec.Entries {
			if en.ID != id {
				entries = append(entries, en)
			}
		}
		return Patch{Entries: &entries}, nil
	})
}

// touch sets the update time to now, or to the creation time if the clock
// reads earlier than that.
func touch(en *model.Entry, now time.Time) {
	en.UpdatedAt = now
	if en.CreatedAt.After(now) {
		en.UpdatedAt = en.CreatedAt
	}
}

func indexOf(entries []model.Entry, id string) int {
	for i := range entries {
		if entries[i].ID == id {
			return i
		}
	}
	return -1
}
