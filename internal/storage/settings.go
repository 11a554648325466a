package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dukerupert/ritual/internal/model"
)

func (e *Engine) GetSettings(ctx context.Context) (model.Settings, error) {
	rec, err := e.Load(ctx)
	if err != nil {
		return model.Settings{}, err
	}
	return rec.Settings, nil
}

// UpdateSettings merges a partial settings object into the current settings
// and validates the result.
func (e *Engine) UpdateSettings(ctx context.Context, changes any) (model.Settings, error) {
	var updated model.Settings
	err := e.update(ctx, func(rec *model.StoredRecord) (Patch, error) {
		merged, err := mergeJSON(rec.Settings, changes)
		if err != nil {
			return Patch{}, err
		}
		res := e.validate.Settings(merged)
		if !res.IsValid {
			return Patch{}, res.Err()
		}
		updated = *res.Data
		return Patch{Settings: &updated}, nil
	})
	if err != nil {
		return model.Settings{}, err
	}
	e.logger.Info("settings updated")
	return updated, nil
}

// GetUserProfile returns the profile, or a NotFoundError before one has been
// created.
func (e *Engine) GetUserProfile(ctx context.Context) (*model.UserProfile, error) {
	rec, err := e.Load(ctx)
	if err != nil {
		return nil, err
	}
	if rec.User.Profile == nil {
		return nil, &model.NotFoundError{Kind: "profile", ID: "user"}
	}
	return rec.User.Profile, nil
}

// InitializeUserProfile creates the profile. If one already exists it is
// returned unchanged.
func (e *Engine) InitializeUserProfile(ctx context.Context, in any) (model.UserProfile, error) {
	res := e.validate.Profile(in)
	if !res.IsValid {
		return model.UserProfile{}, res.Err()
	}

	var profile model.UserProfile
	err := e.update(ctx, func(rec *model.StoredRecord) (Patch, error) {
		if rec.User.Profile != nil {
			e.logger.Warn("profile already exists, not overwriting")
			profile = *rec.User.Profile
			return Patch{}, nil
		}
		profile = *res.Data
		user := rec.User
		user.Profile = &profile
		now := e.now().UTC()
		user.UpdatedAt = &now
		return Patch{User: &user}, nil
	})
	if err != nil {
		return model.UserProfile{}, err
	}
	return profile, nil
}

// UpdateUserProfile merges a partial profile into the existing one.
func (e *Engine) UpdateUserProfile(ctx context.Context, changes any) (model.UserProfile, error) {
	var profile model.UserProfile
	err := e.update(ctx, func(rec *model.StoredRecord) (Patch, error) {
		if rec.User.Profile == nil {
			return Patch{}, &model.NotFoundError{Kind: "profile", ID: "user"}
		}
		merged, err := mergeJSON(*rec.User.Profile, changes)
		if err != nil {
			return Patch{}, err
		}
		res := e.validate.Profile(merged)
		if !res.IsValid {
			return Patch{}, res.Err()
		}
		profile = *res.Data
		user := rec.User
		user.Profile = &profile
		now := e.now().UTC()
		user.UpdatedAt = &now
		return Patch{User: &user}, nil
	})
	if err != nil {
		return model.UserProfile{}, err
	}
	return profile, nil
}

// mergeJSON overlays changes onto base, recursing into nested objects.
func mergeJSON(base, changes any) (map[string]any, error) {
	dst, err := toMap(base)
	if err != nil {
		return nil, err
	}
	src, err := toMap(changes)
	if err != nil {
		return nil, &model.ValidationError{Fields: model.FieldErrors{"root": "Changes must be an object"}}
	}
	deepMerge(dst, src)
	return dst, nil
}

func deepMerge(dst, src map[string]any) {
	for k, v := range src {
		if sv, ok := v.(map[string]any); ok {
			if dv, ok := dst[k].(map[string]any); ok {
				deepMerge(dv, sv)
				continue
			}
		}
		dst[k] = v
	}
}

func toMap(v any) (map[string]any, error) {
	var data []byte
	switch x := v.(type) {
	case map[string]any:
		return x, nil
	case []byte:
		data = x
	case json.RawMessage:
		data = x
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return nil, fmt.Errorf("marshal: %w", err)
		}
		data = b
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode object: %w", err)
	}
	if m == nil {
		m = map[string]any{}
	}
	return m, nil
}
