package validate

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/ritual/internal/model"
)

var fixedNow = time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

func testValidator() *Validator {
	return New(func() time.Time { return fixedNow })
}

func validEntry() map[string]any {
	return map[string]any{
		"id":           "e1",
		"date":         "2026-06-01T20:00:00Z",
		"activityType": map[string]any{"id": "1", "icon": "x", "category": "partner"},
		"duration":     30,
		"satisfaction": 4,
		"notes":        "  fine  ",
		"createdAt":    "2026-06-01T20:05:00Z",
		"updatedAt":    "2026-06-01T20:05:00Z",
	}
}

func validBundle() map[string]any {
	return map[string]any{
		"entries":  []any{validEntry()},
		"settings": map[string]any{"language": "en", "theme": "dark"},
		"user": map[string]any{
			"createdAt": "2026-01-01T00:00:00Z",
			"profile":   map[string]any{"name": "Alex", "age": 30},
		},
		"metadata": map[string]any{"version": "1.0.0", "dataHash": "abc123"},
	}
}

func TestEntryValid(t *testing.T) {
	res := testValidator().Entry(validEntry())
	require.True(t, res.IsValid, "errors: %v", res.Errors)
	require.NotNil(t, res.Data)

	assert.Equal(t, "e1", res.Data.ID)
	assert.Equal(t, "fine", res.Data.Notes)
	require.NotNil(t, res.Data.Duration)
	assert.Equal(t, 30, *res.Data.Duration)
	assert.Equal(t, model.CategoryPartner, res.Data.ActivityType.Category)
	assert.NoError(t, res.Err())
}

func TestEntryCollectsAllErrors(t *testing.T) {
	in := map[string]any{
		"date":         "2030-01-01T00:00:00Z",
		"duration":     -5,
		"satisfaction": 9,
		"notes":        strings.Repeat("n", 501),
		"partner":      strings.Repeat("p", 51),
	}
	res := testValidator().Entry(in)

	require.False(t, res.IsValid)
	assert.Nil(t, res.Data)
	assert.ElementsMatch(t,
		[]string{"date", "activityType", "duration", "satisfaction", "notes", "partner"},
		res.Errors.Keys())
	assert.Equal(t, "Date cannot be in the future", res.Errors["date"])

	var ve *model.ValidationError
	require.ErrorAs(t, res.Err(), &ve)
	assert.Equal(t, res.Errors, ve.Fields)
}

func TestEntryDurationRules(t *testing.T) {
	tests := []struct {
		name    string
		value   any
		wantErr string
	}{
		{"zero", 0, "Duration must be positive"},
		{"fraction", 1.5, "Duration must be a whole number"},
		{"too long", 1441, "Duration cannot exceed 24 hours"},
		{"string", "ten", "Duration must be a number"},
		{"max", 1440, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validEntry()
			in["duration"] = tt.value
			res := testValidator().Entry(in)
			assert.Equal(t, tt.wantErr, res.Errors["duration"])
		})
	}
}

func TestEntryAcceptsRawJSON(t *testing.T) {
	raw := json.RawMessage(`{"date":"2026-06-01","activityType":{"id":"2"},"extra":true}`)
	res := testValidator().Entry(raw)
	require.True(t, res.IsValid, "errors: %v", res.Errors)
	assert.Equal(t, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC), res.Data.Date)
}

func TestEntryRejectsNonObject(t *testing.T) {
	res := testValidator().Entry([]int{1, 2})
	require.False(t, res.IsValid)
	assert.Contains(t, res.Errors, RootPath)
}

func TestSettingsDefaults(t *testing.T) {
	res := testValidator().Settings(map[string]any{})
	require.True(t, res.IsValid)
	assert.Equal(t, model.DefaultSettings(), *res.Data)
}

func TestSettingsCoercion(t *testing.T) {
	in := map[string]any{
		"language":      "es-MX",
		"notifications": false,
		"privacy":       map[string]any{"autoLockTimeout": 60, "requireAuth": true},
		"cloudSync":     true,
	}
	res := testValidator().Settings(in)
	require.True(t, res.IsValid, "errors: %v", res.Errors)

	assert.Equal(t, "es", res.Data.Language)
	assert.False(t, res.Data.Notifications.Enabled)
	assert.Equal(t, model.FrequencyDaily, res.Data.Notifications.Frequency)
	assert.Equal(t, 60, res.Data.Privacy.AutoLockTimeout)
	assert.True(t, res.Data.Privacy.RequireAuth)
	assert.Equal(t, model.ThemeLight, res.Data.Theme)
}

func TestSettingsInvalid(t *testing.T) {
	in := map[string]any{
		"language": "fr",
		"theme":    "neon",
		"notifications": map[string]any{
			"reminderTime": "25:00",
			"frequency":    "hourly",
		},
		"privacy": map[string]any{"autoLockTimeout": 10},
		"backup":  map[string]any{"backupFrequency": "never"},
	}
	res := testValidator().Settings(in)
	require.False(t, res.IsValid)
	assert.Equal(t, []string{
		"backup.backupFrequency",
		"language",
		"notifications.frequency",
		"notifications.reminderTime",
		"privacy.autoLockTimeout",
		"theme",
	}, res.Errors.Keys())
	assert.Equal(t, "Auto-lock timeout must be at least 30 seconds", res.Errors["privacy.autoLockTimeout"])
}

func TestSettingsAutoLockUpperBound(t *testing.T) {
	res := testValidator().Settings(map[string]any{"privacy": map[string]any{"autoLockTimeout": 3601}})
	require.False(t, res.IsValid)
	assert.Equal(t, "Auto-lock timeout cannot exceed 1 hour", res.Errors["privacy.autoLockTimeout"])
}

func TestProfile(t *testing.T) {
	tests := []struct {
		name     string
		in       map[string]any
		wantKeys []string
	}{
		{"valid", map[string]any{"name": "Sam", "age": 25}, nil},
		{"short name", map[string]any{"name": "S", "age": 25}, []string{"name"}},
		{"long name", map[string]any{"name": strings.Repeat("a", 51), "age": 25}, []string{"name"}},
		{"too young", map[string]any{"name": "Sam", "age": 11}, []string{"age"}},
		{"too old", map[string]any{"name": "Sam", "age": 91}, []string{"age"}},
		{"fractional age", map[string]any{"name": "Sam", "age": 20.5}, []string{"age"}},
		{"missing both", map[string]any{}, []string{"age", "name"}},
		{"short name and age out of range", map[string]any{"name": "A", "age": 5}, []string{"age", "name"}},
		{"partner index out of range", map[string]any{
			"name": "Sam", "age": 30,
			"partners":      []any{map[string]any{"id": "p1", "name": "Kim"}},
			"actualPartner": 1,
		}, []string{"actualPartner"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := testValidator().Profile(tt.in)
			if tt.wantKeys == nil {
				assert.True(t, res.IsValid, "errors: %v", res.Errors)
				return
			}
			assert.False(t, res.IsValid)
			assert.Equal(t, tt.wantKeys, res.Errors.Keys())
		})
	}
}

func TestImportBundleValid(t *testing.T) {
	res := testValidator().ImportBundle(validBundle())
	require.True(t, res.IsValid, "errors: %v", res.Errors)

	rec := res.Data
	require.Len(t, rec.Entries, 1)
	assert.Equal(t, model.ThemeDark, rec.Settings.Theme)
	require.NotNil(t, rec.User.Profile)
	assert.Equal(t, "Alex", rec.User.Profile.Name)
	assert.Equal(t, "1.0.0", rec.Metadata.Version)
}

func TestImportBundleCrossRecordChecks(t *testing.T) {
	b := validBundle()
	future := validEntry()
	future["id"] = "e2"
	future["date"] = "2027-01-01T00:00:00Z"
	reversed := validEntry()
	reversed["id"] = "e3"
	reversed["createdAt"] = "2026-06-02T00:00:00Z"
	reversed["updatedAt"] = "2026-06-01T00:00:00Z"
	b["entries"] = []any{validEntry(), future, reversed, validEntry(), reversed}
	b["metadata"] = map[string]any{"version": "9.9.9", "dataHash": "abc"}

	res := testValidator().ImportBundle(b)
	require.False(t, res.IsValid)

	assert.Equal(t, "Date cannot be in the future", res.Errors["entries.1.date"])
	assert.Equal(t, "Created date cannot be after updated date", res.Errors["entries.2.dates"])
	assert.Equal(t, "Duplicate entry IDs found: e1, e3", res.Errors["duplicateEntries"])
	assert.Equal(t, "Data version is not compatible with current app version", res.Errors["version"])
}

func TestImportBundleMissingSections(t *testing.T) {
	res := testValidator().ImportBundle(map[string]any{"entries": "nope"})
	require.False(t, res.IsValid)
	assert.Equal(t, []string{"entries", "metadata", "settings", "user"}, res.Errors.Keys())
}

func TestImportBundleStoredEntryNeedsIDAndTimestamps(t *testing.T) {
	b := validBundle()
	e := validEntry()
	delete(e, "id")
	delete(e, "createdAt")
	b["entries"] = []any{e}

	res := testValidator().ImportBundle(b)
	require.False(t, res.IsValid)
	assert.Contains(t, res.Errors, "entries.0.id")
	assert.Contains(t, res.Errors, "entries.0.createdAt")
}

func TestImportBundleLegacySettings(t *testing.T) {
	b := validBundle()
	b["settings"] = map[string]any{"language": "en", "notifications": true}

	res := testValidator().ImportBundle(b)
	require.True(t, res.IsValid, "errors: %v", res.Errors)
	assert.True(t, res.Data.Settings.Notifications.Enabled)
	assert.Equal(t, model.FrequencyWeekly, res.Data.Settings.Backup.BackupFrequency)
}

func TestImportBundleFromTypedRecord(t *testing.T) {
	created := fixedNow.Add(-time.Hour)
	rec := model.StoredRecord{
		Entries: []model.Entry{{
			ID:           "a",
			Date:         created,
			ActivityType: model.DefaultActivities[0],
			CreatedAt:    created,
			UpdatedAt:    created,
		}},
		Settings: model.DefaultSettings(),
		User:     model.User{CreatedAt: created},
		Metadata: model.RecordMetadata{Version: model.CurrentVersion, DataHash: "h"},
		BackupMetadata: &model.BackupMetadata{
			ID: "b1", CreatedAt: created, Version: model.CurrentVersion, EntriesCount: 1,
		},
	}

	res := testValidator().ImportBundle(rec)
	require.True(t, res.IsValid, "errors: %v", res.Errors)
	assert.Equal(t, rec.Entries, res.Data.Entries)
	require.NotNil(t, res.Data.BackupMetadata)
	assert.Equal(t, "b1", res.Data.BackupMetadata.ID)
}
