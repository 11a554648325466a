package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/dukerupert/ritual/internal/crypto"
	"github.com/dukerupert/ritual/internal/database"
	"github.com/dukerupert/ritual/internal/model"
	"github.com/dukerupert/ritual/internal/store"
)

var testNow = time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testCrypto(t *testing.T) *crypto.Engine {
	t.Helper()
	c, err := crypto.NewWithKey(bytes.Repeat([]byte{9}, 32))
	if err != nil {
		t.Fatalf("crypto: %v", err)
	}
	return c
}

func setupEngine(t *testing.T, opts ...Option) (*Engine, store.KV) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	kv := store.NewSQLiteKV(db)

	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	return New(kv, testCrypto(t), testLogger(), opts...), kv
}

func newEntry(id string, daysAgo int) model.Entry {
	sat := 4
	return model.Entry{
		ID:           id,
		Date:         testNow.AddDate(0, 0, -daysAgo),
		ActivityType: model.DefaultActivities[0],
		Satisfaction: &sat,
	}
}

type fallbackFunc func(ctx context.Context) (*model.StoredRecord, error)

func (f fallbackFunc) LatestRecord(ctx context.Context) (*model.StoredRecord, error) { return f(ctx) }

type failingKV struct{ err error }

func (f failingKV) Get(context.Context, string) ([]byte, error) { return nil, f.err }
func (f failingKV) Set(context.Context, string, []byte) error { return f.err }
func (f failingKV) Delete(context.Context, string) error { return f.err }

func TestLoadEmptyStoreReturnsDefaults(t *testing.T) {
	eng, _ := setupEngine(t)

	rec, err := eng.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(rec.Entries) != 0 {
		t.Errorf("entries = %d, want 0", len(rec.Entries))
	}
	if diff := cmp.Diff(model.DefaultSettings(), rec.Settings); diff != "" {
		t.Errorf("settings mismatch (-want +got):\n%s", diff)
	}
	if rec.Metadata.Version != model.CurrentVersion {
		t.Errorf("version = %q, want %q", rec.Metadata.Version, model.CurrentVersion)
	}
}

func TestSaveRoundTripVerifiesHash(t *testing.T) {
	eng, kv := setupEngine(t)
	ctx := context.Background()

	if _, err := eng.SaveEntry(ctx, newEntry("a", 1)); err != nil {
		t.Fatalf("save entry: %v", err)
	}

	blob, _ := kv.Get(ctx, DataKey)
	var rec model.StoredRecord
	if err := testCrypto(t).Decrypt(string(blob), &rec); err != nil {
		t.Fatalf("decrypt stored blob: %v", err)
	}
	want, _ := crypto.HashJSON(rec.Content())
	if rec.Metadata.DataHash != want {
		t.Errorf("dataHash = %q, want %q", rec.Metadata.DataHash, want)
	}
	if shadow, _ := kv.Get(ctx, ShadowKey); shadow != nil {
		t.Error("first write should not create a shadow copy")
	}

	if _, err := eng.SaveEntry(ctx, newEntry("b", 0)); err != nil {
		t.Fatalf("save second entry: %v", err)
	}
	shadow, _ := kv.Get(ctx, ShadowKey)
	if !bytes.Equal(shadow, blob) {
		t.Error("shadow copy should hold the previous verified blob")
	}
}

func TestSaveLeavesPatchUntouched(t *testing.T) {
	eng, _ := setupEngine(t)
	ctx := context.Background()

	zone := time.FixedZone("UTC+2", 2*60*60)
	en := newEntry("a", 1)
	en.Date = en.Date.In(zone)
	entries := []model.Entry{en}

	if err := eng.Save(ctx, Patch{Entries: &entries}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if loc := entries[0].Date.Location(); loc != zone {
		t.Errorf("caller entry location = %v, want %v", loc, zone)
	}

	got, err := eng.GetEntry(ctx, "a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Date.Location() != time.UTC {
		t.Errorf("stored location = %v, want UTC", got.Date.Location())
	}
}

func TestLoadRecoversFromShadowCopy(t *testing.T) {
	eng, kv := setupEngine(t)
	ctx := context.Background()

	eng.SaveEntry(ctx, newEntry("a", 2))
	eng.SaveEntry(ctx, newEntry("b", 1))

	if err := kv.Set(ctx, DataKey, []byte("garbage")); err != nil {
		t.Fatalf("corrupt: %v", err)
	}

	entries, err := eng.GetEntries(ctx)
	if err != nil {
		t.Fatalf("get entries: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != "a" {
		t.Errorf("entries = %+v, want the state before the last write", entries)
	}
}

func TestLoadDetectsSingleByteChange(t *testing.T) {
	eng, kv := setupEngine(t)
	ctx := context.Background()

	eng.SaveEntry(ctx, newEntry("a", 2))
	eng.SaveEntry(ctx, newEntry("b", 1))

	blob, err := kv.Get(ctx, DataKey)
	if err != nil {
		t.Fatalf("get blob: %v", err)
	}
	mutated := bytes.Clone(blob)
	mid := len(mutated) / 2
	if mutated[mid] == 'A' {
		mutated[mid] = 'B'
	} else {
		mutated[mid] = 'A'
	}
	if err := kv.Set(ctx, DataKey, mutated); err != nil {
		t.Fatalf("corrupt: %v", err)
	}

	entries, err := eng.GetEntries(ctx)
	if err != nil {
		t.Fatalf("get entries: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != "a" {
		t.Errorf("entries = %+v, want the shadow copy", entries)
	}
}

func TestLoadIntegrityMismatchFallsBack(t *testing.T) {
	latest := &model.StoredRecord{
		Entries:        []model.Entry{newEntry("from-backup", 3)},
		Settings:       model.DefaultSettings(),
		BackupMetadata: &model.BackupMetadata{ID: "b1"},
	}
	eng, kv := setupEngine(t, WithFallback(fallbackFunc(func(context.Context) (*model.StoredRecord, error) {
		return latest, nil
	})))
	ctx := context.Background()

	tampered := model.StoredRecord{
		Entries:  []model.Entry{newEntry("x", 1)},
		Settings: model.DefaultSettings(),
		Metadata: model.RecordMetadata{Version: model.CurrentVersion, DataHash: "deadbeef"},
	}
	token, err := testCrypto(t).Encrypt(tampered)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	kv.Set(ctx, DataKey, []byte(token))

	rec, err := eng.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(rec.Entries) != 1 || rec.Entries[0].ID != "from-backup" {
		t.Errorf("entries = %+v, want backup fallback", rec.Entries)
	}
	if rec.BackupMetadata != nil {
		t.Error("backup metadata should be stripped from a recovered record")
	}
}

func TestLoadAllFallbacksFailReturnsDefaults(t *testing.T) {
	eng, kv := setupEngine(t, WithFallback(fallbackFunc(func(context.Context) (*model.StoredRecord, error) {
		return nil, errors.New("no backups readable")
	})))
	ctx := context.Background()
	kv.Set(ctx, DataKey, []byte("garbage"))
	kv.Set(ctx, ShadowKey, []byte("also garbage"))

	rec, err := eng.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(rec.Entries) != 0 {
		t.Errorf("entries = %d, want defaults", len(rec.Entries))
	}
}

func TestLoadSurfacesStoreFailure(t *testing.T) {
	eng := New(failingKV{err: errors.New("disk gone")}, testCrypto(t), testLogger())

	_, err := eng.Load(context.Background())
	var pe *model.PersistenceError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want *model.PersistenceError", err)
	}
	if pe.Key != DataKey {
		t.Errorf("key = %q, want %q", pe.Key, DataKey)
	}
}

func TestSaveEntryUpsert(t *testing.T) {
	eng, _ := setupEngine(t)
	ctx := context.Background()

	first, err := eng.SaveEntry(ctx, newEntry("a", 2))
	if err != nil {
		t.Fatalf("save a: %v", err)
	}
	if !first.CreatedAt.Equal(testNow) || !first.UpdatedAt.Equal(testNow) {
		t.Errorf("timestamps = %v/%v, want %v", first.CreatedAt, first.UpdatedAt, testNow)
	}
	eng.SaveEntry(ctx, newEntry("b", 1))

	changed := newEntry("a", 2)
	changed.Notes = "edited"
	if _, err := eng.SaveEntry(ctx, changed); err != nil {
		t.Fatalf("resave a: %v", err)
	}

	entries, _ := eng.GetEntries(ctx)
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].ID != "b" || entries[1].ID != "a" {
		t.Errorf("order = %s,%s, want b,a", entries[0].ID, entries[1].ID)
	}
	if entries[1].Notes != "edited" {
		t.Errorf("notes = %q, want %q", entries[1].Notes, "edited")
	}
}

func TestSaveEntryGeneratesIDAndFillsActivity(t *testing.T) {
	eng, _ := setupEngine(t)
	en := newEntry("", 0)
	en.ActivityType = model.ActivityType{ID: "2"}

	saved, err := eng.SaveEntry(context.Background(), en)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if saved.ID == "" {
		t.Error("expected generated id")
	}
	if saved.ActivityType.Category != model.CategorySolo {
		t.Errorf("category = %q, want %q", saved.ActivityType.Category, model.CategorySolo)
	}
}

func TestSaveEntryRejectsInvalid(t *testing.T) {
	eng, _ := setupEngine(t)
	en := newEntry("a", -3)

	_, err := eng.SaveEntry(context.Background(), en)
	var ve *model.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want *model.ValidationError", err)
	}
	if _, ok := ve.Fields["date"]; !ok {
		t.Errorf("fields = %v, want date error", ve.Fields)
	}
}

func TestUpdateEntry(t *testing.T) {
	clock := testNow
	eng, _ := setupEngine(t, WithClock(func() time.Time { return clock }))
	ctx := context.Background()

	if _, err := eng.UpdateEntry(ctx, "nope", func(*model.Entry) {}); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}

	eng.SaveEntry(ctx, newEntry("a", 1))
	clock = testNow.Add(time.Hour)

	updated, err := eng.UpdateEntry(ctx, "a", func(e *model.Entry) {
		e.ID = "hijack"
		e.Notes = "later"
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.ID != "a" {
		t.Errorf("id = %q, want %q", updated.ID, "a")
	}
	if !updated.CreatedAt.Equal(testNow) {
		t.Errorf("createdAt = %v, want %v", updated.CreatedAt, testNow)
	}
	if !updated.UpdatedAt.Equal(clock) {
		t.Errorf("updatedAt = %v, want %v", updated.UpdatedAt, clock)
	}

	got, err := eng.GetEntry(ctx, "a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Notes != "later" {
		t.Errorf("notes = %q, want %q", got.Notes, "later")
	}
}

func TestSaveEntryClampsFutureCreatedAt(t *testing.T) {
	eng, _ := setupEngine(t)
	ctx := context.Background()

	en := newEntry("x", 0)
	en.Date = testNow.Add(-time.Hour)
	en.CreatedAt = testNow.Add(48 * time.Hour)

	saved, err := eng.SaveEntry(ctx, en)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if !saved.CreatedAt.Equal(testNow) {
		t.Errorf("createdAt = %v, want %v", saved.CreatedAt, testNow)
	}
	if saved.CreatedAt.After(saved.UpdatedAt) {
		t.Errorf("createdAt %v is after updatedAt %v", saved.CreatedAt, saved.UpdatedAt)
	}

	token, err := eng.ExportData(ctx)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if _, err := eng.ImportData(ctx, token); err != nil {
		t.Errorf("import own export: %v", err)
	}
}

func TestUpdateEntryClockMovedBack(t *testing.T) {
	clock := testNow
	eng, _ := setupEngine(t, WithClock(func() time.Time { return clock }))
	ctx := context.Background()

	if _, err := eng.SaveEntry(ctx, newEntry("a", 1)); err != nil {
		t.Fatalf("save: %v", err)
	}
	clock = testNow.Add(-2 * time.Hour)

	updated, err := eng.UpdateEntry(ctx, "a", func(e *model.Entry) { e.Notes = "earlier" })
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !updated.UpdatedAt.Equal(updated.CreatedAt) {
		t.Errorf("updatedAt = %v, want createdAt %v", updated.UpdatedAt, updated.CreatedAt)
	}
	if _, err := eng.ImportData(ctx, mustExport(t, eng)); err != nil {
		t.Errorf("import own export: %v", err)
	}
}

func mustExport(t *testing.T, eng *Engine) string {
	t.Helper()
	token, err := eng.ExportData(context.Background())
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	return token
}

func TestDeleteEntryIsIdempotent(t *testing.T) {
	eng, _ := setupEngine(t)
	ctx := context.Background()
	eng.SaveEntry(ctx, newEntry("a", 1))

	for i := 0; i < 2; i++ {
		if err := eng.DeleteEntry(ctx, "a"); err != nil {
			t.Fatalf("delete %d: %v", i, err)
		}
	}
	if err := eng.DeleteEntry(ctx, "never-existed"); err != nil {
		t.Fatalf("delete unknown: %v", err)
	}
	if _, err := eng.GetEntry(ctx, "a"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("err = %v, want not found", err)
	}
}

func TestGetUserStats(t *testing.T) {
	eng, _ := setupEngine(t)
	ctx := context.Background()

	empty, err := eng.GetUserStats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if empty.TotalEntries != 0 || empty.LastActivity != nil || empty.MostCommonActivity != nil {
		t.Errorf("empty stats = %+v", empty)
	}

	solo := newEntry("s1", 1)
	solo.ActivityType = model.DefaultActivities[1]
	solo.Satisfaction = nil
	oldSolo := newEntry("s2", 40)
	oldSolo.ActivityType = model.DefaultActivities[1]
	partner := newEntry("p1", 2)
	five := 5
	partner.Satisfaction = &five

	for _, e := range []model.Entry{oldSolo, partner, solo} {
		if _, err := eng.SaveEntry(ctx, e); err != nil {
			t.Fatalf("save %s: %v", e.ID, err)
		}
	}

	stats, err := eng.GetUserStats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalEntries != 3 {
		t.Errorf("total = %d, want 3", stats.TotalEntries)
	}
	if stats.ThisMonth != 2 {
		t.Errorf("thisMonth = %d, want 2", stats.ThisMonth)
	}
	if stats.AverageSatisfaction == nil || *stats.AverageSatisfaction != 4.5 {
		t.Errorf("average = %v, want 4.5", stats.AverageSatisfaction)
	}
	if stats.LastActivity == nil || !stats.LastActivity.Equal(solo.Date) {
		t.Errorf("lastActivity = %v, want %v", stats.LastActivity, solo.Date)
	}
	if stats.MostCommonActivity == nil || stats.MostCommonActivity.ID != "2" {
		t.Errorf("mostCommon = %+v, want activity 2", stats.MostCommonActivity)
	}
}

func TestMostCommonActivityTieGoesToFirstSeen(t *testing.T) {
	a := newEntry("a", 1)
	b := newEntry("b", 1)
	b.ActivityType = model.DefaultActivities[2]

	stats := computeStats([]model.Entry{b, a}, testNow)
	if stats.MostCommonActivity.ID != b.ActivityType.ID {
		t.Errorf("mostCommon = %q, want %q", stats.MostCommonActivity.ID, b.ActivityType.ID)
	}
}

func TestUpdateSettings(t *testing.T) {
	eng, _ := setupEngine(t)
	ctx := context.Background()

	got, err := eng.UpdateSettings(ctx, map[string]any{
		"theme":   "dark",
		"privacy": map[string]any{"autoLock": true},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.Theme != model.ThemeDark || !got.Privacy.AutoLock {
		t.Errorf("settings = %+v", got)
	}
	if got.Privacy.AutoLockTimeout != 300 {
		t.Errorf("autoLockTimeout = %d, want existing 300", got.Privacy.AutoLockTimeout)
	}

	_, err = eng.UpdateSettings(ctx, map[string]any{"privacy": map[string]any{"autoLockTimeout": 5}})
	var ve *model.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want *model.ValidationError", err)
	}
	if _, ok := ve.Fields["privacy.autoLockTimeout"]; !ok {
		t.Errorf("fields = %v", ve.Fields)
	}

	stored, _ := eng.GetSettings(ctx)
	if stored.Theme != model.ThemeDark || stored.Privacy.AutoLockTimeout != 300 {
		t.Errorf("stored settings changed by rejected update: %+v", stored)
	}
}

func TestUserProfileLifecycle(t *testing.T) {
	eng, _ := setupEngine(t)
	ctx := context.Background()

	if _, err := eng.GetUserProfile(ctx); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}

	p, err := eng.InitializeUserProfile(ctx, map[string]any{"name": "Robin", "age": 30})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if p.Name != "Robin" {
		t.Errorf("name = %q", p.Name)
	}

	again, err := eng.InitializeUserProfile(ctx, map[string]any{"name": "Other", "age": 40})
	if err != nil {
		t.Fatalf("second init: %v", err)
	}
	if again.Name != "Robin" {
		t.Errorf("second init overwrote profile: %q", again.Name)
	}

	updated, err := eng.UpdateUserProfile(ctx, map[string]any{"age": 31})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Name != "Robin" || updated.Age != 31 {
		t.Errorf("profile = %+v", updated)
	}

	if _, err := eng.UpdateUserProfile(ctx, map[string]any{"age": 8}); err == nil {
		t.Error("expected validation error for age 8")
	}
}

func TestExportClearImport(t *testing.T) {
	eng, _ := setupEngine(t)
	ctx := context.Background()

	if err := eng.Initialize(ctx); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	sat := 5
	original, err := eng.SaveEntry(ctx, model.Entry{
		ID:           "1",
		Date:         testNow,
		ActivityType: model.DefaultActivities[0],
		Satisfaction: &sat,
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	entries, _ := eng.GetEntries(ctx)
	stats, _ := eng.GetUserStats(ctx)
	if len(entries) != 1 || stats.TotalEntries != 1 {
		t.Fatalf("entries = %d, total = %d, want 1", len(entries), stats.TotalEntries)
	}

	token, err := eng.ExportData(ctx)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if err := eng.ClearAllData(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if entries, _ := eng.GetEntries(ctx); len(entries) != 0 {
		t.Fatalf("entries after clear = %d", len(entries))
	}

	imported, err := eng.ImportData(ctx, token)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if imported.Metadata.LastBackup == nil {
		t.Error("exported record should carry lastBackup")
	}

	entries, _ = eng.GetEntries(ctx)
	if diff := cmp.Diff([]model.Entry{original}, entries); diff != "" {
		t.Errorf("entries mismatch (-want +got):\n%s", diff)
	}
}

func TestImportFailureLeavesRecordUntouched(t *testing.T) {
	eng, kv := setupEngine(t)
	ctx := context.Background()
	eng.SaveEntry(ctx, newEntry("keep", 1))
	before, _ := kv.Get(ctx, DataKey)

	if _, err := eng.ImportData(ctx, "not a token"); !errors.Is(err, model.ErrDecryption) {
		t.Errorf("err = %v, want decryption error", err)
	}

	dup := model.StoredRecord{
		Entries:  []model.Entry{newEntry("d", 1), newEntry("d", 2)},
		Settings: model.DefaultSettings(),
		User:     model.User{CreatedAt: testNow},
		Metadata: model.RecordMetadata{Version: "1.0.0", DataHash: "x"},
	}
	for i := range dup.Entries {
		dup.Entries[i].CreatedAt = testNow
		dup.Entries[i].UpdatedAt = testNow
	}
	token, _ := testCrypto(t).Encrypt(dup)

	_, err := eng.ImportData(ctx, token)
	var ve *model.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want *model.ValidationError", err)
	}
	if ve.Fields["duplicateEntries"] != "Duplicate entry IDs found: d" {
		t.Errorf("duplicateEntries = %q", ve.Fields["duplicateEntries"])
	}

	after, _ := kv.Get(ctx, DataKey)
	if !bytes.Equal(before, after) {
		t.Error("live record changed by a rejected import")
	}
}

func TestConcurrentSaves(t *testing.T) {
	eng, _ := setupEngine(t)
	ctx := context.Background()

	ids := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if _, err := eng.SaveEntry(ctx, newEntry(id, 1)); err != nil {
				t.Errorf("save %s: %v", id, err)
			}
		}(id)
	}
	wg.Wait()

	entries, _ := eng.GetEntries(ctx)
	if len(entries) != len(ids) {
		t.Errorf("entries = %d, want %d", len(entries), len(ids))
	}
}
