package persistence

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/vanderheijden86/boardstate/pkg/conflict"
	"github.com/vanderheijden86/boardstate/pkg/model"
	"github.com/vanderheijden86/boardstate/pkg/testutil"
)

func openSQLite(t *testing.T, path, instance string) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLiteStore(path, instance)
	if err != nil {
		t.Fatalf("OpenSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "board.db")
	s := openSQLite(t, path, "")

	res, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !res.Missing {
		t.Error("fresh database should report Missing")
	}

	snap := testutil.New(testutil.GeneratorConfig{Seed: 9, Boards: 2, ColumnsPerBoard: 3, CardsPerColumn: 3, SprintsPerBoard: 1, ArchivedPerBoard: 1}).Snapshot()
	meta, err := s.Save(ctx, snap)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	r := openSQLite(t, path, "")
	got, err := r.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	testutil.AssertSnapshotEqual(t, snap, got.Snapshot)
	if got.Metadata.InstanceID != meta.InstanceID {
		t.Errorf("InstanceID = %q, want %q", got.Metadata.InstanceID, meta.InstanceID)
	}
}

func TestSQLiteConflict(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "board.db")
	a := openSQLite(t, path, "a")
	b := openSQLite(t, path, "b")
	a.Load(ctx)
	b.Load(ctx)

	if _, err := a.Save(ctx, testutil.NewDefault().Snapshot()); err != nil {
		t.Fatalf("a.Save() error = %v", err)
	}
	status, remote, err := b.Check(ctx)
	if err != nil || status != conflict.ChangedExternally || remote.InstanceID != "a" {
		t.Fatalf("b.Check() = %v, %+v, %v", status, remote, err)
	}
	if _, err := b.Save(ctx, model.Empty()); !errors.Is(err, ErrConflict) {
		t.Fatalf("b.Save() error = %v, want ErrConflict", err)
	}
	if err := b.Acknowledge(); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Save(ctx, model.Empty()); err != nil {
		t.Errorf("b.Save() after Acknowledge error = %v", err)
	}
}

func TestMigrateJSONToSQLite(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "board.json")
	dbPath := filepath.Join(dir, "board.db")

	snap := testutil.NewDefault().Snapshot()
	testutil.WriteV1File(t, jsonPath, snap)

	migrated, err := AutoMigrate(ctx, jsonPath, dbPath)
	if err != nil {
		t.Fatalf("AutoMigrate() error = %v", err)
	}
	if !migrated {
		t.Fatal("AutoMigrate() = false with only JSON present")
	}
	got, err := openSQLite(t, dbPath, "").Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertSnapshotEqual(t, snap, got.Snapshot)

	again, err := AutoMigrate(ctx, jsonPath, dbPath)
	if err != nil || again {
		t.Errorf("second AutoMigrate() = %v, %v; want false, nil", again, err)
	}
	if _, err := MigrateJSONToSQLite(ctx, jsonPath, dbPath); !errors.Is(err, ErrTargetNotEmpty) {
		t.Errorf("MigrateJSONToSQLite() into populated db error = %v", err)
	}
}

func TestAutoMigrateWithoutJSON(t *testing.T) {
	dir := t.TempDir()
	migrated, err := AutoMigrate(context.Background(), filepath.Join(dir, "none.json"), filepath.Join(dir, "none.db"))
	if err != nil || migrated {
		t.Errorf("AutoMigrate() = %v, %v; want false, nil", migrated, err)
	}
}
