package persistence

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/vanderheijden86/boardstate/pkg/debug"
)

// ErrTargetNotEmpty is returned when a migration would overwrite data.
var ErrTargetNotEmpty = errors.New("target database already holds a board")

// MigrateJSONToSQLite copies the snapshot in jsonPath into a new database
// at dbPath and verifies the copy. Legacy JSON files are upgraded first.
// The JSON file is left in place.
func MigrateJSONToSQLite(ctx context.Context, jsonPath, dbPath string) (LoadResult, error) {
	src := NewJSONFileStore(jsonPath)
	res, err := src.Load(ctx)
	if err != nil {
		return LoadResult{}, fmt.Errorf("failed to load %s: %w", jsonPath, err)
	}
	if res.Missing {
		return LoadResult{}, ioErr("read", jsonPath, os.ErrNotExist)
	}

	dst, err := OpenSQLiteStore(dbPath, src.InstanceID())
	if err != nil {
		return LoadResult{}, err
	}
	defer dst.Close()

	existing, err := dst.Load(ctx)
	if err != nil {
		return LoadResult{}, err
	}
	if !existing.Missing {
		return LoadResult{}, fmt.Errorf("%s: %w", dbPath, ErrTargetNotEmpty)
	}
	if _, err := dst.Save(ctx, res.Snapshot); err != nil {
		return LoadResult{}, fmt.Errorf("failed to write %s: %w", dbPath, err)
	}

	check, err := dst.Load(ctx)
	if err != nil {
		return LoadResult{}, err
	}
	if !check.Snapshot.Equal(res.Snapshot) {
		return LoadResult{}, &SerializationError{Path: dbPath, Err: errors.New("migrated database does not match source")}
	}
	debug.Log("migrated %s to sqlite %s (%d cards)", jsonPath, dbPath, len(check.Snapshot.Cards))
	return check, nil
}

// AutoMigrate runs MigrateJSONToSQLite when jsonPath exists and dbPath does
// not. It reports whether a migration happened.
func AutoMigrate(ctx context.Context, jsonPath, dbPath string) (bool, error) {
	if _, err := os.Stat(dbPath); err == nil {
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, ioErr("stat", dbPath, err)
	}
	if _, err := os.Stat(jsonPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, ioErr("stat", jsonPath, err)
	}
	if _, err := MigrateJSONToSQLite(ctx, jsonPath, dbPath); err != nil {
		return false, err
	}
	return true, nil
}
