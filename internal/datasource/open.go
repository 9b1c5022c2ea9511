package datasource

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/vanderheijden86/boardstate/pkg/debug"
	"github.com/vanderheijden86/boardstate/pkg/persistence"
)

// OpenOptions controls OpenStore.
type OpenOptions struct {
	// Backend is "json", "sqlite" or empty to detect from the extension.
	Backend string
	// InstanceID identifies this process in saved metadata. Empty means a
	// fresh random id.
	InstanceID string
	// AutoMigrate copies a sibling JSON board into a SQLite path that does
	// not exist yet.
	AutoMigrate bool
}

// Opened is an open store plus how it was reached.
type Opened struct {
	Store    persistence.Store
	Type     SourceType
	Migrated bool
	// MigratedFrom is the JSON path copied into the database, if any.
	MigratedFrom string
}

// SiblingJSON returns the JSON path sharing a database path's stem, so
// board.db pairs with board.json.
func SiblingJSON(dbPath string) string {
	return strings.TrimSuffix(dbPath, filepath.Ext(dbPath)) + ".json"
}

// SiblingDB is the inverse of SiblingJSON.
func SiblingDB(jsonPath string) string {
	return strings.TrimSuffix(jsonPath, filepath.Ext(jsonPath)) + ".db"
}

// OpenStore opens the store for path with the requested backend.
func OpenStore(ctx context.Context, path string, opts OpenOptions) (Opened, error) {
	typ, err := ParseType(opts.Backend, path)
	if err != nil {
		return Opened{}, err
	}
	switch typ {
	case SourceTypeJSON:
		var jsonOpts []persistence.JSONOption
		if opts.InstanceID != "" {
			jsonOpts = append(jsonOpts, persistence.WithInstanceID(opts.InstanceID))
		}
		return Opened{Store: persistence.NewJSONFileStore(path, jsonOpts...), Type: typ}, nil

	case SourceTypeSQLite:
		out := Opened{Type: typ}
		if opts.AutoMigrate {
			from := SiblingJSON(path)
			migrated, err := persistence.AutoMigrate(ctx, from, path)
			if err != nil {
				return Opened{}, fmt.Errorf("failed to migrate %s: %w", from, err)
			}
			if migrated {
				debug.Log("auto-migrated %s to %s", from, path)
				out.Migrated = true
				out.MigratedFrom = from
			}
		}
		store, err := persistence.OpenSQLiteStore(path, opts.InstanceID)
		if err != nil {
			return Opened{}, err
		}
		out.Store = store
		return out, nil
	}
	return Opened{}, fmt.Errorf("unsupported source type: %s", typ)
}
