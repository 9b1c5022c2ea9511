package datasource

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	_ "modernc.org/sqlite"

	"github.com/vanderheijden86/boardstate/pkg/model"
)

// SQLiteReader provides read-only access to a board database. It never
// creates tables, so probing a stray .db file leaves it untouched.
type SQLiteReader struct {
	db   *sql.DB
	path string
}

// NewSQLiteReader opens a SQLite database for reading
func NewSQLiteReader(source DataSource) (*SQLiteReader, error) {
	if source.Type != SourceTypeSQLite {
		return nil, fmt.Errorf("source is not SQLite: %s", source.Type)
	}

	dsn := fmt.Sprintf("file:%s?mode=ro&_pragma=busy_timeout(5000)", source.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	return &SQLiteReader{
		db:   db,
		path: source.Path,
	}, nil
}

// Close closes the database connection
func (r *SQLiteReader) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Metadata reads the meta row. found is false for a database that has the
// schema but no saved board.
func (r *SQLiteReader) Metadata(ctx context.Context) (meta model.Metadata, revision int64, found bool, err error) {
	var savedAt string
	err = r.db.QueryRowContext(ctx,
		`SELECT format_version, instance_id, saved_at, revision FROM meta WHERE id = 1`).
		Scan(&meta.FormatVersion, &meta.InstanceID, &savedAt, &revision)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Metadata{}, 0, false, nil
	}
	if err != nil {
		return model.Metadata{}, 0, false, fmt.Errorf("failed to read meta: %w", err)
	}
	t, err := time.Parse(time.RFC3339Nano, savedAt)
	if err != nil {
		return model.Metadata{}, 0, false, fmt.Errorf("invalid saved_at %q: %w", savedAt, err)
	}
	meta.SavedAt = t.UTC()
	return meta, revision, true, nil
}

// Count returns the number of rows in one of the collection tables.
func (r *SQLiteReader) Count(ctx context.Context, table string) (int, error) {
	if !isCollection(table) {
		return 0, fmt.Errorf("unknown table %q", table)
	}
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return n, nil
}

// LoadSnapshot reads every collection in position order.
func (r *SQLiteReader) LoadSnapshot(ctx context.Context) (model.Snapshot, error) {
	var snap model.Snapshot
	targets := map[string]any{
		"boards":         &snap.Boards,
		"columns":        &snap.Columns,
		"cards":          &snap.Cards,
		"sprints":        &snap.Sprints,
		"archived_cards": &snap.ArchivedCards,
	}
	for _, table := range collectionTables {
		if err := r.loadTable(ctx, table, targets[table]); err != nil {
			return model.Snapshot{}, err
		}
	}
	snap.Normalize()
	return snap, nil
}

// loadTable decodes the payload column of table into dst, a pointer to a
// slice, by assembling a JSON array.
func (r *SQLiteReader) loadTable(ctx context.Context, table string, dst any) error {
	rows, err := r.db.QueryContext(ctx, "SELECT payload FROM "+table+" ORDER BY position")
	if err != nil {
		return fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer rows.Close()

	var payloads []json.RawMessage
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return fmt.Errorf("failed to scan %s: %w", table, err)
		}
		payloads = append(payloads, json.RawMessage(p))
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating %s: %w", table, err)
	}
	raw, err := json.Marshal(payloads)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("invalid %s payload: %w", table, err)
	}
	return nil
}

var collectionTables = []string{"boards", "columns", "cards", "sprints", "archived_cards"}

func isCollection(table string) bool {
	for _, t := range collectionTables {
		if t == table {
			return true
		}
	}
	return false
}
