package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	_ "modernc.org/sqlite"

	"github.com/vanderheijden86/boardstate/pkg/conflict"
	"github.com/vanderheijden86/boardstate/pkg/debug"
	"github.com/vanderheijden86/boardstate/pkg/metrics"
	"github.com/vanderheijden86/boardstate/pkg/model"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS meta (
	id             INTEGER PRIMARY KEY CHECK (id = 1),
	format_version INTEGER NOT NULL,
	instance_id    TEXT    NOT NULL,
	saved_at       TEXT    NOT NULL,
	revision       INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS boards         (id TEXT PRIMARY KEY, position INTEGER NOT NULL, payload TEXT NOT NULL);
CREATE TABLE IF NOT EXISTS columns        (id TEXT PRIMARY KEY, position INTEGER NOT NULL, payload TEXT NOT NULL);
CREATE TABLE IF NOT EXISTS cards          (id TEXT PRIMARY KEY, position INTEGER NOT NULL, payload TEXT NOT NULL);
CREATE TABLE IF NOT EXISTS sprints        (id TEXT PRIMARY KEY, position INTEGER NOT NULL, payload TEXT NOT NULL);
CREATE TABLE IF NOT EXISTS archived_cards (id TEXT PRIMARY KEY, position INTEGER NOT NULL, payload TEXT NOT NULL);
`

var collectionTables = []string{"boards", "columns", "cards", "sprints", "archived_cards"}

// SQLiteStore keeps a snapshot in a SQLite database, one table per
// collection. Conflicts are detected through a revision counter in the
// meta row instead of a file fingerprint, since WAL files make the main
// file's bytes unreliable.
type SQLiteStore struct {
	db         *sql.DB
	path       string
	instanceID string

	mu           sync.Mutex
	lastRevision int64
}

// OpenSQLiteStore opens or creates the database at path.
func OpenSQLiteStore(path string, instanceID string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, ioErr("open database", path, err)
	}
	// one writer per process keeps the revision check meaningful
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, ioErr("initialize schema in", path, err)
	}
	if instanceID == "" {
		instanceID = model.NewID()
	}
	return &SQLiteStore{db: db, path: path, instanceID: instanceID, lastRevision: -1}, nil
}

func (s *SQLiteStore) Path() string       { return s.path }
func (s *SQLiteStore) InstanceID() string { return s.instanceID }

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

type metaRow struct {
	meta     model.Metadata
	revision int64
	found    bool
}

func readMeta(ctx context.Context, q interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}) (metaRow, error) {
	var (
		row     metaRow
		savedAt string
	)
	err := q.QueryRowContext(ctx,
		`SELECT format_version, instance_id, saved_at, revision FROM meta WHERE id = 1`).
		Scan(&row.meta.FormatVersion, &row.meta.InstanceID, &savedAt, &row.revision)
	if errors.Is(err, sql.ErrNoRows) {
		return metaRow{revision: 0}, nil
	}
	if err != nil {
		return metaRow{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, savedAt)
	if err != nil {
		return metaRow{}, fmt.Errorf("invalid saved_at %q: %w", savedAt, err)
	}
	row.meta.SavedAt = t.UTC()
	row.found = true
	return row, nil
}

// Load reads every collection. An empty database yields an empty snapshot.
func (s *SQLiteStore) Load(ctx context.Context) (LoadResult, error) {
	defer metrics.Timer(metrics.SQLiteLoad)()
	s.mu.Lock()
	defer s.mu.Unlock()

	row, err := readMeta(ctx, s.db)
	if err != nil {
		return LoadResult{}, ioErr("read metadata from", s.path, err)
	}
	s.lastRevision = row.revision
	if !row.found {
		return LoadResult{Snapshot: model.Empty(), Missing: true}, nil
	}
	if row.meta.FormatVersion != FormatV2 {
		return LoadResult{}, &SerializationError{Path: s.path, Err: fmt.Errorf("unsupported version %d", row.meta.FormatVersion)}
	}

	var snap model.Snapshot
	targets := []any{&snap.Boards, &snap.Columns, &snap.Cards, &snap.Sprints, &snap.ArchivedCards}
	for i, table := range collectionTables {
		if err := s.loadTable(ctx, table, targets[i]); err != nil {
			return LoadResult{}, err
		}
	}
	snap.Normalize()
	debug.Log("loaded sqlite %s revision %d", s.path, row.revision)
	return LoadResult{Snapshot: snap, Metadata: row.meta}, nil
}

// loadTable decodes every payload of table into the slice pointed to by dst.
func (s *SQLiteStore) loadTable(ctx context.Context, table string, dst any) error {
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM `+table+` ORDER BY position`)
	if err != nil {
		return ioErr("query "+table+" in", s.path, err)
	}
	defer rows.Close()

	buf := []byte{'['}
	first := true
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return ioErr("scan "+table+" in", s.path, err)
		}
		if !first {
			buf = append(buf, ',')
		}
		first = false
		buf = append(buf, payload...)
	}
	if err := rows.Err(); err != nil {
		return ioErr("iterate "+table+" in", s.path, err)
	}
	buf = append(buf, ']')
	if err := json.Unmarshal(buf, dst); err != nil {
		return &SerializationError{Path: s.path, Err: fmt.Errorf("table %s: %w", table, err)}
	}
	return nil
}

// Save replaces all collections in one transaction. It is refused when
// another instance bumped the revision since our last load or save.
func (s *SQLiteStore) Save(ctx context.Context, snap model.Snapshot) (model.Metadata, error) {
	defer metrics.Timer(metrics.SQLiteSave)()
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Metadata{}, ioErr("begin transaction on", s.path, err)
	}
	defer tx.Rollback()

	row, err := readMeta(ctx, tx)
	if err != nil {
		return model.Metadata{}, ioErr("read metadata from", s.path, err)
	}
	if s.lastRevision >= 0 && row.revision != s.lastRevision && row.meta.InstanceID != s.instanceID {
		metrics.ConflictsDetected.Inc()
		return model.Metadata{}, &ConflictError{Path: s.path, Remote: row.meta}
	}

	snap.Normalize()
	if err := s.replaceAll(ctx, tx, snap); err != nil {
		return model.Metadata{}, err
	}
	meta := model.NewMetadata(s.instanceID)
	next := row.revision + 1
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO meta (id, format_version, instance_id, saved_at, revision) VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET format_version = excluded.format_version,
			instance_id = excluded.instance_id, saved_at = excluded.saved_at, revision = excluded.revision`,
		meta.FormatVersion, meta.InstanceID, meta.SavedAt.Format(time.RFC3339Nano), next); err != nil {
		return model.Metadata{}, ioErr("write metadata to", s.path, err)
	}
	if err := tx.Commit(); err != nil {
		return model.Metadata{}, ioErr("commit to", s.path, err)
	}
	s.lastRevision = next
	return meta, nil
}

func (s *SQLiteStore) replaceAll(ctx context.Context, tx *sql.Tx, snap model.Snapshot) error {
	ids := [][]string{
		idsOf(len(snap.Boards), func(i int) string { return snap.Boards[i].ID }),
		idsOf(len(snap.Columns), func(i int) string { return snap.Columns[i].ID }),
		idsOf(len(snap.Cards), func(i int) string { return snap.Cards[i].ID }),
		idsOf(len(snap.Sprints), func(i int) string { return snap.Sprints[i].ID }),
		idsOf(len(snap.ArchivedCards), func(i int) string { return snap.ArchivedCards[i].Card.ID }),
	}
	items := []func(i int) any{
		func(i int) any { return snap.Boards[i] },
		func(i int) any { return snap.Columns[i] },
		func(i int) any { return snap.Cards[i] },
		func(i int) any { return snap.Sprints[i] },
		func(i int) any { return snap.ArchivedCards[i] },
	}
	for t, table := range collectionTables {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return ioErr("clear "+table+" in", s.path, err)
		}
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO `+table+` (id, position, payload) VALUES (?, ?, ?)`)
		if err != nil {
			return ioErr("prepare "+table+" insert in", s.path, err)
		}
		for i, id := range ids[t] {
			payload, err := json.Marshal(items[t](i))
			if err != nil {
				stmt.Close()
				return &SerializationError{Path: s.path, Err: err}
			}
			if _, err := stmt.ExecContext(ctx, id, i, string(payload)); err != nil {
				stmt.Close()
				return ioErr("insert into "+table+" in", s.path, err)
			}
		}
		stmt.Close()
	}
	return nil
}

func idsOf(n int, id func(int) string) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = id(i)
	}
	return out
}

// Acknowledge adopts the current revision so the next Save overwrites it.
func (s *SQLiteStore) Acknowledge() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, err := readMeta(context.Background(), s.db)
	if err != nil {
		return ioErr("read metadata from", s.path, err)
	}
	s.lastRevision = row.revision
	return nil
}

// Check reports whether another instance wrote since our last observation.
func (s *SQLiteStore) Check(ctx context.Context) (conflict.Status, model.Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, err := readMeta(ctx, s.db)
	if err != nil {
		return conflict.Unchanged, model.Metadata{}, ioErr("read metadata from", s.path, err)
	}
	switch {
	case row.revision == s.lastRevision:
		return conflict.Unchanged, row.meta, nil
	case row.meta.InstanceID == s.instanceID:
		return conflict.ChangedBySelf, row.meta, nil
	default:
		return conflict.ChangedExternally, row.meta, nil
	}
}
