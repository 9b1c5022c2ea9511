// Package datasource finds, validates and opens board stores. A board can
// live in a JSON document or a SQLite database; this package decides which
// backend a path needs and which of several candidate files is freshest.
package datasource

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vanderheijden86/boardstate/pkg/persistence"
)

// SourceType identifies the storage backend of a source.
type SourceType string

const (
	// SourceTypeJSON is a versioned JSON board document.
	SourceTypeJSON SourceType = "json"
	// SourceTypeSQLite is a SQLite board database.
	SourceTypeSQLite SourceType = "sqlite"
)

// Priority values for source types (higher = more authoritative)
const (
	PrioritySQLite = 100
	PriorityJSON   = 50
)

// defaultValidateConcurrency bounds parallel validation in DiscoverSources.
const defaultValidateConcurrency = 4

// DataSource represents a candidate board store on disk.
type DataSource struct {
	// Type identifies the source type
	Type SourceType `json:"type"`
	// Path is the absolute path to the source file
	Path string `json:"path"`
	// Priority determines preference when timestamps are equal (higher = preferred)
	Priority int `json:"priority"`
	// ModTime is the last modification time of the source
	ModTime time.Time `json:"mod_time"`
	// Size is the file size in bytes
	Size int64 `json:"size"`
	// Valid indicates whether the source passed validation
	Valid bool `json:"valid"`
	// ValidationError describes why validation failed (if Valid is false)
	ValidationError string `json:"validation_error,omitempty"`
	// FormatVersion is the document version found during validation
	FormatVersion int `json:"format_version,omitempty"`
	// WriterID is the instance that last saved the source, if recorded
	WriterID string `json:"writer_id,omitempty"`
	// BoardCount and CardCount are set during validation
	BoardCount int `json:"board_count"`
	CardCount  int `json:"card_count"`
}

// String returns a human-readable description of the source
func (s DataSource) String() string {
	status := "valid"
	if !s.Valid {
		status = fmt.Sprintf("invalid: %s", s.ValidationError)
	}
	return fmt.Sprintf("%s (%s, v%d, mod=%s, boards=%d, cards=%d, %s)",
		s.Path, s.Type, s.FormatVersion, s.ModTime.Format(time.RFC3339), s.BoardCount, s.CardCount, status)
}

// DetectType picks a backend from the file extension. Anything that is not
// a recognised database extension is treated as JSON.
func DetectType(path string) SourceType {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		return SourceTypeSQLite
	default:
		return SourceTypeJSON
	}
}

// ParseType maps a configured backend name to a SourceType. An empty name
// falls back to DetectType(path).
func ParseType(name, path string) (SourceType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "":
		return DetectType(path), nil
	case string(SourceTypeJSON):
		return SourceTypeJSON, nil
	case string(SourceTypeSQLite):
		return SourceTypeSQLite, nil
	default:
		return "", fmt.Errorf("unknown backend %q", name)
	}
}

func priorityOf(t SourceType) int {
	if t == SourceTypeSQLite {
		return PrioritySQLite
	}
	return PriorityJSON
}

// DiscoveryOptions configures source discovery behavior
type DiscoveryOptions struct {
	// Dir is the directory to scan (uses cwd if empty)
	Dir string
	// ValidateAfterDiscovery runs validation on each discovered source
	ValidateAfterDiscovery bool
	// IncludeInvalid includes sources that failed validation in results
	IncludeInvalid bool
	// Concurrency bounds parallel validation (default 4)
	Concurrency int
	// Verbose enables detailed logging during discovery
	Verbose bool
	// Logger receives log messages when Verbose is true
	Logger func(msg string)
}

// DiscoverSources finds board files in a directory, newest first.
func DiscoverSources(ctx context.Context, opts DiscoveryOptions) ([]DataSource, error) {
	if opts.Logger == nil {
		opts.Logger = func(string) {}
	}
	dir := opts.Dir
	if dir == "" {
		var err error
		dir, err = os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}

	if opts.Verbose {
		opts.Logger(fmt.Sprintf("Discovering sources in: %s", dir))
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	var sources []DataSource
	for _, e := range entries {
		if e.IsDir() || !isCandidate(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		path := filepath.Join(dir, e.Name())
		typ := DetectType(path)
		sources = append(sources, DataSource{
			Type:     typ,
			Path:     path,
			Priority: priorityOf(typ),
			ModTime:  info.ModTime(),
			Size:     info.Size(),
		})
		if opts.Verbose {
			opts.Logger(fmt.Sprintf("Found %s: %s (mod=%s)", typ, path, info.ModTime().Format(time.RFC3339)))
		}
	}

	if opts.ValidateAfterDiscovery {
		limit := opts.Concurrency
		if limit <= 0 {
			limit = defaultValidateConcurrency
		}
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(limit)
		for i := range sources {
			src := &sources[i]
			g.Go(func() error {
				// A bad file is a result, not a discovery failure.
				if err := ValidateSource(gctx, src); err != nil && opts.Verbose {
					opts.Logger(fmt.Sprintf("Validation failed for %s: %v", src.Path, err))
				}
				return gctx.Err()
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	// Filter out invalid sources if not including them
	if opts.ValidateAfterDiscovery && !opts.IncludeInvalid {
		var validSources []DataSource
		for _, s := range sources {
			if s.Valid {
				validSources = append(validSources, s)
			}
		}
		sources = validSources
	}

	// Sort by mod time, then priority
	sort.Slice(sources, func(i, j int) bool {
		if sources[i].ModTime.Equal(sources[j].ModTime) {
			return sources[i].Priority > sources[j].Priority
		}
		return sources[i].ModTime.After(sources[j].ModTime)
	})

	if opts.Verbose {
		opts.Logger(fmt.Sprintf("Discovered %d sources", len(sources)))
	}

	return sources, nil
}

// isCandidate filters directory entries down to board files, skipping
// migration backups, temp files from atomic writes and SQLite side files.
func isCandidate(name string) bool {
	if persistence.IsTempFile(name) || strings.HasSuffix(name, persistence.BackupSuffix) {
		return false
	}
	if strings.HasSuffix(name, "-wal") || strings.HasSuffix(name, "-shm") || strings.HasSuffix(name, "-journal") {
		return false
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".db", ".sqlite", ".sqlite3":
		return true
	default:
		return false
	}
}

// SelectBestSource returns the freshest valid source, preferring higher
// priority on ties.
func SelectBestSource(sources []DataSource) (DataSource, error) {
	var (
		best  DataSource
		found bool
	)
	for _, s := range sources {
		if !s.Valid {
			continue
		}
		if !found ||
			s.ModTime.After(best.ModTime) ||
			(s.ModTime.Equal(best.ModTime) && s.Priority > best.Priority) {
			best = s
			found = true
		}
	}
	if !found {
		return DataSource{}, fmt.Errorf("no valid sources among %d candidates", len(sources))
	}
	return best, nil
}
