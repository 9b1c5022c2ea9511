package datasource

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/vanderheijden86/boardstate/pkg/model"
	"github.com/vanderheijden86/boardstate/pkg/persistence"
)

// SourceDiff represents differences between two board sources
type SourceDiff struct {
	// SourceA is the path of the first source
	SourceA string
	// SourceB is the path of the second source
	SourceB string
	// MissingInA contains card IDs present in B but not in A
	MissingInA []string
	// MissingInB contains card IDs present in A but not in B
	MissingInB []string
	// Mismatches lists cards present in both whose compared fields differ
	Mismatches []CardDifference
	// CountA is the number of cards in source A
	CountA int
	// CountB is the number of cards in source B
	CountB int
}

// CardDifference is a single field that differs for one card.
type CardDifference struct {
	ID    string `json:"id"`
	Field string `json:"field"`
	A     string `json:"a"`
	B     string `json:"b"`
}

// HasInconsistencies returns true if there are any differences between sources
func (d SourceDiff) HasInconsistencies() bool {
	return len(d.MissingInA) > 0 || len(d.MissingInB) > 0 || len(d.Mismatches) > 0
}

// Summary returns a human-readable summary of the differences
func (d SourceDiff) Summary() string {
	if !d.HasInconsistencies() {
		return fmt.Sprintf("Sources match (%d cards each)", d.CountA)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Inconsistencies found between %s and %s:\n", d.SourceA, d.SourceB)
	if d.CountA != d.CountB {
		fmt.Fprintf(&b, "  - Count mismatch: %d vs %d\n", d.CountA, d.CountB)
	}
	listIDs := func(ids []string, in, notIn string) {
		if len(ids) == 0 {
			return
		}
		fmt.Fprintf(&b, "  - %d cards in %s but not %s\n", len(ids), in, notIn)
		if len(ids) <= 5 {
			for _, id := range ids {
				fmt.Fprintf(&b, "    - %s\n", id)
			}
		}
	}
	listIDs(d.MissingInA, d.SourceB, d.SourceA)
	listIDs(d.MissingInB, d.SourceA, d.SourceB)
	if len(d.Mismatches) > 0 {
		fmt.Fprintf(&b, "  - %d field differences\n", len(d.Mismatches))
		if len(d.Mismatches) <= 5 {
			for _, m := range d.Mismatches {
				fmt.Fprintf(&b, "    - %s %s: %q vs %q\n", m.ID, m.Field, m.A, m.B)
			}
		}
	}
	return b.String()
}

// DiffOptions configures the diff operation
type DiffOptions struct {
	// IncludeArchived also compares archived cards by card id
	IncludeArchived bool
	// CompareFields specifies which card fields to compare
	CompareFields []string
	// MaxDifferences limits the number of differences tracked per list (0 = unlimited)
	MaxDifferences int
}

// DefaultDiffOptions returns sensible default diff options
func DefaultDiffOptions() DiffOptions {
	return DiffOptions{
		CompareFields:  []string{"title", "column_id", "status"},
		MaxDifferences: 100,
	}
}

var cardFields = map[string]func(model.Card) string{
	"title":       func(c model.Card) string { return c.Title },
	"description": func(c model.Card) string { return c.Description },
	"column_id":   func(c model.Card) string { return c.ColumnID },
	"status":      func(c model.Card) string { return string(c.Status) },
	"priority":    func(c model.Card) string { return string(c.Priority) },
	"sprint_id":   func(c model.Card) string { return c.SprintID },
	"position":    func(c model.Card) string { return fmt.Sprint(c.Position) },
}

// DetectInconsistencies compares the cards of two snapshots. Results are
// sorted by card id so reports are stable.
func DetectInconsistencies(a, b model.Snapshot, sourceA, sourceB string, opts DiffOptions) SourceDiff {
	diff := SourceDiff{SourceA: sourceA, SourceB: sourceB}

	mapA := cardsByID(a, opts.IncludeArchived)
	mapB := cardsByID(b, opts.IncludeArchived)
	diff.CountA = len(mapA)
	diff.CountB = len(mapB)

	under := func(n int) bool { return opts.MaxDifferences == 0 || n < opts.MaxDifferences }

	for _, id := range sortedKeys(mapA) {
		if _, ok := mapB[id]; !ok && under(len(diff.MissingInB)) {
			diff.MissingInB = append(diff.MissingInB, id)
		}
	}
	for _, id := range sortedKeys(mapB) {
		cardB := mapB[id]
		cardA, ok := mapA[id]
		if !ok {
			if under(len(diff.MissingInA)) {
				diff.MissingInA = append(diff.MissingInA, id)
			}
			continue
		}
		for _, field := range opts.CompareFields {
			get, known := cardFields[field]
			if !known {
				continue
			}
			if va, vb := get(cardA), get(cardB); va != vb && under(len(diff.Mismatches)) {
				diff.Mismatches = append(diff.Mismatches, CardDifference{ID: id, Field: field, A: va, B: vb})
			}
		}
	}
	return diff
}

func cardsByID(s model.Snapshot, archived bool) map[string]model.Card {
	m := make(map[string]model.Card, len(s.Cards))
	for _, c := range s.Cards {
		m[c.ID] = c
	}
	if archived {
		for _, ac := range s.ArchivedCards {
			m[ac.Card.ID] = ac.Card
		}
	}
	return m
}

func sortedKeys(m map[string]model.Card) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// CompareSources loads and compares two data sources
func CompareSources(ctx context.Context, sourceA, sourceB DataSource, opts DiffOptions) (*SourceDiff, error) {
	snapA, err := LoadSnapshot(ctx, sourceA)
	if err != nil {
		return nil, fmt.Errorf("failed to load source A (%s): %w", sourceA.Path, err)
	}
	snapB, err := LoadSnapshot(ctx, sourceB)
	if err != nil {
		return nil, fmt.Errorf("failed to load source B (%s): %w", sourceB.Path, err)
	}
	diff := DetectInconsistencies(snapA, snapB, sourceA.Path, sourceB.Path, opts)
	return &diff, nil
}

// LoadSnapshot reads a source without migrating or locking it.
func LoadSnapshot(ctx context.Context, source DataSource) (model.Snapshot, error) {
	switch source.Type {
	case SourceTypeSQLite:
		reader, err := NewSQLiteReader(source)
		if err != nil {
			return model.Snapshot{}, err
		}
		defer reader.Close()
		return reader.LoadSnapshot(ctx)
	case SourceTypeJSON:
		data, err := os.ReadFile(source.Path)
		if err != nil {
			return model.Snapshot{}, err
		}
		doc, err := persistence.DecodeAny(data)
		if err != nil {
			return model.Snapshot{}, &persistence.SerializationError{Path: source.Path, Err: err}
		}
		return doc.Data, nil
	default:
		return model.Snapshot{}, fmt.Errorf("unsupported source type: %s", source.Type)
	}
}
