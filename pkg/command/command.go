// Package command holds the mutation units applied to a board snapshot and
// the executor that applies them atomically.
package command

import (
	"fmt"
	"strings"

	"github.com/vanderheijden86/boardstate/pkg/model"
)

// Command is one user-intended change. Implementations are plain values;
// Execute must either fully apply or return an error, and the executor
// rolls the snapshot back on error.
type Command interface {
	Execute(s *model.Snapshot) error
	Description() string
}

// NotFoundError reports a referenced entity that does not exist.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// ValidationError reports a malformed command payload.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func requireText(field, v string) error {
	if strings.TrimSpace(v) == "" {
		return ValidationError{Field: field, Reason: "cannot be empty"}
	}
	return nil
}

// insertAt clamps pos to [0, n]; negative means append.
func insertAt(pos, n int) int {
	if pos < 0 || pos > n {
		return n
	}
	return pos
}

// reindexColumn rewrites card positions in columnID to 0..n-1, keeping order.
func reindexColumn(s *model.Snapshot, columnID string) {
	for pos, i := range s.ColumnCards(columnID) {
		s.Cards[i].Position = pos
	}
}

// placeCard moves the card at index ci to slot pos of its current column.
func placeCard(s *model.Snapshot, ci, pos int) {
	id := s.Cards[ci].ID
	col := s.Cards[ci].ColumnID
	var order []int
	for _, i := range s.ColumnCards(col) {
		if s.Cards[i].ID != id {
			order = append(order, i)
		}
	}
	pos = insertAt(pos, len(order))
	order = append(order[:pos], append([]int{ci}, order[pos:]...)...)
	for p, i := range order {
		s.Cards[i].Position = p
	}
}

func describe(verb, kind, label string) string {
	if label == "" {
		return fmt.Sprintf("%s %s", verb, kind)
	}
	return fmt.Sprintf("%s %s %q", verb, kind, label)
}
