package command

import (
	"fmt"
	"strings"

	"github.com/vanderheijden86/boardstate/pkg/model"
)

// boardColumns returns column indices of boardID ordered by position.
func boardColumns(s *model.Snapshot, boardID string) []int {
	var idx []int
	for i := range s.Columns {
		if s.Columns[i].BoardID == boardID {
			idx = append(idx, i)
		}
	}
	for i := 1; i < len(idx); i++ {
		for j := i; j > 0 && s.Columns[idx[j]].Position < s.Columns[idx[j-1]].Position; j-- {
			idx[j], idx[j-1] = idx[j-1], idx[j]
		}
	}
	return idx
}

func placeColumn(s *model.Snapshot, ci, pos int) {
	id := s.Columns[ci].ID
	var order []int
	for _, i := range boardColumns(s, s.Columns[ci].BoardID) {
		if s.Columns[i].ID != id {
			order = append(order, i)
		}
	}
	pos = insertAt(pos, len(order))
	order = append(order[:pos], append([]int{ci}, order[pos:]...)...)
	for p, i := range order {
		s.Columns[i].Position = p
	}
}

// CreateColumn adds a column to a board. A negative Position appends.
type CreateColumn struct {
	ID       string
	BoardID  string
	Name     string
	Position int
	WIPLimit int
}

func (c CreateColumn) Execute(s *model.Snapshot) error {
	if s.FindBoard(c.BoardID) < 0 {
		return NotFoundError{Kind: "board", ID: c.BoardID}
	}
	if err := requireText("column name", c.Name); err != nil {
		return err
	}
	if c.WIPLimit < 0 {
		return ValidationError{Field: "wip limit", Reason: "cannot be negative"}
	}
	id := c.ID
	if id == "" {
		id = model.NewID()
	}
	if s.FindColumn(id) >= 0 {
		return ValidationError{Field: "column id", Reason: "already exists: " + id}
	}
	s.Columns = append(s.Columns, model.Column{
		ID:       id,
		BoardID:  c.BoardID,
		Name:     strings.TrimSpace(c.Name),
		WIPLimit: c.WIPLimit,
		Position: len(s.Columns) + 1,
	})
	placeColumn(s, len(s.Columns)-1, c.Position)
	return nil
}

func (c CreateColumn) Description() string { return describe("Create", "column", c.Name) }

// UpdateColumn renames, re-limits or repositions a column.
type UpdateColumn struct {
	ColumnID string
	Name     *string
	WIPLimit *int
	Position *int
}

func (c UpdateColumn) Execute(s *model.Snapshot) error {
	ci := s.FindColumn(c.ColumnID)
	if ci < 0 {
		return NotFoundError{Kind: "column", ID: c.ColumnID}
	}
	if c.Name != nil {
		if err := requireText("column name", *c.Name); err != nil {
			return err
		}
	}
	if c.WIPLimit != nil && *c.WIPLimit < 0 {
		return ValidationError{Field: "wip limit", Reason: "cannot be negative"}
	}
	if c.Name != nil {
		s.Columns[ci].Name = strings.TrimSpace(*c.Name)
	}
	if c.WIPLimit != nil {
		s.Columns[ci].WIPLimit = *c.WIPLimit
	}
	if c.Position != nil {
		placeColumn(s, ci, *c.Position)
	}
	return nil
}

func (c UpdateColumn) Description() string { return "Update column " + c.ColumnID }

// DeleteColumn removes an empty column. Columns still holding cards are
// refused so cards are never dropped implicitly.
type DeleteColumn struct {
	ColumnID string
}

func (c DeleteColumn) Execute(s *model.Snapshot) error {
	ci := s.FindColumn(c.ColumnID)
	if ci < 0 {
		return NotFoundError{Kind: "column", ID: c.ColumnID}
	}
	if n := len(s.ColumnCards(c.ColumnID)); n > 0 {
		return ValidationError{Field: "column", Reason: fmt.Sprintf("%s still holds %d cards", c.ColumnID, n)}
	}
	boardID := s.Columns[ci].BoardID
	s.Columns = append(s.Columns[:ci:ci], s.Columns[ci+1:]...)
	for p, i := range boardColumns(s, boardID) {
		s.Columns[i].Position = p
	}
	return nil
}

func (c DeleteColumn) Description() string { return "Delete column " + c.ColumnID }
