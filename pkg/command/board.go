package command

import (
	"strings"

	"github.com/vanderheijden86/boardstate/pkg/model"
)

// CreateBoard adds a new board.
type CreateBoard struct {
	ID          string
	Name        string
	Details     string
	CardPrefix  string
}

func (c CreateBoard) Execute(s *model.Snapshot) error {
	if err := requireText("board name", c.Name); err != nil {
		return err
	}
	id := c.ID
	if id == "" {
		id = model.NewID()
	}
	if s.FindBoard(id) >= 0 {
		return ValidationError{Field: "board id", Reason: "already exists: " + id}
	}
	prefix := strings.ToUpper(strings.TrimSpace(c.CardPrefix))
	now := model.Now()
	s.Boards = append(s.Boards, model.Board{
		ID:             id,
		Name:           strings.TrimSpace(c.Name),
		Description:    c.Details,
		CardPrefix:     prefix,
		NextCardNumber: 1,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	return nil
}

func (c CreateBoard) Description() string { return describe("Create", "board", c.Name) }

// UpdateBoard changes board fields. Nil fields are left alone.
type UpdateBoard struct {
	BoardID     string
	Name        *string
	Details     *string
	CardPrefix  *string
}

func (c UpdateBoard) Execute(s *model.Snapshot) error {
	bi := s.FindBoard(c.BoardID)
	if bi < 0 {
		return NotFoundError{Kind: "board", ID: c.BoardID}
	}
	if c.Name != nil {
		if err := requireText("board name", *c.Name); err != nil {
			return err
		}
	}
	b := &s.Boards[bi]
	if c.Name != nil {
		b.Name = strings.TrimSpace(*c.Name)
	}
	if c.Details != nil {
		b.Description = *c.Details
	}
	if c.CardPrefix != nil {
		b.CardPrefix = strings.ToUpper(strings.TrimSpace(*c.CardPrefix))
	}
	b.UpdatedAt = model.Now()
	return nil
}

func (c UpdateBoard) Description() string { return "Update board " + c.BoardID }

// DeleteBoard removes a board together with its columns, cards, sprints and
// archived cards.
type DeleteBoard struct {
	BoardID string
}

func (c DeleteBoard) Execute(s *model.Snapshot) error {
	bi := s.FindBoard(c.BoardID)
	if bi < 0 {
		return NotFoundError{Kind: "board", ID: c.BoardID}
	}
	cols := make(map[string]bool)
	keptCols := s.Columns[:0:0]
	for _, col := range s.Columns {
		if col.BoardID == c.BoardID {
			cols[col.ID] = true
			continue
		}
		keptCols = append(keptCols, col)
	}
	keptCards := s.Cards[:0:0]
	for _, card := range s.Cards {
		if !cols[card.ColumnID] {
			keptCards = append(keptCards, card)
		}
	}
	keptSprints := s.Sprints[:0:0]
	for _, sp := range s.Sprints {
		if sp.BoardID != c.BoardID {
			keptSprints = append(keptSprints, sp)
		}
	}
	keptArchived := s.ArchivedCards[:0:0]
	for _, ac := range s.ArchivedCards {
		if !cols[ac.OriginalColumnID] {
			keptArchived = append(keptArchived, ac)
		}
	}
	s.Boards = append(s.Boards[:bi:bi], s.Boards[bi+1:]...)
	s.Columns = keptCols
	s.Cards = keptCards
	s.Sprints = keptSprints
	s.ArchivedCards = keptArchived
	return nil
}

func (c DeleteBoard) Description() string { return "Delete board " + c.BoardID }
