package command

import (
	"strings"
	"time"

	"github.com/vanderheijden86/boardstate/pkg/model"
)

// CreateCard adds a card to a column and assigns it the board's next card
// number. A negative Position appends to the column.
type CreateCard struct {
	ID          string
	ColumnID    string
	Title       string
	Details     string
	Priority    model.CardPriority
	Position    int
}

func (c CreateCard) Execute(s *model.Snapshot) error {
	if err := requireText("card title", c.Title); err != nil {
		return err
	}
	priority := c.Priority
	if priority == "" {
		priority = model.PriorityMedium
	}
	if !priority.IsValid() {
		return ValidationError{Field: "priority", Reason: string(priority)}
	}
	if s.FindColumn(c.ColumnID) < 0 {
		return NotFoundError{Kind: "column", ID: c.ColumnID}
	}
	bi := s.BoardOfColumn(c.ColumnID)
	if bi < 0 {
		return NotFoundError{Kind: "board", ID: s.Columns[s.FindColumn(c.ColumnID)].BoardID}
	}
	id := c.ID
	if id == "" {
		id = model.NewID()
	}
	if s.FindCard(id) >= 0 || s.FindArchived(id) >= 0 {
		return ValidationError{Field: "card id", Reason: "already exists: " + id}
	}

	board := &s.Boards[bi]
	number := board.NextCardNumber
	if number < 1 {
		number = 1
	}
	board.NextCardNumber = number + 1

	now := model.Now()
	s.Cards = append(s.Cards, model.Card{
		ID:          id,
		ColumnID:    c.ColumnID,
		Title:       strings.TrimSpace(c.Title),
		Description: c.Details,
		Priority:    priority,
		Status:      model.StatusTodo,
		CardNumber:  number,
		Position:    len(s.Cards) + 1,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	placeCard(s, len(s.Cards)-1, c.Position)
	return nil
}

func (c CreateCard) Description() string { return describe("Create", "card", c.Title) }

// UpdateCard changes card fields. Nil fields are left alone; ClearDueDate
// and ClearPoints remove those optional values.
type UpdateCard struct {
	CardID       string
	Title        *string
	Details      *string
	Priority     *model.CardPriority
	Status       *model.CardStatus
	Points       *int
	ClearPoints  bool
	DueDate      *time.Time
	ClearDueDate bool
}

func (c UpdateCard) Execute(s *model.Snapshot) error {
	ci := s.FindCard(c.CardID)
	if ci < 0 {
		return NotFoundError{Kind: "card", ID: c.CardID}
	}
	if c.Title != nil {
		if err := requireText("card title", *c.Title); err != nil {
			return err
		}
	}
	if c.Priority != nil && !c.Priority.IsValid() {
		return ValidationError{Field: "priority", Reason: string(*c.Priority)}
	}
	if c.Status != nil && !c.Status.IsValid() {
		return ValidationError{Field: "status", Reason: string(*c.Status)}
	}
	if c.Points != nil && *c.Points < 0 {
		return ValidationError{Field: "points", Reason: "cannot be negative"}
	}

	now := model.Now()
	card := &s.Cards[ci]
	if c.Title != nil {
		card.Title = strings.TrimSpace(*c.Title)
	}
	if c.Details != nil {
		card.Description = *c.Details
	}
	if c.Priority != nil {
		card.Priority = *c.Priority
	}
	if c.Status != nil && *c.Status != card.Status {
		card.Status = *c.Status
		if card.Status == model.StatusDone {
			done := now
			card.CompletedAt = &done
		} else {
			card.CompletedAt = nil
		}
	}
	switch {
	case c.ClearPoints:
		card.Points = nil
	case c.Points != nil:
		p := *c.Points
		card.Points = &p
	}
	switch {
	case c.ClearDueDate:
		card.DueDate = nil
	case c.DueDate != nil:
		d := c.DueDate.UTC()
		card.DueDate = &d
	}
	card.UpdatedAt = now
	return nil
}

func (c UpdateCard) Description() string { return "Update card " + c.CardID }

// MoveCard relocates a card to a position in a column of the same board.
type MoveCard struct {
	CardID   string
	ColumnID string
	Position int
}

func (c MoveCard) Execute(s *model.Snapshot) error {
	ci := s.FindCard(c.CardID)
	if ci < 0 {
		return NotFoundError{Kind: "card", ID: c.CardID}
	}
	if s.FindColumn(c.ColumnID) < 0 {
		return NotFoundError{Kind: "column", ID: c.ColumnID}
	}
	from := s.Cards[ci].ColumnID
	if s.BoardOfColumn(from) != s.BoardOfColumn(c.ColumnID) {
		return ValidationError{Field: "column", Reason: "cannot move card across boards"}
	}
	s.Cards[ci].ColumnID = c.ColumnID
	s.Cards[ci].UpdatedAt = model.Now()
	placeCard(s, ci, c.Position)
	if from != c.ColumnID {
		reindexColumn(s, from)
	}
	return nil
}

func (c MoveCard) Description() string { return "Move card " + c.CardID + " to column " + c.ColumnID }

// ArchiveCard moves a card out of its column into the archive.
type ArchiveCard struct {
	CardID string
}

func (c ArchiveCard) Execute(s *model.Snapshot) error {
	ci := s.FindCard(c.CardID)
	if ci < 0 {
		return NotFoundError{Kind: "card", ID: c.CardID}
	}
	card := s.Cards[ci]
	s.ArchivedCards = append(s.ArchivedCards, model.ArchivedCard{
		Card:             card,
		ArchivedAt:       model.Now(),
		OriginalColumnID: card.ColumnID,
		OriginalPosition: card.Position,
	})
	s.Cards = append(s.Cards[:ci:ci], s.Cards[ci+1:]...)
	reindexColumn(s, card.ColumnID)
	return nil
}

func (c ArchiveCard) Description() string { return "Archive card " + c.CardID }

// RestoreCard returns an archived card to its original column and position.
type RestoreCard struct {
	CardID string
}

func (c RestoreCard) Execute(s *model.Snapshot) error {
	ai := s.FindArchived(c.CardID)
	if ai < 0 {
		return NotFoundError{Kind: "archived card", ID: c.CardID}
	}
	ac := s.ArchivedCards[ai]
	if s.FindColumn(ac.OriginalColumnID) < 0 {
		return NotFoundError{Kind: "column", ID: ac.OriginalColumnID}
	}
	card := ac.Card
	card.ColumnID = ac.OriginalColumnID
	card.UpdatedAt = model.Now()
	s.ArchivedCards = append(s.ArchivedCards[:ai:ai], s.ArchivedCards[ai+1:]...)
	s.Cards = append(s.Cards, card)
	placeCard(s, len(s.Cards)-1, ac.OriginalPosition)
	return nil
}

func (c RestoreCard) Description() string { return "Restore card " + c.CardID }

// DeleteCard removes a card permanently, whether live or archived.
type DeleteCard struct {
	CardID string
}

func (c DeleteCard) Execute(s *model.Snapshot) error {
	if ci := s.FindCard(c.CardID); ci >= 0 {
		col := s.Cards[ci].ColumnID
		s.Cards = append(s.Cards[:ci:ci], s.Cards[ci+1:]...)
		reindexColumn(s, col)
		return nil
	}
	if ai := s.FindArchived(c.CardID); ai >= 0 {
		s.ArchivedCards = append(s.ArchivedCards[:ai:ai], s.ArchivedCards[ai+1:]...)
		return nil
	}
	return NotFoundError{Kind: "card", ID: c.CardID}
}

func (c DeleteCard) Description() string { return "Delete card " + c.CardID }
