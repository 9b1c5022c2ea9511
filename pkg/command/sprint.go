package command

import (
	"fmt"
	"strings"
	"time"

	"github.com/vanderheijden86/boardstate/pkg/model"
)

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}

// CreateSprint adds a sprint in the planning state.
type CreateSprint struct {
	ID        string
	BoardID   string
	Name      string
	StartDate *time.Time
	EndDate   *time.Time
}

func (c CreateSprint) Execute(s *model.Snapshot) error {
	if s.FindBoard(c.BoardID) < 0 {
		return NotFoundError{Kind: "board", ID: c.BoardID}
	}
	if err := requireText("sprint name", c.Name); err != nil {
		return err
	}
	if c.StartDate != nil && c.EndDate != nil && c.EndDate.Before(*c.StartDate) {
		return ValidationError{Field: "sprint dates", Reason: "end date before start date"}
	}
	id := c.ID
	if id == "" {
		id = model.NewID()
	}
	if s.FindSprint(id) >= 0 {
		return ValidationError{Field: "sprint id", Reason: "already exists: " + id}
	}
	now := model.Now()
	s.Sprints = append(s.Sprints, model.Sprint{
		ID:        id,
		BoardID:   c.BoardID,
		Name:      strings.TrimSpace(c.Name),
		Status:    model.SprintPlanning,
		StartDate: utcPtr(c.StartDate),
		EndDate:   utcPtr(c.EndDate),
		CreatedAt: now,
		UpdatedAt: now,
	})
	return nil
}

func (c CreateSprint) Description() string { return describe("Create", "sprint", c.Name) }

// UpdateSprint changes sprint name or dates.
type UpdateSprint struct {
	SprintID  string
	Name      *string
	StartDate *time.Time
	EndDate   *time.Time
}

func (c UpdateSprint) Execute(s *model.Snapshot) error {
	si := s.FindSprint(c.SprintID)
	if si < 0 {
		return NotFoundError{Kind: "sprint", ID: c.SprintID}
	}
	if c.Name != nil {
		if err := requireText("sprint name", *c.Name); err != nil {
			return err
		}
	}
	sp := s.Sprints[si]
	if c.Name != nil {
		sp.Name = strings.TrimSpace(*c.Name)
	}
	if c.StartDate != nil {
		sp.StartDate = utcPtr(c.StartDate)
	}
	if c.EndDate != nil {
		sp.EndDate = utcPtr(c.EndDate)
	}
	if sp.StartDate != nil && sp.EndDate != nil && sp.EndDate.Before(*sp.StartDate) {
		return ValidationError{Field: "sprint dates", Reason: "end date before start date"}
	}
	sp.UpdatedAt = model.Now()
	s.Sprints[si] = sp
	return nil
}

func (c UpdateSprint) Description() string { return "Update sprint " + c.SprintID }

// sprintAndBoard resolves a sprint and its board.
func sprintAndBoard(s *model.Snapshot, sprintID string) (int, int, error) {
	si := s.FindSprint(sprintID)
	if si < 0 {
		return -1, -1, NotFoundError{Kind: "sprint", ID: sprintID}
	}
	bi := s.FindBoard(s.Sprints[si].BoardID)
	if bi < 0 {
		return -1, -1, NotFoundError{Kind: "board", ID: s.Sprints[si].BoardID}
	}
	return si, bi, nil
}

// ActivateSprint starts a planned sprint and makes it the board's active
// sprint. Only one sprint per board may be active.
type ActivateSprint struct {
	SprintID string
}

func (c ActivateSprint) Execute(s *model.Snapshot) error {
	si, bi, err := sprintAndBoard(s, c.SprintID)
	if err != nil {
		return err
	}
	sp := &s.Sprints[si]
	if sp.Status != model.SprintPlanning {
		return ValidationError{Field: "sprint status", Reason: fmt.Sprintf("cannot activate a %s sprint", sp.Status)}
	}
	board := &s.Boards[bi]
	if board.ActiveSprintID != "" && board.ActiveSprintID != sp.ID {
		return ValidationError{Field: "active sprint", Reason: "board already has active sprint " + board.ActiveSprintID}
	}
	now := model.Now()
	sp.Status = model.SprintActive
	if sp.StartDate == nil {
		start := now
		sp.StartDate = &start
	}
	sp.UpdatedAt = now
	board.ActiveSprintID = sp.ID
	board.UpdatedAt = now
	return nil
}

func (c ActivateSprint) Description() string { return "Activate sprint " + c.SprintID }

// closeSprint moves an active or planned sprint into a closed state and
// clears the board's active sprint pointer in the same step.
func closeSprint(s *model.Snapshot, sprintID string, to model.SprintStatus) error {
	si, bi, err := sprintAndBoard(s, sprintID)
	if err != nil {
		return err
	}
	sp := &s.Sprints[si]
	if sp.Status.IsClosed() {
		return ValidationError{Field: "sprint status", Reason: fmt.Sprintf("sprint is already %s", sp.Status)}
	}
	now := model.Now()
	sp.Status = to
	if to == model.SprintCompleted && sp.EndDate == nil {
		end := now
		sp.EndDate = &end
	}
	sp.UpdatedAt = now
	board := &s.Boards[bi]
	if board.ActiveSprintID == sp.ID {
		board.ActiveSprintID = ""
		board.UpdatedAt = now
	}
	return nil
}

// CompleteSprint finishes a sprint.
type CompleteSprint struct {
	SprintID string
}

func (c CompleteSprint) Execute(s *model.Snapshot) error {
	si := s.FindSprint(c.SprintID)
	if si >= 0 && s.Sprints[si].Status != model.SprintActive {
		return ValidationError{Field: "sprint status", Reason: "only an active sprint can be completed"}
	}
	return closeSprint(s, c.SprintID, model.SprintCompleted)
}

func (c CompleteSprint) Description() string { return "Complete sprint " + c.SprintID }

// CancelSprint abandons a planned or active sprint.
type CancelSprint struct {
	SprintID string
}

func (c CancelSprint) Execute(s *model.Snapshot) error {
	return closeSprint(s, c.SprintID, model.SprintCancelled)
}

func (c CancelSprint) Description() string { return "Cancel sprint " + c.SprintID }

// DeleteSprint removes a sprint and unassigns its cards.
type DeleteSprint struct {
	SprintID string
}

func (c DeleteSprint) Execute(s *model.Snapshot) error {
	si, bi, err := sprintAndBoard(s, c.SprintID)
	if err != nil {
		return err
	}
	for i := range s.Cards {
		if s.Cards[i].SprintID == c.SprintID {
			s.Cards[i].SprintID = ""
		}
	}
	for i := range s.ArchivedCards {
		if s.ArchivedCards[i].Card.SprintID == c.SprintID {
			s.ArchivedCards[i].Card.SprintID = ""
		}
	}
	if s.Boards[bi].ActiveSprintID == c.SprintID {
		s.Boards[bi].ActiveSprintID = ""
	}
	s.Sprints = append(s.Sprints[:si:si], s.Sprints[si+1:]...)
	return nil
}

func (c DeleteSprint) Description() string { return "Delete sprint " + c.SprintID }

// AssignCardToSprint puts a card into a sprint of the same board.
type AssignCardToSprint struct {
	CardID   string
	SprintID string
}

func (c AssignCardToSprint) Execute(s *model.Snapshot) error {
	ci := s.FindCard(c.CardID)
	if ci < 0 {
		return NotFoundError{Kind: "card", ID: c.CardID}
	}
	si, bi, err := sprintAndBoard(s, c.SprintID)
	if err != nil {
		return err
	}
	if s.Sprints[si].Status.IsClosed() {
		return ValidationError{Field: "sprint status", Reason: "cannot assign to a closed sprint"}
	}
	if s.BoardOfColumn(s.Cards[ci].ColumnID) != bi {
		return ValidationError{Field: "sprint", Reason: "sprint belongs to a different board"}
	}
	s.Cards[ci].SprintID = c.SprintID
	s.Cards[ci].UpdatedAt = model.Now()
	return nil
}

func (c AssignCardToSprint) Description() string {
	return "Assign card " + c.CardID + " to sprint " + c.SprintID
}

// UnassignCardFromSprint clears a card's sprint.
type UnassignCardFromSprint struct {
	CardID string
}

func (c UnassignCardFromSprint) Execute(s *model.Snapshot) error {
	ci := s.FindCard(c.CardID)
	if ci < 0 {
		return NotFoundError{Kind: "card", ID: c.CardID}
	}
	s.Cards[ci].SprintID = ""
	s.Cards[ci].UpdatedAt = model.Now()
	return nil
}

func (c UnassignCardFromSprint) Description() string { return "Unassign card " + c.CardID }
