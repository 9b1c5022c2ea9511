// Package model defines the board collections persisted by boardstate and
// the snapshot type that bundles them.
package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewID returns a fresh random identifier for a board entity.
func NewID() string {
	return uuid.NewString()
}

// Now returns the current time in UTC with the monotonic reading stripped,
// so values survive a JSON round trip unchanged.
func Now() time.Time {
	return time.Now().UTC()
}

// Board is a named collection of columns, cards and sprints.
type Board struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Description    string    `json:"description,omitempty"`
	CardPrefix     string    `json:"card_prefix"`
	NextCardNumber int       `json:"next_card_number"`
	ActiveSprintID string    `json:"active_sprint_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Validate checks required fields.
func (b *Board) Validate() error {
	if b.ID == "" {
		return fmt.Errorf("board ID cannot be empty")
	}
	if strings.TrimSpace(b.Name) == "" {
		return fmt.Errorf("board name cannot be empty")
	}
	return nil
}

// FormatCardID renders the human-facing identifier for a card number,
// e.g. "KAN-12".
func (b *Board) FormatCardID(number int) string {
	prefix := b.CardPrefix
	if prefix == "" {
		prefix = "CARD"
	}
	return fmt.Sprintf("%s-%d", prefix, number)
}

// Column is an ordered lane on a board.
type Column struct {
	ID       string `json:"id"`
	BoardID  string `json:"board_id"`
	Name     string `json:"name"`
	Position int    `json:"position"`
	WIPLimit int    `json:"wip_limit,omitempty"`
}

// Validate checks required fields.
func (c *Column) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("column ID cannot be empty")
	}
	if c.BoardID == "" {
		return fmt.Errorf("column %s: board ID cannot be empty", c.ID)
	}
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("column %s: name cannot be empty", c.ID)
	}
	return nil
}

// CardStatus is the workflow state of a card.
type CardStatus string

const (
	StatusTodo       CardStatus = "todo"
	StatusInProgress CardStatus = "in_progress"
	StatusDone       CardStatus = "done"
)

// IsValid reports whether s is a known status.
func (s CardStatus) IsValid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusDone:
		return true
	}
	return false
}

// CardPriority orders cards within a column.
type CardPriority string

const (
	PriorityLow      CardPriority = "low"
	PriorityMedium   CardPriority = "medium"
	PriorityHigh     CardPriority = "high"
	PriorityCritical CardPriority = "critical"
)

// IsValid reports whether p is a known priority.
func (p CardPriority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// Card is a unit of work living in exactly one column.
type Card struct {
	ID          string       `json:"id"`
	ColumnID    string       `json:"column_id"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Priority    CardPriority `json:"priority"`
	Status      CardStatus   `json:"status"`
	Position    int          `json:"position"`
	CardNumber  int          `json:"card_number"`
	SprintID    string       `json:"sprint_id,omitempty"`
	Points      *int         `json:"points,omitempty"`
	DueDate     *time.Time   `json:"due_date,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
}

// Validate checks required fields and enum values.
func (c *Card) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("card ID cannot be empty")
	}
	if strings.TrimSpace(c.Title) == "" {
		return fmt.Errorf("card %s: title cannot be empty", c.ID)
	}
	if c.ColumnID == "" {
		return fmt.Errorf("card %s: column ID cannot be empty", c.ID)
	}
	if !c.Status.IsValid() {
		return fmt.Errorf("card %s: invalid status %q", c.ID, c.Status)
	}
	if !c.Priority.IsValid() {
		return fmt.Errorf("card %s: invalid priority %q", c.ID, c.Priority)
	}
	return nil
}

// SprintStatus is the lifecycle state of a sprint.
type SprintStatus string

const (
	SprintPlanning  SprintStatus = "planning"
	SprintActive    SprintStatus = "active"
	SprintCompleted SprintStatus = "completed"
	SprintCancelled SprintStatus = "cancelled"
)

// IsValid reports whether s is a known sprint status.
func (s SprintStatus) IsValid() bool {
	switch s {
	case SprintPlanning, SprintActive, SprintCompleted, SprintCancelled:
		return true
	}
	return false
}

// IsClosed reports whether the sprint no longer accepts state changes.
func (s SprintStatus) IsClosed() bool {
	return s == SprintCompleted || s == SprintCancelled
}

// Sprint is a time-boxed iteration on a board.
type Sprint struct {
	ID        string       `json:"id"`
	BoardID   string       `json:"board_id"`
	Name      string       `json:"name"`
	Status    SprintStatus `json:"status"`
	StartDate *time.Time   `json:"start_date,omitempty"`
	EndDate   *time.Time   `json:"end_date,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Validate checks required fields.
func (s *Sprint) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("sprint ID cannot be empty")
	}
	if s.BoardID == "" {
		return fmt.Errorf("sprint %s: board ID cannot be empty", s.ID)
	}
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("sprint %s: name cannot be empty", s.ID)
	}
	if !s.Status.IsValid() {
		return fmt.Errorf("sprint %s: invalid status %q", s.ID, s.Status)
	}
	if s.StartDate != nil && s.EndDate != nil && s.EndDate.Before(*s.StartDate) {
		return fmt.Errorf("sprint %s: end date before start date", s.ID)
	}
	return nil
}

// ArchivedCard keeps a removed card along with where it came from, so it
// can be restored to its original column.
type ArchivedCard struct {
	Card             Card      `json:"card"`
	ArchivedAt       time.Time `json:"archived_at"`
	OriginalColumnID string    `json:"original_column_id"`
	OriginalPosition int       `json:"original_position"`
}
