package model

import (
	"bytes"
	"time"

	json "github.com/goccy/go-json"
)

// Snapshot is a deep, independently owned copy of every mutable collection.
// The zero value is an empty board set.
type Snapshot struct {
	Boards        []Board        `json:"boards"`
	Columns       []Column       `json:"columns"`
	Cards         []Card         `json:"cards"`
	Sprints       []Sprint       `json:"sprints"`
	ArchivedCards []ArchivedCard `json:"archived_cards"`
}

// Empty returns a snapshot with non-nil, empty collections.
func Empty() Snapshot {
	var s Snapshot
	s.Normalize()
	return s
}

// Normalize replaces nil collections with empty ones so the serialized form
// always carries arrays rather than nulls.
func (s *Snapshot) Normalize() {
	if s.Boards == nil {
		s.Boards = []Board{}
	}
	if s.Columns == nil {
		s.Columns = []Column{}
	}
	if s.Cards == nil {
		s.Cards = []Card{}
	}
	if s.Sprints == nil {
		s.Sprints = []Sprint{}
	}
	if s.ArchivedCards == nil {
		s.ArchivedCards = []ArchivedCard{}
	}
}

// IsEmpty reports whether every collection is empty.
func (s *Snapshot) IsEmpty() bool {
	return len(s.Boards) == 0 && len(s.Columns) == 0 && len(s.Cards) == 0 &&
		len(s.Sprints) == 0 && len(s.ArchivedCards) == 0
}

// Clone returns a deep copy that shares no memory with s.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{
		Boards:        append([]Board(nil), s.Boards...),
		Columns:       append([]Column(nil), s.Columns...),
		Cards:         make([]Card, len(s.Cards)),
		Sprints:       make([]Sprint, len(s.Sprints)),
		ArchivedCards: make([]ArchivedCard, len(s.ArchivedCards)),
	}
	for i := range s.Cards {
		out.Cards[i] = cloneCard(s.Cards[i])
	}
	for i, sp := range s.Sprints {
		sp.StartDate = cloneTime(sp.StartDate)
		sp.EndDate = cloneTime(sp.EndDate)
		out.Sprints[i] = sp
	}
	for i, ac := range s.ArchivedCards {
		ac.Card = cloneCard(ac.Card)
		out.ArchivedCards[i] = ac
	}
	out.Normalize()
	return out
}

func cloneCard(c Card) Card {
	if c.Points != nil {
		p := *c.Points
		c.Points = &p
	}
	c.DueDate = cloneTime(c.DueDate)
	c.CompletedAt = cloneTime(c.CompletedAt)
	return c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// Equal reports whether two snapshots serialize identically. Nil and empty
// collections compare equal.
func (s Snapshot) Equal(other Snapshot) bool {
	a, errA := s.canonical()
	b, errB := other.canonical()
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(a, b)
}

func (s Snapshot) canonical() ([]byte, error) {
	c := s.Clone()
	return json.Marshal(c)
}

// FindBoard returns the index of the board with id, or -1.
func (s *Snapshot) FindBoard(id string) int {
	for i := range s.Boards {
		if s.Boards[i].ID == id {
			return i
		}
	}
	return -1
}

// FindColumn returns the index of the column with id, or -1.
func (s *Snapshot) FindColumn(id string) int {
	for i := range s.Columns {
		if s.Columns[i].ID == id {
			return i
		}
	}
	return -1
}

// FindCard returns the index of the card with id, or -1.
func (s *Snapshot) FindCard(id string) int {
	for i := range s.Cards {
		if s.Cards[i].ID == id {
			return i
		}
	}
	return -1
}

// FindSprint returns the index of the sprint with id, or -1.
func (s *Snapshot) FindSprint(id string) int {
	for i := range s.Sprints {
		if s.Sprints[i].ID == id {
			return i
		}
	}
	return -1
}

// FindArchived returns the index of the archived entry holding card id, or -1.
func (s *Snapshot) FindArchived(cardID string) int {
	for i := range s.ArchivedCards {
		if s.ArchivedCards[i].Card.ID == cardID {
			return i
		}
	}
	return -1
}

// ColumnCards returns the indices of cards in column id ordered by position.
func (s *Snapshot) ColumnCards(columnID string) []int {
	var idx []int
	for i := range s.Cards {
		if s.Cards[i].ColumnID == columnID {
			idx = append(idx, i)
		}
	}
	// insertion sort keeps equal positions in slice order
	for i := 1; i < len(idx); i++ {
		for j := i; j > 0 && s.Cards[idx[j]].Position < s.Cards[idx[j-1]].Position; j-- {
			idx[j], idx[j-1] = idx[j-1], idx[j]
		}
	}
	return idx
}

// BoardOfColumn returns the board index owning column id, or -1.
func (s *Snapshot) BoardOfColumn(columnID string) int {
	ci := s.FindColumn(columnID)
	if ci < 0 {
		return -1
	}
	return s.FindBoard(s.Columns[ci].BoardID)
}

// Validate checks every entity and the references between them.
func (s *Snapshot) Validate() error {
	for i := range s.Boards {
		if err := s.Boards[i].Validate(); err != nil {
			return err
		}
	}
	for i := range s.Columns {
		if err := s.Columns[i].Validate(); err != nil {
			return err
		}
	}
	for i := range s.Cards {
		if err := s.Cards[i].Validate(); err != nil {
			return err
		}
	}
	for i := range s.Sprints {
		if err := s.Sprints[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}
