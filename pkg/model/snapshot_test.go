package model

import (
	"testing"
	"time"
)

func sampleSnapshot() Snapshot {
	now := Now()
	due := now.Add(48 * time.Hour)
	points := 3
	return Snapshot{
		Boards:  []Board{{ID: "b1", Name: "Work", CardPrefix: "WRK", NextCardNumber: 2, CreatedAt: now, UpdatedAt: now}},
		Columns: []Column{{ID: "c1", BoardID: "b1", Name: "Todo"}},
		Cards: []Card{{
			ID: "k1", ColumnID: "c1", Title: "Fix bug", Priority: PriorityHigh, Status: StatusTodo,
			CardNumber: 1, Points: &points, DueDate: &due, CreatedAt: now, UpdatedAt: now,
		}},
	}
}

func TestCloneIsDeep(t *testing.T) {
	orig := sampleSnapshot()
	clone := orig.Clone()

	*clone.Cards[0].Points = 8
	*clone.Cards[0].DueDate = clone.Cards[0].DueDate.Add(time.Hour)
	clone.Boards[0].Name = "Home"

	if *orig.Cards[0].Points != 3 {
		t.Errorf("Points leaked through clone: got %d", *orig.Cards[0].Points)
	}
	if orig.Boards[0].Name != "Work" {
		t.Errorf("Board name leaked through clone: got %q", orig.Boards[0].Name)
	}
	if orig.Equal(clone) {
		t.Error("Equal() = true for diverged snapshots")
	}
}

func TestEqualTreatsNilAsEmpty(t *testing.T) {
	var zero Snapshot
	if !zero.Equal(Empty()) {
		t.Error("zero snapshot should equal Empty()")
	}
	if !zero.IsEmpty() {
		t.Error("zero snapshot should be empty")
	}
}

func TestColumnCardsOrdersByPosition(t *testing.T) {
	s := Snapshot{Cards: []Card{
		{ID: "a", ColumnID: "c1", Position: 2},
		{ID: "b", ColumnID: "c2", Position: 0},
		{ID: "c", ColumnID: "c1", Position: 0},
		{ID: "d", ColumnID: "c1", Position: 1},
	}}
	got := s.ColumnCards("c1")
	want := []string{"c", "d", "a"}
	if len(got) != len(want) {
		t.Fatalf("ColumnCards() len = %d, want %d", len(got), len(want))
	}
	for i, idx := range got {
		if s.Cards[idx].ID != want[i] {
			t.Errorf("ColumnCards()[%d] = %s, want %s", i, s.Cards[idx].ID, want[i])
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Snapshot)
		wantErr bool
	}{
		{"valid", func(*Snapshot) {}, false},
		{"empty card title", func(s *Snapshot) { s.Cards[0].Title = "  " }, true},
		{"bad status", func(s *Snapshot) { s.Cards[0].Status = "blocked" }, true},
		{"bad priority", func(s *Snapshot) { s.Cards[0].Priority = "urgent" }, true},
		{"column without board", func(s *Snapshot) { s.Columns[0].BoardID = "" }, true},
		{"board without name", func(s *Snapshot) { s.Boards[0].Name = "" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := sampleSnapshot()
			tt.mutate(&s)
			err := s.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMetadataValidate(t *testing.T) {
	m := NewMetadata("inst")
	if err := m.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	m.FormatVersion = 1
	if err := m.Validate(); err == nil {
		t.Error("expected error for format version 1")
	}
}

func TestFormatCardID(t *testing.T) {
	b := Board{CardPrefix: "KAN"}
	if got := b.FormatCardID(12); got != "KAN-12" {
		t.Errorf("FormatCardID() = %q, want KAN-12", got)
	}
	b.CardPrefix = ""
	if got := b.FormatCardID(1); got != "CARD-1" {
		t.Errorf("FormatCardID() = %q, want CARD-1", got)
	}
}
