package testutil

import (
	"testing"

	"github.com/vanderheijden86/boardstate/pkg/command"
	"github.com/vanderheijden86/boardstate/pkg/model"
)

func TestSnapshotShape(t *testing.T) {
	tests := []struct {
		name string
		cfg  GeneratorConfig
	}{
		{"default", DefaultConfig()},
		{"empty", GeneratorConfig{Seed: 1}},
		{"wide", GeneratorConfig{Seed: 7, Boards: 3, ColumnsPerBoard: 5, CardsPerColumn: 6, SprintsPerBoard: 2, ArchivedPerBoard: 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(tt.cfg).Snapshot()
			c := tt.cfg
			if len(s.Boards) != c.Boards {
				t.Errorf("boards = %d, want %d", len(s.Boards), c.Boards)
			}
			AssertCardCount(t, s, c.Boards*c.ColumnsPerBoard*c.CardsPerColumn)
			AssertNoDuplicateIDs(t, s)
			AssertAllValid(t, s)
		})
	}
}

func TestSnapshotDeterministic(t *testing.T) {
	a := NewDefault().Snapshot()
	b := NewDefault().Snapshot()
	AssertSnapshotEqual(t, a, b)
}

func TestCommandsApplyCleanly(t *testing.T) {
	g := NewDefault()
	s := g.Snapshot()
	cmds := g.Commands(s, 25)
	if len(cmds) != 25 {
		t.Fatalf("Commands() returned %d, want 25", len(cmds))
	}
	ex := command.NewExecutor(nil)
	for i, c := range cmds {
		if _, err := ex.Execute(&s, c); err != nil {
			t.Fatalf("command %d (%s) failed: %v", i, c.Description(), err)
		}
	}
	AssertNoDuplicateIDs(t, s)
}

func TestCommandsFromEmpty(t *testing.T) {
	g := New(GeneratorConfig{Seed: 3})
	s := model.Empty()
	cmds := g.Commands(s, 10)
	if len(cmds) != 10 {
		t.Fatalf("Commands() returned %d, want 10", len(cmds))
	}
	if !s.IsEmpty() {
		t.Error("Commands() modified its input")
	}
}
