package command

import (
	"errors"
	"testing"

	"github.com/vanderheijden86/boardstate/pkg/model"
)

type recorder struct {
	pushed []model.Snapshot
}

func (r *recorder) Push(s model.Snapshot) { r.pushed = append(r.pushed, s) }

// fixture builds a board b1 with columns c1 and c2 and one card k1 in c1.
func fixture(t *testing.T) model.Snapshot {
	t.Helper()
	s := model.Empty()
	ex := NewExecutor(nil)
	_, err := ex.ExecuteBatch(&s,
		CreateBoard{ID: "b1", Name: "Work", CardPrefix: "wrk"},
		CreateColumn{ID: "c1", BoardID: "b1", Name: "Todo", Position: -1},
		CreateColumn{ID: "c2", BoardID: "b1", Name: "Done", Position: -1},
		CreateCard{ID: "k1", ColumnID: "c1", Title: "First", Position: -1},
	)
	if err != nil {
		t.Fatalf("fixture: ExecuteBatch() error = %v", err)
	}
	return s
}

func TestCreateCardNumbering(t *testing.T) {
	s := fixture(t)
	ex := NewExecutor(nil)
	if _, err := ex.Execute(&s, CreateCard{ID: "k2", ColumnID: "c1", Title: "Second", Position: 0}); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	k2 := s.Cards[s.FindCard("k2")]
	if k2.CardNumber != 2 {
		t.Errorf("CardNumber = %d, want 2", k2.CardNumber)
	}
	if k2.Position != 0 {
		t.Errorf("Position = %d, want 0", k2.Position)
	}
	if got := s.Cards[s.FindCard("k1")].Position; got != 1 {
		t.Errorf("k1 Position = %d, want 1", got)
	}
	if got := s.Boards[0].NextCardNumber; got != 3 {
		t.Errorf("NextCardNumber = %d, want 3", got)
	}
	if got := s.Boards[0].CardPrefix; got != "WRK" {
		t.Errorf("CardPrefix = %q, want WRK", got)
	}
	if k2.Priority != model.PriorityMedium {
		t.Errorf("Priority = %q, want medium", k2.Priority)
	}
}

func TestNotFoundLeavesStateUntouched(t *testing.T) {
	tests := []struct {
		name string
		cmd  Command
		kind string
	}{
		{"create card in missing column", CreateCard{ColumnID: "nope", Title: "x", Position: -1}, "column"},
		{"move missing card", MoveCard{CardID: "nope", ColumnID: "c1"}, "card"},
		{"move to missing column", MoveCard{CardID: "k1", ColumnID: "nope"}, "column"},
		{"update missing board", UpdateBoard{BoardID: "nope"}, "board"},
		{"archive missing card", ArchiveCard{CardID: "nope"}, "card"},
		{"restore missing card", RestoreCard{CardID: "nope"}, "archived card"},
		{"activate missing sprint", ActivateSprint{SprintID: "nope"}, "sprint"},
		{"delete missing column", DeleteColumn{ColumnID: "nope"}, "column"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := fixture(t)
			before := s.Clone()
			rec := &recorder{}
			_, err := NewExecutor(rec).Execute(&s, tt.cmd)
			var nf NotFoundError
			if !errors.As(err, &nf) {
				t.Fatalf("Execute() error = %v, want NotFoundError", err)
			}
			if nf.Kind != tt.kind {
				t.Errorf("Kind = %q, want %q", nf.Kind, tt.kind)
			}
			if !s.Equal(before) {
				t.Error("state changed after failed command")
			}
			if len(rec.pushed) != 0 {
				t.Errorf("history pushes = %d, want 0", len(rec.pushed))
			}
		})
	}
}

func TestValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		cmd  Command
	}{
		{"empty title", CreateCard{ColumnID: "c1", Title: "  ", Position: -1}},
		{"bad priority", CreateCard{ColumnID: "c1", Title: "x", Priority: "urgent", Position: -1}},
		{"empty board name", CreateBoard{Name: ""}},
		{"delete non-empty column", DeleteColumn{ColumnID: "c1"}},
		{"duplicate column id", CreateColumn{ID: "c1", BoardID: "b1", Name: "Again"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := fixture(t)
			_, err := NewExecutor(nil).Execute(&s, tt.cmd)
			var ve ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("Execute() error = %v, want ValidationError", err)
			}
		})
	}
}

func TestBatchRollsBackAndRecordsOnce(t *testing.T) {
	s := fixture(t)
	before := s.Clone()
	rec := &recorder{}
	ex := NewExecutor(rec)

	_, err := ex.ExecuteBatch(&s,
		CreateCard{ID: "k2", ColumnID: "c1", Title: "Second", Position: -1},
		MoveCard{CardID: "k2", ColumnID: "c2", Position: 0},
		MoveCard{CardID: "missing", ColumnID: "c2"},
	)
	var be *BatchError
	if !errors.As(err, &be) {
		t.Fatalf("ExecuteBatch() error = %v, want BatchError", err)
	}
	if be.Index != 2 {
		t.Errorf("Index = %d, want 2", be.Index)
	}
	var nf NotFoundError
	if !errors.As(err, &nf) {
		t.Errorf("BatchError should unwrap to NotFoundError, got %v", be.Err)
	}
	if !s.Equal(before) {
		t.Error("batch failure did not roll back")
	}
	if len(rec.pushed) != 0 {
		t.Fatalf("history pushes after failure = %d, want 0", len(rec.pushed))
	}

	applied, err := ex.ExecuteBatch(&s,
		CreateCard{ID: "k2", ColumnID: "c1", Title: "Second", Position: -1},
		MoveCard{CardID: "k2", ColumnID: "c2", Position: 0},
	)
	if err != nil {
		t.Fatalf("ExecuteBatch() error = %v", err)
	}
	if len(applied.Descriptions) != 2 {
		t.Errorf("Descriptions = %v, want 2 entries", applied.Descriptions)
	}
	if len(rec.pushed) != 1 {
		t.Fatalf("history pushes = %d, want 1", len(rec.pushed))
	}
	if !rec.pushed[0].Equal(before) {
		t.Error("recorded snapshot is not the pre-batch state")
	}
}

func TestEmptyBatchRejected(t *testing.T) {
	s := model.Empty()
	if _, err := NewExecutor(nil).ExecuteBatch(&s); err == nil {
		t.Error("expected error for empty batch")
	}
}

func TestMoveCardReindexes(t *testing.T) {
	s := fixture(t)
	ex := NewExecutor(nil)
	for _, c := range []Command{
		CreateCard{ID: "k2", ColumnID: "c1", Title: "Second", Position: -1},
		CreateCard{ID: "k3", ColumnID: "c1", Title: "Third", Position: -1},
		MoveCard{CardID: "k1", ColumnID: "c2", Position: 5},
	} {
		if _, err := ex.Execute(&s, c); err != nil {
			t.Fatalf("Execute(%s) error = %v", c.Description(), err)
		}
	}
	pos := func(id string) int { return s.Cards[s.FindCard(id)].Position }
	if pos("k2") != 0 || pos("k3") != 1 {
		t.Errorf("source positions = %d,%d, want 0,1", pos("k2"), pos("k3"))
	}
	if pos("k1") != 0 {
		t.Errorf("moved position = %d, want 0", pos("k1"))
	}
	if s.Cards[s.FindCard("k1")].ColumnID != "c2" {
		t.Error("card not moved to c2")
	}
}

func TestArchiveRestoreDelete(t *testing.T) {
	s := fixture(t)
	ex := NewExecutor(nil)
	if _, err := ex.Execute(&s, ArchiveCard{CardID: "k1"}); err != nil {
		t.Fatalf("ArchiveCard error = %v", err)
	}
	if s.FindCard("k1") >= 0 || s.FindArchived("k1") < 0 {
		t.Fatal("card not archived")
	}
	if _, err := ex.Execute(&s, RestoreCard{CardID: "k1"}); err != nil {
		t.Fatalf("RestoreCard error = %v", err)
	}
	if s.FindCard("k1") < 0 || len(s.ArchivedCards) != 0 {
		t.Fatal("card not restored")
	}
	if _, err := ex.Execute(&s, DeleteCard{CardID: "k1"}); err != nil {
		t.Fatalf("DeleteCard error = %v", err)
	}
	if len(s.Cards) != 0 {
		t.Errorf("Cards = %d, want 0", len(s.Cards))
	}
}

func TestSprintLifecycle(t *testing.T) {
	s := fixture(t)
	ex := NewExecutor(nil)
	steps := []Command{
		CreateSprint{ID: "s1", BoardID: "b1", Name: "Sprint 1"},
		AssignCardToSprint{CardID: "k1", SprintID: "s1"},
		ActivateSprint{SprintID: "s1"},
	}
	for _, c := range steps {
		if _, err := ex.Execute(&s, c); err != nil {
			t.Fatalf("%s error = %v", c.Description(), err)
		}
	}
	if s.Boards[0].ActiveSprintID != "s1" {
		t.Fatalf("ActiveSprintID = %q, want s1", s.Boards[0].ActiveSprintID)
	}

	if _, err := ex.Execute(&s, CreateSprint{ID: "s2", BoardID: "b1", Name: "Sprint 2"}); err != nil {
		t.Fatal(err)
	}
	if _, err := ex.Execute(&s, ActivateSprint{SprintID: "s2"}); err == nil {
		t.Error("activating a second sprint should fail")
	}

	if _, err := ex.Execute(&s, CompleteSprint{SprintID: "s1"}); err != nil {
		t.Fatalf("CompleteSprint error = %v", err)
	}
	sp := s.Sprints[s.FindSprint("s1")]
	if sp.Status != model.SprintCompleted || sp.EndDate == nil {
		t.Errorf("sprint = %+v, want completed with end date", sp)
	}
	if s.Boards[0].ActiveSprintID != "" {
		t.Error("board still points at completed sprint")
	}

	if _, err := ex.Execute(&s, DeleteSprint{SprintID: "s1"}); err != nil {
		t.Fatalf("DeleteSprint error = %v", err)
	}
	if s.Cards[0].SprintID != "" {
		t.Error("card still assigned to deleted sprint")
	}
}

func TestDeleteBoardCascades(t *testing.T) {
	s := fixture(t)
	ex := NewExecutor(nil)
	if _, err := ex.ExecuteBatch(&s,
		CreateBoard{ID: "b2", Name: "Home"},
		CreateColumn{ID: "h1", BoardID: "b2", Name: "Todo", Position: -1},
		CreateSprint{ID: "s1", BoardID: "b1", Name: "S"},
		ArchiveCard{CardID: "k1"},
		DeleteBoard{BoardID: "b1"},
	); err != nil {
		t.Fatalf("ExecuteBatch() error = %v", err)
	}
	if len(s.Boards) != 1 || s.Boards[0].ID != "b2" {
		t.Errorf("Boards = %+v", s.Boards)
	}
	if len(s.Columns) != 1 || len(s.Sprints) != 0 || len(s.ArchivedCards) != 0 {
		t.Errorf("cascade incomplete: columns=%d sprints=%d archived=%d",
			len(s.Columns), len(s.Sprints), len(s.ArchivedCards))
	}
}

func TestUpdateCardStatusTracksCompletion(t *testing.T) {
	s := fixture(t)
	ex := NewExecutor(nil)
	done := model.StatusDone
	if _, err := ex.Execute(&s, UpdateCard{CardID: "k1", Status: &done}); err != nil {
		t.Fatal(err)
	}
	if s.Cards[0].CompletedAt == nil {
		t.Fatal("CompletedAt not set")
	}
	todo := model.StatusTodo
	if _, err := ex.Execute(&s, UpdateCard{CardID: "k1", Status: &todo}); err != nil {
		t.Fatal(err)
	}
	if s.Cards[0].CompletedAt != nil {
		t.Error("CompletedAt not cleared")
	}
}

func TestDetailsSetAndUpdate(t *testing.T) {
	s := model.Empty()
	ex := NewExecutor(nil)
	create := []Command{
		CreateBoard{ID: "b1", Name: "Work", Details: "team board"},
		CreateColumn{ID: "c1", BoardID: "b1", Name: "Todo", Position: -1},
		CreateCard{ID: "k1", ColumnID: "c1", Title: "First", Details: "write it down", Position: -1},
	}
	applied, err := ex.ExecuteBatch(&s, create...)
	if err != nil {
		t.Fatalf("ExecuteBatch() error = %v", err)
	}
	if got := s.Boards[0].Description; got != "team board" {
		t.Errorf("board Description = %q, want %q", got, "team board")
	}
	if got := s.Cards[0].Description; got != "write it down" {
		t.Errorf("card Description = %q, want %q", got, "write it down")
	}
	if got := applied.Descriptions[0]; got != `Create board "Work"` {
		t.Errorf("Descriptions[0] = %q", got)
	}

	boardText, cardText := "renamed purpose", ""
	if _, err := ex.ExecuteBatch(&s,
		UpdateBoard{BoardID: "b1", Details: &boardText},
		UpdateCard{CardID: "k1", Details: &cardText},
	); err != nil {
		t.Fatalf("ExecuteBatch(update) error = %v", err)
	}
	if got := s.Boards[0].Description; got != boardText {
		t.Errorf("board Description = %q, want %q", got, boardText)
	}
	if got := s.Cards[0].Description; got != "" {
		t.Errorf("card Description = %q, want empty", got)
	}

	if _, err := ex.Execute(&s, UpdateBoard{BoardID: "b1"}); err != nil {
		t.Fatal(err)
	}
	if got := s.Boards[0].Description; got != boardText {
		t.Errorf("nil Details changed board Description to %q", got)
	}
}
