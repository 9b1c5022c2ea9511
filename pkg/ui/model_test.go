package ui

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/vanderheijden86/boardstate/pkg/command"
	"github.com/vanderheijden86/boardstate/pkg/persistence"
	"github.com/vanderheijden86/boardstate/pkg/state"
)

func seededCoordinator(t *testing.T, opts ...state.Option) *state.Coordinator {
	t.Helper()
	c := state.New(opts...)
	if _, err := c.Open(context.Background()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	_, err := c.ExecuteBatch(
		command.CreateBoard{ID: "b1", Name: "Work", CardPrefix: "wk"},
		command.CreateColumn{ID: "todo", BoardID: "b1", Name: "Todo", Position: -1},
		command.CreateColumn{ID: "done", BoardID: "b1", Name: "Done", Position: -1},
		command.CreateCard{ID: "k1", ColumnID: "todo", Title: "First", Position: -1},
		command.CreateCard{ID: "k2", ColumnID: "todo", Title: "Second", Position: -1},
	)
	if err != nil {
		t.Fatalf("ExecuteBatch() error = %v", err)
	}
	return c
}

func press(t *testing.T, m Model, keys ...string) Model {
	t.Helper()
	for _, k := range keys {
		var msg tea.KeyMsg
		switch k {
		case "enter":
			msg = tea.KeyMsg{Type: tea.KeyEnter}
		case "esc":
			msg = tea.KeyMsg{Type: tea.KeyEsc}
		case "tab":
			msg = tea.KeyMsg{Type: tea.KeyTab}
		case "ctrl+r":
			msg = tea.KeyMsg{Type: tea.KeyCtrlR}
		default:
			msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
		}
		updated, _ := m.Update(msg)
		m = updated.(Model)
	}
	return m
}

func TestModelNavigationClamps(t *testing.T) {
	c := seededCoordinator(t)
	m := NewModel(context.Background(), c, WithTheme(TestTheme()))

	m = press(t, m, "j", "j", "j")
	if _, _, card := m.Selection(); card != 1 {
		t.Errorf("card cursor = %d, want clamp at 1", card)
	}
	m = press(t, m, "l", "l", "l")
	if _, col, card := m.Selection(); col != 1 || card != 0 {
		t.Errorf("cursor = col %d card %d, want col 1 card 0", col, card)
	}
	m = press(t, m, "h", "h")
	if _, col, _ := m.Selection(); col != 0 {
		t.Errorf("column cursor = %d, want 0", col)
	}
}

func TestModelMoveUndoRedo(t *testing.T) {
	c := seededCoordinator(t)
	m := NewModel(context.Background(), c, WithTheme(TestTheme()))

	m = press(t, m, ">")
	snap := c.Snapshot()
	if got := snap.Cards[snap.FindCard("k1")].ColumnID; got != "done" {
		t.Fatalf("k1 column = %q after move, want done", got)
	}
	if _, col, _ := m.Selection(); col != 1 {
		t.Errorf("cursor did not follow the moved card: col %d", col)
	}

	m = press(t, m, "u")
	snap = c.Snapshot()
	if got := snap.Cards[snap.FindCard("k1")].ColumnID; got != "todo" {
		t.Errorf("k1 column = %q after undo, want todo", got)
	}
	m = press(t, m, "ctrl+r")
	snap = c.Snapshot()
	if got := snap.Cards[snap.FindCard("k1")].ColumnID; got != "done" {
		t.Errorf("k1 column = %q after redo, want done", got)
	}
	if m.Err() != nil {
		t.Errorf("Err() = %v", m.Err())
	}
}

func TestModelAddAndArchiveCard(t *testing.T) {
	c := seededCoordinator(t)
	m := NewModel(context.Background(), c, WithTheme(TestTheme()))

	m = press(t, m, "a", "N", "e", "w", "enter")
	snap := c.Snapshot()
	if len(snap.ColumnCards("todo")) != 3 {
		t.Fatalf("todo has %d cards after add, want 3", len(snap.ColumnCards("todo")))
	}
	last := snap.Cards[snap.ColumnCards("todo")[2]]
	if last.Title != "New" || last.CardNumber != 3 {
		t.Errorf("new card = %+v", last)
	}

	m = press(t, m, "a", "z", "esc")
	snap = c.Snapshot()
	if got := len(snap.ColumnCards("todo")); got != 3 {
		t.Errorf("esc still created a card: %d", got)
	}

	m = press(t, m, "x")
	snap = c.Snapshot()
	if len(snap.ArchivedCards) != 1 || snap.ArchivedCards[0].Card.ID != "k1" {
		t.Errorf("archived = %+v, want k1", snap.ArchivedCards)
	}
	if !strings.Contains(m.View(), "WK-2") {
		t.Errorf("View() does not show remaining card WK-2:\n%s", m.View())
	}
}

func TestModelEmptyTitleShowsError(t *testing.T) {
	c := seededCoordinator(t)
	m := NewModel(context.Background(), c, WithTheme(TestTheme()))
	m = press(t, m, "a", "enter")
	var verr command.ValidationError
	if !errors.As(m.Err(), &verr) {
		t.Fatalf("Err() = %v, want ValidationError", m.Err())
	}
}

func TestModelSaveTickSaves(t *testing.T) {
	path := filepath.Join(t.TempDir(), "board.json")
	c := seededCoordinator(t,
		state.WithStore(persistence.NewJSONFileStore(path)),
		state.WithMinSaveInterval(0),
	)
	m := NewModel(context.Background(), c, WithTheme(TestTheme()), WithPath(path))

	updated, cmd := m.Update(SaveTickMsg{At: time.Now()})
	m = updated.(Model)
	if cmd == nil {
		t.Fatal("SaveTickMsg did not re-arm the tick")
	}
	if err := c.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if c.IsDirty() {
		t.Error("still dirty after tick-driven save")
	}
	if !strings.Contains(m.View(), path) {
		t.Error("status line does not show the file path")
	}
}

func TestModelSaveNowCmd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "board.json")
	c := seededCoordinator(t, state.WithStore(persistence.NewJSONFileStore(path)))
	m := NewModel(context.Background(), c, WithTheme(TestTheme()))

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("s")})
	if cmd == nil {
		t.Fatal("s returned no command")
	}
	msg, ok := cmd().(SaveDoneMsg)
	if !ok || msg.Err != nil {
		t.Fatalf("save cmd = %#v", msg)
	}
	updated, _ := m.Update(msg)
	if got := updated.(Model).message; got != "saved" {
		t.Errorf("message = %q", got)
	}
}

func TestModelNotifications(t *testing.T) {
	c := seededCoordinator(t)
	m := NewModel(context.Background(), c, WithTheme(TestTheme()))

	boom := errors.New("disk full")
	updated, cmd := m.Update(NotificationMsg{Notification: state.Notification{Kind: state.NoteSaveFailed, Err: boom}})
	m = updated.(Model)
	if cmd == nil {
		t.Error("notification did not re-arm the wait")
	}
	if !errors.Is(m.Err(), boom) {
		t.Errorf("Err() = %v", m.Err())
	}
	updated, _ = m.Update(NotificationMsg{Notification: state.Notification{Kind: state.NoteReloaded}})
	m = updated.(Model)
	if m.Err() != nil || !strings.Contains(m.message, "reloaded") {
		t.Errorf("after reload: err %v message %q", m.Err(), m.message)
	}
}

func TestModelQuit(t *testing.T) {
	c := seededCoordinator(t)
	m := NewModel(context.Background(), c)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("q returned no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q did not quit")
	}
}

func TestViewWithoutBoards(t *testing.T) {
	c := state.New()
	if _, err := c.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	m := NewModel(context.Background(), c, WithTheme(TestTheme()))
	if v := m.View(); !strings.Contains(v, "no boards") || !strings.Contains(v, "in-memory") {
		t.Errorf("View() = %q", v)
	}
}
