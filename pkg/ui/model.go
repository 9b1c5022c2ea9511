// Package ui is a bubbletea front end over a state.Coordinator. It renders
// one board as side-by-side columns, maps keys onto commands and surfaces
// save results and external changes in a status line.
package ui

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/vanderheijden86/boardstate/pkg/command"
	"github.com/vanderheijden86/boardstate/pkg/model"
	"github.com/vanderheijden86/boardstate/pkg/state"
)

// DefaultSaveTick is how often the model asks the coordinator to save.
const DefaultSaveTick = 250 * time.Millisecond

const minColumnWidth = 18

// Model is the board view.
type Model struct {
	ctx      context.Context
	coord    *state.Coordinator
	theme    Theme
	path     string
	saveTick time.Duration
	now      func() time.Time

	board  int
	column int
	card   int

	adding bool
	input  textinput.Model

	message string
	err     error

	width  int
	height int
}

// ModelOption configures a Model.
type ModelOption func(*Model)

// WithTheme overrides DefaultTheme.
func WithTheme(t Theme) ModelOption {
	return func(m *Model) { m.theme = t }
}

// WithPath sets the file path shown in the status line.
func WithPath(path string) ModelOption {
	return func(m *Model) { m.path = path }
}

// WithSaveTick sets the SaveIfNeeded polling interval.
func WithSaveTick(d time.Duration) ModelOption {
	return func(m *Model) {
		if d > 0 {
			m.saveTick = d
		}
	}
}

// NewModel builds a view over an opened coordinator.
func NewModel(ctx context.Context, c *state.Coordinator, opts ...ModelOption) Model {
	ti := textinput.New()
	ti.Placeholder = "card title"
	ti.CharLimit = 200
	ti.Width = 40

	m := Model{
		ctx:      ctx,
		coord:    c,
		theme:    DefaultTheme(lipgloss.DefaultRenderer()),
		saveTick: DefaultSaveTick,
		now:      time.Now,
		input:    ti,
		width:    100,
		height:   30,
	}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(WaitForNotificationCmd(m.coord), SaveTickCmd(m.saveTick))
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case SaveTickMsg:
		if _, err := m.coord.SaveIfNeeded(); err != nil {
			m.err = err
		}
		return m, SaveTickCmd(m.saveTick)

	case SaveDoneMsg:
		m.err = msg.Err
		if msg.Err == nil {
			m.message = "saved"
		}
		return m, nil

	case ResolvedMsg:
		m.err = msg.Err
		if msg.Err == nil {
			m.message = "conflict resolved: " + msg.Action.String()
		}
		m.clampSelection()
		return m, nil

	case NotificationMsg:
		m.applyNotification(msg.Notification)
		return m, WaitForNotificationCmd(m.coord)

	case tea.KeyMsg:
		if m.adding {
			return m.updateAdding(msg)
		}
		return m.updateKeys(msg)
	}
	return m, nil
}

func (m *Model) applyNotification(n state.Notification) {
	switch n.Kind {
	case state.NoteSaved:
		m.err = nil
	case state.NoteSaveFailed, state.NoteReloadFailed:
		m.err = n.Err
	case state.NoteReloaded:
		m.err = nil
		m.message = "reloaded external changes"
		m.clampSelection()
	case state.NoteConflict:
		m.message = "external change conflicts with unsaved edits"
	}
}

func (m Model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	_, conflicted := m.coord.Conflict()
	if conflicted {
		switch msg.String() {
		case "R":
			return m, ResolveCmd(m.ctx, m.coord, state.Reload)
		case "K":
			return m, ResolveCmd(m.ctx, m.coord, state.KeepLocal)
		case "W":
			return m, ResolveCmd(m.ctx, m.coord, state.LastWriteWins)
		}
	}

	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "left", "h":
		if m.column > 0 {
			m.column--
			m.card = 0
		}
	case "right", "l":
		m.column++
		m.card = 0
	case "up", "k":
		if m.card > 0 {
			m.card--
		}
	case "down", "j":
		m.card++
	case "tab":
		m.board++
		m.column, m.card = 0, 0
	case "<", ">":
		m.moveSelected(msg.String() == ">")
	case "a":
		if _, ok := m.selectedColumn(); ok {
			m.adding = true
			m.input.SetValue("")
			m.input.Focus()
		}
		return m, nil
	case "x":
		if card, ok := m.selectedCard(); ok {
			m.execute(command.ArchiveCard{CardID: card.ID})
		}
	case "u":
		if m.coord.Undo() {
			m.message = "undone"
		} else {
			m.message = "nothing to undo"
		}
	case "ctrl+r":
		if m.coord.Redo() {
			m.message = "redone"
		} else {
			m.message = "nothing to redo"
		}
	case "s":
		return m, SaveNowCmd(m.ctx, m.coord)
	}
	m.clampSelection()
	return m, nil
}

func (m Model) updateAdding(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.adding = false
		m.input.Blur()
		return m, nil
	case tea.KeyEnter:
		m.adding = false
		m.input.Blur()
		if col, ok := m.selectedColumn(); ok {
			m.execute(command.CreateCard{ColumnID: col.ID, Title: m.input.Value(), Position: -1})
		}
		m.clampSelection()
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) execute(cmd command.Command) {
	if _, err := m.coord.Execute(cmd); err != nil {
		m.err = err
		return
	}
	m.err = nil
	m.message = cmd.Description()
}

func (m *Model) moveSelected(forward bool) {
	card, ok := m.selectedCard()
	if !ok {
		return
	}
	snap := m.coord.Snapshot()
	cols := boardColumns(&snap, m.currentBoardID(&snap))
	target := m.column - 1
	if forward {
		target = m.column + 1
	}
	if target < 0 || target >= len(cols) {
		return
	}
	m.execute(command.MoveCard{CardID: card.ID, ColumnID: cols[target].ID, Position: -1})
	if m.err == nil {
		m.column = target
		m.card = len(snap.ColumnCards(cols[target].ID))
	}
}

// boardColumns returns the columns of boardID ordered by position.
func boardColumns(s *model.Snapshot, boardID string) []model.Column {
	var cols []model.Column
	for _, c := range s.Columns {
		if c.BoardID == boardID {
			cols = append(cols, c)
		}
	}
	sort.SliceStable(cols, func(i, j int) bool { return cols[i].Position < cols[j].Position })
	return cols
}

func (m *Model) currentBoardID(s *model.Snapshot) string {
	if m.board < 0 || m.board >= len(s.Boards) {
		return ""
	}
	return s.Boards[m.board].ID
}

func (m *Model) selectedColumn() (model.Column, bool) {
	snap := m.coord.Snapshot()
	cols := boardColumns(&snap, m.currentBoardID(&snap))
	if m.column < 0 || m.column >= len(cols) {
		return model.Column{}, false
	}
	return cols[m.column], true
}

func (m *Model) selectedCard() (model.Card, bool) {
	snap := m.coord.Snapshot()
	cols := boardColumns(&snap, m.currentBoardID(&snap))
	if m.column < 0 || m.column >= len(cols) {
		return model.Card{}, false
	}
	idx := snap.ColumnCards(cols[m.column].ID)
	if m.card < 0 || m.card >= len(idx) {
		return model.Card{}, false
	}
	return snap.Cards[idx[m.card]], true
}

// clampSelection keeps the cursor inside the current snapshot, which may
// have shrunk after an undo or reload.
func (m *Model) clampSelection() {
	snap := m.coord.Snapshot()
	if len(snap.Boards) == 0 {
		m.board, m.column, m.card = 0, 0, 0
		return
	}
	m.board = wrap(m.board, len(snap.Boards))
	cols := boardColumns(&snap, snap.Boards[m.board].ID)
	m.column = clamp(m.column, len(cols))
	if len(cols) == 0 {
		m.card = 0
		return
	}
	m.card = clamp(m.card, len(snap.ColumnCards(cols[m.column].ID)))
}

func clamp(i, n int) int {
	if n == 0 || i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

func wrap(i, n int) int {
	if n == 0 {
		return 0
	}
	return ((i % n) + n) % n
}

// Selection reports the cursor as board, column and card indices.
func (m Model) Selection() (board, column, card int) {
	return m.board, m.column, m.card
}

// Err returns the last error shown in the status line.
func (m Model) Err() error { return m.err }

func (m Model) View() string {
	snap := m.coord.Snapshot()
	var b strings.Builder

	if len(snap.Boards) == 0 {
		b.WriteString(m.theme.Header.Render("no boards"))
		b.WriteString("\n\n")
		b.WriteString(m.theme.MutedText.Render("create one with: kanban -add-board NAME"))
		b.WriteString("\n\n")
		b.WriteString(m.statusLine())
		return b.String()
	}

	board := snap.Boards[wrap(m.board, len(snap.Boards))]
	title := board.Name
	if len(snap.Boards) > 1 {
		title = fmt.Sprintf("%s  (%d/%d, tab for next)", board.Name, wrap(m.board, len(snap.Boards))+1, len(snap.Boards))
	}
	b.WriteString(m.theme.Header.Render(title))
	b.WriteString("\n")

	cols := boardColumns(&snap, board.ID)
	if len(cols) == 0 {
		b.WriteString(m.theme.MutedText.Render("board has no columns"))
	} else {
		colWidth := m.width/len(cols) - 4
		if colWidth < minColumnWidth {
			colWidth = minColumnWidth
		}
		rendered := make([]string, 0, len(cols))
		for i, col := range cols {
			rendered = append(rendered, m.renderColumn(&snap, &board, col, i == m.column, colWidth))
		}
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, rendered...))
	}
	b.WriteString("\n")

	if m.adding {
		b.WriteString("new card: ")
		b.WriteString(m.input.View())
		b.WriteString("\n")
	}
	b.WriteString(m.statusLine())
	return b.String()
}

func (m Model) renderColumn(s *model.Snapshot, board *model.Board, col model.Column, focused bool, width int) string {
	idx := s.ColumnCards(col.ID)
	var header string
	if col.WIPLimit > 0 {
		header = fmt.Sprintf("%s %d/%d", col.Name, len(idx), col.WIPLimit)
	} else {
		header = fmt.Sprintf("%s (%d)", col.Name, len(idx))
	}

	lines := []string{m.theme.Base.Bold(true).Render(truncate(header, width)), ""}
	for pos, i := range idx {
		card := s.Cards[i]
		icon := m.theme.Renderer.NewStyle().Foreground(m.theme.StatusColor(card.Status)).Render(StatusIcon(card.Status))
		label := board.FormatCardID(card.CardNumber) + " " + card.Title
		if p := PriorityIcon(card.Priority); p != "" {
			label = p + " " + label
		}
		line := icon + " " + padRight(truncate(label, width-2), width-2)
		if focused && pos == m.card {
			line = m.theme.Selected.Render(line)
		}
		lines = append(lines, line)
	}
	if len(idx) == 0 {
		lines = append(lines, m.theme.MutedText.Render(padRight("empty", width)))
	}

	style := m.theme.Column.Width(width)
	if focused {
		style = m.theme.Focused.Width(width)
	}
	return style.Render(strings.Join(lines, "\n"))
}

func (m Model) statusLine() string {
	info := StatusFrom(m.coord, m.path)
	info.Message = m.message
	info.Err = m.err
	if state.KindOf(m.err) == state.KindConflict {
		info.Conflict = true
	}
	return RenderStatusLine(m.theme, info, m.width, m.now())
}
