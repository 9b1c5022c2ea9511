package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/vanderheijden86/boardstate/pkg/state"
)

// StatusInfo is what the status line shows about persistence.
type StatusInfo struct {
	Path      string
	Ephemeral bool
	Dirty     bool
	Unsaved   int
	Pending   int
	LastSaved time.Time
	Conflict  bool
	Undo      int
	Redo      int
	Message   string
	Err       error
}

// StatusFrom reads the coordinator's current persistence state.
func StatusFrom(c *state.Coordinator, path string) StatusInfo {
	undo, redo := c.HistoryDepth()
	_, conflicted := c.Conflict()
	return StatusInfo{
		Path:      path,
		Ephemeral: c.Ephemeral(),
		Dirty:     c.IsDirty(),
		Unsaved:   len(c.UnsavedChanges()),
		Pending:   c.PendingSaves(),
		LastSaved: c.LastSaved(),
		Conflict:  conflicted,
		Undo:      undo,
		Redo:      redo,
	}
}

// RenderStatusLine renders info into a single line of at most width cells.
func RenderStatusLine(t Theme, info StatusInfo, width int, now time.Time) string {
	var parts []string

	switch {
	case info.Conflict:
		parts = append(parts, t.Error.Render("CONFLICT: file changed on disk  [R]eload  [K]eep mine  [W] newest wins"))
	case info.Ephemeral:
		parts = append(parts, t.MutedText.Render("in-memory"))
	case info.Pending > 0:
		parts = append(parts, t.Dirty.Render("saving…"))
	case info.Dirty:
		parts = append(parts, t.Dirty.Render(fmt.Sprintf("● %d unsaved", info.Unsaved)))
	default:
		parts = append(parts, t.Clean.Render("✓ saved "+formatTimeRelAt(info.LastSaved, now)))
	}

	if info.Err != nil {
		parts = append(parts, t.Error.Render(info.Err.Error()))
	} else if info.Message != "" {
		parts = append(parts, t.Status.Render(info.Message))
	}

	parts = append(parts, t.MutedText.Render(fmt.Sprintf("undo %d redo %d", info.Undo, info.Redo)))
	if info.Path != "" {
		parts = append(parts, t.MutedText.Render(info.Path))
	}

	line := strings.Join(parts, "  ")
	if width > 0 && lipgloss.Width(line) > width {
		line = t.Renderer.NewStyle().MaxWidth(width).Render(line)
	}
	return line
}
