package ui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/vanderheijden86/boardstate/pkg/state"
)

// NotificationMsg carries one coordinator notification into the update loop.
type NotificationMsg struct {
	state.Notification
}

// SaveTickMsg drives the periodic SaveIfNeeded check.
type SaveTickMsg struct {
	At time.Time
}

// SaveDoneMsg reports the outcome of an explicit save.
type SaveDoneMsg struct {
	Err error
}

// ResolvedMsg reports how a pending conflict was settled.
type ResolvedMsg struct {
	Action state.Action
	Err    error
}

// WaitForNotificationCmd waits for the next coordinator notification. The
// update loop re-issues it after each message, bubbletea style.
func WaitForNotificationCmd(c *state.Coordinator) tea.Cmd {
	return func() tea.Msg {
		if c == nil {
			return nil
		}
		n, ok := <-c.Notifications()
		if !ok {
			return nil
		}
		return NotificationMsg{Notification: n}
	}
}

// SaveTickCmd fires a SaveTickMsg after interval.
func SaveTickCmd(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return SaveTickMsg{At: t}
	})
}

// SaveNowCmd writes immediately and waits for the result.
func SaveNowCmd(ctx context.Context, c *state.Coordinator) tea.Cmd {
	return func() tea.Msg {
		return SaveDoneMsg{Err: c.SaveNow(ctx)}
	}
}

// ResolveCmd settles a pending conflict with r.
func ResolveCmd(ctx context.Context, c *state.Coordinator, r state.Resolution) tea.Cmd {
	return func() tea.Msg {
		action, err := c.Resolve(ctx, r)
		return ResolvedMsg{Action: action, Err: err}
	}
}
