// Package history keeps bounded undo and redo stacks of whole-state
// snapshots.
package history

import "github.com/vanderheijden86/boardstate/pkg/model"

// DefaultLimit caps each stack.
const DefaultLimit = 100

// Manager holds the undo and redo stacks. It is not safe for concurrent use;
// the state coordinator owns it.
type Manager struct {
	limit int
	undo  []model.Snapshot
	redo  []model.Snapshot
}

// New returns a manager holding at most limit entries per stack. A
// non-positive limit uses DefaultLimit.
func New(limit int) *Manager {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Manager{limit: limit}
}

// Limit returns the per-stack capacity.
func (m *Manager) Limit() int { return m.limit }

// Push records the state before a new mutation. The oldest entry is evicted
// on overflow and the redo stack is cleared.
func (m *Manager) Push(s model.Snapshot) {
	m.undo = pushBounded(m.undo, s.Clone(), m.limit)
	m.redo = m.redo[:0]
}

// Undo pops the most recent snapshot, saves current onto the redo stack and
// returns the popped snapshot for the caller to install. ok is false when
// there is nothing to undo.
func (m *Manager) Undo(current model.Snapshot) (model.Snapshot, bool) {
	if len(m.undo) == 0 {
		return model.Snapshot{}, false
	}
	prev := m.undo[len(m.undo)-1]
	m.undo = m.undo[:len(m.undo)-1]
	m.redo = pushBounded(m.redo, current.Clone(), m.limit)
	return prev.Clone(), true
}

// Redo mirrors Undo.
func (m *Manager) Redo(current model.Snapshot) (model.Snapshot, bool) {
	if len(m.redo) == 0 {
		return model.Snapshot{}, false
	}
	next := m.redo[len(m.redo)-1]
	m.redo = m.redo[:len(m.redo)-1]
	m.undo = pushBounded(m.undo, current.Clone(), m.limit)
	return next.Clone(), true
}

func (m *Manager) CanUndo() bool  { return len(m.undo) > 0 }
func (m *Manager) CanRedo() bool  { return len(m.redo) > 0 }
func (m *Manager) UndoDepth() int { return len(m.undo) }
func (m *Manager) RedoDepth() int { return len(m.redo) }

// Clear drops both stacks, e.g. after the state was replaced by an
// external reload.
func (m *Manager) Clear() {
	m.undo = nil
	m.redo = nil
}

func pushBounded(stack []model.Snapshot, s model.Snapshot, limit int) []model.Snapshot {
	if len(stack) >= limit {
		// drop oldest; copy down so the backing array does not grow forever
		n := copy(stack, stack[len(stack)-limit+1:])
		stack = stack[:n]
	}
	return append(stack, s)
}
