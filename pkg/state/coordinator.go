// Package state owns the in-memory board, routes mutations through the
// command executor and history, and schedules saves on a background worker.
//
// A Coordinator is driven from one event timeline. Its mutex exists only so
// the save worker and the external change watcher can report back from
// their own goroutines.
package state

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vanderheijden86/boardstate/pkg/command"
	"github.com/vanderheijden86/boardstate/pkg/conflict"
	"github.com/vanderheijden86/boardstate/pkg/debug"
	"github.com/vanderheijden86/boardstate/pkg/history"
	"github.com/vanderheijden86/boardstate/pkg/model"
	"github.com/vanderheijden86/boardstate/pkg/persistence"
	"github.com/vanderheijden86/boardstate/pkg/watcher"
	"github.com/vanderheijden86/boardstate/pkg/worker"
)

var (
	ErrNotOpen = errors.New("coordinator not opened")
	ErrOpen    = errors.New("coordinator already opened")
	ErrClosed  = errors.New("coordinator closed")
)

const notifyBacklog = 16

// NotificationKind says what a Notification reports.
type NotificationKind int

const (
	NoteSaved NotificationKind = iota
	NoteSaveFailed
	NoteReloaded
	NoteReloadFailed
	NoteConflict
)

func (k NotificationKind) String() string {
	switch k {
	case NoteSaved:
		return "saved"
	case NoteSaveFailed:
		return "save_failed"
	case NoteReloaded:
		return "reloaded"
	case NoteReloadFailed:
		return "reload_failed"
	case NoteConflict:
		return "conflict"
	default:
		return fmt.Sprintf("NotificationKind(%d)", int(k))
	}
}

// Notification is an asynchronous event for the UI.
type Notification struct {
	Kind       NotificationKind
	Generation uint64
	Metadata   model.Metadata
	Change     watcher.Change
	Err        error
	At         time.Time
}

// PendingConflict is an external change that collides with unsaved edits.
// No save is attempted until it is resolved.
type PendingConflict struct {
	Path        string
	Remote      model.Metadata
	Fingerprint conflict.Fingerprint
	DetectedAt  time.Time
}

func (p *PendingConflict) err() error {
	return &persistence.ConflictError{Path: p.Path, Remote: p.Remote, Current: p.Fingerprint}
}

// Coordinator owns the board state of one process.
type Coordinator struct {
	store         persistence.Store
	watcher       *watcher.Watcher
	resolver      conflict.Resolver
	now           func() time.Time
	minInterval   time.Duration
	maxDelay      time.Duration
	historyLimit  int
	queueCapacity int

	mu           sync.Mutex
	snap         model.Snapshot
	history      *history.Manager
	exec         *command.Executor
	worker       *worker.SaveWorker
	dirty        bool
	dirtySince   time.Time
	lastMutation time.Time
	lastSaved    time.Time
	lastQueued   time.Time
	generation   uint64
	queuedGen    uint64
	lastMeta     model.Metadata
	failure      error
	pending      *PendingConflict
	applied      []string
	opened       bool
	closed       bool

	notes     chan Notification
	stopWatch chan struct{}
	watchDone chan struct{}
}

// New returns a coordinator holding an empty board. Call Open to load the
// store and start background saving.
func New(opts ...Option) *Coordinator {
	c := &Coordinator{
		resolver:      conflict.LastWriteWins{},
		now:           time.Now,
		minInterval:   DefaultMinSaveInterval,
		maxDelay:      DefaultMaxSaveDelay,
		historyLimit:  history.DefaultLimit,
		queueCapacity: worker.DefaultCapacity,
		snap:          model.Empty(),
		notes:         make(chan Notification, notifyBacklog),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.history = history.New(c.historyLimit)
	c.exec = command.NewExecutor(c.history)
	return c
}

// Ephemeral reports whether the coordinator has no store.
func (c *Coordinator) Ephemeral() bool { return c.store == nil }

// Open loads the store, starts the save worker and, if configured, the
// watcher. A missing file opens as an empty board.
func (c *Coordinator) Open(ctx context.Context) (persistence.LoadResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return persistence.LoadResult{}, ErrClosed
	}
	if c.opened {
		return persistence.LoadResult{}, ErrOpen
	}

	if c.store == nil {
		c.opened = true
		debug.Log("state: ephemeral mode, nothing will be saved")
		return persistence.LoadResult{Snapshot: c.snap.Clone(), Missing: true}, nil
	}

	res, err := c.store.Load(ctx)
	if err != nil {
		return persistence.LoadResult{}, err
	}
	c.snap = res.Snapshot
	c.lastMeta = res.Metadata
	c.history.Clear()

	c.worker = worker.New(c.store.Save,
		worker.WithCapacity(c.queueCapacity),
		worker.WithOnResult(c.applyResult),
	)
	if err := c.worker.Start(); err != nil {
		return persistence.LoadResult{}, err
	}

	if c.watcher != nil {
		if hooked, ok := c.store.(interface{ SetWriteHook(persistence.WriteHook) }); ok {
			hooked.SetWriteHook(c.watcher.RecordOwnWrite)
		}
		if err := c.watcher.Start(); err != nil {
			_ = c.worker.Stop(ctx)
			return persistence.LoadResult{}, fmt.Errorf("failed to start watcher: %w", err)
		}
		c.stopWatch = make(chan struct{})
		c.watchDone = make(chan struct{})
		go c.watchLoop(c.watcher.Changes(), c.stopWatch, c.watchDone)
	}

	c.opened = true
	debug.Event("info", "state_open", map[string]any{
		"path":     c.store.Path(),
		"cards":    len(res.Snapshot.Cards),
		"migrated": res.Migrated,
		"missing":  res.Missing,
	})
	return res, nil
}

// Execute applies one command. On success the state is marked dirty.
func (c *Coordinator) Execute(cmd command.Command) (command.Applied, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	applied, err := c.exec.Execute(&c.snap, cmd)
	if err != nil {
		return applied, err
	}
	c.markDirtyLocked(applied.Descriptions...)
	return applied, nil
}

// ExecuteBatch applies cmds as one unit with a single history entry.
func (c *Coordinator) ExecuteBatch(cmds ...command.Command) (command.Applied, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	applied, err := c.exec.ExecuteBatch(&c.snap, cmds...)
	if err != nil {
		return applied, err
	}
	c.markDirtyLocked(applied.Descriptions...)
	return applied, nil
}

// Undo installs the previous snapshot. It reports false when there is
// nothing to undo.
func (c *Coordinator) Undo() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev, ok := c.history.Undo(c.snap)
	if !ok {
		return false
	}
	c.snap = prev
	c.markDirtyLocked("undo")
	return true
}

// Redo reinstalls the most recently undone snapshot.
func (c *Coordinator) Redo() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	next, ok := c.history.Redo(c.snap)
	if !ok {
		return false
	}
	c.snap = next
	c.markDirtyLocked("redo")
	return true
}

func (c *Coordinator) markDirtyLocked(descriptions ...string) {
	now := c.now()
	if !c.dirty {
		c.dirtySince = now
	}
	c.dirty = true
	c.lastMutation = now
	c.generation++
	c.applied = append(c.applied, descriptions...)
}

// SaveIfNeeded hands the current snapshot to the save worker when the state
// is dirty and no mutation happened within the minimum save interval, or
// when edits have kept it waiting longer than the maximum save delay. It
// reports whether a save was queued. A failure from an earlier background
// save is returned once; the state stays dirty so the next call retries.
func (c *Coordinator) SaveIfNeeded() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store == nil || c.worker == nil {
		return false, nil
	}
	prior := c.failure
	c.failure = nil
	if c.pending != nil {
		return false, c.pending.err()
	}
	if !c.dirty || c.queuedGen == c.generation {
		return false, prior
	}
	now := c.now()
	if now.Sub(c.lastMutation) < c.minInterval && !c.overdueLocked(now) {
		return false, prior
	}
	if _, err := c.worker.Enqueue(c.snap, c.generation); err != nil {
		return false, err
	}
	c.queuedGen = c.generation
	c.lastQueued = now
	return true, prior
}

// overdueLocked reports whether unsaved edits have waited at least maxDelay
// since they became dirty or were last queued.
func (c *Coordinator) overdueLocked(now time.Time) bool {
	if c.maxDelay <= 0 {
		return false
	}
	since := c.dirtySince
	if c.lastQueued.After(since) {
		since = c.lastQueued
	}
	return !since.IsZero() && now.Sub(since) >= c.maxDelay
}

// SaveNow writes the current state, ignoring the save interval, and blocks
// until the write finishes. Writes queued earlier are flushed first.
func (c *Coordinator) SaveNow(ctx context.Context) error {
	c.mu.Lock()
	if c.store == nil {
		c.mu.Unlock()
		return nil
	}
	if c.worker == nil {
		c.mu.Unlock()
		return ErrNotOpen
	}
	if c.pending != nil {
		err := c.pending.err()
		c.mu.Unlock()
		return err
	}
	if !c.dirty {
		c.mu.Unlock()
		return nil
	}
	snap, gen := c.snap.Clone(), c.generation
	c.queuedGen = gen
	w := c.worker
	c.mu.Unlock()

	res, err := w.Submit(ctx, snap, gen)
	if err != nil {
		return err
	}
	if errors.Is(res.Err, worker.ErrDropped) {
		// A newer snapshot replaced ours in the queue; wait for it instead.
		if err := w.Flush(ctx); err != nil {
			return err
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		failure := c.failure
		c.failure = nil
		return failure
	}
	if res.Err != nil {
		c.mu.Lock()
		c.failure = nil
		c.mu.Unlock()
		return cause(res.Err)
	}
	return nil
}

// Flush waits until every queued save has finished.
func (c *Coordinator) Flush(ctx context.Context) error {
	c.mu.Lock()
	w := c.worker
	c.mu.Unlock()
	if w == nil {
		return nil
	}
	return w.Flush(ctx)
}

// applyResult runs on the worker goroutine after each write.
func (c *Coordinator) applyResult(res worker.Result) {
	note := Notification{Generation: res.Generation, Metadata: res.Metadata, At: res.FinishedAt}

	c.mu.Lock()
	if res.Err == nil {
		c.lastSaved = res.FinishedAt
		c.lastMeta = res.Metadata
		c.failure = nil
		if res.Generation == c.generation {
			c.dirty = false
			c.dirtySince = time.Time{}
			c.applied = nil
		}
		note.Kind = NoteSaved
	} else {
		err := cause(res.Err)
		c.failure = err
		note.Err = err
		if res.Generation == c.queuedGen {
			c.queuedGen = 0
		}
		var conflictErr *persistence.ConflictError
		if errors.As(err, &conflictErr) {
			c.pending = &PendingConflict{
				Path:        conflictErr.Path,
				Remote:      conflictErr.Remote,
				Fingerprint: conflictErr.Current,
				DetectedAt:  c.now(),
			}
			note.Kind = NoteConflict
		} else {
			note.Kind = NoteSaveFailed
		}
	}
	dirty := c.dirty
	c.mu.Unlock()

	debug.Event("debug", "state_save_result", map[string]any{
		"generation": res.Generation,
		"kind":       note.Kind.String(),
		"dirty":      dirty,
	})
	c.notify(note)
}

// cause strips the worker's wrapper so callers see store errors directly.
func cause(err error) error {
	var werr worker.WorkerError
	if errors.As(err, &werr) && werr.Cause != nil {
		return werr.Cause
	}
	return err
}

// Close saves pending edits, then stops the worker and watcher. Queued
// writes are flushed before Close returns.
func (c *Coordinator) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	needSave := c.dirty && c.pending == nil && c.worker != nil
	var errs []error
	if c.dirty && c.pending != nil {
		errs = append(errs, fmt.Errorf("unsaved edits left behind: %w", c.pending.err()))
	}
	c.mu.Unlock()

	if needSave {
		if err := c.SaveNow(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to save on close: %w", err))
		}
	}

	var g errgroup.Group
	if c.worker != nil {
		w := c.worker
		g.Go(func() error { return w.Stop(ctx) })
	}
	if c.watcher != nil && c.stopWatch != nil {
		g.Go(func() error {
			c.watcher.Stop()
			close(c.stopWatch)
			select {
			case <-c.watchDone:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}
	if err := g.Wait(); err != nil {
		errs = append(errs, err)
	}
	if c.store != nil {
		if err := c.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Notifications delivers save outcomes, reloads and conflicts. When the
// reader falls behind older notifications are discarded.
func (c *Coordinator) Notifications() <-chan Notification {
	return c.notes
}

func (c *Coordinator) notify(n Notification) {
	if n.At.IsZero() {
		n.At = c.now()
	}
	for {
		select {
		case c.notes <- n:
			return
		default:
		}
		select {
		case <-c.notes:
		default:
		}
	}
}

// Snapshot returns a copy of the current state.
func (c *Coordinator) Snapshot() model.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap.Clone()
}

// IsDirty reports whether there are mutations not yet confirmed on disk.
func (c *Coordinator) IsDirty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dirty
}

// DirtySince returns when the state first became dirty, or the zero time.
func (c *Coordinator) DirtySince() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dirtySince
}

// LastSaved returns the time of the most recent successful save.
func (c *Coordinator) LastSaved() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSaved
}

// Metadata returns the metadata of the last document read or written.
func (c *Coordinator) Metadata() model.Metadata {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastMeta
}

// UnsavedChanges lists the descriptions of mutations since the last save.
func (c *Coordinator) UnsavedChanges() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.applied...)
}

// Conflict returns the unresolved conflict, if any.
func (c *Coordinator) Conflict() (PendingConflict, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return PendingConflict{}, false
	}
	return *c.pending, true
}

func (c *Coordinator) CanUndo() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.history.CanUndo()
}

func (c *Coordinator) CanRedo() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.history.CanRedo()
}

// HistoryDepth returns the sizes of the undo and redo stacks.
func (c *Coordinator) HistoryDepth() (undo, redo int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.history.UndoDepth(), c.history.RedoDepth()
}

// PendingSaves returns the number of saves queued but not started.
func (c *Coordinator) PendingSaves() int {
	c.mu.Lock()
	w := c.worker
	c.mu.Unlock()
	if w == nil {
		return 0
	}
	return w.Pending()
}
