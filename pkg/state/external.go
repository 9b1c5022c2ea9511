package state

import (
	"context"
	"fmt"
	"time"

	"github.com/vanderheijden86/boardstate/pkg/conflict"
	"github.com/vanderheijden86/boardstate/pkg/debug"
	"github.com/vanderheijden86/boardstate/pkg/metrics"
	"github.com/vanderheijden86/boardstate/pkg/model"
	"github.com/vanderheijden86/boardstate/pkg/watcher"
)

// Action is what the coordinator did about an external change.
type Action int

const (
	ActionIgnored Action = iota
	ActionReloaded
	ActionPrompted
	ActionKeptLocal
)

func (a Action) String() string {
	switch a {
	case ActionIgnored:
		return "ignored"
	case ActionReloaded:
		return "reloaded"
	case ActionPrompted:
		return "prompted"
	case ActionKeptLocal:
		return "kept_local"
	default:
		return fmt.Sprintf("Action(%d)", int(a))
	}
}

// Resolution is the user's answer to a conflict prompt.
type Resolution int

const (
	// Reload discards local edits and reads the file.
	Reload Resolution = iota
	// KeepLocal overwrites the external change with local state.
	KeepLocal
	// LastWriteWins lets the configured resolver pick a side.
	LastWriteWins
)

func (r Resolution) String() string {
	switch r {
	case Reload:
		return "reload"
	case KeepLocal:
		return "keep_local"
	case LastWriteWins:
		return "last_write_wins"
	default:
		return fmt.Sprintf("Resolution(%d)", int(r))
	}
}

// OnExternalChange reacts to a change reported by the watcher. Changes made
// by this process are ignored. A foreign change reloads silently when there
// are no unsaved edits and otherwise raises a conflict for the user.
func (c *Coordinator) OnExternalChange(ctx context.Context, ch watcher.Change) (Action, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.store == nil || !c.opened || c.closed {
		return ActionIgnored, nil
	}
	if ch.Status != conflict.ChangedExternally {
		return ActionIgnored, nil
	}
	if ch.Remote.InstanceID != "" && ch.Remote.InstanceID == c.store.InstanceID() {
		return ActionIgnored, nil
	}

	if !c.dirty {
		if err := c.reloadLocked(ctx); err != nil {
			return ActionIgnored, err
		}
		metrics.ExternalReloads.Inc()
		c.notify(Notification{Kind: NoteReloaded, Change: ch, Metadata: c.lastMeta, Generation: c.generation})
		return ActionReloaded, nil
	}

	c.pending = &PendingConflict{
		Path:        ch.Path,
		Remote:      ch.Remote,
		Fingerprint: ch.Fingerprint,
		DetectedAt:  c.now(),
	}
	debug.Event("warn", "state_conflict", map[string]any{
		"path":    ch.Path,
		"writer":  ch.Remote.InstanceID,
		"removed": ch.Removed,
		"unsaved": len(c.applied),
	})
	c.notify(Notification{Kind: NoteConflict, Change: ch, Generation: c.generation})
	return ActionPrompted, nil
}

// Resolve settles a pending conflict. Without one it does nothing.
func (c *Coordinator) Resolve(ctx context.Context, r Resolution) (Action, error) {
	c.mu.Lock()
	if c.pending == nil || c.store == nil {
		c.mu.Unlock()
		return ActionIgnored, nil
	}
	resume := c.pauseWatch()
	defer resume()

	if r == LastWriteWins {
		local := model.Metadata{
			FormatVersion: model.CurrentFormatVersion,
			InstanceID:    c.store.InstanceID(),
			SavedAt:       c.lastMutation,
		}
		remote := c.pending.Remote
		debug.Log("state: %s", conflict.Explain(c.resolver, local, remote))
		if c.resolver.UseExternal(local, remote) {
			r = Reload
		} else {
			r = KeepLocal
		}
	}

	switch r {
	case Reload:
		defer c.mu.Unlock()
		if err := c.reloadLocked(ctx); err != nil {
			return ActionIgnored, err
		}
		metrics.ExternalReloads.Inc()
		c.notify(Notification{Kind: NoteReloaded, Metadata: c.lastMeta, Generation: c.generation})
		return ActionReloaded, nil
	case KeepLocal:
		if err := c.store.Acknowledge(); err != nil {
			c.mu.Unlock()
			return ActionIgnored, err
		}
		c.pending = nil
		c.failure = nil
		// Edits may have been saved already; force one write of local state.
		if !c.dirty {
			c.markDirtyLocked()
		}
		c.mu.Unlock()
		if err := c.SaveNow(ctx); err != nil {
			return ActionKeptLocal, err
		}
		return ActionKeptLocal, nil
	default:
		c.mu.Unlock()
		return ActionIgnored, fmt.Errorf("unknown resolution %v", r)
	}
}

// pauseWatch holds back change reports while a resolution reads or
// rewrites the file. The returned func resumes them.
func (c *Coordinator) pauseWatch() func() {
	if c.watcher == nil {
		return func() {}
	}
	c.watcher.Pause()
	return c.watcher.Resume
}

// reloadLocked replaces in-memory state with the stored document and drops
// history, which describes a timeline that no longer applies.
func (c *Coordinator) reloadLocked(ctx context.Context) error {
	res, err := c.store.Load(ctx)
	if err != nil {
		return err
	}
	c.snap = res.Snapshot
	c.lastMeta = res.Metadata
	c.history.Clear()
	c.dirty = false
	c.dirtySince = time.Time{}
	c.applied = nil
	c.pending = nil
	c.failure = nil
	c.queuedGen = 0
	c.generation++
	debug.Event("info", "state_reload", map[string]any{
		"path":   c.store.Path(),
		"writer": res.Metadata.InstanceID,
		"cards":  len(res.Snapshot.Cards),
	})
	return nil
}

func (c *Coordinator) watchLoop(changes <-chan watcher.Change, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		case ch := <-changes:
			if _, err := c.OnExternalChange(context.Background(), ch); err != nil {
				c.notify(Notification{Kind: NoteReloadFailed, Change: ch, Err: err})
			}
		}
	}
}
