package state

import (
	"time"

	"github.com/vanderheijden86/boardstate/pkg/conflict"
	"github.com/vanderheijden86/boardstate/pkg/persistence"
	"github.com/vanderheijden86/boardstate/pkg/watcher"
)

// DefaultMinSaveInterval is the quiet window after the last mutation before
// SaveIfNeeded writes.
const DefaultMinSaveInterval = 500 * time.Millisecond

// DefaultMaxSaveDelay is the longest a stream of mutations can hold back a
// save.
const DefaultMaxSaveDelay = 5 * time.Second

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithStore sets the backing store. Without one the coordinator runs in
// ephemeral mode and saves are no-ops.
func WithStore(s persistence.Store) Option {
	return func(c *Coordinator) {
		c.store = s
	}
}

// WithMinSaveInterval sets the debounce window used by SaveIfNeeded.
func WithMinSaveInterval(d time.Duration) Option {
	return func(c *Coordinator) {
		if d >= 0 {
			c.minInterval = d
		}
	}
}

// WithMaxSaveDelay bounds how long SaveIfNeeded waits for a quiet window
// while mutations keep arriving. Zero turns the bound off.
func WithMaxSaveDelay(d time.Duration) Option {
	return func(c *Coordinator) {
		if d >= 0 {
			c.maxDelay = d
		}
	}
}

// WithHistoryLimit caps the undo and redo stacks.
func WithHistoryLimit(n int) Option {
	return func(c *Coordinator) {
		c.historyLimit = n
	}
}

// WithQueueCapacity bounds the number of pending background saves.
func WithQueueCapacity(n int) Option {
	return func(c *Coordinator) {
		c.queueCapacity = n
	}
}

// WithWatcher reports external changes from w to the coordinator. The
// coordinator starts and stops it.
func WithWatcher(w *watcher.Watcher) Option {
	return func(c *Coordinator) {
		c.watcher = w
	}
}

// WithResolver sets the policy used by Resolve(LastWriteWins).
func WithResolver(r conflict.Resolver) Option {
	return func(c *Coordinator) {
		if r != nil {
			c.resolver = r
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}
