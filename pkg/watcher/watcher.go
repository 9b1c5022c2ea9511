// Package watcher reports changes to a board file made by other processes.
// It uses fsnotify on the parent directory with a polling fallback, and
// filters out events caused by this process's own atomic writes.
package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/vanderheijden86/boardstate/pkg/conflict"
	"github.com/vanderheijden86/boardstate/pkg/debug"
	"github.com/vanderheijden86/boardstate/pkg/metrics"
	"github.com/vanderheijden86/boardstate/pkg/model"
	"github.com/vanderheijden86/boardstate/pkg/persistence"
)

// DefaultPollInterval is the default polling interval for fallback mode.
const DefaultPollInterval = 2 * time.Second

// Common errors.
var (
	ErrFileRemoved    = errors.New("watched file was removed")
	ErrPermission     = errors.New("permission denied")
	ErrAlreadyStarted = errors.New("watcher already started")
)

// Change describes a modification of the watched file not made by this
// process.
type Change struct {
	Path        string
	Status      conflict.Status
	Fingerprint conflict.Fingerprint
	Remote      model.Metadata
	Removed     bool
	DetectedAt  time.Time
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounceDuration sets the debounce duration.
func WithDebounceDuration(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounceDuration = d
	}
}

// WithPollInterval sets the polling interval for fallback mode.
func WithPollInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.pollInterval = d
	}
}

// WithOnChange sets the callback invoked for each external change.
func WithOnChange(fn func(Change)) WatcherOption {
	return func(w *Watcher) {
		w.onChange = fn
	}
}

// WithOnError sets the callback invoked on errors.
func WithOnError(fn func(error)) WatcherOption {
	return func(w *Watcher) {
		w.onError = fn
	}
}

// WithForcePoll forces polling mode even if fsnotify is available.
func WithForcePoll(force bool) WatcherOption {
	return func(w *Watcher) {
		w.forcePoll = force
	}
}

// WithInstanceID makes the watcher treat documents stamped with id as its
// own writes.
func WithInstanceID(id string) WatcherOption {
	return func(w *Watcher) {
		w.instanceID = id
	}
}

// Watcher monitors a file for changes using fsnotify with polling fallback.
type Watcher struct {
	path             string
	instanceID       string
	debounceDuration time.Duration
	pollInterval     time.Duration
	onChange         func(Change)
	onError          func(error)
	forcePoll        bool
	forcePollEnv     bool
	fsType           FilesystemType

	fsWatcher   *fsnotify.Watcher
	debouncer   *Debouncer
	useFallback bool
	lastMtime   time.Time
	lastSize    int64
	lastSeen    conflict.Fingerprint
	own         *ownWrites
	paused      bool

	ctx      context.Context
	cancel   context.CancelFunc
	started  bool
	mu       sync.RWMutex
	evalMu   sync.Mutex
	changeCh chan Change
}

// NewWatcher creates a new file watcher for the given path.
func NewWatcher(path string, opts ...WatcherOption) (*Watcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		path:             absPath,
		debounceDuration: DefaultDebounceDuration,
		pollInterval:     DefaultPollInterval,
		onChange:         func(Change) {},
		onError:          func(error) {},
		own:              newOwnWrites(),
		changeCh:         make(chan Change, 1),
	}

	for _, opt := range opts {
		opt(w)
	}

	w.debouncer = NewDebouncer(w.debounceDuration)

	return w, nil
}

// Start begins watching the file for changes.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		return ErrAlreadyStarted
	}

	w.ctx, w.cancel = context.WithCancel(context.Background())

	// Reset per-start state.
	w.useFallback = false
	w.forcePollEnv = false
	w.fsType = FSTypeUnknown

	if envBool("KANBAN_FORCE_POLLING") || envBool("KANBAN_FORCE_POLL") {
		w.forcePollEnv = true
	}

	w.fsType = DetectFilesystemType(w.path)
	if isRemoteFilesystem(w.fsType) {
		w.useFallback = true
	}

	forcePoll := w.forcePoll || w.forcePollEnv
	if forcePoll {
		w.useFallback = true
	}

	info, err := os.Stat(w.path)
	if err != nil {
		if os.IsPermission(err) {
			w.cancel()
			return ErrPermission
		}
		// File might not exist yet, that's okay
		w.lastMtime = time.Time{}
		w.lastSize = 0
	} else {
		w.lastMtime = info.ModTime()
		w.lastSize = info.Size()
	}
	if fp, err := conflict.Compute(w.path); err == nil {
		w.lastSeen = fp
	}

	if !w.useFallback {
		fsw, err := fsnotify.NewWatcher()
		if err == nil {
			// Watch the directory containing the file (more reliable for atomic writes)
			dir := filepath.Dir(w.path)
			if err := fsw.Add(dir); err != nil {
				fsw.Close()
				w.useFallback = true
			} else {
				w.fsWatcher = fsw
				go w.watchFsnotify(w.ctx, fsw)
			}
		} else {
			w.useFallback = true
		}
	}

	if w.useFallback {
		go w.watchPolling(w.ctx)
	}

	w.started = true
	debug.Log("watching %s (polling=%v, fs=%s)", w.path, w.useFallback, w.fsType)
	return nil
}

// Stop stops watching the file. The Changes channel is left open so a
// goroutine blocked on it is not woken with a zero Change.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.started {
		return
	}

	if w.cancel != nil {
		w.cancel()
	}

	if w.fsWatcher != nil {
		w.fsWatcher.Close()
		w.fsWatcher = nil
	}

	w.debouncer.Cancel()
	w.started = false
}

// Pause suppresses change reports until Resume.
func (w *Watcher) Pause() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.paused = true
}

// Resume re-enables change reports and re-checks the file once, so a change
// made while paused is still reported.
func (w *Watcher) Resume() {
	w.mu.Lock()
	w.paused = false
	started := w.started
	w.mu.Unlock()
	if started {
		w.debouncer.Trigger(w.evaluate)
	}
}

// IsPaused reports whether change reports are suppressed.
func (w *Watcher) IsPaused() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.paused
}

// RecordOwnWrite marks fp as written by this process. It matches
// persistence.WriteHook so a store can report its writes directly.
func (w *Watcher) RecordOwnWrite(path string, fp conflict.Fingerprint) {
	if abs, err := filepath.Abs(path); err != nil || abs != w.path {
		return
	}
	w.own.record(fp)
}

// IsPolling returns true if the watcher is using polling mode.
func (w *Watcher) IsPolling() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.useFallback
}

// IsStarted returns true if the watcher is running.
func (w *Watcher) IsStarted() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.started
}

// Changes returns a channel carrying external changes. When the consumer
// falls behind only the newest change is kept.
func (w *Watcher) Changes() <-chan Change {
	return w.changeCh
}

// Path returns the watched file path.
func (w *Watcher) Path() string {
	return w.path
}

// FilesystemType returns the best-effort filesystem classification for the watched path.
func (w *Watcher) FilesystemType() FilesystemType {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.fsType
}

// PollInterval returns the polling interval used when polling mode is active.
func (w *Watcher) PollInterval() time.Duration {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.pollInterval
}

func envBool(name string) bool {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return false
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}

// watchFsnotify monitors using fsnotify events.
func (w *Watcher) watchFsnotify(ctx context.Context, fsw *fsnotify.Watcher) {
	targetFile := filepath.Base(w.path)

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-fsw.Events:
			if !ok {
				return
			}

			// Only care about events for our specific file; temp files from
			// atomic writes show up under their own names
			eventFile := filepath.Base(event.Name)
			if eventFile != targetFile || persistence.IsTempFile(eventFile) {
				continue
			}

			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
				w.debouncer.Trigger(w.evaluate)
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.onError(err)
		}
	}
}

// watchPolling monitors using periodic stat checks.
func (w *Watcher) watchPolling(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			info, err := os.Stat(w.path)
			if err != nil {
				if os.IsNotExist(err) {
					// Only report if file existed before
					w.mu.Lock()
					hadFile := !w.lastMtime.IsZero()
					w.lastMtime = time.Time{}
					w.lastSize = 0
					w.mu.Unlock()
					if hadFile {
						w.debouncer.Trigger(w.evaluate)
					}
				} else if os.IsPermission(err) {
					w.onError(ErrPermission)
				} else {
					w.onError(err)
				}
				continue
			}

			w.mu.Lock()
			changed := !info.ModTime().Equal(w.lastMtime) || info.Size() != w.lastSize
			if changed {
				w.lastMtime = info.ModTime()
				w.lastSize = info.Size()
			}
			w.mu.Unlock()

			if changed {
				w.debouncer.Trigger(w.evaluate)
			}
		}
	}
}

// evaluate fingerprints the file after a burst of events and reports the
// change unless it is one of ours.
func (w *Watcher) evaluate() {
	w.evalMu.Lock()
	defer w.evalMu.Unlock()

	w.mu.RLock()
	started, paused, last := w.started, w.paused, w.lastSeen
	w.mu.RUnlock()
	if !started || paused {
		return
	}

	fp, err := conflict.Compute(w.path)
	if err != nil {
		w.onError(err)
		return
	}
	if fp.SameContent(last) {
		return
	}
	w.setLastSeen(fp)

	if w.own.matches(fp) {
		metrics.OwnWritesFiltered.Inc()
		return
	}

	change := Change{
		Path:        w.path,
		Status:      conflict.ChangedExternally,
		Fingerprint: fp,
		Removed:     !fp.Exists,
		DetectedAt:  time.Now(),
	}
	if fp.Exists {
		meta, ok, err := conflict.PeekMetadata(w.path)
		if err != nil {
			// a half-written foreign file; the next event re-evaluates
			debug.Log("watcher: unreadable metadata in %s: %v", w.path, err)
		}
		if ok {
			change.Remote = meta
			if w.instanceID != "" && meta.InstanceID == w.instanceID {
				metrics.OwnWritesFiltered.Inc()
				return
			}
		}
	} else {
		w.onError(ErrFileRemoved)
	}

	debug.Event("info", "external_change", map[string]any{
		"path": w.path, "removed": change.Removed, "writer": change.Remote.InstanceID,
	})
	w.onChange(change)
	w.send(change)
}

func (w *Watcher) setLastSeen(fp conflict.Fingerprint) {
	w.mu.Lock()
	w.lastSeen = fp
	w.mu.Unlock()
}

// send delivers c, dropping an unread older change so the newest wins.
func (w *Watcher) send(c Change) {
	for {
		select {
		case w.changeCh <- c:
			return
		default:
		}
		select {
		case <-w.changeCh:
		default:
		}
	}
}
