// Package worker runs board saves off the caller's goroutine.
//
// A SaveWorker owns a bounded queue of save requests consumed by a single
// loop. When the queue is full the oldest pending request is dropped, so the
// newest snapshot always reaches disk. A write that has started is never
// interrupted, and Stop drains the queue before returning.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	kdebug "github.com/vanderheijden86/boardstate/pkg/debug"
	"github.com/vanderheijden86/boardstate/pkg/metrics"
	"github.com/vanderheijden86/boardstate/pkg/model"
)

// DefaultCapacity is the default number of pending save requests.
const DefaultCapacity = 100

const defaultResultBuffer = 16

var (
	// ErrStopped is returned when enqueueing on a stopped worker.
	ErrStopped = errors.New("save worker stopped")
	// ErrDropped is the result of a request evicted by a newer one.
	ErrDropped = errors.New("save request superseded by a newer snapshot")
)

// State represents the current state of the save worker.
type State int

const (
	// Idle means the worker is waiting for requests.
	Idle State = iota
	// Saving means a write is in progress.
	Saving
	// Stopped means the worker has exited.
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Saving:
		return "saving"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// SaveFunc writes one snapshot and reports the metadata it stamped.
type SaveFunc func(ctx context.Context, snap model.Snapshot) (model.Metadata, error)

// WorkerError wraps a failed save with its phase and time.
type WorkerError struct {
	Phase string // "save" or "panic"
	Cause error
	Time  time.Time
}

func (e WorkerError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Phase, e.Cause)
}

func (e WorkerError) Unwrap() error {
	return e.Cause
}

// Request is one queued save.
type Request struct {
	Seq        uint64
	Generation uint64
	Snapshot   model.Snapshot
	EnqueuedAt time.Time

	reply chan Result
}

// Result reports the outcome of a request. Err is nil or a WorkerError.
type Result struct {
	Seq        uint64
	Generation uint64
	Metadata   model.Metadata
	Err        error
	Duration   time.Duration
	FinishedAt time.Time
}

// Option configures a SaveWorker.
type Option func(*SaveWorker)

// WithCapacity sets the maximum number of pending requests.
func WithCapacity(n int) Option {
	return func(w *SaveWorker) {
		if n > 0 {
			w.capacity = n
		}
	}
}

// WithResultBuffer sets the size of the Results channel buffer.
func WithResultBuffer(n int) Option {
	return func(w *SaveWorker) {
		if n > 0 {
			w.resultBuffer = n
		}
	}
}

// WithOnResult registers fn to run on the worker goroutine after each
// write, before Flush waiters are released.
func WithOnResult(fn func(Result)) Option {
	return func(w *SaveWorker) {
		w.onResult = fn
	}
}

// SaveWorker serializes saves through one consumer goroutine.
type SaveWorker struct {
	save         SaveFunc
	capacity     int
	resultBuffer int
	onResult     func(Result)

	mu       sync.Mutex
	queue    []Request
	state    State
	started  bool
	stopping bool
	nextSeq  uint64
	doneSeq  uint64
	dropped  int64
	lastErr  *WorkerError
	progress chan struct{}

	wake     chan struct{}
	results  chan Result
	done     chan struct{}
	stopOnce sync.Once
}

// New creates a worker that writes through save. Call Start before
// enqueueing.
func New(save SaveFunc, opts ...Option) *SaveWorker {
	w := &SaveWorker{
		save:         save,
		capacity:     DefaultCapacity,
		resultBuffer: defaultResultBuffer,
		progress:     make(chan struct{}),
		wake:         make(chan struct{}, 1),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.results = make(chan Result, w.resultBuffer)
	return w
}

// Start launches the consumer loop. Start is idempotent.
func (w *SaveWorker) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopping || w.state == Stopped {
		return ErrStopped
	}
	if w.started {
		return nil
	}
	w.started = true
	go w.loop()
	w.logEvent("info", "worker_start", map[string]any{"capacity": w.capacity})
	return nil
}

// Enqueue queues snap for saving and returns its sequence number. When the
// queue is full the oldest pending request is dropped.
func (w *SaveWorker) Enqueue(snap model.Snapshot, generation uint64) (uint64, error) {
	return w.enqueue(snap, generation, nil)
}

// Submit queues snap and waits until it has been written. A request dropped
// in favour of a newer one reports ErrDropped.
func (w *SaveWorker) Submit(ctx context.Context, snap model.Snapshot, generation uint64) (Result, error) {
	reply := make(chan Result, 1)
	if _, err := w.enqueue(snap, generation, reply); err != nil {
		return Result{}, err
	}
	select {
	case res := <-reply:
		return res, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (w *SaveWorker) enqueue(snap model.Snapshot, generation uint64, reply chan Result) (uint64, error) {
	w.mu.Lock()
	if w.stopping || w.state == Stopped {
		w.mu.Unlock()
		return 0, ErrStopped
	}
	w.nextSeq++
	req := Request{
		Seq:        w.nextSeq,
		Generation: generation,
		Snapshot:   snap.Clone(),
		EnqueuedAt: time.Now(),
		reply:      reply,
	}
	var evicted *Request
	if len(w.queue) >= w.capacity {
		old := w.queue[0]
		evicted = &old
		w.queue = append(w.queue[:0], w.queue[1:]...)
		w.dropped++
		w.advanceLocked(old.Seq)
	}
	w.queue = append(w.queue, req)
	w.mu.Unlock()

	if evicted != nil {
		metrics.SavesDropped.Inc()
		w.logEvent("warn", "save_dropped", map[string]any{
			"seq":        evicted.Seq,
			"generation": evicted.Generation,
		})
		if evicted.reply != nil {
			evicted.reply <- Result{Seq: evicted.Seq, Generation: evicted.Generation, Err: ErrDropped, FinishedAt: time.Now()}
		}
	}
	w.signal()
	return req.Seq, nil
}

// Flush blocks until every request enqueued before the call has been
// written or dropped.
func (w *SaveWorker) Flush(ctx context.Context) error {
	w.mu.Lock()
	target := w.nextSeq
	for w.doneSeq < target {
		if w.state == Stopped {
			w.mu.Unlock()
			return ErrStopped
		}
		progress := w.progress
		w.mu.Unlock()
		select {
		case <-progress:
		case <-ctx.Done():
			return ctx.Err()
		}
		w.mu.Lock()
	}
	w.mu.Unlock()
	return nil
}

// Stop refuses new requests, waits for the queue to drain and the loop to
// exit. If ctx expires first the loop keeps draining in the background.
func (w *SaveWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	started := w.started
	w.stopping = true
	if !started {
		w.state = Stopped
	}
	w.mu.Unlock()

	if !started {
		w.stopOnce.Do(func() { close(w.done) })
		return nil
	}
	w.signal()

	select {
	case <-w.done:
		w.logEvent("info", "worker_stop", nil)
		return nil
	case <-ctx.Done():
		w.logEvent("warn", "shutdown_timeout", map[string]any{"pending": w.Pending()})
		return ctx.Err()
	}
}

// Results delivers the outcome of every written request. When the reader
// falls behind older results are discarded.
func (w *SaveWorker) Results() <-chan Result {
	return w.results
}

// Done is closed once the worker has stopped.
func (w *SaveWorker) Done() <-chan struct{} {
	return w.done
}

// State returns the current worker state.
func (w *SaveWorker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Pending returns the number of queued requests not yet started.
func (w *SaveWorker) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.queue)
}

// Dropped returns how many requests were evicted by newer ones.
func (w *SaveWorker) Dropped() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dropped
}

// LastError returns the most recent failure, or nil if the last write
// succeeded.
func (w *SaveWorker) LastError() *WorkerError {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastErr
}

func (w *SaveWorker) signal() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *SaveWorker) loop() {
	defer func() {
		w.mu.Lock()
		w.state = Stopped
		close(w.progress)
		w.progress = make(chan struct{})
		w.mu.Unlock()
		w.stopOnce.Do(func() { close(w.done) })
	}()

	for {
		req, ok := w.next()
		if !ok {
			return
		}
		w.process(req)
	}
}

// next pops the oldest request, waiting for one. ok is false once the
// worker is stopping and the queue is empty.
func (w *SaveWorker) next() (Request, bool) {
	for {
		w.mu.Lock()
		if len(w.queue) > 0 {
			req := w.queue[0]
			w.queue[0] = Request{}
			w.queue = w.queue[1:]
			w.state = Saving
			w.mu.Unlock()
			return req, true
		}
		if w.stopping {
			w.mu.Unlock()
			return Request{}, false
		}
		w.mu.Unlock()
		<-w.wake
	}
}

func (w *SaveWorker) process(req Request) {
	start := time.Now()
	// The write runs to completion even if a caller gives up waiting.
	meta, werr := w.safeSave(context.Background(), req.Snapshot)
	res := Result{
		Seq:        req.Seq,
		Generation: req.Generation,
		Metadata:   meta,
		Duration:   time.Since(start),
		FinishedAt: time.Now(),
	}
	if werr != nil {
		res.Err = *werr
		metrics.SaveFailures.Inc()
		w.logEvent("error", "save_failed", map[string]any{
			"seq":   req.Seq,
			"phase": werr.Phase,
			"error": werr.Cause.Error(),
		})
	} else {
		w.logEvent("debug", "save_done", map[string]any{
			"seq":         req.Seq,
			"generation":  req.Generation,
			"duration_ms": res.Duration.Milliseconds(),
		})
	}

	w.mu.Lock()
	w.lastErr = werr
	w.state = Idle
	w.mu.Unlock()

	if w.onResult != nil {
		w.onResult(res)
	}
	if req.reply != nil {
		req.reply <- res
	}
	w.send(res)

	// Completion is published after delivery so Flush callers observe the
	// result on Results.
	w.mu.Lock()
	w.advanceLocked(req.Seq)
	w.mu.Unlock()
}

// advanceLocked marks seq complete. Requests finish in sequence order
// because both processing and eviction take the queue head.
func (w *SaveWorker) advanceLocked(seq uint64) {
	if seq > w.doneSeq {
		w.doneSeq = seq
	}
	close(w.progress)
	w.progress = make(chan struct{})
}

// safeSave runs the save function and recovers from panics.
func (w *SaveWorker) safeSave(ctx context.Context, snap model.Snapshot) (meta model.Metadata, result *WorkerError) {
	defer func() {
		if r := recover(); r != nil {
			result = &WorkerError{
				Phase: "panic",
				Cause: fmt.Errorf("panic: %v\n%s", r, debug.Stack()),
				Time:  time.Now(),
			}
		}
	}()
	meta, err := w.save(ctx, snap)
	if err != nil {
		return meta, &WorkerError{Phase: "save", Cause: err, Time: time.Now()}
	}
	return meta, nil
}

// send delivers res, dropping an older unread result so the newest wins.
func (w *SaveWorker) send(res Result) {
	for {
		select {
		case w.results <- res:
			return
		default:
		}

		select {
		case <-w.results:
		default:
		}
	}
}

func (w *SaveWorker) logEvent(level, event string, fields map[string]any) {
	payload := map[string]any{"component": "save_worker"}
	for k, v := range fields {
		payload[k] = v
	}
	kdebug.Event(level, event, payload)
}
