package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vanderheijden86/boardstate/pkg/model"
)

// recorder is a SaveFunc that remembers the board name of each snapshot.
type recorder struct {
	mu      sync.Mutex
	names   []string
	gate    chan struct{}
	started chan struct{}
	err     error
}

func newRecorder() *recorder {
	return &recorder{started: make(chan struct{}, 256)}
}

func (r *recorder) save(ctx context.Context, snap model.Snapshot) (model.Metadata, error) {
	r.started <- struct{}{}
	if r.gate != nil {
		<-r.gate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return model.Metadata{}, r.err
	}
	name := ""
	if len(snap.Boards) > 0 {
		name = snap.Boards[0].Name
	}
	r.names = append(r.names, name)
	return model.NewMetadata("test"), nil
}

func (r *recorder) saved() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.names...)
}

func snapNamed(name string) model.Snapshot {
	s := model.Empty()
	s.Boards = []model.Board{{ID: "b1", Name: name}}
	return s
}

func TestSaveWorker_SavesInOrder(t *testing.T) {
	rec := newRecorder()
	w := New(rec.save)
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop(context.Background())

	for _, name := range []string{"a", "b", "c"} {
		if _, err := w.Enqueue(snapNamed(name), 1); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	}
	if err := w.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	got := rec.saved()
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("saved %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("saved[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSaveWorker_OverflowDropsOldest(t *testing.T) {
	rec := newRecorder()
	rec.gate = make(chan struct{})
	w := New(rec.save, WithCapacity(2))
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}

	// "busy" occupies the loop so later requests pile up in the queue.
	if _, err := w.Enqueue(snapNamed("busy"), 0); err != nil {
		t.Fatal(err)
	}
	<-rec.started
	for _, name := range []string{"old", "mid", "new"} {
		if _, err := w.Enqueue(snapNamed(name), 0); err != nil {
			t.Fatal(err)
		}
	}
	if got := w.Pending(); got != 2 {
		t.Fatalf("Pending() = %d, want 2", got)
	}
	if got := w.Dropped(); got != 1 {
		t.Fatalf("Dropped() = %d, want 1", got)
	}

	close(rec.gate)
	if err := w.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	got := rec.saved()
	want := []string{"busy", "mid", "new"}
	if len(got) != len(want) {
		t.Fatalf("saved %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("saved[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSaveWorker_SubmitReportsDrop(t *testing.T) {
	rec := newRecorder()
	rec.gate = make(chan struct{})
	w := New(rec.save, WithCapacity(1))
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer func() {
		w.Stop(context.Background())
	}()

	if _, err := w.Enqueue(snapNamed("busy"), 0); err != nil {
		t.Fatal(err)
	}
	<-rec.started

	type outcome struct {
		res Result
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		res, err := w.Submit(context.Background(), snapNamed("first"), 1)
		ch <- outcome{res, err}
	}()
	for w.Pending() != 1 {
		time.Sleep(time.Millisecond)
	}
	if _, err := w.Enqueue(snapNamed("second"), 2); err != nil {
		t.Fatal(err)
	}

	out := <-ch
	if out.err != nil {
		t.Fatalf("Submit() error = %v", out.err)
	}
	if !errors.Is(out.res.Err, ErrDropped) {
		t.Errorf("Submit() result err = %v, want ErrDropped", out.res.Err)
	}
	close(rec.gate)
}

func TestSaveWorker_FailureIsWorkerError(t *testing.T) {
	boom := errors.New("disk full")
	rec := newRecorder()
	rec.err = boom
	w := New(rec.save)
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop(context.Background())

	res, err := w.Submit(context.Background(), snapNamed("a"), 7)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if res.Generation != 7 {
		t.Errorf("Generation = %d, want 7", res.Generation)
	}
	var werr WorkerError
	if !errors.As(res.Err, &werr) {
		t.Fatalf("result err = %T, want WorkerError", res.Err)
	}
	if werr.Phase != "save" {
		t.Errorf("Phase = %q, want save", werr.Phase)
	}
	if !errors.Is(res.Err, boom) {
		t.Errorf("result err does not wrap cause: %v", res.Err)
	}
	if w.LastError() == nil {
		t.Error("LastError() = nil after a failed save")
	}
}

func TestSaveWorker_RecoversPanic(t *testing.T) {
	w := New(func(context.Context, model.Snapshot) (model.Metadata, error) {
		panic("kaboom")
	})
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop(context.Background())

	res, err := w.Submit(context.Background(), snapNamed("a"), 1)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	var werr WorkerError
	if !errors.As(res.Err, &werr) || werr.Phase != "panic" {
		t.Fatalf("result err = %v, want panic WorkerError", res.Err)
	}
	if w.State() == Stopped {
		t.Error("worker stopped after a recovered panic")
	}
}

func TestSaveWorker_ResultsKeepNewest(t *testing.T) {
	rec := newRecorder()
	w := New(rec.save, WithResultBuffer(1))
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop(context.Background())

	var last uint64
	for i := 0; i < 5; i++ {
		seq, err := w.Enqueue(snapNamed("x"), uint64(i))
		if err != nil {
			t.Fatal(err)
		}
		last = seq
	}
	if err := w.Flush(context.Background()); err != nil {
		t.Fatal(err)
	}

	select {
	case res := <-w.Results():
		if res.Seq != last {
			t.Errorf("Results() seq = %d, want newest %d", res.Seq, last)
		}
	case <-time.After(time.Second):
		t.Fatal("no result delivered")
	}
}

func TestSaveWorker_StopDrainsAndRefuses(t *testing.T) {
	rec := newRecorder()
	w := New(rec.save)
	for _, name := range []string{"a", "b"} {
		if _, err := w.Enqueue(snapNamed(name), 0); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	if err := w.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if got := len(rec.saved()); got != 2 {
		t.Errorf("saved %d snapshots before stop, want 2", got)
	}
	if w.State() != Stopped {
		t.Errorf("State() = %v, want stopped", w.State())
	}
	if _, err := w.Enqueue(snapNamed("late"), 0); !errors.Is(err, ErrStopped) {
		t.Errorf("Enqueue() after Stop error = %v, want ErrStopped", err)
	}
	if err := w.Start(); !errors.Is(err, ErrStopped) {
		t.Errorf("Start() after Stop error = %v, want ErrStopped", err)
	}
	select {
	case <-w.Done():
	default:
		t.Error("Done() not closed after Stop")
	}
	// Stop is idempotent.
	if err := w.Stop(context.Background()); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
}

func TestSaveWorker_FlushHonoursContext(t *testing.T) {
	rec := newRecorder()
	rec.gate = make(chan struct{})
	w := New(rec.save)
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Enqueue(snapNamed("slow"), 0); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := w.Flush(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Flush() error = %v, want deadline exceeded", err)
	}

	close(rec.gate)
	if err := w.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := rec.saved(); len(got) != 1 || got[0] != "slow" {
		t.Errorf("in-flight write was not completed: %v", got)
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{Idle, "idle"},
		{Saving, "saving"},
		{Stopped, "stopped"},
		{State(9), "State(9)"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", int(tt.s), got, tt.want)
		}
	}
}
