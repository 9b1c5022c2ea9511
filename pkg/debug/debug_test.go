package debug

import (
	"bytes"
	"io"
	"strings"
	"sync"
	"testing"
)

func TestEventFormatsSortedFields(t *testing.T) {
	var buf bytes.Buffer
	prev := Enabled()
	SetEnabled(true)
	SetOutput(&buf)
	defer SetEnabled(prev)

	Event("info", "save_done", map[string]any{"seq": 3, "bytes": 120})
	got := strings.TrimSpace(buf.String())
	want := prefix + "info save_done bytes=120 seq=3"
	if got != want {
		t.Errorf("Event() wrote %q, want %q", got, want)
	}
}

func TestDisabledIsSilent(t *testing.T) {
	var buf bytes.Buffer
	prev := Enabled()
	SetEnabled(true)
	SetOutput(&buf)
	SetEnabled(false)
	defer SetEnabled(prev)

	Log("hidden %d", 1)
	Event("info", "hidden", nil)
	if buf.Len() != 0 {
		t.Errorf("disabled logger wrote %q", buf.String())
	}
}

func TestConcurrentOutputSwap(t *testing.T) {
	prev := Enabled()
	defer SetEnabled(prev)
	SetEnabled(true)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				SetOutput(io.Discard)
			}
		}()
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				Event("info", "tick", map[string]any{"worker": i, "n": j})
				Log("tick %d", j)
			}
		}(i)
	}
	wg.Wait()
}
