// Package debug provides conditional debug logging for boardstate.
//
// Debug logging is enabled by setting the KANBAN_DEBUG environment variable:
//
//	KANBAN_DEBUG=1 kanban -file board.json -list
//
// Output goes to stderr, or to the file named by KANBAN_DEBUG_FILE. A TUI
// owns the terminal, so the file is the usual choice there. When disabled
// (default), all debug functions are no-ops.
package debug

import (
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"
	"sync/atomic"
)

const prefix = "[KANBAN_DEBUG] "

var (
	enabled atomic.Bool
	logger  atomic.Pointer[log.Logger]
)

func init() {
	if os.Getenv("KANBAN_DEBUG") != "" {
		SetEnabled(true)
	}
}

func output() io.Writer {
	if path := os.Getenv("KANBAN_DEBUG_FILE"); path != "" {
		if f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644); err == nil {
			return f
		}
	}
	return os.Stderr
}

// Enabled returns whether debug logging is enabled.
func Enabled() bool {
	return enabled.Load()
}

// SetEnabled allows programmatic control of debug logging.
func SetEnabled(e bool) {
	if e && logger.Load() == nil {
		logger.CompareAndSwap(nil, log.New(output(), prefix, log.Ltime|log.Lmicroseconds))
	}
	enabled.Store(e)
}

// SetOutput redirects debug output, mainly for tests.
func SetOutput(w io.Writer) {
	logger.Store(log.New(w, prefix, 0))
}

// active returns the logger when logging is on.
func active() *log.Logger {
	if !enabled.Load() {
		return nil
	}
	return logger.Load()
}

// Event writes a structured line "level event k=v ..." with keys sorted.
func Event(level, event string, fields map[string]any) {
	l := active()
	if l == nil {
		return
	}
	var b strings.Builder
	b.WriteString(level)
	b.WriteByte(' ')
	b.WriteString(event)
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, fields[k])
	}
	l.Print(b.String())
}

// Log writes a debug message if debug logging is enabled.
// Uses printf-style formatting.
func Log(format string, args ...any) {
	if l := active(); l != nil {
		l.Printf(format, args...)
	}
}
