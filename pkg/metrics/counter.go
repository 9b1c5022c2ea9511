package metrics

import "sync/atomic"

// Counter is a monotonically increasing event count.
type Counter struct {
	name string
	n    atomic.Int64
}

func newCounter(name string) *Counter {
	return &Counter{name: name}
}

// Inc adds one.
func (c *Counter) Inc() {
	if !enabled.Load() {
		return
	}
	c.n.Add(1)
}

func (c *Counter) Name() string { return c.name }
func (c *Counter) Value() int64 { return c.n.Load() }
func (c *Counter) Reset()       { c.n.Store(0) }

// Persistence event counters.
var (
	ConflictsDetected = newCounter("conflicts_detected")
	SavesDropped      = newCounter("saves_dropped")
	SaveFailures      = newCounter("save_failures")
	ExternalReloads   = newCounter("external_reloads")
	OwnWritesFiltered = newCounter("own_writes_filtered")
)

// AllCounters returns all registered counters.
func AllCounters() []*Counter {
	return []*Counter{ConflictsDetected, SavesDropped, SaveFailures, ExternalReloads, OwnWritesFiltered}
}

// CounterValues returns a name to value map of all counters.
func CounterValues() map[string]int64 {
	out := make(map[string]int64)
	for _, c := range AllCounters() {
		out[c.Name()] = c.Value()
	}
	return out
}
