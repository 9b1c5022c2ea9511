package watcher

import (
	"sync"
	"time"

	"github.com/vanderheijden86/boardstate/pkg/conflict"
)

// Own-write tracking limits.
const (
	ownWriteCapacity = 10
	ownWriteWindow   = 5 * time.Second
)

type ownWrite struct {
	hash string
	at   time.Time
}

// ownWrites remembers the content hashes this process recently wrote, so
// the resulting filesystem events are not reported as external.
type ownWrites struct {
	mu      sync.Mutex
	entries []ownWrite
	now     func() time.Time
}

func newOwnWrites() *ownWrites {
	return &ownWrites{now: time.Now}
}

func (o *ownWrites) record(fp conflict.Fingerprint) {
	if !fp.Exists {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pruneLocked()
	if len(o.entries) >= ownWriteCapacity {
		o.entries = append(o.entries[:0], o.entries[1:]...)
	}
	o.entries = append(o.entries, ownWrite{hash: fp.Hash, at: o.now()})
}

// matches reports whether fp is one of our recent writes.
func (o *ownWrites) matches(fp conflict.Fingerprint) bool {
	if !fp.Exists {
		return false
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pruneLocked()
	for _, e := range o.entries {
		if e.hash == fp.Hash {
			return true
		}
	}
	return false
}

func (o *ownWrites) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pruneLocked()
	return len(o.entries)
}

func (o *ownWrites) pruneLocked() {
	cutoff := o.now().Add(-ownWriteWindow)
	i := 0
	for i < len(o.entries) && o.entries[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		o.entries = append(o.entries[:0], o.entries[i:]...)
	}
}
