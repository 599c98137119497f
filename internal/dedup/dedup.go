// Package dedup guards against at-least-once delivery: a retried
// inbound event must not trigger its side effects twice.
package dedup

import (
	"fmt"
	"sync"
)

// Guard is a bounded set of recently processed event fingerprints.
// Retention is capacity-bounded: when the set fills up it is cleared in
// bulk rather than aged entry by entry. That is acceptable because
// redeliveries cluster within seconds of the original; it is a memory
// bound, not a correctness guarantee against long-delayed redelivery.
type Guard struct {
	mu       sync.Mutex
	seen     map[string]struct{}
	capacity int
}

const defaultCapacity = 8192

func NewGuard(capacity int) *Guard {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Guard{
		seen:     make(map[string]struct{}, capacity),
		capacity: capacity,
	}
}

// ShouldProcess reports whether this fingerprint is new, recording it
// if so. The first delivery of an event returns true; replays within
// the retention window return false.
func (g *Guard) ShouldProcess(fingerprint string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, dup := g.seen[fingerprint]; dup {
		return false
	}
	if len(g.seen) >= g.capacity {
		g.seen = make(map[string]struct{}, g.capacity)
	}
	g.seen[fingerprint] = struct{}{}
	return true
}

// Len reports the current set size. Used by tests and stats.
func (g *Guard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.seen)
}

// MessageFingerprint identifies a message delivery by its stable fields
// rather than its payload: an edited retry carries the same update id
// and date.
func MessageFingerprint(updateID int64, unixDate int64) string {
	return fmt.Sprintf("msg:%d:%d", updateID, unixDate)
}

// CallbackFingerprint identifies a button press by the press's own id.
// Callbacks live in their own space: the same button may legitimately
// be pressed again later for a new logical request.
func CallbackFingerprint(callbackID string) string {
	return "cb:" + callbackID
}
