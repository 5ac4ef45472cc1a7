// Package cooldown suppresses repeated accepted matches for the same
// identity inside a configurable time window.
package cooldown

import (
	"sync"
	"time"
)

// Tracker holds the last accepted instant per identity key. Safe for
// concurrent use; the check-then-record in ShouldAccept is atomic.
type Tracker struct {
	mu           sync.Mutex
	window       time.Duration
	lastAccepted map[string]time.Time
}

// New creates a tracker with the given cooldown window.
func New(window time.Duration) *Tracker {
	return &Tracker{
		window:       window,
		lastAccepted: make(map[string]time.Time),
	}
}

// ShouldAccept reports whether a match for key at instant now may produce a
// log event. When it returns true the acceptance is recorded, opening a new
// cooldown window; when false the tracker state is unchanged. Expiry is
// implicit: any call after the window has elapsed behaves as if the key had
// never been seen.
func (t *Tracker) ShouldAccept(key string, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if last, ok := t.lastAccepted[key]; ok && now.Sub(last) <= t.window {
		return false
	}
	t.lastAccepted[key] = now
	return true
}

// Prune drops entries whose window has elapsed. Purely a memory bound;
// ShouldAccept is correct without it.
func (t *Tracker) Prune(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for key, last := range t.lastAccepted {
		if now.Sub(last) > t.window {
			delete(t.lastAccepted, key)
		}
	}
}

// Len returns the number of tracked identities.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.lastAccepted)
}

// Window returns the configured cooldown window.
func (t *Tracker) Window() time.Duration {
	return t.window
}
