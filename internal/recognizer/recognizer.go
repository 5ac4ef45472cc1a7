// Package recognizer runs the recognition pipeline. Each observed embedding
// is matched against the gallery, gated by the cooldown tracker, and
// conditionally recorded in the ledger as one atomic unit.
package recognizer

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/face-attendance/internal/cooldown"
	"github.com/kozaktomas/face-attendance/internal/gallery"
	"github.com/kozaktomas/face-attendance/internal/ledger"
	"github.com/kozaktomas/face-attendance/internal/match"
)

// Observation is one embedding handed to the pipeline. A zero At means "now".
type Observation struct {
	Embedding []float32
	At        time.Time
}

// Event is the outcome of processing one observation.
type Event struct {
	SessionID string         `json:"session_id"`
	Name      string         `json:"name,omitempty"`
	Distance  float64        `json:"distance"`
	Matched   bool           `json:"matched"`
	Accepted  bool           `json:"accepted"`
	Outcome   ledger.Outcome `json:"outcome,omitempty"`
	Error     string         `json:"error,omitempty"`
	At        time.Time      `json:"at"`
}

// Session owns the recognition state for one process lifetime: an immutable
// gallery snapshot, the cooldown tracker, and the ledger. The session is
// passed by handle into the loop and the web API.
type Session struct {
	id        string
	gallery   *gallery.Gallery
	tolerance float64
	tracker   *cooldown.Tracker
	ledger    *ledger.Ledger

	mu        sync.Mutex // serializes match->gate->record per observation
	listeners map[chan Event]struct{}
	lmu       sync.Mutex
}

// NewSession creates a recognition session over a frozen gallery snapshot.
func NewSession(g *gallery.Gallery, tolerance float64, tracker *cooldown.Tracker, led *ledger.Ledger) *Session {
	return &Session{
		id:        uuid.NewString(),
		gallery:   g,
		tolerance: tolerance,
		tracker:   tracker,
		ledger:    led,
		listeners: make(map[chan Event]struct{}),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Gallery returns the session's gallery snapshot.
func (s *Session) Gallery() *gallery.Gallery {
	return s.gallery
}

// Tolerance returns the configured match tolerance.
func (s *Session) Tolerance() float64 {
	return s.tolerance
}

// Ledger returns the session's attendance ledger.
func (s *Session) Ledger() *ledger.Ledger {
	return s.ledger
}

// Observe processes one embedding at instant now. Matching, the cooldown
// check, and the ledger append execute under the session lock, so no two
// observations can interleave around the same identity's cooldown entry.
// Ledger write errors are carried in the event, never escalated: losing one
// attendance row beats terminating the session.
func (s *Session) Observe(embedding []float32, now time.Time) Event {
	if now.IsZero() {
		now = time.Now()
	}

	s.mu.Lock()
	result := match.Match(embedding, s.gallery, s.tolerance)
	event := Event{
		SessionID: s.id,
		Name:      result.Name,
		Distance:  result.Distance,
		Matched:   result.Matched,
		At:        now,
	}

	if result.Matched && s.tracker.ShouldAccept(result.Key, now) {
		event.Accepted = true
		outcome, err := s.ledger.Record(result.Name, now)
		event.Outcome = outcome
		if err != nil {
			event.Error = err.Error()
		}
	}
	s.mu.Unlock()

	s.publish(event)
	return event
}

// Run consumes observations until ctx is cancelled or the channel closes.
// Cancellation takes effect between observations; an in-flight ledger append
// always completes before return.
func (s *Session) Run(ctx context.Context, observations <-chan Observation) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case obs, ok := <-observations:
			if !ok {
				return nil
			}
			s.Observe(obs.Embedding, obs.At)
		}
	}
}

// Subscribe registers a listener for recognition events. The returned cancel
// function must be called to release the listener.
func (s *Session) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 16)

	s.lmu.Lock()
	s.listeners[ch] = struct{}{}
	s.lmu.Unlock()

	cancel := func() {
		s.lmu.Lock()
		if _, ok := s.listeners[ch]; ok {
			delete(s.listeners, ch)
			close(ch)
		}
		s.lmu.Unlock()
	}
	return ch, cancel
}

// publish fans an event out to listeners. Slow listeners drop events rather
// than stalling the recognition loop.
func (s *Session) publish(event Event) {
	s.lmu.Lock()
	defer s.lmu.Unlock()
	for ch := range s.listeners {
		select {
		case ch <- event:
		default:
		}
	}
}
