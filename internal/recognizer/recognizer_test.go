package recognizer

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/kozaktomas/face-attendance/internal/cooldown"
	"github.com/kozaktomas/face-attendance/internal/gallery"
	"github.com/kozaktomas/face-attendance/internal/ledger"
)

// emb builds a full-size embedding with the leading values set.
func emb(vals ...float32) []float32 {
	e := make([]float32, gallery.EmbeddingDim)
	copy(e, vals)
	return e
}

func newTestSession(t *testing.T, window time.Duration) *Session {
	t.Helper()
	b := gallery.NewBuilder(nil)
	if err := b.Add("JohnDoe", "JohnDoe.jpg", emb(0)); err != nil {
		t.Fatal(err)
	}
	if err := b.Add("JaneSmith", "JaneSmith.jpg", emb(1)); err != nil {
		t.Fatal(err)
	}

	led, err := ledger.Open(filepath.Join(t.TempDir(), "Attendance.csv"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { led.Close() })

	return NewSession(b.Build(), 0.45, cooldown.New(window), led)
}

func TestObserveMatchRecordsAttendance(t *testing.T) {
	s := newTestSession(t, 5*time.Second)
	now := time.Date(2026, 8, 25, 9, 0, 0, 0, time.Local)

	event := s.Observe(emb(0.1), now)
	if !event.Matched || event.Name != "JohnDoe" {
		t.Fatalf("event = %+v, want JohnDoe matched", event)
	}
	if !event.Accepted || event.Outcome != ledger.Appended {
		t.Errorf("event = %+v, want accepted and appended", event)
	}

	records, err := s.Ledger().Records()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].Name != "JOHNDOE" {
		t.Errorf("records = %+v, want one JOHNDOE row", records)
	}
}

func TestObserveCooldownSuppressesRepeat(t *testing.T) {
	s := newTestSession(t, 5*time.Second)
	base := time.Date(2026, 8, 25, 9, 0, 0, 0, time.Local)

	first := s.Observe(emb(0), base)
	second := s.Observe(emb(0), base.Add(3*time.Second))
	third := s.Observe(emb(0), base.Add(9*time.Second))

	if !first.Accepted {
		t.Errorf("first observation not accepted: %+v", first)
	}
	if second.Accepted {
		t.Errorf("second observation accepted inside cooldown: %+v", second)
	}
	if !second.Matched {
		t.Errorf("cooldown must not hide the match itself: %+v", second)
	}
	if !third.Accepted {
		t.Errorf("third observation after cooldown not accepted: %+v", third)
	}
	// Same person, same day: the second acceptance is a ledger Skipped.
	if third.Outcome != ledger.Skipped {
		t.Errorf("third outcome = %q, want %q", third.Outcome, ledger.Skipped)
	}

	records, err := s.Ledger().Records()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Errorf("got %d ledger rows, want 1", len(records))
	}
}

func TestObserveUnmatchedNeverTouchesLedger(t *testing.T) {
	s := newTestSession(t, 5*time.Second)

	event := s.Observe(emb(10), time.Now())
	if event.Matched || event.Accepted {
		t.Fatalf("far embedding produced %+v", event)
	}

	records, err := s.Ledger().Records()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 0 {
		t.Errorf("unmatched observation wrote %d ledger rows", len(records))
	}
}

func TestObserveDistinctIdentitiesIndependent(t *testing.T) {
	s := newTestSession(t, 5*time.Second)
	now := time.Date(2026, 8, 25, 9, 0, 0, 0, time.Local)

	john := s.Observe(emb(0), now)
	jane := s.Observe(emb(1), now.Add(time.Second))

	if !john.Accepted || !jane.Accepted {
		t.Errorf("john = %+v, jane = %+v, want both accepted", john, jane)
	}
}

func TestSubscribeReceivesEvents(t *testing.T) {
	s := newTestSession(t, 5*time.Second)

	events, cancel := s.Subscribe()
	defer cancel()

	sent := s.Observe(emb(0), time.Now())

	select {
	case got := <-events:
		if got.SessionID != s.ID() || got.Name != sent.Name {
			t.Errorf("received %+v, want %+v", got, sent)
		}
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}
}

func TestSubscribeCancelStopsDelivery(t *testing.T) {
	s := newTestSession(t, 5*time.Second)

	events, cancel := s.Subscribe()
	cancel()

	if _, ok := <-events; ok {
		t.Error("channel still open after cancel")
	}
	// Cancel twice must be safe, and publishing after cancel must not panic.
	cancel()
	s.Observe(emb(0), time.Now())
}
