package notify

import (
	"sync"
	"testing"
	"time"
)

// collectorSink records every update it receives.
type collectorSink struct {
	mu      sync.Mutex
	updates []Update
}

func (s *collectorSink) Send(u Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, u)
	return nil
}

func (s *collectorSink) snapshot() []Update {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Update, len(s.updates))
	copy(out, s.updates)
	return out
}

func TestHub_AttachDetach(t *testing.T) {
	h := NewHub(time.Second)
	sink := &collectorSink{}

	h.Attach(sink)
	if h.SinkCount() != 1 {
		t.Errorf("expected 1 sink, got %d", h.SinkCount())
	}

	h.Detach(sink)
	if h.SinkCount() != 0 {
		t.Errorf("expected 0 sinks, got %d", h.SinkCount())
	}
}

func TestHub_LegacyStepAlias(t *testing.T) {
	h := NewHub(time.Second)
	sink := &collectorSink{}
	h.Attach(sink)

	h.Publish(Update{Type: "progress", ComparisonID: "c1", Step: "alignment", Status: "completed", Progress: 100})

	got := sink.snapshot()
	if len(got) != 1 {
		t.Fatalf("expected 1 update, got %d", len(got))
	}
	if got[0].CurrentStep != "alignment" {
		t.Errorf("legacy current_step = %q, want %q", got[0].CurrentStep, "alignment")
	}
}

func TestHub_ThrottlesNonCriticalUpdates(t *testing.T) {
	h := NewHub(100 * time.Millisecond)
	sink := &collectorSink{}
	h.Attach(sink)

	// First update goes straight out; the next two land inside the throttle
	// window, so only the latest survives.
	h.Publish(Update{Type: "progress", ComparisonID: "c1", Status: "processing", Progress: 10})
	h.Publish(Update{Type: "progress", ComparisonID: "c1", Status: "processing", Progress: 30})
	h.Publish(Update{Type: "progress", ComparisonID: "c1", Status: "processing", Progress: 60})

	time.Sleep(250 * time.Millisecond)

	got := sink.snapshot()
	if len(got) != 2 {
		t.Fatalf("expected 2 updates after throttling, got %d", len(got))
	}
	if got[0].Progress != 10 {
		t.Errorf("first update progress = %v, want 10", got[0].Progress)
	}
	if got[1].Progress != 60 {
		t.Errorf("flushed update progress = %v, want latest 60", got[1].Progress)
	}
}

func TestHub_CriticalUpdatesBypassThrottle(t *testing.T) {
	h := NewHub(time.Hour) // throttle would block everything non-critical
	sink := &collectorSink{}
	h.Attach(sink)

	h.Publish(Update{Type: "progress", ComparisonID: "c1", Status: "processing", Progress: 0})
	h.Publish(Update{Type: "progress", ComparisonID: "c1", Status: "processing", Progress: 30}) // throttled
	h.Publish(Update{Type: "progress", ComparisonID: "c1", Status: "completed", Progress: 100})

	got := sink.snapshot()
	if len(got) != 2 {
		t.Fatalf("expected the 0%% and completed updates only, got %d", len(got))
	}
	if got[0].Progress != 0 || got[1].Progress != 100 {
		t.Errorf("unexpected updates: %+v", got)
	}
}

func TestHub_CriticalSupersedesPending(t *testing.T) {
	h := NewHub(200 * time.Millisecond)
	sink := &collectorSink{}
	h.Attach(sink)

	h.Publish(Update{Type: "progress", ComparisonID: "c1", Status: "processing", Progress: 10})
	h.Publish(Update{Type: "progress", ComparisonID: "c1", Status: "processing", Progress: 30}) // pending
	h.Publish(Update{Type: "error", ComparisonID: "c1", Status: "failed", Message: "boom"})

	// Wait past the throttle window: the pending 30% must not flush after
	// the terminal error.
	time.Sleep(400 * time.Millisecond)

	got := sink.snapshot()
	if len(got) != 2 {
		t.Fatalf("expected 2 updates, got %d", len(got))
	}
	if got[1].Type != "error" || got[1].Message != "boom" {
		t.Errorf("expected terminal error last, got %+v", got[1])
	}
}

func TestHub_DirectSendSupersedesPending(t *testing.T) {
	h := NewHub(100 * time.Millisecond)
	sink := &collectorSink{}
	h.Attach(sink)

	// Simulate a stale pending payload left from an earlier window whose
	// flush has not run yet.
	h.mu.Lock()
	h.lastSent["c1"] = time.Now().Add(-time.Second)
	h.pending["c1"] = Update{Type: "progress", ComparisonID: "c1", Status: "processing", Progress: 30}
	h.mu.Unlock()

	h.Publish(Update{Type: "progress", ComparisonID: "c1", Status: "processing", Progress: 60})

	h.mu.Lock()
	_, stillPending := h.pending["c1"]
	h.mu.Unlock()
	if stillPending {
		t.Error("direct send must drop the stale pending payload")
	}

	got := sink.snapshot()
	if len(got) != 1 || got[0].Progress != 60 {
		t.Errorf("expected only the 60%% update, got %+v", got)
	}
}

func TestHub_TerminalUpdateClearsThrottleState(t *testing.T) {
	h := NewHub(time.Hour)
	sink := &collectorSink{}
	h.Attach(sink)

	h.Publish(Update{Type: "progress", ComparisonID: "c1", Status: "processing", Progress: 10})
	h.Publish(Update{Type: "progress", ComparisonID: "c1", Status: "processing", Progress: 30}) // pending
	h.Publish(Update{Type: "progress", ComparisonID: "c1", Status: "completed", Progress: 100})

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.lastSent["c1"]; ok {
		t.Error("lastSent entry must be pruned after a terminal update")
	}
	if _, ok := h.pending["c1"]; ok {
		t.Error("pending entry must be pruned after a terminal update")
	}
	if _, ok := h.timers["c1"]; ok {
		t.Error("timer must be stopped after a terminal update")
	}
}

func TestHub_ThrottleIsPerComparison(t *testing.T) {
	h := NewHub(time.Hour)
	sink := &collectorSink{}
	h.Attach(sink)

	h.Publish(Update{Type: "progress", ComparisonID: "c1", Status: "processing", Progress: 10})
	h.Publish(Update{Type: "progress", ComparisonID: "c2", Status: "processing", Progress: 10})

	got := sink.snapshot()
	if len(got) != 2 {
		t.Fatalf("expected one immediate update per comparison, got %d", len(got))
	}
}
