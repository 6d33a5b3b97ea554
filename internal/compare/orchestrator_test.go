package compare

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	logrustest "github.com/sirupsen/logrus/hooks/test"

	"github.com/ayusman/abhyasa/internal/motion"
	"github.com/ayusman/abhyasa/internal/notify"
	"github.com/ayusman/abhyasa/internal/store"
)

// collector records published updates for assertions.
type collector struct {
	mu      sync.Mutex
	updates []notify.Update
}

func (c *collector) Publish(u notify.Update) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updates = append(c.updates, u)
}

func (c *collector) all() []notify.Update {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]notify.Update, len(c.updates))
	copy(out, c.updates)
	return out
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	dir, err := os.MkdirTemp("", "compare-test")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	s, err := store.New(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// sineFrames produces tracker frames for a single hand moving along a
// smooth curve, 30 fps.
func sineFrames(n int) []motion.RawFrame {
	frames := make([]motion.RawFrame, n)
	for i := 0; i < n; i++ {
		theta := float64(i) * 0.2
		frames[i] = motion.RawFrame{
			FrameNumber: i,
			TimestampMs: int64(i) * 33,
			Entities: []motion.Entity{{
				ID:         "hand-0",
				Kind:       motion.KindHand,
				Position:   motion.Point3D{X: math.Sin(theta), Y: math.Cos(theta), Z: 0.1 * theta},
				Confidence: 0.95,
			}},
		}
	}
	return frames
}

func seedAnalysis(t *testing.T, s *store.Store, id string, status store.AnalysisStatus, frames []motion.RawFrame) {
	t.Helper()
	a := &store.Analysis{ID: id, Label: id, Status: status, Frames: frames}
	if err := s.Analyses().Create(a); err != nil {
		t.Fatalf("failed to create analysis %s: %v", id, err)
	}
}

func seedComparison(t *testing.T, s *store.Store, id, learnerID, referenceID string) {
	t.Helper()
	c := &store.Comparison{ID: id, LearnerAnalysisID: learnerID, ReferenceAnalysisID: referenceID}
	if err := s.Comparisons().Create(c); err != nil {
		t.Fatalf("failed to create comparison %s: %v", id, err)
	}
}

func TestOrchestrator_IdenticalRunsScorePerfect(t *testing.T) {
	s := newTestStore(t)
	frames := sineFrames(40)
	seedAnalysis(t, s, "learner-1", store.AnalysisCompleted, frames)
	seedAnalysis(t, s, "reference-1", store.AnalysisCompleted, frames)
	seedComparison(t, s, "cmp-1", "learner-1", "reference-1")

	sink := &collector{}
	o := New(Config{Store: s, Notifier: sink})

	if err := o.Submit(context.Background(), "cmp-1"); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	o.Wait()

	c, err := s.Comparisons().GetByID("cmp-1")
	if err != nil {
		t.Fatalf("failed to load comparison: %v", err)
	}

	if c.Status != store.ComparisonCompleted {
		t.Fatalf("status = %q (error: %q), want completed", c.Status, c.ErrorMessage)
	}
	if c.Progress != 100 {
		t.Errorf("progress = %v, want 100", c.Progress)
	}
	if c.OverallScore != 100 {
		t.Errorf("identical trajectories must score 100, got %v", c.OverallScore)
	}
	if len(c.Alignment) == 0 {
		t.Error("expected alignment path to be stored")
	}
	if c.Feedback == nil || len(c.Feedback.Strengths) == 0 {
		t.Error("expected a perfect run to report strengths")
	}
	if c.Metrics == nil {
		t.Error("expected metrics comparison to be stored")
	}

	updates := sink.all()
	if len(updates) == 0 {
		t.Fatal("expected progress updates")
	}
	last := updates[len(updates)-1]
	if last.Status != "completed" || last.Progress != 100 {
		t.Errorf("final update = %+v, want completed/100", last)
	}
}

func TestOrchestrator_ProgressCheckpoints(t *testing.T) {
	s := newTestStore(t)
	frames := sineFrames(40)
	seedAnalysis(t, s, "learner-1", store.AnalysisCompleted, frames)
	seedAnalysis(t, s, "reference-1", store.AnalysisCompleted, frames)
	seedComparison(t, s, "cmp-1", "learner-1", "reference-1")

	sink := &collector{}
	o := New(Config{Store: s, Notifier: sink})

	if err := o.Submit(context.Background(), "cmp-1"); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	o.Wait()

	seen := make(map[float64]bool)
	for _, u := range sink.all() {
		seen[u.Progress] = true
	}
	for _, want := range []float64{10, 30, 60, 80, 100} {
		if !seen[want] {
			t.Errorf("missing progress checkpoint %v (got %v)", want, sink.all())
		}
	}
}

func TestOrchestrator_LogsNormalizationStats(t *testing.T) {
	hook := logrustest.NewGlobal()
	defer hook.Reset()

	s := newTestStore(t)
	frames := sineFrames(40)
	frames[5].Entities[0].Confidence = 0.1 // dropped, then interpolated
	seedAnalysis(t, s, "learner-1", store.AnalysisCompleted, frames)
	seedAnalysis(t, s, "reference-1", store.AnalysisCompleted, sineFrames(40))
	seedComparison(t, s, "cmp-1", "learner-1", "reference-1")

	o := New(Config{Store: s})
	if err := o.Submit(context.Background(), "cmp-1"); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	o.Wait()

	var entry map[string]interface{}
	for _, e := range hook.AllEntries() {
		if e.Message == "trajectories normalized" {
			entry = e.Data
		}
	}
	if entry == nil {
		t.Fatal("expected a normalization log entry")
	}
	if got := entry["learner_dropped"]; got != 1 {
		t.Errorf("learner_dropped = %v, want 1", got)
	}
	if got := entry["learner_interpolated"]; got != 1 {
		t.Errorf("learner_interpolated = %v, want 1", got)
	}
}

func TestOrchestrator_DependencyNotReady(t *testing.T) {
	s := newTestStore(t)
	seedAnalysis(t, s, "learner-1", store.AnalysisPending, sineFrames(40))
	seedAnalysis(t, s, "reference-1", store.AnalysisCompleted, sineFrames(40))
	seedComparison(t, s, "cmp-1", "learner-1", "reference-1")

	o := New(Config{Store: s})

	err := o.Submit(context.Background(), "cmp-1")
	var depErr *DependencyNotReadyError
	if !errors.As(err, &depErr) {
		t.Fatalf("expected DependencyNotReadyError, got %v", err)
	}
	if depErr.AnalysisID != "learner-1" {
		t.Errorf("error names analysis %q, want learner-1", depErr.AnalysisID)
	}

	// Fail-fast submission must not touch the record.
	c, _ := s.Comparisons().GetByID("cmp-1")
	if c.Status != store.ComparisonPending {
		t.Errorf("status = %q, want pending after rejected submit", c.Status)
	}
	if o.Running("cmp-1") {
		t.Error("rejected submit must not leave the run marked active")
	}
}

func TestOrchestrator_DuplicateTriggerRejected(t *testing.T) {
	s := newTestStore(t)
	frames := sineFrames(40)
	seedAnalysis(t, s, "learner-1", store.AnalysisCompleted, frames)
	seedAnalysis(t, s, "reference-1", store.AnalysisCompleted, frames)
	seedComparison(t, s, "cmp-1", "learner-1", "reference-1")

	o := New(Config{Store: s})
	o.active.add("cmp-1")
	defer o.active.remove("cmp-1")

	if err := o.Submit(context.Background(), "cmp-1"); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("expected ErrAlreadyRunning, got %v", err)
	}
}

func TestOrchestrator_UnknownComparison(t *testing.T) {
	s := newTestStore(t)
	o := New(Config{Store: s})

	if err := o.Submit(context.Background(), "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestOrchestrator_InsufficientDataFailsRun(t *testing.T) {
	s := newTestStore(t)
	seedAnalysis(t, s, "learner-1", store.AnalysisCompleted, sineFrames(1))
	seedAnalysis(t, s, "reference-1", store.AnalysisCompleted, sineFrames(40))
	seedComparison(t, s, "cmp-1", "learner-1", "reference-1")

	sink := &collector{}
	o := New(Config{Store: s, Notifier: sink})

	if err := o.Submit(context.Background(), "cmp-1"); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	o.Wait()

	c, err := s.Comparisons().GetByID("cmp-1")
	if err != nil {
		t.Fatalf("failed comparison must stay queryable: %v", err)
	}
	if c.Status != store.ComparisonFailed {
		t.Fatalf("status = %q, want failed", c.Status)
	}
	if !strings.Contains(c.ErrorMessage, "insufficient") {
		t.Errorf("error message %q does not describe insufficient data", c.ErrorMessage)
	}

	var sawError bool
	for _, u := range sink.all() {
		if u.Type == "error" && u.Status == "failed" {
			sawError = true
		}
	}
	if !sawError {
		t.Error("expected an error update to be published")
	}
}

func TestOrchestrator_WeightsFromReferenceModel(t *testing.T) {
	s := newTestStore(t)
	frames := sineFrames(40)
	seedAnalysis(t, s, "learner-1", store.AnalysisCompleted, frames)
	seedAnalysis(t, s, "reference-1", store.AnalysisCompleted, frames)

	model := &store.ReferenceModel{
		ID:   "model-1",
		Name: "speed only",
		Kind: store.ReferenceCustom,
	}
	model.Weights.Speed = 1
	if err := s.References().Create(model); err != nil {
		t.Fatalf("failed to create reference model: %v", err)
	}

	c := &store.Comparison{
		ID:                  "cmp-1",
		LearnerAnalysisID:   "learner-1",
		ReferenceAnalysisID: "reference-1",
		ReferenceModelID:    "model-1",
	}
	if err := s.Comparisons().Create(c); err != nil {
		t.Fatalf("failed to create comparison: %v", err)
	}

	o := New(Config{Store: s})
	if err := o.Submit(context.Background(), "cmp-1"); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	o.Wait()

	got, _ := s.Comparisons().GetByID("cmp-1")
	if got.Status != store.ComparisonCompleted {
		t.Fatalf("status = %q (error: %q), want completed", got.Status, got.ErrorMessage)
	}
	// With all weight on speed, the overall equals the speed component.
	if got.OverallScore != got.Components.Speed {
		t.Errorf("overall = %v, speed = %v; speed-only weights must make them equal",
			got.OverallScore, got.Components.Speed)
	}
}

func TestResolveEntity(t *testing.T) {
	learner := []motion.RawFrame{{Entities: []motion.Entity{
		{ID: "hand-0", Kind: motion.KindHand},
		{ID: "bow-0", Kind: motion.KindInstrument},
	}}}
	reference := []motion.RawFrame{{Entities: []motion.Entity{
		{ID: "bow-0", Kind: motion.KindInstrument},
	}}}

	id, err := resolveEntity("", learner, reference)
	if err != nil {
		t.Fatalf("resolveEntity failed: %v", err)
	}
	if id != "bow-0" {
		t.Errorf("resolved %q, want the shared entity bow-0", id)
	}

	id, err = resolveEntity("hand-0", learner, reference)
	if err != nil || id != "hand-0" {
		t.Errorf("explicit request must win, got %q, %v", id, err)
	}

	if _, err := resolveEntity("", learner, nil); err == nil {
		t.Error("expected an error when no entity is shared")
	}
}
