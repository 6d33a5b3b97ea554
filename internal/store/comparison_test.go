package store

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ayusman/abhyasa/internal/align"
	"github.com/ayusman/abhyasa/internal/feedback"
	"github.com/ayusman/abhyasa/internal/motion"
	"github.com/ayusman/abhyasa/internal/score"
)

// seedAnalyses inserts the two analyses a comparison depends on.
func seedAnalyses(t *testing.T, s *Store) (learnerID, referenceID string) {
	t.Helper()

	frames := []motion.RawFrame{
		{FrameNumber: 0, TimestampMs: 0, Entities: []motion.Entity{
			{ID: "hand-0", Kind: motion.KindHand, Position: motion.Point3D{X: 1}, Confidence: 0.9},
		}},
		{FrameNumber: 1, TimestampMs: 33, Entities: []motion.Entity{
			{ID: "hand-0", Kind: motion.KindHand, Position: motion.Point3D{X: 2}, Confidence: 0.9},
		}},
	}

	for _, id := range []string{"learner-1", "reference-1"} {
		a := &Analysis{
			ID:      id,
			Label:   id,
			Status:  AnalysisCompleted,
			Frames:  frames,
			Quality: motion.QualityAnnotation{LostFrames: 2},
		}
		if err := s.Analyses().Create(a); err != nil {
			t.Fatalf("failed to create analysis %s: %v", id, err)
		}
	}
	return "learner-1", "reference-1"
}

func TestAnalysisRepository_Roundtrip(t *testing.T) {
	s := newTestStore(t)
	learnerID, _ := seedAnalyses(t, s)

	a, err := s.Analyses().GetByID(learnerID)
	if err != nil {
		t.Fatalf("failed to get analysis: %v", err)
	}

	if len(a.Frames) != 2 {
		t.Errorf("expected 2 frames, got %d", len(a.Frames))
	}
	if a.Frames[1].Entities[0].Position.X != 2 {
		t.Errorf("frame payload not preserved: %+v", a.Frames[1])
	}
	if a.Quality.LostFrames != 2 {
		t.Errorf("quality annotation not preserved: %+v", a.Quality)
	}
}

func TestAnalysisRepository_NotFound(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.Analyses().GetByID("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestReferenceRepository_Roundtrip(t *testing.T) {
	s := newTestStore(t)

	m := &ReferenceModel{
		ID:      "ref-model-1",
		Name:    "bow stroke basics",
		Kind:    ReferenceExpert,
		Weights: score.Weights{Speed: 0.4, Smoothness: 0.3, Stability: 0.2, Efficiency: 0.1},
	}
	if err := s.References().Create(m); err != nil {
		t.Fatalf("failed to create reference model: %v", err)
	}

	got, err := s.References().GetByID("ref-model-1")
	if err != nil {
		t.Fatalf("failed to get reference model: %v", err)
	}
	if got.Weights != m.Weights {
		t.Errorf("weights = %+v, want %+v", got.Weights, m.Weights)
	}
	if got.Kind != ReferenceExpert {
		t.Errorf("kind = %q, want expert", got.Kind)
	}
}

func TestComparisonRepository_Lifecycle(t *testing.T) {
	s := newTestStore(t)
	learnerID, referenceID := seedAnalyses(t, s)

	c := &Comparison{
		ID:                  "cmp-1",
		LearnerAnalysisID:   learnerID,
		ReferenceAnalysisID: referenceID,
	}
	if err := s.Comparisons().Create(c); err != nil {
		t.Fatalf("failed to create comparison: %v", err)
	}

	got, err := s.Comparisons().GetByID("cmp-1")
	if err != nil {
		t.Fatalf("failed to get comparison: %v", err)
	}
	if got.Status != ComparisonPending {
		t.Errorf("status = %q, want pending", got.Status)
	}

	if err := s.Comparisons().SetProcessing("cmp-1"); err != nil {
		t.Fatalf("failed to set processing: %v", err)
	}
	if err := s.Comparisons().SetProgress("cmp-1", 60); err != nil {
		t.Fatalf("failed to set progress: %v", err)
	}

	got, _ = s.Comparisons().GetByID("cmp-1")
	if got.Status != ComparisonProcessing || got.Progress != 60 {
		t.Errorf("status/progress = %q/%v, want processing/60", got.Status, got.Progress)
	}
}

func TestComparisonRepository_SaveResult(t *testing.T) {
	s := newTestStore(t)
	learnerID, referenceID := seedAnalyses(t, s)

	c := &Comparison{ID: "cmp-1", LearnerAnalysisID: learnerID, ReferenceAnalysisID: referenceID}
	if err := s.Comparisons().Create(c); err != nil {
		t.Fatalf("failed to create comparison: %v", err)
	}

	ts := int64(200)
	result := &ComparisonResult{
		OverallScore: 91.5,
		Components:   score.Components{Speed: 90, Smoothness: 92, Stability: 93, Efficiency: 91},
		DTWDistance:  1.25,
		Alignment: []align.Pair{
			{Learner: 0, Reference: 0, Cost: 0.5},
			{Learner: 1, Reference: 1, Cost: 0.75},
		},
		Feedback: &feedback.List{
			Strengths: []feedback.Item{{
				Category: feedback.CategoryStrength, Title: "Strong speed",
				Description: "d", Importance: 0.5, SpecificTimeMs: &ts,
			}},
			Weaknesses:  []feedback.Item{},
			Suggestions: []feedback.Item{},
		},
		Metrics: &score.MetricsComparison{
			Velocity: score.MetricPair{Learner: 10, Reference: 11, Difference: -1},
		},
	}

	if err := s.Comparisons().SaveResult("cmp-1", result); err != nil {
		t.Fatalf("failed to save result: %v", err)
	}

	got, err := s.Comparisons().GetByID("cmp-1")
	if err != nil {
		t.Fatalf("failed to get comparison: %v", err)
	}

	if got.Status != ComparisonCompleted {
		t.Errorf("status = %q, want completed", got.Status)
	}
	if got.Progress != 100 {
		t.Errorf("progress = %v, want 100", got.Progress)
	}
	if got.OverallScore != 91.5 {
		t.Errorf("overall = %v, want 91.5", got.OverallScore)
	}
	if diff := cmp.Diff(result.Alignment, got.Alignment); diff != "" {
		t.Errorf("alignment mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(result.Feedback, got.Feedback); diff != "" {
		t.Errorf("feedback mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(result.Metrics, got.Metrics); diff != "" {
		t.Errorf("metrics mismatch (-want +got):\n%s", diff)
	}
}

func TestComparisonRepository_SetFailedStaysQueryable(t *testing.T) {
	s := newTestStore(t)
	learnerID, referenceID := seedAnalyses(t, s)

	c := &Comparison{ID: "cmp-1", LearnerAnalysisID: learnerID, ReferenceAnalysisID: referenceID}
	if err := s.Comparisons().Create(c); err != nil {
		t.Fatalf("failed to create comparison: %v", err)
	}

	if err := s.Comparisons().SetFailed("cmp-1", "insufficient data: 1 usable samples, need 2"); err != nil {
		t.Fatalf("failed to set failed: %v", err)
	}

	got, err := s.Comparisons().GetByID("cmp-1")
	if err != nil {
		t.Fatalf("failed comparison must stay queryable: %v", err)
	}
	if got.Status != ComparisonFailed {
		t.Errorf("status = %q, want failed", got.Status)
	}
	if got.ErrorMessage == "" {
		t.Error("error message must be recorded")
	}
}

func TestComparisonRepository_WritesWrapPersistenceError(t *testing.T) {
	s := newTestStore(t)

	err := s.Comparisons().SetProgress("missing", 50)

	var pe *PersistenceError
	if !errors.As(err, &pe) {
		t.Fatalf("expected PersistenceError, got %v", err)
	}
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected wrapped ErrNotFound, got %v", err)
	}
}
