// Package compare orchestrates one motion comparison run end to end: it
// sequences normalization, kinematics, alignment, scoring, and feedback,
// owns the comparison record's status transitions, and emits progress.
package compare

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ayusman/abhyasa/internal/align"
	"github.com/ayusman/abhyasa/internal/feedback"
	"github.com/ayusman/abhyasa/internal/motion"
	"github.com/ayusman/abhyasa/internal/notify"
	"github.com/ayusman/abhyasa/internal/score"
	"github.com/ayusman/abhyasa/internal/store"
)

// Progress checkpoints emitted after each stage.
const (
	progressNormalize  = 10
	progressKinematics = 30
	progressAlignment  = 60
	progressScoring    = 80
	progressFeedback   = 100
)

// Defaults for run configuration.
const (
	DefaultMaxStoredAlignmentPairs = 200
	DefaultPersistRetries          = 3
	DefaultPersistBackoff          = 100 * time.Millisecond
)

// Notifier is the port through which the orchestrator publishes progress.
type Notifier interface {
	Publish(notify.Update)
}

// Config holds construction options for the Orchestrator. Zero values fall
// back to documented defaults.
type Config struct {
	Store    *store.Store
	Notifier Notifier

	ConfidenceThreshold float64
	MaxGapFrames        int
	DTWBand             int
	DecayK              float64
	LowConfidenceBelow  float64
	FeedbackLow         float64
	FeedbackHigh        float64
	FeedbackMax         int

	MaxStoredAlignmentPairs int
	PersistRetries          int
	PersistBackoff          time.Duration
}

// Orchestrator runs comparisons. Each submitted comparison executes on its
// own goroutine; at most one run per comparison id may be active at a time.
type Orchestrator struct {
	store       *store.Store
	notifier    Notifier
	normalizer  *motion.Normalizer
	aligner     *align.Aligner
	composer    *score.Composer
	synthesizer *feedback.Synthesizer
	log         *logrus.Entry

	maxStoredPairs int
	retries        int
	backoff        time.Duration

	active *activeSet
}

// New creates an Orchestrator from the given configuration.
func New(cfg Config) *Orchestrator {
	if cfg.MaxStoredAlignmentPairs <= 0 {
		cfg.MaxStoredAlignmentPairs = DefaultMaxStoredAlignmentPairs
	}
	if cfg.PersistRetries <= 0 {
		cfg.PersistRetries = DefaultPersistRetries
	}
	if cfg.PersistBackoff <= 0 {
		cfg.PersistBackoff = DefaultPersistBackoff
	}

	return &Orchestrator{
		store:          cfg.Store,
		notifier:       cfg.Notifier,
		normalizer:     motion.NewNormalizer(cfg.ConfidenceThreshold, cfg.MaxGapFrames),
		aligner:        align.New(cfg.DTWBand),
		composer:       score.NewComposer(cfg.DecayK, cfg.LowConfidenceBelow),
		synthesizer:    feedback.NewSynthesizer(cfg.FeedbackLow, cfg.FeedbackHigh, cfg.FeedbackMax),
		log:            logrus.WithField("component", "compare"),
		maxStoredPairs: cfg.MaxStoredAlignmentPairs,
		retries:        cfg.PersistRetries,
		backoff:        cfg.PersistBackoff,
		active:         newActiveSet(),
	}
}

// Submit validates a comparison's dependencies, transitions it to
// processing, and launches its run goroutine. A duplicate trigger while the
// comparison is running is rejected with ErrAlreadyRunning; the dependency
// check fails fast with DependencyNotReadyError, leaving the record in its
// previous state.
func (o *Orchestrator) Submit(ctx context.Context, comparisonID string) error {
	c, err := o.store.Comparisons().GetByID(comparisonID)
	if err != nil {
		return err
	}

	if !o.active.add(comparisonID) {
		return ErrAlreadyRunning
	}

	learner, reference, weights, err := o.loadInputs(c)
	if err != nil {
		o.active.remove(comparisonID)
		return err
	}

	if err := o.store.Comparisons().SetProcessing(comparisonID); err != nil {
		o.active.remove(comparisonID)
		return err
	}

	go o.run(ctx, c, learner, reference, weights)
	return nil
}

// Running reports whether a run is currently active for the comparison id.
func (o *Orchestrator) Running(comparisonID string) bool {
	return o.active.has(comparisonID)
}

// Wait blocks until no runs are active. Used on shutdown and in tests.
func (o *Orchestrator) Wait() {
	o.active.wait()
}

// loadInputs resolves both source analyses and the score weights. Both
// analyses must already be completed.
func (o *Orchestrator) loadInputs(c *store.Comparison) (learner, reference *store.Analysis, weights score.Weights, err error) {
	learner, err = o.store.Analyses().GetByID(c.LearnerAnalysisID)
	if err != nil {
		return nil, nil, score.Weights{}, fmt.Errorf("learner analysis: %w", err)
	}
	if learner.Status != store.AnalysisCompleted {
		return nil, nil, score.Weights{}, &DependencyNotReadyError{AnalysisID: learner.ID, Status: string(learner.Status)}
	}

	reference, err = o.store.Analyses().GetByID(c.ReferenceAnalysisID)
	if err != nil {
		return nil, nil, score.Weights{}, fmt.Errorf("reference analysis: %w", err)
	}
	if reference.Status != store.AnalysisCompleted {
		return nil, nil, score.Weights{}, &DependencyNotReadyError{AnalysisID: reference.ID, Status: string(reference.Status)}
	}

	weights = score.DefaultWeights()
	if c.ReferenceModelID != "" {
		model, err := o.store.References().GetByID(c.ReferenceModelID)
		if err != nil {
			return nil, nil, score.Weights{}, fmt.Errorf("reference model: %w", err)
		}
		weights = model.Weights
	}

	return learner, reference, weights, nil
}

// run executes the stage sequence for one comparison. Any stage error moves
// the record to failed with the error recorded verbatim; a successful run
// persists the full result all-or-nothing.
func (o *Orchestrator) run(ctx context.Context, c *store.Comparison, learner, reference *store.Analysis, weights score.Weights) {
	defer o.active.remove(c.ID)

	log := o.log.WithField("comparison_id", c.ID)
	o.emit(c.ID, "start", "processing", 0, "comparison started")

	result, err := o.runStages(c, learner, reference, weights)
	if err != nil {
		log.WithError(err).Warn("comparison failed")
		o.fail(c.ID, err)
		return
	}

	if err := o.persistResult(ctx, c.ID, result); err != nil {
		log.WithError(err).Error("result write failed after retries")
		o.fail(c.ID, err)
		return
	}

	log.WithField("overall", result.OverallScore).Info("comparison completed")
	o.emit(c.ID, "feedback", "completed", progressFeedback, "comparison completed")
}

// runStages performs normalize → kinematics → alignment → scoring →
// feedback, emitting a checkpoint after each stage.
func (o *Orchestrator) runStages(c *store.Comparison, learner, reference *store.Analysis, weights score.Weights) (*store.ComparisonResult, error) {
	// Stage 1: normalize both trajectories for the compared entity.
	entityID, err := resolveEntity(c.EntityID, learner.Frames, reference.Frames)
	if err != nil {
		return nil, err
	}
	learnerTraj, learnerStats, err := o.normalizer.Entity(learner.Frames, entityID)
	if err != nil {
		return nil, err
	}
	referenceTraj, referenceStats, err := o.normalizer.Entity(reference.Frames, entityID)
	if err != nil {
		return nil, err
	}
	o.log.WithFields(logrus.Fields{
		"comparison_id":             c.ID,
		"entity_id":                 entityID,
		"learner_dropped":           learnerStats.Dropped,
		"learner_interpolated":      learnerStats.Interpolated,
		"learner_discontinuities":   learnerStats.Discontinuities,
		"reference_dropped":         referenceStats.Dropped,
		"reference_interpolated":    referenceStats.Interpolated,
		"reference_discontinuities": referenceStats.Discontinuities,
	}).Info("trajectories normalized")
	o.progress(c.ID, "normalize", progressNormalize)

	// Stage 2: kinematic profiles.
	learnerProf, err := motion.ComputeProfile(learnerTraj)
	if err != nil {
		return nil, err
	}
	referenceProf, err := motion.ComputeProfile(referenceTraj)
	if err != nil {
		return nil, err
	}
	o.progress(c.ID, "kinematics", progressKinematics)

	// Stage 3: temporal alignment.
	alignment, err := o.aligner.Align(positions(learnerTraj), positions(referenceTraj))
	if err != nil {
		return nil, err
	}
	o.progress(c.ID, "alignment", progressAlignment)

	// Stage 4: scoring.
	scored, err := o.composer.Compose(learnerProf, referenceProf, alignment, weights, learner.Quality, len(learner.Frames))
	if err != nil {
		return nil, err
	}
	o.progress(c.ID, "scoring", progressScoring)

	// Stage 5: feedback.
	fb := o.synthesizer.Synthesize(scored, alignment, learnerTraj)

	return &store.ComparisonResult{
		OverallScore: scored.Overall,
		Components:   scored.Components,
		DTWDistance:  alignment.Distance,
		Alignment:    alignment.Downsample(o.maxStoredPairs),
		Feedback:     fb,
		Metrics:      &scored.Metrics,
	}, nil
}

// persistResult writes the final result, retrying persistence failures with
// doubling backoff.
func (o *Orchestrator) persistResult(ctx context.Context, id string, result *store.ComparisonResult) error {
	var err error
	backoff := o.backoff
	for attempt := 0; attempt <= o.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		err = o.store.Comparisons().SaveResult(id, result)
		if err == nil {
			return nil
		}
		var pe *store.PersistenceError
		if !errors.As(err, &pe) {
			return err
		}
	}
	return err
}

// fail records the error verbatim and moves the comparison to failed state.
func (o *Orchestrator) fail(id string, cause error) {
	if err := o.store.Comparisons().SetFailed(id, cause.Error()); err != nil {
		o.log.WithError(err).WithField("comparison_id", id).Error("failed to record failure")
	}
	if o.notifier != nil {
		o.notifier.Publish(notify.Update{
			Type:         "error",
			ComparisonID: id,
			Step:         "error",
			Status:       "failed",
			Message:      cause.Error(),
		})
	}
}

// progress persists a checkpoint and notifies subscribers.
func (o *Orchestrator) progress(id, step string, pct float64) {
	if err := o.store.Comparisons().SetProgress(id, pct); err != nil {
		o.log.WithError(err).WithField("comparison_id", id).Warn("progress write failed")
	}
	o.emit(id, step, "processing", pct, step+" complete")
}

// emit publishes a progress update; delivery is fire-and-forget.
func (o *Orchestrator) emit(id, step, status string, pct float64, message string) {
	if o.notifier == nil {
		return
	}
	o.notifier.Publish(notify.Update{
		Type:         "progress",
		ComparisonID: id,
		Step:         step,
		Status:       status,
		Progress:     pct,
		Message:      message,
	})
}

// resolveEntity picks the tracked entity to compare: the requested one, or
// the first id present in both analyses.
func resolveEntity(requested string, learnerFrames, referenceFrames []motion.RawFrame) (string, error) {
	if requested != "" {
		return requested, nil
	}
	refIDs := make(map[string]bool)
	for _, id := range motion.EntityIDs(referenceFrames) {
		refIDs[id] = true
	}
	for _, id := range motion.EntityIDs(learnerFrames) {
		if refIDs[id] {
			return id, nil
		}
	}
	return "", errors.New("no tracked entity common to both analyses")
}

// positions extracts the position series of a trajectory.
func positions(t *motion.Trajectory) []motion.Point3D {
	out := make([]motion.Point3D, t.Len())
	for i, s := range t.Samples {
		out[i] = s.Position
	}
	return out
}
