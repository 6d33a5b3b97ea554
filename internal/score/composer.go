// Package score maps aligned kinematic differences into component scores
// and an overall score.
package score

import (
	"fmt"
	"math"

	"github.com/ayusman/abhyasa/internal/align"
	"github.com/ayusman/abhyasa/internal/motion"
)

// Scoring constants. The decay rate and damping bounds were chosen by
// calibration (see composer_test.go) rather than derived from first
// principles.
const (
	// DefaultDecayK controls how fast the speed score falls off as the
	// learner/reference velocity ratio leaves 1.
	DefaultDecayK = 3.0
	// DampingFloor is the lowest confidence-damping factor ever applied.
	DampingFloor = 0.5
	// DefaultLowConfidenceBelow flags results whose damping factor fell
	// under this value.
	DefaultLowConfidenceBelow = 0.85

	weightSumTolerance = 0.01
)

// InvalidWeightsError reports a malformed weight vector.
type InvalidWeightsError struct {
	Reason string
}

func (e *InvalidWeightsError) Error() string {
	return "invalid weights: " + e.Reason
}

// Weights is the per-component weight vector supplied by a reference model.
type Weights struct {
	Speed      float64 `json:"speed"`
	Smoothness float64 `json:"smoothness"`
	Stability  float64 `json:"stability"`
	Efficiency float64 `json:"efficiency"`
}

// DefaultWeights weighs all four components equally.
func DefaultWeights() Weights {
	return Weights{Speed: 0.25, Smoothness: 0.25, Stability: 0.25, Efficiency: 0.25}
}

// Normalize validates the vector and rescales it to sum to 1. Vectors
// already summing to ≈1 are returned unchanged so exact weight setups
// (e.g. {1,0,0,0}) survive byte-for-byte.
func (w Weights) Normalize() (Weights, error) {
	vals := [4]float64{w.Speed, w.Smoothness, w.Stability, w.Efficiency}
	sum := 0.0
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Weights{}, &InvalidWeightsError{Reason: "non-finite weight"}
		}
		if v < 0 {
			return Weights{}, &InvalidWeightsError{Reason: fmt.Sprintf("negative weight %v", v)}
		}
		sum += v
	}
	if sum <= 0 {
		return Weights{}, &InvalidWeightsError{Reason: "weights sum to zero"}
	}
	if math.Abs(sum-1) <= weightSumTolerance {
		return w, nil
	}
	return Weights{
		Speed:      w.Speed / sum,
		Smoothness: w.Smoothness / sum,
		Stability:  w.Stability / sum,
		Efficiency: w.Efficiency / sum,
	}, nil
}

// Components holds the four sub-scores, each in [0,100].
type Components struct {
	Speed      float64 `json:"speed"`
	Smoothness float64 `json:"smoothness"`
	Stability  float64 `json:"stability"`
	Efficiency float64 `json:"efficiency"`
}

// MetricPair is one row of the metrics comparison snapshot.
type MetricPair struct {
	Learner    float64 `json:"learner"`
	Reference  float64 `json:"reference"`
	Difference float64 `json:"difference"`
}

// MetricsComparison is the per-dimension learner/reference/difference
// snapshot persisted alongside the scores.
type MetricsComparison struct {
	Velocity   MetricPair `json:"velocity"`
	Smoothness MetricPair `json:"smoothness"`
	Stability  MetricPair `json:"stability"`
	Efficiency MetricPair `json:"efficiency"`
}

// Result is the full scoring output for one comparison.
type Result struct {
	Components    Components
	Overall       float64
	DampingFactor float64
	LowConfidence bool
	Metrics       MetricsComparison
}

// Composer turns kinematic profiles plus an alignment into scores.
type Composer struct {
	decayK             float64
	lowConfidenceBelow float64
}

// NewComposer creates a Composer. Out-of-range constants fall back to the
// documented defaults.
func NewComposer(decayK, lowConfidenceBelow float64) *Composer {
	if decayK <= 0 {
		decayK = DefaultDecayK
	}
	if lowConfidenceBelow <= 0 || lowConfidenceBelow > 1 {
		lowConfidenceBelow = DefaultLowConfidenceBelow
	}
	return &Composer{decayK: decayK, lowConfidenceBelow: lowConfidenceBelow}
}

// Compose computes the component scores, overall score, and metrics snapshot.
// Velocity aggregates are taken along the alignment path; the profile-level
// smoothness, stability, and efficiency metrics are compared as ratios.
func (c *Composer) Compose(learner, reference *motion.Profile, alignment *align.Result, w Weights, quality motion.QualityAnnotation, totalFrames int) (*Result, error) {
	weights, err := w.Normalize()
	if err != nil {
		return nil, err
	}

	lVel := motion.MeanAt(learner.Velocity, alignment.LearnerIndices())
	rVel := motion.MeanAt(reference.Velocity, alignment.ReferenceIndices())

	comp := Components{
		Speed:      speedScore(lVel, rVel, c.decayK),
		Smoothness: ratioScore(learner.Smoothness, reference.Smoothness),
		Stability:  ratioScore(learner.Stability, reference.Stability),
		Efficiency: ratioScore(learner.EfficiencyRatio, reference.EfficiencyRatio),
	}

	damping := dampingFactor(quality, totalFrames)
	comp.Speed *= damping
	comp.Smoothness *= damping
	comp.Stability *= damping
	comp.Efficiency *= damping

	overall := clip(weights.Speed*comp.Speed +
		weights.Smoothness*comp.Smoothness +
		weights.Stability*comp.Stability +
		weights.Efficiency*comp.Efficiency)

	return &Result{
		Components:    comp,
		Overall:       overall,
		DampingFactor: damping,
		LowConfidence: damping < c.lowConfidenceBelow,
		Metrics: MetricsComparison{
			Velocity:   pair(lVel, rVel),
			Smoothness: pair(learner.Smoothness, reference.Smoothness),
			Stability:  pair(learner.Stability, reference.Stability),
			Efficiency: pair(learner.EfficiencyRatio, reference.EfficiencyRatio),
		},
	}, nil
}

// speedScore decays exponentially as the aligned velocity ratio leaves 1.
func speedScore(learnerVel, referenceVel, k float64) float64 {
	var ratio float64
	switch {
	case referenceVel > 0:
		ratio = learnerVel / referenceVel
	case learnerVel == 0:
		ratio = 1 // both stationary
	default:
		ratio = math.Inf(1)
	}
	if math.IsInf(ratio, 1) {
		return 0
	}
	return clip(100 * math.Exp(-k*math.Abs(ratio-1)))
}

// ratioScore maps a learner/reference metric ratio into [0,100].
func ratioScore(learner, reference float64) float64 {
	if reference <= 0 {
		if learner <= 0 {
			return 100
		}
		return 0
	}
	return clip(100 * learner / reference)
}

// dampingFactor derives the confidence-damping multiplier from tracking
// quality: 1 − 0.5·lost/total, floored at DampingFloor.
func dampingFactor(q motion.QualityAnnotation, totalFrames int) float64 {
	if totalFrames <= 0 || q.LostFrames <= 0 {
		return 1
	}
	f := 1 - 0.5*float64(q.LostFrames)/float64(totalFrames)
	return math.Max(DampingFloor, f)
}

func pair(learner, reference float64) MetricPair {
	return MetricPair{Learner: learner, Reference: reference, Difference: learner - reference}
}

func clip(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}
