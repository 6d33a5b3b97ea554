// Package feedback turns score deficits, surpluses, and alignment anomalies
// into ranked feedback items.
package feedback

import (
	"fmt"
	"sort"

	"github.com/ayusman/abhyasa/internal/align"
	"github.com/ayusman/abhyasa/internal/motion"
	"github.com/ayusman/abhyasa/internal/score"
)

// Default synthesis thresholds.
const (
	DefaultThresholdLow  = 60.0
	DefaultThresholdHigh = 85.0
	DefaultMaxPerList    = 5
)

// Category classifies a feedback item.
type Category string

const (
	CategoryStrength   Category = "strength"
	CategoryWeakness   Category = "weakness"
	CategorySuggestion Category = "suggestion"
)

// Item is one piece of structured feedback.
type Item struct {
	Category       Category `json:"category"`
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Importance     float64  `json:"importance"`
	SpecificTimeMs *int64   `json:"specific_time_ms,omitempty"`
}

// List groups feedback items by category, each sorted by descending
// importance and capped.
type List struct {
	Strengths   []Item `json:"strengths"`
	Weaknesses  []Item `json:"weaknesses"`
	Suggestions []Item `json:"suggestions"`
}

// dimension is one scored aspect of the motion, in the fixed order used for
// deterministic output.
type dimension struct {
	name       string
	score      float64
	praise     string
	critique   string
	suggestion string
}

// Synthesizer applies the deterministic feedback rules. Identical inputs
// always yield an identical List.
type Synthesizer struct {
	thresholdLow  float64
	thresholdHigh float64
	maxPerList    int
}

// NewSynthesizer creates a Synthesizer. Out-of-range thresholds fall back to
// the documented defaults.
func NewSynthesizer(thresholdLow, thresholdHigh float64, maxPerList int) *Synthesizer {
	if thresholdLow <= 0 || thresholdLow >= 100 {
		thresholdLow = DefaultThresholdLow
	}
	if thresholdHigh <= thresholdLow || thresholdHigh >= 100 {
		thresholdHigh = DefaultThresholdHigh
	}
	if maxPerList <= 0 {
		maxPerList = DefaultMaxPerList
	}
	return &Synthesizer{thresholdLow: thresholdLow, thresholdHigh: thresholdHigh, maxPerList: maxPerList}
}

// Synthesize builds the feedback list for one scored comparison. The learner
// trajectory anchors suggestions to the moment of the worst alignment cost.
func (s *Synthesizer) Synthesize(res *score.Result, alignment *align.Result, learner *motion.Trajectory) *List {
	dims := []dimension{
		{
			name:       "speed",
			score:      res.Components.Speed,
			praise:     "Your tempo closely matches the reference motion.",
			critique:   "Your tempo deviates from the reference motion.",
			suggestion: "Practice with a metronome or slowed-down reference to settle into the reference tempo.",
		},
		{
			name:       "smoothness",
			score:      res.Components.Smoothness,
			praise:     "Your motion flows as smoothly as the reference.",
			critique:   "Your motion is jerkier than the reference.",
			suggestion: "Slow the passage down and focus on continuous, unbroken movement before returning to full speed.",
		},
		{
			name:       "stability",
			score:      res.Components.Stability,
			praise:     "Your movement speed is as consistent as the reference.",
			critique:   "Your movement speed fluctuates more than the reference.",
			suggestion: "Work on holding an even pace through the full phrase instead of rushing and braking.",
		},
		{
			name:       "efficiency",
			score:      res.Components.Efficiency,
			praise:     "Your motion path is as direct as the reference.",
			critique:   "Your motion path wanders more than the reference.",
			suggestion: "Reduce extraneous motion: aim for the shortest comfortable path between positions.",
		},
	}

	list := &List{
		Strengths:   []Item{},
		Weaknesses:  []Item{},
		Suggestions: []Item{},
	}

	worstTime := s.worstPairTime(alignment, learner)

	for _, d := range dims {
		switch {
		case d.score < s.thresholdLow:
			importance := (s.thresholdLow - d.score) / s.thresholdLow
			list.Weaknesses = append(list.Weaknesses, Item{
				Category:    CategoryWeakness,
				Title:       fmt.Sprintf("Low %s score", d.name),
				Description: d.critique,
				Importance:  importance,
			})
			list.Suggestions = append(list.Suggestions, Item{
				Category:       CategorySuggestion,
				Title:          fmt.Sprintf("Improve %s", d.name),
				Description:    d.suggestion,
				Importance:     importance,
				SpecificTimeMs: worstTime,
			})
		case d.score > s.thresholdHigh:
			list.Strengths = append(list.Strengths, Item{
				Category:    CategoryStrength,
				Title:       fmt.Sprintf("Strong %s", d.name),
				Description: d.praise,
				Importance:  (d.score - s.thresholdHigh) / (100 - s.thresholdHigh),
			})
		}
	}

	if res.LowConfidence {
		list.Suggestions = append(list.Suggestions, Item{
			Category:    CategorySuggestion,
			Title:       "Low tracking confidence",
			Description: "Tracking lost many frames, so scores were damped. Re-record with better lighting and framing for a more reliable comparison.",
			Importance:  1 - res.DampingFactor,
		})
	}

	list.Strengths = rank(list.Strengths, s.maxPerList)
	list.Weaknesses = rank(list.Weaknesses, s.maxPerList)
	list.Suggestions = rank(list.Suggestions, s.maxPerList)

	return list
}

// worstPairTime resolves the learner timestamp of the alignment pair with
// the largest local cost.
func (s *Synthesizer) worstPairTime(alignment *align.Result, learner *motion.Trajectory) *int64 {
	if alignment == nil || len(alignment.Path) == 0 || learner == nil {
		return nil
	}
	worst := alignment.WorstPair()
	if worst.Learner < 0 || worst.Learner >= learner.Len() {
		return nil
	}
	ts := learner.Samples[worst.Learner].TimestampMs
	return &ts
}

// rank sorts items by descending importance and truncates to max. The sort
// is stable so equal-importance items keep the fixed dimension order.
func rank(items []Item, max int) []Item {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Importance > items[j].Importance
	})
	if len(items) > max {
		items = items[:max]
	}
	return items
}
