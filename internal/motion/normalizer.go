package motion

import "sort"

// Default normalization parameters, used when a caller supplies invalid ones.
const (
	DefaultConfidenceThreshold = 0.5
	DefaultMaxGapFrames        = 5
	minUsableSamples           = 2
)

// NormalizeStats summarizes what normalization did to one entity's samples.
type NormalizeStats struct {
	TotalFrames     int
	Dropped         int
	Interpolated    int
	Discontinuities int
}

// Normalizer cleans raw tracker frames into per-entity trajectories.
// Low-confidence samples are dropped, short gaps are linearly interpolated,
// and long gaps are recorded as explicit discontinuities.
type Normalizer struct {
	confidenceThreshold float64
	maxGapFrames        int
}

// NewNormalizer creates a Normalizer. Out-of-range parameters fall back to
// the documented defaults.
func NewNormalizer(confidenceThreshold float64, maxGapFrames int) *Normalizer {
	if confidenceThreshold <= 0 || confidenceThreshold >= 1 {
		confidenceThreshold = DefaultConfidenceThreshold
	}
	if maxGapFrames < 0 {
		maxGapFrames = DefaultMaxGapFrames
	}
	return &Normalizer{
		confidenceThreshold: confidenceThreshold,
		maxGapFrames:        maxGapFrames,
	}
}

// EntityIDs returns the ids of all entities observed in the frames, sorted
// for deterministic iteration.
func EntityIDs(frames []RawFrame) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, f := range frames {
		for _, e := range f.Entities {
			if !seen[e.ID] {
				seen[e.ID] = true
				ids = append(ids, e.ID)
			}
		}
	}
	sort.Strings(ids)
	return ids
}

// observation is one raw sighting of an entity, kept during cleaning.
type observation struct {
	frame  int
	sample Sample
	kind   EntityKind
}

// Entity extracts and cleans the trajectory of one entity.
// Returns InsufficientDataError when fewer than two usable samples remain.
func (n *Normalizer) Entity(frames []RawFrame, entityID string) (*Trajectory, NormalizeStats, error) {
	stats := NormalizeStats{TotalFrames: len(frames)}

	// Collect usable observations in frame order, dropping low-confidence
	// samples and out-of-order timestamps.
	var obs []observation
	lastTS := int64(-1)
	for _, f := range frames {
		for _, e := range f.Entities {
			if e.ID != entityID {
				continue
			}
			if e.Confidence < n.confidenceThreshold || f.TimestampMs <= lastTS {
				stats.Dropped++
				continue
			}
			obs = append(obs, observation{
				frame: f.FrameNumber,
				kind:  e.Kind,
				sample: Sample{
					TimestampMs: f.TimestampMs,
					Position:    e.Position,
					Confidence:  e.Confidence,
				},
			})
			lastTS = f.TimestampMs
		}
	}

	if len(obs) < minUsableSamples {
		return nil, stats, &InsufficientDataError{EntityID: entityID, Got: len(obs), Need: minUsableSamples}
	}

	traj := &Trajectory{
		EntityID: entityID,
		Kind:     obs[0].kind,
		Samples:  make([]Sample, 0, len(obs)),
	}
	traj.Samples = append(traj.Samples, obs[0].sample)

	for i := 1; i < len(obs); i++ {
		gap := obs[i].frame - obs[i-1].frame - 1
		switch {
		case gap > 0 && gap <= n.maxGapFrames:
			// Fill the missing frames by linear interpolation between the
			// bracketing samples. A gap wider in frames than in milliseconds
			// cannot hold a distinct timestamp per missing frame; points that
			// would break strict timestamp order are not emitted.
			a, b := obs[i-1].sample, obs[i].sample
			lastTS := a.TimestampMs
			for g := 1; g <= gap; g++ {
				frac := float64(g) / float64(gap+1)
				s := lerpSample(a, b, frac)
				if s.TimestampMs <= lastTS || s.TimestampMs >= b.TimestampMs {
					continue
				}
				traj.Samples = append(traj.Samples, s)
				stats.Interpolated++
				lastTS = s.TimestampMs
			}
		case gap > n.maxGapFrames:
			// Too long to trust interpolation: leave a discontinuity at the
			// first sample after the gap.
			traj.Breaks = append(traj.Breaks, len(traj.Samples))
			stats.Discontinuities++
		}
		traj.Samples = append(traj.Samples, obs[i].sample)
	}

	return traj, stats, nil
}

// lerpSample linearly interpolates between two samples at fraction frac.
func lerpSample(a, b Sample, frac float64) Sample {
	return Sample{
		TimestampMs: a.TimestampMs + int64(frac*float64(b.TimestampMs-a.TimestampMs)),
		Position: Point3D{
			X: a.Position.X + frac*(b.Position.X-a.Position.X),
			Y: a.Position.Y + frac*(b.Position.Y-a.Position.Y),
			Z: a.Position.Z + frac*(b.Position.Z-a.Position.Z),
		},
		Confidence: a.Confidence + frac*(b.Confidence-a.Confidence),
	}
}
