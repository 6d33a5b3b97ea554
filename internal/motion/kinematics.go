package motion

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// stabilityWindow is the number of consecutive velocity samples over which
// local variance is measured.
const stabilityWindow = 5

// Profile holds the kinematic series and aggregates derived from one
// trajectory. The derivative series are indexed positionally against the
// source trajectory; entries that cannot be computed (the leading samples
// and anything spanning a discontinuity) are NaN.
type Profile struct {
	Velocity     []float64
	Acceleration []float64
	Jerk         []float64

	PathLength      float64
	Displacement    float64
	EfficiencyRatio float64

	MeanVelocity float64
	Smoothness   float64
	Stability    float64
}

// ComputeProfile derives the kinematic profile of a trajectory.
// Returns InsufficientDataError when the trajectory has fewer than two
// samples.
func ComputeProfile(t *Trajectory) (*Profile, error) {
	n := t.Len()
	if n < minUsableSamples {
		return nil, &InsufficientDataError{EntityID: t.EntityID, Got: n, Need: minUsableSamples}
	}

	p := &Profile{
		Velocity:     nanSeries(n),
		Acceleration: nanSeries(n),
		Jerk:         nanSeries(n),
	}

	// First pass: segment velocities and path length. Segments crossing a
	// discontinuity contribute neither.
	for i := 1; i < n; i++ {
		if t.IsBreak(i) {
			continue
		}
		dt := dtSeconds(t.Samples[i-1], t.Samples[i])
		if dt <= 0 {
			continue
		}
		d := Dist(t.Samples[i-1].Position, t.Samples[i].Position)
		p.Velocity[i] = d / dt
		p.PathLength += d
	}

	// Second pass: acceleration from adjacent valid velocities.
	for i := 2; i < n; i++ {
		if math.IsNaN(p.Velocity[i]) || math.IsNaN(p.Velocity[i-1]) {
			continue
		}
		dt := dtSeconds(t.Samples[i-1], t.Samples[i])
		if dt <= 0 {
			continue
		}
		p.Acceleration[i] = (p.Velocity[i] - p.Velocity[i-1]) / dt
	}

	// Third pass: jerk from adjacent valid accelerations.
	for i := 3; i < n; i++ {
		if math.IsNaN(p.Acceleration[i]) || math.IsNaN(p.Acceleration[i-1]) {
			continue
		}
		dt := dtSeconds(t.Samples[i-1], t.Samples[i])
		if dt <= 0 {
			continue
		}
		p.Jerk[i] = (p.Acceleration[i] - p.Acceleration[i-1]) / dt
	}

	p.Displacement = Dist(t.Samples[0].Position, t.Samples[n-1].Position)
	if p.PathLength > 0 {
		p.EfficiencyRatio = math.Min(1, p.Displacement/p.PathLength)
	} else {
		// Stationary trajectory: nothing wasted, nothing gained.
		p.EfficiencyRatio = 1
	}

	p.MeanVelocity = meanValid(p.Velocity)
	p.Smoothness = smoothness(p.Jerk, p.MeanVelocity)
	p.Stability = stability(p.Velocity, p.MeanVelocity)

	return p, nil
}

// smoothness maps RMS jerk, normalized by mean speed, into (0,1].
// Normalizing by speed keeps the metric unchanged under a uniform velocity
// scaling of the whole trajectory.
func smoothness(jerk []float64, meanVelocity float64) float64 {
	valid := validValues(jerk)
	if len(valid) == 0 || meanVelocity <= 0 {
		return 1
	}
	var sumSq float64
	for _, j := range valid {
		sumSq += j * j
	}
	rms := math.Sqrt(sumSq / float64(len(valid)))
	return 1 / (1 + rms/meanVelocity)
}

// stability maps windowed velocity variance, normalized by the squared mean
// speed, into (0,1].
func stability(velocity []float64, meanVelocity float64) float64 {
	valid := validValues(velocity)
	if len(valid) < stabilityWindow || meanVelocity <= 0 {
		return 1
	}
	var sum float64
	var windows int
	for i := 0; i+stabilityWindow <= len(valid); i++ {
		sum += stat.Variance(valid[i:i+stabilityWindow], nil)
		windows++
	}
	normVar := (sum / float64(windows)) / (meanVelocity * meanVelocity)
	return 1 / (1 + normVar)
}

// dtSeconds returns the time delta between two samples in seconds.
func dtSeconds(a, b Sample) float64 {
	return float64(b.TimestampMs-a.TimestampMs) / 1000.0
}

// nanSeries allocates a series of length n filled with NaN.
func nanSeries(n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = math.NaN()
	}
	return s
}

// validValues returns the non-NaN entries of a series.
func validValues(series []float64) []float64 {
	out := make([]float64, 0, len(series))
	for _, v := range series {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

// meanValid averages the non-NaN entries of a series, or 0 if none exist.
func meanValid(series []float64) float64 {
	valid := validValues(series)
	if len(valid) == 0 {
		return 0
	}
	return stat.Mean(valid, nil)
}

// MeanAt averages the series values at the given indices, skipping NaN
// entries. Used for aggregation along an alignment path.
func MeanAt(series []float64, indices []int) float64 {
	var sum float64
	var n int
	for _, i := range indices {
		if i < 0 || i >= len(series) || math.IsNaN(series[i]) {
			continue
		}
		sum += series[i]
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
