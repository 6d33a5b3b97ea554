// Package align computes the optimal temporal correspondence between two
// motion sequences using dynamic time warping.
package align

import (
	"math"

	"github.com/ayusman/abhyasa/internal/motion"
)

// Pair is one correspondence on the alignment path, with its local cost.
type Pair struct {
	Learner   int     `json:"learner"`
	Reference int     `json:"reference"`
	Cost      float64 `json:"cost"`
}

// Result is a full DTW alignment: the warping path from (0,0) to
// (lastL,lastR), monotonic non-decreasing in both indices, and the cumulative
// distance at the terminal cell.
type Result struct {
	Path     []Pair  `json:"path"`
	Distance float64 `json:"distance"`
}

// Error reports a numerical failure during alignment.
type Error struct {
	Reason string
}

func (e *Error) Error() string {
	return "alignment failed: " + e.Reason
}

// Aligner runs DTW over per-sample positions with an optional Sakoe-Chiba
// band. A band of 0 means unconstrained.
type Aligner struct {
	band int
}

// New creates an Aligner. Negative band widths fall back to unconstrained.
func New(band int) *Aligner {
	if band < 0 {
		band = 0
	}
	return &Aligner{band: band}
}

// Align computes the DTW alignment between the learner and reference
// position sequences. Returns motion.InsufficientDataError if either side
// has fewer than two samples, and *Error on NaN costs.
func (a *Aligner) Align(learner, reference []motion.Point3D) (*Result, error) {
	n, m := len(learner), len(reference)
	if n < 2 {
		return nil, &motion.InsufficientDataError{Got: n, Need: 2}
	}
	if m < 2 {
		return nil, &motion.InsufficientDataError{Got: m, Need: 2}
	}

	if zeroVariance(learner) && zeroVariance(reference) {
		return identityResult(n, m), nil
	}

	// Widen the band so the corner cells stay reachable when the sequences
	// differ in length.
	band := a.band
	if band > 0 && band < abs(n-m) {
		band = abs(n - m)
	}

	d := newCostMatrix(n, m, band)

	for i := 0; i < n; i++ {
		lo, hi := d.window(i)
		for j := lo; j <= hi; j++ {
			c := motion.Dist(learner[i], reference[j])
			if math.IsNaN(c) {
				return nil, &Error{Reason: "NaN cost in DTW matrix"}
			}
			switch {
			case i == 0 && j == 0:
				d.set(i, j, c)
			case i == 0:
				d.set(i, j, c+d.at(i, j-1))
			case j == 0:
				d.set(i, j, c+d.at(i-1, j))
			default:
				d.set(i, j, c+min3(d.at(i-1, j-1), d.at(i-1, j), d.at(i, j-1)))
			}
		}
	}

	if math.IsInf(d.at(n-1, m-1), 1) || math.IsNaN(d.at(n-1, m-1)) {
		return nil, &Error{Reason: "terminal cell unreachable"}
	}

	return backtrack(d, learner, reference), nil
}

// costMatrix stores the cumulative DTW costs. With a band, each row holds
// only its band window, keeping storage at O(n·band); cells outside a row's
// window read as +Inf.
type costMatrix struct {
	rows [][]float64
	lo   []int
	m    int
	band int
}

func newCostMatrix(n, m, band int) *costMatrix {
	d := &costMatrix{
		rows: make([][]float64, n),
		lo:   make([]int, n),
		m:    m,
		band: band,
	}
	for i := range d.rows {
		lo, hi := d.window(i)
		d.lo[i] = lo
		row := make([]float64, hi-lo+1)
		for k := range row {
			row[k] = math.Inf(1)
		}
		d.rows[i] = row
	}
	return d
}

// window returns the inclusive column range stored for row i.
func (d *costMatrix) window(i int) (lo, hi int) {
	lo, hi = 0, d.m-1
	if d.band > 0 {
		lo, hi = i-d.band, i+d.band
		if lo < 0 {
			lo = 0
		}
		if hi > d.m-1 {
			hi = d.m - 1
		}
	}
	return lo, hi
}

func (d *costMatrix) at(i, j int) float64 {
	row := d.rows[i]
	k := j - d.lo[i]
	if k < 0 || k >= len(row) {
		return math.Inf(1)
	}
	return row[k]
}

func (d *costMatrix) set(i, j int, v float64) {
	d.rows[i][j-d.lo[i]] = v
}

// backtrack walks from the terminal cell to (0,0), preferring the diagonal
// predecessor on ties so 1:1 correspondence wins over skew.
func backtrack(d *costMatrix, learner, reference []motion.Point3D) *Result {
	n, m := len(d.rows), d.m
	i, j := n-1, m-1

	var rev []Pair
	for {
		rev = append(rev, Pair{Learner: i, Reference: j, Cost: motion.Dist(learner[i], reference[j])})
		if i == 0 && j == 0 {
			break
		}
		switch {
		case i == 0:
			j--
		case j == 0:
			i--
		default:
			diag, up, left := d.at(i-1, j-1), d.at(i-1, j), d.at(i, j-1)
			if diag <= up && diag <= left {
				i--
				j--
			} else if up <= left {
				i--
			} else {
				j--
			}
		}
	}

	// Reverse into forward order.
	path := make([]Pair, len(rev))
	for k := range rev {
		path[k] = rev[len(rev)-1-k]
	}
	return &Result{Path: path, Distance: d.at(n-1, m-1)}
}

// identityResult pairs indices 1:1, clamping the tail of the shorter side.
func identityResult(n, m int) *Result {
	steps := n
	if m > steps {
		steps = m
	}
	path := make([]Pair, steps)
	for k := 0; k < steps; k++ {
		path[k] = Pair{Learner: clamp(k, n-1), Reference: clamp(k, m-1)}
	}
	return &Result{Path: path, Distance: 0}
}

// LearnerIndices returns the learner indices visited by the path, in order.
func (r *Result) LearnerIndices() []int {
	out := make([]int, len(r.Path))
	for i, p := range r.Path {
		out[i] = p.Learner
	}
	return out
}

// ReferenceIndices returns the reference indices visited by the path, in order.
func (r *Result) ReferenceIndices() []int {
	out := make([]int, len(r.Path))
	for i, p := range r.Path {
		out[i] = p.Reference
	}
	return out
}

// WorstPair returns the path entry with the largest local cost.
func (r *Result) WorstPair() Pair {
	worst := r.Path[0]
	for _, p := range r.Path[1:] {
		if p.Cost > worst.Cost {
			worst = p
		}
	}
	return worst
}

// Downsample returns an evenly-spaced subset of the path with at most max
// entries, always keeping both endpoints. Used before persisting large
// alignments.
func (r *Result) Downsample(max int) []Pair {
	if max <= 0 || len(r.Path) <= max {
		return r.Path
	}
	out := make([]Pair, max)
	for k := 0; k < max; k++ {
		pos := float64(k) / float64(max-1) * float64(len(r.Path)-1)
		out[k] = r.Path[int(pos)]
	}
	return out
}

func zeroVariance(points []motion.Point3D) bool {
	for _, p := range points[1:] {
		if motion.Dist(points[0], p) > 0 {
			return false
		}
	}
	return true
}

func min3(a, b, c float64) float64 {
	if a <= b && a <= c {
		return a
	}
	if b <= c {
		return b
	}
	return c
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func clamp(v, max int) int {
	if v > max {
		return max
	}
	return v
}
