// Package motion provides the trajectory types and per-trajectory processing
// for the Abhyasa motion comparison engine.
package motion

import (
	"fmt"
	"math"
)

// EntityKind identifies what a tracked entity is.
type EntityKind string

const (
	// KindHand is a tracked hand landmark set.
	KindHand EntityKind = "hand"
	// KindInstrument is a tracked instrument (bow, stick, mallet, ...).
	KindInstrument EntityKind = "instrument"
)

// legacyKinds maps retired kind values onto their current equivalents.
// Older trackers emitted a generic "external" kind for anything that was
// not a hand.
var legacyKinds = map[string]EntityKind{
	"external":                   KindInstrument,
	"external, no instruments":   KindHand,
	"external, with instruments": KindInstrument,
}

// ParseEntityKind converts a wire value into an EntityKind, applying the
// documented legacy mapping. Unknown values are rejected.
func ParseEntityKind(s string) (EntityKind, error) {
	switch EntityKind(s) {
	case KindHand, KindInstrument:
		return EntityKind(s), nil
	}
	if k, ok := legacyKinds[s]; ok {
		return k, nil
	}
	return "", fmt.Errorf("unknown entity kind %q", s)
}

// Point3D represents a 3D point in space with x, y, z coordinates.
type Point3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Sub returns the component-wise difference a - b.
func (p Point3D) Sub(o Point3D) Point3D {
	return Point3D{X: p.X - o.X, Y: p.Y - o.Y, Z: p.Z - o.Z}
}

// Norm returns the Euclidean length of the point treated as a vector.
func (p Point3D) Norm() float64 {
	return math.Sqrt(p.X*p.X + p.Y*p.Y + p.Z*p.Z)
}

// Dist returns the Euclidean distance between two points.
func Dist(a, b Point3D) float64 {
	return a.Sub(b).Norm()
}

// Entity is one tracked object observed in a single frame.
type Entity struct {
	ID         string     `json:"id"`
	Kind       EntityKind `json:"kind"`
	Position   Point3D    `json:"position"`
	Confidence float64    `json:"confidence"`
}

// RawFrame is one frame of tracker output before normalization.
type RawFrame struct {
	FrameNumber int      `json:"frame_number"`
	TimestampMs int64    `json:"timestamp_ms"`
	Entities    []Entity `json:"entities"`
}

// Sample is one cleaned trajectory sample.
type Sample struct {
	TimestampMs int64   `json:"timestamp_ms"`
	Position    Point3D `json:"position"`
	Confidence  float64 `json:"confidence"`
}

// Trajectory is the time-ordered sequence of samples for one tracked entity.
// Timestamps are strictly increasing. Breaks lists sample indices whose
// preceding gap was too long to interpolate; no derivative may span a break.
type Trajectory struct {
	EntityID string
	Kind     EntityKind
	Samples  []Sample
	Breaks   []int
}

// Len returns the number of samples.
func (t *Trajectory) Len() int {
	return len(t.Samples)
}

// IsBreak reports whether the segment ending at sample index i crosses a
// tracking discontinuity.
func (t *Trajectory) IsBreak(i int) bool {
	for _, b := range t.Breaks {
		if b == i {
			return true
		}
	}
	return false
}

// TrackerWarning is a single frame-anchored message from the upstream tracker.
type TrackerWarning struct {
	Frame   int    `json:"frame"`
	Message string `json:"message"`
}

// QualityAnnotation is tracking-reliability metadata produced upstream.
// It is a read-only input to the engine.
type QualityAnnotation struct {
	LostFrames   int              `json:"lost_frames"`
	ReDetections int              `json:"re_detections"`
	Warnings     []TrackerWarning `json:"warnings"`
}
