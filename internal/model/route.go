package model

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Route is a measured polyline. M holds one measure per vertex of Line and is
// non-decreasing along the digitized direction. Gaps lists the spans of Line
// (vertex i to i+1) that join two parts of a multi-part route and carry no
// geometry. LengthMeasured is set when M was derived from geometry length
// rather than read from the source.
type Route struct {
	ID             string         `json:"id"`
	Line           orb.LineString `json:"-"`
	M              []float64      `json:"m,omitempty"`
	Gaps           []int          `json:"gaps,omitempty"`
	LengthMeasured bool           `json:"length_measured,omitempty"`
	Attrs          map[string]any `json:"attrs,omitempty"`
}

// MinM returns the measure at the first vertex.
func (r Route) MinM() float64 {
	if len(r.M) == 0 {
		return 0
	}
	return r.M[0]
}

// MaxM returns the measure at the last vertex.
func (r Route) MaxM() float64 {
	if len(r.M) == 0 {
		return 0
	}
	return r.M[len(r.M)-1]
}

// Length returns the planar length of the route geometry, without gaps.
func (r Route) Length() float64 {
	var l float64
	for i := 1; i < len(r.Line); i++ {
		if !hasGap(r.Gaps, i-1) {
			l += planar.Distance(r.Line[i-1], r.Line[i])
		}
	}
	return l
}

func hasGap(gaps []int, i int) bool {
	for _, g := range gaps {
		if g == i {
			return true
		}
	}
	return false
}

// Measured reports whether the route carries one measure per vertex.
func (r Route) Measured() bool {
	return len(r.Line) >= 2 && len(r.M) == len(r.Line)
}

// Bound returns the route's bounding box.
func (r Route) Bound() orb.Bound {
	return r.Line.Bound()
}
