// Package lrs implements planar linear referencing: measuring polylines,
// projecting points onto them and cutting them by measure.
package lrs

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/rotisserie/eris"
)

// measureEpsilon is the distance under which two measures are the same split.
const measureEpsilon = 1e-9

// Measures returns the cumulative planar length at every vertex of line.
func Measures(line orb.LineString) []float64 {
	m := make([]float64, len(line))
	for i := 1; i < len(line); i++ {
		m[i] = m[i-1] + planar.Distance(line[i-1], line[i])
	}
	return m
}

// ValidateMeasures checks that m has one non-decreasing value per vertex.
func ValidateMeasures(line orb.LineString, m []float64) error {
	if len(line) < 2 {
		return eris.New("lrs: line needs at least two vertices")
	}
	if len(m) != len(line) {
		return eris.Errorf("lrs: %d measures for %d vertices", len(m), len(line))
	}
	for i, v := range m {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return eris.Errorf("lrs: measure %d is not finite", i)
		}
		if i > 0 && v < m[i-1] {
			return eris.Errorf("lrs: measures decrease at vertex %d (%g < %g)", i, v, m[i-1])
		}
	}
	return nil
}

// SameMeasure reports whether a and b denote the same position.
func SameMeasure(a, b float64) bool {
	return math.Abs(a-b) <= measureEpsilon*math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
}

// PointAt returns the point at measure along line. Measures outside the
// line's range are clamped to its ends.
func PointAt(line orb.LineString, m []float64, measure float64) orb.Point {
	n := len(line)
	if n == 0 {
		return orb.Point{}
	}
	if measure <= m[0] {
		return line[0]
	}
	if measure >= m[n-1] {
		return line[n-1]
	}
	for i := 0; i < n-1; i++ {
		if measure > m[i+1] {
			continue
		}
		span := m[i+1] - m[i]
		if span <= 0 {
			return line[i]
		}
		return interpolate(line[i], line[i+1], (measure-m[i])/span)
	}
	return line[n-1]
}

// Substring cuts the part of line between two measures. The bounds are
// ordered and clamped to the line's range. Gap spans are never drawn: the
// result carries its own gaps wherever the cut crosses one. Equal bounds give
// a degenerate two-vertex line so zero-length events keep a geometry.
func Substring(line orb.LineString, m []float64, gaps Gaps, from, to float64) (orb.LineString, Gaps) {
	if len(line) == 0 {
		return nil, nil
	}
	if from > to {
		from, to = to, from
	}
	if SameMeasure(from, to) {
		start := PointAt(line, m, from)
		return orb.LineString{start, start}, nil
	}

	var out orb.LineString
	var outGaps Gaps
	pending := false
	add := func(p orb.Point) {
		if n := len(out); n > 0 && out[n-1].Equal(p) {
			return
		}
		if pending && len(out) > 0 {
			outGaps = append(outGaps, len(out)-1)
		}
		pending = false
		out = append(out, p)
	}

	for i := 0; i < len(line)-1; i++ {
		lo, hi := m[i], m[i+1]
		inside := hi > from && lo < to
		if hi == lo {
			inside = lo > from && lo < to
		}
		if !inside {
			continue
		}
		if gaps.Has(i) {
			pending = true
			continue
		}
		a, b := line[i], line[i+1]
		if hi > lo {
			if from > lo {
				a = interpolate(line[i], line[i+1], (from-lo)/(hi-lo))
			}
			if to < hi {
				b = interpolate(line[i], line[i+1], (to-lo)/(hi-lo))
			}
		}
		add(a)
		add(b)
	}

	switch len(out) {
	case 0:
		start := PointAt(line, m, from)
		return orb.LineString{start, start}, nil
	case 1:
		out = append(out, out[0])
	}
	return out, outGaps
}

// Remeasure recomputes length measures for line after its coordinates were
// transformed. Gap spans stay flat.
func Remeasure(line orb.LineString, gaps Gaps) []float64 {
	m := make([]float64, len(line))
	for i := 1; i < len(line); i++ {
		m[i] = m[i-1]
		if gaps.Has(i - 1) {
			continue
		}
		m[i] += planar.Distance(line[i-1], line[i])
	}
	return m
}

// Reverse returns a reversed copy of line.
func Reverse(line orb.LineString) orb.LineString {
	out := make(orb.LineString, len(line))
	for i, p := range line {
		out[len(line)-1-i] = p
	}
	return out
}

func interpolate(a, b orb.Point, t float64) orb.Point {
	return orb.Point{a[0] + (b[0]-a[0])*t, a[1] + (b[1]-a[1])*t}
}
