package lrs

import (
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Location is the position of a point projected onto a measured line.
type Location struct {
	Measure  float64
	Point    orb.Point
	Distance float64
	// Index of the line segment (vertex Index to Index+1) holding Point.
	Index int
}

// Gaps lists, in ascending order, the spans of a line that join two separate
// parts rather than carry geometry. Span i runs from vertex i to vertex i+1.
// A nil Gaps is a single-part line.
type Gaps []int

// Has reports whether span i is a gap.
func (g Gaps) Has(i int) bool {
	j := sort.SearchInts(g, i)
	return j < len(g) && g[j] == i
}

// Parts splits line at its gaps.
func (g Gaps) Parts(line orb.LineString) []orb.LineString {
	if len(g) == 0 {
		if len(line) == 0 {
			return nil
		}
		return []orb.LineString{line}
	}
	var out []orb.LineString
	start := 0
	for _, i := range g {
		if i < start || i+1 >= len(line) {
			continue
		}
		out = append(out, line[start:i+1])
		start = i + 1
	}
	return append(out, line[start:])
}

// Project returns the location on line closest to p, ignoring gap spans. Ties
// resolve to the lowest measure. ok is false for lines with fewer than two
// vertices.
func Project(line orb.LineString, m []float64, gaps Gaps, p orb.Point) (loc Location, ok bool) {
	if len(line) < 2 || len(m) != len(line) {
		return Location{}, false
	}
	for i := 0; i < len(line)-1; i++ {
		if gaps.Has(i) {
			continue
		}
		cand, _ := projectSegment(line, m, i, p)
		if !ok || cand.Distance < loc.Distance {
			loc, ok = cand, true
		}
	}
	return loc, ok
}

// Candidates returns every local closest location of p on line within tol,
// ordered by measure. A point near a line that doubles back on itself has
// more than one candidate; callers pick the first for a FIRST policy.
//
// A projection clamped to a span's end vertex is only a candidate when the
// neighbouring span across that vertex does not reach further toward p;
// otherwise the neighbour holds the closer location.
func Candidates(line orb.LineString, m []float64, gaps Gaps, p orb.Point, tol float64) []Location {
	if len(line) < 2 || len(m) != len(line) {
		return nil
	}
	n := len(line) - 1
	locs := make([]Location, n)
	ts := make([]float64, n)
	for i := 0; i < n; i++ {
		if !gaps.Has(i) {
			locs[i], ts[i] = projectSegment(line, m, i, p)
		}
	}
	// joined reports whether span j exists and continues the geometry.
	joined := func(j int) bool { return j >= 0 && j < n && !gaps.Has(j) }

	var out []Location
	for i := 0; i < n; i++ {
		if gaps.Has(i) || locs[i].Distance > tol {
			continue
		}
		if ts[i] >= 1 && joined(i+1) && ts[i+1] > 0 {
			continue
		}
		if ts[i] <= 0 && joined(i-1) && ts[i-1] < 1 {
			continue
		}
		cand := locs[i]
		// Adjacent spans meeting at the same closest vertex are one match.
		if k := len(out); k > 0 && SameMeasure(out[k-1].Measure, cand.Measure) && out[k-1].Point.Equal(cand.Point) {
			if cand.Distance < out[k-1].Distance {
				out[k-1] = cand
			}
			continue
		}
		out = append(out, cand)
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Measure < out[b].Measure })
	return out
}

// DistanceToLine returns the planar distance from p to line, ignoring gap
// spans.
func DistanceToLine(line orb.LineString, gaps Gaps, p orb.Point) float64 {
	if len(line) == 1 {
		return planar.Distance(line[0], p)
	}
	if len(gaps) == 0 {
		return planar.DistanceFrom(line, p)
	}
	d := math.Inf(1)
	for i := 0; i < len(line)-1; i++ {
		if gaps.Has(i) {
			continue
		}
		d = math.Min(d, planar.DistanceFromSegment(line[i], line[i+1], p))
	}
	return d
}

func projectSegment(line orb.LineString, m []float64, i int, p orb.Point) (Location, float64) {
	a, b := line[i], line[i+1]
	dx, dy := b[0]-a[0], b[1]-a[1]
	lenSq := dx*dx + dy*dy

	t := 0.0
	if lenSq > 0 {
		t = ((p[0]-a[0])*dx + (p[1]-a[1])*dy) / lenSq
		if t < 0 {
			t = 0
		} else if t > 1 {
			t = 1
		}
	}
	snapped := interpolate(a, b, t)
	return Location{
		Measure:  m[i] + (m[i+1]-m[i])*t,
		Point:    snapped,
		Distance: planar.Distance(snapped, p),
		Index:    i,
	}, t
}
