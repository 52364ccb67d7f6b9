package lrs

import (
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/rotisserie/eris"
)

// Priority selects which corner of a route's extent its measures start from.
type Priority string

// Coordinate priorities accepted when building routes.
const (
	UpperLeft  Priority = "UPPER_LEFT"
	UpperRight Priority = "UPPER_RIGHT"
	LowerLeft  Priority = "LOWER_LEFT"
	LowerRight Priority = "LOWER_RIGHT"
)

// ParsePriority parses a coordinate priority name, case-insensitively.
func ParsePriority(s string) (Priority, error) {
	switch p := Priority(strings.ToUpper(strings.TrimSpace(s))); p {
	case UpperLeft, UpperRight, LowerLeft, LowerRight:
		return p, nil
	case "":
		return UpperLeft, nil
	default:
		return "", eris.Errorf("lrs: unknown coordinate priority %q", s)
	}
}

func (p Priority) corner(b orb.Bound) orb.Point {
	switch p {
	case UpperRight:
		return orb.Point{b.Max[0], b.Max[1]}
	case LowerLeft:
		return orb.Point{b.Min[0], b.Min[1]}
	case LowerRight:
		return orb.Point{b.Max[0], b.Min[1]}
	default:
		return orb.Point{b.Min[0], b.Max[1]}
	}
}

// Chain orders and orients parts into one route starting at the part end
// nearest the priority corner, then repeatedly attaching the closest
// remaining part end.
func Chain(parts []orb.LineString, priority Priority) []orb.LineString {
	remaining := make([]orb.LineString, 0, len(parts))
	var bound orb.Bound
	for _, p := range parts {
		if len(p) < 2 {
			continue
		}
		if len(remaining) == 0 {
			bound = p.Bound()
		} else {
			bound = bound.Union(p.Bound())
		}
		remaining = append(remaining, p)
	}
	if len(remaining) == 0 {
		return nil
	}

	anchor := priority.corner(bound)
	out := make([]orb.LineString, 0, len(remaining))
	for len(remaining) > 0 {
		best, reversed := 0, false
		bestDist := -1.0
		for i, p := range remaining {
			if d := planar.Distance(anchor, p[0]); bestDist < 0 || d < bestDist {
				best, reversed, bestDist = i, false, d
			}
			if d := planar.Distance(anchor, p[len(p)-1]); d < bestDist {
				best, reversed, bestDist = i, true, d
			}
		}
		next := remaining[best]
		if reversed {
			next = Reverse(next)
		}
		out = append(out, next)
		anchor = next[len(next)-1]
		remaining = append(remaining[:best], remaining[best+1:]...)
	}
	return out
}

// MeasureParts concatenates ordered parts into one line with length measures.
// Measures do not advance across the gaps between parts, and the returned
// Gaps mark those spans. Parts that touch end to start are joined without a
// gap.
func MeasureParts(parts []orb.LineString) (orb.LineString, []float64, Gaps) {
	var line orb.LineString
	var m []float64
	var gaps Gaps
	for _, part := range parts {
		if len(part) == 0 {
			continue
		}
		start := 0
		if n := len(line); n > 0 && line[n-1].Equal(part[0]) {
			start = 1
		}
		for i := start; i < len(part); i++ {
			switch {
			case len(line) == 0:
				m = append(m, 0)
			case i == 0:
				// First vertex after a gap keeps the previous measure.
				gaps = append(gaps, len(line)-1)
				m = append(m, m[len(m)-1])
			default:
				m = append(m, m[len(m)-1]+planar.Distance(part[i-1], part[i]))
			}
			line = append(line, part[i])
		}
	}
	return line, m, gaps
}
