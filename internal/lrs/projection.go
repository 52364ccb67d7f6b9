package lrs

import (
	"math"

	"github.com/golang/geo/s2"
	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
)

// earthRadiusMeters is the IUGG mean earth radius.
const earthRadiusMeters = 6371008.8

// Projection maps dataset coordinates to a planar frame in meters and back.
type Projection interface {
	Forward(p orb.Point) orb.Point
	Inverse(p orb.Point) orb.Point
}

// Identity is used for data already in a projected, meter-based system.
type Identity struct{}

func (Identity) Forward(p orb.Point) orb.Point { return p }
func (Identity) Inverse(p orb.Point) orb.Point { return p }

// Local is an equirectangular projection centered on a dataset, accurate to
// well under a percent over the extent of a road network.
type Local struct {
	center orb.Point
	cosLat float64
}

// NewLocal builds a local projection around a lon/lat center.
func NewLocal(center orb.Point) (*Local, error) {
	if err := ValidateGeographic(center); err != nil {
		return nil, err
	}
	return &Local{center: center, cosLat: math.Cos(center.Lat() * math.Pi / 180)}, nil
}

// Center returns the projection origin.
func (l *Local) Center() orb.Point { return l.center }

func (l *Local) Forward(p orb.Point) orb.Point {
	return orb.Point{
		earthRadiusMeters * (p.Lon() - l.center.Lon()) * math.Pi / 180 * l.cosLat,
		earthRadiusMeters * (p.Lat() - l.center.Lat()) * math.Pi / 180,
	}
}

func (l *Local) Inverse(p orb.Point) orb.Point {
	return orb.Point{
		l.center.Lon() + p[0]/(earthRadiusMeters*l.cosLat)*180/math.Pi,
		l.center.Lat() + p[1]/earthRadiusMeters*180/math.Pi,
	}
}

// ValidateGeographic checks that every point is a valid lon/lat pair.
func ValidateGeographic(pts ...orb.Point) error {
	for _, p := range pts {
		if !s2.LatLngFromDegrees(p.Lat(), p.Lon()).IsValid() {
			return eris.Errorf("lrs: %v is not a valid lon/lat coordinate", p)
		}
	}
	return nil
}

// GeodesicDistance returns the great-circle distance in meters between two
// lon/lat points.
func GeodesicDistance(a, b orb.Point) float64 {
	la := s2.LatLngFromDegrees(a.Lat(), a.Lon())
	lb := s2.LatLngFromDegrees(b.Lat(), b.Lon())
	return la.Distance(lb).Radians() * earthRadiusMeters
}

// ForwardLine projects every vertex of line.
func ForwardLine(proj Projection, line orb.LineString) orb.LineString {
	return mapLine(proj.Forward, line)
}

// InverseLine unprojects every vertex of line.
func InverseLine(proj Projection, line orb.LineString) orb.LineString {
	return mapLine(proj.Inverse, line)
}

func mapLine(f func(orb.Point) orb.Point, line orb.LineString) orb.LineString {
	if line == nil {
		return nil
	}
	out := make(orb.LineString, len(line))
	for i, p := range line {
		out[i] = f(p)
	}
	return out
}
