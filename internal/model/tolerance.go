package model

import (
	"fmt"
	"math"
)

// Tolerance is the single search distance, in meters, shared by every step of
// a run: route selection, snapping, the nearest-node join and route location.
type Tolerance float64

// NewTolerance validates a tolerance value.
func NewTolerance(meters float64) (Tolerance, error) {
	if math.IsNaN(meters) || math.IsInf(meters, 0) || meters <= 0 {
		return 0, fmt.Errorf("tolerance must be a positive number of meters, got %v", meters)
	}
	return Tolerance(meters), nil
}

// Meters returns the tolerance as a float.
func (t Tolerance) Meters() float64 { return float64(t) }

func (t Tolerance) String() string {
	return fmt.Sprintf("%g Meters", float64(t))
}
