package model

import "github.com/paulmach/orb"

// EventRow locates one attribute value over a measure interval on a route.
type EventRow struct {
	RouteID        string   `json:"rid" csv:"rid"`
	FromM          float64  `json:"fmeas" csv:"fmeas"`
	ToM            float64  `json:"tmeas" csv:"tmeas"`
	Category       *string  `json:"category,omitempty" csv:"category,omitempty"`
	JoinDistance   *float64 `json:"closest_node_distance,omitempty" csv:"closest_node_distance,omitempty"`
	LocateDistance float64  `json:"distance" csv:"distance"`
	SourceID       int64    `json:"source_id" csv:"source_id"`
	Seq            int      `json:"seq" csv:"seq"`
}

// Length returns the measure span of the event.
func (e EventRow) Length() float64 {
	return e.ToM - e.FromM
}

// Location errors reported by the event layer.
const (
	LocErrorNone           = ""
	LocErrorRouteNotFound  = "ROUTE NOT FOUND"
	LocErrorPartialMatch   = "ROUTE MEASURE PARTIALLY MATCH"
	LocErrorMeasureNoMatch = "ROUTE MEASURE NOT FOUND"
)

// Event is an event row with geometry rebuilt from its route.
type Event struct {
	EventRow
	Line     orb.LineString `json:"-" csv:"-"`
	Gaps     []int          `json:"-" csv:"-"`
	LocError string         `json:"loc_error,omitempty" csv:"loc_error,omitempty"`
}
