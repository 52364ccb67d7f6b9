package model

import "github.com/paulmach/orb"

// Segment is a piece of a route between two consecutive split points, or a
// line built from field nodes that still needs a route.
//
// Seq is the position along the parent route in measure order (0 = first).
// A nil Category or JoinDistance means no node was found within tolerance.
type Segment struct {
	ID           int64          `json:"id"`
	RouteID      string         `json:"route_id,omitempty"`
	Seq          int            `json:"seq"`
	FromM        float64        `json:"from_m"`
	ToM          float64        `json:"to_m"`
	Line         orb.LineString `json:"-"`
	Gaps         []int          `json:"gaps,omitempty"`
	Category     *string        `json:"category,omitempty"`
	JoinNodeID   *int64         `json:"join_node_id,omitempty"`
	JoinDistance *float64       `json:"closest_node_distance,omitempty"`
}

// ZeroLength reports whether the segment covers no measure span.
func (s Segment) ZeroLength() bool {
	return s.FromM == s.ToM
}
