package engine

import (
	"context"
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lrs-events/internal/lrs"
	"github.com/sells-group/lrs-events/internal/model"
)

// joinTieMeters is the distance difference under which two join candidates
// count as equally near.
const joinTieMeters = 1e-6

// Native implements Engine with planar geometry in memory.
type Native struct{}

// NewNative creates a native engine.
func NewNative() *Native { return &Native{} }

var _ Engine = (*Native)(nil)

// SelectByLocation keeps the routes that pass within tol of any node. Larger
// tolerances can only add routes.
func (e *Native) SelectByLocation(ctx context.Context, routes []model.Route, nodes []model.Node, tol model.Tolerance) ([]model.Route, error) {
	ix, err := newNodeIndex(nodes)
	if err != nil {
		return nil, err
	}

	var selected []model.Route
	for _, r := range routes {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "engine: select by location")
		}
		for _, n := range ix.near(r.Bound(), tol.Meters()) {
			if lrs.DistanceToLine(r.Line, r.Gaps, n.node.Point) <= tol.Meters() {
				selected = append(selected, r)
				break
			}
		}
	}
	return selected, nil
}

// SplitLineAtPoints snaps every node within tol onto each route and cuts the
// route at the distinct snapped measures, giving one segment per gap. Cuts at
// a route end yield zero-length segments. Segment order follows the route's
// digitized measure direction.
func (e *Native) SplitLineAtPoints(ctx context.Context, routes []model.Route, nodes []model.Node, tol model.Tolerance) ([]model.Segment, error) {
	ix, err := newNodeIndex(nodes)
	if err != nil {
		return nil, err
	}

	var segments []model.Segment
	for _, r := range routes {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "engine: split line at points")
		}
		if !r.Measured() {
			return nil, eris.Errorf("engine: route %q has no measures", r.ID)
		}

		var cuts []float64
		for _, n := range ix.near(r.Bound(), tol.Meters()) {
			loc, ok := lrs.Project(r.Line, r.M, r.Gaps, n.node.Point)
			if ok && loc.Distance <= tol.Meters() {
				cuts = append(cuts, loc.Measure)
			}
		}
		cuts = distinctMeasures(cuts)

		bounds := make([]float64, 0, len(cuts)+2)
		bounds = append(bounds, r.MinM())
		bounds = append(bounds, cuts...)
		bounds = append(bounds, r.MaxM())

		for i := 0; i < len(bounds)-1; i++ {
			from, to := bounds[i], bounds[i+1]
			line, gaps := lrs.Substring(r.Line, r.M, r.Gaps, from, to)
			segments = append(segments, model.Segment{
				ID:      int64(len(segments) + 1),
				RouteID: r.ID,
				Seq:     i,
				FromM:   from,
				ToM:     to,
				Line:    line,
				Gaps:    gaps,
			})
		}
	}
	return segments, nil
}

// distinctMeasures sorts measures and collapses values at the same position.
func distinctMeasures(ms []float64) []float64 {
	sort.Float64s(ms)
	out := ms[:0]
	for _, m := range ms {
		if len(out) > 0 && lrs.SameMeasure(out[len(out)-1], m) {
			continue
		}
		out = append(out, m)
	}
	return out
}

// SpatialJoin is a one-to-one, keep-all join of one node within tol per
// segment. A node whose position along the segment is within tol of its start
// is the node that opened the segment and wins; among several such nodes the
// one nearest the start does. Otherwise the nearest node wins. Remaining ties
// resolve to the position nearest the start, then to input order. Unmatched
// segments keep a null category and distance.
func (e *Native) SpatialJoin(ctx context.Context, segments []model.Segment, nodes []model.Node, tol model.Tolerance) ([]model.Segment, error) {
	ix, err := newNodeIndex(nodes)
	if err != nil {
		return nil, err
	}

	out := make([]model.Segment, len(segments))
	for i, s := range segments {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "engine: spatial join")
		}
		s.Category, s.JoinNodeID, s.JoinDistance = nil, nil, nil

		if len(s.Line) > 0 {
			segM := lrs.Remeasure(s.Line, s.Gaps)
			var best *joinMatch
			for _, n := range ix.near(s.Line.Bound(), tol.Meters()) {
				d := lrs.DistanceToLine(s.Line, s.Gaps, n.node.Point)
				if d > tol.Meters() {
					continue
				}
				c := joinMatch{node: n.node, dist: d}
				if loc, ok := lrs.Project(s.Line, segM, s.Gaps, n.node.Point); ok {
					c.along = loc.Measure
				}
				c.opens = c.along <= tol.Meters()
				if best == nil || c.beats(*best) {
					best = &c
				}
			}

			if best != nil {
				if best.node.Category != nil {
					s.Category = model.StringPtr(*best.node.Category)
				}
				s.JoinNodeID = model.Int64Ptr(best.node.ID)
				s.JoinDistance = model.Float64Ptr(best.dist)
			}
		}
		out[i] = s
	}
	return out, nil
}

// joinMatch is a node within tolerance of a segment.
type joinMatch struct {
	node  *model.Node
	dist  float64
	along float64
	opens bool
}

// beats reports whether c is a better match than best. Equal matches keep
// best, which came earlier in input order.
func (c joinMatch) beats(best joinMatch) bool {
	if c.opens != best.opens {
		return c.opens
	}
	if c.opens && math.Abs(c.along-best.along) > joinTieMeters {
		return c.along < best.along
	}
	if math.Abs(c.dist-best.dist) > joinTieMeters {
		return c.dist < best.dist
	}
	return c.along < best.along-joinTieMeters
}

// LocateFeaturesAlongRoutes measures each segment on a route. Segments that
// name their parent route are located on it alone; others take the first
// route in input order they fall within tol of. When an end of a segment
// matches several positions the lowest measure wins, and intervals are
// reported low to high whatever the segment's direction.
func (e *Native) LocateFeaturesAlongRoutes(ctx context.Context, segments []model.Segment, routes []model.Route, tol model.Tolerance, opts LocateOptions) ([]model.EventRow, error) {
	order := make(map[string]int, len(routes))
	for i, r := range routes {
		if _, dup := order[r.ID]; !dup {
			order[r.ID] = i
		}
	}

	var rows []model.EventRow
	var unlocated int
	for _, s := range segments {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "engine: locate features along routes")
		}
		if len(s.Line) == 0 {
			unlocated++
			continue
		}

		candidates := routes
		if s.RouteID != "" {
			i, ok := order[s.RouteID]
			if !ok {
				unlocated++
				continue
			}
			candidates = routes[i : i+1]
		}

		located := false
		for _, r := range candidates {
			if !r.Bound().Pad(tol.Meters()).Intersects(s.Line.Bound()) {
				continue
			}
			from, to, dist, ok := locateOn(r, s.Line, tol.Meters())
			if !ok {
				continue
			}
			located = true
			if lrs.SameMeasure(from, to) && !opts.KeepZeroLength {
				break
			}
			rows = append(rows, model.EventRow{
				RouteID:        r.ID,
				FromM:          from,
				ToM:            to,
				Category:       s.Category,
				JoinDistance:   s.JoinDistance,
				LocateDistance: dist,
				SourceID:       s.ID,
				Seq:            s.Seq,
			})
			break
		}
		if !located {
			unlocated++
		}
	}

	if unlocated > 0 {
		zap.L().Debug("engine: features not located on any route", zap.Int("count", unlocated))
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if oi, oj := order[rows[i].RouteID], order[rows[j].RouteID]; oi != oj {
			return oi < oj
		}
		if rows[i].FromM != rows[j].FromM {
			return rows[i].FromM < rows[j].FromM
		}
		return rows[i].ToM < rows[j].ToM
	})
	return rows, nil
}

func locateOn(r model.Route, line orb.LineString, tol float64) (from, to, dist float64, ok bool) {
	if !r.Measured() {
		return 0, 0, 0, false
	}
	starts := lrs.Candidates(r.Line, r.M, r.Gaps, line[0], tol)
	ends := lrs.Candidates(r.Line, r.M, r.Gaps, line[len(line)-1], tol)
	if len(starts) == 0 || len(ends) == 0 {
		return 0, 0, 0, false
	}

	start, end := starts[0], ends[0]
	for _, c := range ends {
		if c.Measure >= start.Measure {
			end = c
			break
		}
	}

	from, to = start.Measure, end.Measure
	if from > to {
		from, to = to, from
	}
	return from, to, math.Max(start.Distance, end.Distance), true
}

// MakeRouteEventLayer cuts each event's interval out of its route. Missing
// routes and measures outside a route's range are reported in LocError
// rather than failing the layer; partially matching intervals are clamped.
func (e *Native) MakeRouteEventLayer(ctx context.Context, routes []model.Route, rows []model.EventRow) ([]model.Event, error) {
	byID := make(map[string]model.Route, len(routes))
	for _, r := range routes {
		if _, dup := byID[r.ID]; !dup {
			byID[r.ID] = r
		}
	}

	events := make([]model.Event, 0, len(rows))
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "engine: make route event layer")
		}
		ev := model.Event{EventRow: row}

		r, ok := byID[row.RouteID]
		if !ok || !r.Measured() {
			ev.LocError = model.LocErrorRouteNotFound
			events = append(events, ev)
			continue
		}

		from, to := math.Min(row.FromM, row.ToM), math.Max(row.FromM, row.ToM)
		switch {
		case to < r.MinM() || from > r.MaxM():
			ev.LocError = model.LocErrorMeasureNoMatch
		case from < r.MinM() || to > r.MaxM():
			ev.LocError = model.LocErrorPartialMatch
			ev.Line, ev.Gaps = lrs.Substring(r.Line, r.M, r.Gaps, math.Max(from, r.MinM()), math.Min(to, r.MaxM()))
		default:
			ev.Line, ev.Gaps = lrs.Substring(r.Line, r.M, r.Gaps, from, to)
		}
		events = append(events, ev)
	}
	return events, nil
}

// PointsToLine builds one line per fault ID from its nodes in ID order. Nodes
// without a fault ID and faults with fewer than two distinct points are
// skipped.
func (e *Native) PointsToLine(ctx context.Context, nodes []model.Node) ([]model.Segment, error) {
	groups := make(map[string][]model.Node)
	var order []string
	var unkeyed int
	for _, n := range nodes {
		if n.FaultID == "" {
			unkeyed++
			continue
		}
		if _, ok := groups[n.FaultID]; !ok {
			order = append(order, n.FaultID)
		}
		groups[n.FaultID] = append(groups[n.FaultID], n)
	}
	if unkeyed > 0 {
		zap.L().Warn("engine: nodes without a fault ID skipped", zap.Int("count", unkeyed))
	}

	var lines []model.Segment
	for _, fault := range order {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "engine: points to line")
		}
		group := groups[fault]
		sort.SliceStable(group, func(i, j int) bool { return group[i].ID < group[j].ID })

		var line orb.LineString
		for _, n := range group {
			if len(line) > 0 && line[len(line)-1].Equal(n.Point) {
				continue
			}
			line = append(line, n.Point)
		}
		if len(line) < 2 {
			zap.L().Warn("engine: fault has fewer than two distinct nodes", zap.String("fault_id", fault))
			continue
		}
		lines = append(lines, model.Segment{
			ID:       int64(len(lines) + 1),
			Line:     line,
			Category: model.StringPtr(fault),
		})
	}
	return lines, nil
}

// CreateRoutes merges lines sharing a route ID into one measured route per
// ID. Measures come from length, start at the coordinate priority corner and
// do not advance across gaps between parts.
func (e *Native) CreateRoutes(ctx context.Context, lines []RouteLine, opts CreateRoutesOptions) ([]model.Route, error) {
	priority := opts.Priority
	if priority == "" {
		priority = lrs.UpperLeft
	}

	parts := make(map[string][]orb.LineString)
	var order []string
	for _, l := range lines {
		if l.RouteID == "" {
			continue
		}
		if _, ok := parts[l.RouteID]; !ok {
			order = append(order, l.RouteID)
		}
		parts[l.RouteID] = append(parts[l.RouteID], l.Parts...)
	}

	routes := make([]model.Route, 0, len(order))
	for _, id := range order {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "engine: create routes")
		}
		line, m, gaps := lrs.MeasureParts(lrs.Chain(parts[id], priority))
		if err := lrs.ValidateMeasures(line, m); err != nil {
			return nil, eris.Wrapf(err, "engine: create route %q", id)
		}
		routes = append(routes, model.Route{ID: id, Line: line, M: m, Gaps: gaps})
	}
	return routes, nil
}
