package workflow

import (
	"context"
	"sort"

	"github.com/sells-group/lrs-events/internal/engine"
	"github.com/sells-group/lrs-events/internal/geoerr"
	"github.com/sells-group/lrs-events/internal/model"
)

// engineErr classifies an engine failure unless the engine already did.
func engineErr(op string, err error) error {
	if geoerr.KindOf(err) != "" {
		return err
	}
	return geoerr.New(geoerr.EngineCallFailed, op, err)
}

// RouteSelector keeps the routes that have at least one node nearby.
type RouteSelector struct {
	Engine engine.Engine
}

// Select returns the evaluated routes. Selecting nothing from a non-empty
// route set is an EmptySelection error; an individual route without nodes is
// simply left out.
func (s RouteSelector) Select(ctx context.Context, routes []model.Route, nodes []model.Node, tol model.Tolerance) ([]model.Route, error) {
	const op = "workflow: select routes"
	selected, err := s.Engine.SelectByLocation(ctx, routes, nodes, tol)
	if err != nil {
		return nil, engineErr(op, err)
	}
	if len(selected) == 0 {
		return nil, geoerr.Errorf(geoerr.EmptySelection, op,
			"no route within %s of any of %d nodes", tol, len(nodes))
	}
	return selected, nil
}

// Segmenter splits evaluated routes at snapped node positions.
type Segmenter struct {
	Engine engine.Engine
}

// Split returns one segment per gap between split points.
func (s Segmenter) Split(ctx context.Context, routes []model.Route, nodes []model.Node, tol model.Tolerance) ([]model.Segment, error) {
	segs, err := s.Engine.SplitLineAtPoints(ctx, routes, nodes, tol)
	if err != nil {
		return nil, engineErr("workflow: split routes", err)
	}
	return segs, nil
}

// AttributeTransfer copies a node category onto each segment: the node that
// opens the segment, or else the nearest one.
type AttributeTransfer struct {
	Engine engine.Engine
}

// Join keeps every segment; unmatched ones keep a null category.
func (a AttributeTransfer) Join(ctx context.Context, segs []model.Segment, nodes []model.Node, tol model.Tolerance) ([]model.Segment, error) {
	joined, err := a.Engine.SpatialJoin(ctx, segs, nodes, tol)
	if err != nil {
		return nil, engineErr("workflow: transfer attributes", err)
	}
	return joined, nil
}

// Boundary correction scopes.
const (
	// ScopeRun defaults only the first segment of the whole run: the lowest
	// measure segment of the first route in input order.
	ScopeRun = "run"
	// ScopeRoute defaults the first segment of every route.
	ScopeRoute = "route"
)

// BoundaryCorrector forces the segment that starts a route to the default
// category, since no node precedes it. "First" follows the route's measure
// direction; routes digitized against travel direction are not detected.
type BoundaryCorrector struct {
	Default string
	Scope   string
}

// Correct returns a copy of segs with the boundary segments defaulted and
// the number of segments changed.
func (b BoundaryCorrector) Correct(segs []model.Segment) ([]model.Segment, int) {
	out := make([]model.Segment, len(segs))
	copy(out, segs)
	if len(out) == 0 {
		return out, 0
	}

	// Measures are only comparable within one route.
	first := make(map[string]int)
	var order []string
	for i, s := range out {
		j, ok := first[s.RouteID]
		if !ok {
			first[s.RouteID] = i
			order = append(order, s.RouteID)
			continue
		}
		if before(s, out[j]) {
			first[s.RouteID] = i
		}
	}
	if b.Scope != ScopeRoute {
		order = order[:1]
	}

	for _, key := range order {
		i := first[key]
		out[i].Category = model.StringPtr(b.Default)
	}
	return out, len(order)
}

// before orders segments along a route: lowest measure, then sequence.
func before(a, b model.Segment) bool {
	if a.FromM != b.FromM {
		return a.FromM < b.FromM
	}
	if a.ToM != b.ToM {
		return a.ToM < b.ToM
	}
	return a.Seq < b.Seq
}

// MeasureLocator turns segments into measure intervals on their routes.
type MeasureLocator struct {
	Engine engine.Engine
}

// Locate keeps zero-length events.
func (m MeasureLocator) Locate(ctx context.Context, segs []model.Segment, routes []model.Route, tol model.Tolerance) ([]model.EventRow, error) {
	rows, err := m.Engine.LocateFeaturesAlongRoutes(ctx, segs, routes, tol, engine.LocateOptions{KeepZeroLength: true})
	if err != nil {
		return nil, engineErr("workflow: locate segments", err)
	}
	return rows, nil
}

// EventMaterializer rebuilds event geometry on the original routes.
type EventMaterializer struct {
	Engine engine.Engine
}

// Materialize returns the events sorted the same way as rows.
func (e EventMaterializer) Materialize(ctx context.Context, routes []model.Route, rows []model.EventRow) ([]model.Event, error) {
	events, err := e.Engine.MakeRouteEventLayer(ctx, routes, rows)
	if err != nil {
		return nil, engineErr("workflow: materialize events", err)
	}
	return events, nil
}

// countLocErrors tallies events the layer could not place.
func countLocErrors(events []model.Event) map[string]int {
	counts := make(map[string]int)
	for _, ev := range events {
		if ev.LocError != model.LocErrorNone {
			counts[ev.LocError]++
		}
	}
	return counts
}

// zeroLength counts zero-length event rows.
func zeroLength(rows []model.EventRow) int {
	var n int
	for _, r := range rows {
		if r.Length() == 0 {
			n++
		}
	}
	return n
}

// sortedKeys returns map keys in order, for stable log output.
func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
