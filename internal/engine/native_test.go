package engine

import (
	"context"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lrs-events/internal/lrs"
	"github.com/sells-group/lrs-events/internal/model"
)

func route(id string, pts ...orb.Point) model.Route {
	line := orb.LineString(pts)
	return model.Route{ID: id, Line: line, M: lrs.Measures(line)}
}

func node(id int64, x, y float64, cat string) model.Node {
	n := model.Node{ID: id, Point: orb.Point{x, y}}
	if cat != "" {
		n.Category = model.StringPtr(cat)
	}
	return n
}

func tol(t *testing.T, m float64) model.Tolerance {
	t.Helper()
	tt, err := model.NewTolerance(m)
	require.NoError(t, err)
	return tt
}

func TestSelectByLocation(t *testing.T) {
	ctx := context.Background()
	routes := []model.Route{
		route("R1", orb.Point{0, 0}, orb.Point{100, 0}),
		route("R2", orb.Point{0, 50}, orb.Point{100, 50}),
		route("R3", orb.Point{0, 80}, orb.Point{100, 80}),
	}
	nodes := []model.Node{node(1, 20, 3, "Poor"), node(2, 40, 56, "Fair")}

	got, err := NewNative().SelectByLocation(ctx, routes, nodes, tol(t, 5))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "R1", got[0].ID)

	// A wider tolerance only adds routes.
	got, err = NewNative().SelectByLocation(ctx, routes, nodes, tol(t, 10))
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestSelectByLocation_MonotonicInTolerance(t *testing.T) {
	ctx := context.Background()
	var routes []model.Route
	for i := 0; i < 10; i++ {
		y := float64(i * 7)
		routes = append(routes, route(string(rune('A'+i)), orb.Point{0, y}, orb.Point{100, y + 3}))
	}
	nodes := []model.Node{node(1, 10, 12, ""), node(2, 55, 33, ""), node(3, 90, 71, "")}

	prev := map[string]bool{}
	for _, m := range []float64{0.5, 1, 2, 3, 5, 8, 13, 21} {
		got, err := NewNative().SelectByLocation(ctx, routes, nodes, tol(t, m))
		require.NoError(t, err)
		cur := map[string]bool{}
		for _, r := range got {
			cur[r.ID] = true
		}
		for id := range prev {
			assert.True(t, cur[id], "route %s dropped when tolerance grew to %g", id, m)
		}
		prev = cur
	}
}

func TestSelectByLocation_NoNodes(t *testing.T) {
	got, err := NewNative().SelectByLocation(context.Background(),
		[]model.Route{route("R1", orb.Point{0, 0}, orb.Point{100, 0})}, nil, tol(t, 5))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSplitLineAtPoints(t *testing.T) {
	r := route("R1", orb.Point{0, 0}, orb.Point{50, 0}, orb.Point{100, 0})
	nodes := []model.Node{
		node(1, 60, 2, "Fair"),
		node(2, 20, -1, "Poor"),
		node(3, 20, 1, "Poor"), // same snap point as node 2
		node(4, 40, 30, "Good"), // beyond tolerance, dropped
	}

	segs, err := NewNative().SplitLineAtPoints(context.Background(), []model.Route{r}, nodes, tol(t, 5))
	require.NoError(t, err)
	require.Len(t, segs, 3) // two distinct snap points + 1

	assert.Equal(t, []float64{0, 20, 60}, []float64{segs[0].FromM, segs[1].FromM, segs[2].FromM})
	assert.Equal(t, []float64{20, 60, 100}, []float64{segs[0].ToM, segs[1].ToM, segs[2].ToM})
	for i, s := range segs {
		assert.Equal(t, "R1", s.RouteID)
		assert.Equal(t, i, s.Seq)
		assert.Equal(t, int64(i+1), s.ID)
	}
	assert.Equal(t, orb.LineString{{20, 0}, {50, 0}, {60, 0}}, segs[1].Line)
}

func TestSplitLineAtPoints_EndpointGivesZeroLengthSegment(t *testing.T) {
	r := route("R1", orb.Point{0, 0}, orb.Point{100, 0})
	segs, err := NewNative().SplitLineAtPoints(context.Background(), []model.Route{r},
		[]model.Node{node(1, 102, 0, "Poor")}, tol(t, 5))
	require.NoError(t, err)
	require.Len(t, segs, 2)
	assert.True(t, segs[1].ZeroLength())
	assert.Len(t, segs[1].Line, 2)
}

func TestSplitLineAtPoints_NoNodesOneSegment(t *testing.T) {
	r := route("R1", orb.Point{0, 0}, orb.Point{100, 0})
	segs, err := NewNative().SplitLineAtPoints(context.Background(), []model.Route{r}, nil, tol(t, 5))
	require.NoError(t, err)
	require.Len(t, segs, 1)
	assert.Equal(t, 100.0, segs[0].ToM)
}

func TestSplitLineAtPoints_UnmeasuredRoute(t *testing.T) {
	r := model.Route{ID: "R1", Line: orb.LineString{{0, 0}, {100, 0}}}
	_, err := NewNative().SplitLineAtPoints(context.Background(), []model.Route{r}, nil, tol(t, 5))
	assert.Error(t, err)
}

func splitScenario(t *testing.T) ([]model.Route, []model.Node, []model.Segment) {
	t.Helper()
	routes := []model.Route{route("R1", orb.Point{0, 0}, orb.Point{100, 0})}
	nodes := []model.Node{node(1, 20, 0, "Poor"), node(2, 60, 0, "Fair")}
	segs, err := NewNative().SplitLineAtPoints(context.Background(), routes, nodes, tol(t, 5))
	require.NoError(t, err)
	return routes, nodes, segs
}

func TestSpatialJoin_NearestWithStartTieBreak(t *testing.T) {
	_, nodes, segs := splitScenario(t)

	joined, err := NewNative().SpatialJoin(context.Background(), segs, nodes, tol(t, 5))
	require.NoError(t, err)
	require.Len(t, joined, 3)

	cats := make([]string, len(joined))
	for i, s := range joined {
		require.NotNil(t, s.Category)
		require.NotNil(t, s.JoinDistance)
		assert.InDelta(t, 0, *s.JoinDistance, 1e-9)
		cats[i] = *s.Category
	}
	// Middle segment touches both nodes; the one at its start wins.
	assert.Equal(t, []string{"Poor", "Poor", "Fair"}, cats)
	assert.Equal(t, int64(1), *joined[1].JoinNodeID)

	// Input untouched.
	assert.Nil(t, segs[0].Category)
}

func TestSpatialJoin_KeepsUnmatchedAsNull(t *testing.T) {
	seg := model.Segment{ID: 1, RouteID: "R1", Line: orb.LineString{{0, 0}, {100, 0}}}
	joined, err := NewNative().SpatialJoin(context.Background(), []model.Segment{seg},
		[]model.Node{node(1, 50, 20, "Poor")}, tol(t, 5))
	require.NoError(t, err)
	require.Len(t, joined, 1)
	assert.Nil(t, joined[0].Category)
	assert.Nil(t, joined[0].JoinDistance)
	assert.Nil(t, joined[0].JoinNodeID)
}

func TestSpatialJoin_PrefersNearer(t *testing.T) {
	seg := model.Segment{ID: 1, Line: orb.LineString{{0, 0}, {100, 0}}}
	joined, err := NewNative().SpatialJoin(context.Background(), []model.Segment{seg},
		[]model.Node{node(1, 10, 4, "Poor"), node(2, 90, 1, "Fair")}, tol(t, 5))
	require.NoError(t, err)
	assert.Equal(t, "Fair", *joined[0].Category)
	assert.InDelta(t, 1, *joined[0].JoinDistance, 1e-9)
}

func TestLocateFeaturesAlongRoutes(t *testing.T) {
	routes, nodes, segs := splitScenario(t)
	joined, err := NewNative().SpatialJoin(context.Background(), segs, nodes, tol(t, 5))
	require.NoError(t, err)

	rows, err := NewNative().LocateFeaturesAlongRoutes(context.Background(), joined, routes, tol(t, 5),
		LocateOptions{KeepZeroLength: true})
	require.NoError(t, err)
	require.Len(t, rows, 3)

	prevTo := 0.0
	for i, row := range rows {
		assert.Equal(t, "R1", row.RouteID)
		assert.GreaterOrEqual(t, row.FromM, prevTo, "row %d overlaps previous", i)
		assert.LessOrEqual(t, row.FromM, row.ToM)
		prevTo = row.ToM
	}
	assert.InDelta(t, 20, rows[1].FromM, 1e-9)
	assert.InDelta(t, 60, rows[1].ToM, 1e-9)
	assert.Equal(t, "Poor", *rows[1].Category)
}

func TestLocateFeaturesAlongRoutes_ZeroLength(t *testing.T) {
	routes := []model.Route{route("R1", orb.Point{0, 0}, orb.Point{100, 0})}
	seg := model.Segment{ID: 7, RouteID: "R1", Line: orb.LineString{{100, 0}, {100, 0}}}

	rows, err := NewNative().LocateFeaturesAlongRoutes(context.Background(), []model.Segment{seg}, routes, tol(t, 5),
		LocateOptions{KeepZeroLength: true})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 0.0, rows[0].Length())

	rows, err = NewNative().LocateFeaturesAlongRoutes(context.Background(), []model.Segment{seg}, routes, tol(t, 5),
		LocateOptions{})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestLocateFeaturesAlongRoutes_ReversedFeature(t *testing.T) {
	routes := []model.Route{route("R1", orb.Point{0, 0}, orb.Point{100, 0})}
	seg := model.Segment{ID: 1, Line: orb.LineString{{70, 1}, {30, -1}}}

	rows, err := NewNative().LocateFeaturesAlongRoutes(context.Background(), []model.Segment{seg}, routes, tol(t, 5),
		LocateOptions{KeepZeroLength: true})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.InDelta(t, 30, rows[0].FromM, 1e-9)
	assert.InDelta(t, 70, rows[0].ToM, 1e-9)
	assert.InDelta(t, 1, rows[0].LocateDistance, 1e-9)
}

func TestLocateFeaturesAlongRoutes_FirstRouteWins(t *testing.T) {
	routes := []model.Route{
		route("B", orb.Point{0, 2}, orb.Point{100, 2}),
		route("A", orb.Point{0, 0}, orb.Point{100, 0}),
	}
	seg := model.Segment{ID: 1, Line: orb.LineString{{10, 1}, {40, 1}}}

	rows, err := NewNative().LocateFeaturesAlongRoutes(context.Background(), []model.Segment{seg}, routes, tol(t, 5),
		LocateOptions{KeepZeroLength: true})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "B", rows[0].RouteID)
}

func TestLocateFeaturesAlongRoutes_Unlocated(t *testing.T) {
	routes := []model.Route{route("R1", orb.Point{0, 0}, orb.Point{100, 0})}
	segs := []model.Segment{
		{ID: 1, Line: orb.LineString{{10, 50}, {40, 50}}},
		{ID: 2, RouteID: "R404", Line: orb.LineString{{10, 0}, {40, 0}}},
	}
	rows, err := NewNative().LocateFeaturesAlongRoutes(context.Background(), segs, routes, tol(t, 5), LocateOptions{})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestMakeRouteEventLayer(t *testing.T) {
	routes := []model.Route{route("R1", orb.Point{0, 0}, orb.Point{100, 0})}
	rows := []model.EventRow{
		{RouteID: "R1", FromM: 20, ToM: 60},
		{RouteID: "R1", FromM: 90, ToM: 120},
		{RouteID: "R1", FromM: 200, ToM: 300},
		{RouteID: "R2", FromM: 0, ToM: 10},
		{RouteID: "R1", FromM: 100, ToM: 100},
	}

	events, err := NewNative().MakeRouteEventLayer(context.Background(), routes, rows)
	require.NoError(t, err)
	require.Len(t, events, 5)

	assert.Equal(t, orb.LineString{{20, 0}, {60, 0}}, events[0].Line)
	assert.Empty(t, events[0].LocError)

	assert.Equal(t, model.LocErrorPartialMatch, events[1].LocError)
	assert.Equal(t, orb.LineString{{90, 0}, {100, 0}}, events[1].Line)

	assert.Equal(t, model.LocErrorMeasureNoMatch, events[2].LocError)
	assert.Nil(t, events[2].Line)

	assert.Equal(t, model.LocErrorRouteNotFound, events[3].LocError)

	assert.Equal(t, orb.LineString{{100, 0}, {100, 0}}, events[4].Line)
}

func TestPointsToLine(t *testing.T) {
	nodes := []model.Node{
		{ID: 3, Point: orb.Point{30, 0}, FaultID: "F1"},
		{ID: 1, Point: orb.Point{10, 0}, FaultID: "F1"},
		{ID: 2, Point: orb.Point{50, 5}, FaultID: "F2"},
		{ID: 4, Point: orb.Point{0, 0}},
		{ID: 5, Point: orb.Point{60, 5}, FaultID: "F3"},
		{ID: 6, Point: orb.Point{60, 5}, FaultID: "F3"},
		{ID: 7, Point: orb.Point{90, 5}, FaultID: "F2"},
	}

	lines, err := NewNative().PointsToLine(context.Background(), nodes)
	require.NoError(t, err)
	require.Len(t, lines, 2)

	assert.Equal(t, "F1", *lines[0].Category)
	assert.Equal(t, orb.LineString{{10, 0}, {30, 0}}, lines[0].Line)
	assert.Equal(t, "F2", *lines[1].Category)
	assert.Equal(t, orb.LineString{{50, 5}, {90, 5}}, lines[1].Line)
	assert.Equal(t, int64(2), lines[1].ID)
}

func TestCreateRoutes(t *testing.T) {
	lines := []RouteLine{
		{RouteID: "R1", Parts: []orb.LineString{{{100, 0}, {50, 0}}}},
		{RouteID: "R2", Parts: []orb.LineString{{{0, 10}, {10, 10}}}},
		{RouteID: "R1", Parts: []orb.LineString{{{0, 0}, {50, 0}}}},
		{RouteID: "", Parts: []orb.LineString{{{0, 20}, {10, 20}}}},
	}

	routes, err := NewNative().CreateRoutes(context.Background(), lines, CreateRoutesOptions{Priority: lrs.LowerLeft})
	require.NoError(t, err)
	require.Len(t, routes, 2)

	assert.Equal(t, "R1", routes[0].ID)
	assert.Equal(t, orb.LineString{{0, 0}, {50, 0}, {100, 0}}, routes[0].Line)
	assert.Equal(t, []float64{0, 50, 100}, routes[0].M)
	assert.Equal(t, "R2", routes[1].ID)
}

func TestNative_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewNative().SelectByLocation(ctx,
		[]model.Route{route("R1", orb.Point{0, 0}, orb.Point{1, 0})}, nil, tol(t, 1))
	assert.Error(t, err)
}

func gappedRoute(id string, parts ...orb.LineString) model.Route {
	line, m, gaps := lrs.MeasureParts(parts)
	return model.Route{ID: id, Line: line, M: m, Gaps: gaps, LengthMeasured: true}
}

func TestEventIntervalsMatchSegments(t *testing.T) {
	tests := []struct {
		name  string
		route model.Route
		nodes []model.Node
		cuts  []float64
	}{
		{
			name:  "cut just past an interior vertex",
			route: route("R1", orb.Point{0, 0}, orb.Point{50, 0}, orb.Point{100, 10}),
			nodes: []model.Node{node(1, 20, 0, "Poor"), node(2, 52.04, 0.408, "Fair")},
			cuts:  []float64{20, 52.0804},
		},
		{
			name:  "cut just before an interior vertex",
			route: route("R1", orb.Point{0, 0}, orb.Point{50, 0}, orb.Point{100, 10}),
			nodes: []model.Node{node(1, 49, 2, "Poor")},
			cuts:  []float64{49},
		},
		{
			name:  "cut on an interior vertex",
			route: route("R1", orb.Point{0, 0}, orb.Point{50, 0}, orb.Point{50, 50}, orb.Point{100, 50}),
			nodes: []model.Node{node(1, 51, -1, "Poor"), node(2, 52, 49, "Fair")},
			cuts:  []float64{50, 102},
		},
		{
			name: "cuts on both parts of a gapped route",
			route: gappedRoute("R1",
				orb.LineString{{0, 0}, {40, 0}},
				orb.LineString{{60, 0}, {100, 0}}),
			nodes: []model.Node{node(1, 20, 1, "Poor"), node(2, 70, -1, "Fair"), node(3, 50, 0, "Good")},
			cuts:  []float64{20, 50},
		},
	}

	ctx := context.Background()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := NewNative()
			routes := []model.Route{tt.route}

			segs, err := eng.SplitLineAtPoints(ctx, routes, tt.nodes, tol(t, 5))
			require.NoError(t, err)
			require.Len(t, segs, len(tt.cuts)+1)
			for i, cut := range tt.cuts {
				assert.InDelta(t, cut, segs[i].ToM, 1e-3)
				assert.InDelta(t, cut, segs[i+1].FromM, 1e-3)
			}

			joined, err := eng.SpatialJoin(ctx, segs, tt.nodes, tol(t, 5))
			require.NoError(t, err)
			rows, err := eng.LocateFeaturesAlongRoutes(ctx, joined, routes, tol(t, 5), LocateOptions{KeepZeroLength: true})
			require.NoError(t, err)
			require.Len(t, rows, len(segs))

			prevTo := tt.route.MinM()
			for i, row := range rows {
				assert.InDelta(t, segs[i].FromM, row.FromM, 1e-9, "event %d from", i)
				assert.InDelta(t, segs[i].ToM, row.ToM, 1e-9, "event %d to", i)
				assert.GreaterOrEqual(t, row.FromM, prevTo-1e-9, "event %d overlaps previous", i)
				prevTo = row.ToM
			}
			assert.InDelta(t, tt.route.MaxM(), prevTo, 1e-9)
		})
	}
}

func TestGappedRoute_GapCarriesNoGeometry(t *testing.T) {
	ctx := context.Background()
	r := gappedRoute("R1", orb.LineString{{0, 0}, {40, 0}}, orb.LineString{{60, 0}, {100, 0}})
	inGap := []model.Node{node(1, 50, 0, "Poor")}

	selected, err := NewNative().SelectByLocation(ctx, []model.Route{r}, inGap, tol(t, 5))
	require.NoError(t, err)
	assert.Empty(t, selected)

	segs, err := NewNative().SplitLineAtPoints(ctx, []model.Route{r}, inGap, tol(t, 5))
	require.NoError(t, err)
	require.Len(t, segs, 1)
	assert.Equal(t, []int{1}, segs[0].Gaps)

	joined, err := NewNative().SpatialJoin(ctx, segs, inGap, tol(t, 5))
	require.NoError(t, err)
	assert.Nil(t, joined[0].Category)

	events, err := NewNative().MakeRouteEventLayer(ctx, []model.Route{r}, []model.EventRow{{RouteID: "R1", FromM: 20, ToM: 60}})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, orb.LineString{{20, 0}, {40, 0}, {60, 0}, {80, 0}}, events[0].Line)
	assert.Equal(t, []int{1}, events[0].Gaps)
}

func TestSpatialJoin_OpeningNodeBeatsLaterNearerNode(t *testing.T) {
	// Field points drift off the centreline: the node that opens [20,60) is
	// 3 m off, the one that closes it only 1 m.
	routes := []model.Route{route("R1", orb.Point{0, 0}, orb.Point{100, 0})}
	nodes := []model.Node{node(1, 20, 3, "Poor"), node(2, 60, -1, "Fair")}

	segs, err := NewNative().SplitLineAtPoints(context.Background(), routes, nodes, tol(t, 5))
	require.NoError(t, err)
	joined, err := NewNative().SpatialJoin(context.Background(), segs, nodes, tol(t, 5))
	require.NoError(t, err)
	require.Len(t, joined, 3)

	assert.Equal(t, "Poor", *joined[1].Category)
	assert.InDelta(t, 3, *joined[1].JoinDistance, 1e-9)
	assert.Equal(t, "Fair", *joined[2].Category)
	// The first segment has no opening node; its nearest is the 20 m node.
	assert.Equal(t, "Poor", *joined[0].Category)
}
