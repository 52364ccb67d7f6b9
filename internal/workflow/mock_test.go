package workflow

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/lrs-events/internal/engine"
	"github.com/sells-group/lrs-events/internal/model"
)

// --- Engine Mock ---

type mockEngine struct {
	mock.Mock
}

var _ engine.Engine = (*mockEngine)(nil)

func (m *mockEngine) SelectByLocation(ctx context.Context, routes []model.Route, nodes []model.Node, tol model.Tolerance) ([]model.Route, error) {
	args := m.Called(ctx, routes, nodes, tol)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Route), args.Error(1)
}

func (m *mockEngine) SplitLineAtPoints(ctx context.Context, routes []model.Route, nodes []model.Node, tol model.Tolerance) ([]model.Segment, error) {
	args := m.Called(ctx, routes, nodes, tol)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Segment), args.Error(1)
}

func (m *mockEngine) SpatialJoin(ctx context.Context, segments []model.Segment, nodes []model.Node, tol model.Tolerance) ([]model.Segment, error) {
	args := m.Called(ctx, segments, nodes, tol)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Segment), args.Error(1)
}

func (m *mockEngine) LocateFeaturesAlongRoutes(ctx context.Context, segments []model.Segment, routes []model.Route, tol model.Tolerance, opts engine.LocateOptions) ([]model.EventRow, error) {
	args := m.Called(ctx, segments, routes, tol, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.EventRow), args.Error(1)
}

func (m *mockEngine) MakeRouteEventLayer(ctx context.Context, routes []model.Route, rows []model.EventRow) ([]model.Event, error) {
	args := m.Called(ctx, routes, rows)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Event), args.Error(1)
}

func (m *mockEngine) PointsToLine(ctx context.Context, nodes []model.Node) ([]model.Segment, error) {
	args := m.Called(ctx, nodes)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Segment), args.Error(1)
}

func (m *mockEngine) CreateRoutes(ctx context.Context, lines []engine.RouteLine, opts engine.CreateRoutesOptions) ([]model.Route, error) {
	args := m.Called(ctx, lines, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Route), args.Error(1)
}

// --- Exporter Mock ---

type mockExporter struct {
	mock.Mock
}

func (m *mockExporter) Export(ctx context.Context, name string, events []model.Event) ([]string, error) {
	args := m.Called(ctx, name, events)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}
