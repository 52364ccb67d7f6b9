// Package engine defines the geoprocessing operations a workflow calls, and a
// native planar implementation of them.
package engine

import (
	"context"

	"github.com/paulmach/orb"

	"github.com/sells-group/lrs-events/internal/lrs"
	"github.com/sells-group/lrs-events/internal/model"
)

// LocateOptions tunes LocateFeaturesAlongRoutes.
type LocateOptions struct {
	// KeepZeroLength keeps features whose located interval has no length.
	KeepZeroLength bool
}

// RouteLine is an unbuilt polyline record carrying a route ID.
type RouteLine struct {
	RouteID string
	Parts   []orb.LineString
}

// CreateRoutesOptions configures CreateRoutes.
type CreateRoutesOptions struct {
	Priority lrs.Priority
}

// Engine is the geoprocessing capability injected into workflow components.
// All distances are planar meters; tol is the run's single tolerance.
type Engine interface {
	// SelectByLocation returns the routes within tol of at least one node.
	SelectByLocation(ctx context.Context, routes []model.Route, nodes []model.Node, tol model.Tolerance) ([]model.Route, error)
	// SplitLineAtPoints cuts every route at the distinct measures of the
	// nodes within tol of it.
	SplitLineAtPoints(ctx context.Context, routes []model.Route, nodes []model.Node, tol model.Tolerance) ([]model.Segment, error)
	// SpatialJoin attaches to every segment the node within tol that opens
	// it, or else the nearest one, keeping segments without a match.
	SpatialJoin(ctx context.Context, segments []model.Segment, nodes []model.Node, tol model.Tolerance) ([]model.Segment, error)
	// LocateFeaturesAlongRoutes converts segment geometry to measure
	// intervals on routes.
	LocateFeaturesAlongRoutes(ctx context.Context, segments []model.Segment, routes []model.Route, tol model.Tolerance, opts LocateOptions) ([]model.EventRow, error)
	// MakeRouteEventLayer rebuilds event geometry from measures.
	MakeRouteEventLayer(ctx context.Context, routes []model.Route, rows []model.EventRow) ([]model.Event, error)
	// PointsToLine connects nodes sharing a fault ID, in node order.
	PointsToLine(ctx context.Context, nodes []model.Node) ([]model.Segment, error)
	// CreateRoutes merges lines sharing a route ID into measured routes.
	CreateRoutes(ctx context.Context, lines []RouteLine, opts CreateRoutesOptions) ([]model.Route, error)
}
