package workflow

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/lrs-events/internal/dataset"
	"github.com/sells-group/lrs-events/internal/engine"
	"github.com/sells-group/lrs-events/internal/geoerr"
	"github.com/sells-group/lrs-events/internal/lrs"
	"github.com/sells-group/lrs-events/internal/model"
	"github.com/sells-group/lrs-events/internal/workspace"
)

// Temporary datasets written by the LEC workflow.
const (
	DatasetConvertedLines    = "temp_ConvertedLines"
	DatasetLocatedAlongRoute = "temp_LocatedAlongRoute"
)

// LECParams are the per-run inputs, in command-line order.
type LECParams struct {
	Root         string  `validate:"required"`
	NodesPath    string  `validate:"required"`
	FaultIDField string  `validate:"required"`
	RoutesPath   string  `validate:"required"`
	RouteIDField string  `validate:"required"`
	Tolerance    float64 `validate:"gt=0"`
	Cleanup      bool
	ReportPath   string
}

// LECOptions are fixed per deployment.
type LECOptions struct {
	OutputName string
	// CreateRoutes builds measured routes from plain polylines first.
	CreateRoutes    bool
	Priority        lrs.Priority
	ContainerPrefix string
	CRSMode         string
	Now             func() time.Time
}

// LEC turns linear event collection nodes into events: nodes sharing a fault
// ID become one line, which is then located along the routes.
type LEC struct {
	eng      engine.Engine
	opts     LECOptions
	exporter Exporter
	locator  MeasureLocator
	events   EventMaterializer
}

// NewLEC wires the LEC workflow around eng. exp may be nil.
func NewLEC(eng engine.Engine, opts LECOptions, exp Exporter) *LEC {
	if opts.OutputName == "" {
		opts.OutputName = "LEC_LinearEvents"
	}
	if opts.Priority == "" {
		opts.Priority = lrs.UpperLeft
	}
	if opts.ContainerPrefix == "" {
		opts.ContainerPrefix = "work"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &LEC{
		eng:      eng,
		opts:     opts,
		exporter: exp,
		locator:  MeasureLocator{Engine: eng},
		events:   EventMaterializer{Engine: eng},
	}
}

// Run executes the LEC workflow with the same failure and cleanup rules as
// Condition.Run.
func (l *LEC) Run(ctx context.Context, p LECParams) (*RunReport, error) {
	const op = "workflow: lec"

	if err := validateParams(op, p); err != nil {
		return nil, err
	}
	tol, err := model.NewTolerance(p.Tolerance)
	if err != nil {
		return nil, geoerr.New(geoerr.InvalidInput, op, err)
	}
	if err := workspace.ValidName(l.opts.OutputName); err != nil {
		return nil, err
	}

	log := zap.L().With(zap.String("component", "workflow.lec"), zap.String("output", l.opts.OutputName))
	log.Info("starting LEC post-processing", zap.Stringer("tolerance", tol))

	nodes, nodesLayer, err := dataset.ReadNodes(p.NodesPath, dataset.NodeOptions{FaultIDField: p.FaultIDField})
	if err != nil {
		return nil, err
	}

	var (
		routes      []model.Route
		lines       []dataset.LineFeature
		routesLayer *dataset.Layer
	)
	if l.opts.CreateRoutes {
		lines, routesLayer, err = dataset.ReadLines(p.RoutesPath, p.RouteIDField)
	} else {
		routes, routesLayer, err = dataset.ReadRoutes(p.RoutesPath, p.RouteIDField)
	}
	if err != nil {
		return nil, err
	}
	if err := checkSpatialReference(op, nodesLayer, routesLayer); err != nil {
		return nil, err
	}

	fr, err := newFrame(op, l.opts.CRSMode, append(routes, linesAsRoutes(lines)...), nodes)
	if err != nil {
		return nil, err
	}
	nodes = fr.nodes(nodes)
	routes = fr.routes(routes)
	lines = fr.lines(lines)

	ws, err := workspace.Prepare(ctx, workspace.Options{Root: p.Root, Prefix: l.opts.ContainerPrefix, Now: l.opts.Now})
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := ws.Close(); cerr != nil {
			log.Warn("close workspace", zap.Error(cerr))
		}
	}()

	r, err := startRun(ctx, ws, log, "lec", l.opts.OutputName, tol, l.opts.Now())
	if err != nil {
		return nil, err
	}

	if err := l.pipeline(ctx, r, fr, nodes, routes, lines, tol); err != nil {
		return r.report, r.fail(ctx, err)
	}

	err = r.complete(ctx, p.Cleanup, p.ReportPath)
	if err != nil && geoerr.IsFatal(err) {
		return r.report, err
	}
	log.Info("LEC post-processing completed", zap.Int("events", r.report.Events))
	return r.report, err
}

func (l *LEC) pipeline(ctx context.Context, r *run, fr *frame, nodes []model.Node, routes []model.Route, lines []dataset.LineFeature, tol model.Tolerance) error {
	ws := r.ws

	if l.opts.CreateRoutes {
		if err := r.step("create_routes", "", func() (int, error) {
			in := make([]engine.RouteLine, len(lines))
			for i, f := range lines {
				in[i] = engine.RouteLine{RouteID: f.RouteID, Parts: f.Parts}
			}
			var err error
			routes, err = l.eng.CreateRoutes(ctx, in, engine.CreateRoutesOptions{Priority: l.opts.Priority})
			if err != nil {
				return 0, engineErr("workflow: create routes", err)
			}
			return len(routes), nil
		}); err != nil {
			return err
		}
	}

	var converted []model.Segment
	if err := r.step("points_to_line", DatasetConvertedLines, func() (int, error) {
		var err error
		if converted, err = l.eng.PointsToLine(ctx, nodes); err != nil {
			return 0, engineErr("workflow: points to line", err)
		}
		if len(converted) == 0 {
			return 0, geoerr.Errorf(geoerr.EmptySelection, "workflow: points to line",
				"no fault ID has two or more nodes among %d nodes", len(nodes))
		}
		return len(converted), r.intermediate(ctx, DatasetConvertedLines, func() error {
			return ws.WriteSegments(ctx, DatasetConvertedLines, converted)
		})
	}); err != nil {
		return err
	}

	var rows []model.EventRow
	if err := r.step("locate", DatasetLocatedAlongRoute, func() (int, error) {
		var err error
		if rows, err = l.locator.Locate(ctx, converted, routes, tol); err != nil {
			return 0, err
		}
		if unlocated := len(converted) - len(rows); unlocated > 0 {
			r.log.Warn("lines not located on any route", zap.Int("count", unlocated))
		}
		r.report.ZeroLength = zeroLength(rows)
		return len(rows), r.intermediate(ctx, DatasetLocatedAlongRoute, func() error {
			return ws.WriteEventRows(ctx, DatasetLocatedAlongRoute, rows)
		})
	}); err != nil {
		return err
	}

	var events []model.Event
	if err := r.step("materialize", l.opts.OutputName, func() (int, error) {
		var err error
		if events, err = l.events.Materialize(ctx, routes, rows); err != nil {
			return 0, err
		}
		events = fr.events(events)
		r.report.Events = len(events)
		r.report.LocErrors = countLocErrors(events)
		return len(events), ws.WriteEvents(ctx, l.opts.OutputName, events)
	}); err != nil {
		return err
	}

	return r.export(ctx, l.exporter, l.opts.OutputName, events)
}

// linesAsRoutes flattens unbuilt lines so their coordinates can seed the
// projection frame.
func linesAsRoutes(lines []dataset.LineFeature) []model.Route {
	var out []model.Route
	for _, f := range lines {
		for _, p := range f.Parts {
			out = append(out, model.Route{ID: f.RouteID, Line: p})
		}
	}
	return out
}
