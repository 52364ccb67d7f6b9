// Package workflow runs the condition and linear event collection pipelines
// against an injected geoprocessing engine.
package workflow

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/lrs-events/internal/dataset"
	"github.com/sells-group/lrs-events/internal/engine"
	"github.com/sells-group/lrs-events/internal/geoerr"
	"github.com/sells-group/lrs-events/internal/model"
	"github.com/sells-group/lrs-events/internal/workspace"
)

// Intermediate dataset names written by the condition workflow.
const (
	DatasetNodes             = "work_condition_nodes"
	DatasetRoutes            = "work_routes"
	DatasetEvaluatedRoutes   = "work_evaluated_routes"
	DatasetSegments          = "work_evaluated_route_segments"
	DatasetSegmentConditions = "work_evaluated_route_segment_conditions"
	DatasetEventTable        = "work_cond_events_table"
)

// ConditionParams are the per-run inputs, in command-line order.
type ConditionParams struct {
	Root          string  `validate:"required"`
	NodesPath     string  `validate:"required"`
	CategoryField string  `validate:"required"`
	RoutesPath    string  `validate:"required"`
	RouteIDField  string  `validate:"required"`
	Tolerance     float64 `validate:"gt=0"`
	Cleanup       bool
	ReportPath    string
}

// ConditionOptions are fixed per deployment.
type ConditionOptions struct {
	Label           string
	DefaultCategory string
	OutputTemplate  string
	BoundaryScope   string
	ContainerPrefix string
	CRSMode         string
	// Now stamps the scratch container. Defaults to time.Now.
	Now func() time.Time
}

// OutputName renders the output dataset name.
func (o ConditionOptions) OutputName() string {
	tmpl := o.OutputTemplate
	if tmpl == "" {
		tmpl = "out_{label}_events"
	}
	return strings.ReplaceAll(tmpl, "{label}", o.Label)
}

// Condition converts condition nodes into linear events along routes.
type Condition struct {
	opts     ConditionOptions
	exporter Exporter

	selector  RouteSelector
	segmenter Segmenter
	transfer  AttributeTransfer
	corrector BoundaryCorrector
	locator   MeasureLocator
	events    EventMaterializer
}

// NewCondition wires the pipeline components around eng. exp may be nil.
func NewCondition(eng engine.Engine, opts ConditionOptions, exp Exporter) *Condition {
	if opts.DefaultCategory == "" {
		opts.DefaultCategory = "Excellent"
	}
	if opts.BoundaryScope == "" {
		opts.BoundaryScope = ScopeRun
	}
	if opts.ContainerPrefix == "" {
		opts.ContainerPrefix = "work"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Condition{
		opts:      opts,
		exporter:  exp,
		selector:  RouteSelector{Engine: eng},
		segmenter: Segmenter{Engine: eng},
		transfer:  AttributeTransfer{Engine: eng},
		corrector: BoundaryCorrector{Default: opts.DefaultCategory, Scope: opts.BoundaryScope},
		locator:   MeasureLocator{Engine: eng},
		events:    EventMaterializer{Engine: eng},
	}
}

// Run executes the pipeline. Every step failure is fatal and leaves the
// scratch container as it was. Cleanup runs only after success; a cleanup
// failure comes back as a CleanupFailed error alongside the report.
func (c *Condition) Run(ctx context.Context, p ConditionParams) (*RunReport, error) {
	const op = "workflow: condition"

	if err := validateParams(op, p); err != nil {
		return nil, err
	}
	if c.opts.BoundaryScope != ScopeRoute && c.opts.BoundaryScope != ScopeRun {
		return nil, geoerr.Errorf(geoerr.InvalidInput, op, "unknown boundary scope %q", c.opts.BoundaryScope)
	}
	tol, err := model.NewTolerance(p.Tolerance)
	if err != nil {
		return nil, geoerr.New(geoerr.InvalidInput, op, err)
	}

	output := c.opts.OutputName()
	if err := workspace.ValidName(output); err != nil {
		return nil, err
	}
	log := zap.L().With(zap.String("component", "workflow.condition"), zap.String("output", output))
	log.Info("starting condition event post-processing", zap.Stringer("tolerance", tol))

	// Inputs are read, and their fields checked, before anything is created.
	nodes, nodesLayer, err := dataset.ReadNodes(p.NodesPath, dataset.NodeOptions{CategoryField: p.CategoryField})
	if err != nil {
		return nil, err
	}
	routes, routesLayer, err := dataset.ReadRoutes(p.RoutesPath, p.RouteIDField)
	if err != nil {
		return nil, err
	}
	if err := checkSpatialReference(op, nodesLayer, routesLayer); err != nil {
		return nil, err
	}
	fr, err := newFrame(op, c.opts.CRSMode, routes, nodes)
	if err != nil {
		return nil, err
	}
	nodes, routes = fr.nodes(nodes), fr.routes(routes)

	log.Info("creating workspace", zap.String("root", p.Root), zap.String("prefix", c.opts.ContainerPrefix))
	ws, err := workspace.Prepare(ctx, workspace.Options{Root: p.Root, Prefix: c.opts.ContainerPrefix, Now: c.opts.Now})
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := ws.Close(); cerr != nil {
			log.Warn("close workspace", zap.Error(cerr))
		}
	}()

	r, err := startRun(ctx, ws, log, "condition", output, tol, c.opts.Now())
	if err != nil {
		return nil, err
	}

	if err := c.pipeline(ctx, r, fr, nodes, routes, tol, output); err != nil {
		return r.report, r.fail(ctx, err)
	}

	err = r.complete(ctx, p.Cleanup, p.ReportPath)
	if err != nil && geoerr.IsFatal(err) {
		return r.report, err
	}
	log.Info("condition event post-processing completed",
		zap.Int("events", r.report.Events),
		zap.String("container", ws.Path()),
	)
	return r.report, err
}

func (c *Condition) pipeline(ctx context.Context, r *run, fr *frame, nodes []model.Node, routes []model.Route, tol model.Tolerance, output string) error {
	ws := r.ws

	r.log.Info("copying data to workspace")
	if err := r.step("copy_nodes", DatasetNodes, func() (int, error) {
		return len(nodes), r.intermediate(ctx, DatasetNodes, func() error { return ws.WriteNodes(ctx, DatasetNodes, nodes) })
	}); err != nil {
		return err
	}
	if err := r.step("copy_routes", DatasetRoutes, func() (int, error) {
		if err := r.intermediate(ctx, DatasetRoutes, func() error { return ws.WriteRoutes(ctx, DatasetRoutes, routes) }); err != nil {
			return 0, err
		}
		return len(routes), ws.WriteLayerRef(DatasetRoutes)
	}); err != nil {
		return err
	}

	r.log.Info("finding evaluated roads")
	var evaluated []model.Route
	if err := r.step("select", DatasetEvaluatedRoutes, func() (int, error) {
		var err error
		if evaluated, err = c.selector.Select(ctx, routes, nodes, tol); err != nil {
			return 0, err
		}
		r.log.Debug("routes without nearby nodes left unevaluated", zap.Int("count", len(routes)-len(evaluated)))
		return len(evaluated), r.intermediate(ctx, DatasetEvaluatedRoutes, func() error {
			return ws.WriteRoutes(ctx, DatasetEvaluatedRoutes, evaluated)
		})
	}); err != nil {
		return err
	}

	r.log.Info("creating condition segments")
	var segs []model.Segment
	if err := r.step("split", DatasetSegments, func() (int, error) {
		var err error
		if segs, err = c.segmenter.Split(ctx, evaluated, nodes, tol); err != nil {
			return 0, err
		}
		return len(segs), r.intermediate(ctx, DatasetSegments, func() error { return ws.WriteSegments(ctx, DatasetSegments, segs) })
	}); err != nil {
		return err
	}

	r.log.Info("transferring condition attributes to condition route segments")
	if err := r.step("join", "", func() (int, error) {
		var err error
		if segs, err = c.transfer.Join(ctx, segs, nodes, tol); err != nil {
			return 0, err
		}
		var matched int
		for _, s := range segs {
			if s.JoinDistance != nil {
				matched++
			}
		}
		return matched, nil
	}); err != nil {
		return err
	}

	r.log.Info("adding default start segment condition", zap.String("category", c.opts.DefaultCategory))
	if err := r.step("correct", DatasetSegmentConditions, func() (int, error) {
		var changed int
		segs, changed = c.corrector.Correct(segs)
		return changed, r.intermediate(ctx, DatasetSegmentConditions, func() error {
			return ws.WriteSegments(ctx, DatasetSegmentConditions, segs)
		})
	}); err != nil {
		return err
	}

	r.log.Info("locating condition segments along routes")
	var rows []model.EventRow
	if err := r.step("locate", DatasetEventTable, func() (int, error) {
		var err error
		if rows, err = c.locator.Locate(ctx, segs, evaluated, tol); err != nil {
			return 0, err
		}
		r.report.ZeroLength = zeroLength(rows)
		return len(rows), r.intermediate(ctx, DatasetEventTable, func() error { return ws.WriteEventRows(ctx, DatasetEventTable, rows) })
	}); err != nil {
		return err
	}

	r.log.Info("building condition events")
	var events []model.Event
	if err := r.step("materialize", output, func() (int, error) {
		var err error
		if events, err = c.events.Materialize(ctx, routes, rows); err != nil {
			return 0, err
		}
		events = fr.events(events)
		r.report.Events = len(events)
		r.report.LocErrors = countLocErrors(events)
		for _, k := range sortedKeys(r.report.LocErrors) {
			r.log.Warn("events not placed on route", zap.String("error", k), zap.Int("count", r.report.LocErrors[k]))
		}
		return len(events), ws.WriteEvents(ctx, output, events)
	}); err != nil {
		return err
	}

	return r.export(ctx, c.exporter, output, events)
}
