package workflow

import (
	"math"
	"strings"

	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"github.com/sells-group/lrs-events/internal/dataset"
	"github.com/sells-group/lrs-events/internal/geoerr"
	"github.com/sells-group/lrs-events/internal/lrs"
	"github.com/sells-group/lrs-events/internal/model"
)

// CRS modes.
const (
	CRSProjected  = "projected"
	CRSGeographic = "geographic"
)

// checkSpatialReference fails when both layers declare a coordinate system
// and the declarations differ.
func checkSpatialReference(op string, a, b *dataset.Layer) error {
	if a == nil || b == nil || a.PRJ == "" || b.PRJ == "" {
		return nil
	}
	if normalizePRJ(a.PRJ) != normalizePRJ(b.PRJ) {
		return geoerr.Errorf(geoerr.SpatialReferenceMismatch, op,
			"%s and %s declare different coordinate systems", a.Path, b.Path)
	}
	return nil
}

func normalizePRJ(s string) string {
	return strings.Join(strings.Fields(s), "")
}

// maxDistortion is the relative length error tolerated before warning.
const maxDistortion = 0.005

// frame is the planar frame a run computes in.
type frame struct {
	proj lrs.Projection
}

// newFrame picks the projection for mode. Geographic data is projected around
// the center of all input coordinates.
func newFrame(op, mode string, routes []model.Route, nodes []model.Node) (*frame, error) {
	switch mode {
	case "", CRSProjected:
		return &frame{proj: lrs.Identity{}}, nil
	case CRSGeographic:
	default:
		return nil, geoerr.Errorf(geoerr.InvalidInput, op, "unknown crs mode %q", mode)
	}

	var b orb.Bound
	first := true
	extend := func(p orb.Point) {
		if first {
			b, first = p.Bound(), false
			return
		}
		b = b.Extend(p)
	}
	for _, r := range routes {
		if err := lrs.ValidateGeographic(r.Line...); err != nil {
			return nil, geoerr.New(geoerr.SpatialReferenceMismatch, op, err)
		}
		for _, p := range r.Line {
			extend(p)
		}
	}
	for _, n := range nodes {
		if err := lrs.ValidateGeographic(n.Point); err != nil {
			return nil, geoerr.New(geoerr.SpatialReferenceMismatch, op, err)
		}
		extend(n.Point)
	}
	if first {
		return &frame{proj: lrs.Identity{}}, nil
	}

	local, err := lrs.NewLocal(b.Center())
	if err != nil {
		return nil, geoerr.New(geoerr.SpatialReferenceMismatch, op, err)
	}

	// The local projection distorts with extent; report it on the diagonal.
	sw, ne := b.Min, b.Max
	if geodesic := lrs.GeodesicDistance(sw, ne); geodesic > 0 {
		planarDiag := lrs.Measures(orb.LineString{local.Forward(sw), local.Forward(ne)})[1]
		if distortion := math.Abs(planarDiag-geodesic) / geodesic; distortion > maxDistortion {
			zap.L().Warn("geographic extent too large for accurate meters",
				zap.Float64("distortion", distortion),
				zap.Float64("diagonal_m", geodesic),
			)
		}
	}
	return &frame{proj: local}, nil
}

func (f *frame) identity() bool {
	_, ok := f.proj.(lrs.Identity)
	return ok
}

// routes projects routes into the frame. Length-derived measures are
// recomputed in meters; stored measures are kept.
func (f *frame) routes(in []model.Route) []model.Route {
	if f.identity() {
		return in
	}
	out := make([]model.Route, len(in))
	for i, r := range in {
		r.Line = lrs.ForwardLine(f.proj, r.Line)
		if r.LengthMeasured {
			r.M = lrs.Remeasure(r.Line, r.Gaps)
		}
		out[i] = r
	}
	return out
}

func (f *frame) nodes(in []model.Node) []model.Node {
	if f.identity() {
		return in
	}
	out := make([]model.Node, len(in))
	for i, n := range in {
		n.Point = f.proj.Forward(n.Point)
		out[i] = n
	}
	return out
}

func (f *frame) lines(in []dataset.LineFeature) []dataset.LineFeature {
	if f.identity() {
		return in
	}
	out := make([]dataset.LineFeature, len(in))
	for i, l := range in {
		parts := make([]orb.LineString, len(l.Parts))
		for j, p := range l.Parts {
			parts[j] = lrs.ForwardLine(f.proj, p)
		}
		l.Parts = parts
		out[i] = l
	}
	return out
}

// events maps event geometry back to the source coordinates.
func (f *frame) events(in []model.Event) []model.Event {
	if f.identity() {
		return in
	}
	out := make([]model.Event, len(in))
	for i, ev := range in {
		ev.Line = lrs.InverseLine(f.proj, ev.Line)
		out[i] = ev
	}
	return out
}
