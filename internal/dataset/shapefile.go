// Package dataset reads and writes the feature datasets a run consumes and
// produces: shapefiles on the way in, shapefile/GeoJSON/CSV on the way out,
// and the EWKB encoding used inside the scratch container.
package dataset

import (
	"errors"
	"os"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/cases"

	"github.com/sells-group/lrs-events/internal/geoerr"
	"github.com/sells-group/lrs-events/internal/lrs"
	"github.com/sells-group/lrs-events/internal/model"
)

// Layer describes a shapefile that was read.
type Layer struct {
	Path   string
	PRJ    string
	Fields []string
	Count  int
}

// LineFeature is one raw polyline record keyed by a route ID attribute,
// before it is built into a measured route.
type LineFeature struct {
	FID     int64
	RouteID string
	Parts   []orb.LineString
	Attrs   map[string]any
}

// NodeOptions selects the attributes read from a nodes shapefile.
type NodeOptions struct {
	CategoryField string
	FaultIDField  string
}

// fieldIndex maps case-folded DBF field names to their column index.
type fieldIndex struct {
	names []string
	idx   map[string]int
	fold  cases.Caser
}

func newFieldIndex(fields []shp.Field) *fieldIndex {
	fi := &fieldIndex{idx: make(map[string]int, len(fields)), fold: cases.Fold()}
	for i, f := range fields {
		name := strings.TrimRight(f.String(), "\x00")
		fi.names = append(fi.names, name)
		fi.idx[fi.fold.String(name)] = i
	}
	return fi
}

// lookup finds a field by name, ignoring case.
func (fi *fieldIndex) lookup(name string) (int, bool) {
	i, ok := fi.idx[fi.fold.String(strings.TrimSpace(name))]
	return i, ok
}

func (fi *fieldIndex) require(op, path, name string) (int, error) {
	i, ok := fi.lookup(name)
	if !ok {
		return 0, geoerr.Errorf(geoerr.InvalidField, op, "field %q not found in %s (fields: %s)",
			name, path, strings.Join(fi.names, ", "))
	}
	return i, nil
}

func openShapefile(path string) (*shp.Reader, *fieldIndex, *Layer, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, nil, nil, eris.Wrapf(err, "dataset: open shapefile %s", path)
	}
	fi := newFieldIndex(reader.Fields())
	prj, err := readPRJ(path)
	if err != nil {
		_ = reader.Close()
		return nil, nil, nil, err
	}
	return reader, fi, &Layer{Path: path, PRJ: prj, Fields: fi.names}, nil
}

// readPRJ returns the projection text stored next to a shapefile, or "" when
// the dataset has none.
func readPRJ(shpPath string) (string, error) {
	base := strings.TrimSuffix(strings.TrimSuffix(shpPath, ".shp"), ".SHP")
	for _, ext := range []string{".prj", ".PRJ"} {
		data, err := os.ReadFile(base + ext)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return "", eris.Wrapf(err, "dataset: read projection for %s", shpPath)
		}
		return strings.TrimSpace(string(data)), nil
	}
	return "", nil
}

func attribute(reader *shp.Reader, i int) string {
	return strings.TrimSpace(strings.TrimRight(reader.Attribute(i), "\x00"))
}

func attributes(reader *shp.Reader, fi *fieldIndex) map[string]any {
	attrs := make(map[string]any, len(fi.names))
	for i, name := range fi.names {
		if val := attribute(reader, i); val != "" {
			attrs[name] = val
		}
	}
	return attrs
}

// ReadNodes reads point observations. The record number (1-based) becomes the
// node ID and fixes its order for PointsToLine.
func ReadNodes(path string, opts NodeOptions) ([]model.Node, *Layer, error) {
	const op = "dataset: read nodes"
	reader, fi, layer, err := openShapefile(path)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = reader.Close() }()

	catIdx := -1
	if opts.CategoryField != "" {
		if catIdx, err = fi.require(op, path, opts.CategoryField); err != nil {
			return nil, nil, err
		}
	}
	faultIdx := -1
	if opts.FaultIDField != "" {
		if faultIdx, err = fi.require(op, path, opts.FaultIDField); err != nil {
			return nil, nil, err
		}
	}

	var nodes []model.Node
	var skipped int
	for reader.Next() {
		n, shape := reader.Shape()
		pt, ok := shapePoint(shape)
		if !ok {
			skipped++
			continue
		}
		node := model.Node{ID: int64(n) + 1, Point: pt, Attrs: attributes(reader, fi)}
		if catIdx >= 0 {
			if val := attribute(reader, catIdx); val != "" {
				node.Category = model.StringPtr(val)
			}
		}
		if faultIdx >= 0 {
			node.FaultID = attribute(reader, faultIdx)
		}
		nodes = append(nodes, node)
	}

	if skipped > 0 {
		zap.L().Debug("dataset: skipped non-point records",
			zap.String("path", path),
			zap.Int("skipped", skipped),
		)
	}
	layer.Count = len(nodes)
	return nodes, layer, nil
}

// ReadLines reads polyline records with their route ID attribute.
func ReadLines(path, idField string) ([]LineFeature, *Layer, error) {
	const op = "dataset: read lines"
	reader, fi, layer, err := openShapefile(path)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = reader.Close() }()

	idIdx, err := fi.require(op, path, idField)
	if err != nil {
		return nil, nil, err
	}

	var lines []LineFeature
	for reader.Next() {
		n, shape := reader.Shape()
		parts, _ := shapeParts(shape)
		if len(parts) == 0 {
			continue
		}
		lines = append(lines, LineFeature{
			FID:     int64(n) + 1,
			RouteID: attribute(reader, idIdx),
			Parts:   parts,
			Attrs:   attributes(reader, fi),
		})
	}
	layer.Count = len(lines)
	return lines, layer, nil
}

// ReadRoutes reads measured routes. PolyLineM records keep their stored
// measures; other polylines are measured by length with gaps between parts
// ignored. Route IDs must be unique.
func ReadRoutes(path, idField string) ([]model.Route, *Layer, error) {
	const op = "dataset: read routes"
	reader, fi, layer, err := openShapefile(path)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = reader.Close() }()

	idIdx, err := fi.require(op, path, idField)
	if err != nil {
		return nil, nil, err
	}

	seen := make(map[string]bool)
	var routes []model.Route
	for reader.Next() {
		_, shape := reader.Shape()
		parts, measures := shapeParts(shape)
		if len(parts) == 0 {
			continue
		}

		id := attribute(reader, idIdx)
		if seen[id] {
			return nil, nil, geoerr.Errorf(geoerr.InvalidInput, op,
				"route ID %q appears more than once in %s; build routes before locating events", id, path)
		}
		seen[id] = true

		route := model.Route{ID: id, Attrs: attributes(reader, fi)}
		if measures != nil {
			for i, part := range parts {
				if n := len(route.Line); n > 0 && len(part) > 0 && !route.Line[n-1].Equal(part[0]) {
					route.Gaps = append(route.Gaps, len(route.Line)-1)
				}
				route.Line = append(route.Line, part...)
				route.M = append(route.M, measures[i]...)
			}
		} else {
			route.Line, route.M, route.Gaps = lrs.MeasureParts(parts)
			route.LengthMeasured = true
		}
		if err := lrs.ValidateMeasures(route.Line, route.M); err != nil {
			return nil, nil, geoerr.New(geoerr.InvalidInput, op, eris.Wrapf(err, "route %q", id))
		}
		routes = append(routes, route)
	}
	layer.Count = len(routes)
	return routes, layer, nil
}

// Table is a plain attribute table read from a shapefile's DBF.
type Table struct {
	Columns []string
	Rows    [][]string
}

// ReadTable reads the named attribute columns of every record.
func ReadTable(path string, columns []string) (*Table, error) {
	const op = "dataset: read table"
	reader, fi, _, err := openShapefile(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = reader.Close() }()

	idx := make([]int, len(columns))
	for i, col := range columns {
		if idx[i], err = fi.require(op, path, col); err != nil {
			return nil, err
		}
	}

	table := &Table{Columns: columns}
	for reader.Next() {
		row := make([]string, len(idx))
		for i, j := range idx {
			row[i] = attribute(reader, j)
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

func shapePoint(shape shp.Shape) (orb.Point, bool) {
	switch s := shape.(type) {
	case *shp.Point:
		return orb.Point{s.X, s.Y}, true
	case *shp.PointZ:
		return orb.Point{s.X, s.Y}, true
	case *shp.PointM:
		return orb.Point{s.X, s.Y}, true
	default:
		return orb.Point{}, false
	}
}

// shapeParts splits a polyline shape into its parts. Measures are returned
// per part for PolyLineM shapes and nil otherwise.
func shapeParts(shape shp.Shape) ([]orb.LineString, [][]float64) {
	var parts []int32
	var points []shp.Point
	var marray []float64

	switch s := shape.(type) {
	case *shp.PolyLine:
		parts, points = s.Parts, s.Points
	case *shp.PolyLineZ:
		parts, points = s.Parts, s.Points
	case *shp.PolyLineM:
		parts, points, marray = s.Parts, s.Points, s.MArray
	default:
		return nil, nil
	}
	if len(points) == 0 {
		return nil, nil
	}
	if len(parts) == 0 {
		parts = []int32{0}
	}

	var lines []orb.LineString
	var measures [][]float64
	hasM := len(marray) == len(points)
	for i := range parts {
		start := parts[i]
		end := int32(len(points))
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		if end-start < 2 {
			continue
		}
		line := make(orb.LineString, 0, end-start)
		for j := start; j < end; j++ {
			line = append(line, orb.Point{points[j].X, points[j].Y})
		}
		lines = append(lines, line)
		if hasM {
			measures = append(measures, append([]float64(nil), marray[start:end]...))
		}
	}
	if !hasM {
		measures = nil
	}
	return lines, measures
}
