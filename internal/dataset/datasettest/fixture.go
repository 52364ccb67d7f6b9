// Package datasettest writes small shapefile fixtures for tests.
package datasettest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/require"
)

// Point is a fixture point with its attribute values, in field order.
type Point struct {
	X, Y  float64
	Attrs []string
}

// Line is a fixture polyline with its attribute values, in field order. M,
// when set, holds one measure per vertex across all parts and the line is
// written as PolyLineM.
type Line struct {
	Parts [][][2]float64
	M     []float64
	Attrs []string
}

// WritePoints writes a point shapefile with string fields and returns its path.
func WritePoints(t *testing.T, dir, name string, fields []string, pts []Point) string {
	t.Helper()
	path := filepath.Join(dir, name+".shp")
	w, err := shp.Create(path, shp.POINT)
	require.NoError(t, err)

	require.NoError(t, w.SetFields(stringFields(fields)))
	for i, p := range pts {
		w.Write(&shp.Point{X: p.X, Y: p.Y})
		writeAttrs(t, w, i, p.Attrs)
	}
	w.Close()
	return path
}

// WriteLines writes a polyline shapefile with string fields and returns its path.
func WriteLines(t *testing.T, dir, name string, fields []string, lines []Line) string {
	t.Helper()
	path := filepath.Join(dir, name+".shp")

	var shapeType shp.ShapeType = shp.POLYLINE
	for _, l := range lines {
		if l.M != nil {
			shapeType = shp.POLYLINEM
		}
	}
	w, err := shp.Create(path, shapeType)
	require.NoError(t, err)

	require.NoError(t, w.SetFields(stringFields(fields)))
	for i, l := range lines {
		var parts [][]shp.Point
		for _, part := range l.Parts {
			pts := make([]shp.Point, len(part))
			for j, c := range part {
				pts[j] = shp.Point{X: c[0], Y: c[1]}
			}
			parts = append(parts, pts)
		}
		pl := shp.NewPolyLine(parts)
		if shapeType == shp.POLYLINEM {
			w.Write(&shp.PolyLineM{
				Box:       pl.Box,
				NumParts:  pl.NumParts,
				NumPoints: pl.NumPoints,
				Parts:     pl.Parts,
				Points:    pl.Points,
				MRange:    mRange(l.M),
				MArray:    l.M,
			})
		} else {
			w.Write(pl)
		}
		writeAttrs(t, w, i, l.Attrs)
	}
	w.Close()
	return path
}

// WritePRJ writes a projection file next to a shapefile.
func WritePRJ(t *testing.T, shpPath, wkt string) {
	t.Helper()
	prj := strings.TrimSuffix(shpPath, ".shp") + ".prj"
	require.NoError(t, os.WriteFile(prj, []byte(wkt), 0o644))
}

func stringFields(names []string) []shp.Field {
	fields := make([]shp.Field, len(names))
	for i, n := range names {
		fields[i] = shp.StringField(n, 32)
	}
	return fields
}

func writeAttrs(t *testing.T, w *shp.Writer, row int, attrs []string) {
	t.Helper()
	for field, v := range attrs {
		require.NoError(t, w.WriteAttribute(row, field, v))
	}
}

func mRange(m []float64) [2]float64 {
	if len(m) == 0 {
		return [2]float64{}
	}
	lo, hi := m[0], m[0]
	for _, v := range m {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	return [2]float64{lo, hi}
}
