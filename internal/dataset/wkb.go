package dataset

import (
	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
)

// Geometry is a decoded scratch-container geometry: either a point or a line,
// with measures when the stored line was XYM and gaps when it was stored as
// several parts.
type Geometry struct {
	Point *orb.Point
	Line  orb.LineString
	M     []float64
	Gaps  []int
}

// EncodePoint converts a point to EWKB bytes with the given SRID.
func EncodePoint(p orb.Point, srid int) ([]byte, error) {
	g := geom.NewPointFlat(geom.XY, []float64{p[0], p[1]}).SetSRID(srid)
	data, err := ewkb.Marshal(g, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "dataset: encode point")
	}
	return data, nil
}

// EncodeLine converts a line to EWKB bytes. When m has one value per vertex
// the line is stored as XYM so route measures survive the round trip. A line
// with gaps is stored as a multi-linestring of its parts. Returns nil, nil for
// an empty line.
func EncodeLine(line orb.LineString, m []float64, gaps []int, srid int) ([]byte, error) {
	if len(line) == 0 {
		return nil, nil
	}

	layout, stride := geom.XY, 2
	if len(m) == len(line) {
		layout, stride = geom.XYM, 3
	}
	flat := make([]float64, 0, len(line)*stride)
	for i, p := range line {
		flat = append(flat, p[0], p[1])
		if stride == 3 {
			flat = append(flat, m[i])
		}
	}

	var g geom.T
	if len(gaps) == 0 {
		g = geom.NewLineStringFlat(layout, flat).SetSRID(srid)
	} else {
		ends := make([]int, 0, len(gaps)+1)
		for _, i := range gaps {
			ends = append(ends, (i+1)*stride)
		}
		ends = append(ends, len(flat))
		g = geom.NewMultiLineStringFlat(layout, flat, ends).SetSRID(srid)
	}

	data, err := ewkb.Marshal(g, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "dataset: encode line")
	}
	return data, nil
}

// Decode parses EWKB bytes written by EncodePoint or EncodeLine.
func Decode(data []byte) (*Geometry, error) {
	if len(data) == 0 {
		return &Geometry{}, nil
	}
	g, err := ewkb.Unmarshal(data)
	if err != nil {
		return nil, eris.Wrap(err, "dataset: decode geometry")
	}

	switch t := g.(type) {
	case *geom.Point:
		p := orb.Point{t.X(), t.Y()}
		return &Geometry{Point: &p}, nil

	case *geom.LineString:
		out := &Geometry{}
		out.appendFlat(t.FlatCoords(), t.Stride(), t.Layout().MIndex())
		return out, nil

	case *geom.MultiLineString:
		out := &Geometry{}
		flat, stride, mIdx := t.FlatCoords(), t.Stride(), t.Layout().MIndex()
		start := 0
		for _, end := range t.Ends() {
			if len(out.Line) > 0 && end > start {
				out.Gaps = append(out.Gaps, len(out.Line)-1)
			}
			out.appendFlat(flat[start:end], stride, mIdx)
			start = end
		}
		return out, nil

	default:
		return nil, eris.Errorf("dataset: unsupported geometry %T", g)
	}
}

func (g *Geometry) appendFlat(flat []float64, stride, mIdx int) {
	for i := 0; i+stride <= len(flat); i += stride {
		g.Line = append(g.Line, orb.Point{flat[i], flat[i+1]})
		if mIdx >= 0 {
			g.M = append(g.M, flat[i+mIdx])
		}
	}
}
