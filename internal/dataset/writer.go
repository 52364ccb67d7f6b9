package dataset

import (
	"encoding/json"
	"os"
	"strconv"

	"github.com/jonas-p/go-shp"
	"github.com/jszwec/csvutil"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"

	"github.com/sells-group/lrs-events/internal/lrs"
	"github.com/sells-group/lrs-events/internal/model"
)

// dbfNameLen is the longest field name a DBF header can hold.
const dbfNameLen = 10

// WriteShapefile writes events as a polyline shapefile. categoryField names
// the DBF column holding the event category. Events without geometry are
// written as null shapes so attribute rows stay aligned.
func WriteShapefile(path string, events []model.Event, categoryField string) error {
	w, err := shp.Create(path, shp.POLYLINE)
	if err != nil {
		return eris.Wrapf(err, "dataset: create shapefile %s", path)
	}
	defer w.Close()

	if len(categoryField) > dbfNameLen {
		categoryField = categoryField[:dbfNameLen]
	}
	ridSize, catSize, errSize := uint8(1), uint8(1), uint8(1)
	for _, ev := range events {
		ridSize = maxSize(ridSize, len(ev.RouteID))
		if ev.Category != nil {
			catSize = maxSize(catSize, len(*ev.Category))
		}
		errSize = maxSize(errSize, len(ev.LocError))
	}

	fields := []shp.Field{
		shp.StringField("rid", ridSize),
		shp.FloatField("fmeas", 19, 6),
		shp.FloatField("tmeas", 19, 6),
		shp.StringField(categoryField, catSize),
		shp.FloatField("distance", 19, 6),
		shp.FloatField("node_dist", 19, 6),
		shp.NumberField("source_id", 10),
		shp.StringField("loc_error", errSize),
	}
	if err := w.SetFields(fields); err != nil {
		return eris.Wrap(err, "dataset: set shapefile fields")
	}

	for i, ev := range events {
		if len(ev.Line) >= 2 {
			parts := lrs.Gaps(ev.Gaps).Parts(ev.Line)
			pts := make([][]shp.Point, len(parts))
			for j, part := range parts {
				for _, p := range part {
					pts[j] = append(pts[j], shp.Point{X: p[0], Y: p[1]})
				}
			}
			w.Write(shp.NewPolyLine(pts))
		} else {
			w.Write(&shp.Null{})
		}

		values := []any{
			ev.RouteID,
			ev.FromM,
			ev.ToM,
			derefString(ev.Category),
			ev.LocateDistance,
			formatOptional(ev.JoinDistance),
			int(ev.SourceID),
			ev.LocError,
		}
		for field, v := range values {
			if err := w.WriteAttribute(i, field, v); err != nil {
				return eris.Wrapf(err, "dataset: write attribute %d of event %d", field, i)
			}
		}
	}
	return nil
}

// eventFeature is the flat record written to CSV.
type eventFeature struct {
	model.EventRow
	LocError string `csv:"loc_error,omitempty"`
	WKT      string `csv:"wkt"`
}

// WriteCSV writes events as CSV with a WKT geometry column.
func WriteCSV(path string, events []model.Event) error {
	recs := make([]eventFeature, len(events))
	for i, ev := range events {
		recs[i] = eventFeature{EventRow: ev.EventRow, LocError: ev.LocError}
		if len(ev.Line) > 0 {
			recs[i].WKT = wkt.MarshalString(eventGeometry(ev))
		}
	}
	data, err := csvutil.Marshal(recs)
	if err != nil {
		return eris.Wrap(err, "dataset: marshal events csv")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "dataset: write %s", path)
	}
	return nil
}

// WriteGeoJSON writes events as a GeoJSON FeatureCollection.
func WriteGeoJSON(path string, events []model.Event, categoryField string) error {
	fc := geojson.NewFeatureCollection()
	for _, ev := range events {
		var g orb.Geometry = orb.LineString{}
		if ev.Line != nil {
			g = eventGeometry(ev)
		}
		f := geojson.NewFeature(g)
		f.Properties["rid"] = ev.RouteID
		f.Properties["fmeas"] = ev.FromM
		f.Properties["tmeas"] = ev.ToM
		f.Properties[categoryField] = ev.Category
		f.Properties["distance"] = ev.LocateDistance
		f.Properties["closest_node_distance"] = ev.JoinDistance
		f.Properties["source_id"] = ev.SourceID
		if ev.LocError != "" {
			f.Properties["loc_error"] = ev.LocError
		}
		fc.Append(f)
	}

	data, err := json.Marshal(fc)
	if err != nil {
		return eris.Wrap(err, "dataset: marshal geojson")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "dataset: write %s", path)
	}
	return nil
}

// eventGeometry is the event line, or its parts when it crosses a gap
// between route parts.
func eventGeometry(ev model.Event) orb.Geometry {
	if len(ev.Gaps) == 0 {
		return ev.Line
	}
	return orb.MultiLineString(lrs.Gaps(ev.Gaps).Parts(ev.Line))
}

func maxSize(cur uint8, n int) uint8 {
	if n > 254 {
		n = 254
	}
	if uint8(n) > cur {
		return uint8(n)
	}
	return cur
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func formatOptional(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', 6, 64)
}
