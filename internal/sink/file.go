package sink

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lrs-events/internal/dataset"
	"github.com/sells-group/lrs-events/internal/model"
)

// File formats.
const (
	FormatShapefile = "shapefile"
	FormatGeoJSON   = "geojson"
	FormatCSV       = "csv"
	FormatPostgres  = "postgres"
)

var extensions = map[string]string{
	FormatShapefile: ".shp",
	FormatGeoJSON:   ".geojson",
	FormatCSV:       ".csv",
}

// FileSink writes events to Dir as <name><ext> in one file format.
type FileSink struct {
	Dir    string
	Format string
	// CategoryField names the category attribute in formats with named
	// properties.
	CategoryField string
}

// NewFileSink validates format and returns a FileSink.
func NewFileSink(dir, format, categoryField string) (*FileSink, error) {
	if _, ok := extensions[format]; !ok {
		return nil, eris.Errorf("sink: unknown file format %q", format)
	}
	if categoryField == "" {
		categoryField = "category"
	}
	return &FileSink{Dir: dir, Format: format, CategoryField: categoryField}, nil
}

// Name implements Sink.
func (f *FileSink) Name() string { return f.Format }

// Write implements Sink.
func (f *FileSink) Write(ctx context.Context, name string, events []model.Event) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", eris.Wrap(err, "sink: write file")
	}
	if err := os.MkdirAll(f.Dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "sink: create %s", f.Dir)
	}

	path := filepath.Join(f.Dir, name+extensions[f.Format])
	var err error
	switch f.Format {
	case FormatShapefile:
		err = dataset.WriteShapefile(path, events, f.CategoryField)
	case FormatGeoJSON:
		err = dataset.WriteGeoJSON(path, events, f.CategoryField)
	case FormatCSV:
		err = dataset.WriteCSV(path, events)
	}
	if err != nil {
		return "", err
	}
	return path, nil
}
