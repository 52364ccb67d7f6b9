package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/lrs-events/internal/sink"
	"github.com/sells-group/lrs-events/internal/workflow"
)

// newExporter builds the configured sinks. Files go to export.dir, or to
// root when it is unset. The returned close func releases the database pool.
func newExporter(ctx context.Context, root, categoryField string) (workflow.Exporter, func(), error) {
	dir := cfg.Export.Dir
	if dir == "" {
		dir = root
	}

	var sinks []sink.Sink
	closeFn := func() {}
	for _, format := range cfg.Export.Formats {
		if format == sink.FormatPostgres {
			pool, err := sink.OpenPool(ctx, cfg.Postgres.DatabaseURL)
			if err != nil {
				closeFn()
				return nil, nil, err
			}
			prev := closeFn
			closeFn = func() { pool.Close(); prev() }
			sinks = append(sinks, &sink.PostgresSink{Pool: pool, Schema: cfg.Postgres.Schema, Table: cfg.Postgres.Table})
			continue
		}
		s, err := sink.NewFileSink(dir, format, categoryField)
		if err != nil {
			closeFn()
			return nil, nil, err
		}
		sinks = append(sinks, s)
	}

	if len(sinks) == 0 {
		return nil, closeFn, nil
	}
	zap.L().Debug("export sinks configured", zap.Strings("formats", cfg.Export.Formats), zap.String("dir", dir))
	return sink.NewExporter(sinks...), closeFn, nil
}
