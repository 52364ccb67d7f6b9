// Package sink exports materialized events to files and PostGIS.
package sink

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/lrs-events/internal/model"
)

// Sink writes one named event layer and reports where it went.
type Sink interface {
	Name() string
	Write(ctx context.Context, name string, events []model.Event) (string, error)
}

// Exporter writes the same events to every configured sink concurrently.
type Exporter struct {
	sinks []Sink
	log   *zap.Logger
}

// NewExporter returns an Exporter over sinks.
func NewExporter(sinks ...Sink) *Exporter {
	return &Exporter{
		sinks: sinks,
		log:   zap.L().With(zap.String("component", "sink")),
	}
}

// Sinks returns the configured sinks in order.
func (e *Exporter) Sinks() []Sink { return e.sinks }

// Export fans events out to every sink and returns the locations written, in
// sink order. The first failure cancels the remaining sinks.
func (e *Exporter) Export(ctx context.Context, name string, events []model.Event) ([]string, error) {
	locations := make([]string, len(e.sinks))

	g, gctx := errgroup.WithContext(ctx)
	for i, s := range e.sinks {
		i, s := i, s
		g.Go(func() error {
			loc, err := s.Write(gctx, name, events)
			if err != nil {
				return eris.Wrapf(err, "sink: export %s to %s", name, s.Name())
			}
			locations[i] = loc
			e.log.Info("events exported",
				zap.String("sink", s.Name()),
				zap.String("location", loc),
				zap.Int("events", len(events)),
			)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return locations, nil
}
