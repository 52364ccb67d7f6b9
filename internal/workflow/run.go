package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/sells-group/lrs-events/internal/geoerr"
	"github.com/sells-group/lrs-events/internal/model"
	"github.com/sells-group/lrs-events/internal/workspace"
)

// Exporter publishes output events outside the scratch container. It
// returns a description of every target written.
type Exporter interface {
	Export(ctx context.Context, name string, events []model.Event) ([]string, error)
}

var validate = validator.New()

// validateParams checks struct tags on run parameters.
func validateParams(op string, params any) error {
	if err := validate.Struct(params); err != nil {
		return geoerr.New(geoerr.InvalidInput, op, err)
	}
	return nil
}

// run carries the state shared by every step of one workflow execution.
type run struct {
	ws     *workspace.Workspace
	log    *zap.Logger
	report *RunReport
}

func startRun(ctx context.Context, ws *workspace.Workspace, log *zap.Logger, workflow, output string, tol model.Tolerance, now time.Time) (*run, error) {
	r := &run{
		ws:  ws,
		log: log,
		report: &RunReport{
			RunID:     uuid.NewString(),
			Workflow:  workflow,
			Container: ws.Path(),
			Output:    output,
			Tolerance: tol.String(),
			StartedAt: now.UTC(),
		},
	}
	r.log = r.log.With(zap.String("run_id", r.report.RunID))
	if err := ws.StartRun(ctx, r.report.RunID, workflow, now); err != nil {
		return nil, err
	}
	return r, nil
}

// step times fn and records its result count.
func (r *run) step(name, dataset string, fn func() (int, error)) error {
	start := time.Now()
	n, err := fn()
	res := StepResult{
		Name:       name,
		Dataset:    dataset,
		Count:      n,
		DurationMs: time.Since(start).Milliseconds(),
	}
	r.report.Steps = append(r.report.Steps, res)

	if err != nil {
		r.log.Error("step failed", zap.String("step", name), zap.Int64("duration_ms", res.DurationMs), zap.Error(err))
		return err
	}
	r.log.Info("step complete",
		zap.String("step", name),
		zap.String("dataset", dataset),
		zap.Int("count", n),
		zap.Int64("duration_ms", res.DurationMs),
	)
	return nil
}

// intermediate writes a scratch dataset and tracks it for cleanup.
func (r *run) intermediate(ctx context.Context, name string, write func() error) error {
	if err := write(); err != nil {
		return err
	}
	return r.ws.TrackDataset(ctx, name)
}

// export hands the output to the configured exporter, if any.
func (r *run) export(ctx context.Context, exp Exporter, name string, events []model.Event) error {
	if exp == nil {
		return nil
	}
	return r.step("export", name, func() (int, error) {
		targets, err := exp.Export(ctx, name, events)
		r.report.Exports = targets
		return len(targets), err
	})
}

// fail marks the run failed. Scratch datasets are left in place.
func (r *run) fail(ctx context.Context, err error) error {
	r.report.FinishedAt = time.Now().UTC()
	if data, yerr := r.report.YAML(); yerr == nil {
		if ferr := r.ws.FinishRun(ctx, r.report.RunID, workspace.RunStatusFailed, string(data)); ferr != nil {
			r.log.Warn("could not record failed run", zap.Error(ferr))
		}
	}
	return err
}

// complete runs the optional cleanup and records the report. A cleanup
// failure is returned but is never fatal.
func (r *run) complete(ctx context.Context, cleanup bool, reportPath string) error {
	var cleanupErr error
	if cleanup {
		r.log.Info("cleaning up temporary content")
		cleanupErr = r.ws.Cleanup(ctx)
		if cleanupErr != nil {
			r.log.Warn("temporary content not fully removed", zap.Error(cleanupErr))
			var ge *geoerr.Error
			if errors.As(cleanupErr, &ge) {
				for _, e := range multierr.Errors(ge.Err) {
					r.report.CleanupErrors = append(r.report.CleanupErrors, e.Error())
				}
			}
		}
		r.report.CleanedUp = cleanupErr == nil
	}

	r.report.FinishedAt = time.Now().UTC()
	data, err := r.report.YAML()
	if err != nil {
		return err
	}
	if err := r.ws.FinishRun(ctx, r.report.RunID, workspace.RunStatusComplete, string(data)); err != nil {
		return err
	}
	if reportPath != "" {
		if err := r.report.WriteFile(reportPath); err != nil {
			return err
		}
	}
	return cleanupErr
}
