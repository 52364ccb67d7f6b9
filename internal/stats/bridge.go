// Package stats bridges feature attribute tables to an external statistics
// engine for correlation analysis.
package stats

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lrs-events/internal/dataset"
	"github.com/sells-group/lrs-events/internal/geoerr"
)

var validate = validator.New()

// Request names the input features, the numeric fields to correlate and the
// output table (.xlsx or .csv).
type Request struct {
	InputPath  string   `validate:"required"`
	Fields     []string `validate:"required,min=1,dive,required"`
	OutputPath string   `validate:"required"`
}

// Result summarises a finished correlation.
type Result struct {
	Dataset string
	Output  string
	Log     []string
	Listing []string
	Rows    int
}

// Bridge stages data for the engine, submits the correlation program and
// converts its output table.
type Bridge struct {
	runner  Runner
	workDir string
	keep    bool
	now     func() time.Time
	log     *zap.Logger
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithClock sets the clock used for staging names.
func WithClock(now func() time.Time) Option {
	return func(b *Bridge) { b.now = now }
}

// KeepStaging leaves the staged CSV, program and engine output in the work
// directory.
func KeepStaging() Option {
	return func(b *Bridge) { b.keep = true }
}

// NewBridge returns a Bridge that stages files in workDir (the system temp
// directory when empty).
func NewBridge(runner Runner, workDir string, opts ...Option) *Bridge {
	if workDir == "" {
		workDir = os.TempDir()
	}
	b := &Bridge{
		runner:  runner,
		workDir: workDir,
		now:     time.Now,
		log:     zap.L().With(zap.String("component", "stats")),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Correlate runs the correlation procedure over req.Fields of req.InputPath
// and writes the statistics table to req.OutputPath.
func (b *Bridge) Correlate(ctx context.Context, req Request) (*Result, error) {
	const op = "stats: correlate"
	if err := validate.Struct(req); err != nil {
		return nil, geoerr.New(geoerr.InvalidInput, op, err)
	}

	vars := make([]string, len(req.Fields))
	for i, f := range req.Fields {
		vars[i] = strings.ToUpper(strings.TrimSpace(f))
	}

	table, err := dataset.ReadTable(req.InputPath, vars)
	if err != nil {
		return nil, err
	}
	if err := checkNumeric(op, table); err != nil {
		return nil, err
	}

	name := "temp_" + b.now().Format("20060102_150405")
	dataPath := filepath.Join(b.workDir, name+".csv")
	outPath := filepath.Join(b.workDir, "out_"+name+".csv")
	job := Job{
		Dir:         b.workDir,
		ProgramPath: filepath.Join(b.workDir, name+".sas"),
		LogPath:     filepath.Join(b.workDir, name+".log"),
		ListingPath: filepath.Join(b.workDir, name+".lst"),
	}
	if !b.keep {
		defer b.removeStaging(dataPath, outPath, job.ProgramPath, job.LogPath, job.ListingPath)
	}

	if err := WriteCSV(dataPath, &Table{Header: vars, Rows: table.Rows}); err != nil {
		return nil, err
	}
	if err := os.WriteFile(job.ProgramPath, []byte(Program(dataPath, outPath, name, vars)), 0o644); err != nil {
		return nil, eris.Wrapf(err, "stats: write program %s", job.ProgramPath)
	}

	b.log.Info("submitting correlation",
		zap.String("dataset", name),
		zap.Strings("vars", vars),
		zap.Int("records", len(table.Rows)),
	)
	out, runErr := b.runner.Run(ctx, job)

	res := &Result{Dataset: name, Output: req.OutputPath}
	if out != nil {
		res.Log = b.relay("LOG", out.Log)
		res.Listing = b.relay("LST", out.Listing)
	}
	if runErr != nil {
		return res, geoerr.New(geoerr.EngineCallFailed, op, runErr)
	}

	stats, err := ReadCSV(outPath)
	if err != nil {
		return res, geoerr.New(geoerr.EngineCallFailed, op, err)
	}
	if err := WriteTable(req.OutputPath, stats); err != nil {
		return res, err
	}
	res.Rows = len(stats.Rows)
	b.log.Info("correlation table written", zap.String("output", req.OutputPath), zap.Int("rows", res.Rows))
	return res, nil
}

// relay logs every line of the engine's text output and returns the lines.
func (b *Bridge) relay(stream, text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	for _, line := range lines {
		b.log.Info(line, zap.String("stream", stream))
	}
	return lines
}

func (b *Bridge) removeStaging(paths ...string) {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			b.log.Warn("remove staging file", zap.String("path", p), zap.Error(err))
		}
	}
}

// checkNumeric rejects columns holding values that are not numbers. Empty
// values are missing observations.
func checkNumeric(op string, t *dataset.Table) error {
	for _, row := range t.Rows {
		for i, v := range row {
			v = strings.TrimSpace(v)
			if v == "" {
				continue
			}
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				return geoerr.Errorf(geoerr.InvalidField, op, "field %s is not numeric (value %q)", t.Columns[i], v)
			}
		}
	}
	return nil
}
