package workspace

import (
	"context"
	"database/sql"
	"time"

	"github.com/rotisserie/eris"
)

// Run statuses.
const (
	RunStatusRunning  = "running"
	RunStatusComplete = "complete"
	RunStatusFailed   = "failed"
)

// RunRecord is one row of the runs table.
type RunRecord struct {
	ID         string     `json:"id" yaml:"id"`
	Workflow   string     `json:"workflow" yaml:"workflow"`
	Status     string     `json:"status" yaml:"status"`
	Report     string     `json:"report,omitempty" yaml:"report,omitempty"`
	StartedAt  time.Time  `json:"started_at" yaml:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
}

// StartRun inserts a running run record.
func (w *Workspace) StartRun(ctx context.Context, id, workflow string, startedAt time.Time) error {
	_, err := w.db.ExecContext(ctx,
		`INSERT INTO runs (id, workflow, status, started_at) VALUES (?, ?, ?, ?)`,
		id, workflow, RunStatusRunning, startedAt.UTC(),
	)
	return eris.Wrapf(err, "workspace: insert run %s", id)
}

// FinishRun stores the final status and serialized report of a run.
func (w *Workspace) FinishRun(ctx context.Context, id, status, report string) error {
	res, err := w.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, report = ?, finished_at = ? WHERE id = ?`,
		status, report, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "workspace: update run %s", id)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return eris.Errorf("workspace: run %s not found", id)
	}
	return nil
}

// Runs lists the runs recorded in the container, oldest first.
func (w *Workspace) Runs(ctx context.Context) ([]RunRecord, error) {
	rows, err := w.db.QueryContext(ctx,
		`SELECT id, workflow, status, report, started_at, finished_at FROM runs ORDER BY started_at, rowid`)
	if err != nil {
		return nil, eris.Wrap(err, "workspace: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var out []RunRecord
	for rows.Next() {
		var r RunRecord
		var report sql.NullString
		var finished sql.NullTime
		if err := rows.Scan(&r.ID, &r.Workflow, &r.Status, &report, &r.StartedAt, &finished); err != nil {
			return nil, eris.Wrap(err, "workspace: scan run")
		}
		r.Report = report.String
		if finished.Valid {
			t := finished.Time
			r.FinishedAt = &t
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "workspace: list runs")
}
