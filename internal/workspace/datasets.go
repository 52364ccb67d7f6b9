package workspace

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lrs-events/internal/dataset"
	"github.com/sells-group/lrs-events/internal/geoerr"
	"github.com/sells-group/lrs-events/internal/model"
)

// Kind is the record type a dataset holds.
type Kind string

// Dataset kinds.
const (
	KindNodes     Kind = "nodes"
	KindRoutes    Kind = "routes"
	KindSegments  Kind = "segments"
	KindEventRows Kind = "event_rows"
	KindEvents    Kind = "events"
)

// Dataset roles.
const (
	RoleOutput       = "output"
	RoleIntermediate = "intermediate"
)

// DatasetInfo is a catalog entry.
type DatasetInfo struct {
	Name      string    `json:"name" yaml:"name"`
	Kind      Kind      `json:"kind" yaml:"kind"`
	Role      string    `json:"role" yaml:"role"`
	Count     int       `json:"count" yaml:"count"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// ValidName checks that name can be used as a dataset name.
func ValidName(name string) error {
	_, err := quoteIdent(name)
	return err
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func quoteIdent(name string) (string, error) {
	if !identRe.MatchString(name) || strings.HasPrefix(strings.ToLower(name), "sqlite_") {
		return "", geoerr.Errorf(geoerr.InvalidInput, "workspace: dataset name", "invalid dataset name %q", name)
	}
	switch name {
	case "datasets", "runs":
		return "", geoerr.Errorf(geoerr.InvalidInput, "workspace: dataset name", "dataset name %q is reserved", name)
	}
	return `"` + name + `"`, nil
}

var columns = map[Kind]string{
	KindNodes:     "fid INTEGER PRIMARY KEY, category TEXT, fault_id TEXT, geom BLOB",
	KindRoutes:    "fid INTEGER PRIMARY KEY, route_id TEXT NOT NULL, geom BLOB",
	KindSegments:  "fid INTEGER PRIMARY KEY, route_id TEXT, seq INTEGER, from_m REAL, to_m REAL, category TEXT, join_node_id INTEGER, closest_node_distance REAL, geom BLOB",
	KindEventRows: "fid INTEGER PRIMARY KEY, rid TEXT, fmeas REAL, tmeas REAL, category TEXT, closest_node_distance REAL, distance REAL, source_id INTEGER, seq INTEGER",
	KindEvents:    "fid INTEGER PRIMARY KEY, rid TEXT, fmeas REAL, tmeas REAL, category TEXT, closest_node_distance REAL, distance REAL, source_id INTEGER, seq INTEGER, loc_error TEXT, geom BLOB",
}

// write replaces dataset name with n rows produced by insert.
func (w *Workspace) write(ctx context.Context, name string, kind Kind, insertCols string, n int, row func(i int) ([]any, error)) error {
	table, err := quoteIdent(name)
	if err != nil {
		return err
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrapf(err, "workspace: begin write %s", name)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
		return eris.Wrapf(err, "workspace: drop %s", name)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", table, columns[kind])); err != nil {
		return eris.Wrapf(err, "workspace: create %s", name)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", strings.Count(insertCols, ",")+1), ", ")
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, insertCols, placeholders))
	if err != nil {
		return eris.Wrapf(err, "workspace: prepare insert %s", name)
	}
	defer stmt.Close() //nolint:errcheck

	for i := 0; i < n; i++ {
		args, err := row(i)
		if err != nil {
			return eris.Wrapf(err, "workspace: encode %s record %d", name, i)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return eris.Wrapf(err, "workspace: insert %s record %d", name, i)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO datasets (name, kind, role, count, created_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET kind = excluded.kind, role = excluded.role, count = excluded.count, created_at = excluded.created_at`,
		name, string(kind), RoleOutput, n, time.Now().UTC(),
	); err != nil {
		return eris.Wrapf(err, "workspace: catalog %s", name)
	}

	if err := tx.Commit(); err != nil {
		return eris.Wrapf(err, "workspace: commit %s", name)
	}
	w.log.Debug("dataset written", zap.String("dataset", name), zap.String("kind", string(kind)), zap.Int("count", n))
	return nil
}

// WriteNodes stores nodes as dataset name.
func (w *Workspace) WriteNodes(ctx context.Context, name string, nodes []model.Node) error {
	return w.write(ctx, name, KindNodes, "fid, category, fault_id, geom", len(nodes), func(i int) ([]any, error) {
		n := nodes[i]
		g, err := dataset.EncodePoint(n.Point, 0)
		if err != nil {
			return nil, err
		}
		return []any{n.ID, nullString(n.Category), n.FaultID, g}, nil
	})
}

// WriteRoutes stores routes with their measures as dataset name.
func (w *Workspace) WriteRoutes(ctx context.Context, name string, routes []model.Route) error {
	return w.write(ctx, name, KindRoutes, "fid, route_id, geom", len(routes), func(i int) ([]any, error) {
		r := routes[i]
		g, err := dataset.EncodeLine(r.Line, r.M, r.Gaps, 0)
		if err != nil {
			return nil, err
		}
		return []any{i + 1, r.ID, g}, nil
	})
}

// WriteSegments stores segments as dataset name.
func (w *Workspace) WriteSegments(ctx context.Context, name string, segs []model.Segment) error {
	return w.write(ctx, name, KindSegments,
		"fid, route_id, seq, from_m, to_m, category, join_node_id, closest_node_distance, geom",
		len(segs), func(i int) ([]any, error) {
			s := segs[i]
			g, err := dataset.EncodeLine(s.Line, nil, s.Gaps, 0)
			if err != nil {
				return nil, err
			}
			return []any{s.ID, s.RouteID, s.Seq, s.FromM, s.ToM, nullString(s.Category), nullInt64(s.JoinNodeID), nullFloat64(s.JoinDistance), g}, nil
		})
}

// WriteEventRows stores an event table as dataset name.
func (w *Workspace) WriteEventRows(ctx context.Context, name string, rows []model.EventRow) error {
	return w.write(ctx, name, KindEventRows,
		"fid, rid, fmeas, tmeas, category, closest_node_distance, distance, source_id, seq",
		len(rows), func(i int) ([]any, error) {
			return append([]any{i + 1}, eventRowArgs(rows[i])...), nil
		})
}

// WriteEvents stores materialized events as dataset name.
func (w *Workspace) WriteEvents(ctx context.Context, name string, events []model.Event) error {
	return w.write(ctx, name, KindEvents,
		"fid, rid, fmeas, tmeas, category, closest_node_distance, distance, source_id, seq, loc_error, geom",
		len(events), func(i int) ([]any, error) {
			ev := events[i]
			g, err := dataset.EncodeLine(ev.Line, nil, ev.Gaps, 0)
			if err != nil {
				return nil, err
			}
			args := append([]any{i + 1}, eventRowArgs(ev.EventRow)...)
			return append(args, ev.LocError, g), nil
		})
}

func eventRowArgs(r model.EventRow) []any {
	return []any{r.RouteID, r.FromM, r.ToM, nullString(r.Category), nullFloat64(r.JoinDistance), r.LocateDistance, r.SourceID, r.Seq}
}

// Datasets lists the catalog in creation order.
func (w *Workspace) Datasets(ctx context.Context) ([]DatasetInfo, error) {
	rows, err := w.db.QueryContext(ctx, `SELECT name, kind, role, count, created_at FROM datasets ORDER BY created_at, rowid`)
	if err != nil {
		return nil, eris.Wrap(err, "workspace: list datasets")
	}
	defer rows.Close() //nolint:errcheck

	var out []DatasetInfo
	for rows.Next() {
		var d DatasetInfo
		var kind string
		if err := rows.Scan(&d.Name, &kind, &d.Role, &d.Count, &d.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "workspace: scan dataset")
		}
		d.Kind = Kind(kind)
		out = append(out, d)
	}
	return out, eris.Wrap(rows.Err(), "workspace: list datasets")
}

// Exists reports whether dataset name is in the catalog.
func (w *Workspace) Exists(ctx context.Context, name string) (bool, error) {
	var n int
	err := w.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM datasets WHERE name = ?`, name).Scan(&n)
	if err != nil {
		return false, eris.Wrapf(err, "workspace: lookup %s", name)
	}
	return n > 0, nil
}

// Count returns the number of records stored in dataset name.
func (w *Workspace) Count(ctx context.Context, name string) (int, error) {
	table, err := quoteIdent(name)
	if err != nil {
		return 0, err
	}
	var n int
	if err := w.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		return 0, eris.Wrapf(err, "workspace: count %s", name)
	}
	return n, nil
}

// Drop deletes dataset name and its catalog entry. Dropping a missing
// dataset is not an error.
func (w *Workspace) Drop(ctx context.Context, name string) error {
	table, err := quoteIdent(name)
	if err != nil {
		return err
	}
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrapf(err, "workspace: begin drop %s", name)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
		return eris.Wrapf(err, "workspace: drop %s", name)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM datasets WHERE name = ?`, name); err != nil {
		return eris.Wrapf(err, "workspace: uncatalog %s", name)
	}
	return eris.Wrapf(tx.Commit(), "workspace: commit drop %s", name)
}

// DropIntermediates drops every dataset cataloged as an intermediate and
// returns their names.
func (w *Workspace) DropIntermediates(ctx context.Context) ([]string, error) {
	all, err := w.Datasets(ctx)
	if err != nil {
		return nil, err
	}
	var dropped []string
	for _, d := range all {
		if d.Role != RoleIntermediate {
			continue
		}
		if err := w.Drop(ctx, d.Name); err != nil {
			return dropped, err
		}
		dropped = append(dropped, d.Name)
	}
	return dropped, nil
}

func (w *Workspace) setRole(ctx context.Context, name, role string) error {
	res, err := w.db.ExecContext(ctx, `UPDATE datasets SET role = ? WHERE name = ?`, role, name)
	if err != nil {
		return eris.Wrapf(err, "workspace: set role of %s", name)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return eris.Errorf("workspace: dataset %s not found", name)
	}
	return nil
}

// ReadNodes loads dataset name written by WriteNodes.
func (w *Workspace) ReadNodes(ctx context.Context, name string) ([]model.Node, error) {
	var out []model.Node
	err := w.query(ctx, name, "fid, category, fault_id, geom", func(rows *sql.Rows) error {
		var n model.Node
		var cat, fault sql.NullString
		var g []byte
		if err := rows.Scan(&n.ID, &cat, &fault, &g); err != nil {
			return err
		}
		n.Category = stringPtr(cat)
		n.FaultID = fault.String
		geom, err := dataset.Decode(g)
		if err != nil {
			return err
		}
		if geom.Point != nil {
			n.Point = *geom.Point
		}
		out = append(out, n)
		return nil
	})
	return out, err
}

// ReadRoutes loads dataset name written by WriteRoutes.
func (w *Workspace) ReadRoutes(ctx context.Context, name string) ([]model.Route, error) {
	var out []model.Route
	err := w.query(ctx, name, "route_id, geom", func(rows *sql.Rows) error {
		var r model.Route
		var g []byte
		if err := rows.Scan(&r.ID, &g); err != nil {
			return err
		}
		geom, err := dataset.Decode(g)
		if err != nil {
			return err
		}
		r.Line, r.M, r.Gaps = geom.Line, geom.M, geom.Gaps
		out = append(out, r)
		return nil
	})
	return out, err
}

// ReadSegments loads dataset name written by WriteSegments.
func (w *Workspace) ReadSegments(ctx context.Context, name string) ([]model.Segment, error) {
	var out []model.Segment
	err := w.query(ctx, name, "fid, route_id, seq, from_m, to_m, category, join_node_id, closest_node_distance, geom", func(rows *sql.Rows) error {
		var s model.Segment
		var route, cat sql.NullString
		var joinID sql.NullInt64
		var joinDist sql.NullFloat64
		var g []byte
		if err := rows.Scan(&s.ID, &route, &s.Seq, &s.FromM, &s.ToM, &cat, &joinID, &joinDist, &g); err != nil {
			return err
		}
		s.RouteID = route.String
		s.Category = stringPtr(cat)
		if joinID.Valid {
			s.JoinNodeID = model.Int64Ptr(joinID.Int64)
		}
		s.JoinDistance = float64Ptr(joinDist)
		geom, err := dataset.Decode(g)
		if err != nil {
			return err
		}
		s.Line, s.Gaps = geom.Line, geom.Gaps
		out = append(out, s)
		return nil
	})
	return out, err
}

// ReadEventRows loads dataset name written by WriteEventRows.
func (w *Workspace) ReadEventRows(ctx context.Context, name string) ([]model.EventRow, error) {
	var out []model.EventRow
	err := w.query(ctx, name, "rid, fmeas, tmeas, category, closest_node_distance, distance, source_id, seq", func(rows *sql.Rows) error {
		r, err := scanEventRow(rows)
		if err != nil {
			return err
		}
		out = append(out, r)
		return nil
	})
	return out, err
}

// ReadEvents loads dataset name written by WriteEvents.
func (w *Workspace) ReadEvents(ctx context.Context, name string) ([]model.Event, error) {
	var out []model.Event
	err := w.query(ctx, name, "rid, fmeas, tmeas, category, closest_node_distance, distance, source_id, seq, loc_error, geom", func(rows *sql.Rows) error {
		var ev model.Event
		var cat, locErr sql.NullString
		var dist sql.NullFloat64
		var g []byte
		if err := rows.Scan(&ev.RouteID, &ev.FromM, &ev.ToM, &cat, &dist, &ev.LocateDistance, &ev.SourceID, &ev.Seq, &locErr, &g); err != nil {
			return err
		}
		ev.Category = stringPtr(cat)
		ev.JoinDistance = float64Ptr(dist)
		ev.LocError = locErr.String
		geom, err := dataset.Decode(g)
		if err != nil {
			return err
		}
		ev.Line, ev.Gaps = geom.Line, geom.Gaps
		out = append(out, ev)
		return nil
	})
	return out, err
}

func scanEventRow(rows *sql.Rows) (model.EventRow, error) {
	var r model.EventRow
	var cat sql.NullString
	var dist sql.NullFloat64
	if err := rows.Scan(&r.RouteID, &r.FromM, &r.ToM, &cat, &dist, &r.LocateDistance, &r.SourceID, &r.Seq); err != nil {
		return r, err
	}
	r.Category = stringPtr(cat)
	r.JoinDistance = float64Ptr(dist)
	return r, nil
}

func (w *Workspace) query(ctx context.Context, name, cols string, scan func(*sql.Rows) error) error {
	table, err := quoteIdent(name)
	if err != nil {
		return err
	}
	rows, err := w.db.QueryContext(ctx, fmt.Sprintf("SELECT %s FROM %s ORDER BY fid", cols, table))
	if err != nil {
		return eris.Wrapf(err, "workspace: read %s", name)
	}
	defer rows.Close() //nolint:errcheck

	for rows.Next() {
		if err := scan(rows); err != nil {
			return eris.Wrapf(err, "workspace: scan %s", name)
		}
	}
	return eris.Wrapf(rows.Err(), "workspace: read %s", name)
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullFloat64(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullInt64(i *int64) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *i, Valid: true}
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	return model.StringPtr(s.String)
}

func float64Ptr(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	return model.Float64Ptr(f.Float64)
}
