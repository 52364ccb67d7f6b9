package sink

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/lrs-events/internal/dataset"
	"github.com/sells-group/lrs-events/internal/model"
)

// Pool is the subset of pgxpool.Pool the PostGIS sink uses.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// eventColumns is the column order of the PostGIS event table.
var eventColumns = []string{
	"rid", "fmeas", "tmeas", "category", "closest_node_distance",
	"distance", "source_id", "seq", "loc_error", "geom",
}

const createEventTable = `CREATE TABLE IF NOT EXISTS %s (
	rid                   TEXT NOT NULL,
	fmeas                 DOUBLE PRECISION NOT NULL,
	tmeas                 DOUBLE PRECISION NOT NULL,
	category              TEXT,
	closest_node_distance DOUBLE PRECISION,
	distance              DOUBLE PRECISION NOT NULL,
	source_id             BIGINT NOT NULL,
	seq                   INTEGER NOT NULL,
	loc_error             TEXT,
	geom                  geometry(Geometry, %d)
)`

// PostgresSink replaces the contents of a PostGIS table with the events,
// creating the table if it is missing.
type PostgresSink struct {
	Pool   Pool
	Schema string
	// Table overrides the table name; the layer name is used when empty.
	Table string
	SRID  int
}

// Name implements Sink.
func (p *PostgresSink) Name() string { return FormatPostgres }

func (p *PostgresSink) identifier(name string) pgx.Identifier {
	table := p.Table
	if table == "" {
		table = name
	}
	table = strings.ToLower(table)
	if p.Schema == "" {
		return pgx.Identifier{table}
	}
	return pgx.Identifier{p.Schema, table}
}

// Write implements Sink.
func (p *PostgresSink) Write(ctx context.Context, name string, events []model.Event) (string, error) {
	ident := p.identifier(name)
	table := strings.Join(ident, ".")

	if _, err := p.Pool.Exec(ctx, fmt.Sprintf(createEventTable, ident.Sanitize(), p.SRID)); err != nil {
		return "", eris.Wrapf(err, "sink: create table %s", table)
	}
	if _, err := p.Pool.Exec(ctx, "TRUNCATE "+ident.Sanitize()); err != nil {
		return "", eris.Wrapf(err, "sink: truncate %s", table)
	}

	rows, err := p.rows(events)
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return table, nil
	}

	n, err := p.Pool.CopyFrom(ctx, ident, eventColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return "", eris.Wrapf(err, "sink: COPY INTO %s", table)
	}
	if n != int64(len(rows)) {
		return "", eris.Errorf("sink: COPY INTO %s: wrote %d of %d rows", table, n, len(rows))
	}
	return table, nil
}

func (p *PostgresSink) rows(events []model.Event) ([][]any, error) {
	rows := make([][]any, len(events))
	for i, ev := range events {
		geom, err := dataset.EncodeLine(ev.Line, nil, ev.Gaps, p.SRID)
		if err != nil {
			return nil, err
		}
		var locErr *string
		if ev.LocError != "" {
			locErr = model.StringPtr(ev.LocError)
		}
		rows[i] = []any{
			ev.RouteID, ev.FromM, ev.ToM, ev.Category, ev.JoinDistance,
			ev.LocateDistance, ev.SourceID, int32(ev.Seq), locErr, geom,
		}
	}
	return rows, nil
}

// OpenPool connects to databaseURL and checks the connection.
func OpenPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	if databaseURL == "" {
		return nil, eris.New("sink: no postgres.database_url configured")
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "sink: create connection pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "sink: ping database")
	}
	return pool, nil
}
