package sink

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lrs-events/internal/dataset"
)

func TestPostgresSink_Write(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS").WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectExec("TRUNCATE").WillReturnResult(pgxmock.NewResult("TRUNCATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"lrs", "out_longcracking_events"}, eventColumns).WillReturnResult(3)

	s := &PostgresSink{Pool: mock, Schema: "lrs"}
	loc, err := s.Write(context.Background(), "out_LongCracking_events", testEvents())
	require.NoError(t, err)
	assert.Equal(t, "lrs.out_longcracking_events", loc)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSink_TableOverride(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS").WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectExec("TRUNCATE").WillReturnResult(pgxmock.NewResult("TRUNCATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"condition_events"}, eventColumns).WillReturnResult(3)

	s := &PostgresSink{Pool: mock, Table: "condition_events"}
	loc, err := s.Write(context.Background(), "out_x", testEvents())
	require.NoError(t, err)
	assert.Equal(t, "condition_events", loc)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSink_NoEventsSkipsCopy(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS").WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectExec("TRUNCATE").WillReturnResult(pgxmock.NewResult("TRUNCATE", 0))

	_, err = (&PostgresSink{Pool: mock, Schema: "public"}).Write(context.Background(), "out", nil)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSink_CreateError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS").WillReturnError(errors.New("permission denied"))

	_, err = (&PostgresSink{Pool: mock, Schema: "public"}).Write(context.Background(), "out", testEvents())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sink: create table public.out")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSink_CopyError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS").WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectExec("TRUNCATE").WillReturnResult(pgxmock.NewResult("TRUNCATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"public", "out"}, eventColumns).WillReturnError(errors.New("copy failed"))

	_, err = (&PostgresSink{Pool: mock, Schema: "public"}).Write(context.Background(), "out", testEvents())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO public.out")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSink_ShortCopy(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS").WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectExec("TRUNCATE").WillReturnResult(pgxmock.NewResult("TRUNCATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"public", "out"}, eventColumns).WillReturnResult(1)

	_, err = (&PostgresSink{Pool: mock, Schema: "public"}).Write(context.Background(), "out", testEvents())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wrote 1 of 3 rows")
}

func TestPostgresSink_Rows(t *testing.T) {
	rows, err := (&PostgresSink{SRID: 26918}).rows(testEvents())
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Len(t, rows[0], len(eventColumns))

	geom, ok := rows[1][9].([]byte)
	require.True(t, ok)
	g, err := dataset.Decode(geom)
	require.NoError(t, err)
	assert.Len(t, g.Line, 2)

	// Unlocated events carry a null geometry and their location error.
	assert.Nil(t, rows[2][9])
	require.NotNil(t, rows[2][8])
	assert.Equal(t, "ROUTE NOT FOUND", *rows[2][8].(*string))
}

func TestOpenPool_NoURL(t *testing.T) {
	_, err := OpenPool(context.Background(), "")
	assert.Error(t, err)
}
