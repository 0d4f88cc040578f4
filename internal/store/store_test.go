package store

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/flightscout/api/schemas"
)

// flexibleSQLMatcher creates a regex that is insensitive to whitespace for more robust SQL mock testing.
func flexibleSQLMatcher(sql string) string {
	trimmed := strings.TrimSpace(sql)
	return regexp.MustCompile(`\s+`).ReplaceAllString(regexp.QuoteMeta(trimmed), `\s+`)
}

func newMockStore(t *testing.T, logger *zap.Logger) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)

	mockPool.ExpectPing().WillReturnError(nil)
	s, err := New(context.Background(), mockPool, logger)
	require.NoError(t, err)
	return s, mockPool
}

func sampleRecord() SearchRecord {
	loc := time.FixedZone("BST", 3600)
	return SearchRecord{
		ID:        uuid.NewString(),
		SessionID: uuid.NewString(),
		Request: schemas.SearchRequest{
			URL:           "https://www.united.com/en/gb",
			Origin:        "London",
			Destination:   "Chicago",
			DepartureDate: "2025-10-22",
			Passengers:    []schemas.Passenger{{Category: "Adults", Count: 2}},
			Cabin:         schemas.CabinBusiness,
		},
		ResultCount: 2,
		StartedAt:   time.Date(2025, 10, 1, 9, 0, 0, 0, loc),
		FinishedAt:  time.Date(2025, 10, 1, 9, 1, 30, 0, loc),
	}
}

var sampleResults = []schemas.FlightResult{
	{Airline: "United", Departure: "9:05 AM", Arrival: "11:55 AM", Duration: "8h 50m", Price: "£612", Stop: "Nonstop"},
	{Airline: "Air Canada", Departure: "4:00 PM", Arrival: "9:20 PM", Duration: "11h 20m", Price: "£498", Stop: "1 stop"},
}

// -- Test Cases --

func TestNewStore(t *testing.T) {
	t.Run("should return error if ping fails", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		pingErr := errors.New("database unavailable")
		mockPool.ExpectPing().WillReturnError(pingErr)

		_, err = New(context.Background(), mockPool, zap.NewNop())
		require.Error(t, err)
		assert.ErrorIs(t, err, pingErr, "Error from ping should be propagated")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestEnsureSchema(t *testing.T) {
	s, mockPool := newMockStore(t, zap.NewNop())
	mockPool.ExpectExec(flexibleSQLMatcher(schemaDDL)).WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.EnsureSchema(context.Background()))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestSaveSearch(t *testing.T) {
	ctx := context.Background()

	t.Run("should insert the search and copy its results in one transaction", func(t *testing.T) {
		core, logs := observer.New(zapcore.ErrorLevel)
		s, mockPool := newMockStore(t, zap.New(core))
		rec := sampleRecord()

		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlInsertSearch)).
			WithArgs(
				rec.ID, rec.SessionID, rec.Request.URL, "London", "Chicago",
				"2025-10-22", "", "business", `[{"category":"Adults","count":2}]`,
				2, false, rec.StartedAt.UTC(), rec.FinishedAt.UTC(),
			).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectCopyFrom(pgx.Identifier{"flight_results"}, resultColumns).
			WillReturnResult(2)
		mockPool.ExpectCommit()
		mockPool.ExpectRollback().WillReturnError(pgx.ErrTxClosed)

		require.NoError(t, s.SaveSearch(ctx, rec, sampleResults))
		assert.NoError(t, mockPool.ExpectationsWereMet())
		assert.Empty(t, logs.All(), "Expected no errors logged on successful commit")
	})

	t.Run("should skip the copy when there are no results", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		rec := sampleRecord()
		rec.ResultCount = 0
		rec.TimedOut = true

		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlInsertSearch)).
			WithArgs(
				rec.ID, rec.SessionID, rec.Request.URL, "London", "Chicago",
				"2025-10-22", "", "business", `[{"category":"Adults","count":2}]`,
				0, true, rec.StartedAt.UTC(), rec.FinishedAt.UTC(),
			).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectCommit()
		mockPool.ExpectRollback().WillReturnError(pgx.ErrTxClosed)

		require.NoError(t, s.SaveSearch(ctx, rec, nil))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should roll back when the copy fails", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		rec := sampleRecord()
		copyErr := errors.New("disk full")

		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlInsertSearch)).
			WithArgs(
				rec.ID, rec.SessionID, rec.Request.URL, "London", "Chicago",
				"2025-10-22", "", "business", `[{"category":"Adults","count":2}]`,
				2, false, rec.StartedAt.UTC(), rec.FinishedAt.UTC(),
			).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectCopyFrom(pgx.Identifier{"flight_results"}, resultColumns).
			WillReturnError(copyErr)
		mockPool.ExpectRollback()

		err := s.SaveSearch(ctx, rec, sampleResults)
		require.Error(t, err)
		assert.ErrorIs(t, err, copyErr)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should report a short copy", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		rec := sampleRecord()

		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlInsertSearch)).
			WithArgs(
				rec.ID, rec.SessionID, rec.Request.URL, "London", "Chicago",
				"2025-10-22", "", "business", `[{"category":"Adults","count":2}]`,
				2, false, rec.StartedAt.UTC(), rec.FinishedAt.UTC(),
			).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectCopyFrom(pgx.Identifier{"flight_results"}, resultColumns).
			WillReturnResult(1)
		mockPool.ExpectRollback()

		err := s.SaveSearch(ctx, rec, sampleResults)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "mismatch in copied results count")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should fail when the transaction cannot begin", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		beginErr := errors.New("too many connections")
		mockPool.ExpectBegin().WillReturnError(beginErr)

		err := s.SaveSearch(ctx, sampleRecord(), sampleResults)
		assert.ErrorIs(t, err, beginErr)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestListSearches(t *testing.T) {
	s, mockPool := newMockStore(t, zap.NewNop())
	rec := sampleRecord()
	started := rec.StartedAt.UTC()
	finished := rec.FinishedAt.UTC()

	columns := []string{"id", "session_id", "url", "origin", "destination", "departure_date", "return_date", "cabin", "passengers", "result_count", "timed_out", "started_at", "finished_at"}
	rows := pgxmock.NewRows(columns).
		AddRow(rec.ID, rec.SessionID, rec.Request.URL, "London", "Chicago", "2025-10-22", "", "business", []byte(`[{"category":"Adults","count":2}]`), 2, false, started, finished)
	mockPool.ExpectQuery(flexibleSQLMatcher(sqlListSearches)).WithArgs(20).WillReturnRows(rows)

	got, err := s.ListSearches(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, rec.ID, got[0].ID)
	assert.Equal(t, schemas.CabinBusiness, got[0].Request.Cabin)
	assert.Equal(t, []schemas.Passenger{{Category: "Adults", Count: 2}}, got[0].Request.Passengers)
	assert.True(t, got[0].StartedAt.Equal(rec.StartedAt))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestResultsBySearchID(t *testing.T) {
	ctx := context.Background()

	t.Run("should return results in position order", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		id := uuid.NewString()

		rows := pgxmock.NewRows([]string{"airline", "departure", "arrival", "duration", "price", "stop"})
		for _, r := range sampleResults {
			rows.AddRow(r.Airline, r.Departure, r.Arrival, r.Duration, r.Price, r.Stop)
		}
		mockPool.ExpectQuery(flexibleSQLMatcher(sqlResultsBySearch)).WithArgs(id).WillReturnRows(rows)

		got, err := s.ResultsBySearchID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, sampleResults, got)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should return an empty list for an unknown search", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		mockPool.ExpectQuery(flexibleSQLMatcher(sqlResultsBySearch)).
			WithArgs("missing").
			WillReturnRows(pgxmock.NewRows([]string{"airline", "departure", "arrival", "duration", "price", "stop"}))

		got, err := s.ResultsBySearchID(ctx, "missing")
		require.NoError(t, err)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})

	t.Run("should propagate query errors", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		queryErr := errors.New("relation does not exist")
		mockPool.ExpectQuery(flexibleSQLMatcher(sqlResultsBySearch)).WithArgs("x").WillReturnError(queryErr)

		_, err := s.ResultsBySearchID(ctx, "x")
		assert.ErrorIs(t, err, queryErr)
	})
}
