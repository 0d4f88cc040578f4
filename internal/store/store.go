package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/flightscout/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// SearchRecord is one executed search as persisted in the searches table.
type SearchRecord struct {
	ID          string
	SessionID   string
	Request     schemas.SearchRequest
	ResultCount int
	TimedOut    bool
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Store keeps search history in PostgreSQL.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

const schemaDDL = `
        CREATE TABLE IF NOT EXISTS searches (
            id TEXT PRIMARY KEY,
            session_id TEXT NOT NULL,
            url TEXT NOT NULL,
            origin TEXT NOT NULL,
            destination TEXT NOT NULL,
            departure_date TEXT NOT NULL,
            return_date TEXT NOT NULL DEFAULT '',
            cabin TEXT NOT NULL DEFAULT '',
            passengers JSONB NOT NULL,
            result_count INTEGER NOT NULL,
            timed_out BOOLEAN NOT NULL,
            started_at TIMESTAMPTZ NOT NULL,
            finished_at TIMESTAMPTZ NOT NULL
        );
        CREATE TABLE IF NOT EXISTS flight_results (
            search_id TEXT NOT NULL REFERENCES searches(id) ON DELETE CASCADE,
            position INTEGER NOT NULL,
            airline TEXT NOT NULL,
            departure TEXT NOT NULL,
            arrival TEXT NOT NULL,
            duration TEXT NOT NULL,
            price TEXT NOT NULL,
            stop TEXT NOT NULL,
            PRIMARY KEY (search_id, position)
        );
    `

// EnsureSchema creates the tables if they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

const sqlInsertSearch = `
        INSERT INTO searches (id, session_id, url, origin, destination, departure_date, return_date, cabin, passengers, result_count, timed_out, started_at, finished_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13);
    `

var resultColumns = []string{"search_id", "position", "airline", "departure", "arrival", "duration", "price", "stop"}

// SaveSearch stores the search row and its results in one transaction.
func (s *Store) SaveSearch(ctx context.Context, rec SearchRecord, results []schemas.FlightResult) error {
	passengers, err := json.Marshal(rec.Request.Passengers)
	if err != nil {
		return fmt.Errorf("failed to encode passengers: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	req := rec.Request
	_, err = tx.Exec(ctx, sqlInsertSearch,
		rec.ID, rec.SessionID, req.URL, req.Origin, req.Destination,
		req.DepartureDate, req.ReturnDate, string(req.Cabin), string(passengers),
		rec.ResultCount, rec.TimedOut, rec.StartedAt.UTC(), rec.FinishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert search %s: %w", rec.ID, err)
	}

	if len(results) > 0 {
		rows := make([][]interface{}, len(results))
		for i, r := range results {
			rows[i] = []interface{}{rec.ID, i, r.Airline, r.Departure, r.Arrival, r.Duration, r.Price, r.Stop}
		}
		copied, err := tx.CopyFrom(ctx, pgx.Identifier{"flight_results"}, resultColumns, pgx.CopyFromRows(rows))
		if err != nil {
			return fmt.Errorf("failed to copy flight results: %w", err)
		}
		if int(copied) != len(results) {
			return fmt.Errorf("mismatch in copied results count: expected %d, got %d", len(results), copied)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Debug("Search persisted.", zap.String("search_id", rec.ID), zap.Int("results", len(results)))
	return nil
}

const sqlListSearches = `
        SELECT id, session_id, url, origin, destination, departure_date, return_date, cabin, passengers, result_count, timed_out, started_at, finished_at
        FROM searches
        ORDER BY started_at DESC
        LIMIT $1;
    `

// ListSearches returns the most recent searches, newest first.
func (s *Store) ListSearches(ctx context.Context, limit int) ([]SearchRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, sqlListSearches, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query searches: %w", err)
	}
	defer rows.Close()

	var out []SearchRecord
	for rows.Next() {
		var (
			rec        SearchRecord
			cabin      string
			passengers []byte
		)
		err := rows.Scan(
			&rec.ID, &rec.SessionID, &rec.Request.URL, &rec.Request.Origin, &rec.Request.Destination,
			&rec.Request.DepartureDate, &rec.Request.ReturnDate, &cabin, &passengers,
			&rec.ResultCount, &rec.TimedOut, &rec.StartedAt, &rec.FinishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan search row: %w", err)
		}
		rec.Request.Cabin = schemas.CabinClass(cabin)
		if len(passengers) > 0 {
			if err := json.Unmarshal(passengers, &rec.Request.Passengers); err != nil {
				return nil, fmt.Errorf("failed to decode passengers of search %s: %w", rec.ID, err)
			}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return out, nil
}

const sqlResultsBySearch = `
        SELECT airline, departure, arrival, duration, price, stop
        FROM flight_results
        WHERE search_id = $1
        ORDER BY position ASC;
    `

// ResultsBySearchID returns the stored results of one search in page order.
func (s *Store) ResultsBySearchID(ctx context.Context, searchID string) ([]schemas.FlightResult, error) {
	rows, err := s.pool.Query(ctx, sqlResultsBySearch, searchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query flight results: %w", err)
	}
	defer rows.Close()

	results := []schemas.FlightResult{}
	for rows.Next() {
		var r schemas.FlightResult
		if err := rows.Scan(&r.Airline, &r.Departure, &r.Arrival, &r.Duration, &r.Price, &r.Stop); err != nil {
			return nil, fmt.Errorf("failed to scan flight result row: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return results, nil
}
