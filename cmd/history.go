// File: cmd/history.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/flightscout/api/schemas"
	"github.com/xkilldash9x/flightscout/internal/config"
	"github.com/xkilldash9x/flightscout/internal/observability"
	"github.com/xkilldash9x/flightscout/internal/reporting"
	"github.com/xkilldash9x/flightscout/internal/store"
)

// searchStore is the part of *store.Store the commands use.
type searchStore interface {
	EnsureSchema(ctx context.Context) error
	SaveSearch(ctx context.Context, rec store.SearchRecord, results []schemas.FlightResult) error
	ListSearches(ctx context.Context, limit int) ([]store.SearchRecord, error)
	ResultsBySearchID(ctx context.Context, searchID string) ([]schemas.FlightResult, error)
}

// storeProvider creates a searchStore so tests can inject a fake instead of
// a live database connection.
type storeProvider interface {
	// Create returns the store and a cleanup func releasing its resources.
	Create(ctx context.Context, cfg config.Interface) (searchStore, func(), error)
}

type defaultStoreProvider struct{}

// NewStoreProvider returns the PostgreSQL-backed provider.
func NewStoreProvider() storeProvider {
	return &defaultStoreProvider{}
}

// Create connects to PostgreSQL and makes sure the schema exists.
func (p *defaultStoreProvider) Create(ctx context.Context, cfg config.Interface) (searchStore, func(), error) {
	logger := observability.GetLogger()
	if cfg.Database().URL == "" {
		return nil, nil, fmt.Errorf("database URL is not configured (FLIGHTSCOUT_DATABASE_URL)")
	}

	pool, err := pgxpool.New(ctx, cfg.Database().URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s, err := store.New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}

	cleanup := func() {
		pool.Close()
		logger.Debug("Database connection pool closed.")
	}
	return s, cleanup, nil
}

func newHistoryCmd(provider storeProvider) *cobra.Command {
	var (
		limit    int
		searchID string
	)

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List persisted searches, or print the results of one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			return runHistory(ctx, observability.GetLogger(), cfg, provider, searchID, limit, cmd.OutOrStdout())
		},
	}

	historyCmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of searches to list.")
	historyCmd.Flags().StringVar(&searchID, "search-id", "", "Print the stored results of this search as JSON.")
	historyCmd.Flags().String("database-url", "", "PostgreSQL connection string. (Overrides config/env)")
	return historyCmd
}

// runHistory prints either the recent searches as a table or one search's
// results as a JSON report.
func runHistory(
	ctx context.Context,
	logger *zap.Logger,
	cfg config.Interface,
	provider storeProvider,
	searchID string,
	limit int,
	out io.Writer,
) error {
	s, cleanup, err := provider.Create(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	if cleanup != nil {
		defer cleanup()
	}

	if searchID != "" {
		results, err := s.ResultsBySearchID(ctx, searchID)
		if err != nil {
			return err
		}
		logger.Debug("Loaded stored results.", zap.String("search_id", searchID), zap.Int("count", len(results)))

		reporter, err := reporting.NewWithStdout(reporting.FormatJSON, "", 0, out)
		if err != nil {
			return err
		}
		if err := reporter.Write(results); err != nil {
			reporter.Close()
			return err
		}
		return reporter.Close()
	}

	records, err := s.ListSearches(ctx, limit)
	if err != nil {
		return err
	}
	return printSearches(out, records)
}

func printSearches(out io.Writer, records []store.SearchRecord) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(out, "No searches recorded.")
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.AppendHeader(table.Row{"Search ID", "Started", "Route", "Depart", "Return", "Cabin", "Results"})
	for _, r := range records {
		results := fmt.Sprintf("%d", r.ResultCount)
		if r.TimedOut {
			results += " (timed out)"
		}
		ret := r.Request.ReturnDate
		if ret == "" {
			ret = "-"
		}
		t.AppendRow(table.Row{
			r.ID,
			r.StartedAt.Local().Format(time.DateTime),
			r.Request.Origin + " → " + r.Request.Destination,
			r.Request.DepartureDate, ret, string(r.Request.Cabin), results,
		})
	}
	t.SetStyle(table.StyleRounded)
	t.Render()
	return nil
}
