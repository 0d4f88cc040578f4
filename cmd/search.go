// File: cmd/search.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/flightscout/api/schemas"
	"github.com/xkilldash9x/flightscout/internal/browser/cdp"
	"github.com/xkilldash9x/flightscout/internal/config"
	"github.com/xkilldash9x/flightscout/internal/evidence"
	"github.com/xkilldash9x/flightscout/internal/observability"
	"github.com/xkilldash9x/flightscout/internal/orchestrator"
	"github.com/xkilldash9x/flightscout/internal/reporting"
	"github.com/xkilldash9x/flightscout/internal/requestfile"
	"github.com/xkilldash9x/flightscout/internal/session"
	"github.com/xkilldash9x/flightscout/internal/store"
)

const browserShutdownTimeout = 15 * time.Second

// searcher runs one search. *orchestrator.Orchestrator satisfies it.
type searcher interface {
	Search(ctx context.Context, req schemas.SearchRequest) (*orchestrator.Outcome, error)
}

// searchOptions holds the request-shaping flags of the search command.
type searchOptions struct {
	requestFile string
	url         string
	origin      string
	destination string
	depart      string
	ret         string
	passengers  []string
	cabin       string
	persist     bool
}

func newSearchCmd(provider storeProvider) *cobra.Command {
	var opts searchOptions

	searchCmd := &cobra.Command{
		Use:   "search",
		Short: "Fill the booking form and print the flights it returns",
		Example: `  flightscout search --from London --to Chicago --depart 2025-10-22 --passenger Adults=1 --cabin economy
  flightscout search --request trip.yaml -o flights.json --limit 3`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}

			req, err := buildRequest(opts)
			if err != nil {
				return err
			}

			manager := cdp.NewManager(cfg.Browser(), logger)
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(session.Detach(ctx), browserShutdownTimeout)
				defer cancel()
				if err := manager.Shutdown(shutdownCtx); err != nil {
					logger.Warn("Browser did not shut down cleanly.", zap.Error(err))
				}
			}()

			var hook session.EvidenceHook
			if cfg.Evidence().Enabled {
				capturer, err := evidence.NewFileCapturer(cfg.Evidence(), logger)
				if err != nil {
					return fmt.Errorf("failed to initialize evidence capture: %w", err)
				}
				hook = capturer
			}

			orch, err := orchestrator.NewFromConfig(cfg, logger, manager.Launcher(), hook)
			if err != nil {
				return fmt.Errorf("failed to initialize search components: %w", err)
			}

			return runSearch(ctx, logger, cfg, req, orch, provider, opts.persist, cmd.OutOrStdout())
		},
	}

	f := searchCmd.Flags()
	f.StringVar(&opts.requestFile, "request", "", "YAML file holding the search request; other flags override its fields.")
	f.StringVar(&opts.url, "url", "", "Booking page URL. (Overrides site.url)")
	f.StringVar(&opts.origin, "from", "", "Origin city or airport.")
	f.StringVar(&opts.destination, "to", "", "Destination city or airport.")
	f.StringVar(&opts.depart, "depart", "", "Departure date (YYYY-MM-DD).")
	f.StringVar(&opts.ret, "return", "", "Return date (YYYY-MM-DD); makes the search a round trip.")
	f.StringArrayVar(&opts.passengers, "passenger", nil, "Passenger count as Category=N, e.g. Adults=2. Repeatable.")
	f.StringVar(&opts.cabin, "cabin", "", "Cabin class: economy, business or first.")
	f.BoolVar(&opts.persist, "persist", false, "Store the search and its results in PostgreSQL.")

	// Config overrides, bound in the root command.
	f.StringP("output", "o", "", "Output file for the results. Defaults to stdout.")
	f.StringP("format", "f", reporting.FormatJSON, "Output format: json or jsonl.")
	f.IntP("limit", "l", 0, "Maximum number of results to write; 0 writes all.")
	f.Duration("timeout", 3*time.Minute, "Overall time budget for the search.")
	f.Bool("headless", false, "Run Chrome without a window.")
	f.Bool("evidence", true, "Capture a screenshot and page HTML when the search fails.")
	f.String("evidence-dir", "", "Directory for failure evidence bundles.")
	f.String("database-url", "", "PostgreSQL connection string used with --persist.")

	return searchCmd
}

// buildRequest assembles the request from an optional request file and the
// flags, flags taking precedence.
func buildRequest(opts searchOptions) (schemas.SearchRequest, error) {
	var req schemas.SearchRequest
	if opts.requestFile != "" {
		loaded, err := requestfile.Load(opts.requestFile)
		if err != nil {
			return req, err
		}
		req = loaded
	}

	overrides := []struct {
		value string
		dst   *string
	}{
		{opts.url, &req.URL},
		{opts.origin, &req.Origin},
		{opts.destination, &req.Destination},
		{opts.depart, &req.DepartureDate},
		{opts.ret, &req.ReturnDate},
	}
	for _, o := range overrides {
		if v := strings.TrimSpace(o.value); v != "" {
			*o.dst = v
		}
	}

	if len(opts.passengers) > 0 {
		passengers, err := parsePassengers(opts.passengers)
		if err != nil {
			return req, err
		}
		req.Passengers = passengers
	}

	if opts.cabin != "" {
		// Unknown classes pass through; the form filler warns and keeps its default.
		req.Cabin, _ = schemas.ParseCabinClass(opts.cabin)
	}
	return req, nil
}

// parsePassengers parses repeated Category=N values. The label may itself
// contain '=' since only the last one separates the count.
func parsePassengers(values []string) ([]schemas.Passenger, error) {
	out := make([]schemas.Passenger, 0, len(values))
	for _, v := range values {
		idx := strings.LastIndex(v, "=")
		if idx <= 0 {
			return nil, fmt.Errorf("invalid --passenger %q: expected Category=N", v)
		}
		label := strings.TrimSpace(v[:idx])
		if label == "" {
			return nil, fmt.Errorf("invalid --passenger %q: empty category", v)
		}
		count, err := strconv.Atoi(strings.TrimSpace(v[idx+1:]))
		if err != nil {
			return nil, fmt.Errorf("invalid --passenger %q: count is not a number", v)
		}
		if count < 0 {
			return nil, fmt.Errorf("invalid --passenger %q: count must not be negative", v)
		}
		out = append(out, schemas.Passenger{Category: label, Count: count})
	}
	return out, nil
}

// runSearch executes the search, writes the results and optionally persists them.
func runSearch(
	ctx context.Context,
	logger *zap.Logger,
	cfg config.Interface,
	req schemas.SearchRequest,
	runner searcher,
	provider storeProvider,
	persist bool,
	stdout io.Writer,
) error {
	outcome, err := runner.Search(ctx, req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("search failed: %w", err)
	}

	outCfg := cfg.Output()
	reporter, err := reporting.NewWithStdout(outCfg.Format, outCfg.Path, outCfg.Limit, stdout)
	if err != nil {
		return fmt.Errorf("failed to initialize reporter: %w", err)
	}
	if err := reporter.Write(outcome.Results); err != nil {
		reporter.Close()
		return fmt.Errorf("failed to write results: %w", err)
	}
	if err := reporter.Close(); err != nil {
		return fmt.Errorf("failed to write results: %w", err)
	}
	if !reporting.IsStdout(outCfg.Path) {
		logger.Info("Results written.", zap.String("path", outCfg.Path), zap.Int("count", len(outcome.Results)))
	}

	if !persist {
		return nil
	}
	s, cleanup, err := provider.Create(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	if cleanup != nil {
		defer cleanup()
	}
	rec := store.SearchRecord{
		ID:          outcome.SearchID,
		SessionID:   outcome.SessionID,
		Request:     outcome.Request,
		ResultCount: len(outcome.Results),
		TimedOut:    outcome.Report.TimedOut,
		StartedAt:   outcome.StartedAt,
		FinishedAt:  outcome.FinishedAt,
	}
	if err := s.SaveSearch(ctx, rec, outcome.Results); err != nil {
		return fmt.Errorf("failed to persist search %s: %w", outcome.SearchID, err)
	}
	logger.Info("Search persisted.", zap.String("search_id", outcome.SearchID))
	return nil
}
