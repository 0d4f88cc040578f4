// File: internal/orchestrator/orchestrator.go
// Description: Runs one flight search end to end inside a browser session:
// navigate, fill the booking form, submit and read the result cards.

package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/flightscout/api/schemas"
	"github.com/xkilldash9x/flightscout/internal/config"
	"github.com/xkilldash9x/flightscout/internal/extract"
	"github.com/xkilldash9x/flightscout/internal/form"
	"github.com/xkilldash9x/flightscout/internal/interaction"
	"github.com/xkilldash9x/flightscout/internal/observability"
	"github.com/xkilldash9x/flightscout/internal/session"
)

// Outcome is everything a finished search produced.
type Outcome struct {
	SearchID   string
	SessionID  string
	Request    schemas.SearchRequest
	Results    []schemas.FlightResult
	Report     extract.Report
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration is the wall time the search took.
func (o *Outcome) Duration() time.Duration { return o.FinishedAt.Sub(o.StartedAt) }

// Orchestrator manages the lifecycle of a search.
// It is injected with fully configured components.
type Orchestrator struct {
	cfg       config.Interface
	logger    *zap.Logger
	envelope  *session.Envelope
	layer     *interaction.Layer
	fillers   *form.Factory
	extractor *extract.Extractor
}

// New creates an Orchestrator from its components.
func New(
	cfg config.Interface,
	logger *zap.Logger,
	envelope *session.Envelope,
	layer *interaction.Layer,
	fillers *form.Factory,
	extractor *extract.Extractor,
) (*Orchestrator, error) {
	if cfg == nil ||
		logger == nil ||
		envelope == nil ||
		layer == nil ||
		fillers == nil ||
		extractor == nil {
		return nil, fmt.Errorf("cannot initialize orchestrator with nil dependencies")
	}
	return &Orchestrator{
		cfg:       cfg,
		logger:    logger.Named("orchestrator"),
		envelope:  envelope,
		layer:     layer,
		fillers:   fillers,
		extractor: extractor,
	}, nil
}

// NewFromConfig builds every component from cfg around the given launcher.
// hook may be nil, in which case failures leave no evidence behind.
func NewFromConfig(cfg config.Interface, logger *zap.Logger, launcher session.Launcher, hook session.EvidenceHook) (*Orchestrator, error) {
	if cfg == nil || logger == nil || launcher == nil {
		return nil, fmt.Errorf("cannot initialize orchestrator with nil dependencies")
	}
	search := cfg.Search()
	site := cfg.Site()

	var opts []session.Option
	if ev := cfg.Evidence(); ev.Timeout > 0 {
		opts = append(opts, session.WithEvidenceTimeout(ev.Timeout))
	}
	return New(cfg, logger,
		session.NewEnvelope(launcher, hook, logger, opts...),
		interaction.NewLayer(cfg.Pacing(), logger),
		form.NewFactory(site, search, logger),
		extract.New(site.Selectors, search.ResultsTimeout, cfg.Output().Limit, logger),
	)
}

// Search validates req, then runs it in a fresh browser session bounded by
// the configured request timeout. Invalid requests never start a browser.
func (o *Orchestrator) Search(ctx context.Context, req schemas.SearchRequest) (*Outcome, error) {
	if req.URL == "" {
		req.URL = o.cfg.Site().URL
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	out := &Outcome{SearchID: uuid.NewString(), Request: req, StartedAt: time.Now()}
	logger := o.logger.With(zap.String("search_id", out.SearchID))
	logger.Info("Search starting.",
		zap.String("origin", req.Origin),
		zap.String("destination", req.Destination),
		zap.String("departure", req.DepartureDate),
		zap.String("return", req.ReturnDate),
		zap.String("trip", string(req.TripType())),
	)

	if timeout := o.cfg.Search().RequestTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	err := o.envelope.Run(ctx, func(ctx context.Context, s *session.Session) error {
		out.SessionID = s.ID()
		searchLog := observability.ForSearch(o.logger, out.SearchID, s.ID())
		act := o.layer.Bind(s.Page()).WithLogger(searchLog)

		if err := act.Navigate(ctx, req.URL); err != nil {
			return fmt.Errorf("navigating to %s: %w", req.URL, err)
		}

		filler := o.fillers.New(searchLog)
		if err := filler.DismissConsent(ctx, act); err != nil {
			return fmt.Errorf("dismissing consent banner: %w", err)
		}
		if err := filler.Fill(ctx, act, req); err != nil {
			return fmt.Errorf("filling search form at step %s: %w", filler.CurrentStep(), err)
		}

		results, report, err := o.extractor.Extract(ctx, act)
		out.Results, out.Report = results, report
		return err
	})
	out.FinishedAt = time.Now()
	if err != nil {
		logger.Error("Search failed.", zap.Error(err), zap.Duration("elapsed", out.Duration()))
		return nil, err
	}

	logger.Info("Search finished.",
		zap.Int("results", len(out.Results)),
		zap.Int("skipped", len(out.Report.Skipped)),
		zap.Bool("timed_out", out.Report.TimedOut),
		zap.Duration("elapsed", out.Duration()),
	)
	return out, nil
}
