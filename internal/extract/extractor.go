// Package extract reads flight result cards from the results page.
package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/flightscout/api/schemas"
	"github.com/xkilldash9x/flightscout/internal/browser"
	"github.com/xkilldash9x/flightscout/internal/config"
	"github.com/xkilldash9x/flightscout/internal/interaction"
)

// Report summarizes one extraction pass.
type Report struct {
	TimedOut  bool
	Found     int
	Extracted int
	Skipped   []*schemas.PartialCardError
}

// Extractor turns result cards into FlightResults.
type Extractor struct {
	sel     config.Selectors
	timeout time.Duration
	limit   int
	logger  *zap.Logger
}

// New builds an Extractor that waits up to timeout for the first card.
// A positive limit keeps only the first limit results.
func New(sel config.Selectors, timeout time.Duration, limit int, logger *zap.Logger) *Extractor {
	return &Extractor{sel: sel, timeout: timeout, limit: limit, logger: logger.Named("extract")}
}

type field struct {
	name     string
	selector string
	set      func(*schemas.FlightResult, string)
}

func (e *Extractor) fields() []field {
	return []field{
		{"airline", e.sel.ResultAirline, func(f *schemas.FlightResult, v string) { f.Airline = v }},
		{"departure", e.sel.ResultDeparture, func(f *schemas.FlightResult, v string) { f.Departure = v }},
		{"arrival", e.sel.ResultArrival, func(f *schemas.FlightResult, v string) { f.Arrival = v }},
		{"duration", e.sel.ResultDuration, func(f *schemas.FlightResult, v string) { f.Duration = v }},
		{"price", e.sel.ResultPrice, func(f *schemas.FlightResult, v string) { f.Price = v }},
		{"stop", e.sel.ResultStops, func(f *schemas.FlightResult, v string) { f.Stop = v }},
	}
}

// Extract waits for results and reads every card in page order. A results
// container that never appears yields an empty list, not an error. Cards
// missing any field are skipped and logged. Only cancellation of ctx itself
// is returned as an error.
func (e *Extractor) Extract(ctx context.Context, act *interaction.Interactor) ([]schemas.FlightResult, Report, error) {
	var report Report

	if err := act.WaitFor(ctx, e.sel.ResultCard, e.timeout); err != nil {
		if ctx.Err() != nil {
			return nil, report, ctx.Err()
		}
		report.TimedOut = true
		e.logger.Warn("No flight results appeared.", zap.Duration("timeout", e.timeout), zap.Error(err))
		return []schemas.FlightResult{}, report, nil
	}

	cards, err := act.QueryAll(ctx, e.sel.ResultCard)
	if err != nil {
		if ctx.Err() != nil {
			return nil, report, ctx.Err()
		}
		e.logger.Error("Listing result cards failed.", zap.Error(err))
		return []schemas.FlightResult{}, report, nil
	}
	report.Found = len(cards)

	results := make([]schemas.FlightResult, 0, len(cards))
	for idx, card := range cards {
		flight, err := e.readCard(ctx, idx, card)
		if err != nil {
			if ctx.Err() != nil {
				return nil, report, ctx.Err()
			}
			var partial *schemas.PartialCardError
			if errors.As(err, &partial) {
				report.Skipped = append(report.Skipped, partial)
			}
			e.logger.Warn("Skipping incomplete result card.", zap.Int("card", idx), zap.Error(err))
			continue
		}
		results = append(results, flight)
		if e.limit > 0 && len(results) >= e.limit {
			break
		}
	}
	report.Extracted = len(results)

	e.logger.Info("Flight results extracted.",
		zap.Int("found", report.Found),
		zap.Int("extracted", report.Extracted),
		zap.Int("skipped", len(report.Skipped)))
	return results, report, nil
}

func (e *Extractor) readCard(ctx context.Context, idx int, card browser.Element) (schemas.FlightResult, error) {
	var flight schemas.FlightResult
	for _, f := range e.fields() {
		if f.selector == "" {
			return flight, &schemas.PartialCardError{Index: idx, Field: f.name, Err: errors.New("no selector configured")}
		}
		el, err := card.Query(ctx, f.selector)
		if err != nil {
			return flight, &schemas.PartialCardError{Index: idx, Field: f.name, Err: err}
		}
		text, err := el.Text(ctx)
		if err != nil {
			return flight, &schemas.PartialCardError{Index: idx, Field: f.name, Err: err}
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return flight, &schemas.PartialCardError{Index: idx, Field: f.name, Err: fmt.Errorf("empty text at %q", f.selector)}
		}
		f.set(&flight, text)
	}
	return flight, nil
}
