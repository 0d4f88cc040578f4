// internal/form/passengers.go
package form

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/flightscout/api/schemas"
	"github.com/xkilldash9x/flightscout/internal/browser"
	"github.com/xkilldash9x/flightscout/internal/config"
	"github.com/xkilldash9x/flightscout/internal/interaction"
)

// PassengerSelector converges each passenger counter on its target using the
// row's increment and decrement buttons, re-reading the counter after every click.
type PassengerSelector struct {
	sel         config.Selectors
	slack       int
	waitTimeout time.Duration
	logger      *zap.Logger

	popupOpen bool
}

// NewPassengerSelector allows at most target+slack clicks per category.
func NewPassengerSelector(sel config.Selectors, slack int, waitTimeout time.Duration, logger *zap.Logger) *PassengerSelector {
	return &PassengerSelector{
		sel:         sel,
		slack:       slack,
		waitTimeout: waitTimeout,
		logger:      logger.Named("passengers"),
	}
}

// IsOpen reports whether the passenger popup is believed to be open.
func (p *PassengerSelector) IsOpen() bool { return p.popupOpen }

// Open shows the passenger popup. It is a no-op when already open.
func (p *PassengerSelector) Open(ctx context.Context, act *interaction.Interactor) error {
	if p.popupOpen {
		return nil
	}
	if err := act.Click(ctx, p.sel.PassengerField); err != nil {
		return controlError("passenger_field", p.sel.PassengerField, err)
	}
	if err := act.WaitFor(ctx, p.sel.PassengerPopup, p.waitTimeout); err != nil {
		return controlError("passenger_popup", p.sel.PassengerPopup, err)
	}
	p.popupOpen = true
	return nil
}

// Close hides the popup, either through its close control or by toggling the
// field that opened it. It is a no-op when already closed.
func (p *PassengerSelector) Close(ctx context.Context, act *interaction.Interactor) error {
	if !p.popupOpen {
		return nil
	}
	closer, name := p.sel.PassengerClose, "passenger_close"
	if closer == "" {
		closer, name = p.sel.PassengerField, "passenger_field"
	}
	if err := act.Click(ctx, closer); err != nil {
		return controlError(name, closer, err)
	}
	p.popupOpen = false
	return nil
}

// Converge opens the popup, drives each category in request order and closes it again.
// The popup is closed on the success path only; a failing search leaves it for evidence.
func (p *PassengerSelector) Converge(ctx context.Context, act *interaction.Interactor, passengers []schemas.Passenger) error {
	if len(passengers) == 0 {
		return nil
	}
	if err := p.Open(ctx, act); err != nil {
		return err
	}
	for _, pass := range passengers {
		if err := p.convergeOne(ctx, act, pass); err != nil {
			return err
		}
	}
	return p.Close(ctx, act)
}

func (p *PassengerSelector) convergeOne(ctx context.Context, act *interaction.Interactor, pass schemas.Passenger) error {
	category := strings.TrimSpace(pass.Category)
	logger := p.logger.With(zap.String("category", category), zap.Int("target", pass.Count))

	row, rowSelector, err := p.findRow(ctx, act, category)
	if err != nil {
		return err
	}
	counter, err := row.Query(ctx, p.sel.CounterValue)
	if err != nil {
		return p.rowControlError(category, "counter_value", p.sel.CounterValue, err)
	}
	plus, err := row.Query(ctx, p.sel.CounterPlus)
	if err != nil {
		return p.rowControlError(category, "counter_plus", p.sel.CounterPlus, err)
	}
	minus, err := row.Query(ctx, p.sel.CounterMinus)
	if err != nil {
		return p.rowControlError(category, "counter_minus", p.sel.CounterMinus, err)
	}

	current, err := ReadCounter(ctx, category, counter)
	if err != nil {
		return err
	}
	logger.Debug("Passenger row located.", zap.String("row", rowSelector), zap.Int("current", current))

	maxClicks := clickBudget(current, pass.Count, p.slack)
	clicks := 0
	for current != pass.Count {
		if clicks >= maxClicks {
			logger.Warn("Passenger counter did not converge.", zap.Int("last", current), zap.Int("clicks", clicks))
			return &schemas.ConvergenceExhaustedError{Category: category, Target: pass.Count, Last: current, Clicks: clicks}
		}
		btn, label := plus, "increment "+category
		if current > pass.Count {
			btn, label = minus, "decrement "+category
		}
		if err := act.ClickElement(ctx, btn, label); err != nil {
			return fmt.Errorf("clicking %s: %w", label, err)
		}
		clicks++
		if current, err = ReadCounter(ctx, category, counter); err != nil {
			return err
		}
	}
	logger.Info("Passenger count set.", zap.Int("clicks", clicks))
	return nil
}

// clickBudget bounds the clicks for one row: the target plus slack, widened
// to the starting distance plus slack when the counter starts further away.
func clickBudget(start, target, slack int) int {
	distance := start - target
	if distance < 0 {
		distance = -distance
	}
	return max(target, distance) + slack
}

// findRow locates the row for category. A row selector containing {category}
// is rendered and queried directly; otherwise every row is scanned and its
// label compared exactly.
func (p *PassengerSelector) findRow(ctx context.Context, act *interaction.Interactor, category string) (browser.Element, string, error) {
	if strings.Contains(p.sel.PassengerRow, "{category}") {
		rowSelector := p.sel.Row(category)
		row, err := act.Query(ctx, rowSelector)
		if err != nil {
			if errors.Is(err, browser.ErrNoSuchElement) {
				return nil, rowSelector, schemas.CategoryNotFound(category, rowSelector, err)
			}
			return nil, rowSelector, fmt.Errorf("locating %q row: %w", category, err)
		}
		return row, rowSelector, nil
	}

	rows, err := act.QueryAll(ctx, p.sel.PassengerRow)
	if err != nil {
		return nil, p.sel.PassengerRow, fmt.Errorf("listing passenger rows: %w", err)
	}
	for _, row := range rows {
		labelEl, err := row.Query(ctx, p.sel.PassengerLabel)
		if err != nil {
			if errors.Is(err, browser.ErrNoSuchElement) {
				continue
			}
			return nil, p.sel.PassengerRow, err
		}
		text, err := labelEl.Text(ctx)
		if err != nil {
			return nil, p.sel.PassengerRow, err
		}
		if normalizeSpace(text) == category {
			return row, p.sel.PassengerRow, nil
		}
	}
	return nil, p.sel.PassengerRow, schemas.CategoryNotFound(category, p.sel.PassengerRow, nil)
}

func (p *PassengerSelector) rowControlError(category, name, selector string, err error) error {
	if errors.Is(err, browser.ErrNoSuchElement) {
		return &schemas.ElementNotFoundError{Kind: schemas.ElementControl, Key: category + " " + name, Selector: selector, Err: err}
	}
	return fmt.Errorf("%s %s: %w", category, name, err)
}

// ReadCounter returns the integer shown by a counter element. The value
// attribute wins; the node text is the fallback.
func ReadCounter(ctx context.Context, category string, counter browser.Element) (int, error) {
	raw, ok, err := counter.Attribute(ctx, "value")
	if err != nil {
		return 0, fmt.Errorf("reading %q counter: %w", category, err)
	}
	if !ok {
		if raw, err = counter.Text(ctx); err != nil {
			return 0, fmt.Errorf("reading %q counter: %w", category, err)
		}
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, &schemas.CounterReadError{Category: category, Raw: raw, Err: err}
	}
	return n, nil
}
