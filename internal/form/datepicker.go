// internal/form/datepicker.go
package form

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

// PickerState tracks where the date picker is in its protocol.
type PickerState int

const (
	PickerClosed PickerState = iota
	PickerSearching
	PickerSelecting
	PickerDone
)

func (s PickerState) String() string {
	switch s {
	case PickerClosed:
		return "closed"
	case PickerSearching:
		return "open-searching"
	case PickerSelecting:
		return "selecting"
	case PickerDone:
		return "done"
	default:
		return fmt.Sprintf("PickerState(%d)", int(s))
	}
}

// DatePicker drives a calendar widget that only moves forward one month at a time.
type DatePicker struct {
	sel         config.Selectors
	maxAdvances int
	waitTimeout time.Duration
	logger      *zap.Logger

	state PickerState
}

// NewDatePicker bounds month navigation to maxAdvances clicks per selection.
func NewDatePicker(sel config.Selectors, maxAdvances int, waitTimeout time.Duration, logger *zap.Logger) *DatePicker {
	return &DatePicker{
		sel:         sel,
		maxAdvances: maxAdvances,
		waitTimeout: waitTimeout,
		logger:      logger.Named("datepicker"),
	}
}

// State reports the protocol state after the last Select.
func (d *DatePicker) State() PickerState { return d.state }

// Select opens the calendar, advances until the target month is shown and
// clicks the target day. It returns how many times it advanced.
func (d *DatePicker) Select(ctx context.Context, act *interaction.Interactor, date schemas.CalendarDate) (int, error) {
	d.state = PickerClosed
	target := date.Caption()
	logger := d.logger.With(zap.String("date", date.ISO()), zap.String("target_month", target))

	if err := act.Click(ctx, d.sel.DateInput); err != nil {
		return 0, controlError("date_input", d.sel.DateInput, err)
	}
	if err := act.WaitFor(ctx, d.sel.DateModal, d.waitTimeout); err != nil {
		return 0, controlError("date_modal", d.sel.DateModal, err)
	}
	d.state = PickerSearching

	advances := 0
	for {
		caption, err := act.ReadText(ctx, d.sel.DateCaption)
		if err != nil {
			return advances, controlError("date_caption", d.sel.DateCaption, err)
		}
		if captionShows(caption, target) {
			break
		}
		if advances >= d.maxAdvances {
			logger.Warn("Calendar never showed the target month.",
				zap.String("last_caption", caption), zap.Int("advances", advances))
			return advances, &schemas.NavigationExhaustedError{
				Target:      target,
				LastCaption: normalizeSpace(caption),
				Advances:    advances,
			}
		}
		if err := act.Click(ctx, d.sel.NextMonth); err != nil {
			return advances, controlError("next_month", d.sel.NextMonth, err)
		}
		advances++
	}

	d.state = PickerSelecting
	daySelector := d.sel.Day(date.DayKey())
	if err := act.Click(ctx, daySelector); err != nil {
		logger.Error("Day cell could not be selected.", zap.String("selector", daySelector), zap.Error(err))
		return advances, schemas.DayNotSelectable(date.DayKey(), daySelector, err)
	}

	d.state = PickerDone
	logger.Info("Date selected.", zap.Int("advances", advances))
	return advances, nil
}

// captionShows reports whether the heading contains target exactly, case
// included. Runs of whitespace collapse so two-month layouts still match.
func captionShows(caption, target string) bool {
	return strings.Contains(normalizeSpace(caption), target)
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// controlError turns a missing form control into an ElementNotFoundError and
// leaves every other failure as it was.
func controlError(name, selector string, err error) error {
	if errors.Is(err, browser.ErrNoSuchElement) {
		return &schemas.ElementNotFoundError{Kind: schemas.ElementControl, Key: name, Selector: selector, Err: err}
	}
	return fmt.Errorf("%s: %w", name, err)
}
