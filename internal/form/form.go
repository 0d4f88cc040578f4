// Package form fills and submits the flight search form.
package form

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/flightscout/api/schemas"
	"github.com/xkilldash9x/flightscout/internal/browser"
	"github.com/xkilldash9x/flightscout/internal/config"
	"github.com/xkilldash9x/flightscout/internal/interaction"
)

// Step identifies one stage of the form sequence.
type Step string

const (
	StepConsent       Step = "consent"
	StepTripType      Step = "trip_type"
	StepOrigin        Step = "origin"
	StepDestination   Step = "destination"
	StepDismissFocus  Step = "dismiss_focus"
	StepValidateDates Step = "validate_dates"
	StepDepartureDate Step = "departure_date"
	StepReturnDate    Step = "return_date"
	StepPassengers    Step = "passengers"
	StepCabin         Step = "cabin"
	StepSubmit        Step = "submit"
)

// Filler runs the fixed form sequence. A Filler holds per-search state and
// must not be shared between concurrent searches; use a Factory.
type Filler struct {
	site        config.SiteConfig
	search      config.SearchConfig
	logger      *zap.Logger
	picker      *DatePicker
	passengers  *PassengerSelector
	cabins      *CabinMapper
	onStep      func(Step)
	currentStep Step
}

// Factory builds a fresh Filler for each search.
type Factory struct {
	site   config.SiteConfig
	search config.SearchConfig
	logger *zap.Logger
	onStep func(Step)
}

// NewFactory captures the configuration shared by every search.
func NewFactory(site config.SiteConfig, search config.SearchConfig, logger *zap.Logger) *Factory {
	return &Factory{site: site, search: search, logger: logger}
}

// OnStep registers a callback invoked as each step begins.
func (f *Factory) OnStep(fn func(Step)) *Factory {
	f.onStep = fn
	return f
}

// New returns a Filler logging through logger, or the factory logger when nil.
func (f *Factory) New(logger *zap.Logger) *Filler {
	if logger == nil {
		logger = f.logger
	}
	logger = logger.Named("form")
	return &Filler{
		site:       f.site,
		search:     f.search,
		logger:     logger,
		picker:     NewDatePicker(f.site.Selectors, f.search.MaxMonthAdvances, f.search.WaitTimeout, logger),
		passengers: NewPassengerSelector(f.site.Selectors, f.search.ConvergenceSlack, f.search.WaitTimeout, logger),
		cabins:     NewCabinMapper(f.site.CabinLabels, logger),
		onStep:     f.onStep,
	}
}

// CurrentStep is the last step the filler entered.
func (f *Filler) CurrentStep() Step { return f.currentStep }

// PassengersOpen reports whether the passenger popup was left open.
func (f *Filler) PassengersOpen() bool { return f.passengers.IsOpen() }

func (f *Filler) enter(step Step) {
	f.currentStep = step
	f.logger.Debug("Form step.", zap.String("step", string(step)))
	if f.onStep != nil {
		f.onStep(step)
	}
}

// DismissConsent clicks the cookie banner accept control if one is configured
// and visible. A missing banner is not an error.
func (f *Filler) DismissConsent(ctx context.Context, act *interaction.Interactor) error {
	sel := f.site.Selectors.ConsentAccept
	if sel == "" {
		return nil
	}
	f.enter(StepConsent)
	if _, err := act.Query(ctx, sel); err != nil {
		if errors.Is(err, browser.ErrNoSuchElement) {
			f.logger.Debug("No consent banner shown.")
			return nil
		}
		return err
	}
	if err := act.Click(ctx, sel); err != nil {
		return controlError("consent_accept", sel, err)
	}
	return act.PopupPause(ctx)
}

// Fill completes the form for req and submits it. Dates are validated before
// the calendar is touched; origin and destination have already been typed by then.
func (f *Filler) Fill(ctx context.Context, act *interaction.Interactor, req schemas.SearchRequest) error {
	sel := f.site.Selectors
	f.logger.Info("Filling search form.",
		zap.String("origin", req.Origin), zap.String("destination", req.Destination))

	if err := f.selectTripType(ctx, act, req.TripType()); err != nil {
		return err
	}

	f.enter(StepOrigin)
	if err := act.Fill(ctx, sel.Origin, req.Origin); err != nil {
		return controlError("origin", sel.Origin, err)
	}

	f.enter(StepDestination)
	if err := act.Fill(ctx, sel.Destination, req.Destination); err != nil {
		return controlError("destination", sel.Destination, err)
	}

	if sel.FocusSink != "" {
		f.enter(StepDismissFocus)
		if err := act.Click(ctx, sel.FocusSink); err != nil {
			return controlError("focus_sink", sel.FocusSink, err)
		}
	}

	f.enter(StepValidateDates)
	departure, ret, err := req.Dates()
	if err != nil {
		return err
	}

	if departure != nil {
		f.enter(StepDepartureDate)
		if _, err := f.picker.Select(ctx, act, *departure); err != nil {
			return err
		}
	}
	if ret != nil {
		f.enter(StepReturnDate)
		if _, err := f.picker.Select(ctx, act, *ret); err != nil {
			return err
		}
	}

	f.enter(StepPassengers)
	if err := f.passengers.Converge(ctx, act, req.Passengers); err != nil {
		return err
	}

	f.enter(StepCabin)
	if err := f.selectCabin(ctx, act, req.Cabin); err != nil {
		return err
	}

	f.enter(StepSubmit)
	if err := act.Click(ctx, sel.Submit); err != nil {
		return controlError("submit", sel.Submit, err)
	}
	f.logger.Info("Search form submitted.")
	return nil
}

func (f *Filler) selectTripType(ctx context.Context, act *interaction.Interactor, trip schemas.TripType) error {
	sel := f.site.Selectors.OneWay
	name := "one_way"
	if trip == schemas.TripRoundTrip {
		sel, name = f.site.Selectors.RoundTrip, "round_trip"
	}
	if sel == "" {
		return nil
	}
	f.enter(StepTripType)
	if err := act.Check(ctx, sel); err != nil {
		return controlError(name, sel, err)
	}
	return nil
}

func (f *Filler) selectCabin(ctx context.Context, act *interaction.Interactor, class schemas.CabinClass) error {
	if strings.TrimSpace(string(class)) == "" {
		f.logger.Debug("No cabin class requested; leaving the form default.")
		return nil
	}
	label, ok := f.cabins.Label(class)
	if !ok {
		return nil
	}
	if err := act.SelectOption(ctx, f.site.Selectors.Cabin, label); err != nil {
		return controlError("cabin", f.site.Selectors.Cabin, err)
	}
	return nil
}
