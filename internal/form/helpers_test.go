package form

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/flightscout/api/schemas"
	"github.com/xkilldash9x/flightscout/internal/browser/fakepage"
	"github.com/xkilldash9x/flightscout/internal/config"
	"github.com/xkilldash9x/flightscout/internal/interaction"
)

// site is a scripted booking form on top of fakepage.
type site struct {
	page *fakepage.Page
	cfg  *config.Config

	mu       sync.Mutex
	month    time.Time
	counters map[string]*counterRow
}

type counterRow struct {
	row     *fakepage.Element
	counter *fakepage.Element
	value   int
	step    int // how much one click moves the counter; 0 simulates a stuck control
}

func newSite(calendarStart string) *site {
	cfg := config.NewDefaultConfig()
	sel := cfg.SiteCfg.Selectors
	start, err := time.Parse("2006-01", calendarStart)
	if err != nil {
		panic(err)
	}

	s := &site{page: fakepage.New(), cfg: cfg, month: start, counters: make(map[string]*counterRow)}
	s.page.Present(
		sel.OneWay, sel.RoundTrip, sel.Origin, sel.Destination, sel.FocusSink,
		sel.DateInput, sel.DateModal, sel.PassengerField, sel.PassengerPopup,
		sel.Cabin, sel.Submit,
	)
	s.page.SetText(sel.DateCaption, caption(start))
	s.page.OnClick(sel.NextMonth, func() {
		s.mu.Lock()
		s.month = s.month.AddDate(0, 1, 0)
		text := caption(s.month)
		s.mu.Unlock()
		s.page.SetText(sel.DateCaption, text)
	})
	return s
}

func caption(t time.Time) string {
	return fmt.Sprintf("%s %d", t.Month(), t.Year())
}

// days makes day cells clickable.
func (s *site) days(keys ...string) *site {
	for _, k := range keys {
		s.page.Present(s.cfg.SiteCfg.Selectors.Day(k))
	}
	return s
}

// passengerRow adds a row showing label with an initial counter value.
func (s *site) passengerRow(label string, initial, step int) *site {
	sel := s.cfg.SiteCfg.Selectors
	cr := &counterRow{value: initial, step: step}
	cr.counter = fakepage.NewElement(label + " counter").WithAttr("value", strconv.Itoa(initial))
	bump := func(delta int) func() {
		return func() {
			s.mu.Lock()
			cr.value += delta
			if cr.value < 0 {
				cr.value = 0
			}
			v := cr.value
			s.mu.Unlock()
			cr.counter.SetAttribute("value", strconv.Itoa(v))
		}
	}
	cr.row = fakepage.NewElement(label+" row").
		WithChild(sel.PassengerLabel, fakepage.NewElement(label+" label").WithText(" "+label+" ")).
		WithChild(sel.CounterValue, cr.counter).
		WithChild(sel.CounterPlus, fakepage.NewElement(label+" plus").WithClick(bump(step))).
		WithChild(sel.CounterMinus, fakepage.NewElement(label+" minus").WithClick(bump(-step)))

	s.counters[label] = cr
	rows := make([]*fakepage.Element, 0, len(s.counters))
	for _, name := range []string{"Adults", "Seniors", "Children", "Infants"} {
		if r, ok := s.counters[name]; ok {
			rows = append(rows, r.row)
		}
	}
	for name, r := range s.counters {
		if name != "Adults" && name != "Seniors" && name != "Children" && name != "Infants" {
			rows = append(rows, r.row)
		}
	}
	s.page.SetElements(sel.PassengerRow, rows...)
	return s
}

func (s *site) counterValue(label string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[label].value
}

// interactor binds a pacing-free layer so the journal only holds page actions.
func (s *site) interactor() *interaction.Interactor {
	return interaction.NewLayer(config.PacingConfig{}, zap.NewNop()).Bind(s.page)
}

func mustDate(iso string) schemas.CalendarDate {
	d, err := schemas.ParseCalendarDate(iso)
	if err != nil {
		panic(err)
	}
	return d
}

func baseRequest() schemas.SearchRequest {
	return schemas.SearchRequest{
		URL:           "https://www.united.com/en/gb",
		Origin:        "London",
		Destination:   "Chicago",
		DepartureDate: "2025-10-22",
		Passengers:    []schemas.Passenger{{Category: "Adults", Count: 1}, {Category: "Children", Count: 1}},
		Cabin:         schemas.CabinEconomy,
	}
}
