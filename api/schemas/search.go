// File: api/schemas/search.go
package schemas

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the only accepted textual form for travel dates.
const DateLayout = "2006-01-02"

// CabinClass is the closed set of cabin classes a search may request.
type CabinClass string

const (
	CabinEconomy  CabinClass = "economy"
	CabinBusiness CabinClass = "business"
	CabinFirst    CabinClass = "first"
)

// CabinClasses lists every known cabin class in display order.
var CabinClasses = []CabinClass{CabinEconomy, CabinBusiness, CabinFirst}

// ParseCabinClass normalizes s and reports whether it names a known class.
// Unknown values are returned as-is with ok=false; callers decide how loud to be about it.
func ParseCabinClass(s string) (CabinClass, bool) {
	c := CabinClass(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range CabinClasses {
		if c == known {
			return c, true
		}
	}
	return c, false
}

// TripType distinguishes one-way searches from round trips.
type TripType string

const (
	TripOneWay    TripType = "one_way"
	TripRoundTrip TripType = "round_trip"
)

// Passenger is one passenger category and the desired count for it.
type Passenger struct {
	Category string `json:"category" yaml:"category"`
	Count    int    `json:"count" yaml:"count"`
}

// SearchRequest is a single flight search as submitted by a caller.
// Dates are kept as strings so validation can report the offending input verbatim.
type SearchRequest struct {
	URL           string      `json:"url,omitempty" yaml:"url"`
	Origin        string      `json:"origin" yaml:"origin"`
	Destination   string      `json:"destination" yaml:"destination"`
	DepartureDate string      `json:"departure_date,omitempty" yaml:"departure_date"`
	ReturnDate    string      `json:"return_date,omitempty" yaml:"return_date"`
	Passengers    []Passenger `json:"passengers" yaml:"passengers"`
	Cabin         CabinClass  `json:"cabin" yaml:"cabin"`
}

// TripType derives the trip type from the presence of a return date.
func (r SearchRequest) TripType() TripType {
	if strings.TrimSpace(r.ReturnDate) != "" {
		return TripRoundTrip
	}
	return TripOneWay
}

// Validate checks the request before any browser interaction takes place.
func (r SearchRequest) Validate() error {
	if strings.TrimSpace(r.URL) == "" {
		return &ValidationError{Field: "url", Reason: "target url is required"}
	}
	if strings.TrimSpace(r.Origin) == "" {
		return &ValidationError{Field: "origin", Reason: "origin is required"}
	}
	if strings.TrimSpace(r.Destination) == "" {
		return &ValidationError{Field: "destination", Reason: "destination is required"}
	}

	dep, ret, err := r.Dates()
	if err != nil {
		return err
	}
	if dep != nil && ret != nil && ret.Time().Before(dep.Time()) {
		return &ValidationError{
			Field:  "return_date",
			Reason: fmt.Sprintf("return date %s is before departure date %s", ret.ISO(), dep.ISO()),
		}
	}

	seen := make(map[string]struct{}, len(r.Passengers))
	for _, p := range r.Passengers {
		label := strings.TrimSpace(p.Category)
		if label == "" {
			return &ValidationError{Field: "passengers", Reason: "passenger category label is empty"}
		}
		if p.Count < 0 {
			return &ValidationError{Field: "passengers", Reason: fmt.Sprintf("negative count %d for %q", p.Count, label)}
		}
		if _, dup := seen[label]; dup {
			return &ValidationError{Field: "passengers", Reason: fmt.Sprintf("category %q listed twice", label)}
		}
		seen[label] = struct{}{}
	}
	return nil
}

// Dates parses the departure and return dates. A nil pointer means the date was absent.
// At least one of the two must be present.
func (r SearchRequest) Dates() (departure, ret *CalendarDate, err error) {
	depRaw := strings.TrimSpace(r.DepartureDate)
	retRaw := strings.TrimSpace(r.ReturnDate)
	if depRaw == "" && retRaw == "" {
		return nil, nil, &ValidationError{Field: "departure_date", Reason: "neither departure nor return date was provided"}
	}
	if depRaw != "" {
		d, err := ParseCalendarDate(depRaw)
		if err != nil {
			return nil, nil, &ValidationError{Field: "departure_date", Reason: err.Error()}
		}
		departure = &d
	}
	if retRaw != "" {
		d, err := ParseCalendarDate(retRaw)
		if err != nil {
			return nil, nil, &ValidationError{Field: "return_date", Reason: err.Error()}
		}
		ret = &d
	}
	return departure, ret, nil
}

// CalendarDate is a validated travel date with the derived keys the date picker needs.
type CalendarDate struct {
	t time.Time
}

// ParseCalendarDate parses a YYYY-MM-DD string.
func ParseCalendarDate(s string) (CalendarDate, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return CalendarDate{}, fmt.Errorf("date %q is not in YYYY-MM-DD format", s)
	}
	return CalendarDate{t: t}, nil
}

// Time returns the date at midnight UTC.
func (d CalendarDate) Time() time.Time { return d.t }

// Year of the date.
func (d CalendarDate) Year() int { return d.t.Year() }

// Month of the date.
func (d CalendarDate) Month() time.Month { return d.t.Month() }

// Day of month.
func (d CalendarDate) Day() int { return d.t.Day() }

// ISO renders the date as YYYY-MM-DD.
func (d CalendarDate) ISO() string { return d.t.Format(DateLayout) }

// Caption is the month heading the calendar shows for this date, e.g. "October 2025".
func (d CalendarDate) Caption() string {
	return fmt.Sprintf("%s %d", d.t.Month().String(), d.t.Year())
}

// DayKey identifies the day cell inside a calendar grid.
func (d CalendarDate) DayKey() string { return d.ISO() }

func (d CalendarDate) String() string { return d.ISO() }
