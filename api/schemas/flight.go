// File: api/schemas/flight.go
package schemas

import (
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// FlightTimeSeparator joins departure and arrival in the flat projection.
const FlightTimeSeparator = " - "

// Keys of the flat projection, in output order.
const (
	KeyAirline    = "airline"
	KeyFlightTime = "flight_time"
	KeyDuration   = "duration"
	KeyPrice      = "price"
	KeyStop       = "stop"
)

// FlightResult is one extracted itinerary. Every field is the trimmed display text.
type FlightResult struct {
	Airline   string
	Departure string
	Arrival   string
	Duration  string
	Price     string
	Stop      string
}

// FlightTime joins departure and arrival for display.
func (f FlightResult) FlightTime() string {
	return f.Departure + FlightTimeSeparator + f.Arrival
}

// ToMap projects the result onto the flat output record.
func (f FlightResult) ToMap() map[string]string {
	return map[string]string{
		KeyAirline:    f.Airline,
		KeyFlightTime: f.FlightTime(),
		KeyDuration:   f.Duration,
		KeyPrice:      f.Price,
		KeyStop:       f.Stop,
	}
}

// FlightResultFromMap reverses ToMap. flight_time is split on the first separator.
func FlightResultFromMap(m map[string]string) (FlightResult, error) {
	ft, ok := m[KeyFlightTime]
	if !ok {
		return FlightResult{}, fmt.Errorf("flat record has no %q key", KeyFlightTime)
	}
	dep, arr, found := strings.Cut(ft, FlightTimeSeparator)
	if !found {
		return FlightResult{}, fmt.Errorf("flight_time %q does not contain %q", ft, FlightTimeSeparator)
	}
	return FlightResult{
		Airline:   m[KeyAirline],
		Departure: dep,
		Arrival:   arr,
		Duration:  m[KeyDuration],
		Price:     m[KeyPrice],
		Stop:      m[KeyStop],
	}, nil
}

// FlightRecord is the flat output form of a FlightResult.
type FlightRecord struct {
	Airline    string `json:"airline"`
	FlightTime string `json:"flight_time"`
	Duration   string `json:"duration"`
	Price      string `json:"price"`
	Stop       string `json:"stop"`
}

// Record projects the result onto the flat output record.
func (f FlightResult) Record() FlightRecord {
	return FlightRecord{
		Airline:    f.Airline,
		FlightTime: f.FlightTime(),
		Duration:   f.Duration,
		Price:      f.Price,
		Stop:       f.Stop,
	}
}

// MarshalJSON emits the flat projection with stable key order.
func (f FlightResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.Record())
}

// UnmarshalJSON accepts the flat projection.
func (f *FlightResult) UnmarshalJSON(data []byte) error {
	var flat FlightRecord
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}
	parsed, err := FlightResultFromMap(map[string]string{
		KeyAirline:    flat.Airline,
		KeyFlightTime: flat.FlightTime,
		KeyDuration:   flat.Duration,
		KeyPrice:      flat.Price,
		KeyStop:       flat.Stop,
	})
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}
