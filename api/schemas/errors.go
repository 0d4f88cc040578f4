// File: api/schemas/errors.go
package schemas

import (
	"errors"
	"fmt"
)

// Sentinel kinds. Each kinded error below matches its sentinel with errors.Is.
// SessionFailureError also matches whatever its cause matches, and
// CounterReadError has no kind of its own.
var (
	ErrValidation           = errors.New("invalid search request")
	ErrElementNotFound      = errors.New("element not found")
	ErrNavigationExhausted  = errors.New("calendar navigation exhausted")
	ErrConvergenceExhausted = errors.New("passenger count did not converge")
	ErrExtractionPartial    = errors.New("result card incomplete")
	ErrSessionFailure       = errors.New("browser session failed")
)

// ValidationError rejects a request before the browser is touched.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// ElementKind names the kind of element that could not be located.
type ElementKind string

const (
	ElementControl  ElementKind = "control"
	ElementDay      ElementKind = "day"
	ElementCategory ElementKind = "passenger_category"
)

// ElementNotFoundError reports a missing day cell, passenger row or form control.
type ElementNotFoundError struct {
	Kind     ElementKind
	Key      string
	Selector string
	Err      error
}

func (e *ElementNotFoundError) Error() string {
	msg := fmt.Sprintf("%s %q not found", e.Kind, e.Key)
	if e.Selector != "" {
		msg += fmt.Sprintf(" (selector %q)", e.Selector)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ElementNotFoundError) Unwrap() error { return e.Err }

func (e *ElementNotFoundError) Is(target error) bool { return target == ErrElementNotFound }

// DayNotSelectable is the day-cell flavour of ElementNotFoundError.
func DayNotSelectable(day, selector string, cause error) error {
	return &ElementNotFoundError{Kind: ElementDay, Key: day, Selector: selector, Err: cause}
}

// CategoryNotFound is the passenger-row flavour of ElementNotFoundError.
func CategoryNotFound(category, selector string, cause error) error {
	return &ElementNotFoundError{Kind: ElementCategory, Key: category, Selector: selector, Err: cause}
}

// NavigationExhaustedError means the calendar never showed the target month.
type NavigationExhaustedError struct {
	Target      string
	LastCaption string
	Advances    int
}

func (e *NavigationExhaustedError) Error() string {
	return fmt.Sprintf("calendar did not reach %q after %d advances (last caption %q)", e.Target, e.Advances, e.LastCaption)
}

func (e *NavigationExhaustedError) Is(target error) bool { return target == ErrNavigationExhausted }

// ConvergenceExhaustedError means a passenger counter never reached its target.
type ConvergenceExhaustedError struct {
	Category string
	Target   int
	Last     int
	Clicks   int
}

func (e *ConvergenceExhaustedError) Error() string {
	return fmt.Sprintf("passenger category %q stuck at %d (target %d) after %d clicks", e.Category, e.Last, e.Target, e.Clicks)
}

func (e *ConvergenceExhaustedError) Is(target error) bool { return target == ErrConvergenceExhausted }

// CounterReadError is returned when a passenger counter shows something that is not an integer.
type CounterReadError struct {
	Category string
	Raw      string
	Err      error
}

func (e *CounterReadError) Error() string {
	return fmt.Sprintf("counter for %q has unreadable value %q: %v", e.Category, e.Raw, e.Err)
}

func (e *CounterReadError) Unwrap() error { return e.Err }

// PartialCardError describes a result card skipped because a field was missing.
type PartialCardError struct {
	Index int
	Field string
	Err   error
}

func (e *PartialCardError) Error() string {
	return fmt.Sprintf("card %d missing %s: %v", e.Index, e.Field, e.Err)
}

func (e *PartialCardError) Unwrap() error { return e.Err }

func (e *PartialCardError) Is(target error) bool { return target == ErrExtractionPartial }

// SessionFailureError wraps whatever went wrong inside a browser session.
// It unwraps to the original error so callers can still match its kind.
type SessionFailureError struct {
	SessionID string
	Err       error
}

func (e *SessionFailureError) Error() string {
	return fmt.Sprintf("session %s failed: %v", e.SessionID, e.Err)
}

func (e *SessionFailureError) Unwrap() error { return e.Err }

func (e *SessionFailureError) Is(target error) bool { return target == ErrSessionFailure }
