// internal/interaction/pacing.go
package interaction

import (
	"math/rand"
	"time"

	"github.com/xkilldash9x/flightscout/internal/config"
)

// Window is an inclusive range for a post-action delay.
type Window struct {
	Min time.Duration
	Max time.Duration
}

// Zero reports whether the window never waits.
func (w Window) Zero() bool { return w.Min <= 0 && w.Max <= 0 }

// Draw picks a uniformly random delay within the window at millisecond granularity.
func (w Window) Draw(rng *rand.Rand) time.Duration {
	lo, hi := w.Min, w.Max
	if lo > hi {
		lo, hi = hi, lo
	}
	if lo < 0 {
		lo = 0
	}
	if hi <= lo {
		return lo
	}
	spanMs := int64((hi - lo) / time.Millisecond)
	return lo + time.Duration(rng.Int63n(spanMs+1))*time.Millisecond
}

// WindowMs builds a window from millisecond bounds.
func WindowMs(minMs, maxMs int) Window {
	return Window{Min: time.Duration(minMs) * time.Millisecond, Max: time.Duration(maxMs) * time.Millisecond}
}

// Pacing holds the delay window for each kind of action.
type Pacing struct {
	Fill    Window
	Click   Window
	WaitFor Window
	Read    Window
	Popup   Window
}

// PacingFromConfig converts configuration into windows. Disabled pacing yields zero windows.
func PacingFromConfig(cfg config.PacingConfig) Pacing {
	if !cfg.Enabled {
		return Pacing{}
	}
	return Pacing{
		Fill:    WindowMs(cfg.Fill.MinMs, cfg.Fill.MaxMs),
		Click:   WindowMs(cfg.Click.MinMs, cfg.Click.MaxMs),
		WaitFor: WindowMs(cfg.WaitFor.MinMs, cfg.WaitFor.MaxMs),
		Read:    WindowMs(cfg.Read.MinMs, cfg.Read.MaxMs),
		Popup:   WindowMs(cfg.Popup.MinMs, cfg.Popup.MaxMs),
	}
}
