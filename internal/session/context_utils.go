// internal/session/context_utils.go
package session

import (
	"context"
	"time"
)

// valueOnlyContext keeps its parent's values (the chromedp target among them)
// while ignoring the parent's deadline and cancellation.
type valueOnlyContext struct {
	context.Context
}

func (valueOnlyContext) Deadline() (deadline time.Time, ok bool) { return }

func (valueOnlyContext) Done() <-chan struct{} { return nil }

func (valueOnlyContext) Err() error { return nil }

// Detach returns a context that carries ctx's values but outlives its cancellation.
// Cleanup that must run after a request timed out starts from here.
func Detach(ctx context.Context) context.Context {
	return valueOnlyContext{ctx}
}

// detachedWithTimeout is Detach bounded by its own timeout.
func detachedWithTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(Detach(ctx))
	}
	return context.WithTimeout(Detach(ctx), d)
}
