// internal/session/envelope.go
package session

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/flightscout/api/schemas"
	"github.com/xkilldash9x/flightscout/internal/browser"
)

// ReleaseFunc frees whatever a Launcher acquired.
type ReleaseFunc func(ctx context.Context) error

// Launcher acquires a fresh browser page.
type Launcher interface {
	Launch(ctx context.Context) (browser.Page, ReleaseFunc, error)
}

// LauncherFunc adapts a function to Launcher.
type LauncherFunc func(ctx context.Context) (browser.Page, ReleaseFunc, error)

func (f LauncherFunc) Launch(ctx context.Context) (browser.Page, ReleaseFunc, error) { return f(ctx) }

// EvidenceHook records the state of a failed session while it is still live.
type EvidenceHook interface {
	Capture(ctx context.Context, s *Session, cause error) error
}

// EvidenceFunc adapts a function to EvidenceHook.
type EvidenceFunc func(ctx context.Context, s *Session, cause error) error

func (f EvidenceFunc) Capture(ctx context.Context, s *Session, cause error) error { return f(ctx, s, cause) }

// Session is one acquired page and the bookkeeping around it.
type Session struct {
	id        string
	page      browser.Page
	startedAt time.Time
	release   ReleaseFunc

	once       sync.Once
	releaseErr error
}

// ID is a unique identifier for the session.
func (s *Session) ID() string { return s.id }

// Page is the live page owned by the session.
func (s *Session) Page() browser.Page { return s.page }

// StartedAt is when the page was acquired.
func (s *Session) StartedAt() time.Time { return s.startedAt }

// Release frees the page. Only the first call does any work; later calls
// return the first call's result.
func (s *Session) Release(ctx context.Context) error {
	s.once.Do(func() {
		if s.release != nil {
			s.releaseErr = s.release(ctx)
		}
	})
	return s.releaseErr
}

// Envelope runs work inside a session: acquire, run, capture evidence on
// failure, release. Release happens exactly once on every path, including
// cancellation and panics, and never hides the work's own error.
type Envelope struct {
	launcher        Launcher
	hook            EvidenceHook
	logger          *zap.Logger
	evidenceTimeout time.Duration
	releaseTimeout  time.Duration

	errorCount atomic.Int64
}

// Option configures an Envelope.
type Option func(*Envelope)

// WithEvidenceTimeout bounds evidence capture.
func WithEvidenceTimeout(d time.Duration) Option {
	return func(e *Envelope) { e.evidenceTimeout = d }
}

// WithReleaseTimeout bounds release.
func WithReleaseTimeout(d time.Duration) Option {
	return func(e *Envelope) { e.releaseTimeout = d }
}

// NewEnvelope builds an Envelope. hook may be nil.
func NewEnvelope(launcher Launcher, hook EvidenceHook, logger *zap.Logger, opts ...Option) *Envelope {
	e := &Envelope{
		launcher:        launcher,
		hook:            hook,
		logger:          logger.Named("session"),
		evidenceTimeout: 20 * time.Second,
		releaseTimeout:  10 * time.Second,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ErrorCount is the number of failed runs so far.
func (e *Envelope) ErrorCount() int64 { return e.errorCount.Load() }

// Run acquires a session and calls fn with it. Any failure is returned as a
// *schemas.SessionFailureError wrapping the original error.
func (e *Envelope) Run(ctx context.Context, fn func(ctx context.Context, s *Session) error) error {
	id := uuid.NewString()
	logger := e.logger.With(zap.String("session_id", id))

	page, release, err := e.launcher.Launch(ctx)
	if err != nil {
		e.errorCount.Add(1)
		logger.Error("Failed to acquire browser page.", zap.Error(err))
		return &schemas.SessionFailureError{SessionID: id, Err: fmt.Errorf("acquiring page: %w", err)}
	}
	s := &Session{id: id, page: page, startedAt: time.Now(), release: release}
	logger.Debug("Session acquired.")

	defer func() {
		releaseCtx, cancel := detachedWithTimeout(ctx, e.releaseTimeout)
		defer cancel()
		if rerr := s.Release(releaseCtx); rerr != nil {
			logger.Warn("Failed to release browser page.", zap.Error(rerr))
		} else {
			logger.Debug("Session released.", zap.Duration("elapsed", time.Since(s.startedAt)))
		}
	}()

	runErr := safeCall(ctx, s, fn)
	if runErr == nil {
		return nil
	}

	e.errorCount.Add(1)
	logger.Error("Session failed.", zap.Error(runErr), zap.Int64("error_count", e.ErrorCount()))
	e.capture(ctx, s, runErr, logger)
	return &schemas.SessionFailureError{SessionID: id, Err: runErr}
}

// capture invokes the evidence hook once. Its failures and panics are logged and swallowed.
func (e *Envelope) capture(ctx context.Context, s *Session, cause error, logger *zap.Logger) {
	if e.hook == nil {
		return
	}
	captureCtx, cancel := detachedWithTimeout(ctx, e.evidenceTimeout)
	defer cancel()

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("evidence hook panicked: %v", r)
			}
		}()
		return e.hook.Capture(captureCtx, s, cause)
	}()
	if err != nil {
		logger.Warn("Evidence capture failed.", zap.Error(err))
	}
}

// ErrPanic marks errors recovered from a panic inside session work.
var ErrPanic = errors.New("session work panicked")

func safeCall(ctx context.Context, s *Session, fn func(ctx context.Context, s *Session) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v\n%s", ErrPanic, r, debug.Stack())
		}
	}()
	return fn(ctx, s)
}
