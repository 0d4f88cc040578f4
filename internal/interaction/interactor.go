// internal/interaction/interactor.go
package interaction

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/flightscout/internal/browser"
	"github.com/xkilldash9x/flightscout/internal/config"
)

// Layer owns pacing policy and is shared across searches. Bind it to a page to act.
type Layer struct {
	pacing  Pacing
	logger  *zap.Logger
	limiter *rate.Limiter

	mu  sync.Mutex
	rng *rand.Rand
}

// Option customizes a Layer.
type Option func(*Layer)

// WithRand fixes the random source, mainly for tests.
func WithRand(rng *rand.Rand) Option {
	return func(l *Layer) { l.rng = rng }
}

// WithPacing overrides the windows derived from configuration.
func WithPacing(p Pacing) Option {
	return func(l *Layer) { l.pacing = p }
}

// NewLayer builds a Layer from pacing configuration.
func NewLayer(cfg config.PacingConfig, logger *zap.Logger, opts ...Option) *Layer {
	l := &Layer{
		pacing: PacingFromConfig(cfg),
		logger: logger.Named("interaction"),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	if cfg.MaxActionsPerSecond > 0 {
		// Burst of one lets the first action through immediately.
		l.limiter = rate.NewLimiter(rate.Limit(cfg.MaxActionsPerSecond), 1)
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Pacing returns the active windows.
func (l *Layer) Pacing() Pacing { return l.pacing }

func (l *Layer) draw(w Window) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return w.Draw(l.rng)
}

// Bind returns an Interactor that drives page.
func (l *Layer) Bind(page browser.Page) *Interactor {
	return &Interactor{layer: l, page: page, logger: l.logger}
}

// Interactor performs paced actions on one page. Each action logs, runs,
// and on success sleeps for a delay drawn from the action's window.
// Failures are returned unchanged and never retried.
type Interactor struct {
	layer  *Layer
	page   browser.Page
	logger *zap.Logger
}

// Page exposes the underlying capability for unpaced operations such as evidence capture.
func (i *Interactor) Page() browser.Page { return i.page }

// WithLogger returns a copy that logs through logger.
func (i *Interactor) WithLogger(logger *zap.Logger) *Interactor {
	cp := *i
	cp.logger = logger.Named("interaction")
	return &cp
}

func (i *Interactor) throttle(ctx context.Context) error {
	if i.layer.limiter == nil {
		return nil
	}
	if err := i.layer.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("action rate limiter: %w", err)
	}
	return nil
}

// settle sleeps after a successful action.
func (i *Interactor) settle(ctx context.Context, w Window) error {
	if w.Zero() {
		return nil
	}
	return i.page.Wait(ctx, i.layer.draw(w))
}

// Navigate loads url. Navigation is not paced.
func (i *Interactor) Navigate(ctx context.Context, url string) error {
	if err := i.throttle(ctx); err != nil {
		return err
	}
	i.logger.Info("Navigating.", zap.String("url", url))
	return i.page.Navigate(ctx, url)
}

// Fill types value into the field matched by selector.
func (i *Interactor) Fill(ctx context.Context, selector, value string) error {
	if err := i.throttle(ctx); err != nil {
		return err
	}
	i.logger.Debug("Filling field.", zap.String("selector", selector), zap.String("value", value))
	if err := i.page.Fill(ctx, selector, value); err != nil {
		return err
	}
	return i.settle(ctx, i.layer.pacing.Fill)
}

// Click clicks the element matched by selector.
func (i *Interactor) Click(ctx context.Context, selector string) error {
	if err := i.throttle(ctx); err != nil {
		return err
	}
	i.logger.Debug("Clicking.", zap.String("selector", selector))
	if err := i.page.Click(ctx, selector); err != nil {
		return err
	}
	return i.settle(ctx, i.layer.pacing.Click)
}

// ClickElement clicks a handle obtained from an earlier query. label only feeds the log.
func (i *Interactor) ClickElement(ctx context.Context, el browser.Element, label string) error {
	if err := i.throttle(ctx); err != nil {
		return err
	}
	i.logger.Debug("Clicking element.", zap.String("element", label))
	if err := el.Click(ctx); err != nil {
		return err
	}
	return i.settle(ctx, i.layer.pacing.Click)
}

// WaitFor blocks until selector is visible, bounded by timeout when positive.
func (i *Interactor) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	i.logger.Debug("Waiting for element.", zap.String("selector", selector), zap.Duration("timeout", timeout))
	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := i.page.WaitFor(waitCtx, selector); err != nil {
		return err
	}
	return i.settle(ctx, i.layer.pacing.WaitFor)
}

// ReadText returns the text of the element matched by selector.
func (i *Interactor) ReadText(ctx context.Context, selector string) (string, error) {
	text, err := i.page.ReadText(ctx, selector)
	if err != nil {
		return "", err
	}
	i.logger.Debug("Read text.", zap.String("selector", selector), zap.String("text", text))
	if err := i.settle(ctx, i.layer.pacing.Read); err != nil {
		return "", err
	}
	return text, nil
}

// SelectOption picks the option whose visible label is label.
func (i *Interactor) SelectOption(ctx context.Context, selector, label string) error {
	if err := i.throttle(ctx); err != nil {
		return err
	}
	i.logger.Debug("Selecting option.", zap.String("selector", selector), zap.String("label", label))
	if err := i.page.SelectOption(ctx, selector, label); err != nil {
		return err
	}
	return i.settle(ctx, i.layer.pacing.Click)
}

// Check ticks the checkbox or radio matched by selector.
func (i *Interactor) Check(ctx context.Context, selector string) error {
	if err := i.throttle(ctx); err != nil {
		return err
	}
	i.logger.Debug("Checking.", zap.String("selector", selector))
	if err := i.page.Check(ctx, selector); err != nil {
		return err
	}
	return i.settle(ctx, i.layer.pacing.Click)
}

// Query returns the first match for selector without pacing.
func (i *Interactor) Query(ctx context.Context, selector string) (browser.Element, error) {
	return i.page.QueryOne(ctx, selector)
}

// QueryAll returns every match for selector without pacing.
func (i *Interactor) QueryAll(ctx context.Context, selector string) ([]browser.Element, error) {
	return i.page.QueryAll(ctx, selector)
}

// Pause waits for a delay drawn from w, e.g. after dismissing a popup.
func (i *Interactor) Pause(ctx context.Context, w Window) error {
	return i.settle(ctx, w)
}

// PopupPause waits for the configured popup window.
func (i *Interactor) PopupPause(ctx context.Context) error {
	return i.settle(ctx, i.layer.pacing.Popup)
}
