// internal/browser/cdp/manager.go
package cdp

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/flightscout/internal/browser"
	"github.com/xkilldash9x/flightscout/internal/browser/stealth"
	"github.com/xkilldash9x/flightscout/internal/config"
	"github.com/xkilldash9x/flightscout/internal/session"
)

// ErrShutdown is returned by NewPage once the manager has been shut down.
var ErrShutdown = errors.New("browser manager is shut down")

// Manager owns the Chrome process. The process starts on the first NewPage
// call; every page is a separate tab in that process.
type Manager struct {
	cfg     config.BrowserConfig
	persona stealth.Persona
	logger  *zap.Logger

	mu              sync.Mutex
	allocatorCtx    context.Context
	allocatorCancel context.CancelFunc
	browserCtx      context.Context
	browserCancel   context.CancelFunc
	launched        bool
	closed          bool

	// wg tracks open pages for a graceful shutdown.
	wg sync.WaitGroup
}

// NewManager prepares a manager without starting Chrome.
func NewManager(cfg config.BrowserConfig, logger *zap.Logger) *Manager {
	m := &Manager{
		cfg:     cfg,
		persona: stealth.PersonaFromConfig(cfg),
		logger:  logger.Named("browser_manager"),
	}
	m.logger.Debug("Browser manager created (launch deferred).", zap.Bool("headless", cfg.Headless))
	return m
}

// allocatorFlags are the Chrome switches layered over chromedp's defaults.
// A false value removes a default switch.
func allocatorFlags(cfg config.BrowserConfig, goos string) map[string]interface{} {
	flags := map[string]interface{}{
		"headless":                  cfg.Headless,
		"enable-automation":         false,
		"disable-blink-features":    "AutomationControlled",
		"disable-extensions":        true,
		"ignore-certificate-errors": cfg.IgnoreTLSErrors,
	}
	if cfg.Headless {
		flags["disable-gpu"] = true
	}
	if cfg.Proxy.Enabled && cfg.Proxy.Address != "" {
		flags["proxy-server"] = cfg.Proxy.Address
	}
	if w, h := cfg.Viewport["width"], cfg.Viewport["height"]; w > 0 && h > 0 {
		flags["window-size"] = fmt.Sprintf("%d,%d", w, h)
	}
	if goos == "linux" {
		flags["no-sandbox"] = true
		flags["disable-dev-shm-usage"] = true
		flags["disable-setuid-sandbox"] = true
	}
	for _, arg := range cfg.Args {
		parts := strings.SplitN(arg, "=", 2)
		name := strings.TrimPrefix(parts[0], "--")
		if name == "" {
			continue
		}
		if len(parts) == 2 {
			flags[name] = parts[1]
		} else {
			flags[name] = true
		}
	}
	return flags
}

func (m *Manager) buildAllocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)

	flags := allocatorFlags(m.cfg, runtime.GOOS)
	names := make([]string, 0, len(flags))
	for name := range flags {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		opts = append(opts, chromedp.Flag(name, flags[name]))
	}
	return append(opts, chromedp.UserAgent(m.persona.UserAgent))
}

func (m *Manager) launchTimeout() time.Duration {
	if m.cfg.LaunchTimeout <= 0 {
		return 60 * time.Second
	}
	return m.cfg.LaunchTimeout
}

// firstRun calls run with target itself, never a derived context: chromedp
// binds the browser process or tab to the context of its first Run. The
// caller's ctx and the timeout are enforced by cancelling target instead,
// so on success target is left untouched.
func firstRun(ctx, target context.Context, cancelTarget context.CancelFunc, timeout time.Duration, run func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() { done <- run(target) }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		cancelTarget()
		<-done
		return fmt.Errorf("no response within %s: %w", timeout, context.DeadlineExceeded)
	case <-ctx.Done():
		cancelTarget()
		<-done
		return ctx.Err()
	}
}

// launch starts Chrome and confirms it answers before any page is handed out.
func (m *Manager) launch(ctx context.Context) error {
	if m.launched {
		return nil
	}
	m.logger.Info("Launching browser...", zap.Bool("headless", m.cfg.Headless))

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), m.buildAllocatorOptions()...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(m.logger.Sugar().Debugf),
		chromedp.WithErrorf(m.logger.Sugar().Debugf),
	)

	// The first Run on the root context starts the process and ties it to that
	// context, so it runs on browserCtx itself.
	err := firstRun(ctx, browserCtx, browserCancel, m.launchTimeout(), func(runCtx context.Context) error {
		return chromedp.Run(runCtx, chromedp.Navigate("about:blank"))
	})
	if err != nil {
		browserCancel()
		allocCancel()
		return fmt.Errorf("browser failed to start or respond: %w", err)
	}

	m.allocatorCtx, m.allocatorCancel = allocCtx, allocCancel
	m.browserCtx, m.browserCancel = browserCtx, browserCancel
	m.launched = true
	m.logger.Info("Browser launched successfully and is responsive.")
	return nil
}

// NewPage opens a fresh tab with the stealth persona applied.
func (m *Manager) NewPage(ctx context.Context) (*Page, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrShutdown
	}
	if err := m.launch(ctx); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	tabCtx, tabCancel := chromedp.NewContext(m.browserCtx)
	m.wg.Add(1)
	m.mu.Unlock()

	p := newPage(tabCtx, tabCancel, m.logger, m.wg.Done)

	var setup chromedp.Tasks
	if m.cfg.Stealth {
		setup = stealth.Apply(m.persona, m.cfg.Headers, m.logger)
	} else if len(m.cfg.Headers) > 0 {
		setup = chromedp.Tasks{
			network.Enable(),
			network.SetExtraHTTPHeaders(stealth.Headers(stealth.Persona{}, m.cfg.Headers)),
		}
	}
	// The tab's first Run attaches the target for the lifetime of tabCtx.
	err := firstRun(ctx, tabCtx, tabCancel, m.launchTimeout(), func(runCtx context.Context) error {
		return chromedp.Run(runCtx, setup...)
	})
	if err != nil {
		_ = p.Close(session.Detach(ctx))
		return nil, fmt.Errorf("failed to prepare browser tab: %w", err)
	}
	m.logger.Debug("Browser tab opened.")
	return p, nil
}

// Launcher adapts the manager for the session envelope.
func (m *Manager) Launcher() session.Launcher {
	return session.LauncherFunc(func(ctx context.Context) (browser.Page, session.ReleaseFunc, error) {
		p, err := m.NewPage(ctx)
		if err != nil {
			return nil, nil, err
		}
		return p, p.Close, nil
	})
}

// Shutdown waits for open pages to close, bounded by ctx, then stops Chrome.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	launched := m.launched
	m.mu.Unlock()

	if !launched {
		m.logger.Debug("Browser never launched, nothing to shut down.")
		return nil
	}
	m.logger.Info("Browser manager shutdown initiated. Waiting for open pages...")

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		m.logger.Debug("All pages closed.")
	case <-ctx.Done():
		m.logger.Warn("Shutdown deadline exceeded. Forcing browser termination.", zap.Error(ctx.Err()))
	}

	err := chromedp.Cancel(m.browserCtx)
	m.browserCancel()
	m.allocatorCancel()
	<-m.allocatorCtx.Done()
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("closing browser: %w", err)
	}
	m.logger.Info("Browser process stopped.")
	return nil
}
