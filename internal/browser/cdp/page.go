// internal/browser/cdp/page.go
package cdp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/flightscout/internal/browser"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrNoSuchOption is returned when a select has no option with the requested label.
var ErrNoSuchOption = errors.New("select has no option with that label")

// Page drives a single Chrome tab through chromedp.
type Page struct {
	tabCtx    context.Context
	tabCancel context.CancelFunc
	logger    *zap.Logger
	onClose   func()

	closeOnce sync.Once
	closeErr  error
}

var (
	_ browser.Page   = (*Page)(nil)
	_ browser.Closer = (*Page)(nil)
)

func newPage(tabCtx context.Context, cancel context.CancelFunc, logger *zap.Logger, onClose func()) *Page {
	return &Page{tabCtx: tabCtx, tabCancel: cancel, logger: logger.Named("page"), onClose: onClose}
}

// runContext derives a context that carries the tab and honors ctx's deadline
// and cancellation. Cancelling it does not close the tab.
func (p *Page) runContext(ctx context.Context) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithCancel(p.tabCtx)
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		prev := cancel
		cancel = func() { cancelDeadline(); prev() }
	}
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	runCtx, cancel := p.runContext(ctx)
	defer cancel()
	if err := chromedp.Run(runCtx, actions...); err != nil {
		// Report the caller's context error rather than the derived one.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%v: %w", err, ctxErr)
		}
		return err
	}
	return nil
}

// nodes returns current matches without waiting for them to appear.
func (p *Page) nodes(ctx context.Context, selector string, opts ...chromedp.QueryOption) ([]*cdp.Node, error) {
	var nodes []*cdp.Node
	opts = append([]chromedp.QueryOption{chromedp.ByQueryAll, chromedp.AtLeast(0)}, opts...)
	if err := p.run(ctx, chromedp.Nodes(selector, &nodes, opts...)); err != nil {
		return nil, fmt.Errorf("querying %s: %w", selector, err)
	}
	return nodes, nil
}

func (p *Page) first(ctx context.Context, selector string) (*cdp.Node, error) {
	nodes, err := p.nodes(ctx, selector)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: %s", browser.ErrNoSuchElement, selector)
	}
	return nodes[0], nil
}

func ids(n *cdp.Node) []cdp.NodeID { return []cdp.NodeID{n.NodeID} }

func (p *Page) Navigate(ctx context.Context, url string) error {
	p.logger.Debug("Navigating", zap.String("url", url))
	return p.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

// Fill replaces the field's value by typing, so autocomplete widgets see key events.
func (p *Page) Fill(ctx context.Context, selector, value string) error {
	n, err := p.first(ctx, selector)
	if err != nil {
		return err
	}
	return p.run(ctx,
		chromedp.Focus(ids(n), chromedp.ByNodeID),
		chromedp.SetValue(ids(n), "", chromedp.ByNodeID),
		chromedp.SendKeys(ids(n), value, chromedp.ByNodeID),
	)
}

func (p *Page) Click(ctx context.Context, selector string) error {
	n, err := p.first(ctx, selector)
	if err != nil {
		return err
	}
	return p.run(ctx, chromedp.Click(ids(n), chromedp.ByNodeID))
}

func (p *Page) WaitFor(ctx context.Context, selector string) error {
	return p.run(ctx, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

func (p *Page) Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Page) ReadText(ctx context.Context, selector string) (string, error) {
	n, err := p.first(ctx, selector)
	if err != nil {
		return "", err
	}
	var text string
	if err := p.run(ctx, chromedp.Text(ids(n), &text, chromedp.ByNodeID)); err != nil {
		return "", err
	}
	return text, nil
}

func (p *Page) QueryOne(ctx context.Context, selector string) (browser.Element, error) {
	n, err := p.first(ctx, selector)
	if err != nil {
		return nil, err
	}
	return &element{page: p, node: n}, nil
}

func (p *Page) QueryAll(ctx context.Context, selector string) ([]browser.Element, error) {
	nodes, err := p.nodes(ctx, selector)
	if err != nil {
		return nil, err
	}
	out := make([]browser.Element, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, &element{page: p, node: n})
	}
	return out, nil
}

const selectByLabelJS = `(function(sel, label) {
	const el = document.querySelector(sel);
	if (!el) return "missing";
	const want = label.trim();
	const opt = Array.from(el.options || []).find(o => (o.label || o.text).trim() === want);
	if (!opt) return "no-option";
	el.value = opt.value;
	el.dispatchEvent(new Event("input", { bubbles: true }));
	el.dispatchEvent(new Event("change", { bubbles: true }));
	return "ok";
})(%s, %s)`

// SelectOption picks the option whose visible label matches label.
func (p *Page) SelectOption(ctx context.Context, selector, label string) error {
	sel, err := json.Marshal(selector)
	if err != nil {
		return err
	}
	lbl, err := json.Marshal(label)
	if err != nil {
		return err
	}
	var outcome string
	if err := p.run(ctx, chromedp.Evaluate(fmt.Sprintf(selectByLabelJS, sel, lbl), &outcome)); err != nil {
		return fmt.Errorf("selecting %q in %s: %w", label, selector, err)
	}
	switch outcome {
	case "ok":
		return nil
	case "missing":
		return fmt.Errorf("%w: %s", browser.ErrNoSuchElement, selector)
	default:
		return fmt.Errorf("%w: %q in %s", ErrNoSuchOption, label, selector)
	}
}

// Check clicks a checkbox or radio unless it is already checked.
func (p *Page) Check(ctx context.Context, selector string) error {
	n, err := p.first(ctx, selector)
	if err != nil {
		return err
	}
	var checked bool
	if err := p.run(ctx, chromedp.JavascriptAttribute(ids(n), "checked", &checked, chromedp.ByNodeID)); err != nil {
		return err
	}
	if checked {
		return nil
	}
	return p.run(ctx, chromedp.Click(ids(n), chromedp.ByNodeID))
}

// Screenshot captures the full page as PNG.
func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := p.run(ctx, chromedp.FullScreenshot(&buf, 100)); err != nil {
		return nil, err
	}
	return buf, nil
}

func (p *Page) HTML(ctx context.Context) (string, error) {
	var html string
	if err := p.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

func (p *Page) URL(ctx context.Context) (string, error) {
	var url string
	if err := p.run(ctx, chromedp.Location(&url)); err != nil {
		return "", err
	}
	return url, nil
}

// Close closes the tab. Later calls return the first result.
func (p *Page) Close(ctx context.Context) error {
	p.closeOnce.Do(func() {
		done := make(chan error, 1)
		go func() { done <- chromedp.Cancel(p.tabCtx) }()
		select {
		case err := <-done:
			if err != nil && !errors.Is(err, context.Canceled) {
				p.closeErr = fmt.Errorf("closing tab: %w", err)
			}
		case <-ctx.Done():
			p.closeErr = fmt.Errorf("closing tab: %w", ctx.Err())
		}
		p.tabCancel()
		if p.onClose != nil {
			p.onClose()
		}
		p.logger.Debug("Browser tab closed.")
	})
	return p.closeErr
}

// element wraps a node found by a query.
type element struct {
	page *Page
	node *cdp.Node
}

var _ browser.Element = (*element)(nil)

func (e *element) Text(ctx context.Context) (string, error) {
	var text string
	if err := e.page.run(ctx, chromedp.Text(ids(e.node), &text, chromedp.ByNodeID)); err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (e *element) Attribute(ctx context.Context, name string) (string, bool, error) {
	var (
		value string
		ok    bool
	)
	if name == "value" && isFormControl(e.node) {
		// The live property, not the markup attribute, reflects counter updates.
		if err := e.page.run(ctx, chromedp.Value(ids(e.node), &value, chromedp.ByNodeID)); err != nil {
			return "", false, err
		}
		return value, true, nil
	}
	if err := e.page.run(ctx, chromedp.AttributeValue(ids(e.node), name, &value, &ok, chromedp.ByNodeID)); err != nil {
		return "", false, err
	}
	return value, ok, nil
}

func isFormControl(n *cdp.Node) bool {
	switch strings.ToUpper(n.NodeName) {
	case "INPUT", "SELECT", "TEXTAREA":
		return true
	}
	return false
}

func (e *element) Click(ctx context.Context) error {
	return e.page.run(ctx, chromedp.Click(ids(e.node), chromedp.ByNodeID))
}

func (e *element) Query(ctx context.Context, selector string) (browser.Element, error) {
	nodes, err := e.page.nodes(ctx, selector, chromedp.FromNode(e.node))
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: %s", browser.ErrNoSuchElement, selector)
	}
	return &element{page: e.page, node: nodes[0]}, nil
}
