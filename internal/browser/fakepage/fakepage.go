// Package fakepage provides a scripted, in-memory browser.Page for exercising
// the search workflow without Chrome. Nothing is rendered: tests declare which
// selectors exist, what text they show, and what happens when they are clicked.
package fakepage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xkilldash9x/flightscout/internal/browser"
)

// Operation names recorded in the journal.
const (
	OpNavigate     = "navigate"
	OpFill         = "fill"
	OpClick        = "click"
	OpWaitFor      = "wait_for"
	OpWait         = "wait"
	OpReadText     = "read_text"
	OpQueryOne     = "query_one"
	OpQueryAll     = "query_all"
	OpSelect       = "select"
	OpCheck        = "check"
	OpScreenshot   = "screenshot"
	OpHTML         = "html"
	OpElementClick = "element_click"
)

// Call is one journal entry.
type Call struct {
	Op       string
	Selector string
	Value    string
}

// Page is a scripted browser.Page. The zero value is not usable; call New.
type Page struct {
	mu sync.Mutex

	present  map[string]bool
	texts    map[string]string
	elements map[string][]*Element
	hooks    map[string]func()
	failures map[string]error

	filled   map[string]string
	selected map[string]string
	checked  map[string]bool

	url        string
	html       string
	screenshot []byte
	shotErr    error

	calls []Call
	waits []time.Duration
}

var _ browser.Page = (*Page)(nil)

// New returns an empty page.
func New() *Page {
	return &Page{
		present:    make(map[string]bool),
		texts:      make(map[string]string),
		elements:   make(map[string][]*Element),
		hooks:      make(map[string]func()),
		failures:   make(map[string]error),
		filled:     make(map[string]string),
		selected:   make(map[string]string),
		checked:    make(map[string]bool),
		html:       "<html><body></body></html>",
		screenshot: []byte("\x89PNG fake"),
	}
}

// --- scripting ---

// Present marks selectors as existing and visible.
func (p *Page) Present(selectors ...string) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range selectors {
		p.present[s] = true
	}
	return p
}

// Remove makes a selector disappear, including its text and elements.
func (p *Page) Remove(selector string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.present, selector)
	delete(p.texts, selector)
	delete(p.elements, selector)
}

// SetText sets the text shown by selector and marks it present.
func (p *Page) SetText(selector, text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.present[selector] = true
	p.texts[selector] = text
}

// SetElements registers the nodes returned for selector.
func (p *Page) SetElements(selector string, els ...*Element) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.present[selector] = true
	for _, el := range els {
		el.adopt(p)
	}
	p.elements[selector] = els
}

// OnClick runs hook after every successful click on selector.
func (p *Page) OnClick(selector string, hook func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.present[selector] = true
	p.hooks[selector] = hook
}

// FailOn makes every operation targeting selector return err.
func (p *Page) FailOn(selector string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures[selector] = err
}

// SetHTML sets the document returned by HTML.
func (p *Page) SetHTML(html string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.html = html
}

// FailScreenshot makes Screenshot return err.
func (p *Page) FailScreenshot(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shotErr = err
}

// --- inspection ---

// Calls returns a copy of the journal.
func (p *Page) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Call, len(p.calls))
	copy(out, p.calls)
	return out
}

// CallsOf returns journal entries for a single operation.
func (p *Page) CallsOf(op string) []Call {
	var out []Call
	for _, c := range p.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Waits returns every duration passed to Wait.
func (p *Page) Waits() []time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]time.Duration, len(p.waits))
	copy(out, p.waits)
	return out
}

// Filled returns the value last filled into selector.
func (p *Page) Filled(selector string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.filled[selector]
}

// Selected returns the option label last selected in selector.
func (p *Page) Selected(selector string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.selected[selector]
}

// Checked reports whether selector was checked.
func (p *Page) Checked(selector string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.checked[selector]
}

// --- browser.Page ---

func (p *Page) record(op, selector, value string) {
	p.calls = append(p.calls, Call{Op: op, Selector: selector, Value: value})
}

// begin records the call and reports the scripted failure or absence for selector.
func (p *Page) begin(ctx context.Context, op, selector, value string, mustExist bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record(op, selector, value)
	if err := ctx.Err(); err != nil {
		return err
	}
	if err, ok := p.failures[selector]; ok {
		return err
	}
	if mustExist && !p.present[selector] {
		return fmt.Errorf("%w: %s", browser.ErrNoSuchElement, selector)
	}
	return nil
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := p.begin(ctx, OpNavigate, url, "", false); err != nil {
		return err
	}
	p.mu.Lock()
	p.url = url
	p.mu.Unlock()
	return nil
}

func (p *Page) Fill(ctx context.Context, selector, value string) error {
	if err := p.begin(ctx, OpFill, selector, value, true); err != nil {
		return err
	}
	p.mu.Lock()
	p.filled[selector] = value
	p.mu.Unlock()
	return nil
}

func (p *Page) Click(ctx context.Context, selector string) error {
	if err := p.begin(ctx, OpClick, selector, "", true); err != nil {
		return err
	}
	p.runHook(selector)
	return nil
}

func (p *Page) runHook(selector string) {
	p.mu.Lock()
	hook := p.hooks[selector]
	p.mu.Unlock()
	if hook != nil {
		hook()
	}
}

// WaitFor succeeds immediately for present selectors. Absent selectors behave
// like an expired wait and return context.DeadlineExceeded without blocking.
func (p *Page) WaitFor(ctx context.Context, selector string) error {
	if err := p.begin(ctx, OpWaitFor, selector, "", false); err != nil {
		return err
	}
	p.mu.Lock()
	ok := p.present[selector]
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("waiting for %s: %w", selector, context.DeadlineExceeded)
	}
	return nil
}

// Wait records d without sleeping.
func (p *Page) Wait(ctx context.Context, d time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record(OpWait, "", d.String())
	p.waits = append(p.waits, d)
	return ctx.Err()
}

func (p *Page) ReadText(ctx context.Context, selector string) (string, error) {
	if err := p.begin(ctx, OpReadText, selector, "", true); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if text, ok := p.texts[selector]; ok {
		return text, nil
	}
	if els := p.elements[selector]; len(els) > 0 {
		return els[0].text, nil
	}
	return "", nil
}

func (p *Page) QueryOne(ctx context.Context, selector string) (browser.Element, error) {
	if err := p.begin(ctx, OpQueryOne, selector, "", true); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if els := p.elements[selector]; len(els) > 0 {
		return els[0], nil
	}
	return p.textElement(selector), nil
}

// textElement synthesizes a handle for a selector scripted only with SetText or Present.
func (p *Page) textElement(selector string) *Element {
	el := NewElement(selector).WithText(p.texts[selector])
	el.page = p
	el.backing = selector
	return el
}

func (p *Page) QueryAll(ctx context.Context, selector string) ([]browser.Element, error) {
	if err := p.begin(ctx, OpQueryAll, selector, "", false); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	els := p.elements[selector]
	out := make([]browser.Element, 0, len(els))
	for _, el := range els {
		out = append(out, el)
	}
	if len(out) == 0 && p.present[selector] {
		out = append(out, p.textElement(selector))
	}
	return out, nil
}

func (p *Page) SelectOption(ctx context.Context, selector, label string) error {
	if err := p.begin(ctx, OpSelect, selector, label, true); err != nil {
		return err
	}
	p.mu.Lock()
	p.selected[selector] = label
	p.mu.Unlock()
	return nil
}

func (p *Page) Check(ctx context.Context, selector string) error {
	if err := p.begin(ctx, OpCheck, selector, "", true); err != nil {
		return err
	}
	p.mu.Lock()
	p.checked[selector] = true
	p.mu.Unlock()
	p.runHook(selector)
	return nil
}

func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	if err := p.begin(ctx, OpScreenshot, "", "", false); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.shotErr != nil {
		return nil, p.shotErr
	}
	return append([]byte(nil), p.screenshot...), nil
}

func (p *Page) HTML(ctx context.Context) (string, error) {
	if err := p.begin(ctx, OpHTML, "", "", false); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.html, nil
}

func (p *Page) URL(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}
