package fakepage

import (
	"context"
	"fmt"
	"sync"

	"github.com/xkilldash9x/flightscout/internal/browser"
)

// Element is a scripted node. Children are keyed by the selector used to find them.
type Element struct {
	mu sync.Mutex

	name     string
	text     string
	attrs    map[string]string
	children map[string]*Element
	onClick  func()
	clickErr error

	page    *Page
	backing string
}

var _ browser.Element = (*Element)(nil)

// NewElement returns a node identified by name in the journal.
func NewElement(name string) *Element {
	return &Element{
		name:     name,
		attrs:    make(map[string]string),
		children: make(map[string]*Element),
	}
}

// WithText sets the node text.
func (e *Element) WithText(text string) *Element {
	e.SetText(text)
	return e
}

// WithAttr sets an attribute.
func (e *Element) WithAttr(name, value string) *Element {
	e.SetAttribute(name, value)
	return e
}

// WithChild attaches child under selector.
func (e *Element) WithChild(selector string, child *Element) *Element {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.children[selector] = child
	return e
}

// WithClick runs hook on every click.
func (e *Element) WithClick(hook func()) *Element {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onClick = hook
	return e
}

// FailClick makes Click return err.
func (e *Element) FailClick(err error) *Element {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clickErr = err
	return e
}

// SetText replaces the node text.
func (e *Element) SetText(text string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.text = text
}

// SetAttribute replaces one attribute value.
func (e *Element) SetAttribute(name, value string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.attrs[name] = value
}

// Name returns the journal name.
func (e *Element) Name() string { return e.name }

func (e *Element) Text(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if e.backing != "" && e.page != nil {
		e.page.mu.Lock()
		defer e.page.mu.Unlock()
		return e.page.texts[e.backing], nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.text, nil
}

func (e *Element) Attribute(ctx context.Context, name string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.attrs[name]
	return v, ok, nil
}

func (e *Element) Click(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.page != nil {
		e.page.mu.Lock()
		e.page.record(OpElementClick, e.name, "")
		e.page.mu.Unlock()
	}
	e.mu.Lock()
	hook, clickErr := e.onClick, e.clickErr
	e.mu.Unlock()
	if clickErr != nil {
		return clickErr
	}
	if hook != nil {
		hook()
	}
	return nil
}

func (e *Element) Query(ctx context.Context, selector string) (browser.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	child, ok := e.children[selector]
	e.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s inside %s", browser.ErrNoSuchElement, selector, e.name)
	}
	child.adopt(e.page)
	return child, nil
}

func (e *Element) adopt(p *Page) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.page == nil {
		e.page = p
	}
}
