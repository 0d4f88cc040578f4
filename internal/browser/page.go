// internal/browser/page.go
package browser

import (
	"context"
	"errors"
	"time"
)

// ErrNoSuchElement is returned by lookups that match nothing.
var ErrNoSuchElement = errors.New("no element matches selector")

// Page is the capability set the search workflow needs from a browser tab.
// Selectors are opaque strings owned by configuration. Every blocking call
// honors the deadline carried by ctx.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Fill(ctx context.Context, selector, value string) error
	Click(ctx context.Context, selector string) error
	// WaitFor blocks until selector is visible or ctx expires.
	WaitFor(ctx context.Context, selector string) error
	Wait(ctx context.Context, d time.Duration) error
	ReadText(ctx context.Context, selector string) (string, error)
	// QueryOne returns the first match or ErrNoSuchElement.
	QueryOne(ctx context.Context, selector string) (Element, error)
	// QueryAll returns every match in document order; no match is not an error.
	QueryAll(ctx context.Context, selector string) ([]Element, error)
	SelectOption(ctx context.Context, selector, label string) error
	Check(ctx context.Context, selector string) error
	Screenshot(ctx context.Context) ([]byte, error)
	HTML(ctx context.Context) (string, error)
	URL(ctx context.Context) (string, error)
}

// Element is a handle to a node found by a Page query.
type Element interface {
	Text(ctx context.Context) (string, error)
	// Attribute reports the attribute value and whether it was present.
	Attribute(ctx context.Context, name string) (string, bool, error)
	Click(ctx context.Context) error
	// Query looks up the first descendant matching selector, or ErrNoSuchElement.
	Query(ctx context.Context, selector string) (Element, error)
}

// Closer is implemented by pages that own browser resources.
type Closer interface {
	Close(ctx context.Context) error
}
