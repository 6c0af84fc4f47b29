package interfaces

import (
	"context"
	"time"
)

// Page is a live browser tab bound to one navigation. Pages are checked out
// from the pool and must be released with Close when the caller is done.
type Page interface {
	// Navigate loads the given URL and waits for the page to settle
	Navigate(ctx context.Context, url string) error

	// HTML returns the rendered document markup
	HTML(ctx context.Context) (string, error)

	// EvaluateInPage runs a JavaScript expression and decodes the result into out
	EvaluateInPage(ctx context.Context, expression string, out interface{}) error

	// IsVisible reports whether the first node matching selector is visible
	IsVisible(ctx context.Context, selector string) (bool, error)

	// Click clicks the first node matching selector
	Click(ctx context.Context, selector string) error

	// WaitFor blocks until selector is visible or the timeout elapses
	WaitFor(ctx context.Context, selector string, timeout time.Duration) error

	// ScrollToBottom scrolls the page to trigger lazy-loaded content
	ScrollToBottom(ctx context.Context) error

	// CurrentURL returns the page's URL after redirects
	CurrentURL(ctx context.Context) (string, error)

	// Screenshot captures the full page as PNG
	Screenshot(ctx context.Context) ([]byte, error)

	// Close releases the page back to the pool
	Close() error
}

// BrowserService manages a capped pool of browser instances and hands out
// pages. AcquirePage blocks while the concurrent page cap is reached.
type BrowserService interface {
	Start(ctx context.Context) error
	AcquirePage(ctx context.Context) (Page, error)
	Stats() map[string]interface{}
	Shutdown() error
}
