// Package browser is the headless-browser collaborator. The collector only
// sees the Driver and Page interfaces; Playwright backs them in production.
package browser

import (
	"errors"
	"time"
)

// ErrUnavailable means no browser could be started. Callers run HTTP-only.
var ErrUnavailable = errors.New("browser unavailable")

// Driver opens pages on a running browser.
type Driver interface {
	NewPage() (Page, error)
	Close() error
}

// ResponseFunc receives a network response body. It runs off the page's
// event loop and must not block rendering.
type ResponseFunc func(url, body string)

// Page is one browser tab.
type Page interface {
	// Goto navigates and returns once the DOM content has loaded.
	Goto(url string, timeout time.Duration) error
	// WaitFor blocks until selector matches or timeout passes.
	WaitFor(selector string, timeout time.Duration) error
	// Scroll scrolls by the document height steps times, pausing between.
	Scroll(steps int, pause time.Duration)
	// ClickText clicks the first element with the given text.
	ClickText(text string, timeout time.Duration) error
	// Attr reads attribute name from the first element matching selector.
	Attr(selector, name string) (string, bool)
	Content() (string, error)
	Pause(d time.Duration)
	// OnResponse registers fn for responses whose URL satisfies match.
	OnResponse(match func(url string) bool, fn ResponseFunc)
	Close() error
}
