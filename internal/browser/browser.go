// Package browser wraps headless-Chrome automation behind a small
// session interface so the login and registration workflows can be
// driven against a fake in tests without launching a real browser.
package browser

import (
	"context"
	"time"
)

// By selects the element lookup strategy for a Locator.
type By int

const (
	// ByQuery locates elements with a CSS selector.
	ByQuery By = iota
	// ByID locates elements by their id attribute.
	ByID
	// BySearch locates elements with an XPath expression.
	BySearch
)

// Locator names one page element together with its lookup strategy.
type Locator struct {
	Sel string
	By  By
}

// Query builds a CSS selector locator.
func Query(sel string) Locator { return Locator{Sel: sel, By: ByQuery} }

// ID builds an id locator.
func ID(sel string) Locator { return Locator{Sel: sel, By: ByID} }

// Search builds an XPath locator.
func Search(expr string) Locator { return Locator{Sel: expr, By: BySearch} }

// Cookie is the subset of browser cookie state the workflows care about.
type Cookie struct {
	Name  string
	Value string
}

// Session is one isolated browser context. Commands within a session are
// strictly sequential; sessions share no state with each other. Every
// session must be closed on every exit path.
type Session interface {
	// Navigate loads url in the top-level frame and resets the current
	// frame to the top.
	Navigate(url string) error
	// WaitVisible blocks until the element is visible or the bounded wait
	// expires with context.DeadlineExceeded.
	WaitVisible(loc Locator, timeout time.Duration) error
	// Exists reports whether the element is present right now, without
	// waiting.
	Exists(loc Locator) (bool, error)
	Click(loc Locator) error
	Clear(loc Locator) error
	SendKeys(loc Locator, value string) error
	// Evaluate runs the JavaScript expression in the current frame and
	// unmarshals its result into out. Pass nil to discard the result.
	Evaluate(expr string, out any) error
	// Cookies returns all cookies of the browser context, across frames.
	Cookies() ([]Cookie, error)
	// SwitchFrame retargets subsequent commands at the frame whose URL
	// contains urlPart, waiting up to timeout for it to appear.
	SwitchFrame(urlPart string, timeout time.Duration) error
	// SwitchToTop retargets subsequent commands at the top-level frame.
	SwitchToTop()
	Sleep(d time.Duration)
	// Close releases the session and its browser resources. Safe to call
	// more than once.
	Close()
}

// Factory creates sessions. The production factory spawns or attaches
// to Chrome; tests substitute fakes.
type Factory interface {
	NewSession(ctx context.Context) (Session, error)
}
