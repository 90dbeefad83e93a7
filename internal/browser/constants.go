// Package browser drives a Chromium session for the capture workflows and exposes
// its network activity as DevTools performance-log entries.
package browser

import "time"

// Driver implementations
const (
	// DriverChromedp talks CDP directly through chromedp. This is the default.
	DriverChromedp = "chromedp"

	// DriverPlaywright launches (or attaches to) Chromium through playwright-go.
	DriverPlaywright = "playwright"
)

const (
	// DefaultPageLoadTimeout bounds a navigation.
	DefaultPageLoadTimeout = 30 * time.Second

	// DefaultActionTimeout bounds waits, clicks and typing when the caller sets none.
	DefaultActionTimeout = 30 * time.Second

	DefaultWindowWidth  = 1366
	DefaultWindowHeight = 900

	// maxQueuedEntries caps undrained performance-log entries. Oldest go first.
	maxQueuedEntries = 10000
)
