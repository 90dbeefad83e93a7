package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/neboloop/netcapture/internal/capture"
)

// ErrClosed is returned by every Driver method after Close.
var ErrClosed = errors.New("browser session is closed")

// ActionResult is the result of a browser action.
type ActionResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	URL     string `json:"url,omitempty"`
}

// NavigateOptions configures navigation.
type NavigateOptions struct {
	URL     string
	Timeout time.Duration
}

// WaitOptions configures waiting for an element.
type WaitOptions struct {
	Selector string
	// Visible waits for the element to be visible, not just attached.
	Visible bool
	Timeout time.Duration
}

// ClickOptions configures click actions.
type ClickOptions struct {
	Selector string
	Timeout  time.Duration
}

// TypeOptions configures type actions.
type TypeOptions struct {
	Selector string
	Text     string
	Delay    time.Duration // Delay between keystrokes
	Clear    bool          // Clear the field first
	Timeout  time.Duration
}

// Driver is a live browser session. Selectors are CSS selectors. All waits are
// bounded by the option timeout (DefaultActionTimeout when zero) and by ctx.
type Driver interface {
	// EnableNetwork turns on network event capture for the session. Entries are
	// only queued for Drain after it has been called.
	EnableNetwork(ctx context.Context) error

	// Drain returns every performance-log entry queued since the last call.
	Drain(ctx context.Context) ([]capture.Entry, error)

	Navigate(ctx context.Context, opts NavigateOptions) (*ActionResult, error)
	WaitFor(ctx context.Context, opts WaitOptions) (*ActionResult, error)
	Type(ctx context.Context, opts TypeOptions) (*ActionResult, error)
	Click(ctx context.Context, opts ClickOptions) (*ActionResult, error)

	// Present reports whether selector appears within timeout. A timeout is not an error.
	Present(ctx context.Context, selector string, timeout time.Duration) (bool, error)

	CurrentURL(ctx context.Context) (string, error)

	// OpenTab opens a new tab, makes it current and navigates it to url.
	OpenTab(ctx context.Context, url string) (*ActionResult, error)

	// SwitchBack makes the previously current tab current again.
	SwitchBack(ctx context.Context) error

	Close() error
}

var _ capture.Source = Driver(nil)

// Open starts a browser session with the configured driver.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (Driver, error) {
	if logger == nil {
		logger = slog.Default()
	}
	resolved, err := ResolveConfig(cfg)
	if err != nil {
		return nil, err
	}

	logger = logger.With("component", "browser", "driver", resolved.Driver)
	logger.Info("starting browser",
		"executable", resolved.ExecPath(),
		"headless", resolved.Headless,
		"cdp_url", resolved.CDPURL,
	)

	var d Driver
	switch resolved.Driver {
	case DriverPlaywright:
		d, err = openPlaywright(ctx, resolved, logger)
	default:
		d, err = openChromedp(ctx, resolved, logger)
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

func timeoutOr(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// sleep waits d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func requireSelector(action, selector string) error {
	if selector == "" {
		return fmt.Errorf("selector is required for %s action", action)
	}
	return nil
}
