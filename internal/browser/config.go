package browser

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config is the browser section of the netcapture config.
type Config struct {
	// Driver is "chromedp" (default) or "playwright".
	Driver string `json:"driver,omitempty" yaml:"driver,omitempty"`

	// ExecutablePath overrides auto-detection of Chrome.
	ExecutablePath string `json:"executablePath,omitempty" yaml:"executablePath,omitempty"`

	// CDPURL attaches the playwright driver to an already running browser.
	CDPURL string `json:"cdpUrl,omitempty" yaml:"cdpUrl,omitempty"`

	// Headless runs the browser without UI.
	Headless bool `json:"headless,omitempty" yaml:"headless,omitempty"`

	// NoSandbox disables Chrome sandbox (needed in some containers).
	NoSandbox bool `json:"noSandbox,omitempty" yaml:"noSandbox,omitempty"`

	PageLoadTimeout time.Duration `json:"pageLoadTimeout,omitempty" yaml:"pageLoadTimeout,omitempty"`
	UserAgent       string        `json:"userAgent,omitempty" yaml:"userAgent,omitempty"`
	WindowWidth     int           `json:"windowWidth,omitempty" yaml:"windowWidth,omitempty"`
	WindowHeight    int           `json:"windowHeight,omitempty" yaml:"windowHeight,omitempty"`
}

// ResolvedConfig is the browser configuration with defaults applied and the
// executable located.
type ResolvedConfig struct {
	Driver          string
	Executable      *BrowserExecutable
	CDPURL          string
	Headless        bool
	NoSandbox       bool
	PageLoadTimeout time.Duration
	UserAgent       string
	WindowWidth     int
	WindowHeight    int
}

// DefaultConfig returns the default browser configuration.
func DefaultConfig() Config {
	return Config{
		Driver:          DriverChromedp,
		NoSandbox:       true,
		PageLoadTimeout: DefaultPageLoadTimeout,
		WindowWidth:     DefaultWindowWidth,
		WindowHeight:    DefaultWindowHeight,
	}
}

// ResolveConfig applies defaults and validates cfg. The executable is looked up
// only for a locally launched browser; a nil Executable lets the driver fall back
// to its own discovery.
func ResolveConfig(cfg Config) (*ResolvedConfig, error) {
	resolved := &ResolvedConfig{
		Driver:          strings.ToLower(strings.TrimSpace(cfg.Driver)),
		CDPURL:          cfg.CDPURL,
		Headless:        cfg.Headless,
		NoSandbox:       cfg.NoSandbox,
		PageLoadTimeout: cfg.PageLoadTimeout,
		UserAgent:       cfg.UserAgent,
		WindowWidth:     cfg.WindowWidth,
		WindowHeight:    cfg.WindowHeight,
	}

	switch resolved.Driver {
	case "":
		resolved.Driver = DriverChromedp
	case DriverChromedp, DriverPlaywright:
	default:
		return nil, fmt.Errorf("unknown browser driver %q (valid: %s, %s)", cfg.Driver, DriverChromedp, DriverPlaywright)
	}

	if resolved.PageLoadTimeout <= 0 {
		resolved.PageLoadTimeout = DefaultPageLoadTimeout
	}
	if resolved.WindowWidth <= 0 {
		resolved.WindowWidth = DefaultWindowWidth
	}
	if resolved.WindowHeight <= 0 {
		resolved.WindowHeight = DefaultWindowHeight
	}

	if resolved.CDPURL != "" {
		if resolved.Driver != DriverPlaywright {
			return nil, fmt.Errorf("cdpUrl is only supported by the %s driver", DriverPlaywright)
		}
		if !isWebURL(resolved.CDPURL) {
			return nil, fmt.Errorf("invalid cdpUrl %q", resolved.CDPURL)
		}
		return resolved, nil
	}

	exe, err := FindChromeExecutable(cfg.ExecutablePath)
	if err != nil {
		return nil, err
	}
	resolved.Executable = exe
	return resolved, nil
}

// ExecPath is the located browser binary, or "" when discovery found nothing.
func (c *ResolvedConfig) ExecPath() string {
	if c.Executable == nil {
		return ""
	}
	return c.Executable.Path
}

func isWebURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
		return true
	}
	return false
}
