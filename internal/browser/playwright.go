package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"

	"github.com/neboloop/netcapture/internal/capture"
)

// webviewPlaywright tags entries queued by the playwright driver.
const webviewPlaywright = "playwright"

// pwDriver drives Chromium through playwright-go.
type pwDriver struct {
	mu sync.Mutex

	cfg    *ResolvedConfig
	logger *slog.Logger
	log    *perfLog

	pw       *playwright.Playwright
	browser  playwright.Browser
	bctx     playwright.BrowserContext
	attached bool // connected over CDP; the browser is not ours to close

	pages   []playwright.Page
	current int
	closed  bool
}

func openPlaywright(_ context.Context, cfg *ResolvedConfig, logger *slog.Logger) (*pwDriver, error) {
	// Browsers are only downloaded when nothing local can be used.
	skipBrowsers := cfg.ExecPath() != "" || cfg.CDPURL != ""
	if err := playwright.Install(&playwright.RunOptions{
		Browsers:            []string{"chromium"},
		SkipInstallBrowsers: skipBrowsers,
	}); err != nil {
		return nil, fmt.Errorf("failed to install playwright: %w", err)
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	d := &pwDriver{
		cfg:    cfg,
		logger: logger,
		log:    newPerfLog(logger),
		pw:     pw,
	}

	if cfg.CDPURL != "" {
		d.browser, err = pw.Chromium.ConnectOverCDP(cfg.CDPURL)
		d.attached = true
	} else {
		opts := playwright.BrowserTypeLaunchOptions{
			Headless:          playwright.Bool(cfg.Headless),
			Args:              launchArgs(cfg),
			IgnoreDefaultArgs: []string{"--enable-automation"},
		}
		if path := cfg.ExecPath(); path != "" {
			opts.ExecutablePath = playwright.String(path)
		}
		d.browser, err = pw.Chromium.Launch(opts)
	}
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	if d.attached && len(d.browser.Contexts()) > 0 {
		d.bctx = d.browser.Contexts()[0]
	} else {
		ctxOpts := playwright.BrowserNewContextOptions{
			Viewport: &playwright.Size{Width: cfg.WindowWidth, Height: cfg.WindowHeight},
		}
		if cfg.UserAgent != "" {
			ctxOpts.UserAgent = playwright.String(cfg.UserAgent)
		}
		d.bctx, err = d.browser.NewContext(ctxOpts)
		if err != nil {
			d.shutdown()
			return nil, fmt.Errorf("failed to create browser context: %w", err)
		}
	}

	d.bctx.OnRequest(func(r playwright.Request) {
		d.log.request(webviewPlaywright, uuid.NewString(), r.URL(), r.Method(), r.Headers())
	})
	d.bctx.OnResponse(func(r playwright.Response) {
		d.log.response(webviewPlaywright, "", r.URL(), int64(r.Status()), r.Headers()["content-type"])
	})

	page, err := d.newPage()
	if err != nil {
		d.shutdown()
		return nil, err
	}
	d.pages = []playwright.Page{page}

	logger.Info("playwright browser started", "attached", d.attached)
	return d, nil
}

func (d *pwDriver) newPage() (playwright.Page, error) {
	page, err := d.bctx.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	page.OnLoad(func(playwright.Page) {
		d.log.loaded(webviewPlaywright)
	})
	page.SetDefaultNavigationTimeout(float64(d.cfg.PageLoadTimeout.Milliseconds()))
	return page, nil
}

func (d *pwDriver) page() (playwright.Page, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}
	return d.pages[d.current], nil
}

func (d *pwDriver) locator(selector string) (playwright.Locator, error) {
	page, err := d.page()
	if err != nil {
		return nil, err
	}
	return page.Locator(selector).First(), nil
}

// ms converts a timeout for playwright, which counts milliseconds.
func ms(d time.Duration) *float64 {
	return playwright.Float(float64(d.Milliseconds()))
}

// guard maps playwright failures after ctx ended to the ctx error. playwright-go
// calls are not context aware, so ctx is checked on both sides of each call.
func guard(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

func (d *pwDriver) EnableNetwork(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := d.page(); err != nil {
		return err
	}
	d.log.enable()
	d.logger.Info("network monitoring enabled")
	return nil
}

func (d *pwDriver) Drain(_ context.Context) ([]capture.Entry, error) {
	if _, err := d.page(); err != nil {
		return nil, err
	}
	return d.log.drain(), nil
}

func (d *pwDriver) Navigate(ctx context.Context, opts NavigateOptions) (*ActionResult, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("URL is required for navigate action")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	page, err := d.page()
	if err != nil {
		return nil, err
	}

	_, err = page.Goto(opts.URL, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateLoad,
		Timeout:   ms(timeoutOr(opts.Timeout, d.cfg.PageLoadTimeout)),
	})
	if err != nil {
		return nil, guard(ctx, fmt.Errorf("navigation failed: %w", err))
	}
	return &ActionResult{
		Success: true,
		Message: fmt.Sprintf("Navigated to %s", opts.URL),
		URL:     page.URL(),
	}, nil
}

func (d *pwDriver) WaitFor(ctx context.Context, opts WaitOptions) (*ActionResult, error) {
	if err := requireSelector("wait", opts.Selector); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	loc, err := d.locator(opts.Selector)
	if err != nil {
		return nil, err
	}

	state := playwright.WaitForSelectorStateAttached
	if opts.Visible {
		state = playwright.WaitForSelectorStateVisible
	}
	err = loc.WaitFor(playwright.LocatorWaitForOptions{
		State:   state,
		Timeout: ms(timeoutOr(opts.Timeout, DefaultActionTimeout)),
	})
	if err != nil {
		return nil, guard(ctx, fmt.Errorf("wait for %s failed: %w", opts.Selector, err))
	}
	return &ActionResult{Success: true, Message: fmt.Sprintf("Found %s", opts.Selector)}, nil
}

func (d *pwDriver) Type(ctx context.Context, opts TypeOptions) (*ActionResult, error) {
	if err := requireSelector("type", opts.Selector); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	loc, err := d.locator(opts.Selector)
	if err != nil {
		return nil, err
	}
	timeout := ms(timeoutOr(opts.Timeout, DefaultActionTimeout))

	if opts.Clear {
		if err := loc.Clear(playwright.LocatorClearOptions{Timeout: timeout}); err != nil {
			return nil, guard(ctx, fmt.Errorf("clear failed: %w", err))
		}
	}

	typeOpts := playwright.LocatorTypeOptions{Timeout: timeout}
	if opts.Delay > 0 {
		typeOpts.Delay = ms(opts.Delay)
	}
	if err := loc.Type(opts.Text, typeOpts); err != nil {
		return nil, guard(ctx, fmt.Errorf("type failed: %w", err))
	}
	return &ActionResult{Success: true, Message: fmt.Sprintf("Typed into %s", opts.Selector)}, nil
}

func (d *pwDriver) Click(ctx context.Context, opts ClickOptions) (*ActionResult, error) {
	if err := requireSelector("click", opts.Selector); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	loc, err := d.locator(opts.Selector)
	if err != nil {
		return nil, err
	}
	if err := loc.Click(playwright.LocatorClickOptions{
		Timeout: ms(timeoutOr(opts.Timeout, DefaultActionTimeout)),
	}); err != nil {
		return nil, guard(ctx, fmt.Errorf("click failed: %w", err))
	}
	return &ActionResult{Success: true, Message: fmt.Sprintf("Clicked %s", opts.Selector)}, nil
}

func (d *pwDriver) Present(ctx context.Context, selector string, timeout time.Duration) (bool, error) {
	if err := requireSelector("present", selector); err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	loc, err := d.locator(selector)
	if err != nil {
		return false, err
	}
	err = loc.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateAttached,
		Timeout: ms(timeoutOr(timeout, DefaultActionTimeout)),
	})
	switch {
	case err == nil:
		return true, nil
	case ctx.Err() != nil:
		return false, ctx.Err()
	case errors.Is(err, playwright.ErrTimeout):
		return false, nil
	default:
		return false, err
	}
}

func (d *pwDriver) CurrentURL(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	page, err := d.page()
	if err != nil {
		return "", err
	}
	return page.URL(), nil
}

func (d *pwDriver) OpenTab(ctx context.Context, url string) (*ActionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := d.page(); err != nil {
		return nil, err
	}
	page, err := d.newPage()
	if err != nil {
		return nil, fmt.Errorf("open tab: %w", err)
	}
	if err := page.BringToFront(); err != nil {
		d.logger.Debug("bring tab to front failed", "error", err)
	}

	d.mu.Lock()
	prev := d.current
	d.pages = append(d.pages, page)
	d.current = len(d.pages) - 1
	d.mu.Unlock()
	d.logger.Info("switched to new tab", "tab", d.current)

	if url == "" {
		return &ActionResult{Success: true, Message: "Opened blank tab"}, nil
	}
	result, err := d.Navigate(ctx, NavigateOptions{URL: url})
	if err != nil {
		d.dropPage(page, prev)
		return nil, err
	}
	return result, nil
}

// dropPage closes a page whose first navigation failed and makes prev current again.
func (d *pwDriver) dropPage(page playwright.Page, prev int) {
	d.mu.Lock()
	if i := slices.Index(d.pages, page); i > 0 {
		d.pages = slices.Delete(d.pages, i, i+1)
	}
	d.current = min(prev, len(d.pages)-1)
	d.mu.Unlock()

	if err := page.Close(); err != nil {
		d.logger.Debug("close failed tab", "error", err)
	}
}

func (d *pwDriver) SwitchBack(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	if d.current > 0 {
		d.current--
	}
	if err := d.pages[d.current].BringToFront(); err != nil {
		d.logger.Debug("bring tab to front failed", "error", err)
	}
	d.logger.Info("switched back to tab", "tab", d.current)
	return nil
}

func (d *pwDriver) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	err := d.shutdown()
	d.logger.Info("browser closed")
	return err
}

func (d *pwDriver) shutdown() error {
	var errs []error
	if d.bctx != nil && !d.attached {
		errs = append(errs, d.bctx.Close())
	}
	if d.browser != nil {
		errs = append(errs, d.browser.Close())
	}
	errs = append(errs, d.pw.Stop())
	return errors.Join(errs...)
}
