package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/neboloop/netcapture/internal/capture"
)

type cdpTab struct {
	ctx    context.Context
	cancel context.CancelFunc
	id     atomic.Value // target.ID as string, set once the target exists
}

func (t *cdpTab) targetID() string {
	id, _ := t.id.Load().(string)
	return id
}

// cdpDriver drives Chrome over CDP with chromedp.
type cdpDriver struct {
	mu sync.Mutex

	cfg    *ResolvedConfig
	logger *slog.Logger
	log    *perfLog

	allocCancel context.CancelFunc
	tabs        []*cdpTab
	current     int
	closed      bool
}

func openChromedp(ctx context.Context, cfg *ResolvedConfig, logger *slog.Logger) (*cdpDriver, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight),
	)
	for name, v := range launchFlags(cfg) {
		opts = append(opts, chromedp.Flag(name, v))
	}
	if path := cfg.ExecPath(); path != "" {
		opts = append(opts, chromedp.ExecPath(path))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}

	// The browser outlives the ctx of the call that opened it; Close ends it.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...any) {
			logger.Debug(fmt.Sprintf(format, args...))
		}),
		chromedp.WithErrorf(func(format string, args ...any) {
			logger.Debug("cdp: " + fmt.Sprintf(format, args...))
		}),
	)

	d := &cdpDriver{
		cfg:         cfg,
		logger:      logger,
		log:         newPerfLog(logger),
		allocCancel: allocCancel,
	}

	tab := &cdpTab{ctx: browserCtx, cancel: browserCancel}
	if err := d.attach(ctx, tab); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start Chrome: %w", err)
	}
	d.tabs = []*cdpTab{tab}

	logger.Info("chrome started", "target", tab.targetID())
	return d, nil
}

// attach starts the tab's target, subscribes to its events and enables the
// Network and Page domains.
func (d *cdpDriver) attach(ctx context.Context, tab *cdpTab) error {
	chromedp.ListenTarget(tab.ctx, d.listener(tab))

	// The first Run starts the browser or target on the ctx it is given and
	// ties its lifetime to it, so it must get tab.ctx itself. The caller
	// cancels the tab when attach fails.
	done := make(chan error, 1)
	go func() {
		done <- chromedp.Run(tab.ctx, network.Enable(), page.Enable())
	}()

	timer := time.NewTimer(d.cfg.PageLoadTimeout)
	defer timer.Stop()
	select {
	case err := <-done:
		if err != nil {
			return err
		}
	case <-timer.C:
		return fmt.Errorf("attach timed out after %s", d.cfg.PageLoadTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}

	if c := chromedp.FromContext(tab.ctx); c != nil && c.Target != nil {
		tab.id.Store(string(c.Target.TargetID))
	}
	return nil
}

func (d *cdpDriver) listener(tab *cdpTab) func(ev any) {
	return func(ev any) {
		switch ev := ev.(type) {
		case *network.EventRequestWillBeSent:
			if ev.Request == nil {
				return
			}
			d.log.request(tab.targetID(), string(ev.RequestID), ev.Request.URL, ev.Request.Method, headerStrings(ev.Request.Headers))
		case *network.EventResponseReceived:
			if ev.Response == nil {
				return
			}
			d.log.response(tab.targetID(), string(ev.RequestID), ev.Response.URL, ev.Response.Status, ev.Response.MimeType)
		case *network.EventLoadingFinished:
			d.log.finished(tab.targetID(), string(ev.RequestID), ev.EncodedDataLength)
		case *page.EventLoadEventFired:
			d.log.loaded(tab.targetID())
		}
	}
}

func (d *cdpDriver) tab() (*cdpTab, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}
	return d.tabs[d.current], nil
}

// run executes actions on the current tab, bounded by timeout and by ctx.
func (d *cdpDriver) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	tab, err := d.tab()
	if err != nil {
		return err
	}
	runCtx, cancel := context.WithTimeout(tab.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err = chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (d *cdpDriver) EnableNetwork(ctx context.Context) error {
	if err := d.run(ctx, DefaultActionTimeout, network.Enable()); err != nil {
		return fmt.Errorf("enable network: %w", err)
	}
	d.log.enable()
	d.logger.Info("network monitoring enabled")
	return nil
}

func (d *cdpDriver) Drain(_ context.Context) ([]capture.Entry, error) {
	if _, err := d.tab(); err != nil {
		return nil, err
	}
	return d.log.drain(), nil
}

func (d *cdpDriver) Navigate(ctx context.Context, opts NavigateOptions) (*ActionResult, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("URL is required for navigate action")
	}
	timeout := timeoutOr(opts.Timeout, d.cfg.PageLoadTimeout)

	var current string
	err := d.run(ctx, timeout,
		chromedp.Navigate(opts.URL),
		chromedp.Location(&current),
	)
	if err != nil {
		return nil, fmt.Errorf("navigation failed: %w", err)
	}
	return &ActionResult{
		Success: true,
		Message: fmt.Sprintf("Navigated to %s", opts.URL),
		URL:     current,
	}, nil
}

func (d *cdpDriver) WaitFor(ctx context.Context, opts WaitOptions) (*ActionResult, error) {
	if err := requireSelector("wait", opts.Selector); err != nil {
		return nil, err
	}
	wait := chromedp.WaitReady(opts.Selector, chromedp.ByQuery)
	if opts.Visible {
		wait = chromedp.WaitVisible(opts.Selector, chromedp.ByQuery)
	}
	if err := d.run(ctx, timeoutOr(opts.Timeout, DefaultActionTimeout), wait); err != nil {
		return nil, fmt.Errorf("wait for %s failed: %w", opts.Selector, err)
	}
	return &ActionResult{Success: true, Message: fmt.Sprintf("Found %s", opts.Selector)}, nil
}

func (d *cdpDriver) Type(ctx context.Context, opts TypeOptions) (*ActionResult, error) {
	if err := requireSelector("type", opts.Selector); err != nil {
		return nil, err
	}
	timeout := timeoutOr(opts.Timeout, DefaultActionTimeout)

	prep := []chromedp.Action{chromedp.WaitVisible(opts.Selector, chromedp.ByQuery)}
	if opts.Clear {
		prep = append(prep, chromedp.Clear(opts.Selector, chromedp.ByQuery))
	}
	if err := d.run(ctx, timeout, prep...); err != nil {
		return nil, fmt.Errorf("type failed: %w", err)
	}

	if opts.Delay <= 0 {
		if err := d.run(ctx, timeout, chromedp.SendKeys(opts.Selector, opts.Text, chromedp.ByQuery)); err != nil {
			return nil, fmt.Errorf("type failed: %w", err)
		}
	} else {
		for _, r := range opts.Text {
			if err := d.run(ctx, timeout, chromedp.SendKeys(opts.Selector, string(r), chromedp.ByQuery)); err != nil {
				return nil, fmt.Errorf("type failed: %w", err)
			}
			if err := sleep(ctx, opts.Delay); err != nil {
				return nil, err
			}
		}
	}

	return &ActionResult{Success: true, Message: fmt.Sprintf("Typed into %s", opts.Selector)}, nil
}

func (d *cdpDriver) Click(ctx context.Context, opts ClickOptions) (*ActionResult, error) {
	if err := requireSelector("click", opts.Selector); err != nil {
		return nil, err
	}
	err := d.run(ctx, timeoutOr(opts.Timeout, DefaultActionTimeout),
		chromedp.WaitVisible(opts.Selector, chromedp.ByQuery),
		chromedp.Click(opts.Selector, chromedp.ByQuery),
	)
	if err != nil {
		return nil, fmt.Errorf("click failed: %w", err)
	}
	return &ActionResult{Success: true, Message: fmt.Sprintf("Clicked %s", opts.Selector)}, nil
}

func (d *cdpDriver) Present(ctx context.Context, selector string, timeout time.Duration) (bool, error) {
	if err := requireSelector("present", selector); err != nil {
		return false, err
	}
	err := d.run(ctx, timeoutOr(timeout, DefaultActionTimeout), chromedp.WaitReady(selector, chromedp.ByQuery))
	switch {
	case err == nil:
		return true, nil
	case ctx.Err() != nil:
		return false, ctx.Err()
	case errors.Is(err, context.DeadlineExceeded):
		return false, nil
	default:
		return false, err
	}
}

func (d *cdpDriver) CurrentURL(ctx context.Context) (string, error) {
	var current string
	if err := d.run(ctx, DefaultActionTimeout, chromedp.Location(&current)); err != nil {
		return "", fmt.Errorf("read location: %w", err)
	}
	return current, nil
}

func (d *cdpDriver) OpenTab(ctx context.Context, url string) (*ActionResult, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, ErrClosed
	}
	parent := d.tabs[0].ctx
	d.mu.Unlock()

	tabCtx, tabCancel := chromedp.NewContext(parent)
	tab := &cdpTab{ctx: tabCtx, cancel: tabCancel}
	if err := d.attach(ctx, tab); err != nil {
		tabCancel()
		return nil, fmt.Errorf("open tab: %w", err)
	}

	d.mu.Lock()
	prev := d.current
	d.tabs = append(d.tabs, tab)
	d.current = len(d.tabs) - 1
	d.mu.Unlock()
	d.logger.Info("switched to new tab", "target", tab.targetID())

	if url == "" {
		return &ActionResult{Success: true, Message: "Opened blank tab"}, nil
	}
	result, err := d.Navigate(ctx, NavigateOptions{URL: url})
	if err != nil {
		d.dropTab(tab, prev)
		tabCancel()
		return nil, err
	}
	return result, nil
}

// dropTab forgets a tab whose first navigation failed and makes prev current again.
func (d *cdpDriver) dropTab(tab *cdpTab, prev int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i := slices.Index(d.tabs, tab); i > 0 {
		d.tabs = slices.Delete(d.tabs, i, i+1)
	}
	d.current = min(prev, len(d.tabs)-1)
	d.logger.Info("closed failed tab", "target", tab.targetID())
}

func (d *cdpDriver) SwitchBack(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	if d.current > 0 {
		d.current--
	}
	d.logger.Info("switched back to tab", "target", d.tabs[d.current].targetID())
	return nil
}

func (d *cdpDriver) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	tabs := d.tabs
	d.mu.Unlock()

	for i := len(tabs) - 1; i > 0; i-- {
		tabs[i].cancel()
	}
	err := chromedp.Cancel(tabs[0].ctx)
	d.allocCancel()
	d.logger.Info("browser closed")
	return err
}
