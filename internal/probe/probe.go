// Package probe drives the capture pipeline against arbitrary pages. It is the
// quickest way to check that a browser install produces decodable network
// entries before running the full workflow.
package probe

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/neboloop/netcapture/internal/browser"
	"github.com/neboloop/netcapture/internal/capture"
	"github.com/neboloop/netcapture/internal/failure"
	"github.com/neboloop/netcapture/internal/poll"
	"github.com/neboloop/netcapture/internal/store"
)

// AuditPrefix names the probe's audit log files.
const AuditPrefix = "test_network_logs"

// Options configures how each page is loaded and observed.
type Options struct {
	// Settle is how long to let the page keep issuing requests after it loaded.
	Settle time.Duration `yaml:"settle"`
	// WaitSelector must be present before the page counts as loaded.
	WaitSelector string        `yaml:"waitSelector"`
	PageTimeout  time.Duration `yaml:"pageTimeout"`
	// Capture bounds the wait for a match when a match substring is given.
	Capture poll.Options `yaml:"capture"`
}

func DefaultOptions() Options {
	return Options{
		Settle:       3 * time.Second,
		WaitSelector: "body",
		PageTimeout:  browser.DefaultPageLoadTimeout,
		Capture: poll.Options{
			Timeout:  poll.DefaultTimeout,
			Interval: poll.DefaultInterval,
		},
	}
}

// Page is the outcome for one target URL.
type Page struct {
	URL    string
	Loaded bool
	// Captured is the number of requests decoded while on this page.
	Captured int
	Err      error
}

type Result struct {
	RunID     string
	AuditPath string
	Pages     []Page
	// Total is the number of requests decoded over the whole probe.
	Total int
	// Record is set when a match substring was given and a request matched.
	Record   *store.Record
	Duration time.Duration
}

// Runner loads each target in one browser session and audits every request seen.
type Runner struct {
	Open func(ctx context.Context) (browser.Driver, error)
	// Store receives the matched request. Only used when Match is set.
	Store   store.Store
	Options Options
	// Match, when set, waits on each page for a request whose URL contains it.
	Match    string
	AuditDir string
	Logger   *slog.Logger
	Now      func() time.Time
}

// Execute probes targets in order. A page that fails to load is logged and
// skipped; only browser start, network enable and persistence failures abort.
func (rn *Runner) Execute(ctx context.Context, targets []string) (*Result, error) {
	now := rn.clock()
	logger := rn.Logger
	if logger == nil {
		logger = slog.Default()
	}

	started := now()
	res := &Result{RunID: uuid.NewString()}
	logger = logger.With("component", "probe", "run_id", res.RunID)
	audit := capture.NewAuditLog(rn.AuditDir, AuditPrefix, started)
	res.AuditPath = audit.Path()
	logger.Info("network logs will be saved", "path", audit.Path(), "targets", len(targets))

	if rn.Match != "" && rn.Store == nil {
		return res, failure.Newf(failure.Config, "probe", "match %q given without a record store", rn.Match)
	}

	driver, err := rn.Open(ctx)
	if err != nil {
		return res, failure.New(failure.Interaction, "open_browser", err)
	}
	defer func() {
		if err := driver.Close(); err != nil {
			logger.Warn("browser close failed", "error", err)
		}
	}()

	if err := driver.EnableNetwork(ctx); err != nil {
		return res, failure.New(failure.Interaction, "enable_network", err)
	}

	buf := capture.NewBuffer(driver, audit, logger)
	for _, target := range targets {
		page := Page{URL: target}
		err := rn.visit(ctx, driver, buf, &page, res, logger)
		res.Pages = append(res.Pages, page)
		res.Total = buf.Len()
		if err != nil {
			res.Duration = now().Sub(started)
			return res, err
		}
	}

	res.Duration = now().Sub(started)
	logger.Info("probe finished", "total", res.Total, "matched", res.Record != nil, "audit_log", audit.Path())
	return res, nil
}

func (rn *Runner) visit(ctx context.Context, d browser.Driver, buf *capture.Buffer, page *Page, res *Result, logger *slog.Logger) error {
	opts := rn.Options
	logger = logger.With("url", page.URL)

	if err := load(ctx, d, page.URL, opts); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		page.Err = err
		logger.Error("error loading page", "error", err)
		return nil
	}
	page.Loaded = true
	logger.Info("page loaded")

	t := time.NewTimer(opts.Settle)
	select {
	case <-ctx.Done():
		t.Stop()
		return ctx.Err()
	case <-t.C:
	}

	before := buf.Len()
	if rn.Match == "" || res.Record != nil {
		if _, err := buf.Collect(ctx); err != nil {
			logger.Warn("performance log drain failed", "error", err)
		}
	} else {
		match, err := buf.PollForMatch(ctx, rn.Match, opts.Capture)
		if err != nil {
			return err
		}
		if match != nil {
			rec := store.FromRequest(res.RunID, page.URL, *match, rn.clock()())
			if err := rn.Store.Append(ctx, rec); err != nil {
				if failure.KindOf(err) == "" {
					err = failure.New(failure.Persistence, "save_match", err)
				}
				return err
			}
			res.Record = &rec
		}
	}
	page.Captured = buf.Len() - before
	logger.Info("captured requests", "batch", page.Captured, "total", buf.Len())
	return nil
}

func (rn *Runner) clock() func() time.Time {
	if rn.Now != nil {
		return rn.Now
	}
	return time.Now
}

// load navigates and waits for the page's marker element.
func load(ctx context.Context, d browser.Driver, url string, opts Options) error {
	if _, err := d.Navigate(ctx, browser.NavigateOptions{URL: url, Timeout: opts.PageTimeout}); err != nil {
		return fmt.Errorf("navigate: %w", err)
	}
	if opts.WaitSelector == "" {
		return nil
	}
	_, err := d.WaitFor(ctx, browser.WaitOptions{Selector: opts.WaitSelector, Timeout: opts.PageTimeout})
	if err != nil {
		return fmt.Errorf("wait for %s: %w", opts.WaitSelector, err)
	}
	return nil
}
