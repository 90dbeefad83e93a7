package outlook

import (
	"context"
	"errors"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neboloop/netcapture/internal/browser"
	"github.com/neboloop/netcapture/internal/capture"
	"github.com/neboloop/netcapture/internal/failure"
	"github.com/neboloop/netcapture/internal/logging"
	"github.com/neboloop/netcapture/internal/poll"
	"github.com/neboloop/netcapture/internal/store"
)

const (
	enrichmentURL = "https://nam.loki.delve.office.com/api/v2/linkedin/profiles/full?smtp=contact%40example.com"
	contactEmail  = "contact@example.com"
)

// fakeDriver is a scripted browser. Every selector is present unless marked
// absent; clicks can be made to fail a number of times or to change the page.
type fakeDriver struct {
	mu sync.Mutex

	url        string
	absent     map[string]bool
	failClicks map[string]int
	failTabs   int
	onClick    map[string]func(f *fakeDriver)

	queue   []capture.Entry
	enabled int

	typed        map[string]string
	clicks       []string
	tabs         int
	switchedBack bool
	closed       bool
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		absent:     map[string]bool{},
		failClicks: map[string]int{},
		onClick:    map[string]func(f *fakeDriver){},
		typed:      map[string]string{},
	}
}

func (f *fakeDriver) EnableNetwork(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enabled++
	return nil
}

func (f *fakeDriver) Drain(context.Context) ([]capture.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.queue
	f.queue = nil
	return out, nil
}

func (f *fakeDriver) Navigate(_ context.Context, opts browser.NavigateOptions) (*browser.ActionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.url = opts.URL
	return &browser.ActionResult{Success: true, URL: opts.URL}, nil
}

func (f *fakeDriver) WaitFor(_ context.Context, opts browser.WaitOptions) (*browser.ActionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.absent[opts.Selector] {
		return nil, errors.New("timeout waiting for " + opts.Selector)
	}
	return &browser.ActionResult{Success: true}, nil
}

func (f *fakeDriver) Type(_ context.Context, opts browser.TypeOptions) (*browser.ActionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.absent[opts.Selector] {
		return nil, errors.New("no element " + opts.Selector)
	}
	f.typed[opts.Selector] = opts.Text
	return &browser.ActionResult{Success: true}, nil
}

func (f *fakeDriver) Click(_ context.Context, opts browser.ClickOptions) (*browser.ActionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.absent[opts.Selector] {
		return nil, errors.New("no element " + opts.Selector)
	}
	if f.failClicks[opts.Selector] > 0 {
		f.failClicks[opts.Selector]--
		return nil, errors.New("element not clickable")
	}
	f.clicks = append(f.clicks, opts.Selector)
	if fn := f.onClick[opts.Selector]; fn != nil {
		fn(f)
	}
	return &browser.ActionResult{Success: true}, nil
}

func (f *fakeDriver) Present(_ context.Context, selector string, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.absent[selector], nil
}

func (f *fakeDriver) CurrentURL(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.url, nil
}

func (f *fakeDriver) OpenTab(_ context.Context, url string) (*browser.ActionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTabs > 0 {
		f.failTabs--
		return nil, errors.New("no such window")
	}
	f.tabs++
	f.url = url
	return &browser.ActionResult{Success: true, URL: url}, nil
}

func (f *fakeDriver) SwitchBack(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.switchedBack = true
	return nil
}

func (f *fakeDriver) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeDriver) clicked(selector string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.clicks {
		if c == selector {
			n++
		}
	}
	return n
}

func requestEntry(t *testing.T, id, url string) capture.Entry {
	t.Helper()
	e, err := capture.NewEntry(capture.MethodRequestWillBeSent,
		capture.RequestParams(id, url, "GET", map[string]string{"Authorization": "Bearer " + id}), "tab", time.Now())
	require.NoError(t, err)
	return e
}

func otherEntry(t *testing.T, method string) capture.Entry {
	t.Helper()
	e, err := capture.NewEntry(method, map[string]any{"requestId": "x"}, "tab", time.Now())
	require.NoError(t, err)
	return e
}

func testOptions() Options {
	o := DefaultOptions()
	o.Timing = Timing{
		ElementTimeout:      time.Second,
		LoginTimeout:        time.Second,
		ContactTimeout:      time.Second,
		ContactCheckTimeout: time.Second,
		ReSignInTimeout:     time.Second,
		PeopleAttempts:      3,
		PeopleBackoff:       10 * time.Millisecond,
		NewContactAttempts:  3,
		NewContactBackoff:   10 * time.Millisecond,
		Capture:             poll.Options{Timeout: 300 * time.Millisecond, Interval: 20 * time.Millisecond},
	}
	return o
}

// scriptedSession plays a sign-in that lands on Outlook, an unknown contact that
// is created on save, and a LinkedIn tab whose click emits five entries with the
// enrichment request third.
func scriptedSession(t *testing.T, opts Options) *fakeDriver {
	sel := opts.Selectors
	card := sel.contactCard(contactEmail)

	f := newFakeDriver()
	f.absent[card] = true
	f.queue = []capture.Entry{requestEntry(t, "login", "https://login.microsoftonline.com/common/login")}

	f.onClick[sel.StaySignedInYes] = func(f *fakeDriver) {
		f.url = "https://outlook.office.com/mail/"
		f.absent[sel.EmailInput] = true
	}
	f.onClick[sel.Save] = func(f *fakeDriver) {
		delete(f.absent, card)
	}
	f.onClick[sel.LinkedInTab] = func(f *fakeDriver) {
		f.queue = append(f.queue,
			otherEntry(t, "Page.loadEventFired"),
			requestEntry(t, "1", "https://outlook.office.com/owa/service.svc"),
			requestEntry(t, "2", enrichmentURL),
			otherEntry(t, "Network.responseReceived"),
			requestEntry(t, "3", enrichmentURL+"&second=1"),
		)
	}
	return f
}

func newRunner(t *testing.T, d browser.Driver, st store.Store, opts Options) *Runner {
	return &Runner{
		Open:    func(context.Context) (browser.Driver, error) { return d, nil },
		Store:   st,
		Options: opts,
		Credentials: Credentials{
			Email:    "me@example.com",
			Password: "hunter2",
			Contact:  contactEmail,
		},
		AuditDir: filepath.Join(t.TempDir(), "logs"),
		Logger:   logging.Discard(),
		Rand:     rand.New(rand.NewPCG(1, 2)),
	}
}

func TestExecuteCapturesEnrichmentRequest(t *testing.T) {
	opts := testOptions()
	d := scriptedSession(t, opts)
	csvPath := filepath.Join(t.TempDir(), "data", "linkedin_requests.csv")
	rn := newRunner(t, d, store.NewCSVStore(csvPath, logging.Discard()), opts)

	res, err := rn.Execute(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Completed)
	assert.Empty(t, res.FailedStep)
	require.NotNil(t, res.Record)
	assert.Equal(t, enrichmentURL, res.Record.URL)
	assert.Equal(t, "Bearer 2", res.Record.Headers["Authorization"])
	assert.Equal(t, res.RunID, res.Record.RunID)

	recs, err := store.ReadCSV(csvPath)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, contactEmail, recs[0].Account)
	assert.Equal(t, enrichmentURL, recs[0].URL)

	sel := opts.Selectors
	assert.Equal(t, "me@example.com", d.typed[sel.EmailInput])
	assert.Equal(t, "hunter2", d.typed[sel.PasswordInput])
	assert.Equal(t, contactEmail, d.typed[sel.ContactEmail])
	assert.Contains(t, firstNames, d.typed[sel.FirstName])
	assert.Contains(t, lastNames, d.typed[sel.LastName])
	assert.Equal(t, 1, d.clicked(sel.RibbonNewContact))
	assert.Equal(t, 1, d.tabs)
	assert.True(t, d.closed)
	assert.False(t, d.switchedBack)
	assert.Equal(t, 2, d.enabled)

	audit, err := os.ReadFile(res.AuditPath)
	require.NoError(t, err)
	assert.Equal(t, 4, strings.Count(string(audit), "URL: "))
	assert.Contains(t, string(audit), "https://login.microsoftonline.com/common/login")
}

func TestExecuteWithoutMatchStillCompletes(t *testing.T) {
	opts := testOptions()
	d := scriptedSession(t, opts)
	d.onClick[opts.Selectors.LinkedInTab] = func(f *fakeDriver) {
		f.queue = append(f.queue, requestEntry(t, "1", "https://outlook.office.com/owa/service.svc"))
	}
	csvPath := filepath.Join(t.TempDir(), "linkedin_requests.csv")
	rn := newRunner(t, d, store.NewCSVStore(csvPath, logging.Discard()), opts)

	start := time.Now()
	res, err := rn.Execute(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Completed)
	assert.Nil(t, res.Record)
	assert.GreaterOrEqual(t, time.Since(start), opts.Timing.Capture.Timeout)

	_, statErr := os.Stat(csvPath)
	assert.True(t, os.IsNotExist(statErr))
	assert.True(t, d.closed)
}

func TestExecuteExistingContactSkipsCreation(t *testing.T) {
	opts := testOptions()
	d := scriptedSession(t, opts)
	delete(d.absent, opts.Selectors.contactCard(contactEmail))
	rn := newRunner(t, d, store.NewCSVStore(filepath.Join(t.TempDir(), "r.csv"), logging.Discard()), opts)

	res, err := rn.Execute(context.Background())
	require.NoError(t, err)
	require.NotNil(t, res.Record)
	assert.Zero(t, d.clicked(opts.Selectors.NewContact))
	assert.Zero(t, d.clicked(opts.Selectors.RibbonNewContact))
	assert.Equal(t, 1, d.clicked(opts.Selectors.contactCard(contactEmail)))
}

func TestExecuteStopsAtFirstFailedStep(t *testing.T) {
	opts := testOptions()
	d := scriptedSession(t, opts)
	d.absent[opts.Selectors.StaySignedInTitle] = true
	rn := newRunner(t, d, store.NewCSVStore(filepath.Join(t.TempDir(), "r.csv"), logging.Discard()), opts)

	res, err := rn.Execute(context.Background())
	require.Error(t, err)
	assert.True(t, failure.Is(err, failure.Interaction))
	assert.False(t, res.Completed)
	assert.Equal(t, StepStaySignedIn, res.FailedStep)
	assert.Zero(t, d.tabs)
	assert.True(t, d.closed)
	assert.False(t, d.switchedBack)
}

func TestOpenPeopleRetriesTabOpen(t *testing.T) {
	opts := testOptions()
	d := scriptedSession(t, opts)
	d.failTabs = 2
	rn := newRunner(t, d, store.NewCSVStore(filepath.Join(t.TempDir(), "r.csv"), logging.Discard()), opts)

	res, err := rn.Execute(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Completed)
	assert.Equal(t, 1, d.tabs)
}

func TestOpenPeopleGivesUpAfterAttempts(t *testing.T) {
	opts := testOptions()
	d := scriptedSession(t, opts)
	d.failTabs = 3
	rn := newRunner(t, d, store.NewCSVStore(filepath.Join(t.TempDir(), "r.csv"), logging.Discard()), opts)

	res, err := rn.Execute(context.Background())
	require.Error(t, err)
	assert.Equal(t, StepOpenPeople, res.FailedStep)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Zero(t, d.tabs)
}

func TestEnsureContactFailureSwitchesBack(t *testing.T) {
	opts := testOptions()
	d := scriptedSession(t, opts)
	d.failClicks[opts.Selectors.NewContact] = 3
	rn := newRunner(t, d, store.NewCSVStore(filepath.Join(t.TempDir(), "r.csv"), logging.Discard()), opts)

	res, err := rn.Execute(context.Background())
	require.Error(t, err)
	assert.Equal(t, StepEnsureContact, res.FailedStep)
	assert.True(t, failure.Is(err, failure.Interaction))
	assert.True(t, d.switchedBack)
	assert.True(t, d.closed)
}

func TestNewContactClickRetried(t *testing.T) {
	opts := testOptions()
	d := scriptedSession(t, opts)
	d.failClicks[opts.Selectors.NewContact] = 2
	rn := newRunner(t, d, store.NewCSVStore(filepath.Join(t.TempDir(), "r.csv"), logging.Discard()), opts)

	res, err := rn.Execute(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, res.Record)
	assert.Equal(t, 1, d.clicked(opts.Selectors.NewContact))
}

type brokenStore struct{}

func (brokenStore) Append(context.Context, store.Record) error { return errors.New("disk full") }
func (brokenStore) Close() error                               { return nil }

func TestPersistenceFailureIsReported(t *testing.T) {
	opts := testOptions()
	d := scriptedSession(t, opts)
	rn := newRunner(t, d, brokenStore{}, opts)

	res, err := rn.Execute(context.Background())
	require.Error(t, err)
	assert.True(t, failure.Is(err, failure.Persistence))
	assert.Equal(t, StepCaptureEnrichment, res.FailedStep)
	assert.Nil(t, res.Record)
}

func TestOpenBrowserFailure(t *testing.T) {
	rn := newRunner(t, nil, brokenStore{}, testOptions())
	rn.Open = func(context.Context) (browser.Driver, error) { return nil, errors.New("chrome not found") }

	res, err := rn.Execute(context.Background())
	require.Error(t, err)
	assert.True(t, failure.Is(err, failure.Interaction))
	assert.Equal(t, "open_browser", res.FailedStep)
}

func TestWaitForLoginTimesOut(t *testing.T) {
	opts := testOptions()
	opts.Timing.LoginTimeout = 100 * time.Millisecond
	d := scriptedSession(t, opts)
	d.onClick[opts.Selectors.StaySignedInYes] = nil
	rn := newRunner(t, d, brokenStore{}, opts)

	res, err := rn.Execute(context.Background())
	require.Error(t, err)
	assert.Equal(t, StepWaitForLogin, res.FailedStep)
	assert.Contains(t, err.Error(), "no login redirect")
}

func TestOnDomain(t *testing.T) {
	domains := DefaultOptions().LoginDomains
	assert.True(t, onDomain("https://outlook.office365.com/mail/inbox", domains))
	assert.True(t, onDomain("https://m365.cloud.microsoft/?auth=2", domains))
	assert.False(t, onDomain("https://login.microsoftonline.com/common/oauth2", domains))
	assert.False(t, onDomain("https://outlook.office.com", []string{""}))
}

func TestContactCardSelector(t *testing.T) {
	assert.Equal(t, "div[aria-label*='a@b.com']", DefaultOptions().Selectors.contactCard("a@b.com"))
}

func TestRandomName(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 7))
	for range 20 {
		first, last := randomName(rng)
		assert.Contains(t, firstNames, first)
		assert.Contains(t, lastNames, last)
	}
}
