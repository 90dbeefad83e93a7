package outlook

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/neboloop/netcapture/internal/browser"
	"github.com/neboloop/netcapture/internal/capture"
	"github.com/neboloop/netcapture/internal/failure"
	"github.com/neboloop/netcapture/internal/store"
)

// Step names, as reported in logs and failures.
const (
	StepOpenLogin         = "open_login"
	StepEnterEmail        = "enter_email"
	StepEnterPassword     = "enter_password"
	StepStaySignedIn      = "stay_signed_in"
	StepWaitForLogin      = "wait_for_login"
	StepOpenPeople        = "open_people"
	StepEnsureContact     = "ensure_contact"
	StepOpenContact       = "open_contact"
	StepCaptureEnrichment = "capture_enrichment"
)

// Run is the state of one workflow execution. It is created by Runner.Execute
// and handed to every step.
type Run struct {
	ID          string
	Driver      browser.Driver
	Buffer      *capture.Buffer
	Store       store.Store
	Options     Options
	Credentials Credentials
	Logger      *slog.Logger

	now  func() time.Time
	rand *rand.Rand

	// set by CaptureEnrichment on a match
	record *store.Record
	// People opened in its own tab
	switched bool
	failed   string
}

type step struct {
	name string
	fn   func(r *Run, ctx context.Context) error
}

var steps = []step{
	{StepOpenLogin, (*Run).OpenLogin},
	{StepEnterEmail, (*Run).EnterEmail},
	{StepEnterPassword, (*Run).EnterPassword},
	{StepStaySignedIn, (*Run).StaySignedIn},
	{StepWaitForLogin, (*Run).WaitForLogin},
	{StepOpenPeople, (*Run).OpenPeople},
	{StepEnsureContact, (*Run).EnsureContact},
	{StepOpenContact, (*Run).OpenContact},
	{StepCaptureEnrichment, (*Run).CaptureEnrichment},
}

// Result summarizes an execution.
type Result struct {
	RunID string
	// Completed is true when every step ran, with or without a match.
	Completed bool
	// FailedStep names the step that stopped the run.
	FailedStep string
	// Record is the persisted capture, nil when nothing matched.
	Record    *store.Record
	AuditPath string
	Duration  time.Duration
}

// Opener starts a browser session.
type Opener func(ctx context.Context) (browser.Driver, error)

// Runner executes the workflow. Each Execute opens its own browser session and
// audit log and closes the session before returning.
type Runner struct {
	Open        Opener
	Store       store.Store
	Options     Options
	Credentials Credentials
	// AuditDir receives network_logs_<timestamp>.txt for each run.
	AuditDir string
	Logger   *slog.Logger

	// Now and Rand default to the wall clock and a random seed.
	Now  func() time.Time
	Rand *rand.Rand
}

// AuditPrefix names the per-run audit log files.
const AuditPrefix = "network_logs"

// Execute runs every step in order and stops at the first failure. The returned
// error is the failing step's, tagged with its failure kind; a run that found no
// enrichment request still completes without error.
func (rn *Runner) Execute(ctx context.Context) (*Result, error) {
	now := rn.Now
	if now == nil {
		now = time.Now
	}
	rng := rn.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	logger := rn.Logger
	if logger == nil {
		logger = slog.Default()
	}

	started := now()
	runID := uuid.NewString()
	logger = logger.With("component", "outlook", "run_id", runID)
	audit := capture.NewAuditLog(rn.AuditDir, AuditPrefix, started)
	res := &Result{RunID: runID, AuditPath: audit.Path()}

	logger.Info("run started", "audit_log", audit.Path(), "contact", rn.Credentials.Contact)

	driver, err := rn.Open(ctx)
	if err != nil {
		res.FailedStep = "open_browser"
		res.Duration = now().Sub(started)
		logger.Error("failed to start browser", "error", err)
		return res, failure.New(failure.Interaction, "open_browser", err)
	}

	r := &Run{
		ID:          runID,
		Driver:      driver,
		Buffer:      capture.NewBuffer(driver, audit, logger),
		Store:       rn.Store,
		Options:     rn.Options,
		Credentials: rn.Credentials,
		Logger:      logger,
		now:         now,
		rand:        rng,
	}

	err = r.execute(ctx)
	res.Record = r.record
	res.Completed = err == nil
	res.FailedStep = r.failed

	r.finish(ctx, err)
	res.Duration = now().Sub(started)
	logger.Info("run finished",
		"completed", res.Completed,
		"matched", res.Record != nil,
		"failed_step", res.FailedStep,
		"duration", res.Duration.Round(time.Millisecond),
	)
	return res, err
}

func (r *Run) execute(ctx context.Context) error {
	if err := r.Driver.EnableNetwork(ctx); err != nil {
		r.failed = StepOpenLogin
		return failure.New(failure.Interaction, StepOpenLogin, err)
	}

	for _, s := range steps {
		r.Logger.Info("step started", "step", s.name)
		err := s.fn(r, ctx)
		if err == nil {
			continue
		}
		if failure.Is(err, failure.NoMatch) {
			r.Logger.Warn("enrichment request not observed, feature not available this run", "target", r.Options.Target)
			continue
		}
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		r.failed = s.name
		r.Logger.Error("step failed", "step", s.name, "kind", failure.KindOf(err), "error", err)
		var fe *failure.Error
		if !errors.As(err, &fe) {
			err = failure.New(failure.Interaction, s.name, err)
		}
		return err
	}
	return nil
}

// finish returns to the original tab after a failure past OpenPeople, lingers if
// configured, and always closes the browser.
func (r *Run) finish(ctx context.Context, runErr error) {
	if runErr != nil && r.switched {
		if err := r.Driver.SwitchBack(context.WithoutCancel(ctx)); err != nil {
			r.Logger.Debug("switch back failed", "error", err)
		}
	}
	if runErr == nil {
		if err := pause(ctx, r.Options.Timing.Linger); err != nil {
			r.Logger.Debug("linger interrupted", "error", err)
		}
	}
	if err := r.Driver.Close(); err != nil {
		r.Logger.Warn("browser close failed", "error", err)
	}
}

// pause waits d or until ctx is done.
func pause(ctx context.Context, d time.Duration) error {
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

func interaction(step string, err error) error {
	return failure.New(failure.Interaction, step, err)
}
