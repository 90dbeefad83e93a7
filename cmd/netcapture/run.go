package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/neboloop/netcapture/internal/config"
	"github.com/neboloop/netcapture/internal/failure"
	"github.com/neboloop/netcapture/internal/outlook"
)

// RunCmd creates the run command
func RunCmd() *cobra.Command {
	var (
		schedule string
		headless bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Sign in, open the contact's LinkedIn panel and save the enrichment request",
		Long: `Run the capture workflow once, or on a cron schedule with --schedule.

A failed step is logged and the run ends; the command still exits 0. Only
configuration problems (missing environment variables, a bad schedule) fail it.

Examples:
  netcapture run
  netcapture run --headless
  netcapture run --schedule "@every 6h"
  netcapture run --schedule "0 */4 * * *"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("headless") {
				appConfig.Browser.Headless = headless
			}
			return runCapture(schedule)
		},
	}

	cmd.Flags().StringVar(&schedule, "schedule", "", "cron spec; runs never overlap")
	cmd.Flags().BoolVar(&headless, "headless", false, "run the browser without a window")

	return cmd
}

func runCapture(schedule string) error {
	creds, err := config.Credentials()
	if err != nil {
		return err
	}
	st, err := openStore(appConfig)
	if err != nil {
		return err
	}
	defer st.Close()

	runner := &outlook.Runner{
		Open:        opener(appConfig.Browser),
		Store:       st,
		Options:     appConfig.Outlook,
		Credentials: creds,
		AuditDir:    appConfig.Paths.LogDir,
		Logger:      logger,
	}

	ctx, cancel := signalContext()
	defer cancel()

	if schedule == "" {
		runOnce(ctx, runner)
		return nil
	}
	return runScheduled(ctx, schedule, runner)
}

func runOnce(ctx context.Context, runner *outlook.Runner) {
	res, err := runner.Execute(ctx)
	switch {
	case err != nil:
		fmt.Printf("\033[31m✗\033[0m run %s failed at %s: %v\n", res.RunID, res.FailedStep, err)
	case res.Record == nil:
		fmt.Printf("\033[33m⚠\033[0m run %s completed, enrichment request not available this run\n", res.RunID)
	default:
		fmt.Printf("\033[32m✓\033[0m run %s saved %s\n", res.RunID, res.Record.URL)
	}
	fmt.Printf("  audit log: %s\n", res.AuditPath)
}

func runScheduled(ctx context.Context, schedule string, runner *outlook.Runner) error {
	cl := cronLogger{logger.With("component", "scheduler")}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	id, err := c.AddFunc(schedule, func() {
		if ctx.Err() != nil {
			return
		}
		runOnce(ctx, runner)
	})
	if err != nil {
		return failure.New(failure.Config, "schedule", fmt.Errorf("invalid cron spec %q: %w", schedule, err))
	}

	c.Start()
	logger.Info("scheduler started", "schedule", schedule, "next", c.Entry(id).Next)

	<-ctx.Done()
	logger.Info("stopping scheduler, waiting for the running capture")
	<-c.Stop().Done()
	return nil
}

// cronLogger routes cron's logging through slog.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error(msg, append(keysAndValues, "error", err)...)
}
