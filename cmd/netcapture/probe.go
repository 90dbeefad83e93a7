package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/neboloop/netcapture/internal/config"
	"github.com/neboloop/netcapture/internal/failure"
	"github.com/neboloop/netcapture/internal/probe"
	"github.com/neboloop/netcapture/internal/store"
)

// ProbeCmd creates the probe command
func ProbeCmd() *cobra.Command {
	var (
		match    string
		headless bool
	)

	cmd := &cobra.Command{
		Use:   "probe [url...]",
		Short: "Load test pages and audit every request the browser sends",
		Long: `Load each URL, wait for the page body, let it settle and write every
decoded request to logs/test_network_logs_<timestamp>.txt.

Without arguments the URLs come from TEST_BASE_URL and TEST_PRICING_URL.
With --match the first request whose URL contains the substring is saved to
the record store.

Examples:
  netcapture probe
  netcapture probe https://example.com https://example.com/pricing
  netcapture probe --match /api/v1/plans`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("headless") {
				appConfig.Browser.Headless = headless
			}
			return runProbe(args, match)
		},
	}

	cmd.Flags().StringVar(&match, "match", "", "save the first request whose URL contains this")
	cmd.Flags().BoolVar(&headless, "headless", false, "run the browser without a window")

	return cmd
}

func runProbe(targets []string, match string) error {
	if len(targets) == 0 {
		var err error
		if targets, err = config.ProbeTargets(); err != nil {
			return err
		}
	}

	var st store.Store
	if match != "" {
		var err error
		if st, err = openStore(appConfig); err != nil {
			return err
		}
		defer st.Close()
	}

	runner := &probe.Runner{
		Open:     opener(appConfig.Browser),
		Store:    st,
		Options:  appConfig.Probe,
		Match:    match,
		AuditDir: appConfig.Paths.LogDir,
		Logger:   logger,
	}

	ctx, cancel := signalContext()
	defer cancel()

	res, err := runner.Execute(ctx, targets)
	if failure.Is(err, failure.Config) {
		return err
	}
	if err != nil {
		fmt.Printf("\033[31m✗\033[0m probe failed: %v\n", err)
		return nil
	}

	for _, p := range res.Pages {
		if !p.Loaded {
			fmt.Printf("\033[31m✗\033[0m %s: %v\n", p.URL, p.Err)
			continue
		}
		fmt.Printf("\033[32m✓\033[0m %s: %d requests\n", p.URL, p.Captured)
	}
	fmt.Printf("Total captured requests: %d\n", res.Total)
	if match != "" {
		if res.Record != nil {
			fmt.Printf("Saved match: %s\n", res.Record.URL)
		} else {
			fmt.Printf("No request matched %q\n", match)
		}
	}
	fmt.Printf("All requests have been logged to: %s\n", res.AuditPath)
	return nil
}
