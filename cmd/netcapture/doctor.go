package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/neboloop/netcapture/internal/browser"
	"github.com/neboloop/netcapture/internal/config"
	"github.com/neboloop/netcapture/internal/store"
)

// DoctorCmd creates the doctor command for health checks
func DoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check the environment before a run",
		Long: `Run diagnostics on the local setup.

Checks:
  - Environment variables for run and probe
  - Browser executable
  - Log and data directories are writable
  - SQLite mirror opens (when enabled)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor()
		},
	}
}

type checkResult struct {
	name    string
	status  string // "ok", "warn", "error"
	message string
}

func runDoctor() error {
	fmt.Println("\033[1mnetcapture doctor\033[0m")
	fmt.Println("=================")
	fmt.Println()

	var results []checkResult
	results = append(results, checkEnvironment()...)
	results = append(results, checkBrowser())
	results = append(results, checkDir("Log Directory", appConfig.Paths.LogDir))
	results = append(results, checkDir("Data Directory", appConfig.Paths.DataDir))
	if appConfig.SQLite {
		results = append(results, checkSQLite())
	}

	okCount := 0
	warnCount := 0
	errorCount := 0

	for _, r := range results {
		switch r.status {
		case "ok":
			fmt.Printf("\033[32m✓\033[0m %s: %s\n", r.name, r.message)
			okCount++
		case "warn":
			fmt.Printf("\033[33m⚠\033[0m %s: %s\n", r.name, r.message)
			warnCount++
		case "error":
			fmt.Printf("\033[31m✗\033[0m %s: %s\n", r.name, r.message)
			errorCount++
		}
	}

	// Summary
	fmt.Println()
	fmt.Println("Summary:")
	fmt.Printf("  \033[32m%d passed\033[0m", okCount)
	if warnCount > 0 {
		fmt.Printf("  \033[33m%d warnings\033[0m", warnCount)
	}
	if errorCount > 0 {
		fmt.Printf("  \033[31m%d errors\033[0m", errorCount)
	}
	fmt.Println()

	if errorCount > 0 {
		return fmt.Errorf("doctor found %d problem(s)", errorCount)
	}
	return nil
}

func checkEnvironment() []checkResult {
	var results []checkResult

	if _, err := config.Credentials(); err != nil {
		results = append(results, checkResult{name: "Run Credentials", status: "error", message: err.Error()})
	} else {
		results = append(results, checkResult{
			name:    "Run Credentials",
			status:  "ok",
			message: strings.Join([]string{config.EnvOutlookEmail, config.EnvOutlookPassword, config.EnvContactEmail}, ", "),
		})
	}

	// probe can take URLs as arguments, so missing targets only warn
	if targets, err := config.ProbeTargets(); err != nil {
		results = append(results, checkResult{name: "Probe Targets", status: "warn", message: err.Error()})
	} else {
		results = append(results, checkResult{name: "Probe Targets", status: "ok", message: strings.Join(targets, ", ")})
	}
	return results
}

func checkBrowser() checkResult {
	resolved, err := browser.ResolveConfig(appConfig.Browser)
	if err != nil {
		return checkResult{name: "Browser", status: "error", message: err.Error()}
	}
	switch {
	case resolved.CDPURL != "":
		return checkResult{name: "Browser", status: "ok", message: "attach to " + resolved.CDPURL}
	case resolved.Executable == nil && resolved.Driver == browser.DriverPlaywright:
		return checkResult{name: "Browser", status: "ok", message: "playwright bundled chromium"}
	case resolved.Executable == nil:
		return checkResult{name: "Browser", status: "warn", message: "no Chrome, Chromium or Edge found; set browser.executablePath"}
	default:
		return checkResult{
			name:    "Browser",
			status:  "ok",
			message: fmt.Sprintf("%s (%s, driver %s)", resolved.Executable.Path, resolved.Executable.Kind, resolved.Driver),
		}
	}
}

func checkDir(name, dir string) checkResult {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return checkResult{name: name, status: "error", message: err.Error()}
	}
	f, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		return checkResult{name: name, status: "error", message: fmt.Sprintf("%s is not writable: %v", dir, err)}
	}
	f.Close()
	os.Remove(f.Name())
	return checkResult{name: name, status: "ok", message: dir}
}

func checkSQLite() checkResult {
	sq, err := store.OpenSQLite(appConfig.SQLitePath(), logger)
	if err != nil {
		return checkResult{name: "SQLite Mirror", status: "error", message: err.Error()}
	}
	sq.Close()
	return checkResult{name: "SQLite Mirror", status: "ok", message: appConfig.SQLitePath()}
}
