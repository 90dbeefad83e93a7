package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/neboloop/netcapture/internal/browser"
	"github.com/neboloop/netcapture/internal/config"
	"github.com/neboloop/netcapture/internal/logging"
	"github.com/neboloop/netcapture/internal/store"
)

// SetupRootCmd configures the root command with all subcommands and flags
func SetupRootCmd(embedded []byte) *cobra.Command {
	embeddedConfig = embedded

	rootCmd := &cobra.Command{
		Use:   "netcapture",
		Short: "Capture the LinkedIn enrichment request Outlook sends for a contact",
		Long: `netcapture drives a Chrome session through the Outlook web sign-in, opens a
contact's LinkedIn panel and records the profile enrichment request (URL and
headers) the panel sends.

Credentials come from OUTLOOK_EMAIL, OUTLOOK_PASSWORD and CONTACT_EMAIL, read
from the environment or a .env file.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: loadConfig,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML file layered over the built-in defaults")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error (default from config)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "text or json (default from config)")

	// Add commands
	rootCmd.AddCommand(RunCmd())
	rootCmd.AddCommand(ProbeCmd())
	rootCmd.AddCommand(RecordsCmd())
	rootCmd.AddCommand(ServeCmd())
	rootCmd.AddCommand(ConfigCmd())
	rootCmd.AddCommand(DoctorCmd())

	return rootCmd
}

func loadConfig(cmd *cobra.Command, args []string) error {
	c, err := config.Load(embeddedConfig, cfgFile)
	if err != nil {
		return err
	}
	if logLevel != "" {
		c.Log.Level = logLevel
	}
	if logFormat != "" {
		c.Log.Format = logFormat
	}
	appConfig = &c
	logger = logging.Setup(c.Log.Level, c.Log.Format)
	return nil
}

// signalContext is cancelled on Ctrl+C or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// opener starts a browser session from the loaded config.
func opener(cfg browser.Config) func(ctx context.Context) (browser.Driver, error) {
	return func(ctx context.Context) (browser.Driver, error) {
		return browser.Open(ctx, cfg, logger)
	}
}

// openStore returns the CSV store, mirrored into SQLite when enabled.
func openStore(c *config.Config) (store.Store, error) {
	csv := store.NewCSVStore(c.CSVPath(), logger)
	if !c.SQLite {
		return csv, nil
	}
	sq, err := store.OpenSQLite(c.SQLitePath(), logger)
	if err != nil {
		return nil, err
	}
	return store.NewTee(logger, csv, sq), nil
}
