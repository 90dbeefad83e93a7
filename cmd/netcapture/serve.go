package cli

import (
	"github.com/spf13/cobra"

	"github.com/neboloop/netcapture/internal/api"
	"github.com/neboloop/netcapture/internal/server"
	"github.com/neboloop/netcapture/internal/store"
)

// ServeCmd creates the serve command
func ServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve saved records over HTTP from the SQLite mirror",
		Long: `Serve a read-only JSON view of the SQLite mirror:

  GET /health
  GET /api/v1/records?account=&limit=
  GET /api/v1/records/latest?account=`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = appConfig.Serve.Addr
			}
			return runServe(addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")

	return cmd
}

func runServe(addr string) error {
	if !appConfig.SQLite {
		logger.Warn("sqlite mirror is disabled; only records saved while it was enabled are served")
	}
	sq, err := store.OpenSQLite(appConfig.SQLitePath(), logger)
	if err != nil {
		return err
	}
	defer sq.Close()

	ctx, cancel := signalContext()
	defer cancel()

	return server.Run(ctx, addr, api.NewRouter(sq, logger), logger)
}
