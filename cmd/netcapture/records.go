package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/neboloop/netcapture/internal/capture"
	"github.com/neboloop/netcapture/internal/store"
)

// RecordsCmd creates the records command
func RecordsCmd() *cobra.Command {
	var (
		account   string
		limit     int
		useSQLite bool
		asJSON    bool
		headers   bool
	)

	cmd := &cobra.Command{
		Use:   "records",
		Short: "List saved enrichment requests, newest first",
		Long: `List saved records from the CSV store, or from the SQLite mirror with --sqlite
(the default when sqlite is enabled in config).

Examples:
  netcapture records
  netcapture records --account contact@example.com --limit 1 --headers
  netcapture records --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("sqlite") {
				useSQLite = appConfig.SQLite
			}
			recs, err := loadRecords(cmd.Context(), useSQLite, account, limit)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(recs)
			}
			printRecords(recs, headers)
			return nil
		},
	}

	cmd.Flags().StringVar(&account, "account", "", "only records for this contact email")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum records to show")
	cmd.Flags().BoolVar(&useSQLite, "sqlite", false, "read the SQLite mirror instead of the CSV file")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print records as JSON")
	cmd.Flags().BoolVar(&headers, "headers", false, "print each record's headers")

	return cmd
}

func loadRecords(ctx context.Context, useSQLite bool, account string, limit int) ([]store.Record, error) {
	if useSQLite {
		sq, err := store.OpenSQLite(appConfig.SQLitePath(), logger)
		if err != nil {
			return nil, err
		}
		defer sq.Close()
		return sq.List(ctx, store.ListOptions{Account: account, Limit: limit})
	}

	all, err := store.ReadCSV(appConfig.CSVPath())
	if err != nil {
		return nil, err
	}
	return newestFirst(all, account, limit), nil
}

// newestFirst filters CSV rows, which are stored oldest first.
func newestFirst(all []store.Record, account string, limit int) []store.Record {
	var out []store.Record
	for _, r := range slices.Backward(all) {
		if account != "" && r.Account != account {
			continue
		}
		out = append(out, r)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func printRecords(recs []store.Record, withHeaders bool) {
	if len(recs) == 0 {
		fmt.Println("No records saved yet.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CAPTURED\tACCOUNT\tHEADERS\tURL")
	for _, r := range recs {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", humanize.Time(r.Timestamp), r.Account, len(r.Headers), truncate(r.URL, 80))
	}
	w.Flush()

	if !withHeaders {
		return
	}
	for _, r := range recs {
		fmt.Printf("\n%s  %s\n", r.Timestamp.Format(capture.TimestampLayout), r.URL)
		for _, line := range strings.Split(capture.FlattenHeaders(r.Headers), "\n") {
			fmt.Printf("  %s\n", line)
		}
	}
}

// truncate shortens s to n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
