package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"secure-shred/internal/config"
	"secure-shred/internal/database"
	"secure-shred/internal/exitcodes"
)

type options struct {
	dbPath     string
	configPath string
	jsonOutput bool
}

// exitError carries a process exit code out of RunE
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func main() {
	os.Exit(execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd(stdout)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return exitcodes.Success
	}
	fmt.Fprintf(stderr, "secure-shred-audit: %v\n", err)

	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return exitcodes.InvalidConfig
}

func newRootCmd(stdout io.Writer) *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "secure-shred-audit",
		Short:         "Query the secure-shred audit ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
		Example: `  secure-shred-audit recent --limit 20          # 20 most recent entries
  secure-shred-audit recent --action ERROR       # recent failures
  secure-shred-audit stats --days 7              # totals for the last week
  secure-shred-audit run 3f0c...                 # everything one invocation did
  secure-shred-audit path /srv/export/report.pdf # entries for one path
  secure-shred-audit prune --older-than 90       # drop old entries`,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.dbPath, "db", "", "ledger database (default audit.database_path from the config)")
	pf.StringVarP(&opts.configPath, "config", "c", "", "configuration file (default "+config.DefaultPath+" when present)")
	pf.BoolVar(&opts.jsonOutput, "json", false, "output in JSON format")

	root.AddCommand(
		newRecentCmd(opts, stdout),
		newStatsCmd(opts, stdout),
		newRunCmd(opts, stdout),
		newPathCmd(opts, stdout),
		newPruneCmd(opts, stdout),
		newInfoCmd(opts, stdout),
	)
	return root
}

func newRecentCmd(opts *options, stdout io.Writer) *cobra.Command {
	var (
		limit  int
		action string
	)
	cmd := &cobra.Command{
		Use:   "recent",
		Short: "Show the most recent ledger entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(opts, func(db *database.ShredDB) error {
				var (
					records []database.ShredRecord
					err     error
				)
				if action != "" {
					records, err = db.GetByAction(action, limit)
				} else {
					records, err = db.GetRecent(limit)
				}
				if err != nil {
					return fmt.Errorf("failed to get recent entries: %w", err)
				}
				return printRecords(stdout, records, opts.jsonOutput)
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of entries")
	cmd.Flags().StringVar(&action, "action", "", "only entries with this action (SHRED, RMDIR, UNLINK, ERROR, SKIP)")
	return cmd
}

func newStatsCmd(opts *options, stdout io.Writer) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show totals over a number of days",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(opts, func(db *database.ShredDB) error {
				stats, err := db.GetStats(days)
				if err != nil {
					return fmt.Errorf("failed to get statistics: %w", err)
				}
				if opts.jsonOutput {
					return printJSON(stdout, stats)
				}
				printStats(stdout, stats, days)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 30, "number of days to include")
	return cmd
}

func newRunCmd(opts *options, stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "run RUN_ID",
		Short: "Show every entry of one invocation in order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(opts, func(db *database.ShredDB) error {
				records, err := db.GetByRun(args[0])
				if err != nil {
					return fmt.Errorf("failed to query run %s: %w", args[0], err)
				}
				return printRecords(stdout, records, opts.jsonOutput)
			})
		},
	}
}

func newPathCmd(opts *options, stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "path PATH",
		Short: "Show entries for a path, matched by digest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(opts, func(db *database.ShredDB) error {
				records, err := db.GetByPath(args[0])
				if err != nil {
					return fmt.Errorf("failed to query path: %w", err)
				}
				return printRecords(stdout, records, opts.jsonOutput)
			})
		},
	}
}

func newPruneCmd(opts *options, stdout io.Writer) *cobra.Command {
	var (
		olderThan int
		vacuum    bool
	)
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete entries older than a number of days",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan < 1 {
				return &exitError{code: exitcodes.InvalidConfig, err: errors.New("--older-than must be at least 1")}
			}
			return withDB(opts, func(db *database.ShredDB) error {
				n, err := db.DeleteOldRecords(olderThan)
				if err != nil {
					return fmt.Errorf("failed to prune: %w", err)
				}
				if vacuum {
					if err := db.Vacuum(); err != nil {
						return fmt.Errorf("failed to vacuum: %w", err)
					}
				}
				if opts.jsonOutput {
					return printJSON(stdout, map[string]int64{"deleted": n})
				}
				fmt.Fprintf(stdout, "Deleted %s entries older than %d days\n", humanize.Comma(n), olderThan)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&olderThan, "older-than", 90, "age in days")
	cmd.Flags().BoolVar(&vacuum, "vacuum", false, "compact the database afterwards")
	return cmd
}

func newInfoCmd(opts *options, stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show ledger size and time span",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(opts, func(db *database.ShredDB) error {
				stats, err := db.GetDatabaseStats()
				if err != nil {
					return fmt.Errorf("failed to get database stats: %w", err)
				}
				if opts.jsonOutput {
					return printJSON(stdout, stats)
				}
				fmt.Fprintf(stdout, "Records:  %d\n", stats["total_records"])
				if size, ok := stats["database_size_bytes"].(int64); ok {
					fmt.Fprintf(stdout, "Size:     %s\n", humanize.IBytes(uint64(size)))
				}
				if t, ok := stats["oldest_record"].(time.Time); ok {
					fmt.Fprintf(stdout, "Oldest:   %s (%s)\n", t.Format("2006-01-02 15:04:05"), humanize.Time(t))
				}
				if t, ok := stats["newest_record"].(time.Time); ok {
					fmt.Fprintf(stdout, "Newest:   %s (%s)\n", t.Format("2006-01-02 15:04:05"), humanize.Time(t))
				}
				return nil
			})
		},
	}
}

// withDB resolves and opens the ledger. A missing ledger is an error rather
// than being created empty.
func withDB(opts *options, fn func(db *database.ShredDB) error) error {
	path, err := ledgerPath(opts)
	if err != nil {
		return &exitError{code: exitcodes.InvalidConfig, err: err}
	}
	if _, err := os.Stat(path); err != nil {
		return &exitError{code: exitcodes.RuntimeError, err: fmt.Errorf("no ledger at %s: %w", path, err)}
	}

	db, err := database.NewShredDB(path, false)
	if err != nil {
		return &exitError{code: exitcodes.RuntimeError, err: fmt.Errorf("failed to open database %s: %w", path, err)}
	}
	defer db.Close()

	if err := fn(db); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			return err
		}
		return &exitError{code: exitcodes.RuntimeError, err: err}
	}
	return nil
}

func ledgerPath(opts *options) (string, error) {
	if opts.dbPath != "" {
		return opts.dbPath, nil
	}

	var (
		cfg *config.Config
		err error
	)
	if opts.configPath != "" {
		cfg, err = config.Load(opts.configPath)
	} else {
		cfg, err = config.LoadOptional(config.DefaultPath)
	}
	if err != nil {
		return "", fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Audit.DatabasePath == "" {
		return "", errors.New("no ledger configured: pass --db or set audit.database_path")
	}
	return cfg.Audit.DatabasePath, nil
}

func printJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func printStats(w io.Writer, stats *database.ShredStats, days int) {
	fmt.Fprintf(w, "Shred Statistics (Last %d days)\n", days)
	fmt.Fprintf(w, "Period: %s to %s\n\n", stats.StartDate.Format("2006-01-02"), stats.EndDate.Format("2006-01-02"))
	fmt.Fprintf(w, "Runs:               %s\n", humanize.Comma(int64(stats.Runs)))
	fmt.Fprintf(w, "Files Shredded:     %s\n", humanize.Comma(int64(stats.FilesShredded)))
	fmt.Fprintf(w, "Directories:        %s\n", humanize.Comma(int64(stats.DirsRemoved)))
	fmt.Fprintf(w, "Nodes Unlinked:     %s\n", humanize.Comma(int64(stats.NodesUnlinked)))
	fmt.Fprintf(w, "Skipped:            %s\n", humanize.Comma(int64(stats.Skipped)))
	fmt.Fprintf(w, "Errors:             %s\n", humanize.Comma(int64(stats.Errors)))
	fmt.Fprintf(w, "Bytes Overwritten:  %s\n", humanize.IBytes(uint64(stats.BytesOverwritten)))

	if len(stats.ByErrorKind) > 0 {
		kinds := make([]string, 0, len(stats.ByErrorKind))
		for kind := range stats.ByErrorKind {
			kinds = append(kinds, kind)
		}
		sort.Strings(kinds)

		fmt.Fprintln(w, "\nErrors By Kind:")
		for _, kind := range kinds {
			fmt.Fprintf(w, "  %-25s %d\n", kind, stats.ByErrorKind[kind])
		}
	}
}

func printRecords(w io.Writer, records []database.ShredRecord, jsonOutput bool) error {
	if jsonOutput {
		if records == nil {
			records = []database.ShredRecord{}
		}
		return printJSON(w, records)
	}

	if len(records) == 0 {
		fmt.Fprintln(w, "No records found")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tTimestamp\tAction\tType\tSize\tPasses\tDuration\tTarget")
	_, _ = fmt.Fprintln(tw, "--\t---------\t------\t----\t----\t------\t--------\t------")

	for _, r := range records {
		target := r.Path
		if target == "" {
			target = "blake3:" + r.PathDigest
			if len(r.PathDigest) > 16 {
				target = "blake3:" + r.PathDigest[:16]
			}
		}
		if r.ErrorKind != "" {
			target += " (" + r.ErrorKind + ")"
		}
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			r.ID,
			r.Timestamp.Format("2006-01-02 15:04:05"),
			r.Action,
			r.ObjectType,
			humanize.IBytes(uint64(r.Size)),
			r.Passes,
			time.Duration(r.DurationMs)*time.Millisecond,
			target,
		)
	}
	return tw.Flush()
}
