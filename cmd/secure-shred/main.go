package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"secure-shred/internal/config"
	"secure-shred/internal/database"
	"secure-shred/internal/disk"
	"secure-shred/internal/exitcodes"
	"secure-shred/internal/limiter"
	"secure-shred/internal/logging"
	"secure-shred/internal/metrics"
	"secure-shred/internal/runner"
	"secure-shred/internal/safety"
	"secure-shred/internal/shred"
	"secure-shred/internal/walk"
)

const Version = "1.0.0"

type options struct {
	configPath   string
	passes       int
	blockSize    int
	specialFiles string
	workers      int
	maxSpeed     float64
	auditDB      string
	metricsFile  string
	verbose      bool
}

// exitError carries a process exit code out of RunE
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func main() {
	os.Exit(execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd(stdout, stderr)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return exitcodes.Success
	}

	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintf(stderr, "secure-shred: %v\n", ee.err)
		}
		return ee.code
	}

	// Flag and argument errors from cobra
	fmt.Fprintf(stderr, "secure-shred: %v\n", err)
	return exitcodes.InvalidConfig
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "secure-shred [flags] PATH...",
		Short: "Overwrite, rename and delete files so their contents cannot be recovered",
		Long: `secure-shred overwrites every byte of each file with random data over
several synced passes, truncates it, renames it to a random name and unlinks
it. Directories are processed recursively and removed after their contents.
There is no confirmation and no undo.`,
		Version:       Version,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, args, stdout, stderr)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	f := cmd.Flags()
	f.StringVarP(&opts.configPath, "config", "c", "", "configuration file (default "+config.DefaultPath+" when present)")
	f.IntVarP(&opts.passes, "passes", "n", shred.DefaultPasses, fmt.Sprintf("overwrite passes per file (1-%d)", shred.MaxPasses))
	f.IntVar(&opts.blockSize, "block-size", shred.DefaultBlockSize, "bytes written per chunk")
	f.StringVar(&opts.specialFiles, "special-files", config.SpecialReject, "symlinks, devices, sockets and FIFOs: reject or unlink")
	f.IntVarP(&opts.workers, "workers", "w", 1, fmt.Sprintf("operands processed concurrently (1-%d)", config.MaxWorkers))
	f.Float64Var(&opts.maxSpeed, "max-speed", 0, "maximum write rate in MB/s (0 = unlimited)")
	f.StringVar(&opts.auditDB, "audit-db", "", "record outcomes in this SQLite ledger")
	f.StringVar(&opts.metricsFile, "metrics-file", "", "write Prometheus metrics to this textfile when done")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging and a summary of what was destroyed")

	return cmd
}

// loadConfig reads the config file and applies flags the user set explicitly
func loadConfig(cmd *cobra.Command, opts *options) (*config.Config, error) {
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
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("passes") {
		cfg.Shred.Passes = opts.passes
	}
	if flags.Changed("block-size") {
		cfg.Shred.BlockSize = opts.blockSize
	}
	if flags.Changed("special-files") {
		cfg.Shred.SpecialFiles = opts.specialFiles
	}
	if flags.Changed("workers") {
		cfg.Shred.Workers = opts.workers
	}
	if flags.Changed("max-speed") {
		cfg.Shred.MaxSpeedMBps = opts.maxSpeed
	}
	if flags.Changed("audit-db") {
		if cfg.Audit.DatabasePath, err = absolute(opts.auditDB); err != nil {
			return nil, err
		}
	}
	if flags.Changed("metrics-file") {
		if cfg.Metrics.Textfile, err = absolute(opts.metricsFile); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func absolute(p string) (string, error) {
	if p == "" {
		return "", nil
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", p, err)
	}
	return abs, nil
}

func run(cmd *cobra.Command, opts *options, operands []string, stdout, stderr io.Writer) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return &exitError{code: exitcodes.InvalidConfig, err: err}
	}
	special, err := walk.ParseSpecialPolicy(cfg.Shred.SpecialFiles)
	if err != nil {
		return &exitError{code: exitcodes.InvalidConfig, err: err}
	}

	level := cfg.Logging.Level
	if opts.verbose {
		level = "debug"
	}
	logger, closeLog, err := logging.New(logging.Options{
		Level:        level,
		File:         cfg.Logging.File,
		RotationDays: cfg.Logging.RotationDays,
		Console:      zapcore.Lock(zapcore.AddSync(stderr)),
	})
	if err != nil {
		return &exitError{code: exitcodes.RuntimeError, err: err}
	}
	defer closeLog()

	metrics.Init()

	var ledger walk.Ledger
	if cfg.Audit.DatabasePath != "" {
		logger.Debug("opening audit ledger", zap.String("path", cfg.Audit.DatabasePath))
		db, err := database.NewShredDB(cfg.Audit.DatabasePath, cfg.Audit.RecordPaths)
		if err != nil {
			return &exitError{code: exitcodes.RuntimeError, err: err}
		}
		defer func() {
			if err := db.Close(); err != nil {
				logger.Error("failed to close audit ledger", zap.Error(err))
			}
		}()
		ledger = db
	}

	engine, err := shred.NewEngine(shred.Options{
		Passes:    cfg.Shred.Passes,
		BlockSize: cfg.Shred.BlockSize,
		Limiter:   limiter.NewWriteLimiter(cfg.Shred.MaxSpeedMBps, cfg.Shred.BlockSize),
		Logger:    logger,
	})
	if err != nil {
		return &exitError{code: exitcodes.InvalidConfig, err: err}
	}

	protected := append(append([]string{}, cfg.Safety.ProtectedPaths...), cfg.ToolPaths()...)
	totals := &tally{}
	walker, err := walk.New(walk.Options{
		Engine:     engine,
		Validator:  safety.NewValidator(cfg.Safety.AllowedRoots, protected),
		Special:    special,
		Ledger:     ledger,
		NFSTimeout: cfg.NFSTimeoutDuration(),
		Logger:     logger,
		OnResult:   totals.add,
	})
	if err != nil {
		return &exitError{code: exitcodes.RuntimeError, err: err}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Debug("starting",
		zap.String("run_id", walker.RunID()),
		zap.Int("passes", cfg.Shred.Passes),
		zap.Int("block_size", cfg.Shred.BlockSize),
		zap.Int("workers", cfg.Shred.Workers),
	)
	if opts.verbose {
		describeOperands(logger, operands)
	}

	start := time.Now()
	results := runner.New(walker, cfg.Shred.Workers, logger).Run(ctx, operands)

	for _, res := range results {
		if res.Err != nil {
			fmt.Fprintf(stderr, "failed %s: %s\n", res.Path, reason(res.Err))
			continue
		}
		fmt.Fprintf(stdout, "shredded %s in %s\n", res.Path, res.Elapsed.Round(time.Microsecond))
	}
	if opts.verbose {
		fmt.Fprintln(stdout, totals.summary(cfg.Shred.Passes, time.Since(start)))
	}

	if cfg.Metrics.Textfile != "" {
		if err := metrics.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			logger.Error("failed to write metrics", zap.Error(err))
		}
	}

	if failed := runner.Failed(results); failed > 0 {
		return &exitError{code: exitcodes.TargetFailed}
	}
	return nil
}

// describeOperands logs what each operand holds before it is destroyed
func describeOperands(logger *zap.Logger, operands []string) {
	for _, op := range operands {
		stats, err := disk.Measure(op)
		if err != nil {
			continue
		}
		logger.Info("operand contents",
			zap.String("path", op),
			zap.Int64("files", stats.Files),
			zap.Int64("dirs", stats.Dirs),
			zap.Int64("special", stats.Special),
			zap.String("size", humanize.IBytes(uint64(stats.Bytes))),
		)
	}
}

// reason renders an operand error on one line
func reason(err error) string {
	var merr *multierror.Error
	if errors.As(err, &merr) && len(merr.Errors) > 1 {
		parts := make([]string, 0, len(merr.Errors))
		for _, e := range merr.Errors {
			parts = append(parts, e.Error())
		}
		return fmt.Sprintf("%d errors: %s", len(parts), strings.Join(parts, "; "))
	}
	return err.Error()
}

// tally accumulates walker results; workers report concurrently
type tally struct {
	mu      sync.Mutex
	files   int64
	bytes   int64
	dirs    int64
	nodes   int64
	skipped int64
	failed  int64
}

func (t *tally) add(r walk.Result) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if r.Err != nil {
		if r.Action == database.ActionSkip {
			t.skipped++
		} else {
			t.failed++
		}
		return
	}
	switch r.Action {
	case database.ActionShred:
		t.files++
		t.bytes += r.Bytes
	case database.ActionRmdir:
		t.dirs++
	case database.ActionUnlink:
		t.nodes++
	}
}

func (t *tally) summary(passes int, elapsed time.Duration) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	return fmt.Sprintf("%s files (%s, %d passes), %s directories, %s special nodes removed; %s skipped, %s failed in %s",
		humanize.Comma(t.files),
		humanize.IBytes(uint64(t.bytes)),
		passes,
		humanize.Comma(t.dirs),
		humanize.Comma(t.nodes),
		humanize.Comma(t.skipped),
		humanize.Comma(t.failed),
		elapsed.Round(time.Millisecond),
	)
}
