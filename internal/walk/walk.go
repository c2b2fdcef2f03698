package walk

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"secure-shred/internal/database"
	"secure-shred/internal/disk"
	"secure-shred/internal/fsops"
	"secure-shred/internal/metrics"
	"secure-shred/internal/safety"
	"secure-shred/internal/shred"
)

// SpecialPolicy decides what happens to symlinks, devices, sockets and FIFOs
type SpecialPolicy int

const (
	// RejectSpecial leaves the node in place and reports it as unsupported
	RejectSpecial SpecialPolicy = iota
	// UnlinkSpecial renames and removes the node itself, never writing to it
	UnlinkSpecial
)

// ParseSpecialPolicy maps a config value onto a SpecialPolicy
func ParseSpecialPolicy(s string) (SpecialPolicy, error) {
	switch s {
	case "", "reject":
		return RejectSpecial, nil
	case "unlink":
		return UnlinkSpecial, nil
	default:
		return RejectSpecial, fmt.Errorf("unknown special file policy %q", s)
	}
}

// Object types as reported and recorded
const (
	TypeFile      = "file"
	TypeDirectory = "directory"
	TypeSymlink   = "symlink"
	TypeDevice    = "device"
	TypeSocket    = "socket"
	TypeFIFO      = "fifo"
	TypeOther     = "other"
)

var errStaleMount = errors.New("stale network mount")

// Ledger receives one entry per outcome
type Ledger interface {
	Record(e database.Entry) error
}

// Options configures a Walker
type Options struct {
	Engine    *shred.Engine
	FS        fsops.FS
	Validator *safety.Validator // nil skips safety checks
	Special   SpecialPolicy
	Ledger    Ledger // nil disables auditing
	RunID     string

	// NFSTimeout bounds the stale mount probe for operands on NFS
	NFSTimeout time.Duration

	Logger *zap.Logger

	// OnResult is called once per entry as soon as its outcome is known
	OnResult func(Result)
}

// Result is the outcome for one filesystem entry
type Result struct {
	Path    string
	Type    string
	Action  string
	Bytes   int64
	Passes  int
	Elapsed time.Duration
	Err     error
}

// Walker applies the shred protocol to files and directory trees
type Walker struct {
	engine    *shred.Engine
	fs        fsops.FS
	validator *safety.Validator
	special   SpecialPolicy
	ledger    Ledger
	runID     string
	nfs       time.Duration
	logger    *zap.Logger
	onResult  func(Result)
}

// New creates a Walker; Engine is required
func New(opts Options) (*Walker, error) {
	if opts.Engine == nil {
		return nil, errors.New("walk: engine is required")
	}
	fsys := opts.FS
	if fsys == nil {
		fsys = fsops.OSFS{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	nfs := opts.NFSTimeout
	if nfs <= 0 {
		nfs = 5 * time.Second
	}
	runID := opts.RunID
	if runID == "" {
		runID = database.NewRunID()
	}

	metrics.Init()

	return &Walker{
		engine:    opts.Engine,
		fs:        fsys,
		validator: opts.Validator,
		special:   opts.Special,
		ledger:    opts.Ledger,
		runID:     runID,
		nfs:       nfs,
		logger:    logger.Named("walk"),
		onResult:  opts.OnResult,
	}, nil
}

// RunID identifies this walker's entries in the ledger
func (w *Walker) RunID() string {
	return w.runID
}

// Evaluate destroys the file or directory tree at path. Failures of
// individual entries do not stop their siblings; every failure under path is
// returned in one aggregated error.
func (w *Walker) Evaluate(ctx context.Context, path string) error {
	if w.validator != nil {
		if err := w.validator.ValidateTarget(path); err != nil {
			serr := &shred.Error{Kind: shred.KindRefused, Phase: shred.PhaseValidate, Path: path, Err: err}
			w.report(Result{Path: path, Type: TypeOther, Err: serr})
			return serr
		}
	}

	if err := w.inspect(path); err != nil {
		w.report(Result{Path: path, Type: TypeOther, Err: err})
		return err
	}

	return w.evaluate(ctx, path)
}

// inspect warns about filesystems where overwriting is unreliable and refuses stale mounts
func (w *Walker) inspect(path string) error {
	info, err := disk.Inspect(path)
	if err != nil {
		// A missing operand is reported by the classify step
		w.logger.Debug("filesystem inspection failed", zap.String("path", path), zap.Error(err))
		return nil
	}

	if ok, reason := info.Reliable(); !ok {
		metrics.RecordFilesystemWarning(info.Type)
		w.logger.Warn("overwrite may not destroy previous contents",
			zap.String("path", path),
			zap.String("fstype", info.Type),
			zap.String("reason", reason),
		)
	}

	if info.Type == "nfs" && disk.IsNFSStale(path, w.nfs) {
		return &shred.Error{Kind: shred.KindIO, Phase: shred.PhaseClassify, Path: path, Err: errStaleMount}
	}
	return nil
}

func (w *Walker) evaluate(ctx context.Context, path string) error {
	// Cancellation is only observed between entries, never mid-file
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	info, err := w.fs.Lstat(path)
	if err != nil {
		serr := shred.NewError(shred.PhaseClassify, path, err)
		w.report(Result{Path: path, Type: TypeOther, Err: serr})
		return serr
	}

	mode := info.Mode()
	switch {
	case mode.IsRegular():
		return w.shredFile(path)
	case mode.IsDir():
		return w.walkDir(ctx, path)
	default:
		return w.handleSpecial(path, objectType(mode))
	}
}

func (w *Walker) shredFile(path string) error {
	rep, err := w.engine.Shred(path)
	w.report(Result{
		Path:    path,
		Type:    TypeFile,
		Action:  database.ActionShred,
		Bytes:   rep.Bytes,
		Passes:  rep.Passes,
		Elapsed: rep.Elapsed,
		Err:     err,
	})
	return err
}

// walkDir destroys every entry of a directory, then removes the directory
func (w *Walker) walkDir(ctx context.Context, path string) error {
	start := time.Now()

	entries, err := w.fs.ReadDir(path)
	if err != nil {
		serr := shred.NewError(shred.PhaseReadDir, path, err)
		w.report(Result{Path: path, Type: TypeDirectory, Err: serr})
		return serr
	}

	var result *multierror.Error
	for _, entry := range entries {
		child := filepath.Join(path, entry.Name())

		if w.validator != nil && w.validator.Protects(child) {
			serr := &shred.Error{Kind: shred.KindRefused, Phase: shred.PhaseValidate, Path: child, Err: safety.ErrProtectedPath}
			w.report(Result{Path: child, Type: TypeOther, Err: serr})
			result = multierror.Append(result, serr)
			continue
		}

		if err := w.evaluate(ctx, child); err != nil {
			result = multierror.Append(result, err)
			if ctx.Err() != nil {
				// Leave the rest of the tree and this directory untouched
				return result.ErrorOrNil()
			}
		}
	}

	if err := w.fs.Remove(path); err != nil {
		serr := shred.NewError(shred.PhaseRmdir, path, err)
		w.report(Result{Path: path, Type: TypeDirectory, Err: serr})
		result = multierror.Append(result, serr)
		return result.ErrorOrNil()
	}

	w.report(Result{
		Path:    path,
		Type:    TypeDirectory,
		Action:  database.ActionRmdir,
		Elapsed: time.Since(start),
	})
	return result.ErrorOrNil()
}

// handleSpecial handles symlinks and device nodes according to the policy
func (w *Walker) handleSpecial(path, typ string) error {
	if w.special != UnlinkSpecial {
		serr := &shred.Error{
			Kind:  shred.KindUnsupported,
			Phase: shred.PhaseClassify,
			Path:  path,
			Err:   fmt.Errorf("%s not shredded", typ),
		}
		w.report(Result{Path: path, Type: typ, Err: serr})
		return serr
	}

	rep, err := w.engine.RemoveNode(path)
	w.report(Result{
		Path:    path,
		Type:    typ,
		Action:  database.ActionUnlink,
		Elapsed: rep.Elapsed,
		Err:     err,
	})
	return err
}

// report logs, counts, audits and forwards one outcome
func (w *Walker) report(r Result) {
	entry := database.Entry{
		RunID:      w.runID,
		Action:     r.Action,
		ObjectType: r.Type,
		Path:       r.Path,
		Size:       r.Bytes,
		Passes:     r.Passes,
		Duration:   r.Elapsed,
	}

	if r.Err != nil {
		kind := shred.KindOf(r.Err)
		entry.ErrorKind = kind.String()
		entry.ErrorMessage = r.Err.Error()
		entry.ErrorDetail = shred.Describe(r.Err)
		entry.Action = database.ActionError
		if kind == shred.KindRefused || kind == shred.KindUnsupported {
			entry.Action = database.ActionSkip
		}
		var serr *shred.Error
		if errors.As(r.Err, &serr) {
			entry.Phase = string(serr.Phase)
		}
		r.Action = entry.Action

		metrics.RecordError(entry.ErrorKind)
		if entry.Action == database.ActionSkip {
			w.logger.Warn("skipped", zap.String("path", r.Path), zap.String("type", r.Type), zap.Error(r.Err))
		} else {
			w.logger.Error("failed", zap.String("path", r.Path), zap.String("type", r.Type), zap.Error(r.Err))
		}
	} else {
		switch r.Action {
		case database.ActionShred:
			metrics.RecordShred(r.Bytes, r.Passes, r.Elapsed)
		case database.ActionRmdir:
			metrics.DirsRemovedTotal.Inc()
		case database.ActionUnlink:
			metrics.SpecialUnlinkedTotal.Inc()
		}
		w.logger.Info(actionMessage(r.Action),
			zap.String("path", r.Path),
			zap.String("type", r.Type),
			zap.Int64("bytes", r.Bytes),
			zap.Int("passes", r.Passes),
			zap.Duration("elapsed", r.Elapsed),
		)
	}

	if w.ledger != nil {
		if err := w.ledger.Record(entry); err != nil {
			// Auditing never blocks destruction
			w.logger.Error("failed to record to audit ledger", zap.String("path", r.Path), zap.Error(err))
		}
	}

	if w.onResult != nil {
		w.onResult(r)
	}
}

func actionMessage(action string) string {
	switch action {
	case database.ActionRmdir:
		return "directory removed"
	case database.ActionUnlink:
		return "node unlinked"
	default:
		return "file shredded"
	}
}

func objectType(mode fs.FileMode) string {
	switch {
	case mode&os.ModeSymlink != 0:
		return TypeSymlink
	case mode&os.ModeDevice != 0:
		return TypeDevice
	case mode&os.ModeSocket != 0:
		return TypeSocket
	case mode&os.ModeNamedPipe != 0:
		return TypeFIFO
	default:
		return TypeOther
	}
}
