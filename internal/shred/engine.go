package shred

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"secure-shred/internal/fsops"
	"secure-shred/internal/limiter"
	"secure-shred/internal/random"
)

const (
	DefaultPasses    = 7
	MaxPasses        = 35
	DefaultBlockSize = 4096
	MinBlockSize     = 512
	MaxBlockSize     = 16 * 1024 * 1024
)

var (
	errInvalidPasses    = fmt.Errorf("passes must be between 1 and %d", MaxPasses)
	errInvalidBlockSize = fmt.Errorf("block size must be between %d and %d", MinBlockSize, MaxBlockSize)
)

// Options configures an Engine. Zero values select the defaults.
type Options struct {
	Passes    int
	BlockSize int
	Filler    random.Filler
	FS        fsops.FS
	Limiter   *limiter.WriteLimiter
	Logger    *zap.Logger

	// OnPhase is called after each completed phase with the path the file
	// currently lives at
	OnPhase func(phase Phase, path string)
}

// Report describes one successfully shredded file
type Report struct {
	Path    string
	Renamed string
	Bytes   int64
	Passes  int
	Elapsed time.Duration
}

// Engine destroys single regular files
type Engine struct {
	opts   Options
	logger *zap.Logger
}

// NewEngine validates opts and fills in defaults
func NewEngine(opts Options) (*Engine, error) {
	if opts.Passes == 0 {
		opts.Passes = DefaultPasses
	}
	if opts.Passes < 1 || opts.Passes > MaxPasses {
		return nil, fmt.Errorf("%w, got %d", errInvalidPasses, opts.Passes)
	}
	if opts.BlockSize == 0 {
		opts.BlockSize = DefaultBlockSize
	}
	if opts.BlockSize < MinBlockSize || opts.BlockSize > MaxBlockSize {
		return nil, fmt.Errorf("%w, got %d", errInvalidBlockSize, opts.BlockSize)
	}
	if opts.Filler == nil {
		opts.Filler = random.Default()
	}
	if opts.FS == nil {
		opts.FS = fsops.OSFS{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{opts: opts, logger: logger.Named("shred")}, nil
}

// Passes returns the configured overwrite pass count
func (e *Engine) Passes() int {
	return e.opts.Passes
}

// Shred overwrites, truncates, renames and unlinks the regular file at path.
// Completed phases stay in effect when a later phase fails.
func (e *Engine) Shred(path string) (Report, error) {
	start := time.Now()
	rep := Report{Path: path}

	f, err := e.opts.FS.OpenFile(path)
	if err != nil {
		return rep, NewError(PhaseOpen, path, err)
	}
	closed := false
	defer func() {
		if !closed {
			f.Close()
		}
	}()

	length, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return rep, NewError(PhaseLength, path, err)
	}
	rep.Bytes = length

	buf := make([]byte, e.opts.BlockSize)
	for pass := 1; pass <= e.opts.Passes; pass++ {
		if phase, err := e.overwrite(f, buf, length); err != nil {
			serr := NewError(phase, path, err)
			serr.Pass = pass
			return rep, serr
		}
		rep.Passes = pass
		e.logger.Debug("pass complete", zap.String("path", path), zap.Int("pass", pass), zap.Int64("bytes", length))
	}
	e.notify(PhaseOverwrite, path)

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return rep, NewError(PhaseTruncate, path, err)
	}
	if err := f.Truncate(0); err != nil {
		return rep, NewError(PhaseTruncate, path, err)
	}
	e.notify(PhaseTruncate, path)

	if err := f.Sync(); err != nil {
		return rep, NewError(PhaseSync, path, err)
	}

	closed = true
	if err := f.Close(); err != nil {
		return rep, NewError(PhaseClose, path, err)
	}

	renamed, err := e.rename(path)
	if err != nil {
		return rep, err
	}
	rep.Renamed = renamed
	e.notify(PhaseRename, renamed)

	if err := e.opts.FS.Remove(renamed); err != nil {
		return rep, NewError(PhaseUnlink, path, err)
	}
	e.notify(PhaseUnlink, renamed)

	rep.Elapsed = time.Since(start)
	e.logger.Debug("file shredded",
		zap.String("path", path),
		zap.Int64("bytes", length),
		zap.Int("passes", rep.Passes),
		zap.Duration("elapsed", rep.Elapsed),
	)
	return rep, nil
}

// RemoveNode renames and unlinks path without opening it. It is used for
// symlinks and special files, whose content is never written.
func (e *Engine) RemoveNode(path string) (Report, error) {
	start := time.Now()
	rep := Report{Path: path}

	renamed, err := e.rename(path)
	if err != nil {
		return rep, err
	}
	rep.Renamed = renamed
	e.notify(PhaseRename, renamed)

	if err := e.opts.FS.Remove(renamed); err != nil {
		return rep, NewError(PhaseUnlink, path, err)
	}
	e.notify(PhaseUnlink, renamed)

	rep.Elapsed = time.Since(start)
	return rep, nil
}

// overwrite performs one pass over [0, length) and syncs it
func (e *Engine) overwrite(f fsops.File, buf []byte, length int64) (Phase, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return PhaseOverwrite, err
	}

	block := int64(len(buf))
	for offset := int64(0); offset < length; offset += block {
		chunk := block
		if remaining := length - offset; remaining < chunk {
			chunk = remaining
		}
		if err := fill(e.opts.Filler, buf); err != nil {
			return PhaseOverwrite, err
		}
		if err := e.opts.Limiter.Wait(context.Background(), int(chunk)); err != nil {
			return PhaseOverwrite, err
		}
		// Only chunk bytes: writing the whole buffer would grow the file
		n, err := f.Write(buf[:chunk])
		if err != nil {
			return PhaseOverwrite, err
		}
		if int64(n) != chunk {
			return PhaseOverwrite, io.ErrShortWrite
		}
	}

	if err := f.Sync(); err != nil {
		return PhaseSync, err
	}
	return "", nil
}

// rename moves path to a fresh random sibling name
func (e *Engine) rename(path string) (string, error) {
	original := filepath.Base(path)

	lastErr := errNamesExhausted
	for attempt := 0; attempt < maxNameAttempts; attempt++ {
		name, err := RandomName(e.opts.Filler)
		if err != nil {
			return "", NewError(PhaseRename, path, err)
		}
		if name == original {
			continue
		}
		target := siblingPath(path, name)
		err = e.opts.FS.Rename(path, target)
		if err == nil {
			return target, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", NewError(PhaseRename, path, err)
		}
		e.logger.Debug("random name collision", zap.String("path", path), zap.Int("attempt", attempt+1))
		lastErr = err
	}
	return "", &Error{
		Kind:  KindIO,
		Phase: PhaseRename,
		Path:  path,
		Err:   fmt.Errorf("%d attempts: %w", maxNameAttempts, lastErr),
	}
}

func (e *Engine) notify(phase Phase, path string) {
	if e.opts.OnPhase != nil {
		e.opts.OnPhase(phase, path)
	}
}

// fill tags every filler failure as an entropy failure
func fill(filler random.Filler, buf []byte) error {
	err := filler.Fill(buf)
	if err == nil || errors.Is(err, random.ErrSourceUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", random.ErrSourceUnavailable, err)
}
