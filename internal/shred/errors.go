package shred

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"syscall"

	"secure-shred/internal/random"
)

// Kind classifies why a target could not be destroyed
type Kind int

const (
	KindIO Kind = iota
	KindNotFound
	KindPermissionDenied
	KindRandomSourceUnavailable
	KindDirectoryNotEmpty
	KindUnsupported
	KindRefused
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindPermissionDenied:
		return "permission_denied"
	case KindRandomSourceUnavailable:
		return "random_source_unavailable"
	case KindDirectoryNotEmpty:
		return "directory_not_empty"
	case KindUnsupported:
		return "unsupported"
	case KindRefused:
		return "refused"
	default:
		return "io_failure"
	}
}

// Phase names the protocol step that failed
type Phase string

const (
	PhaseClassify  Phase = "classify"
	PhaseOpen      Phase = "open"
	PhaseLength    Phase = "length"
	PhaseOverwrite Phase = "overwrite"
	PhaseSync      Phase = "sync"
	PhaseTruncate  Phase = "truncate"
	PhaseClose     Phase = "close"
	PhaseRename    Phase = "rename"
	PhaseUnlink    Phase = "unlink"
	PhaseReadDir   Phase = "readdir"
	PhaseRmdir     Phase = "rmdir"
	PhaseValidate  Phase = "validate"
)

// Sentinels for errors.Is matching on Kind
var (
	ErrNotFound                = &Error{Kind: KindNotFound}
	ErrPermissionDenied        = &Error{Kind: KindPermissionDenied}
	ErrRandomSourceUnavailable = &Error{Kind: KindRandomSourceUnavailable}
	ErrIO                      = &Error{Kind: KindIO}
	ErrDirectoryNotEmpty       = &Error{Kind: KindDirectoryNotEmpty}
	ErrUnsupported             = &Error{Kind: KindUnsupported}
	ErrRefused                 = &Error{Kind: KindRefused}
)

// Error is a classified failure for one target
type Error struct {
	Kind  Kind
	Phase Phase
	Path  string
	Pass  int // 1-based overwrite pass, 0 outside the overwrite phase
	Err   error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Path, e.Kind)
	if e.Phase != "" {
		msg += " during " + string(e.Phase)
	}
	if e.Pass > 0 {
		msg += fmt.Sprintf(" (pass %d)", e.Pass)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports a match when target is an *Error of the same Kind
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// NewError classifies err and tags it with phase and path
func NewError(phase Phase, path string, err error) *Error {
	return &Error{Kind: Classify(err), Phase: phase, Path: path, Err: err}
}

// Classify maps a raw filesystem or entropy error onto a Kind
func Classify(err error) Kind {
	var se *Error
	switch {
	case err == nil:
		return KindIO
	case errors.As(err, &se):
		return se.Kind
	case errors.Is(err, random.ErrSourceUnavailable):
		return KindRandomSourceUnavailable
	case errors.Is(err, fs.ErrNotExist):
		return KindNotFound
	case errors.Is(err, fs.ErrPermission):
		return KindPermissionDenied
	case errors.Is(err, syscall.ENOTEMPTY), errors.Is(err, syscall.EEXIST):
		return KindDirectoryNotEmpty
	case errors.Is(err, syscall.ELOOP):
		return KindUnsupported
	default:
		return KindIO
	}
}

// KindOf returns the Kind of a classified error, or KindIO for anything else
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindIO
}

// Describe renders err with its kind, phase, pass and root cause but never a
// path, for sinks that must not learn file names.
func Describe(err error) string {
	if err == nil {
		return ""
	}

	var se *Error
	if !errors.As(err, &se) {
		return KindIO.String() + ": " + rootCause(err)
	}

	msg := se.Kind.String()
	if se.Phase != "" {
		msg += " during " + string(se.Phase)
	}
	if se.Pass > 0 {
		msg += fmt.Sprintf(" (pass %d)", se.Pass)
	}
	if se.Err != nil {
		msg += ": " + rootCause(se.Err)
	}
	return msg
}

// rootCause returns the innermost error, prefixed with the failing syscall
// when a path error carried one. Path and link errors always unwrap past
// their paths.
func rootCause(err error) string {
	op := ""
	var pe *fs.PathError
	var le *os.LinkError
	switch {
	case errors.As(err, &pe):
		op = pe.Op
	case errors.As(err, &le):
		op = le.Op
	}

	for {
		next := errors.Unwrap(err)
		if next == nil {
			break
		}
		err = next
	}

	if op != "" {
		return op + ": " + err.Error()
	}
	return err.Error()
}
