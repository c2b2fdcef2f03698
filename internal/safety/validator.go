package safety

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrInvalidPath    = errors.New("invalid path")
	ErrProtectedPath  = errors.New("protected path")
	ErrOutsideAllowed = errors.New("outside allowed roots")
	ErrTraversal      = errors.New("path traversal detected")
	ErrSymlinkEscape  = errors.New("symlink escape detected")
)

// Validator decides whether a path may be shredded
type Validator struct {
	// AllowedRoots restricts targets to these trees; empty allows any unprotected path
	AllowedRoots []string
	// ProtectedPaths are refused together with everything beneath them
	ProtectedPaths []string
	// ExactProtected are refused as targets but their contents are not
	ExactProtected []string

	resolvedRoots []string
}

// NewValidator creates a validator with allowed roots and optional additional protected paths
func NewValidator(allowed []string, extraProtected []string) *Validator {
	roots := normalizeRoots(allowed)
	return &Validator{
		AllowedRoots:   roots,
		ProtectedPaths: defaultProtected(normalizeRoots(extraProtected)),
		ExactProtected: defaultExactProtected(),
		resolvedRoots:  resolveRoots(roots),
	}
}

// ValidateTarget is the single-source-of-truth for shred authorization.
// Returns a sentinel error on safety violation.
func (v *Validator) ValidateTarget(path string) error {
	p, err := NormalizePath(path)
	if err != nil {
		return err
	}

	if IsProtectedPath(p, v.ProtectedPaths) {
		return ErrProtectedPath
	}
	for _, exact := range v.ExactProtected {
		if p == exact {
			return ErrProtectedPath
		}
	}

	if len(v.AllowedRoots) == 0 {
		return v.checkResolved(p)
	}

	if !IsWithinAllowedRoots(p, v.AllowedRoots) {
		return ErrOutsideAllowed
	}
	if DetectTraversal(path) {
		return ErrTraversal
	}
	return v.checkResolved(p)
}

// Protects reports whether path is protected, without the root or symlink
// checks. It is applied to every entry found under an accepted target.
func (v *Validator) Protects(path string) bool {
	p, err := NormalizePath(path)
	if err != nil {
		return false
	}
	if IsProtectedPath(p, v.ProtectedPaths) {
		return true
	}
	for _, exact := range v.ExactProtected {
		if p == exact {
			return true
		}
	}
	return false
}

// checkResolved re-applies the checks to the path with its parent symlinks resolved
func (v *Validator) checkResolved(p string) error {
	resolved, err := ResolveParent(p)
	if err != nil {
		// Missing targets fail later with a not-found error
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if IsProtectedPath(resolved, v.ProtectedPaths) {
		return ErrProtectedPath
	}
	if len(v.AllowedRoots) > 0 && !IsWithinAllowedRoots(resolved, v.resolvedRoots) {
		return ErrSymlinkEscape
	}
	return nil
}

// NormalizePath converts path to absolute, cleaned form
func NormalizePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", ErrInvalidPath
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", ErrInvalidPath
	}
	return filepath.Clean(abs), nil
}

// DetectTraversal blocks any ".." segment in raw input
func DetectTraversal(raw string) bool {
	parts := strings.Split(filepath.ToSlash(raw), "/")
	for _, p := range parts {
		if p == ".." {
			return true
		}
	}
	return false
}

// IsWithinAllowedRoots checks if path is within any allowed root
func IsWithinAllowedRoots(path string, allowedRoots []string) bool {
	p := filepath.Clean(path)
	for _, r := range allowedRoots {
		if hasPathPrefix(p, r) {
			return true
		}
	}
	return false
}

// ResolveParent resolves symlinks in every component except the last.
// The final component is left alone: a symlink target is never shredded.
func ResolveParent(cleanAbs string) (string, error) {
	dir, base := filepath.Split(cleanAbs)
	if base == "" {
		return cleanAbs, nil
	}
	resolvedDir, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return "", err
	}
	if _, err := os.Lstat(cleanAbs); err != nil {
		return "", err
	}
	return filepath.Join(resolvedDir, base), nil
}

// DetectSymlinkEscape reports whether resolving the parent directories of
// cleanAbs leaves the allowed roots
func DetectSymlinkEscape(cleanAbs string, allowedRoots []string) (bool, error) {
	resolved, err := ResolveParent(cleanAbs)
	if err != nil {
		return false, err
	}
	return !IsWithinAllowedRoots(resolved, allowedRoots), nil
}

// IsProtectedPath checks if path matches protected system paths
func IsProtectedPath(path string, protected []string) bool {
	p := filepath.Clean(path)

	// Hard block: "/" exact
	if p == string(os.PathSeparator) {
		return true
	}

	for _, prot := range protected {
		prot = filepath.Clean(prot)
		if p == prot || hasPathPrefix(p, prot) {
			return true
		}
	}
	return false
}

// hasPathPrefix checks if path has the given prefix.
// "/" only matches itself so that protecting it does not protect everything.
func hasPathPrefix(path, prefix string) bool {
	path = filepath.Clean(path)
	prefix = filepath.Clean(prefix)

	if prefix == string(os.PathSeparator) {
		return path == "/"
	}
	if path == prefix {
		return true
	}
	return strings.HasPrefix(path, prefix+string(os.PathSeparator))
}

// normalizeRoots converts slice of roots to absolute, cleaned paths
func normalizeRoots(roots []string) []string {
	out := make([]string, 0, len(roots))
	for _, r := range roots {
		if strings.TrimSpace(r) == "" {
			continue
		}
		abs, err := filepath.Abs(r)
		if err != nil {
			continue
		}
		out = append(out, filepath.Clean(abs))
	}
	return out
}

// resolveRoots resolves symlinks in the roots themselves so that a root
// reached through a link still contains its own files
func resolveRoots(roots []string) []string {
	out := make([]string, 0, len(roots))
	for _, r := range roots {
		if resolved, err := filepath.EvalSymlinks(r); err == nil {
			out = append(out, filepath.Clean(resolved))
			continue
		}
		out = append(out, r)
	}
	return out
}

// defaultProtected returns the base set of protected trees plus any extras
func defaultProtected(extra []string) []string {
	base := []string{
		"/",
		"/etc",
		"/bin",
		"/usr",
		"/boot",
		"/lib",
		"/lib32",
		"/lib64",
		"/sbin",
		"/proc",
		"/sys",
		"/dev",
		"/run",
		"/var/lib/secure-shred",
		"/etc/secure-shred",
	}
	return append(base, extra...)
}

// defaultExactProtected returns directories whose contents may be shredded
// but which must never be removed themselves
func defaultExactProtected() []string {
	exact := []string{
		"/home",
		"/root",
		"/var",
		"/tmp",
		"/var/tmp",
		"/opt",
		"/srv",
		"/mnt",
		"/media",
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		exact = append(exact, filepath.Clean(home))
	}
	return exact
}
