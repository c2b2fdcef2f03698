package safety

import (
	"os"
	"path/filepath"
	"testing"
)

// TestProtectedPathBlocking verifies protected paths are blocked
func TestProtectedPathBlocking(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		expected bool
	}{
		{"root slash", "/", true},
		{"etc", "/etc", true},
		{"etc subdir", "/etc/ssh", true},
		{"bin", "/bin", true},
		{"bin file", "/bin/bash", true},
		{"usr", "/usr", true},
		{"usr local", "/usr/local", true},
		{"boot", "/boot", true},
		{"boot grub", "/boot/grub2", true},
		{"lib", "/lib", true},
		{"lib64", "/lib64", true},
		{"sbin", "/sbin", true},
		{"proc", "/proc/self/mem", true},
		{"dev", "/dev/sda", true},
		{"sys", "/sys/block", true},
		{"config dir", "/etc/secure-shred", true},
		{"config file", "/etc/secure-shred/config.yaml", true},
		{"ledger dir", "/var/lib/secure-shred", true},
		{"ledger file", "/var/lib/secure-shred/audit.db", true},
		{"tmp file", "/tmp/file.txt", false},
		{"var tmp file", "/var/tmp/file", false},
		{"home user file", "/home/user/secret.txt", false},
		{"similar prefix", "/etcetera/file", false},
	}

	protected := defaultProtected(nil)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsProtectedPath(tt.path, protected)
			if result != tt.expected {
				t.Errorf("IsProtectedPath(%s) = %v, expected %v", tt.path, result, tt.expected)
			}
		})
	}
}

// TestAllowedRootEnforcement verifies paths are restricted to allowed roots
func TestAllowedRootEnforcement(t *testing.T) {
	allowed := []string{"/tmp/allowed", "/var/scratch"}

	tests := []struct {
		name     string
		path     string
		expected bool
	}{
		{"inside allowed tmp", "/tmp/allowed/file.txt", true},
		{"inside allowed var", "/var/scratch/old.log", true},
		{"allowed root exact", "/tmp/allowed", true},
		{"outside allowed", "/tmp/notallowed/file.txt", false},
		{"parent of allowed", "/tmp", false},
		{"completely different", "/home/user/file.txt", false},
		{"root", "/", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsWithinAllowedRoots(tt.path, allowed)
			if result != tt.expected {
				t.Errorf("IsWithinAllowedRoots(%s) = %v, expected %v", tt.path, result, tt.expected)
			}
		})
	}
}

// TestPathNormalization verifies paths are normalized correctly
func TestPathNormalization(t *testing.T) {
	tests := []struct {
		name        string
		path        string
		expectError bool
	}{
		{"absolute path", "/tmp/file.txt", false},
		{"relative path", "file.txt", false},
		{"path with dots", "/tmp/./file.txt", false},
		{"empty path", "", true},
		{"whitespace only", "   ", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := NormalizePath(tt.path)
			if tt.expectError {
				if err == nil {
					t.Errorf("NormalizePath(%s) expected error, got nil", tt.path)
				}
				return
			}
			if err != nil {
				t.Errorf("NormalizePath(%s) unexpected error: %v", tt.path, err)
			}
			if !filepath.IsAbs(result) {
				t.Errorf("NormalizePath(%s) = %s, expected absolute path", tt.path, result)
			}
		})
	}
}

// TestTraversalDetection verifies ".." segments are detected
func TestTraversalDetection(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		expected bool
	}{
		{"normal path", "/tmp/file.txt", false},
		{"dotdot parent", "/tmp/../etc/passwd", true},
		{"dotdot at start", "../etc/passwd", true},
		{"dotdot at end", "/tmp/..", true},
		{"single dot ok", "/tmp/./file", false},
		{"dots in name", "/tmp/..hidden", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := DetectTraversal(tt.path)
			if result != tt.expected {
				t.Errorf("DetectTraversal(%s) = %v, expected %v", tt.path, result, tt.expected)
			}
		})
	}
}

// TestSymlinkEscapeDetection verifies symlinked parents escaping allowed roots are detected
func TestSymlinkEscapeDetection(t *testing.T) {
	tmpDir := t.TempDir()
	allowedDir := filepath.Join(tmpDir, "allowed")
	outsideDir := filepath.Join(tmpDir, "outside")

	if err := os.MkdirAll(allowedDir, 0755); err != nil {
		t.Fatalf("Failed to create allowed dir: %v", err)
	}
	if err := os.MkdirAll(outsideDir, 0755); err != nil {
		t.Fatalf("Failed to create outside dir: %v", err)
	}

	outsideFile := filepath.Join(outsideDir, "target.txt")
	if err := os.WriteFile(outsideFile, []byte("outside"), 0644); err != nil {
		t.Fatalf("Failed to create outside file: %v", err)
	}
	insideFile := filepath.Join(allowedDir, "inside.txt")
	if err := os.WriteFile(insideFile, []byte("inside"), 0644); err != nil {
		t.Fatalf("Failed to create inside file: %v", err)
	}

	// Directory link: files reached through it live outside
	dirLink := filepath.Join(allowedDir, "dir_link")
	if err := os.Symlink(outsideDir, dirLink); err != nil {
		t.Fatalf("Failed to create symlink: %v", err)
	}
	// File link: the link node itself lives inside
	fileLink := filepath.Join(allowedDir, "file_link")
	if err := os.Symlink(outsideFile, fileLink); err != nil {
		t.Fatalf("Failed to create symlink: %v", err)
	}

	allowed := []string{allowedDir}

	tests := []struct {
		name         string
		path         string
		expectEscape bool
		expectError  bool
	}{
		{"file through directory link", filepath.Join(dirLink, "target.txt"), true, false},
		{"link node stays inside", fileLink, false, false},
		{"regular file inside", insideFile, false, false},
		{"nonexistent path", filepath.Join(allowedDir, "nonexistent"), false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			escaped, err := DetectSymlinkEscape(tt.path, allowed)
			if tt.expectError {
				if err == nil {
					t.Errorf("DetectSymlinkEscape(%s) expected error, got nil", tt.path)
				}
				return
			}
			if err != nil {
				t.Errorf("DetectSymlinkEscape(%s) unexpected error: %v", tt.path, err)
			}
			if escaped != tt.expectEscape {
				t.Errorf("DetectSymlinkEscape(%s) = %v, expected %v", tt.path, escaped, tt.expectEscape)
			}
		})
	}
}

// TestValidateTarget is the integration test for the full safety contract
func TestValidateTarget(t *testing.T) {
	tmpDir := t.TempDir()
	allowedDir := filepath.Join(tmpDir, "allowed")
	outsideDir := filepath.Join(tmpDir, "outside")

	if err := os.MkdirAll(allowedDir, 0755); err != nil {
		t.Fatalf("Failed to create allowed dir: %v", err)
	}
	if err := os.MkdirAll(outsideDir, 0755); err != nil {
		t.Fatalf("Failed to create outside dir: %v", err)
	}

	insideFile := filepath.Join(allowedDir, "shred_me.txt")
	if err := os.WriteFile(insideFile, []byte("test"), 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}
	outsideFile := filepath.Join(outsideDir, "keep_me.txt")
	if err := os.WriteFile(outsideFile, []byte("keep"), 0644); err != nil {
		t.Fatalf("Failed to create outside file: %v", err)
	}
	escapingDir := filepath.Join(allowedDir, "escape")
	if err := os.Symlink(outsideDir, escapingDir); err != nil {
		t.Fatalf("Failed to create escaping symlink: %v", err)
	}

	validator := NewValidator([]string{allowedDir}, nil)

	tests := []struct {
		name        string
		path        string
		expectError error
	}{
		{"allowed file", insideFile, nil},
		{"missing file inside", filepath.Join(allowedDir, "missing"), nil},
		{"outside allowed", outsideFile, ErrOutsideAllowed},
		{"protected /etc", "/etc/passwd", ErrProtectedPath},
		{"protected /bin", "/bin/sh", ErrProtectedPath},
		{"protected root", "/", ErrProtectedPath},
		{"protected home", "/home", ErrProtectedPath},
		{"escaping directory link", filepath.Join(escapingDir, "keep_me.txt"), ErrSymlinkEscape},
		{"traversal attempt", allowedDir + "/sub/../shred_me.txt", ErrTraversal},
		{"empty path", "", ErrInvalidPath},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.ValidateTarget(tt.path)
			if err != tt.expectError {
				t.Errorf("ValidateTarget(%q) = %v, expected %v", tt.path, err, tt.expectError)
			}
		})
	}
}

// TestValidateTargetNoRoots verifies an empty root list allows any unprotected path
func TestValidateTargetNoRoots(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "file.txt")
	if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	ledgerDir := filepath.Join(dir, "ledger")

	validator := NewValidator(nil, []string{ledgerDir})

	if err := validator.ValidateTarget(file); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := validator.ValidateTarget(filepath.Join(ledgerDir, "audit.db")); err != ErrProtectedPath {
		t.Errorf("extra protected path not enforced: %v", err)
	}
	if err := validator.ValidateTarget("/usr/bin/env"); err != ErrProtectedPath {
		t.Errorf("expected protected path, got %v", err)
	}
}

// TestHasPathPrefix verifies the path prefix checking logic
func TestHasPathPrefix(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		prefix   string
		expected bool
	}{
		{"exact match", "/tmp/allowed", "/tmp/allowed", true},
		{"subdirectory", "/tmp/allowed/sub", "/tmp/allowed", true},
		{"not a prefix", "/tmp/other", "/tmp/allowed", false},
		{"partial match", "/tmp/allowedother", "/tmp/allowed", false},
		{"root prefix matches only root", "/tmp", "/", false},
		{"root itself", "/", "/", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := hasPathPrefix(tt.path, tt.prefix)
			if result != tt.expected {
				t.Errorf("hasPathPrefix(%s, %s) = %v, expected %v", tt.path, tt.prefix, result, tt.expected)
			}
		})
	}
}

func TestProtects(t *testing.T) {
	dir := t.TempDir()
	ledger := filepath.Join(dir, "audit.db")
	validator := NewValidator(nil, []string{ledger})

	tests := []struct {
		path     string
		expected bool
	}{
		{ledger, true},
		{filepath.Join(dir, "other.txt"), false},
		{"/etc/hosts", true},
		{"/home", true},
		{"/home/someone/file", false},
	}

	for _, tt := range tests {
		if got := validator.Protects(tt.path); got != tt.expected {
			t.Errorf("Protects(%s) = %v, expected %v", tt.path, got, tt.expected)
		}
	}
}
