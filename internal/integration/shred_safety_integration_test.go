package integration

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap/zaptest"

	"secure-shred/internal/database"
	"secure-shred/internal/metrics"
	"secure-shred/internal/runner"
	"secure-shred/internal/safety"
	"secure-shred/internal/shred"
	"secure-shred/internal/walk"
)

func init() {
	// Initialize metrics once for all integration tests
	metrics.Init()
}

func newWalker(t *testing.T, allowed []string, special walk.SpecialPolicy, ledger walk.Ledger) *walk.Walker {
	t.Helper()
	logger := zaptest.NewLogger(t)

	engine, err := shred.NewEngine(shred.Options{Passes: 2, Logger: logger})
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	w, err := walk.New(walk.Options{
		Engine:    engine,
		Validator: safety.NewValidator(allowed, nil),
		Special:   special,
		Ledger:    ledger,
		Logger:    logger,
	})
	if err != nil {
		t.Fatalf("walk.New failed: %v", err)
	}
	return w
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create dir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to create %s: %v", path, err)
	}
}

func assertExists(t *testing.T, path, msg string) {
	t.Helper()
	if _, err := os.Lstat(path); err != nil {
		t.Errorf("%s: %s (%v)", msg, path, err)
	}
}

func assertGone(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Lstat(path); !os.IsNotExist(err) {
		t.Errorf("%s should have been destroyed", path)
	}
}

// TestShredSafetyIntegration verifies the complete safety contract against a real filesystem
func TestShredSafetyIntegration(t *testing.T) {
	tmpRoot := t.TempDir()
	allowedDir := filepath.Join(tmpRoot, "allowed")
	protectedDir := filepath.Join(tmpRoot, "protected")

	protectedFile := filepath.Join(protectedDir, "keep.txt")
	mustWrite(t, protectedFile, "MUST KEEP")

	t.Run("Tree_FullyDestroyed", func(t *testing.T) {
		tree := filepath.Join(allowedDir, "old_backups")
		mustWrite(t, filepath.Join(tree, "old.tar.gz"), "old backup")
		mustWrite(t, filepath.Join(tree, "nested", "deep.txt"), "deep")
		if err := os.MkdirAll(filepath.Join(tree, "empty"), 0755); err != nil {
			t.Fatal(err)
		}

		w := newWalker(t, []string{allowedDir}, walk.RejectSpecial, nil)
		if err := w.Evaluate(context.Background(), tree); err != nil {
			t.Fatalf("Evaluate failed: %v", err)
		}
		assertGone(t, tree)
		assertExists(t, allowedDir, "allowed root must survive")
		assertExists(t, protectedFile, "SAFETY VIOLATION: protected file touched")
	})

	t.Run("SymlinkOperand_Rejected", func(t *testing.T) {
		link := filepath.Join(allowedDir, "link_to_protected")
		if err := os.Symlink(protectedFile, link); err != nil {
			t.Fatalf("Failed to create symlink: %v", err)
		}
		defer os.Remove(link)

		w := newWalker(t, []string{allowedDir}, walk.RejectSpecial, nil)
		err := w.Evaluate(context.Background(), link)
		if !errors.Is(err, shred.ErrUnsupported) {
			t.Fatalf("Expected unsupported error, got %v", err)
		}
		assertExists(t, link, "rejected symlink must be left in place")
		assertExists(t, protectedFile, "CRITICAL SAFETY VIOLATION: symlink target touched")
	})

	t.Run("SymlinkOperand_UnlinkNeverTouchesTarget", func(t *testing.T) {
		link := filepath.Join(allowedDir, "link_to_protected")
		if err := os.Symlink(protectedFile, link); err != nil {
			t.Fatalf("Failed to create symlink: %v", err)
		}

		w := newWalker(t, []string{allowedDir}, walk.UnlinkSpecial, nil)
		if err := w.Evaluate(context.Background(), link); err != nil {
			t.Fatalf("Evaluate failed: %v", err)
		}
		assertGone(t, link)

		data, err := os.ReadFile(protectedFile)
		if err != nil || string(data) != "MUST KEEP" {
			t.Errorf("CRITICAL SAFETY VIOLATION: symlink target changed (%q, %v)", data, err)
		}
	})

	t.Run("SymlinkedParent_Escape", func(t *testing.T) {
		escape := filepath.Join(allowedDir, "escape")
		if err := os.Symlink(protectedDir, escape); err != nil {
			t.Fatalf("Failed to create symlink: %v", err)
		}
		defer os.Remove(escape)

		w := newWalker(t, []string{allowedDir}, walk.RejectSpecial, nil)
		err := w.Evaluate(context.Background(), filepath.Join(escape, "keep.txt"))
		if !errors.Is(err, shred.ErrRefused) || !errors.Is(err, safety.ErrSymlinkEscape) {
			t.Fatalf("Expected symlink escape refusal, got %v", err)
		}
		assertExists(t, protectedFile, "CRITICAL SAFETY VIOLATION: file shredded through symlinked parent")
	})

	t.Run("OutsideAllowedRoot_Refused", func(t *testing.T) {
		w := newWalker(t, []string{allowedDir}, walk.RejectSpecial, nil)
		err := w.Evaluate(context.Background(), protectedFile)
		if !errors.Is(err, shred.ErrRefused) || !errors.Is(err, safety.ErrOutsideAllowed) {
			t.Fatalf("Expected outside-root refusal, got %v", err)
		}
		assertExists(t, protectedFile, "CRITICAL SAFETY VIOLATION: file outside allowed root destroyed")
	})

	t.Run("ProtectedPaths_Refused", func(t *testing.T) {
		protectedPaths := []string{
			"/etc/passwd",
			"/bin/sh",
			"/usr/bin/id",
			"/boot/vmlinuz",
			"/",
		}

		w := newWalker(t, []string{"/"}, walk.RejectSpecial, nil)
		for _, path := range protectedPaths {
			err := w.Evaluate(context.Background(), path)
			if !errors.Is(err, shred.ErrRefused) || !errors.Is(err, safety.ErrProtectedPath) {
				t.Errorf("SAFETY VIOLATION: Protected path %s not refused (err=%v)", path, err)
			}
		}
	})
}

// TestRunnerLedgerIntegration runs several operands through the worker pool
// and checks the ledger tells the same story as the results
func TestRunnerLedgerIntegration(t *testing.T) {
	root := t.TempDir()
	dbPath := filepath.Join(t.TempDir(), "ledger.db")

	db, err := database.NewShredDB(dbPath, true)
	if err != nil {
		t.Fatalf("NewShredDB failed: %v", err)
	}
	defer db.Close()

	good := filepath.Join(root, "good.bin")
	mustWrite(t, good, "payload")
	dir := filepath.Join(root, "dir")
	mustWrite(t, filepath.Join(dir, "a"), "a")
	mustWrite(t, filepath.Join(dir, "b"), "bb")
	missing := filepath.Join(root, "missing")

	w := newWalker(t, nil, walk.RejectSpecial, db)
	operands := []string{good, missing, dir}
	results := runner.New(w, 3, zaptest.NewLogger(t)).Run(context.Background(), operands)

	if len(results) != len(operands) {
		t.Fatalf("got %d results, want %d", len(results), len(operands))
	}
	for i, res := range results {
		if res.Path != operands[i] {
			t.Errorf("result %d is for %s, want %s", i, res.Path, operands[i])
		}
	}
	if results[0].Err != nil || results[2].Err != nil {
		t.Errorf("unexpected failures: %v, %v", results[0].Err, results[2].Err)
	}
	if !errors.Is(results[1].Err, shred.ErrNotFound) {
		t.Errorf("missing operand error = %v, want not found", results[1].Err)
	}
	if runner.Failed(results) != 1 {
		t.Errorf("Failed = %d, want 1", runner.Failed(results))
	}

	assertGone(t, good)
	assertGone(t, dir)

	records, err := db.GetByRun(w.RunID())
	if err != nil {
		t.Fatalf("GetByRun failed: %v", err)
	}

	counts := map[string]int{}
	for _, r := range records {
		counts[r.Action]++
		if r.Action == database.ActionShred && r.Passes != 2 {
			t.Errorf("record %s has %d passes, want 2", r.Path, r.Passes)
		}
	}
	if counts[database.ActionShred] != 3 || counts[database.ActionRmdir] != 1 || counts[database.ActionError] != 1 {
		t.Errorf("unexpected ledger actions %v", counts)
	}
}

// TestShredMetrics verifies metrics are recorded for a real shred
func TestShredMetrics(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "metric_test.txt")
	testData := "test data for metrics"
	mustWrite(t, testFile, testData)

	filesBefore := testutil.ToFloat64(metrics.FilesShreddedTotal)
	bytesBefore := testutil.ToFloat64(metrics.BytesOverwrittenTotal)

	w := newWalker(t, []string{tmpDir}, walk.RejectSpecial, nil)
	if err := w.Evaluate(context.Background(), testFile); err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	if got := testutil.ToFloat64(metrics.FilesShreddedTotal) - filesBefore; got != 1 {
		t.Errorf("Expected 1 file shredded, got %v", got)
	}
	// Two passes over the file
	if got := testutil.ToFloat64(metrics.BytesOverwrittenTotal) - bytesBefore; got != float64(2*len(testData)) {
		t.Errorf("Expected %d bytes overwritten, got %v", 2*len(testData), got)
	}
}
