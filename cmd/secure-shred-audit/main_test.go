package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"secure-shred/internal/database"
	"secure-shred/internal/exitcodes"
)

func seedLedger(t *testing.T) (string, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "ledger.db")
	db, err := database.NewShredDB(dbPath, true)
	if err != nil {
		t.Fatalf("failed to create ledger: %v", err)
	}
	defer db.Close()

	runID := database.NewRunID()
	entries := []database.Entry{
		{RunID: runID, Action: database.ActionShred, ObjectType: "file", Path: "/data/a", Size: 4096, Passes: 7, Duration: 12 * time.Millisecond},
		{RunID: runID, Action: database.ActionShred, ObjectType: "file", Path: "/data/b", Size: 10, Passes: 7},
		{RunID: runID, Action: database.ActionError, ObjectType: "file", Path: "/data/c", Phase: "open", ErrorKind: "PermissionDenied", ErrorMessage: "denied"},
		{RunID: runID, Action: database.ActionRmdir, ObjectType: "directory", Path: "/data"},
	}
	for _, e := range entries {
		if err := db.Record(e); err != nil {
			t.Fatalf("failed to record: %v", err)
		}
	}
	return dbPath, runID
}

func runAudit(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := execute(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRecent(t *testing.T) {
	dbPath, _ := seedLedger(t)

	code, stdout, stderr := runAudit(t, "--db", dbPath, "recent", "--limit", "2")
	if code != exitcodes.Success {
		t.Fatalf("exit code = %d, stderr: %s", code, stderr)
	}
	if !strings.Contains(stdout, "RMDIR") {
		t.Errorf("expected most recent entry in output:\n%s", stdout)
	}
	if strings.Contains(stdout, "/data/a") {
		t.Errorf("limit not applied:\n%s", stdout)
	}
}

func TestRecentByActionJSON(t *testing.T) {
	dbPath, _ := seedLedger(t)

	code, stdout, stderr := runAudit(t, "--db", dbPath, "--json", "recent", "--action", "ERROR")
	if code != exitcodes.Success {
		t.Fatalf("exit code = %d, stderr: %s", code, stderr)
	}

	var records []database.ShredRecord
	if err := json.Unmarshal([]byte(stdout), &records); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, stdout)
	}
	if len(records) != 1 || records[0].ErrorKind != "PermissionDenied" {
		t.Errorf("unexpected records %+v", records)
	}
}

func TestRunAndStats(t *testing.T) {
	dbPath, runID := seedLedger(t)

	code, stdout, _ := runAudit(t, "--db", dbPath, "--json", "run", runID)
	if code != exitcodes.Success {
		t.Fatalf("run exit code = %d", code)
	}
	var records []database.ShredRecord
	if err := json.Unmarshal([]byte(stdout), &records); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(records) != 4 || records[0].Path != "/data/a" || records[3].Action != database.ActionRmdir {
		t.Errorf("unexpected run records %+v", records)
	}

	code, stdout, _ = runAudit(t, "--db", dbPath, "stats")
	if code != exitcodes.Success {
		t.Fatalf("stats exit code = %d", code)
	}
	for _, want := range []string{"Files Shredded:     2", "Errors:             1", "PermissionDenied"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("stats output missing %q:\n%s", want, stdout)
		}
	}
}

func TestPathAndPrune(t *testing.T) {
	dbPath, _ := seedLedger(t)

	code, stdout, _ := runAudit(t, "--db", dbPath, "path", "/data/b")
	if code != exitcodes.Success || !strings.Contains(stdout, "/data/b") {
		t.Fatalf("path lookup failed (code %d):\n%s", code, stdout)
	}

	code, stdout, _ = runAudit(t, "--db", dbPath, "prune", "--older-than", "1", "--vacuum")
	if code != exitcodes.Success {
		t.Fatalf("prune exit code = %d", code)
	}
	if !strings.Contains(stdout, "Deleted 0 entries") {
		t.Errorf("fresh entries should survive prune:\n%s", stdout)
	}

	code, _, _ = runAudit(t, "--db", dbPath, "prune", "--older-than", "0")
	if code != exitcodes.InvalidConfig {
		t.Errorf("prune --older-than 0 exit code = %d, want %d", code, exitcodes.InvalidConfig)
	}
}

func TestMissingLedger(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "none.db")

	code, _, stderr := runAudit(t, "--db", missing, "recent")
	if code != exitcodes.RuntimeError {
		t.Errorf("exit code = %d, want %d", code, exitcodes.RuntimeError)
	}
	if !strings.Contains(stderr, "no ledger") {
		t.Errorf("unexpected stderr %q", stderr)
	}
	if _, err := os.Stat(missing); !os.IsNotExist(err) {
		t.Error("query created a ledger")
	}
}

func TestLedgerFromConfig(t *testing.T) {
	dbPath, _ := seedLedger(t)
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("audit:\n  database_path: "+dbPath+"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	code, stdout, stderr := runAudit(t, "--config", cfgPath, "info")
	if code != exitcodes.Success {
		t.Fatalf("exit code = %d, stderr: %s", code, stderr)
	}
	if !strings.Contains(stdout, "Records:  4") {
		t.Errorf("unexpected info output:\n%s", stdout)
	}
}
