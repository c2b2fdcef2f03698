package database

import (
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/zeebo/blake3"
)

// Actions recorded in the ledger
const (
	ActionShred  = "SHRED"
	ActionRmdir  = "RMDIR"
	ActionUnlink = "UNLINK"
	ActionError  = "ERROR"
	ActionSkip   = "SKIP"
)

// ShredDB manages the SQLite audit ledger of shred outcomes.
// It never stores file content, and stores plain paths only when asked to.
type ShredDB struct {
	db          *sql.DB
	recordPaths bool
}

// Entry is one outcome to be recorded
type Entry struct {
	RunID        string
	Action       string
	ObjectType   string
	Path         string
	Size         int64
	Passes       int
	Phase        string
	ErrorKind    string
	ErrorMessage string
	ErrorDetail  string // ErrorMessage without any path, stored when paths are not recorded
	Duration     time.Duration
}

// ShredRecord represents a single stored ledger row
type ShredRecord struct {
	ID           int64     `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	RunID        string    `json:"run_id"`
	Action       string    `json:"action"`
	ObjectType   string    `json:"object_type"`
	Path         string    `json:"path,omitempty"`
	PathDigest   string    `json:"path_digest"`
	Size         int64     `json:"size"`
	Passes       int       `json:"passes"`
	Phase        string    `json:"phase,omitempty"`
	ErrorKind    string    `json:"error_kind,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	DurationMs   int64     `json:"duration_ms"`
}

// NewRunID returns a fresh identifier grouping the entries of one invocation
func NewRunID() string {
	return uuid.NewString()
}

// PathDigest returns the hex BLAKE3 digest of the absolute, cleaned path, so
// an entry recorded for a relative operand is found by its absolute path
func PathDigest(path string) string {
	sum := blake3.Sum256([]byte(absolutePath(path)))
	return hex.EncodeToString(sum[:])
}

func absolutePath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return abs
}

// NewShredDB creates a new database connection and initializes schema
func NewShredDB(dbPath string, recordPaths bool) (*ShredDB, error) {
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	// _loc=auto enables automatic DATETIME parsing
	db, err := sql.Open("sqlite3", "file:"+dbPath+"?_loc=auto")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err != nil {
			db.Close()
		}
	}()

	// Exec instead of Ping so the file is created up front
	if _, err = db.Exec("SELECT 1"); err != nil {
		return nil, fmt.Errorf("failed to initialize database (check permissions on %s): %w", dbPath, err)
	}

	// Concurrent workers write through one handle; WAL keeps readers unblocked
	if _, err = db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err = db.Exec("PRAGMA synchronous=NORMAL"); err != nil {
		return nil, fmt.Errorf("failed to set synchronous mode: %w", err)
	}
	if _, err = db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	sdb := &ShredDB{db: db, recordPaths: recordPaths}
	if err = sdb.initSchema(); err != nil {
		return nil, err
	}
	return sdb, nil
}

// initSchema creates tables and indexes if they don't exist
func (d *ShredDB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS shreds (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL,
		run_id TEXT NOT NULL,
		action TEXT NOT NULL,
		object_type TEXT NOT NULL,
		path TEXT,
		path_digest TEXT NOT NULL,
		size INTEGER NOT NULL,
		passes INTEGER NOT NULL,
		phase TEXT,
		error_kind TEXT,
		error_message TEXT,
		duration_ms INTEGER NOT NULL,

		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_timestamp ON shreds(timestamp);
	CREATE INDEX IF NOT EXISTS idx_run_id ON shreds(run_id);
	CREATE INDEX IF NOT EXISTS idx_action ON shreds(action);
	CREATE INDEX IF NOT EXISTS idx_path_digest ON shreds(path_digest);
	CREATE INDEX IF NOT EXISTS idx_error_kind ON shreds(error_kind);

	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`

	_, err := d.db.Exec(schema)
	return err
}

// Record inserts one outcome into the ledger
func (d *ShredDB) Record(e Entry) error {
	var path, phase, errKind, errMsg sql.NullString
	message := e.ErrorDetail
	if d.recordPaths {
		path = sql.NullString{String: absolutePath(e.Path), Valid: true}
		message = e.ErrorMessage
	}
	if e.Phase != "" {
		phase = sql.NullString{String: e.Phase, Valid: true}
	}
	if e.ErrorKind != "" {
		errKind = sql.NullString{String: e.ErrorKind, Valid: true}
	}
	if message != "" {
		errMsg = sql.NullString{String: message, Valid: true}
	}

	query := `
	INSERT INTO shreds (
		timestamp, run_id, action, object_type, path, path_digest,
		size, passes, phase, error_kind, error_message, duration_ms
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := d.db.Exec(
		query,
		time.Now(),
		e.RunID,
		e.Action,
		e.ObjectType,
		path,
		PathDigest(e.Path),
		e.Size,
		e.Passes,
		phase,
		errKind,
		errMsg,
		e.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to record %s entry: %w", e.Action, err)
	}
	return nil
}

// Close closes the database connection
func (d *ShredDB) Close() error {
	return d.db.Close()
}

// Vacuum optimizes the database (run after large prunes)
func (d *ShredDB) Vacuum() error {
	_, err := d.db.Exec("VACUUM")
	return err
}

// GetDatabaseStats returns database statistics
func (d *ShredDB) GetDatabaseStats() (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	var totalRecords int64
	err := d.db.QueryRow("SELECT COUNT(*) FROM shreds").Scan(&totalRecords)
	if err != nil {
		return nil, err
	}
	stats["total_records"] = totalRecords

	var pageCount, pageSize int64
	if err := d.db.QueryRow("PRAGMA page_count").Scan(&pageCount); err != nil {
		return nil, err
	}
	if err := d.db.QueryRow("PRAGMA page_size").Scan(&pageSize); err != nil {
		return nil, err
	}
	stats["database_size_bytes"] = pageCount * pageSize

	var oldest, newest sql.NullString
	err = d.db.QueryRow("SELECT MIN(timestamp), MAX(timestamp) FROM shreds").Scan(&oldest, &newest)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	if t, ok := parseTimestamp(oldest); ok {
		stats["oldest_record"] = t
	}
	if t, ok := parseTimestamp(newest); ok {
		stats["newest_record"] = t
	}

	return stats, nil
}

// Aggregates come back as text, so try the layouts the driver writes
var timestampLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05-07:00",
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
}

func parseTimestamp(s sql.NullString) (time.Time, bool) {
	if !s.Valid || s.String == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s.String); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
