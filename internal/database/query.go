package database

import (
	"database/sql"
	"time"
)

const selectColumns = `
	SELECT id, timestamp, run_id, action, object_type, path, path_digest,
	       size, passes, phase, error_kind, error_message, duration_ms
	FROM shreds
`

// GetRecent returns the N most recent ledger entries
func (d *ShredDB) GetRecent(limit int) ([]ShredRecord, error) {
	return d.queryRecords(selectColumns+`
	ORDER BY timestamp DESC, id DESC
	LIMIT ?`, limit)
}

// GetByAction returns the N most recent entries with the given action
func (d *ShredDB) GetByAction(action string, limit int) ([]ShredRecord, error) {
	return d.queryRecords(selectColumns+`
	WHERE action = ?
	ORDER BY timestamp DESC, id DESC
	LIMIT ?`, action, limit)
}

// GetByRun returns every entry of one invocation in insertion order
func (d *ShredDB) GetByRun(runID string) ([]ShredRecord, error) {
	return d.queryRecords(selectColumns+`
	WHERE run_id = ?
	ORDER BY id ASC`, runID)
}

// GetByPath returns entries whose digest matches path
func (d *ShredDB) GetByPath(path string) ([]ShredRecord, error) {
	return d.queryRecords(selectColumns+`
	WHERE path_digest = ?
	ORDER BY timestamp DESC, id DESC`, PathDigest(path))
}

// ShredStats holds aggregated statistics
type ShredStats struct {
	FilesShredded    int            `json:"files_shredded"`
	DirsRemoved      int            `json:"dirs_removed"`
	NodesUnlinked    int            `json:"nodes_unlinked"`
	Errors           int            `json:"errors"`
	Skipped          int            `json:"skipped"`
	BytesOverwritten int64          `json:"bytes_overwritten"`
	Runs             int            `json:"runs"`
	ByErrorKind      map[string]int `json:"by_error_kind"`
	StartDate        time.Time      `json:"start_date"`
	EndDate          time.Time      `json:"end_date"`
}

// GetStats returns aggregated statistics for the last N days
func (d *ShredDB) GetStats(days int) (*ShredStats, error) {
	now := time.Now()
	since := now.AddDate(0, 0, -days)

	stats := &ShredStats{
		StartDate:   since,
		EndDate:     now,
		ByErrorKind: make(map[string]int),
	}

	err := d.db.QueryRow(`
		SELECT
			COUNT(CASE WHEN action = 'SHRED' THEN 1 END),
			COUNT(CASE WHEN action = 'RMDIR' THEN 1 END),
			COUNT(CASE WHEN action = 'UNLINK' THEN 1 END),
			COUNT(CASE WHEN action = 'ERROR' THEN 1 END),
			COUNT(CASE WHEN action = 'SKIP' THEN 1 END),
			COALESCE(SUM(CASE WHEN action = 'SHRED' THEN size * passes END), 0),
			COUNT(DISTINCT run_id)
		FROM shreds
		WHERE timestamp >= ?
	`, since).Scan(
		&stats.FilesShredded,
		&stats.DirsRemoved,
		&stats.NodesUnlinked,
		&stats.Errors,
		&stats.Skipped,
		&stats.BytesOverwritten,
		&stats.Runs,
	)
	if err != nil {
		return nil, err
	}

	rows, err := d.db.Query(`
		SELECT error_kind, COUNT(*)
		FROM shreds
		WHERE action = 'ERROR' AND timestamp >= ?
		GROUP BY error_kind
	`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var kind sql.NullString
		var count int
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, err
		}
		stats.ByErrorKind[kind.String] = count
	}

	return stats, rows.Err()
}

// DeleteOldRecords removes records older than the given number of days
func (d *ShredDB) DeleteOldRecords(olderThanDays int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -olderThanDays)

	result, err := d.db.Exec(`DELETE FROM shreds WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// queryRecords executes a query and scans the result rows
func (d *ShredDB) queryRecords(query string, args ...interface{}) ([]ShredRecord, error) {
	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []ShredRecord
	for rows.Next() {
		var r ShredRecord
		var path, phase, errKind, errMsg sql.NullString

		err := rows.Scan(
			&r.ID, &r.Timestamp, &r.RunID, &r.Action, &r.ObjectType,
			&path, &r.PathDigest, &r.Size, &r.Passes,
			&phase, &errKind, &errMsg, &r.DurationMs,
		)
		if err != nil {
			return nil, err
		}

		r.Path = path.String
		r.Phase = phase.String
		r.ErrorKind = errKind.String
		r.ErrorMessage = errMsg.String

		records = append(records, r)
	}

	return records, rows.Err()
}
