package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Fullex26/smsrelay/pkg/models"
)

const DefaultDBPath = "/var/lib/smsrelay/relay.db"

// Store persists run and delivery records in SQLite. Records hold
// outcomes only, never SMS senders or content.
type Store struct {
	db *sql.DB
}

// SinkStats counts delivery outcomes for one sink
type SinkStats struct {
	Sink      string
	Delivered int
	Failed    int
}

// Open creates or opens the SQLite database
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	return s, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS records (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			run_id TEXT NOT NULL,
			timestamp DATETIME NOT NULL,
			state TEXT,
			sink TEXT,
			success BOOLEAN,
			status_code INTEGER,
			error TEXT,
			payload TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_records_timestamp ON records(timestamp);
		CREATE INDEX IF NOT EXISTS idx_records_kind ON records(kind);
		CREATE INDEX IF NOT EXISTS idx_records_run ON records(run_id);

		CREATE TABLE IF NOT EXISTS state (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`)
	return err
}

// SaveRecord persists a record to the database
func (s *Store) SaveRecord(rec models.Record) error {
	payload, _ := json.Marshal(rec)

	var sink string
	var success bool
	var status int
	errText := rec.Error
	if rec.Outcome != nil {
		sink = rec.Outcome.Sink
		success = rec.Outcome.Success
		status = rec.Outcome.StatusCode
		errText = rec.Outcome.Error
	}

	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO records (id, kind, run_id, timestamp, state, sink, success, status_code, error, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Kind, rec.RunID, rec.Timestamp, rec.State,
		sink, success, status, errText, string(payload),
	)
	return err
}

// GetRecentRecords returns records from the last N hours, newest first
func (s *Store) GetRecentRecords(hours int) ([]models.Record, error) {
	since := time.Now().Add(-time.Duration(hours) * time.Hour)
	rows, err := s.db.Query(`
		SELECT payload FROM records
		WHERE timestamp > ?
		ORDER BY timestamp DESC
		LIMIT 100`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.Record
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			continue
		}
		var rec models.Record
		if err := json.Unmarshal([]byte(payload), &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// GetRunCounts returns the number of runs per final state in the last N hours
func (s *Store) GetRunCounts(hours int) (map[string]int, error) {
	since := time.Now().Add(-time.Duration(hours) * time.Hour)
	rows, err := s.db.Query(`
		SELECT state, COUNT(*) FROM records
		WHERE kind = ? AND timestamp > ?
		GROUP BY state`, models.RecordRun, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, err
		}
		counts[state] = n
	}
	return counts, rows.Err()
}

// GetSinkStats returns delivery outcomes per sink in the last N hours
func (s *Store) GetSinkStats(hours int) ([]SinkStats, error) {
	since := time.Now().Add(-time.Duration(hours) * time.Hour)
	rows, err := s.db.Query(`
		SELECT sink,
			SUM(CASE WHEN success THEN 1 ELSE 0 END),
			SUM(CASE WHEN success THEN 0 ELSE 1 END)
		FROM records
		WHERE kind = ? AND timestamp > ?
		GROUP BY sink
		ORDER BY sink`, models.RecordDelivery, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []SinkStats
	for rows.Next() {
		var st SinkStats
		if err := rows.Scan(&st.Sink, &st.Delivered, &st.Failed); err != nil {
			return nil, err
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

// GetLastRunTime returns when the last run finished
func (s *Store) GetLastRunTime() (string, error) {
	var timestamp time.Time
	err := s.db.QueryRow(`
		SELECT timestamp FROM records
		WHERE kind = ?
		ORDER BY timestamp DESC
		LIMIT 1`, models.RecordRun).Scan(&timestamp)
	if err != nil {
		return "never", nil
	}

	diff := time.Since(timestamp)
	if diff < time.Hour {
		return fmt.Sprintf("%d minutes ago", int(diff.Minutes())), nil
	}
	if diff < 24*time.Hour {
		return fmt.Sprintf("%d hours ago", int(diff.Hours())), nil
	}
	return fmt.Sprintf("%d days ago", int(diff.Hours()/24)), nil
}

// SetState stores a key-value pair
func (s *Store) SetState(key, value string) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO state (key, value) VALUES (?, ?)`, key, value)
	return err
}

// GetState retrieves a stored value
func (s *Store) GetState(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM state WHERE key = ?`, key).Scan(&value)
	return value, err
}

// Prune removes records older than N days
func (s *Store) Prune(days int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -days)
	result, err := s.db.Exec(`DELETE FROM records WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
