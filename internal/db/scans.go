package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/neo.lidar/internal/neo"
	"github.com/banshee-data/neo.lidar/internal/scanfile"
	"github.com/banshee-data/neo.lidar/internal/scanstats"
)

// ErrNotFound is returned when a session or scan does not exist.
var ErrNotFound = errors.New("not found")

// Session describes one StartScanning to StopScanning run.
type Session struct {
	ID           uuid.UUID  `json:"session_id"`
	Port         string     `json:"port"`
	MotorHz      int        `json:"motor_hz"`
	SampleRateHz int        `json:"sample_rate_hz"`
	StartedAt    time.Time  `json:"started_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	ScanCount    int        `json:"scan_count"`
}

// StartSession records the start of a scan session.
func (db *DB) StartSession(s Session) error {
	_, err := db.Exec(
		`INSERT INTO sessions (session_id, port, motor_hz, sample_rate_hz, started_unix_nanos)
		VALUES (?, ?, ?, ?, ?)`,
		s.ID.String(), s.Port, s.MotorHz, s.SampleRateHz, s.StartedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert session %s: %w", s.ID, err)
	}
	return nil
}

// EndSession stamps the end time of a session.
func (db *DB) EndSession(id uuid.UUID, at time.Time) error {
	res, err := db.Exec(`UPDATE sessions SET ended_unix_nanos = ? WHERE session_id = ?`, at.UnixNano(), id.String())
	if err != nil {
		return fmt.Errorf("failed to end session %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return nil
}

// RecordScan stores a scan with its summary. The scan's session must have
// been started.
func (db *DB) RecordScan(scan neo.Scan) error {
	sum := scanstats.Summarize(scan)
	_, err := db.Exec(
		`INSERT INTO scans (
			session_id, sequence, captured_unix_nanos, sample_count, valid_count,
			comm_errors, mean_distance_cm, scan_blob
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		scan.Session.String(), scan.Sequence, scan.CapturedAt.UnixNano(), sum.Samples, sum.Valid,
		sum.CommErrors, sum.MeanDistance, scanfile.Marshal(scan),
	)
	if err != nil {
		return fmt.Errorf("failed to insert scan %s/%d: %w", scan.Session, scan.Sequence, err)
	}
	return nil
}

// Sessions lists sessions, most recent first.
func (db *DB) Sessions() ([]Session, error) {
	rows, err := db.Query(`
		SELECT s.session_id, s.port, s.motor_hz, s.sample_rate_hz,
			s.started_unix_nanos, s.ended_unix_nanos,
			(SELECT COUNT(*) FROM scans c WHERE c.session_id = s.session_id)
		FROM sessions s
		ORDER BY s.started_unix_nanos DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var (
			s       Session
			id      string
			started int64
			ended   sql.NullInt64
		)
		if err := rows.Scan(&id, &s.Port, &s.MotorHz, &s.SampleRateHz, &started, &ended, &s.ScanCount); err != nil {
			return nil, err
		}
		if s.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("session id %q: %w", id, err)
		}
		s.StartedAt = time.Unix(0, started).UTC()
		if ended.Valid {
			t := time.Unix(0, ended.Int64).UTC()
			s.EndedAt = &t
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// Scans returns every scan of a session in sequence order.
func (db *DB) Scans(session uuid.UUID) ([]neo.Scan, error) {
	rows, err := db.Query(`SELECT scan_blob FROM scans WHERE session_id = ? ORDER BY sequence`, session.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scans []neo.Scan
	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			return nil, err
		}
		scan, err := scanfile.Unmarshal(blob)
		if err != nil {
			return nil, err
		}
		scans = append(scans, scan)
	}
	return scans, rows.Err()
}

// LatestScan returns the most recently captured scan.
func (db *DB) LatestScan() (neo.Scan, error) {
	var blob []byte
	err := db.QueryRow(`SELECT scan_blob FROM scans ORDER BY captured_unix_nanos DESC, sequence DESC LIMIT 1`).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return neo.Scan{}, ErrNotFound
	}
	if err != nil {
		return neo.Scan{}, err
	}
	return scanfile.Unmarshal(blob)
}
