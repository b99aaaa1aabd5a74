package db

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/neo.lidar/internal/neo"
)

// setupTestDB opens a migrated database in a temporary directory.
func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// startTestSession records a session started at start.
func startTestSession(t *testing.T, db *DB, start time.Time) uuid.UUID {
	t.Helper()
	id := uuid.New()
	if err := db.StartSession(Session{ID: id, Port: "/dev/ttyACM0", MotorHz: 5, SampleRateHz: 500, StartedAt: start}); err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	return id
}

func testScan(session uuid.UUID, seq uint64, at time.Time) neo.Scan {
	return neo.Scan{
		Session:    session,
		Sequence:   seq,
		CapturedAt: at,
		Samples: []neo.Sample{
			{Angle: 0, Distance: 100},
			{Angle: 120, Distance: 200},
			{Angle: 240, Distance: 300, CommError: true},
		},
	}
}
