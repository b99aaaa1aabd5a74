package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/neo.lidar/internal/config"
	"github.com/banshee-data/neo.lidar/internal/db"
	"github.com/banshee-data/neo.lidar/internal/monitor"
	"github.com/banshee-data/neo.lidar/internal/monitoring"
	"github.com/banshee-data/neo.lidar/internal/neo"
	"github.com/banshee-data/neo.lidar/internal/scanfile"
	"github.com/banshee-data/neo.lidar/internal/timeutil"
)

func newSimDevice(t *testing.T) (*neo.Device, *neo.Simulator) {
	t.Helper()
	monitoring.SetLogger(nil)
	sim := neo.NewSimulator(neo.SimulatorConfig{SamplesPerRotation: 12})
	dev, err := neo.New(context.Background(), sim, neo.Options{
		Clock:       timeutil.NewMockClock(time.Unix(0, 0)),
		ReadTimeout: 5 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("neo.New failed: %v", err)
	}
	t.Cleanup(func() { dev.Close() })
	return dev, sim
}

func TestFlagDefaults(t *testing.T) {
	if *scanCount != 1 {
		t.Errorf("-scans default = %d, want 1", *scanCount)
	}
	if *devMode || *listPorts || *printAll {
		t.Error("boolean flags should default to false")
	}
	if *listen != "" || *dbPath != "" || *recordPath != "" {
		t.Error("optional outputs should be disabled by default")
	}
}

func TestApplySettings(t *testing.T) {
	dev, sim := newSimDevice(t)
	ctx := context.Background()

	cfg := config.DefaultDriverConfig()
	motor, rate := 8, 1000
	cfg.MotorSpeedHz = &motor
	cfg.SampleRateHz = &rate

	if err := applySettings(ctx, dev, cfg); err != nil {
		t.Fatalf("applySettings failed: %v", err)
	}
	if sim.MotorHz() != 8 {
		t.Errorf("motor = %d Hz, want 8", sim.MotorHz())
	}
	if got, err := dev.GetSampleRate(ctx); err != nil || got != 1000 {
		t.Errorf("sample rate = %d, %v; want 1000", got, err)
	}

	bad := 600
	cfg.MotorSpeedHz = nil
	cfg.SampleRateHz = &bad
	if err := applySettings(ctx, dev, cfg); err == nil {
		t.Error("expected error for unsupported sample rate")
	}
}

func TestApplySettings_NothingRequested(t *testing.T) {
	dev, sim := newSimDevice(t)
	before := len(sim.Commands())
	if err := applySettings(context.Background(), dev, config.EmptyDriverConfig()); err != nil {
		t.Fatalf("applySettings failed: %v", err)
	}
	if len(sim.Commands()) != before {
		t.Errorf("unexpected commands: %s", sim.CommandLog())
	}
}

func TestScanLoop_AllSinks(t *testing.T) {
	dev, _ := newSimDevice(t)
	ctx := context.Background()

	store, err := db.NewDB(filepath.Join(t.TempDir(), "scans.db"))
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	defer store.Close()

	if err := dev.StartScanning(ctx); err != nil {
		t.Fatalf("StartScanning failed: %v", err)
	}
	session := dev.Stats().Session
	if err := store.StartSession(db.Session{ID: session, StartedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}

	var out, rec bytes.Buffer
	w := scanfile.NewWriter(&rec)
	mon := monitor.New(dev.Stats)
	last, n, err := scanLoop(ctx, dev, 3, sinks{out: &out, samples: true, db: store, record: w, monitor: mon})
	if err != nil {
		t.Fatalf("scanLoop failed: %v", err)
	}
	if n != 3 || last.Sequence != 3 {
		t.Errorf("read %d scans, last sequence %d; want 3, 3", n, last.Sequence)
	}
	if err := dev.StopScanning(ctx); err != nil {
		t.Fatal(err)
	}

	text := out.String()
	if !strings.Contains(text, "scan 1: 12 samples") || !strings.Contains(text, "scan 3:") {
		t.Errorf("unexpected output:\n%s", text)
	}
	if strings.Count(text, "angle ") != 36 {
		t.Errorf("printed %d samples, want 36", strings.Count(text, "angle "))
	}

	stored, err := store.Scans(session)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != 3 {
		t.Errorf("stored %d scans, want 3", len(stored))
	}

	if err := w.Flush(); err != nil {
		t.Fatal(err)
	}
	recorded, err := scanfile.NewReader(&rec).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(recorded) != 3 || recorded[2].Sequence != 3 {
		t.Errorf("recorded %d scans", len(recorded))
	}

	if latest, ok := mon.Latest(); !ok || latest.Sequence != 3 {
		t.Errorf("monitor latest = %d, %v; want 3", latest.Sequence, ok)
	}
}

func TestScanLoop_CancelIsClean(t *testing.T) {
	dev, _ := newSimDevice(t)
	if err := dev.StartScanning(context.Background()); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	var out bytes.Buffer
	_, n, err := scanLoop(ctx, dev, 0, sinks{out: &out})
	if err != nil {
		t.Errorf("scanLoop returned %v after cancellation", err)
	}
	if n == 0 {
		t.Error("expected some scans before cancellation")
	}
}

func TestScanLoop_PipelineFailure(t *testing.T) {
	dev, sim := newSimDevice(t)
	ctx := context.Background()
	sim.CorruptStream()
	if err := dev.StartScanning(ctx); err != nil {
		t.Fatal(err)
	}

	_, n, err := scanLoop(ctx, dev, 5, sinks{out: &bytes.Buffer{}})
	if err == nil {
		t.Fatal("expected pipeline error")
	}
	if n != 0 {
		t.Errorf("read %d scans from a corrupt stream", n)
	}
}
