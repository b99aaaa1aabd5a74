package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestDefaultDriverConfig(t *testing.T) {
	cfg := DefaultDriverConfig()

	if cfg.BaudRate == nil || *cfg.BaudRate != 115200 {
		t.Errorf("Expected BaudRate 115200, got %v", cfg.BaudRate)
	}
	if cfg.StopGracePeriod == nil || *cfg.StopGracePeriod != "20ms" {
		t.Errorf("Expected StopGracePeriod '20ms', got %v", cfg.StopGracePeriod)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultDriverConfig().Validate() = %v", err)
	}
}

func TestEmptyDriverConfig_Getters(t *testing.T) {
	cfg := EmptyDriverConfig()
	def := DefaultDriverConfig()

	if cfg.GetReadTimeout() != def.GetReadTimeout() {
		t.Errorf("GetReadTimeout() = %v, want %v", cfg.GetReadTimeout(), def.GetReadTimeout())
	}
	if cfg.GetCommandDelay() != 2*time.Millisecond {
		t.Errorf("GetCommandDelay() = %v, want 2ms", cfg.GetCommandDelay())
	}
	if cfg.GetStopGracePeriod() != 20*time.Millisecond {
		t.Errorf("GetStopGracePeriod() = %v, want 20ms", cfg.GetStopGracePeriod())
	}
	if cfg.GetCalibrationWait() != 10*time.Second {
		t.Errorf("GetCalibrationWait() = %v, want 10s", cfg.GetCalibrationWait())
	}
	if cfg.GetMotorSettleTime() != def.GetMotorSettleTime() {
		t.Errorf("GetMotorSettleTime() = %v, want %v", cfg.GetMotorSettleTime(), def.GetMotorSettleTime())
	}
	if cfg.GetStopConfirmTimeout() != def.GetStopConfirmTimeout() {
		t.Errorf("GetStopConfirmTimeout() = %v, want %v", cfg.GetStopConfirmTimeout(), def.GetStopConfirmTimeout())
	}
	if cfg.GetCloseTimeout() != def.GetCloseTimeout() {
		t.Errorf("GetCloseTimeout() = %v, want %v", cfg.GetCloseTimeout(), def.GetCloseTimeout())
	}
	if cfg.GetResyncBudget() != 100 {
		t.Errorf("GetResyncBudget() = %d, want 100", cfg.GetResyncBudget())
	}
	if cfg.GetMaxSamplesPerScan() != 4096 {
		t.Errorf("GetMaxSamplesPerScan() = %d, want 4096", cfg.GetMaxSamplesPerScan())
	}
	if cfg.GetQueueCapacity() != *def.QueueCapacity {
		t.Errorf("GetQueueCapacity() = %d, want %d", cfg.GetQueueCapacity(), *def.QueueCapacity)
	}
	if cfg.GetSyncOnlyBoundaries() {
		t.Error("GetSyncOnlyBoundaries() = true, want false")
	}
	if cfg.GetBringupMotorHz() != 5 {
		t.Errorf("GetBringupMotorHz() = %d, want 5", cfg.GetBringupMotorHz())
	}
	if _, ok := cfg.GetMotorSpeedHz(); ok {
		t.Error("GetMotorSpeedHz() reported a value on empty config")
	}
	if _, ok := cfg.GetSampleRateHz(); ok {
		t.Error("GetSampleRateHz() reported a value on empty config")
	}
	if cfg.GetPort() != "" {
		t.Errorf("GetPort() = %q, want empty", cfg.GetPort())
	}
	if got := cfg.PortOptions().String(); got != "115200/8N1" {
		t.Errorf("PortOptions() = %q, want 115200/8N1", got)
	}
}

func TestLoadDriverConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "neo.json")

	testJSON := `{
  "port": "/dev/ttyACM0",
  "baud_rate": 230400,
  "stop_grace_period": "50ms",
  "resync_budget": 20,
  "sync_only_boundaries": true,
  "motor_speed_hz": 7,
  "sample_rate_hz": 750
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadDriverConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.GetPort() != "/dev/ttyACM0" {
		t.Errorf("GetPort() = %q", cfg.GetPort())
	}
	if cfg.PortOptions().BaudRate != 230400 {
		t.Errorf("BaudRate = %d, want 230400", cfg.PortOptions().BaudRate)
	}
	if cfg.GetStopGracePeriod() != 50*time.Millisecond {
		t.Errorf("GetStopGracePeriod() = %v, want 50ms", cfg.GetStopGracePeriod())
	}
	if cfg.GetResyncBudget() != 20 {
		t.Errorf("GetResyncBudget() = %d, want 20", cfg.GetResyncBudget())
	}
	if !cfg.GetSyncOnlyBoundaries() {
		t.Error("GetSyncOnlyBoundaries() = false, want true")
	}
	if hz, ok := cfg.GetMotorSpeedHz(); !ok || hz != 7 {
		t.Errorf("GetMotorSpeedHz() = %d, %v; want 7, true", hz, ok)
	}
	if hz, ok := cfg.GetSampleRateHz(); !ok || hz != 750 {
		t.Errorf("GetSampleRateHz() = %d, %v; want 750, true", hz, ok)
	}
	// Omitted fields keep defaults.
	if cfg.GetCalibrationWait() != 10*time.Second {
		t.Errorf("GetCalibrationWait() = %v, want 10s", cfg.GetCalibrationWait())
	}
}

func TestLoadDriverConfig_Errors(t *testing.T) {
	tmpDir := t.TempDir()

	write := func(name, body string) string {
		p := filepath.Join(tmpDir, name)
		if err := os.WriteFile(p, []byte(body), 0644); err != nil {
			t.Fatalf("Failed to write %s: %v", name, err)
		}
		return p
	}

	tests := []struct {
		name    string
		path    string
		wantErr string
	}{
		{"wrong extension", write("neo.yaml", "{}"), ".json extension"},
		{"missing file", filepath.Join(tmpDir, "absent.json"), "failed to stat"},
		{"bad json", write("bad.json", "{"), "failed to parse"},
		{"bad duration", write("dur.json", `{"command_delay": "fast"}`), "invalid command_delay"},
		{"negative duration", write("neg.json", `{"read_timeout": "-1s"}`), "read_timeout must be non-negative"},
		{"bad baud", write("baud.json", `{"baud_rate": 1234}`), "unsupported baud rate"},
		{"motor out of range", write("motor.json", `{"motor_speed_hz": 11}`), "motor_speed_hz"},
		{"bad sample rate", write("rate.json", `{"sample_rate_hz": 600}`), "sample_rate_hz"},
		{"zero queue", write("queue.json", `{"queue_capacity": 0}`), "queue_capacity"},
		{"zero budget", write("budget.json", `{"resync_budget": 0}`), "resync_budget"},
		{"zero bringup motor", write("bringup.json", `{"bringup_motor_hz": 0}`), "bringup_motor_hz must be between 1 and 10"},
		{"bringup motor too fast", write("bringup11.json", `{"bringup_motor_hz": 11}`), "bringup_motor_hz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadDriverConfig(tt.path)
			if err == nil {
				t.Fatalf("LoadDriverConfig(%s) expected error", tt.path)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadDriverConfig_TooLarge(t *testing.T) {
	p := filepath.Join(t.TempDir(), "big.json")
	big := make([]byte, 1024*1024+1)
	for i := range big {
		big[i] = ' '
	}
	if err := os.WriteFile(p, big, 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadDriverConfig(p); err == nil || !strings.Contains(err.Error(), "too large") {
		t.Errorf("LoadDriverConfig(big) error = %v, want too large", err)
	}
}

func TestShippedDefaultsMatchBuiltIn(t *testing.T) {
	cfg, err := LoadDriverConfig(filepath.Join("..", "..", DefaultConfigPath))
	if err != nil {
		t.Fatalf("LoadDriverConfig(%s) failed: %v", DefaultConfigPath, err)
	}
	if diff := cmp.Diff(DefaultDriverConfig(), cfg); diff != "" {
		t.Errorf("%s differs from DefaultDriverConfig() (-builtin +file):\n%s", DefaultConfigPath, diff)
	}
}
