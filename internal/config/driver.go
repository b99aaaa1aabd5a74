package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/neo.lidar/internal/serialport"
)

// DefaultConfigPath is the path to the canonical driver defaults file.
const DefaultConfigPath = "config/neo.defaults.json"

// DriverConfig holds the serial link settings and the timing knobs of the
// driver. Every field is optional; the Get* methods supply defaults.
type DriverConfig struct {
	// Serial link
	Port     *string `json:"port,omitempty"`
	BaudRate *int    `json:"baud_rate,omitempty"`
	DataBits *int    `json:"data_bits,omitempty"`
	StopBits *int    `json:"stop_bits,omitempty"`
	Parity   *string `json:"parity,omitempty"`

	// Timing, as duration strings like "20ms"
	ReadTimeout        *string `json:"read_timeout,omitempty"`
	CommandDelay       *string `json:"command_delay,omitempty"`
	StopGracePeriod    *string `json:"stop_grace_period,omitempty"`
	StopConfirmTimeout *string `json:"stop_confirm_timeout,omitempty"`
	MotorSettleTime    *string `json:"motor_settle_time,omitempty"`
	CalibrationWait    *string `json:"calibration_wait,omitempty"`
	CloseTimeout       *string `json:"close_timeout,omitempty"`

	// Scan pipeline
	ResyncBudget       *int  `json:"resync_budget,omitempty"`
	MaxSamplesPerScan  *int  `json:"max_samples_per_scan,omitempty"`
	QueueCapacity      *int  `json:"queue_capacity,omitempty"`
	SyncOnlyBoundaries *bool `json:"sync_only_boundaries,omitempty"`

	// Motor and sampling
	BringupMotorHz *int `json:"bringup_motor_hz,omitempty"`
	MotorSpeedHz   *int `json:"motor_speed_hz,omitempty"` // applied after bring-up when set
	SampleRateHz   *int `json:"sample_rate_hz,omitempty"` // applied after bring-up when set
}

func ptrString(v string) *string { return &v }
func ptrInt(v int) *int          { return &v }
func ptrBool(v bool) *bool       { return &v }

// EmptyDriverConfig returns a DriverConfig with all fields unset.
func EmptyDriverConfig() *DriverConfig {
	return &DriverConfig{}
}

// DefaultDriverConfig returns a config with every field set to its default.
func DefaultDriverConfig() *DriverConfig {
	return &DriverConfig{
		Port:               ptrString(""),
		BaudRate:           ptrInt(serialport.DefaultBaudRate),
		DataBits:           ptrInt(8),
		StopBits:           ptrInt(1),
		Parity:             ptrString("N"),
		ReadTimeout:        ptrString("100ms"),
		CommandDelay:       ptrString("2ms"),
		StopGracePeriod:    ptrString("20ms"),
		StopConfirmTimeout: ptrString("500ms"),
		MotorSettleTime:    ptrString("2s"),
		CalibrationWait:    ptrString("10s"),
		CloseTimeout:       ptrString("5s"),
		ResyncBudget:       ptrInt(100),
		MaxSamplesPerScan:  ptrInt(4096),
		QueueCapacity:      ptrInt(10),
		SyncOnlyBoundaries: ptrBool(false),
		BringupMotorHz:     ptrInt(5),
	}
}

// LoadDriverConfig loads a DriverConfig from a JSON file. The file must have
// a .json extension and be under 1MB. Omitted fields keep their defaults.
func LoadDriverConfig(path string) (*DriverConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyDriverConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *DriverConfig) Validate() error {
	if _, err := c.PortOptions().Normalize(); err != nil {
		return err
	}

	durations := []struct {
		name string
		v    *string
	}{
		{"read_timeout", c.ReadTimeout},
		{"command_delay", c.CommandDelay},
		{"stop_grace_period", c.StopGracePeriod},
		{"stop_confirm_timeout", c.StopConfirmTimeout},
		{"motor_settle_time", c.MotorSettleTime},
		{"calibration_wait", c.CalibrationWait},
		{"close_timeout", c.CloseTimeout},
	}
	for _, d := range durations {
		if d.v == nil || *d.v == "" {
			continue
		}
		v, err := time.ParseDuration(*d.v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", d.name, *d.v, err)
		}
		if v < 0 {
			return fmt.Errorf("%s must be non-negative, got %s", d.name, v)
		}
	}

	if c.ResyncBudget != nil && *c.ResyncBudget < 1 {
		return fmt.Errorf("resync_budget must be at least 1, got %d", *c.ResyncBudget)
	}
	if c.MaxSamplesPerScan != nil && *c.MaxSamplesPerScan < 1 {
		return fmt.Errorf("max_samples_per_scan must be at least 1, got %d", *c.MaxSamplesPerScan)
	}
	if c.QueueCapacity != nil && *c.QueueCapacity < 1 {
		return fmt.Errorf("queue_capacity must be at least 1, got %d", *c.QueueCapacity)
	}
	// A stopped motor cannot calibrate, so bring-up needs at least 1 Hz.
	if c.BringupMotorHz != nil && (*c.BringupMotorHz < 1 || *c.BringupMotorHz > 10) {
		return fmt.Errorf("bringup_motor_hz must be between 1 and 10, got %d", *c.BringupMotorHz)
	}
	if c.MotorSpeedHz != nil && (*c.MotorSpeedHz < 0 || *c.MotorSpeedHz > 10) {
		return fmt.Errorf("motor_speed_hz must be between 0 and 10, got %d", *c.MotorSpeedHz)
	}
	if c.SampleRateHz != nil {
		switch *c.SampleRateHz {
		case 500, 750, 1000:
		default:
			return fmt.Errorf("sample_rate_hz must be 500, 750 or 1000, got %d", *c.SampleRateHz)
		}
	}

	return nil
}

func durationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def // default on parse error
	}
	return d
}

// GetPort returns the serial device path, or "" when unset.
func (c *DriverConfig) GetPort() string {
	if c.Port == nil {
		return ""
	}
	return *c.Port
}

// PortOptions returns the serial link settings. Unset fields are left zero
// for serialport.PortOptions.Normalize to default.
func (c *DriverConfig) PortOptions() serialport.PortOptions {
	var o serialport.PortOptions
	if c.BaudRate != nil {
		o.BaudRate = *c.BaudRate
	}
	if c.DataBits != nil {
		o.DataBits = *c.DataBits
	}
	if c.StopBits != nil {
		o.StopBits = *c.StopBits
	}
	if c.Parity != nil {
		o.Parity = *c.Parity
	}
	return o
}

// GetReadTimeout returns the serial read timeout used for cancellable reads.
func (c *DriverConfig) GetReadTimeout() time.Duration {
	return durationOr(c.ReadTimeout, 100*time.Millisecond)
}

// GetCommandDelay returns the delay before bare command writes.
func (c *DriverConfig) GetCommandDelay() time.Duration {
	return durationOr(c.CommandDelay, 2*time.Millisecond)
}

// GetStopGracePeriod returns the pause after the first stop command.
func (c *DriverConfig) GetStopGracePeriod() time.Duration {
	return durationOr(c.StopGracePeriod, 20*time.Millisecond)
}

// GetStopConfirmTimeout bounds the tolerated first stop confirmation read.
func (c *DriverConfig) GetStopConfirmTimeout() time.Duration {
	return durationOr(c.StopConfirmTimeout, 500*time.Millisecond)
}

// GetMotorSettleTime returns the wait for the motor to stabilise at bring-up.
func (c *DriverConfig) GetMotorSettleTime() time.Duration {
	return durationOr(c.MotorSettleTime, 2*time.Second)
}

// GetCalibrationWait returns how long calibration is given before its
// confirmation is read.
func (c *DriverConfig) GetCalibrationWait() time.Duration {
	return durationOr(c.CalibrationWait, 10*time.Second)
}

// GetCloseTimeout bounds the stop sequence run by Close.
func (c *DriverConfig) GetCloseTimeout() time.Duration {
	return durationOr(c.CloseTimeout, 5*time.Second)
}

// GetResyncBudget returns the resync_budget value or the default.
func (c *DriverConfig) GetResyncBudget() int {
	if c.ResyncBudget == nil {
		return 100
	}
	return *c.ResyncBudget
}

// GetMaxSamplesPerScan returns the max_samples_per_scan value or the default.
func (c *DriverConfig) GetMaxSamplesPerScan() int {
	if c.MaxSamplesPerScan == nil {
		return 4096
	}
	return *c.MaxSamplesPerScan
}

// GetQueueCapacity returns the queue_capacity value or the default.
func (c *DriverConfig) GetQueueCapacity() int {
	if c.QueueCapacity == nil {
		return 10
	}
	return *c.QueueCapacity
}

// GetSyncOnlyBoundaries returns the sync_only_boundaries value or the default.
func (c *DriverConfig) GetSyncOnlyBoundaries() bool {
	if c.SyncOnlyBoundaries == nil {
		return false // default: sync flag or angle wrap
	}
	return *c.SyncOnlyBoundaries
}

// GetBringupMotorHz returns the bringup_motor_hz value or the default.
func (c *DriverConfig) GetBringupMotorHz() int {
	if c.BringupMotorHz == nil {
		return 5
	}
	return *c.BringupMotorHz
}

// GetMotorSpeedHz returns the motor speed to apply after bring-up.
func (c *DriverConfig) GetMotorSpeedHz() (int, bool) {
	if c.MotorSpeedHz == nil {
		return 0, false
	}
	return *c.MotorSpeedHz, true
}

// GetSampleRateHz returns the sample rate to apply after bring-up.
func (c *DriverConfig) GetSampleRateHz() (int, bool) {
	if c.SampleRateHz == nil {
		return 0, false
	}
	return *c.SampleRateHz, true
}
