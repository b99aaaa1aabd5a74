package neo

import (
	"time"

	"github.com/banshee-data/neo.lidar/internal/config"
	"github.com/banshee-data/neo.lidar/internal/protocol"
	"github.com/banshee-data/neo.lidar/internal/timeutil"
)

// Options tunes a Device. Zero fields take the value from DefaultOptions.
type Options struct {
	CommandDelay       time.Duration // before bare command writes; negative disables
	StopGracePeriod    time.Duration // after the first stop command
	StopConfirmTimeout time.Duration // bounds the tolerated stop confirmation read
	MotorSettleTime    time.Duration // after setting the bring-up motor speed
	CalibrationWait    time.Duration // between the calibrate command and its reply
	ReadTimeout        time.Duration // serial read timeout, when the port supports one
	CloseTimeout       time.Duration // bounds stopping a scanning device in Close

	ResyncBudget       int
	MaxSamplesPerScan  int
	QueueCapacity      int
	SyncOnlyBoundaries bool // ignore angle wrap and split rotations on the sync flag only
	BringupMotorHz     int  // 1 to 10; zero takes the default

	Clock timeutil.Clock
}

// DefaultOptions returns the driver defaults.
func DefaultOptions() Options {
	return Options{
		CommandDelay:       protocol.DefaultCommandDelay,
		StopGracePeriod:    20 * time.Millisecond,
		StopConfirmTimeout: 500 * time.Millisecond,
		MotorSettleTime:    2 * time.Second,
		CalibrationWait:    10 * time.Second,
		ReadTimeout:        100 * time.Millisecond,
		CloseTimeout:       5 * time.Second,
		ResyncBudget:       protocol.DefaultResyncBudget,
		MaxSamplesPerScan:  4096,
		QueueCapacity:      10,
		BringupMotorHz:     5,
		Clock:              timeutil.RealClock{},
	}
}

// OptionsFromConfig builds Options from a driver config file.
func OptionsFromConfig(cfg *config.DriverConfig) Options {
	return Options{
		CommandDelay:       cfg.GetCommandDelay(),
		StopGracePeriod:    cfg.GetStopGracePeriod(),
		StopConfirmTimeout: cfg.GetStopConfirmTimeout(),
		MotorSettleTime:    cfg.GetMotorSettleTime(),
		CalibrationWait:    cfg.GetCalibrationWait(),
		ReadTimeout:        cfg.GetReadTimeout(),
		CloseTimeout:       cfg.GetCloseTimeout(),
		ResyncBudget:       cfg.GetResyncBudget(),
		MaxSamplesPerScan:  cfg.GetMaxSamplesPerScan(),
		QueueCapacity:      cfg.GetQueueCapacity(),
		SyncOnlyBoundaries: cfg.GetSyncOnlyBoundaries(),
		BringupMotorHz:     cfg.GetBringupMotorHz(),
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.CommandDelay == 0 {
		o.CommandDelay = def.CommandDelay
	}
	if o.StopGracePeriod == 0 {
		o.StopGracePeriod = def.StopGracePeriod
	}
	if o.StopConfirmTimeout <= 0 {
		o.StopConfirmTimeout = def.StopConfirmTimeout
	}
	if o.MotorSettleTime == 0 {
		o.MotorSettleTime = def.MotorSettleTime
	}
	if o.CalibrationWait == 0 {
		o.CalibrationWait = def.CalibrationWait
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = def.ReadTimeout
	}
	if o.CloseTimeout <= 0 {
		o.CloseTimeout = def.CloseTimeout
	}
	if o.ResyncBudget <= 0 {
		o.ResyncBudget = def.ResyncBudget
	}
	if o.MaxSamplesPerScan <= 0 {
		o.MaxSamplesPerScan = def.MaxSamplesPerScan
	}
	if o.QueueCapacity <= 0 {
		o.QueueCapacity = def.QueueCapacity
	}
	if o.BringupMotorHz == 0 {
		o.BringupMotorHz = def.BringupMotorHz
	}
	if o.Clock == nil {
		o.Clock = def.Clock
	}
	return o
}
