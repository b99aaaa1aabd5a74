// Package neo drives a neo spinning rangefinder: device bring-up, motor and
// sample rate control, and the background pipeline that turns the sample
// stream into whole-rotation scans.
package neo

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/banshee-data/neo.lidar/internal/monitoring"
	"github.com/banshee-data/neo.lidar/internal/protocol"
	"github.com/banshee-data/neo.lidar/internal/queue"
	"github.com/banshee-data/neo.lidar/internal/serialport"
)

// State is the device acquisition state.
type State int

const (
	StateIdle State = iota
	StateScanning
	StateStopping // StopScanning or Close is halting acquisition
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	case StateStopping:
		return "stopping"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Motor speed limits in Hz.
const (
	MinMotorHz = 0
	MaxMotorHz = 10
)

// sampleRateCodes maps supported sample rates in Hz to their wire codes.
var sampleRateCodes = map[int]int{500: 1, 750: 2, 1000: 3}

// Stats is a snapshot of device counters.
type Stats struct {
	State      State
	Session    uuid.UUID // current or most recent scan session
	Scans      uint64    // scans handed to the queue, all sessions
	Samples    uint64
	CommErrors uint64 // samples carrying the device's communication error bit
	Codec      protocol.Stats
}

// Device is an open sensor. Commands other than GetScan are serialised on
// an internal lock. GetScan, State and Stats never wait on that lock, so a
// consumer may keep calling GetScan while another goroutine stops the device.
type Device struct {
	port  serialport.Port
	codec *protocol.Codec
	opts  Options
	queue *queue.Bounded[result]

	mu       sync.Mutex // held for every exchange on the link
	cancel   context.CancelFunc
	done     chan struct{}
	counters pipelineCounters

	// statusMu guards state and session. Writers hold mu as well, so code
	// running under mu reads them directly.
	statusMu sync.Mutex
	state    State
	session  uuid.UUID

	closeOnce sync.Once
	closeErr  error
}

// Open opens the serial port at path and brings the device up.
func Open(ctx context.Context, path string, portOpts serialport.PortOptions, opts Options) (*Device, error) {
	return OpenWith(ctx, serialport.Open, path, portOpts, opts)
}

// OpenWith is Open with a caller-supplied port opener.
func OpenWith(ctx context.Context, open serialport.Opener, path string, portOpts serialport.PortOptions, opts Options) (*Device, error) {
	port, err := open(path, portOpts)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", protocol.ErrTransport, path, err)
	}
	monitoring.Logf("neo: opened %s at %s", path, portOpts)
	return New(ctx, port, opts)
}

// New takes ownership of port and runs the bring-up sequence: stop any
// acquisition left running, spin the motor up and let it settle, calibrate,
// then stop again. The port is closed if bring-up fails.
func New(ctx context.Context, port serialport.Port, opts Options) (*Device, error) {
	opts = opts.withDefaults()

	if tp, ok := port.(serialport.TimeoutPort); ok {
		if err := tp.SetReadTimeout(opts.ReadTimeout); err != nil {
			port.Close()
			return nil, fmt.Errorf("%w: set read timeout: %w", protocol.ErrTransport, err)
		}
	}

	d := &Device{
		port: port,
		codec: protocol.NewCodec(port, protocol.CodecConfig{
			CommandDelay: opts.CommandDelay,
			ResyncBudget: opts.ResyncBudget,
			Clock:        opts.Clock,
		}),
		opts:  opts,
		state: StateIdle,
		queue: queue.NewBounded[result](opts.QueueCapacity),
	}

	if err := d.bringUp(ctx); err != nil {
		port.Close()
		return nil, fmt.Errorf("neo: bring-up: %w", err)
	}
	monitoring.Logf("neo: device ready")
	return d, nil
}

func (d *Device) bringUp(ctx context.Context) error {
	if err := d.stopSequence(ctx); err != nil {
		return fmt.Errorf("initial stop: %w", err)
	}
	if err := d.setMotorSpeed(ctx, d.opts.BringupMotorHz); err != nil {
		return err
	}
	d.opts.Clock.Sleep(d.opts.MotorSettleTime)
	if err := d.calibrate(ctx); err != nil {
		return err
	}
	if err := d.stopSequence(ctx); err != nil {
		return fmt.Errorf("final stop: %w", err)
	}
	return nil
}

// requireLocked panics unless the device is in state want. d.mu must be held.
func (d *Device) requireLocked(op string, want State) {
	if d.state != want {
		panic(&PreconditionError{Op: op, State: d.state, Want: want})
	}
}

// setState records a transition. d.mu must be held.
func (d *Device) setState(s State) {
	d.statusMu.Lock()
	d.state = s
	d.statusMu.Unlock()
}

// State returns the current acquisition state.
func (d *Device) State() State {
	d.statusMu.Lock()
	defer d.statusMu.Unlock()
	return d.state
}

// Stats returns a snapshot of the device and codec counters.
func (d *Device) Stats() Stats {
	d.statusMu.Lock()
	state, session := d.state, d.session
	d.statusMu.Unlock()
	return Stats{
		State:      state,
		Session:    session,
		Scans:      d.counters.scans.Load(),
		Samples:    d.counters.samples.Load(),
		CommErrors: d.counters.commErrors.Load(),
		Codec:      d.codec.Stats(),
	}
}

// StartScanning starts acquisition and the background scan pipeline. Scans
// left over from a previous session are discarded.
func (d *Device) StartScanning(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.requireLocked("StartScanning", StateIdle)

	if err := d.codec.WriteCommand(protocol.CmdStartAcquisition); err != nil {
		return fmt.Errorf("start scanning: %w", err)
	}
	if _, err := d.codec.ReadResponseHeader(ctx, protocol.CmdStartAcquisition); err != nil {
		return fmt.Errorf("start scanning: %w", err)
	}

	d.queue.Clear()
	session := uuid.New()

	p := &pipeline{
		codec:    d.codec,
		queue:    d.queue,
		clock:    d.opts.Clock,
		session:  session,
		acc:      newAccumulator(d.opts.MaxSamplesPerScan, d.opts.SyncOnlyBoundaries),
		counters: &d.counters,
	}
	pctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.run(pctx)
	}()

	d.cancel, d.done = cancel, done
	d.statusMu.Lock()
	d.state, d.session = StateScanning, session
	d.statusMu.Unlock()
	monitoring.Logf("neo: scanning, session %s", session)
	return nil
}

// StopScanning stops the scan pipeline, waits for it to exit, and stops
// acquisition. It is a no-op on an idle device. While it runs the device
// reports StateStopping. If it fails the device stays scanning and
// StopScanning may be retried.
func (d *Device) StopScanning(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == StateClosed {
		panic(&PreconditionError{Op: "StopScanning", State: d.state, Want: StateIdle})
	}
	if d.state == StateIdle {
		return nil
	}

	d.setState(StateStopping)
	if err := d.haltPipeline(ctx); err != nil {
		d.setState(StateScanning)
		return fmt.Errorf("stop scanning: %w", err)
	}
	if err := d.stopSequence(ctx); err != nil {
		d.setState(StateScanning)
		return fmt.Errorf("stop scanning: %w", err)
	}
	d.setState(StateIdle)
	monitoring.Logf("neo: stopped, session %s", d.session)
	return nil
}

// haltPipeline cancels the pipeline goroutine and waits for it to release
// the link. The queue is then closed so a blocked GetScan returns.
func (d *Device) haltPipeline(ctx context.Context) error {
	if d.done == nil {
		return nil
	}
	d.cancel()
	select {
	case <-d.done:
	case <-ctx.Done():
		return fmt.Errorf("waiting for scan pipeline: %w", ctx.Err())
	}
	d.cancel, d.done = nil, nil
	d.queue.Close()
	return nil
}

// stopSequence halts acquisition. The first confirmation may be mixed with
// trailing sample bytes, so its failure is tolerated and the input flushed
// before the command is repeated.
func (d *Device) stopSequence(ctx context.Context) error {
	if err := d.codec.WriteCommand(protocol.CmdStopAcquisition); err != nil {
		return err
	}
	d.opts.Clock.Sleep(d.opts.StopGracePeriod)

	cctx, cancel := context.WithTimeout(ctx, d.opts.StopConfirmTimeout)
	_, err := d.codec.ReadResponseHeader(cctx, protocol.CmdStopAcquisition)
	cancel()
	if err != nil {
		monitoring.Debugf("neo: ignoring first stop confirmation: %v", err)
	}

	if err := d.codec.Flush(); err != nil {
		return err
	}
	if err := d.codec.WriteCommand(protocol.CmdStopAcquisition); err != nil {
		return err
	}
	if _, err := d.codec.ReadResponseHeader(ctx, protocol.CmdStopAcquisition); err != nil {
		return err
	}
	return nil
}

// GetScan blocks until the next scan is available. After the pipeline fails
// it returns the failure once, wrapped in ErrPipelineFailed; after that, or
// once a stopped session has been drained, it returns ErrPipelineEnded.
// Called while a stop is in progress it drains the session the same way.
func (d *Device) GetScan(ctx context.Context) (Scan, error) {
	switch state := d.State(); state {
	case StateScanning, StateStopping:
	default:
		panic(&PreconditionError{Op: "GetScan", State: state, Want: StateScanning})
	}

	r, err := d.queue.Dequeue(ctx)
	if errors.Is(err, queue.ErrEnded) {
		return Scan{}, ErrPipelineEnded
	}
	if err != nil {
		return Scan{}, err
	}
	if r.err != nil {
		return Scan{}, r.err
	}
	return r.scan, nil
}

// GetMotorSpeed returns the motor speed in Hz.
func (d *Device) GetMotorSpeed(ctx context.Context) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.requireLocked("GetMotorSpeed", StateIdle)

	if err := d.codec.WriteCommand(protocol.CmdMotorInfo); err != nil {
		return 0, fmt.Errorf("get motor speed: %w", err)
	}
	hz, err := d.codec.ReadResponseInfoMotor(ctx)
	if err != nil {
		return 0, fmt.Errorf("get motor speed: %w", err)
	}
	return hz, nil
}

// SetMotorSpeed sets the motor speed in Hz, 0 to 10.
func (d *Device) SetMotorSpeed(ctx context.Context, hz int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.requireLocked("SetMotorSpeed", StateIdle)
	return d.setMotorSpeed(ctx, hz)
}

func (d *Device) setMotorSpeed(ctx context.Context, hz int) error {
	if hz < MinMotorHz || hz > MaxMotorHz {
		return fmt.Errorf("%w: motor speed %d Hz outside %d-%d", ErrInvalidArgument, hz, MinMotorHz, MaxMotorHz)
	}
	arg, err := protocol.IntToASCIIDigits(hz)
	if err != nil {
		return err
	}
	if err := d.codec.WriteCommandWithArgument(protocol.CmdMotorSpeedAdjust, arg); err != nil {
		return fmt.Errorf("set motor speed: %w", err)
	}
	if _, err := d.codec.ReadResponseParam(ctx, protocol.CmdMotorSpeedAdjust); err != nil {
		return fmt.Errorf("set motor speed: %w", err)
	}
	monitoring.Debugf("neo: motor speed set to %d Hz", hz)
	return nil
}

// GetSampleRate returns the sample rate in Hz: 500, 750 or 1000.
func (d *Device) GetSampleRate(ctx context.Context) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.requireLocked("GetSampleRate", StateIdle)

	if err := d.codec.WriteCommand(protocol.CmdSampleRateInfo); err != nil {
		return 0, fmt.Errorf("get sample rate: %w", err)
	}
	code, err := d.codec.ReadResponseInfoSampleRate(ctx)
	if err != nil {
		return 0, fmt.Errorf("get sample rate: %w", err)
	}
	for hz, c := range sampleRateCodes {
		if c == code {
			return hz, nil
		}
	}
	return 0, fmt.Errorf("get sample rate: %w: unknown sample rate code %d", protocol.ErrFraming, code)
}

// SetSampleRate sets the sample rate in Hz: 500, 750 or 1000.
func (d *Device) SetSampleRate(ctx context.Context, hz int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.requireLocked("SetSampleRate", StateIdle)

	code, ok := sampleRateCodes[hz]
	if !ok {
		return fmt.Errorf("%w: sample rate %d Hz, want 500, 750 or 1000", ErrInvalidArgument, hz)
	}
	arg, err := protocol.IntToASCIIDigits(code)
	if err != nil {
		return err
	}
	if err := d.codec.WriteCommandWithArgument(protocol.CmdSampleRateAdjust, arg); err != nil {
		return fmt.Errorf("set sample rate: %w", err)
	}
	if _, err := d.codec.ReadResponseParam(ctx, protocol.CmdSampleRateAdjust); err != nil {
		return fmt.Errorf("set sample rate: %w", err)
	}
	return nil
}

// Reset asks the device to reboot. The device sends no reply.
func (d *Device) Reset() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.requireLocked("Reset", StateIdle)

	if err := d.codec.WriteCommand(protocol.CmdResetDevice); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	return nil
}

// Calibrate runs device calibration. The call blocks for the calibration
// wait before reading the confirmation.
func (d *Device) Calibrate(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.requireLocked("Calibrate", StateIdle)
	return d.calibrate(ctx)
}

func (d *Device) calibrate(ctx context.Context) error {
	if err := d.codec.WriteCommand(protocol.CmdDeviceCalibration); err != nil {
		return fmt.Errorf("calibrate: %w", err)
	}
	monitoring.Logf("neo: calibrating, waiting %s", d.opts.CalibrationWait)
	d.opts.Clock.Sleep(d.opts.CalibrationWait)
	if _, err := d.codec.ReadResponseHeader(ctx, protocol.CmdDeviceCalibration); err != nil {
		return fmt.Errorf("calibrate: %w", err)
	}
	return nil
}

// DeviceInfo queries the device's link and acquisition settings.
func (d *Device) DeviceInfo(ctx context.Context) (protocol.DeviceInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.requireLocked("DeviceInfo", StateIdle)

	if err := d.codec.WriteCommand(protocol.CmdDeviceInfo); err != nil {
		return protocol.DeviceInfo{}, fmt.Errorf("device info: %w", err)
	}
	info, err := d.codec.ReadResponseInfoDevice(ctx)
	if err != nil {
		return protocol.DeviceInfo{}, fmt.Errorf("device info: %w", err)
	}
	return info, nil
}

// VersionInfo queries model, firmware and serial number.
func (d *Device) VersionInfo(ctx context.Context) (protocol.VersionInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.requireLocked("VersionInfo", StateIdle)

	if err := d.codec.WriteCommand(protocol.CmdVersionInfo); err != nil {
		return protocol.VersionInfo{}, fmt.Errorf("version info: %w", err)
	}
	info, err := d.codec.ReadResponseInfoVersion(ctx)
	if err != nil {
		return protocol.VersionInfo{}, fmt.Errorf("version info: %w", err)
	}
	return info, nil
}

// Close stops a scanning device and releases the port. The port is closed
// exactly once even if stopping fails; later calls return the first result.
func (d *Device) Close() error {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		defer d.mu.Unlock()

		var errs []error
		if d.state == StateScanning {
			d.setState(StateStopping)
			ctx, cancel := context.WithTimeout(context.Background(), d.opts.CloseTimeout)
			if err := d.haltPipeline(ctx); err != nil {
				errs = append(errs, err)
			} else if err := d.stopSequence(ctx); err != nil {
				errs = append(errs, fmt.Errorf("stop scanning: %w", err))
			}
			cancel()
		}
		if err := d.port.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%w: close: %w", protocol.ErrTransport, err))
		}
		if d.done != nil {
			// The reader was stuck in a read the closed port has now failed.
			<-d.done
			d.cancel, d.done = nil, nil
		}
		d.queue.Close()
		d.setState(StateClosed)
		d.closeErr = errors.Join(errs...)
	})
	return d.closeErr
}
