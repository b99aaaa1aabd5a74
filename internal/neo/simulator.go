package neo

import (
	"bytes"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/banshee-data/neo.lidar/internal/protocol"
	"github.com/banshee-data/neo.lidar/internal/serialport"
)

// SimulatorConfig shapes the data a Simulator produces.
type SimulatorConfig struct {
	// SamplesPerRotation overrides the rotation length. When zero it is
	// derived from the sample rate and motor speed.
	SamplesPerRotation int
	// PacketInterval paces the sample stream in real time. Zero streams as
	// fast as the reader consumes.
	PacketInterval time.Duration
	// Distance returns the range in centimeters for an angle in degrees.
	// Nil selects a smooth synthetic room.
	Distance func(angle float64) int
	Version  protocol.VersionInfo
}

// Simulator is an in-process neo device. It implements
// serialport.TimeoutPort and answers every command the driver sends, so a
// Device can be exercised end to end without hardware.
type Simulator struct {
	cfg SimulatorConfig

	mu          sync.Mutex
	changed     chan struct{}
	rx          bytes.Buffer // bytes waiting for the driver to read
	pending     []byte       // partial command frame
	commands    []string
	readTimeout time.Duration
	closed      bool
	readErr     error

	motorHz    int
	rateCode   int
	streaming  bool
	step       int
	noise      int
	corruptAll bool
}

var _ serialport.TimeoutPort = (*Simulator)(nil)

// NewSimulator returns an idle simulated device with the motor stopped and
// the sample rate at 500 Hz.
func NewSimulator(cfg SimulatorConfig) *Simulator {
	if cfg.Distance == nil {
		cfg.Distance = syntheticRoom
	}
	if cfg.Version.Model == "" {
		cfg.Version = protocol.VersionInfo{
			Model:           "NEO",
			ProtocolMajor:   1,
			FirmwareMajor:   1,
			HardwareVersion: 1,
			SerialNumber:    "SIM00001",
		}
	}
	return &Simulator{cfg: cfg, changed: make(chan struct{}), rateCode: 1}
}

// syntheticRoom is a rounded rectangle a few meters across.
func syntheticRoom(angle float64) int {
	rad := angle * math.Pi / 180
	return 250 + int(60*math.Cos(4*rad)) + int(20*math.Sin(rad))
}

func (s *Simulator) notifyLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}

// Commands returns every command frame received, without terminators.
func (s *Simulator) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

// MotorHz returns the simulated motor speed.
func (s *Simulator) MotorHz() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.motorHz
}

// Streaming reports whether acquisition is running.
func (s *Simulator) Streaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streaming
}

// InjectNoise inserts n bytes of line noise before the next sample packet.
func (s *Simulator) InjectNoise(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.noise += n
}

// CorruptStream replaces every following sample packet with line noise.
func (s *Simulator) CorruptStream() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.corruptAll = true
}

// FailReads makes the next Read return err.
func (s *Simulator) FailReads(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readErr = err
	s.notifyLocked()
}

// Queue appends raw bytes to the receive stream, ahead of any generated
// samples.
func (s *Simulator) Queue(b []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rx.Write(b)
	s.notifyLocked()
}

func (s *Simulator) samplesPerRotationLocked() int {
	if s.cfg.SamplesPerRotation > 0 {
		return s.cfg.SamplesPerRotation
	}
	rate := 500
	for hz, code := range sampleRateCodes {
		if code == s.rateCode {
			rate = hz
		}
	}
	if s.motorHz <= 0 {
		return rate
	}
	return rate / s.motorHz
}

// nextPacketLocked appends one sample packet, preceded by any pending noise.
func (s *Simulator) nextPacketLocked() {
	for ; s.noise > 0; s.noise-- {
		s.rx.WriteByte(0xFF)
	}
	n := s.samplesPerRotationLocked()
	if s.step >= n {
		s.step = 0
	}
	raw := uint16(s.step * 360 * int(protocol.AngleUnitsPerDegree) / n)
	angle := float64(raw) / protocol.AngleUnitsPerDegree
	p := protocol.EncodePacket(protocol.PacketFields{
		Sync:     s.step == 0,
		Distance: s.cfg.Distance(angle),
		RawAngle: raw,
	})
	if s.corruptAll {
		// All-ones never checksums, whatever the alignment.
		p = protocol.Packet{0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
	}
	s.rx.Write(p[:])
	s.step++
}

// Read implements io.Reader.
func (s *Simulator) Read(p []byte) (int, error) {
	if s.cfg.PacketInterval > 0 && s.Streaming() {
		time.Sleep(s.cfg.PacketInterval)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var deadline <-chan time.Time
	if s.readTimeout > 0 {
		timer := time.NewTimer(s.readTimeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		if s.closed {
			return 0, serialport.ErrPortClosed
		}
		if s.readErr != nil {
			err := s.readErr
			s.readErr = nil
			return 0, err
		}
		if s.rx.Len() == 0 && s.streaming {
			s.nextPacketLocked()
		}
		if s.rx.Len() > 0 {
			return s.rx.Read(p)
		}

		wait := s.changed
		s.mu.Unlock()
		select {
		case <-wait:
			s.mu.Lock()
		case <-deadline:
			s.mu.Lock()
			return 0, nil
		}
	}
}

// Write implements io.Writer. Complete command frames are answered at once.
func (s *Simulator) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, serialport.ErrPortClosed
	}

	s.pending = append(s.pending, p...)
	for {
		i := bytes.IndexByte(s.pending, protocol.Terminator)
		if i < 0 {
			break
		}
		frame := s.pending[:i]
		s.pending = s.pending[i+1:]
		s.handleLocked(frame)
	}
	s.notifyLocked()
	return len(p), nil
}

func (s *Simulator) handleLocked(frame []byte) {
	s.commands = append(s.commands, string(frame))
	cmd, ok := protocol.ParseCommand(frame)
	if !ok {
		return
	}
	var arg [2]byte
	hasArg := len(frame) == 4
	if hasArg {
		copy(arg[:], frame[2:4])
	}

	switch cmd {
	case protocol.CmdStartAcquisition:
		s.streaming = true
		s.step = 0
		s.writeHeaderLocked(cmd)
	case protocol.CmdStopAcquisition:
		s.streaming = false
		s.writeHeaderLocked(cmd)
	case protocol.CmdDeviceCalibration:
		s.writeHeaderLocked(cmd)
	case protocol.CmdMotorSpeedAdjust:
		if hz, err := protocol.ASCIIDigitsToInt(arg); hasArg && err == nil {
			s.motorHz = hz
		}
		f := protocol.EncodeParam(cmd, arg, protocol.StatusOK)
		s.rx.Write(f[:])
	case protocol.CmdSampleRateAdjust:
		if code, err := protocol.ASCIIDigitsToInt(arg); hasArg && err == nil {
			s.rateCode = code
		}
		f := protocol.EncodeParam(cmd, arg, protocol.StatusOK)
		s.rx.Write(f[:])
	case protocol.CmdMotorInfo:
		if f, err := protocol.EncodeMotorInfo(s.motorHz); err == nil {
			s.rx.Write(f[:])
		}
	case protocol.CmdSampleRateInfo:
		if f, err := protocol.EncodeSampleRateInfo(s.rateCode); err == nil {
			s.rx.Write(f[:])
		}
	case protocol.CmdDeviceInfo:
		rate := 0
		for hz, code := range sampleRateCodes {
			if code == s.rateCode {
				rate = hz
			}
		}
		f, err := protocol.EncodeDeviceInfo(protocol.DeviceInfo{
			BitRate:    "115200",
			LaserState: '1',
			Mode:       '0',
			Diagnostic: '0',
			MotorSpeed: s.motorHz,
			SampleRate: rate,
		})
		if err == nil {
			s.rx.Write(f[:])
		}
	case protocol.CmdVersionInfo:
		f := protocol.EncodeVersionInfo(s.cfg.Version)
		s.rx.Write(f[:])
	case protocol.CmdResetDevice:
		s.streaming = false
		s.motorHz = 0
		s.rateCode = 1
		s.rx.Reset()
	}
}

func (s *Simulator) writeHeaderLocked(cmd protocol.Command) {
	f := protocol.EncodeHeader(cmd, protocol.StatusOK)
	s.rx.Write(f[:])
}

// Close implements io.Closer.
func (s *Simulator) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.notifyLocked()
	return nil
}

// ResetInputBuffer discards unread bytes.
func (s *Simulator) ResetInputBuffer() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rx.Reset()
	return nil
}

// SetReadTimeout implements serialport.TimeoutPort.
func (s *Simulator) SetReadTimeout(d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readTimeout = d
	return nil
}

// CommandLog renders the received commands for logs and test failures.
func (s *Simulator) CommandLog() string {
	return strings.Join(s.Commands(), " ")
}
