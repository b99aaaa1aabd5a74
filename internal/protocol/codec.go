package protocol

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/banshee-data/neo.lidar/internal/timeutil"
)

const (
	// DefaultCommandDelay precedes every bare command write.
	DefaultCommandDelay = 2 * time.Millisecond
	// DefaultResyncBudget bounds the single-byte shifts made while
	// realigning a scan packet.
	DefaultResyncBudget = 100
)

// Link is the byte stream a Codec drives. serialport.Port satisfies it.
type Link interface {
	io.ReadWriter
	ResetInputBuffer() error
}

// CodecConfig tunes a Codec. Zero values select the defaults.
type CodecConfig struct {
	CommandDelay time.Duration
	ResyncBudget int
	Clock        timeutil.Clock
}

// Stats are cumulative codec counters.
type Stats struct {
	Packets        uint64 // valid scan packets returned
	Resyncs        uint64 // scan reads that needed realignment
	DiscardedBytes uint64 // bytes dropped while realigning
	FramingErrors  uint64 // frames rejected with ErrFraming
}

// Codec reads and writes protocol frames on a Link. A Codec does not lock;
// the caller must ensure a single reader and a single writer at a time.
type Codec struct {
	link         Link
	clock        timeutil.Clock
	commandDelay time.Duration
	resyncBudget int

	packets   atomic.Uint64
	resyncs   atomic.Uint64
	discarded atomic.Uint64
	framing   atomic.Uint64
}

// NewCodec wraps link.
func NewCodec(link Link, cfg CodecConfig) *Codec {
	c := &Codec{
		link:         link,
		clock:        cfg.Clock,
		commandDelay: cfg.CommandDelay,
		resyncBudget: cfg.ResyncBudget,
	}
	if c.clock == nil {
		c.clock = timeutil.RealClock{}
	}
	if c.commandDelay < 0 {
		c.commandDelay = 0
	} else if c.commandDelay == 0 {
		c.commandDelay = DefaultCommandDelay
	}
	if c.resyncBudget <= 0 {
		c.resyncBudget = DefaultResyncBudget
	}
	return c
}

// Stats returns a snapshot of the codec counters.
func (c *Codec) Stats() Stats {
	return Stats{
		Packets:        c.packets.Load(),
		Resyncs:        c.resyncs.Load(),
		DiscardedBytes: c.discarded.Load(),
		FramingErrors:  c.framing.Load(),
	}
}

// WriteCommand sends a bare command after the inter-command delay.
func (c *Codec) WriteCommand(cmd Command) error {
	if c.commandDelay > 0 {
		c.clock.Sleep(c.commandDelay)
	}
	f := EncodeCommand(cmd)
	return c.write(cmd, f[:])
}

// WriteCommandWithArgument sends cmd with two argument digits.
func (c *Codec) WriteCommandWithArgument(cmd Command, arg [2]byte) error {
	f := EncodeCommandWithArgument(cmd, arg)
	return c.write(cmd, f[:])
}

func (c *Codec) write(cmd Command, frame []byte) error {
	n, err := c.link.Write(frame)
	if err != nil {
		return fmt.Errorf("%w: write %s: %w", ErrTransport, cmd, err)
	}
	if n != len(frame) {
		return fmt.Errorf("%w: write %s: short write %d of %d bytes", ErrTransport, cmd, n, len(frame))
	}
	return nil
}

// Flush discards bytes received but not yet read.
func (c *Codec) Flush() error {
	if err := c.link.ResetInputBuffer(); err != nil {
		return fmt.Errorf("%w: flush: %w", ErrTransport, err)
	}
	return nil
}

// readFull fills buf from the link. A read that returns no data and no error
// is a timeout poll; ctx is checked between polls so a blocked read can be
// abandoned once the link has a read timeout.
func (c *Codec) readFull(ctx context.Context, buf []byte) error {
	for off := 0; off < len(buf); {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := c.link.Read(buf[off:])
		off += n
		if err != nil {
			if off == len(buf) {
				return nil
			}
			return fmt.Errorf("%w: read: %w", ErrTransport, err)
		}
	}
	return nil
}

func (c *Codec) framingError(err error) error {
	c.framing.Add(1)
	return err
}

// ReadResponseHeader reads a header frame answering want.
func (c *Codec) ReadResponseHeader(ctx context.Context, want Command) (Header, error) {
	var b [HeaderFrameSize]byte
	if err := c.readFull(ctx, b[:]); err != nil {
		return Header{}, err
	}
	h, err := DecodeHeader(b[:], want)
	if err != nil {
		return h, c.framingError(err)
	}
	return h, nil
}

// ReadResponseParam reads a param frame answering want.
func (c *Codec) ReadResponseParam(ctx context.Context, want Command) (Param, error) {
	var b [ParamFrameSize]byte
	if err := c.readFull(ctx, b[:]); err != nil {
		return Param{}, err
	}
	p, err := DecodeParam(b[:], want)
	if err != nil {
		return p, c.framingError(err)
	}
	return p, nil
}

// ReadResponseInfoMotor reads an MI frame and returns the motor speed in Hz.
func (c *Codec) ReadResponseInfoMotor(ctx context.Context) (int, error) {
	var b [MotorInfoFrameSize]byte
	if err := c.readFull(ctx, b[:]); err != nil {
		return 0, err
	}
	hz, err := DecodeMotorInfo(b[:])
	if err != nil {
		return 0, c.framingError(err)
	}
	return hz, nil
}

// ReadResponseInfoSampleRate reads an LI frame and returns the rate code.
func (c *Codec) ReadResponseInfoSampleRate(ctx context.Context) (int, error) {
	var b [SampleRateInfoFrameSize]byte
	if err := c.readFull(ctx, b[:]); err != nil {
		return 0, err
	}
	code, err := DecodeSampleRateInfo(b[:])
	if err != nil {
		return 0, c.framingError(err)
	}
	return code, nil
}

// ReadResponseInfoDevice reads an ID frame.
func (c *Codec) ReadResponseInfoDevice(ctx context.Context) (DeviceInfo, error) {
	var b [DeviceInfoFrameSize]byte
	if err := c.readFull(ctx, b[:]); err != nil {
		return DeviceInfo{}, err
	}
	info, err := DecodeDeviceInfo(b[:])
	if err != nil {
		return DeviceInfo{}, c.framingError(err)
	}
	return info, nil
}

// ReadResponseInfoVersion reads an IV frame.
func (c *Codec) ReadResponseInfoVersion(ctx context.Context) (VersionInfo, error) {
	var b [VersionInfoFrameSize]byte
	if err := c.readFull(ctx, b[:]); err != nil {
		return VersionInfo{}, err
	}
	info, err := DecodeVersionInfo(b[:])
	if err != nil {
		return VersionInfo{}, c.framingError(err)
	}
	return info, nil
}

// ReadResponseScan reads one sample packet.
//
// When the checksum fails the window slides forward one byte at a time, each
// shift reading a single new byte into the last slot. A window that
// validates is taken as evidence of alignment, discarded, and confirmed by
// reading a fresh packet; if the fresh packet fails, sliding resumes. Every
// failed window counts against the resync budget and exhausting it is an
// ErrFraming error. The window is local to the call.
func (c *Codec) ReadResponseScan(ctx context.Context) (Packet, error) {
	var p Packet
	if err := c.readFull(ctx, p[:]); err != nil {
		return Packet{}, err
	}
	if !p.Valid() {
		c.resyncs.Add(1)
	}

	for mismatches := 0; !p.Valid(); {
		mismatches++
		if mismatches >= c.resyncBudget {
			return Packet{}, c.framingError(fmt.Errorf(
				"%w: no valid scan packet after %d realignment attempts", ErrFraming, mismatches))
		}

		copy(p[:], p[1:])
		c.discarded.Add(1)
		if err := c.readFull(ctx, p[PacketSize-1:]); err != nil {
			return Packet{}, err
		}

		if p.Valid() {
			c.discarded.Add(PacketSize)
			if err := c.readFull(ctx, p[:]); err != nil {
				return Packet{}, err
			}
		}
	}

	c.packets.Add(1)
	return p, nil
}
