// Package serialport provides the byte-stream link to the sensor: an
// interface narrow enough to fake in tests and an opener backed by
// go.bug.st/serial.
package serialport

import (
	"io"
	"time"
)

// Port defines the minimal interface the driver needs from a serial port.
// This abstraction enables unit testing without real serial hardware.
type Port interface {
	io.ReadWriteCloser
	// ResetInputBuffer discards bytes that were received but not yet read.
	ResetInputBuffer() error
}

// TimeoutPort extends Port with a read timeout. When a timeout is set, Read
// returns (0, nil) after the timeout elapses with no data, which lets callers
// poll for cancellation between bytes.
type TimeoutPort interface {
	Port
	SetReadTimeout(timeout time.Duration) error
}

// Opener opens the serial port at path. It matches Open so that callers can
// substitute a fake link.
type Opener func(path string, opts PortOptions) (Port, error)
