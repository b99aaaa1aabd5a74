package protocol

import "errors"

var (
	// ErrFraming reports a frame that failed its checksum, echoed the wrong
	// command, or could not be realigned within the resync budget.
	ErrFraming = errors.New("framing error")

	// ErrTransport reports a failed read or write on the serial link.
	ErrTransport = errors.New("transport error")
)
