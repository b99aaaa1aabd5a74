package neo

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument reports a motor speed or sample rate the device
	// does not support.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrPipelineFailed wraps the transport or framing error that ended a
	// scan session. It is delivered once by GetScan.
	ErrPipelineFailed = errors.New("scan pipeline failed")

	// ErrPipelineEnded is returned by GetScan once the scan pipeline has
	// stopped and every scan it produced has been delivered.
	ErrPipelineEnded = errors.New("scan pipeline ended")
)

// PreconditionError is the panic value raised when an operation is invoked in
// the wrong device state. These are programming errors.
type PreconditionError struct {
	Op    string
	State State
	Want  State
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("neo: %s called on %s device, want %s", e.Op, e.State, e.Want)
}
