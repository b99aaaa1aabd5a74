package neo

import (
	"time"

	"github.com/google/uuid"
)

// Sample is one decoded range measurement.
type Sample struct {
	Angle     float64 // degrees
	Distance  int     // centimeters
	CommError bool    // device reported a communication error for this sample
}

// Scan is one full rotation of samples in decode order. The sample that
// starts the next rotation is not included.
type Scan struct {
	Session    uuid.UUID // assigned by StartScanning
	Sequence   uint64    // 1-based position within the session
	CapturedAt time.Time // when the rotation boundary was observed
	Samples    []Sample
}
