package serialport

import (
	"bytes"
	"errors"
	"sync"
	"time"
)

// ErrPortClosed is returned by TestableSerialPort once Close has been called.
var ErrPortClosed = errors.New("serial port closed")

// TestableSerialPort implements TimeoutPort with configurable behaviour for
// testing. It provides fine-grained control over reads, writes and errors.
type TestableSerialPort struct {
	mu      sync.Mutex
	changed chan struct{}

	// ReadBuffer holds data to be returned by Read calls
	ReadBuffer *bytes.Buffer

	// WriteBuffer captures data written to the port
	WriteBuffer *bytes.Buffer

	// ReadError is returned by the next Read call if set
	ReadError error

	// WriteError is returned by the next Write call if set
	WriteError error

	// ShortWrite makes Write report one byte fewer than it was given
	ShortWrite bool

	// CloseError is returned by Close if set
	CloseError error

	// ResetError is returned by ResetInputBuffer if set
	ResetError error

	// Closed indicates whether Close was called
	Closed bool

	// CloseCalls records the number of Close calls
	CloseCalls int

	// ReadCalls records the number of Read calls
	ReadCalls int

	// WriteCalls records the number of Write calls
	WriteCalls int

	// Resets records the number of ResetInputBuffer calls
	Resets int

	// ReadTimeout is the current read timeout
	ReadTimeout time.Duration

	// BlockReads causes Read to wait for data instead of returning io.EOF-like
	// empty reads. With a ReadTimeout the wait ends with (0, nil).
	BlockReads bool

	// OnWrite, if set, is called with each written frame while the port lock
	// is held. It may append a reply through the returned bytes.
	OnWrite func(p []byte) []byte
}

// NewTestableSerialPort creates a new TestableSerialPort for testing.
func NewTestableSerialPort() *TestableSerialPort {
	return &TestableSerialPort{
		ReadBuffer:  bytes.NewBuffer(nil),
		WriteBuffer: bytes.NewBuffer(nil),
		changed:     make(chan struct{}),
	}
}

// notifyLocked wakes every blocked reader.
func (t *TestableSerialPort) notifyLocked() {
	close(t.changed)
	t.changed = make(chan struct{})
}

// Read reads from the read buffer, optionally simulating errors and blocking.
func (t *TestableSerialPort) Read(p []byte) (n int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ReadCalls++

	if t.ReadError != nil {
		err := t.ReadError
		t.ReadError = nil
		return 0, err
	}

	var deadline <-chan time.Time
	if t.BlockReads && t.ReadTimeout > 0 {
		timer := time.NewTimer(t.ReadTimeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for t.BlockReads && !t.Closed && t.ReadBuffer.Len() == 0 {
		wait := t.changed
		t.mu.Unlock()
		select {
		case <-wait:
			t.mu.Lock()
		case <-deadline:
			t.mu.Lock()
			return 0, nil
		}
	}

	if t.Closed {
		return 0, ErrPortClosed
	}

	return t.ReadBuffer.Read(p)
}

// Write writes to the write buffer, optionally simulating errors.
func (t *TestableSerialPort) Write(p []byte) (n int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.WriteCalls++

	if t.Closed {
		return 0, ErrPortClosed
	}

	if t.WriteError != nil {
		err := t.WriteError
		t.WriteError = nil
		return 0, err
	}

	n, _ = t.WriteBuffer.Write(p)
	if t.OnWrite != nil {
		if reply := t.OnWrite(append([]byte(nil), p...)); len(reply) > 0 {
			t.ReadBuffer.Write(reply)
			t.notifyLocked()
		}
	}
	if t.ShortWrite && n > 0 {
		n--
	}
	return n, nil
}

// Close marks the port as closed and wakes any blocked reader.
func (t *TestableSerialPort) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.Closed = true
	t.CloseCalls++
	t.notifyLocked()

	return t.CloseError
}

// ResetInputBuffer discards unread data.
func (t *TestableSerialPort) ResetInputBuffer() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.Resets++
	if t.ResetError != nil {
		return t.ResetError
	}
	t.ReadBuffer.Reset()
	return nil
}

// SetReadTimeout implements TimeoutPort.
func (t *TestableSerialPort) SetReadTimeout(timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ReadTimeout = timeout
	return nil
}

// AddReadData adds data to be returned by subsequent Read calls.
func (t *TestableSerialPort) AddReadData(data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ReadBuffer.Write(data)
	t.notifyLocked()
}

// GetWrittenData returns a copy of all data written to the port.
func (t *TestableSerialPort) GetWrittenData() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()

	return append([]byte(nil), t.WriteBuffer.Bytes()...)
}

// Reset clears all buffers and resets state.
func (t *TestableSerialPort) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ReadBuffer.Reset()
	t.WriteBuffer.Reset()
	t.ReadCalls = 0
	t.WriteCalls = 0
	t.CloseCalls = 0
	t.Resets = 0
	t.Closed = false
	t.ReadError = nil
	t.WriteError = nil
	t.CloseError = nil
	t.ResetError = nil
	t.ShortWrite = false
}

// MockOpener returns an Opener that hands out port and records each path it
// was asked to open. A non-nil err is returned instead of the port.
func MockOpener(port Port, err error) (Opener, *[]string) {
	var mu sync.Mutex
	paths := &[]string{}
	return func(path string, opts PortOptions) (Port, error) {
		mu.Lock()
		defer mu.Unlock()
		*paths = append(*paths, path)
		if err != nil {
			return nil, err
		}
		if _, nerr := opts.Normalize(); nerr != nil {
			return nil, nerr
		}
		return port, nil
	}, paths
}
