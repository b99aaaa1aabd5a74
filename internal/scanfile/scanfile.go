// Package scanfile encodes scans in the protobuf wire format.
//
// A scan file is a sequence of records, each a varint byte length followed
// by one Scan message:
//
//	message Sample {
//	  double angle      = 1; // degrees
//	  int64  distance   = 2; // centimeters
//	  bool   comm_error = 3;
//	}
//	message Scan {
//	  bytes  session          = 1; // 16-byte UUID
//	  uint64 sequence         = 2;
//	  int64  captured_at_unix_nano = 3;
//	  repeated Sample samples = 4;
//	}
//
// The same Scan message is stored as the sample blob in the scan database.
package scanfile

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/banshee-data/neo.lidar/internal/neo"
)

// MaxRecordSize bounds a single record so a corrupt length prefix cannot
// trigger a huge allocation.
const MaxRecordSize = 16 << 20

var ErrCorrupt = errors.New("scanfile: corrupt record")

const (
	scanSession    protowire.Number = 1
	scanSequence   protowire.Number = 2
	scanCapturedAt protowire.Number = 3
	scanSamples    protowire.Number = 4

	sampleAngle     protowire.Number = 1
	sampleDistance  protowire.Number = 2
	sampleCommError protowire.Number = 3
)

// Marshal encodes scan as a Scan message.
func Marshal(scan neo.Scan) []byte {
	b := make([]byte, 0, 32+len(scan.Samples)*16)
	b = protowire.AppendTag(b, scanSession, protowire.BytesType)
	b = protowire.AppendBytes(b, scan.Session[:])
	b = protowire.AppendTag(b, scanSequence, protowire.VarintType)
	b = protowire.AppendVarint(b, scan.Sequence)
	if !scan.CapturedAt.IsZero() {
		b = protowire.AppendTag(b, scanCapturedAt, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(scan.CapturedAt.UnixNano()))
	}

	var sb []byte
	for _, s := range scan.Samples {
		sb = sb[:0]
		sb = protowire.AppendTag(sb, sampleAngle, protowire.Fixed64Type)
		sb = protowire.AppendFixed64(sb, math.Float64bits(s.Angle))
		sb = protowire.AppendTag(sb, sampleDistance, protowire.VarintType)
		sb = protowire.AppendVarint(sb, uint64(int64(s.Distance)))
		if s.CommError {
			sb = protowire.AppendTag(sb, sampleCommError, protowire.VarintType)
			sb = protowire.AppendVarint(sb, protowire.EncodeBool(true))
		}
		b = protowire.AppendTag(b, scanSamples, protowire.BytesType)
		b = protowire.AppendBytes(b, sb)
	}
	return b
}

// Unmarshal decodes a Scan message. Unknown fields are skipped.
func Unmarshal(b []byte) (neo.Scan, error) {
	var scan neo.Scan
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return neo.Scan{}, fmt.Errorf("%w: %w", ErrCorrupt, protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == scanSession && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return neo.Scan{}, fmt.Errorf("%w: session: %w", ErrCorrupt, protowire.ParseError(n))
			}
			id, err := uuid.FromBytes(v)
			if err != nil {
				return neo.Scan{}, fmt.Errorf("%w: session: %w", ErrCorrupt, err)
			}
			scan.Session = id
			b = b[n:]
		case num == scanSequence && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return neo.Scan{}, fmt.Errorf("%w: sequence: %w", ErrCorrupt, protowire.ParseError(n))
			}
			scan.Sequence = v
			b = b[n:]
		case num == scanCapturedAt && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return neo.Scan{}, fmt.Errorf("%w: captured_at: %w", ErrCorrupt, protowire.ParseError(n))
			}
			scan.CapturedAt = time.Unix(0, int64(v)).UTC()
			b = b[n:]
		case num == scanSamples && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return neo.Scan{}, fmt.Errorf("%w: sample: %w", ErrCorrupt, protowire.ParseError(n))
			}
			s, err := unmarshalSample(v)
			if err != nil {
				return neo.Scan{}, err
			}
			scan.Samples = append(scan.Samples, s)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return neo.Scan{}, fmt.Errorf("%w: field %d: %w", ErrCorrupt, num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return scan, nil
}

func unmarshalSample(b []byte) (neo.Sample, error) {
	var s neo.Sample
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return neo.Sample{}, fmt.Errorf("%w: sample: %w", ErrCorrupt, protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == sampleAngle && typ == protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return neo.Sample{}, fmt.Errorf("%w: angle: %w", ErrCorrupt, protowire.ParseError(n))
			}
			s.Angle = math.Float64frombits(v)
			b = b[n:]
		case num == sampleDistance && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return neo.Sample{}, fmt.Errorf("%w: distance: %w", ErrCorrupt, protowire.ParseError(n))
			}
			s.Distance = int(int64(v))
			b = b[n:]
		case num == sampleCommError && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return neo.Sample{}, fmt.Errorf("%w: comm_error: %w", ErrCorrupt, protowire.ParseError(n))
			}
			s.CommError = protowire.DecodeBool(v)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return neo.Sample{}, fmt.Errorf("%w: sample field %d: %w", ErrCorrupt, num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return s, nil
}

// Writer appends length-delimited scans to an io.Writer.
type Writer struct {
	w   *bufio.Writer
	buf []byte
	n   int
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// Write buffers one record. Call Flush to push buffered records out.
func (w *Writer) Write(scan neo.Scan) error {
	msg := Marshal(scan)
	w.buf = protowire.AppendVarint(w.buf[:0], uint64(len(msg)))
	if _, err := w.w.Write(w.buf); err != nil {
		return err
	}
	if _, err := w.w.Write(msg); err != nil {
		return err
	}
	w.n++
	return nil
}

// Count returns the number of records written.
func (w *Writer) Count() int { return w.n }

func (w *Writer) Flush() error { return w.w.Flush() }

// Reader reads records written by Writer.
type Reader struct {
	r *bufio.Reader
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// Read returns the next scan, or io.EOF after the last complete record. A
// record cut short is reported as io.ErrUnexpectedEOF.
func (r *Reader) Read() (neo.Scan, error) {
	size, err := binary.ReadUvarint(r.r)
	if err == io.EOF {
		return neo.Scan{}, io.EOF
	}
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return neo.Scan{}, err
		}
		return neo.Scan{}, fmt.Errorf("%w: length: %w", ErrCorrupt, err)
	}
	if size > MaxRecordSize {
		return neo.Scan{}, fmt.Errorf("%w: record of %d bytes exceeds %d", ErrCorrupt, size, MaxRecordSize)
	}
	msg := make([]byte, size)
	if _, err := io.ReadFull(r.r, msg); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return neo.Scan{}, err
	}
	return Unmarshal(msg)
}

// ReadAll reads every remaining scan.
func (r *Reader) ReadAll() ([]neo.Scan, error) {
	var scans []neo.Scan
	for {
		scan, err := r.Read()
		if err == io.EOF {
			return scans, nil
		}
		if err != nil {
			return scans, err
		}
		scans = append(scans, scan)
	}
}
