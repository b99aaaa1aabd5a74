package protocol

import "encoding/binary"

const (
	PacketSize          = 5     // Sample packet size in bytes
	AngleUnitsPerDegree = 128.0 // Raw angle resolution: 1/128 degree per LSB
	MaxDistance         = 1<<13 - 1
	checksumModulus     = 15
)

// Packet is one raw sample packet exactly as it arrived on the wire.
type Packet [PacketSize]byte

// Sync reports whether this sample starts a new rotation.
func (p Packet) Sync() bool { return p[0]&0x01 != 0 }

// CommError reports the device's communication error bit.
func (p Packet) CommError() bool { return p[0]&0x02 != 0 }

func (p Packet) VHL() bool { return p[0]&0x04 != 0 }

func (p Packet) DistanceLow() uint8 { return p[0] >> 3 }

func (p Packet) DistanceHigh() uint8 { return p[1] }

// RawAngle is the angle in 1/128 degree units.
func (p Packet) RawAngle() uint16 { return binary.LittleEndian.Uint16(p[2:4]) }

// Checksum is the checksum nibble carried by the packet.
func (p Packet) Checksum() uint8 { return p[4] & 0x0F }

func (p Packet) VRECT() uint8 { return p[4] >> 4 }

// ComputeChecksum recomputes the checksum from the packet's other fields.
func (p Packet) ComputeChecksum() uint8 {
	sum := uint(p[0]) + uint(p[1]) + uint(p[2]) + uint(p[3]) + uint(p[4]&0xF0)
	return uint8(sum % checksumModulus)
}

// Valid reports whether the embedded checksum matches the computed one.
func (p Packet) Valid() bool { return p.Checksum() == p.ComputeChecksum() }

// Distance returns the 13-bit distance in centimeters.
func (p Packet) Distance() int {
	return int(p.DistanceLow()) | int(p.DistanceHigh())<<5
}

// AngleDegrees converts the raw angle to degrees.
func (p Packet) AngleDegrees() float64 {
	return float64(p.RawAngle()) / AngleUnitsPerDegree
}

// PacketFields are the decoded fields of a sample packet, minus the checksum.
type PacketFields struct {
	Sync      bool
	CommError bool
	VHL       bool
	Distance  int    // centimeters, truncated to 13 bits
	RawAngle  uint16 // 1/128 degree units
	VRECT     uint8  // 4 bits
}

// Fields decodes every field of the packet except the checksum.
func (p Packet) Fields() PacketFields {
	return PacketFields{
		Sync:      p.Sync(),
		CommError: p.CommError(),
		VHL:       p.VHL(),
		Distance:  p.Distance(),
		RawAngle:  p.RawAngle(),
		VRECT:     p.VRECT(),
	}
}

// EncodePacket builds a wire packet with a correct checksum.
func EncodePacket(f PacketFields) Packet {
	var p Packet
	d := f.Distance & MaxDistance
	p[0] = byte(d&0x1F) << 3
	if f.Sync {
		p[0] |= 0x01
	}
	if f.CommError {
		p[0] |= 0x02
	}
	if f.VHL {
		p[0] |= 0x04
	}
	p[1] = byte(d >> 5)
	binary.LittleEndian.PutUint16(p[2:4], f.RawAngle)
	p[4] = f.VRECT << 4
	p[4] |= p.ComputeChecksum()
	return p
}

// RawAngleFromDegrees converts degrees in [0, 360) to wire units.
func RawAngleFromDegrees(deg float64) uint16 {
	return uint16(deg * AngleUnitsPerDegree)
}
