package protocol

import (
	"fmt"
	"strings"
)

// Frame sizes in bytes. The encoders below return fixed-size arrays so a
// layout change that breaks a size fails to compile.
const (
	CommandFrameSize        = 3
	CommandArgFrameSize     = 5
	HeaderFrameSize         = 6
	ParamFrameSize          = 9
	MotorInfoFrameSize      = 5
	SampleRateInfoFrameSize = 5
	DeviceInfoFrameSize     = 18
	VersionInfoFrameSize    = 21

	Terminator = '\n'
)

// StatusOK is the status reported by a successful command.
var StatusOK = [2]byte{'0', '0'}

// HeaderChecksum computes the checksum byte of header and param frames.
func HeaderChecksum(status [2]byte) byte {
	return ((status[0] + status[1]) & 0x3F) + 0x30
}

// Header is a decoded response header frame.
type Header struct {
	Command Command
	Status  [2]byte
}

// Param is a decoded response param frame.
type Param struct {
	Command Command
	Arg     [2]byte
	Status  [2]byte
}

// DeviceInfo is the payload of the ID response.
type DeviceInfo struct {
	BitRate    string // six ASCII digits, e.g. "115200"
	LaserState byte
	Mode       byte
	Diagnostic byte
	MotorSpeed int // Hz
	SampleRate int // Hz
}

// VersionInfo is the payload of the IV response.
type VersionInfo struct {
	Model           string
	ProtocolMajor   byte
	ProtocolMinor   byte
	FirmwareMajor   byte
	FirmwareMinor   byte
	HardwareVersion byte
	SerialNumber    string
}

func (v VersionInfo) String() string {
	return fmt.Sprintf("model=%s protocol=%d.%d firmware=%d.%d hardware=%d serial=%s",
		v.Model, v.ProtocolMajor, v.ProtocolMinor, v.FirmwareMajor, v.FirmwareMinor,
		v.HardwareVersion, v.SerialNumber)
}

// EncodeCommand builds a bare command frame.
func EncodeCommand(cmd Command) [CommandFrameSize]byte {
	c := cmd.Bytes()
	return [CommandFrameSize]byte{c[0], c[1], Terminator}
}

// EncodeCommandWithArgument builds a command frame carrying two argument digits.
func EncodeCommandWithArgument(cmd Command, arg [2]byte) [CommandArgFrameSize]byte {
	c := cmd.Bytes()
	return [CommandArgFrameSize]byte{c[0], c[1], arg[0], arg[1], Terminator}
}

// EncodeHeader builds the header frame a device sends in answer to cmd.
func EncodeHeader(cmd Command, status [2]byte) [HeaderFrameSize]byte {
	c := cmd.Bytes()
	return [HeaderFrameSize]byte{c[0], c[1], status[0], status[1], HeaderChecksum(status), Terminator}
}

// EncodeParam builds the param frame a device sends in answer to cmd+arg.
func EncodeParam(cmd Command, arg, status [2]byte) [ParamFrameSize]byte {
	c := cmd.Bytes()
	return [ParamFrameSize]byte{
		c[0], c[1], arg[0], arg[1], Terminator,
		status[0], status[1], HeaderChecksum(status), Terminator,
	}
}

// EncodeMotorInfo builds an MI response frame.
func EncodeMotorInfo(hz int) ([MotorInfoFrameSize]byte, error) {
	d, err := IntToASCIIDigits(hz)
	if err != nil {
		return [MotorInfoFrameSize]byte{}, err
	}
	return [MotorInfoFrameSize]byte{CmdMotorInfo.Bytes()[0], CmdMotorInfo.Bytes()[1], d[0], d[1], Terminator}, nil
}

// EncodeSampleRateInfo builds an LI response frame.
func EncodeSampleRateInfo(code int) ([SampleRateInfoFrameSize]byte, error) {
	d, err := IntToASCIIDigits(code)
	if err != nil {
		return [SampleRateInfoFrameSize]byte{}, err
	}
	return [SampleRateInfoFrameSize]byte{CmdSampleRateInfo.Bytes()[0], CmdSampleRateInfo.Bytes()[1], d[0], d[1], Terminator}, nil
}

// EncodeDeviceInfo builds an ID response frame.
func EncodeDeviceInfo(info DeviceInfo) ([DeviceInfoFrameSize]byte, error) {
	var f [DeviceInfoFrameSize]byte
	if len(info.BitRate) != 6 {
		return f, fmt.Errorf("bit rate %q must be six digits", info.BitRate)
	}
	if info.MotorSpeed < 0 || info.MotorSpeed > 99 {
		return f, fmt.Errorf("motor speed %d out of range 0-99", info.MotorSpeed)
	}
	if info.SampleRate < 0 || info.SampleRate > 9999 {
		return f, fmt.Errorf("sample rate %d out of range 0-9999", info.SampleRate)
	}
	f[0], f[1] = CmdDeviceInfo.Bytes()[0], CmdDeviceInfo.Bytes()[1]
	copy(f[2:8], info.BitRate)
	f[8] = info.LaserState
	f[9] = info.Mode
	f[10] = info.Diagnostic
	copy(f[11:13], fmt.Sprintf("%02d", info.MotorSpeed))
	copy(f[13:17], fmt.Sprintf("%04d", info.SampleRate))
	f[17] = Terminator
	return f, nil
}

// EncodeVersionInfo builds an IV response frame. Model and serial number are
// space padded or truncated to their field widths.
func EncodeVersionInfo(v VersionInfo) [VersionInfoFrameSize]byte {
	var f [VersionInfoFrameSize]byte
	f[0], f[1] = CmdVersionInfo.Bytes()[0], CmdVersionInfo.Bytes()[1]
	copy(f[2:7], fmt.Sprintf("%-5.5s", v.Model))
	f[7] = v.ProtocolMajor
	f[8] = v.ProtocolMinor
	f[9] = v.FirmwareMajor
	f[10] = v.FirmwareMinor
	f[11] = v.HardwareVersion
	copy(f[12:20], fmt.Sprintf("%-8.8s", v.SerialNumber))
	f[20] = Terminator
	return f
}

func checkEcho(kind string, b []byte, want Command) error {
	if got := (MakeCommand(b[0], b[1])); got != want {
		return fmt.Errorf("%w: %s echoed command %q, want %q", ErrFraming, kind, got, want)
	}
	return nil
}

func checkSize(kind string, b []byte, want int) error {
	if len(b) != want {
		return fmt.Errorf("%w: %s frame is %d bytes, want %d", ErrFraming, kind, len(b), want)
	}
	return nil
}

// DecodeHeader validates a header frame's checksum and echoed command.
func DecodeHeader(b []byte, want Command) (Header, error) {
	if err := checkSize("header", b, HeaderFrameSize); err != nil {
		return Header{}, err
	}
	h := Header{Command: MakeCommand(b[0], b[1]), Status: [2]byte{b[2], b[3]}}
	if sum := HeaderChecksum(h.Status); sum != b[4] {
		return h, fmt.Errorf("%w: %s header checksum %#02x, want %#02x", ErrFraming, want, b[4], sum)
	}
	if err := checkEcho("header", b, want); err != nil {
		return h, err
	}
	return h, nil
}

// DecodeParam validates a param frame's checksum and echoed command.
func DecodeParam(b []byte, want Command) (Param, error) {
	if err := checkSize("param", b, ParamFrameSize); err != nil {
		return Param{}, err
	}
	p := Param{
		Command: MakeCommand(b[0], b[1]),
		Arg:     [2]byte{b[2], b[3]},
		Status:  [2]byte{b[5], b[6]},
	}
	if sum := HeaderChecksum(p.Status); sum != b[7] {
		return p, fmt.Errorf("%w: %s param checksum %#02x, want %#02x", ErrFraming, want, b[7], sum)
	}
	if err := checkEcho("param", b, want); err != nil {
		return p, err
	}
	return p, nil
}

// DecodeMotorInfo returns the motor speed in Hz carried by an MI frame.
func DecodeMotorInfo(b []byte) (int, error) {
	if err := checkSize("motor info", b, MotorInfoFrameSize); err != nil {
		return 0, err
	}
	if err := checkEcho("motor info", b, CmdMotorInfo); err != nil {
		return 0, err
	}
	return ASCIIDigitsToInt([2]byte{b[2], b[3]})
}

// DecodeSampleRateInfo returns the sample rate code carried by an LI frame.
func DecodeSampleRateInfo(b []byte) (int, error) {
	if err := checkSize("sample rate info", b, SampleRateInfoFrameSize); err != nil {
		return 0, err
	}
	if err := checkEcho("sample rate info", b, CmdSampleRateInfo); err != nil {
		return 0, err
	}
	return ASCIIDigitsToInt([2]byte{b[2], b[3]})
}

// DecodeDeviceInfo parses an ID frame.
func DecodeDeviceInfo(b []byte) (DeviceInfo, error) {
	if err := checkSize("device info", b, DeviceInfoFrameSize); err != nil {
		return DeviceInfo{}, err
	}
	if err := checkEcho("device info", b, CmdDeviceInfo); err != nil {
		return DeviceInfo{}, err
	}
	speed, err := parseDigits(b[11:13])
	if err != nil {
		return DeviceInfo{}, fmt.Errorf("device info motor speed: %w", err)
	}
	rate, err := parseDigits(b[13:17])
	if err != nil {
		return DeviceInfo{}, fmt.Errorf("device info sample rate: %w", err)
	}
	return DeviceInfo{
		BitRate:    string(b[2:8]),
		LaserState: b[8],
		Mode:       b[9],
		Diagnostic: b[10],
		MotorSpeed: speed,
		SampleRate: rate,
	}, nil
}

// DecodeVersionInfo parses an IV frame.
func DecodeVersionInfo(b []byte) (VersionInfo, error) {
	if err := checkSize("version info", b, VersionInfoFrameSize); err != nil {
		return VersionInfo{}, err
	}
	if err := checkEcho("version info", b, CmdVersionInfo); err != nil {
		return VersionInfo{}, err
	}
	return VersionInfo{
		Model:           strings.TrimRight(string(b[2:7]), " \x00"),
		ProtocolMajor:   b[7],
		ProtocolMinor:   b[8],
		FirmwareMajor:   b[9],
		FirmwareMinor:   b[10],
		HardwareVersion: b[11],
		SerialNumber:    strings.TrimRight(string(b[12:20]), " \x00"),
	}, nil
}
