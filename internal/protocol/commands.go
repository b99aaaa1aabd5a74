package protocol

// Command is a two-byte ASCII command code, first byte high.
type Command uint16

// MakeCommand packs the two code bytes of a frame into a Command.
func MakeCommand(hi, lo byte) Command {
	return Command(hi)<<8 | Command(lo)
}

// Bytes returns the code as it appears on the wire.
func (c Command) Bytes() [2]byte {
	return [2]byte{byte(c >> 8), byte(c)}
}

func (c Command) String() string {
	b := c.Bytes()
	return string(b[:])
}

// Command codes understood by the device.
const (
	CmdStartAcquisition  Command = 'D'<<8 | 'S'
	CmdStopAcquisition   Command = 'D'<<8 | 'X'
	CmdMotorSpeedAdjust  Command = 'M'<<8 | 'S'
	CmdMotorInfo         Command = 'M'<<8 | 'I'
	CmdSampleRateAdjust  Command = 'L'<<8 | 'R'
	CmdSampleRateInfo    Command = 'L'<<8 | 'I'
	CmdVersionInfo       Command = 'I'<<8 | 'V'
	CmdDeviceInfo        Command = 'I'<<8 | 'D'
	CmdResetDevice       Command = 'R'<<8 | 'R'
	CmdDeviceCalibration Command = 'C'<<8 | 'S'
)

// Known reports whether c is one of the command codes above.
func (c Command) Known() bool {
	switch c {
	case CmdStartAcquisition, CmdStopAcquisition, CmdMotorSpeedAdjust, CmdMotorInfo,
		CmdSampleRateAdjust, CmdSampleRateInfo, CmdVersionInfo, CmdDeviceInfo,
		CmdResetDevice, CmdDeviceCalibration:
		return true
	}
	return false
}

// ParseCommand returns the command whose code is the first two bytes of b.
func ParseCommand(b []byte) (Command, bool) {
	if len(b) < 2 {
		return 0, false
	}
	c := MakeCommand(b[0], b[1])
	return c, c.Known()
}
