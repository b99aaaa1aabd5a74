/*
Package protocol implements the wire format spoken by the neo spinning
rangefinder over its serial link.

WIRE FORMAT

Commands are two ASCII bytes followed by an optional two-digit ASCII
argument and a newline terminator:

	Command          3 bytes   cmd[2] '\n'
	Command+arg      5 bytes   cmd[2] arg[2] '\n'

The device answers with fixed-size frames. Every frame echoes the command it
answers in its first two bytes:

	Header           6 bytes   cmd[2] status[2] sum '\n'
	Param            9 bytes   cmd[2] arg[2] '\n' status[2] sum '\n'
	Motor info       5 bytes   cmd[2] speed[2] '\n'
	Sample rate info 5 bytes   cmd[2] code[2] '\n'
	Device info     18 bytes   cmd[2] bitrate[6] laser mode diag speed[2] rate[4] '\n'
	Version info    21 bytes   cmd[2] model[5] pmaj pmin fmaj fmin hw serial[8] '\n'

Header and param checksums cover the status digits only:
sum = ((status1 + status2) & 0x3F) + 0x30.

While acquiring, the device streams 5-byte sample packets with no framing
marker. Bit positions are decoded explicitly from the byte array:

	byte 0   bit 0 sync, bit 1 comm error, bit 2 VHL, bits 3-7 distance[4:0]
	byte 1   distance[12:5]
	byte 2-3 angle, little-endian, 1/128 degree units
	byte 4   bits 0-3 checksum, bits 4-7 VRECT

The packet checksum is the sum of the first four bytes plus the high nibble
of the fifth, modulo 15. Packets that fail the checksum are realigned one
byte at a time (see Codec.ReadResponseScan).
*/
package protocol
