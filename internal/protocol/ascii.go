package protocol

import "fmt"

// IntToASCIIDigits encodes n (0-99) as two ASCII decimal digits.
func IntToASCIIDigits(n int) ([2]byte, error) {
	if n < 0 || n > 99 {
		return [2]byte{}, fmt.Errorf("value %d out of range 0-99", n)
	}
	return [2]byte{byte('0' + n/10), byte('0' + n%10)}, nil
}

// ASCIIDigitsToInt decodes two ASCII decimal digits.
func ASCIIDigitsToInt(b [2]byte) (int, error) {
	return parseDigits(b[:])
}

func parseDigits(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, fmt.Errorf("%w: empty digit field", ErrFraming)
	}
	n := 0
	for _, c := range b {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("%w: non-digit byte %#02x in %q", ErrFraming, c, b)
		}
		n = n*10 + int(c-'0')
	}
	return n, nil
}
