package protocol

import (
	"errors"
	"testing"
)

func TestASCIIDigits_RoundTrip(t *testing.T) {
	for n := 0; n <= 99; n++ {
		d, err := IntToASCIIDigits(n)
		if err != nil {
			t.Fatalf("IntToASCIIDigits(%d) error = %v", n, err)
		}
		got, err := ASCIIDigitsToInt(d)
		if err != nil {
			t.Fatalf("ASCIIDigitsToInt(%q) error = %v", d, err)
		}
		if got != n {
			t.Errorf("round trip of %d = %d", n, got)
		}
	}
}

func TestIntToASCIIDigits(t *testing.T) {
	d, _ := IntToASCIIDigits(5)
	if string(d[:]) != "05" {
		t.Errorf("IntToASCIIDigits(5) = %q, want %q", d, "05")
	}
	for _, n := range []int{-1, 100} {
		if _, err := IntToASCIIDigits(n); err == nil {
			t.Errorf("IntToASCIIDigits(%d) expected error", n)
		}
	}
}

func TestASCIIDigitsToInt_RejectsNonDigits(t *testing.T) {
	_, err := ASCIIDigitsToInt([2]byte{'0', 'x'})
	if !errors.Is(err, ErrFraming) {
		t.Errorf("ASCIIDigitsToInt(\"0x\") error = %v, want ErrFraming", err)
	}
}
