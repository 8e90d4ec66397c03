package wire_test

import (
	"testing"

	"tuntcp/wire"
)

func TestCRC791ZeroValueReady(t *testing.T) {
	var crc wire.CRC791
	if crc.Sum16() != 0xffff {
		t.Fatalf("zero value checksum should be all-ones complement, got %#x", crc.Sum16())
	}
}

func TestCRC791PayloadSum16MatchesWriteEven(t *testing.T) {
	buf := []byte{0x45, 0x00, 0x00, 0x3c, 0x1c, 0x46, 0x40, 0x00, 0x40, 0x06}
	var a, b wire.CRC791
	a.WriteEven(buf)
	got := a.Sum16()

	want := b.PayloadSum16(buf)
	if got != want {
		t.Fatalf("WriteEven+Sum16 = %#x, PayloadSum16 = %#x", got, want)
	}
}

func TestNeverZeroChecksum(t *testing.T) {
	if got := wire.NeverZeroChecksum(0); got != 0xffff {
		t.Fatalf("want 0xffff, got %#x", got)
	}
	if got := wire.NeverZeroChecksum(0x1234); got != 0x1234 {
		t.Fatalf("want passthrough, got %#x", got)
	}
}
