package cresta

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidLength is returned when byte 2 announces a length outside
	// [MinAnnouncedLen, MaxAnnouncedLen].
	ErrInvalidLength = errors.New("cresta: announced length out of range")

	// ErrChecksum matches every *ChecksumError.
	ErrChecksum = errors.New("cresta: checksum mismatch")
)

// ChecksumError reports which of the two checksums rejected a packet.
type ChecksumError struct {
	Checksum string // "A" (xor) or "B" (rolling)
	Got      byte
	Want     byte
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("cresta: checksum %s mismatch: got 0x%02x, want 0x%02x", e.Checksum, e.Got, e.Want)
}

// Is makes errors.Is(err, ErrChecksum) true.
func (e *ChecksumError) Is(target error) bool {
	return target == ErrChecksum
}

// Decrypt checks and unscrambles a raw packet. The input is not modified.
//
// Bytes 1..length+1 are folded into checksum A (running xor, must end at zero)
// and checksum B (rolling, must equal the raw byte at length+2) and then
// unscrambled with b ^= b<<1.
func Decrypt(raw RawPacket) (Packet, error) {
	n := raw.AnnouncedLength()
	if !ValidLength(n) {
		return Packet{}, fmt.Errorf("%w: %d", ErrInvalidLength, n)
	}

	data := raw
	var csA, csB byte
	for i := 1; i <= n+1; i++ {
		csA ^= data[i]
		csB = secondCheck(data[i] ^ csB)
		data[i] ^= data[i] << 1
	}

	if csA != 0 {
		return Packet{}, &ChecksumError{Checksum: "A", Got: csA, Want: 0}
	}
	if csB != data[n+2] {
		return Packet{}, &ChecksumError{Checksum: "B", Got: csB, Want: data[n+2]}
	}

	return PacketFromData(data), nil
}

// secondCheck is one step of the rolling checksum B.
func secondCheck(b byte) byte {
	if b&0x80 != 0 {
		b ^= 0x95
	}
	c := b ^ (b >> 1)
	if b&1 != 0 {
		c ^= 0x5f
	}
	if c&1 != 0 {
		b ^= 0x5f
	}
	return b ^ (c >> 1)
}
