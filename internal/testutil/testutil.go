// Package testutil holds recorded frames and a transmitter model for tests
// that exercise the receive path without radio hardware.
package testutil

// Scrambled frames as they leave the Manchester decoder, and the payloads
// they decrypt to.
var (
	// ThermoHygroFrame: address 0x20 (channel 1), 21.5°C, 45%.
	ThermoHygroFrame = []byte{0x75, 0xE0, 0x44, 0x0A, 0xF3, 0xBE, 0xC3, 0x20, 0x0A}
	ThermoHygroData  = [14]byte{0x75, 0x20, 0xCC, 0x1E, 0x15, 0xC2, 0x45, 0x60, 0x0A}

	// AnemometerFrame: address 0x80, the longest datagram.
	AnemometerFrame = []byte{0x75, 0x80, 0xB2, 0x04, 0x13, 0xBF, 0xE0, 0xBF, 0xCE, 0x8F, 0x01, 0x80, 0x05, 0x2B}
	AnemometerData  = [14]byte{0x75, 0x80, 0xD6, 0x0C, 0x35, 0xC1, 0x20, 0xC1, 0x52, 0x91, 0x03, 0x80, 0x0F, 0x2B}

	// RainFrame: address 0x81.
	RainFrame = []byte{0x75, 0x7F, 0x44, 0xFA, 0xE6, 0xFF, 0x00, 0xD8, 0x09}
	RainData  = [14]byte{0x75, 0x81, 0xCC, 0x0E, 0x2A, 0x01, 0x00, 0x68, 0x09}
)

// Gap is an inter-frame silence, long enough to never be a valid edge.
const Gap = 10000

// Encode returns the edge durations in microseconds a transmitter with the
// given clock emits for frame: bytes LSB first, each followed by a 0
// framing bit except the last one.
func Encode(frame []byte, clock uint32) []uint32 {
	var bits []bool
	for i, b := range frame {
		for k := 0; k < 8; k++ {
			bits = append(bits, b>>k&1 == 1)
		}
		if i < len(frame)-1 {
			bits = append(bits, false)
		}
	}
	return encodeBits(bits, clock)
}

// EncodeBits is Encode for an arbitrary bit sequence, framing bits
// included.
func EncodeBits(bits []bool, clock uint32) []uint32 {
	return encodeBits(bits, clock)
}

func encodeBits(bits []bool, clock uint32) []uint32 {
	// Every frame starts with a long edge.
	edges := []uint32{2 * clock}
	for j := 0; j < len(bits)-1; j++ {
		if bits[j] != bits[j+1] {
			edges = append(edges, 2*clock)
		} else {
			edges = append(edges, clock, clock)
		}
	}
	return append(edges, clock)
}

// Trace joins frames into one edge stream, each preceded by Gap.
func Trace(clock uint32, frames ...[]byte) []uint32 {
	var out []uint32
	for _, f := range frames {
		out = append(out, Gap)
		out = append(out, Encode(f, clock)...)
	}
	return out
}

// Corrupt returns a copy of frame with byte i xor-ed by mask.
func Corrupt(frame []byte, i int, mask byte) []byte {
	out := append([]byte(nil), frame...)
	out[i] ^= mask
	return out
}
