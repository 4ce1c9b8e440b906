// Package cresta models the 433MHz weather sensor protocol used by
// Cresta/Irox/Mebus/Nexus/Honeywell/Hideki/TFA stations: packet layout,
// the unscrambling transform with its two checksums, measurement records
// and field extraction.
// This package has NO external dependencies (no GPIO, MQTT or clocks).
package cresta

import "fmt"

// Packet layout constants.
const (
	// MaxDataLen is the size of a datagram buffer including preamble and checksum bytes.
	MaxDataLen = 14

	// Preamble is the first byte of every datagram.
	Preamble = 0x75

	// MinAnnouncedLen and MaxAnnouncedLen bound the length field of byte 2.
	MinAnnouncedLen = 6
	MaxAnnouncedLen = 11
)

// SensorType is the 5-bit device type carried in byte 3.
type SensorType uint8

const (
	TypeAnemometer  SensorType = 0x0C
	TypeUV          SensorType = 0x0D
	TypeRain        SensorType = 0x0E
	TypeThermoHygro SensorType = 0x1E
)

// String returns a short lowercase name for the type.
func (t SensorType) String() string {
	switch t {
	case TypeAnemometer:
		return "anemometer"
	case TypeUV:
		return "uv"
	case TypeRain:
		return "rain"
	case TypeThermoHygro:
		return "thermohygro"
	}
	return fmt.Sprintf("unknown(0x%02x)", uint8(t))
}

// Sensors use dedicated address ranges; masking the address with
// AddrChannelMask identifies the channel of a thermo-hygro sensor.
const (
	AddrChannelMask = 0xE0

	AddrThermoHygroCh1 = 0x20
	AddrThermoHygroCh2 = 0x40
	AddrThermoHygroCh3 = 0x60
	AddrRainUVAnemo    = 0x80
	AddrThermoHygroCh4 = 0xA0
	AddrThermoHygroCh5 = 0xC0
)

// RawPacket is a scrambled datagram as assembled by the Manchester decoder.
// Bytes past the announced length are zero.
type RawPacket [MaxDataLen]byte

// AnnouncedLength decodes the length field of byte 2 of a scrambled packet.
func (p RawPacket) AnnouncedLength() int {
	return LengthField(p[2])
}

// LengthField applies the self-describing transform to a scrambled length
// byte and returns bits 1..5.
func LengthField(b byte) int {
	decoded := b ^ (b << 1)
	return int((decoded >> 1) & 0x1f)
}

// ValidLength reports whether n is an acceptable announced length.
func ValidLength(n int) bool {
	return n >= MinAnnouncedLen && n <= MaxAnnouncedLen
}

// Packet is a datagram that passed both checksums. Data holds the
// unscrambled bytes 1..length+1; byte 0 (preamble) and the trailing
// checksum B byte are kept as received.
type Packet struct {
	Data      [MaxDataLen]byte
	Address   uint8
	Type      SensorType
	Length    int
	BatteryOK bool
}

// PacketFromData derives the metadata of an already decrypted payload.
func PacketFromData(data [MaxDataLen]byte) Packet {
	return Packet{
		Data:      data,
		Address:   data[1],
		Type:      SensorType(data[3] & 0x1f),
		Length:    int((data[2]>>1)&0x1f) + 1,
		BatteryOK: (data[2]>>6)&0x03 == 0x03,
	}
}
