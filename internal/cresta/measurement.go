package cresta

import (
	"encoding/binary"
	"fmt"
	"time"
)

// RecordSize is the size of an exported measurement record:
// an 8-byte little-endian timestamp followed by the 14 payload bytes.
const RecordSize = 8 + MaxDataLen

// Measurement is an immutable snapshot of one decrypted transmission.
// Once published, a Measurement must never be modified.
type Measurement struct {
	// Seconds since the Unix epoch at capture time.
	Time uint64
	Data [MaxDataLen]byte
	// Seq is the per-sensor publication sequence number, assigned by the registry.
	Seq uint64
}

// NewMeasurement builds a snapshot from a decrypted packet.
func NewMeasurement(p Packet, captured time.Time) *Measurement {
	return &Measurement{
		Time: uint64(captured.Unix()),
		Data: p.Data,
	}
}

// Timestamp returns the capture time in UTC.
func (m *Measurement) Timestamp() time.Time {
	return time.Unix(int64(m.Time), 0).UTC()
}

// Packet returns the decrypted packet metadata of the snapshot.
func (m *Measurement) Packet() Packet {
	return PacketFromData(m.Data)
}

// MarshalBinary encodes the 22-byte export record.
func (m *Measurement) MarshalBinary() ([]byte, error) {
	buf := make([]byte, RecordSize)
	binary.LittleEndian.PutUint64(buf, m.Time)
	copy(buf[8:], m.Data[:])
	return buf, nil
}

// UnmarshalBinary decodes an export record. Short payloads are zero padded.
func (m *Measurement) UnmarshalBinary(b []byte) error {
	if len(b) < 8 || len(b) > RecordSize {
		return fmt.Errorf("invalid measurement record length: %d", len(b))
	}
	m.Time = binary.LittleEndian.Uint64(b)
	m.Data = [MaxDataLen]byte{}
	copy(m.Data[:], b[8:])
	return nil
}
