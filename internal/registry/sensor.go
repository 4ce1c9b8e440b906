package registry

import (
	"bytes"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/sweeney/cresta-receiver/internal/cresta"
)

// ErrNoMeasurement is returned when a sensor has not published yet.
var ErrNoMeasurement = errors.New("no measurement yet")

// State is the lifecycle state of a Sensor.
type State int32

const (
	StateUninitialized State = iota
	StateNoData
	StateWithData
	StateRemoved
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateNoData:
		return "no_data"
	case StateWithData:
		return "with_data"
	case StateRemoved:
		return "removed"
	}
	return "unknown"
}

// Sensor is one physical transmitter. Address, type and name never change.
type Sensor struct {
	addr uint8
	typ  cresta.SensorType
	name string

	mu      sync.Mutex // serializes Publish
	seq     uint64
	current atomic.Pointer[cresta.Measurement]
	state   atomic.Int32
}

func (s *Sensor) Address() uint8 { return s.addr }

func (s *Sensor) Type() cresta.SensorType { return s.typ }

func (s *Sensor) Name() string { return s.name }

// State returns the current lifecycle state.
func (s *Sensor) State() State {
	return State(s.state.Load())
}

// Current returns the latest snapshot, or nil before the first publish.
// The returned Measurement is immutable and stays valid for as long as
// the caller holds it.
func (s *Sensor) Current() *cresta.Measurement {
	return s.current.Load()
}

// Reader reads the export record of one snapshot.
type Reader struct {
	*bytes.Reader

	// Measurement is the snapshot the record was taken from.
	Measurement *cresta.Measurement
}

// Open returns a reader over the export record of the current snapshot.
// The reader is a private copy; later publications do not affect it.
func (s *Sensor) Open() (*Reader, error) {
	m := s.Current()
	if m == nil {
		return nil, ErrNoMeasurement
	}
	b, err := m.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return &Reader{Reader: bytes.NewReader(b), Measurement: m}, nil
}
