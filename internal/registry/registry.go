// Package registry tracks every sensor heard on air and its latest
// measurement.
//
// Sensors are created on first sighting and live until the registry is
// closed. Lookups and snapshot reads never take a lock; creation is
// serialized by a single mutex and publication by a per-sensor mutex.
// Superseded measurements are left to the garbage collector, which frees
// them only once no reader still holds a reference.
package registry

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/sweeney/cresta-receiver/internal/cresta"
)

var (
	// ErrRegistryFull is returned when a new sensor would exceed MaxSensors.
	ErrRegistryFull = errors.New("sensor registry full")

	// ErrClosed is returned by operations on a closed registry.
	ErrClosed = errors.New("sensor registry closed")
)

// DefaultMaxSensors bounds the number of distinct addresses tracked.
const DefaultMaxSensors = 64

// Config holds registry settings.
type Config struct {
	// MaxSensors limits how many sensors can be created. Zero means DefaultMaxSensors.
	MaxSensors int

	// Namer assigns a name to each new sensor. Nil falls back to cresta.NewNamer().
	Namer *cresta.Namer

	// OnDiscover is called once per new sensor, outside the creation lock.
	OnDiscover func(*Sensor)
}

// Registry maps sensor addresses to Sensors.
type Registry struct {
	slots   [256]atomic.Pointer[Sensor]
	ordered atomic.Pointer[[]*Sensor] // discovery order, copy-on-write

	mu     sync.Mutex // serializes creation and Close
	closed atomic.Bool

	max        int
	namer      *cresta.Namer
	onDiscover func(*Sensor)
	log        *logrus.Logger
}

// New creates an empty registry.
func New(cfg Config, log *logrus.Logger) *Registry {
	if cfg.MaxSensors <= 0 {
		cfg.MaxSensors = DefaultMaxSensors
	}
	if cfg.Namer == nil {
		cfg.Namer = cresta.NewNamer()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	r := &Registry{
		max:        cfg.MaxSensors,
		namer:      cfg.Namer,
		onDiscover: cfg.OnDiscover,
		log:        log,
	}
	empty := []*Sensor{}
	r.ordered.Store(&empty)
	return r
}

// Lookup returns the sensor registered for addr. It never blocks.
func (r *Registry) Lookup(addr uint8) (*Sensor, bool) {
	s := r.slots[addr].Load()
	return s, s != nil
}

// Sensors returns the registered sensors in discovery order.
func (r *Registry) Sensors() []*Sensor {
	cur := *r.ordered.Load()
	out := make([]*Sensor, len(cur))
	copy(out, cur)
	return out
}

// Len returns the number of registered sensors.
func (r *Registry) Len() int {
	return len(*r.ordered.Load())
}

// ResolveOrCreate returns the sensor for addr, creating it if needed.
// Concurrent callers for the same new address all get the same Sensor.
func (r *Registry) ResolveOrCreate(addr uint8, typ cresta.SensorType) (*Sensor, error) {
	if s, ok := r.Lookup(addr); ok {
		return s, nil
	}
	if r.closed.Load() {
		return nil, ErrClosed
	}

	candidate := &Sensor{addr: addr, typ: typ}

	r.mu.Lock()
	if r.closed.Load() {
		r.mu.Unlock()
		return nil, ErrClosed
	}
	if s := r.slots[addr].Load(); s != nil {
		r.mu.Unlock()
		r.log.WithField("address", fmt.Sprintf("0x%02x", addr)).Debug("sensor created concurrently, using existing")
		return s, nil
	}
	cur := *r.ordered.Load()
	if len(cur) >= r.max {
		r.mu.Unlock()
		return nil, fmt.Errorf("address 0x%02x: %w", addr, ErrRegistryFull)
	}

	candidate.name = r.namer.Name(addr, typ)
	candidate.state.Store(int32(StateNoData))

	next := make([]*Sensor, len(cur), len(cur)+1)
	copy(next, cur)
	next = append(next, candidate)
	r.ordered.Store(&next)
	r.slots[addr].Store(candidate)
	r.mu.Unlock()

	r.log.WithFields(logrus.Fields{
		"address": fmt.Sprintf("0x%02x", addr),
		"type":    typ.String(),
		"name":    candidate.name,
	}).Info("new sensor discovered")

	if r.onDiscover != nil {
		r.onDiscover(candidate)
	}
	return candidate, nil
}

// Publish makes m the current measurement of s and returns the stored
// snapshot, which carries the sensor's next sequence number. m itself is
// not retained. Publications to the same sensor apply in call order.
func (r *Registry) Publish(s *Sensor, m *cresta.Measurement) (*cresta.Measurement, error) {
	if s == nil || m == nil {
		return nil, errors.New("publish: nil sensor or measurement")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State() == StateRemoved {
		return nil, ErrClosed
	}

	s.seq++
	snap := *m
	snap.Seq = s.seq
	s.current.Store(&snap)
	s.state.Store(int32(StateWithData))
	return &snap, nil
}

// Close removes every sensor. Readers holding a Sensor or snapshot keep
// a consistent view; further publications fail with ErrClosed.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed.Swap(true) {
		return
	}

	for _, s := range *r.ordered.Load() {
		s.mu.Lock()
		s.state.Store(int32(StateRemoved))
		s.mu.Unlock()
		r.slots[s.addr].Store(nil)
	}
	empty := []*Sensor{}
	r.ordered.Store(&empty)
}
