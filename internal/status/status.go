// Package status provides a thread-safe status tracker for the receiver
// daemon. It is read by the HTTP handlers and the MQTT heartbeat.
package status

import (
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/sweeney/cresta-receiver/internal/cresta"
)

// NetworkInfo contains network state. This is a local copy to avoid
// importing internal/mqtt from status.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	HeartbeatMs int64
	Broker      string
	HTTPAddr    string
	GPIOChip    string
	GPIOLine    int
	Workers     int
	MaxSensors  int
	Store       bool
}

// Counters are the receive pipeline counters.
type Counters struct {
	Edges          uint64
	EdgesDropped   uint64
	Frames         uint64
	Rejects        map[string]uint64
	ChecksumErrors uint64
	LengthErrors   uint64
	QueueDropped   uint64
	RegistryFull   uint64
	Published      uint64
}

// SensorSummary describes one registered sensor.
type SensorSummary struct {
	Name      string
	Address   uint8
	Type      cresta.SensorType
	State     string
	Seq       uint64
	LastSeen  time.Time // zero before the first measurement
	BatteryOK bool
	Readings  *cresta.Readings
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Counters      Counters
	Sensors       []SensorSummary
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Update sets the pipeline counters and sensor list.
// Called from the run loop on every tick.
func (t *Tracker) Update(counters Counters, sensors []SensorSummary) {
	counters.Rejects = maps.Clone(counters.Rejects)
	sensors = slices.Clone(sensors)

	t.mu.Lock()
	t.snap.Counters = counters
	t.snap.Sensors = sensors
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	// Update replaces the map and slice wholesale, so sharing them is safe.
	s.Now = time.Now()
	return s
}
