package status

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sweeney/cresta-receiver/internal/cresta"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counters      CountersJSON `json:"counters"`
	Sensors       []SensorJSON `json:"sensors"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountersJSON is the JSON representation of pipeline counters.
type CountersJSON struct {
	Edges          uint64            `json:"edges"`
	EdgesDropped   uint64            `json:"edges_dropped"`
	Frames         uint64            `json:"frames"`
	Rejects        map[string]uint64 `json:"rejects"`
	ChecksumErrors uint64            `json:"checksum_errors"`
	LengthErrors   uint64            `json:"length_errors"`
	QueueDropped   uint64            `json:"queue_dropped"`
	RegistryFull   uint64            `json:"registry_full"`
	Published      uint64            `json:"published"`
}

// SensorJSON is the JSON representation of a sensor summary.
type SensorJSON struct {
	Name      string           `json:"name"`
	Address   string           `json:"address"`
	Type      string           `json:"type"`
	State     string           `json:"state"`
	Seq       uint64           `json:"seq"`
	LastSeen  string           `json:"last_seen,omitempty"`
	BatteryOK bool             `json:"battery_ok"`
	Readings  *cresta.Readings `json:"readings,omitempty"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Broker      string `json:"broker"`
	HTTPAddr    string `json:"http_addr"`
	GPIOChip    string `json:"gpio_chip"`
	GPIOLine    int    `json:"gpio_line"`
	Workers     int    `json:"workers"`
	MaxSensors  int    `json:"max_sensors"`
	Store       bool   `json:"store"`
}

func buildSensors(sensors []SensorSummary) []SensorJSON {
	out := make([]SensorJSON, 0, len(sensors))
	for _, s := range sensors {
		sj := SensorJSON{
			Name:      s.Name,
			Address:   fmt.Sprintf("0x%02x", s.Address),
			Type:      s.Type.String(),
			State:     s.State,
			Seq:       s.Seq,
			BatteryOK: s.BatteryOK,
			Readings:  s.Readings,
		}
		if !s.LastSeen.IsZero() {
			sj.LastSeen = s.LastSeen.UTC().Format(time.RFC3339)
		}
		out = append(out, sj)
	}
	return out
}

func buildInner(snap Snapshot) StatusInner {
	c := snap.Counters
	rejects := c.Rejects
	if rejects == nil {
		rejects = map[string]uint64{}
	}

	return StatusInner{
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counters: CountersJSON{
			Edges:          c.Edges,
			EdgesDropped:   c.EdgesDropped,
			Frames:         c.Frames,
			Rejects:        rejects,
			ChecksumErrors: c.ChecksumErrors,
			LengthErrors:   c.LengthErrors,
			QueueDropped:   c.QueueDropped,
			RegistryFull:   c.RegistryFull,
			Published:      c.Published,
		},
		Sensors: buildSensors(snap.Sensors),
		Config: ConfigJSON{
			HeartbeatMs: snap.Config.HeartbeatMs,
			Broker:      snap.Config.Broker,
			HTTPAddr:    snap.Config.HTTPAddr,
			GPIOChip:    snap.Config.GPIOChip,
			GPIOLine:    snap.Config.GPIOLine,
			Workers:     snap.Config.Workers,
			MaxSensors:  snap.Config.MaxSensors,
			Store:       snap.Config.Store,
		},
	}
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
