// Package mqtt publishes sensor measurements and daemon lifecycle events
// to an MQTT broker, with an abstraction for testing.
package mqtt

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sweeney/cresta-receiver/internal/cresta"
)

// TopicSensors is the prefix of per-sensor measurement topics; the sensor
// name is appended.
const TopicSensors = "weather/cresta/sensors/"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "weather/cresta/system"

// System event names.
const (
	EventStartup     = "STARTUP"
	EventShutdown    = "SHUTDOWN"
	EventHeartbeat   = "HEARTBEAT"
	EventDiscovered  = "DISCOVERED"
	EventReconnected = "RECONNECTED"
)

// SensorTopic returns the measurement topic for a sensor name.
func SensorTopic(name string) string {
	return TopicSensors + name
}

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a measurement to the sensor's topic.
	// Returns error if publishing fails (should not crash the process).
	Publish(event MeasurementEvent) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SensorInfo identifies a sensor in payloads.
type SensorInfo struct {
	Name    string
	Address uint8
	Type    cresta.SensorType
}

// MeasurementEvent is a measurement published by a sensor.
type MeasurementEvent struct {
	Sensor      SensorInfo
	Measurement *cresta.Measurement
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string      // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT", "DISCOVERED"
	Reason     string      // e.g., "SIGTERM", "SIGINT" (shutdown only)
	Sensor     *SensorInfo // DISCOVERED only
	RawPayload []byte      // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool        // Whether the message should be retained by the broker
}

// Payload is the MQTT message payload of a measurement.
type Payload struct {
	Sensor SensorPayload `json:"sensor"`
}

// SensorPayload contains the measurement details.
type SensorPayload struct {
	Name      string           `json:"name"`
	Address   string           `json:"address"`
	Type      string           `json:"type"`
	Timestamp string           `json:"timestamp"`
	Seq       uint64           `json:"seq"`
	BatteryOK bool             `json:"battery_ok"`
	Raw       string           `json:"raw"`
	Readings  *cresta.Readings `json:"readings,omitempty"`
	Error     string           `json:"error,omitempty"`
}

func formatAddress(addr uint8) string {
	return fmt.Sprintf("0x%02x", addr)
}

// FormatPayload creates the JSON payload for a measurement. Readings that
// cannot be extracted are reported in the error field instead.
func FormatPayload(event MeasurementEvent) ([]byte, error) {
	m := event.Measurement
	if m == nil {
		return nil, fmt.Errorf("sensor %s: no measurement", event.Sensor.Name)
	}
	p := m.Packet()

	sp := SensorPayload{
		Name:      event.Sensor.Name,
		Address:   formatAddress(event.Sensor.Address),
		Type:      event.Sensor.Type.String(),
		Timestamp: m.Timestamp().UTC().Format(time.RFC3339),
		Seq:       m.Seq,
		BatteryOK: p.BatteryOK,
		Raw:       hex.EncodeToString(m.Data[:]),
	}
	if r, err := cresta.ExtractReadings(p); err != nil {
		sp.Error = err.Error()
	} else {
		sp.Readings = &r
	}
	return json.Marshal(Payload{Sensor: sp})
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED, DISCOVERED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string         `json:"timestamp"`
	Event     string         `json:"event"`
	Reason    string         `json:"reason,omitempty"`
	Sensor    *SensorSummary `json:"sensor,omitempty"`
}

// SensorSummary identifies a sensor in a system event.
type SensorSummary struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Type    string `json:"type"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	if s := event.Sensor; s != nil {
		payload.System.Sensor = &SensorSummary{
			Name:    s.Name,
			Address: formatAddress(s.Address),
			Type:    s.Type.String(),
		}
	}
	return json.Marshal(payload)
}
