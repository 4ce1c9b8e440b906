package status

import (
	"github.com/sweeney/cresta-receiver/internal/cresta"
	"github.com/sweeney/cresta-receiver/internal/registry"
)

// Summarize describes the given sensors, in the same order. Readings are
// left nil for sensors without data or with undecodable payloads.
func Summarize(sensors []*registry.Sensor) []SensorSummary {
	out := make([]SensorSummary, 0, len(sensors))
	for _, s := range sensors {
		sum := SensorSummary{
			Name:    s.Name(),
			Address: s.Address(),
			Type:    s.Type(),
			State:   s.State().String(),
		}
		if m := s.Current(); m != nil {
			p := m.Packet()
			sum.Seq = m.Seq
			sum.LastSeen = m.Timestamp()
			sum.BatteryOK = p.BatteryOK
			if r, err := cresta.ExtractReadings(p); err == nil {
				sum.Readings = &r
			}
		}
		out = append(out, sum)
	}
	return out
}
