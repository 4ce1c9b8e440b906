package cresta

import (
	"fmt"
	"sync"
)

// Namer assigns presentation names to newly discovered sensors, following
// the station's own numbering: thermo-hygro sensors are named by channel,
// other sensors by type. A second sensor competing for the same name gets
// a numeric suffix ("thermohygro_ch1_2").
type Namer struct {
	mu     sync.Mutex
	counts map[string]int
}

// NewNamer creates an empty Namer.
func NewNamer() *Namer {
	return &Namer{counts: make(map[string]int)}
}

// Name returns the name for a new sensor. Each call counts as one device.
func (n *Namer) Name(addr uint8, typ SensorType) string {
	base := baseName(addr, typ)

	n.mu.Lock()
	n.counts[base]++
	count := n.counts[base]
	n.mu.Unlock()

	if count == 1 {
		return base
	}
	return fmt.Sprintf("%s_%d", base, count)
}

func baseName(addr uint8, typ SensorType) string {
	switch typ {
	case TypeAnemometer, TypeUV, TypeRain:
		return typ.String()
	case TypeThermoHygro:
		if ch := Channel(addr); ch > 0 {
			return fmt.Sprintf("thermohygro_ch%d", ch)
		}
		return fmt.Sprintf("thermohygro_0x%02x", addr)
	}
	return fmt.Sprintf("sensor_0x%02x", addr)
}

// Channel returns the station channel (1-5) encoded in a thermo-hygro
// address, or 0 if the address is outside the thermo-hygro ranges.
func Channel(addr uint8) int {
	switch addr & AddrChannelMask {
	case AddrThermoHygroCh1:
		return 1
	case AddrThermoHygroCh2:
		return 2
	case AddrThermoHygroCh3:
		return 3
	case AddrThermoHygroCh4:
		return 4
	case AddrThermoHygroCh5:
		return 5
	}
	return 0
}
