// Package gpio delivers the edge timings of a 433MHz receiver module wired
// to a GPIO line.
// The real implementation uses the Linux GPIO character device.
// The fake and replay implementations allow running without hardware.
package gpio

import (
	"math"
	"time"
)

// Source produces edge durations in microseconds, in arrival order.
type Source interface {
	// Edges returns the duration channel. It is closed when the source
	// is closed or exhausted.
	Edges() <-chan uint32

	// Dropped returns how many edges were lost because the channel was full.
	Dropped() uint64

	// Close releases GPIO resources.
	Close() error
}

// Defaults for a receiver data pin on a Raspberry Pi (BCM numbering).
const (
	DefaultChip  = "gpiochip0"
	DefaultLine  = 27
	DefaultQueue = 4096
)

// edgeTimer turns absolute event timestamps into the duration since the
// previous edge.
type edgeTimer struct {
	last    time.Duration
	started bool
}

// next returns the microseconds elapsed since the previous timestamp.
// The first timestamp only arms the timer. Durations that do not fit are
// clamped, which the decoder treats as a gap.
func (t *edgeTimer) next(ts time.Duration) (uint32, bool) {
	if !t.started {
		t.last = ts
		t.started = true
		return 0, false
	}
	d := ts - t.last
	t.last = ts

	us := d.Microseconds()
	switch {
	case us < 0:
		return 0, true
	case us > math.MaxUint32:
		return math.MaxUint32, true
	}
	return uint32(us), true
}
