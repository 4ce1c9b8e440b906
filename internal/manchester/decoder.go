// Package manchester reconstructs Cresta datagrams from the durations between
// consecutive edges of the demodulated receiver output.
//
// Short edges keep the current bit value, long edges flip it. Every byte is
// followed by a framing bit that must be 0; the framing bit of the last byte
// is never transmitted. The clock is recovered from the first edge of each
// frame, so transmitter drift needs no configuration.
//
// A Decoder is owned by a single goroutine and does no locking.
package manchester

import "github.com/sweeney/cresta-receiver/internal/cresta"

// Clock recovery bounds in microseconds. One clock period is the duration
// of a short edge; the first edge of a frame is a long one.
const (
	MinClock = 200
	MaxClock = 1000
)

const (
	halfBitsPerByte  = 18 // 9 bits per byte, 2 edges per bit
	preambleHalfBit  = 17 // last half-bit of byte 0
	lengthHalfBit    = 53 // last half-bit of byte 2
	framingBitInByte = 8
)

// Reason identifies why a frame was abandoned.
type Reason int

const (
	ReasonClock Reason = iota
	ReasonTolerance
	ReasonFramingBit
	ReasonPreamble
	ReasonLength
	ReasonFinalCheck
	numReasons
)

var reasonNames = [numReasons]string{
	ReasonClock:      "clock",
	ReasonTolerance:  "tolerance",
	ReasonFramingBit: "framing_bit",
	ReasonPreamble:   "preamble",
	ReasonLength:     "length",
	ReasonFinalCheck: "final_check",
}

func (r Reason) String() string {
	if r < 0 || r >= numReasons {
		return "unknown"
	}
	return reasonNames[r]
}

// Reasons lists all reject reasons.
func Reasons() []Reason {
	rs := make([]Reason, numReasons)
	for i := range rs {
		rs[i] = Reason(i)
	}
	return rs
}

// Stats counts decoder outcomes since creation.
type Stats struct {
	Edges   uint64
	Packets uint64
	Rejects [numReasons]uint64
}

// Rejected returns the reject count for a reason.
func (s Stats) Rejected(r Reason) uint64 {
	if r < 0 || r >= numReasons {
		return 0
	}
	return s.Rejects[r]
}

// Decoder is the Manchester decoding state machine.
type Decoder struct {
	halfBit int    // 0 while idle
	target  int    // completion half-bit, 0 until the length byte is known
	clock   uint32 // recovered short-edge duration
	isOne   bool   // value of the bit in progress
	data    [cresta.MaxDataLen]byte

	// OnReject, if set, is called whenever a frame in progress is abandoned.
	OnReject func(Reason)

	stats Stats
}

// New returns an idle decoder.
func New() *Decoder {
	return &Decoder{}
}

// Stats returns a copy of the counters.
func (d *Decoder) Stats() Stats {
	return d.stats
}

// Idle reports whether the decoder is waiting for the first edge of a frame.
func (d *Decoder) Idle() bool {
	return d.halfBit == 0
}

// Feed processes one edge duration in microseconds. It returns a raw packet
// when the edge completes a frame whose preamble and length are valid.
func (d *Decoder) Feed(duration uint32) (cresta.RawPacket, bool) {
	d.stats.Edges++

	if d.halfBit == 0 {
		if !d.start(duration) {
			d.reject(ReasonClock)
		}
		return cresta.RawPacket{}, false
	}

	// Neither a short nor a long edge.
	if duration < d.clock>>1 || duration > 3*d.clock {
		d.abandon(ReasonTolerance)
		return cresta.RawPacket{}, false
	}

	if d.halfBit&1 == 1 {
		if pkt, emitted, stop := d.completeBit(); stop {
			return pkt, emitted
		}
	}

	if duration > d.clock+d.clock>>1 {
		d.isOne = !d.isOne
		d.halfBit++
	}
	d.halfBit++

	return cresta.RawPacket{}, false
}

// completeBit stores the bit finished by the current edge and runs the
// framing checks due at this half-bit. stop is true when the frame ended,
// either rejected or complete.
func (d *Decoder) completeBit() (pkt cresta.RawPacket, emitted, stop bool) {
	currentByte := d.halfBit / halfBitsPerByte
	currentBit := (d.halfBit >> 1) % 9

	if currentBit < framingBitInByte {
		if currentByte < cresta.MaxDataLen {
			if d.isOne {
				d.data[currentByte] |= 1 << currentBit
			} else {
				d.data[currentByte] &^= 1 << currentBit
			}
		}
	} else if d.isOne {
		d.abandon(ReasonFramingBit)
		return pkt, false, true
	}

	switch d.halfBit {
	case preambleHalfBit:
		if d.data[0] != cresta.Preamble {
			d.abandon(ReasonPreamble)
			return pkt, false, true
		}
	case lengthHalfBit:
		n := cresta.LengthField(d.data[2])
		if !cresta.ValidLength(n) {
			d.abandon(ReasonLength)
			return pkt, false, true
		}
		// Minus the framing bit never sent after the last byte.
		d.target = (n+3)*halfBitsPerByte - 3
	}

	if d.target == 0 || d.halfBit < d.target {
		return pkt, false, false
	}

	// The buffer can still be corrupted by a late glitch; check again.
	n := cresta.LengthField(d.data[2])
	if d.data[0] == cresta.Preamble && cresta.ValidLength(n) {
		copy(pkt[:n+3], d.data[:n+3])
		emitted = true
		d.stats.Packets++
	} else {
		d.reject(ReasonFinalCheck)
	}
	d.reset()
	return pkt, emitted, true
}

// start treats duration as the first, long edge of a frame and reports
// whether it yields a plausible clock.
func (d *Decoder) start(duration uint32) bool {
	d.reset()
	clock := duration >> 1
	if clock < MinClock || clock > MaxClock {
		return false
	}
	d.clock = clock
	d.isOne = true
	d.halfBit = 1
	return true
}

// abandon drops the frame in progress and returns to idle. The offending
// edge is not reused as a first edge: its half may look like a valid clock
// and would swallow the frame that follows.
func (d *Decoder) abandon(r Reason) {
	d.reject(r)
	d.reset()
}

func (d *Decoder) reject(r Reason) {
	d.stats.Rejects[r]++
	if d.OnReject != nil {
		d.OnReject(r)
	}
}

func (d *Decoder) reset() {
	d.halfBit = 0
	d.target = 0
	d.data = [cresta.MaxDataLen]byte{}
}
