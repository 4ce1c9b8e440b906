//go:build linux

package gpio

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/warthog618/go-gpiocdev"
)

// RealSource watches both edges of a GPIO line. The kernel timestamps each
// event; the handler converts them to durations and queues them without
// blocking, dropping edges when the consumer falls behind.
type RealSource struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line

	mu     sync.Mutex // guards ch against the handler after Close
	ch     chan uint32
	closed bool
	timer  edgeTimer

	dropped atomic.Uint64
}

// NewRealSource requests the line on chipName as an input with edge
// detection on both edges.
func NewRealSource(chipName string, offset, queue int) (*RealSource, error) {
	if queue <= 0 {
		queue = DefaultQueue
	}
	s := &RealSource{ch: make(chan uint32, queue)}

	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", chipName, err)
	}

	line, err := chip.RequestLine(offset,
		gpiocdev.AsInput,
		gpiocdev.WithBothEdges,
		gpiocdev.WithEventHandler(s.handle),
	)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request line %d: %w", offset, err)
	}

	s.chip = chip
	s.line = line
	return s, nil
}

func (s *RealSource) handle(evt gpiocdev.LineEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	d, ok := s.timer.next(evt.Timestamp)
	if !ok {
		return
	}
	select {
	case s.ch <- d:
	default:
		s.dropped.Add(1)
	}
}

// Edges returns the duration channel.
func (s *RealSource) Edges() <-chan uint32 {
	return s.ch
}

// Dropped returns the number of edges lost to a full queue.
func (s *RealSource) Dropped() uint64 {
	return s.dropped.Load()
}

// Close releases the line and chip and closes the edge channel.
func (s *RealSource) Close() error {
	var errs []error

	if s.line != nil {
		if err := s.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close line: %w", err))
		}
	}
	if s.chip != nil {
		if err := s.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	s.mu.Unlock()

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
