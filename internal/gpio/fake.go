package gpio

import (
	"sync"
	"sync/atomic"
)

// FakeSource is a test double fed by the test through Push.
type FakeSource struct {
	mu     sync.Mutex
	ch     chan uint32
	closed bool

	// Closed tracks if Close was called
	Closed bool

	// CloseError, if set, will be returned by Close()
	CloseError error

	dropped atomic.Uint64
}

// NewFakeSource creates a FakeSource whose queue holds size edges.
func NewFakeSource(size int) *FakeSource {
	return &FakeSource{ch: make(chan uint32, size)}
}

// Push queues durations, dropping those that do not fit like the real
// source does. It returns how many were queued.
func (f *FakeSource) Push(durations ...uint32) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0
	}
	n := 0
	for _, d := range durations {
		select {
		case f.ch <- d:
			n++
		default:
			f.dropped.Add(1)
		}
	}
	return n
}

// Edges returns the duration channel.
func (f *FakeSource) Edges() <-chan uint32 {
	return f.ch
}

// Dropped returns the number of durations Push could not queue.
func (f *FakeSource) Dropped() uint64 {
	return f.dropped.Load()
}

// Close closes the edge channel and marks the source as closed.
func (f *FakeSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.ch)
	}
	f.Closed = true
	return f.CloseError
}
