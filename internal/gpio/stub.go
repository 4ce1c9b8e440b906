//go:build !linux

package gpio

import "errors"

// RealSource is not available on non-Linux platforms.
type RealSource struct{}

// NewRealSource returns an error on non-Linux platforms.
func NewRealSource(chipName string, offset, queue int) (*RealSource, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// Edges returns nil on non-Linux platforms.
func (s *RealSource) Edges() <-chan uint32 {
	return nil
}

// Dropped always returns 0.
func (s *RealSource) Dropped() uint64 {
	return 0
}

// Close is a no-op on non-Linux platforms.
func (s *RealSource) Close() error {
	return nil
}
