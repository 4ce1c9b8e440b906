package store

import (
	"context"
	"sync"
)

// FakeStore records saved records in memory. Use in tests.
type FakeStore struct {
	mu      sync.Mutex
	Records []Record
	Err     error
	Closed  bool
}

// Save records r, or returns Err if set.
func (f *FakeStore) Save(_ context.Context, r Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.Records = append(f.Records, r)
	return nil
}

// Close marks the store closed.
func (f *FakeStore) Close() {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
}

// Saved returns a copy of the saved records.
func (f *FakeStore) Saved() []Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Record, len(f.Records))
	copy(out, f.Records)
	return out
}
