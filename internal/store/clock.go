package store

import (
	"sync/atomic"

	"github.com/google/uuid"
)

// Clock stamps log rows with strictly increasing sequence numbers.
type Clock interface {
	Next() int64
}

// IDGenerator produces session identifiers.
type IDGenerator interface {
	Generate() string
}

// LogicalClock is a monotonic logical clock, safe for concurrent use.
// The first call to Next returns 1.
type LogicalClock struct {
	seq atomic.Int64
}

// Next returns the next sequence number.
func (c *LogicalClock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last issued sequence number.
func (c *LogicalClock) Current() int64 {
	return c.seq.Load()
}

// UUIDv7Generator generates time-sortable UUIDv7 session IDs, so that
// sessions list in creation order.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
// Panics if UUID generation fails.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}
