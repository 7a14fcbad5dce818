// Package ids provides instance-owned identifier generators for sessions,
// conflicts and plans.
package ids

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// Generator issues unique identifiers. Implementations must be safe for
// concurrent use.
type Generator interface {
	Next(prefix string) string
}

// Sequence combines a per-instance counter with a ULID, producing ids such as
// "session-3-01JB9ZQ4D6...". The counter keeps ids readable and ordered within
// one process; the ULID keeps them unique across processes.
type Sequence struct {
	n atomic.Uint64
}

// NewSequence returns a Sequence starting at 1.
func NewSequence() *Sequence {
	return &Sequence{}
}

// Next returns the next identifier for prefix.
func (s *Sequence) Next(prefix string) string {
	n := s.n.Add(1)
	return fmt.Sprintf("%s-%d-%s", prefix, n, ulid.Make().String())
}

// Count returns how many ids have been issued.
func (s *Sequence) Count() uint64 {
	return s.n.Load()
}

// UUID issues random v4 UUIDs, optionally prefixed.
type UUID struct{}

// Next returns prefix-<uuid>, or a bare uuid when prefix is empty.
func (UUID) Next(prefix string) string {
	id := uuid.NewString()
	if prefix == "" {
		return id
	}
	return prefix + "-" + id
}

// Counter is a deterministic generator for tests: prefix-1, prefix-2, ...
type Counter struct {
	n atomic.Uint64
}

// Next returns the next deterministic identifier for prefix.
func (c *Counter) Next(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, c.n.Add(1))
}
