// Package index holds the two per-metric index structures: the flat
// time-ordered column of samples and the inverted tag bitmap index over it.
// Both are plain data structures with no locking; the store coordinates
// access under its reader-writer lock.
package index

import (
	"sort"

	"github.com/nicktill/tinytsdb/pkg/sample"
)

// Column is the append-only sequence of samples for one metric. Positions
// are dense: the i-th appended sample lives at position i. Timestamps are
// expected to be non-decreasing in append order; the column never reorders,
// and the binary-searched bounds are only meaningful when that holds.
type Column struct {
	samples []sample.Sample
}

// Append adds a sample at the tail and returns its position.
func (c *Column) Append(s sample.Sample) int {
	c.samples = append(c.samples, s)
	return len(c.samples) - 1
}

// Len returns the number of samples in the column.
func (c *Column) Len() int {
	return len(c.samples)
}

// At returns the sample at position i.
func (c *Column) At(i int) sample.Sample {
	return c.samples[i]
}

// Samples exposes the backing slice for index rebuilds and stats walks.
// Callers must not mutate it.
func (c *Column) Samples() []sample.Sample {
	return c.samples
}

// Bounds returns the half-open position range [lo, hi) of samples with
// start <= timestamp < end. Both searches use the same lower-bound
// predicate, which is what makes the interval half-open.
func (c *Column) Bounds(start, end int64) (lo, hi int) {
	lo = sort.Search(len(c.samples), func(i int) bool { return c.samples[i].Timestamp >= start })
	hi = sort.Search(len(c.samples), func(i int) bool { return c.samples[i].Timestamp >= end })
	return lo, hi
}

// Slice returns an independent copy of positions [lo, hi). Queries hand
// this to callers so results never alias the column.
func (c *Column) Slice(lo, hi int) []sample.Sample {
	if lo >= hi {
		return nil
	}
	out := make([]sample.Sample, hi-lo)
	copy(out, c.samples[lo:hi])
	return out
}

// DropBefore evicts every sample with timestamp < cutoff and returns the
// evicted prefix. The survivors are copied into a fresh slice so the old
// backing array (and the memory of the evicted samples) can be collected.
// After a non-empty eviction every surviving position has shifted down, so
// the caller must rebuild the tag index.
func (c *Column) DropBefore(cutoff int64) []sample.Sample {
	k := sort.Search(len(c.samples), func(i int) bool { return c.samples[i].Timestamp >= cutoff })
	if k == 0 {
		return nil
	}
	evicted := c.samples[:k:k]
	rest := make([]sample.Sample, len(c.samples)-k)
	copy(rest, c.samples[k:])
	c.samples = rest
	return evicted
}
