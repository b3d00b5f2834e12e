package index

import (
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/nicktill/tinytsdb/pkg/sample"
)

// TagIndex is the inverted index for one metric: tag key -> tag value ->
// bitmap of column positions carrying that pair. Bit i is set iff the sample
// at column position i has the pair in its tag map. A sample with no tags
// contributes no bits but still occupies its column position.
type TagIndex struct {
	bits map[string]map[string]*roaring.Bitmap
}

// NewTagIndex returns an empty tag index.
func NewTagIndex() *TagIndex {
	return &TagIndex{bits: make(map[string]map[string]*roaring.Bitmap)}
}

// Add sets bit pos for every key/value pair in tags. Bitmaps are created
// lazily on first occurrence of a pair.
func (t *TagIndex) Add(pos int, tags map[string]string) {
	for k, v := range tags {
		vals := t.bits[k]
		if vals == nil {
			vals = make(map[string]*roaring.Bitmap)
			t.bits[k] = vals
		}
		bm := vals[v]
		if bm == nil {
			bm = roaring.New()
			vals[v] = bm
		}
		bm.Add(uint32(pos))
	}
}

// Match intersects the bitmaps of every filter pair and returns the result,
// or nil when no position can match. The first bitmap is cloned before the
// AND chain so the indexed bitmaps are never mutated, and the intersection
// bails out as soon as it goes empty.
func (t *TagIndex) Match(filters map[string]string) *roaring.Bitmap {
	var acc *roaring.Bitmap
	for k, v := range filters {
		bm := t.bits[k][v]
		if bm == nil {
			return nil
		}
		if acc == nil {
			acc = bm.Clone()
			continue
		}
		acc.And(bm)
		if acc.IsEmpty() {
			return nil
		}
	}
	return acc
}

// Pairs counts the distinct (key, value) pairs currently indexed.
func (t *TagIndex) Pairs() int {
	n := 0
	for _, vals := range t.bits {
		n += len(vals)
	}
	return n
}

// Rebuild discards every bitmap and re-indexes the given column contents.
// Eviction shifts all surviving positions down, which invalidates every set
// bit at once; rebuilding from the shifted column is no more work than
// shifting the bits and much simpler.
func (t *TagIndex) Rebuild(samples []sample.Sample) {
	t.bits = make(map[string]map[string]*roaring.Bitmap)
	for i, s := range samples {
		t.Add(i, s.Tags)
	}
}
