// Package archive defines the cold tier for samples evicted by the
// retention sweep. The store keeps the hot window in memory; an Archive, if
// configured, receives evicted samples instead of letting them vanish.
//
// Implementations: badger (persistent LSM tree). A nil archive is valid and
// means evicted samples are dropped.
package archive

import (
	"context"

	"github.com/nicktill/tinytsdb/pkg/sample"
)

// Archive stores samples that have aged out of the in-memory index.
type Archive interface {
	// Write stores samples.
	Write(ctx context.Context, samples []sample.Sample) error

	// Query retrieves archived samples matching the request.
	Query(ctx context.Context, req Request) ([]sample.Sample, error)

	// Stats returns archive usage info.
	Stats(ctx context.Context) (*Stats, error)

	// Close cleanly shuts down the archive.
	Close() error
}

// Request selects archived samples: one metric, a half-open time interval
// [Start, End) in epoch milliseconds, and an optional conjunction of
// exact-match tag filters.
type Request struct {
	Metric string

	Start int64
	End   int64

	// Filters must all match a sample's tags (exact equality).
	Filters map[string]string

	// Limit caps the number of results (0 = no limit).
	Limit int
}

// Stats provides archive health and usage info.
type Stats struct {
	// Total archived samples.
	TotalSamples uint64

	// Unique series (metric + tag combinations).
	TotalSeries uint64

	// On-disk size in bytes.
	SizeBytes uint64

	// Timestamp range of archived data, epoch milliseconds.
	OldestTimestamp int64
	NewestTimestamp int64
}
