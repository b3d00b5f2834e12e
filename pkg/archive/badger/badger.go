// Package badger implements archive.Archive on BadgerDB (LSM tree).
package badger

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/nicktill/tinytsdb/pkg/archive"
	"github.com/nicktill/tinytsdb/pkg/sample"
)

// Archive stores evicted samples in BadgerDB.
type Archive struct {
	db *badger.DB
}

// Config holds BadgerDB configuration.
type Config struct {
	// Path to store database files.
	Path string

	// InMemory mode (for testing).
	InMemory bool

	// MaxMemoryMB limits BadgerDB memory usage in MB (0 = 48 MB default).
	MaxMemoryMB int64
}

// New creates a BadgerDB archive.
func New(cfg Config) (*Archive, error) {
	opts := badger.DefaultOptions(cfg.Path)

	if cfg.InMemory {
		opts = opts.WithInMemory(true)
	}

	// SAFETY: Badger's defaults assume server-class memory. The archive is a
	// cold tier that sees one batch per retention sweep, so it runs with
	// tight caps: 48 MB of memtables (3 x 16 MB) plus 12 MB of block and
	// index cache unless the caller sets MaxMemoryMB.
	memTableSize := int64(16 * 1024 * 1024)
	if cfg.MaxMemoryMB > 0 {
		memTableSize = cfg.MaxMemoryMB * 1024 * 1024 / 3
	}

	opts = opts.
		WithCompression(options.Snappy).
		WithNumVersionsToKeep(1).
		WithMemTableSize(memTableSize).
		WithNumMemtables(3).
		WithBlockCacheSize(memTableSize / 2).
		WithIndexCacheSize(memTableSize / 4).
		WithMaxLevels(4).
		WithNumLevelZeroTables(2).
		WithNumLevelZeroTablesStall(4).
		WithValueThreshold(1024).
		WithNumCompactors(2).
		WithValueLogMaxEntries(5000).
		WithValueLogFileSize(64 << 20)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}

	return &Archive{db: db}, nil
}

// Write stores samples in a single transaction.
func (a *Archive) Write(ctx context.Context, samples []sample.Sample) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return a.db.Update(func(txn *badger.Txn) error {
		for i, s := range samples {
			// Check context periodically (every 100 samples)
			if i%100 == 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				default:
				}
			}

			value, err := json.Marshal(s)
			if err != nil {
				return fmt.Errorf("failed to encode sample: %w", err)
			}
			if err := txn.Set(makeKey(s), value); err != nil {
				return fmt.Errorf("failed to write sample: %w", err)
			}
		}
		return nil
	})
}

// Query retrieves archived samples for one metric via key-prefix iteration,
// then applies the time range and tag filters per sample.
func (a *Archive) Query(ctx context.Context, req archive.Request) ([]sample.Sample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var results []sample.Sample

	err := a.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchSize = 100
		opts.Prefix = metricPrefix(req.Metric)

		it := txn.NewIterator(opts)
		defer it.Close()

		var iterCount int
		for it.Rewind(); it.ValidForPrefix(opts.Prefix); it.Next() {
			iterCount++
			if iterCount%1000 == 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				default:
				}
			}

			err := it.Item().Value(func(val []byte) error {
				var s sample.Sample
				if err := json.Unmarshal(val, &s); err != nil {
					return fmt.Errorf("failed to decode sample: %w", err)
				}
				if !matches(s, req) {
					return nil
				}
				results = append(results, s)
				return nil
			})
			if err != nil {
				return err
			}

			if req.Limit > 0 && len(results) >= req.Limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Keys sort by series hash before timestamp, so cross-series order is
	// arbitrary. Return ascending by time like the hot store does.
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Timestamp < results[j].Timestamp
	})

	return results, nil
}

// Stats walks the keyspace without prefetching values.
func (a *Archive) Stats(ctx context.Context) (*archive.Stats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stats := &archive.Stats{}

	err := a.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		series := make(map[uint64]bool)
		var iterCount int

		for it.Rewind(); it.Valid(); it.Next() {
			iterCount++
			if iterCount%1000 == 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				default:
				}
			}

			stats.TotalSamples++

			hash, ts, ok := parseKey(it.Item().Key())
			if !ok {
				continue
			}
			series[hash] = true

			if stats.OldestTimestamp == 0 || ts < stats.OldestTimestamp {
				stats.OldestTimestamp = ts
			}
			if ts > stats.NewestTimestamp {
				stats.NewestTimestamp = ts
			}
		}

		stats.TotalSeries = uint64(len(series))
		return nil
	})
	if err != nil {
		return nil, err
	}

	lsmSize, vlogSize := a.db.Size()
	stats.SizeBytes = uint64(lsmSize + vlogSize)

	return stats, nil
}

// Close shuts down BadgerDB cleanly.
func (a *Archive) Close() error {
	return a.db.Close()
}

// RunGC runs BadgerDB's value log garbage collection to reclaim disk space.
// Returns badger.ErrNoRewrite when nothing needed collecting.
func (a *Archive) RunGC(discardRatio float64) error {
	return a.db.RunValueLogGC(discardRatio)
}

// makeKey builds a sortable key with a metric-name prefix so queries can
// prefix-scan a single metric.
// Format: [name_len (2 bytes)][name][series_hash (8 bytes)][timestamp_ms (8 bytes)]
func makeKey(s sample.Sample) []byte {
	hash := xxhash.Sum64String(seriesKey(s.Metric, s.Tags))

	nameBytes := []byte(s.Metric)
	key := make([]byte, 2+len(nameBytes)+16)

	binary.BigEndian.PutUint16(key[0:2], uint16(len(nameBytes)))
	copy(key[2:], nameBytes)
	binary.BigEndian.PutUint64(key[2+len(nameBytes):], hash)
	binary.BigEndian.PutUint64(key[2+len(nameBytes)+8:], uint64(s.Timestamp))

	return key
}

// metricPrefix returns the key prefix shared by every sample of a metric.
func metricPrefix(metric string) []byte {
	nameBytes := []byte(metric)
	prefix := make([]byte, 2+len(nameBytes))
	binary.BigEndian.PutUint16(prefix[0:2], uint16(len(nameBytes)))
	copy(prefix[2:], nameBytes)
	return prefix
}

// parseKey extracts the series hash and timestamp from a storage key.
func parseKey(key []byte) (hash uint64, ts int64, ok bool) {
	if len(key) < 18 {
		return 0, 0, false
	}
	nameLen := int(binary.BigEndian.Uint16(key[0:2]))
	if len(key) < 2+nameLen+16 {
		return 0, 0, false
	}
	hash = binary.BigEndian.Uint64(key[2+nameLen : 2+nameLen+8])
	ts = int64(binary.BigEndian.Uint64(key[2+nameLen+8 : 2+nameLen+16]))
	return hash, ts, true
}

// matches applies the half-open time range and tag equality filters.
func matches(s sample.Sample, req archive.Request) bool {
	if s.Timestamp < req.Start || s.Timestamp >= req.End {
		return false
	}
	for k, v := range req.Filters {
		if s.Tags == nil || s.Tags[k] != v {
			return false
		}
	}
	return true
}

// seriesKey builds a deterministic string identity for a series.
func seriesKey(metric string, tags map[string]string) string {
	if len(tags) == 0 {
		return metric
	}

	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	key := metric
	for _, k := range keys {
		key += "," + k + "=" + tags[k]
	}
	return key
}
