// Package store implements the indexed in-memory time-series store with a
// durable append log.
//
// For each metric the store keeps a flat time-ordered column of samples plus
// an inverted bitmap index over tag key/value pairs. Range queries binary-
// search the column for half-open [start, end) bounds; tag-filtered queries
// intersect the filters' bitmaps and enumerate the set positions inside the
// bounds. Every accepted insert is appended to a line-oriented durability
// log which is replayed on startup, followed by one retention sweep.
//
// A single reader-writer lock guards the whole index: inserts, sweeps and
// shutdown take the writer side, queries the reader side. The lock order is
// what makes bit i of a tag bitmap correspond to column position i.
package store

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/nicktill/tinytsdb/pkg/archive"
	"github.com/nicktill/tinytsdb/pkg/config"
	"github.com/nicktill/tinytsdb/pkg/index"
	"github.com/nicktill/tinytsdb/pkg/sample"
	"github.com/nicktill/tinytsdb/pkg/wal"
)

var (
	// ErrNotOpen is returned when an operation runs before Open completed.
	ErrNotOpen = errors.New("store: not open")
	// ErrClosed is returned when an operation runs after Close.
	ErrClosed = errors.New("store: closed")
)

type state int

const (
	stateNew state = iota
	stateRunning
	stateClosed
)

// Options configure a store instance.
type Options struct {
	// Path of the durability log. Empty means config.LogFileName in the
	// working directory.
	Path string

	// Retention bounds the age of retained samples. Zero means
	// config.DefaultRetention.
	Retention time.Duration

	// Archive, if non-nil, receives samples evicted by the retention
	// sweep. Nil means evicted samples are dropped.
	Archive archive.Archive

	// Now overrides the clock so tests can pin the sweep cutoff.
	Now func() time.Time
}

// Store owns the per-metric columns, the tag bitmap indices and the
// durability log. All methods are safe for concurrent use.
type Store struct {
	mu    sync.RWMutex
	state state

	columns map[string]*index.Column
	tags    map[string]*index.TagIndex

	log       *wal.Log
	path      string
	retention time.Duration
	archived  archive.Archive
	now       func() time.Time
}

// Stats reports store usage.
type Stats struct {
	Metrics      int           `json:"metrics"`
	TotalSamples int           `json:"total_samples"`
	TagPairs     int           `json:"tag_pairs"`
	OldestSample int64         `json:"oldest_sample_ms"`
	NewestSample int64         `json:"newest_sample_ms"`
	LogSizeBytes int64         `json:"log_size_bytes"`
	Retention    time.Duration `json:"retention_ns"`
}

// Open creates a store: it replays the durability log at the configured
// path (if present), runs one retention sweep over the replayed data, and
// opens the log for append. On any error the store is unusable and the
// caller must not retry on the same instance.
func Open(opts Options) (*Store, error) {
	path := opts.Path
	if path == "" {
		path = config.LogFileName
	}
	retention := opts.Retention
	if retention <= 0 {
		retention = config.DefaultRetention
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	s := &Store{
		columns:   make(map[string]*index.Column),
		tags:      make(map[string]*index.TagIndex),
		path:      path,
		retention: retention,
		archived:  opts.Archive,
		now:       now,
	}

	// Replay before accepting traffic. The store is not published yet, so
	// no locking here.
	replayed := 0
	err := wal.Replay(path, func(smp sample.Sample) error {
		s.indexLocked(smp)
		replayed++
		return nil
	})
	if err != nil {
		return nil, err
	}

	evicted := s.sweepLocked()

	l, err := wal.Open(path)
	if err != nil {
		return nil, err
	}
	s.log = l
	s.state = stateRunning

	log.Printf("store: opened %s (%d samples replayed, %d evicted, %d metrics)",
		path, replayed, evicted, len(s.columns))
	return s, nil
}

// Insert appends a sample to its metric's column, sets the bitmap bit for
// each tag pair, and writes one log record.
//
// Timestamps are expected to arrive in non-decreasing order per metric.
// A late sample is still appended, never reordered, and degrades the
// binary-searched query bounds for its metric.
//
// On a log write failure the in-memory state keeps the sample: it is
// queryable until eviction but its durability is not guaranteed.
func (s *Store) Insert(smp sample.Sample) error {
	if err := sample.Validate(smp); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.runningLocked(); err != nil {
		return err
	}

	s.indexLocked(smp)
	return s.log.Append(smp)
}

// Query returns every sample of metric with start <= timestamp < end whose
// tags carry all filter pairs, ascending by column position (equivalently
// by timestamp, ties broken by insertion order). A missing metric, a
// missing tag pair, or end <= start all yield an empty result, not an
// error. The returned slice never aliases the index.
func (s *Store) Query(metric string, start, end int64, filters map[string]string) ([]sample.Sample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.runningLocked(); err != nil {
		return nil, err
	}

	col := s.columns[metric]
	if col == nil || end <= start {
		return nil, nil
	}

	lo, hi := col.Bounds(start, end)
	if lo >= hi {
		return nil, nil
	}

	if len(filters) == 0 {
		return col.Slice(lo, hi), nil
	}

	matched := s.tags[metric].Match(filters)
	if matched == nil {
		return nil, nil
	}

	var out []sample.Sample
	it := matched.Iterator()
	it.AdvanceIfNeeded(uint32(lo))
	for it.HasNext() {
		pos := int(it.Next())
		if pos >= hi {
			break
		}
		out = append(out, col.At(pos))
	}
	return out, nil
}

// Sweep evicts every sample older than the retention window and rebuilds
// the affected bitmap indices against the shifted columns. Evicted samples
// are handed to the archive when one is configured. Returns the number of
// evicted samples. The durability log is untouched.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != stateRunning {
		return 0
	}
	return s.sweepLocked()
}

// SetRetention changes the retention window; it takes effect on the next
// sweep.
func (s *Store) SetRetention(d time.Duration) {
	if d <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retention = d
}

// Retention returns the current retention window.
func (s *Store) Retention() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.retention
}

// Stats walks the index and reports usage.
func (s *Store) Stats() (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.runningLocked(); err != nil {
		return Stats{}, err
	}

	st := Stats{
		Metrics:   len(s.columns),
		Retention: s.retention,
	}
	for metric, col := range s.columns {
		n := col.Len()
		st.TotalSamples += n
		st.TagPairs += s.tags[metric].Pairs()
		if n == 0 {
			continue
		}
		first, last := col.At(0).Timestamp, col.At(n-1).Timestamp
		if st.OldestSample == 0 || first < st.OldestSample {
			st.OldestSample = first
		}
		if last > st.NewestSample {
			st.NewestSample = last
		}
	}

	size, err := s.log.Size()
	if err != nil {
		return Stats{}, err
	}
	st.LogSizeBytes = size

	return st, nil
}

// Close closes the durability log. No operation may run afterwards.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case stateNew:
		return ErrNotOpen
	case stateClosed:
		return ErrClosed
	}
	s.state = stateClosed
	return s.log.Close()
}

// runningLocked reports the usage error for the current lifecycle state.
// Callers hold either lock side.
func (s *Store) runningLocked() error {
	switch s.state {
	case stateNew:
		return ErrNotOpen
	case stateClosed:
		return ErrClosed
	}
	return nil
}

// indexLocked appends a sample to its column and sets its tag bits. The
// append and the bitmap update happen under the same writer critical
// section; that is the whole bit-position invariant.
func (s *Store) indexLocked(smp sample.Sample) {
	col := s.columns[smp.Metric]
	if col == nil {
		col = &index.Column{}
		s.columns[smp.Metric] = col
		s.tags[smp.Metric] = index.NewTagIndex()
	}
	pos := col.Append(smp)
	s.tags[smp.Metric].Add(pos, smp.Tags)
}

// sweepLocked drops every sample with timestamp < now-retention and
// rebuilds the tag index of every metric that lost samples.
func (s *Store) sweepLocked() int {
	cutoff := s.now().UnixMilli() - s.retention.Milliseconds()

	var evicted []sample.Sample
	for metric, col := range s.columns {
		dropped := col.DropBefore(cutoff)
		if len(dropped) == 0 {
			continue
		}
		evicted = append(evicted, dropped...)
		if col.Len() == 0 {
			delete(s.columns, metric)
			delete(s.tags, metric)
			continue
		}
		s.tags[metric].Rebuild(col.Samples())
	}

	if len(evicted) > 0 && s.archived != nil {
		ctx, cancel := context.WithTimeout(context.Background(), config.ArchiveWriteTimeout)
		defer cancel()
		if err := s.archived.Write(ctx, evicted); err != nil {
			// Best effort: the sweep already freed the memory, and the
			// records are still in the durability log.
			log.Printf("store: archiving %d evicted samples failed: %v", len(evicted), err)
		}
	}

	return len(evicted)
}
