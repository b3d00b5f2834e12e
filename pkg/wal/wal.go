// Package wal implements the append-only durability log for the store.
//
// The log is line-oriented UTF-8 text: one JSON-encoded sample per line,
// flushed to the operating system after every append. On startup the store
// replays the whole file to rebuild its in-memory index; a line that fails to
// parse aborts the replay, because skipping it would silently lose data.
//
// The log grows without bound. Retention eviction frees memory, not disk.
package wal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/nicktill/tinytsdb/pkg/sample"
)

// maxLineBytes bounds a single replayed record. Samples are small; a line
// this large means the file is not ours.
const maxLineBytes = 1 << 20

// Log is an open durability log, ready for appends.
// Not safe for concurrent use; the store serializes access under its
// writer lock.
type Log struct {
	path string
	f    *os.File
	w    *bufio.Writer
}

// Open opens the log at path for appending, creating it if absent.
func Open(path string) (*Log, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("wal: open %s: %w", path, err)
	}
	return &Log{
		path: path,
		f:    f,
		w:    bufio.NewWriter(f),
	}, nil
}

// Append writes one sample as a single line and flushes it.
// Flush-on-every-write is the durability contract: an acknowledged insert
// has left the process, though it may not have hit the platter.
func (l *Log) Append(s sample.Sample) error {
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("wal: encode sample: %w", err)
	}
	if _, err := l.w.Write(b); err != nil {
		return fmt.Errorf("wal: append: %w", err)
	}
	if err := l.w.WriteByte('\n'); err != nil {
		return fmt.Errorf("wal: append: %w", err)
	}
	if err := l.w.Flush(); err != nil {
		return fmt.Errorf("wal: flush: %w", err)
	}
	return nil
}

// Size reports the log's current size on disk.
func (l *Log) Size() (int64, error) {
	fi, err := l.f.Stat()
	if err != nil {
		return 0, fmt.Errorf("wal: stat: %w", err)
	}
	return fi.Size(), nil
}

// Close flushes buffered data and closes the file. The log must not be
// used afterwards.
func (l *Log) Close() error {
	if err := l.w.Flush(); err != nil {
		l.f.Close()
		return fmt.Errorf("wal: flush on close: %w", err)
	}
	if err := l.f.Close(); err != nil {
		return fmt.Errorf("wal: close: %w", err)
	}
	return nil
}

// Replay reads every record in the log at path, in write order, and hands
// each decoded sample to fn. A missing file is an empty log. Any line that
// fails to decode, or an error returned by fn, aborts the replay.
func Replay(path string, fn func(sample.Sample) error) error {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("wal: open for replay: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	line := 0
	for sc.Scan() {
		line++
		var s sample.Sample
		if err := json.Unmarshal(sc.Bytes(), &s); err != nil {
			return fmt.Errorf("wal: corrupt record at %s:%d: %w", path, line, err)
		}
		if err := sample.Validate(s); err != nil {
			return fmt.Errorf("wal: invalid record at %s:%d: %w", path, line, err)
		}
		if err := fn(s); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("wal: read during replay: %w", err)
	}
	return nil
}
