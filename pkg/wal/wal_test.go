package wal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nicktill/tinytsdb/pkg/sample"
)

func TestLog_AppendAndReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data_store.log")

	l, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	want := []sample.Sample{
		{Timestamp: 1000, Metric: "cpu", Value: 45.2, Tags: map[string]string{"host": "s1"}},
		{Timestamp: 2000, Metric: "cpu", Value: 46.0, Tags: map[string]string{"host": "s2"}},
		{Timestamp: 3000, Metric: "mem", Value: 1024},
	}
	for _, s := range want {
		if err := l.Append(s); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	var got []sample.Sample
	err = Replay(path, func(s sample.Sample) error {
		got = append(got, s)
		return nil
	})
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}

	if len(got) != len(want) {
		t.Fatalf("Expected %d replayed samples, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i].Timestamp != want[i].Timestamp || got[i].Metric != want[i].Metric || got[i].Value != want[i].Value {
			t.Errorf("Sample %d mismatch: got %+v, want %+v", i, got[i], want[i])
		}
	}
	if got[0].Tags["host"] != "s1" {
		t.Errorf("Expected host=s1, got %q", got[0].Tags["host"])
	}
	if got[2].Tags != nil {
		t.Errorf("Expected nil tags on untagged sample, got %v", got[2].Tags)
	}
}

func TestLog_FlushedOnEveryAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data_store.log")

	l, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer l.Close()

	if err := l.Append(sample.Sample{Timestamp: 1, Metric: "m", Value: 1}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	// Without closing the writer, the record must already be on disk.
	var count int
	err = Replay(path, func(sample.Sample) error {
		count++
		return nil
	})
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 record visible before Close, got %d", count)
	}
}

func TestReplay_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.log")

	err := Replay(path, func(sample.Sample) error {
		t.Fatal("callback invoked for missing file")
		return nil
	})
	if err != nil {
		t.Fatalf("Expected missing file to replay as empty, got %v", err)
	}
}

func TestReplay_CorruptRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data_store.log")
	content := `{"ts":1000,"metric":"cpu","value":1}` + "\n" + "not json\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	err := Replay(path, func(sample.Sample) error { return nil })
	if err == nil {
		t.Fatal("Expected corrupt record to abort replay")
	}
}

func TestReplay_InvalidRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data_store.log")
	// Parses as JSON but has no metric name.
	if err := os.WriteFile(path, []byte(`{"ts":1000,"value":1}`+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	err := Replay(path, func(sample.Sample) error { return nil })
	if err == nil {
		t.Fatal("Expected invalid record to abort replay")
	}
}

func TestLog_Size(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data_store.log")

	l, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer l.Close()

	before, err := l.Size()
	if err != nil {
		t.Fatalf("Size failed: %v", err)
	}
	if before != 0 {
		t.Errorf("Expected empty log, got %d bytes", before)
	}

	if err := l.Append(sample.Sample{Timestamp: 1, Metric: "m", Value: 1}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	after, err := l.Size()
	if err != nil {
		t.Fatalf("Size failed: %v", err)
	}
	if after <= before {
		t.Errorf("Expected log to grow, got %d -> %d", before, after)
	}
}
