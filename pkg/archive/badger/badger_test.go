package badger

import (
	"context"
	"testing"

	"github.com/nicktill/tinytsdb/pkg/archive"
	"github.com/nicktill/tinytsdb/pkg/sample"
)

func openTest(t *testing.T) *Archive {
	t.Helper()
	a, err := New(Config{InMemory: true})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func TestArchive_WriteAndQuery(t *testing.T) {
	a := openTest(t)
	ctx := context.Background()

	samples := []sample.Sample{
		{Timestamp: 1000, Metric: "cpu", Value: 1.0, Tags: map[string]string{"host": "s1"}},
		{Timestamp: 2000, Metric: "cpu", Value: 2.0, Tags: map[string]string{"host": "s2"}},
		{Timestamp: 3000, Metric: "cpu", Value: 3.0, Tags: map[string]string{"host": "s1"}},
		{Timestamp: 1500, Metric: "mem", Value: 4.0, Tags: nil},
	}
	if err := a.Write(ctx, samples); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	// Half-open range over one metric.
	results, err := a.Query(ctx, archive.Request{Metric: "cpu", Start: 1000, End: 3000})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Expected 2 results in [1000, 3000), got %d", len(results))
	}
	if results[0].Timestamp != 1000 || results[1].Timestamp != 2000 {
		t.Errorf("Expected ascending timestamps, got %v", results)
	}

	// Tag filter.
	results, err = a.Query(ctx, archive.Request{Metric: "cpu", Start: 0, End: 10000, Filters: map[string]string{"host": "s1"}})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(results) != 2 || results[0].Value != 1.0 || results[1].Value != 3.0 {
		t.Errorf("Expected the two s1 samples, got %v", results)
	}

	// Other metric untouched by cpu queries.
	results, err = a.Query(ctx, archive.Request{Metric: "mem", Start: 0, End: 10000})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(results) != 1 || results[0].Value != 4.0 {
		t.Errorf("Expected one mem sample, got %v", results)
	}
}

func TestArchive_QueryMissingMetric(t *testing.T) {
	a := openTest(t)
	ctx := context.Background()

	if err := a.Write(ctx, []sample.Sample{{Timestamp: 1, Metric: "cpu", Value: 1}}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	results, err := a.Query(ctx, archive.Request{Metric: "absent", Start: 0, End: 100})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("Expected empty result, got %v", results)
	}
}

func TestArchive_QueryLimit(t *testing.T) {
	a := openTest(t)
	ctx := context.Background()

	var samples []sample.Sample
	for i := 0; i < 20; i++ {
		samples = append(samples, sample.Sample{
			Timestamp: int64(1000 + i),
			Metric:    "cpu",
			Value:     float64(i),
			Tags:      map[string]string{"host": "s1"},
		})
	}
	if err := a.Write(ctx, samples); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	results, err := a.Query(ctx, archive.Request{Metric: "cpu", Start: 0, End: 10000, Limit: 5})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(results) != 5 {
		t.Errorf("Expected limit of 5, got %d", len(results))
	}
}

func TestArchive_Stats(t *testing.T) {
	a := openTest(t)
	ctx := context.Background()

	samples := []sample.Sample{
		{Timestamp: 1000, Metric: "cpu", Value: 1, Tags: map[string]string{"host": "s1"}},
		{Timestamp: 2000, Metric: "cpu", Value: 2, Tags: map[string]string{"host": "s1"}}, // same series
		{Timestamp: 3000, Metric: "cpu", Value: 3, Tags: map[string]string{"host": "s2"}},
		{Timestamp: 500, Metric: "mem", Value: 4},
	}
	if err := a.Write(ctx, samples); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	stats, err := a.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.TotalSamples != 4 {
		t.Errorf("Expected 4 samples, got %d", stats.TotalSamples)
	}
	if stats.TotalSeries != 3 {
		t.Errorf("Expected 3 series, got %d", stats.TotalSeries)
	}
	if stats.OldestTimestamp != 500 || stats.NewestTimestamp != 3000 {
		t.Errorf("Expected range [500, 3000], got [%d, %d]", stats.OldestTimestamp, stats.NewestTimestamp)
	}
}
