// Command tsbench generates sample data, loads it into the store, and
// reports insert and query throughput.
//
// The data file is a CSV with header "unix_seconds,metric,value,<tag keys…>",
// one row per sample. Timestamps are multiplied by 1000 on load.
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/nicktill/tinytsdb/pkg/sample"
	"github.com/nicktill/tinytsdb/pkg/store"
)

var (
	rows    = flag.Int("rows", 100000, "samples to generate")
	queries = flag.Int("queries", 1000, "queries to run per mode")
	csvPath = flag.String("csv", "tsbench_data.csv", "sample CSV path (generated if missing)")
	workDir = flag.String("dir", "", "working directory for the durability log (default: temp dir)")
	seed    = flag.Int64("seed", 42, "RNG seed")
)

var (
	metricNames = []string{"cpu_usage", "mem_usage", "disk_io", "net_rx"}
	tagKeys     = []string{"host", "region"}
	regions     = []string{"us-east", "us-west", "eu-central"}
)

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))

	if _, err := os.Stat(*csvPath); os.IsNotExist(err) {
		log.Printf("Generating %d samples into %s...", *rows, *csvPath)
		if err := generate(*csvPath, *rows, rng); err != nil {
			log.Fatalf("Generate failed: %v", err)
		}
	}

	dir := *workDir
	if dir == "" {
		var err error
		dir, err = os.MkdirTemp("", "tsbench")
		if err != nil {
			log.Fatalf("Temp dir: %v", err)
		}
		defer os.RemoveAll(dir)
	}

	st, err := store.Open(store.Options{
		Path:      filepath.Join(dir, "data_store.log"),
		Retention: 365 * 24 * time.Hour,
	})
	if err != nil {
		log.Fatalf("Open store: %v", err)
	}
	defer st.Close()

	samples, err := load(*csvPath)
	if err != nil {
		log.Fatalf("Load CSV: %v", err)
	}

	// Insert throughput.
	start := time.Now()
	for _, s := range samples {
		if err := st.Insert(s); err != nil {
			log.Fatalf("Insert: %v", err)
		}
	}
	elapsed := time.Since(start)
	fmt.Printf("inserted  %d samples in %v (%.0f samples/s)\n",
		len(samples), elapsed.Round(time.Millisecond), float64(len(samples))/elapsed.Seconds())

	lo := samples[0].Timestamp
	hi := samples[len(samples)-1].Timestamp + 1

	// Unfiltered range queries.
	start = time.Now()
	var got int
	for i := 0; i < *queries; i++ {
		a, b := window(rng, lo, hi)
		res, err := st.Query(metricNames[i%len(metricNames)], a, b, nil)
		if err != nil {
			log.Fatalf("Query: %v", err)
		}
		got += len(res)
	}
	elapsed = time.Since(start)
	fmt.Printf("unfiltered %d queries in %v (%.0f queries/s, %d rows)\n",
		*queries, elapsed.Round(time.Millisecond), float64(*queries)/elapsed.Seconds(), got)

	// Tag-filtered range queries.
	start = time.Now()
	got = 0
	for i := 0; i < *queries; i++ {
		a, b := window(rng, lo, hi)
		filters := map[string]string{"host": fmt.Sprintf("host%d", i%10)}
		res, err := st.Query(metricNames[i%len(metricNames)], a, b, filters)
		if err != nil {
			log.Fatalf("Query: %v", err)
		}
		got += len(res)
	}
	elapsed = time.Since(start)
	fmt.Printf("filtered   %d queries in %v (%.0f queries/s, %d rows)\n",
		*queries, elapsed.Round(time.Millisecond), float64(*queries)/elapsed.Seconds(), got)
}

// generate writes a CSV of synthetic samples, one per second per row,
// ending now.
func generate(path string, n int, rng *rand.Rand) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := append([]string{"unix_seconds", "metric", "value"}, tagKeys...)
	if err := w.Write(header); err != nil {
		return err
	}

	base := time.Now().Unix() - int64(n)
	for i := 0; i < n; i++ {
		row := []string{
			strconv.FormatInt(base+int64(i), 10),
			metricNames[rng.Intn(len(metricNames))],
			strconv.FormatFloat(rng.Float64()*100, 'f', 2, 64),
			fmt.Sprintf("host%d", rng.Intn(10)),
			regions[rng.Intn(len(regions))],
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// load parses the CSV back into samples, seconds scaled to milliseconds.
func load(path string) ([]sample.Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("csv %s has no data rows", path)
	}

	keys := records[0][3:]
	samples := make([]sample.Sample, 0, len(records)-1)
	for _, rec := range records[1:] {
		secs, err := strconv.ParseInt(rec[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad unix_seconds %q: %w", rec[0], err)
		}
		value, err := strconv.ParseFloat(rec[2], 64)
		if err != nil {
			return nil, fmt.Errorf("bad value %q: %w", rec[2], err)
		}
		tags := make(map[string]string, len(keys))
		for i, k := range keys {
			tags[k] = rec[3+i]
		}
		samples = append(samples, sample.New(secs*1000, rec[1], value, tags))
	}
	return samples, nil
}

// window picks a random half-open query window inside [lo, hi).
func window(rng *rand.Rand, lo, hi int64) (int64, int64) {
	span := hi - lo
	a := lo + rng.Int63n(span)
	b := a + span/10 + 1
	if b > hi {
		b = hi
	}
	return a, b
}
