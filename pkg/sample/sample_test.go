package sample

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestValidate(t *testing.T) {
	ok := New(1000, "cpu", 1.5, map[string]string{"host": "s1"})
	if err := Validate(ok); err != nil {
		t.Errorf("Expected valid sample, got %v", err)
	}

	if err := Validate(New(1000, "", 1.5, nil)); !errors.Is(err, ErrEmptyMetric) {
		t.Errorf("Expected ErrEmptyMetric, got %v", err)
	}
	if err := Validate(New(1000, "cpu", 1.5, map[string]string{"": "v"})); !errors.Is(err, ErrEmptyTagKey) {
		t.Errorf("Expected ErrEmptyTagKey, got %v", err)
	}

	// Empty tag map and empty tag values are both fine.
	if err := Validate(New(1000, "cpu", 1.5, map[string]string{})); err != nil {
		t.Errorf("Expected empty tags to be valid, got %v", err)
	}
	if err := Validate(New(1000, "cpu", 1.5, map[string]string{"host": ""})); err != nil {
		t.Errorf("Expected empty tag value to be valid, got %v", err)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	s := New(1000, "cpu", 45.2, map[string]string{"host": "s1"})

	b, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var got Sample
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if got.Timestamp != 1000 || got.Metric != "cpu" || got.Value != 45.2 || got.Tags["host"] != "s1" {
		t.Errorf("Round trip mismatch: %+v", got)
	}
}
