package storage

import (
	"testing"

	"github.com/lehigh-university-libraries/ecosort/internal/providers"
)

func TestPredictionCacheEvictsOldest(t *testing.T) {
	c, err := New(2)
	if err != nil {
		t.Fatal(err)
	}

	c.Set("a", providers.Prediction{Label: "glass", Confidence: 0.9})
	c.Set("b", providers.Prediction{Label: "paper", Confidence: 0.8})
	c.Set("c", providers.Prediction{Label: "plastic", Confidence: 0.7})

	if _, ok := c.Get("a"); ok {
		t.Error("Expected oldest entry to be evicted")
	}
	got, ok := c.Get("c")
	if !ok || got.Label != "plastic" {
		t.Errorf("Expected plastic, got %+v (ok=%v)", got, ok)
	}
	if c.Len() != 2 {
		t.Errorf("Expected 2 entries, got %d", c.Len())
	}

	c.Purge()
	if c.Len() != 0 {
		t.Errorf("Expected empty cache after purge, got %d", c.Len())
	}
}

func TestDisabledCache(t *testing.T) {
	c, err := New(0)
	if err != nil {
		t.Fatal(err)
	}
	if c != nil {
		t.Fatal("Expected nil cache for size 0")
	}

	c.Set("a", providers.Prediction{Label: "glass"})
	if _, ok := c.Get("a"); ok {
		t.Error("Disabled cache should never hit")
	}
	if c.Len() != 0 {
		t.Error("Disabled cache should be empty")
	}
	c.Purge()
}
