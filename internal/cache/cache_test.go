package cache

import (
	"testing"
	"time"
)

func TestPlotKey(t *testing.T) {
	base := "plot:abc/3:png"

	t.Run("nilOpts", func(t *testing.T) {
		if got := PlotKey("abc", 3, "png", nil); got != base {
			t.Fatalf("expected %q, got %q", base, got)
		}
	})

	t.Run("stableOrder", func(t *testing.T) {
		key1 := PlotKey("abc", 3, "png", map[string]any{"w": 800, "h": 600})
		key2 := PlotKey("abc", 3, "png", map[string]any{"h": 600, "w": 800})
		if key1 != key2 {
			t.Fatalf("expected stable key, got %q vs %q", key1, key2)
		}
		if key1 == base {
			t.Fatalf("expected opts to change the key")
		}
	})

	t.Run("generationChangesKey", func(t *testing.T) {
		if PlotKey("abc", 3, "png", nil) == PlotKey("abc", 4, "png", nil) {
			t.Fatalf("generation must be part of the key")
		}
	})
}

func TestManagerRoundTrip(t *testing.T) {
	m, err := NewManager(Config{PlotCacheSizeMB: 4, PlotTTL: time.Minute, SeriesCacheSize: 2})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	defer m.Close()

	if _, ok := m.GetPlot("missing"); ok {
		t.Fatalf("unexpected hit")
	}
	if err := m.SetPlot("k", []byte("png")); err != nil {
		t.Fatalf("SetPlot: %v", err)
	}
	if got, ok := m.GetPlot("k"); !ok || string(got) != "png" {
		t.Fatalf("unexpected plot %q ok=%v", got, ok)
	}

	m.SetSeries(SeriesKey("legend", "s", 1), []byte("a"))
	m.SetSeries(SeriesKey("legend", "s", 2), []byte("b"))
	m.SetSeries(SeriesKey("legend", "s", 3), []byte("c"))
	if _, ok := m.GetSeries(SeriesKey("legend", "s", 1)); ok {
		t.Fatalf("expected oldest series entry to be evicted")
	}
	if got, ok := m.GetSeries("legend:s/3"); !ok || string(got) != "c" {
		t.Fatalf("unexpected series entry %q ok=%v", got, ok)
	}
	if n := m.Stats()["series_cache_len"]; n != 2 {
		t.Errorf("expected 2 series entries, got %v", n)
	}
}
