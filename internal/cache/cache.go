// Package cache provides caching for rendered plots and derived session data.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"github.com/allegro/bigcache/v3"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Config contains cache configuration.
type Config struct {
	PlotCacheSizeMB int
	PlotTTL         time.Duration
	// SeriesCacheSize is the number of encoded series/legend documents kept.
	SeriesCacheSize int
}

// Manager holds two tiers. Rendered plots (PNG/HTML, tens of KB each) live in
// bigcache with a TTL and a byte budget. The series and legend JSON of a
// session is small and read on every front end redraw, so it lives in an LRU
// bounded by entry count: a session's latest generation stays hot while
// superseded generations age out without explicit invalidation.
type Manager struct {
	plotCache   *bigcache.BigCache
	seriesCache *lru.Cache[string, []byte]
}

// NewManager creates a new cache manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.PlotTTL <= 0 {
		cfg.PlotTTL = 10 * time.Minute
	}
	if cfg.SeriesCacheSize <= 0 {
		cfg.SeriesCacheSize = 256
	}

	plotCacheConfig := bigcache.Config{
		Shards:             64,
		LifeWindow:         cfg.PlotTTL,
		CleanWindow:        cfg.PlotTTL / 2,
		MaxEntriesInWindow: 10000,
		MaxEntrySize:       256 * 1024, // 256KB per plot
		HardMaxCacheSize:   cfg.PlotCacheSizeMB,
		Verbose:            false,
	}

	plotCache, err := bigcache.New(context.Background(), plotCacheConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create plot cache: %w", err)
	}

	seriesCache, err := lru.New[string, []byte](cfg.SeriesCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create series cache: %w", err)
	}

	return &Manager{
		plotCache:   plotCache,
		seriesCache: seriesCache,
	}, nil
}

// GetPlot retrieves a rendered plot from cache.
func (m *Manager) GetPlot(key string) ([]byte, bool) {
	data, err := m.plotCache.Get(key)
	if err != nil {
		return nil, false
	}
	return data, true
}

// SetPlot stores a rendered plot in cache.
func (m *Manager) SetPlot(key string, data []byte) error {
	return m.plotCache.Set(key, data)
}

// GetSeries returns an encoded series or legend document.
func (m *Manager) GetSeries(key string) ([]byte, bool) {
	return m.seriesCache.Get(key)
}

// SetSeries stores an encoded series or legend document.
func (m *Manager) SetSeries(key string, data []byte) {
	m.seriesCache.Add(key, data)
}

// PlotKey generates a cache key for a rendered plot.
func PlotKey(sessionID string, generation uint64, format string, opts map[string]any) string {
	base := fmt.Sprintf("plot:%s/%d:%s", sessionID, generation, format)
	if len(opts) == 0 {
		return base
	}

	keys := make([]string, 0, len(opts))
	for k := range opts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	h.Write([]byte(base))
	for _, k := range keys {
		h.Write([]byte(fmt.Sprintf("%s=%v;", k, opts[k])))
	}
	return base + ":" + hex.EncodeToString(h.Sum(nil))[:16]
}

// SeriesKey keys a derived JSON document of kind ("series", "legend") by
// session generation. Applying a result, or switching axes once a sample
// exists, bumps the generation.
func SeriesKey(kind, sessionID string, generation uint64) string {
	return fmt.Sprintf("%s:%s/%d", kind, sessionID, generation)
}

// Stats returns cache statistics.
func (m *Manager) Stats() map[string]interface{} {
	return map[string]interface{}{
		"plot_cache_len":  m.plotCache.Len(),
		"plot_cache_cap":  m.plotCache.Capacity(),
		"series_cache_len": m.seriesCache.Len(),
	}
}

// Close closes the cache manager.
func (m *Manager) Close() error {
	return m.plotCache.Close()
}
