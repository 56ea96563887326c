// Package service ties sessions, the analysis orchestrator, rendering and
// caching together behind the operations the HTTP surface and CLI expose.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/cytobridge/client/internal/cache"
	"github.com/cytobridge/client/internal/export"
	"github.com/cytobridge/client/internal/gating"
	"github.com/cytobridge/client/internal/history"
	"github.com/cytobridge/client/internal/metrics"
	"github.com/cytobridge/client/internal/render"
	"github.com/cytobridge/client/internal/session"
)

var (
	// ErrSessionNotFound is returned for unknown session ids.
	ErrSessionNotFound = errors.New("session not found")
	// ErrInvalidSelection is returned for selection updates that violate
	// selection bounds.
	ErrInvalidSelection = errors.New("invalid selection")
)

// Config contains the collaborators of a GatingService.
type Config struct {
	Registry     *session.Registry
	Orchestrator *session.Orchestrator
	Dispatcher   *session.Dispatcher
	Cache        *cache.Manager
	Renderer     *render.ScatterRenderer
	Metrics      *metrics.Metrics
	// History is optional; without it Runs returns ErrHistoryUnavailable.
	History *history.Store
}

// GatingService serves session operations.
type GatingService struct {
	registry     *session.Registry
	orchestrator *session.Orchestrator
	dispatcher   *session.Dispatcher
	cache        *cache.Manager
	renderer     *render.ScatterRenderer
	metrics      *metrics.Metrics
	history      *history.Store
}

// NewGatingService creates a new gating service.
func NewGatingService(cfg Config) *GatingService {
	return &GatingService{
		registry:     cfg.Registry,
		orchestrator: cfg.Orchestrator,
		dispatcher:   cfg.Dispatcher,
		cache:        cfg.Cache,
		renderer:     cfg.Renderer,
		metrics:      cfg.Metrics,
		history:      cfg.History,
	}
}

// Registry returns the session registry.
func (s *GatingService) Registry() *session.Registry {
	return s.registry
}

// Session looks up a session.
func (s *GatingService) Session(id string) (*session.Session, error) {
	sess := s.registry.Get(id)
	if sess == nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sess, nil
}

// Upload replaces the file of a session.
func (s *GatingService) Upload(id, name string, data []byte) (session.Snapshot, error) {
	sess, err := s.Session(id)
	if err != nil {
		return session.Snapshot{}, err
	}
	if err := sess.SetUpload(session.Upload{Name: name, Data: data}); err != nil {
		return session.Snapshot{}, err
	}
	return sess.Snapshot(), nil
}

// SelectionPatch is a partial selection update. Nil fields are left as is.
type SelectionPatch struct {
	X          *gating.Channel `json:"x"`
	Y          *gating.Channel `json:"y"`
	Clusters   *int            `json:"clusters"`
	AutoDetect *bool           `json:"auto_detect"`
}

// Validate checks the patch against selection bounds. Channel names are not
// checked against the known channel set; an unknown channel plots as missing.
func (p SelectionPatch) Validate() error {
	if p.X != nil && *p.X == "" {
		return fmt.Errorf("%w: x channel is empty", ErrInvalidSelection)
	}
	if p.Y != nil && *p.Y == "" {
		return fmt.Errorf("%w: y channel is empty", ErrInvalidSelection)
	}
	if p.Clusters != nil && !gating.ValidClusterCount(*p.Clusters) {
		return fmt.Errorf("%w: clusters must be between %d and %d", ErrInvalidSelection, gating.MinClusters, gating.MaxClusters)
	}
	return nil
}

// Apply returns sel with the patch applied.
func (p SelectionPatch) Apply(sel gating.Selection) gating.Selection {
	if p.X != nil {
		sel = sel.WithX(*p.X)
	}
	if p.Y != nil {
		sel = sel.WithY(*p.Y)
	}
	if p.Clusters != nil {
		sel = sel.WithClusterCount(*p.Clusters)
	}
	if p.AutoDetect != nil {
		sel = sel.WithAutoDetect(*p.AutoDetect)
	}
	return sel
}

// UpdateSelection applies a validated patch to a session's selection.
func (s *GatingService) UpdateSelection(id string, patch SelectionPatch) (gating.Selection, error) {
	if err := patch.Validate(); err != nil {
		return gating.Selection{}, err
	}
	sess, err := s.Session(id)
	if err != nil {
		return gating.Selection{}, err
	}
	return sess.UpdateSelection(patch.Apply), nil
}

// Run performs one analysis for a session and returns its resulting state.
// Failures are reflected in the snapshot's status as well as the error.
func (s *GatingService) Run(ctx context.Context, id string) (session.Snapshot, error) {
	sess, err := s.Session(id)
	if err != nil {
		return session.Snapshot{}, err
	}
	_, err = s.orchestrator.RunAnalysis(ctx, sess)
	return sess.Snapshot(), err
}

// ErrAsyncUnavailable is returned by RunAsync when no dispatcher is configured.
var ErrAsyncUnavailable = errors.New("background analysis is not enabled")

// RunAsync queues an analysis for a session and returns immediately with the
// session in flight. Poll the session for the outcome.
func (s *GatingService) RunAsync(id string) (session.Snapshot, error) {
	if s.dispatcher == nil {
		return session.Snapshot{}, ErrAsyncUnavailable
	}
	sess, err := s.Session(id)
	if err != nil {
		return session.Snapshot{}, err
	}
	if _, err := s.dispatcher.Submit(sess); err != nil {
		return sess.Snapshot(), err
	}
	return sess.Snapshot(), nil
}

// SeriesJSON returns the encoded plot series of a session.
func (s *GatingService) SeriesJSON(id string) ([]byte, error) {
	sess, err := s.Session(id)
	if err != nil {
		return nil, err
	}
	series, gen := sess.Series()
	key := cache.SeriesKey("series", id, gen)
	if data, ok := s.cache.GetSeries(key); ok {
		return data, nil
	}

	if series == nil {
		series = []gating.PlotSeries{}
	}
	data, err := json.Marshal(series)
	if err != nil {
		return nil, fmt.Errorf("failed to encode series: %w", err)
	}
	s.cache.SetSeries(key, data)
	return data, nil
}

// Legend returns per-population summaries of a session's current result.
func (s *GatingService) Legend(id string) ([]LegendItem, error) {
	sess, err := s.Session(id)
	if err != nil {
		return nil, err
	}
	series, gen := sess.Series()
	key := cache.SeriesKey("legend", id, gen)
	if data, ok := s.cache.GetSeries(key); ok {
		var legend []LegendItem
		if err := json.Unmarshal(data, &legend); err == nil {
			return legend, nil
		}
	}

	legend := ComputeLegend(series)
	if data, err := json.Marshal(legend); err == nil {
		s.cache.SetSeries(key, data)
	}
	return legend, nil
}

// Plot formats.
const (
	FormatPNG  = "png"
	FormatHTML = "html"
)

// Plot renders a session's series in format ("png" or "html"). Every plot
// served counts as an export, whether rendered or taken from the cache.
func (s *GatingService) Plot(id, format string) ([]byte, error) {
	sess, err := s.Session(id)
	if err != nil {
		return nil, err
	}
	series, gen := sess.Series()
	sel := sess.Selection()

	cfg := s.renderer.Config()
	key := cache.PlotKey(id, gen, format, map[string]any{
		"w": cfg.Width,
		"h": cfg.Height,
		"x": sel.X,
		"y": sel.Y,
	})
	if data, ok := s.cache.GetPlot(key); ok {
		s.metrics.IncExport(format)
		return data, nil
	}

	var data []byte
	switch format {
	case FormatPNG:
		data, err = s.renderer.RenderPNG(series, sel.X, sel.Y)
	case FormatHTML:
		data, err = s.renderer.RenderHTML(series, sel.X, sel.Y)
	default:
		return nil, fmt.Errorf("unsupported plot format: %s", format)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to render plot: %w", err)
	}

	if err := s.cache.SetPlot(key, data); err != nil {
		log.Printf("[Plot] cache set failed for %s: %v", key, err)
	}
	s.metrics.IncExport(format)
	return data, nil
}

// Export returns a session's CSV export compressed with codec and its
// download filename. ok is false when there is no sample to export.
func (s *GatingService) Export(id string, codec export.Codec) (data []byte, filename string, ok bool, err error) {
	sess, err := s.Session(id)
	if err != nil {
		return nil, "", false, err
	}
	text, name, ok := sess.Export()
	if !ok {
		return nil, "", false, nil
	}

	data, err = export.Compress([]byte(text), codec)
	if err != nil {
		return nil, "", false, fmt.Errorf("failed to compress export: %w", err)
	}
	s.metrics.IncExport("csv")
	return data, name + codec.Extension(), true, nil
}

// ErrHistoryUnavailable is returned by Runs when the run journal is disabled.
var ErrHistoryUnavailable = errors.New("run history is not enabled")

// Runs lists journaled analyses, newest first. An empty id lists the runs of
// every session, including ones that have since been evicted.
func (s *GatingService) Runs(id string, limit int) ([]*history.Run, error) {
	if s.history == nil {
		return nil, ErrHistoryUnavailable
	}
	if id != "" {
		if _, err := s.Session(id); err != nil {
			return nil, err
		}
	}
	runs, err := s.history.List(id, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	if runs == nil {
		runs = []*history.Run{}
	}
	return runs, nil
}

// Stats returns service statistics.
func (s *GatingService) Stats() map[string]interface{} {
	return map[string]interface{}{
		"sessions": s.registry.Len(),
		"cache":    s.cache.Stats(),
	}
}
