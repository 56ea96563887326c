// Package main is the entry point for the CytoBridge client.
package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/cytobridge/client/internal/analysis"
	"github.com/cytobridge/client/internal/cache"
	"github.com/cytobridge/client/internal/config"
	"github.com/cytobridge/client/internal/history"
	"github.com/cytobridge/client/internal/metrics"
	"github.com/cytobridge/client/internal/render"
	"github.com/cytobridge/client/internal/service"
	"github.com/cytobridge/client/internal/session"
	"github.com/spf13/cobra"
)

var version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "cytobridge",
	Short: "Client for the CytoBridge automated gating service",
	Long: `CytoBridge uploads flow cytometry files to the gating service, groups the
returned events into populations and renders or exports the result.

Commands:
  serve     Run the local HTTP API used by the browser front end
  gate      Gate one file and write CSV, PNG and HTML results
  inspect   Summarize populations in an exported CSV
  history   List journaled analysis runs`,
	SilenceUsage: true,
	Version:      version,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config/cytobridge.yaml", "Path to configuration file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	return cfg, nil
}

// stack is the set of components shared by serve and gate.
type stack struct {
	client     *analysis.Client
	metrics    *metrics.Metrics
	cache      *cache.Manager
	registry   *session.Registry
	dispatcher *session.Dispatcher
	history    *history.Store
	service    *service.GatingService
}

func newStack(cfg *config.Config) (*stack, error) {
	client, err := analysis.NewClient(analysis.Config{
		BaseURL:  cfg.Service.BaseURL,
		GatePath: cfg.Service.GatePath,
		Timeout:  cfg.ServiceTimeout(),
	}, nil)
	if err != nil {
		return nil, err
	}

	cacheManager, err := cache.NewManager(cache.Config{
		PlotCacheSizeMB: cfg.Cache.PlotSizeMB,
		PlotTTL:         cfg.PlotTTL(),
		SeriesCacheSize: cfg.Cache.SeriesCacheSize,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize cache: %w", err)
	}

	m := metrics.New()
	registry := session.NewRegistry(session.RegistryConfig{
		DefaultSelection: cfg.DefaultSelection(),
		IdleTTL:          cfg.IdleTTL(),
		CleanupPeriod:    time.Minute,
		OnChange:         m.SetSessions,
	})

	orch := session.NewOrchestrator(client, m)

	var store *history.Store
	if cfg.HistoryEnabled() {
		store, err = history.NewStore(cfg.History.Path)
		if err != nil {
			cacheManager.Close()
			return nil, fmt.Errorf("open run history: %w", err)
		}
		orch.WithJournal(store)
		log.Printf("Run history: %s", cfg.History.Path)
	}

	dispatcher := session.NewDispatcher(orch, session.DispatcherConfig{
		MaxConcurrent: cfg.Service.MaxConcurrent,
		QueueSize:     cfg.Service.QueueSize,
	})

	renderer := render.NewScatterRenderer(render.Config{
		Width:     cfg.Render.Width,
		Height:    cfg.Render.Height,
		PointSize: cfg.Render.PointSize,
		Opacity:   cfg.Render.Opacity,
	})

	svc := service.NewGatingService(service.Config{
		Registry:     registry,
		Orchestrator: orch,
		Dispatcher:   dispatcher,
		Cache:        cacheManager,
		Renderer:     renderer,
		Metrics:      m,
		History:      store,
	})

	log.Printf("Gating service endpoint: %s", client.Endpoint())
	return &stack{
		client:     client,
		metrics:    m,
		cache:      cacheManager,
		registry:   registry,
		dispatcher: dispatcher,
		history:    store,
		service:    svc,
	}, nil
}

func (s *stack) Close() {
	s.cache.Close()
	if s.history != nil {
		s.history.Close()
	}
}
