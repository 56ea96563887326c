package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cytobridge/client/internal/api"
	"github.com/spf13/cobra"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local HTTP API",
	Long: `Run the HTTP API that the browser front end talks to. Each browser tab
creates its own session; sessions live in memory and are evicted after
session.idle_ttl_minutes without use.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Listen port (overrides server.port)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}

	log.Printf("Starting CytoBridge client on port %d", cfg.Server.Port)

	st, err := newStack(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	if st.history != nil {
		if n, err := st.history.DeleteExpired(cfg.History.RetentionDays); err != nil {
			log.Printf("Warning: failed to prune run history: %v", err)
		} else if n > 0 {
			log.Printf("Pruned %d runs older than %d days", n, cfg.History.RetentionDays)
		}
	}

	st.registry.Start()
	defer st.registry.Stop()
	st.dispatcher.Start()
	defer st.dispatcher.Stop()

	router := api.NewRouter(api.RouterConfig{
		Service:        st.service,
		CORSOrigins:    cfg.Server.CORSOrigins,
		MaxUploadBytes: cfg.MaxUploadBytes(),
		Info: api.Info{
			Title:            cfg.Server.Title,
			Version:          version,
			ServiceEndpoint:  st.client.Endpoint(),
			DefaultSelection: cfg.DefaultSelection(),
		},
		Metrics: st.metrics.Handler(),
	})

	// The write timeout has to cover a whole synchronous analysis.
	writeTimeout := 10 * time.Minute
	if t := cfg.ServiceTimeout(); t > 0 {
		writeTimeout = t + 30*time.Second
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: writeTimeout,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Server listening on http://localhost:%d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	log.Println("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
	return nil
}
