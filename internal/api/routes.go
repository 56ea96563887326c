// Package api provides HTTP handlers for the CytoBridge client.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/cytobridge/client/internal/export"
	"github.com/cytobridge/client/internal/gating"
	"github.com/cytobridge/client/internal/service"
	"github.com/cytobridge/client/internal/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Info is served from /api/info.
type Info struct {
	Title            string           `json:"title"`
	Version          string           `json:"version"`
	ServiceEndpoint  string           `json:"service_endpoint"`
	DefaultSelection gating.Selection `json:"default_selection"`
	MinClusters      int              `json:"min_clusters"`
	MaxClusters      int              `json:"max_clusters"`
}

// RouterConfig contains router configuration.
type RouterConfig struct {
	Service        *service.GatingService
	CORSOrigins    []string
	MaxUploadBytes int64
	Info           Info
	Metrics        http.Handler
}

// NewRouter creates a new HTTP router.
func NewRouter(cfg RouterConfig) *chi.Mux {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 512 << 20
	}
	cfg.Info.MinClusters = gating.MinClusters
	cfg.Info.MaxClusters = gating.MaxClusters

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5, "application/json", "text/html", "text/plain"))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}

	r.Get("/api/info", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, cfg.Info)
	})

	r.Get("/api/runs", runsHandler(cfg.Service))

	r.Route("/api/sessions", func(r chi.Router) {
		r.Post("/", createSessionHandler(cfg.Service))
		r.Get("/", listSessionsHandler(cfg.Service))

		// Session-scoped routes
		r.Route("/{session}", func(r chi.Router) {
			r.Use(sessionMiddleware(cfg.Service))

			r.Get("/", sessionHandler)
			r.Delete("/", deleteSessionHandler(cfg.Service))
			r.Post("/file", uploadHandler(cfg.Service, cfg.MaxUploadBytes))
			r.Patch("/selection", selectionHandler(cfg.Service))
			r.Post("/run", runHandler(cfg.Service))
			r.Get("/series", seriesHandler(cfg.Service))
			r.Get("/legend", legendHandler(cfg.Service))
			r.Get("/plot.png", plotHandler(cfg.Service, service.FormatPNG, "image/png"))
			r.Get("/plot.html", plotHandler(cfg.Service, service.FormatHTML, "text/html; charset=utf-8"))
			r.Get("/export.csv", exportHandler(cfg.Service))
			r.Get("/runs", runsHandler(cfg.Service))
		})
	})

	return r
}

// Context key for the resolved session
type ctxKey string

const sessionKey ctxKey = "session"

// sessionMiddleware resolves the session from the URL and injects it into context.
func sessionMiddleware(svc *service.GatingService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := chi.URLParam(r, "session")
			sess, err := svc.Session(id)
			if err != nil {
				http.Error(w, "session not found: "+id, http.StatusNotFound)
				return
			}
			ctx := context.WithValue(r.Context(), sessionKey, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func getSession(r *http.Request) *session.Session {
	if sess, ok := r.Context().Value(sessionKey).(*session.Session); ok {
		return sess
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// statusFor maps an operation error to an HTTP status code.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, service.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInvalidSelection):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrAsyncUnavailable), errors.Is(err, service.ErrHistoryUnavailable):
		return http.StatusNotImplemented
	case errors.Is(err, session.ErrQueueFull), errors.Is(err, session.ErrDispatcherStopped):
		return http.StatusServiceUnavailable
	}

	switch gating.KindOf(err) {
	case gating.KindNoFileSelected:
		return http.StatusBadRequest
	case gating.KindAlreadyRunning:
		return http.StatusConflict
	case gating.KindBusiness:
		return http.StatusUnprocessableEntity
	case gating.KindUnreachable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func createSessionHandler(svc *service.GatingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := svc.Registry().Create()
		writeJSON(w, http.StatusCreated, sess.Snapshot())
	}
}

func listSessionsHandler(svc *service.GatingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"sessions": svc.Registry().List(),
		})
	}
}

func sessionHandler(w http.ResponseWriter, r *http.Request) {
	sess := getSession(r)
	if sess == nil {
		http.Error(w, "session not available", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func deleteSessionHandler(svc *service.GatingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "session")
		if !svc.Registry().Delete(id) {
			http.Error(w, "session not found: "+id, http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func uploadHandler(svc *service.GatingService, maxBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "session")

		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		f, hdr, err := r.FormFile("file")
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				http.Error(w, fmt.Sprintf("upload exceeds %d bytes", maxBytes), http.StatusRequestEntityTooLarge)
				return
			}
			http.Error(w, "missing multipart field: file", http.StatusBadRequest)
			return
		}
		defer f.Close()

		data, err := io.ReadAll(f)
		if err != nil {
			http.Error(w, "failed to read upload: "+err.Error(), http.StatusBadRequest)
			return
		}

		snap, err := svc.Upload(id, hdr.Filename, data)
		if err != nil {
			http.Error(w, err.Error(), statusFor(err))
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

func selectionHandler(svc *service.GatingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var patch service.SelectionPatch
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}

		sel, err := svc.UpdateSelection(chi.URLParam(r, "session"), patch)
		if err != nil {
			http.Error(w, err.Error(), statusFor(err))
			return
		}
		writeJSON(w, http.StatusOK, sel)
	}
}

// runHandler performs an analysis. The response always carries the session
// snapshot; the status code reflects the outcome. With ?async=1 the analysis
// is queued and 202 is returned once it is in flight.
func runHandler(svc *service.GatingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "session")
		async, _ := strconv.ParseBool(r.URL.Query().Get("async"))

		var snap session.Snapshot
		var err error
		if async {
			snap, err = svc.RunAsync(id)
		} else {
			snap, err = svc.Run(r.Context(), id)
		}
		if errors.Is(err, service.ErrSessionNotFound) || errors.Is(err, service.ErrAsyncUnavailable) {
			http.Error(w, err.Error(), statusFor(err))
			return
		}
		if async && err == nil {
			writeJSON(w, http.StatusAccepted, map[string]interface{}{"session": snap})
			return
		}

		resp := map[string]interface{}{"session": snap}
		if err != nil {
			resp["error"] = map[string]string{
				"kind":    gating.KindOf(err).String(),
				"message": err.Error(),
			}
		}
		writeJSON(w, statusFor(err), resp)
	}
}

func seriesHandler(svc *service.GatingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := svc.SeriesJSON(chi.URLParam(r, "session"))
		if err != nil {
			http.Error(w, err.Error(), statusFor(err))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	}
}

func legendHandler(svc *service.GatingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		legend, err := svc.Legend(chi.URLParam(r, "session"))
		if err != nil {
			http.Error(w, err.Error(), statusFor(err))
			return
		}
		writeJSON(w, http.StatusOK, legend)
	}
}

func plotHandler(svc *service.GatingService, format, contentType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := svc.Plot(chi.URLParam(r, "session"), format)
		if err != nil {
			http.Error(w, err.Error(), statusFor(err))
			return
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Cache-Control", "no-cache")
		w.Write(data)
	}
}

// exportHandler serves the CSV download. ?gzip=1 or ?compress=zstd return a
// compressed file; 204 means there is nothing to export.
func exportHandler(svc *service.GatingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		name := q.Get("compress")
		if name == "" {
			name = q.Get("gzip")
		}
		codec, err := export.ParseCodec(name)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		data, filename, ok, err := svc.Export(chi.URLParam(r, "session"), codec)
		if err != nil {
			http.Error(w, err.Error(), statusFor(err))
			return
		}
		if !ok {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		switch codec {
		case export.CodecNone:
			w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		case export.CodecGzip:
			w.Header().Set("Content-Type", "application/gzip")
		default:
			w.Header().Set("Content-Type", "application/zstd")
		}
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.Write(data)
	}
}

// runsHandler lists journaled analyses, scoped to the session when the route
// has one. ?limit=N bounds the result.
func runsHandler(svc *service.GatingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 0
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				http.Error(w, "invalid limit: "+v, http.StatusBadRequest)
				return
			}
			limit = n
		}

		runs, err := svc.Runs(chi.URLParam(r, "session"), limit)
		switch {
		case err == nil:
		case errors.Is(err, service.ErrSessionNotFound), errors.Is(err, service.ErrHistoryUnavailable):
			http.Error(w, err.Error(), statusFor(err))
			return
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"runs": runs})
	}
}
