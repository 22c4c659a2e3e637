package api

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/codepair-live/codepair/internal/api/middleware"
	"github.com/codepair-live/codepair/internal/handlers"
	"github.com/codepair-live/codepair/internal/registry"
	"github.com/codepair-live/codepair/internal/relay"
)

// NewRouter creates and configures the HTTP router.
func NewRouter(logger zerolog.Logger, store registry.Store, hub *relay.Hub) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)
	r.Use(middleware.SecurityHeaders)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// CORS - allow all origins, fixed in code
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	h := handlers.NewHandler(store, hub)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/healthz", h.Health)
	r.Get("/api/stats", h.Stats)

	// Realtime relay
	r.Get("/ws", hub.ServeWS)

	// Everything else is the frontend bundle.
	r.NotFound(serveFrontend)

	return r
}

// staticDir returns the path to the frontend bundle.
func staticDir() string {
	// Check if running from app directory (production container)
	if _, err := os.Stat("/app/web/static"); err == nil {
		return "/app/web/static"
	}
	return "web/static"
}

// serveFrontend serves files from the frontend bundle, falling back to
// index.html for any unknown path so the single-page UI loads.
func serveFrontend(w http.ResponseWriter, r *http.Request) {
	name := filepath.Clean(strings.TrimPrefix(r.URL.Path, "/"))
	if name == "." || name == "" || strings.Contains(name, "..") {
		name = "index.html"
	}

	full := filepath.Join(staticDir(), name)
	if info, err := os.Stat(full); err != nil || info.IsDir() {
		full = filepath.Join(staticDir(), "index.html")
	}

	http.ServeFile(w, r, full)
}
