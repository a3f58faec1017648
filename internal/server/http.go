package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/hooman734/stream-subscription-api/internal/config"
	"github.com/hooman734/stream-subscription-api/internal/metrics"
	"github.com/hooman734/stream-subscription-api/internal/sink"
	"github.com/hooman734/stream-subscription-api/internal/store"
	"github.com/hooman734/stream-subscription-api/internal/stream"
)

// Dependencies are the components the HTTP API serves
type Dependencies struct {
	Store    *store.Store
	Sessions *stream.ManagerFactory
	Sinks    *sink.Resolver
	Events   *Broadcaster
	Metrics  *metrics.Metrics

	// MetricsHandler serves /metrics. Defaults to promhttp.Handler().
	MetricsHandler http.Handler
}

// HTTPServer provides the session control API plus monitoring endpoints
type HTTPServer struct {
	server   *http.Server
	router   chi.Router
	logger   *slog.Logger
	config   *config.Config
	deps     Dependencies
	upgrader websocket.Upgrader

	startTime time.Time
}

// NewHTTPServer creates a new HTTP API server
func NewHTTPServer(logger *slog.Logger, appConfig *config.Config, deps Dependencies) *HTTPServer {
	if deps.MetricsHandler == nil {
		deps.MetricsHandler = promhttp.Handler()
	}

	h := &HTTPServer{
		logger:    logger,
		config:    appConfig,
		deps:      deps,
		startTime: time.Now(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(appConfig.HTTP.CORSOrigins),
		},
	}

	h.router = h.setupRoutes()

	// No WriteTimeout: it would cut off websocket event streams.
	h.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", appConfig.HTTP.Address, appConfig.HTTP.Port),
		Handler:           h.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return h
}

// Handler returns the router, for tests and embedding
func (h *HTTPServer) Handler() http.Handler {
	return h.router
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(requestID)
	r.Use(requestLogger(h.logger))
	r.Use(recovery(h.logger))
	r.Use(h.withMetrics)

	if origins := h.config.HTTP.CORSOrigins; len(origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "Authorization", UserHeader},
			ExposedHeaders: []string{"X-Request-ID"},
			MaxAge:         300,
		}))
	}

	r.Get("/", h.handleRoot)
	r.Get("/health", h.handleHealth)
	r.Get("/stats", h.handleStats)
	r.Method(http.MethodGet, "/metrics", h.deps.MetricsHandler)

	r.Route("/v1", func(r chi.Router) {
		r.Use(bearerAuth(h.config.HTTP.APIKey))

		r.Post("/users", h.handleCreateUser)

		r.Group(func(r chi.Router) {
			r.Use(identity(h.deps.Store))

			r.Get("/me", h.handleMe)

			r.Route("/ripper", func(r chi.Router) {
				r.Get("/status", h.handleRipperStatus)
				r.Get("/events", h.handleRipperEvents)
				r.Post("/{id}/start", h.handleRipperStart)
				r.Post("/{id}/stop", h.handleRipperStop)
			})

			r.Route("/streams", func(r chi.Router) {
				r.Get("/", h.handleListStreams)
				r.Post("/", h.handleCreateStream)
				r.Get("/{id}", h.handleGetStream)
				r.Put("/{id}", h.handleUpdateStream)
				r.Delete("/{id}", h.handleDeleteStream)
			})

			r.Route("/sinks", func(r chi.Router) {
				r.Get("/", h.handleListSinks)
				r.Post("/", h.handleCreateSink)
				r.Get("/{id}", h.handleGetSink)
				r.Delete("/{id}", h.handleDeleteSink)
			})
		})
	})

	return r
}

// withMetrics records request metrics labelled by route pattern
func (h *HTTPServer) withMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(ww, r)

		if h.deps.Metrics == nil {
			return
		}

		endpoint := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			endpoint = rctx.RoutePattern()
		}
		if endpoint == "/metrics" {
			return
		}

		duration := time.Since(startTime).Seconds()
		h.deps.Metrics.RecordHTTPRequest(r.Method, endpoint, strconv.Itoa(ww.statusCode), duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.deps.Metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	})
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP API server",
		slog.String("address", h.server.Addr),
		slog.Bool("auth", h.config.HTTP.APIKey != ""),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server. Event clients are disconnected
// first since Shutdown does not wait for hijacked connections.
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	if h.deps.Events != nil {
		h.deps.Events.Close()
	}
	return h.server.Shutdown(ctx)
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := "healthy"
	code := http.StatusOK
	storage := map[string]any{"status": "ok"}
	if err := h.deps.Store.Ping(ctx); err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
		storage = map[string]any{"status": "error", "error": err.Error()}
	}

	registry := h.deps.Sessions.Registry()
	health := map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": map[string]any{
			"name":    "stream-subscription-api",
			"version": "1.0.0",
		},
		"components": map[string]any{
			"storage": storage,
			"ripper": map[string]any{
				"status":   "running",
				"sessions": registry.Count(),
			},
		},
	}

	writeJSON(w, code, health)
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	byStatus := h.deps.Sessions.Registry().CountByStatus()

	stats := map[string]any{
		"uptime":    time.Since(h.startTime).String(),
		"timestamp": time.Now().UTC(),
		"process":   processStats(),
		"sessions": map[string]any{
			"total":   byStatus[stream.StatusStarted] + byStatus[stream.StatusStopped] + byStatus[stream.StatusFail],
			"started": byStatus[stream.StatusStarted],
			"stopped": byStatus[stream.StatusStopped],
			"fail":    byStatus[stream.StatusFail],
		},
	}
	if h.deps.Sinks != nil {
		stats["uploads"] = h.deps.Sinks.Stats()
	}
	if h.deps.Events != nil {
		stats["event_subscribers"] = h.deps.Events.ClientCount()
	}

	writeJSON(w, http.StatusOK, stats)
}

// processStats reports resource usage of this process. Fields gopsutil
// cannot read on the current platform are omitted.
func processStats() map[string]any {
	stats := map[string]any{
		"pid":        os.Getpid(),
		"goroutines": runtime.NumGoroutine(),
	}

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return stats
	}
	if mem, err := proc.MemoryInfo(); err == nil {
		stats["rss_bytes"] = mem.RSS
	}
	if cpu, err := proc.CPUPercent(); err == nil {
		stats["cpu_percent"] = cpu
	}
	if threads, err := proc.NumThreads(); err == nil {
		stats["threads"] = threads
	}
	if fds, err := proc.NumFDs(); err == nil {
		stats["open_fds"] = fds
	}
	return stats
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	apiDoc := map[string]any{
		"service": "Stream Subscription API",
		"version": "1.0.0",
		"endpoints": map[string]any{
			"GET /":                           "API documentation",
			"GET /health":                     "Service health check",
			"GET /stats":                      "Service statistics",
			"GET /metrics":                    "Prometheus metrics",
			"POST /v1/users":                  "Create a user",
			"GET /v1/me":                      "Current user",
			"GET /v1/ripper/status":           "Status of every owned stream",
			"GET /v1/ripper/events":           "Websocket feed of session events",
			"POST /v1/ripper/{id}/start":      "Start recording a stream",
			"POST /v1/ripper/{id}/stop":       "Stop recording a stream",
			"GET|POST /v1/streams":            "List or create streams",
			"GET|PUT|DELETE /v1/streams/{id}": "Read, update or delete a stream",
			"GET|POST /v1/sinks":              "List or create sinks",
			"GET|DELETE /v1/sinks/{id}":       "Read or delete a sink",
		},
		"timestamp": time.Now().UTC(),
	}

	writeJSON(w, http.StatusOK, apiDoc)
}
