package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/trusttai/api/internal/handler"
	"github.com/trusttai/api/internal/ratelimit"
	"github.com/trusttai/api/internal/sse"
)

const (
	EventsPath      = "/api/admin/events"
	StreamPath      = "/api/admin/events/stream"
	ConnectionsPath = "/api/admin/connections"
)

type RouterOptions struct {
	Handler        *handler.Handler
	Stream         *sse.Handler
	Limiter        *ratelimit.Limiter
	AllowedOrigins []string

	// Healthy, when set, gates /health.
	Healthy func() bool

	// Tracing wraps the router in otelhttp.
	Tracing bool
}

// NewRouter creates a new HTTP router with all routes registered.
func NewRouter(opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RealIP)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)

	if len(opts.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "Authorization", "Last-Event-ID"},
			ExposedHeaders: []string{"X-Request-Id", "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
			MaxAge:         86400,
		}))
	}

	r.Use(ratelimit.Middleware(opts.Limiter))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if opts.Healthy != nil && !opts.Healthy() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("UNAVAILABLE"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Get("/events/stream", opts.Stream.Events)
		r.Post("/events", opts.Handler.PublishEvent)
		r.Get("/events", opts.Handler.ListEvents)
		r.Get("/connections", opts.Handler.ListConnections)
	})

	r.NotFound(handler.NotFound)

	if opts.Tracing {
		return otelhttp.NewHandler(r, "trusttai-api",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	}
	return r
}
