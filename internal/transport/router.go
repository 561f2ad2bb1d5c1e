package transport

import (
	"log"
	"net/http"
	"time"

	"github.com/CAFxX/httpcompression"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"ludoforge/internal/bridge"
	"ludoforge/internal/config"
	localMiddleware "ludoforge/internal/middleware"
)

// RouterOptions allows test callers to disable middleware that would
// otherwise interfere with request assertions, mirroring the teacher's own
// RouterOptions (internal/handlers/router.go).
type RouterOptions struct {
	DisableRateLimiting  bool
	DisableRequestLogger bool
}

// SetupRouter builds the application router: chi's stock middleware, the
// teacher's request-size/security-headers/rate-limit middleware unchanged,
// then the §6 external interface routes bound to h.
func SetupRouter(h *Handler, cfg *config.ServerConfig, opts *RouterOptions) *chi.Mux {
	if opts == nil {
		opts = &RouterOptions{}
	}

	r := chi.NewRouter()

	if !opts.DisableRequestLogger {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(localMiddleware.RequestSizeLimiter(cfg.Server.MaxRequestSize))
	r.Use(localMiddleware.SecurityHeaders())

	if !opts.DisableRateLimiting {
		rateLimiter := localMiddleware.NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateLimitBurst)
		r.Use(rateLimiter.Middleware())
	}

	r.Get("/bridge.js", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/javascript")
		w.Write([]byte(bridge.ClientSource()))
	})

	r.Post("/rooms", h.CreateRoom)
	r.Get("/rooms", h.ListRooms)
	r.Get("/rooms/{id}", h.GetRoom)
	r.Post("/rooms/{id}/convert", h.RequestConversion)
	r.Post("/rooms/{id}/actions", h.Submit)
	r.Get("/rooms/{id}/stream", h.Stream)
	r.Get("/rooms/{id}/share.png", h.SharePNG)

	compress, err := httpcompression.DefaultAdapter()
	if err != nil {
		log.Printf("compression middleware unavailable, serving documents uncompressed: %v", err)
		r.Get("/rooms/{id}/document", h.GetDocument)
	} else {
		r.With(compress).Get("/rooms/{id}/document", h.GetDocument)
	}

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return r
}
