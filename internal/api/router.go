package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ilyrer/immonow-comms/internal/api/middleware"
	"github.com/ilyrer/immonow-comms/internal/handlers"
	"github.com/ilyrer/immonow-comms/internal/store"
)

// NewRouter creates and configures the HTTP router. redisStore may be nil
// in development; rate limiting is skipped then.
func NewRouter(logger zerolog.Logger, db store.ChannelStore, redisStore *store.RedisStore, rlCfg middleware.RateLimiterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(64 * 1024)) // attachments are URLs, not payloads
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// Rate limiting
	if redisStore != nil {
		limiter := middleware.NewRateLimiter(redisStore.Client(), logger, rlCfg)
		r.Use(limiter.Middleware)
	}

	// CORS - the web client is served from a different origin
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", middleware.UserHeader},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h := handlers.NewHandler(db, redisStore)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// Public routes (no identity required)
	r.Get("/", h.Root)
	r.Get("/health", h.Health)
	r.Get("/stats", h.Stats)

	// Routes requiring a gateway-supplied user identity
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireUser)

		r.Route("/channels", func(r chi.Router) {
			r.Get("/", h.ListChannels)
			r.Post("/", h.CreateChannel)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetChannel)
				r.Patch("/", h.UpdateChannel)
				r.Delete("/", h.ArchiveChannel)

				r.Post("/members", h.AddMember)
				r.Patch("/members/{user_id}", h.UpdateMemberRole)
				r.Delete("/members/{user_id}", h.RemoveMember)

				r.Get("/messages", h.ListMessages)
				r.Post("/messages", h.SendMessage)

				r.Get("/resources", h.PinnedResources)
			})
		})

		r.Route("/messages/{id}", func(r chi.Router) {
			r.Get("/", h.GetMessage)
			r.Patch("/", h.EditMessage)
			r.Delete("/", h.DeleteMessage)
			r.Post("/reactions", h.AddReaction)
			r.Delete("/reactions", h.RemoveReaction)
			r.Post("/resources", h.AttachResourceLink)
		})

		r.Get("/communications/search", h.SearchMessages)
	})

	return r
}
