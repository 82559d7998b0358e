// Package httpapi assembles the chi router and middleware chain for the API.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"mediagen/internal/http/handlers"
	"mediagen/internal/middleware"
)

// Options carries the cross-cutting knobs the router wires into middleware.
type Options struct {
	JWTSecret       string
	AllowedOrigins  []string
	RateLimitPerMin int
	DefaultLocale   string
	// Country resolves a client IP to an ISO country code for locale
	// detection. Nil disables IP lookup; proxy headers still apply.
	Country middleware.CountryLookup
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		middleware.Locale(opts.DefaultLocale, opts.Country),
		middleware.Logger(app.Logger),
		chimw.Recoverer,
		middleware.CORS(opts.AllowedOrigins),
	)
	if opts.RateLimitPerMin > 0 {
		r.Use(middleware.RateLimit(opts.RateLimitPerMin, time.Minute))
	}

	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/readyz", app.Ready)
	r.Get("/v1/openapi.json", app.OpenAPIJSON)
	r.Get("/docs", app.OpenAPIDocs)
	r.Method(http.MethodGet, "/metrics", app.Metrics.Handler())
	r.Mount("/assets", app.AssetServer())

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(opts.JWTSecret))

		r.Route("/v1/generations", func(r chi.Router) {
			r.Post("/", app.CreateGeneration)
			r.Get("/", app.ListGenerations)
			r.Get("/{id}", app.GetGeneration)
			r.Post("/{id}/cancel", app.CancelGeneration)
			r.Post("/{id}/retry", app.RetryGeneration)
			r.Delete("/{id}", app.DeleteGeneration)
		})

		r.Route("/v1/jobs/{jobID}", func(r chi.Router) {
			r.Get("/stats", app.JobStats)
			r.Get("/bundle", app.JobBundle)
		})

		r.Get("/v1/stats", app.PlatformStats)
	})

	return r
}
