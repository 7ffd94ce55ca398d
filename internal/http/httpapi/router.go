package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"listify/internal/http/handlers"
	"listify/internal/metrics"
	"listify/internal/middleware"
)

type Options struct {
	Logger          zerolog.Logger
	Metrics         *metrics.Metrics
	JWTSecret       string
	AllowedOrigins  []string
	RateLimitPerMin int
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(opts.Logger, opts.Metrics),
		middleware.CORS(opts.AllowedOrigins),
	)

	r.Get("/v1/healthz", app.Health)
	r.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(opts.RateLimitPerMin, time.Minute))
		r.Use(middleware.AuthJWT(opts.JWTSecret))

		r.Post("/edit-image", app.EditImage)
		r.Post("/v1/edit-image", app.EditImage)
		r.Post("/v1/workflows", app.RunWorkflow)
		r.Post("/v1/workflows/steps/{step}", app.RunStep)
		r.Post("/v1/ai/completions", app.Completions)
	})

	return r
}
