package httpapi

import (
	stdhttp "net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"genbot/internal/http/handlers"
	"genbot/internal/infra"
	"genbot/internal/middleware"
)

type RouterOptions struct {
	Logger          infra.Logger
	CountryLookup   middleware.CountryLookup
	RateLimitPerMin int
	MetricsToken    string
	// Gatherer defaults to the global prometheus registry.
	Gatherer prometheus.Gatherer
}

func NewRouter(app *handlers.App, opts RouterOptions) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Logger(opts.Logger), chimw.Recoverer)

	r.Get("/v1/healthz", app.Health)

	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.With(middleware.BearerToken(opts.MetricsToken)).
		Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/payments", func(r chi.Router) {
		r.Use(middleware.RateLimit(opts.RateLimitPerMin, time.Minute), middleware.Country(opts.CountryLookup))
		r.Post("/prodamus", app.ProdamusWebhook)
	})

	return r
}
