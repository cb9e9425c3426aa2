// Package router arma el mux de la API pública: rutas, middlewares y el
// endpoint de métricas.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dropDatabas3/ipvote/internal/http/controllers"
	httperrors "github.com/dropDatabas3/ipvote/internal/http/errors"
	"github.com/dropDatabas3/ipvote/internal/http/middlewares"
	"github.com/dropDatabas3/ipvote/internal/rate"
)

// Deps contiene todo lo que el router necesita ya construido.
type Deps struct {
	Vote   *controllers.VoteController
	Polls  *controllers.PollsController
	Feed   *controllers.FeedController
	Health *controllers.HealthController

	// CORSOrigins es la lista de orígenes permitidos; "*" permite todos.
	CORSOrigins []string

	// RateLimiter es opcional; nil desactiva el rate limiting.
	RateLimiter rate.Limiter
}

// New construye el router con la cadena completa de middlewares. El orden
// importa: request id primero para que el logging lo tenga, recover adentro
// del logging para que los panics queden logueados con contexto.
func New(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middlewares.WithRequestID())
	r.Use(middlewares.WithLogging())
	r.Use(middlewares.WithMetrics(nil))
	r.Use(middlewares.WithRecover())
	r.Use(middlewares.WithCORS(deps.CORSOrigins))
	r.Use(middlewares.WithRateLimit(middlewares.RateLimitConfig{
		Limiter:   deps.RateLimiter,
		KeyFunc:   middlewares.IPOnlyRateKey,
		Whitelist: []string{"/healthz", "/metrics"},
	}))

	r.Post("/vote", deps.Vote.Submit)
	r.Get("/polls/popular", deps.Polls.Popular)
	r.Get("/polls/{poll}/votes", deps.Polls.Results)
	r.Get("/feed/recent", deps.Feed.Recent)
	r.Get("/healthz", deps.Health.Healthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httperrors.WriteError(w, httperrors.ErrRouteNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httperrors.WriteError(w, httperrors.ErrMethodNotAllowed)
	})

	return r
}
