package middlewares

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dropDatabas3/ipvote/internal/http/errors"
	"github.com/dropDatabas3/ipvote/internal/observability/logger"
	"github.com/dropDatabas3/ipvote/internal/rate"
)

// RateKeyFunc define cómo generar la clave de rate limiting.
type RateKeyFunc func(r *http.Request) string

// IPOnlyRateKey limita por IP del cliente. Es la clave natural acá: la
// identidad de voto ya es la IP.
func IPOnlyRateKey(r *http.Request) string {
	return ClientIP(r)
}

// RateLimitConfig configura el middleware de rate limiting.
type RateLimitConfig struct {
	Limiter   rate.Limiter
	KeyFunc   RateKeyFunc
	Whitelist []string // Paths excluidos (ej: /healthz, /metrics)
}

// WithRateLimit crea un middleware de rate limiting. Sin limiter configurado
// es un no-op; si el limiter falla, el request pasa (fail-open).
func WithRateLimit(cfg RateLimitConfig) Middleware {
	if cfg.Limiter == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = IPOnlyRateKey
	}

	whitelistSet := make(map[string]struct{})
	for _, p := range cfg.Whitelist {
		whitelistSet[p] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := whitelistSet[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			key := cfg.KeyFunc(r)
			res, err := cfg.Limiter.Allow(r.Context(), key)
			if err != nil {
				logger.From(r.Context()).Warn("rate limiter error", logger.Err(err))
				next.ServeHTTP(w, r)
				return
			}

			if !res.Allowed {
				if res.RetryAfter > 0 {
					w.Header().Set("Retry-After", strconv.Itoa(int(res.RetryAfter.Seconds())))
				}
				if res.WindowTTL > 0 {
					resetAt := time.Now().Add(res.WindowTTL).Unix()
					w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt, 10))
				}
				errors.WriteError(w, errors.ErrRateLimitExceeded)
				return
			}

			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
			if res.WindowTTL > 0 {
				resetAt := time.Now().Add(res.WindowTTL).Unix()
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt, 10))
			}

			next.ServeHTTP(w, r)
		})
	}
}
