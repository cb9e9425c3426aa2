// Package app arma el servicio completo a partir de la configuración:
// store, tablas de clasificación, ledger, agregación y el handler HTTP.
package app

import (
	"context"
	"fmt"
	nethttp "net/http"

	"github.com/prometheus/client_golang/prometheus"
	rdb "github.com/redis/go-redis/v9"

	"github.com/dropDatabas3/ipvote/internal/aggregate"
	"github.com/dropDatabas3/ipvote/internal/auth"
	"github.com/dropDatabas3/ipvote/internal/cache"
	memcache "github.com/dropDatabas3/ipvote/internal/cache/memory"
	redcache "github.com/dropDatabas3/ipvote/internal/cache/redis"
	"github.com/dropDatabas3/ipvote/internal/config"
	"github.com/dropDatabas3/ipvote/internal/feed"
	"github.com/dropDatabas3/ipvote/internal/geo"
	"github.com/dropDatabas3/ipvote/internal/http/controllers"
	"github.com/dropDatabas3/ipvote/internal/http/router"
	"github.com/dropDatabas3/ipvote/internal/http/services"
	"github.com/dropDatabas3/ipvote/internal/ledger"
	"github.com/dropDatabas3/ipvote/internal/metrics"
	"github.com/dropDatabas3/ipvote/internal/observability/logger"
	"github.com/dropDatabas3/ipvote/internal/provider"
	"github.com/dropDatabas3/ipvote/internal/rate"
	"github.com/dropDatabas3/ipvote/internal/storage"
	"github.com/dropDatabas3/ipvote/internal/storage/fs"
	"github.com/dropDatabas3/ipvote/internal/storage/memory"
	"github.com/dropDatabas3/ipvote/internal/storage/pg"
	"github.com/dropDatabas3/ipvote/internal/verification"
)

// App agrupa las piezas construidas del servicio. Los subcomandos del CLI
// usan Store/Ledger/Aggregator directo; serve usa Handler.
type App struct {
	Config     *config.Config
	Store      storage.BlobStore
	Ledger     *ledger.Ledger
	Aggregator *aggregate.Aggregator
	Feed       *feed.Feed
	Handler    nethttp.Handler

	closers []func() error
}

// New construye el servicio. Las tablas de clasificación (geo, providers)
// son best-effort: si no están en el store, el voto degrada a columnas
// vacías en vez de fallar.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}
	log := logger.L()

	store, err := buildStore(ctx, cfg, a)
	if err != nil {
		return nil, err
	}
	a.Store = store

	local := buildCache(cfg)

	geoTable, err := geo.Load(ctx, store, cfg.Geo.PartitionPrefix)
	if err != nil {
		log.Warn("geo table unavailable, votes will carry empty geo columns", logger.Err(err))
		geoTable = nil
	}
	provTable, err := provider.Load(ctx, store, cfg.Geo.ProviderRangesKey)
	if err != nil {
		log.Warn("provider ranges unavailable, votes will carry empty provider columns", logger.Err(err))
		provTable = nil
	}

	a.Feed = feed.New(store)

	ledgerOpts := []ledger.Option{
		ledger.WithCaptcha(verification.NewCaptchaCache(store)),
		ledger.WithPhone(verification.NewPhoneVerifier(store)),
		ledger.WithSessions(auth.New(store, cfg.Storage.AuthPrefix)),
		ledger.WithNotifier(a.Feed),
		ledger.WithCaptchaRequired(cfg.Vote.CaptchaRequiredPolls),
	}
	if geoTable != nil {
		ledgerOpts = append(ledgerOpts, ledger.WithGeo(geoTable))
	}
	if provTable != nil {
		ledgerOpts = append(ledgerOpts, ledger.WithProvider(provTable))
	}
	a.Ledger = ledger.New(store, ledgerOpts...)

	a.Aggregator = aggregate.New(store, aggregate.WithLocalCache(local))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		log.Warn("metrics registration failed", logger.Err(err))
	}

	a.Handler = router.New(router.Deps{
		Vote:        controllers.NewVoteController(services.NewVoteService(a.Ledger)),
		Polls:       controllers.NewPollsController(services.NewPollsService(a.Aggregator)),
		Feed:        controllers.NewFeedController(services.NewFeedService(a.Feed)),
		Health:      controllers.NewHealthController(services.NewHealthService(store)),
		CORSOrigins: cfg.Server.CORSAllowedOrigins,
		RateLimiter: buildLimiter(cfg),
	})
	return a, nil
}

// Close libera recursos (pools de conexión).
func (a *App) Close() error {
	var first error
	for _, c := range a.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func buildStore(ctx context.Context, cfg *config.Config, a *App) (storage.BlobStore, error) {
	switch cfg.Storage.Driver {
	case "fs":
		return fs.New(cfg.Storage.FSRoot)
	case "memory":
		return memory.New(), nil
	case "pg":
		st, err := pg.New(ctx, cfg.Storage.PG.DSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() error { st.Close(); return nil })
		return st, nil
	default:
		return nil, fmt.Errorf("app: unknown storage driver %q", cfg.Storage.Driver)
	}
}

func buildCache(cfg *config.Config) cache.Cache {
	if cfg.Cache.Kind == "redis" && cfg.Cache.Redis.Addr != "" {
		return redcache.New(cfg.Cache.Redis.Addr, cfg.Cache.Redis.DB, cfg.Cache.Redis.Prefix)
	}
	return memcache.New(cfg.MemoryTTL())
}

// buildLimiter elige el backend del rate limiter: redis cuando hay uno
// configurado (ventana compartida entre réplicas), memoria si no.
func buildLimiter(cfg *config.Config) rate.Limiter {
	if !cfg.Rate.Enabled {
		return nil
	}
	if cfg.Cache.Kind == "redis" && cfg.Cache.Redis.Addr != "" {
		client := rdb.NewClient(&rdb.Options{Addr: cfg.Cache.Redis.Addr, DB: cfg.Cache.Redis.DB})
		return rate.NewRedisLimiter(client, "rl:", cfg.Rate.MaxRequests, cfg.RateWindow())
	}
	return rate.NewMemoryLimiter(cfg.Rate.MaxRequests, cfg.RateWindow())
}
