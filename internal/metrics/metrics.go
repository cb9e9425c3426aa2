package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Métricas Prometheus del core de votación. Paquete standalone para evitar
// ciclos de import entre ledger/aggregate y las capas HTTP.

var (
	VotesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ipvote_votes_total",
		Help: "Votos procesados por outcome (accepted|rejected|failed)",
	}, []string{"outcome"})

	VoteRejections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ipvote_vote_rejections_total",
		Help: "Rechazos por código de motivo estable",
	}, []string{"reason"})

	StorageVerifyFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ipvote_storage_verify_failures_total",
		Help: "Verificaciones post-write que no encontraron el registro (lost update sospechado)",
	})

	CacheEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ipvote_cache_events_total",
		Help: "Hits y misses de los caches de agregación y ranking",
	}, []string{"cache", "result"})

	AggregationDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "ipvote_aggregation_duration_seconds",
		Help:    "Duración de la agregación por poll en segundos",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
	})
)

// Register registra las métricas en el registry dado (default si es nil).
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{
		VotesTotal, VoteRejections, StorageVerifyFailures, CacheEvents, AggregationDuration,
	} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}
