// Package aggregate implementa la capa de lectura: merge de shards con
// enmascarado de PII y pesos de delegación, y el ranking de polls populares
// con cache TTL y refresh parcial.
//
// Todo acá es derivado y recomputable; la fuente de verdad son los shards.
// Los caches viven en el mismo object store (sobreviven procesos) con una
// copia caliente opcional en el cache de proceso.
package aggregate

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dropDatabas3/ipvote/internal/cache"
	"github.com/dropDatabas3/ipvote/internal/delegation"
	"github.com/dropDatabas3/ipvote/internal/ledger"
	"github.com/dropDatabas3/ipvote/internal/metrics"
	"github.com/dropDatabas3/ipvote/internal/observability/logger"
	"github.com/dropDatabas3/ipvote/internal/storage"
	"github.com/dropDatabas3/ipvote/internal/util"
)

// ErrPollNotFound: el poll no tiene ningún shard.
var ErrPollNotFound = errors.New("poll has no votes")

// shardFetchConcurrency acota los Get concurrentes del merge.
const shardFetchConcurrency = 8

// isoMillis es el formato del timestamp en la salida agregada.
const isoMillis = "2006-01-02T15:04:05.000Z"

var forbiddenOut = strings.NewReplacer(
	",", "", ">", "", "<", "", `"`, "", "\n", "", "\r", "", "\t", "",
)

// Aggregator sirve las lecturas agregadas. Inmutable después de construir.
type Aggregator struct {
	store storage.BlobStore
	local cache.Cache
	now   func() time.Time

	popularTTL time.Duration
}

// Option configura el Aggregator.
type Option func(*Aggregator)

// WithLocalCache agrega una copia caliente in-process de los caches
// persistidos.
func WithLocalCache(c cache.Cache) Option { return func(a *Aggregator) { a.local = c } }

func WithClock(now func() time.Time) Option { return func(a *Aggregator) { a.now = now } }

func New(store storage.BlobStore, opts ...Option) *Aggregator {
	a := &Aggregator{
		store:      store,
		now:        time.Now,
		popularTTL: popularCacheTTL,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// resultsCacheKey es la key del CSV agregado y enmascarado de un poll.
func resultsCacheKey(poll string) string {
	return "votes_aggregated_and_masked/poll=" + poll + "/votes.csv"
}

// PollResults retorna el CSV agregado de un poll. forceRefresh saltea la
// lectura del cache pero igual lo actualiza. El bool indica cache hit.
func (a *Aggregator) PollResults(ctx context.Context, poll string, forceRefresh bool) (string, bool, error) {
	cacheKey := resultsCacheKey(poll)

	if !forceRefresh {
		if body, err := a.store.Get(ctx, cacheKey); err == nil {
			metrics.CacheEvents.WithLabelValues("poll_results", "hit").Inc()
			return string(body), true, nil
		}
	}
	metrics.CacheEvents.WithLabelValues("poll_results", "miss").Inc()

	start := a.now()
	csv, err := a.buildPollResults(ctx, poll)
	if err != nil {
		return "", false, err
	}
	metrics.AggregationDuration.Observe(time.Since(start).Seconds())

	if err := a.store.Put(ctx, cacheKey, []byte(csv)); err != nil {
		// El resultado ya está computado; un cache no escrito solo
		// cuesta la próxima lectura.
		logger.From(ctx).Warn("results cache write failed", logger.Poll(poll), logger.Err(err))
	}
	return csv, false, nil
}

func (a *Aggregator) buildPollResults(ctx context.Context, poll string) (string, error) {
	keys, err := a.store.List(ctx, ledger.PollPrefix(poll))
	if err != nil {
		return "", err
	}
	if len(keys) == 0 {
		return "", ErrPollNotFound
	}

	// Fetch concurrente preservando el orden de shards para que el output
	// sea determinístico ante el mismo input.
	shards := make([][]ledger.Record, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(shardFetchConcurrency)
	for i, key := range keys {
		i, key := i, key
		g.Go(func() error {
			body, err := a.store.Get(gctx, key)
			if err != nil {
				if storage.IsNotFound(err) {
					return nil
				}
				return err
			}
			shards[i] = ledger.DecodeShard(body)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	var records []ledger.Record
	for _, s := range shards {
		records = append(records, s...)
	}
	sort.SliceStable(records, func(i, j int) bool { return records[i].Time < records[j].Time })

	// Un snapshot de delegación por corrida; ausente = pesos en cero
	snapshot, err := delegation.LoadSnapshot(ctx, a.store)
	if err != nil {
		return "", err
	}
	voters := make([]string, 0, len(records))
	for _, r := range records {
		voters = append(voters, r.UserID)
	}
	resolver := delegation.NewResolver(snapshot, voters)

	var sb strings.Builder
	sb.WriteString(resultsHeader())
	sb.WriteByte('\n')
	for _, r := range records {
		sb.WriteString(maskedRow(r, resolver.Resolve(r.UserID)))
		sb.WriteByte('\n')
	}
	return sb.String(), nil
}

// resultsHeader deriva el header de salida del schema de shard vigente.
func resultsHeader() string {
	h := strings.Replace(ledger.HeaderV2, "poll_", "poll", 1)
	h = strings.Replace(h, "ip", "masked_ip", 1)
	return h + ",delegated_count,delegated_verified_phone_count"
}

func maskedRow(r ledger.Record, c delegation.Counts) string {
	masked := r
	masked.IP = util.MaskIP(r.IP)
	masked.PhoneNumber = util.MaskPhone(r.PhoneNumber)
	masked.CountryGeoIP = forbiddenOut.Replace(r.CountryGeoIP)
	masked.ASNNameGeoIP = forbiddenOut.Replace(r.ASNNameGeoIP)

	line := masked.EncodeLine()
	// El timestamp sale en ISO-8601; el resto de las columnas tal cual
	cols := strings.SplitN(line, ",", 2)
	iso := time.UnixMilli(r.Time).UTC().Format(isoMillis)
	return iso + "," + cols[1] + "," + strconv.Itoa(c.Delegated) + "," + strconv.Itoa(c.DelegatedVerifiedPhone)
}
