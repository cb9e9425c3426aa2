package aggregate

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dropDatabas3/ipvote/internal/ledger"
	"github.com/dropDatabas3/ipvote/internal/metrics"
	"github.com/dropDatabas3/ipvote/internal/observability/logger"
	"github.com/dropDatabas3/ipvote/internal/storage"
)

// popularCacheKey es la key del ranking completo en el store.
const popularCacheKey = "popular_polls/all_polls_cache.json"

// popularCacheTTL es la vigencia del ranking cacheado.
const popularCacheTTL = 24 * time.Hour

// topFixed: los primeros puestos del ranking no se barajan.
const topFixed = 10

// recentBucketThreshold: más de esta cantidad de votos en 7 días sube el poll
// al bucket de actividad reciente.
const recentBucketThreshold = 2

// PollTag es una etiqueta aplicada por un usuario en la metadata del poll.
type PollTag struct {
	Tag string `json:"tag"`
}

// PollMetadata es el documento `metadata/poll=<poll>/metadata.json`.
type PollMetadata struct {
	Comments []json.RawMessage `json:"comments"`
	Tags     []PollTag         `json:"tags"`
}

// PollEntry es una fila del ranking.
type PollEntry struct {
	Poll     string       `json:"poll"`
	Count    int          `json:"count"`
	Last7    int          `json:"last_7_days_count"`
	Metadata PollMetadata `json:"metadata"`
}

type popularCache struct {
	Timestamp int64       `json:"timestamp"`
	Results   []PollEntry `json:"results"`
}

// Query son los parámetros de la página de polls populares.
type Query struct {
	Limit        int
	Offset       int
	Seed         int
	Search       string
	Tags         string
	PollToUpdate string
	Refresh      bool
}

// Page es la respuesta: columnas fijas y filas [poll, count, last7].
type Page struct {
	Columns  []string `json:"columns"`
	Data     []Row    `json:"data"`
	CacheHit bool     `json:"-"`
	CacheAge int      `json:"-"`
}

// Row serializa como arreglo posicional, no como objeto.
type Row struct {
	Poll  string
	Count int
	Last7 int
}

func (r Row) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{r.Poll, r.Count, r.Last7})
}

// PopularPolls sirve una página del ranking. El ranking completo se cachea
// 24 horas; PollToUpdate recomputa un solo poll, parchea el cache y retorna
// solo ese poll.
func (a *Aggregator) PopularPolls(ctx context.Context, q Query) (*Page, error) {
	if q.Limit <= 0 {
		q.Limit = 15
	}
	if q.Seed == 0 {
		q.Seed = 1
	}
	pollToUpdate := strings.ReplaceAll(q.PollToUpdate, ",", "%2C")

	if !q.Refresh {
		if doc, age, ok := a.loadPopularCache(ctx); ok {
			metrics.CacheEvents.WithLabelValues("popular", "hit").Inc()
			if pollToUpdate != "" {
				return a.patchPoll(ctx, doc, pollToUpdate, age)
			}
			return servePage(doc.Results, q, true, age), nil
		}
	}
	metrics.CacheEvents.WithLabelValues("popular", "miss").Inc()

	start := a.now()
	results, err := a.rankAllPolls(ctx, "")
	if err != nil {
		return nil, err
	}
	metrics.AggregationDuration.Observe(time.Since(start).Seconds())

	a.storePopularCache(ctx, &popularCache{Timestamp: a.now().UnixMilli(), Results: results})
	return servePage(results, q, false, 0), nil
}

// patchPoll recomputa un poll puntual sobre un cache vigente, lo parchea en
// la lista, reordena por count y persiste. Retorna solo ese poll.
func (a *Aggregator) patchPoll(ctx context.Context, doc *popularCache, poll string, age int) (*Page, error) {
	fresh, err := a.rankAllPolls(ctx, poll)
	if err != nil {
		return nil, err
	}

	page := &Page{Columns: pageColumns(), Data: []Row{}, CacheHit: true, CacheAge: age}
	var entry *PollEntry
	for i := range fresh {
		if fresh[i].Poll == poll {
			entry = &fresh[i]
			break
		}
	}
	if entry == nil {
		return page, nil
	}

	replaced := false
	for i := range doc.Results {
		if doc.Results[i].Poll == poll {
			doc.Results[i] = *entry
			replaced = true
			break
		}
	}
	if !replaced {
		doc.Results = append(doc.Results, *entry)
	}
	// El parche reordena solo por count; el bucket de actividad se
	// recalcula recién en el próximo rebuild completo
	sort.SliceStable(doc.Results, func(i, j int) bool {
		return doc.Results[i].Count > doc.Results[j].Count
	})
	a.storePopularCache(ctx, doc)

	page.Data = append(page.Data, Row{Poll: unescapePoll(entry.Poll), Count: entry.Count, Last7: entry.Last7})
	return page, nil
}

// rankAllPolls hace el full scan de shards y arma el ranking. specificPoll
// limita el conteo a un solo poll ("" = todos).
func (a *Aggregator) rankAllPolls(ctx context.Context, specificPoll string) ([]PollEntry, error) {
	keys, err := a.store.List(ctx, ledger.AllPollsPrefix)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	recent := make(map[string]int)
	disabled := make(map[string]bool)
	sevenDaysAgo := a.now().Add(-7 * 24 * time.Hour).UnixMilli()

	for _, key := range keys {
		if !strings.HasSuffix(key, "/votes.csv") {
			continue
		}
		poll := pollFromKey(key)
		if poll == "" {
			continue
		}
		if specificPoll != "" && poll != specificPoll {
			continue
		}

		if _, seen := disabled[poll]; !seen {
			disabled[poll] = a.isDisabled(ctx, poll)
		}
		if disabled[poll] {
			continue
		}

		body, err := a.store.Get(ctx, key)
		if err != nil {
			if storage.IsNotFound(err) {
				continue
			}
			return nil, err
		}

		bare := strings.TrimPrefix(poll, ledger.OpenPrefix)
		lines := strings.Split(string(body), "\n")
		for _, line := range lines[1:] {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			cols := strings.SplitN(line, ",", 4)
			if len(cols) < 3 {
				continue
			}
			// Filas cuyo poll no coincide con el path son basura heredada
			if cols[2] != poll && cols[2] != bare {
				continue
			}
			counts[poll]++
			if ts, err := strconv.ParseInt(cols[0], 10, 64); err == nil && ts >= sevenDaysAgo {
				recent[poll]++
			}
		}
	}

	results := make([]PollEntry, 0, len(counts))
	for poll, count := range counts {
		results = append(results, PollEntry{
			Poll:     poll,
			Count:    count,
			Last7:    recent[poll],
			Metadata: a.pollMetadata(ctx, poll),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		ri, rj := results[i].Last7 > recentBucketThreshold, results[j].Last7 > recentBucketThreshold
		if ri != rj {
			return ri
		}
		return results[i].Count > results[j].Count
	})
	return results, nil
}

// pollFromKey extrae el poll del segundo segmento del path del shard.
func pollFromKey(key string) string {
	parts := strings.Split(key, "/")
	if len(parts) < 2 || !strings.HasPrefix(parts[1], "poll=") {
		return ""
	}
	return strings.TrimPrefix(parts[1], "poll=")
}

func (a *Aggregator) isDisabled(ctx context.Context, poll string) bool {
	_, err := a.store.Get(ctx, ledger.DisabledKey(poll))
	return err == nil
}

// pollMetadata lee la metadata de un poll; ausente o ilegible degrada a vacía.
func (a *Aggregator) pollMetadata(ctx context.Context, poll string) PollMetadata {
	empty := PollMetadata{Comments: []json.RawMessage{}, Tags: []PollTag{}}
	body, err := a.store.Get(ctx, fmt.Sprintf("metadata/poll=%s/metadata.json", poll))
	if err != nil {
		return empty
	}
	var m PollMetadata
	if err := json.Unmarshal(body, &m); err != nil {
		return empty
	}
	return m
}

// loadPopularCache lee el ranking cacheado, primero de la copia caliente y
// después del store. ok=false si no hay cache o venció el TTL.
func (a *Aggregator) loadPopularCache(ctx context.Context) (*popularCache, int, bool) {
	var body []byte
	if a.local != nil {
		if b, ok := a.local.Get(popularCacheKey); ok {
			body = b
		}
	}
	if body == nil {
		b, err := a.store.Get(ctx, popularCacheKey)
		if err != nil {
			return nil, 0, false
		}
		body = b
	}

	var doc popularCache
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, 0, false
	}
	age := a.now().UnixMilli() - doc.Timestamp
	if age >= popularCacheTTL.Milliseconds() {
		return nil, 0, false
	}
	return &doc, int(age / 1000), true
}

func (a *Aggregator) storePopularCache(ctx context.Context, doc *popularCache) {
	body, err := json.Marshal(doc)
	if err != nil {
		return
	}
	if err := a.store.Put(ctx, popularCacheKey, body); err != nil {
		logger.From(ctx).Warn("popular cache write failed", logger.Err(err))
	}
	if a.local != nil {
		a.local.Set(popularCacheKey, body, a.popularTTL)
	}
}

// servePage aplica filtros, baraja con semilla y pagina.
func servePage(results []PollEntry, q Query, cacheHit bool, age int) *Page {
	filtered := filterResults(results, q.Search, q.Tags)

	rows := make([]Row, 0, len(filtered))
	for _, e := range filtered {
		rows = append(rows, Row{Poll: e.Poll, Count: e.Count, Last7: e.Last7})
	}

	// Top fijo; el resto barajado determinísticamente por semilla
	var top, rest []Row
	if len(rows) > topFixed {
		top, rest = rows[:topFixed], seededShuffle(rows[topFixed:], q.Seed)
	} else {
		top = rows
	}
	combined := append(append([]Row{}, top...), rest...)

	start := q.Offset
	if start > len(combined) {
		start = len(combined)
	}
	end := start + q.Limit
	if end > len(combined) {
		end = len(combined)
	}

	page := &Page{Columns: pageColumns(), Data: []Row{}, CacheHit: cacheHit, CacheAge: age}
	for _, r := range combined[start:end] {
		r.Poll = unescapePoll(r.Poll)
		page.Data = append(page.Data, r)
	}
	return page
}

func pageColumns() []string {
	return []string{"poll", "count", "last_7_days_count"}
}

func unescapePoll(poll string) string {
	return strings.ReplaceAll(poll, "%2C", ",")
}

// filterResults aplica la búsqueda libre (todos los términos, sin acentos,
// `_` cuenta como espacio) y el filtro por tags (solo los dos tags más
// aplicados de cada poll califican).
func filterResults(results []PollEntry, search, tags string) []PollEntry {
	out := results
	if search != "" {
		terms := strings.Fields(strings.ToLower(search))
		for i := range terms {
			terms[i] = normalizeText(terms[i])
		}
		var kept []PollEntry
		for _, e := range out {
			name := normalizeText(strings.ReplaceAll(e.Poll, "_", " "))
			all := true
			for _, term := range terms {
				if !strings.Contains(name, term) {
					all = false
					break
				}
			}
			if all {
				kept = append(kept, e)
			}
		}
		out = kept
	}

	if tags != "" {
		wanted := strings.Split(strings.ToLower(tags), ",")
		var kept []PollEntry
		for _, e := range out {
			top := topTags(e.Metadata.Tags)
			for _, w := range wanted {
				if top[w] {
					kept = append(kept, e)
					break
				}
			}
		}
		out = kept
	}
	return out
}

// topTags retorna los dos tags más aplicados de un poll.
func topTags(tags []PollTag) map[string]bool {
	counts := make(map[string]int)
	order := make([]string, 0, len(tags))
	for _, t := range tags {
		tag := strings.ToLower(t.Tag)
		if _, seen := counts[tag]; !seen {
			order = append(order, tag)
		}
		counts[tag]++
	}
	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })
	if len(order) > 2 {
		order = order[:2]
	}
	top := make(map[string]bool, len(order))
	for _, tag := range order {
		top[tag] = true
	}
	return top
}

// seededShuffle baraja determinísticamente con un PRNG basado en seno. Los
// polls con actividad reciente entran quintuplicados al pool (sesgo hacia
// adelante), y los duplicados se eliminan preservando el orden resultante.
func seededShuffle(rows []Row, seed int) []Row {
	pool := make([]Row, 0, len(rows)*2)
	for _, r := range rows {
		if r.Last7 > 0 {
			for i := 0; i < 5; i++ {
				pool = append(pool, r)
			}
		} else {
			pool = append(pool, r)
		}
	}

	currentSeed := float64(seed)
	shuffled := make([]Row, 0, len(pool))
	for len(pool) > 0 {
		idx := int(seededRandom(currentSeed) * float64(len(pool)))
		currentSeed++
		if idx >= len(pool) {
			idx = len(pool) - 1
		}
		shuffled = append(shuffled, pool[idx])
		pool = append(pool[:idx], pool[idx+1:]...)
	}

	seen := make(map[string]bool, len(rows))
	out := make([]Row, 0, len(rows))
	for _, r := range shuffled {
		if seen[r.Poll] {
			continue
		}
		seen[r.Poll] = true
		out = append(out, r)
	}
	return out
}

func seededRandom(seed float64) float64 {
	x := math.Sin(seed) * 10000
	return x - math.Floor(x)
}

