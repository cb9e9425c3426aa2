package aggregate

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/ipvote/internal/delegation"
	"github.com/dropDatabas3/ipvote/internal/ledger"
	"github.com/dropDatabas3/ipvote/internal/storage/memory"
)

func seedShard(t *testing.T, store *memory.Store, poll, partition string, recs ...ledger.Record) {
	t.Helper()
	var sb strings.Builder
	sb.WriteString(ledger.HeaderV2)
	sb.WriteByte('\n')
	for _, r := range recs {
		sb.WriteString(r.EncodeLine())
		sb.WriteByte('\n')
	}
	require.NoError(t, store.Put(context.Background(), ledger.ShardKey(poll, partition), []byte(sb.String())))
}

func TestPollResultsMasksAndSorts(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	seedShard(t, store, "p", "14",
		ledger.Record{Time: 2000, IP: "146.103.108.202", Poll: "p", Vote: "no", CountryGeoIP: "AU", ASNNameGeoIP: "TPG<b>", PhoneNumber: "+4915112345678"},
	)
	seedShard(t, store, "p", "2a",
		ledger.Record{Time: 1000, IP: "2a13:ef41:a000::1", Poll: "p", Vote: "yes", CountryGeoIP: "DE"},
	)

	a := New(store)
	csv, hit, err := a.PollResults(ctx, "p", false)
	require.NoError(t, err)
	assert.False(t, hit)

	lines := strings.Split(strings.TrimRight(csv, "\n"), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "time,masked_ip,poll,vote,country_geoip"))
	assert.True(t, strings.HasSuffix(lines[0], ",delegated_count,delegated_verified_phone_count"))

	// Orden por timestamp ascendente, tiempo en ISO-8601
	assert.True(t, strings.HasPrefix(lines[1], "1970-01-01T00:00:01.000Z,2a13:ef41:a0XX:XXXX:XXXX:XXXX,"))
	assert.True(t, strings.HasPrefix(lines[2], "1970-01-01T00:00:02.000Z,146.103.108.XXX,"))

	// PII enmascarada y texto libre sin caracteres prohibidos
	assert.Contains(t, lines[2], "+4915112XXXXXX")
	assert.Contains(t, lines[2], "TPGb")
	assert.NotContains(t, csv, "146.103.108.202")
	assert.NotContains(t, csv, "+4915112345678")

	// Cada fila termina con los pesos de delegación
	assert.True(t, strings.HasSuffix(lines[1], ",0,0"))
}

func TestPollResultsCache(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	seedShard(t, store, "p", "00", ledger.Record{Time: 1000, IP: "1.2.3.4", Poll: "p", Vote: "yes"})

	a := New(store)
	first, hit, err := a.PollResults(ctx, "p", false)
	require.NoError(t, err)
	assert.False(t, hit)

	// Segunda lectura sale del cache persistido
	second, hit, err := a.PollResults(ctx, "p", false)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, first, second)

	// refresh saltea el cache pero el resultado es idéntico sobre los
	// mismos shards
	third, hit, err := a.PollResults(ctx, "p", true)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, first, third)
}

func TestPollResultsNoShards(t *testing.T) {
	a := New(memory.New())
	_, _, err := a.PollResults(context.Background(), "ghost", false)
	assert.ErrorIs(t, err, ErrPollNotFound)
}

func TestPollResultsDelegationWeights(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	// B delega en A con teléfono único; A votó con sesión
	snapshot := `{"B":{"delegations":{"all":{"target":"A"}},"phoneNumber":"+2"}}`
	require.NoError(t, store.Put(ctx, delegation.SnapshotKey, []byte(snapshot)))
	seedShard(t, store, "p", "00",
		ledger.Record{Time: 1000, IP: "1.2.3.4", Poll: "p", Vote: "yes", UserID: "A"},
		ledger.Record{Time: 2000, IP: "5.6.7.8", Poll: "p", Vote: "no"},
	)

	csv, _, err := New(store).PollResults(ctx, "p", false)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(csv, "\n"), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasSuffix(lines[1], ",1,1"), lines[1])
	assert.True(t, strings.HasSuffix(lines[2], ",0,0"), lines[2])
}

func TestNormalizeText(t *testing.T) {
	assert.Equal(t, "mexico", normalizeText("México"))
	assert.Equal(t, "uber", normalizeText("Über"))
	assert.Equal(t, "plain", normalizeText("plain"))
}
