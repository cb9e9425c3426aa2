package ledger

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/ipvote/internal/geo"
	"github.com/dropDatabas3/ipvote/internal/storage/memory"
)

var testNow = time.UnixMilli(1716891868980)

func newTestLedger(store *memory.Store, opts ...Option) *Ledger {
	opts = append(opts, WithClock(func() time.Time { return testNow }))
	return New(store, opts...)
}

func submit(t *testing.T, l *Ledger, req SubmitRequest) (*Record, error) {
	t.Helper()
	return l.Submit(context.Background(), req)
}

func TestSubmitYesNoPoll(t *testing.T) {
	store := memory.New()
	l := newTestLedger(store)

	rec, err := submit(t, l, SubmitRequest{Poll: "abolish_daylight_saving", Vote: "yes", SourceIP: "146.103.108.202"})
	require.NoError(t, err)
	assert.Equal(t, "yes", rec.Vote)
	assert.Equal(t, "XX", rec.CountryGeoIP) // sin tabla geo: degrada, no falla

	body, err := store.Get(context.Background(), "votes/poll=abolish_daylight_saving/ip_prefix=14/votes.csv")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(body), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, HeaderV2, lines[0])
	assert.Contains(t, lines[1], "146.103.108.202")
}

func TestSubmitTwoOptionPoll(t *testing.T) {
	l := newTestLedger(memory.New())

	// Scenario D: opción que no es ninguna de las dos codificadas
	_, err := submit(t, l, SubmitRequest{Poll: "a_or_b", Vote: "c", SourceIP: "1.2.3.4"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, ReasonValidation, ReasonOf(err))

	_, err = submit(t, l, SubmitRequest{Poll: "a_or_b", Vote: "a", SourceIP: "1.2.3.4"})
	require.NoError(t, err)
}

func TestSubmitDuplicateIPv4(t *testing.T) {
	l := newTestLedger(memory.New())

	_, err := submit(t, l, SubmitRequest{Poll: "a_or_b", Vote: "a", SourceIP: "9.9.9.9"})
	require.NoError(t, err)

	_, err = submit(t, l, SubmitRequest{Poll: "a_or_b", Vote: "b", SourceIP: "9.9.9.9"})
	var dup *DuplicateVoteError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, testNow.Add(CooldownWindow), dup.NextVoteTime)

	// Otra IP en el mismo shard no está bloqueada
	_, err = submit(t, l, SubmitRequest{Poll: "a_or_b", Vote: "b", SourceIP: "9.9.9.10"})
	require.NoError(t, err)
}

func TestSubmitDuplicateIPv6SamePrefix(t *testing.T) {
	l := newTestLedger(memory.New())

	_, err := submit(t, l, SubmitRequest{Poll: "p", Vote: "yes", SourceIP: "2a13:ef41:a000:c200::1"})
	require.NoError(t, err)

	// Mismo /64, sufijo distinto: misma identidad
	_, err = submit(t, l, SubmitRequest{Poll: "p", Vote: "no", SourceIP: "2a13:ef41:a000:c200:ffff::9"})
	var dup *DuplicateVoteError
	require.ErrorAs(t, err, &dup)

	// /64 distinto: identidad distinta
	_, err = submit(t, l, SubmitRequest{Poll: "p", Vote: "no", SourceIP: "2a13:ef41:a000:c300::1"})
	require.NoError(t, err)
}

func TestSubmitCooldownExpired(t *testing.T) {
	store := memory.New()
	l := newTestLedger(store)

	old := testNow.Add(-CooldownWindow - time.Minute).UnixMilli()
	shard := "votes/poll=p/ip_prefix=00/votes.csv"
	line := Record{Time: old, IP: "9.9.9.9", Poll: "p", Vote: "yes"}.EncodeLine()
	require.NoError(t, store.Put(context.Background(), shard, []byte(HeaderV2+"\n"+line+"\n")))

	_, err := submit(t, l, SubmitRequest{Poll: "p", Vote: "no", SourceIP: "9.9.9.9"})
	require.NoError(t, err)
}

func TestSubmitOpenPoll(t *testing.T) {
	store := memory.New()
	l := newTestLedger(store)

	// Crear un poll directo en el namespace reservado está prohibido
	_, err := submit(t, l, SubmitRequest{Poll: "open_favorite_language", Vote: "go", SourceIP: "1.2.3.4"})
	assert.Equal(t, ReasonValidation, ReasonOf(err))

	// Voto libre válido
	_, err = submit(t, l, SubmitRequest{Poll: "favorite_language", Vote: "go", IsOpen: true, SourceIP: "1.2.3.4"})
	require.NoError(t, err)
	keys, _ := store.List(context.Background(), "votes/poll=open_favorite_language/")
	assert.Len(t, keys, 1)

	// Caracteres prohibidos y largo excesivo
	_, err = submit(t, l, SubmitRequest{Poll: "favorite_language", Vote: "a,b", IsOpen: true, SourceIP: "1.2.3.5"})
	assert.Equal(t, ReasonValidation, ReasonOf(err))
	_, err = submit(t, l, SubmitRequest{Poll: "favorite_language", Vote: strings.Repeat("x", 101), IsOpen: true, SourceIP: "1.2.3.5"})
	assert.Equal(t, ReasonValidation, ReasonOf(err))
}

func TestSubmitPollDisabled(t *testing.T) {
	store := memory.New()
	require.NoError(t, store.Put(context.Background(), DisabledKey("p"), []byte("")))
	l := newTestLedger(store)

	_, err := submit(t, l, SubmitRequest{Poll: "p", Vote: "yes", SourceIP: "1.2.3.4"})
	var disabled *PollDisabledError
	require.ErrorAs(t, err, &disabled)
	assert.Equal(t, ReasonPollDisabled, ReasonOf(err))
}

func TestSubmitCountryHint(t *testing.T) {
	l := newTestLedger(memory.New())
	_, err := submit(t, l, SubmitRequest{Poll: "p", Vote: "yes", SourceIP: "1.2.3.4", CountryHint: "deutschland"})
	assert.Equal(t, ReasonValidation, ReasonOf(err))
}

func TestSubmitVerifyFailure(t *testing.T) {
	store := memory.New()
	shard := "votes/poll=p/ip_prefix=00/votes.csv"
	require.NoError(t, store.Put(context.Background(), shard, []byte(HeaderV2+"\n")))
	store.DropWrites = true
	l := newTestLedger(store)

	_, err := submit(t, l, SubmitRequest{Poll: "p", Vote: "yes", SourceIP: "1.2.3.4"})
	var inc *StorageInconsistencyError
	require.ErrorAs(t, err, &inc)
	assert.Equal(t, ReasonStorageInconsistency, ReasonOf(err))
}

type fakeGeo struct{ info geo.Info }

func (f fakeGeo) Lookup(ip string) (geo.Info, bool) { return f.info, true }

type fakeProvider struct{ tag string }

func (f fakeProvider) Classify(ip string) string { return f.tag }

func TestSubmitStampsClassification(t *testing.T) {
	store := memory.New()
	l := newTestLedger(store,
		WithGeo(fakeGeo{info: geo.Info{Country: "DE", ASName: `Deutsche Telekom, "AG"`}}),
		WithProvider(fakeProvider{tag: "vpn:mullvad"}),
	)

	rec, err := submit(t, l, SubmitRequest{Poll: "p", Vote: "yes", SourceIP: "1.2.3.4"})
	require.NoError(t, err)
	assert.Equal(t, "DE", rec.CountryGeoIP)
	// Comas y comillas se eliminan antes de serializar
	assert.Equal(t, "Deutsche Telekom AG", rec.ASNNameGeoIP)
	assert.Equal(t, "1", rec.IsVPN)
	assert.Empty(t, rec.IsCloudProvider)
}

type failingNotifier struct{ called chan struct{} }

func (n *failingNotifier) VoteAccepted(ctx context.Context, poll, vote, ip, country string, ts int64) error {
	close(n.called)
	return assert.AnError
}

func TestSubmitNotifierFailureDoesNotFailVote(t *testing.T) {
	n := &failingNotifier{called: make(chan struct{})}
	l := newTestLedger(memory.New(), WithNotifier(n))

	_, err := submit(t, l, SubmitRequest{Poll: "p", Vote: "yes", SourceIP: "1.2.3.4"})
	require.NoError(t, err)

	select {
	case <-n.called:
	case <-time.After(2 * time.Second):
		t.Fatal("notifier was never invoked")
	}
}

func TestMigrateShards(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	shard := "votes/poll=p/ip_prefix=00/votes.csv"
	v1 := "time,ip,poll_,vote,country,nonce,country_geoip,asn_name_geoip\n" +
		"1716891868980,1.2.3.4,p,yes,,x,DE,Telekom\n" +
		"broken\n"
	require.NoError(t, store.Put(ctx, shard, []byte(v1)))
	require.NoError(t, store.Put(ctx, DisabledKey("q"), []byte("")))

	n, err := MigrateShards(ctx, store, "votes/")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	body, err := store.Get(ctx, shard)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(body), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, HeaderV2, lines[0])
	assert.Len(t, strings.Split(lines[1], ","), 23)

	// Idempotente: una segunda pasada no reescribe nada
	n, err = MigrateShards(ctx, store, "votes/")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
