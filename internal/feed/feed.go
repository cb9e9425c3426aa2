// Package feed mantiene el feed de actividad reciente: los últimos votos
// aceptados de todos los polls, con la IP enmascarada gruesa.
//
// El feed es best-effort sobre el mismo store débil que los shards: el update
// es read-modify-write sin CAS y una escritura perdida solo pierde una
// entrada de actividad, nunca un voto. Dentro del proceso se serializa con un
// mutex para no pisarse a sí mismo.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dropDatabas3/ipvote/internal/storage"
	"github.com/dropDatabas3/ipvote/internal/util"
)

// Key es la key del feed en el store.
const Key = "recent_votes/all_polls.json"

// maxEntries acota el feed a los últimos votos.
const maxEntries = 100

// Entry es un voto visible en el feed. La IP llega ya enmascarada.
type Entry struct {
	Poll      string `json:"poll"`
	Vote      string `json:"vote"`
	Timestamp int64  `json:"timestamp"`
	IP        string `json:"ip"`
	Country   string `json:"country"`
}

type document struct {
	Votes []Entry `json:"votes"`
}

// Feed implementa el Notifier del ledger y la lectura del endpoint público.
type Feed struct {
	store storage.BlobStore
	mu    sync.Mutex
}

func New(store storage.BlobStore) *Feed {
	return &Feed{store: store}
}

// VoteAccepted antepone el voto al feed y recorta a los últimos maxEntries.
func (f *Feed) VoteAccepted(ctx context.Context, poll, vote, ip, country string, ts int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.load(ctx)
	if err != nil {
		return err
	}

	entry := Entry{
		Poll:      poll,
		Vote:      vote,
		Timestamp: ts,
		IP:        util.MaskIPCoarse(ip),
		Country:   country,
	}
	doc.Votes = append([]Entry{entry}, doc.Votes...)
	if len(doc.Votes) > maxEntries {
		doc.Votes = doc.Votes[:maxEntries]
	}

	body, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("feed: encode: %w", err)
	}
	if err := f.store.Put(ctx, Key, body); err != nil {
		return fmt.Errorf("feed: write: %w", err)
	}
	return nil
}

// Recent retorna las entradas vigentes, más reciente primero.
func (f *Feed) Recent(ctx context.Context) ([]Entry, error) {
	doc, err := f.load(ctx)
	if err != nil {
		return nil, err
	}
	return doc.Votes, nil
}

func (f *Feed) load(ctx context.Context) (*document, error) {
	body, err := f.store.Get(ctx, Key)
	if err != nil {
		if storage.IsNotFound(err) {
			return &document{Votes: []Entry{}}, nil
		}
		return nil, fmt.Errorf("feed: read: %w", err)
	}
	var doc document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("feed: decode: %w", err)
	}
	return &doc, nil
}
