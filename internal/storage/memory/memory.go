// Package memory implementa BlobStore en memoria. Pensado para tests;
// reproduce la semántica last-writer-wins del store real.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/dropDatabas3/ipvote/internal/storage"
)

type Store struct {
	mu   sync.RWMutex
	data map[string][]byte

	// DropWrites descarta los Put sin error. Simula el lost update del
	// protocolo append-verify en tests del ledger.
	DropWrites bool
}

func New() *Store {
	return &Store{data: make(map[string][]byte)}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.data[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.DropWrites {
		return nil
	}
	b := make([]byte, len(data))
	copy(b, data)
	s.data[key] = b
	return nil
}

func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []string
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}
