// Package fs implementa BlobStore sobre el filesystem local.
// Cada key se mapea a un archivo bajo root; la escritura es atómica
// (write tmp + rename) para que un lector concurrente nunca vea un
// shard a medio escribir.
package fs

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dropDatabas3/ipvote/internal/storage"
	"github.com/dropDatabas3/ipvote/internal/util/atomicwrite"
)

type Store struct {
	root string
}

// New crea el store con root como directorio base. Lo crea si no existe.
func New(root string) (*Store, error) {
	if root == "" {
		root = "data"
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, err
	}
	return &Store{root: root}, nil
}

func (s *Store) path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return b, nil
}

func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	return atomicwrite.AtomicWriteFile(s.path(key), data, 0644)
}

func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, rerr := filepath.Rel(s.root, path)
		if rerr != nil {
			return rerr
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}
