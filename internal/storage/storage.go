// Package storage define el puerto hacia el object store durable.
//
// El contrato es deliberadamente mínimo:
// get/put/list por prefijo, sin compare-and-swap y sin garantía de
// read-after-write. Toda la coordinación del sistema es advisory, vía
// particionado de keys; el ledger detecta (no previene) lost updates.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound indica que la key no existe en el store.
var ErrNotFound = errors.New("storage: key not found")

// IsNotFound reporta si err es un not-found del store.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// BlobStore es el puerto hacia el object store.
type BlobStore interface {
	// Get retorna los bytes de una key, o ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put escribe los bytes de forma incondicional (last-writer-wins).
	Put(ctx context.Context, key string, data []byte) error

	// List retorna todas las keys con el prefijo dado.
	List(ctx context.Context, prefix string) ([]string, error)
}
