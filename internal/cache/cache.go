// Package cache define la abstracción de cache TTL usada por la capa de
// agregación y por el memo de clasificación de providers.
//
// Backends: memory (in-process, go-cache) y redis (distribuido).
package cache

import "time"

type Cache interface {
	Get(key string) (value []byte, ok bool)
	Set(key string, value []byte, ttl time.Duration)
	Delete(key string)
}
