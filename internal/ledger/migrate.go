package ledger

import (
	"context"
	"strings"

	"github.com/dropDatabas3/ipvote/internal/observability/logger"
	"github.com/dropDatabas3/ipvote/internal/storage"
)

// MigrateShards reescribe todos los shards bajo prefix al schema v2 usando
// el codec versionado: decode por cantidad de columnas, encode vigente.
// Reemplaza a los viejos scripts de cirugía de columnas.
//
// Retorna la cantidad de shards reescritos. Las keys que no son shards
// (sentinels, caches) se ignoran; las líneas malformadas se descartan en la
// reescritura, igual que en la lectura.
func MigrateShards(ctx context.Context, store storage.BlobStore, prefix string) (int, error) {
	keys, err := store.List(ctx, prefix)
	if err != nil {
		return 0, err
	}

	migrated := 0
	for _, key := range keys {
		if !strings.HasSuffix(key, "/votes.csv") {
			continue
		}
		body, err := store.Get(ctx, key)
		if err != nil {
			if storage.IsNotFound(err) {
				continue
			}
			return migrated, err
		}

		records := DecodeShard(body)
		var sb strings.Builder
		sb.WriteString(HeaderV2)
		sb.WriteByte('\n')
		for _, r := range records {
			sb.WriteString(r.EncodeLine())
			sb.WriteByte('\n')
		}
		out := sb.String()
		if out == string(body) {
			continue
		}
		if err := store.Put(ctx, key, []byte(out)); err != nil {
			return migrated, err
		}
		migrated++
		logger.From(ctx).Info("shard migrated", logger.Key(key), logger.Count(len(records)))
	}
	return migrated, nil
}
