// Package verification implementa los caches de verificación humana que el
// ledger consulta antes de admitir un voto: captcha resuelto por IP y desafío
// SMS por teléfono.
//
// Ambos caches viven como CSV chicos en el object store, con el mismo
// protocolo de append débil que los shards de votos. Un cache ilegible nunca
// es fatal: la verificación simplemente falla y el voto se rechaza por
// captcha faltante (o sigue sin teléfono verificado).
package verification

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dropDatabas3/ipvote/internal/observability/logger"
	"github.com/dropDatabas3/ipvote/internal/storage"
)

// CaptchaKey es la key del cache de captchas resueltos.
const CaptchaKey = "captcha_cache/verifications.csv"

const captchaHeader = "ip,token,timestamp"

// CaptchaTTL es la vigencia de un captcha resuelto.
const CaptchaTTL = 7 * 24 * time.Hour

// CaptchaCache valida tokens de captcha contra el cache persistido.
type CaptchaCache struct {
	store storage.BlobStore
	now   func() time.Time
}

func NewCaptchaCache(store storage.BlobStore) *CaptchaCache {
	return &CaptchaCache{store: store, now: time.Now}
}

// Validate busca una verificación vigente para el par (ip, token). Errores
// de lectura degradan a false.
func (c *CaptchaCache) Validate(ctx context.Context, ip, token string) (bool, error) {
	body, err := c.store.Get(ctx, CaptchaKey)
	if err != nil {
		if !storage.IsNotFound(err) {
			logger.From(ctx).Warn("captcha cache read failed", logger.Err(err))
		}
		return false, nil
	}

	nowMs := c.now().UnixMilli()
	for _, line := range csvRows(body) {
		cols := strings.Split(line, ",")
		if len(cols) < 3 || cols[0] == "" || cols[1] == "" || cols[2] == "" {
			continue
		}
		if cols[0] != ip || cols[1] != token {
			continue
		}
		ts, err := strconv.ParseInt(cols[2], 10, 64)
		if err != nil {
			continue
		}
		if nowMs-ts < CaptchaTTL.Milliseconds() {
			return true, nil
		}
	}
	return false, nil
}

// Record persiste una verificación nueva con append débil.
func (c *CaptchaCache) Record(ctx context.Context, ip, token string) error {
	body := appendRow(c.bodyOrHeader(ctx, CaptchaKey, captchaHeader),
		fmt.Sprintf("%s,%s,%d", ip, token, c.now().UnixMilli()))
	return c.store.Put(ctx, CaptchaKey, body)
}

func (c *CaptchaCache) bodyOrHeader(ctx context.Context, key, header string) []byte {
	body, err := c.store.Get(ctx, key)
	if err != nil {
		return []byte(header + "\n")
	}
	return body
}

// csvRows parte el cuerpo en filas de datos, salteando el header.
func csvRows(body []byte) []string {
	lines := strings.Split(string(body), "\n")
	if len(lines) <= 1 {
		return nil
	}
	return lines[1:]
}

func appendRow(body []byte, row string) []byte {
	s := string(body)
	if !strings.HasSuffix(s, "\n") {
		s += "\n"
	}
	return []byte(s + row + "\n")
}
