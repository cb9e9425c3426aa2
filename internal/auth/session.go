// Package auth resuelve sesiones autenticadas contra el registro de usuarios
// del store de auth.
//
// Los usuarios viven particionados por la primera letra del email en
// `users/<c>/users.json`, bajo un prefijo propio separado de los datos de
// votos. Los tokens de sesión codifican su vencimiento en el propio valor:
// `<valor>_<unixExpiry>`. Acá solo se valida; la emisión de sesiones vive en
// el servicio de cuentas.
package auth

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/dropDatabas3/ipvote/internal/observability/logger"
	"github.com/dropDatabas3/ipvote/internal/storage"
)

type userRecord struct {
	UserID   string   `json:"userId"`
	Sessions []string `json:"sessions"`
}

// Sessions valida tokens de sesión. Nunca retorna error al caller del voto:
// una sesión inválida o un store caído degradan a usuario anónimo.
type Sessions struct {
	store  storage.BlobStore
	prefix string
	now    func() time.Time
}

// New construye el validador. prefix separa el namespace de auth del de
// votos (p. ej. "auth/").
func New(store storage.BlobStore, prefix string) *Sessions {
	return &Sessions{store: store, prefix: prefix, now: time.Now}
}

// Validate resuelve (email, token) al userId del dueño, o "" si la sesión no
// existe, está vencida o el registro no se pudo leer.
func (s *Sessions) Validate(ctx context.Context, email, token string) (string, error) {
	if email == "" || token == "" {
		return "", nil
	}

	partition := strings.ToLower(email[:1])
	key := s.prefix + "users/" + partition + "/users.json"

	body, err := s.store.Get(ctx, key)
	if err != nil {
		if !storage.IsNotFound(err) {
			logger.From(ctx).Warn("user partition read failed", logger.Key(key), logger.Err(err))
		}
		return "", nil
	}

	var users map[string]userRecord
	if err := json.Unmarshal(body, &users); err != nil {
		logger.From(ctx).Warn("user partition malformed", logger.Key(key), logger.Err(err))
		return "", nil
	}

	user, ok := users[email]
	if !ok {
		return "", nil
	}

	nowUnix := s.now().Unix()
	for _, session := range user.Sessions {
		if session != token {
			continue
		}
		if expiry, ok := tokenExpiry(session); ok && expiry > nowUnix {
			return user.UserID, nil
		}
	}
	return "", nil
}

// tokenExpiry extrae el vencimiento embebido en el token: `<valor>_<unix>`.
func tokenExpiry(token string) (int64, bool) {
	parts := strings.Split(token, "_")
	if len(parts) < 2 {
		return 0, false
	}
	expiry, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return expiry, true
}
