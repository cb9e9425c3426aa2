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

// PhoneKey es la key del cache de desafíos SMS verificados.
const PhoneKey = "phone_number/verification.csv"

const phoneHeader = "time,phone,token"

// PhoneTTL es la vigencia de una verificación telefónica.
const PhoneTTL = 31 * 24 * time.Hour

// PhoneVerifier valida tokens de verificación telefónica.
type PhoneVerifier struct {
	store storage.BlobStore
	now   func() time.Time
}

func NewPhoneVerifier(store storage.BlobStore) *PhoneVerifier {
	return &PhoneVerifier{store: store, now: time.Now}
}

// Validate busca una verificación vigente para el par (phone, token).
// El schema es time,phone,token con time en milisegundos.
func (p *PhoneVerifier) Validate(ctx context.Context, phone, token string) (bool, error) {
	body, err := p.store.Get(ctx, PhoneKey)
	if err != nil {
		if !storage.IsNotFound(err) {
			logger.From(ctx).Warn("phone verification read failed", logger.Err(err))
		}
		return false, nil
	}

	nowMs := p.now().UnixMilli()
	for _, line := range csvRows(body) {
		cols := strings.Split(line, ",")
		if len(cols) < 3 || cols[0] == "" || cols[1] == "" || cols[2] == "" {
			continue
		}
		if cols[1] != phone || cols[2] != token {
			continue
		}
		ts, err := strconv.ParseInt(cols[0], 10, 64)
		if err != nil {
			continue
		}
		if nowMs-ts < PhoneTTL.Milliseconds() {
			return true, nil
		}
	}
	return false, nil
}

// Record persiste una verificación nueva con append débil.
func (p *PhoneVerifier) Record(ctx context.Context, phone, token string) error {
	body, err := p.store.Get(ctx, PhoneKey)
	if err != nil {
		body = []byte(phoneHeader + "\n")
	}
	row := fmt.Sprintf("%d,%s,%s", p.now().UnixMilli(), phone, token)
	return p.store.Put(ctx, PhoneKey, appendRow(body, row))
}
