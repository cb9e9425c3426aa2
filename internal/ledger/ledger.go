// Package ledger implementa el registro append-only de votos: selección de
// shard, dedup con cooldown, chequeo de poll deshabilitado y el protocolo
// append-and-verify sobre un store sin transacciones.
//
// Contrato de consistencia (explícitamente débil): el write es
// read-modify-write sin compare-and-swap. Escritores concurrentes sobre el
// mismo shard pueden pisarse; el re-read posterior solo detecta el caso en
// que el propio registro se perdió, y el resultado se reporta sin reintento.
// El particionado por prefijo de IP acota la probabilidad de colisión, no
// la elimina.
package ledger

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/ipvote/internal/geo"
	"github.com/dropDatabas3/ipvote/internal/ipaddr"
	"github.com/dropDatabas3/ipvote/internal/metrics"
	"github.com/dropDatabas3/ipvote/internal/observability/logger"
	"github.com/dropDatabas3/ipvote/internal/storage"
)

// CooldownWindow es el tiempo mínimo entre votos de una misma identidad en
// un mismo poll.
const CooldownWindow = 7 * 24 * time.Hour

const maxOpenVoteLen = 100

var (
	forbiddenRunes = regexp.MustCompile("[,\n\r\t><\"=]")
	countryHintRe  = regexp.MustCompile(`^[A-Z]{2}$`)
)

// AppendOutcome es el resultado del protocolo append-and-verify.
type AppendOutcome int

const (
	// Confirmed: el re-read posterior encontró el registro.
	Confirmed AppendOutcome = iota
	// LostUpdateSuspected: el registro no apareció en el re-read. Otro
	// escritor pudo haber pisado el shard; el voto puede estar perdido.
	LostUpdateSuspected
)

// GeoTable clasifica una IP a país/ASN.
type GeoTable interface {
	Lookup(ip string) (geo.Info, bool)
}

// ProviderTable clasifica una IP contra rangos de cloud/VPN/Tor.
type ProviderTable interface {
	Classify(ip string) string
}

// CaptchaValidator verifica un token de captcha cacheado para una IP.
type CaptchaValidator interface {
	Validate(ctx context.Context, ip, token string) (bool, error)
}

// PhoneValidator verifica un token de verificación telefónica.
type PhoneValidator interface {
	Validate(ctx context.Context, phone, token string) (bool, error)
}

// SessionValidator resuelve una sesión autenticada a un userId estable.
// Retorna "" si la sesión no es válida; nunca es fatal para el voto.
type SessionValidator interface {
	Validate(ctx context.Context, email, token string) (string, error)
}

// Notifier recibe votos aceptados para el feed de actividad reciente.
type Notifier interface {
	VoteAccepted(ctx context.Context, poll, vote, ip, country string, ts int64) error
}

// SubmitRequest es la entrada de un voto nuevo.
type SubmitRequest struct {
	Poll         string
	Vote         string
	IsOpen       bool
	SourceIP     string
	CountryHint  string
	CaptchaToken string
	PhoneNumber  string
	PhoneToken   string
	Email        string
	SessionToken string
}

// Ledger coordina la admisión de votos. Todos los colaboradores opcionales
// (geo, providers, captcha, phone, sessions, notifier) pueden ser nil.
type Ledger struct {
	store    storage.BlobStore
	geo      GeoTable
	provider ProviderTable
	captcha  CaptchaValidator
	phone    PhoneValidator
	sessions SessionValidator
	notifier Notifier

	// Polls que exigen captcha verificado antes de admitir el voto.
	captchaRequired map[string]bool

	now func() time.Time
}

// Option configura el Ledger.
type Option func(*Ledger)

func WithGeo(t GeoTable) Option              { return func(l *Ledger) { l.geo = t } }
func WithProvider(t ProviderTable) Option    { return func(l *Ledger) { l.provider = t } }
func WithCaptcha(v CaptchaValidator) Option  { return func(l *Ledger) { l.captcha = v } }
func WithPhone(v PhoneValidator) Option      { return func(l *Ledger) { l.phone = v } }
func WithSessions(v SessionValidator) Option { return func(l *Ledger) { l.sessions = v } }
func WithNotifier(n Notifier) Option         { return func(l *Ledger) { l.notifier = n } }
func WithClock(now func() time.Time) Option  { return func(l *Ledger) { l.now = now } }

// WithCaptchaRequired marca los polls que exigen captcha.
func WithCaptchaRequired(polls []string) Option {
	return func(l *Ledger) {
		for _, p := range polls {
			l.captchaRequired[p] = true
		}
	}
}

func New(store storage.BlobStore, opts ...Option) *Ledger {
	l := &Ledger{
		store:           store,
		captchaRequired: make(map[string]bool),
		now:             time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Submit valida y admite un voto. Los rechazos retornan errores de la
// taxonomía del paquete (ver errors.go); cualquier otro error es una falla
// de infraestructura.
func (l *Ledger) Submit(ctx context.Context, req SubmitRequest) (*Record, error) {
	log := logger.From(ctx)

	// Las comas en nombres de poll viajan escapadas
	poll := strings.ReplaceAll(req.Poll, ",", "%2C")

	if poll == "" || req.Vote == "" {
		return nil, l.reject(&ValidationError{Message: "missing vote or poll parameters"})
	}

	// userId de sesión autenticada: best-effort, nunca bloquea el voto
	userID := ""
	if l.sessions != nil && req.Email != "" && req.SessionToken != "" {
		id, err := l.sessions.Validate(ctx, req.Email, req.SessionToken)
		if err != nil {
			log.Warn("session validation failed", logger.Err(err))
		} else {
			userID = id
		}
	}

	// El namespace "open_" está reservado: no se pueden crear polls directos ahí
	if strings.HasPrefix(poll, OpenPrefix) {
		return nil, l.reject(&ValidationError{Message: "invalid poll name"})
	}

	if err := validateVote(poll, req.Vote, req.IsOpen); err != nil {
		return nil, l.reject(err)
	}
	if req.CountryHint != "" && !countryHintRe.MatchString(req.CountryHint) {
		return nil, l.reject(&ValidationError{Message: "invalid country code"})
	}
	if forbiddenRunes.MatchString(poll) {
		return nil, l.reject(&ValidationError{Message: "poll contains forbidden characters: " + poll})
	}

	captchaVerified := "0"
	if l.captchaRequired[poll] {
		if req.CaptchaToken == "" {
			return nil, l.reject(&ValidationError{Message: "missing captcha verification"})
		}
		if l.captcha == nil {
			return nil, l.reject(&ValidationError{Message: "captcha verification unavailable"})
		}
		human, err := l.captcha.Validate(ctx, req.SourceIP, req.CaptchaToken)
		if err != nil {
			return nil, err
		}
		if !human {
			return nil, l.reject(&ValidationError{Message: "invalid or expired captcha verification"})
		}
		captchaVerified = "1"
	}

	verifiedPhone := ""
	if l.phone != nil && req.PhoneNumber != "" && req.PhoneToken != "" {
		ok, err := l.phone.Validate(ctx, req.PhoneNumber, req.PhoneToken)
		if err != nil {
			log.Warn("phone verification failed", logger.Err(err))
		} else if ok {
			verifiedPhone = req.PhoneNumber
		}
	}

	partition, ok := PartitionFor(req.SourceIP)
	if !ok {
		return nil, l.reject(&ValidationError{Message: "invalid source address"})
	}

	// Los votos de polls open se guardan bajo el namespace open_
	pollPath := poll
	if req.IsOpen {
		pollPath = OpenPrefix + poll
	}

	if err := l.checkDisabled(ctx, pollPath); err != nil {
		return nil, l.reject(err)
	}

	shard := ShardKey(pollPath, partition)
	data, err := l.store.Get(ctx, shard)
	if err != nil {
		if !storage.IsNotFound(err) {
			return nil, err
		}
		data = []byte(HeaderV2 + "\n")
	}

	now := l.now()
	if dup := l.checkCooldown(data, req.SourceIP, now); dup != nil {
		return nil, l.reject(dup)
	}

	rec := l.buildRecord(poll, req.Vote, req.SourceIP, captchaVerified, verifiedPhone, userID, now)

	outcome, err := l.appendAndVerify(ctx, shard, data, rec)
	if err != nil {
		metrics.VotesTotal.WithLabelValues("failed").Inc()
		return nil, err
	}
	if outcome == LostUpdateSuspected {
		metrics.VotesTotal.WithLabelValues("failed").Inc()
		metrics.StorageVerifyFailures.Inc()
		log.Warn("vote verification failed after write",
			logger.Shard(shard), logger.Poll(poll))
		return nil, &StorageInconsistencyError{Shard: shard}
	}

	// Feed de actividad reciente: asíncrono y best-effort. Una falla acá
	// jamás falla el voto.
	if l.notifier != nil {
		go func(r Record) {
			nctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := l.notifier.VoteAccepted(nctx, pollPath, r.Vote, r.IP, r.CountryGeoIP, r.Time); err != nil {
				logger.L().Warn("recent activity update failed", zap.Error(err))
			}
		}(*rec)
	}

	metrics.VotesTotal.WithLabelValues("accepted").Inc()
	log.Info("vote registered", logger.Poll(poll), logger.Partition(partition))
	return rec, nil
}

// reject contabiliza el rechazo y lo retorna tal cual.
func (l *Ledger) reject(err error) error {
	metrics.VotesTotal.WithLabelValues("rejected").Inc()
	if reason := ReasonOf(err); reason != "" {
		metrics.VoteRejections.WithLabelValues(reason).Inc()
	}
	return err
}

// validateVote aplica la validación de formato según la forma del poll.
func validateVote(poll, vote string, isOpen bool) error {
	switch {
	case isOpen:
		if len(vote) > maxOpenVoteLen || forbiddenRunes.MatchString(vote) {
			return &ValidationError{Message: "vote must be 100 characters or less and contain no special characters"}
		}
	case strings.Contains(poll, "_or_"):
		opts := strings.SplitN(poll, "_or_", 2)
		if vote != opts[0] && vote != opts[1] {
			return &ValidationError{Message: "vote must match one of the poll options"}
		}
	default:
		if vote != "yes" && vote != "no" {
			return &ValidationError{Message: `vote must be either "yes" or "no"`}
		}
	}
	return nil
}

// checkDisabled consulta el sentinel. Errores de store distintos de
// not-found se tratan como "no deshabilitado" (el sentinel es la única señal).
func (l *Ledger) checkDisabled(ctx context.Context, pollPath string) error {
	_, err := l.store.Get(ctx, DisabledKey(pollPath))
	if err == nil {
		return &PollDisabledError{Poll: pollPath}
	}
	if !storage.IsNotFound(err) {
		logger.From(ctx).Warn("disabled check failed", logger.Err(err))
	}
	return nil
}

// checkCooldown busca un voto previo de la misma identidad dentro de la
// ventana. IPv4 compara exacto; IPv6 por prefijo /64 (rotar direcciones
// dentro del bloque no evade el cooldown). Líneas malformadas se saltean.
func (l *Ledger) checkCooldown(shardData []byte, sourceIP string, now time.Time) error {
	nowMs := now.UnixMilli()
	isV6 := ipaddr.IsIPv6(sourceIP)
	var sourcePrefix string
	if isV6 {
		p, ok := ipaddr.Prefix64(sourceIP)
		if !ok {
			return &ValidationError{Message: "invalid source address"}
		}
		sourcePrefix = p
	}

	for _, line := range strings.Split(string(shardData), "\n") {
		cols := strings.SplitN(line, ",", 3)
		if len(cols) < 2 || cols[1] == "" {
			continue
		}
		t, err := parsePositiveInt(cols[0])
		if err != nil {
			continue
		}
		var same bool
		if isV6 {
			prev, ok := ipaddr.Prefix64(cols[1])
			same = ok && prev == sourcePrefix
		} else {
			same = cols[1] == sourceIP
		}
		if !same {
			continue
		}
		if since := nowMs - t; since < CooldownWindow.Milliseconds() {
			return &DuplicateVoteError{NextVoteTime: time.UnixMilli(t).Add(CooldownWindow)}
		}
	}
	return nil
}

// buildRecord estampa clasificación geo y de provider en el registro nuevo.
func (l *Ledger) buildRecord(poll, vote, ip, captchaVerified, verifiedPhone, userID string, now time.Time) *Record {
	country, asName := "XX", ""
	if l.geo != nil {
		if info, ok := l.geo.Lookup(ip); ok {
			country = info.Country
			asName = info.ASName
		}
	}

	rec := &Record{
		Time:            now.UnixMilli(),
		IP:              ip,
		Poll:            poll,
		Vote:            vote,
		CountryGeoIP:    stripCSVBreakers(country),
		ASNNameGeoIP:    stripCSVBreakers(asName),
		CaptchaVerified: captchaVerified,
		PhoneNumber:     verifiedPhone,
		UserID:          userID,
	}

	if l.provider != nil {
		if tag := l.provider.Classify(ip); tag != "" {
			switch {
			case strings.HasPrefix(tag, "tor:"):
				rec.IsTor = "1"
			case strings.HasPrefix(tag, "vpn:"):
				rec.IsVPN = "1"
			default:
				rec.IsCloudProvider = tag
			}
		}
	}
	return rec
}

func stripCSVBreakers(s string) string {
	return strings.NewReplacer(",", "", `"`, "").Replace(s)
}

// appendAndVerify ejecuta el protocolo de escritura débil: append al cuerpo
// leído, Put incondicional, re-read y verificación de presencia. No hay
// mutual exclusion: la verificación detecta, no previene.
func (l *Ledger) appendAndVerify(ctx context.Context, shard string, data []byte, rec *Record) (AppendOutcome, error) {
	line := rec.EncodeLine()
	body := string(data)
	if !strings.HasSuffix(body, "\n") {
		body += "\n"
	}
	body += line + "\n"

	if err := l.store.Put(ctx, shard, []byte(body)); err != nil {
		return LostUpdateSuspected, err
	}

	reread, err := l.store.Get(ctx, shard)
	if err != nil {
		return LostUpdateSuspected, err
	}
	if !strings.Contains(string(reread), line) {
		return LostUpdateSuspected, nil
	}
	return Confirmed, nil
}

func parsePositiveInt(s string) (int64, error) {
	var n int64
	if s == "" {
		return 0, errEmptyInt
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, errEmptyInt
		}
		n = n*10 + int64(c-'0')
	}
	if n <= 0 {
		return 0, errEmptyInt
	}
	return n, nil
}

var errEmptyInt = errors.New("not a positive integer")
