package ledger

import (
	"fmt"
	"time"
)

// Taxonomía de rechazos del ledger. Cada rechazo lleva un código estable
// chequeable por máquina más un mensaje humano; ningún path retorna un
// error crudo al caller.

// Códigos estables de motivo.
const (
	ReasonValidation           = "validation_failed"
	ReasonDuplicateVote        = "duplicate_vote"
	ReasonPollDisabled         = "poll_disabled"
	ReasonStorageInconsistency = "storage_inconsistency"
)

// ValidationError: poll/opción/país malformado. Nunca se escribe nada.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// DuplicateVoteError: la identidad ya votó este poll dentro del cooldown.
// NextVoteTime es el primer instante en que puede volver a votar.
type DuplicateVoteError struct {
	NextVoteTime time.Time
}

func (e *DuplicateVoteError) Error() string {
	return fmt.Sprintf("cannot vote again for this poll until %s", e.NextVoteTime.UTC().Format(time.RFC3339))
}

// PollDisabledError: existe el sentinel de deshabilitado.
type PollDisabledError struct{ Poll string }

func (e *PollDisabledError) Error() string {
	return "voting has been permanently disabled for this poll"
}

// StorageInconsistencyError: la verificación post-write no encontró el
// registro. El voto puede o no haber quedado durable; no se reintenta.
type StorageInconsistencyError struct{ Shard string }

func (e *StorageInconsistencyError) Error() string {
	return "vote could not be verified after write; it may have been lost"
}

// ReasonOf mapea un error del ledger a su código estable, o "" si no es un
// rechazo conocido.
func ReasonOf(err error) string {
	switch err.(type) {
	case *ValidationError:
		return ReasonValidation
	case *DuplicateVoteError:
		return ReasonDuplicateVote
	case *PollDisabledError:
		return ReasonPollDisabled
	case *StorageInconsistencyError:
		return ReasonStorageInconsistency
	default:
		return ""
	}
}
