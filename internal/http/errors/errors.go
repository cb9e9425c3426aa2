// Package errors define el AppError de la capa HTTP y su serialización.
// Los rechazos del ledger se mapean acá a códigos estables y status HTTP;
// ningún error de capas internas llega crudo al cliente.
package errors

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/dropDatabas3/ipvote/internal/ledger"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// WriteError escribe una respuesta HTTP basada en el error proporcionado.
// Maneja automáticamente errores de tipo *AppError y errores genéricos.
func WriteError(w http.ResponseWriter, err error) {
	appErr := FromError(err)

	resp := errorResponse{
		Code:    appErr.Code,
		Message: appErr.Message,
		Detail:  appErr.Detail,
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(appErr.HTTPStatus)
	_ = json.NewEncoder(w).Encode(resp)
}

// FromLedger mapea un rechazo del ledger a su AppError. Errores que no son
// rechazos conocidos degradan a error interno.
func FromLedger(err error) *AppError {
	switch e := err.(type) {
	case *ledger.ValidationError:
		return ErrVoteValidation.WithDetail(e.Message)
	case *ledger.DuplicateVoteError:
		return ErrDuplicateVote.WithDetail(
			"next vote possible at " + e.NextVoteTime.UTC().Format(time.RFC3339))
	case *ledger.PollDisabledError:
		return ErrPollDisabled
	case *ledger.StorageInconsistencyError:
		return ErrStorageInconsistency
	default:
		return FromError(err)
	}
}
