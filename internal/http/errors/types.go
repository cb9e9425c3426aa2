package errors

import (
	"fmt"
	"net/http"
)

// AppError define la estructura estándar para errores de la aplicación.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Detail     string `json:"detail,omitempty"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// FromError convierte un error genérico en AppError. Si no lo es, devuelve
// un error interno genérico conservando la causa.
func FromError(err error) *AppError {
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return ErrInternalServerError.WithCause(err)
}

// WithDetail devuelve una COPIA del error con detalle adicional, para no
// mutar las variables globales base.
func (e *AppError) WithDetail(detail string) *AppError {
	newErr := *e
	newErr.Detail = detail
	return &newErr
}

// WithCause devuelve una COPIA del error con la causa original.
func (e *AppError) WithCause(err error) *AppError {
	newErr := *e
	newErr.Err = err
	return &newErr
}

// =================================================================================
// LISTA DE ERRORES PREDEFINIDOS
// =================================================================================

var (
	ErrBadRequest = &AppError{
		Code:       "BAD_REQUEST",
		Message:    "La solicitud contiene sintaxis inválida o parámetros faltantes.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrInvalidJSON = &AppError{
		Code:       "INVALID_JSON",
		Message:    "El cuerpo de la solicitud no es un JSON válido.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrInvalidParameter = &AppError{
		Code:       "INVALID_PARAMETER",
		Message:    "Uno de los parámetros de la URL o Query String es inválido.",
		HTTPStatus: http.StatusBadRequest,
	}

	// Rechazos del ledger. El Code coincide con el motivo estable del
	// paquete ledger para que los clientes puedan chequearlo por máquina.
	ErrVoteValidation = &AppError{
		Code:       "validation_failed",
		Message:    "El voto no pasó la validación.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrDuplicateVote = &AppError{
		Code:       "duplicate_vote",
		Message:    "Esta identidad ya votó en este poll dentro de la ventana de espera.",
		HTTPStatus: http.StatusConflict,
	}

	ErrPollDisabled = &AppError{
		Code:       "poll_disabled",
		Message:    "La votación fue deshabilitada permanentemente para este poll.",
		HTTPStatus: http.StatusForbidden,
	}

	ErrStorageInconsistency = &AppError{
		Code:       "storage_inconsistency",
		Message:    "El voto no pudo verificarse después de escribirse; puede haberse perdido.",
		HTTPStatus: http.StatusInternalServerError,
	}

	ErrPollNotFound = &AppError{
		Code:       "POLL_NOT_FOUND",
		Message:    "El poll solicitado no tiene votos registrados.",
		HTTPStatus: http.StatusNotFound,
	}

	ErrRouteNotFound = &AppError{
		Code:       "ROUTE_NOT_FOUND",
		Message:    "La ruta solicitada no existe.",
		HTTPStatus: http.StatusNotFound,
	}

	ErrMethodNotAllowed = &AppError{
		Code:       "METHOD_NOT_ALLOWED",
		Message:    "El método HTTP no está permitido para este recurso.",
		HTTPStatus: http.StatusMethodNotAllowed,
	}

	ErrRateLimitExceeded = &AppError{
		Code:       "RATE_LIMIT_EXCEEDED",
		Message:    "Ha excedido el límite de solicitudes. Intente más tarde.",
		HTTPStatus: http.StatusTooManyRequests,
	}

	ErrInternalServerError = &AppError{
		Code:       "INTERNAL_SERVER_ERROR",
		Message:    "Ocurrió un error interno en el servidor.",
		HTTPStatus: http.StatusInternalServerError,
	}
)
