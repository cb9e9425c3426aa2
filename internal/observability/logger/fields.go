package logger

import (
	"time"

	"go.uber.org/zap"
)

// =================================================================================
// CAMPOS ESTÁNDAR - HTTP
// =================================================================================

// RequestID crea un campo para el ID del request.
func RequestID(v string) zap.Field {
	return zap.String("request_id", v)
}

// Method crea un campo para el método HTTP.
func Method(v string) zap.Field {
	return zap.String("method", v)
}

// Path crea un campo para el path del request.
func Path(v string) zap.Field {
	return zap.String("path", v)
}

// Status crea un campo para el status code HTTP.
func Status(v int) zap.Field {
	return zap.Int("status", v)
}

// Duration crea un campo para la duración del request.
func Duration(v time.Duration) zap.Field {
	return zap.Duration("duration", v)
}

// DurationMs crea un campo para la duración en milisegundos.
func DurationMs(v int64) zap.Field {
	return zap.Int64("duration_ms", v)
}

// Bytes crea un campo para los bytes de respuesta.
func Bytes(v int) zap.Field {
	return zap.Int("bytes", v)
}

// ClientIP crea un campo para la IP del cliente (sin enmascarar: solo logs).
func ClientIP(v string) zap.Field {
	return zap.String("client_ip", v)
}

// =================================================================================
// CAMPOS ESTÁNDAR - NEGOCIO
// =================================================================================

// Poll crea un campo para el nombre del poll.
func Poll(v string) zap.Field {
	return zap.String("poll", v)
}

// Shard crea un campo para la key del shard.
func Shard(v string) zap.Field {
	return zap.String("shard", v)
}

// Partition crea un campo para el bucket de particionado por IP.
func Partition(v string) zap.Field {
	return zap.String("partition", v)
}

// Reason crea un campo para el motivo de rechazo de un voto.
func Reason(v string) zap.Field {
	return zap.String("reason", v)
}

// UserID crea un campo para el ID pseudónimo del usuario.
func UserID(v string) zap.Field {
	return zap.String("user_id", v)
}

// Country crea un campo para el país clasificado.
func Country(v string) zap.Field {
	return zap.String("country", v)
}

// =================================================================================
// CAMPOS ESTÁNDAR - SISTEMA
// =================================================================================

// Component crea un campo para el componente/módulo.
func Component(v string) zap.Field {
	return zap.String("component", v)
}

// Op crea un campo para la operación actual.
func Op(v string) zap.Field {
	return zap.String("op", v)
}

// Key crea un campo para una key del object store.
func Key(v string) zap.Field {
	return zap.String("key", v)
}

// Err crea un campo para un error.
func Err(err error) zap.Field {
	return zap.Error(err)
}

// Count crea un campo para un conteo.
func Count(v int) zap.Field {
	return zap.Int("count", v)
}

// String crea un campo string genérico.
func String(key, v string) zap.Field {
	return zap.String(key, v)
}

// Int crea un campo int genérico.
func Int(key string, v int) zap.Field {
	return zap.Int(key, v)
}
