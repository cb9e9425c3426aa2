package middlewares

import "context"

type ctxKey int

const requestIDKey ctxKey = iota

func setRequestID(ctx context.Context, rid string) context.Context {
	return context.WithValue(ctx, requestIDKey, rid)
}

// GetRequestID retorna el request ID del contexto, o "".
func GetRequestID(ctx context.Context) string {
	rid, _ := ctx.Value(requestIDKey).(string)
	return rid
}
