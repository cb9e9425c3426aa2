// Package middlewares contiene los middlewares HTTP del servicio.
package middlewares

import "net/http"

// Middleware es un decorador de http.Handler
type Middleware func(http.Handler) http.Handler
