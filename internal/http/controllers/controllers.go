// Package controllers contiene los controllers HTTP de la API pública.
// Un controller parsea el request, delega en su service y serializa la
// respuesta; nunca contiene lógica de dominio.
package controllers

import (
	"encoding/json"
	"net/http"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
