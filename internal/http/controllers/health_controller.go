package controllers

import (
	"net/http"

	"github.com/dropDatabas3/ipvote/internal/http/services"
)

// HealthController maneja el health check.
type HealthController struct {
	service services.HealthService
}

// NewHealthController crea un nuevo controller de health check.
func NewHealthController(service services.HealthService) *HealthController {
	return &HealthController{service: service}
}

// Healthz maneja GET /healthz. El servicio no puede hacer nada sin su
// storage, así que un store inalcanzable es 503, no degraded.
func (c *HealthController) Healthz(w http.ResponseWriter, r *http.Request) {
	response := c.service.Check(r.Context())

	status := http.StatusOK
	if response.Storage != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, response)
}
