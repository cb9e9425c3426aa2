package services

import (
	"context"

	"github.com/dropDatabas3/ipvote/internal/http/dto"
	"github.com/dropDatabas3/ipvote/internal/storage"
)

// HealthService reporta el estado del servicio y su storage.
type HealthService interface {
	Check(ctx context.Context) dto.HealthResponse
}

type healthService struct {
	store storage.BlobStore
}

func NewHealthService(store storage.BlobStore) HealthService {
	return &healthService{store: store}
}

func (s *healthService) Check(ctx context.Context) dto.HealthResponse {
	resp := dto.HealthResponse{Status: "ready", Storage: "ok"}

	// Un Get de una key inexistente prueba el store sin efectos; not-found
	// es la respuesta sana.
	_, err := s.store.Get(ctx, "healthz/probe")
	if err != nil && !storage.IsNotFound(err) {
		resp.Status = "degraded"
		resp.Storage = "unreachable"
	}
	return resp
}
