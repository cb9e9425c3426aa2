// Package services contiene la capa de servicios de la API: orquestan el
// ledger y la agregación, sin tocar net/http.
package services

import (
	"context"

	"github.com/dropDatabas3/ipvote/internal/ledger"
)

// VoteService admite votos nuevos.
type VoteService interface {
	Submit(ctx context.Context, req ledger.SubmitRequest) (*ledger.Record, error)
}

type voteService struct {
	ledger *ledger.Ledger
}

func NewVoteService(l *ledger.Ledger) VoteService {
	return &voteService{ledger: l}
}

func (s *voteService) Submit(ctx context.Context, req ledger.SubmitRequest) (*ledger.Record, error) {
	return s.ledger.Submit(ctx, req)
}
