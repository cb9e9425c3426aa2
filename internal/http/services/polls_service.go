package services

import (
	"context"

	"github.com/dropDatabas3/ipvote/internal/aggregate"
	"github.com/dropDatabas3/ipvote/internal/feed"
)

// PollsService sirve las lecturas agregadas y el ranking.
type PollsService interface {
	Results(ctx context.Context, poll string, refresh bool) (csv string, cacheHit bool, err error)
	Popular(ctx context.Context, q aggregate.Query) (*aggregate.Page, error)
}

type pollsService struct {
	agg *aggregate.Aggregator
}

func NewPollsService(agg *aggregate.Aggregator) PollsService {
	return &pollsService{agg: agg}
}

func (s *pollsService) Results(ctx context.Context, poll string, refresh bool) (string, bool, error) {
	return s.agg.PollResults(ctx, poll, refresh)
}

func (s *pollsService) Popular(ctx context.Context, q aggregate.Query) (*aggregate.Page, error) {
	return s.agg.PopularPolls(ctx, q)
}

// FeedService sirve el feed de actividad reciente.
type FeedService interface {
	Recent(ctx context.Context) ([]feed.Entry, error)
}

type feedService struct {
	feed *feed.Feed
}

func NewFeedService(f *feed.Feed) FeedService {
	return &feedService{feed: f}
}

func (s *feedService) Recent(ctx context.Context) ([]feed.Entry, error) {
	return s.feed.Recent(ctx)
}
