package dto

import "github.com/dropDatabas3/ipvote/internal/feed"

// FeedResponse es la respuesta de GET /feed/recent.
type FeedResponse struct {
	Votes []feed.Entry `json:"votes"`
}
