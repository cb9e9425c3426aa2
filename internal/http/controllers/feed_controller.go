package controllers

import (
	"net/http"

	"github.com/dropDatabas3/ipvote/internal/feed"
	"github.com/dropDatabas3/ipvote/internal/http/dto"
	httperrors "github.com/dropDatabas3/ipvote/internal/http/errors"
	"github.com/dropDatabas3/ipvote/internal/http/services"
	"github.com/dropDatabas3/ipvote/internal/observability/logger"
)

// FeedController maneja el feed de actividad reciente.
type FeedController struct {
	service services.FeedService
}

// NewFeedController crea un nuevo controller del feed.
func NewFeedController(service services.FeedService) *FeedController {
	return &FeedController{service: service}
}

// Recent maneja GET /feed/recent.
func (c *FeedController) Recent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Op("FeedController.Recent"))

	entries, err := c.service.Recent(ctx)
	if err != nil {
		log.Error("recent feed read failed", logger.Err(err))
		httperrors.WriteError(w, err)
		return
	}
	if entries == nil {
		entries = []feed.Entry{}
	}

	writeJSON(w, http.StatusOK, dto.FeedResponse{Votes: entries})
}
