package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/ipvote/internal/aggregate"
	"github.com/dropDatabas3/ipvote/internal/http/dto"
	httperrors "github.com/dropDatabas3/ipvote/internal/http/errors"
	"github.com/dropDatabas3/ipvote/internal/http/services"
	"github.com/dropDatabas3/ipvote/internal/observability/logger"
)

// PollsController maneja las lecturas agregadas: resultados por poll y el
// ranking de polls populares.
type PollsController struct {
	service services.PollsService
}

// NewPollsController crea un nuevo controller de polls.
func NewPollsController(service services.PollsService) *PollsController {
	return &PollsController{service: service}
}

// Results maneja GET /polls/{poll}/votes. Sirve el CSV agregado con IPs y
// teléfonos enmascarados; X-Cache indica si salió del cache de resultados.
func (c *PollsController) Results(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Op("PollsController.Results"))

	poll := chi.URLParam(r, "poll")
	if poll == "" {
		httperrors.WriteError(w, httperrors.ErrInvalidParameter.WithDetail("poll is required"))
		return
	}
	refresh := isTruthy(r.URL.Query().Get("refresh"))

	csv, cacheHit, err := c.service.Results(ctx, poll, refresh)
	if err != nil {
		if errors.Is(err, aggregate.ErrPollNotFound) {
			httperrors.WriteError(w, httperrors.ErrPollNotFound)
			return
		}
		log.Error("results aggregation failed", logger.Poll(poll), logger.Err(err))
		httperrors.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("X-Cache", cacheLabel(cacheHit))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(csv))
}

// Popular maneja GET /polls/popular. Pagina el ranking cacheado; q busca por
// términos, tags filtra por los dos tags más frecuentes del resultado.
func (c *PollsController) Popular(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Op("PollsController.Popular"))

	q, appErr := decodePopularQuery(r)
	if appErr != nil {
		httperrors.WriteError(w, appErr)
		return
	}

	page, err := c.service.Popular(ctx, q)
	if err != nil {
		log.Error("popular ranking failed", logger.Err(err))
		httperrors.WriteError(w, err)
		return
	}

	w.Header().Set("X-Cache", cacheLabel(page.CacheHit))
	if page.CacheHit {
		w.Header().Set("X-Cache-Age", strconv.Itoa(page.CacheAge))
	}
	writeJSON(w, http.StatusOK, dto.PopularResponse{
		Columns: page.Columns,
		Data:    page.Data,
	})
}

func decodePopularQuery(r *http.Request) (aggregate.Query, *httperrors.AppError) {
	values := r.URL.Query()
	q := aggregate.Query{
		Search:       values.Get("q"),
		Tags:         values.Get("tags"),
		PollToUpdate: values.Get("pollToUpdate"),
		Refresh:      isTruthy(values.Get("refresh")),
	}

	for _, p := range []struct {
		name string
		dst  *int
	}{
		{"limit", &q.Limit},
		{"offset", &q.Offset},
		{"seed", &q.Seed},
	} {
		raw := values.Get(p.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return q, httperrors.ErrInvalidParameter.WithDetail(p.name + " must be a non-negative integer")
		}
		*p.dst = n
	}
	return q, nil
}

func isTruthy(v string) bool {
	return v == "true" || v == "1"
}

func cacheLabel(hit bool) string {
	if hit {
		return "HIT"
	}
	return "MISS"
}
