package controllers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/dropDatabas3/ipvote/internal/http/dto"
	httperrors "github.com/dropDatabas3/ipvote/internal/http/errors"
	"github.com/dropDatabas3/ipvote/internal/http/middlewares"
	"github.com/dropDatabas3/ipvote/internal/http/services"
	"github.com/dropDatabas3/ipvote/internal/ledger"
	"github.com/dropDatabas3/ipvote/internal/observability/logger"
)

// VoteController maneja la admisión de votos.
type VoteController struct {
	service services.VoteService
}

// NewVoteController crea un nuevo controller de votos.
func NewVoteController(service services.VoteService) *VoteController {
	return &VoteController{service: service}
}

// Submit maneja POST /vote. Acepta el voto como body JSON o como query
// string; la IP de origen sale siempre de la conexión, nunca del payload.
func (c *VoteController) Submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Op("VoteController.Submit"))

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		httperrors.WriteError(w, httperrors.ErrMethodNotAllowed)
		return
	}

	req, appErr := decodeVoteRequest(r)
	if appErr != nil {
		httperrors.WriteError(w, appErr)
		return
	}

	sourceIP := middlewares.ClientIP(r)
	record, err := c.service.Submit(ctx, ledger.SubmitRequest{
		Poll:         req.Poll,
		Vote:         req.Vote,
		IsOpen:       req.IsOpen,
		SourceIP:     sourceIP,
		CountryHint:  req.Country,
		CaptchaToken: req.CaptchaToken,
		PhoneNumber:  req.PhoneNumber,
		PhoneToken:   req.PhoneToken,
		Email:        req.Email,
		SessionToken: req.SessionToken,
	})
	if err != nil {
		log.Info("vote rejected",
			logger.Poll(req.Poll),
			logger.ClientIP(sourceIP),
			logger.Err(err),
		)
		httperrors.WriteError(w, httperrors.FromLedger(err))
		return
	}

	log.Info("vote accepted",
		logger.Poll(record.Poll),
		logger.ClientIP(sourceIP),
	)
	writeJSON(w, http.StatusCreated, dto.VoteResponse{
		Accepted: true,
		Message:  "vote recorded",
	})
}

func decodeVoteRequest(r *http.Request) (dto.VoteRequest, *httperrors.AppError) {
	var req dto.VoteRequest

	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, httperrors.ErrInvalidJSON.WithCause(err)
		}
		return req, nil
	}

	q := r.URL.Query()
	req.Poll = q.Get("poll")
	req.Vote = q.Get("vote")
	req.IsOpen = q.Get("isOpen") == "true" || q.Get("isOpen") == "1"
	req.Country = q.Get("country")
	req.CaptchaToken = q.Get("captchaToken")
	req.PhoneNumber = q.Get("phoneNumber")
	req.PhoneToken = q.Get("phoneToken")
	req.Email = q.Get("email")
	req.SessionToken = q.Get("sessionToken")
	return req, nil
}
