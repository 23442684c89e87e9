package handlers

import (
	"context"
	"net/http"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-ledger/internal/models"
)

// RateService resolves exchange rates into the reporting currency.
type RateService interface {
	GetRate(ctx context.Context, currency string) (float64, error)
	ReportingCurrency() string
}

// RateResponse is the body of GET /api/rates/{currency}.
type RateResponse struct {
	Currency          string  `json:"currency"`
	Rate              float64 `json:"rate"`
	ReportingCurrency string  `json:"reporting_currency"`
}

// RateHandler serves /api/rates.
type RateHandler struct {
	rates  RateService
	logger log.FieldLogger
}

// NewRateHandler creates a rate handler.
func NewRateHandler(rates RateService, logger log.FieldLogger) *RateHandler {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &RateHandler{rates: rates, logger: logger}
}

// Get handles GET /api/rates/{currency}.
func (h *RateHandler) Get(w http.ResponseWriter, r *http.Request) {
	currency := models.NormalizeCurrency(r.PathValue("currency"))
	if len(currency) != 3 {
		writeError(w, r, h.logger, badRequest("currency must be a three-letter code"))
		return
	}
	rate, err := h.rates.GetRate(r.Context(), currency)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, RateResponse{
		Currency:          currency,
		Rate:              rate,
		ReportingCurrency: h.rates.ReportingCurrency(),
	})
}
