package handlers

import (
	"context"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-ledger/internal/ledger"
	"github.com/ukydev/fleet-ledger/internal/summary"
)

// SummaryService computes the read-side reports.
type SummaryService interface {
	Totals(ctx context.Context, filter ledger.EntryFilter) (*summary.Totals, error)
	TripTotals(ctx context.Context, tripID string) (*summary.TripTotals, error)
	Categories(ctx context.Context, filter ledger.EntryFilter) ([]summary.CategoryGroup, error)
	Monthly(ctx context.Context, year int, filter ledger.EntryFilter) (*summary.Yearly, error)
	Vehicles(ctx context.Context, filter ledger.EntryFilter) ([]summary.VehicleTotals, error)
	RecentActivity(ctx context.Context, days int) (map[string]summary.VehicleTotals, error)
}

// SummaryHandler serves /api/summary and the trip totals endpoint.
type SummaryHandler struct {
	summary  SummaryService
	location *time.Location
	now      func() time.Time
	logger   log.FieldLogger
}

// NewSummaryHandler creates a summary handler.
func NewSummaryHandler(svc SummaryService, loc *time.Location, logger log.FieldLogger) *SummaryHandler {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &SummaryHandler{summary: svc, location: loc, now: time.Now, logger: logger}
}

// Totals handles GET /api/summary/totals.
func (h *SummaryHandler) Totals(w http.ResponseWriter, r *http.Request) {
	filter, err := entryFilter(r, h.location)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	totals, err := h.summary.Totals(r.Context(), filter)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, totals)
}

// TripTotals handles GET /api/trips/{id}/totals.
func (h *SummaryHandler) TripTotals(w http.ResponseWriter, r *http.Request) {
	totals, err := h.summary.TripTotals(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, totals)
}

// Categories handles GET /api/summary/categories.
func (h *SummaryHandler) Categories(w http.ResponseWriter, r *http.Request) {
	filter, err := entryFilter(r, h.location)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	groups, err := h.summary.Categories(r.Context(), filter)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if groups == nil {
		groups = []summary.CategoryGroup{}
	}
	writeJSON(w, http.StatusOK, groups)
}

// Monthly handles GET /api/summary/monthly?year=. The year defaults to the
// current one.
func (h *SummaryHandler) Monthly(w http.ResponseWriter, r *http.Request) {
	filter, err := entryFilter(r, h.location)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	year, err := queryInt(r, "year", h.now().In(h.location).Year())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	yearly, err := h.summary.Monthly(r.Context(), year, filter)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, yearly)
}

// Vehicles handles GET /api/summary/vehicles.
func (h *SummaryHandler) Vehicles(w http.ResponseWriter, r *http.Request) {
	filter, err := entryFilter(r, h.location)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	ranked, err := h.summary.Vehicles(r.Context(), filter)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if ranked == nil {
		ranked = []summary.VehicleTotals{}
	}
	writeJSON(w, http.StatusOK, ranked)
}

// Activity handles GET /api/summary/activity?days=.
func (h *SummaryHandler) Activity(w http.ResponseWriter, r *http.Request) {
	days, err := queryInt(r, "days", summary.DefaultActivityDays)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if days <= 0 || days > 366 {
		writeError(w, r, h.logger, badRequest("days must be between 1 and 366"))
		return
	}
	activity, err := h.summary.RecentActivity(r.Context(), days)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, activity)
}
