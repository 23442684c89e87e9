package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-ledger/internal/ledger"
	"github.com/ukydev/fleet-ledger/internal/models"
)

// TripService is the part of the ledger the trip endpoints use.
type TripService interface {
	CreateTrip(ctx context.Context, draft ledger.TripDraft) (*models.Trip, error)
	GetTrip(ctx context.Context, id string) (*models.Trip, error)
	UpdateTrip(ctx context.Context, id string, patch ledger.TripPatch) (*models.Trip, error)
	DeleteTrip(ctx context.Context, id string) error
	ListTrips(ctx context.Context, vehicleID string, status models.TripStatus) ([]models.Trip, error)
	CloseTrip(ctx context.Context, id string, endDate *time.Time) (*models.Trip, error)
	ReopenTrip(ctx context.Context, id string) (*models.Trip, error)
}

// TripHandler serves /api/trips.
type TripHandler struct {
	trips  TripService
	logger log.FieldLogger
}

// NewTripHandler creates a trip handler.
func NewTripHandler(trips TripService, logger log.FieldLogger) *TripHandler {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &TripHandler{trips: trips, logger: logger}
}

// List handles GET /api/trips?vehicle_id=&status=.
func (h *TripHandler) List(w http.ResponseWriter, r *http.Request) {
	status := models.TripStatus(strings.ToUpper(r.URL.Query().Get("status")))
	if status != "" && !status.IsValid() {
		writeError(w, r, h.logger, badRequest("status must be OPEN or CLOSED"))
		return
	}
	trips, err := h.trips.ListTrips(r.Context(), r.URL.Query().Get("vehicle_id"), status)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if trips == nil {
		trips = []models.Trip{}
	}
	writeJSON(w, http.StatusOK, trips)
}

// Create handles POST /api/trips.
func (h *TripHandler) Create(w http.ResponseWriter, r *http.Request) {
	var draft ledger.TripDraft
	if err := decodeJSON(r, &draft); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	trip, err := h.trips.CreateTrip(r.Context(), draft)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, trip)
}

// Get handles GET /api/trips/{id}.
func (h *TripHandler) Get(w http.ResponseWriter, r *http.Request) {
	trip, err := h.trips.GetTrip(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, trip)
}

// Update handles PATCH /api/trips/{id}.
func (h *TripHandler) Update(w http.ResponseWriter, r *http.Request) {
	var patch ledger.TripPatch
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	trip, err := h.trips.UpdateTrip(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, trip)
}

// Delete handles DELETE /api/trips/{id}.
func (h *TripHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.trips.DeleteTrip(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Close handles POST /api/trips/{id}/close. The body may carry end_date.
func (h *TripHandler) Close(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EndDate *time.Time `json:"end_date,omitempty"`
	}
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, h.logger, err)
			return
		}
	}
	trip, err := h.trips.CloseTrip(r.Context(), r.PathValue("id"), req.EndDate)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, trip)
}

// Reopen handles POST /api/trips/{id}/reopen.
func (h *TripHandler) Reopen(w http.ResponseWriter, r *http.Request) {
	trip, err := h.trips.ReopenTrip(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, trip)
}
