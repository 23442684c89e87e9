package handlers

import (
	"context"
	"net/http"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-ledger/internal/ledger"
	"github.com/ukydev/fleet-ledger/internal/models"
)

// VehicleService is the part of the ledger the vehicle endpoints use.
type VehicleService interface {
	CreateVehicle(ctx context.Context, draft ledger.VehicleDraft) (*models.Vehicle, error)
	GetVehicle(ctx context.Context, id string) (*models.Vehicle, error)
	UpdateVehicle(ctx context.Context, id string, patch ledger.VehiclePatch) (*models.Vehicle, error)
	DeleteVehicle(ctx context.Context, id string) error
	ListVehicles(ctx context.Context) ([]models.Vehicle, error)
	Documents(v *models.Vehicle) ledger.VehicleDocuments
}

// VehicleResponse is a vehicle with the expiry state of its documents.
type VehicleResponse struct {
	models.Vehicle
	Documents ledger.VehicleDocuments `json:"documents"`
}

// VehicleHandler serves /api/vehicles.
type VehicleHandler struct {
	vehicles VehicleService
	logger   log.FieldLogger
}

// NewVehicleHandler creates a vehicle handler.
func NewVehicleHandler(vehicles VehicleService, logger log.FieldLogger) *VehicleHandler {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &VehicleHandler{vehicles: vehicles, logger: logger}
}

func (h *VehicleHandler) respond(v *models.Vehicle) VehicleResponse {
	return VehicleResponse{Vehicle: *v, Documents: h.vehicles.Documents(v)}
}

// List handles GET /api/vehicles.
func (h *VehicleHandler) List(w http.ResponseWriter, r *http.Request) {
	vehicles, err := h.vehicles.ListVehicles(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	out := make([]VehicleResponse, 0, len(vehicles))
	for i := range vehicles {
		out = append(out, h.respond(&vehicles[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

// Create handles POST /api/vehicles.
func (h *VehicleHandler) Create(w http.ResponseWriter, r *http.Request) {
	var draft ledger.VehicleDraft
	if err := decodeJSON(r, &draft); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	vehicle, err := h.vehicles.CreateVehicle(r.Context(), draft)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.respond(vehicle))
}

// Get handles GET /api/vehicles/{id}.
func (h *VehicleHandler) Get(w http.ResponseWriter, r *http.Request) {
	vehicle, err := h.vehicles.GetVehicle(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, h.respond(vehicle))
}

// Update handles PUT /api/vehicles/{id}.
func (h *VehicleHandler) Update(w http.ResponseWriter, r *http.Request) {
	var patch ledger.VehiclePatch
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	vehicle, err := h.vehicles.UpdateVehicle(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, h.respond(vehicle))
}

// Delete handles DELETE /api/vehicles/{id}.
func (h *VehicleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.vehicles.DeleteVehicle(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
