package ledger

import (
	"context"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-ledger/internal/db"
	"github.com/ukydev/fleet-ledger/internal/models"
)

// VehicleDraft is the input for a new vehicle.
type VehicleDraft struct {
	Plate            string     `json:"plate"`
	Name             string     `json:"name"`
	InsuranceExpiry  *time.Time `json:"insurance_expiry,omitempty"`
	InspectionExpiry *time.Time `json:"inspection_expiry,omitempty"`
}

// VehiclePatch edits a vehicle. A nil field is left alone.
type VehiclePatch struct {
	Plate            *string    `json:"plate,omitempty"`
	Name             *string    `json:"name,omitempty"`
	InsuranceExpiry  *time.Time `json:"insurance_expiry,omitempty"`
	InspectionExpiry *time.Time `json:"inspection_expiry,omitempty"`
}

// VehicleDocuments is the expiry state of a vehicle's insurance and
// inspection.
type VehicleDocuments struct {
	VehicleID  string              `json:"vehicle_id"`
	Plate      string              `json:"plate"`
	Insurance  models.ExpiryStatus `json:"insurance"`
	Inspection models.ExpiryStatus `json:"inspection"`
}

func normalizePlate(plate string) string {
	return strings.Join(strings.Fields(strings.ToUpper(plate)), " ")
}

// CreateVehicle stores a new vehicle. The plate is required.
func (s *Service) CreateVehicle(ctx context.Context, draft VehicleDraft) (*models.Vehicle, error) {
	vehicle := models.Vehicle{
		Plate:            normalizePlate(draft.Plate),
		Name:             strings.TrimSpace(draft.Name),
		InsuranceExpiry:  draft.InsuranceExpiry,
		InspectionExpiry: draft.InspectionExpiry,
	}
	if vehicle.Plate == "" {
		return nil, invalid("plate", "is required")
	}
	id, err := s.vehicles.Create(ctx, vehicle)
	if err != nil {
		return nil, err
	}
	s.logger.WithFields(log.Fields{"vehicle_id": id, "plate": vehicle.Plate}).Info("Vehicle created")
	return s.GetVehicle(ctx, id)
}

// GetVehicle returns the vehicle or an error matching ErrNotFound.
func (s *Service) GetVehicle(ctx context.Context, id string) (*models.Vehicle, error) {
	vehicle, err := s.vehicles.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if vehicle == nil {
		return nil, notFound("vehicle", id)
	}
	return vehicle, nil
}

// UpdateVehicle applies patch.
func (s *Service) UpdateVehicle(ctx context.Context, id string, patch VehiclePatch) (*models.Vehicle, error) {
	fields := db.Document{}
	if patch.Plate != nil {
		plate := normalizePlate(*patch.Plate)
		if plate == "" {
			return nil, invalid("plate", "is required")
		}
		fields[models.VehicleFieldPlate] = plate
	}
	if patch.Name != nil {
		fields[models.VehicleFieldName] = strings.TrimSpace(*patch.Name)
	}
	if patch.InsuranceExpiry != nil {
		fields[models.VehicleFieldInsuranceExpiry] = *patch.InsuranceExpiry
	}
	if patch.InspectionExpiry != nil {
		fields[models.VehicleFieldInspectionExpiry] = *patch.InspectionExpiry
	}
	if len(fields) > 0 {
		if err := s.vehicles.Update(ctx, id, fields); err != nil {
			return nil, err
		}
	}
	return s.GetVehicle(ctx, id)
}

// DeleteVehicle removes the vehicle. Its trips and entries are not touched.
func (s *Service) DeleteVehicle(ctx context.Context, id string) error {
	if err := s.vehicles.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.WithField("vehicle_id", id).Info("Vehicle deleted")
	return nil
}

// ListVehicles returns every vehicle ordered by plate.
func (s *Service) ListVehicles(ctx context.Context) ([]models.Vehicle, error) {
	return s.vehicles.Find(ctx, db.Query{Sort: db.Sort{Field: models.VehicleFieldPlate}})
}

// Documents reports how close the vehicle's insurance and inspection are to
// expiring, counted in calendar days in the service location.
func (s *Service) Documents(v *models.Vehicle) VehicleDocuments {
	now := s.now()
	return VehicleDocuments{
		VehicleID:  v.ID.Hex(),
		Plate:      v.Plate,
		Insurance:  models.ExpiryStatusOf(v.InsuranceExpiry, now, s.location),
		Inspection: models.ExpiryStatusOf(v.InspectionExpiry, now, s.location),
	}
}
