package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-ledger/internal/db"
	"github.com/ukydev/fleet-ledger/internal/models"
)

// TripDraft is the input for a new trip. An empty Status opens the trip.
type TripDraft struct {
	VehicleID   string            `json:"vehicle_id"`
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	StartDate   time.Time         `json:"start_date"`
	EndDate     *time.Time        `json:"end_date,omitempty"`
	Status      models.TripStatus `json:"status,omitempty"`
}

// TripPatch edits a trip. A Status change must be a valid transition.
type TripPatch struct {
	Title       *string            `json:"title,omitempty"`
	Description *string            `json:"description,omitempty"`
	StartDate   *time.Time         `json:"start_date,omitempty"`
	EndDate     *time.Time         `json:"end_date,omitempty"`
	Status      *models.TripStatus `json:"status,omitempty"`
}

// TripSort lists a vehicle's trips most recent first.
var TripSort = db.Sort{Field: models.TripFieldStartDate, Desc: true}

func validateTrip(t *models.Trip) error {
	switch {
	case t.VehicleID == "":
		return invalid("vehicle_id", "is required")
	case t.Title == "":
		return invalid("title", "is required")
	case t.StartDate.IsZero():
		return invalid("start_date", "is required")
	case !t.Status.IsValid():
		return invalid("status", "must be OPEN or CLOSED")
	case t.EndDate != nil && t.EndDate.Before(t.StartDate):
		return invalid("end_date", "must not be before start_date")
	}
	return nil
}

// CreateTrip stores a new trip, open unless the draft says otherwise.
func (s *Service) CreateTrip(ctx context.Context, draft TripDraft) (*models.Trip, error) {
	trip := &models.Trip{
		VehicleID:   strings.TrimSpace(draft.VehicleID),
		Title:       strings.TrimSpace(draft.Title),
		Description: strings.TrimSpace(draft.Description),
		StartDate:   draft.StartDate,
		EndDate:     draft.EndDate,
		Status:      draft.Status,
	}
	if trip.Status == "" {
		trip.Status = models.TripStatusOpen
	}
	if err := validateTrip(trip); err != nil {
		return nil, err
	}

	id, err := s.trips.Create(ctx, *trip)
	if err != nil {
		return nil, err
	}
	s.logger.WithFields(log.Fields{
		"trip_id":    id,
		"vehicle_id": trip.VehicleID,
		"status":     trip.Status,
	}).Info("Trip created")
	return s.GetTrip(ctx, id)
}

// GetTrip returns the trip or an error matching ErrNotFound.
func (s *Service) GetTrip(ctx context.Context, id string) (*models.Trip, error) {
	trip, err := s.trips.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if trip == nil {
		return nil, notFound("trip", id)
	}
	return trip, nil
}

// tripOfVehicle loads a trip and checks that it belongs to vehicleID.
func (s *Service) tripOfVehicle(ctx context.Context, tripID, vehicleID string) (*models.Trip, error) {
	trip, err := s.GetTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if trip.VehicleID != vehicleID {
		return nil, &ValidationError{
			Field:  "trip_id",
			Reason: fmt.Sprintf("trip %s belongs to vehicle %s, not %s", tripID, trip.VehicleID, vehicleID),
			Err:    ErrTripVehicleMismatch,
		}
	}
	return trip, nil
}

// EnsureTripAcceptsEntries is the guard run before an entry is attached to a
// trip: the trip must exist, belong to vehicleID and be open.
func (s *Service) EnsureTripAcceptsEntries(ctx context.Context, tripID, vehicleID string) (*models.Trip, error) {
	trip, err := s.tripOfVehicle(ctx, tripID, vehicleID)
	if err != nil {
		return nil, err
	}
	if !trip.IsOpen() {
		return nil, fmt.Errorf("trip %s: %w", tripID, ErrTripClosed)
	}
	return trip, nil
}

// transition moves a trip to next and returns the fields to write.
func (s *Service) transition(trip *models.Trip, next models.TripStatus, endDate *time.Time) (db.Document, error) {
	if !next.IsValid() {
		return nil, invalid("status", "must be OPEN or CLOSED")
	}
	if !trip.Status.CanTransition(next) {
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, trip.Status, next)
	}
	fields := db.Document{models.TripFieldStatus: string(next)}
	switch next {
	case models.TripStatusClosed:
		end := s.now()
		if endDate != nil {
			end = *endDate
		} else if trip.EndDate != nil {
			end = *trip.EndDate
		}
		if end.Before(trip.StartDate) {
			return nil, invalid("end_date", "must not be before start_date")
		}
		fields[models.TripFieldEndDate] = end
	case models.TripStatusOpen:
		fields[models.TripFieldEndDate] = nil
	}
	return fields, nil
}

func (s *Service) changeStatus(ctx context.Context, id string, next models.TripStatus, endDate *time.Time) (*models.Trip, error) {
	trip, err := s.GetTrip(ctx, id)
	if err != nil {
		return nil, err
	}
	fields, err := s.transition(trip, next, endDate)
	if err != nil {
		return nil, err
	}
	if err := s.trips.Update(ctx, id, fields); err != nil {
		return nil, err
	}
	s.logger.WithFields(log.Fields{
		"trip_id": id,
		"from":    trip.Status,
		"to":      next,
	}).Info("Trip status changed")
	return s.GetTrip(ctx, id)
}

// CloseTrip closes an open trip. endDate defaults to the trip's planned end
// date, or now.
func (s *Service) CloseTrip(ctx context.Context, id string, endDate *time.Time) (*models.Trip, error) {
	return s.changeStatus(ctx, id, models.TripStatusClosed, endDate)
}

// ReopenTrip is the explicit user action that moves a closed trip back to
// open and clears its end date.
func (s *Service) ReopenTrip(ctx context.Context, id string) (*models.Trip, error) {
	return s.changeStatus(ctx, id, models.TripStatusOpen, nil)
}

// UpdateTrip applies patch. The owning vehicle cannot change.
func (s *Service) UpdateTrip(ctx context.Context, id string, patch TripPatch) (*models.Trip, error) {
	trip, err := s.GetTrip(ctx, id)
	if err != nil {
		return nil, err
	}
	next := *trip
	fields := db.Document{}

	if patch.Title != nil {
		next.Title = strings.TrimSpace(*patch.Title)
		fields[models.TripFieldTitle] = next.Title
	}
	if patch.Description != nil {
		next.Description = strings.TrimSpace(*patch.Description)
		if next.Description == "" {
			fields[models.TripFieldDescription] = nil
		} else {
			fields[models.TripFieldDescription] = next.Description
		}
	}
	if patch.StartDate != nil {
		next.StartDate = *patch.StartDate
		fields[models.TripFieldStartDate] = next.StartDate
	}
	if patch.EndDate != nil {
		end := *patch.EndDate
		next.EndDate = &end
		fields[models.TripFieldEndDate] = end
	}
	if patch.Status != nil && *patch.Status != trip.Status {
		statusFields, err := s.transition(&next, *patch.Status, next.EndDate)
		if err != nil {
			return nil, err
		}
		for k, v := range statusFields {
			fields[k] = v
		}
		next.Status = *patch.Status
		if next.Status == models.TripStatusOpen {
			next.EndDate = nil
		}
	}
	if err := validateTrip(&next); err != nil {
		return nil, err
	}

	if len(fields) > 0 {
		if err := s.trips.Update(ctx, id, fields); err != nil {
			return nil, err
		}
	}
	return s.GetTrip(ctx, id)
}

// DeleteTrip removes the trip. Its entries keep their trip reference; what
// to do with them is left to the caller.
func (s *Service) DeleteTrip(ctx context.Context, id string) error {
	if err := s.trips.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.WithField("trip_id", id).Info("Trip deleted")
	return nil
}

// ListTrips returns trips, most recent start first. An empty vehicleID lists
// every trip; status narrows the result when set.
func (s *Service) ListTrips(ctx context.Context, vehicleID string, status models.TripStatus) ([]models.Trip, error) {
	var filters []db.Filter
	if vehicleID != "" {
		filters = append(filters, db.Eq(models.TripFieldVehicleID, vehicleID))
	}
	if status != "" {
		filters = append(filters, db.Eq(models.TripFieldStatus, string(status)))
	}
	return s.trips.Find(ctx, db.Query{Filters: filters, Sort: TripSort})
}
