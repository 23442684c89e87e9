package models

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
	"time"
)

// TripStatus is the lifecycle state of a trip.
type TripStatus string

const (
	TripStatusOpen   TripStatus = "OPEN"
	TripStatusClosed TripStatus = "CLOSED"
)

// IsValid reports whether s is a known trip status.
func (s TripStatus) IsValid() bool {
	return s == TripStatusOpen || s == TripStatusClosed
}

// CanTransition reports whether a trip may move from s to next. Closing an open
// trip and explicitly reopening a closed one are the only transitions.
func (s TripStatus) CanTransition(next TripStatus) bool {
	switch s {
	case TripStatusOpen:
		return next == TripStatusClosed
	case TripStatusClosed:
		return next == TripStatusOpen
	default:
		return false
	}
}

// Trip (sefer) is a bounded unit of activity for one vehicle. Its totals are
// never stored; they are computed from entries on demand.
type Trip struct {
	ID          primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	VehicleID   string             `json:"vehicle_id" bson:"vehicle_id"`
	Title       string             `json:"title" bson:"title"`
	Description string             `json:"description,omitempty" bson:"description,omitempty"`
	StartDate   time.Time          `json:"start_date" bson:"start_date"`
	EndDate     *time.Time         `json:"end_date,omitempty" bson:"end_date,omitempty"`
	Status      TripStatus         `json:"status" bson:"status"`
	CreatedAt   time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at" bson:"updated_at"`
}

// Trip document field names.
const (
	TripFieldVehicleID   = "vehicle_id"
	TripFieldTitle       = "title"
	TripFieldDescription = "description"
	TripFieldStartDate   = "start_date"
	TripFieldEndDate     = "end_date"
	TripFieldStatus      = "status"
)

// IsOpen reports whether entries may currently be attached to the trip.
func (t *Trip) IsOpen() bool {
	return t.Status == TripStatusOpen
}
