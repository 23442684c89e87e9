package models

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
	"time"
)

// Vehicle represents a fleet vehicle.
type Vehicle struct {
	ID               primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Plate            string             `bson:"plate" json:"plate"`
	Name             string             `bson:"name" json:"name"`
	InsuranceExpiry  *time.Time         `bson:"insurance_expiry,omitempty" json:"insurance_expiry,omitempty"`
	InspectionExpiry *time.Time         `bson:"inspection_expiry,omitempty" json:"inspection_expiry,omitempty"`
	CreatedAt        time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt        time.Time          `bson:"updated_at" json:"updated_at"`
}

// Vehicle document field names.
const (
	VehicleFieldPlate            = "plate"
	VehicleFieldName             = "name"
	VehicleFieldInsuranceExpiry  = "insurance_expiry"
	VehicleFieldInspectionExpiry = "inspection_expiry"
)

// ExpiryLevel classifies how close a vehicle document is to expiring.
type ExpiryLevel string

const (
	ExpirySafe    ExpiryLevel = "safe"
	ExpiryWarning ExpiryLevel = "warning"
	ExpiryDanger  ExpiryLevel = "danger"
	ExpiryExpired ExpiryLevel = "expired"
)

// ExpiryStatus is the remaining validity of an insurance or inspection date.
type ExpiryStatus struct {
	RemainingDays int         `json:"remaining_days"`
	Level         ExpiryLevel `json:"level"`
}

// ExpiryStatusOf compares expiry against now by calendar day in loc. A missing
// date counts as expired.
func ExpiryStatusOf(expiry *time.Time, now time.Time, loc *time.Location) ExpiryStatus {
	if expiry == nil || expiry.IsZero() {
		return ExpiryStatus{Level: ExpiryExpired}
	}
	if loc == nil {
		loc = time.UTC
	}
	today := startOfDay(now.In(loc))
	day := startOfDay(expiry.In(loc))
	remaining := int(day.Sub(today).Hours() / 24)

	switch {
	case remaining < 0:
		return ExpiryStatus{RemainingDays: remaining, Level: ExpiryExpired}
	case remaining <= 7:
		return ExpiryStatus{RemainingDays: remaining, Level: ExpiryDanger}
	case remaining <= 30:
		return ExpiryStatus{RemainingDays: remaining, Level: ExpiryWarning}
	default:
		return ExpiryStatus{RemainingDays: remaining, Level: ExpirySafe}
	}
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
