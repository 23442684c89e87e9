package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// EntryType tells whether an entry adds to or subtracts from a vehicle's balance.
type EntryType string

const (
	EntryTypeIncome  EntryType = "INCOME"
	EntryTypeExpense EntryType = "EXPENSE"
)

// IsValid reports whether t is a known entry type.
func (t EntryType) IsValid() bool {
	return t == EntryTypeIncome || t == EntryTypeExpense
}

// EntryStatus is the payment state of an entry.
type EntryStatus string

const (
	EntryStatusPending EntryStatus = "PENDING"
	EntryStatusPaid    EntryStatus = "PAID"
)

// IsValid reports whether s is a known entry status.
func (s EntryStatus) IsValid() bool {
	return s == EntryStatusPending || s == EntryStatusPaid
}

// Entry is a single income or expense line recorded against a vehicle and,
// optionally, one of its trips. AmountReporting is always Amount x FrozenRate.
type Entry struct {
	ID              primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	VehicleID       string             `json:"vehicle_id" bson:"vehicle_id"`
	TripID          string             `json:"trip_id,omitempty" bson:"trip_id,omitempty"`
	CategoryID      string             `json:"category_id" bson:"category_id"`
	Type            EntryType          `json:"type" bson:"type"`
	Date            time.Time          `json:"date" bson:"date"`
	Description     string             `json:"description,omitempty" bson:"description,omitempty"`
	Amount          float64            `json:"amount" bson:"amount"`
	CurrencyCode    string             `json:"currency_code" bson:"currency_code"`
	FrozenRate      float64            `json:"frozen_rate" bson:"frozen_rate"`
	AmountReporting float64            `json:"amount_reporting" bson:"amount_reporting"`
	Status          EntryStatus        `json:"status" bson:"status"`
	PaymentMethod   string             `json:"payment_method,omitempty" bson:"payment_method,omitempty"`
	CreatedAt       time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at" bson:"updated_at"`
}

// Entry document field names used in filters, sorts and partial updates.
const (
	EntryFieldVehicleID       = "vehicle_id"
	EntryFieldTripID          = "trip_id"
	EntryFieldCategoryID      = "category_id"
	EntryFieldType            = "type"
	EntryFieldDate            = "date"
	EntryFieldDescription     = "description"
	EntryFieldAmount          = "amount"
	EntryFieldCurrencyCode    = "currency_code"
	EntryFieldFrozenRate      = "frozen_rate"
	EntryFieldAmountReporting = "amount_reporting"
	EntryFieldStatus          = "status"
	EntryFieldPaymentMethod   = "payment_method"
)

// Apply copies the frozen amount onto the entry.
func (e *Entry) Apply(f FrozenAmount) {
	e.Amount = f.Amount
	e.CurrencyCode = f.CurrencyCode
	e.FrozenRate = f.Rate
	e.AmountReporting = f.Reporting
}

// Frozen returns the entry's amount, currency and rate as a FrozenAmount.
func (e *Entry) Frozen() FrozenAmount {
	return FrozenAmount{
		Amount:       e.Amount,
		CurrencyCode: e.CurrencyCode,
		Rate:         e.FrozenRate,
		Reporting:    e.AmountReporting,
	}
}
