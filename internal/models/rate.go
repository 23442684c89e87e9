package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// RateSnapshot is one quote from the remote rate source. Rates maps a currency
// code to the number of reporting-currency units one unit of it buys.
type RateSnapshot struct {
	ID        primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Base      string             `json:"base" bson:"base"`
	Rates     map[string]float64 `json:"rates" bson:"rates"`
	Source    string             `json:"source" bson:"source"`
	AsOf      time.Time          `json:"as_of" bson:"as_of"`
	FetchedAt time.Time          `json:"fetched_at" bson:"fetched_at"`
	CreatedAt time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time          `json:"updated_at" bson:"updated_at"`
}

// RateSnapshotFieldFetchedAt orders snapshots from newest to oldest.
const RateSnapshotFieldFetchedAt = "fetched_at"

// Rate returns the quote for currency, or false if the snapshot lacks it.
func (s *RateSnapshot) Rate(currency string) (float64, bool) {
	currency = NormalizeCurrency(currency)
	if currency == NormalizeCurrency(s.Base) {
		return 1, true
	}
	r, ok := s.Rates[currency]
	if !ok || r <= 0 {
		return 0, false
	}
	return r, true
}

// Age is how long ago the snapshot was acquired.
func (s *RateSnapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.FetchedAt)
}
