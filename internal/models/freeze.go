package models

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
)

var (
	ErrNonPositiveAmount = errors.New("amount must be greater than zero")
	ErrNonPositiveRate   = errors.New("exchange rate must be greater than zero")
	ErrMissingCurrency   = errors.New("currency code is required")
)

// FrozenAmount is an original-currency amount together with the exchange rate
// captured when it was recorded and the resulting reporting-currency value.
type FrozenAmount struct {
	Amount       float64
	CurrencyCode string
	Rate         float64
	Reporting    float64
}

// Freeze pins rate to amount. When currency is the reporting currency the rate
// is forced to exactly 1 regardless of the rate passed in.
func Freeze(amount float64, currency, reporting string, rate float64) (FrozenAmount, error) {
	currency = NormalizeCurrency(currency)
	if currency == "" {
		return FrozenAmount{}, ErrMissingCurrency
	}
	if !finite(amount) || amount <= 0 {
		return FrozenAmount{}, ErrNonPositiveAmount
	}
	if currency == NormalizeCurrency(reporting) {
		rate = 1
	}
	if !finite(rate) || rate <= 0 {
		return FrozenAmount{}, fmt.Errorf("%w: %s=%v", ErrNonPositiveRate, currency, rate)
	}

	product := decimal.NewFromFloat(amount).Mul(decimal.NewFromFloat(rate))
	return FrozenAmount{
		Amount:       amount,
		CurrencyCode: currency,
		Rate:         rate,
		Reporting:    product.InexactFloat64(),
	}, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Fields returns the document fields a FrozenAmount owns. Partial updates must
// write all four together.
func (f FrozenAmount) Fields() bson.M {
	return bson.M{
		EntryFieldAmount:          f.Amount,
		EntryFieldCurrencyCode:    f.CurrencyCode,
		EntryFieldFrozenRate:      f.Rate,
		EntryFieldAmountReporting: f.Reporting,
	}
}

// NormalizeCurrency upper-cases and trims an ISO 4217 code.
func NormalizeCurrency(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
