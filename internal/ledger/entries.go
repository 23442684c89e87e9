package ledger

import (
	"context"
	"math"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-ledger/internal/db"
	"github.com/ukydev/fleet-ledger/internal/models"
)

// EntryDraft is the input for a new entry. ManualRate, when positive, is
// frozen verbatim instead of looking the rate up.
type EntryDraft struct {
	VehicleID     string             `json:"vehicle_id"`
	TripID        string             `json:"trip_id,omitempty"`
	CategoryID    string             `json:"category_id"`
	Type          models.EntryType   `json:"type"`
	Date          time.Time          `json:"date"`
	Description   string             `json:"description,omitempty"`
	Amount        float64            `json:"amount"`
	CurrencyCode  string             `json:"currency_code"`
	ManualRate    float64            `json:"manual_rate,omitempty"`
	Status        models.EntryStatus `json:"status"`
	PaymentMethod string             `json:"payment_method,omitempty"`
}

// EntryPatch changes selected fields of an entry. A nil field is left alone;
// an empty TripID detaches the entry from its trip.
type EntryPatch struct {
	VehicleID     *string             `json:"vehicle_id,omitempty"`
	TripID        *string             `json:"trip_id,omitempty"`
	CategoryID    *string             `json:"category_id,omitempty"`
	Type          *models.EntryType   `json:"type,omitempty"`
	Date          *time.Time          `json:"date,omitempty"`
	Description   *string             `json:"description,omitempty"`
	Amount        *float64            `json:"amount,omitempty"`
	CurrencyCode  *string             `json:"currency_code,omitempty"`
	ManualRate    *float64            `json:"manual_rate,omitempty"`
	Status        *models.EntryStatus `json:"status,omitempty"`
	PaymentMethod *string             `json:"payment_method,omitempty"`
}

// EntryFilter narrows entry listings and summaries. Zero fields are ignored;
// From is inclusive and To exclusive.
type EntryFilter struct {
	VehicleID  string
	TripID     string
	CategoryID string
	Type       models.EntryType
	Status     models.EntryStatus
	From       time.Time
	To         time.Time
}

// Filters converts f into store filters.
func (f EntryFilter) Filters() []db.Filter {
	var out []db.Filter
	if f.VehicleID != "" {
		out = append(out, db.Eq(models.EntryFieldVehicleID, f.VehicleID))
	}
	if f.TripID != "" {
		out = append(out, db.Eq(models.EntryFieldTripID, f.TripID))
	}
	if f.CategoryID != "" {
		out = append(out, db.Eq(models.EntryFieldCategoryID, f.CategoryID))
	}
	if f.Type != "" {
		out = append(out, db.Eq(models.EntryFieldType, string(f.Type)))
	}
	if f.Status != "" {
		out = append(out, db.Eq(models.EntryFieldStatus, string(f.Status)))
	}
	if !f.From.IsZero() {
		out = append(out, db.Gte(models.EntryFieldDate, f.From))
	}
	if !f.To.IsZero() {
		out = append(out, db.Lt(models.EntryFieldDate, f.To))
	}
	return out
}

// WithType returns a copy of f restricted to type t.
func (f EntryFilter) WithType(t models.EntryType) EntryFilter {
	f.Type = t
	return f
}

// EntrySort lists entries newest first; the store breaks same-date ties by
// write order.
var EntrySort = db.Sort{Field: models.EntryFieldDate, Desc: true}

func validAmount(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

func validCurrency(code string) bool {
	if len(code) != 3 {
		return false
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// validateEntry checks the fields every stored entry must satisfy.
func validateEntry(e *models.Entry) error {
	switch {
	case strings.TrimSpace(e.VehicleID) == "":
		return invalid("vehicle_id", "is required")
	case strings.TrimSpace(e.CategoryID) == "":
		return invalid("category_id", "is required")
	case !e.Type.IsValid():
		return invalid("type", "must be INCOME or EXPENSE")
	case e.Date.IsZero():
		return invalid("date", "is required")
	case !validAmount(e.Amount):
		return invalid("amount", "must be greater than zero")
	case !validCurrency(e.CurrencyCode):
		return invalid("currency_code", "must be a three-letter ISO code")
	case !e.Status.IsValid():
		return invalid("status", "must be PENDING or PAID")
	case e.Status == models.EntryStatusPaid && strings.TrimSpace(e.PaymentMethod) == "":
		return invalid("payment_method", "is required when status is PAID")
	}
	return nil
}

func validateManualRate(rate float64) error {
	if rate < 0 || math.IsInf(rate, 0) || math.IsNaN(rate) {
		return invalid("manual_rate", "must be greater than zero")
	}
	return nil
}

// resolveRate picks the rate to freeze: 1 for the reporting currency, the
// manual rate when given, otherwise a fresh lookup.
func (s *Service) resolveRate(ctx context.Context, currency string, manual float64) (float64, error) {
	if currency == s.reporting {
		return 1, nil
	}
	if manual > 0 {
		return manual, nil
	}
	if s.rates == nil {
		return 0, rateUnavailable(currency, errNoResolver)
	}
	rate, err := s.rates.GetRate(ctx, currency)
	if err != nil {
		return 0, rateUnavailable(currency, err)
	}
	if !validAmount(rate) {
		return 0, rateUnavailable(currency, models.ErrNonPositiveRate)
	}
	return rate, nil
}

// freeze resolves a rate and applies it to e. It is the only place entries
// get amount, rate and reporting amount.
func (s *Service) freeze(ctx context.Context, e *models.Entry, manual float64) error {
	rate, err := s.resolveRate(ctx, e.CurrencyCode, manual)
	if err != nil {
		return err
	}
	frozen, err := models.Freeze(e.Amount, e.CurrencyCode, s.reporting, rate)
	if err != nil {
		return invalid("amount", err.Error())
	}
	e.Apply(frozen)
	return nil
}

// CreateEntry validates draft, enforces the trip guard, freezes the exchange
// rate and stores the entry. Nothing is written when any step fails.
func (s *Service) CreateEntry(ctx context.Context, draft EntryDraft) (*models.Entry, error) {
	entry := &models.Entry{
		VehicleID:     strings.TrimSpace(draft.VehicleID),
		TripID:        strings.TrimSpace(draft.TripID),
		CategoryID:    strings.TrimSpace(draft.CategoryID),
		Type:          draft.Type,
		Date:          draft.Date,
		Description:   strings.TrimSpace(draft.Description),
		Amount:        draft.Amount,
		CurrencyCode:  models.NormalizeCurrency(draft.CurrencyCode),
		Status:        draft.Status,
		PaymentMethod: strings.TrimSpace(draft.PaymentMethod),
	}
	if entry.Status == models.EntryStatusPending {
		entry.PaymentMethod = ""
	}
	if err := validateEntry(entry); err != nil {
		return nil, err
	}
	if err := validateManualRate(draft.ManualRate); err != nil {
		return nil, err
	}

	if entry.TripID != "" {
		if _, err := s.EnsureTripAcceptsEntries(ctx, entry.TripID, entry.VehicleID); err != nil {
			return nil, err
		}
	}
	if err := s.freeze(ctx, entry, draft.ManualRate); err != nil {
		return nil, err
	}

	id, err := s.entries.Create(ctx, *entry)
	if err != nil {
		return nil, err
	}
	s.logger.WithFields(log.Fields{
		"entry_id":         id,
		"vehicle_id":       entry.VehicleID,
		"trip_id":          entry.TripID,
		"currency":         entry.CurrencyCode,
		"frozen_rate":      entry.FrozenRate,
		"amount_reporting": entry.AmountReporting,
	}).Info("Entry created")
	return s.GetEntry(ctx, id)
}

// GetEntry returns the entry or an error matching ErrNotFound.
func (s *Service) GetEntry(ctx context.Context, id string) (*models.Entry, error) {
	entry, err := s.entries.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, notFound("entry", id)
	}
	return entry, nil
}

// UpdateEntry applies patch. Changing the amount or currency, or supplying a
// manual rate, re-resolves and re-freezes the rate; otherwise the frozen rate
// and reporting amount are left as stored. Entries of closed trips stay
// editable, but an entry can only be moved onto an open trip.
func (s *Service) UpdateEntry(ctx context.Context, id string, patch EntryPatch) (*models.Entry, error) {
	if patch.ManualRate != nil {
		if err := validateManualRate(*patch.ManualRate); err != nil {
			return nil, err
		}
	}
	if patch.Amount != nil && !validAmount(*patch.Amount) {
		return nil, invalid("amount", "must be greater than zero")
	}

	current, err := s.GetEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	next := *current
	fields := db.Document{}

	if patch.VehicleID != nil {
		next.VehicleID = strings.TrimSpace(*patch.VehicleID)
		fields[models.EntryFieldVehicleID] = next.VehicleID
	}
	if patch.TripID != nil {
		next.TripID = strings.TrimSpace(*patch.TripID)
		if next.TripID == "" {
			fields[models.EntryFieldTripID] = nil
		} else {
			fields[models.EntryFieldTripID] = next.TripID
		}
	}
	if patch.CategoryID != nil {
		next.CategoryID = strings.TrimSpace(*patch.CategoryID)
		fields[models.EntryFieldCategoryID] = next.CategoryID
	}
	if patch.Type != nil {
		next.Type = *patch.Type
		fields[models.EntryFieldType] = string(next.Type)
	}
	if patch.Date != nil {
		next.Date = *patch.Date
		fields[models.EntryFieldDate] = next.Date
	}
	if patch.Description != nil {
		next.Description = strings.TrimSpace(*patch.Description)
		if next.Description == "" {
			fields[models.EntryFieldDescription] = nil
		} else {
			fields[models.EntryFieldDescription] = next.Description
		}
	}
	if patch.Status != nil {
		next.Status = *patch.Status
		fields[models.EntryFieldStatus] = string(next.Status)
	}
	if patch.PaymentMethod != nil {
		next.PaymentMethod = strings.TrimSpace(*patch.PaymentMethod)
	}
	if next.Status == models.EntryStatusPending {
		next.PaymentMethod = ""
	}
	if next.PaymentMethod != current.PaymentMethod {
		if next.PaymentMethod == "" {
			fields[models.EntryFieldPaymentMethod] = nil
		} else {
			fields[models.EntryFieldPaymentMethod] = next.PaymentMethod
		}
	}
	if patch.Amount != nil {
		next.Amount = *patch.Amount
	}
	if patch.CurrencyCode != nil {
		next.CurrencyCode = models.NormalizeCurrency(*patch.CurrencyCode)
	}
	if err := validateEntry(&next); err != nil {
		return nil, err
	}

	tripChanged := next.TripID != "" && next.TripID != current.TripID
	vehicleChanged := next.VehicleID != current.VehicleID
	switch {
	case tripChanged:
		if _, err := s.EnsureTripAcceptsEntries(ctx, next.TripID, next.VehicleID); err != nil {
			return nil, err
		}
	case vehicleChanged && next.TripID != "":
		if _, err := s.tripOfVehicle(ctx, next.TripID, next.VehicleID); err != nil {
			return nil, err
		}
	}

	manual := 0.0
	if patch.ManualRate != nil {
		manual = *patch.ManualRate
	}
	refreeze := next.Amount != current.Amount || next.CurrencyCode != current.CurrencyCode || manual > 0
	if refreeze {
		if err := s.freeze(ctx, &next, manual); err != nil {
			return nil, err
		}
		for k, v := range next.Frozen().Fields() {
			fields[k] = v
		}
	}

	if len(fields) > 0 {
		if err := s.entries.Update(ctx, id, fields); err != nil {
			return nil, err
		}
	}
	s.logger.WithFields(log.Fields{
		"entry_id": id,
		"refrozen": refreeze,
		"fields":   len(fields),
	}).Info("Entry updated")
	return s.GetEntry(ctx, id)
}

// DeleteEntry removes the entry regardless of its trip's status. Deleting a
// missing entry is not an error.
func (s *Service) DeleteEntry(ctx context.Context, id string) error {
	if err := s.entries.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.WithField("entry_id", id).Info("Entry deleted")
	return nil
}

// ListEntries returns one page of entries, newest first.
func (s *Service) ListEntries(ctx context.Context, filter EntryFilter, pageSize int, cursor string) (*db.TypedPage[models.Entry], error) {
	return s.entries.Page(ctx, db.Query{Filters: filter.Filters(), Sort: EntrySort}, pageSize, cursor)
}

// FindEntries returns every entry matching filter, newest first.
func (s *Service) FindEntries(ctx context.Context, filter EntryFilter) ([]models.Entry, error) {
	return s.entries.Find(ctx, db.Query{Filters: filter.Filters(), Sort: EntrySort})
}

// Entries exposes the entry collection to read-side components.
func (s *Service) Entries() *db.Collection[models.Entry] { return s.entries }
