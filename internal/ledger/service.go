package ledger

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-ledger/internal/db"
	"github.com/ukydev/fleet-ledger/internal/models"
)

// RateResolver returns how many reporting-currency units one unit of currency
// is worth. *rates.Provider satisfies it.
type RateResolver interface {
	GetRate(ctx context.Context, currency string) (float64, error)
}

// Options configures a Service.
type Options struct {
	// Reporting is the currency every entry is reconciled to. Defaults to TRY.
	Reporting string
	// Location is used for calendar-day comparisons. Defaults to UTC.
	Location *time.Location
	Logger   log.FieldLogger
}

// Service records vehicles, trips and ledger entries on a Store.
type Service struct {
	vehicles  *db.Collection[models.Vehicle]
	trips     *db.Collection[models.Trip]
	entries   *db.Collection[models.Entry]
	rates     RateResolver
	reporting string
	location  *time.Location
	logger    log.FieldLogger
	now       func() time.Time
}

// NewService wires a ledger service over store.
func NewService(store db.Store, resolver RateResolver, opts Options) *Service {
	s := &Service{
		vehicles:  db.NewCollection[models.Vehicle](store, db.CollectionVehicles),
		trips:     db.NewCollection[models.Trip](store, db.CollectionTrips),
		entries:   db.NewCollection[models.Entry](store, db.CollectionEntries),
		rates:     resolver,
		reporting: models.NormalizeCurrency(opts.Reporting),
		location:  opts.Location,
		logger:    opts.Logger,
		now:       time.Now,
	}
	if s.reporting == "" {
		s.reporting = "TRY"
	}
	if s.location == nil {
		s.location = time.UTC
	}
	if s.logger == nil {
		s.logger = log.StandardLogger()
	}
	s.logger = s.logger.WithField("component", "ledger")
	return s
}

// SetClock replaces the time source used for default dates.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// ReportingCurrency returns the currency entries are reconciled to.
func (s *Service) ReportingCurrency() string { return s.reporting }

// Location returns the zone used for calendar computations.
func (s *Service) Location() *time.Location { return s.location }
