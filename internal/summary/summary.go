// Package summary computes reporting-currency totals and breakdowns over
// ledger entries.
//
// Totals come from server-side aggregates. Breakdowns by an unbounded
// dimension (category, month, vehicle) fetch the filtered entries once and
// group them in memory. Both paths agree on the same input.
package summary

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-ledger/internal/db"
	"github.com/ukydev/fleet-ledger/internal/ledger"
	"github.com/ukydev/fleet-ledger/internal/models"
)

// Uncategorized is the category key of entries without a category.
const Uncategorized = "uncategorized"

// DefaultActivityDays is the window used by RecentActivity when none is given.
const DefaultActivityDays = 30

// TotalScale is the number of decimal places every reported total is rounded
// to, so server aggregates and in-memory reductions agree exactly.
const TotalScale = 4

// amount converts a decimal total to the reported float.
func amount(d decimal.Decimal) float64 {
	return d.Round(TotalScale).InexactFloat64()
}

// Totals is income, expense and net in the reporting currency.
type Totals struct {
	Income  float64 `json:"income"`
	Expense float64 `json:"expense"`
	Net     float64 `json:"net"`
	Count   int64   `json:"count"`
}

// CategoryGroup is one (category, type) bucket of a breakdown. Percentage is the
// group's share of its own type's total.
type CategoryGroup struct {
	Key        string           `json:"key"`
	CategoryID string           `json:"category_id"`
	Type       models.EntryType `json:"type"`
	Total      float64          `json:"total"`
	Percentage float64          `json:"percentage"`
	Count      int              `json:"count"`
}

// MonthBucket holds one calendar month of a yearly summary. Month is 1-12.
type MonthBucket struct {
	Month   int     `json:"month"`
	Income  float64 `json:"income"`
	Expense float64 `json:"expense"`
	Net     float64 `json:"net"`
}

// Yearly is the month-by-month summary of one year.
type Yearly struct {
	Year              int           `json:"year"`
	ReportingCurrency string        `json:"reporting_currency"`
	Months            []MonthBucket `json:"months"`
	Totals            Totals        `json:"totals"`
}

// VehicleTotals is the income, expense and net of a single vehicle.
type VehicleTotals struct {
	VehicleID string  `json:"vehicle_id"`
	Plate     string  `json:"plate,omitempty"`
	Name      string  `json:"name,omitempty"`
	Income    float64 `json:"income"`
	Expense   float64 `json:"expense"`
	Net       float64 `json:"net"`
	Count     int     `json:"count"`
}

// TripTotals is a trip together with the totals of its entries.
type TripTotals struct {
	Trip   *models.Trip `json:"trip"`
	Totals Totals       `json:"totals"`
}

// Engine answers summary queries against the ledger.
type Engine struct {
	ledger   *ledger.Service
	location *time.Location
	now      func() time.Time
	logger   log.FieldLogger
}

// NewEngine creates an Engine over svc. Calendar boundaries (months, days) use
// the service location.
func NewEngine(svc *ledger.Service, logger log.FieldLogger) *Engine {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Engine{
		ledger:   svc,
		location: svc.Location(),
		now:      time.Now,
		logger:   logger.WithField("component", "summary"),
	}
}

// SetClock replaces the clock used for relative windows.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// Totals sums amount_reporting per type with one server aggregate each.
func (e *Engine) Totals(ctx context.Context, filter ledger.EntryFilter) (*Totals, error) {
	entries := e.ledger.Entries()
	spec := db.AggregateSpec{Count: true, Sum: models.EntryFieldAmountReporting}

	income, err := entries.Aggregate(ctx, filter.WithType(models.EntryTypeIncome).Filters(), spec)
	if err != nil {
		return nil, fmt.Errorf("income total: %w", err)
	}
	expense, err := entries.Aggregate(ctx, filter.WithType(models.EntryTypeExpense).Filters(), spec)
	if err != nil {
		return nil, fmt.Errorf("expense total: %w", err)
	}

	in := decimal.NewFromFloat(income.SumOrZero()).Round(TotalScale)
	out := decimal.NewFromFloat(expense.SumOrZero()).Round(TotalScale)
	return &Totals{
		Income:  amount(in),
		Expense: amount(out),
		Net:     amount(in.Sub(out)),
		Count:   income.CountOrZero() + expense.CountOrZero(),
	}, nil
}

// Reduce computes Totals from entries already in memory.
func Reduce(entries []models.Entry) Totals {
	var acc accumulator
	for i := range entries {
		acc.add(&entries[i])
	}
	t := acc.totals()
	return Totals{Income: t.Income, Expense: t.Expense, Net: t.Net, Count: int64(acc.count)}
}

// TripTotals returns the trip and the totals of the entries recorded on it.
func (e *Engine) TripTotals(ctx context.Context, tripID string) (*TripTotals, error) {
	trip, err := e.ledger.GetTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}
	totals, err := e.Totals(ctx, ledger.EntryFilter{TripID: tripID})
	if err != nil {
		return nil, err
	}
	return &TripTotals{Trip: trip, Totals: *totals}, nil
}

// Categories groups the filtered entries by category and type, largest total
// first. Groups with equal totals keep the order they were first seen in.
func (e *Engine) Categories(ctx context.Context, filter ledger.EntryFilter) ([]CategoryGroup, error) {
	entries, err := e.ledger.FindEntries(ctx, filter)
	if err != nil {
		return nil, err
	}
	return GroupByCategory(entries), nil
}

// GroupByCategory is the in-memory reduction behind Categories.
func GroupByCategory(entries []models.Entry) []CategoryGroup {
	type bucket struct {
		group CategoryGroup
		total decimal.Decimal
	}
	var order []*bucket
	byKey := make(map[string]*bucket)
	grand := map[models.EntryType]decimal.Decimal{}

	for i := range entries {
		entry := &entries[i]
		if !entry.Type.IsValid() {
			continue
		}
		category := entry.CategoryID
		if category == "" {
			category = Uncategorized
		}
		key := category + "_" + string(entry.Type)
		b, ok := byKey[key]
		if !ok {
			b = &bucket{group: CategoryGroup{Key: key, CategoryID: category, Type: entry.Type}}
			byKey[key] = b
			order = append(order, b)
		}
		value := decimal.NewFromFloat(entry.AmountReporting)
		b.total = b.total.Add(value)
		b.group.Count++
		grand[entry.Type] = grand[entry.Type].Add(value)
	}

	groups := make([]CategoryGroup, 0, len(order))
	for _, b := range order {
		g := b.group
		g.Total = amount(b.total)
		g.Percentage = percentage(b.total, grand[g.Type])
		groups = append(groups, g)
	}
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].Total > groups[j].Total
	})
	return groups
}

// percentage returns part/whole*100, or 0 when whole is zero.
func percentage(part, whole decimal.Decimal) float64 {
	if whole.IsZero() {
		return 0
	}
	return part.Div(whole).Mul(decimal.NewFromInt(100)).InexactFloat64()
}

// Monthly returns the twelve months of year in the engine location. Months
// without activity are present with zero values.
func (e *Engine) Monthly(ctx context.Context, year int, filter ledger.EntryFilter) (*Yearly, error) {
	if year < 1 {
		return nil, fmt.Errorf("%w: year %d", ledger.ErrValidation, year)
	}
	filter.From = time.Date(year, time.January, 1, 0, 0, 0, 0, e.location)
	filter.To = filter.From.AddDate(1, 0, 0)

	entries, err := e.ledger.FindEntries(ctx, filter)
	if err != nil {
		return nil, err
	}
	yearly := GroupByMonth(entries, year, e.location)
	yearly.ReportingCurrency = e.ledger.ReportingCurrency()
	return yearly, nil
}

// GroupByMonth is the in-memory reduction behind Monthly. Entries outside year
// are ignored.
func GroupByMonth(entries []models.Entry, year int, loc *time.Location) *Yearly {
	if loc == nil {
		loc = time.UTC
	}
	var months [12]accumulator
	var all accumulator
	for i := range entries {
		entry := &entries[i]
		date := entry.Date.In(loc)
		if date.Year() != year {
			continue
		}
		months[date.Month()-1].add(entry)
		all.add(entry)
	}

	yearly := &Yearly{Year: year, Months: make([]MonthBucket, 12)}
	for i := range months {
		t := months[i].totals()
		yearly.Months[i] = MonthBucket{Month: i + 1, Income: t.Income, Expense: t.Expense, Net: t.Net}
	}
	yearly.Totals = all.totals()
	yearly.Totals.Count = int64(all.count)
	return yearly
}

// Vehicles ranks every known vehicle by net over the filtered entries, best
// first. Idle vehicles appear with zero totals; entries of unknown vehicles are
// reported under their vehicle id.
func (e *Engine) Vehicles(ctx context.Context, filter ledger.EntryFilter) ([]VehicleTotals, error) {
	vehicles, err := e.ledger.ListVehicles(ctx)
	if err != nil {
		return nil, err
	}
	entries, err := e.ledger.FindEntries(ctx, filter)
	if err != nil {
		return nil, err
	}

	ranked := GroupByVehicle(vehicles, entries)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Net > ranked[j].Net
	})
	return ranked, nil
}

// GroupByVehicle totals entries per vehicle, in vehicle order followed by
// vehicles only seen in entries.
func GroupByVehicle(vehicles []models.Vehicle, entries []models.Entry) []VehicleTotals {
	var order []string
	meta := make(map[string]models.Vehicle, len(vehicles))
	acc := make(map[string]*accumulator, len(vehicles))
	for _, v := range vehicles {
		id := v.ID.Hex()
		meta[id] = v
		acc[id] = &accumulator{}
		order = append(order, id)
	}
	for i := range entries {
		entry := &entries[i]
		a, ok := acc[entry.VehicleID]
		if !ok {
			a = &accumulator{}
			acc[entry.VehicleID] = a
			order = append(order, entry.VehicleID)
		}
		a.add(entry)
	}

	out := make([]VehicleTotals, 0, len(order))
	for _, id := range order {
		t := acc[id].totals()
		v := meta[id]
		out = append(out, VehicleTotals{
			VehicleID: id,
			Plate:     v.Plate,
			Name:      v.Name,
			Income:    t.Income,
			Expense:   t.Expense,
			Net:       t.Net,
			Count:     acc[id].count,
		})
	}
	return out
}

// RecentActivity returns per-vehicle totals of the entries dated from the
// start of the day days ago onwards, keyed by vehicle id. Vehicles without
// entries in the window are absent.
func (e *Engine) RecentActivity(ctx context.Context, days int) (map[string]VehicleTotals, error) {
	if days <= 0 {
		days = DefaultActivityDays
	}
	since := startOfDay(e.now().In(e.location).AddDate(0, 0, -days))
	entries, err := e.ledger.FindEntries(ctx, ledger.EntryFilter{From: since})
	if err != nil {
		return nil, err
	}

	activity := make(map[string]VehicleTotals)
	for _, t := range GroupByVehicle(nil, entries) {
		activity[t.VehicleID] = t
	}
	e.logger.WithFields(log.Fields{
		"since":    since,
		"entries":  len(entries),
		"vehicles": len(activity),
	}).Debug("Computed recent activity")
	return activity, nil
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// accumulator sums reporting amounts per type with decimal arithmetic.
type accumulator struct {
	income  decimal.Decimal
	expense decimal.Decimal
	count   int
}

func (a *accumulator) add(e *models.Entry) {
	value := decimal.NewFromFloat(e.AmountReporting)
	switch e.Type {
	case models.EntryTypeIncome:
		a.income = a.income.Add(value)
	case models.EntryTypeExpense:
		a.expense = a.expense.Add(value)
	default:
		return
	}
	a.count++
}

func (a *accumulator) totals() Totals {
	in := a.income.Round(TotalScale)
	out := a.expense.Round(TotalScale)
	return Totals{
		Income:  amount(in),
		Expense: amount(out),
		Net:     amount(in.Sub(out)),
	}
}
