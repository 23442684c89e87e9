package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fleet-ledger/internal/db"
	"github.com/ukydev/fleet-ledger/internal/models"
)

var now = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

// mockResolver is a testify mock for RateResolver.
type mockResolver struct {
	mock.Mock
}

func (m *mockResolver) GetRate(ctx context.Context, currency string) (float64, error) {
	args := m.Called(ctx, currency)
	return args.Get(0).(float64), args.Error(1)
}

type fixture struct {
	svc   *Service
	rates *mockResolver
	store *db.MemoryStore
	hook  *test.Hook
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger, hook := test.NewNullLogger()
	store := db.NewMemoryStore()
	resolver := &mockResolver{}
	svc := NewService(store, resolver, Options{Reporting: "TRY", Logger: logger})
	svc.SetClock(func() time.Time { return now })
	return &fixture{svc: svc, rates: resolver, store: store, hook: hook}
}

func (f *fixture) vehicle(t *testing.T, plate string) string {
	t.Helper()
	v, err := f.svc.CreateVehicle(context.Background(), VehicleDraft{Plate: plate, Name: plate})
	require.NoError(t, err)
	return v.ID.Hex()
}

func (f *fixture) trip(t *testing.T, vehicleID string, status models.TripStatus) string {
	t.Helper()
	trip, err := f.svc.CreateTrip(context.Background(), TripDraft{
		VehicleID: vehicleID,
		Title:     "Istanbul - Ankara",
		StartDate: now.AddDate(0, 0, -3),
	})
	require.NoError(t, err)
	if status == models.TripStatusClosed {
		trip, err = f.svc.CloseTrip(context.Background(), trip.ID.Hex(), nil)
		require.NoError(t, err)
	}
	return trip.ID.Hex()
}

func draft(vehicleID string, typ models.EntryType, amount float64, currency string) EntryDraft {
	return EntryDraft{
		VehicleID:    vehicleID,
		CategoryID:   "fuel",
		Type:         typ,
		Date:         now,
		Amount:       amount,
		CurrencyCode: currency,
		Status:       models.EntryStatusPending,
	}
}

func ptr[T any](v T) *T { return &v }
