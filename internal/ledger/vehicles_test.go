package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fleet-ledger/internal/models"
)

func TestCreateVehicle(t *testing.T) {
	f := newFixture(t)

	v, err := f.svc.CreateVehicle(context.Background(), VehicleDraft{Plate: " 34  abc   01 ", Name: "Actros"})
	require.NoError(t, err)
	assert.Equal(t, "34 ABC 01", v.Plate)
	assert.Equal(t, "Actros", v.Name)

	_, err = f.svc.CreateVehicle(context.Background(), VehicleDraft{Plate: "   "})
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestUpdateVehicle(t *testing.T) {
	f := newFixture(t)
	id := f.vehicle(t, "34 ABC 01")

	expiry := now.AddDate(1, 0, 0)
	v, err := f.svc.UpdateVehicle(context.Background(), id, VehiclePatch{
		Name:            ptr("Atego"),
		InsuranceExpiry: &expiry,
	})
	require.NoError(t, err)
	assert.Equal(t, "Atego", v.Name)
	assert.Equal(t, "34 ABC 01", v.Plate)
	require.NotNil(t, v.InsuranceExpiry)
	assert.True(t, v.InsuranceExpiry.Equal(expiry))

	_, err = f.svc.UpdateVehicle(context.Background(), id, VehiclePatch{Plate: ptr("")})
	assert.True(t, errors.Is(err, ErrValidation))

	_, err = f.svc.UpdateVehicle(context.Background(), "000000000000000000000000", VehiclePatch{Name: ptr("x")})
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestListAndDeleteVehicles(t *testing.T) {
	f := newFixture(t)
	f.vehicle(t, "35 ZZ 10")
	id := f.vehicle(t, "06 AA 20")
	f.vehicle(t, "34 KL 30")

	vehicles, err := f.svc.ListVehicles(context.Background())
	require.NoError(t, err)
	var plates []string
	for _, v := range vehicles {
		plates = append(plates, v.Plate)
	}
	assert.Equal(t, []string{"06 AA 20", "34 KL 30", "35 ZZ 10"}, plates)

	require.NoError(t, f.svc.DeleteVehicle(context.Background(), id))
	_, err = f.svc.GetVehicle(context.Background(), id)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestDocuments(t *testing.T) {
	f := newFixture(t)

	in := func(days int) *models.Vehicle {
		insurance := now.AddDate(0, 0, days)
		return &models.Vehicle{Plate: "34 ABC 01", InsuranceExpiry: &insurance}
	}

	tests := []struct {
		days  int
		level models.ExpiryLevel
	}{
		{-1, models.ExpiryExpired},
		{0, models.ExpiryDanger},
		{7, models.ExpiryDanger},
		{8, models.ExpiryWarning},
		{30, models.ExpiryWarning},
		{31, models.ExpirySafe},
	}
	for _, tt := range tests {
		docs := f.svc.Documents(in(tt.days))
		assert.Equal(t, tt.level, docs.Insurance.Level, "days=%d", tt.days)
		assert.Equal(t, tt.days, docs.Insurance.RemainingDays)
		assert.Equal(t, models.ExpiryExpired, docs.Inspection.Level, "a missing date counts as expired")
	}
}
