package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fleet-ledger/internal/db"
	"github.com/ukydev/fleet-ledger/internal/ledger"
	"github.com/ukydev/fleet-ledger/internal/middleware"
	"github.com/ukydev/fleet-ledger/internal/models"
	"github.com/ukydev/fleet-ledger/internal/summary"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var now = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

// fixedRates resolves from a static table; unknown currencies are
// unavailable.
type fixedRates map[string]float64

func (f fixedRates) GetRate(_ context.Context, currency string) (float64, error) {
	if rate, ok := f[currency]; ok {
		return rate, nil
	}
	return 0, fmt.Errorf("%w: %s", ledger.ErrRateUnavailable, currency)
}

func (f fixedRates) ReportingCurrency() string { return "TRY" }

// MockSummaryService is a testify mock for SummaryService.
type MockSummaryService struct {
	mock.Mock
}

func (m *MockSummaryService) Totals(ctx context.Context, filter ledger.EntryFilter) (*summary.Totals, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*summary.Totals), args.Error(1)
}

func (m *MockSummaryService) TripTotals(ctx context.Context, tripID string) (*summary.TripTotals, error) {
	args := m.Called(ctx, tripID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*summary.TripTotals), args.Error(1)
}

func (m *MockSummaryService) Categories(ctx context.Context, filter ledger.EntryFilter) ([]summary.CategoryGroup, error) {
	args := m.Called(ctx, filter)
	groups, _ := args.Get(0).([]summary.CategoryGroup)
	return groups, args.Error(1)
}

func (m *MockSummaryService) Monthly(ctx context.Context, year int, filter ledger.EntryFilter) (*summary.Yearly, error) {
	args := m.Called(ctx, year, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*summary.Yearly), args.Error(1)
}

func (m *MockSummaryService) Vehicles(ctx context.Context, filter ledger.EntryFilter) ([]summary.VehicleTotals, error) {
	args := m.Called(ctx, filter)
	ranked, _ := args.Get(0).([]summary.VehicleTotals)
	return ranked, args.Error(1)
}

func (m *MockSummaryService) RecentActivity(ctx context.Context, days int) (map[string]summary.VehicleTotals, error) {
	args := m.Called(ctx, days)
	activity, _ := args.Get(0).(map[string]summary.VehicleTotals)
	return activity, args.Error(1)
}

type api struct {
	t       *testing.T
	handler http.Handler
	tokens  map[models.Role]string
	hook    *test.Hook
}

// newAPI serves the full router over an in-memory ledger. A nil summary
// service uses the real engine.
func newAPI(t *testing.T, summarySvc SummaryService) *api {
	t.Helper()
	logger, hook := test.NewNullLogger()
	store := db.NewMemoryStore()
	store.SetClock(func() time.Time { return now })
	rates := fixedRates{"USD": 40, "EUR": 45}

	svc := ledger.NewService(store, rates, ledger.Options{Reporting: "TRY", Logger: logger})
	svc.SetClock(func() time.Time { return now })
	if summarySvc == nil {
		engine := summary.NewEngine(svc, logger)
		engine.SetClock(func() time.Time { return now })
		summarySvc = engine
	}
	summaryHandler := NewSummaryHandler(summarySvc, time.UTC, logger)
	summaryHandler.now = func() time.Time { return now }

	authService := newAuthService(t)
	handler := NewRouter(Router{
		Auth:           NewAuthHandler(authService, db.NewUserCollection(store), logger),
		Vehicles:       NewVehicleHandler(svc, logger),
		Trips:          NewTripHandler(svc, logger),
		Entries:        NewEntryHandler(svc, PageOptions{Default: 10, Max: 3}, time.UTC, logger),
		Summary:        summaryHandler,
		Rates:          NewRateHandler(rates, logger),
		AuthMiddleware: middleware.NewAuthMiddleware(authService),
		Logger:         logger,
	})

	tokens := make(map[models.Role]string)
	for _, role := range []models.Role{models.RoleAdmin, models.RoleManager, models.RoleViewer} {
		token, err := authService.GenerateToken(&models.User{ID: primitive.NewObjectID(), Username: string(role), Role: role})
		require.NoError(t, err)
		tokens[role] = token
	}
	return &api{t: t, handler: handler, tokens: tokens, hook: hook}
}

func (a *api) do(role models.Role, method, path string, body any) *httptest.ResponseRecorder {
	a.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(a.t, err)
		reader = bytes.NewReader(data)
	}
	var req *http.Request
	if reader != nil {
		req = httptest.NewRequest(method, path, reader)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if role != "" {
		req.Header.Set("Authorization", "Bearer "+a.tokens[role])
	}
	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (a *api) vehicle(plate string) string {
	a.t.Helper()
	w := a.do(models.RoleAdmin, "POST", "/api/vehicles", map[string]any{"plate": plate, "name": "Truck " + plate})
	require.Equal(a.t, http.StatusCreated, w.Code, w.Body.String())
	return decode[VehicleResponse](a.t, w).ID.Hex()
}

func (a *api) trip(vehicleID string) string {
	a.t.Helper()
	w := a.do(models.RoleManager, "POST", "/api/trips", map[string]any{
		"vehicle_id": vehicleID,
		"title":      "Istanbul - Izmir",
		"start_date": "2026-03-01T08:00:00Z",
	})
	require.Equal(a.t, http.StatusCreated, w.Code, w.Body.String())
	return decode[models.Trip](a.t, w).ID.Hex()
}

func entryBody(vehicleID, tripID string, typ models.EntryType, amount float64, currency string) map[string]any {
	return map[string]any{
		"vehicle_id":    vehicleID,
		"trip_id":       tripID,
		"category_id":   "fuel",
		"type":          typ,
		"date":          "2026-03-10T10:00:00Z",
		"amount":        amount,
		"currency_code": currency,
		"status":        models.EntryStatusPending,
	}
}

func TestRouter_HealthAndAuthentication(t *testing.T) {
	a := newAPI(t, nil)

	w := a.do("", "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))

	assert.Equal(t, http.StatusUnauthorized, a.do("", "GET", "/api/entries", nil).Code)
	assert.Equal(t, http.StatusNotFound, a.do(models.RoleAdmin, "GET", "/api/nothing-here", nil).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, a.do(models.RoleAdmin, "PUT", "/api/entries", nil).Code)
}

func TestRouter_RolePermissions(t *testing.T) {
	a := newAPI(t, nil)
	vehicleID := a.vehicle("34ABC123")

	assert.Equal(t, http.StatusOK, a.do(models.RoleViewer, "GET", "/api/entries", nil).Code)
	assert.Equal(t, http.StatusOK, a.do(models.RoleViewer, "GET", "/api/summary/totals", nil).Code)
	assert.Equal(t, http.StatusForbidden,
		a.do(models.RoleViewer, "POST", "/api/entries", entryBody(vehicleID, "", models.EntryTypeIncome, 10, "TRY")).Code)
	assert.Equal(t, http.StatusForbidden,
		a.do(models.RoleViewer, "POST", "/api/vehicles", map[string]any{"plate": "06XYZ1"}).Code)
	assert.Equal(t, http.StatusCreated,
		a.do(models.RoleManager, "POST", "/api/entries", entryBody(vehicleID, "", models.EntryTypeIncome, 10, "TRY")).Code)
}

func TestRouter_EntryLifecycle(t *testing.T) {
	a := newAPI(t, nil)
	vehicleID := a.vehicle("34ABC123")
	tripID := a.trip(vehicleID)

	w := a.do(models.RoleManager, "POST", "/api/entries", entryBody(vehicleID, tripID, models.EntryTypeIncome, 100, "usd"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	entry := decode[models.Entry](t, w)
	assert.Equal(t, "USD", entry.CurrencyCode)
	assert.Equal(t, 40.0, entry.FrozenRate)
	assert.Equal(t, 4000.0, entry.AmountReporting)

	w = a.do(models.RoleManager, "GET", "/api/entries/"+entry.ID.Hex(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, entry.ID, decode[models.Entry](t, w).ID)

	w = a.do(models.RoleManager, "PATCH", "/api/entries/"+entry.ID.Hex(), map[string]any{"amount": 50})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 2000.0, decode[models.Entry](t, w).AmountReporting)

	w = a.do(models.RoleManager, "POST", "/api/trips/"+tripID+"/close", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, models.TripStatusClosed, decode[models.Trip](t, w).Status)

	w = a.do(models.RoleManager, "POST", "/api/entries", entryBody(vehicleID, tripID, models.EntryTypeExpense, 5, "TRY"))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "trip_closed", decode[ErrorResponse](t, w).Kind)

	w = a.do(models.RoleManager, "POST", "/api/trips/"+tripID+"/close", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "invalid_transition", decode[ErrorResponse](t, w).Kind)

	w = a.do(models.RoleManager, "POST", "/api/trips/"+tripID+"/reopen", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, decode[models.Trip](t, w).EndDate)

	w = a.do(models.RoleManager, "POST", "/api/entries", entryBody(vehicleID, tripID, models.EntryTypeExpense, 5, "TRY"))
	assert.Equal(t, http.StatusCreated, w.Code)

	w = a.do(models.RoleManager, "GET", "/api/trips/"+tripID+"/totals", nil)
	require.Equal(t, http.StatusOK, w.Code)
	totals := decode[summary.TripTotals](t, w)
	assert.Equal(t, 2000.0, totals.Totals.Income)
	assert.Equal(t, 5.0, totals.Totals.Expense)
	assert.Equal(t, int64(2), totals.Totals.Count)

	assert.Equal(t, http.StatusNoContent, a.do(models.RoleManager, "DELETE", "/api/entries/"+entry.ID.Hex(), nil).Code)
	assert.Equal(t, http.StatusNotFound, a.do(models.RoleManager, "GET", "/api/entries/"+entry.ID.Hex(), nil).Code)
}

func TestRouter_ErrorMapping(t *testing.T) {
	a := newAPI(t, nil)
	vehicleID := a.vehicle("34ABC123")

	w := a.do(models.RoleManager, "POST", "/api/entries", entryBody(vehicleID, "", models.EntryTypeIncome, -5, "TRY"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := decode[ErrorResponse](t, w)
	assert.Equal(t, "validation", resp.Kind)
	assert.Equal(t, "amount", resp.Field)
	assert.NotEmpty(t, resp.RequestID)

	w = a.do(models.RoleManager, "POST", "/api/entries", entryBody(vehicleID, "", models.EntryTypeIncome, 5, "JPY"))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "rate_unavailable", decode[ErrorResponse](t, w).Kind)

	w = a.do(models.RoleManager, "GET", "/api/entries?page_size=0", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(models.RoleManager, "GET", "/api/entries?type=TRANSFER", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(models.RoleManager, "GET", "/api/entries?from=2026-03-10&to=2026-03-01", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(models.RoleManager, "GET", "/api/entries?cursor=not-a-cursor", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(models.RoleManager, "GET", "/api/trips/"+primitive.NewObjectID().Hex(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", decode[ErrorResponse](t, w).Kind)

	req := httptest.NewRequest("POST", "/api/trips", bytes.NewBufferString("{"))
	req.Header.Set("Authorization", "Bearer "+a.tokens[models.RoleManager])
	w = httptest.NewRecorder()
	a.handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouter_EntryPagination(t *testing.T) {
	a := newAPI(t, nil)
	vehicleID := a.vehicle("34ABC123")
	for i := 0; i < 7; i++ {
		body := entryBody(vehicleID, "", models.EntryTypeExpense, float64(i+1), "TRY")
		body["date"] = now.AddDate(0, 0, -i).Format(time.RFC3339)
		require.Equal(t, http.StatusCreated, a.do(models.RoleManager, "POST", "/api/entries", body).Code)
	}

	seen := make(map[primitive.ObjectID]bool)
	var dates []time.Time
	cursor := ""
	pages := 0
	for {
		path := "/api/entries?page_size=50&vehicle_id=" + vehicleID
		if cursor != "" {
			path += "&cursor=" + url.QueryEscape(cursor)
		}
		w := a.do(models.RoleViewer, "GET", path, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		page := decode[db.TypedPage[models.Entry]](t, w)
		pages++
		assert.LessOrEqual(t, len(page.Items), 3, "page size is clamped to the maximum")
		for _, e := range page.Items {
			assert.False(t, seen[e.ID], "entry listed twice")
			seen[e.ID] = true
			dates = append(dates, e.Date)
		}
		if !page.HasMore {
			assert.Empty(t, page.NextCursor)
			break
		}
		cursor = page.NextCursor
	}
	assert.Len(t, seen, 7)
	assert.Equal(t, 3, pages)
	for i := 1; i < len(dates); i++ {
		assert.False(t, dates[i].After(dates[i-1]), "newest first")
	}

	w := a.do(models.RoleViewer, "GET", "/api/entries?vehicle_id="+primitive.NewObjectID().Hex(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"items":[],"has_more":false}`, w.Body.String())
}

func TestRouter_Vehicles(t *testing.T) {
	a := newAPI(t, nil)

	w := a.do(models.RoleAdmin, "POST", "/api/vehicles", map[string]any{
		"plate":            "34 abc 123",
		"name":             "Actros",
		"insurance_expiry": now.AddDate(0, 0, 5).Format(time.RFC3339),
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[VehicleResponse](t, w)
	assert.Equal(t, models.ExpiryDanger, created.Documents.Insurance.Level)
	assert.Equal(t, models.ExpiryExpired, created.Documents.Inspection.Level)

	id := created.ID.Hex()
	w = a.do(models.RoleAdmin, "PUT", "/api/vehicles/"+id, map[string]any{"name": "Actros 1845"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Actros 1845", decode[VehicleResponse](t, w).Name)

	w = a.do(models.RoleViewer, "GET", "/api/vehicles", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]VehicleResponse](t, w), 1)

	assert.Equal(t, http.StatusNoContent, a.do(models.RoleAdmin, "DELETE", "/api/vehicles/"+id, nil).Code)
	assert.Equal(t, http.StatusNotFound, a.do(models.RoleAdmin, "GET", "/api/vehicles/"+id, nil).Code)
}

func TestRouter_TripListing(t *testing.T) {
	a := newAPI(t, nil)
	vehicleID := a.vehicle("34ABC123")
	open := a.trip(vehicleID)
	closed := a.trip(vehicleID)
	require.Equal(t, http.StatusOK, a.do(models.RoleManager, "POST", "/api/trips/"+closed+"/close", nil).Code)

	w := a.do(models.RoleViewer, "GET", "/api/trips?status=open&vehicle_id="+vehicleID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	trips := decode[[]models.Trip](t, w)
	require.Len(t, trips, 1)
	assert.Equal(t, open, trips[0].ID.Hex())

	assert.Equal(t, http.StatusBadRequest, a.do(models.RoleViewer, "GET", "/api/trips?status=paused", nil).Code)

	w = a.do(models.RoleManager, "PATCH", "/api/trips/"+open, map[string]any{"title": "Istanbul - Bursa"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Istanbul - Bursa", decode[models.Trip](t, w).Title)

	assert.Equal(t, http.StatusNoContent, a.do(models.RoleManager, "DELETE", "/api/trips/"+open, nil).Code)
}

func TestRouter_SummaryEngine(t *testing.T) {
	a := newAPI(t, nil)
	vehicleID := a.vehicle("34ABC123")
	for _, body := range []map[string]any{
		entryBody(vehicleID, "", models.EntryTypeIncome, 100, "USD"),
		entryBody(vehicleID, "", models.EntryTypeExpense, 20, "EUR"),
		entryBody(vehicleID, "", models.EntryTypeExpense, 50, "TRY"),
	} {
		require.Equal(t, http.StatusCreated, a.do(models.RoleManager, "POST", "/api/entries", body).Code)
	}

	w := a.do(models.RoleViewer, "GET", "/api/summary/totals", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"income":4000,"expense":950,"net":3050,"count":3}`, w.Body.String())

	w = a.do(models.RoleViewer, "GET", "/api/summary/totals?type=EXPENSE", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 950.0, decode[summary.Totals](t, w).Expense)

	w = a.do(models.RoleViewer, "GET", "/api/summary/monthly", nil)
	require.Equal(t, http.StatusOK, w.Code)
	yearly := decode[summary.Yearly](t, w)
	assert.Equal(t, 2026, yearly.Year)
	require.Len(t, yearly.Months, 12)
	assert.Equal(t, 3050.0, yearly.Months[2].Net)

	w = a.do(models.RoleViewer, "GET", "/api/summary/categories", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]summary.CategoryGroup](t, w), 2)

	w = a.do(models.RoleViewer, "GET", "/api/summary/vehicles", nil)
	require.Equal(t, http.StatusOK, w.Code)
	ranked := decode[[]summary.VehicleTotals](t, w)
	require.Len(t, ranked, 1)
	assert.Equal(t, "34ABC123", ranked[0].Plate)

	w = a.do(models.RoleViewer, "GET", "/api/summary/activity?days=7", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, decode[map[string]summary.VehicleTotals](t, w), vehicleID)
}

func TestSummaryHandler_Mocked(t *testing.T) {
	svc := new(MockSummaryService)
	a := newAPI(t, svc)

	svc.On("Monthly", mock.Anything, 2025, ledger.EntryFilter{VehicleID: "v1"}).
		Return(&summary.Yearly{Year: 2025, ReportingCurrency: "TRY"}, nil)
	w := a.do(models.RoleViewer, "GET", "/api/summary/monthly?year=2025&vehicle_id=v1", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	svc.On("RecentActivity", mock.Anything, summary.DefaultActivityDays).Return(map[string]summary.VehicleTotals{}, nil)
	w = a.do(models.RoleViewer, "GET", "/api/summary/activity", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{}`, w.Body.String())

	for _, days := range []string{"0", "400", "week"} {
		w = a.do(models.RoleViewer, "GET", "/api/summary/activity?days="+days, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, days)
	}

	svc.On("Totals", mock.Anything, ledger.EntryFilter{}).Return(nil, fmt.Errorf("aggregate: %w", assert.AnError))
	w = a.do(models.RoleViewer, "GET", "/api/summary/totals", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	resp := decode[ErrorResponse](t, w)
	assert.Equal(t, "internal error", resp.Error)
	assert.NotContains(t, w.Body.String(), assert.AnError.Error())

	var logged bool
	for _, entry := range a.hook.AllEntries() {
		if entry.Message == "Request failed" && entry.Data["error"] != nil {
			logged = true
		}
	}
	assert.True(t, logged, "server errors are logged with their cause")

	svc.On("Categories", mock.Anything, ledger.EntryFilter{}).Return(nil, nil)
	w = a.do(models.RoleViewer, "GET", "/api/summary/categories", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	svc.AssertExpectations(t)
}

func TestRateHandler_Get(t *testing.T) {
	a := newAPI(t, nil)

	w := a.do(models.RoleViewer, "GET", "/api/rates/usd", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, RateResponse{Currency: "USD", Rate: 40, ReportingCurrency: "TRY"}, decode[RateResponse](t, w))

	assert.Equal(t, http.StatusBadRequest, a.do(models.RoleViewer, "GET", "/api/rates/dollar", nil).Code)
	w = a.do(models.RoleViewer, "GET", "/api/rates/JPY", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRouter_RateLimit(t *testing.T) {
	authService := newAuthService(t)
	logger, _ := test.NewNullLogger()
	handler := NewRouter(Router{
		Auth:            NewAuthHandler(authService, new(MockUserCollection), logger),
		AuthMiddleware:  middleware.NewAuthMiddleware(authService),
		RateLimit:       2,
		RateLimitWindow: time.Minute,
		Logger:          logger,
	})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}
