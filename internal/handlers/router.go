package handlers

import (
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-ledger/internal/middleware"
	"github.com/ukydev/fleet-ledger/internal/models"
)

// Router bundles the handlers and middleware served by NewRouter.
type Router struct {
	Auth     *AuthHandler
	Vehicles *VehicleHandler
	Trips    *TripHandler
	Entries  *EntryHandler
	Summary  *SummaryHandler
	Rates    *RateHandler

	AuthMiddleware *middleware.AuthMiddleware
	// RateLimit of zero disables per-client limiting.
	RateLimit       int
	RateLimitWindow time.Duration

	Logger log.FieldLogger
}

// Health handles GET /health.
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// NewRouter registers every ledger endpoint. Reads need the view permission;
// writes need the permission of the resource they change.
func NewRouter(rt Router) http.Handler {
	logger := rt.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}
	mux := http.NewServeMux()
	mw := rt.AuthMiddleware
	guard := func(write string, h http.HandlerFunc) http.Handler {
		return mw.RequireReadWrite(write)(h)
	}

	mux.HandleFunc("GET /health", Health)

	mux.HandleFunc("POST /api/auth/register", rt.Auth.Register)
	mux.HandleFunc("POST /api/auth/login", rt.Auth.Login)
	mux.HandleFunc("GET /api/auth/profile", rt.Auth.GetProfile)
	mux.HandleFunc("PUT /api/auth/profile", rt.Auth.UpdateProfile)
	mux.HandleFunc("POST /api/auth/password", rt.Auth.ChangePassword)

	mux.Handle("GET /api/vehicles", guard(models.PermManageVehicles, rt.Vehicles.List))
	mux.Handle("POST /api/vehicles", guard(models.PermManageVehicles, rt.Vehicles.Create))
	mux.Handle("GET /api/vehicles/{id}", guard(models.PermManageVehicles, rt.Vehicles.Get))
	mux.Handle("PUT /api/vehicles/{id}", guard(models.PermManageVehicles, rt.Vehicles.Update))
	mux.Handle("DELETE /api/vehicles/{id}", guard(models.PermManageVehicles, rt.Vehicles.Delete))

	mux.Handle("GET /api/trips", guard(models.PermManageTrips, rt.Trips.List))
	mux.Handle("POST /api/trips", guard(models.PermManageTrips, rt.Trips.Create))
	mux.Handle("GET /api/trips/{id}", guard(models.PermManageTrips, rt.Trips.Get))
	mux.Handle("PATCH /api/trips/{id}", guard(models.PermManageTrips, rt.Trips.Update))
	mux.Handle("DELETE /api/trips/{id}", guard(models.PermManageTrips, rt.Trips.Delete))
	mux.Handle("POST /api/trips/{id}/close", guard(models.PermManageTrips, rt.Trips.Close))
	mux.Handle("POST /api/trips/{id}/reopen", guard(models.PermManageTrips, rt.Trips.Reopen))
	mux.Handle("GET /api/trips/{id}/totals", guard(models.PermManageTrips, rt.Summary.TripTotals))

	mux.Handle("GET /api/entries", guard(models.PermManageEntries, rt.Entries.List))
	mux.Handle("POST /api/entries", guard(models.PermManageEntries, rt.Entries.Create))
	mux.Handle("GET /api/entries/{id}", guard(models.PermManageEntries, rt.Entries.Get))
	mux.Handle("PATCH /api/entries/{id}", guard(models.PermManageEntries, rt.Entries.Update))
	mux.Handle("DELETE /api/entries/{id}", guard(models.PermManageEntries, rt.Entries.Delete))

	view := mw.RequirePermission(models.PermViewLedger)
	mux.Handle("GET /api/summary/totals", view(http.HandlerFunc(rt.Summary.Totals)))
	mux.Handle("GET /api/summary/categories", view(http.HandlerFunc(rt.Summary.Categories)))
	mux.Handle("GET /api/summary/monthly", view(http.HandlerFunc(rt.Summary.Monthly)))
	mux.Handle("GET /api/summary/vehicles", view(http.HandlerFunc(rt.Summary.Vehicles)))
	mux.Handle("GET /api/summary/activity", view(http.HandlerFunc(rt.Summary.Activity)))
	mux.Handle("GET /api/rates/{currency}", view(http.HandlerFunc(rt.Rates.Get)))

	var handler http.Handler = mw.Authenticate(mux)
	if rt.RateLimit > 0 {
		handler = middleware.NewRateLimitMiddleware().RateLimit(rt.RateLimit, rt.RateLimitWindow)(handler)
	}
	return middleware.RequestLogger(logger)(handler)
}
