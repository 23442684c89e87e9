package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-ledger/internal/db"
	"github.com/ukydev/fleet-ledger/internal/ledger"
	"github.com/ukydev/fleet-ledger/internal/models"
)

// EntryService is the part of the ledger the entry endpoints use.
type EntryService interface {
	CreateEntry(ctx context.Context, draft ledger.EntryDraft) (*models.Entry, error)
	GetEntry(ctx context.Context, id string) (*models.Entry, error)
	UpdateEntry(ctx context.Context, id string, patch ledger.EntryPatch) (*models.Entry, error)
	DeleteEntry(ctx context.Context, id string) error
	ListEntries(ctx context.Context, filter ledger.EntryFilter, pageSize int, cursor string) (*db.TypedPage[models.Entry], error)
}

// PageOptions bounds the page_size query parameter.
type PageOptions struct {
	Default int
	Max     int
}

func (o PageOptions) size(r *http.Request) (int, error) {
	def := o.Default
	if def <= 0 {
		def = 10
	}
	n, err := queryInt(r, "page_size", def)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, badRequest("page_size must be positive")
	}
	if o.Max > 0 && n > o.Max {
		n = o.Max
	}
	return n, nil
}

// EntryHandler serves /api/entries.
type EntryHandler struct {
	entries  EntryService
	pages    PageOptions
	location *time.Location
	logger   log.FieldLogger
}

// NewEntryHandler creates an entry handler. Plain dates in query strings are
// read in loc.
func NewEntryHandler(entries EntryService, pages PageOptions, loc *time.Location, logger log.FieldLogger) *EntryHandler {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &EntryHandler{entries: entries, pages: pages, location: loc, logger: logger}
}

// entryFilter reads vehicle_id, trip_id, category_id, type, status, from and
// to from the query string.
func entryFilter(r *http.Request, loc *time.Location) (ledger.EntryFilter, error) {
	q := r.URL.Query()
	filter := ledger.EntryFilter{
		VehicleID:  q.Get("vehicle_id"),
		TripID:     q.Get("trip_id"),
		CategoryID: q.Get("category_id"),
	}
	if typ := strings.ToUpper(q.Get("type")); typ != "" {
		filter.Type = models.EntryType(typ)
		if !filter.Type.IsValid() {
			return filter, badRequest("type must be INCOME or EXPENSE")
		}
	}
	if status := strings.ToUpper(q.Get("status")); status != "" {
		filter.Status = models.EntryStatus(status)
		if !filter.Status.IsValid() {
			return filter, badRequest("status must be PENDING or PAID")
		}
	}
	for key, dst := range map[string]*time.Time{"from": &filter.From, "to": &filter.To} {
		if raw := q.Get(key); raw != "" {
			t, err := parseTime(raw, loc)
			if err != nil {
				return filter, badRequest("%s: %v", key, err)
			}
			*dst = t
		}
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && !filter.From.Before(filter.To) {
		return filter, badRequest("from must be before to")
	}
	return filter, nil
}

// List handles GET /api/entries.
func (h *EntryHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := entryFilter(r, h.location)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	size, err := h.pages.size(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	page, err := h.entries.ListEntries(r.Context(), filter, size, r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if page.Items == nil {
		page.Items = []models.Entry{}
	}
	writeJSON(w, http.StatusOK, page)
}

// Create handles POST /api/entries.
func (h *EntryHandler) Create(w http.ResponseWriter, r *http.Request) {
	var draft ledger.EntryDraft
	if err := decodeJSON(r, &draft); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	entry, err := h.entries.CreateEntry(r.Context(), draft)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// Get handles GET /api/entries/{id}.
func (h *EntryHandler) Get(w http.ResponseWriter, r *http.Request) {
	entry, err := h.entries.GetEntry(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// Update handles PATCH /api/entries/{id}.
func (h *EntryHandler) Update(w http.ResponseWriter, r *http.Request) {
	var patch ledger.EntryPatch
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	entry, err := h.entries.UpdateEntry(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// Delete handles DELETE /api/entries/{id}.
func (h *EntryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.entries.DeleteEntry(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
