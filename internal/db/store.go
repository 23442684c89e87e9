package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
)

// Collection names used by the ledger.
const (
	CollectionVehicles  = "vehicles"
	CollectionTrips     = "trips"
	CollectionEntries   = "entries"
	CollectionRateCache = "rate_cache"
	CollectionUsers     = "users"
)

// System fields assigned by the store on every document.
const (
	FieldID        = "_id"
	FieldCreatedAt = "created_at"
	FieldUpdatedAt = "updated_at"
)

var (
	ErrNotFound     = errors.New("document not found")
	ErrWrite        = errors.New("write failed")
	ErrRead         = errors.New("read failed")
	ErrInvalidQuery = errors.New("invalid query")

	errNoAggregate = errors.New("no aggregate requested")
)

func errPageSize(n int) error {
	return fmt.Errorf("page size must be positive, got %d", n)
}

// OpError annotates a store failure with the collection and operation that
// produced it. Kind is one of the package sentinels.
type OpError struct {
	Collection string
	Op         string
	Kind       error
	Err        error
}

func (e *OpError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("db: %s %s: %v: %v", e.Op, e.Collection, e.Kind, e.Err)
	}
	return fmt.Sprintf("db: %s %s: %v", e.Op, e.Collection, e.Kind)
}

func (e *OpError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func opError(collection, op string, kind, err error) error {
	return &OpError{Collection: collection, Op: op, Kind: kind, Err: err}
}

// Document is a flat key-value record as stored in a collection.
type Document = bson.M

// Op is a comparison operator usable in a Filter.
type Op string

const (
	OpEq  Op = "$eq"
	OpNe  Op = "$ne"
	OpGt  Op = "$gt"
	OpGte Op = "$gte"
	OpLt  Op = "$lt"
	OpLte Op = "$lte"
	OpIn  Op = "$in"
)

func (o Op) valid() bool {
	switch o {
	case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte, OpIn:
		return true
	}
	return false
}

// Filter is a single field condition. Filters in a slice are ANDed.
type Filter struct {
	Field string
	Op    Op
	Value any
}

func Eq(field string, v any) Filter { return Filter{Field: field, Op: OpEq, Value: v} }
func Ne(field string, v any) Filter { return Filter{Field: field, Op: OpNe, Value: v} }
func Gt(field string, v any) Filter { return Filter{Field: field, Op: OpGt, Value: v} }
func Gte(field string, v any) Filter { return Filter{Field: field, Op: OpGte, Value: v} }
func Lt(field string, v any) Filter { return Filter{Field: field, Op: OpLt, Value: v} }
func Lte(field string, v any) Filter { return Filter{Field: field, Op: OpLte, Value: v} }
func In(field string, v ...any) Filter {
	return Filter{Field: field, Op: OpIn, Value: v}
}

// Sort orders query results by a single field. The document id is always used
// as a secondary key in the same direction so ties are stable.
type Sort struct {
	Field string
	Desc  bool
}

// DefaultSort is used when a query names no sort field.
var DefaultSort = Sort{Field: FieldCreatedAt, Desc: true}

// Query combines filters with a sort order.
type Query struct {
	Filters []Filter
	Sort    Sort
}

func (q Query) sort() Sort {
	if q.Sort.Field == "" {
		return DefaultSort
	}
	return q.Sort
}

func validateFilters(filters []Filter) error {
	for _, f := range filters {
		if strings.TrimSpace(f.Field) == "" {
			return fmt.Errorf("filter with empty field")
		}
		if !f.Op.valid() {
			return fmt.Errorf("unsupported operator %q on %s", f.Op, f.Field)
		}
		if f.Op == OpIn {
			if _, ok := f.Value.([]any); !ok {
				return fmt.Errorf("%s on %s needs a []any value", f.Op, f.Field)
			}
		}
	}
	return nil
}

// Page is one slice of a cursor-paginated query.
type Page struct {
	Items      []Document
	NextCursor string
	HasMore    bool
}

// AggregateSpec selects the server-side aggregates to compute. At least one
// must be requested.
type AggregateSpec struct {
	Count   bool
	Sum     string
	Average string
}

func (s AggregateSpec) empty() bool {
	return !s.Count && s.Sum == "" && s.Average == ""
}

// AggregateResult holds the aggregates that were requested; the others are nil.
// Average is nil when no matching document carries a numeric value.
type AggregateResult struct {
	Count   *int64
	Sum     *float64
	Average *float64
}

// SumOrZero returns the computed sum, or 0 if it was not requested.
func (r *AggregateResult) SumOrZero() float64 {
	if r == nil || r.Sum == nil {
		return 0
	}
	return *r.Sum
}

// CountOrZero returns the computed count, or 0 if it was not requested.
func (r *AggregateResult) CountOrZero() int64 {
	if r == nil || r.Count == nil {
		return 0
	}
	return *r.Count
}

// Store is a schemaless document store. Every document carries a
// store-assigned id and created/updated timestamps.
type Store interface {
	// Create inserts doc and returns its new id.
	Create(ctx context.Context, collection string, doc Document) (string, error)
	// Get returns the document, or nil without error when it does not exist.
	Get(ctx context.Context, collection, id string) (Document, error)
	// Update merges fields over the stored document. A nil value removes the field.
	Update(ctx context.Context, collection, id string, fields Document) error
	// Delete removes the document. Deleting a missing id is not an error.
	Delete(ctx context.Context, collection, id string) error
	// QueryPage returns at most pageSize documents following cursor.
	QueryPage(ctx context.Context, collection string, q Query, pageSize int, cursor string) (*Page, error)
	// Find returns every document matching q, unpaginated.
	Find(ctx context.Context, collection string, q Query) ([]Document, error)
	// Aggregate computes count/sum/average on the server side.
	Aggregate(ctx context.Context, collection string, filters []Filter, spec AggregateSpec) (*AggregateResult, error)
}

// writableFields strips the system fields a caller may not set.
func writableFields(doc Document) Document {
	out := make(Document, len(doc))
	for k, v := range doc {
		switch k {
		case FieldID, FieldCreatedAt, FieldUpdatedAt:
			continue
		}
		out[k] = v
	}
	return out
}
