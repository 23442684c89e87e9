package db

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryStore is an in-process Store. Documents are round-tripped through bson
// on every write and read so callers observe the same value types as with
// MongoDB, and never share memory with the store.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[primitive.ObjectID]Document
	now         func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[primitive.ObjectID]Document),
		now:         time.Now,
	}
}

// SetClock replaces the time source used for created_at/updated_at.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func cloneDocument(doc Document) (Document, error) {
	data, err := bson.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var out Document
	if err := bson.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *MemoryStore) collection(name string) map[primitive.ObjectID]Document {
	c, ok := s.collections[name]
	if !ok {
		c = make(map[primitive.ObjectID]Document)
		s.collections[name] = c
	}
	return c
}

// Create inserts a copy of doc under a fresh object id.
func (s *MemoryStore) Create(ctx context.Context, collection string, doc Document) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", opError(collection, "create", ErrWrite, err)
	}
	stored, err := cloneDocument(writableFields(doc))
	if err != nil {
		return "", opError(collection, "create", ErrWrite, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := primitive.NewObjectID()
	now := primitive.NewDateTimeFromTime(s.now())
	stored[FieldID] = id
	stored[FieldCreatedAt] = now
	stored[FieldUpdatedAt] = now
	s.collection(collection)[id] = stored
	return id.Hex(), nil
}

// Get returns a copy of the document, or nil if it does not exist.
func (s *MemoryStore) Get(ctx context.Context, collection, id string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, opError(collection, "get", ErrRead, err)
	}
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.collections[collection][oid]
	if !ok {
		return nil, nil
	}
	out, err := cloneDocument(doc)
	if err != nil {
		return nil, opError(collection, "get", ErrRead, err)
	}
	return out, nil
}

// Update merges fields into the stored document and refreshes updated_at.
func (s *MemoryStore) Update(ctx context.Context, collection, id string, fields Document) error {
	if err := ctx.Err(); err != nil {
		return opError(collection, "update", ErrWrite, err)
	}
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return opError(collection, "update", ErrNotFound, nil)
	}

	set := Document{}
	var unset []string
	for k, v := range writableFields(fields) {
		if v == nil {
			unset = append(unset, k)
			continue
		}
		set[k] = v
	}
	patch, err := cloneDocument(set)
	if err != nil {
		return opError(collection, "update", ErrWrite, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.collections[collection][oid]
	if !ok {
		return opError(collection, "update", ErrNotFound, nil)
	}
	for k, v := range patch {
		doc[k] = v
	}
	for _, k := range unset {
		delete(doc, k)
	}
	doc[FieldUpdatedAt] = primitive.NewDateTimeFromTime(s.now())
	return nil
}

// Delete removes the document if present.
func (s *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return opError(collection, "delete", ErrWrite, err)
	}
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections[collection], oid)
	return nil
}

// sorted returns copies of the matching documents in query order.
func (s *MemoryStore) sorted(collection string, q Query) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	srt := q.sort()
	docs := make([]Document, 0, len(s.collections[collection]))
	for _, doc := range s.collections[collection] {
		if !matches(doc, q.Filters) {
			continue
		}
		out, err := cloneDocument(doc)
		if err != nil {
			return nil, err
		}
		docs = append(docs, out)
	}

	sort.Slice(docs, func(i, j int) bool {
		a, _ := positionOf(docs[i], srt)
		b, _ := positionOf(docs[j], srt)
		c := comparePositions(a, b)
		if srt.Desc {
			return c > 0
		}
		return c < 0
	})
	return docs, nil
}

// QueryPage implements keyset pagination over the sorted, filtered documents.
func (s *MemoryStore) QueryPage(ctx context.Context, collection string, q Query, pageSize int, cursor string) (*Page, error) {
	if pageSize <= 0 {
		return nil, opError(collection, "query", ErrInvalidQuery, errPageSize(pageSize))
	}
	if err := validateFilters(q.Filters); err != nil {
		return nil, opError(collection, "query", ErrInvalidQuery, err)
	}
	srt := q.sort()
	after, err := decodeCursor(cursor, srt)
	if err != nil {
		return nil, opError(collection, "query", ErrInvalidQuery, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, opError(collection, "query", ErrRead, err)
	}

	docs, err := s.sorted(collection, q)
	if err != nil {
		return nil, opError(collection, "query", ErrRead, err)
	}

	// Collect pageSize+1 documents past the cursor to learn whether more remain.
	window := make([]Document, 0, pageSize+1)
	for _, doc := range docs {
		if after != nil {
			p, err := positionOf(doc, srt)
			if err != nil {
				return nil, opError(collection, "query", ErrRead, err)
			}
			c := comparePositions(p, *after)
			if (srt.Desc && c >= 0) || (!srt.Desc && c <= 0) {
				continue
			}
		}
		window = append(window, doc)
		if len(window) > pageSize {
			break
		}
	}
	return buildPage(window, pageSize, srt)
}

// buildPage trims a pageSize+1 window into a Page.
func buildPage(window []Document, pageSize int, srt Sort) (*Page, error) {
	page := &Page{HasMore: len(window) > pageSize}
	if page.HasMore {
		window = window[:pageSize]
	}
	page.Items = window
	if page.HasMore {
		p, err := positionOf(window[len(window)-1], srt)
		if err != nil {
			return nil, err
		}
		if page.NextCursor, err = encodeCursor(p); err != nil {
			return nil, err
		}
	}
	return page, nil
}

// Find returns every matching document in query order.
func (s *MemoryStore) Find(ctx context.Context, collection string, q Query) ([]Document, error) {
	if err := validateFilters(q.Filters); err != nil {
		return nil, opError(collection, "find", ErrInvalidQuery, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, opError(collection, "find", ErrRead, err)
	}
	docs, err := s.sorted(collection, q)
	if err != nil {
		return nil, opError(collection, "find", ErrRead, err)
	}
	return docs, nil
}

// Aggregate computes the requested aggregates without copying documents out.
// Like MongoDB's $sum and $avg, non-numeric values are ignored.
func (s *MemoryStore) Aggregate(ctx context.Context, collection string, filters []Filter, spec AggregateSpec) (*AggregateResult, error) {
	if spec.empty() {
		return nil, opError(collection, "aggregate", ErrInvalidQuery, errNoAggregate)
	}
	if err := validateFilters(filters); err != nil {
		return nil, opError(collection, "aggregate", ErrInvalidQuery, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, opError(collection, "aggregate", ErrRead, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	var sum, avgSum float64
	var avgN int64
	for _, doc := range s.collections[collection] {
		if !matches(doc, filters) {
			continue
		}
		count++
		if spec.Sum != "" {
			if v, ok := normalize(doc[spec.Sum]).(float64); ok {
				sum += v
			}
		}
		if spec.Average != "" {
			if v, ok := normalize(doc[spec.Average]).(float64); ok {
				avgSum += v
				avgN++
			}
		}
	}

	res := &AggregateResult{}
	if spec.Count {
		res.Count = &count
	}
	if spec.Sum != "" {
		res.Sum = &sum
	}
	if spec.Average != "" && avgN > 0 {
		avg := avgSum / float64(avgN)
		res.Average = &avg
	}
	return res, nil
}
