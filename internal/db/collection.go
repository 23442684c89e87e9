package db

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
)

// Collection is a typed view over one store collection. T must be a struct
// with bson tags; its _id, created_at and updated_at fields are filled by the
// store.
type Collection[T any] struct {
	store Store
	name  string
}

// NewCollection binds name in store to the document type T.
func NewCollection[T any](store Store, name string) *Collection[T] {
	return &Collection[T]{store: store, name: name}
}

// Name returns the underlying collection name.
func (c *Collection[T]) Name() string { return c.name }

// Store returns the backing store.
func (c *Collection[T]) Store() Store { return c.store }

// ToDocument converts a typed value into a Document.
func ToDocument(v any) (Document, error) {
	data, err := bson.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var doc Document
	if err := bson.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return doc, nil
}

// Decode converts a stored Document into T.
func Decode[T any](doc Document) (*T, error) {
	data, err := bson.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	var out T
	if err := bson.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return &out, nil
}

// DecodeAll converts a slice of Documents into []T.
func DecodeAll[T any](docs []Document) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		v, err := Decode[T](doc)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, nil
}

// Create stores v and returns the new id.
func (c *Collection[T]) Create(ctx context.Context, v T) (string, error) {
	doc, err := ToDocument(v)
	if err != nil {
		return "", opError(c.name, "create", ErrWrite, err)
	}
	return c.store.Create(ctx, c.name, doc)
}

// Get returns the value with id, or nil when it does not exist.
func (c *Collection[T]) Get(ctx context.Context, id string) (*T, error) {
	doc, err := c.store.Get(ctx, c.name, id)
	if err != nil || doc == nil {
		return nil, err
	}
	v, err := Decode[T](doc)
	if err != nil {
		return nil, opError(c.name, "get", ErrRead, err)
	}
	return v, nil
}

// Update merges fields into the stored value.
func (c *Collection[T]) Update(ctx context.Context, id string, fields Document) error {
	return c.store.Update(ctx, c.name, id, fields)
}

// Delete removes the value with id.
func (c *Collection[T]) Delete(ctx context.Context, id string) error {
	return c.store.Delete(ctx, c.name, id)
}

// TypedPage is a Page decoded into T.
type TypedPage[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
	HasMore    bool   `json:"has_more"`
}

// Page returns one cursor-paginated page of decoded values.
func (c *Collection[T]) Page(ctx context.Context, q Query, pageSize int, cursor string) (*TypedPage[T], error) {
	page, err := c.store.QueryPage(ctx, c.name, q, pageSize, cursor)
	if err != nil {
		return nil, err
	}
	items, err := DecodeAll[T](page.Items)
	if err != nil {
		return nil, opError(c.name, "query", ErrRead, err)
	}
	return &TypedPage[T]{Items: items, NextCursor: page.NextCursor, HasMore: page.HasMore}, nil
}

// Find returns every matching value in query order.
func (c *Collection[T]) Find(ctx context.Context, q Query) ([]T, error) {
	docs, err := c.store.Find(ctx, c.name, q)
	if err != nil {
		return nil, err
	}
	items, err := DecodeAll[T](docs)
	if err != nil {
		return nil, opError(c.name, "find", ErrRead, err)
	}
	return items, nil
}

// FindOne returns the first value matching filters, or nil.
func (c *Collection[T]) FindOne(ctx context.Context, filters ...Filter) (*T, error) {
	page, err := c.store.QueryPage(ctx, c.name, Query{Filters: filters}, 1, "")
	if err != nil {
		return nil, err
	}
	if len(page.Items) == 0 {
		return nil, nil
	}
	v, err := Decode[T](page.Items[0])
	if err != nil {
		return nil, opError(c.name, "find", ErrRead, err)
	}
	return v, nil
}

// Aggregate runs server-side aggregates over the collection.
func (c *Collection[T]) Aggregate(ctx context.Context, filters []Filter, spec AggregateSpec) (*AggregateResult, error) {
	return c.store.Aggregate(ctx, c.name, filters, spec)
}
