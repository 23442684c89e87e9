package db

import (
	"encoding/base64"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// position marks where a page ended: the sort field, its value on the last
// returned document, and that document's id.
type position struct {
	Field string             `bson:"f"`
	Value any                `bson:"v"`
	ID    primitive.ObjectID `bson:"id"`
}

// encodeCursor renders a position as an opaque URL-safe token. The value keeps
// its bson type so dates and numbers survive the round trip.
func encodeCursor(p position) (string, error) {
	data, err := bson.Marshal(p)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

func decodeCursor(token string, sort Sort) (*position, error) {
	if token == "" {
		return nil, nil
	}
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("malformed cursor: %w", err)
	}
	var raw bson.M
	if err := bson.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("malformed cursor: %w", err)
	}
	field, _ := raw["f"].(string)
	id, ok := raw["id"].(primitive.ObjectID)
	if !ok {
		return nil, fmt.Errorf("malformed cursor: missing id")
	}
	if field != sort.Field {
		return nil, fmt.Errorf("cursor was issued for sort field %q, not %q", field, sort.Field)
	}
	return &position{Field: field, Value: raw["v"], ID: id}, nil
}

// positionOf builds the position of doc under sort.
func positionOf(doc Document, sort Sort) (position, error) {
	id, ok := doc[FieldID].(primitive.ObjectID)
	if !ok {
		return position{}, fmt.Errorf("document without object id")
	}
	return position{Field: sort.Field, Value: doc[sort.Field], ID: id}, nil
}
