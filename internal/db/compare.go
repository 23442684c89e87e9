package db

import (
	"bytes"
	"reflect"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// normalize maps a Go or bson value onto a small set of comparable kinds:
// nil, bool, float64, string, time.Time (ms precision, UTC) and ObjectID.
func normalize(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case primitive.DateTime:
		return x.Time().UTC()
	case time.Time:
		return x.UTC().Truncate(time.Millisecond)
	case *time.Time:
		if x == nil {
			return nil
		}
		return x.UTC().Truncate(time.Millisecond)
	case primitive.ObjectID:
		return x
	case primitive.Null:
		return nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	case reflect.Pointer:
		if rv.IsNil() {
			return nil
		}
		return normalize(rv.Elem().Interface())
	}
	return v
}

// typeRank orders values of different kinds the way MongoDB does for sorting:
// null < numbers < strings < object ids < booleans < dates.
func typeRank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case float64:
		return 1
	case string:
		return 2
	case primitive.ObjectID:
		return 3
	case bool:
		return 4
	case time.Time:
		return 5
	}
	return 6
}

// compareValues returns -1, 0 or 1 for two normalized values and whether the
// comparison is meaningful for range operators (same kind on both sides).
func compareValues(a, b any) (int, bool) {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		if ra < rb {
			return -1, false
		}
		return 1, false
	}
	switch x := a.(type) {
	case nil:
		return 0, true
	case float64:
		y := b.(float64)
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	case string:
		return strings.Compare(x, b.(string)), true
	case primitive.ObjectID:
		y := b.(primitive.ObjectID)
		return bytes.Compare(x[:], y[:]), true
	case bool:
		y := b.(bool)
		switch {
		case x == y:
			return 0, true
		case !x:
			return -1, true
		}
		return 1, true
	case time.Time:
		return x.Compare(b.(time.Time)), true
	}
	return 0, false
}

// matches reports whether doc satisfies every filter.
func matches(doc Document, filters []Filter) bool {
	for _, f := range filters {
		if !matchOne(doc[f.Field], f) {
			return false
		}
	}
	return true
}

func matchOne(raw any, f Filter) bool {
	got := normalize(raw)
	switch f.Op {
	case OpEq:
		c, ok := compareValues(got, normalize(f.Value))
		return ok && c == 0
	case OpNe:
		c, ok := compareValues(got, normalize(f.Value))
		return !ok || c != 0
	case OpIn:
		for _, candidate := range f.Value.([]any) {
			if c, ok := compareValues(got, normalize(candidate)); ok && c == 0 {
				return true
			}
		}
		return false
	}

	want := normalize(f.Value)
	if got == nil || want == nil {
		return false
	}
	c, ok := compareValues(got, want)
	if !ok {
		return false
	}
	switch f.Op {
	case OpGt:
		return c > 0
	case OpGte:
		return c >= 0
	case OpLt:
		return c < 0
	case OpLte:
		return c <= 0
	}
	return false
}

// comparePositions orders two documents by (field value, id).
func comparePositions(a, b position) int {
	c, _ := compareValues(normalize(a.Value), normalize(b.Value))
	if c != 0 {
		return c
	}
	return bytes.Compare(a.ID[:], b.ID[:])
}
