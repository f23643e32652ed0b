package store

import (
	"time"

	"github.com/paulmach/orb"

	"github.com/rochus-keller/FlowLine2/pkg/schema"
)

func normalize(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case float64, int64, string, bool, OID:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case []orb.Point:
		return clonePoints(x), nil
	case orb.LineString:
		return clonePoints(x), nil
	case time.Time:
		return normalTime(x), nil
	default:
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "unsupported attribute value %T", v)
	}
}

func clonePoints(p []orb.Point) []orb.Point {
	if p == nil {
		return nil
	}
	out := make([]orb.Point, len(p))
	copy(out, p)
	return out
}

func cloneValue(v any) any {
	if p, ok := v.([]orb.Point); ok {
		return clonePoints(p)
	}
	return v
}

func valuesEqual(a, b any) bool {
	pa, aok := a.([]orb.Point)
	pb, bok := b.([]orb.Point)
	if aok || bok {
		if !aok || !bok || len(pa) != len(pb) {
			return false
		}
		for i := range pa {
			if pa[i] != pb[i] {
				return false
			}
		}
		return true
	}
	ta, aok := a.(time.Time)
	tb, bok := b.(time.Time)
	if aok && bok {
		return ta.Equal(tb)
	}
	return a == b
}

// indexKey returns the map key for v, or false when v cannot be indexed.
func indexKey(v any) (any, bool) {
	switch v.(type) {
	case OID, string, int64, bool, float64:
		return v, true
	default:
		return nil, false
	}
}

// Float reads a numeric attribute as float64; missing or non-numeric yields 0.
func Float(s Store, id OID, attr AttrID) float64 {
	switch v := s.Get(id, attr).(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	default:
		return 0
	}
}

// Int reads a numeric attribute as int64.
func Int(s Store, id OID, attr AttrID) int64 {
	switch v := s.Get(id, attr).(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	case bool:
		if v {
			return 1
		}
		return 0
	default:
		return 0
	}
}

// String reads a string attribute.
func String(s Store, id OID, attr AttrID) string {
	v, _ := s.Get(id, attr).(string)
	return v
}

// Bool reads a boolean attribute; def is returned when the attribute is unset.
func Bool(s Store, id OID, attr AttrID, def bool) bool {
	switch v := s.Get(id, attr).(type) {
	case bool:
		return v
	case int64:
		return v != 0
	default:
		return def
	}
}

// Ref reads an object reference attribute.
func Ref(s Store, id OID, attr AttrID) OID {
	v, _ := s.Get(id, attr).(OID)
	return v
}

// PointList reads a polyline attribute.
func PointList(s Store, id OID, attr AttrID) []orb.Point {
	v, _ := s.Get(id, attr).([]orb.Point)
	return v
}

// Time reads a timestamp attribute.
func Time(s Store, id OID, attr AttrID) time.Time {
	v, _ := s.Get(id, attr).(time.Time)
	return v
}
