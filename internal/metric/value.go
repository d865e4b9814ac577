package metric

import (
	"encoding/json"
	"sort"
	"strconv"
)

// Value is a coerced metric value. Kind names the single populated slot,
// which normally matches Classify(key). A numeric key whose raw value could
// not be parsed is carried as KindText with Lossy set.
type Value struct {
	Kind  Kind
	Num   float64
	Bool  bool
	Text  string
	Lossy bool
}

// Numeric builds a numeric value
func Numeric(f float64) Value {
	return Value{Kind: KindNumeric, Num: f}
}

// Boolean builds a bool value
func Boolean(b bool) Value {
	return Value{Kind: KindBool, Bool: b}
}

// Text builds a text value
func Text(s string) Value {
	return Value{Kind: KindText, Text: s}
}

// Any returns the value as a plain Go value suitable for JSON encoding
func (v Value) Any() any {
	switch v.Kind {
	case KindNumeric:
		return v.Num
	case KindBool:
		return v.Bool
	default:
		return v.Text
	}
}

// String renders the populated slot
func (v Value) String() string {
	switch v.Kind {
	case KindNumeric:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	default:
		return v.Text
	}
}

// MarshalJSON encodes only the populated slot
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Any())
}

// Set is a typed metric map for one observation
type Set map[string]Value

// Keys returns the metric keys in sorted order
func (s Set) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Lossy returns the keys whose value went through a lossy fallback
func (s Set) Lossy() []string {
	var keys []string
	for _, k := range s.Keys() {
		if s[k].Lossy {
			keys = append(keys, k)
		}
	}
	return keys
}
