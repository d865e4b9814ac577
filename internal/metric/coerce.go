package metric

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	trueTokens  = map[string]bool{"1": true, "true": true, "t": true, "yes": true, "y": true, "on": true}
	falseTokens = map[string]bool{"0": true, "false": true, "f": true, "no": true, "n": true, "off": true}
)

// Coerce normalizes a raw upstream value into the kind declared for key.
// The second return is false when raw is nil and the entry must be dropped.
// Coerce never fails: values that cannot be converted faithfully come back
// with Lossy set.
func Coerce(key string, raw any) (Value, bool) {
	if raw == nil {
		return Value{}, false
	}

	switch Classify(key) {
	case KindBool:
		return coerceBool(raw), true
	case KindText:
		return Text(stringify(raw)), true
	default:
		return coerceNumeric(raw), true
	}
}

// CoerceAll coerces every entry of raw and drops the nil ones
func CoerceAll(raw map[string]any) Set {
	out := make(Set, len(raw))
	for key, value := range raw {
		if v, ok := Coerce(key, value); ok {
			out[key] = v
		}
	}
	return out
}

func coerceBool(raw any) Value {
	if b, ok := raw.(bool); ok {
		return Boolean(b)
	}

	if f, ok := asFloat(raw); ok {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return Value{Kind: KindBool, Bool: true, Lossy: true}
		}
		return Boolean(int64(f) != 0)
	}

	if s, ok := raw.(string); ok {
		token := strings.ToLower(strings.TrimSpace(s))
		if trueTokens[token] {
			return Boolean(true)
		}
		if falseTokens[token] {
			return Boolean(false)
		}
		if f, err := strconv.ParseFloat(token, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return Boolean(int64(f) != 0)
		}
		// truthiness fallback: any non-empty string reads as true
		return Value{Kind: KindBool, Bool: s != "", Lossy: true}
	}

	return Value{Kind: KindBool, Bool: true, Lossy: true}
}

func coerceNumeric(raw any) Value {
	if f, ok := asFloat(raw); ok {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return Value{Kind: KindText, Text: stringify(raw), Lossy: true}
		}
		return Numeric(f)
	}

	if s, ok := raw.(string); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return Value{Kind: KindText, Text: s, Lossy: true}
		}
		return Numeric(f)
	}

	return Value{Kind: KindText, Text: stringify(raw), Lossy: true}
}

// asFloat converts native numeric types. Strings are not numbers here.
func asFloat(raw any) (float64, bool) {
	switch n := raw.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

func stringify(raw any) string {
	switch v := raw.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	}
	if f, ok := asFloat(raw); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return fmt.Sprint(raw)
}
