package codec

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// lookup returns the first non-null value stored under any of keys.
func lookup(m map[string]any, keys []string) (any, bool) {
	if m == nil {
		return nil, false
	}
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// object returns the first map stored under any of keys, or nil.
func object(m map[string]any, keys []string) map[string]any {
	v, ok := lookup(m, keys)
	if !ok {
		return nil
	}
	obj, _ := v.(map[string]any)
	return obj
}

// numeric reports v as a float when it is a JSON number.
func numeric(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// number is numeric plus the loose conversions older clients relied on:
// numeric strings and booleans.
func number(v any) (float64, bool) {
	if f, ok := numeric(v); ok {
		return f, true
	}
	switch x := v.(type) {
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// truncInt converts v to an integer toward zero, saturating at the int32
// range; anything unreadable is 0.
func truncInt(v any) int {
	f, ok := number(v)
	if !ok {
		return 0
	}
	if f > math.MaxInt32 {
		return math.MaxInt32
	}
	if f < math.MinInt32 {
		return math.MinInt32
	}
	return int(f)
}

// coerceSeconds reads a non-negative whole number of seconds; invalid is 0.
func coerceSeconds(v any) int {
	f, ok := number(v)
	if !ok || f < 0 {
		return 0
	}
	if f > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(math.Floor(f))
}

// coerceMs reads a positive unix millisecond timestamp; 0 means absent.
func coerceMs(v any) int64 {
	f, ok := number(v)
	if !ok || f <= 0 || f > math.MaxInt64/2 {
		return 0
	}
	return int64(math.Floor(f))
}

// truthy mirrors the loose boolean reading of older payloads.
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	default:
		if f, ok := numeric(v); ok {
			return f != 0
		}
		if _, isNum := v.(json.Number); isNum {
			return false
		}
		return true
	}
}

// text renders strings and numbers as text; other values are not text.
func text(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case bool:
		return strconv.FormatBool(x), true
	default:
		if f, ok := numeric(v); ok {
			return strconv.FormatFloat(f, 'f', -1, 64), true
		}
	}
	return "", false
}
