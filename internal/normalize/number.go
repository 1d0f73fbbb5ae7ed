package normalize

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// AsInt coerces a decoded JSON value into an int.
//
// Accepted inputs: float64 and json.Number (fractions are truncated toward
// zero), Go integer types, and strings holding a decimal number ("20", " 3 ",
// "2.0"). Everything else, including nil, booleans, NaN and infinities,
// reports ok=false.
func AsInt(v any) (n int, ok bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int32:
		return int(t), true
	case int64:
		return int(t), true
	case float64:
		return floatToInt(t)
	case float32:
		return floatToInt(float64(t))
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return int(i), true
		}
		f, err := t.Float64()
		if err != nil {
			return 0, false
		}
		return floatToInt(f)
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, false
		}
		if i, err := strconv.Atoi(s); err == nil {
			return i, true
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return floatToInt(f)
	default:
		return 0, false
	}
}

func floatToInt(f float64) (int, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	// Beyond 2^53 float64 no longer represents every integer.
	if math.Abs(f) > 1<<53 {
		return 0, false
	}
	return int(f), true
}
