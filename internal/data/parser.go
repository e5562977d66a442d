// internal/data/parser.go
package data

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// UnmarshalJSON decodes a reading leniently. Devices send numbers, numeric
// strings or "null"; anything that is not a finite number is treated as absent.
func (r *Reading) UnmarshalJSON(raw []byte) error {
	var generic map[string]interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return err
	}
	*r = ReadingFromMap(generic)
	return nil
}

// ReadingFromMap extracts the known reading fields from a decoded payload.
func ReadingFromMap(m map[string]interface{}) Reading {
	var r Reading
	if t, ok := TimeMs(m["t_ms"]); ok {
		r.TimeMs = &t
	}
	if v, ok := ToNumber(m["flow_Lmin"]); ok {
		r.Flow = Float(v)
	}
	if v, ok := ToNumber(m["temp_C"]); ok {
		r.Temp = Float(v)
	}
	if v, ok := ToNumber(m["pressure_psi"]); ok {
		r.Pressure = Float(v)
	}
	if t, ok := TimeMs(m["ts_server_ms"]); ok {
		r.ServerTsMs = t
	}
	return r
}

// MaxTimeMs is the last millisecond of the year 9999.
const MaxTimeMs = 253402300799999

// TimeMs converts a decoded epoch time in milliseconds. Values that are not
// positive or lie past MaxTimeMs are rejected instead of wrapping.
func TimeMs(value interface{}) (int64, bool) {
	f, ok := ToNumber(value)
	if !ok || f <= 0 || f > MaxTimeMs {
		return 0, false
	}
	return int64(f), true
}

// ToNumber coerces a decoded JSON value to a finite float64.
func ToNumber(value interface{}) (float64, bool) {
	var f float64
	switch v := value.(type) {
	case nil:
		return 0, false
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		s := strings.TrimSpace(v)
		if s == "" || strings.EqualFold(s, "null") {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(s, 64)
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
