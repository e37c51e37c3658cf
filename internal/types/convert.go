package types

import (
	"strconv"
	"time"
)

// ToInt64 converts an interface{} to int64.
// Supports the integer types, float32/float64, bool and numeric strings.
// Anything else yields 0.
func ToInt64(v interface{}) int64 {
	switch i := v.(type) {
	case int64:
		return i
	case int:
		return int64(i)
	case int32:
		return int64(i)
	case int16:
		return int64(i)
	case int8:
		return int64(i)
	case uint:
		return int64(i)
	case uint64:
		return int64(i)
	case uint32:
		return int64(i)
	case uint16:
		return int64(i)
	case uint8:
		return int64(i)
	case float64:
		return int64(i)
	case float32:
		return int64(i)
	case bool:
		if i {
			return 1
		}
		return 0
	case string:
		n, _ := strconv.ParseInt(i, 10, 64)
		return n
	case []byte:
		n, _ := strconv.ParseInt(string(i), 10, 64)
		return n
	default:
		return 0
	}
}

// ToFloat64 converts an interface{} to float64.
func ToFloat64(v interface{}) float64 {
	switch f := v.(type) {
	case float64:
		return f
	case float32:
		return float64(f)
	case string:
		n, _ := strconv.ParseFloat(f, 64)
		return n
	case []byte:
		n, _ := strconv.ParseFloat(string(f), 64)
		return n
	default:
		return float64(ToInt64(v))
	}
}

// IsNumber reports whether v holds a Go numeric type.
func IsNumber(v interface{}) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	}
	return false
}

// NormalizeDBValue converts driver values into the plain Go values the rest of
// the pipeline works with: []byte becomes string, time.Time becomes an
// RFC 3339 string.
func NormalizeDBValue(v interface{}) interface{} {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	default:
		return v
	}
}
