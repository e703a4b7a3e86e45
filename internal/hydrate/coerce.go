package hydrate

import (
	"encoding/json"
	"math"
	"strings"
	"time"
)

// timeLayouts lists the accepted textual timestamp layouts. Layouts without a
// zone are interpreted in the local timezone.
var timeLayouts = []struct {
	layout string
	zoned  bool
}{
	{time.RFC3339Nano, true},
	{"2006-01-02T15:04:05.999999999", false},
	{"2006-01-02 15:04:05.999999999", false},
	{"2006-01-02 15:04:05.999999999Z07:00", true},
	{"2006-01-02T15:04", false},
	{"2006-01-02 15:04", false},
	{"2006-01-02", false},
}

// Map reports whether raw is a flat attribute mapping.
func Map(raw any) (map[string]any, bool) {
	switch typed := raw.(type) {
	case map[string]any:
		return typed, true
	case map[any]any:
		out := make(map[string]any, len(typed))
		for key, value := range typed {
			name, ok := key.(string)
			if !ok {
				return nil, false
			}
			out[name] = value
		}
		return out, true
	default:
		return nil, false
	}
}

// Int accepts any Go integer, an integral float (JSON numbers) or a
// json.Number holding an integer. Booleans are rejected.
func Int(raw any) (int, bool) {
	switch n := raw.(type) {
	case int:
		return n, true
	case int8:
		return int(n), true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		if n > math.MaxInt || n < math.MinInt {
			return 0, false
		}
		return int(n), true
	case uint:
		if uint64(n) > math.MaxInt {
			return 0, false
		}
		return int(n), true
	case uint8:
		return int(n), true
	case uint16:
		return int(n), true
	case uint32:
		return int(n), true
	case uint64:
		if n > math.MaxInt {
			return 0, false
		}
		return int(n), true
	case float64:
		return integral(n)
	case float32:
		return integral(float64(n))
	case json.Number:
		v, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return Int(v)
	default:
		return 0, false
	}
}

func integral(f float64) (int, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	if f > math.MaxInt64 || f < math.MinInt64 {
		return 0, false
	}
	return int(f), true
}

// String accepts only string values.
func String(raw any) (string, bool) {
	s, ok := raw.(string)
	return s, ok
}

// Time accepts time.Time values or strings in one of the ISO-like layouts.
func Time(raw any) (time.Time, bool) {
	switch typed := raw.(type) {
	case time.Time:
		return typed, true
	case *time.Time:
		if typed == nil {
			return time.Time{}, false
		}
		return *typed, true
	case string:
		return parseTime(typed)
	default:
		return time.Time{}, false
	}
}

func parseTime(text string) (time.Time, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, false
	}
	for _, candidate := range timeLayouts {
		var (
			t   time.Time
			err error
		)
		if candidate.zoned {
			t, err = time.Parse(candidate.layout, text)
		} else {
			t, err = time.ParseInLocation(candidate.layout, text, time.Local)
		}
		if err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
