package stored

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-stored/internal/hydrate"
)

// Kind identifies which member of the Value union is populated.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindInt
	KindString
	KindTime
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindString:
		return "string"
	case KindTime:
		return "time"
	default:
		return "invalid"
	}
}

// TimeLayout is the display layout used for stored timestamps.
const TimeLayout = "2006-01-02 15:04:05"

// Value is the tagged union stored in a record snapshot. The zero Value is
// invalid and never appears in a hydrated snapshot.
type Value struct {
	kind Kind
	i    int
	s    string
	t    time.Time
}

// Int wraps an integer.
func Int(v int) Value {
	return Value{kind: KindInt, i: v}
}

// String wraps a string.
func String(v string) Value {
	return Value{kind: KindString, s: v}
}

// Time wraps a timestamp.
func Time(v time.Time) Value {
	return Value{kind: KindTime, t: v}
}

// Kind reports the populated member.
func (v Value) Kind() Kind {
	return v.kind
}

// IsValid reports whether v holds one of the supported kinds.
func (v Value) IsValid() bool {
	return v.kind != KindInvalid
}

func (v Value) AsInt() (int, bool) {
	return v.i, v.kind == KindInt
}

func (v Value) AsString() (string, bool) {
	return v.s, v.kind == KindString
}

func (v Value) AsTime() (time.Time, bool) {
	return v.t, v.kind == KindTime
}

// Any returns the native Go value written into the configuration tree.
func (v Value) Any() any {
	switch v.kind {
	case KindInt:
		return v.i
	case KindString:
		return v.s
	case KindTime:
		return v.t
	default:
		return nil
	}
}

// Equal compares kind and payload. Times are compared with time.Time.Equal.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindInt:
		return v.i == other.i
	case KindString:
		return v.s == other.s
	case KindTime:
		return v.t.Equal(other.t)
	default:
		return true
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindInt:
		return strconv.Itoa(v.i)
	case KindString:
		return v.s
	case KindTime:
		return v.t.Format(TimeLayout)
	default:
		return "<invalid>"
	}
}

// ParseValue converts user supplied text into a Value of the requested kind.
func ParseValue(kind Kind, text string) (Value, error) {
	switch kind {
	case KindInt:
		n, err := strconv.Atoi(strings.TrimSpace(text))
		if err != nil {
			return Value{}, fmt.Errorf("stored: parse int %q: %w", text, err)
		}
		return Int(n), nil
	case KindString:
		return String(text), nil
	case KindTime:
		t, ok := hydrate.Time(text)
		if !ok {
			return Value{}, fmt.Errorf("stored: parse time %q: unsupported layout", text)
		}
		return Time(t), nil
	default:
		return Value{}, fmt.Errorf("stored: cannot parse into kind %s", kind)
	}
}

// coerce validates a raw tree value against kind. It never fails loudly; the
// boolean reports whether raw was acceptable.
func coerce(kind Kind, raw any) (Value, bool) {
	switch kind {
	case KindInt:
		if n, ok := hydrate.Int(raw); ok {
			return Int(n), true
		}
	case KindString:
		if s, ok := hydrate.String(raw); ok {
			return String(s), true
		}
	case KindTime:
		if t, ok := hydrate.Time(raw); ok {
			return Time(t), true
		}
	}
	return Value{}, false
}
