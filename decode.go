package stored

import (
	"fmt"

	"github.com/goliatone/go-stored/internal/hydrate"
)

// DecodeOption configures DecodeSnapshot.
type DecodeOption[T any] func(*[]hydrate.DecoderOption[T])

// DecodeStrict rejects snapshot attributes T does not declare.
func DecodeStrict[T any]() DecodeOption[T] {
	return func(opts *[]hydrate.DecoderOption[T]) {
		*opts = append(*opts, hydrate.WithDisallowUnknownFields[T]())
	}
}

// DecodeValidate runs fn on the decoded value.
func DecodeValidate[T any](fn func(key string, value *T) error) DecodeOption[T] {
	return func(opts *[]hydrate.DecoderOption[T]) {
		if fn == nil {
			return
		}
		*opts = append(*opts, hydrate.WithPostHook[T](func(ctx hydrate.Context, value *T) error {
			return fn(ctx.Key, value)
		}))
	}
}

// DecodeSnapshot reads rec's snapshot into a caller defined struct. Fields
// map by encoding/json tags; the time attribute decodes into time.Time.
func DecodeSnapshot[T any](rec Stored, opts ...DecodeOption[T]) (T, error) {
	var zero T
	if rec == nil {
		return zero, fmt.Errorf("stored: decode: record is nil")
	}
	snapshot, err := rec.Snapshot()
	if err != nil {
		return zero, err
	}
	var decoderOpts []hydrate.DecoderOption[T]
	for _, opt := range opts {
		if opt != nil {
			opt(&decoderOpts)
		}
	}
	decoder := hydrate.NewDecoder[T](decoderOpts...)
	return decoder.Decode(hydrate.Context{Key: rec.Key(), Name: rec.Name()}, snapshot)
}
