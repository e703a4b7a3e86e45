package stored

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-stored/internal/hydrate"
)

// Stored is the surface shared by every record type.
type Stored interface {
	Key() string
	Name() string
	Schema() *Schema
	Bind(config Config)
	Get(name string) (Value, error)
	Set(name string, value Value) error
	Snapshot() (map[string]any, error)
	Show() error
	Dashboard() string
	IsExpired() (bool, error)
	ReadableTime() (string, TimeBucket, error)
}

// Record is a lazily hydrated, validated view over one entry of the
// configuration tree. Records are cheap; create one per use site.
type Record struct {
	schema   *Schema
	key      string
	name     string
	config   Config
	snapshot map[string]Value
	cfg      recordConfig
}

var _ Stored = (*Record)(nil)

// NewRecord creates an unbound record of schema stored at the dotted key.
func NewRecord(schema *Schema, key string, opts ...Option) *Record {
	if schema == nil {
		schema = NewSchema("")
	}
	return &Record{
		schema: schema,
		key:    key,
		name:   lastSegment(key),
		cfg:    applyOptions(opts),
	}
}

func lastSegment(key string) string {
	if idx := strings.LastIndex(key, "."); idx >= 0 {
		return key[idx+1:]
	}
	return key
}

func (r *Record) Key() string {
	return r.key
}

// Name is the last segment of the key.
func (r *Record) Name() string {
	return r.name
}

func (r *Record) Schema() *Schema {
	return r.schema
}

// Bind attaches the configuration collaborator. It must be called before any
// attribute access.
func (r *Record) Bind(config Config) {
	r.config = config
}

// Bound reports whether Bind has been called with a non-nil Config.
func (r *Record) Bound() bool {
	return r.config != nil
}

func (r *Record) logger() Logger {
	return r.cfg.logger
}

func (r *Record) now() time.Time {
	return r.cfg.clock().Truncate(time.Second)
}

func (r *Record) requireBound(op string) error {
	if r.config == nil {
		return &PreconditionError{Op: op, Key: r.key, Err: ErrNotBound}
	}
	return nil
}

// stored returns the hydrated snapshot, hydrating on first access and
// running snapshot hooks on every access.
func (r *Record) stored(op string) (map[string]Value, error) {
	if err := r.requireBound(op); err != nil {
		return nil, err
	}
	if r.snapshot == nil {
		r.snapshot = r.hydrate()
	}
	for _, hook := range r.cfg.hooks {
		hook(r.snapshot)
	}
	return r.snapshot, nil
}

func (r *Record) hydrate() map[string]Value {
	raw := r.config.Get(r.key, map[string]any{})
	node, ok := hydrate.Map(raw)
	if !ok {
		if raw != nil {
			r.logger().Warning(fmt.Sprintf("%s is not a mapping: %v, use defaults", r.name, raw))
		}
		node = map[string]any{}
	}

	out := make(map[string]Value, r.schema.Len())
	for _, field := range r.schema.fields {
		value, present := node[field.Name]
		if !present {
			out[field.Name] = field.Default
			continue
		}
		coerced, ok := coerce(field.Default.Kind(), value)
		if !ok {
			r.logger().Warning(fmt.Sprintf("%s has invalid attr: %s=%v, use default=%v", r.name, field.Name, value, field.Default))
			coerced = field.Default
		}
		out[field.Name] = coerced
	}
	return out
}

// Get returns the current value of a schema attribute.
func (r *Record) Get(name string) (Value, error) {
	if !r.schema.Has(name) {
		return Value{}, fmt.Errorf("%w: %q on %s", ErrUnknownAttribute, name, r.key)
	}
	stored, err := r.stored("get")
	if err != nil {
		return Value{}, err
	}
	return stored[name], nil
}

// Set stamps the time attribute, writes value, registers the whole snapshot
// as modified and flushes when the config is in auto-update mode.
func (r *Record) Set(name string, value Value) error {
	def, ok := r.schema.Default(name)
	if !ok {
		return fmt.Errorf("%w: %q on %s", ErrUnknownAttribute, name, r.key)
	}
	if value.Kind() != def.Kind() {
		return &TypeMismatchError{Key: r.key, Attr: name, Want: def.Kind(), Got: value.Kind()}
	}
	stored, err := r.stored("set")
	if err != nil {
		return err
	}
	stored[TimeAttr] = Time(r.now())
	stored[name] = value
	r.config.MarkModified(r.key, nativeSnapshot(stored))
	if r.config.AutoUpdate() {
		return r.config.Update()
	}
	return nil
}

// batch runs fn inside the bound config's MultiSet scope.
func (r *Record) batch(op string, fn func() error) error {
	if err := r.requireBound(op); err != nil {
		return err
	}
	return r.config.MultiSet(fn)
}

func (r *Record) GetInt(name string) (int, error) {
	v, err := r.Get(name)
	if err != nil {
		return 0, err
	}
	n, ok := v.AsInt()
	if !ok {
		return 0, &TypeMismatchError{Key: r.key, Attr: name, Want: KindInt, Got: v.Kind()}
	}
	return n, nil
}

func (r *Record) GetString(name string) (string, error) {
	v, err := r.Get(name)
	if err != nil {
		return "", err
	}
	s, ok := v.AsString()
	if !ok {
		return "", &TypeMismatchError{Key: r.key, Attr: name, Want: KindString, Got: v.Kind()}
	}
	return s, nil
}

func (r *Record) GetTime(name string) (time.Time, error) {
	v, err := r.Get(name)
	if err != nil {
		return time.Time{}, err
	}
	t, ok := v.AsTime()
	if !ok {
		return time.Time{}, &TypeMismatchError{Key: r.key, Attr: name, Want: KindTime, Got: v.Kind()}
	}
	return t, nil
}

// Time returns the last write stamp.
func (r *Record) Time() (time.Time, error) {
	return r.GetTime(TimeAttr)
}

// Snapshot returns a copy of the hydrated values as native Go values.
func (r *Record) Snapshot() (map[string]any, error) {
	stored, err := r.stored("snapshot")
	if err != nil {
		return nil, err
	}
	return nativeSnapshot(stored), nil
}

func nativeSnapshot(stored map[string]Value) map[string]any {
	out := make(map[string]any, len(stored))
	for name, value := range stored {
		out[name] = value.Any()
	}
	return out
}

// Show logs the record name and its full snapshot.
func (r *Record) Show() error {
	snapshot, err := r.Snapshot()
	if err != nil {
		return err
	}
	r.logger().Attr(r.name, snapshot)
	return nil
}

// Dashboard returns a short label for UI consumption.
func (r *Record) Dashboard() string {
	return "None"
}

// IsExpired is always false for plain records.
func (r *Record) IsExpired() (bool, error) {
	return false, nil
}

// TimeBucket labels the ReadableTime result.
type TimeBucket string

const (
	TimeError   TimeBucket = "TimeError"
	JustNow     TimeBucket = "JustNow"
	MinutesAgo  TimeBucket = "MinutesAgo"
	HoursAgo    TimeBucket = "HoursAgo"
	DaysAgo     TimeBucket = "DaysAgo"
	LongTimeAgo TimeBucket = "LongTimeAgo"
)

// ReadableTime buckets the distance between the stored time and now.
func (r *Record) ReadableTime() (string, TimeBucket, error) {
	stamped, err := r.Time()
	if err != nil {
		return "", TimeError, err
	}
	magnitude, bucket := readableTime(stamped, r.cfg.clock())
	return magnitude, bucket, nil
}

// readableTime computes diff as stored minus now. The HoursAgo and DaysAgo
// divisors are kept as 86400 and 129600.
func readableTime(stamped, now time.Time) (string, TimeBucket) {
	diff := stamped.Sub(now).Seconds()
	switch {
	case diff < -1:
		return "", TimeError
	case diff < 60:
		return "", JustNow
	case diff < 3600:
		return floorDiv(diff, 60), MinutesAgo
	case diff < 86400:
		return floorDiv(diff, 86400), HoursAgo
	case diff < 129600:
		return floorDiv(diff, 129600), DaysAgo
	default:
		return "", LongTimeAgo
	}
}

func floorDiv(diff, unit float64) string {
	return strconv.Itoa(int(math.Floor(diff / unit)))
}
