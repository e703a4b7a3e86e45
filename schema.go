package stored

import (
	"sort"
	"sync"
	"time"
)

// TimeAttr is the synthetic attribute stamped on every write.
const TimeAttr = "time"

// Never is the default value of the time attribute for records that have
// never been written.
var Never = time.Date(2020, 1, 1, 0, 0, 0, 0, time.Local)

// Field declares one attribute and its default value.
type Field struct {
	Name    string
	Default Value
}

func IntField(name string, def int) Field {
	return Field{Name: name, Default: Int(def)}
}

func StringField(name string, def string) Field {
	return Field{Name: name, Default: String(def)}
}

func TimeField(name string, def time.Time) Field {
	return Field{Name: name, Default: Time(def)}
}

// FieldDescriptor describes an attribute path and its kind for tooling.
type FieldDescriptor struct {
	Path    string `json:"path"`
	Type    string `json:"type"`
	Default any    `json:"default"`
}

// Schema is the ordered set of attributes declared by a record type. The time
// attribute is always first. A Schema is immutable once built.
type Schema struct {
	typeName string
	fields   []Field
	index    map[string]int
}

// NewSchema declares a record type. The time attribute is inserted first;
// a declared "time" field is ignored. Redeclaring a name keeps its first
// position and takes the later default.
func NewSchema(typeName string, fields ...Field) *Schema {
	s := &Schema{
		typeName: typeName,
		fields:   []Field{{Name: TimeAttr, Default: Time(Never)}},
		index:    map[string]int{TimeAttr: 0},
	}
	for _, field := range fields {
		if field.Name == "" || field.Name == TimeAttr || !field.Default.IsValid() {
			continue
		}
		if pos, ok := s.index[field.Name]; ok {
			s.fields[pos].Default = field.Default
			continue
		}
		s.index[field.Name] = len(s.fields)
		s.fields = append(s.fields, field)
	}
	return s
}

// Extend derives a subtype schema. Fields redeclared by the subtype override
// the inherited defaults.
func (s *Schema) Extend(typeName string, fields ...Field) *Schema {
	combined := append(s.userFields(), fields...)
	return NewSchema(typeName, combined...)
}

// Compose merges s with other schemas in order. On name collisions the first
// declaration wins.
func (s *Schema) Compose(typeName string, others ...*Schema) *Schema {
	seen := map[string]struct{}{}
	var combined []Field
	for _, schema := range append([]*Schema{s}, others...) {
		if schema == nil {
			continue
		}
		for _, field := range schema.userFields() {
			if _, ok := seen[field.Name]; ok {
				continue
			}
			seen[field.Name] = struct{}{}
			combined = append(combined, field)
		}
	}
	return NewSchema(typeName, combined...)
}

func (s *Schema) userFields() []Field {
	if s == nil || len(s.fields) < 2 {
		return nil
	}
	return append([]Field(nil), s.fields[1:]...)
}

// TypeName returns the declared record type name.
func (s *Schema) TypeName() string {
	return s.typeName
}

// Len returns the number of attributes including time.
func (s *Schema) Len() int {
	return len(s.fields)
}

// Names returns attribute names in schema order.
func (s *Schema) Names() []string {
	names := make([]string, len(s.fields))
	for i, field := range s.fields {
		names[i] = field.Name
	}
	return names
}

// Fields returns a copy of the declared fields.
func (s *Schema) Fields() []Field {
	return append([]Field(nil), s.fields...)
}

func (s *Schema) Has(name string) bool {
	_, ok := s.index[name]
	return ok
}

func (s *Schema) Default(name string) (Value, bool) {
	pos, ok := s.index[name]
	if !ok {
		return Value{}, false
	}
	return s.fields[pos].Default, true
}

// Descriptors returns a flattened description of the schema.
func (s *Schema) Descriptors() []FieldDescriptor {
	out := make([]FieldDescriptor, len(s.fields))
	for i, field := range s.fields {
		out[i] = FieldDescriptor{
			Path:    field.Name,
			Type:    field.Default.Kind().String(),
			Default: field.Default.Any(),
		}
	}
	return out
}

var schemaRegistry = struct {
	sync.RWMutex
	schemas map[string]*Schema
}{schemas: map[string]*Schema{}}

// RegisterSchema caches s under its type name. When a schema is already
// registered for the name the cached instance is returned and s is discarded,
// so each record type resolves its schema once per process.
func RegisterSchema(s *Schema) *Schema {
	schemaRegistry.Lock()
	defer schemaRegistry.Unlock()
	if existing, ok := schemaRegistry.schemas[s.typeName]; ok {
		return existing
	}
	schemaRegistry.schemas[s.typeName] = s
	return s
}

// SchemaFor looks up a registered schema.
func SchemaFor(typeName string) (*Schema, bool) {
	schemaRegistry.RLock()
	defer schemaRegistry.RUnlock()
	s, ok := schemaRegistry.schemas[typeName]
	return s, ok
}

// RegisteredSchemas returns the registered type names sorted alphabetically.
func RegisteredSchemas() []string {
	schemaRegistry.RLock()
	defer schemaRegistry.RUnlock()
	names := make([]string, 0, len(schemaRegistry.schemas))
	for name := range schemaRegistry.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
