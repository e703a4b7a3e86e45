package stored

import (
	"fmt"
	"sort"
	"sync"
)

// Factory builds an unbound record of one type.
type Factory func(key string, opts ...Option) Stored

var factories = struct {
	sync.RWMutex
	byType map[string]Factory
}{byType: map[string]Factory{
	"int":            func(key string, opts ...Option) Stored { return NewInt(key, opts...) },
	"counter":        func(key string, opts ...Option) Stored { return NewCounter(key, opts...) },
	"daily_activity": func(key string, opts ...Option) Stored { return NewDailyActivity(key, opts...) },
	"daily":          func(key string, opts ...Option) Stored { return NewDailyQuest(key, opts...) },
	"dungeon_double": func(key string, opts ...Option) Stored { return NewDungeonDouble(key, opts...) },
}}

// RegisterType makes a record type constructible by name.
func RegisterType(typeName string, factory Factory) error {
	if typeName == "" {
		return fmt.Errorf("stored: record type name must not be empty")
	}
	if factory == nil {
		return fmt.Errorf("stored: record type %q factory is nil", typeName)
	}
	factories.Lock()
	defer factories.Unlock()
	if _, exists := factories.byType[typeName]; exists {
		return fmt.Errorf("stored: record type %q already registered", typeName)
	}
	factories.byType[typeName] = factory
	return nil
}

// NewByType constructs a record of a registered type.
func NewByType(typeName, key string, opts ...Option) (Stored, error) {
	factories.RLock()
	factory := factories.byType[typeName]
	factories.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("stored: record type %q not registered", typeName)
	}
	return factory(key, opts...), nil
}

// Types returns the registered record type names sorted alphabetically.
func Types() []string {
	factories.RLock()
	defer factories.RUnlock()
	names := make([]string, 0, len(factories.byType))
	for name := range factories.byType {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
