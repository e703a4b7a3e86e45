package stored

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Function represents a callable registered against evaluators.
type Function func(args ...any) (any, error)

// FunctionRegistry stores custom functions keyed by lower-cased name.
type FunctionRegistry struct {
	mu        sync.RWMutex
	functions map[string]Function
}

// NewFunctionRegistry constructs an empty registry.
func NewFunctionRegistry() *FunctionRegistry {
	return &FunctionRegistry{
		functions: make(map[string]Function),
	}
}

// Register stores fn under name guarding against duplicates.
func (r *FunctionRegistry) Register(name string, fn Function) error {
	if fn == nil {
		return fmt.Errorf("stored: function %q is nil", name)
	}
	if name == "" {
		return fmt.Errorf("stored: function name must not be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.functions == nil {
		r.functions = make(map[string]Function)
	}
	key := strings.ToLower(name)
	if _, exists := r.functions[key]; exists {
		return fmt.Errorf("stored: function %q already registered", name)
	}
	r.functions[key] = fn
	return nil
}

// Clone returns a shallow copy of the registry.
func (r *FunctionRegistry) Clone() *FunctionRegistry {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	clone := &FunctionRegistry{
		functions: make(map[string]Function, len(r.functions)),
	}
	for name, fn := range r.functions {
		clone.functions[name] = fn
	}
	return clone
}

// Call executes the function registered for name.
func (r *FunctionRegistry) Call(name string, args ...any) (any, error) {
	if r == nil {
		return nil, fmt.Errorf("stored: function registry is nil")
	}
	r.mu.RLock()
	fn := r.functions[strings.ToLower(name)]
	r.mu.RUnlock()
	if fn == nil {
		return nil, fmt.Errorf("stored: function %q not registered", name)
	}
	return fn(args...)
}

// Names returns registered function names sorted alphabetically.
func (r *FunctionRegistry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.functions))
	for name := range r.functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RecordFunctions returns a registry with the helpers record rules commonly
// need: boundary("HH:MM") resolves the last daily boundary and
// elapsed(t) returns the whole seconds since t.
func RecordFunctions(resolver BoundaryResolver, clock func() time.Time) *FunctionRegistry {
	if clock == nil {
		clock = time.Now
	}
	registry := NewFunctionRegistry()
	_ = registry.Register("elapsed", func(args ...any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("stored: elapsed expects 1 argument, got %d", len(args))
		}
		t, ok := args[0].(time.Time)
		if !ok {
			return nil, fmt.Errorf("stored: elapsed expects a time, got %T", args[0])
		}
		return int(clock().Sub(t) / time.Second), nil
	})
	if resolver != nil {
		_ = registry.Register("boundary", func(args ...any) (any, error) {
			if len(args) != 1 {
				return nil, fmt.Errorf("stored: boundary expects 1 argument, got %d", len(args))
			}
			hhmm, ok := args[0].(string)
			if !ok {
				return nil, fmt.Errorf("stored: boundary expects a string, got %T", args[0])
			}
			return resolver.LastBoundary(hhmm)
		})
	}
	return registry
}

// WithFunctionRegistry configures the record to use registry.
func WithFunctionRegistry(registry *FunctionRegistry) Option {
	return func(cfg *recordConfig) {
		if registry == nil {
			return
		}
		cfg.functions = registry.Clone()
	}
}

// WithCustomFunction registers fn under name for the record.
func WithCustomFunction(name string, fn Function) Option {
	return func(cfg *recordConfig) {
		if cfg.functions == nil {
			cfg.functions = NewFunctionRegistry()
		}
		_ = cfg.functions.Register(name, fn)
	}
}
