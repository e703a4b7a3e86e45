package tree

import (
	"sort"
	"time"
)

// MergeLayers composes trees ordered from strongest to weakest, returning a
// new, never nil, tree that keeps explicit values from stronger layers while filling
// missing keys from weaker ones. Mappings merge recursively; any other value
// in a stronger layer replaces the weaker value wholesale.
func MergeLayers(layers ...map[string]any) map[string]any {
	if len(layers) == 0 {
		return map[string]any{}
	}
	merged := Clone(layers[len(layers)-1])
	for i := len(layers) - 2; i >= 0; i-- {
		merged = mergeMaps(layers[i], merged)
	}
	if merged == nil {
		merged = map[string]any{}
	}
	return merged
}

func mergeMaps(strong, weak map[string]any) map[string]any {
	if strong == nil {
		return Clone(weak)
	}
	result := Clone(weak)
	if result == nil {
		result = make(map[string]any, len(strong))
	}
	for key, value := range strong {
		strongMap, strongIsMap := asMap(value)
		weakMap, weakIsMap := asMap(result[key])
		if strongIsMap && weakIsMap {
			result[key] = mergeMaps(strongMap, weakMap)
			continue
		}
		result[key] = cloneValue(value)
	}
	return result
}

// Clone deep copies a tree. Mappings and slices are copied; scalars and
// time.Time values are shared by value.
func Clone(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}
	out := make(map[string]any, len(data))
	for key, value := range data {
		out[key] = cloneValue(value)
	}
	return out
}

func cloneValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return Clone(typed)
	case map[any]any:
		if converted, ok := asMap(typed); ok {
			return Clone(converted)
		}
		return typed
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return append([]string(nil), typed...)
	case time.Time:
		return typed
	default:
		return typed
	}
}

// walk visits leaves depth first in sorted key order.
func walk(data map[string]any, prefix string, visit func(key string, value any)) {
	names := make([]string, 0, len(data))
	for name := range data {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		key := joinPath(prefix, name)
		if child, ok := asMap(data[name]); ok && len(child) > 0 {
			walk(child, key, visit)
			continue
		}
		visit(key, data[name])
	}
}
