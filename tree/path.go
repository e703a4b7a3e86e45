// Package tree implements dotted-path access, deep cloning and layered
// merging over generic nested configuration trees (map[string]any).
package tree

import (
	"strings"
)

// Split breaks a dotted key into segments. Empty segments are dropped.
func Split(key string) []string {
	parts := strings.Split(key, ".")
	out := parts[:0]
	for _, part := range parts {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// DeepGet returns the value at the dotted key, or def when any segment is
// absent or an intermediate value is not a mapping.
func DeepGet(data map[string]any, key string, def any) any {
	segments := Split(key)
	if len(segments) == 0 || data == nil {
		return def
	}
	var current any = data
	for _, segment := range segments {
		node, ok := asMap(current)
		if !ok {
			return def
		}
		next, ok := node[segment]
		if !ok {
			return def
		}
		current = next
	}
	return current
}

// DeepSet stores value at the dotted key, creating or replacing intermediate
// mappings as needed. It reports false for an empty key.
func DeepSet(data map[string]any, key string, value any) bool {
	segments := Split(key)
	if len(segments) == 0 || data == nil {
		return false
	}
	node := data
	for _, segment := range segments[:len(segments)-1] {
		child, ok := asMap(node[segment])
		if !ok {
			child = map[string]any{}
			node[segment] = child
		} else if _, native := node[segment].(map[string]any); !native {
			node[segment] = child
		}
		node = child
	}
	node[segments[len(segments)-1]] = value
	return true
}

// DeepDelete removes the value at the dotted key and reports whether
// something was removed.
func DeepDelete(data map[string]any, key string) bool {
	segments := Split(key)
	if len(segments) == 0 || data == nil {
		return false
	}
	node := data
	for _, segment := range segments[:len(segments)-1] {
		child, ok := node[segment].(map[string]any)
		if !ok {
			return false
		}
		node = child
	}
	last := segments[len(segments)-1]
	if _, ok := node[last]; !ok {
		return false
	}
	delete(node, last)
	return true
}

// Keys returns the dotted keys of every leaf under data, where a leaf is any
// value that is not a non-empty mapping. Keys are emitted depth first in
// sorted segment order.
func Keys(data map[string]any) []string {
	var keys []string
	walk(data, "", func(key string, _ any) {
		keys = append(keys, key)
	})
	return keys
}

func asMap(value any) (map[string]any, bool) {
	switch typed := value.(type) {
	case map[string]any:
		return typed, true
	case map[any]any:
		out := make(map[string]any, len(typed))
		for k, v := range typed {
			name, ok := k.(string)
			if !ok {
				return nil, false
			}
			out[name] = v
		}
		return out, true
	default:
		return nil, false
	}
}

func joinPath(prefix, segment string) string {
	if prefix == "" {
		return segment
	}
	return prefix + "." + segment
}
