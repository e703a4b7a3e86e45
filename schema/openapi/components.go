package openapi

import (
	"fmt"
	"regexp"
	"strings"
)

// componentNames hands out unique, sanitized component names.
type componentNames struct {
	used map[string]struct{}
}

func newComponentNames() *componentNames {
	return &componentNames{used: map[string]struct{}{}}
}

func (r *componentNames) unique(hint string) string {
	safe := sanitizeComponentName(hint)
	if safe == "" {
		safe = "Record"
	}
	if _, exists := r.used[safe]; !exists {
		r.used[safe] = struct{}{}
		return safe
	}
	suffix := 1
	for {
		candidate := fmt.Sprintf("%s%d", safe, suffix)
		if _, exists := r.used[candidate]; !exists {
			r.used[candidate] = struct{}{}
			return candidate
		}
		suffix++
	}
}

var componentNameRegexp = regexp.MustCompile(`[^a-zA-Z0-9_]+`)

// sanitizeComponentName turns a record type name such as "daily_activity"
// into "DailyActivityRecord".
func sanitizeComponentName(name string) string {
	name = componentNameRegexp.ReplaceAllString(name, "_")
	var b strings.Builder
	for _, part := range strings.Split(name, "_") {
		if part == "" {
			continue
		}
		b.WriteString(strings.ToUpper(part[:1]))
		b.WriteString(part[1:])
	}
	out := b.String()
	if out == "" {
		return ""
	}
	if out[0] >= '0' && out[0] <= '9' {
		out = "_" + out
	}
	return out + "Record"
}
