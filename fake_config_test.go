package stored

import (
	"fmt"

	"github.com/goliatone/go-stored/tree"
)

// fakeConfig is an in-memory Config that records how records drive it.
type fakeConfig struct {
	data      map[string]any
	modified  map[string]map[string]any
	auto      bool
	depth     int
	marks     int
	updates   int
	updateErr error
}

func newFakeConfig(data map[string]any) *fakeConfig {
	if data == nil {
		data = map[string]any{}
	}
	return &fakeConfig{data: data, modified: map[string]map[string]any{}}
}

func (c *fakeConfig) Get(key string, def any) any {
	return tree.DeepGet(c.data, key, def)
}

func (c *fakeConfig) MarkModified(key string, snapshot map[string]any) {
	c.marks++
	c.modified[key] = snapshot
}

func (c *fakeConfig) AutoUpdate() bool {
	return c.auto && c.depth == 0
}

func (c *fakeConfig) Update() error {
	c.updates++
	if c.updateErr != nil {
		return c.updateErr
	}
	for key, snapshot := range c.modified {
		tree.DeepSet(c.data, key, snapshot)
	}
	c.modified = map[string]map[string]any{}
	return nil
}

func (c *fakeConfig) MultiSet(fn func() error) (err error) {
	c.depth++
	defer func() {
		c.depth--
		if c.depth == 0 && len(c.modified) > 0 {
			if uerr := c.Update(); uerr != nil && err == nil {
				err = uerr
			}
		}
	}()
	return fn()
}

type logEntry struct {
	level string
	msg   string
	value any
}

type recordingLogger struct {
	entries []logEntry
}

func (l *recordingLogger) Attr(name string, value any) {
	l.entries = append(l.entries, logEntry{level: "attr", msg: name, value: value})
}

func (l *recordingLogger) Warning(msg string) {
	l.entries = append(l.entries, logEntry{level: "warning", msg: msg})
}

func (l *recordingLogger) Info(msg string) {
	l.entries = append(l.entries, logEntry{level: "info", msg: msg})
}

func (l *recordingLogger) messages(level string) []string {
	var out []string
	for _, entry := range l.entries {
		if entry.level == level {
			out = append(out, entry.msg)
		}
	}
	return out
}

func (l *recordingLogger) String() string {
	return fmt.Sprint(l.entries)
}
