// Package quest resolves stored daily quest names against a keyword table.
package quest

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"

	stored "github.com/goliatone/go-stored"
)

// Keyword is one known daily quest.
type Keyword struct {
	Name    string   `yaml:"name" json:"name"`
	Aliases []string `yaml:"aliases,omitempty" json:"aliases,omitempty"`
	Points  int      `yaml:"points,omitempty" json:"points,omitempty"`
}

// QuestName implements stored.Quest.
func (k Keyword) QuestName() string {
	return k.Name
}

// Table is an immutable name and alias index over keywords.
type Table struct {
	keywords []Keyword
	index    map[string]int
}

var _ stored.QuestResolver = (*Table)(nil)

// NewTable indexes keywords. Names and aliases are matched case and
// separator insensitively; a duplicate key is an error.
func NewTable(keywords ...Keyword) (*Table, error) {
	t := &Table{index: map[string]int{}}
	for _, kw := range keywords {
		if strings.TrimSpace(kw.Name) == "" {
			return nil, fmt.Errorf("quest: keyword name is required")
		}
		pos := len(t.keywords)
		t.keywords = append(t.keywords, kw)
		for _, key := range append([]string{kw.Name}, kw.Aliases...) {
			norm := normalize(key)
			if norm == "" {
				continue
			}
			if prev, ok := t.index[norm]; ok && prev != pos {
				return nil, fmt.Errorf("quest: %q is declared by %q and %q", key, t.keywords[prev].Name, kw.Name)
			}
			t.index[norm] = pos
		}
	}
	return t, nil
}

// Resolve looks up a stored name. Unknown names wrap stored.ErrQuestNotFound.
func (t *Table) Resolve(name string) (stored.Quest, error) {
	if t != nil {
		if pos, ok := t.index[normalize(name)]; ok {
			return t.keywords[pos], nil
		}
	}
	return nil, fmt.Errorf("%w: %q", stored.ErrQuestNotFound, name)
}

// Names returns the canonical names sorted alphabetically.
func (t *Table) Names() []string {
	names := make([]string, len(t.keywords))
	for i, kw := range t.keywords {
		names[i] = kw.Name
	}
	sort.Strings(names)
	return names
}

func (t *Table) Len() int {
	return len(t.keywords)
}

// Load reads a YAML (or JSON) list of keywords from path.
func Load(path string) (*Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("quest: read %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse decodes a YAML list of keywords. Plain strings are accepted as
// keywords without aliases.
func Parse(raw []byte) (*Table, error) {
	var nodes []yaml.Node
	if err := yaml.Unmarshal(raw, &nodes); err != nil {
		return nil, fmt.Errorf("quest: decode: %w", err)
	}
	keywords := make([]Keyword, 0, len(nodes))
	for i := range nodes {
		node := &nodes[i]
		if node.Kind == yaml.ScalarNode {
			keywords = append(keywords, Keyword{Name: node.Value})
			continue
		}
		var kw Keyword
		if err := node.Decode(&kw); err != nil {
			return nil, fmt.Errorf("quest: decode entry %d: %w", i, err)
		}
		keywords = append(keywords, kw)
	}
	return NewTable(keywords...)
}

func normalize(name string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(name) {
		switch {
		case r == ' ' || r == '_' || r == '-':
			b.WriteRune('_')
		default:
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}
