package virtual

import (
	"embed"
	"fmt"
	"sort"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/dkoosis/fobot/pkg/keys"
)

//go:embed layouts/*.yaml
var layoutFS embed.FS

// Layout translates a key code and shift state into the character a text
// field receives. A zero rune means the key produces nothing.
type Layout struct {
	name  string
	table map[keys.Code][2]rune
}

type layoutFile struct {
	Name string              `yaml:"name"`
	Keys map[string][]string `yaml:"keys"`
}

// NewLayout builds a layout from an explicit table.
func NewLayout(name string, table map[keys.Code][2]rune) *Layout {
	cp := make(map[keys.Code][2]rune, len(table))
	for k, v := range table {
		cp[k] = v
	}
	return &Layout{name: name, table: cp}
}

// LoadLayout returns one of the built-in layouts ("us", "de").
func LoadLayout(name string) (*Layout, error) {
	data, err := layoutFS.ReadFile("layouts/" + name + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("unknown layout %q (available: %v)", name, Layouts())
	}
	return ParseLayout(data)
}

// Layouts lists the built-in layout names.
func Layouts() []string {
	entries, err := layoutFS.ReadDir("layouts")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		n := e.Name()
		names = append(names, n[:len(n)-len(".yaml")])
	}
	sort.Strings(names)
	return names
}

// ParseLayout decodes a YAML layout definition.
func ParseLayout(data []byte) (*Layout, error) {
	var file layoutFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing layout: %w", err)
	}
	if file.Name == "" {
		return nil, fmt.Errorf("parsing layout: missing name")
	}

	table := make(map[keys.Code][2]rune, len(file.Keys))
	for keyName, glyphs := range file.Keys {
		code, err := keys.Parse(keyName)
		if err != nil {
			return nil, fmt.Errorf("layout %s: %w", file.Name, err)
		}
		if len(glyphs) == 0 || len(glyphs) > 2 {
			return nil, fmt.Errorf("layout %s: key %s needs one or two glyphs, got %d", file.Name, keyName, len(glyphs))
		}
		var pair [2]rune
		for i, g := range glyphs {
			if g == "" {
				continue
			}
			r, size := utf8.DecodeRuneInString(g)
			if size != len(g) {
				return nil, fmt.Errorf("layout %s: key %s glyph %q is not a single character", file.Name, keyName, g)
			}
			pair[i] = r
		}
		table[code] = pair
	}
	return &Layout{name: file.Name, table: table}, nil
}

// Name returns the layout name.
func (l *Layout) Name() string { return l.name }

// Fingerprint identifies the layout for keymap caching.
func (l *Layout) Fingerprint() string { return "virtual-" + l.name }

// Glyph returns what code produces with the given shift state.
func (l *Layout) Glyph(code keys.Code, shift bool) rune {
	pair, ok := l.table[code]
	if !ok {
		return 0
	}
	if shift {
		return pair[1]
	}
	return pair[0]
}
