// Package keymap discovers which physical key, with or without Shift,
// produces each character on the host keyboard layout, and caches the
// result between runs.
package keymap

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/dkoosis/fobot/pkg/keys"
)

// KeyMap is an immutable character to key table. Every entry was observed
// to reproduce its character when typed into a blank field.
type KeyMap struct {
	entries map[rune]keys.Descriptor
}

// New builds a KeyMap from a table. The table is copied.
func New(entries map[rune]keys.Descriptor) *KeyMap {
	cp := make(map[rune]keys.Descriptor, len(entries))
	for r, d := range entries {
		cp[r] = d
	}
	return &KeyMap{entries: cp}
}

// Lookup returns the key that produces r.
func (m *KeyMap) Lookup(r rune) (keys.Descriptor, bool) {
	d, ok := m.entries[r]
	return d, ok
}

// Len returns the number of mapped characters.
func (m *KeyMap) Len() int { return len(m.entries) }

// Runes returns the mapped characters in ascending order.
func (m *KeyMap) Runes() []rune {
	out := make([]rune, 0, len(m.entries))
	for r := range m.entries {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Entries returns a copy of the table.
func (m *KeyMap) Entries() map[rune]keys.Descriptor {
	cp := make(map[rune]keys.Descriptor, len(m.entries))
	for r, d := range m.entries {
		cp[r] = d
	}
	return cp
}

// Equal reports whether both maps hold the same entries.
func (m *KeyMap) Equal(o *KeyMap) bool {
	if m == nil || o == nil {
		return m == o
	}
	if len(m.entries) != len(o.entries) {
		return false
	}
	for r, d := range m.entries {
		if od, ok := o.entries[r]; !ok || od != d {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the map as an object keyed by the character.
func (m *KeyMap) MarshalJSON() ([]byte, error) {
	obj := make(map[string]keys.Descriptor, len(m.entries))
	for r, d := range m.entries {
		obj[string(r)] = d
	}
	return json.Marshal(obj)
}

// UnmarshalJSON decodes the form written by MarshalJSON.
func (m *KeyMap) UnmarshalJSON(data []byte) error {
	var obj map[string]keys.Descriptor
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	entries := make(map[rune]keys.Descriptor, len(obj))
	for s, d := range obj {
		rs := []rune(s)
		if len(rs) != 1 {
			return fmt.Errorf("keymap entry %q is not a single character", s)
		}
		entries[rs[0]] = d
	}
	m.entries = entries
	return nil
}
