// Package flat holds the flattened representation of translation files and
// the operations the sync pipeline runs on it: flattening nested JSON or YAML
// documents, diffing two flattened documents, and writing one back out as
// nested YAML.
package flat

import (
	"bytes"
	"encoding/json"
	"iter"
)

// Map is an ordered mapping from dotted translation keys to string values.
//
// Keys keep the position in which they were first set. A nil *Map behaves
// like an empty one for all read operations.
type Map struct {
	keys   []string
	values map[string]string
}

// New returns an empty Map.
func New() *Map {
	return &Map{values: make(map[string]string)}
}

// Set binds key to value. Setting an existing key replaces its value in place.
func (m *Map) Set(key, value string) {
	if m.values == nil {
		m.values = make(map[string]string)
	}
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// Get returns the value bound to key.
func (m *Map) Get(key string) (string, bool) {
	if m == nil {
		return "", false
	}
	v, ok := m.values[key]
	return v, ok
}

// Has reports whether key is present.
func (m *Map) Has(key string) bool {
	_, ok := m.Get(key)
	return ok
}

// Len returns the number of keys.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Keys returns a copy of the keys in order.
func (m *Map) Keys() []string {
	if m == nil {
		return nil
	}
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// All iterates over the key/value pairs in order.
func (m *Map) All() iter.Seq2[string, string] {
	return func(yield func(string, string) bool) {
		if m == nil {
			return
		}
		for _, k := range m.keys {
			if !yield(k, m.values[k]) {
				return
			}
		}
	}
}

// Merge sets every key of src that m does not have yet and returns how many
// keys were added. Existing keys keep their value.
func (m *Map) Merge(src *Map) int {
	added := 0
	for k, v := range src.All() {
		if m.Has(k) {
			continue
		}
		m.Set(k, v)
		added++
	}
	return added
}

// MarshalJSON encodes the map as a flat JSON object in key order.
func (m *Map) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	i := 0
	for k, v := range m.All() {
		if i > 0 {
			buf.WriteByte(',')
		}
		i++
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
