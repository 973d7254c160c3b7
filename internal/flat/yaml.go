package flat

import (
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lexiaoyao20/i18n-app/internal/apperr"
)

// WriteNestedYAML writes m as a nested YAML document, splitting each key on
// "." and keeping first-seen order at every level. Values are always written
// as strings, quoted when YAML would otherwise read them as another type.
//
// A key that is both a leaf and a parent (e.g. "a" and "a.b") is an
// ErrInvalidFormat error.
func WriteNestedYAML(w io.Writer, m *Map) error {
	root := &yaml.Node{Kind: yaml.MappingNode}
	children := map[*yaml.Node]map[string]*yaml.Node{}

	appendPair := func(parent *yaml.Node, key string, val *yaml.Node) {
		parent.Content = append(parent.Content, strScalar(key), val)
		if children[parent] == nil {
			children[parent] = make(map[string]*yaml.Node)
		}
		children[parent][key] = val
	}

	for k, v := range m.All() {
		parts := strings.Split(k, ".")
		parent := root
		for _, part := range parts[:len(parts)-1] {
			child, ok := children[parent][part]
			if !ok {
				child = &yaml.Node{Kind: yaml.MappingNode}
				appendPair(parent, part, child)
			} else if child.Kind != yaml.MappingNode {
				return fmt.Errorf("%w: key %q nests under a value", apperr.ErrInvalidFormat, k)
			}
			parent = child
		}
		leaf := parts[len(parts)-1]
		if _, ok := children[parent][leaf]; ok {
			return fmt.Errorf("%w: key %q is also a parent", apperr.ErrInvalidFormat, k)
		}
		appendPair(parent, leaf, strScalar(v))
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(root); err != nil {
		return err
	}
	return enc.Close()
}

func strScalar(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
}
