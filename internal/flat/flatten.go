package flat

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
	"gopkg.in/yaml.v3"

	"github.com/lexiaoyao20/i18n-app/internal/apperr"
)

// Flatten parses a JSON document and flattens it into dotted keys.
//
// Nested objects extend the key with ".<field>". Strings bind their unescaped
// value, numbers, booleans and null bind their JSON literal, and arrays bind
// their compact JSON text. The top-level value must be an object encoded as
// UTF-8.
func Flatten(data []byte) (*Map, error) {
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%w: not valid UTF-8", apperr.ErrInvalidFormat)
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: not valid JSON", apperr.ErrInvalidFormat)
	}
	doc := gjson.ParseBytes(data)
	if !doc.IsObject() {
		return nil, fmt.Errorf("%w: top-level JSON value is %s, want object", apperr.ErrInvalidFormat, jsonKind(doc))
	}
	m := New()
	flattenJSON("", doc, m)
	return m, nil
}

func flattenJSON(prefix string, node gjson.Result, m *Map) {
	node.ForEach(func(k, v gjson.Result) bool {
		key := joinKey(prefix, k.String())
		switch {
		case v.IsObject():
			flattenJSON(key, v, m)
		case v.IsArray():
			m.Set(key, string(pretty.Ugly([]byte(v.Raw))))
		case v.Type == gjson.String:
			m.Set(key, v.String())
		default:
			m.Set(key, v.Raw)
		}
		return true
	})
}

func jsonKind(r gjson.Result) string {
	switch {
	case r.IsArray():
		return "array"
	case r.Type == gjson.String:
		return "string"
	case r.Type == gjson.Number:
		return "number"
	case r.Type == gjson.True, r.Type == gjson.False:
		return "boolean"
	default:
		return "null"
	}
}

// FlattenYAML flattens a YAML locale document the same way Flatten handles
// JSON, keeping document order. An empty document yields an empty map.
func FlattenYAML(data []byte) (*Map, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrInvalidFormat, err)
	}
	m := New()
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return m, nil
	}
	root := resolveAlias(doc.Content[0])
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: top-level YAML value is not a mapping", apperr.ErrInvalidFormat)
	}
	if err := flattenNode("", root, m); err != nil {
		return nil, err
	}
	return m, nil
}

// flattenNode recursively flattens a yaml.Node mapping into dotted keys.
func flattenNode(prefix string, node *yaml.Node, m *Map) error {
	for i := 0; i < len(node.Content)-1; i += 2 {
		key := joinKey(prefix, node.Content[i].Value)
		valNode := resolveAlias(node.Content[i+1])
		switch valNode.Kind {
		case yaml.MappingNode:
			if err := flattenNode(key, valNode, m); err != nil {
				return err
			}
		case yaml.SequenceNode:
			var v interface{}
			if err := valNode.Decode(&v); err != nil {
				return fmt.Errorf("%w: %s: %v", apperr.ErrInvalidFormat, key, err)
			}
			data, err := json.Marshal(v)
			if err != nil {
				return fmt.Errorf("%w: %s: %v", apperr.ErrInvalidFormat, key, err)
			}
			m.Set(key, string(data))
		default:
			if valNode.Tag == "!!null" {
				m.Set(key, "null")
			} else {
				m.Set(key, valNode.Value)
			}
		}
	}
	return nil
}

func resolveAlias(n *yaml.Node) *yaml.Node {
	for n.Kind == yaml.AliasNode && n.Alias != nil {
		n = n.Alias
	}
	return n
}

func joinKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}
