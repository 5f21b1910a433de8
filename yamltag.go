package tagconf

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// YAML type tags such as "!copy" are an alternative spelling of key
// tags: "param: !copy other.param" is equivalent to
// "param@copy: other.param". Several tags combine with '@' inside the
// YAML tag, as in "!type:int@new". The bridge walks the decoded node
// tree and moves every custom tag onto its key.

// customTag returns the custom tag of a node without its leading '!',
// or "". Standard YAML tags ("!!str", "!!int", ...) are not custom.
func customTag(node *yaml.Node) string {
	tag := node.Tag
	if !strings.HasPrefix(tag, "!") || strings.HasPrefix(tag, "!!") {
		return ""
	}
	return strings.ReplaceAll(tag[1:], "!", "")
}

// decodeTagged decodes a YAML node into plain Go values, returning the
// custom tag to append to the enclosing key, if any.
func decodeTagged(node *yaml.Node) (any, string, error) {
	switch node.Kind {
	case yaml.DocumentNode:
		if len(node.Content) == 0 {
			return nil, "", nil
		}
		return decodeTagged(node.Content[0])
	case yaml.AliasNode:
		return decodeTagged(node.Alias)
	case yaml.MappingNode:
		out := make(map[string]any, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			keyNode, valueNode := node.Content[i], node.Content[i+1]
			var key string
			if err := keyNode.Decode(&key); err != nil {
				return nil, "", fmt.Errorf("line %d: mapping key: %w", keyNode.Line, err)
			}
			value, tag, err := decodeTagged(valueNode)
			if err != nil {
				return nil, "", err
			}
			if tag != "" {
				key += "@" + tag
			}
			out[key] = value
		}
		return out, customTag(node), nil
	case yaml.SequenceNode:
		out := make([]any, len(node.Content))
		for i, elem := range node.Content {
			value, tag, err := decodeTagged(elem)
			if err != nil {
				return nil, "", err
			}
			if tag != "" {
				return nil, "", fmt.Errorf("line %d: tags inside sequences must sit on "+
					"the sequence itself, not on element %d", elem.Line, i)
			}
			out[i] = value
		}
		return out, customTag(node), nil
	case yaml.ScalarNode:
		tag := customTag(node)
		var value any
		if tag != "" {
			// The scalar kept its raw text when the custom tag
			// suppressed implicit resolution; re-resolve it.
			if err := yaml.Unmarshal([]byte(node.Value), &value); err != nil {
				return nil, "", fmt.Errorf("line %d: tagged scalar %q: %w",
					node.Line, node.Value, err)
			}
			return value, tag, nil
		}
		if err := node.Decode(&value); err != nil {
			return nil, "", fmt.Errorf("line %d: %w", node.Line, err)
		}
		return value, "", nil
	}
	return nil, "", fmt.Errorf("line %d: unsupported YAML node kind %d", node.Line, node.Kind)
}
