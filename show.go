package tagconf

import (
	"fmt"
	"io"
	"sort"

	"github.com/jedib0t/go-pretty/v6/list"
)

// Show renders a nested config mapping as a tree, keys sorted, one
// "key: value" leaf per line. The dict is unflattened first so a flat
// or mixed dict prints the same as its nested form.
func Show(w io.Writer, dict map[string]any) error {
	flat, err := Flatten(dict)
	if err != nil {
		return err
	}
	nested, err := Unflatten(flat)
	if err != nil {
		return err
	}
	writer := list.NewWriter()
	writer.SetStyle(list.StyleConnectedLight)
	appendTree(writer, nested)
	if _, err := fmt.Fprintln(w, writer.Render()); err != nil {
		return err
	}
	return nil
}

func appendTree(writer list.Writer, dict map[string]any) {
	keys := make([]string, 0, len(dict))
	for key := range dict {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if sub, isMap := dict[key].(map[string]any); isMap {
			writer.AppendItem(key)
			writer.Indent()
			appendTree(writer, sub)
			writer.UnIndent()
			continue
		}
		writer.AppendItem(fmt.Sprintf("%s: %v", key, dict[key]))
	}
}

// Show renders the config's dict, see the package-level Show.
func (c *Config) Show(w io.Writer) error {
	return Show(w, c.Dict)
}
