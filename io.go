package tagconf

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// LoadDict loads a nested config mapping from a YAML or TOML file,
// chosen by extension. A YAML file may hold several documents separated
// by "---"; they are merged from first to last, new keys allowed. YAML
// type tags are converted to key tags, see decodeTagged.
func LoadDict(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		var dict map[string]any
		if err := toml.Unmarshal(data, &dict); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		return dict, nil
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	flat := make(map[string]any)
	for {
		var node yaml.Node
		err := decoder.Decode(&node)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		value, _, err := decodeTagged(&node)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		if value == nil {
			continue
		}
		dict, isMap := value.(map[string]any)
		if !isMap {
			return nil, fmt.Errorf("parse %s: document root must be a mapping, got %T",
				path, value)
		}
		docFlat, err := Flatten(dict)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		flat, err = MergeFlat(flat, docFlat, true)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	return Unflatten(flat)
}

// SaveDict writes a nested config mapping to path, creating parent
// directories as needed. The format follows the extension: TOML for
// ".toml", YAML otherwise. The file is written to a temporary sibling
// and renamed into place, so a crash never leaves a truncated config.
func SaveDict(dict map[string]any, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".config-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp config file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		err = toml.NewEncoder(tmp).Encode(dict)
	} else {
		encoder := yaml.NewEncoder(tmp)
		encoder.SetIndent(2)
		err = encoder.Encode(dict)
		if closeErr := encoder.Close(); err == nil {
			err = closeErr
		}
	}
	if err != nil {
		tmp.Close()
		return fmt.Errorf("encode config %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("save config %s: %w", path, err)
	}
	return nil
}
