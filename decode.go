package tagconf

import (
	"fmt"
	"reflect"
	"time"

	"github.com/mitchellh/mapstructure"
)

// Decode unmarshals the sub-config at basePath into target, which must
// be a non-nil pointer to a struct. Field names are matched through the
// "yaml" struct tag. Input is weakly typed: strings parse into numbers,
// durations and comma-separated slices where the target field asks for
// them. An empty basePath decodes the whole config.
func (c *Config) Decode(basePath string, target any) error {
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return fmt.Errorf("decode target must be a non-nil pointer, got %T", target)
	}

	source := c.Dict
	if basePath != "" {
		value, found := c.Get(basePath)
		if !found {
			return fmt.Errorf("no sub-config at path %q", basePath)
		}
		section, isMap := value.(map[string]any)
		if !isMap {
			return fmt.Errorf("path %q refers to a value (type %T), not a sub-config",
				basePath, value)
		}
		source = section
	}
	flat, err := Flatten(source)
	if err != nil {
		return err
	}
	nested, err := Unflatten(flat)
	if err != nil {
		return err
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		TagName:          "yaml",
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToTimeHookFunc(time.RFC3339),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return fmt.Errorf("create decoder: %w", err)
	}
	if err := decoder.Decode(nested); err != nil {
		return fmt.Errorf("decode path %q: %w", basePath, err)
	}
	return nil
}
