package tagconf

import (
	"fmt"
	"reflect"
	"strings"
)

// Config is the mutable pair of a configuration mapping and the ordered
// list of processings that travel with it. The dict may be nested, flat
// or a mix of both; the merge routines flatten it while working and the
// build routines unflatten it for consumption.
//
// A Config is owned by a single build. It is not safe for concurrent
// use: concurrent builds must each own an independent Config and fresh
// processing instances.
type Config struct {
	Dict        map[string]any
	ProcessList []Processing
}

// New creates a Config from a mapping and a processing list. Either may
// be nil.
func New(dict map[string]any, processings []Processing) *Config {
	if dict == nil {
		dict = make(map[string]any)
	}
	return &Config{Dict: dict, ProcessList: processings}
}

// Equal reports whether two configs hold equal dicts and the same
// multiset of processings, ignoring processing order.
func (c *Config) Equal(other *Config) bool {
	if other == nil || !reflect.DeepEqual(c.Dict, other.Dict) ||
		len(c.ProcessList) != len(other.ProcessList) {
		return false
	}
	for _, p := range c.ProcessList {
		if !containsProcessing(other.ProcessList, p) {
			return false
		}
	}
	for _, p := range other.ProcessList {
		if !containsProcessing(c.ProcessList, p) {
			return false
		}
	}
	return true
}

// Get retrieves the value at a dot-separated path. It works whether the
// dict is flat, nested or mixed. When the path addresses a sub-tree the
// nested sub-mapping is returned.
func (c *Config) Get(path string) (any, bool) {
	if value, exists := c.Dict[path]; exists {
		return value, true
	}
	flat, err := Flatten(c.Dict)
	if err != nil {
		return nil, false
	}
	if value, exists := flat[path]; exists {
		return value, true
	}
	prefix := path + "."
	sub := make(map[string]any)
	for key, value := range flat {
		if strings.HasPrefix(key, prefix) {
			sub[strings.TrimPrefix(key, prefix)] = value
		}
	}
	if len(sub) == 0 {
		return nil, false
	}
	nested, err := Unflatten(sub)
	if err != nil {
		return nil, false
	}
	return nested, true
}

// Set updates or creates the value at a dot-separated path, creating
// intermediate mappings as needed. Setting through a path segment that
// holds a non-mapping value is an error.
func (c *Config) Set(path string, value any) error {
	if path == "" {
		return fmt.Errorf("cannot set an empty path")
	}
	if _, exists := c.Dict[path]; exists {
		c.Dict[path] = value
		return nil
	}
	segments := strings.Split(path, ".")
	current := c.Dict
	for i := 0; i < len(segments)-1; i++ {
		next, exists := current[segments[i]]
		if !exists {
			sub := make(map[string]any)
			current[segments[i]] = sub
			current = sub
			continue
		}
		sub, isMap := next.(map[string]any)
		if !isMap {
			return fmt.Errorf("cannot set %q: segment %q holds non-mapping value %v",
				path, strings.Join(segments[:i+1], "."), next)
		}
		current = sub
	}
	current[segments[len(segments)-1]] = value
	return nil
}

// Sub returns a view of the sub-configuration rooted at path. The view
// shares the processing list but holds a copy of the sub-tree, so
// mutations of the view do not write back.
func (c *Config) Sub(path string) (*Config, error) {
	value, exists := c.Get(path)
	if !exists {
		return nil, fmt.Errorf("no sub-config at path %q", path)
	}
	sub, isMap := value.(map[string]any)
	if !isMap {
		return nil, fmt.Errorf("path %q holds a value, not a sub-config", path)
	}
	return New(sub, c.ProcessList), nil
}
