package tagconf

import (
	"fmt"
	"maps"
	"reflect"
	"regexp"
)

// ValueFunc transforms a parameter value during pre-merge.
type ValueFunc func(value any) (any, error)

// ValueProcessing applies a function to the values of matching keys on
// pre-merge. A processing triggered by a tag strips the tag from the
// key; when persistent it keeps re-applying the function to the same
// clean keys on every later merge, tag or not. A processing triggered
// by a regular expression matches the last dot-segment of the key and
// leaves the key untouched.
type ValueProcessing struct {
	NopProcessing
	tag        string
	regex      *regexp.Regexp
	order      float64
	fn         ValueFunc
	persistent bool
	matched    map[string]bool
}

// NewTagValueProcessing creates a ValueProcessing triggered by a tag.
func NewTagValueProcessing(tag string, order float64, fn ValueFunc, persistent bool) *ValueProcessing {
	return &ValueProcessing{
		tag:        tag,
		order:      order,
		fn:         fn,
		persistent: persistent,
		matched:    make(map[string]bool),
	}
}

// NewRegexValueProcessing creates a ValueProcessing triggered by a
// regular expression over the last dot-segment of each key.
func NewRegexValueProcessing(pattern string, order float64, fn ValueFunc) (*ValueProcessing, error) {
	regex, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid value processing pattern %q: %w", pattern, err)
	}
	return &ValueProcessing{
		regex:   regex,
		order:   order,
		fn:      fn,
		matched: make(map[string]bool),
	}, nil
}

func (p *ValueProcessing) Orders() Orders { return Orders{Premerge: p.order} }

func (p *ValueProcessing) Equal(other Processing) bool {
	o, ok := other.(*ValueProcessing)
	if !ok || p.tag != o.tag || p.order != o.order || p.persistent != o.persistent {
		return false
	}
	if (p.regex == nil) != (o.regex == nil) {
		return false
	}
	if p.regex != nil && p.regex.String() != o.regex.String() {
		return false
	}
	return reflect.ValueOf(p.fn).Pointer() == reflect.ValueOf(o.fn).Pointer() &&
		maps.Equal(p.matched, o.matched)
}

func (p *ValueProcessing) Premerge(cfg *Config) error {
	for _, key := range sortedKeys(cfg.Dict) {
		value, exists := cfg.Dict[key]
		if !exists {
			continue
		}
		switch {
		case p.regex != nil:
			segment := lastSegment(key)
			if !p.regex.MatchString(segment) {
				continue
			}
			newValue, err := p.fn(value)
			if err != nil {
				return fmt.Errorf("value processing on key %q: %w", key, err)
			}
			cfg.Dict[key] = newValue
		case HasTag(key, p.tag, false):
			newValue, err := p.fn(value)
			if err != nil {
				return &TagSemanticError{Tag: p.tag, Key: key, Reason: err.Error()}
			}
			delete(cfg.Dict, key)
			cfg.Dict[StripTag(key, p.tag)] = newValue
			if p.persistent {
				p.matched[StripTags(key)] = true
			}
		case p.persistent && p.matched[StripTags(key)]:
			newValue, err := p.fn(value)
			if err != nil {
				return &TagSemanticError{Tag: p.tag, Key: key, Reason: err.Error()}
			}
			cfg.Dict[key] = newValue
		}
	}
	return nil
}

func lastSegment(key string) string {
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] == '.' {
			return key[i+1:]
		}
	}
	return key
}

// KeepPropertyProcessing freezes a derived property of tagged values.
// The property function runs once when the tag is first seen and its
// result is recorded; after every later merge, and at the end of the
// build, the property is recomputed on the current value and any
// difference raises a *ProtectionError. Typical use: forbid changing
// the type or the length of a parameter while still allowing its value
// to change.
type KeepPropertyProcessing struct {
	NopProcessing
	tag            string
	fn             ValueFunc
	premergeOrder  float64
	postmergeOrder float64
	props          map[string]any
}

// NewKeepPropertyProcessing creates a KeepPropertyProcessing triggered
// by a tag, with explicit pre-merge and post-merge orders.
func NewKeepPropertyProcessing(tag string, fn ValueFunc, premergeOrder, postmergeOrder float64) *KeepPropertyProcessing {
	return &KeepPropertyProcessing{
		tag:            tag,
		fn:             fn,
		premergeOrder:  premergeOrder,
		postmergeOrder: postmergeOrder,
		props:          make(map[string]any),
	}
}

func (p *KeepPropertyProcessing) Orders() Orders {
	return Orders{
		Premerge:  p.premergeOrder,
		Postmerge: p.postmergeOrder,
		EndBuild:  p.postmergeOrder,
	}
}

func (p *KeepPropertyProcessing) Equal(other Processing) bool {
	o, ok := other.(*KeepPropertyProcessing)
	return ok && p.tag == o.tag &&
		p.premergeOrder == o.premergeOrder &&
		p.postmergeOrder == o.postmergeOrder &&
		reflect.ValueOf(p.fn).Pointer() == reflect.ValueOf(o.fn).Pointer() &&
		reflect.DeepEqual(p.props, o.props)
}

func (p *KeepPropertyProcessing) Premerge(cfg *Config) error {
	for _, key := range sortedKeys(cfg.Dict) {
		if !HasTag(key, p.tag, false) {
			continue
		}
		value := cfg.Dict[key]
		property, err := p.fn(value)
		if err != nil {
			return &TagSemanticError{Tag: p.tag, Key: key, Reason: err.Error()}
		}
		cleanKey := StripTags(key)
		if _, exists := p.props[cleanKey]; !exists {
			p.props[cleanKey] = property
		}
		delete(cfg.Dict, key)
		cfg.Dict[StripTag(key, p.tag)] = value
	}
	return nil
}

func (p *KeepPropertyProcessing) check(cfg *Config) error {
	for _, key := range sortedKeys(p.props) {
		value, exists := cfg.Dict[key]
		if !exists {
			continue
		}
		property, err := p.fn(value)
		if err != nil {
			return &TagSemanticError{Tag: p.tag, Key: key, Reason: err.Error()}
		}
		if !reflect.DeepEqual(property, p.props[key]) {
			return &ProtectionError{Key: key, Protected: p.props[key], Attempted: property}
		}
	}
	return nil
}

func (p *KeepPropertyProcessing) Postmerge(cfg *Config) error { return p.check(cfg) }

func (p *KeepPropertyProcessing) EndBuild(cfg *Config) error { return p.check(cfg) }
