package tagconf

import (
	"fmt"
	"reflect"
	"strings"
)

// opaqueDict wraps a sub-mapping so Flatten treats it as a single leaf.
// Merges then replace the region wholesale instead of key by key. The
// DictProcessing creates and unwraps these around the @dict tag.
type opaqueDict struct {
	dict map[string]any
}

// Flatten converts a nested mapping to a flat mapping with dot-notation
// keys. The input may be nested, already flat, or a mix of both:
//
//	Flatten({"a.b": {"c": 1}, "a": {"b.d": 2}}) == {"a.b.c": 1, "a.b.d": 2}
//
// Two paths producing the same flat key with different values raise a
// *ConflictError. Nested empty mappings vanish silently instead of
// colliding.
func Flatten(in map[string]any) (map[string]any, error) {
	flat := make(map[string]any, len(in))
	if err := flattenInto(flat, "", in); err != nil {
		return nil, err
	}
	return flat, nil
}

func flattenInto(flat map[string]any, prefix string, in map[string]any) error {
	for _, key := range sortedKeys(in) {
		value := in[key]
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		if sub, isMap := value.(map[string]any); isMap {
			if len(sub) == 0 {
				continue
			}
			if err := flattenInto(flat, path, sub); err != nil {
				return err
			}
			continue
		}
		if previous, exists := flat[path]; exists && !reflect.DeepEqual(previous, value) {
			return &ConflictError{Key: path, Existing: previous, Incoming: value}
		}
		flat[path] = value
	}
	return nil
}

// Unflatten splits every dotted key of a flat mapping and rebuilds the
// nested mapping. A key path that would need to be both a leaf and a
// parent mapping raises a *ConflictError.
func Unflatten(flat map[string]any) (map[string]any, error) {
	nested := make(map[string]any)
	for _, key := range sortedKeys(flat) {
		segments := strings.Split(key, ".")
		current := nested
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
				return nil, &ConflictError{
					Key:      strings.Join(segments[:i+1], "."),
					Existing: next,
					Incoming: flat[key],
				}
			}
			current = sub
		}
		last := segments[len(segments)-1]
		if previous, exists := current[last]; exists {
			if _, isMap := previous.(map[string]any); isMap {
				return nil, &ConflictError{Key: key, Existing: previous, Incoming: flat[key]}
			}
		}
		current[last] = flat[key]
	}
	return nested, nil
}

// MergeFlat flattens both mappings then merges the second into the
// first, the second winning on overlap. The result is flat. When
// allowNewKeys is false, a key present in the second mapping but absent
// from the first raises a *NewKeyError naming it.
func MergeFlat(dict1, dict2 map[string]any, allowNewKeys bool) (map[string]any, error) {
	flat1, flat2, err := flatPair(dict1, dict2)
	if err != nil {
		return nil, err
	}
	if !allowNewKeys {
		for _, key := range sortedKeys(flat2) {
			if _, exists := flat1[key]; !exists {
				return nil, &NewKeyError{Key: key}
			}
		}
	}
	merged := make(map[string]any, len(flat1)+len(flat2))
	for key, value := range flat1 {
		merged[key] = value
	}
	for key, value := range flat2 {
		merged[key] = value
	}
	return merged, nil
}

// flatPair flattens both merge operands, re-wrapping conflict errors
// with a hint to pre-clean the offending dict.
func flatPair(dict1, dict2 map[string]any) (map[string]any, map[string]any, error) {
	flats := make([]map[string]any, 2)
	for i, in := range []map[string]any{dict1, dict2} {
		if isFlat(in) {
			flats[i] = in
			continue
		}
		flat, err := Flatten(in)
		if err != nil {
			return nil, nil, fmt.Errorf(
				"duplicated key found in dict %d when flattening "+
					"(consider CleanPreFlat before merging): %w", i+1, err)
		}
		flats[i] = flat
	}
	return flats[0], flats[1], nil
}

func isFlat(in map[string]any) bool {
	for _, value := range in {
		if _, isMap := value.(map[string]any); isMap {
			return false
		}
	}
	return true
}

// CleanPreFlat removes keys that would conflict when flattening a
// mapping that mixes a fully flat part (dotted keys at the root) and a
// fully nested part. The priority decides which side wins: "flat"
// keeps the dotted keys, "unflat" keeps the nested keys, and "error"
// rejects any conflict.
func CleanPreFlat(in map[string]any, priority string) (map[string]any, error) {
	switch priority {
	case "flat", "unflat":
		flatPart := make(map[string]any)
		nestedPart := make(map[string]any)
		for key, value := range in {
			if strings.ContainsRune(key, '.') {
				flatPart[key] = value
			} else {
				nestedPart[key] = value
			}
		}
		nestedFlat, err := Flatten(nestedPart)
		if err != nil {
			return nil, err
		}
		for _, key := range sortedKeys(flatPart) {
			if _, exists := nestedFlat[key]; !exists {
				continue
			}
			if priority == "unflat" {
				if err := delKey(in, key, false, true); err != nil {
					return nil, err
				}
			} else {
				if err := delKey(in, key, true, false); err != nil {
					return nil, err
				}
			}
		}
	case "error":
		if _, err := Flatten(in); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("priority must be one of 'flat', 'unflat' or 'error', got %q", priority)
	}
	return in, nil
}

// delKey removes the value addressed by a flat key from a mixed
// flat/nested mapping, in place. keepFlat preserves the dotted root
// entry, keepNested preserves the nested entry. Empty parent mappings
// left behind are pruned.
func delKey(in map[string]any, flatKey string, keepFlat, keepNested bool) error {
	found := false
	if !keepFlat {
		if _, exists := in[flatKey]; exists {
			delete(in, flatKey)
			found = true
		}
	}
	if !keepNested {
		if delNestedKey(in, strings.Split(flatKey, ".")) {
			found = true
		}
	}
	if !found {
		return fmt.Errorf("key %q not found in dict", flatKey)
	}
	return nil
}

func delNestedKey(in map[string]any, segments []string) bool {
	if len(segments) == 1 {
		if _, exists := in[segments[0]]; exists {
			delete(in, segments[0])
			return true
		}
		return false
	}
	next, exists := in[segments[0]]
	if !exists {
		return false
	}
	sub, isMap := next.(map[string]any)
	if !isMap {
		return false
	}
	found := delNestedKey(sub, segments[1:])
	if len(sub) == 0 {
		delete(in, segments[0])
	}
	return found
}
