package tagconf

import (
	"fmt"
	"maps"
	"path/filepath"
	"reflect"
	"strings"
)

// DefaultProcessings returns a fresh list of the built-in processings.
// Each call constructs new instances so concurrent builds never share
// mutable processing state.
//
// The list contains:
//   - CheckTagsProcessing: fail on residual '@' in keys after pre-merge
//   - MergeProcessing (@merge_after, @merge_before, @merge_add)
//   - CopyProcessing (@copy)
//   - TypingProcessing (@type:<desc>)
//   - SelectProcessing (@select)
//   - DeleteProcessing (@delete)
//   - NewKeyProcessing (@new)
//   - DefProcessing (@def)
//   - DictProcessing (@dict)
func DefaultProcessings() []Processing {
	return []Processing{
		NewCheckTagsProcessing(),
		NewMergeProcessing(),
		NewCopyProcessing(),
		NewTypingProcessing(),
		NewSelectProcessing(),
		NewDeleteProcessing(),
		NewNewKeyProcessing(),
		NewDefProcessing(),
		NewDictProcessing(),
	}
}

// configExtensions are the file extensions the loader understands and
// therefore the extensions accepted by the @merge_* tags.
var configExtensions = []string{".yaml", ".yml", ".toml"}

func isConfigPath(value any) (string, bool) {
	path, isString := value.(string)
	if !isString {
		return "", false
	}
	for _, ext := range configExtensions {
		if strings.HasSuffix(path, ext) {
			return path, true
		}
	}
	return "", false
}

// MergeProcessing splices other config files into the current config
// just in time, driven by three tags whose value is a config file path:
//
//   - @merge_after merges the referenced file on top of the current
//     config.
//   - @merge_before merges the current config on top of the referenced
//     file.
//   - @merge_add merges the referenced file while requiring that none
//     of its keys already exist, the typical usage for a default config
//     split across several files.
//
// The spliced-in files are recursively pre-merge processed but never
// post-merge processed here: post-merge is deferred to the enclosing
// merge so that partially merged sub-documents are not validated before
// their siblings arrive. A file that includes itself, directly or
// through intermediates, is detected and rejected.
//
// Pre-merge order: -20.
type MergeProcessing struct {
	NopProcessing
	visiting map[string]bool
}

func NewMergeProcessing() *MergeProcessing {
	return &MergeProcessing{visiting: make(map[string]bool)}
}

func (p *MergeProcessing) Orders() Orders { return Orders{Premerge: -20} }

func (p *MergeProcessing) Equal(other Processing) bool {
	o, ok := other.(*MergeProcessing)
	return ok && maps.Equal(p.visiting, o.visiting)
}

func (p *MergeProcessing) Premerge(cfg *Config) error {
	for _, key := range sortedKeys(cfg.Dict) {
		value, exists := cfg.Dict[key]
		if !exists {
			continue
		}
		switch {
		case HasTag(key, "merge_after", false):
			path, ok := isConfigPath(value)
			if !ok {
				return &TagSemanticError{Tag: "merge_after", Key: key,
					Reason: fmt.Sprintf("value must be a config file path, got %v", value)}
			}
			delete(cfg.Dict, key)
			cfg.Dict[StripTag(key, "merge_after")] = value
			// New keys are allowed here; the merge that follows this
			// pre-merge enforces the new-key policy if needed.
			merged, err := p.expand(key, path, func() (*Config, error) {
				return MergeFlatPathsProcessing(cfg, path, nil, MergeOptions{
					AllowNewKeys:     true,
					PreprocessSecond: true,
				})
			})
			if err != nil {
				return err
			}
			*cfg = *merged

		case HasTag(key, "merge_before", false):
			path, ok := isConfigPath(value)
			if !ok {
				return &TagSemanticError{Tag: "merge_before", Key: key,
					Reason: fmt.Sprintf("value must be a config file path, got %v", value)}
			}
			delete(cfg.Dict, key)
			cfg.Dict[StripTag(key, "merge_before")] = value
			merged, err := p.expand(key, path, func() (*Config, error) {
				return MergeFlatPathsProcessing(path, cfg, nil, MergeOptions{
					AllowNewKeys:    true,
					PreprocessFirst: true,
				})
			})
			if err != nil {
				return err
			}
			*cfg = *merged

		case HasTag(key, "merge_add", false):
			path, ok := isConfigPath(value)
			if !ok {
				return &TagSemanticError{Tag: "merge_add", Key: key,
					Reason: fmt.Sprintf("value must be a config file path, got %v", value)}
			}
			delete(cfg.Dict, key)
			cfg.Dict[StripTag(key, "merge_add")] = value
			toMerge, err := p.expand(key, path, func() (*Config, error) {
				return MergeFlatPathsProcessing(New(nil, nil), path, cfg.ProcessList, MergeOptions{
					AllowNewKeys:     true,
					PreprocessSecond: true,
				})
			})
			if err != nil {
				return err
			}
			cleanCurrent, _ := cleanKeys(cfg.Dict)
			cleanIncoming, _ := cleanKeys(toMerge.Dict)
			for _, incoming := range sortedKeys(cleanIncoming) {
				if _, exists := cleanCurrent[StripTags(incoming)]; exists {
					return &TagSemanticError{Tag: "merge_add", Key: incoming,
						Reason: "key already exists in both configs; use @merge_after or " +
							"@merge_before to merge it, or check the key names"}
				}
			}
			// The current process list is dropped on the left operand:
			// toMerge already carries it, so this avoids redundant runs.
			merged, err := MergeFlatProcessing(&Config{Dict: cfg.Dict}, toMerge, MergeOptions{
				AllowNewKeys: true,
			})
			if err != nil {
				return err
			}
			*cfg = *merged
		}
	}
	return nil
}

// expand runs a recursive merge of the file at path while tracking the
// set of files currently being expanded, so inclusion cycles fail with
// a clear error instead of unbounded recursion.
func (p *MergeProcessing) expand(key, path string, merge func() (*Config, error)) (*Config, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	if p.visiting[abs] {
		return nil, &TagSemanticError{Tag: "merge", Key: key,
			Reason: fmt.Sprintf("inclusion cycle detected: %q is already being merged", path)}
	}
	p.visiting[abs] = true
	merged, err := merge()
	delete(p.visiting, abs)
	return merged, err
}

// CopyProcessing mirrors the value of another parameter into a key
// tagged @copy, whose value names the flat key to copy. The copy target
// is protected: a direct update of the target raises a
// *ProtectionError, while updates of the source propagate on every
// merge. If the source key never appears before the end of the build,
// the build fails. The pre-save processing restores the tag and the
// recorded source path so the relationship survives a round-trip to a
// file.
//
// Pre-merge order: 0. Post-merge order: 10. End-build order: 10.
type CopyProcessing struct {
	NopProcessing
	keysToCopy map[string]string
	copiedKeys map[string]bool
	current    map[string]any
}

func NewCopyProcessing() *CopyProcessing {
	return &CopyProcessing{
		keysToCopy: make(map[string]string),
		copiedKeys: make(map[string]bool),
		current:    make(map[string]any),
	}
}

func (p *CopyProcessing) Orders() Orders {
	return Orders{Postmerge: 10, EndBuild: 10}
}

func (p *CopyProcessing) Equal(other Processing) bool {
	o, ok := other.(*CopyProcessing)
	return ok && maps.Equal(p.keysToCopy, o.keysToCopy) &&
		maps.Equal(p.copiedKeys, o.copiedKeys) &&
		reflect.DeepEqual(p.current, o.current)
}

func (p *CopyProcessing) Premerge(cfg *Config) error {
	for _, key := range sortedKeys(cfg.Dict) {
		if !HasTag(key, "copy", false) {
			continue
		}
		value := cfg.Dict[key]
		source, isString := value.(string)
		if !isString {
			return &TagSemanticError{Tag: "copy", Key: key,
				Reason: fmt.Sprintf("value must be a flat key to copy, got %v", value)}
		}
		cleanKey := StripTags(key)
		if previous, exists := p.keysToCopy[cleanKey]; exists && previous != source {
			return &TagSemanticError{Tag: "copy", Key: key,
				Reason: fmt.Sprintf("key changed its source to copy from %q to %q",
					previous, source)}
		}
		p.keysToCopy[cleanKey] = source
		p.current[cleanKey] = source
		delete(cfg.Dict, key)
		cfg.Dict[StripTag(key, "copy")] = source
	}
	return nil
}

func (p *CopyProcessing) Postmerge(cfg *Config) error {
	// A missing source is not an error yet: it may arrive in a later
	// merge. The end-build hook enforces it.
	for _, key := range sortedKeys(p.keysToCopy) {
		source := p.keysToCopy[key]
		targetValue, targetExists := cfg.Dict[key]
		sourceValue, sourceExists := cfg.Dict[source]
		if !targetExists || !sourceExists {
			continue
		}
		if !reflect.DeepEqual(targetValue, p.current[key]) {
			return &ProtectionError{Key: key, Protected: sourceValue, Attempted: targetValue}
		}
		cfg.Dict[key] = sourceValue
		p.copiedKeys[key] = true
		p.current[key] = sourceValue
	}
	return nil
}

func (p *CopyProcessing) EndBuild(cfg *Config) error {
	for _, key := range sortedKeys(p.keysToCopy) {
		source := p.keysToCopy[key]
		if _, exists := cfg.Dict[key]; !exists || p.copiedKeys[key] {
			continue
		}
		sourceValue, sourceExists := cfg.Dict[source]
		if !sourceExists {
			return &TagSemanticError{Tag: "copy", Key: key,
				Reason: fmt.Sprintf("source key %q does not exist at the end of the "+
					"build and was never copied", source)}
		}
		cfg.Dict[key] = sourceValue
		p.copiedKeys[key] = true
		p.current[key] = sourceValue
	}
	return nil
}

func (p *CopyProcessing) Presave(cfg *Config) error {
	for _, key := range sortedKeys(cfg.Dict) {
		cleanKey := StripTags(key)
		source, exists := p.keysToCopy[cleanKey]
		if !exists {
			continue
		}
		delete(cfg.Dict, key)
		cfg.Dict[key+"@copy"] = source
	}
	return nil
}

// SelectProcessing keeps only the selected sub-configuration(s) of a
// parent config and deletes the sibling sub-configs on post-merge. The
// tagged value is a flat key, or a list of flat keys sharing the same
// parent prefix. Selecting at the document root is rejected so a typo
// cannot delete the entire configuration.
//
// Pre-merge order: 0. Post-merge order: 0.
type SelectProcessing struct {
	NopProcessing
	selectorKeys    map[string]bool
	subtreesToClean map[string]bool
	keysToKeep      map[string]bool
}

func NewSelectProcessing() *SelectProcessing {
	return &SelectProcessing{
		selectorKeys:    make(map[string]bool),
		subtreesToClean: make(map[string]bool),
		keysToKeep:      make(map[string]bool),
	}
}

func (p *SelectProcessing) Orders() Orders { return Orders{} }

func (p *SelectProcessing) Equal(other Processing) bool {
	o, ok := other.(*SelectProcessing)
	return ok && maps.Equal(p.selectorKeys, o.selectorKeys) &&
		maps.Equal(p.subtreesToClean, o.subtreesToClean) &&
		maps.Equal(p.keysToKeep, o.keysToKeep)
}

func parentPath(key string) string {
	if i := strings.LastIndexByte(key, '.'); i >= 0 {
		return key[:i]
	}
	return ""
}

func (p *SelectProcessing) Premerge(cfg *Config) error {
	for _, key := range sortedKeys(cfg.Dict) {
		if !HasTag(key, "select", false) {
			continue
		}
		value := cfg.Dict[key]
		cleanKey := StripTags(key)
		delete(cfg.Dict, key)
		cfg.Dict[StripTag(key, "select")] = value
		p.selectorKeys[cleanKey] = true

		var subtree string
		keep := []string{cleanKey}
		switch v := value.(type) {
		case string:
			subtree = parentPath(key)
			keep = append(keep, v)
		case []any:
			if len(v) == 0 {
				return &TagSemanticError{Tag: "select", Key: key,
					Reason: "value must not be an empty list"}
			}
			for i, element := range v {
				selected, isString := element.(string)
				if !isString {
					return &TagSemanticError{Tag: "select", Key: key,
						Reason: fmt.Sprintf("value must be a flat key or a list of flat keys, "+
							"got element %v", element)}
				}
				parent := parentPath(selected)
				if i == 0 {
					subtree = parent
				} else if parent != subtree {
					return &TagSemanticError{Tag: "select", Key: key,
						Reason: fmt.Sprintf("selected keys must share the same parent "+
							"sub-config, got %q and %q", subtree, parent)}
				}
				keep = append(keep, selected)
			}
		default:
			return &TagSemanticError{Tag: "select", Key: key,
				Reason: fmt.Sprintf("value must be a flat key or a list of flat keys, got %v", value)}
		}
		subtree = StripTags(subtree)
		if subtree == "" {
			return &TagSemanticError{Tag: "select", Key: key,
				Reason: fmt.Sprintf("selecting at the document root would delete the whole "+
					"configuration; the selected key must contain a dot, got value %v", value)}
		}
		p.subtreesToClean[subtree] = true
		for _, k := range keep {
			p.keysToKeep[k] = true
		}
	}
	return nil
}

func inSubtree(key, subtree string) bool {
	return key == subtree || strings.HasPrefix(key, subtree+".")
}

func (p *SelectProcessing) Postmerge(cfg *Config) error {
	for _, subtree := range sortedKeys(p.subtreesToClean) {
		for _, key := range sortedKeys(cfg.Dict) {
			if !inSubtree(key, subtree) {
				continue
			}
			kept := false
			for keep := range p.keysToKeep {
				if inSubtree(key, keep) {
					kept = true
					break
				}
			}
			if !kept {
				delete(cfg.Dict, key)
			}
		}
	}
	return nil
}

func (p *SelectProcessing) Presave(cfg *Config) error {
	for _, key := range sortedKeys(cfg.Dict) {
		if !p.selectorKeys[StripTags(key)] {
			continue
		}
		value := cfg.Dict[key]
		delete(cfg.Dict, key)
		cfg.Dict[key+"@select"] = value
	}
	return nil
}

// DeleteProcessing removes every key still tagged @delete late in the
// pre-merge stage, after the other processings had a chance to observe
// and use the value. Useful to trigger tags like @merge_add or @select
// without introducing a permanent parameter that the enclosing merge's
// new-key policy would reject.
//
// Pre-merge order: 30.
type DeleteProcessing struct {
	NopProcessing
}

func NewDeleteProcessing() *DeleteProcessing { return &DeleteProcessing{} }

func (p *DeleteProcessing) Orders() Orders { return Orders{Premerge: 30} }

func (p *DeleteProcessing) Equal(other Processing) bool {
	_, ok := other.(*DeleteProcessing)
	return ok
}

func (p *DeleteProcessing) Premerge(cfg *Config) error {
	for _, key := range sortedKeys(cfg.Dict) {
		if HasTag(key, "delete", false) {
			delete(cfg.Dict, key)
		}
	}
	return nil
}

// NewKeyProcessing exempts parameters and sub-configs tagged @new from
// the enclosing merge's "no new keys" policy. The tagged entries are
// pulled into a side table during pre-merge, so the merge never sees
// them, and re-inserted unconditionally early on post-merge so other
// processings can use them. Pre-save re-tags them so future loads still
// treat them as new-key-exempt.
//
// Pre-merge order: 30. Post-merge order: -20.
type NewKeyProcessing struct {
	NopProcessing
	pending  map[string]any
	recorded map[string]bool
}

func NewNewKeyProcessing() *NewKeyProcessing {
	return &NewKeyProcessing{
		pending:  make(map[string]any),
		recorded: make(map[string]bool),
	}
}

func (p *NewKeyProcessing) Orders() Orders {
	return Orders{Premerge: 30, Postmerge: -20}
}

func (p *NewKeyProcessing) Equal(other Processing) bool {
	o, ok := other.(*NewKeyProcessing)
	return ok && reflect.DeepEqual(p.pending, o.pending) &&
		maps.Equal(p.recorded, o.recorded)
}

func (p *NewKeyProcessing) Premerge(cfg *Config) error {
	for _, key := range sortedKeys(cfg.Dict) {
		// Full-key matching: the tag may sit on a sub-config root, as
		// in "subconfig@new.param".
		if !HasTag(key, "new", true) {
			continue
		}
		cleanKey := StripTags(key)
		p.pending[cleanKey] = cfg.Dict[key]
		p.recorded[cleanKey] = true
		delete(cfg.Dict, key)
	}
	return nil
}

func (p *NewKeyProcessing) Postmerge(cfg *Config) error {
	for _, key := range sortedKeys(p.pending) {
		cfg.Dict[key] = p.pending[key]
	}
	// Reset so later merges do not re-add stale values.
	p.pending = make(map[string]any)
	return nil
}

func (p *NewKeyProcessing) Presave(cfg *Config) error {
	for _, key := range sortedKeys(cfg.Dict) {
		if !p.recorded[StripTags(key)] {
			continue
		}
		value := cfg.Dict[key]
		delete(cfg.Dict, key)
		cfg.Dict[key+"@new"] = value
	}
	return nil
}

// DictProcessing marks a sub-mapping tagged @dict as atomic. The region
// is wrapped so the flatten step does not expand it, which lets merges
// replace it wholesale rather than key by key; new keys inside the
// region are therefore always allowed. The wrapper is unwrapped back to
// a plain mapping at the end of the build, and pre-save restores the
// tag.
//
// Pre-merge order: -30. End-build order: 0. Pre-save order: -30.
type DictProcessing struct {
	NopProcessing
	regions map[string]bool
}

func NewDictProcessing() *DictProcessing {
	return &DictProcessing{regions: make(map[string]bool)}
}

func (p *DictProcessing) Orders() Orders {
	return Orders{Premerge: -30, Presave: -30}
}

func (p *DictProcessing) Equal(other Processing) bool {
	o, ok := other.(*DictProcessing)
	return ok && maps.Equal(p.regions, o.regions)
}

func segmentHasTag(segment, tag string) bool {
	return strings.HasSuffix(segment, "@"+tag) || strings.Contains(segment, "@"+tag+"@")
}

func (p *DictProcessing) Premerge(cfg *Config) error {
	roots := make(map[string]bool)
	for _, key := range sortedKeys(cfg.Dict) {
		if !HasTag(key, "dict", true) {
			continue
		}
		segments := strings.Split(key, ".")
		for i, segment := range segments {
			if segmentHasTag(segment, "dict") {
				roots[strings.Join(segments[:i+1], ".")] = true
				break
			}
		}
	}
	for _, root := range sortedKeys(roots) {
		region := make(map[string]any)
		for _, key := range sortedKeys(cfg.Dict) {
			switch {
			case key == root:
				switch value := cfg.Dict[key].(type) {
				case opaqueDict:
					region = value.dict
				case map[string]any:
					region = value
				default:
					return &TagSemanticError{Tag: "dict", Key: key,
						Reason: fmt.Sprintf("value must be a sub-config mapping, got %v", value)}
				}
				delete(cfg.Dict, key)
			case strings.HasPrefix(key, root+"."):
				region[key[len(root)+1:]] = cfg.Dict[key]
				delete(cfg.Dict, key)
			}
		}
		nested, err := Unflatten(region)
		if err != nil {
			return err
		}
		newKey := StripTag(root, "dict")
		cfg.Dict[newKey] = opaqueDict{dict: nested}
		p.regions[StripTags(newKey)] = true
	}
	return nil
}

func (p *DictProcessing) EndBuild(cfg *Config) error {
	for _, key := range sortedKeys(cfg.Dict) {
		if region, isRegion := cfg.Dict[key].(opaqueDict); isRegion {
			cfg.Dict[key] = region.dict
		}
	}
	return nil
}

func (p *DictProcessing) Presave(cfg *Config) error {
	for _, key := range sortedKeys(cfg.Dict) {
		if region, isRegion := cfg.Dict[key].(opaqueDict); isRegion {
			delete(cfg.Dict, key)
			cfg.Dict[key+"@dict"] = region.dict
		}
	}
	return nil
}

// CheckTagsProcessing is the mandatory final guard of the pre-merge
// stage: it scans for any remaining '@' in keys and fails loudly,
// listing the offending keys. It catches tag typos and missing
// processings before they are silently treated as parameter names.
//
// Pre-merge order: 1000. No processing should order after it.
type CheckTagsProcessing struct {
	NopProcessing
}

func NewCheckTagsProcessing() *CheckTagsProcessing { return &CheckTagsProcessing{} }

func (p *CheckTagsProcessing) Orders() Orders { return Orders{Premerge: 1000} }

func (p *CheckTagsProcessing) Equal(other Processing) bool {
	_, ok := other.(*CheckTagsProcessing)
	return ok
}

func (p *CheckTagsProcessing) Premerge(cfg *Config) error {
	_, tagged := cleanKeys(cfg.Dict)
	if len(tagged) > 0 {
		return &TagLeakError{Keys: tagged}
	}
	return nil
}
