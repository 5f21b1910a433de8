package tagconf

import "fmt"

// MergeOptions controls a processed merge. The zero value disables
// everything; use DefaultMergeOptions for the usual behavior.
type MergeOptions struct {
	// AllowNewKeys permits keys in the merged-in config that are
	// absent from the base config.
	AllowNewKeys bool
	// PreprocessFirst and PreprocessSecond run the pre-merge hooks on
	// the respective operand. A caller that already preprocessed an
	// operand (for example a recursive merge) disables its side.
	PreprocessFirst  bool
	PreprocessSecond bool
	// Postprocess runs the post-merge hooks on the merged result.
	Postprocess bool
}

// DefaultMergeOptions enables both preprocessing sides, postprocessing
// and new keys.
func DefaultMergeOptions() MergeOptions {
	return MergeOptions{
		AllowNewKeys:     true,
		PreprocessFirst:  true,
		PreprocessSecond: true,
		Postprocess:      true,
	}
}

// MergeFlatProcessing flattens both configs, merges config2 into
// config1 and applies the pre-merge and post-merge processings. The
// process lists of both operands are united first, with duplicates
// (equal concrete type and state) filtered out. Pre-merge hooks run
// over config1 then config2 in premerge order; each hook may itself
// recurse into this routine, as the merge-inclusion processing does.
// Both operands are mutated in place; the returned config is flat.
func MergeFlatProcessing(config1, config2 *Config, opts MergeOptions) (*Config, error) {
	flat1, flat2, err := flatPair(config1.Dict, config2.Dict)
	if err != nil {
		return nil, err
	}
	config1.Dict, config2.Dict = flat1, flat2

	list := config1.ProcessList
	for _, p := range config2.ProcessList {
		if !containsProcessing(list, p) {
			list = append(list, p)
		}
	}

	if opts.PreprocessFirst {
		config1.ProcessList = list
		for _, p := range sortedByOrder(list, timingPremerge) {
			if err := p.Premerge(config1); err != nil {
				return nil, err
			}
		}
		list = config1.ProcessList
	}
	if opts.PreprocessSecond {
		config2.ProcessList = list
		for _, p := range sortedByOrder(list, timingPremerge) {
			if err := p.Premerge(config2); err != nil {
				return nil, err
			}
		}
		list = config2.ProcessList
	}

	merged, err := MergeFlat(config1.Dict, config2.Dict, opts.AllowNewKeys)
	if err != nil {
		return nil, err
	}
	result := &Config{Dict: merged, ProcessList: list}

	if opts.Postprocess {
		for _, p := range sortedByOrder(list, timingPostmerge) {
			if err := p.Postmerge(result); err != nil {
				return nil, err
			}
		}
	}
	return result, nil
}

// MergeFlatPathsProcessing is MergeFlatProcessing over operands that
// may be either a *Config or the path of a config file to load. The
// additional processings are appended to both operands before merging,
// which lets a config loaded from its path still be processed with
// caller-specific processings.
func MergeFlatPathsProcessing(configOrPath1, configOrPath2 any, additional []Processing, opts MergeOptions) (*Config, error) {
	configs := make([]*Config, 2)
	for i, operand := range []any{configOrPath1, configOrPath2} {
		switch v := operand.(type) {
		case *Config:
			configs[i] = v
		case string:
			dict, err := LoadDict(v)
			if err != nil {
				return nil, err
			}
			configs[i] = New(dict, nil)
		default:
			return nil, fmt.Errorf("merge operand must be a *Config or a file path, got %T", operand)
		}
	}
	if additional != nil {
		configs[0].ProcessList = append(configs[0].ProcessList, additional...)
		configs[1].ProcessList = append(configs[1].ProcessList, additional...)
	}
	return MergeFlatProcessing(configs[0], configs[1], opts)
}

// LoadProcessing loads a config file, flattens it and applies the
// post-load processings in postload order.
func LoadProcessing(path string, processings []Processing) (*Config, error) {
	dict, err := LoadDict(path)
	if err != nil {
		return nil, err
	}
	flat, err := Flatten(dict)
	if err != nil {
		return nil, err
	}
	cfg := &Config{Dict: flat, ProcessList: processings}
	for _, p := range sortedByOrder(processings, timingPostload) {
		if err := p.Postload(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// SaveProcessing applies the pre-save processings in presave order,
// unflattens the dict and writes it to path. The input config is not
// modified.
func SaveProcessing(cfg *Config, path string) error {
	flat, err := Flatten(cfg.Dict)
	if err != nil {
		return err
	}
	toSave := &Config{Dict: flat, ProcessList: cfg.ProcessList}
	for _, p := range sortedByOrder(cfg.ProcessList, timingPresave) {
		if err := p.Presave(toSave); err != nil {
			return err
		}
	}
	nested, err := Unflatten(toSave.Dict)
	if err != nil {
		return err
	}
	return SaveDict(nested, path)
}

// EndBuildProcessing applies the end-build processings in endbuild
// order. It is called once at the very end of a top-level build, never
// during intermediate merges.
func EndBuildProcessing(cfg *Config) (*Config, error) {
	for _, p := range sortedByOrder(cfg.ProcessList, timingEndBuild) {
		if err := p.EndBuild(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
