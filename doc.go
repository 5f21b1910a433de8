// Package tagconf builds application configurations from layered YAML
// or TOML files and command-line overrides, driven by tags embedded in
// the keys.
//
// A configuration is a nested mapping addressed by dot-separated paths.
// Key segments may carry tags, "@"-suffixed markers such as
// "learning_rate@type:float" or "paths@merge_add", that trigger
// registered processings at five points of the pipeline: before and
// after each merge, at the end of the build, before saving and after
// loading. The built-in processings cover file inclusion (@merge_after,
// @merge_before, @merge_add), value mirroring (@copy), type enforcement
// (@type:...), sub-config selection (@select), new-key exemption
// (@new), computed parameters (@def), atomic sub-mappings (@dict) and
// key deletion (@delete); custom processings implement the Processing
// interface or use the NewTagValueProcessing and
// NewKeepPropertyProcessing helpers.
//
// The usual entry point is MakeConfig or the fluent Builder:
//
//	cfg, err := tagconf.NewBuilder().
//		WithDefaults("config/data.yaml", "config/model.yaml").
//		Build()
//
// which merges the default files, then the files named by "--config" on
// the command line, then "--key=value" overrides, running the full
// processing pipeline on each merge. Values are read with Get or the
// typed accessors, or decoded into structs with Decode.
package tagconf
