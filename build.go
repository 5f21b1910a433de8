package tagconf

import (
	"fmt"
	"log/slog"
	"os"
)

// BuildOptions controls MakeConfig and LoadConfig.
type BuildOptions struct {
	// Args are the command-line arguments to parse, without the program
	// name. DefaultBuildOptions uses os.Args[1:].
	Args []string
	// Processings to apply on every merge, in addition to the default
	// ones unless AddDefaultProcessings is false.
	Processings           []Processing
	AddDefaultProcessings bool
	// Fallback is a config path merged when the command line names no
	// additional config. Empty for none.
	Fallback string
	// Logger receives the build summary and ignored-parameter warnings.
	// Nil uses slog.Default.
	Logger *slog.Logger
}

func DefaultBuildOptions() BuildOptions {
	return BuildOptions{
		Args:                  os.Args[1:],
		AddDefaultProcessings: true,
	}
}

func (o *BuildOptions) processList() []Processing {
	list := append([]Processing{}, o.Processings...)
	if o.AddDefaultProcessings {
		list = append(list, DefaultProcessings()...)
	}
	return list
}

func (o *BuildOptions) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// MakeConfig builds a config from default config files and the command
// line. The default files are merged in order, new keys allowed. The
// files named by "--config" on the command line follow, without new
// keys, so a typo in an override file fails instead of adding a dead
// parameter. Finally the "--key=value" parameters are merged; unknown
// parameter keys are logged and skipped rather than rejected, to stay
// compatible with argument parsers that add their own flags. Every
// merge runs the full pre-merge and post-merge processing, and the
// end-build processing runs once at the end. The returned config dict
// is nested.
func MakeConfig(defaultPaths []string, opts BuildOptions) (*Config, error) {
	logger := opts.logger()
	cfg := New(nil, opts.processList())

	additionalPaths, cliParams, err := ParseCLI(opts.Args)
	if err != nil {
		return nil, err
	}
	if len(additionalPaths) == 0 && opts.Fallback != "" {
		additionalPaths = []string{opts.Fallback}
	}

	for _, path := range defaultPaths {
		cfg, err = MergeFlatPathsProcessing(cfg, path, nil, MergeOptions{
			AllowNewKeys:     true,
			PreprocessSecond: true,
			Postprocess:      true,
		})
		if err != nil {
			return nil, fmt.Errorf("merge default config %s: %w", path, err)
		}
	}
	for _, path := range additionalPaths {
		cfg, err = MergeFlatPathsProcessing(cfg, path, nil, MergeOptions{
			PreprocessSecond: true,
			Postprocess:      true,
		})
		if err != nil {
			return nil, fmt.Errorf("merge additional config %s: %w", path, err)
		}
	}

	flatParams, err := Flatten(cliParams)
	if err != nil {
		return nil, err
	}
	for _, key := range sortedKeys(flatParams) {
		if _, exists := cfg.Dict[StripTags(key)]; !exists {
			logger.Warn("ignoring unknown command-line parameter", "key", StripTags(key))
			delete(flatParams, key)
		}
	}
	cfg, err = MergeFlatProcessing(cfg, New(flatParams, nil), MergeOptions{
		PreprocessSecond: true,
		Postprocess:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("merge command-line parameters: %w", err)
	}
	logger.Info("config built",
		"default_configs", len(defaultPaths),
		"additional_configs", len(additionalPaths),
		"cli_parameters", len(flatParams))

	if cfg, err = EndBuildProcessing(cfg); err != nil {
		return nil, err
	}
	if cfg.Dict, err = Unflatten(cfg.Dict); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfig loads a previously saved config, applying the post-load
// processings, and merges it on top of optional default configs. With
// default configs present the loaded file may not introduce new keys,
// which surfaces stale saved configs after the defaults changed.
func LoadConfig(path string, defaultPaths []string, opts BuildOptions) (*Config, error) {
	cfg := New(nil, opts.processList())
	var err error
	for _, defaultPath := range defaultPaths {
		cfg, err = MergeFlatPathsProcessing(cfg, defaultPath, nil, MergeOptions{
			AllowNewKeys:     true,
			PreprocessSecond: true,
			Postprocess:      true,
		})
		if err != nil {
			return nil, fmt.Errorf("merge default config %s: %w", defaultPath, err)
		}
	}
	loaded, err := LoadProcessing(path, cfg.ProcessList)
	if err != nil {
		return nil, err
	}
	cfg.ProcessList = loaded.ProcessList
	cfg, err = MergeFlatProcessing(cfg, loaded, MergeOptions{
		AllowNewKeys:     len(defaultPaths) == 0,
		PreprocessSecond: true,
		Postprocess:      true,
	})
	if err != nil {
		return nil, err
	}
	if cfg, err = EndBuildProcessing(cfg); err != nil {
		return nil, err
	}
	if cfg.Dict, err = Unflatten(cfg.Dict); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveConfig saves the config to path after the pre-save processings.
func SaveConfig(cfg *Config, path string) error {
	return SaveProcessing(cfg, path)
}

// Quick builds a config from default config files, the process's
// command line and the default processings.
func Quick(defaultPaths ...string) (*Config, error) {
	return MakeConfig(defaultPaths, DefaultBuildOptions())
}
