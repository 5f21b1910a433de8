package tagconf

import "log/slog"

// Builder assembles a config build fluently:
//
//	cfg, err := NewBuilder().
//		WithDefaults("config/data.yaml", "config/train.yaml").
//		WithFallback("config/local.yaml").
//		WithProcessings(NewTagValueProcessing("neg", 0, negate, false)).
//		Build()
//
// It is a thin layer over MakeConfig.
type Builder struct {
	defaults   []string
	opts       BuildOptions
	validators []func(*Config) error
}

func NewBuilder() *Builder {
	return &Builder{opts: DefaultBuildOptions()}
}

// WithDefaults appends default config files, merged in order with new
// keys allowed.
func (b *Builder) WithDefaults(paths ...string) *Builder {
	b.defaults = append(b.defaults, paths...)
	return b
}

// WithProcessings appends processings applied on every merge.
func (b *Builder) WithProcessings(processings ...Processing) *Builder {
	b.opts.Processings = append(b.opts.Processings, processings...)
	return b
}

// WithArgs replaces the command-line arguments, os.Args[1:] otherwise.
func (b *Builder) WithArgs(args []string) *Builder {
	b.opts.Args = args
	return b
}

// WithFallback sets the config merged when the command line names no
// additional config.
func (b *Builder) WithFallback(path string) *Builder {
	b.opts.Fallback = path
	return b
}

// WithLogger sets the logger for build summaries and warnings.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.opts.Logger = logger
	return b
}

// WithoutDefaultProcessings builds with only the explicitly added
// processings. Tags then pass through untouched up to the leak check,
// which is not registered either.
func (b *Builder) WithoutDefaultProcessings() *Builder {
	b.opts.AddDefaultProcessings = false
	return b
}

// WithValidator adds a check run on the built config. Validators run in
// order; the first error aborts the build.
func (b *Builder) WithValidator(validate func(*Config) error) *Builder {
	b.validators = append(b.validators, validate)
	return b
}

// Build runs the full build.
func (b *Builder) Build() (*Config, error) {
	cfg, err := MakeConfig(b.defaults, b.opts)
	if err != nil {
		return nil, err
	}
	for _, validate := range b.validators {
		if err := validate(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
