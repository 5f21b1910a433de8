package tagconf

import (
	"bytes"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(bytes.NewBuffer(nil), nil))
}

func TestMakeConfig(t *testing.T) {
	dir := t.TempDir()
	defaultPath := writeFile(t, dir, "default.yaml",
		"model:\n"+
			"  dim: !type:int 64\n"+
			"  name: resnet\n"+
			"train:\n"+
			"  lr: 0.1\n"+
			"  steps: !def 'model.dim * 10'\n")
	overridePath := writeFile(t, dir, "override.yaml",
		"model:\n  dim: 128\n")

	t.Run("defaults, override file and parameters", func(t *testing.T) {
		cfg, err := MakeConfig([]string{defaultPath}, BuildOptions{
			Args: []string{
				"--config", overridePath,
				"--train.lr=0.5",
			},
			AddDefaultProcessings: true,
			Logger:                discardLogger(),
		})
		require.NoError(t, err)

		dim, err := cfg.Int64("model.dim")
		require.NoError(t, err)
		assert.EqualValues(t, 128, dim)

		lr, err := cfg.Float64("train.lr")
		require.NoError(t, err)
		assert.Equal(t, 0.5, lr)

		steps, found := cfg.Get("train.steps")
		require.True(t, found)
		assert.Equal(t, 1280, steps)
	})

	t.Run("override file may not add keys", func(t *testing.T) {
		badPath := writeFile(t, dir, "bad.yaml", "model:\n  depth: 3\n")
		_, err := MakeConfig([]string{defaultPath}, BuildOptions{
			Args:                  []string{"--config", badPath},
			AddDefaultProcessings: true,
			Logger:                discardLogger(),
		})
		var newKey *NewKeyError
		require.ErrorAs(t, err, &newKey)
		assert.Equal(t, "model.depth", newKey.Key)
	})

	t.Run("unknown parameters warned and skipped", func(t *testing.T) {
		var buf bytes.Buffer
		cfg, err := MakeConfig([]string{defaultPath}, BuildOptions{
			Args:                  []string{"--model.dim=32", "--nonexistent=1"},
			AddDefaultProcessings: true,
			Logger:                slog.New(slog.NewTextHandler(&buf, nil)),
		})
		require.NoError(t, err)
		_, found := cfg.Get("nonexistent")
		assert.False(t, found)
		assert.Contains(t, buf.String(), "nonexistent")
	})

	t.Run("typed override enforced at end of build", func(t *testing.T) {
		_, err := MakeConfig([]string{defaultPath}, BuildOptions{
			Args:                  []string{"--model.dim=wide"},
			AddDefaultProcessings: true,
			Logger:                discardLogger(),
		})
		var typeErr *TypeError
		require.ErrorAs(t, err, &typeErr)
		assert.Equal(t, "model.dim", typeErr.Key)
	})
}

func TestBuilder(t *testing.T) {
	dir := t.TempDir()
	defaultPath := writeFile(t, dir, "default.yaml", "a: 1\nb: 2\n")

	t.Run("fallback used without explicit config", func(t *testing.T) {
		fallbackPath := writeFile(t, dir, "local.yaml", "a: 10\n")
		cfg, err := NewBuilder().
			WithDefaults(defaultPath).
			WithFallback(fallbackPath).
			WithArgs(nil).
			WithLogger(discardLogger()).
			Build()
		require.NoError(t, err)
		assert.Equal(t, 10, cfg.Dict["a"])
		assert.Equal(t, 2, cfg.Dict["b"])
	})

	t.Run("explicit config wins over fallback", func(t *testing.T) {
		fallbackPath := writeFile(t, dir, "local2.yaml", "a: 10\n")
		chosenPath := writeFile(t, dir, "chosen.yaml", "a: 20\n")
		cfg, err := NewBuilder().
			WithDefaults(defaultPath).
			WithFallback(fallbackPath).
			WithArgs([]string{"--config", chosenPath}).
			WithLogger(discardLogger()).
			Build()
		require.NoError(t, err)
		assert.Equal(t, 20, cfg.Dict["a"])
	})

	t.Run("validator aborts the build", func(t *testing.T) {
		wantErr := errors.New("a must be positive")
		_, err := NewBuilder().
			WithDefaults(defaultPath).
			WithArgs([]string{"--a=-1"}).
			WithLogger(discardLogger()).
			WithValidator(func(cfg *Config) error {
				a, err := cfg.Int64("a")
				if err != nil {
					return err
				}
				if a <= 0 {
					return wantErr
				}
				return nil
			}).
			Build()
		assert.ErrorIs(t, err, wantErr)
	})

	t.Run("without default processings tags pass through", func(t *testing.T) {
		taggedPath := writeFile(t, dir, "tagged.yaml", "x: !keep 1\n")
		cfg, err := NewBuilder().
			WithDefaults(taggedPath).
			WithArgs(nil).
			WithLogger(discardLogger()).
			WithoutDefaultProcessings().
			Build()
		require.NoError(t, err)
		assert.Equal(t, 1, cfg.Dict["x@keep"])
	})
}

func TestSaveThenLoadConfig(t *testing.T) {
	dir := t.TempDir()
	defaultPath := writeFile(t, dir, "default.yaml",
		"n: !type:int 1\nlr: 0.1\n")

	cfg, err := MakeConfig([]string{defaultPath}, BuildOptions{
		Args:                  []string{"--n=7"},
		AddDefaultProcessings: true,
		Logger:                discardLogger(),
	})
	require.NoError(t, err)

	savedPath := filepath.Join(dir, "run", "config.yaml")
	require.NoError(t, SaveConfig(cfg, savedPath))

	loaded, err := LoadConfig(savedPath, []string{defaultPath}, BuildOptions{
		AddDefaultProcessings: true,
		Logger:                discardLogger(),
	})
	require.NoError(t, err)
	assert.Equal(t, 7, loaded.Dict["n"])
	assert.Equal(t, 0.1, loaded.Dict["lr"])

	t.Run("saved file keeps the type tag", func(t *testing.T) {
		dict, err := LoadDict(savedPath)
		require.NoError(t, err)
		assert.Contains(t, dict, "n@type:int")
	})

	t.Run("stale saved config rejected against defaults", func(t *testing.T) {
		stalePath := writeFile(t, dir, "stale.yaml", "n: 1\nremoved: true\n")
		_, err := LoadConfig(stalePath, []string{defaultPath}, BuildOptions{
			AddDefaultProcessings: true,
			Logger:                discardLogger(),
		})
		var newKey *NewKeyError
		assert.ErrorAs(t, err, &newKey)
	})
}

func TestTypedGetters(t *testing.T) {
	cfg := New(map[string]any{
		"name":    "resnet",
		"epochs":  10,
		"lr":      "0.001",
		"debug":   "true",
		"timeout": "1h30m",
		"splits":  []any{"train", "val", 0.2},
	}, nil)

	name, err := cfg.String("name")
	require.NoError(t, err)
	assert.Equal(t, "resnet", name)

	epochs, err := cfg.Int64("epochs")
	require.NoError(t, err)
	assert.EqualValues(t, 10, epochs)

	lr, err := cfg.Float64("lr")
	require.NoError(t, err)
	assert.Equal(t, 0.001, lr)

	debug, err := cfg.Bool("debug")
	require.NoError(t, err)
	assert.True(t, debug)

	timeout, err := cfg.Duration("timeout")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Minute, timeout)

	splits, err := cfg.StringSlice("splits")
	require.NoError(t, err)
	assert.Equal(t, []string{"train", "val", "0.2"}, splits)

	_, err = cfg.Int64("name")
	assert.Error(t, err)
	_, err = cfg.String("absent")
	assert.Error(t, err)
}

func TestConfigDecode(t *testing.T) {
	type trainSection struct {
		LR      float64       `yaml:"lr"`
		Epochs  int           `yaml:"epochs"`
		Timeout time.Duration `yaml:"timeout"`
		Splits  []string      `yaml:"splits"`
	}

	cfg := New(map[string]any{
		"train.lr":      "0.001",
		"train.epochs":  10,
		"train.timeout": "45s",
		"train.splits":  "train,val",
	}, nil)

	var train trainSection
	require.NoError(t, cfg.Decode("train", &train))
	assert.Equal(t, 0.001, train.LR)
	assert.Equal(t, 10, train.Epochs)
	assert.Equal(t, 45*time.Second, train.Timeout)
	assert.Equal(t, []string{"train", "val"}, train.Splits)

	assert.Error(t, cfg.Decode("train", trainSection{}))
	assert.Error(t, cfg.Decode("missing", &train))
	assert.Error(t, cfg.Decode("train.lr", &train))
}

func TestShow(t *testing.T) {
	var buf bytes.Buffer
	cfg := New(map[string]any{
		"model.dim":  64,
		"model.name": "resnet",
		"seed":       42,
	}, nil)
	require.NoError(t, cfg.Show(&buf))
	out := buf.String()
	assert.Contains(t, out, "model")
	assert.Contains(t, out, "dim: 64")
	assert.Contains(t, out, "name: resnet")
	assert.Contains(t, out, "seed: 42")
}
