package tagconf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigGet(t *testing.T) {
	cfg := New(map[string]any{
		"model":        map[string]any{"dim": 64, "head.count": 8},
		"train.epochs": 10,
	}, nil)

	t.Run("nested leaf", func(t *testing.T) {
		value, found := cfg.Get("model.dim")
		require.True(t, found)
		assert.Equal(t, 64, value)
	})

	t.Run("flat leaf", func(t *testing.T) {
		value, found := cfg.Get("train.epochs")
		require.True(t, found)
		assert.Equal(t, 10, value)
	})

	t.Run("mixed representation leaf", func(t *testing.T) {
		value, found := cfg.Get("model.head.count")
		require.True(t, found)
		assert.Equal(t, 8, value)
	})

	t.Run("sub-tree from flat keys", func(t *testing.T) {
		flatCfg := New(map[string]any{"model.dim": 64, "model.head.count": 8}, nil)
		value, found := flatCfg.Get("model")
		require.True(t, found)
		assert.Equal(t, map[string]any{
			"dim":  64,
			"head": map[string]any{"count": 8},
		}, value)
	})

	t.Run("missing", func(t *testing.T) {
		_, found := cfg.Get("model.missing")
		assert.False(t, found)
	})
}

func TestConfigSet(t *testing.T) {
	t.Run("update existing nested", func(t *testing.T) {
		cfg := New(map[string]any{"a": map[string]any{"b": 1}}, nil)
		require.NoError(t, cfg.Set("a.b", 2))
		value, _ := cfg.Get("a.b")
		assert.Equal(t, 2, value)
	})

	t.Run("create intermediates", func(t *testing.T) {
		cfg := New(nil, nil)
		require.NoError(t, cfg.Set("x.y.z", "deep"))
		value, found := cfg.Get("x.y.z")
		require.True(t, found)
		assert.Equal(t, "deep", value)
	})

	t.Run("through a leaf fails", func(t *testing.T) {
		cfg := New(map[string]any{"a": map[string]any{"b": 1}}, nil)
		assert.Error(t, cfg.Set("a.b.c", 2))
	})

	t.Run("flat key updated in place", func(t *testing.T) {
		cfg := New(map[string]any{"a.b": 1}, nil)
		require.NoError(t, cfg.Set("a.b", 5))
		assert.Equal(t, 5, cfg.Dict["a.b"])
	})
}

func TestConfigSub(t *testing.T) {
	cfg := New(map[string]any{
		"model": map[string]any{"dim": 64},
		"seed":  1,
	}, []Processing{NewDeleteProcessing()})

	sub, err := cfg.Sub("model")
	require.NoError(t, err)
	value, _ := sub.Get("dim")
	assert.Equal(t, 64, value)
	assert.Len(t, sub.ProcessList, 1)

	_, err = cfg.Sub("seed")
	assert.Error(t, err)
	_, err = cfg.Sub("nothing")
	assert.Error(t, err)
}

func TestConfigEqual(t *testing.T) {
	a := New(map[string]any{"x": 1}, []Processing{NewDeleteProcessing(), NewCheckTagsProcessing()})
	b := New(map[string]any{"x": 1}, []Processing{NewCheckTagsProcessing(), NewDeleteProcessing()})
	c := New(map[string]any{"x": 2}, a.ProcessList)

	assert.True(t, a.Equal(b), "processing order must not matter")
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(New(map[string]any{"x": 1}, nil)))
}
