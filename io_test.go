package tagconf

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDictYAML(t *testing.T) {
	t.Run("nested mapping", func(t *testing.T) {
		dir := t.TempDir()
		path := writeFile(t, dir, "cfg.yaml", "a:\n  b: 1\n  c: [1, 2]\nd: x\n")
		dict, err := LoadDict(path)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{
			"a": map[string]any{"b": 1, "c": []any{1, 2}},
			"d": "x",
		}, dict)
	})

	t.Run("yaml type tags become key tags", func(t *testing.T) {
		dir := t.TempDir()
		path := writeFile(t, dir, "cfg.yaml",
			"model:\n  dim: !type:int 64\n  head: !new\n    count: 8\n")
		dict, err := LoadDict(path)
		require.NoError(t, err)
		flat, err := Flatten(dict)
		require.NoError(t, err)
		assert.Equal(t, 64, flat["model.dim@type:int"])
		assert.Equal(t, 8, flat["model.head@new.count"])
	})

	t.Run("combined yaml tags", func(t *testing.T) {
		dir := t.TempDir()
		path := writeFile(t, dir, "cfg.yaml", "dim: !type:int@new 64\n")
		dict, err := LoadDict(path)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"dim@type:int@new": 64}, dict)
	})

	t.Run("multiple documents merge in order", func(t *testing.T) {
		dir := t.TempDir()
		path := writeFile(t, dir, "cfg.yaml", "a: 1\nb: 1\n---\nb: 2\nc: 3\n")
		dict, err := LoadDict(path)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"a": 1, "b": 2, "c": 3}, dict)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadDict(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.ErrorIs(t, err, ErrConfigNotFound)
	})
}

func TestLoadDictTOML(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "cfg.toml", "d = \"x\"\n\n[a]\nb = 1\n")
	dict, err := LoadDict(path)
	require.NoError(t, err)
	assert.Equal(t, "x", dict["d"])
	sub, ok := dict["a"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 1, sub["b"])
}

func TestSaveDict(t *testing.T) {
	t.Run("yaml round trip with directories", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "deep", "nested", "cfg.yaml")
		dict := map[string]any{
			"a": map[string]any{"b": 1},
			"c": "x",
		}
		require.NoError(t, SaveDict(dict, path))
		back, err := LoadDict(path)
		require.NoError(t, err)
		assert.Equal(t, dict, back)
	})

	t.Run("toml round trip", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "cfg.toml")
		dict := map[string]any{"a": map[string]any{"b": "v"}}
		require.NoError(t, SaveDict(dict, path))
		back, err := LoadDict(path)
		require.NoError(t, err)
		assert.Equal(t, dict, back)
	})

	t.Run("tagged keys survive a round trip", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "cfg.yaml")
		dict := map[string]any{"n@type:int": 1}
		require.NoError(t, SaveDict(dict, path))
		back, err := LoadDict(path)
		require.NoError(t, err)
		assert.Equal(t, dict, back)
	})
}
