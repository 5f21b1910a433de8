package tagconf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTypeDesc(t *testing.T) {
	tests := []struct {
		desc  string
		value any
		want  bool
	}{
		{"int", 2, true},
		{"int", int64(2), true},
		{"int", "2", false},
		{"float", 0.5, true},
		{"float", 2, false},
		{"str", "x", true},
		{"bool", true, true},
		{"none", nil, true},
		{"any", map[string]any{}, true},
		{"List[int]", []any{1, 2}, true},
		{"List[int]", []any{1, "x"}, false},
		{"list", []any{1, "x"}, true},
		{"Dict[str, int]", map[string]any{"a": 1}, true},
		{"Dict[str, int]", map[string]any{"a": "x"}, false},
		{"Optional[int]", nil, true},
		{"Optional[int]", 3, true},
		{"int|str", "x", true},
		{"int|str", 1, true},
		{"int|str", 0.5, false},
		{"Union[int, float]", 0.5, true},
		{"Tuple[int, str]", []any{1, "x"}, true},
		{"Tuple[int, str]", []any{1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			spec, err := parseTypeDesc(tt.desc)
			require.NoError(t, err)
			assert.Equal(t, tt.want, spec.check(tt.value))
		})
	}

	t.Run("invalid descriptors", func(t *testing.T) {
		for _, desc := range []string{"", "whatever", "List[int", "Dict[int, int]", "Optional[int, str]"} {
			_, err := parseTypeDesc(desc)
			assert.Error(t, err, desc)
		}
	})
}

func TestTypeConversion(t *testing.T) {
	tests := []struct {
		name  string
		desc  string
		value any
		want  any
		ok    bool
	}{
		{"string to int", "int", "2", 2, true},
		{"float with integral value to int", "int", 2.0, 2, true},
		{"fractional float not int", "int", 2.5, nil, false},
		{"int to float", "float", 2, 2.0, true},
		{"int to str", "str", 42, "42", true},
		{"string to bool", "bool", "true", true, true},
		{"list not int", "int", []any{}, nil, false},
		{"element conversion", "List[int]", []any{"1", 2.0}, []any{1, 2}, true},
		{"union keeps satisfying value", "int|str", "2", "2", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec, err := parseTypeDesc(tt.desc)
			require.NoError(t, err)
			got, ok := spec.convert(tt.value)
			require.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestTypingProcessing(t *testing.T) {
	t.Run("converts at pre-merge", func(t *testing.T) {
		merged, err := mergeWithDefaults(t, map[string]any{"n@type:int": "2"})
		require.NoError(t, err)
		assert.Equal(t, 2, merged.Dict["n"])
	})

	t.Run("enforced across merges at end of build", func(t *testing.T) {
		merged, err := mergeWithDefaults(t, map[string]any{"n@type:int": 1})
		require.NoError(t, err)

		merged, err = MergeFlatProcessing(merged, New(map[string]any{"n": []any{}}, nil), MergeOptions{
			PreprocessSecond: true,
			Postprocess:      true,
		})
		require.NoError(t, err)

		_, err = EndBuildProcessing(merged)
		var typeErr *TypeError
		require.ErrorAs(t, err, &typeErr)
		assert.Equal(t, "n", typeErr.Key)
	})

	t.Run("incompatible value rejected at pre-merge", func(t *testing.T) {
		_, err := mergeWithDefaults(t, map[string]any{"n@type:int": []any{1}})
		var typeErr *TypeError
		require.ErrorAs(t, err, &typeErr)
	})

	t.Run("equivalent descriptor respelling accepted", func(t *testing.T) {
		merged, err := mergeWithDefaults(t, map[string]any{"n@type:int|str": 1})
		require.NoError(t, err)

		merged, err = MergeFlatProcessing(merged, New(map[string]any{"n@type:Int | Str": 2}, nil), MergeOptions{
			PreprocessSecond: true,
			Postprocess:      true,
		})
		require.NoError(t, err)
		assert.Equal(t, 2, merged.Dict["n"])

		merged, err = MergeFlatProcessing(merged, New(map[string]any{"n@type:Union[str, int]": "x"}, nil), MergeOptions{
			PreprocessSecond: true,
			Postprocess:      true,
		})
		require.NoError(t, err)
		assert.Equal(t, "x", merged.Dict["n"])
	})

	t.Run("descriptor change rejected", func(t *testing.T) {
		merged, err := mergeWithDefaults(t, map[string]any{"n@type:int": 1})
		require.NoError(t, err)

		_, err = MergeFlatProcessing(merged, New(map[string]any{"n@type:str": "x"}, nil), MergeOptions{
			PreprocessSecond: true,
			Postprocess:      true,
		})
		var semantic *TagSemanticError
		require.ErrorAs(t, err, &semantic)
		assert.Equal(t, "type", semantic.Tag)
	})

	t.Run("presave restores the descriptor", func(t *testing.T) {
		dir := t.TempDir()
		merged, err := mergeWithDefaults(t, map[string]any{"n@type:int": 1})
		require.NoError(t, err)

		flat := writeAndReload(t, dir, merged)
		assert.Equal(t, 1, flat["n@type:int"])
	})
}

// writeAndReload saves the config and returns the flat raw content of
// the file, tags included.
func writeAndReload(t *testing.T, dir string, cfg *Config) map[string]any {
	t.Helper()
	path := dir + "/out.yaml"
	require.NoError(t, SaveProcessing(cfg, path))
	saved, err := LoadDict(path)
	require.NoError(t, err)
	flat, err := Flatten(saved)
	require.NoError(t, err)
	return flat
}
