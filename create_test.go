package tagconf

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func negate(value any) (any, error) {
	n, ok := value.(int)
	if !ok {
		return nil, fmt.Errorf("expected an int, got %v", value)
	}
	return -n, nil
}

func TestTagValueProcessing(t *testing.T) {
	t.Run("applies and strips the tag", func(t *testing.T) {
		proc := NewTagValueProcessing("neg", 0, negate, false)
		cfg := New(map[string]any{"a.b@neg": 3, "a.c": 4}, []Processing{proc})
		merged, err := MergeFlatProcessing(cfg, New(nil, nil), DefaultMergeOptions())
		require.NoError(t, err)
		assert.Equal(t, -3, merged.Dict["a.b"])
		assert.Equal(t, 4, merged.Dict["a.c"])
	})

	t.Run("persistent re-applies on later merges", func(t *testing.T) {
		proc := NewTagValueProcessing("neg", 0, negate, true)
		cfg := New(map[string]any{"x@neg": 3}, []Processing{proc})
		merged, err := MergeFlatProcessing(cfg, New(nil, nil), DefaultMergeOptions())
		require.NoError(t, err)
		assert.Equal(t, -3, merged.Dict["x"])

		merged, err = MergeFlatProcessing(merged, New(map[string]any{"x": 5}, nil), MergeOptions{
			PreprocessSecond: true,
			Postprocess:      true,
		})
		require.NoError(t, err)
		assert.Equal(t, -5, merged.Dict["x"])
	})

	t.Run("function error surfaces with the key", func(t *testing.T) {
		proc := NewTagValueProcessing("neg", 0, negate, false)
		cfg := New(map[string]any{"x@neg": "nope"}, []Processing{proc})
		_, err := MergeFlatProcessing(cfg, New(nil, nil), DefaultMergeOptions())
		var semantic *TagSemanticError
		require.ErrorAs(t, err, &semantic)
		assert.Equal(t, "neg", semantic.Tag)
	})
}

func TestRegexValueProcessing(t *testing.T) {
	double := func(value any) (any, error) {
		n, ok := value.(int)
		if !ok {
			return nil, fmt.Errorf("expected an int, got %v", value)
		}
		return n * 2, nil
	}

	proc, err := NewRegexValueProcessing(`^dim_`, 0, double)
	require.NoError(t, err)
	cfg := New(map[string]any{
		"model.dim_hidden": 8,
		"model.depth":      3,
	}, []Processing{proc})
	merged, err := MergeFlatProcessing(cfg, New(nil, nil), DefaultMergeOptions())
	require.NoError(t, err)
	assert.Equal(t, 16, merged.Dict["model.dim_hidden"])
	assert.Equal(t, 3, merged.Dict["model.depth"])

	_, err = NewRegexValueProcessing(`(unbalanced`, 0, double)
	assert.Error(t, err)
}

func TestKeepPropertyProcessing(t *testing.T) {
	typeName := func(value any) (any, error) {
		return fmt.Sprintf("%T", value), nil
	}

	t.Run("frozen property allows same-property updates", func(t *testing.T) {
		proc := NewKeepPropertyProcessing("keeptype", typeName, 0, 10)
		cfg := New(map[string]any{"lr@keeptype": 0.1}, []Processing{proc})
		merged, err := MergeFlatProcessing(cfg, New(nil, nil), DefaultMergeOptions())
		require.NoError(t, err)

		merged, err = MergeFlatProcessing(merged, New(map[string]any{"lr": 0.5}, nil), MergeOptions{
			PreprocessSecond: true,
			Postprocess:      true,
		})
		require.NoError(t, err)
		assert.Equal(t, 0.5, merged.Dict["lr"])
	})

	t.Run("property change rejected", func(t *testing.T) {
		proc := NewKeepPropertyProcessing("keeptype", typeName, 0, 10)
		cfg := New(map[string]any{"lr@keeptype": 0.1}, []Processing{proc})
		merged, err := MergeFlatProcessing(cfg, New(nil, nil), DefaultMergeOptions())
		require.NoError(t, err)

		_, err = MergeFlatProcessing(merged, New(map[string]any{"lr": "high"}, nil), MergeOptions{
			PreprocessSecond: true,
			Postprocess:      true,
		})
		var protection *ProtectionError
		require.ErrorAs(t, err, &protection)
		assert.Equal(t, "lr", protection.Key)
	})
}
