package tagconf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func evalString(t *testing.T, src string, env exprEnv) any {
	t.Helper()
	tree, err := parseExpr(src)
	require.NoError(t, err)
	value, err := evalExpr(tree, env)
	require.NoError(t, err)
	return value
}

func TestExprArithmetic(t *testing.T) {
	tests := []struct {
		src  string
		want any
	}{
		{"1 + 2 * 3", 7},
		{"(1 + 2) * 3", 9},
		{"2 ** 10", 1024},
		{"2 ** -1", 0.5},
		{"7 // 2", 3},
		{"-7 // 2", -4},
		{"7 % 3", 1},
		{"-7 % 3", 2},
		{"7 / 2", 3.5},
		{"1.5 + 1", 2.5},
		{"-3", -3},
		{"'ab' + 'cd'", "abcd"},
		{"[1, 2] + [3]", []any{1, 2, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			assert.Equal(t, tt.want, evalString(t, tt.src, exprEnv{}))
		})
	}
}

func TestExprLogicAndComparison(t *testing.T) {
	tests := []struct {
		src  string
		want any
	}{
		{"1 < 2", true},
		{"1 < 2 < 3", true},
		{"1 < 2 > 3", false},
		{"2 == 2.0", true},
		{"2 != 3", true},
		{"'a' < 'b'", true},
		{"1 in [1, 2]", true},
		{"3 in [1, 2]", false},
		{"not True", false},
		{"True and 5", 5},
		{"0 or 'x'", "x"},
		{"1 | 2", 1},
		{"0 | 2", 2},
		{"1 & 2", 2},
		{"0 & 2", 0},
		{"'yes' if 2 > 1 else 'no'", "yes"},
		{"'yes' if 2 < 1 else 'no'", "no"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			assert.Equal(t, tt.want, evalString(t, tt.src, exprEnv{}))
		})
	}
}

func TestExprNames(t *testing.T) {
	env := exprEnv{
		"a":         2,
		"model.dim": 64,
		"flags":     []any{true, false},
		"name":      "resnet",
	}

	assert.Equal(t, 6, evalString(t, "a * 3", env))
	assert.Equal(t, 128, evalString(t, "model.dim * a", env))
	assert.Equal(t, 2, evalString(t, "len(flags)", env))

	t.Run("unknown parameter", func(t *testing.T) {
		tree, err := parseExpr("missing + 1")
		require.NoError(t, err)
		_, err = evalExpr(tree, env)
		assert.ErrorContains(t, err, "missing")
	})

	t.Run("unicode parameter names", func(t *testing.T) {
		unicodeEnv := exprEnv{"größe": 2, "model.lr_μ": 0.5}
		assert.Equal(t, 4, evalString(t, "größe * 2", unicodeEnv))
		assert.Equal(t, 1.0, evalString(t, "model.lr_μ * 2", unicodeEnv))
	})

	t.Run("string parameters not referenceable", func(t *testing.T) {
		tree, err := parseExpr("name")
		require.NoError(t, err)
		_, err = evalExpr(tree, env)
		assert.Error(t, err)
	})
}

func TestExprFunctions(t *testing.T) {
	tests := []struct {
		src  string
		want any
	}{
		{"len('abc')", 3},
		{"sum([1, 2, 3])", 6},
		{"sum([1, 2.5])", 3.5},
		{"max(1, 5, 3)", 5},
		{"min([4, 2, 8])", 2},
		{"abs(-3)", 3},
		{"round(2.6)", 3},
		{"round(2.344, 2)", 2.34},
		{"all([True, 1])", true},
		{"any([0, False])", false},
		{"range(3)", []any{0, 1, 2}},
		{"range(1, 7, 2)", []any{1, 3, 5}},
		{"int('42')", 42},
		{"float(2)", 2.0},
		{"str(2.5)", "2.5"},
		{"bool([])", false},
		{"set([2, 1, 2, 3])", []any{1, 2, 3}},
		{"math.sqrt(9)", 3.0},
		{"math.floor(2.7)", 2},
		{"math.ceil(2.1)", 3},
		{"math.pi > 3.14", true},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			assert.Equal(t, tt.want, evalString(t, tt.src, exprEnv{}))
		})
	}

	t.Run("disallowed function", func(t *testing.T) {
		tree, err := parseExpr("open('/etc/passwd')")
		require.NoError(t, err)
		_, err = evalExpr(tree, exprEnv{})
		assert.ErrorContains(t, err, "not allowed")
	})
}

func TestExprCollections(t *testing.T) {
	assert.Equal(t, []any{1, "x", true}, evalString(t, "[1, 'x', True]", exprEnv{}))
	assert.Equal(t, []any{1, 2}, evalString(t, "(1, 2)", exprEnv{}))
	assert.Equal(t,
		map[string]any{"a": 1, "b": 2},
		evalString(t, "{'a': 1, 'b': 2}", exprEnv{}))
}

func TestExprComprehensions(t *testing.T) {
	env := exprEnv{"xs": []any{1, 2, 3, 4}}

	assert.Equal(t, []any{2, 4, 6, 8}, evalString(t, "[x * 2 for x in xs]", env))
	assert.Equal(t, []any{2, 4}, evalString(t, "[x for x in xs if x % 2 == 0]", env))
	assert.Equal(t,
		map[string]any{"1": 1, "2": 4},
		evalString(t, "{str(x): x * x for x in xs if x < 3}", env))
	assert.Equal(t, []any{3, 7},
		evalString(t, "[a + b for a, b in [(1, 2), (3, 4)]]", env))
}

func TestExprParseErrors(t *testing.T) {
	for _, src := range []string{"1 +", "(1", "[1, 2", "{1: 2", "1 if 2", "x for x in xs", "@"} {
		t.Run(src, func(t *testing.T) {
			_, err := parseExpr(src)
			assert.Error(t, err)
		})
	}

	t.Run("non-letter unicode reported as one character", func(t *testing.T) {
		_, err := parseExpr("2 § 3")
		assert.ErrorContains(t, err, "'§'")
	})
}
