package tagconf

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// exprFuncs is the whitelist of functions callable from @def
// expressions. All of them are pure.
var exprFuncs = map[string]func(args []any) (any, error){
	"len":   fnLen,
	"sum":   fnSum,
	"max":   fnMax,
	"min":   fnMin,
	"abs":   fnAbs,
	"round": fnRound,
	"all":   fnAll,
	"any":   fnAny,
	"range": fnRange,
	"bool":  fnBool,
	"int":   fnInt,
	"float": fnFloat,
	"str":   fnStr,
	"list":  fnList,
	"tuple": fnList,
	"set":   fnSet,
	"dict":  fnDict,

	"math.sqrt":  fnMath1(math.Sqrt),
	"math.log":   fnMath1(math.Log),
	"math.log2":  fnMath1(math.Log2),
	"math.log10": fnMath1(math.Log10),
	"math.exp":   fnMath1(math.Exp),
	"math.sin":   fnMath1(math.Sin),
	"math.cos":   fnMath1(math.Cos),
	"math.tan":   fnMath1(math.Tan),
	"math.floor": fnFloor,
	"math.ceil":  fnCeil,
}

func evalCall(n callNode, env exprEnv) (any, error) {
	fn, exists := exprFuncs[n.fn]
	if !exists {
		return nil, fmt.Errorf("function %q is not allowed in expressions", n.fn)
	}
	args := make([]any, len(n.args))
	for i, argExpr := range n.args {
		value, err := evalExpr(argExpr, env)
		if err != nil {
			return nil, err
		}
		args[i] = value
	}
	result, err := fn(args)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", n.fn, err)
	}
	return result, nil
}

func oneArg(args []any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("expected 1 argument, got %d", len(args))
	}
	return args[0], nil
}

func fnLen(args []any) (any, error) {
	arg, err := oneArg(args)
	if err != nil {
		return nil, err
	}
	switch v := arg.(type) {
	case string:
		return len(v), nil
	case []any:
		return len(v), nil
	case map[string]any:
		return len(v), nil
	}
	return nil, fmt.Errorf("object of type %T has no length", arg)
}

func fnSum(args []any) (any, error) {
	arg, err := oneArg(args)
	if err != nil {
		return nil, err
	}
	items, isList := arg.([]any)
	if !isList {
		return nil, fmt.Errorf("expected a list, got %v", arg)
	}
	intSum, allInts := 0, true
	floatSum := 0.0
	for _, item := range items {
		if n, ok := asInt(item); ok {
			intSum += n
			floatSum += float64(n)
			continue
		}
		f, ok := asFloat(item)
		if !ok {
			return nil, fmt.Errorf("cannot sum %v", item)
		}
		allInts = false
		floatSum += f
	}
	if allInts {
		return intSum, nil
	}
	return floatSum, nil
}

func extremum(args []any, better func(a, b float64) bool) (any, error) {
	items := args
	if len(args) == 1 {
		list, isList := args[0].([]any)
		if !isList {
			return nil, fmt.Errorf("expected a list or several arguments")
		}
		items = list
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("empty sequence")
	}
	best := items[0]
	bestF, ok := asFloat(best)
	if !ok {
		return nil, fmt.Errorf("cannot order %v", best)
	}
	for _, item := range items[1:] {
		f, ok := asFloat(item)
		if !ok {
			return nil, fmt.Errorf("cannot order %v", item)
		}
		if better(f, bestF) {
			best, bestF = item, f
		}
	}
	return best, nil
}

func fnMax(args []any) (any, error) {
	return extremum(args, func(a, b float64) bool { return a > b })
}

func fnMin(args []any) (any, error) {
	return extremum(args, func(a, b float64) bool { return a < b })
}

func fnAbs(args []any) (any, error) {
	arg, err := oneArg(args)
	if err != nil {
		return nil, err
	}
	if n, ok := arg.(int); ok {
		if n < 0 {
			return -n, nil
		}
		return n, nil
	}
	f, ok := asFloat(arg)
	if !ok {
		return nil, fmt.Errorf("expected a number, got %v", arg)
	}
	return math.Abs(f), nil
}

func fnRound(args []any) (any, error) {
	if len(args) != 1 && len(args) != 2 {
		return nil, fmt.Errorf("expected 1 or 2 arguments, got %d", len(args))
	}
	f, ok := asFloat(args[0])
	if !ok {
		return nil, fmt.Errorf("expected a number, got %v", args[0])
	}
	if len(args) == 2 {
		digits, ok := asInt(args[1])
		if !ok {
			return nil, fmt.Errorf("digit count must be an integer, got %v", args[1])
		}
		shift := math.Pow(10, float64(digits))
		return math.Round(f*shift) / shift, nil
	}
	return int(math.Round(f)), nil
}

func fnAll(args []any) (any, error) {
	arg, err := oneArg(args)
	if err != nil {
		return nil, err
	}
	items, isList := arg.([]any)
	if !isList {
		return nil, fmt.Errorf("expected a list, got %v", arg)
	}
	for _, item := range items {
		if !exprTruthy(item) {
			return false, nil
		}
	}
	return true, nil
}

func fnAny(args []any) (any, error) {
	arg, err := oneArg(args)
	if err != nil {
		return nil, err
	}
	items, isList := arg.([]any)
	if !isList {
		return nil, fmt.Errorf("expected a list, got %v", arg)
	}
	for _, item := range items {
		if exprTruthy(item) {
			return true, nil
		}
	}
	return false, nil
}

func fnRange(args []any) (any, error) {
	if len(args) < 1 || len(args) > 3 {
		return nil, fmt.Errorf("expected 1 to 3 arguments, got %d", len(args))
	}
	bounds := make([]int, len(args))
	for i, arg := range args {
		n, ok := asInt(arg)
		if !ok {
			return nil, fmt.Errorf("arguments must be integers, got %v", arg)
		}
		bounds[i] = n
	}
	start, stop, step := 0, 0, 1
	switch len(bounds) {
	case 1:
		stop = bounds[0]
	case 2:
		start, stop = bounds[0], bounds[1]
	case 3:
		start, stop, step = bounds[0], bounds[1], bounds[2]
	}
	if step == 0 {
		return nil, fmt.Errorf("step must not be zero")
	}
	var out []any
	if step > 0 {
		for i := start; i < stop; i += step {
			out = append(out, i)
		}
	} else {
		for i := start; i > stop; i += step {
			out = append(out, i)
		}
	}
	if out == nil {
		out = []any{}
	}
	return out, nil
}

func fnBool(args []any) (any, error) {
	arg, err := oneArg(args)
	if err != nil {
		return nil, err
	}
	return exprTruthy(arg), nil
}

func fnInt(args []any) (any, error) {
	arg, err := oneArg(args)
	if err != nil {
		return nil, err
	}
	if s, isString := arg.(string); isString {
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("invalid integer literal %q", s)
		}
		return n, nil
	}
	f, ok := asFloat(arg)
	if !ok {
		return nil, fmt.Errorf("cannot convert %v to int", arg)
	}
	return int(math.Trunc(f)), nil
}

func fnFloat(args []any) (any, error) {
	arg, err := oneArg(args)
	if err != nil {
		return nil, err
	}
	if s, isString := arg.(string); isString {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid float literal %q", s)
		}
		return f, nil
	}
	f, ok := asFloat(arg)
	if !ok {
		return nil, fmt.Errorf("cannot convert %v to float", arg)
	}
	return f, nil
}

func fnStr(args []any) (any, error) {
	arg, err := oneArg(args)
	if err != nil {
		return nil, err
	}
	switch v := arg.(type) {
	case nil:
		return "None", nil
	case bool:
		if v {
			return "True", nil
		}
		return "False", nil
	case string:
		return v, nil
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64), nil
	}
	return fmt.Sprint(arg), nil
}

func fnList(args []any) (any, error) {
	if len(args) == 0 {
		return []any{}, nil
	}
	arg, err := oneArg(args)
	if err != nil {
		return nil, err
	}
	switch v := arg.(type) {
	case []any:
		return append([]any{}, v...), nil
	case map[string]any:
		keys := sortedKeys(v)
		out := make([]any, len(keys))
		for i, key := range keys {
			out[i] = key
		}
		return out, nil
	}
	return nil, fmt.Errorf("cannot convert %v to a list", arg)
}

// fnSet deduplicates a list. The result stays a list, sorted when the
// elements are orderable so equal inputs give equal outputs.
func fnSet(args []any) (any, error) {
	if len(args) == 0 {
		return []any{}, nil
	}
	arg, err := oneArg(args)
	if err != nil {
		return nil, err
	}
	items, isList := arg.([]any)
	if !isList {
		return nil, fmt.Errorf("expected a list, got %v", arg)
	}
	var unique []any
	for _, item := range items {
		duplicate := false
		for _, seen := range unique {
			if exprEqual(item, seen) {
				duplicate = true
				break
			}
		}
		if !duplicate {
			unique = append(unique, item)
		}
	}
	if unique == nil {
		return []any{}, nil
	}
	sortable := true
	for _, item := range unique {
		if _, ok := asFloat(item); !ok {
			if _, ok := item.(string); !ok {
				sortable = false
				break
			}
		}
	}
	if sortable {
		sort.SliceStable(unique, func(i, j int) bool {
			less, err := compareValues("<", unique[i], unique[j])
			return err == nil && less
		})
	}
	return unique, nil
}

func fnDict(args []any) (any, error) {
	if len(args) == 0 {
		return map[string]any{}, nil
	}
	arg, err := oneArg(args)
	if err != nil {
		return nil, err
	}
	switch v := arg.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, value := range v {
			out[key] = value
		}
		return out, nil
	case []any:
		out := make(map[string]any, len(v))
		for _, item := range v {
			pair, isPair := item.([]any)
			if !isPair || len(pair) != 2 {
				return nil, fmt.Errorf("expected key/value pairs, got %v", item)
			}
			key, isString := pair[0].(string)
			if !isString {
				return nil, fmt.Errorf("dict keys must be strings, got %v", pair[0])
			}
			out[key] = pair[1]
		}
		return out, nil
	}
	return nil, fmt.Errorf("cannot convert %v to a dict", arg)
}

func fnMath1(f func(float64) float64) func(args []any) (any, error) {
	return func(args []any) (any, error) {
		arg, err := oneArg(args)
		if err != nil {
			return nil, err
		}
		x, ok := asFloat(arg)
		if !ok {
			return nil, fmt.Errorf("expected a number, got %v", arg)
		}
		return f(x), nil
	}
}

func fnFloor(args []any) (any, error) {
	arg, err := oneArg(args)
	if err != nil {
		return nil, err
	}
	x, ok := asFloat(arg)
	if !ok {
		return nil, fmt.Errorf("expected a number, got %v", arg)
	}
	return int(math.Floor(x)), nil
}

func fnCeil(args []any) (any, error) {
	arg, err := oneArg(args)
	if err != nil {
		return nil, err
	}
	x, ok := asFloat(arg)
	if !ok {
		return nil, fmt.Errorf("expected a number, got %v", arg)
	}
	return int(math.Ceil(x)), nil
}
