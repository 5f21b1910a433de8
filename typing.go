package tagconf

import (
	"fmt"
	"maps"
	"sort"
	"strconv"
	"strings"
)

// typeSpec is a parsed type descriptor. check reports whether a value
// already satisfies the descriptor; convert attempts a structural
// conversion and reports success. canon is the canonical spelling of
// the descriptor, used to compare descriptors for equivalence: two
// descriptors differing only in case, spacing, alias names or union
// order share one canonical form.
type typeSpec interface {
	check(value any) bool
	convert(value any) (any, bool)
	canon() string
}

type anySpec struct{}

func (anySpec) check(any) bool            { return true }
func (anySpec) convert(v any) (any, bool) { return v, true }
func (anySpec) canon() string             { return "any" }

type noneSpec struct{}

func (noneSpec) check(v any) bool { return v == nil }
func (noneSpec) convert(v any) (any, bool) {
	if v == nil {
		return nil, true
	}
	return nil, false
}

func (noneSpec) canon() string { return "none" }

type boolSpec struct{}

func (boolSpec) check(v any) bool {
	_, ok := v.(bool)
	return ok
}

func (boolSpec) convert(v any) (any, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		b, err := strconv.ParseBool(strings.ToLower(t))
		return b, err == nil
	case int:
		return t != 0, true
	case int64:
		return t != 0, true
	case float64:
		return t != 0, true
	}
	return nil, false
}

func (boolSpec) canon() string { return "bool" }

type intSpec struct{}

func (intSpec) check(v any) bool {
	switch v.(type) {
	case int, int64:
		return true
	}
	return false
}

func (intSpec) convert(v any) (any, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		if t == float64(int(t)) {
			return int(t), true
		}
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err == nil {
			return n, true
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err == nil && f == float64(int(f)) {
			return int(f), true
		}
	}
	return nil, false
}

func (intSpec) canon() string { return "int" }

type floatSpec struct{}

func (floatSpec) check(v any) bool {
	switch v.(type) {
	case float64, float32:
		return true
	}
	return false
}

func (floatSpec) convert(v any) (any, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case bool:
		if t {
			return 1.0, true
		}
		return 0.0, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return nil, false
}

func (floatSpec) canon() string { return "float" }

type strSpec struct{}

func (strSpec) check(v any) bool {
	_, ok := v.(string)
	return ok
}

func (strSpec) convert(v any) (any, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case bool, int, int64, float64:
		return fmt.Sprint(t), true
	}
	return nil, false
}

func (strSpec) canon() string { return "str" }

// listSpec covers list and set descriptors: both map to a Go slice. A
// nil element spec means unconstrained elements.
type listSpec struct {
	elem typeSpec
}

func (s listSpec) check(v any) bool {
	items, ok := v.([]any)
	if !ok {
		return false
	}
	if s.elem == nil {
		return true
	}
	for _, item := range items {
		if !s.elem.check(item) {
			return false
		}
	}
	return true
}

func (s listSpec) convert(v any) (any, bool) {
	items, ok := v.([]any)
	if !ok {
		return nil, false
	}
	if s.elem == nil {
		return items, true
	}
	out := make([]any, len(items))
	for i, item := range items {
		converted, ok := s.elem.convert(item)
		if !ok {
			return nil, false
		}
		out[i] = converted
	}
	return out, true
}

func (s listSpec) canon() string {
	if s.elem == nil {
		return "list"
	}
	return "list[" + s.elem.canon() + "]"
}

// tupleSpec constrains a slice to a fixed length with per-position
// element types. nil elems means any length, any elements.
type tupleSpec struct {
	elems []typeSpec
}

func (s tupleSpec) check(v any) bool {
	items, ok := v.([]any)
	if !ok {
		return false
	}
	if s.elems == nil {
		return true
	}
	if len(items) != len(s.elems) {
		return false
	}
	for i, item := range items {
		if !s.elems[i].check(item) {
			return false
		}
	}
	return true
}

func (s tupleSpec) convert(v any) (any, bool) {
	items, ok := v.([]any)
	if !ok {
		return nil, false
	}
	if s.elems == nil {
		return items, true
	}
	if len(items) != len(s.elems) {
		return nil, false
	}
	out := make([]any, len(items))
	for i, item := range items {
		converted, ok := s.elems[i].convert(item)
		if !ok {
			return nil, false
		}
		out[i] = converted
	}
	return out, true
}

func (s tupleSpec) canon() string {
	if s.elems == nil {
		return "tuple"
	}
	parts := make([]string, len(s.elems))
	for i, elem := range s.elems {
		parts[i] = elem.canon()
	}
	return "tuple[" + strings.Join(parts, ",") + "]"
}

type dictSpec struct {
	key typeSpec
	val typeSpec
}

func (s dictSpec) check(v any) bool {
	mapping, ok := v.(map[string]any)
	if !ok {
		return false
	}
	if s.val == nil {
		return true
	}
	for _, value := range mapping {
		if !s.val.check(value) {
			return false
		}
	}
	return true
}

func (s dictSpec) convert(v any) (any, bool) {
	mapping, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	if s.val == nil {
		return mapping, true
	}
	out := make(map[string]any, len(mapping))
	for key, value := range mapping {
		converted, ok := s.val.convert(value)
		if !ok {
			return nil, false
		}
		out[key] = converted
	}
	return out, true
}

func (s dictSpec) canon() string {
	if s.val == nil {
		return "dict"
	}
	return "dict[" + s.key.canon() + "," + s.val.canon() + "]"
}

type unionSpec struct {
	alts []typeSpec
}

func (s unionSpec) check(v any) bool {
	for _, alt := range s.alts {
		if alt.check(v) {
			return true
		}
	}
	return false
}

func (s unionSpec) convert(v any) (any, bool) {
	// An alternative that accepts the value as-is wins over one that
	// needs conversion, so "int|str" leaves the string "2" alone.
	for _, alt := range s.alts {
		if alt.check(v) {
			return v, true
		}
	}
	for _, alt := range s.alts {
		if converted, ok := alt.convert(v); ok {
			return converted, true
		}
	}
	return nil, false
}

func (s unionSpec) canon() string {
	parts := make([]string, len(s.alts))
	for i, alt := range s.alts {
		parts[i] = alt.canon()
	}
	sort.Strings(parts)
	return strings.Join(parts, "|")
}

// splitTop splits s on sep at bracket depth zero.
func splitTop(s string, sep byte) []string {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '[', '(':
			depth++
		case ']', ')':
			depth--
		case sep:
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}

// parseTypeDesc parses a type descriptor such as "int", "List[str]",
// "Dict[str, int]", "Optional[float]" or "int|str". Base type names are
// case-insensitive.
func parseTypeDesc(desc string) (typeSpec, error) {
	desc = strings.TrimSpace(desc)
	if desc == "" {
		return nil, fmt.Errorf("empty type description")
	}
	if alts := splitTop(desc, '|'); len(alts) > 1 {
		specs := make([]typeSpec, len(alts))
		for i, alt := range alts {
			spec, err := parseTypeDesc(alt)
			if err != nil {
				return nil, err
			}
			specs[i] = spec
		}
		return unionSpec{alts: specs}, nil
	}

	name, args := desc, ""
	if i := strings.IndexByte(desc, '['); i >= 0 {
		if !strings.HasSuffix(desc, "]") {
			return nil, fmt.Errorf("unbalanced brackets in type description %q", desc)
		}
		name, args = desc[:i], desc[i+1:len(desc)-1]
	}
	name = strings.ToLower(strings.TrimSpace(name))

	parseArgs := func() ([]typeSpec, error) {
		parts := splitTop(args, ',')
		specs := make([]typeSpec, len(parts))
		for i, part := range parts {
			spec, err := parseTypeDesc(part)
			if err != nil {
				return nil, err
			}
			specs[i] = spec
		}
		return specs, nil
	}

	switch name {
	case "any":
		return anySpec{}, nil
	case "none", "nonetype", "null":
		return noneSpec{}, nil
	case "bool":
		return boolSpec{}, nil
	case "int":
		return intSpec{}, nil
	case "float":
		return floatSpec{}, nil
	case "str", "string":
		return strSpec{}, nil
	case "list", "set":
		if args == "" {
			return listSpec{}, nil
		}
		specs, err := parseArgs()
		if err != nil {
			return nil, err
		}
		if len(specs) != 1 {
			return nil, fmt.Errorf("%s takes exactly one type argument in %q", name, desc)
		}
		return listSpec{elem: specs[0]}, nil
	case "tuple":
		if args == "" {
			return tupleSpec{}, nil
		}
		specs, err := parseArgs()
		if err != nil {
			return nil, err
		}
		return tupleSpec{elems: specs}, nil
	case "dict":
		if args == "" {
			return dictSpec{}, nil
		}
		specs, err := parseArgs()
		if err != nil {
			return nil, err
		}
		if len(specs) != 2 {
			return nil, fmt.Errorf("dict takes exactly two type arguments in %q", desc)
		}
		if _, isStr := specs[0].(strSpec); !isStr {
			if _, isAny := specs[0].(anySpec); !isAny {
				return nil, fmt.Errorf("dict keys must be str in %q", desc)
			}
		}
		return dictSpec{key: specs[0], val: specs[1]}, nil
	case "optional":
		specs, err := parseArgs()
		if err != nil {
			return nil, err
		}
		if len(specs) != 1 {
			return nil, fmt.Errorf("optional takes exactly one type argument in %q", desc)
		}
		return unionSpec{alts: []typeSpec{specs[0], noneSpec{}}}, nil
	case "union":
		specs, err := parseArgs()
		if err != nil {
			return nil, err
		}
		return unionSpec{alts: specs}, nil
	}
	return nil, fmt.Errorf("unknown type name %q in type description %q", name, desc)
}

// TypingProcessing enforces a type on a parameter tagged
// @type:<description>. The descriptor is remembered for the whole build:
// every merged-in value for the key must satisfy it, at pre-merge and
// again at the end of the build. Values that do not satisfy the
// descriptor but convert cleanly (for example the string "2" for int)
// are converted in place; values that do not convert raise a
// *TypeError. Re-tagging a key with an equivalent descriptor (another
// spelling, case or spacing of the same type) is allowed; changing the
// type itself mid-build is an error. Pre-save restores the tag.
//
// Pre-merge order: 0. End-build order: 20. Pre-save order: 0.
type TypingProcessing struct {
	NopProcessing
	descs map[string]string
	specs map[string]typeSpec
}

func NewTypingProcessing() *TypingProcessing {
	return &TypingProcessing{
		descs: make(map[string]string),
		specs: make(map[string]typeSpec),
	}
}

func (p *TypingProcessing) Orders() Orders { return Orders{EndBuild: 20} }

func (p *TypingProcessing) Equal(other Processing) bool {
	o, ok := other.(*TypingProcessing)
	return ok && maps.Equal(p.descs, o.descs)
}

func (p *TypingProcessing) Premerge(cfg *Config) error {
	for _, key := range sortedKeys(cfg.Dict) {
		desc, found := tagParam(key, "type")
		if !found {
			continue
		}
		spec, err := parseTypeDesc(desc)
		if err != nil {
			return &TagSemanticError{Tag: "type", Key: key, Reason: err.Error()}
		}
		cleanKey := StripTags(key)
		if previous, exists := p.specs[cleanKey]; exists && previous.canon() != spec.canon() {
			return &TagSemanticError{Tag: "type", Key: key,
				Reason: fmt.Sprintf("key changed its type from %q to %q", p.descs[cleanKey], desc)}
		}
		p.descs[cleanKey] = desc
		p.specs[cleanKey] = spec

		value := cfg.Dict[key]
		delete(cfg.Dict, key)
		newKey := StripTag(key, "type:"+desc)
		converted, ok := spec.convert(value)
		if !ok {
			return &TypeError{Key: cleanKey, Want: desc, Value: value}
		}
		cfg.Dict[newKey] = converted
	}
	return nil
}

func (p *TypingProcessing) EndBuild(cfg *Config) error {
	for _, key := range sortedKeys(p.specs) {
		value, exists := cfg.Dict[key]
		if !exists {
			continue
		}
		converted, ok := p.specs[key].convert(value)
		if !ok {
			return &TypeError{Key: key, Want: p.descs[key], Value: value}
		}
		cfg.Dict[key] = converted
	}
	return nil
}

func (p *TypingProcessing) Presave(cfg *Config) error {
	for _, key := range sortedKeys(cfg.Dict) {
		desc, exists := p.descs[StripTags(key)]
		if !exists {
			continue
		}
		value := cfg.Dict[key]
		delete(cfg.Dict, key)
		cfg.Dict[key+"@type:"+desc] = value
	}
	return nil
}
