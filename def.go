package tagconf

import (
	"fmt"
	"maps"
	"reflect"
)

// DefProcessing binds a parameter tagged @def to an expression over
// other parameters. The expression is re-evaluated after every merge so
// the bound value tracks its inputs across the whole build. Setting the
// key to a plain value in a later config drops the binding and the key
// behaves like an ordinary parameter from then on. Pre-save restores
// the tag with the expression text for live bindings, so the dynamic
// relation survives a save/load round-trip.
//
// Pre-merge order: 0. Post-merge order: 10.
type DefProcessing struct {
	NopProcessing
	exprs      map[string]string
	trees      map[string]exprNode
	lastValues map[string]any
	computed   map[string]bool
}

func NewDefProcessing() *DefProcessing {
	return &DefProcessing{
		exprs:      make(map[string]string),
		trees:      make(map[string]exprNode),
		lastValues: make(map[string]any),
		computed:   make(map[string]bool),
	}
}

func (p *DefProcessing) Orders() Orders { return Orders{Postmerge: 10} }

func (p *DefProcessing) Equal(other Processing) bool {
	o, ok := other.(*DefProcessing)
	return ok && maps.Equal(p.exprs, o.exprs) &&
		reflect.DeepEqual(p.lastValues, o.lastValues) &&
		maps.Equal(p.computed, o.computed)
}

func (p *DefProcessing) Premerge(cfg *Config) error {
	for _, key := range sortedKeys(cfg.Dict) {
		if !HasTag(key, "def", false) {
			continue
		}
		value := cfg.Dict[key]
		expression, isString := value.(string)
		if !isString {
			return &TagSemanticError{Tag: "def", Key: key,
				Reason: fmt.Sprintf("value must be an expression string, got %v", value)}
		}
		tree, err := parseExpr(expression)
		if err != nil {
			return &TagSemanticError{Tag: "def", Key: key, Reason: err.Error()}
		}
		cleanKey := StripTags(key)
		p.exprs[cleanKey] = expression
		p.trees[cleanKey] = tree
		delete(p.computed, cleanKey)
		delete(p.lastValues, cleanKey)
		delete(cfg.Dict, key)
		cfg.Dict[StripTag(key, "def")] = expression
	}
	return nil
}

func (p *DefProcessing) Postmerge(cfg *Config) error {
	for _, key := range sortedKeys(p.exprs) {
		current, exists := cfg.Dict[key]
		if !exists {
			continue
		}
		// A plain value merged over the key, one that is neither the
		// expression text nor our last result, replaces the binding.
		stale := p.computed[key] && !reflect.DeepEqual(current, p.lastValues[key]) ||
			!p.computed[key] && !reflect.DeepEqual(current, p.exprs[key])
		if stale {
			delete(p.exprs, key)
			delete(p.trees, key)
			delete(p.lastValues, key)
			delete(p.computed, key)
			continue
		}
		env := make(exprEnv, len(cfg.Dict))
		for name, value := range cfg.Dict {
			env[name] = value
		}
		result, err := evalExpr(p.trees[key], env)
		if err != nil {
			return &TagSemanticError{Tag: "def", Key: key, Reason: err.Error()}
		}
		cfg.Dict[key] = result
		p.lastValues[key] = result
		p.computed[key] = true
	}
	return nil
}

func (p *DefProcessing) Presave(cfg *Config) error {
	for _, key := range sortedKeys(cfg.Dict) {
		expression, bound := p.exprs[StripTags(key)]
		if !bound {
			continue
		}
		delete(cfg.Dict, key)
		cfg.Dict[key+"@def"] = expression
	}
	return nil
}
