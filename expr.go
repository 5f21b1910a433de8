package tagconf

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// The @def tag evaluates a small Python-like expression language over
// the parameters of the config. Expressions support arithmetic,
// comparisons, boolean logic, conditional expressions, list/tuple/set/
// dict literals, single-generator comprehensions and a whitelist of
// pure functions. Parameter names are dotted paths into the flat
// config; only nil, bool, numeric and list parameter values may be
// referenced.

type exprNode interface{}

type litNode struct{ value any }

type nameNode struct{ path string }

type unaryNode struct {
	op      string
	operand exprNode
}

type binaryNode struct {
	op          string
	left, right exprNode
}

type boolOpNode struct {
	op     string
	values []exprNode
}

type compareNode struct {
	left   exprNode
	ops    []string
	rights []exprNode
}

type ternaryNode struct {
	cond, then, orelse exprNode
}

type callNode struct {
	fn   string
	args []exprNode
}

type seqNode struct {
	elems []exprNode
}

type dictNode struct {
	keys, vals []exprNode
}

// compNode is a single-generator comprehension. keyExpr is nil for
// list and set comprehensions.
type compNode struct {
	keyExpr  exprNode
	elemExpr exprNode
	targets  []string
	iter     exprNode
	conds    []exprNode
	isDict   bool
}

// lexer

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokString
	tokName
	tokKeyword
	tokOp
)

type token struct {
	kind tokenKind
	text string
	num  float64
	pos  int
}

var exprKeywords = map[string]bool{
	"if": true, "else": true, "or": true, "and": true,
	"not": true, "for": true, "in": true,
	"True": true, "False": true, "None": true,
	"true": true, "false": true, "null": true,
}

func lexExpr(src string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c >= '0' && c <= '9' || c == '.' && i+1 < len(src) && src[i+1] >= '0' && src[i+1] <= '9':
			start := i
			for i < len(src) && (src[i] >= '0' && src[i] <= '9' || src[i] == '.' ||
				src[i] == 'e' || src[i] == 'E' ||
				(src[i] == '+' || src[i] == '-') && (src[i-1] == 'e' || src[i-1] == 'E')) {
				i++
			}
			text := src[start:i]
			num, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid number %q at position %d", text, start)
			}
			tokens = append(tokens, token{kind: tokNumber, text: text, num: num, pos: start})
		case c == '\'' || c == '"':
			quote := c
			i++
			start := i
			for i < len(src) && src[i] != quote {
				i++
			}
			if i >= len(src) {
				return nil, fmt.Errorf("unterminated string at position %d", start-1)
			}
			tokens = append(tokens, token{kind: tokString, text: src[start:i], pos: start})
			i++
		case c == '_' || c >= utf8.RuneSelf || unicode.IsLetter(rune(c)):
			r, size := utf8.DecodeRuneInString(src[i:])
			if r != '_' && !unicode.IsLetter(r) {
				return nil, fmt.Errorf("unexpected character %q at position %d", r, i)
			}
			start := i
			i += size
			for i < len(src) {
				r, size := utf8.DecodeRuneInString(src[i:])
				if r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
					break
				}
				i += size
			}
			text := src[start:i]
			kind := tokName
			if exprKeywords[text] {
				kind = tokKeyword
			}
			tokens = append(tokens, token{kind: kind, text: text, pos: start})
		default:
			if i+1 < len(src) {
				two := src[i : i+2]
				switch two {
				case "**", "//", "<=", ">=", "==", "!=":
					tokens = append(tokens, token{kind: tokOp, text: two, pos: i})
					i += 2
					continue
				}
			}
			switch c {
			case '+', '-', '*', '/', '%', '|', '&', '<', '>',
				'(', ')', '[', ']', '{', '}', ',', ':', '.':
				tokens = append(tokens, token{kind: tokOp, text: string(c), pos: i})
				i++
			default:
				return nil, fmt.Errorf("unexpected character %q at position %d", c, i)
			}
		}
	}
	return append(tokens, token{kind: tokEOF, pos: len(src)}), nil
}

// parser

type exprParser struct {
	tokens []token
	pos    int
}

// parseExpr parses an expression string into its tree.
func parseExpr(src string) (exprNode, error) {
	tokens, err := lexExpr(src)
	if err != nil {
		return nil, err
	}
	p := &exprParser{tokens: tokens}
	node, err := p.ternary()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, fmt.Errorf("unexpected %q at position %d", p.peek().text, p.peek().pos)
	}
	return node, nil
}

func (p *exprParser) peek() token { return p.tokens[p.pos] }

func (p *exprParser) next() token {
	t := p.tokens[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *exprParser) acceptOp(text string) bool {
	if t := p.peek(); t.kind == tokOp && t.text == text {
		p.pos++
		return true
	}
	return false
}

func (p *exprParser) acceptKeyword(text string) bool {
	if t := p.peek(); t.kind == tokKeyword && t.text == text {
		p.pos++
		return true
	}
	return false
}

func (p *exprParser) expectOp(text string) error {
	if !p.acceptOp(text) {
		return fmt.Errorf("expected %q at position %d, got %q", text, p.peek().pos, p.peek().text)
	}
	return nil
}

func (p *exprParser) ternary() (exprNode, error) {
	then, err := p.orExpr()
	if err != nil {
		return nil, err
	}
	if !p.acceptKeyword("if") {
		return then, nil
	}
	cond, err := p.orExpr()
	if err != nil {
		return nil, err
	}
	if !p.acceptKeyword("else") {
		return nil, fmt.Errorf("expected 'else' at position %d", p.peek().pos)
	}
	orelse, err := p.ternary()
	if err != nil {
		return nil, err
	}
	return ternaryNode{cond: cond, then: then, orelse: orelse}, nil
}

func (p *exprParser) orExpr() (exprNode, error) {
	left, err := p.andExpr()
	if err != nil {
		return nil, err
	}
	values := []exprNode{left}
	for p.acceptKeyword("or") {
		right, err := p.andExpr()
		if err != nil {
			return nil, err
		}
		values = append(values, right)
	}
	if len(values) == 1 {
		return left, nil
	}
	return boolOpNode{op: "or", values: values}, nil
}

func (p *exprParser) andExpr() (exprNode, error) {
	left, err := p.notExpr()
	if err != nil {
		return nil, err
	}
	values := []exprNode{left}
	for p.acceptKeyword("and") {
		right, err := p.notExpr()
		if err != nil {
			return nil, err
		}
		values = append(values, right)
	}
	if len(values) == 1 {
		return left, nil
	}
	return boolOpNode{op: "and", values: values}, nil
}

func (p *exprParser) notExpr() (exprNode, error) {
	if p.acceptKeyword("not") {
		operand, err := p.notExpr()
		if err != nil {
			return nil, err
		}
		return unaryNode{op: "not", operand: operand}, nil
	}
	return p.comparison()
}

func (p *exprParser) comparison() (exprNode, error) {
	left, err := p.bitOr()
	if err != nil {
		return nil, err
	}
	var ops []string
	var rights []exprNode
	for {
		t := p.peek()
		var op string
		switch {
		case t.kind == tokOp && (t.text == "==" || t.text == "!=" ||
			t.text == "<" || t.text == "<=" || t.text == ">" || t.text == ">="):
			op = t.text
			p.pos++
		case t.kind == tokKeyword && t.text == "in":
			op = "in"
			p.pos++
		default:
			if len(ops) == 0 {
				return left, nil
			}
			return compareNode{left: left, ops: ops, rights: rights}, nil
		}
		right, err := p.bitOr()
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
		rights = append(rights, right)
	}
}

func (p *exprParser) bitOr() (exprNode, error) {
	left, err := p.bitAnd()
	if err != nil {
		return nil, err
	}
	for p.acceptOp("|") {
		right, err := p.bitAnd()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: "|", left: left, right: right}
	}
	return left, nil
}

func (p *exprParser) bitAnd() (exprNode, error) {
	left, err := p.additive()
	if err != nil {
		return nil, err
	}
	for p.acceptOp("&") {
		right, err := p.additive()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: "&", left: left, right: right}
	}
	return left, nil
}

func (p *exprParser) additive() (exprNode, error) {
	left, err := p.multiplicative()
	if err != nil {
		return nil, err
	}
	for {
		var op string
		switch {
		case p.acceptOp("+"):
			op = "+"
		case p.acceptOp("-"):
			op = "-"
		default:
			return left, nil
		}
		right, err := p.multiplicative()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: op, left: left, right: right}
	}
}

func (p *exprParser) multiplicative() (exprNode, error) {
	left, err := p.unary()
	if err != nil {
		return nil, err
	}
	for {
		var op string
		switch {
		case p.acceptOp("*"):
			op = "*"
		case p.acceptOp("//"):
			op = "//"
		case p.acceptOp("/"):
			op = "/"
		case p.acceptOp("%"):
			op = "%"
		default:
			return left, nil
		}
		right, err := p.unary()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: op, left: left, right: right}
	}
}

func (p *exprParser) unary() (exprNode, error) {
	if p.acceptOp("-") {
		operand, err := p.unary()
		if err != nil {
			return nil, err
		}
		return unaryNode{op: "-", operand: operand}, nil
	}
	if p.acceptOp("+") {
		return p.unary()
	}
	return p.power()
}

func (p *exprParser) power() (exprNode, error) {
	base, err := p.atom()
	if err != nil {
		return nil, err
	}
	if p.acceptOp("**") {
		// Right-associative, and the exponent may carry a unary sign.
		exp, err := p.unary()
		if err != nil {
			return nil, err
		}
		return binaryNode{op: "**", left: base, right: exp}, nil
	}
	return base, nil
}

func (p *exprParser) atom() (exprNode, error) {
	t := p.peek()
	switch t.kind {
	case tokNumber:
		p.pos++
		if t.num == math.Trunc(t.num) && !strings.ContainsAny(t.text, ".eE") {
			return litNode{value: int(t.num)}, nil
		}
		return litNode{value: t.num}, nil
	case tokString:
		p.pos++
		return litNode{value: t.text}, nil
	case tokKeyword:
		switch t.text {
		case "True", "true":
			p.pos++
			return litNode{value: true}, nil
		case "False", "false":
			p.pos++
			return litNode{value: false}, nil
		case "None", "null":
			p.pos++
			return litNode{value: nil}, nil
		}
		return nil, fmt.Errorf("unexpected keyword %q at position %d", t.text, t.pos)
	case tokName:
		return p.nameOrCall()
	case tokOp:
		switch t.text {
		case "(":
			return p.parenAtom()
		case "[":
			return p.listAtom()
		case "{":
			return p.braceAtom()
		}
	}
	return nil, fmt.Errorf("unexpected %q at position %d", t.text, t.pos)
}

// nameOrCall parses a dotted name, which becomes a call node when
// followed by an argument list.
func (p *exprParser) nameOrCall() (exprNode, error) {
	var parts []string
	parts = append(parts, p.next().text)
	for p.acceptOp(".") {
		t := p.next()
		if t.kind != tokName && t.kind != tokKeyword {
			return nil, fmt.Errorf("expected name after '.' at position %d", t.pos)
		}
		parts = append(parts, t.text)
	}
	path := strings.Join(parts, ".")
	if !p.acceptOp("(") {
		return nameNode{path: path}, nil
	}
	var args []exprNode
	if !p.acceptOp(")") {
		for {
			arg, err := p.ternary()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if p.acceptOp(")") {
				break
			}
			if err := p.expectOp(","); err != nil {
				return nil, err
			}
		}
	}
	return callNode{fn: path, args: args}, nil
}

func (p *exprParser) parenAtom() (exprNode, error) {
	p.next() // consume "("
	first, err := p.ternary()
	if err != nil {
		return nil, err
	}
	if p.acceptOp(")") {
		return first, nil
	}
	elems := []exprNode{first}
	for p.acceptOp(",") {
		if p.peek().kind == tokOp && p.peek().text == ")" {
			break
		}
		elem, err := p.ternary()
		if err != nil {
			return nil, err
		}
		elems = append(elems, elem)
	}
	if err := p.expectOp(")"); err != nil {
		return nil, err
	}
	return seqNode{elems: elems}, nil
}

func (p *exprParser) listAtom() (exprNode, error) {
	p.next() // consume "["
	if p.acceptOp("]") {
		return seqNode{}, nil
	}
	first, err := p.ternary()
	if err != nil {
		return nil, err
	}
	if p.peek().kind == tokKeyword && p.peek().text == "for" {
		comp, err := p.comprehension(first, nil, false)
		if err != nil {
			return nil, err
		}
		if err := p.expectOp("]"); err != nil {
			return nil, err
		}
		return comp, nil
	}
	elems := []exprNode{first}
	for p.acceptOp(",") {
		if p.peek().kind == tokOp && p.peek().text == "]" {
			break
		}
		elem, err := p.ternary()
		if err != nil {
			return nil, err
		}
		elems = append(elems, elem)
	}
	if err := p.expectOp("]"); err != nil {
		return nil, err
	}
	return seqNode{elems: elems}, nil
}

func (p *exprParser) braceAtom() (exprNode, error) {
	p.next() // consume "{"
	if p.acceptOp("}") {
		return dictNode{}, nil
	}
	first, err := p.ternary()
	if err != nil {
		return nil, err
	}
	if p.acceptOp(":") {
		value, err := p.ternary()
		if err != nil {
			return nil, err
		}
		if p.peek().kind == tokKeyword && p.peek().text == "for" {
			comp, err := p.comprehension(value, first, true)
			if err != nil {
				return nil, err
			}
			if err := p.expectOp("}"); err != nil {
				return nil, err
			}
			return comp, nil
		}
		keys, vals := []exprNode{first}, []exprNode{value}
		for p.acceptOp(",") {
			if p.peek().kind == tokOp && p.peek().text == "}" {
				break
			}
			key, err := p.ternary()
			if err != nil {
				return nil, err
			}
			if err := p.expectOp(":"); err != nil {
				return nil, err
			}
			val, err := p.ternary()
			if err != nil {
				return nil, err
			}
			keys, vals = append(keys, key), append(vals, val)
		}
		if err := p.expectOp("}"); err != nil {
			return nil, err
		}
		return dictNode{keys: keys, vals: vals}, nil
	}
	if p.peek().kind == tokKeyword && p.peek().text == "for" {
		comp, err := p.comprehension(first, nil, false)
		if err != nil {
			return nil, err
		}
		if err := p.expectOp("}"); err != nil {
			return nil, err
		}
		return comp, nil
	}
	elems := []exprNode{first}
	for p.acceptOp(",") {
		elem, err := p.ternary()
		if err != nil {
			return nil, err
		}
		elems = append(elems, elem)
	}
	if err := p.expectOp("}"); err != nil {
		return nil, err
	}
	return seqNode{elems: elems}, nil
}

func (p *exprParser) comprehension(elemExpr, keyExpr exprNode, isDict bool) (exprNode, error) {
	if !p.acceptKeyword("for") {
		return nil, fmt.Errorf("expected 'for' at position %d", p.peek().pos)
	}
	var targets []string
	parens := p.acceptOp("(")
	for {
		t := p.next()
		if t.kind != tokName {
			return nil, fmt.Errorf("expected loop variable at position %d", t.pos)
		}
		targets = append(targets, t.text)
		if !p.acceptOp(",") {
			break
		}
	}
	if parens {
		if err := p.expectOp(")"); err != nil {
			return nil, err
		}
	}
	if !p.acceptKeyword("in") {
		return nil, fmt.Errorf("expected 'in' at position %d", p.peek().pos)
	}
	iter, err := p.orExpr()
	if err != nil {
		return nil, err
	}
	var conds []exprNode
	for p.acceptKeyword("if") {
		cond, err := p.orExpr()
		if err != nil {
			return nil, err
		}
		conds = append(conds, cond)
	}
	return compNode{
		keyExpr:  keyExpr,
		elemExpr: elemExpr,
		targets:  targets,
		iter:     iter,
		conds:    conds,
		isDict:   isDict,
	}, nil
}

// evaluator

type exprEnv map[string]any

func evalExpr(node exprNode, env exprEnv) (any, error) {
	switch n := node.(type) {
	case litNode:
		return n.value, nil
	case nameNode:
		return evalName(n.path, env)
	case unaryNode:
		return evalUnary(n, env)
	case binaryNode:
		return evalBinary(n, env)
	case boolOpNode:
		return evalBoolOp(n, env)
	case compareNode:
		return evalCompare(n, env)
	case ternaryNode:
		cond, err := evalExpr(n.cond, env)
		if err != nil {
			return nil, err
		}
		if exprTruthy(cond) {
			return evalExpr(n.then, env)
		}
		return evalExpr(n.orelse, env)
	case callNode:
		return evalCall(n, env)
	case seqNode:
		out := make([]any, len(n.elems))
		for i, elem := range n.elems {
			value, err := evalExpr(elem, env)
			if err != nil {
				return nil, err
			}
			out[i] = value
		}
		return out, nil
	case dictNode:
		out := make(map[string]any, len(n.keys))
		for i, keyExpr := range n.keys {
			key, err := evalExpr(keyExpr, env)
			if err != nil {
				return nil, err
			}
			keyStr, isString := key.(string)
			if !isString {
				return nil, fmt.Errorf("dict keys must be strings, got %v", key)
			}
			value, err := evalExpr(n.vals[i], env)
			if err != nil {
				return nil, err
			}
			out[keyStr] = value
		}
		return out, nil
	case compNode:
		return evalComp(n, env)
	}
	return nil, fmt.Errorf("unsupported expression node %T", node)
}

var exprConstants = map[string]any{
	"math.pi": math.Pi,
	"math.e":  math.E,
}

func evalName(path string, env exprEnv) (any, error) {
	if value, exists := exprConstants[path]; exists {
		return value, nil
	}
	value, exists := env[path]
	if !exists {
		return nil, fmt.Errorf("unknown parameter %q", path)
	}
	switch value.(type) {
	case nil, bool, int, int64, float64, []any:
		return value, nil
	}
	return nil, fmt.Errorf("parameter %q has type %T, only nil, bool, "+
		"numbers and lists may be referenced", path, value)
}

func evalUnary(n unaryNode, env exprEnv) (any, error) {
	value, err := evalExpr(n.operand, env)
	if err != nil {
		return nil, err
	}
	if n.op == "not" {
		return !exprTruthy(value), nil
	}
	switch v := value.(type) {
	case int:
		return -v, nil
	case int64:
		return -int(v), nil
	case float64:
		return -v, nil
	}
	return nil, fmt.Errorf("cannot negate %v", value)
}

func evalBoolOp(n boolOpNode, env exprEnv) (any, error) {
	var result any
	for i, operand := range n.values {
		value, err := evalExpr(operand, env)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			result = value
			continue
		}
		if n.op == "and" {
			if !exprTruthy(result) {
				return result, nil
			}
			result = value
		} else {
			if exprTruthy(result) {
				return result, nil
			}
			result = value
		}
	}
	return result, nil
}

func evalBinary(n binaryNode, env exprEnv) (any, error) {
	left, err := evalExpr(n.left, env)
	if err != nil {
		return nil, err
	}
	// "|" and "&" are the truthy or/and of their operands.
	if n.op == "|" {
		if exprTruthy(left) {
			return left, nil
		}
		return evalExpr(n.right, env)
	}
	if n.op == "&" {
		if !exprTruthy(left) {
			return left, nil
		}
		return evalExpr(n.right, env)
	}
	right, err := evalExpr(n.right, env)
	if err != nil {
		return nil, err
	}
	return evalArith(n.op, left, right)
}

func evalArith(op string, left, right any) (any, error) {
	if op == "+" {
		if ls, ok := left.(string); ok {
			if rs, ok := right.(string); ok {
				return ls + rs, nil
			}
		}
		if ll, ok := left.([]any); ok {
			if rl, ok := right.([]any); ok {
				return append(append([]any{}, ll...), rl...), nil
			}
		}
	}
	li, lIsInt := asInt(left)
	ri, rIsInt := asInt(right)
	lf, lIsNum := asFloat(left)
	rf, rIsNum := asFloat(right)
	if !lIsNum || !rIsNum {
		return nil, fmt.Errorf("unsupported operands for %q: %v and %v", op, left, right)
	}
	if lIsInt && rIsInt {
		switch op {
		case "+":
			return li + ri, nil
		case "-":
			return li - ri, nil
		case "*":
			return li * ri, nil
		case "/":
			if ri == 0 {
				return nil, fmt.Errorf("division by zero")
			}
			return lf / rf, nil
		case "//":
			if ri == 0 {
				return nil, fmt.Errorf("division by zero")
			}
			return int(math.Floor(lf / rf)), nil
		case "%":
			if ri == 0 {
				return nil, fmt.Errorf("division by zero")
			}
			m := li % ri
			if m != 0 && (m < 0) != (ri < 0) {
				m += ri
			}
			return m, nil
		case "**":
			if ri >= 0 {
				result := 1
				for i := 0; i < ri; i++ {
					result *= li
				}
				return result, nil
			}
			return math.Pow(lf, rf), nil
		}
	}
	switch op {
	case "+":
		return lf + rf, nil
	case "-":
		return lf - rf, nil
	case "*":
		return lf * rf, nil
	case "/":
		if rf == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return lf / rf, nil
	case "//":
		if rf == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return math.Floor(lf / rf), nil
	case "%":
		if rf == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		m := math.Mod(lf, rf)
		if m != 0 && (m < 0) != (rf < 0) {
			m += rf
		}
		return m, nil
	case "**":
		return math.Pow(lf, rf), nil
	}
	return nil, fmt.Errorf("unsupported operator %q", op)
}

func evalCompare(n compareNode, env exprEnv) (any, error) {
	left, err := evalExpr(n.left, env)
	if err != nil {
		return nil, err
	}
	for i, op := range n.ops {
		right, err := evalExpr(n.rights[i], env)
		if err != nil {
			return nil, err
		}
		ok, err := compareValues(op, left, right)
		if err != nil {
			return nil, err
		}
		if !ok {
			return false, nil
		}
		left = right
	}
	return true, nil
}

func compareValues(op string, left, right any) (bool, error) {
	switch op {
	case "==":
		return exprEqual(left, right), nil
	case "!=":
		return !exprEqual(left, right), nil
	case "in":
		switch container := right.(type) {
		case []any:
			for _, element := range container {
				if exprEqual(left, element) {
					return true, nil
				}
			}
			return false, nil
		case string:
			sub, isString := left.(string)
			if !isString {
				return false, fmt.Errorf("'in' over a string needs a string, got %v", left)
			}
			return strings.Contains(container, sub), nil
		case map[string]any:
			key, isString := left.(string)
			if !isString {
				return false, nil
			}
			_, exists := container[key]
			return exists, nil
		}
		return false, fmt.Errorf("'in' needs a list, string or dict, got %v", right)
	}
	if ls, ok := left.(string); ok {
		if rs, ok := right.(string); ok {
			switch op {
			case "<":
				return ls < rs, nil
			case "<=":
				return ls <= rs, nil
			case ">":
				return ls > rs, nil
			case ">=":
				return ls >= rs, nil
			}
		}
	}
	lf, lok := asFloat(left)
	rf, rok := asFloat(right)
	if !lok || !rok {
		return false, fmt.Errorf("cannot compare %v and %v with %q", left, right, op)
	}
	switch op {
	case "<":
		return lf < rf, nil
	case "<=":
		return lf <= rf, nil
	case ">":
		return lf > rf, nil
	case ">=":
		return lf >= rf, nil
	}
	return false, fmt.Errorf("unsupported comparison %q", op)
}

func evalComp(n compNode, env exprEnv) (any, error) {
	iterable, err := evalExpr(n.iter, env)
	if err != nil {
		return nil, err
	}
	items, isList := iterable.([]any)
	if !isList {
		return nil, fmt.Errorf("comprehension iterable must be a list, got %v", iterable)
	}
	scope := make(exprEnv, len(env)+len(n.targets))
	for key, value := range env {
		scope[key] = value
	}
	var listResult []any
	var dictResult map[string]any
	if n.isDict {
		dictResult = make(map[string]any)
	} else {
		listResult = []any{}
	}
	for _, item := range items {
		if len(n.targets) == 1 {
			scope[n.targets[0]] = item
		} else {
			parts, isTuple := item.([]any)
			if !isTuple || len(parts) != len(n.targets) {
				return nil, fmt.Errorf("cannot unpack %v into %d loop variables",
					item, len(n.targets))
			}
			for i, target := range n.targets {
				scope[target] = parts[i]
			}
		}
		keep := true
		for _, cond := range n.conds {
			value, err := evalExpr(cond, scope)
			if err != nil {
				return nil, err
			}
			if !exprTruthy(value) {
				keep = false
				break
			}
		}
		if !keep {
			continue
		}
		element, err := evalExpr(n.elemExpr, scope)
		if err != nil {
			return nil, err
		}
		if n.isDict {
			key, err := evalExpr(n.keyExpr, scope)
			if err != nil {
				return nil, err
			}
			keyStr, isString := key.(string)
			if !isString {
				return nil, fmt.Errorf("dict comprehension keys must be strings, got %v", key)
			}
			dictResult[keyStr] = element
		} else {
			listResult = append(listResult, element)
		}
	}
	if n.isDict {
		return dictResult, nil
	}
	return listResult, nil
}

// helpers

func asInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func exprTruthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case int:
		return t != 0
	case int64:
		return t != 0
	case float64:
		return t != 0
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	}
	return true
}

func exprEqual(a, b any) bool {
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			return af == bf
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}
