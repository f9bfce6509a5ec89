package lax

import "strings"

// ast is a node of a parsed expression.
type ast interface {
	astNode()
}

type (
	literalExpr struct{ val any }
	nameExpr    struct{ name string }
	listExpr    struct{ items []ast }
	dictExpr    struct{ keys, vals []ast }
	unaryExpr   struct {
		op string
		x  ast
	}
	binaryExpr struct {
		op   string
		l, r ast
	}
	logicExpr struct {
		op   string // "and" or "or"
		l, r ast
	}
	notExpr     struct{ x ast }
	compareExpr struct {
		ops      []string
		operands []ast
	}
	testExpr struct {
		x      ast
		test   string // "defined", "undefined" or "none"
		negate bool
	}
	condExpr struct {
		cond, then, els ast
	}
	memberExpr struct {
		x    ast
		name string
	}
	indexExpr struct {
		x, index ast
	}
	sliceExpr struct {
		x, lo, hi ast // lo and hi may be nil
	}
	callExpr struct {
		name string
		args []ast
	}
)

func (*literalExpr) astNode() {}
func (*nameExpr) astNode()    {}
func (*listExpr) astNode()    {}
func (*dictExpr) astNode()    {}
func (*unaryExpr) astNode()   {}
func (*binaryExpr) astNode()  {}
func (*logicExpr) astNode()   {}
func (*notExpr) astNode()     {}
func (*compareExpr) astNode() {}
func (*testExpr) astNode()    {}
func (*condExpr) astNode()    {}
func (*memberExpr) astNode()  {}
func (*indexExpr) astNode()   {}
func (*sliceExpr) astNode()   {}
func (*callExpr) astNode()    {}

// reserved words that never name a variable.
var reserved = map[string]struct{}{
	"and": {}, "or": {}, "not": {}, "in": {}, "is": {}, "if": {}, "else": {},
}

var literalNames = map[string]any{
	"True": true, "true": true,
	"False": false, "false": false,
	"None": nil, "none": nil, "null": nil,
}

type parser struct {
	toks []token
	pos  int
}

// parseExpr lexes, screens and parses a complete expression.
func parseExpr(src string) (ast, error) {
	toks, err := lexExpr(src)
	if err != nil {
		return nil, err
	}
	if err = screenTokens(src, toks); err != nil {
		return nil, err
	}
	if len(toks) == 1 {
		return nil, evalErrorf("empty expression")
	}
	p := &parser{toks: toks}
	n, err := p.parseTernary()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, evalErrorf("invalid syntax near %q", t.text)
	}
	return n, nil
}

func (p *parser) peek() token {
	return p.toks[p.pos]
}

func (p *parser) peekAt(offset int) token {
	if p.pos+offset >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.pos+offset]
}

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) isOp(op string) bool {
	t := p.peek()
	return t.kind == tokOp && t.text == op
}

func (p *parser) acceptOp(op string) bool {
	if p.isOp(op) {
		p.pos++
		return true
	}
	return false
}

func (p *parser) expectOp(op string) error {
	if !p.acceptOp(op) {
		t := p.peek()
		if t.kind == tokEOF {
			return evalErrorf("expected %q but the expression ended", op)
		}
		return evalErrorf("expected %q near %q", op, t.text)
	}
	return nil
}

func (p *parser) isKeyword(word string) bool {
	t := p.peek()
	return t.kind == tokName && t.text == word
}

func (p *parser) acceptKeyword(word string) bool {
	if p.isKeyword(word) {
		p.pos++
		return true
	}
	return false
}

func (p *parser) parseTernary() (ast, error) {
	x, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if !p.acceptKeyword("if") {
		return x, nil
	}
	cond, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if !p.acceptKeyword("else") {
		return nil, evalErrorf("expected 'else' in conditional expression")
	}
	els, err := p.parseTernary()
	if err != nil {
		return nil, err
	}
	return &condExpr{cond: cond, then: x, els: els}, nil
}

func (p *parser) parseOr() (ast, error) {
	l, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.acceptKeyword("or") {
		r, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		l = &logicExpr{op: "or", l: l, r: r}
	}
	return l, nil
}

func (p *parser) parseAnd() (ast, error) {
	l, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.acceptKeyword("and") {
		r, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		l = &logicExpr{op: "and", l: l, r: r}
	}
	return l, nil
}

func (p *parser) parseNot() (ast, error) {
	if p.acceptKeyword("not") {
		x, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &notExpr{x: x}, nil
	}
	return p.parseCompare()
}

// compareOp consumes a comparison operator and returns it, or "" when the
// next tokens are not one.
func (p *parser) compareOp() string {
	t := p.peek()
	switch {
	case t.kind == tokOp:
		switch t.text {
		case "==", "!=", "<", "<=", ">", ">=":
			p.pos++
			return t.text
		}
	case t.kind == tokName && t.text == "in":
		p.pos++
		return "in"
	case t.kind == tokName && t.text == "not":
		if n := p.peekAt(1); n.kind == tokName && n.text == "in" {
			p.pos += 2
			return "not in"
		}
	case t.kind == tokName && t.text == "is":
		p.pos++
		if p.acceptKeyword("not") {
			return "is not"
		}
		return "is"
	}
	return ""
}

func (p *parser) parseCompare() (ast, error) {
	first, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	cmp := &compareExpr{operands: []ast{first}}
	for {
		op := p.compareOp()
		if op == "" {
			break
		}
		if op == "is" || op == "is not" {
			if len(cmp.ops) > 0 {
				return nil, evalErrorf("'is' tests cannot follow a comparison")
			}
			t := p.next()
			test := strings.ToLower(t.text)
			if t.kind != tokName || (test != "defined" && test != "undefined" && test != "none") {
				return nil, evalErrorf("unsupported test %q after 'is'", t.text)
			}
			cmp.operands[0] = &testExpr{x: cmp.operands[0], test: test, negate: op == "is not"}
			continue
		}
		r, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		cmp.ops = append(cmp.ops, op)
		cmp.operands = append(cmp.operands, r)
	}
	if len(cmp.ops) == 0 {
		return cmp.operands[0], nil
	}
	return cmp, nil
}

func (p *parser) parseAdditive() (ast, error) {
	l, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for p.isOp("+") || p.isOp("-") {
		op := p.next().text
		r, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		l = &binaryExpr{op: op, l: l, r: r}
	}
	return l, nil
}

func (p *parser) parseTerm() (ast, error) {
	l, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.isOp("*") || p.isOp("/") || p.isOp("//") || p.isOp("%") {
		op := p.next().text
		r, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		l = &binaryExpr{op: op, l: l, r: r}
	}
	return l, nil
}

func (p *parser) parseUnary() (ast, error) {
	if p.isOp("-") || p.isOp("+") {
		op := p.next().text
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &unaryExpr{op: op, x: x}, nil
	}
	return p.parsePower()
}

func (p *parser) parsePower() (ast, error) {
	base, err := p.parsePostfix()
	if err != nil {
		return nil, err
	}
	if p.acceptOp("**") {
		exp, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &binaryExpr{op: "**", l: base, r: exp}, nil
	}
	return base, nil
}

func (p *parser) parsePostfix() (ast, error) {
	x, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.acceptOp("."):
			t := p.next()
			if t.kind != tokName {
				return nil, evalErrorf("expected a member name after '.'")
			}
			if p.isOp("(") {
				return nil, evalErrorf("cannot call method %q: only registered functions can be called", t.text)
			}
			x = &memberExpr{x: x, name: t.text}

		case p.acceptOp("["):
			var lo ast
			if !p.isOp(":") {
				if lo, err = p.parseTernary(); err != nil {
					return nil, err
				}
			}
			if p.acceptOp(":") {
				var hi ast
				if !p.isOp("]") {
					if hi, err = p.parseTernary(); err != nil {
						return nil, err
					}
				}
				if err = p.expectOp("]"); err != nil {
					return nil, err
				}
				x = &sliceExpr{x: x, lo: lo, hi: hi}
				continue
			}
			if err = p.expectOp("]"); err != nil {
				return nil, err
			}
			x = &indexExpr{x: x, index: lo}

		case p.isOp("("):
			name, ok := x.(*nameExpr)
			if !ok {
				return nil, evalErrorf("only registered functions can be called")
			}
			p.pos++
			args, err := p.parseArgs()
			if err != nil {
				return nil, err
			}
			x = &callExpr{name: name.name, args: args}

		default:
			return x, nil
		}
	}
}

func (p *parser) parseArgs() ([]ast, error) {
	var args []ast
	for !p.acceptOp(")") {
		if t, n := p.peek(), p.peekAt(1); t.kind == tokName && n.kind == tokOp && n.text == "=" {
			return nil, evalErrorf("keyword argument %q is not supported", t.text)
		}
		arg, err := p.parseTernary()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		if !p.acceptOp(",") {
			if err = p.expectOp(")"); err != nil {
				return nil, err
			}
			break
		}
	}
	return args, nil
}

func (p *parser) parsePrimary() (ast, error) {
	t := p.next()
	switch t.kind {
	case tokNumber, tokString:
		return &literalExpr{val: t.val}, nil

	case tokName:
		if v, ok := literalNames[t.text]; ok {
			return &literalExpr{val: v}, nil
		}
		if _, ok := reserved[t.text]; ok {
			return nil, evalErrorf("invalid syntax near %q", t.text)
		}
		return &nameExpr{name: t.text}, nil

	case tokOp:
		switch t.text {
		case "(":
			x, err := p.parseTernary()
			if err != nil {
				return nil, err
			}
			if p.isOp(",") {
				items := []ast{x}
				for p.acceptOp(",") && !p.isOp(")") {
					item, err := p.parseTernary()
					if err != nil {
						return nil, err
					}
					items = append(items, item)
				}
				x = &listExpr{items: items}
			}
			if err = p.expectOp(")"); err != nil {
				return nil, err
			}
			return x, nil

		case "[":
			var items []ast
			for !p.acceptOp("]") {
				item, err := p.parseTernary()
				if err != nil {
					return nil, err
				}
				items = append(items, item)
				if !p.acceptOp(",") {
					if err = p.expectOp("]"); err != nil {
						return nil, err
					}
					break
				}
			}
			return &listExpr{items: items}, nil

		case "{":
			d := &dictExpr{}
			for !p.acceptOp("}") {
				k, err := p.parseTernary()
				if err != nil {
					return nil, err
				}
				if err = p.expectOp(":"); err != nil {
					return nil, err
				}
				v, err := p.parseTernary()
				if err != nil {
					return nil, err
				}
				d.keys = append(d.keys, k)
				d.vals = append(d.vals, v)
				if !p.acceptOp(",") {
					if err = p.expectOp("}"); err != nil {
						return nil, err
					}
					break
				}
			}
			return d, nil
		}
	case tokEOF:
		return nil, evalErrorf("unexpected end of expression")
	}
	return nil, evalErrorf("invalid syntax near %q", t.text)
}
