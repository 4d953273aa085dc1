package formula

import (
	"strings"
)

// maxDepth bounds nesting of parentheses, calls and unary signs
const maxDepth = 64

// Expr is a parsed formula, safe for concurrent evaluation
type Expr struct {
	src  string
	root node
}

// Parse compiles src into an Expr.
//
//	expr  := term (('+' | '-') term)*
//	term  := unary (('*' | '/') unary)*
//	unary := ('+' | '-') unary | atom
//	atom  := number | '(' expr ')' | name '(' expr ')' | name
func Parse(src string) (*Expr, error) {
	if strings.TrimSpace(src) == "" {
		return nil, &SyntaxError{Pos: 0, Kind: KindEmpty, Msg: "formula is empty"}
	}
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}

	p := &parser{toks: toks}
	root, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, &SyntaxError{Pos: t.pos, Kind: KindSyntax, Msg: "unexpected " + describe(t) + " after expression"}
	}
	return &Expr{src: src, root: root}, nil
}

// Source returns the formula text
func (e *Expr) Source() string {
	return e.src
}

// String returns a fully parenthesised rendering of the parse tree
func (e *Expr) String() string {
	var sb strings.Builder
	e.root.write(&sb)
	return sb.String()
}

// Identifiers returns the variable names referenced, in first-use order
// without duplicates. Function names are not included.
func (e *Expr) Identifiers() []string {
	var names []string
	seen := make(map[string]bool)
	walk(e.root, func(n node) {
		if id, ok := n.(*identNode); ok && !seen[id.name] {
			seen[id.name] = true
			names = append(names, id.name)
		}
	})
	return names
}

type parser struct {
	toks  []token
	pos   int
	depth int
}

func (p *parser) peek() token {
	return p.toks[p.pos]
}

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) enter(at int) error {
	p.depth++
	if p.depth > maxDepth {
		return &SyntaxError{Pos: at, Kind: KindTooDeep, Msg: "formula is nested too deeply"}
	}
	return nil
}

func (p *parser) leave() {
	p.depth--
}

func (p *parser) parseExpr() (node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if t.kind != tokPlus && t.kind != tokMinus {
			return left, nil
		}
		p.next()
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: t.text[0], left: left, right: right}
	}
}

func (p *parser) parseTerm() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if t.kind != tokStar && t.kind != tokSlash {
			return left, nil
		}
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: t.text[0], left: left, right: right}
	}
}

func (p *parser) parseUnary() (node, error) {
	t := p.peek()
	if t.kind != tokPlus && t.kind != tokMinus {
		return p.parseAtom()
	}
	p.next()
	if err := p.enter(t.pos); err != nil {
		return nil, err
	}
	defer p.leave()

	operand, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	return &unaryNode{neg: t.kind == tokMinus, operand: operand}, nil
}

func (p *parser) parseAtom() (node, error) {
	t := p.next()
	switch t.kind {
	case tokNumber:
		return &numberNode{value: t.num}, nil

	case tokLParen:
		if err := p.enter(t.pos); err != nil {
			return nil, err
		}
		defer p.leave()
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(tokRParen, "to close '('"); err != nil {
			return nil, err
		}
		return inner, nil

	case tokIdent:
		if p.peek().kind != tokLParen {
			return &identNode{name: t.text, pos: t.pos}, nil
		}
		return p.parseCall(t)

	default:
		return nil, &SyntaxError{Pos: t.pos, Kind: KindSyntax, Msg: "expected a number, name or '(' but found " + describe(t)}
	}
}

func (p *parser) parseCall(name token) (node, error) {
	fn, ok := lookupFunction(name.text)
	if !ok {
		return nil, &SyntaxError{Pos: name.pos, Kind: KindUnknownFunction, Msg: "unknown function: " + name.text}
	}
	open := p.next()
	if err := p.enter(open.pos); err != nil {
		return nil, err
	}
	defer p.leave()

	if t := p.peek(); t.kind == tokRParen {
		return nil, &SyntaxError{Pos: t.pos, Kind: KindArity, Msg: fn.name + " takes exactly one argument"}
	}
	arg, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind == tokComma {
		return nil, &SyntaxError{Pos: t.pos, Kind: KindArity, Msg: fn.name + " takes exactly one argument"}
	}
	if err := p.expect(tokRParen, "to close "+fn.name+"("); err != nil {
		return nil, err
	}
	return &callNode{fn: fn, arg: arg}, nil
}

func (p *parser) expect(kind tokenKind, context string) error {
	t := p.next()
	if t.kind != kind {
		return &SyntaxError{Pos: t.pos, Kind: KindSyntax, Msg: "expected " + kind.String() + " " + context + " but found " + describe(t)}
	}
	return nil
}

func describe(t token) string {
	switch t.kind {
	case tokEOF:
		return t.kind.String()
	case tokNumber, tokIdent:
		return t.kind.String() + " " + t.text
	default:
		return t.kind.String()
	}
}
