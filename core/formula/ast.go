package formula

import (
	"math"
	"strconv"
	"strings"
)

// node is an evaluable piece of a parsed formula
type node interface {
	eval(l Lookup) (float64, error)
	write(sb *strings.Builder)
}

type numberNode struct {
	value float64
}

func (n *numberNode) eval(Lookup) (float64, error) {
	return n.value, nil
}

func (n *numberNode) write(sb *strings.Builder) {
	sb.WriteString(strconv.FormatFloat(n.value, 'f', -1, 64))
}

type identNode struct {
	name string
	pos  int
}

func (n *identNode) eval(l Lookup) (float64, error) {
	if l != nil {
		if v, ok := l.Lookup(n.name); ok {
			return v, nil
		}
	}
	return 0, &SyntaxError{Pos: n.pos, Kind: KindUnknownIdentifier, Msg: "undefined variable: " + n.name}
}

func (n *identNode) write(sb *strings.Builder) {
	sb.WriteString(n.name)
}

type unaryNode struct {
	neg     bool
	operand node
}

func (n *unaryNode) eval(l Lookup) (float64, error) {
	v, err := n.operand.eval(l)
	if err != nil {
		return 0, err
	}
	if n.neg {
		return -v, nil
	}
	return v, nil
}

func (n *unaryNode) write(sb *strings.Builder) {
	if n.neg {
		sb.WriteByte('-')
	} else {
		sb.WriteByte('+')
	}
	n.operand.write(sb)
}

type binaryNode struct {
	op          byte
	left, right node
}

func (n *binaryNode) eval(l Lookup) (float64, error) {
	a, err := n.left.eval(l)
	if err != nil {
		return 0, err
	}
	b, err := n.right.eval(l)
	if err != nil {
		return 0, err
	}
	switch n.op {
	case '+':
		return a + b, nil
	case '-':
		return a - b, nil
	case '*':
		return a * b, nil
	default:
		// x/0 is 0, not an error
		if b == 0 {
			return 0, nil
		}
		return a / b, nil
	}
}

func (n *binaryNode) write(sb *strings.Builder) {
	sb.WriteByte('(')
	n.left.write(sb)
	sb.WriteByte(' ')
	sb.WriteByte(n.op)
	sb.WriteByte(' ')
	n.right.write(sb)
	sb.WriteByte(')')
}

type callNode struct {
	fn  function
	arg node
}

func (n *callNode) eval(l Lookup) (float64, error) {
	v, err := n.arg.eval(l)
	if err != nil {
		return 0, err
	}
	return n.fn.apply(v), nil
}

func (n *callNode) write(sb *strings.Builder) {
	sb.WriteString(n.fn.name)
	sb.WriteByte('(')
	n.arg.write(sb)
	sb.WriteByte(')')
}

// function is one of the fixed rounding keywords
type function struct {
	name  string
	apply func(float64) float64
}

var functions = map[string]function{
	"CEIL":    {name: "CEIL", apply: math.Ceil},
	"ROUNDUP": {name: "ROUNDUP", apply: math.Ceil},
	"FLOOR":   {name: "FLOOR", apply: math.Floor},
	// half away from zero: ROUND(2.5) = 3, ROUND(-2.5) = -3
	"ROUND": {name: "ROUND", apply: math.Round},
}

func lookupFunction(name string) (function, bool) {
	fn, ok := functions[strings.ToUpper(name)]
	return fn, ok
}

// walk visits every node depth-first
func walk(n node, visit func(node)) {
	visit(n)
	switch t := n.(type) {
	case *unaryNode:
		walk(t.operand, visit)
	case *binaryNode:
		walk(t.left, visit)
		walk(t.right, visit)
	case *callNode:
		walk(t.arg, visit)
	}
}
