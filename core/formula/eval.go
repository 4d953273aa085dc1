// Package formula implements the BOQ formula language: arithmetic over
// numbers and named variables with + - * /, unary signs, parentheses and
// the single-argument functions CEIL, ROUNDUP, FLOOR and ROUND.
//
// Evaluate is the live pricing entry point and never fails: any problem
// yields 0. EvaluateStrict and Check report the same problems as errors
// and diagnostics for template authoring tools.
package formula

import (
	"math"
	"sort"
	"strings"

	"pool-boq/internal/errors"
)

// Lookup resolves a variable name to its value
type Lookup interface {
	Lookup(name string) (float64, bool)
}

// Vars is a flat variable context. Lookup tries the exact name first and
// falls back to a case-insensitive match.
type Vars map[string]float64

// Lookup implements Lookup
func (v Vars) Lookup(name string) (float64, bool) {
	if x, ok := v[name]; ok {
		return x, true
	}
	// Several keys may differ only by case; pick the smallest for determinism.
	var (
		best  string
		value float64
		found bool
	)
	for k, x := range v {
		if strings.EqualFold(k, name) && (!found || k < best) {
			best, value, found = k, x, true
		}
	}
	return value, found
}

// Names returns the variable names in sorted order
func (v Vars) Names() []string {
	names := make([]string, 0, len(v))
	for k := range v {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Clone returns a shallow copy
func (v Vars) Clone() Vars {
	out := make(Vars, len(v))
	for k, x := range v {
		out[k] = x
	}
	return out
}

// Eval evaluates the parsed formula. A non-finite result is an error.
func (e *Expr) Eval(l Lookup) (float64, error) {
	v, err := e.root.eval(l)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &SyntaxError{Pos: 0, Kind: KindNonFinite, Msg: "result is not a finite number"}
	}
	return v, nil
}

// Evaluate parses and evaluates src against l. Blank formulas and every
// parse or evaluation failure yield 0.
func Evaluate(src string, l Lookup) (result float64) {
	defer func() {
		if r := recover(); r != nil {
			result = 0
		}
	}()
	v, err := evaluate(src, l)
	if err != nil {
		return 0
	}
	return v
}

// EvaluateStrict parses and evaluates src against l and reports failures
// as a FORMULA_ERROR wrapping a *SyntaxError.
func EvaluateStrict(src string, l Lookup) (float64, error) {
	v, err := evaluate(src, l)
	if err != nil {
		return 0, errors.Formula(src, err)
	}
	return v, nil
}

func evaluate(src string, l Lookup) (float64, error) {
	expr, err := Parse(src)
	if err != nil {
		return 0, err
	}
	return expr.Eval(l)
}

// Severity ranks a diagnostic
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Diagnostic is one finding from Check
type Diagnostic struct {
	Severity Severity  `json:"severity"`
	Kind     ErrorKind `json:"kind"`
	Pos      int       `json:"pos"`
	Message  string    `json:"message"`
}

// Check statically inspects src. known reports whether a variable name will
// be available at evaluation time; a nil known skips identifier checks.
// Check never evaluates the formula.
func Check(src string, known func(name string) bool) []Diagnostic {
	expr, err := Parse(src)
	if err != nil {
		return []Diagnostic{fromError(err)}
	}

	var diags []Diagnostic
	if known != nil {
		walk(expr.root, func(n node) {
			if id, ok := n.(*identNode); ok && !known(id.name) {
				diags = append(diags, Diagnostic{
					Severity: SeverityError,
					Kind:     KindUnknownIdentifier,
					Pos:      id.pos,
					Message:  "undefined variable: " + id.name,
				})
			}
		})
	}
	walk(expr.root, func(n node) {
		if b, ok := n.(*binaryNode); ok && b.op == '/' && isLiteralZero(b.right) {
			diags = append(diags, Diagnostic{
				Severity: SeverityWarning,
				Kind:     KindDivisionByZero,
				Message:  "division by a literal zero always evaluates to 0",
			})
		}
	})
	return diags
}

func isLiteralZero(n node) bool {
	switch t := n.(type) {
	case *numberNode:
		return t.value == 0
	case *unaryNode:
		return isLiteralZero(t.operand)
	default:
		return false
	}
}

func fromError(err error) Diagnostic {
	if se, ok := err.(*SyntaxError); ok {
		return Diagnostic{Severity: SeverityError, Kind: se.Kind, Pos: se.Pos, Message: se.Msg}
	}
	return Diagnostic{Severity: SeverityError, Kind: KindSyntax, Message: err.Error()}
}
