package formula

import "fmt"

// ErrorKind classifies a formula failure
type ErrorKind string

const (
	KindEmpty             ErrorKind = "empty"
	KindSyntax            ErrorKind = "syntax"
	KindUnknownIdentifier ErrorKind = "unknown_identifier"
	KindUnknownFunction   ErrorKind = "unknown_function"
	KindArity             ErrorKind = "arity"
	KindTooDeep           ErrorKind = "too_deep"
	KindNonFinite         ErrorKind = "non_finite"
	KindDivisionByZero    ErrorKind = "division_by_zero"
	KindForwardReference  ErrorKind = "forward_reference"
)

// SyntaxError is a positioned parse or evaluation failure
type SyntaxError struct {
	// Pos is the byte offset in the formula
	Pos int

	// Kind classifies the failure
	Kind ErrorKind

	// Msg is the human-readable message
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s at offset %d", e.Msg, e.Pos)
}
