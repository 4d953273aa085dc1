package variables

import (
	"fmt"
	"strings"

	"pool-boq/core/formula"
	"pool-boq/core/types"
)

const (
	KindReservedName  formula.ErrorKind = "reserved_name"
	KindDuplicateName formula.ErrorKind = "duplicate_name"
	KindInvalidName   formula.ErrorKind = "invalid_name"
)

// Diagnostic is a finding about one variable definition
type Diagnostic struct {
	formula.Diagnostic

	// Variable is the definition's name
	Variable string `json:"variable"`
}

// Validate checks definitions for shape without evaluating them. It reports
// names that collide with the shape's dimensions or with each other, formulas
// that do not parse, names no definition provides, and references to a
// variable that is only defined later in evaluation order. The latter
// resolve to 0 at pricing time and are reported as warnings.
func Validate(shape types.Shape, defs []types.VariableDefinition) []Diagnostic {
	sorted := types.SortedVariables(defs)

	// lower-cased name -> index of first definition in evaluation order
	firstIndex := make(map[string]int, len(sorted))
	for i, def := range sorted {
		key := strings.ToLower(def.Name)
		if _, ok := firstIndex[key]; !ok {
			firstIndex[key] = i
		}
	}

	var diags []Diagnostic
	add := func(def types.VariableDefinition, d formula.Diagnostic) {
		diags = append(diags, Diagnostic{Diagnostic: d, Variable: def.Name})
	}

	for i, def := range sorted {
		switch {
		case !validName(def.Name):
			add(def, formula.Diagnostic{
				Severity: formula.SeverityError,
				Kind:     KindInvalidName,
				Message:  fmt.Sprintf("%q is not a valid variable name", def.Name),
			})
		case types.IsReservedDimension(def.Name):
			add(def, formula.Diagnostic{
				Severity: formula.SeverityError,
				Kind:     KindReservedName,
				Message:  fmt.Sprintf("%s collides with a reserved dimension name", def.Name),
			})
		case firstIndex[strings.ToLower(def.Name)] != i:
			add(def, formula.Diagnostic{
				Severity: formula.SeverityError,
				Kind:     KindDuplicateName,
				Message:  fmt.Sprintf("%s is defined more than once; the later definition overwrites the earlier one", def.Name),
			})
		}

		idx := i
		known := func(name string) bool {
			if shape.IsReserved(name) {
				return true
			}
			// later names are reported below as forward references
			_, ok := firstIndex[strings.ToLower(name)]
			return ok
		}
		for _, d := range formula.Check(def.Formula, known) {
			add(def, d)
		}

		expr, err := formula.Parse(def.Formula)
		if err != nil {
			continue
		}
		for _, name := range expr.Identifiers() {
			if shape.IsReserved(name) {
				continue
			}
			first, ok := firstIndex[strings.ToLower(name)]
			if ok && first >= idx {
				add(def, formula.Diagnostic{
					Severity: formula.SeverityWarning,
					Kind:     formula.KindForwardReference,
					Message:  fmt.Sprintf("%s is defined later in evaluation order and resolves to 0 here", name),
				})
			}
		}
	}
	return diags
}

func validName(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		letter := c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
		if !letter && (i == 0 || c < '0' || c > '9') {
			return false
		}
	}
	return true
}
