// Package expr is the expression layer of the script engine. Right-hand
// sides of assignments, IF/LOOP predicates and instrument-call arguments are
// HCL expressions, compiled once at parse time and evaluated against the
// run's variable bindings.
package expr

import (
	"fmt"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// functions is the fixed function table available to script expressions.
// The set is deliberately small; scripts are command sequences, not programs.
var functions = map[string]function.Function{
	"abs":    stdlib.AbsoluteFunc,
	"ceil":   stdlib.CeilFunc,
	"floor":  stdlib.FloorFunc,
	"max":    stdlib.MaxFunc,
	"min":    stdlib.MinFunc,
	"format": stdlib.FormatFunc,
}

// Expr is a compiled script expression. Compilation happens at parse time,
// so a malformed expression is a syntax error, never a runtime surprise.
type Expr struct {
	src  string
	line int
	expr hclsyntax.Expression
}

// Compile parses src as a single HCL expression. The filename and line are
// used only for diagnostics.
func Compile(src, filename string, line int) (*Expr, error) {
	parsed, diags := hclsyntax.ParseExpression([]byte(src), filename, hcl.Pos{Line: line, Column: 1, Byte: 0})
	if diags.HasErrors() {
		return nil, fmt.Errorf("invalid expression %q: %s", src, diags.Error())
	}
	return &Expr{src: src, line: line, expr: parsed}, nil
}

// Source returns the original expression text.
func (e *Expr) Source() string { return e.src }

// Line returns the script line the expression was compiled from.
func (e *Expr) Line() int { return e.line }

// Refs returns the sorted, de-duplicated root variable names the expression
// reads. The interpreter checks these against the execution context before
// evaluating, so read-before-write surfaces as a script error with the
// offending name, not an opaque HCL diagnostic.
func (e *Expr) Refs() []string {
	seen := map[string]struct{}{}
	for _, traversal := range e.expr.Variables() {
		seen[traversal.RootName()] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Value evaluates the expression against the given variable bindings.
func (e *Expr) Value(vars map[string]cty.Value) (cty.Value, error) {
	evalCtx := &hcl.EvalContext{
		Variables: vars,
		Functions: functions,
	}
	val, diags := e.expr.Value(evalCtx)
	if diags.HasErrors() {
		return cty.NilVal, fmt.Errorf("evaluating %q: %s", e.src, diags.Error())
	}
	return val, nil
}

// Bool evaluates the expression and converts the result to a boolean.
// Used for IF and LOOP WHILE predicates.
func (e *Expr) Bool(vars map[string]cty.Value) (bool, error) {
	val, err := e.Value(vars)
	if err != nil {
		return false, err
	}
	converted, err := convert.Convert(val, cty.Bool)
	if err != nil {
		return false, fmt.Errorf("predicate %q is not a boolean: %w", e.src, err)
	}
	if converted.IsNull() {
		return false, fmt.Errorf("predicate %q evaluated to null", e.src)
	}
	return converted.True(), nil
}

// Int evaluates the expression and converts the result to an int.
// Used for counted-loop bounds.
func (e *Expr) Int(vars map[string]cty.Value) (int, error) {
	val, err := e.Value(vars)
	if err != nil {
		return 0, err
	}
	converted, err := convert.Convert(val, cty.Number)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number: %w", e.src, err)
	}
	if converted.IsNull() {
		return 0, fmt.Errorf("%q evaluated to null", e.src)
	}
	n, _ := converted.AsBigFloat().Int64()
	return int(n), nil
}
