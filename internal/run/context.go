// Package run holds the mutable state of one script execution: variable
// bindings, the command cursor, loop iteration counters and the run status.
// Exactly one Context exists per run and only the interpreter mutates it.
package run

import (
	"fmt"

	"github.com/zclconf/go-cty/cty"
)

// Status is the lifecycle state of a run.
type Status int32

const (
	Running Status = iota
	Completed
	Failed
	Aborted
)

var statusNames = map[Status]string{
	Running:   "running",
	Completed: "completed",
	Failed:    "failed",
	Aborted:   "aborted",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unknown"
}

// UndefinedVariableError reports a read-before-write on a script variable.
// It indicates an author mistake and is always fatal; values are never
// silently defaulted.
type UndefinedVariableError struct {
	Name string
	Line int
}

func (e *UndefinedVariableError) Error() string {
	return fmt.Sprintf("undefined variable %q at line %d", e.Name, e.Line)
}

// Context is the execution context of a single run.
type Context struct {
	vars      map[string]cty.Value
	cursor    int
	limit     int
	status    Status
	loopIters map[int]int
}

// NewContext creates the context for a script of limit commands, positioned
// at command 0 in state Running.
func NewContext(limit int) *Context {
	return &Context{
		vars:      map[string]cty.Value{},
		limit:     limit,
		status:    Running,
		loopIters: map[int]int{},
	}
}

// Get returns the value bound to name. The line is the script line of the
// reading command, carried into the error for reporting.
func (c *Context) Get(name string, line int) (cty.Value, error) {
	val, ok := c.vars[name]
	if !ok {
		return cty.NilVal, &UndefinedVariableError{Name: name, Line: line}
	}
	return val, nil
}

// Has reports whether name is bound.
func (c *Context) Has(name string) bool {
	_, ok := c.vars[name]
	return ok
}

// Set binds name to value.
func (c *Context) Set(name string, value cty.Value) {
	c.vars[name] = value
}

// Vars exposes the live binding map for expression evaluation. The caller
// must not mutate it; the interpreter goes through Set.
func (c *Context) Vars() map[string]cty.Value {
	return c.vars
}

// Cursor returns the index of the current command.
func (c *Context) Cursor() int { return c.cursor }

// Advance moves the cursor to the next command.
func (c *Context) Advance() { c.cursor++ }

// Jump moves the cursor to target. Targets come from the parser's lowering
// pass and must lie within the script (one past the end means normal
// termination); anything else is a corrupted command list, which is a
// programming invariant violation, not a user error.
func (c *Context) Jump(target int) {
	if target < 0 || target > c.limit {
		panic(fmt.Sprintf("run: jump target %d out of range [0,%d]", target, c.limit))
	}
	c.cursor = target
}

// Done reports whether the cursor has passed the end of the command list.
func (c *Context) Done() bool { return c.cursor >= c.limit }

// Status returns the run's current status.
func (c *Context) Status() Status { return c.status }

// SetStatus transitions the run's status. Transitions out of a terminal
// state are ignored; the first terminal state wins.
func (c *Context) SetStatus(s Status) {
	if c.status != Running {
		return
	}
	c.status = s
}

// LoopIterations returns how many body passes the loop command at cmdIndex
// has started.
func (c *Context) LoopIterations(cmdIndex int) int {
	return c.loopIters[cmdIndex]
}

// EnterLoopBody records the start of one more body pass.
func (c *Context) EnterLoopBody(cmdIndex int) {
	c.loopIters[cmdIndex]++
}

// ResetLoop clears the iteration counter when a loop exits, so re-entering
// the same loop (from an outer loop) starts fresh.
func (c *Context) ResetLoop(cmdIndex int) {
	delete(c.loopIters, cmdIndex)
}
