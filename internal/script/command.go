// Package script turns raw .atoms text into an ordered sequence of typed
// commands. Parsing is a pure function: the same text always yields an
// equal Script, and all structural validation (block balance, alias
// declared-before-use, expression syntax, arity) happens here, before any
// instrument is touched.
package script

import (
	"time"

	"github.com/atomsai/testflow/internal/expr"
	"github.com/atomsai/testflow/internal/instrument"
)

// Kind discriminates the command union. The interpreter dispatches with an
// exhaustive switch; the parser rejects anything it cannot classify.
type Kind int

const (
	// KindNoOp is a blank or comment line kept for stable line numbering.
	KindNoOp Kind = iota
	// KindInstrumentCall sends a command or query to an instrument.
	KindInstrumentCall
	// KindAssignment binds a variable to an evaluated expression.
	KindAssignment
	// KindWait suspends the run for a fixed duration.
	KindWait
	// KindConditional evaluates a predicate and jumps past its block when false.
	KindConditional
	// KindLoop starts a counted or predicate loop.
	KindLoop
	// KindRecord appends an evaluated expression as a measurement result.
	KindRecord
	// KindJump is an unconditional control transfer emitted by the parser
	// when lowering ELSE branches and loop tails. It never appears in
	// source text.
	KindJump
)

var kindNames = map[Kind]string{
	KindNoOp:           "noop",
	KindInstrumentCall: "call",
	KindAssignment:     "set",
	KindWait:           "wait",
	KindConditional:    "if",
	KindLoop:           "loop",
	KindRecord:         "record",
	KindJump:           "jump",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Instrument operations carried by KindInstrumentCall commands, passed
// through the transport interface as-is. OpQuery is measurement-producing.
const (
	OpCommand = instrument.OpCommand
	OpQuery   = instrument.OpQuery
)

// Command is one parsed, executable unit of a script. Which fields are
// meaningful depends on Kind; everything is immutable after parse.
type Command struct {
	Kind Kind
	Line int

	// Instrument call fields.
	Alias  string
	Op     string
	Args   []*expr.Expr
	SaveAs string

	// Assignment and record fields.
	Name string
	Expr *expr.Expr

	// Wait duration.
	Duration time.Duration

	// Control flow. For KindConditional, Target is the index executed when
	// the predicate is false. For KindLoop, Target is the index just past
	// the loop body. For KindJump, Target is the destination index.
	Pred   *expr.Expr
	Count  *expr.Expr
	Target int
}

// Declaration binds a script-local instrument alias to a driver and address.
type Declaration struct {
	Alias   string
	Driver  string
	Address string
	Line    int
}

// Script is the parsed form of one .atoms file. It is owned by exactly one
// run and never mutated after parse.
type Script struct {
	Name        string
	Commands    []Command
	Instruments map[string]Declaration
}
