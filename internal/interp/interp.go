// Package interp walks a parsed command sequence and drives it to a
// terminal state. One interpreter executes one run on a single logical
// thread; commands execute strictly in sequence because most instruments
// are not safely reentrant.
package interp

import (
	"context"
	"fmt"
	"time"

	"github.com/zclconf/go-cty/cty"

	"github.com/atomsai/testflow/internal/ctxlog"
	"github.com/atomsai/testflow/internal/expr"
	"github.com/atomsai/testflow/internal/instrument"
	"github.com/atomsai/testflow/internal/report"
	"github.com/atomsai/testflow/internal/run"
	"github.com/atomsai/testflow/internal/script"
)

// Policy decides what happens when an instrument call fails.
type Policy int

const (
	// AbortOnError stops executing remaining commands, tears down and
	// writes a partial report. The default.
	AbortOnError Policy = iota
	// ContinueOnError records the failure and keeps executing; the run
	// still finishes Failed.
	ContinueOnError
)

// ParsePolicy maps the configuration spelling to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "abort":
		return AbortOnError, nil
	case "continue":
		return ContinueOnError, nil
	}
	return AbortOnError, fmt.Errorf("invalid onError policy %q: must be 'abort' or 'continue'", s)
}

// LoopLimitError reports a loop that exceeded the configured iteration cap.
// The cap is a safety guard, so exceeding it is fatal by design.
type LoopLimitError struct {
	Line  int
	Limit int
}

func (e *LoopLimitError) Error() string {
	return fmt.Sprintf("loop at line %d exceeded %d iterations", e.Line, e.Limit)
}

// Options are the engine configuration knobs the interpreter honors.
type Options struct {
	OnError Policy
	// MaxIterations caps every loop's iterations. Zero means unlimited;
	// script authors own their termination conditions.
	MaxIterations int
}

// Interpreter executes one script run. It is the only mutator of the run
// context and the report.
type Interpreter struct {
	script   *script.Script
	registry *instrument.Registry
	rctx     *run.Context
	rep      *report.RunReport
	opts     Options
	planned  int
}

// New builds an interpreter positioned at command 0 in state Running.
func New(s *script.Script, registry *instrument.Registry, rep *report.RunReport, opts Options) *Interpreter {
	return &Interpreter{
		script:   s,
		registry: registry,
		rctx:     run.NewContext(len(s.Commands)),
		rep:      rep,
		opts:     opts,
		planned:  s.Plan().TotalSteps,
	}
}

// Run drives the command sequence to a terminal state and returns it.
// Cancellation of ctx aborts at the next command boundary, never
// mid-instrument-call. Teardown and report persistence belong to the
// caller and happen on every exit path.
func (it *Interpreter) Run(ctx context.Context) run.Status {
	logger := ctxlog.FromContext(ctx)

	for it.rctx.Status() == run.Running {
		if err := ctx.Err(); err != nil {
			logger.Warn("Run aborted.", "reason", err)
			it.rep.AddError(it.currentLine(), "", "aborted: "+err.Error())
			it.rctx.SetStatus(run.Aborted)
			break
		}
		if it.rctx.Done() {
			if len(it.rep.Errors) > 0 {
				it.rctx.SetStatus(run.Failed)
			} else {
				it.rctx.SetStatus(run.Completed)
			}
			break
		}
		it.step(ctx, &it.script.Commands[it.rctx.Cursor()])
	}

	it.rep.Status = it.rctx.Status().String()
	logger.Info("Run finished.", "status", it.rep.Status, "steps", it.rep.StepsExecuted, "results", len(it.rep.Results))
	return it.rctx.Status()
}

func (it *Interpreter) currentLine() int {
	if it.rctx.Done() {
		return 0
	}
	return it.script.Commands[it.rctx.Cursor()].Line
}

// step executes exactly one command. Dispatch is exhaustive over the
// command union; an unknown kind means the parser and interpreter have
// diverged, which is unrecoverable.
func (it *Interpreter) step(ctx context.Context, cmd *script.Command) {
	logger := ctxlog.FromContext(ctx)

	switch cmd.Kind {
	case script.KindNoOp:
		it.rctx.Advance()

	case script.KindJump:
		it.rctx.Jump(cmd.Target)

	case script.KindAssignment:
		it.countStep(ctx, cmd)
		val, err := it.eval(cmd.Expr, cmd.Line)
		if err != nil {
			it.fatal(ctx, cmd, err)
			return
		}
		it.rctx.Set(cmd.Name, val)
		it.rctx.Advance()

	case script.KindWait:
		it.countStep(ctx, cmd)
		it.wait(ctx, cmd)

	case script.KindConditional:
		it.countStep(ctx, cmd)
		taken, err := it.evalBool(cmd.Pred, cmd.Line)
		if err != nil {
			it.fatal(ctx, cmd, err)
			return
		}
		if taken {
			it.rctx.Advance()
		} else {
			it.rctx.Jump(cmd.Target)
		}

	case script.KindLoop:
		it.countStep(ctx, cmd)
		it.loop(ctx, cmd)

	case script.KindRecord:
		it.countStep(ctx, cmd)
		val, err := it.eval(cmd.Expr, cmd.Line)
		if err != nil {
			it.fatal(ctx, cmd, err)
			return
		}
		it.rep.AddResult(report.MeasurementResult{
			Timestamp: time.Now().UTC(),
			Line:      cmd.Line,
			Values:    map[string]any{cmd.Name: expr.Native(val)},
			Status:    report.ResultOk,
		})
		logger.Debug("Recorded measurement.", "line", cmd.Line, "name", cmd.Name, "value", expr.FormatValue(val))
		it.rctx.Advance()

	case script.KindInstrumentCall:
		it.countStep(ctx, cmd)
		it.call(ctx, cmd)

	default:
		panic(fmt.Sprintf("interp: unhandled command kind %v at line %d", cmd.Kind, cmd.Line))
	}
}

// wait suspends the run for the command's duration without blocking other
// runs hosted in the same process. Cancellation wins over the timer.
func (it *Interpreter) wait(ctx context.Context, cmd *script.Command) {
	if cmd.Duration <= 0 {
		it.rctx.Advance()
		return
	}
	timer := time.NewTimer(cmd.Duration)
	defer timer.Stop()
	select {
	case <-timer.C:
		it.rctx.Advance()
	case <-ctx.Done():
		it.rep.AddError(cmd.Line, "", "aborted: "+ctx.Err().Error())
		it.rctx.SetStatus(run.Aborted)
	}
}

// loop decides whether to enter one more body pass. Iteration counters are
// keyed by command index, so nested and re-entered loops stay independent.
func (it *Interpreter) loop(ctx context.Context, cmd *script.Command) {
	idx := it.rctx.Cursor()
	done := it.rctx.LoopIterations(idx)

	var again bool
	if cmd.Count != nil {
		bound, err := func() (int, error) {
			if err := it.checkRefs(cmd.Count, cmd.Line); err != nil {
				return 0, err
			}
			return cmd.Count.Int(it.rctx.Vars())
		}()
		if err != nil {
			it.fatal(ctx, cmd, err)
			return
		}
		again = done < bound
	} else {
		taken, err := it.evalBool(cmd.Pred, cmd.Line)
		if err != nil {
			it.fatal(ctx, cmd, err)
			return
		}
		again = taken
	}

	if again {
		// The cap trips only when the loop would start body pass max+1.
		// A loop whose continuation check already failed exits cleanly
		// even when it ran exactly max passes.
		if it.opts.MaxIterations > 0 && done >= it.opts.MaxIterations {
			it.fatal(ctx, cmd, &LoopLimitError{Line: cmd.Line, Limit: it.opts.MaxIterations})
			return
		}
		it.rctx.EnterLoopBody(idx)
		it.rctx.Advance()
	} else {
		it.rctx.ResetLoop(idx)
		it.rctx.Jump(cmd.Target)
	}
}

// call dispatches one instrument command or query. The interpreter never
// retries a failed call; retry is expressed by the script author with
// explicit loops so failure semantics stay auditable.
func (it *Interpreter) call(ctx context.Context, cmd *script.Command) {
	logger := ctxlog.FromContext(ctx)

	handle, err := it.registry.Resolve(ctx, cmd.Alias)
	if err != nil {
		it.instrumentFailure(ctx, cmd, err)
		return
	}

	args := make([]cty.Value, len(cmd.Args))
	for i, arg := range cmd.Args {
		val, err := it.eval(arg, cmd.Line)
		if err != nil {
			it.fatal(ctx, cmd, err)
			return
		}
		args[i] = val
	}

	val, err := handle.Invoke(ctx, cmd.Op, args)
	if err != nil {
		it.instrumentFailure(ctx, cmd, &instrument.Error{
			Alias:  cmd.Alias,
			Reason: instrument.ReasonOperationFailed,
			Err:    err,
		})
		return
	}

	if cmd.SaveAs != "" {
		it.rctx.Set(cmd.SaveAs, val)
	}
	if cmd.Op == script.OpQuery {
		name := cmd.SaveAs
		if name == "" {
			name = "value"
		}
		it.rep.AddResult(report.MeasurementResult{
			Timestamp: time.Now().UTC(),
			Line:      cmd.Line,
			Alias:     cmd.Alias,
			Values:    map[string]any{name: expr.Native(val)},
			Status:    report.ResultOk,
		})
	}
	logger.Debug("Instrument call finished.", "line", cmd.Line, "alias", cmd.Alias, "op", cmd.Op, "value", expr.FormatValue(val))
	it.rctx.Advance()
}

// instrumentFailure applies the run's onError policy to a hardware-layer
// failure. Everything that is not an instrument error is fatal and goes
// through fatal instead.
func (it *Interpreter) instrumentFailure(ctx context.Context, cmd *script.Command, err error) {
	logger := ctxlog.FromContext(ctx)
	it.rep.AddError(cmd.Line, cmd.Alias, err.Error())

	if it.opts.OnError == ContinueOnError {
		logger.Warn("Instrument call failed, continuing per policy.", "line", cmd.Line, "alias", cmd.Alias, "error", err)
		it.rctx.Advance()
		return
	}
	logger.Error("Instrument call failed, aborting run.", "line", cmd.Line, "alias", cmd.Alias, "error", err)
	it.rctx.SetStatus(run.Failed)
}

// fatal stops the run on a non-recoverable error: script logic mistakes
// (undefined variables, bad predicates), loop caps, internal invariants.
// The onError policy never applies here.
func (it *Interpreter) fatal(ctx context.Context, cmd *script.Command, err error) {
	ctxlog.FromContext(ctx).Error("Run failed.", "line", cmd.Line, "error", err)
	it.rep.AddError(cmd.Line, cmd.Alias, err.Error())
	it.rctx.SetStatus(run.Failed)
}

func (it *Interpreter) countStep(ctx context.Context, cmd *script.Command) {
	it.rep.StepsExecuted++
	ctxlog.FromContext(ctx).Debug("Executing command.",
		"line", cmd.Line,
		"kind", cmd.Kind.String(),
		"step", it.rep.StepsExecuted,
		"planned", it.planned,
	)
}

// eval evaluates an expression against the run's bindings, surfacing
// read-before-write as an UndefinedVariableError with the offending name.
func (it *Interpreter) eval(e *expr.Expr, line int) (cty.Value, error) {
	if err := it.checkRefs(e, line); err != nil {
		return cty.NilVal, err
	}
	return e.Value(it.rctx.Vars())
}

func (it *Interpreter) evalBool(e *expr.Expr, line int) (bool, error) {
	if err := it.checkRefs(e, line); err != nil {
		return false, err
	}
	return e.Bool(it.rctx.Vars())
}

func (it *Interpreter) checkRefs(e *expr.Expr, line int) error {
	for _, name := range e.Refs() {
		if !it.rctx.Has(name) {
			return &run.UndefinedVariableError{Name: name, Line: line}
		}
	}
	return nil
}
