// Package testflow executes .atoms hardware-test scripts: it parses the
// script, dispatches its commands through pluggable instrument transports,
// and persists measurement artifacts into an output directory.
//
// The minimal entry point mirrors the hosting applications' needs:
//
//	rep, err := testflow.RunScript(ctx, "bringup.atoms", "out", testflow.Config{})
//
// An Engine hosts concurrent runs; each run owns its execution context and
// instrument registry, and runs only contend on physical instruments, where
// a second acquisition fails fast instead of queuing.
package testflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/atomsai/testflow/internal/ctxlog"
	"github.com/atomsai/testflow/internal/instrument"
	"github.com/atomsai/testflow/internal/interp"
	"github.com/atomsai/testflow/internal/report"
	"github.com/atomsai/testflow/internal/run"
	"github.com/atomsai/testflow/internal/script"
)

// Public aliases for the types callers and driver authors interact with.
type (
	RunReport         = report.RunReport
	MeasurementResult = report.MeasurementResult
	RunError          = report.RunError
	Grammar           = script.Grammar
	SyntaxError       = script.SyntaxError
	Declaration       = instrument.Declaration
	Handle            = instrument.Handle
	Transport         = instrument.Transport
	Module            = instrument.Module
	Drivers           = instrument.Drivers
	InstrumentError   = instrument.Error
)

// Terminal run statuses as they appear in RunReport.Status.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusAborted   = "aborted"
)

// DefaultGrammar returns the stock .atoms keyword table.
func DefaultGrammar() Grammar { return script.DefaultGrammar() }

// Override rebinds a declared alias to a different driver or address
// without editing the script, typically from a lab inventory file.
type Override struct {
	Driver  string
	Address string
}

// Config carries the engine options a caller may set per run.
type Config struct {
	// OnError is the instrument-failure policy: "abort" (default) stops
	// at the first failed call, "continue" records it and keeps going.
	OnError string
	// MaxIterations caps loop iterations when positive. Default unlimited.
	MaxIterations int
	// Grammar overrides the keyword table. Nil means DefaultGrammar.
	Grammar *Grammar
	// Overrides maps instrument aliases to replacement bindings.
	Overrides map[string]Override
}

// Engine hosts script runs over a fixed set of instrument drivers. It is
// safe for concurrent use; every run gets its own registry and context
// while the shared arbiter guards physical instruments.
type Engine struct {
	drivers *instrument.Drivers
	arbiter *instrument.Arbiter
}

// NewEngine builds an engine with the given driver modules compiled in.
func NewEngine(modules ...Module) *Engine {
	drivers := instrument.NewDrivers()
	for _, mod := range modules {
		mod.Register(drivers)
	}
	return &Engine{
		drivers: drivers,
		arbiter: instrument.NewArbiter(),
	}
}

// RunScript executes one script file and writes its artifacts into
// outputDir. Parse-time failures return before any instrument is touched
// and produce no report. Execution failures are reflected in the returned
// report's status; the error return is reserved for setup and persistence
// failures. Cancelling ctx aborts the run at the next command boundary;
// instruments are torn down on every exit path.
func (e *Engine) RunScript(ctx context.Context, scriptPath, outputDir string, cfg Config) (*RunReport, error) {
	grammar := script.DefaultGrammar()
	if cfg.Grammar != nil {
		grammar = *cfg.Grammar
	}
	policy, err := interp.ParsePolicy(cfg.OnError)
	if err != nil {
		return nil, err
	}

	parsed, err := script.ParseFile(scriptPath, grammar)
	if err != nil {
		return nil, err
	}

	writer, err := report.NewWriter(outputDir)
	if err != nil {
		return nil, err
	}

	runID := newRunID()
	logger := ctxlog.FromContext(ctx).With("run_id", runID, "script", parsed.Name)
	ctx = ctxlog.WithLogger(ctx, logger)

	plan := parsed.Plan()
	logger.Info("Starting run.", "planned_steps", plan.TotalSteps, "instruments", plan.Instruments)

	rep := &RunReport{
		RunID:        runID,
		Script:       parsed.Name,
		StartedAt:    time.Now().UTC(),
		PlannedSteps: plan.TotalSteps,
		Status:       run.Running.String(),
	}

	registry := instrument.NewRegistry(runID, e.drivers, e.arbiter, e.declarations(parsed, cfg))
	itp := interp.New(parsed, registry, rep, interp.Options{
		OnError:       policy,
		MaxIterations: cfg.MaxIterations,
	})

	itp.Run(ctx)

	if terr := registry.Teardown(ctx); terr != nil {
		// Teardown failures are recorded but never mask the run outcome.
		rep.AddError(0, "", "teardown: "+terr.Error())
	}
	rep.FinishedAt = time.Now().UTC()

	if werr := writer.Write(ctx, rep); werr != nil {
		return rep, fmt.Errorf("persisting run report: %w", werr)
	}
	return rep, nil
}

// declarations merges the script's instrument declarations with the
// caller's overrides into the registry's input form.
func (e *Engine) declarations(parsed *script.Script, cfg Config) map[string]instrument.Declaration {
	decls := make(map[string]instrument.Declaration, len(parsed.Instruments))
	for alias, d := range parsed.Instruments {
		decl := instrument.Declaration{Alias: d.Alias, Driver: d.Driver, Address: d.Address}
		if o, ok := cfg.Overrides[alias]; ok {
			if o.Driver != "" {
				decl.Driver = o.Driver
			}
			if o.Address != "" {
				decl.Address = o.Address
			}
		}
		decls[alias] = decl
	}
	return decls
}

// RunScript executes one script with the drivers compiled into this binary.
func RunScript(ctx context.Context, scriptPath, outputDir string, cfg Config) (*RunReport, error) {
	return NewEngine(DefaultModules()...).RunScript(ctx, scriptPath, outputDir, cfg)
}

// newRunID qualifies output filenames: sortable timestamp plus enough
// randomness to stay collision-free across concurrent runs.
func newRunID() string {
	return time.Now().UTC().Format("20060102-150405") + "-" + uuid.NewString()[:8]
}
