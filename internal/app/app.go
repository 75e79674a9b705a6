// Package app wires the engine together for the hosting CLI: logger
// construction, run-configuration merging and the single-run lifecycle.
package app

import (
	"context"
	"io"
	"log/slog"

	"github.com/atomsai/testflow"
	"github.com/atomsai/testflow/internal/ctxlog"
)

// App encapsulates one configured engine instance with its own isolated
// logger.
type App struct {
	outW   io.Writer
	logger *slog.Logger
	engine *testflow.Engine
	config *Config
}

// New constructs the application: logger, engine with the stock driver set,
// and validated configuration.
func New(outW io.Writer, cfg *Config) *App {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	logger.Debug("Logger configured successfully.")
	return &App{
		outW:   outW,
		logger: logger,
		engine: testflow.NewEngine(testflow.DefaultModules()...),
		config: cfg,
	}
}

// Run merges file configuration under flag configuration, executes the
// script and returns its report.
func (a *App) Run(ctx context.Context) (*testflow.RunReport, error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)

	runCfg := testflow.Config{
		OnError:       a.config.OnError,
		MaxIterations: a.config.MaxIterations,
	}

	if a.config.ConfigPath != "" {
		fileCfg, err := loadRunConfig(a.config.ConfigPath)
		if err != nil {
			return nil, err
		}
		if runCfg.OnError == "" && fileCfg.OnError != nil {
			runCfg.OnError = *fileCfg.OnError
		}
		if runCfg.MaxIterations == 0 && fileCfg.MaxIterations != nil {
			runCfg.MaxIterations = *fileCfg.MaxIterations
		}
		if len(fileCfg.Instruments) > 0 {
			runCfg.Overrides = map[string]testflow.Override{}
			for _, block := range fileCfg.Instruments {
				runCfg.Overrides[block.Alias] = testflow.Override{
					Driver:  block.Driver,
					Address: block.Address,
				}
			}
		}
		a.logger.Debug("Run config loaded.", "path", a.config.ConfigPath)
	}

	if a.config.InventoryPath != "" {
		overrides, err := loadInventory(a.config.InventoryPath)
		if err != nil {
			return nil, err
		}
		if runCfg.Overrides == nil {
			runCfg.Overrides = overrides
		} else {
			// Run-config blocks win over the shared inventory.
			for alias, o := range overrides {
				if _, taken := runCfg.Overrides[alias]; !taken {
					runCfg.Overrides[alias] = o
				}
			}
		}
		a.logger.Debug("Instrument inventory loaded.", "path", a.config.InventoryPath, "entries", len(overrides))
	}

	return a.engine.RunScript(ctx, a.config.ScriptPath, a.config.OutputDir, runCfg)
}
