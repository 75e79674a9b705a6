// Package cli turns command-line arguments into an app.Config.
package cli

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/atomsai/testflow/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Parse processes command-line arguments. It returns a populated app.Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("testflow", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
TestFlow - executes .atoms hardware-test scripts.

Usage:
  testflow [options] [SCRIPT_PATH]

Arguments:
  SCRIPT_PATH
    Path to a .atoms script file.

Options:
`)
		flagSet.PrintDefaults()
	}

	scriptFlag := flagSet.String("script", "", "Path to the .atoms script.")
	sFlag := flagSet.String("s", "", "Path to the .atoms script (shorthand).")
	outFlag := flagSet.String("out", "out", "Output directory for run artifacts.")
	configFlag := flagSet.String("config", "", "Path to an HCL run-configuration file.")
	inventoryFlag := flagSet.String("inventory", "", "Path to a YAML instrument inventory file.")
	onErrorFlag := flagSet.String("on-error", "", "Instrument failure policy. Options: 'abort' (default) or 'continue'.")
	maxIterFlag := flagSet.Int("max-iterations", 0, "Cap loop iterations. 0 is unlimited.")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	path := ""
	if *scriptFlag != "" {
		path = *scriptFlag
	} else if *sFlag != "" {
		path = *sFlag
	} else if flagSet.NArg() > 0 {
		path = flagSet.Arg(0)
	}
	slog.Debug("Script path determined.", "path", path)

	if path == "" {
		slog.Debug("No script path provided, printing usage and exiting.")
		flagSet.Usage()
		return nil, true, nil
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}

	onError := strings.ToLower(*onErrorFlag)
	switch onError {
	case "", "abort", "continue":
		// valid
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid on-error: must be 'abort' or 'continue'"}
	}

	if *maxIterFlag < 0 {
		return nil, false, &ExitError{Code: 2, Message: "invalid max-iterations: must not be negative"}
	}
	slog.Debug("CLI parameter validation complete.")

	config, err := app.NewConfig(app.Config{
		ScriptPath:    path,
		OutputDir:     *outFlag,
		ConfigPath:    *configFlag,
		InventoryPath: *inventoryFlag,
		OnError:       onError,
		MaxIterations: *maxIterFlag,
		LogFormat:     logFormat,
		LogLevel:      logLevel,
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "config", config)
	return config, false, nil
}
