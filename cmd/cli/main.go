package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/atomsai/testflow"
	"github.com/atomsai/testflow/internal/app"
	"github.com/atomsai/testflow/internal/cli"
)

// main is the entrypoint for the testflow command.
func main() {
	// Use a minimal logger until the full one is configured.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	if err := run(os.Stdout, os.Args[1:]); err != nil {
		if exitErr, ok := err.(*cli.ExitError); ok {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run encapsulates the main application logic for easier testing and error
// handling. A run that does not finish Completed produces a non-zero exit,
// which hosting automation depends on.
func run(outW io.Writer, args []string) error {
	appConfig, shouldExit, err := cli.Parse(args, outW)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}

	// SIGINT/SIGTERM abort the run at the next command boundary; teardown
	// and partial report persistence still happen.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rep, err := app.New(outW, appConfig).Run(ctx)
	if err != nil {
		return err
	}
	if rep.Status != testflow.StatusCompleted {
		return &cli.ExitError{Code: 1, Message: fmt.Sprintf("run %s finished %s", rep.RunID, rep.Status)}
	}
	return nil
}
