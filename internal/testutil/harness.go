// Package testutil provides the integration-test harness: temp script
// files, a fake instrument transport with scripted behavior, and log
// capture.
package testutil

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/atomsai/testflow"
	"github.com/atomsai/testflow/internal/ctxlog"
)

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

// Write implements the io.Writer interface for SafeBuffer.
func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

// String implements the fmt.Stringer interface for SafeBuffer.
func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// Result holds the outcomes of one harnessed script run.
type Result struct {
	Report    *testflow.RunReport
	Err       error
	LogOutput string
	OutputDir string
}

// RunScript writes scriptText to a temp .atoms file and executes it on a
// fresh engine with the given driver modules, capturing debug logs.
func RunScript(t *testing.T, scriptText string, cfg testflow.Config, modules ...testflow.Module) *Result {
	t.Helper()
	return RunScriptWithContext(context.Background(), t, scriptText, cfg, modules...)
}

// RunScriptWithContext is RunScript with a caller-provided context, for
// cancellation tests.
func RunScriptWithContext(ctx context.Context, t *testing.T, scriptText string, cfg testflow.Config, modules ...testflow.Module) *Result {
	t.Helper()

	engine := testflow.NewEngine(modules...)
	return RunOnEngine(ctx, t, engine, scriptText, cfg)
}

// RunOnEngine executes scriptText on an existing engine. Concurrency tests
// share one engine across harness calls so runs contend on the same
// instrument arbiter.
func RunOnEngine(ctx context.Context, t *testing.T, engine *testflow.Engine, scriptText string, cfg testflow.Config) *Result {
	t.Helper()

	tmpDir := t.TempDir()
	scriptPath := filepath.Join(tmpDir, "script.atoms")
	require.NoError(t, os.WriteFile(scriptPath, []byte(scriptText), 0o644))
	outDir := filepath.Join(tmpDir, "out")

	logBuffer := &SafeBuffer{}
	logger := slog.New(slog.NewTextHandler(logBuffer, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ctx = ctxlog.WithLogger(ctx, logger)

	rep, err := engine.RunScript(ctx, scriptPath, outDir, cfg)

	if os.Getenv("TESTFLOW_TEST_LOGS") == "true" {
		t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logBuffer.String())
	}

	return &Result{
		Report:    rep,
		Err:       err,
		LogOutput: logBuffer.String(),
		OutputDir: outDir,
	}
}
