package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_ScriptFlag(t *testing.T) {
	var out bytes.Buffer
	cfg, exit, err := Parse([]string{"-script", "smoke.atoms"}, &out)

	require.NoError(t, err)
	require.False(t, exit)
	assert.Equal(t, "smoke.atoms", cfg.ScriptPath)
	assert.Equal(t, "out", cfg.OutputDir)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "", cfg.OnError)
	assert.Equal(t, 0, cfg.MaxIterations)
}

func TestParse_Shorthand(t *testing.T) {
	var out bytes.Buffer
	cfg, exit, err := Parse([]string{"-s", "smoke.atoms"}, &out)

	require.NoError(t, err)
	require.False(t, exit)
	assert.Equal(t, "smoke.atoms", cfg.ScriptPath)
}

func TestParse_PositionalScript(t *testing.T) {
	var out bytes.Buffer
	cfg, exit, err := Parse([]string{"smoke.atoms"}, &out)

	require.NoError(t, err)
	require.False(t, exit)
	assert.Equal(t, "smoke.atoms", cfg.ScriptPath)
}

func TestParse_FlagWinsOverPositional(t *testing.T) {
	var out bytes.Buffer
	cfg, _, err := Parse([]string{"-script", "a.atoms", "b.atoms"}, &out)

	require.NoError(t, err)
	assert.Equal(t, "a.atoms", cfg.ScriptPath)
}

func TestParse_AllOptions(t *testing.T) {
	var out bytes.Buffer
	args := []string{
		"-script", "bringup.atoms",
		"-out", "artifacts",
		"-config", "run.hcl",
		"-inventory", "lab.yaml",
		"-on-error", "continue",
		"-max-iterations", "500",
		"-log-format", "json",
		"-log-level", "debug",
	}
	cfg, exit, err := Parse(args, &out)

	require.NoError(t, err)
	require.False(t, exit)
	assert.Equal(t, "artifacts", cfg.OutputDir)
	assert.Equal(t, "run.hcl", cfg.ConfigPath)
	assert.Equal(t, "lab.yaml", cfg.InventoryPath)
	assert.Equal(t, "continue", cfg.OnError)
	assert.Equal(t, 500, cfg.MaxIterations)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestParse_NoScriptPrintsUsage(t *testing.T) {
	var out bytes.Buffer
	cfg, exit, err := Parse([]string{}, &out)

	require.NoError(t, err)
	assert.True(t, exit)
	assert.Nil(t, cfg)
	assert.True(t, strings.Contains(out.String(), "Usage:"))
}

func TestParse_Help(t *testing.T) {
	var out bytes.Buffer
	cfg, exit, err := Parse([]string{"-h"}, &out)

	require.NoError(t, err)
	assert.True(t, exit)
	assert.Nil(t, cfg)
}

func TestParse_Invalid(t *testing.T) {
	cases := map[string][]string{
		"unknown flag":       {"-bogus"},
		"bad log format":     {"-log-format", "xml", "smoke.atoms"},
		"bad log level":      {"-log-level", "loud", "smoke.atoms"},
		"bad on-error":       {"-on-error", "retry", "smoke.atoms"},
		"negative max-iters": {"-max-iterations", "-1", "smoke.atoms"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			var out bytes.Buffer
			_, _, err := Parse(args, &out)
			var exitErr *ExitError
			require.ErrorAs(t, err, &exitErr)
			assert.Equal(t, 2, exitErr.Code)
		})
	}
}

func TestParse_CaseInsensitiveEnums(t *testing.T) {
	var out bytes.Buffer
	cfg, _, err := Parse([]string{"-on-error", "CONTINUE", "-log-level", "DEBUG", "smoke.atoms"}, &out)

	require.NoError(t, err)
	assert.Equal(t, "continue", cfg.OnError)
	assert.Equal(t, "debug", cfg.LogLevel)
}
