package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"abigate/internal/core/gate"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, exitCode(gate.Report{Status: gate.StatusPass}, nil))
	assert.Equal(t, 1, exitCode(gate.Report{Status: gate.StatusFail, FinalStage: gate.StageVersionOKI}, nil))
	assert.Equal(t, 1, exitCode(gate.Report{Status: gate.StatusError}, errors.New("boom")))
}

func TestLoadConfigFallsBackToDefaults(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := loadConfig(defaultConfigPath)
	require.NoError(t, err)
	assert.Equal(t, "out/oplus", cfg.Paths.OutputDir)
}

func TestLoadConfigExplicitPathMustExist(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "custom.toml"))
	require.Error(t, err)
}

func TestLoadConfigReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "abigate.toml")
	require.NoError(t, os.WriteFile(path, []byte("[paths]\noutput_dir = \"build/abi\"\n"), 0o644))

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "build/abi", cfg.Paths.OutputDir)
}
