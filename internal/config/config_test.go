package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vogtb/go-spreadsheet/packages/formula"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	config, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), config)
	assert.Equal(t, "Main", config.Engine.DefaultSheet)
	assert.Equal(t, 500, config.Engine.MaxFormulaLength)
	assert.Equal(t, int32(28), config.Engine.DivisionPrecision)
	assert.Equal(t, 100000, config.Engine.MaxRangeSize)
	assert.NoError(t, config.Validate())
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
log:
  level: debug
  format: json
engine:
  division_precision: 4
  default_sheet: Budget
`)

	config, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", config.Log.Level)
	assert.Equal(t, LogFormatJSON, config.Log.Format)
	assert.Equal(t, int32(4), config.Engine.DivisionPrecision)
	assert.Equal(t, "Budget", config.Engine.DefaultSheet)
	// untouched keys keep their defaults
	assert.Equal(t, 500, config.Engine.MaxFormulaLength)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config")
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = Load(writeConfig(t, "log: [unclosed"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config")

	_, err = Load(writeConfig(t, "log:\n  level: loud\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")

	_, err = Load(writeConfig(t, "engine:\n  division_precision: 40\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")

	_, err = Load(writeConfig(t, "engine:\n  default_sheet: \"\"\n"))
	require.Error(t, err)

	_, err = Load(writeConfig(t, "engine:\n  max_range_size: -1\n"))
	require.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saved.yaml")
	config := Default()
	config.Engine.MaxFormulaLength = 0

	require.NoError(t, Save(config, path))
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, config, loaded)

	config.Log.Format = "xml"
	assert.Error(t, Save(config, path))

	var nilConfig *Config
	assert.Error(t, nilConfig.Validate())
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	config := Default()
	config.Log.Level = "warn"
	logger := config.Logger(&buf)

	logger.Info("hidden")
	logger.Warn("shown", "cell", "A1")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "msg=shown")

	buf.Reset()
	config.Log.Format = LogFormatJSON
	config.Log.Level = "debug"
	config.Logger(&buf).Debug("json", "cell", "A1")
	assert.Contains(t, buf.String(), `"msg":"json"`)
	assert.Contains(t, buf.String(), `"cell":"A1"`)

	assert.Equal(t, slog.LevelError, (&Config{Log: LogConfig{Level: "ERROR"}}).Level())
	assert.Equal(t, slog.LevelInfo, (&Config{}).Level())
}

func TestEngineOptions(t *testing.T) {
	config := Default()
	config.Engine.DivisionPrecision = 2

	e := formula.New(config.EngineOptions(nil)...)
	got, err := e.Evaluate("=10/3", nil)
	require.NoError(t, err)
	assert.Equal(t, "3.33", got.String())

	config.Engine.MaxFormulaLength = 5
	e = formula.New(config.EngineOptions(nil)...)
	valid, message := e.ValidateFormula("=A1+A2+A3")
	assert.False(t, valid)
	assert.Equal(t, "Formula must not exceed 5 characters", message)

	config = Default()
	config.Engine.MaxRangeSize = 10
	e = formula.New(config.EngineOptions(nil)...)
	valid, message = e.ValidateFormula("=SUM(A1:A11)")
	assert.False(t, valid)
	assert.Equal(t, "Range A1:A11 must not exceed 10 cells", message)
}
