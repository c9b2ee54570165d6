package config

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/vogtb/go-spreadsheet/packages/formula"
)

const (
	DefaultConfigFile = "formulactl.yaml"
	DefaultSheet      = "Main"
)

const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

var configValidate = validator.New()

type LogConfig struct {
	Level  string `yaml:"level" json:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" json:"format" validate:"oneof=text json"`
}

type EngineConfig struct {
	// MaxFormulaLength limits formulas accepted by validation, 0 disables it
	MaxFormulaLength  int    `yaml:"max_formula_length" json:"max_formula_length" validate:"gte=0"`
	DivisionPrecision int32  `yaml:"division_precision" json:"division_precision" validate:"gte=1,lte=28"`
	// MaxRangeSize limits the cells a single range may cover, 0 disables it
	MaxRangeSize      int    `yaml:"max_range_size" json:"max_range_size" validate:"gte=0"`
	// DefaultSheet is the sheet of cells created without one
	DefaultSheet      string `yaml:"default_sheet" json:"default_sheet" validate:"required,max=100"`
}

// Config is the formulactl configuration file
type Config struct {
	Log    LogConfig    `yaml:"log" json:"log"`
	Engine EngineConfig `yaml:"engine" json:"engine"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: LogFormatText,
		},
		Engine: EngineConfig{
			MaxFormulaLength:  formula.DefaultMaxFormulaLength,
			DivisionPrecision: formula.DefaultDivisionPrecision,
			MaxRangeSize:      formula.DefaultMaxRangeSize,
			DefaultSheet:      DefaultSheet,
		},
	}
}

func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("configuration cannot be nil")
	}
	if err := configValidate.Struct(c); err != nil {
		return err
	}
	return nil
}

// Level returns the slog level for Log.Level
func (c *Config) Level() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logger builds a logger writing to w in the configured format
func (c *Config) Logger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.Level()}
	if strings.EqualFold(c.Log.Format, LogFormatJSON) {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// EngineOptions translates the engine section into engine options
func (c *Config) EngineOptions(logger *slog.Logger) []formula.Option {
	return []formula.Option{
		formula.WithLogger(logger),
		formula.WithDivisionPrecision(c.Engine.DivisionPrecision),
		formula.WithMaxFormulaLength(c.Engine.MaxFormulaLength),
		formula.WithMaxRangeSize(c.Engine.MaxRangeSize),
	}
}
