package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/vogtb/go-spreadsheet/packages/formula"
	"github.com/vogtb/go-spreadsheet/packages/formula/internal/config"
)

// CLI Constants
const (
	CmdEval       = "eval"
	CmdDeps       = "deps"
	CmdExpand     = "expand"
	CmdValidate   = "validate"
	CmdCycle      = "cycle"
	CmdRecalc     = "recalc"
	CmdSet        = "set"
	CmdConfig     = "config"
	FlagConfig    = "config"
	FlagLogLevel  = "log-level"
	FlagLogFmt    = "log-format"
	FlagSet       = "set"
	FlagCells     = "cells"
	FlagXLSX      = "xlsx"
	FlagSheet     = "sheet"
	FlagJSON      = "json"
	FlagLock      = "lock"
	FlagOutput    = "output"
	FlagOverwrite = "overwrite"
)

// rootOptions holds the flag values and what PersistentPreRunE builds from
// them. every command tree gets its own, so trees never share parsed flags.
type rootOptions struct {
	configPath string
	logLevel   string
	logFormat  string
	sets       []string
	cellsPath  string
	xlsxPath   string
	sheet      string
	formatJSON bool

	config *config.Config
	logger *slog.Logger
	engine *formula.Engine
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "formulactl",
		Short: "formulactl - evaluate formulas and plan recalculation over a set of cells",
		Long: `formulactl runs the formula engine from the command line.

Cells are given with --set, a YAML cells file or an .xlsx workbook:
  formulactl eval "=SUM(A1:A3)*2" --set A1=10 --set A2=20
  formulactl recalc A1 5 --cells cells.yaml
  formulactl cycle C1 "=A1" --xlsx plan.xlsx --sheet Budget
  formulactl set Main!total_y1 "=Main!a_y1+Main!b_y1" --cells plan.yaml

--set takes REF=VALUE for a value and REF==FORMULA for a formula.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, FlagConfig, "c", "", "Configuration file path (optional, will use defaults if not provided)")
	flags.StringVar(&opts.logLevel, FlagLogLevel, "", "Log level: debug, info, warn or error")
	flags.StringVar(&opts.logFormat, FlagLogFmt, "", "Log format: text or json")
	flags.StringArrayVar(&opts.sets, FlagSet, nil, "Cell as REF=VALUE or REF==FORMULA (repeatable)")
	flags.StringVar(&opts.cellsPath, FlagCells, "", "YAML file with a list of cells")
	flags.StringVar(&opts.xlsxPath, FlagXLSX, "", "Workbook to read cells from")
	flags.StringVar(&opts.sheet, FlagSheet, "", "Sheet of --xlsx to read (default: first sheet)")
	flags.BoolVar(&opts.formatJSON, FlagJSON, false, "Output in JSON format")

	rootCmd.AddCommand(
		newEvalCmd(opts),
		newDepsCmd(opts),
		newExpandCmd(opts),
		newValidateCmd(opts),
		newCycleCmd(opts),
		newRecalcCmd(opts),
		newSetCmd(opts),
		newConfigCmd(opts),
	)
	return rootCmd
}

// setup loads the configuration, applies the flag overrides and builds the
// logger and the engine
func (o *rootOptions) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Log.Format = o.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	o.config = cfg
	o.logger = cfg.Logger(cmd.ErrOrStderr())
	o.engine = formula.New(cfg.EngineOptions(o.logger)...)
	return nil
}

func Execute() error {
	return newRootCmd().Execute()
}
