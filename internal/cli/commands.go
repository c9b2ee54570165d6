package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/vogtb/go-spreadsheet/packages/formula"
)

var errInvalidFormula = errors.New("invalid formula")

type evalOutput struct {
	Formula  string          `json:"formula"`
	Value    decimal.Decimal `json:"value"`
	Warnings []string        `json:"warnings"`
}

type cellValue struct {
	Ref   string          `json:"ref"`
	Value decimal.Decimal `json:"value"`
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeLines(w io.Writer, lines []string) {
	for _, line := range lines {
		fmt.Fprintln(w, line)
	}
}

func newEvalCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   CmdEval + " FORMULA",
		Short: "Evaluate a formula against the given cells",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cells, err := opts.loadCells()
			if err != nil {
				return err
			}
			if err := settle(opts.engine, cells); err != nil {
				return err
			}

			result, err := opts.engine.EvaluateDetailed(args[0], valuesOf(cells))
			if err != nil {
				return err
			}

			warnings := make([]string, 0, len(result.Warnings))
			for _, w := range result.Warnings {
				warnings = append(warnings, w.String())
			}

			if opts.formatJSON {
				return writeJSON(cmd.OutOrStdout(), evalOutput{Formula: args[0], Value: result.Value, Warnings: warnings})
			}
			fmt.Fprintln(cmd.OutOrStdout(), result.Value.String())
			for _, w := range warnings {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", w)
			}
			return nil
		},
	}
}

func newDepsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   CmdDeps + " FORMULA",
		Short: "List the references a formula reads",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deps := formula.ParseDependencies(args[0])
			if opts.formatJSON {
				return writeJSON(cmd.OutOrStdout(), deps)
			}
			writeLines(cmd.OutOrStdout(), deps)
			return nil
		},
	}
}

func newExpandCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   CmdExpand + " RANGE",
		Short: "Expand a range into its member references",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			refs := formula.ExpandRange(args[0])
			if opts.formatJSON {
				return writeJSON(cmd.OutOrStdout(), refs)
			}
			writeLines(cmd.OutOrStdout(), refs)
			return nil
		},
	}
}

func newValidateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   CmdValidate + " FORMULA",
		Short: "Check a formula before it is stored",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			valid, message := opts.engine.ValidateFormula(args[0])
			if !valid {
				return fmt.Errorf("%w: %s", errInvalidFormula, message)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "valid")
			return nil
		},
	}
}

func newCycleCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   CmdCycle + " TARGET FORMULA",
		Short: "Report whether giving TARGET the formula would create a circular dependency",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cells, err := opts.loadCells()
			if err != nil {
				return err
			}

			circular := opts.engine.WouldCreateCircularDependency(args[0], args[1], asEngineCells(cells))
			if opts.formatJSON {
				return writeJSON(cmd.OutOrStdout(), map[string]bool{"circular": circular})
			}
			if circular {
				fmt.Fprintln(cmd.OutOrStdout(), "circular dependency")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "no cycle")
			}
			return nil
		},
	}
}

func newRecalcCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   CmdRecalc + " REF VALUE",
		Short: "Change a cell and print every cell that has to be recalculated",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			newValue, err := decimal.NewFromString(args[1])
			if err != nil {
				return fmt.Errorf("invalid value %q: %w", args[1], err)
			}

			cells, err := opts.loadCells()
			if err != nil {
				return err
			}
			if err := settle(opts.engine, cells); err != nil {
				return err
			}

			var changed formula.Cell = formula.StaticCell{Ref: args[0]}
			target := formula.NormalizeReference(args[0])
			for _, cell := range cells {
				if formula.NormalizeReference(cell.Ref) == target {
					changed = cell
				}
			}

			recalculated, err := opts.engine.RecalculateInOrder(changed, newValue, asEngineCells(cells))
			if err != nil {
				return err
			}

			out := []cellValue{{Ref: changed.Reference(), Value: newValue}}
			for _, r := range recalculated {
				out = append(out, cellValue{Ref: r.Cell.Reference(), Value: r.Value})
			}

			if opts.formatJSON {
				return writeJSON(cmd.OutOrStdout(), out)
			}
			for _, cv := range out {
				fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", cv.Ref, cv.Value.String())
			}
			return nil
		},
	}
}
