package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/vogtb/go-spreadsheet/packages/formula"
	"github.com/vogtb/go-spreadsheet/packages/formula/internal/workbook"
)

// cellAddress is a workbook reference split into its parts
type cellAddress struct {
	sheet    string
	rowID    string
	columnID string
}

// parseCellAddress splits [SHEET!]ROW_COLUMN. the column id is the part
// after the last underscore, a missing sheet is defaultSheet.
func parseCellAddress(ref, defaultSheet string) (cellAddress, error) {
	addr := cellAddress{sheet: defaultSheet}
	name := strings.TrimSpace(ref)
	if sheet, rest, ok := strings.Cut(name, "!"); ok {
		addr.sheet = sheet
		name = rest
	}

	underscore := strings.LastIndexByte(name, '_')
	if addr.sheet == "" || underscore <= 0 || underscore == len(name)-1 {
		return cellAddress{}, fmt.Errorf("invalid cell %q: expected SHEET!ROW_COLUMN or ROW_COLUMN", ref)
	}
	addr.rowID = name[:underscore]
	addr.columnID = name[underscore+1:]
	return addr, nil
}

// seedPlan stores cells as a new plan of store and returns its id
func seedPlan(ctx context.Context, store workbook.Store, cells []formula.StaticCell, defaultSheet string) (uuid.UUID, error) {
	planID := uuid.New()
	seeded := make([]*workbook.Cell, 0, len(cells))
	for _, cell := range cells {
		addr, err := parseCellAddress(cell.Ref, defaultSheet)
		if err != nil {
			return uuid.Nil, err
		}
		seeded = append(seeded, &workbook.Cell{
			ID:           uuid.New(),
			PlanID:       planID,
			SheetName:    addr.sheet,
			RowID:        addr.rowID,
			ColumnID:     addr.columnID,
			Value:        cell.Value,
			Formula:      cell.Formula,
			IsCalculated: formula.HasFormula(cell),
			CellType:     workbook.DefaultCellType,
		})
	}
	if err := store.SaveAll(ctx, seeded); err != nil {
		return uuid.Nil, fmt.Errorf("failed to seed plan: %w", err)
	}
	return planID, nil
}

func newSetCmd(opts *rootOptions) *cobra.Command {
	var locked []string

	setCmd := &cobra.Command{
		Use:   CmdSet + " CELL (VALUE|=FORMULA)",
		Short: "Edit a workbook cell and print it with every dependent that changed",
		Long: `Edit a workbook cell the way a plan edit is applied: the request is
validated, locked cells are refused, formulas are validated and cycle-checked,
and every dependent is recalculated.

Workbook cells are referenced as SHEET!ROW_COLUMN, or ROW_COLUMN on the
default sheet of the configuration. The cells of --cells and --set seed the
plan before the edit:
  formulactl set Main!revenue_y2 "=Main!revenue_y1*1.1" --set Main!revenue_y1=100
  formulactl set tax_rate 25 --cells plan.yaml --lock tax_rate`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			defaultSheet := opts.config.Engine.DefaultSheet
			target, err := parseCellAddress(args[0], defaultSheet)
			if err != nil {
				return err
			}

			req := workbook.UpdateCellRequest{
				RowID:     target.rowID,
				ColumnID:  target.columnID,
				SheetName: target.sheet,
			}
			if strings.HasPrefix(strings.TrimSpace(args[1]), "=") {
				req.Formula = args[1]
			} else {
				value, err := decimal.NewFromString(strings.TrimSpace(args[1]))
				if err != nil {
					return fmt.Errorf("invalid value %q: %w", args[1], err)
				}
				req.Value = value
			}

			cells, err := opts.loadCells()
			if err != nil {
				return err
			}
			if err := settle(opts.engine, cells); err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			store := workbook.NewMemoryStore()
			planID, err := seedPlan(ctx, store, cells, defaultSheet)
			if err != nil {
				return err
			}

			service := workbook.NewService(store,
				workbook.WithLogger(opts.logger),
				workbook.WithEngine(opts.engine),
				workbook.WithDefaultSheet(defaultSheet),
			)

			for _, ref := range locked {
				addr, err := parseCellAddress(ref, defaultSheet)
				if err != nil {
					return err
				}
				if _, err := service.SetLocked(ctx, planID, addr.rowID, addr.columnID, true); err != nil {
					return err
				}
			}

			changed, err := service.UpdateCell(ctx, planID, req)
			if err != nil {
				return err
			}

			if opts.formatJSON {
				return writeJSON(cmd.OutOrStdout(), changed)
			}
			for _, cell := range changed {
				fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", cell.Reference(), cell.Value.String())
			}
			return nil
		},
	}
	setCmd.Flags().StringArrayVar(&locked, FlagLock, nil, "Lock a seeded cell before the edit (repeatable)")
	return setCmd
}
