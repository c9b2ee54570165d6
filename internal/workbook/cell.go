package workbook

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vogtb/go-spreadsheet/packages/formula"
)

const DefaultCellType = "number"

// Cell is a stored cell of a plan. a cell is identified inside its plan by
// its row and column ids.
type Cell struct {
	ID            uuid.UUID       `json:"id" yaml:"id"`
	PlanID        uuid.UUID       `json:"plan_id" yaml:"plan_id"`
	SheetName     string          `json:"sheet_name" yaml:"sheet_name"`
	RowID         string          `json:"row_id" yaml:"row_id"`
	ColumnID      string          `json:"column_id" yaml:"column_id"`
	Value         decimal.Decimal `json:"value" yaml:"value"`
	Formula       string          `json:"formula,omitempty" yaml:"formula,omitempty"`
	IsCalculated  bool            `json:"is_calculated" yaml:"is_calculated"`
	CellType      string          `json:"cell_type" yaml:"cell_type"`
	DisplayFormat string          `json:"display_format,omitempty" yaml:"display_format,omitempty"`
	Locked        bool            `json:"locked" yaml:"locked"`
	CreatedAt     time.Time       `json:"created_at" yaml:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at" yaml:"updated_at"`
}

// Reference is the key formulas use for the cell, e.g. Main!revenue_2024
func (c *Cell) Reference() string {
	return c.SheetName + "!" + c.RowID + "_" + c.ColumnID
}

func (c *Cell) FormulaText() string          { return c.Formula }
func (c *Cell) CachedValue() decimal.Decimal { return c.Value }

func (c *Cell) clone() *Cell {
	copied := *c
	return &copied
}

func formulaCells(cells []*Cell) []formula.Cell {
	result := make([]formula.Cell, len(cells))
	for i, cell := range cells {
		result[i] = cell
	}
	return result
}

func valueMap(cells []*Cell) map[string]decimal.Decimal {
	values := make(map[string]decimal.Decimal, len(cells))
	for _, cell := range cells {
		values[cell.Reference()] = cell.Value
	}
	return values
}
