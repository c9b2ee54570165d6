package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/vogtb/go-spreadsheet/packages/formula"
	"github.com/vogtb/go-spreadsheet/packages/formula/internal/xlsx"
	"gopkg.in/yaml.v3"
)

// loadCells gathers the cells of every source: the workbook first, then
// the cells file, then --set flags. a later cell replaces an earlier one
// with the same reference.
func (o *rootOptions) loadCells() ([]formula.StaticCell, error) {
	var cells []formula.StaticCell

	if o.xlsxPath != "" {
		loaded, err := xlsx.Load(o.xlsxPath, o.sheet)
		if err != nil {
			return nil, err
		}
		cells = append(cells, loaded...)
	}

	if o.cellsPath != "" {
		loaded, err := readCellsFile(o.cellsPath)
		if err != nil {
			return nil, err
		}
		cells = append(cells, loaded...)
	}

	for _, set := range o.sets {
		cell, err := parseSet(set)
		if err != nil {
			return nil, err
		}
		cells = append(cells, cell)
	}

	cells = dedupe(cells)
	o.logger.Debug("loaded cells", "count", len(cells))
	return cells, nil
}

func readCellsFile(path string) ([]formula.StaticCell, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read cells file %s: %w", path, err)
	}

	var cells []formula.StaticCell
	if err := yaml.Unmarshal(data, &cells); err != nil {
		return nil, fmt.Errorf("failed to parse cells file %s: %w", path, err)
	}

	for i, cell := range cells {
		if strings.TrimSpace(cell.Ref) == "" {
			return nil, fmt.Errorf("cells file %s: entry %d: %w", path, i+1, formula.ErrEmptyReference)
		}
	}
	return cells, nil
}

// parseSet parses REF=VALUE and REF==FORMULA
func parseSet(set string) (formula.StaticCell, error) {
	ref, rest, ok := strings.Cut(set, "=")
	ref = strings.TrimSpace(ref)
	if !ok || ref == "" {
		return formula.StaticCell{}, fmt.Errorf("invalid --%s %q: expected REF=VALUE or REF==FORMULA", FlagSet, set)
	}

	if strings.HasPrefix(rest, "=") {
		return formula.StaticCell{Ref: ref, Formula: rest}, nil
	}

	value, err := decimal.NewFromString(strings.TrimSpace(rest))
	if err != nil {
		return formula.StaticCell{}, fmt.Errorf("invalid --%s %q: %w", FlagSet, set, err)
	}
	return formula.StaticCell{Ref: ref, Value: value}, nil
}

func dedupe(cells []formula.StaticCell) []formula.StaticCell {
	index := make(map[string]int, len(cells))
	result := make([]formula.StaticCell, 0, len(cells))
	for _, cell := range cells {
		key := formula.NormalizeReference(cell.Ref)
		if i, ok := index[key]; ok {
			result[i] = cell
			continue
		}
		index[key] = len(result)
		result = append(result, cell)
	}
	return result
}

// settle fills in the cached values of formula cells. formulas are
// evaluated in input order until nothing changes, bounded by the number of
// cells so a cycle cannot keep it running.
func settle(engine *formula.Engine, cells []formula.StaticCell) error {
	values := make(map[string]decimal.Decimal, len(cells))
	for _, cell := range cells {
		values[cell.Ref] = cell.Value
	}

	for pass := 0; pass <= len(cells); pass++ {
		changed := false
		for i, cell := range cells {
			if !formula.HasFormula(cell) {
				continue
			}
			value, err := engine.Evaluate(cell.Formula, values)
			if err != nil {
				return fmt.Errorf("failed to evaluate %s: %w", cell.Ref, err)
			}
			if !value.Equal(cell.Value) {
				cells[i].Value = value
				values[cell.Ref] = value
				changed = true
			}
		}
		if !changed {
			return nil
		}
	}
	return nil
}

func asEngineCells(cells []formula.StaticCell) []formula.Cell {
	result := make([]formula.Cell, len(cells))
	for i, cell := range cells {
		result[i] = cell
	}
	return result
}

func valuesOf(cells []formula.StaticCell) map[string]decimal.Decimal {
	values := make(map[string]decimal.Decimal, len(cells))
	for _, cell := range cells {
		values[cell.Ref] = cell.Value
	}
	return values
}
