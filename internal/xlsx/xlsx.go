package xlsx

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/vogtb/go-spreadsheet/packages/formula"
	"github.com/xuri/excelize/v2"
)

var ErrSheetNotFound = errors.New("sheet not found")

// Load reads the cells of one sheet of an .xlsx workbook. an empty sheet
// name selects the first sheet.
func Load(path, sheet string) ([]formula.StaticCell, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", path, err)
	}
	defer f.Close()

	return readSheet(f, sheet)
}

// Read is Load over an already open stream
func Read(r io.Reader, sheet string) ([]formula.StaticCell, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	return readSheet(f, sheet)
}

// readSheet keeps numeric cells and formula cells. a formula cell carries
// its cached value when the workbook has one; text cells are skipped.
func readSheet(f *excelize.File, sheet string) ([]formula.StaticCell, error) {
	sheet, err := resolveSheet(f, sheet)
	if err != nil {
		return nil, err
	}

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}

	var cells []formula.StaticCell
	for r, row := range rows {
		for c, raw := range row {
			name, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return nil, err
			}

			text, err := f.GetCellFormula(sheet, name)
			if err != nil {
				return nil, fmt.Errorf("failed to read formula of %s!%s: %w", sheet, name, err)
			}

			value, numeric := parseValue(raw)
			if text != "" {
				cells = append(cells, formula.StaticCell{Ref: name, Formula: "=" + text, Value: value})
				continue
			}
			if numeric {
				cells = append(cells, formula.StaticCell{Ref: name, Value: value})
			}
		}
	}
	return cells, nil
}

func resolveSheet(f *excelize.File, sheet string) (string, error) {
	sheets := f.GetSheetList()
	if sheet == "" {
		if len(sheets) == 0 {
			return "", ErrSheetNotFound
		}
		return sheets[0], nil
	}
	for _, name := range sheets {
		if strings.EqualFold(name, sheet) {
			return name, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrSheetNotFound, sheet)
}

func parseValue(raw string) (decimal.Decimal, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, false
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false
	}
	return value, true
}

// Write saves cells into a new workbook with a single sheet. references
// must be plain A1 cell names.
func Write(path, sheet string, cells []formula.StaticCell) error {
	f := excelize.NewFile()
	defer f.Close()

	if sheet == "" {
		sheet = "Sheet1"
	}
	if sheet != "Sheet1" {
		if err := f.SetSheetName("Sheet1", sheet); err != nil {
			return fmt.Errorf("failed to name sheet %s: %w", sheet, err)
		}
	}

	for _, cell := range cells {
		if _, _, err := excelize.CellNameToCoordinates(cell.Ref); err != nil {
			return fmt.Errorf("invalid cell name %q: %w", cell.Ref, err)
		}

		// value first, setting a value drops the formula of a cell
		if err := f.SetCellValue(sheet, cell.Ref, cell.Value.InexactFloat64()); err != nil {
			return fmt.Errorf("failed to write %s: %w", cell.Ref, err)
		}
		if formula.HasFormula(cell) {
			text := strings.TrimPrefix(strings.TrimSpace(cell.Formula), "=")
			if err := f.SetCellFormula(sheet, cell.Ref, text); err != nil {
				return fmt.Errorf("failed to write formula of %s: %w", cell.Ref, err)
			}
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook %s: %w", path, err)
	}
	return nil
}
